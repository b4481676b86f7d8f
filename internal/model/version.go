package model

// EngineVersion is reported by `tenantry --version`.
const EngineVersion = "0.1.0"
