package engine

import "github.com/google/uuid"

// IDGenerator mints entity IDs. Tests swap in testutil.SequentialIDs for
// stable output.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator mints time-ordered UUIDv7 strings. It holds no state.
type UUIDv7Generator struct{}

// Generate panics only if the system entropy source fails.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
