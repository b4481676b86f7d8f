// Package compiler turns deployment resources into process models.
//
// Process resources are written in CUE (.cue) or YAML (.yaml, .yml). Every
// other resource is stored with its deployment but never compiled.
//
// A resource declares either a single process:
//
//	process: {
//		key:  "invoice"
//		name: "Invoice approval"
//		steps: [{id: "review", type: "userTask"}]
//	}
//
// or several under processes: [...]. Compile returns every declared model,
// validated; ValidateModel reports all problems at once rather than stopping
// at the first.
package compiler
