// Package tools declares tool definitions, their parameter schemas and the
// registry that binds each definition to exactly one handler.
//
// Schemas are usually reflected from an argument struct with SchemaFor,
// which reads `json` and `jsonschema` struct tags:
//
//	type followArgs struct {
//		Username string `json:"username" jsonschema:"minLength=1,description=Account to follow"`
//	}
//
//	def := tools.Definition{Name: "follow_user", Description: "Follow a user", Schema: tools.SchemaFor[followArgs]()}
//
// Validate enforces the full schema before a handler runs: required fields
// first, in declaration order, then type, enum, numeric bounds, string
// length, array bounds and unknown keys.
package tools
