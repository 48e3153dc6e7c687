package logging

// Structured log field keys shared across packages.
const (
	FieldGameID     = "game_id"
	FieldUserID     = "user_id"
	FieldPath       = "path"
	FieldMethod     = "method"
	FieldStatusCode = "status_code"
	FieldCount      = "count"
	FieldStore      = "store"
)
