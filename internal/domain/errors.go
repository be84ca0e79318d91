package domain

import "errors"

var (
	ErrorUnknownDriverName = errors.New("provided driver name not found")
	ErrorNoTablesSpecified = errors.New("no tables specified for change feed")
)

var (
	ErrorUnknownChannel = errors.New("no channel specified with provided name")
)

var (
	ErrorTablesDoMatchWithSchema = errors.New("provided table names do not match with tables in actual schema")
)

// Validation and persistence failures surfaced to callers of the core.
var (
	ErrorUnknownEventType = errors.New("unknown event type")
	ErrorRoleNotAllowed   = errors.New("role not allowed to emit event")
	ErrorInvalidPayload   = errors.New("invalid event payload")
	ErrorPersistence      = errors.New("persistence error")
)

var (
	ErrorNotFound = errors.New("not found")
)
