// Package dispatch implements the IPC operation dispatcher: the static
// service/operation table, schema validation, authorization, and
// bus-call/subscribe translation described in spec §4.8, plus the
// error-frame formatting from spec §4.10.
//
// Grounded on _examples/original_source/modules/ggipcd/src/ipc_dispatch.c
// (the canonical variant per spec §9; bins/ggipcd/src/ipc_dispatch.c is the
// obsolete duplicate and is not used) and the individual handler files
// under modules/ggipcd/src/handlers/.
package dispatch

import "github.com/edgerun/ipcbus/internal/ggerr"

// ErrorCode is a modeled IPC error, carried as both the JSON `_errorCode`
// field and the `aws.greengrass#<code>` service-model-type header, per
// spec §4.10.
type ErrorCode string

const (
	ServiceError                       ErrorCode = "ServiceError"
	ResourceNotFoundError              ErrorCode = "ResourceNotFoundError"
	InvalidArgumentsError              ErrorCode = "InvalidArgumentsError"
	ComponentNotFoundError             ErrorCode = "ComponentNotFoundError"
	UnauthorizedError                  ErrorCode = "UnauthorizedError"
	ConflictError                      ErrorCode = "ConflictError"
	FailedUpdateConditionCheckError    ErrorCode = "FailedUpdateConditionCheckError"
	InvalidTokenError                  ErrorCode = "InvalidTokenError"
	InvalidRecipeDirectoryPathError    ErrorCode = "InvalidRecipeDirectoryPathError"
	InvalidArtifactsDirectoryPathError ErrorCode = "InvalidArtifactsDirectoryPathError"
)

// ModelType returns the service-model-type header value for this code.
func (c ErrorCode) ModelType() string { return "aws.greengrass#" + string(c) }

// OpError is the dispatcher's *error_slot: an error code plus a
// human-readable message, populated by a handler on any failure path.
type OpError struct {
	Code    ErrorCode
	Message string
}

func (e *OpError) Error() string { return e.Message }

// errKindToCode maps a bus-level ggerr.Kind (surfaced from a corebus call)
// to the closest modeled error code, used when a handler's bus call fails
// without having already populated a more specific OpError.
func errKindToCode(kind ggerr.Kind) ErrorCode {
	switch kind {
	case ggerr.NoEntry:
		return ResourceNotFoundError
	case ggerr.Invalid, ggerr.Range:
		return InvalidArgumentsError
	case ggerr.Config:
		return ServiceError
	default:
		return ServiceError
	}
}
