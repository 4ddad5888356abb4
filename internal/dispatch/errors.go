package dispatch

import "errors"

// DispatchError is the closed set of failure reasons a dispatch can
// return. The dispatcher, the daemon's RBAC gate and the rbac store wrap
// these with fmt.Errorf("%w: ..."). The rbac store returns the wrapped
// error itself, so errors.Is works on it; Dispatch and ExecuteTool
// report only its text, in ToolResult.Error.
var (
	ErrInvalidContext     = errors.New("invalid context")
	ErrUnknownTool        = errors.New("unknown tool")
	ErrNotImplemented     = errors.New("not implemented")
	ErrReadOnlyViolation  = errors.New("Write operation blocked by read_only flag")
	ErrPathNotAllowed     = errors.New("path not allowed")
	ErrNoMatch            = errors.New("no files matched pattern")
	ErrSandboxUnavailable = errors.New("sandbox unavailable")
	ErrSandboxError       = errors.New("sandbox error")
	ErrHandlerFailure     = errors.New("handler failure")
	ErrPolicyDenied       = errors.New("policy denied")
	ErrPersistence        = errors.New("persistence error")
)
