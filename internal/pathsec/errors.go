package pathsec

import "errors"

// ErrPathNotAllowed is returned when a path fails every allowlist check,
// including the shorthand rewrite.
var ErrPathNotAllowed = errors.New("path not allowed")

// ErrNoMatch is returned when wildcard expansion finds zero files.
var ErrNoMatch = errors.New("no files matched pattern")
