package matching

import (
	"errors"
	"fmt"

	"wfscan/signatures"
)

// ErrInconsistentSignatureSet is returned by NewMatcher when the signature set's references do not line up. It is the only error NewMatcher returns.
var ErrInconsistentSignatureSet = signatures.ErrInconsistent

// ErrCommonStringInvalid is the underlying error reported for signatures that depend on a common string which failed to compile.
var ErrCommonStringInvalid = errors.New("depends on a common string that failed to compile")

// CompilationError describes a pattern that could not be compiled. The matcher never returns it; it is handed to the DiagnosticSink and scanning carries on without the pattern.
type CompilationError struct {
	// CommonString is true when the failing pattern is a common string rather than a signature rule.
	CommonString   bool
	CommonStringID signatures.CommonStringID
	SignatureID    signatures.SignatureID
	Pattern        string
	Err            error
}

func (e *CompilationError) Error() string {
	if e.CommonString {
		return fmt.Sprintf("regex compilation for common string %d failed: %v, pattern: %q", e.CommonStringID, e.Err, e.Pattern)
	}
	return fmt.Sprintf("regex compilation for signature %d failed: %v, pattern: %q", e.SignatureID, e.Err, e.Pattern)
}

func (e *CompilationError) Unwrap() error {
	return e.Err
}
