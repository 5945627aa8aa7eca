package matching

import (
	"sync"
	"sync/atomic"

	"wfscan/pattern"
	"wfscan/signatures"
)

// SignatureState is where a CompiledSignature is in its compile lifecycle.
type SignatureState int32

const (
	// Uncompiled signatures have not been needed yet.
	Uncompiled SignatureState = iota
	// Valid signatures have a cached compiled pattern.
	Valid
	// Invalid signatures failed to compile and are never evaluated. This is final.
	Invalid
)

func (s SignatureState) String() string {
	switch s {
	case Uncompiled:
		return "uncompiled"
	case Valid:
		return "valid"
	case Invalid:
		return "invalid"
	}
	return "unknown"
}

// CompiledSignature wraps a signature with its full pattern. Signatures with common strings are compiled the first time they become a candidate, since compiling the whole library up front takes seconds.
// The first compile may be triggered by several MatchContexts at once. The sync.Once makes sure the pattern is compiled and published exactly once.
type CompiledSignature struct {
	Signature *signatures.Signature

	compiler pattern.Compiler
	diag     DiagnosticSink

	once    sync.Once
	state   atomic.Int32
	pattern pattern.Pattern
}

func newCompiledSignature(sig *signatures.Signature, c pattern.Compiler, diag DiagnosticSink) *CompiledSignature {
	return &CompiledSignature{
		Signature: sig,
		compiler:  c,
		diag:      diag,
	}
}

// State returns the current compile state.
func (s *CompiledSignature) State() SignatureState {
	return SignatureState(s.state.Load())
}

// Valid compiles the signature if that hasn't happened yet, and reports whether it compiled.
func (s *CompiledSignature) Valid() bool {
	s.once.Do(s.compile)
	return s.pattern != nil
}

// Match searches text for the signature's full pattern. An invalid signature never matches.
func (s *CompiledSignature) Match(text string) (bool, error) {
	if !s.Valid() {
		return false, nil
	}
	return s.pattern.MatchString(text)
}

func (s *CompiledSignature) compile() {
	p, err := s.compiler.Compile(s.Signature.Rule)
	if err != nil {
		s.fail(err)
		return
	}

	s.pattern = p
	s.state.Store(int32(Valid))
}

// invalidate marks the signature invalid without compiling it. It has no effect once a compile was attempted.
func (s *CompiledSignature) invalidate(err error) {
	s.once.Do(func() { s.fail(err) })
}

func (s *CompiledSignature) fail(err error) {
	s.state.Store(int32(Invalid))
	s.diag.CompilationFailed(&CompilationError{
		SignatureID: s.Signature.ID,
		Pattern:     s.Signature.Rule,
		Err:         err,
	})
}
