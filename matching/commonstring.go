package matching

import (
	"wfscan/pattern"
	"wfscan/signatures"
)

// CompiledCommonString is a common string together with its compiled search pattern. It is immutable once built.
type CompiledCommonString struct {
	CommonString *signatures.CommonString

	// Index is the position of this common string in the Matcher, shared by every MatchContext's seen flags.
	Index int

	pattern pattern.Pattern
	err     error
}

func newCompiledCommonString(idx int, cs *signatures.CommonString, c pattern.Compiler) *CompiledCommonString {
	p, err := c.Compile(cs.Pattern)
	return &CompiledCommonString{
		CommonString: cs,
		Index:        idx,
		pattern:      p,
		err:          err,
	}
}

// Valid is false when the pattern failed to compile. An invalid common string is never sighted.
func (c *CompiledCommonString) Valid() bool {
	return c.err == nil
}

// Search reports whether the common string occurs in text. Engine errors count as not found.
func (c *CompiledCommonString) Search(text string) bool {
	if c.pattern == nil {
		return false
	}

	found, err := c.pattern.MatchString(text)
	return err == nil && found
}
