package matching

import (
	"sync"
	"sync/atomic"
	"testing"

	"wfscan/pattern"
	"wfscan/signatures"
)

// countingCompiler wraps a real compiler and counts compiles and searches per expression.
type countingCompiler struct {
	inner    pattern.Compiler
	mu       sync.Mutex
	compiles map[string]int
	searches map[string]*atomic.Int64
}

func newCountingCompiler() *countingCompiler {
	return &countingCompiler{
		inner:    pattern.NewPcreCompiler(pattern.DefaultMatchTimeout),
		compiles: make(map[string]int),
		searches: make(map[string]*atomic.Int64),
	}
}

func (c *countingCompiler) Compile(expr string) (pattern.Pattern, error) {
	c.mu.Lock()
	c.compiles[expr]++
	n, ok := c.searches[expr]
	if !ok {
		n = &atomic.Int64{}
		c.searches[expr] = n
	}
	c.mu.Unlock()

	p, err := c.inner.Compile(expr)
	if err != nil {
		return nil, err
	}
	return &countingPattern{Pattern: p, n: n}, nil
}

func (c *countingCompiler) compileCount(expr string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.compiles[expr]
}

func (c *countingCompiler) searchCount(expr string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n, ok := c.searches[expr]; ok {
		return n.Load()
	}
	return 0
}

type countingPattern struct {
	pattern.Pattern
	n *atomic.Int64
}

func (p *countingPattern) MatchString(text string) (bool, error) {
	p.n.Add(1)
	return p.Pattern.MatchString(text)
}

// recordingSink collects compilation failures.
type recordingSink struct {
	mu     sync.Mutex
	errors []*CompilationError
}

func (s *recordingSink) CompilationFailed(err *CompilationError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, err)
}

func (s *recordingSink) failures() []*CompilationError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*CompilationError{}, s.errors...)
}

// Common strings:
//   0: abc
//   1: xyz
//   2: eval\(
//   3: base64_decode
// Signatures:
//   1: evil               (always checked)
//   2: abc.*xyz           (abc, xyz)
//   3: eval\(base64_decode\(  (eval, base64_decode)
//   4: abc                (abc)
func newTestSignatureSet(t *testing.T) *signatures.SignatureSet {
	cc := []*signatures.CommonString{
		{ID: 100, Pattern: "abc"},
		{ID: 101, Pattern: "xyz"},
		{ID: 102, Pattern: `eval\(`},
		{ID: 103, Pattern: "base64_decode"},
	}
	ss := []*signatures.Signature{
		{ID: 1, Name: "evil", Rule: "evil"},
		{ID: 2, Name: "abc-xyz", Rule: "abc.*xyz", CommonStrings: []signatures.CommonStringID{100, 101}},
		{ID: 3, Name: "eval-base64", Rule: `eval\(base64_decode\(`, CommonStrings: []signatures.CommonStringID{102, 103}},
		{ID: 4, Name: "abc", Rule: "abc", CommonStrings: []signatures.CommonStringID{100}},
	}

	set, err := signatures.NewSignatureSet(cc, ss)
	if err != nil {
		t.Fatalf("Got unexpected error: %s", err)
	}
	return set
}
