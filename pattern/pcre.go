package pattern

import (
	"fmt"
	"time"

	"github.com/dlclark/regexp2"
)

// DefaultMatchTimeout bounds a single full-pattern search. Signature patterns and scanned content are both untrusted, and regexp2 backtracks.
const DefaultMatchTimeout = time.Second

type pcreCompiler struct {
	timeout time.Duration
}

// NewPcreCompiler creates a Compiler for Perl style expressions, including lookarounds and backreferences, using regexp2.
// A search running longer than timeout is abandoned with an error. A timeout <= 0 disables the limit.
func NewPcreCompiler(timeout time.Duration) Compiler {
	return &pcreCompiler{timeout: timeout}
}

func (c *pcreCompiler) Compile(expr string) (p Pattern, err error) {
	r, err := regexp2.Compile(removePcrePossessiveQuantifier(expr), regexp2.None)
	if err != nil {
		err = fmt.Errorf("failed to compile pattern %q: %w", expr, err)
		return
	}

	if c.timeout > 0 {
		r.MatchTimeout = c.timeout
	}

	p = &pcrePattern{expr: expr, r: r}
	return
}

type pcrePattern struct {
	expr string
	r    *regexp2.Regexp
}

func (p *pcrePattern) MatchString(text string) (bool, error) {
	return p.r.MatchString(text)
}

func (p *pcrePattern) String() string {
	return p.expr
}
