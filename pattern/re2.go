package pattern

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"rsc.io/binaryregexp"
)

type re2Compiler struct{}

// NewRe2Compiler creates a Compiler backed by Go's linear time regexp engine. Expressions using backreferences or lookarounds fail to compile.
func NewRe2Compiler() Compiler {
	return &re2Compiler{}
}

func (c *re2Compiler) Compile(expr string) (Pattern, error) {
	return compileRegexpFacade(expr)
}

type goRegexpFacade struct {
	expr        string
	goregexp    *regexp.Regexp
	goregexpBin *binaryregexp.Regexp
}

func compileRegexpFacade(origExpr string) (g *goRegexpFacade, err error) {
	expr := removePcrePossessiveQuantifier(origExpr)

	// Text is always decoded UTF-8, so \xNN means the code point U+00NN, which is how Go's regexp reads it.
	// Only an expression that itself holds invalid UTF-8 needs Russ Cox's fork, which matches raw bytes.
	if utf8.ValidString(expr) {
		var r *regexp.Regexp
		r, err = regexp.Compile(escapeControlChars(expr))
		if err != nil {
			err = fmt.Errorf("failed to compile Go regexp pattern %q: %w", origExpr, err)
			return
		}

		g = &goRegexpFacade{expr: origExpr, goregexp: r}
		return
	}

	var b bytes.Buffer
	for i := 0; i < len(expr); i++ {
		// ' ' is the lowest value printable ASCII char, and '~' is the highest
		if ' ' <= expr[i] && expr[i] <= '~' {
			b.WriteByte(expr[i])
		} else {
			fmt.Fprintf(&b, "\\x%02X", expr[i])
		}
	}

	var r *binaryregexp.Regexp
	r, err = binaryregexp.Compile(b.String())
	if err != nil {
		err = fmt.Errorf("failed to compile Go regexp pattern %q using binary regexp engine: %w", origExpr, err)
		return
	}

	g = &goRegexpFacade{expr: origExpr, goregexpBin: r}
	return
}

// escapeControlChars writes ASCII control characters as \xNN and leaves every other rune as it is.
func escapeControlChars(expr string) string {
	var b strings.Builder
	for _, r := range expr {
		if r < ' ' || r == 0x7f {
			fmt.Fprintf(&b, "\\x%02X", r)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (g *goRegexpFacade) MatchString(text string) (bool, error) {
	if g.goregexp != nil {
		return g.goregexp.MatchString(text), nil
	}
	return g.goregexpBin.MatchString(text), nil
}

func (g *goRegexpFacade) String() string {
	return g.expr
}
