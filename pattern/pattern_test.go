package pattern

import (
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPcreCompilerMatch(t *testing.T) {
	type testcase struct {
		expr    string
		input   string
		matches bool
	}
	tests := []testcase{
		{`evil`, `this is evil code`, true},
		{`evil`, `this is good code`, false},
		{`abc.*xyz`, `..abc..xyz..`, true},
		{`abc.*xyz`, `..xyz..abc..`, false},
		{`eval\((?=base64)`, `eval(base64_decode($x))`, true},
		{`eval\((?!base64)`, `eval(base64_decode($x))`, false},
		{`(\w+)=\1`, `foo=foo`, true},
		{`a++b`, `aaab`, true},
		{`(?i)FilesMan`, `filesman`, true},
	}

	c := NewPcreCompiler(DefaultMatchTimeout)
	for _, test := range tests {
		// Act
		p, err := c.Compile(test.expr)
		if err != nil {
			t.Fatalf("Got unexpected error for %v: %s", test.expr, err)
		}
		m, err := p.MatchString(test.input)

		// Assert
		if err != nil {
			t.Fatalf("Got unexpected error for %v: %s", test.expr, err)
		}
		if m != test.matches {
			t.Fatalf("Got unexpected match result %v for %v on %v", m, test.expr, test.input)
		}
		if p.String() != test.expr {
			t.Fatalf("Got unexpected String() %v for %v", p.String(), test.expr)
		}
	}
}

func TestPcreCompilerInvalid(t *testing.T) {
	// Act
	_, err := NewPcreCompiler(0).Compile(`abc(`)

	// Assert
	assert.NotNil(t, err)
}

func TestPcreCompilerTimeout(t *testing.T) {
	assert := assert.New(t)

	// Arrange
	p, err := NewPcreCompiler(10 * time.Millisecond).Compile(`^(a+)+$`)
	assert.Nil(err)

	// Act
	_, err = p.MatchString(strings.Repeat("a", 40) + "!")

	// Assert
	assert.NotNil(err)
}

func TestRe2CompilerMatch(t *testing.T) {
	type testcase struct {
		expr    string
		input   string
		matches bool
	}
	tests := []testcase{
		{`evil`, `this is evil code`, true},
		{`abc.*xyz`, `abc xyz`, true},
		{`a++b`, `aaab`, true},
		{`a{2,3}+b`, `aaab`, true},
		{`x\x41y`, `xAy`, true},
		{"x\ty", "x\ty", true},
		{`caf\xe9`, "café", true},
		{`caf\xe9`, "caf\xc3", false},
		{"café", "un café", true},
		{"\xffevil", "evil", false},
	}

	c := NewRe2Compiler()
	for _, test := range tests {
		// Act
		p, err := c.Compile(test.expr)
		if err != nil {
			t.Fatalf("Got unexpected error for %v: %s", test.expr, err)
		}
		m, _ := p.MatchString(test.input)

		// Assert
		if m != test.matches {
			t.Fatalf("Got unexpected match result %v for %v on %v", m, test.expr, test.input)
		}
	}
}

func TestRe2CompilerRejectsLookaround(t *testing.T) {
	// Act
	_, err := NewRe2Compiler().Compile(`eval(?=\()`)

	// Assert
	assert.NotNil(t, err)
}

func TestRemovePcrePossessiveQuantifier(t *testing.T) {
	type testcase struct {
		in  string
		out string
	}
	tests := []testcase{
		{`a++`, `a+`},
		{`a*+b`, `a*b`},
		{`a?+b`, `a?b`},
		{`a{1,3}+b`, `a{1,3}b`},
		{`a\++`, `a\++`},
		{`a\\++`, `a\\+`},
		{`abc`, `abc`},
	}

	for _, test := range tests {
		// Act
		out := removePcrePossessiveQuantifier(test.in)

		// Assert
		if out != test.out {
			t.Fatalf("Got %v for %v, expected %v", out, test.in, test.out)
		}
	}
}

func TestIsLiteral(t *testing.T) {
	type testcase struct {
		expr string
		lit  string
		ok   bool
	}
	tests := []testcase{
		{`abc`, `abc`, true},
		{`eval\(`, `eval(`, true},
		{`base64_decode`, `base64_decode`, true},
		{`a.c`, ``, false},
		{`(?i)abc`, ``, false},
		{`abc|def`, ``, false},
		{``, ``, false},
		{`abc(?=d)`, ``, false},
	}

	for _, test := range tests {
		// Act
		lit, ok := IsLiteral(test.expr)

		// Assert
		if ok != test.ok || lit != test.lit {
			t.Fatalf("Got (%q, %v) for %v, expected (%q, %v)", lit, ok, test.expr, test.lit, test.ok)
		}
	}
}

func TestLiteralScanner(t *testing.T) {
	assert := assert.New(t)

	// Arrange
	patterns := []MultiPattern{
		{Index: 0, Expr: `eval\(`},
		{Index: 1, Expr: `ba.e64`},
		{Index: 2, Expr: `FilesMan`},
		{Index: 3, Expr: `eval\(`},
	}
	s, rejected, err := NewLiteralScannerFactory().NewMultiScanner(patterns)
	assert.Nil(err)
	defer s.Close()

	// Act
	var found []int
	seen := []bool{false, false, true, false}
	err = s.Scan([]byte("<?php eval($_POST['x']); // FilesMan"), seen, func(idx int) { found = append(found, idx) })
	sort.Ints(found)

	// Assert
	assert.Nil(err)
	assert.Equal([]int{1}, rejected)
	assert.Equal([]int{0, 3}, found)
}

func TestLiteralScannerNoLiterals(t *testing.T) {
	// Act
	_, rejected, err := NewLiteralScannerFactory().NewMultiScanner([]MultiPattern{{Index: 0, Expr: `a.b`}})

	// Assert
	assert.Equal(t, ErrNoLiterals, err)
	assert.Equal(t, []int{0}, rejected)
}
