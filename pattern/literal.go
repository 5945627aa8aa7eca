package pattern

import (
	"errors"
	"regexp/syntax"

	"github.com/cloudflare/ahocorasick"
)

// ErrNoLiterals is returned by the literal scanner factory when none of the patterns is a plain literal.
var ErrNoLiterals = errors.New("no literal patterns")

// IsLiteral reports whether expr matches exactly one fixed, case-sensitive string, and returns that string.
func IsLiteral(expr string) (lit string, ok bool) {
	re, err := syntax.Parse(removePcrePossessiveQuantifier(expr), syntax.Perl)
	if err != nil {
		return
	}
	re = re.Simplify()

	if re.Op != syntax.OpLiteral || re.Flags&syntax.FoldCase != 0 || len(re.Rune) == 0 {
		return
	}

	return string(re.Rune), true
}

type literalScannerFactory struct{}

// NewLiteralScannerFactory creates a MultiScannerFactory that finds all literal patterns in one Aho-Corasick pass. Patterns that aren't plain literals are rejected.
func NewLiteralScannerFactory() MultiScannerFactory {
	return &literalScannerFactory{}
}

func (f *literalScannerFactory) NewMultiScanner(patterns []MultiPattern) (s MultiScanner, rejected []int, err error) {
	var dictionary []string
	var indexes [][]int
	dictIdx := make(map[string]int)

	for _, p := range patterns {
		lit, ok := IsLiteral(p.Expr)
		if !ok {
			rejected = append(rejected, p.Index)
			continue
		}

		// The automaton reports each dictionary word once, so patterns with the same literal share an entry.
		i, ok := dictIdx[lit]
		if !ok {
			i = len(dictionary)
			dictIdx[lit] = i
			dictionary = append(dictionary, lit)
			indexes = append(indexes, nil)
		}
		indexes[i] = append(indexes[i], p.Index)
	}

	if len(dictionary) == 0 {
		err = ErrNoLiterals
		return
	}

	s = &literalScanner{
		matcher: ahocorasick.NewStringMatcher(dictionary),
		indexes: indexes,
	}
	return
}

type literalScanner struct {
	matcher *ahocorasick.Matcher
	indexes [][]int
}

func (s *literalScanner) Scan(data []byte, seen []bool, hit func(idx int)) error {
	// Match keeps per-call state inside the Matcher, which is shared between scans.
	for _, i := range s.matcher.MatchThreadSafe(data) {
		for _, idx := range s.indexes[i] {
			if !seen[idx] {
				hit(idx)
			}
		}
	}
	return nil
}

func (s *literalScanner) Close() {}
