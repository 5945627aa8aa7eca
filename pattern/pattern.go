package pattern

// Pattern is a compiled expression that can be searched for in decoded text.
type Pattern interface {
	// MatchString reports whether the pattern is found anywhere in text. An error means the engine gave up, for example on a timeout.
	MatchString(text string) (bool, error)
	String() string
}

// Compiler compiles expressions into Patterns. Compilers must be safe for concurrent use.
type Compiler interface {
	Compile(expr string) (Pattern, error)
}

// CompilerFunc adapts a function to the Compiler interface.
type CompilerFunc func(expr string) (Pattern, error)

// Compile calls f(expr).
func (f CompilerFunc) Compile(expr string) (Pattern, error) {
	return f(expr)
}

// MultiPattern is used by the MultiScannerFactory to tell it what to scan for.
type MultiPattern struct {
	Index int
	Expr  string
}

// MultiScannerFactory is an interface to a factory that can create scanners that look for many patterns in a single pass, such as Hyperscan or Aho-Corasick.
type MultiScannerFactory interface {
	// NewMultiScanner builds a scanner over the patterns it supports. The Index of every pattern it could not take is returned in rejected, and the caller has to search for those some other way.
	NewMultiScanner(patterns []MultiPattern) (s MultiScanner, rejected []int, err error)
}

// MultiScanner scans for many patterns at once. Implementations must be safe for concurrent use.
type MultiScanner interface {
	// Scan calls hit with the Index of each pattern found in data, skipping indexes for which seen is already true. hit may be called more than once for the same index.
	Scan(data []byte, seen []bool, hit func(idx int)) error
	Close()
}
