package matching

import (
	"fmt"
	"runtime"
	"sort"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"wfscan/pattern"
	"wfscan/signatures"
)

// Options tune how a Matcher compiles and evaluates patterns. The zero value is usable.
type Options struct {
	// Compiler compiles common strings and signature rules. Defaults to the regexp2 based PCRE compiler with pattern.DefaultMatchTimeout.
	Compiler pattern.Compiler

	// Prefilter, if set, is used to find many common strings in a single pass. Common strings it rejects are searched for individually.
	Prefilter pattern.MultiScannerFactory

	// Diagnostics receives compilation failures. Defaults to logging them at warn level.
	Diagnostics DiagnosticSink

	// Window is the number of bytes of decoded text carried over from the previous chunk into full-pattern evaluation. Zero evaluates each chunk on its own.
	Window int

	// EagerCompile compiles every signature while building the Matcher instead of on first use.
	EagerCompile bool
}

// Matcher holds the compiled form of a SignatureSet. It is read-only after NewMatcher returns, apart from lazy signature compilation, and may be shared by any number of concurrent MatchContexts.
type Matcher struct {
	logger zerolog.Logger

	commonStrings []*CompiledCommonString
	signatures    map[signatures.SignatureID]*CompiledSignature

	// always holds signatures without common strings, checked on every chunk.
	always []*CompiledSignature

	// dependent holds the other signatures. Positions in it index the per-context tally.
	dependent []*CompiledSignature

	// dependents maps a common string index to positions in dependent.
	dependents [][]int

	prefilter *prefilter
	window    int
}

// NewMatcher compiles all common strings and all signatures without common strings. The remaining signatures are compiled when first needed.
// Patterns that don't compile are reported to the DiagnosticSink and left out. The only error is ErrInconsistentSignatureSet.
func NewMatcher(logger zerolog.Logger, set *signatures.SignatureSet, opts Options) (m *Matcher, err error) {
	if err = set.Validate(); err != nil {
		err = fmt.Errorf("failed to build matcher: %w", err)
		return
	}

	if opts.Compiler == nil {
		opts.Compiler = pattern.NewPcreCompiler(pattern.DefaultMatchTimeout)
	}
	if opts.Diagnostics == nil {
		opts.Diagnostics = NewLoggerDiagnosticSink(logger)
	}
	if opts.Window < 0 {
		opts.Window = 0
	}

	m = &Matcher{
		logger:        logger,
		commonStrings: make([]*CompiledCommonString, len(set.CommonStrings)),
		signatures:    make(map[signatures.SignatureID]*CompiledSignature, len(set.Signatures)),
		dependents:    make([][]int, len(set.CommonStrings)),
		window:        opts.Window,
	}

	// Common strings are compiled concurrently; each goroutine writes its own slot.
	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for i, cs := range set.CommonStrings {
		i, cs := i, cs
		g.Go(func() error {
			m.commonStrings[i] = newCompiledCommonString(i, cs, opts.Compiler)
			return nil
		})
	}
	g.Wait()

	csIndex := make(map[signatures.CommonStringID]int, len(m.commonStrings))
	for _, cs := range m.commonStrings {
		csIndex[cs.CommonString.ID] = cs.Index
		if !cs.Valid() {
			opts.Diagnostics.CompilationFailed(&CompilationError{
				CommonString:   true,
				CommonStringID: cs.CommonString.ID,
				Pattern:        cs.CommonString.Pattern,
				Err:            cs.err,
			})
		}
	}

	dependentIdx := make(map[signatures.SignatureID]int)
	for _, id := range set.SortedSignatureIDs() {
		sig := set.Signatures[id]
		s := newCompiledSignature(sig, opts.Compiler, opts.Diagnostics)
		m.signatures[id] = s

		if sig.IsSimple() {
			m.always = append(m.always, s)
			continue
		}

		dependentIdx[id] = len(m.dependent)
		m.dependent = append(m.dependent, s)

		for _, ref := range sig.CommonStrings {
			if cs := m.commonStrings[csIndex[ref]]; !cs.Valid() {
				s.invalidate(fmt.Errorf("%w: common string %d", ErrCommonStringInvalid, ref))
				break
			}
		}
	}

	for i, cs := range m.commonStrings {
		for _, sigID := range cs.CommonString.SignatureIDs {
			m.dependents[i] = append(m.dependents[i], dependentIdx[sigID])
		}
	}

	// Signatures without common strings are checked on every chunk, so there is nothing to gain from deferring them.
	eager := m.always
	if opts.EagerCompile {
		eager = append(append([]*CompiledSignature{}, m.always...), m.dependent...)
	}
	var sg errgroup.Group
	sg.SetLimit(runtime.NumCPU())
	for _, s := range eager {
		s := s
		sg.Go(func() error {
			s.Valid()
			return nil
		})
	}
	sg.Wait()

	m.prefilter = newPrefilter(logger, m.commonStrings, opts.Prefilter)

	logger.Info().
		Int("commonStrings", len(m.commonStrings)).
		Int("alwaysChecked", len(m.always)).
		Int("dependent", len(m.dependent)).
		Bool("eagerCompile", opts.EagerCompile).
		Msg("Built signature matcher")

	return
}

// NewContext creates the state for scanning one content stream.
func (m *Matcher) NewContext() *MatchContext {
	return newMatchContext(m)
}

// CommonStrings returns the compiled common strings in index order.
func (m *Matcher) CommonStrings() []*CompiledCommonString {
	return m.commonStrings
}

// Signature looks up a compiled signature by id.
func (m *Matcher) Signature(id signatures.SignatureID) (s *CompiledSignature, ok bool) {
	s, ok = m.signatures[id]
	return
}

// SignatureCount is the number of signatures, valid or not.
func (m *Matcher) SignatureCount() int {
	return len(m.signatures)
}

// SignatureIDs returns all signature ids in ascending order.
func (m *Matcher) SignatureIDs() []signatures.SignatureID {
	ids := make([]signatures.SignatureID, 0, len(m.signatures))
	for id := range m.signatures {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Close releases resources held by the multi-pattern prefilter. The Matcher must not be used afterwards.
func (m *Matcher) Close() {
	m.prefilter.close()
}
