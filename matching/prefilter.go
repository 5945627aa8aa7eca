package matching

import (
	"github.com/rs/zerolog"

	"wfscan/pattern"
)

// prefilter marks the common strings found in a chunk. Common strings covered by the multi-pattern scanner are found in one pass; the rest are searched for one by one.
type prefilter struct {
	logger     zerolog.Logger
	multi      pattern.MultiScanner
	covered    []*CompiledCommonString
	individual []*CompiledCommonString
}

func newPrefilter(logger zerolog.Logger, commonStrings []*CompiledCommonString, f pattern.MultiScannerFactory) *prefilter {
	p := &prefilter{logger: logger}

	var valid []*CompiledCommonString
	for _, cs := range commonStrings {
		if cs.Valid() {
			valid = append(valid, cs)
		}
	}

	if f == nil || len(valid) == 0 {
		p.individual = valid
		return p
	}

	mm := make([]pattern.MultiPattern, 0, len(valid))
	for _, cs := range valid {
		mm = append(mm, pattern.MultiPattern{Index: cs.Index, Expr: cs.CommonString.Pattern})
	}

	multi, rejected, err := f.NewMultiScanner(mm)
	if err != nil {
		logger.Warn().Err(err).Int("commonStrings", len(valid)).Msg("Multi-pattern prefilter unavailable, searching for common strings one by one")
		p.individual = valid
		return p
	}

	isRejected := make(map[int]bool, len(rejected))
	for _, idx := range rejected {
		isRejected[idx] = true
	}
	for _, cs := range valid {
		if isRejected[cs.Index] {
			p.individual = append(p.individual, cs)
		} else {
			p.covered = append(p.covered, cs)
		}
	}
	p.multi = multi

	logger.Info().Int("covered", len(p.covered)).Int("individual", len(p.individual)).Msg("Built multi-pattern prefilter")
	return p
}

// scan sets seen for every common string found in the chunk. Flags that are already set are left alone.
func (p *prefilter) scan(data []byte, text string, seen []bool) {
	if p.multi != nil {
		err := p.multi.Scan(data, seen, func(idx int) { seen[idx] = true })
		if err != nil {
			p.logger.Warn().Err(err).Msg("Multi-pattern prefilter scan failed, searching for common strings one by one")
			p.scanIndividually(p.covered, text, seen)
		}
	}

	p.scanIndividually(p.individual, text, seen)
}

func (p *prefilter) scanIndividually(cc []*CompiledCommonString, text string, seen []bool) {
	for _, cs := range cc {
		if !seen[cs.Index] && cs.Search(text) {
			seen[cs.Index] = true
		}
	}
}

func (p *prefilter) close() {
	if p.multi != nil {
		p.multi.Close()
	}
}
