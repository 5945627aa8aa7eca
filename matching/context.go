package matching

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"unicode/utf8"

	"wfscan/signatures"
)

// MatchContext is the state of one scan: which common strings have been sighted so far and which signatures matched.
// It must not be shared between goroutines. Chunks are processed in the order they are given.
type MatchContext struct {
	m *Matcher

	// seen[i] is set once common string i has occurred in any chunk. It is never cleared.
	seen []bool

	matched map[signatures.SignatureID]struct{}
	order   []signatures.SignatureID

	// Per-chunk tally of sighted common strings per dependent signature. Only the touched entries are non-zero, and they are reset before ProcessChunk returns.
	counts     []int
	touched    []int
	candidates []int

	decoder *decoder
	tail    string
}

func newMatchContext(m *Matcher) *MatchContext {
	return &MatchContext{
		m:       m,
		seen:    make([]bool, len(m.commonStrings)),
		matched: make(map[signatures.SignatureID]struct{}),
		counts:  make([]int, len(m.dependent)),
		decoder: newDecoder(),
	}
}

// ProcessChunk scans the next chunk of the content stream.
// Common strings are tracked across the whole stream, but a signature's full pattern is only searched for within the current chunk (plus the configured window). A signature whose parts are spread over several chunks is therefore not matched.
func (c *MatchContext) ProcessChunk(chunk []byte) {
	data := c.decoder.decode(chunk)
	text := string(data)

	c.m.prefilter.scan(data, text, c.seen)
	candidates := c.selectCandidates()

	evalText := text
	if c.m.window > 0 {
		evalText = c.tail + text
	}

	for _, s := range c.m.always {
		c.evaluate(s, evalText)
	}

	for _, idx := range candidates {
		c.evaluate(c.m.dependent[idx], evalText)
	}

	if c.m.window > 0 {
		c.tail = trailingText(evalText, c.m.window)
	}
}

// selectCandidates returns, in ascending order, the positions of unmatched dependent signatures whose common strings have all been seen.
func (c *MatchContext) selectCandidates() []int {
	for i, seen := range c.seen {
		if !seen {
			continue
		}

		for _, d := range c.m.dependents[i] {
			if c.Matched(c.m.dependent[d].Signature.ID) {
				continue
			}

			if c.counts[d] == 0 {
				c.touched = append(c.touched, d)
			}
			c.counts[d]++
		}
	}

	c.candidates = c.candidates[:0]
	for _, d := range c.touched {
		if c.counts[d] == c.m.dependent[d].Signature.RequiredCommonStringCount() {
			c.candidates = append(c.candidates, d)
		}
		c.counts[d] = 0
	}
	c.touched = c.touched[:0]

	sort.Ints(c.candidates)
	return c.candidates
}

func (c *MatchContext) evaluate(s *CompiledSignature, text string) {
	id := s.Signature.ID
	if c.Matched(id) {
		return
	}

	found, err := s.Match(text)
	if err != nil {
		c.m.logger.Warn().Err(err).Int("signatureID", int(id)).Msg("Signature evaluation failed, treating as no match")
		return
	}

	if found {
		c.matched[id] = struct{}{}
		c.order = append(c.order, id)
	}
}

// trailingText returns at most n bytes from the end of s, starting on a rune boundary.
func trailingText(s string, n int) string {
	if len(s) <= n {
		return s
	}

	start := len(s) - n
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}

	// Clone so the tail doesn't keep the whole chunk alive.
	return strings.Clone(s[start:])
}

// ProcessReader reads r to the end, handing it to ProcessChunk in chunks of len(buf) bytes. It stops early when ctx is done.
func (c *MatchContext) ProcessReader(ctx context.Context, r io.Reader, buf []byte) error {
	if len(buf) == 0 {
		return io.ErrShortBuffer
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := io.ReadFull(r, buf)
		if n > 0 {
			c.ProcessChunk(buf[:n])
		}

		switch {
		case err == nil:
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			return nil
		default:
			return err
		}
	}
}

// Matches returns the ids of all matched signatures, in the order they first matched.
func (c *MatchContext) Matches() []signatures.SignatureID {
	out := make([]signatures.SignatureID, len(c.order))
	copy(out, c.order)
	return out
}

// Matched reports whether the signature has matched in this context.
func (c *MatchContext) Matched(id signatures.SignatureID) bool {
	_, ok := c.matched[id]
	return ok
}

// MatchCount is the number of matched signatures.
func (c *MatchContext) MatchCount() int {
	return len(c.order)
}

// Seen reports whether the common string at index idx has been sighted in this context.
func (c *MatchContext) Seen(idx int) bool {
	return c.seen[idx]
}
