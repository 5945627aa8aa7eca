package hyperscan

import (
	"errors"
	"fmt"
	"runtime"

	"wfscan/pattern"

	hs "github.com/flier/gohs/hyperscan"
)

// ErrNoPatterns is returned when none of the given patterns could be compiled into a Hyperscan database.
var ErrNoPatterns = errors.New("no patterns Hyperscan can compile")

// MultiScannerFactory implements the pattern.MultiScannerFactory interface.
type MultiScannerFactory struct {
	cache DbCache
}

// MultiScanner implements the pattern.MultiScanner interface.
type MultiScanner struct {
	// Hyperscan's compiled database of common strings
	db hs.BlockDatabase

	// Pre-allocated memory space that Hyperscan needs during evaluation. A scratch may only be used by one scan at a time, so idle clones are kept here.
	scratches chan *hs.Scratch
	proto     *hs.Scratch

	// Hyperscan ids are positions in this slice
	indexes []int
}

// NewMultiScannerFactory creates a pattern.MultiScannerFactory backed by Hyperscan. Built databases are reused through cache, which may be nil.
func NewMultiScannerFactory(cache DbCache) pattern.MultiScannerFactory {
	return &MultiScannerFactory{cache: cache}
}

// NewMultiScanner compiles all patterns into one block database. Patterns Hyperscan can't compile are returned in rejected.
func (f *MultiScannerFactory) NewMultiScanner(mm []pattern.MultiPattern) (s pattern.MultiScanner, rejected []int, err error) {
	patterns := make([]*hs.Pattern, 0, len(mm))
	for i, m := range mm {
		p := newPattern(m.Expr)
		p.Id = i
		patterns = append(patterns, p)
	}

	h := &MultiScanner{}
	for _, m := range mm {
		h.indexes = append(h.indexes, m.Index)
	}

	h.db = f.load(patterns)
	if h.db == nil {
		// Fast path: every pattern compiles.
		if db, buildErr := hs.NewBlockDatabase(patterns...); buildErr == nil {
			h.db = db
			f.save(patterns, h.db)
		}
	}

	if h.db == nil {
		bad := findIncompatiblePatterns(patterns)

		compatible := make([]*hs.Pattern, 0, len(patterns))
		h.indexes = h.indexes[:0]
		for i, p := range patterns {
			if bad[i] {
				rejected = append(rejected, mm[i].Index)
				continue
			}

			p.Id = len(compatible)
			compatible = append(compatible, p)
			h.indexes = append(h.indexes, mm[i].Index)
		}

		if len(compatible) == 0 {
			err = ErrNoPatterns
			return
		}

		h.db = f.load(compatible)
		if h.db == nil {
			h.db, err = hs.NewBlockDatabase(compatible...)
			if err != nil {
				err = fmt.Errorf("failed to build Hyperscan database: %w", err)
				return
			}
			f.save(compatible, h.db)
		}
	}

	h.proto, err = hs.NewScratch(h.db)
	if err != nil {
		h.db.Close()
		err = fmt.Errorf("failed to allocate Hyperscan scratch space: %w", err)
		return
	}
	h.scratches = make(chan *hs.Scratch, runtime.NumCPU())

	s = h
	return
}

func (f *MultiScannerFactory) load(patterns []*hs.Pattern) hs.BlockDatabase {
	if f.cache == nil || len(patterns) == 0 {
		return nil
	}
	return f.cache.loadFromCache(f.cache.cacheID(patterns))
}

func (f *MultiScannerFactory) save(patterns []*hs.Pattern, db hs.BlockDatabase) {
	if f.cache == nil {
		return
	}
	f.cache.saveToCache(f.cache.cacheID(patterns), db)
}

func newPattern(expr string) *hs.Pattern {
	// SingleMatch makes Hyperscan only report a common string once per scan, which is all the prefilter needs to know.
	// The text being scanned is always valid UTF-8, as the matcher decodes chunks before scanning.
	return hs.NewPattern(expr, hs.SingleMatch|hs.Utf8Mode)
}

// findIncompatiblePatterns returns the positions of patterns Hyperscan refuses. It first tries the whole set, then bisects, so a set without problems costs a single compile.
func findIncompatiblePatterns(patterns []*hs.Pattern) map[int]bool {
	bad := make(map[int]bool)

	var bisect func(lo, hi int)
	bisect = func(lo, hi int) {
		if lo >= hi {
			return
		}

		db, err := hs.NewBlockDatabase(patterns[lo:hi]...)
		if err == nil {
			db.Close()
			return
		}

		if hi-lo == 1 {
			bad[lo] = true
			return
		}

		mid := lo + (hi-lo)/2
		bisect(lo, mid)
		bisect(mid, hi)
	}
	bisect(0, len(patterns))

	return bad
}

// Scan scans data for all common strings in the database.
func (h *MultiScanner) Scan(data []byte, seen []bool, hit func(idx int)) (err error) {
	scratch, err := h.getScratch()
	if err != nil {
		return
	}
	defer h.putScratch(scratch)

	handler := func(id uint, from, to uint64, flags uint, context interface{}) error {
		idx := h.indexes[id]
		if !seen[idx] {
			hit(idx)
		}
		return nil
	}

	err = h.db.Scan(data, scratch, handler, nil)
	return
}

func (h *MultiScanner) getScratch() (*hs.Scratch, error) {
	select {
	case s := <-h.scratches:
		return s, nil
	default:
		return h.proto.Clone()
	}
}

func (h *MultiScanner) putScratch(s *hs.Scratch) {
	select {
	case h.scratches <- s:
	default:
		s.Free()
	}
}

// Close releases the database and all idle scratch space.
func (h *MultiScanner) Close() {
	for {
		select {
		case s := <-h.scratches:
			s.Free()
		default:
			h.proto.Free()
			h.db.Close()
			return
		}
	}
}
