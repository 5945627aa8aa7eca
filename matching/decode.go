package matching

import (
	"unicode/utf8"

	"golang.org/x/text/transform"
)

// dropIllFormed is a transform.Transformer that copies valid UTF-8 and silently drops every byte that is not part of a valid encoding.
type dropIllFormed struct {
	transform.NopResetter
}

func (dropIllFormed) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	for nSrc < len(src) {
		c := src[nSrc]
		if c < utf8.RuneSelf {
			if nDst >= len(dst) {
				err = transform.ErrShortDst
				return
			}
			dst[nDst] = c
			nDst++
			nSrc++
			continue
		}

		if !atEOF && !utf8.FullRune(src[nSrc:]) {
			err = transform.ErrShortSrc
			return
		}

		r, size := utf8.DecodeRune(src[nSrc:])
		if r == utf8.RuneError && size == 1 {
			nSrc++
			continue
		}

		if nDst+size > len(dst) {
			err = transform.ErrShortDst
			return
		}
		nDst += copy(dst[nDst:], src[nSrc:nSrc+size])
		nSrc += size
	}

	return
}

// decoder turns raw chunks into text, reusing its output buffer between calls. The result is only valid until the next call.
type decoder struct {
	t   transform.Transformer
	buf []byte
}

func newDecoder() *decoder {
	return &decoder{t: dropIllFormed{}}
}

func (d *decoder) decode(chunk []byte) []byte {
	if cap(d.buf) < len(chunk) {
		d.buf = make([]byte, len(chunk))
	}

	// Dropping bytes never makes the output longer than the input, and atEOF is set, so Transform can't fail here.
	d.t.Reset()
	n, _, _ := d.t.Transform(d.buf[:len(chunk)], chunk, true)
	return d.buf[:n]
}
