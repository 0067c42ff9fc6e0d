package importer

import (
	"bufio"
	"io"
	"unicode/utf8"
)

// byteOrderMark is the UTF-8 BOM that Excel prepends to "CSV UTF-8" exports.
const byteOrderMark = '\uFEFF'

// cleanReader streams UTF-8 text with the leading BOM removed and every
// invalid byte replaced by '?'. Memory use is bounded by the bufio buffer
// regardless of file size.
type cleanReader struct {
	src     *bufio.Reader
	started bool
	pending []byte
	scratch [utf8.UTFMax]byte
}

// newCleanReader wraps r for CSV decoding.
func newCleanReader(r io.Reader) *cleanReader {
	return &cleanReader{src: bufio.NewReader(r)}
}

// Read implements io.Reader.
func (c *cleanReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	n := copy(p, c.pending)
	c.pending = c.pending[n:]

	for n < len(p) {
		r, size, err := c.src.ReadRune()
		if err != nil {
			if n > 0 && err == io.EOF {
				return n, nil
			}
			return n, err
		}

		if !c.started {
			c.started = true
			if r == byteOrderMark {
				continue
			}
		}

		var enc []byte
		if r == utf8.RuneError && size == 1 {
			enc = []byte{'?'}
		} else {
			enc = c.scratch[:utf8.EncodeRune(c.scratch[:], r)]
		}

		copied := copy(p[n:], enc)
		n += copied
		if copied < len(enc) {
			c.pending = append(c.pending[:0], enc[copied:]...)
			break
		}

		// Return what we have rather than block on a slow source.
		if c.src.Buffered() == 0 {
			break
		}
	}

	return n, nil
}
