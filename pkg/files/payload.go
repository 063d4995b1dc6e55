package files

import (
	"bufio"
	"errors"
	"io"

	"github.com/gabriel-vasile/mimetype"
)

// sniffLen is how many leading bytes MIME detection looks at.
const sniffLen = 3072

// payload wraps an upload body. It sniffs the MIME type without losing
// bytes, enforces the size ceiling, and remembers whether the store has
// consumed anything so a key collision can be retried safely.
type payload struct {
	src    io.Reader
	seeker io.Seeker
	start  int64

	buf   *bufio.Reader
	limit int64
	read  int64
}

func newPayload(src io.Reader, limit int64) *payload {
	p := &payload{
		src:   src,
		buf:   bufio.NewReaderSize(src, sniffLen),
		limit: limit,
	}
	if s, ok := src.(io.Seeker); ok {
		if off, err := s.Seek(0, io.SeekCurrent); err == nil {
			p.seeker = s
			p.start = off
		}
	}
	return p
}

// sniff detects the MIME type from the leading bytes.
func (p *payload) sniff() (string, error) {
	head, err := p.buf.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return "", err
	}
	return mimetype.Detect(head).String(), nil
}

// Read implements io.Reader. Reading past the limit returns ErrTooLarge.
func (p *payload) Read(b []byte) (int, error) {
	if p.limit > 0 {
		if p.read > p.limit {
			return 0, ErrTooLarge
		}
		// Allow one byte past the limit so an exact-size body is not
		// mistaken for an oversized one.
		if room := p.limit - p.read + 1; int64(len(b)) > room {
			b = b[:room]
		}
	}

	n, err := p.buf.Read(b)
	p.read += int64(n)
	if p.limit > 0 && p.read > p.limit {
		return n, ErrTooLarge
	}
	return n, err
}

// rewind prepares the payload for a second Put. It reports false when
// bytes were consumed and the source cannot seek back.
func (p *payload) rewind() bool {
	if p.read == 0 {
		return true
	}
	if p.seeker == nil {
		return false
	}
	if _, err := p.seeker.Seek(p.start, io.SeekStart); err != nil {
		return false
	}
	p.buf.Reset(p.src)
	p.read = 0
	return true
}
