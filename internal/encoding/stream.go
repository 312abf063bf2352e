package encoding

import (
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// StreamDecoder decodes a byte stream incrementally in a fixed encoding,
// holding back a trailing partial multi-byte sequence until the next chunk
// (or Flush) completes it.
type StreamDecoder struct {
	name    string
	tr      transform.Transformer
	pending []byte
}

// NewStreamDecoder builds a decoder for one of the candidate encoding
// names; unknown names fall back to UTF-8.
func NewStreamDecoder(name string) *StreamDecoder {
	c, ok := candidateFor(name)
	if !ok {
		c = candidate{name: "utf-8", enc: unicode.UTF8}
	}
	return &StreamDecoder{
		name: c.name,
		tr:   c.enc.NewDecoder(),
	}
}

func (s *StreamDecoder) Name() string {
	return s.name
}

// Write decodes the next chunk and returns the completed text.
func (s *StreamDecoder) Write(p []byte) string {
	s.pending = append(s.pending, p...)
	return s.run(false)
}

// Flush drains any held-back partial sequence (lossily) at stream end.
func (s *StreamDecoder) Flush() string {
	if len(s.pending) == 0 {
		return ""
	}
	return s.run(true)
}

func (s *StreamDecoder) run(atEOF bool) string {
	var out []byte
	dst := make([]byte, len(s.pending)*3+16)

	for len(s.pending) > 0 {
		nDst, nSrc, err := s.tr.Transform(dst, s.pending, atEOF)
		out = append(out, dst[:nDst]...)
		s.pending = s.pending[nSrc:]

		switch err {
		case nil:
			if len(s.pending) == 0 {
				return string(out)
			}
		case transform.ErrShortDst:
			dst = make([]byte, len(dst)*2)
		case transform.ErrShortSrc:
			// Incomplete sequence: keep it pending for the next chunk.
			return string(out)
		default:
			// Decoders substitute rather than fail; anything else means
			// the remainder is undecodable, drop it.
			s.pending = nil
			return string(out)
		}
	}

	return string(out)
}
