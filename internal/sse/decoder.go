package sse

import (
	"errors"
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// DoneValue is the payload of the frame that ends a stream.
const DoneValue = "[DONE]"

// Decoder turns arbitrarily split chunks of an event stream into Deltas.
// Splitting the same bytes at different offsets always yields the same
// sequence of Deltas. A Decoder is not safe for concurrent use.
type Decoder struct {
	extractors []Extractor

	utf8    transform.Transformer
	scratch []byte
	pending []byte // undecoded tail, usually a partial multi-byte rune
	afterCR bool
	buf     string
	done    bool
}

// DecoderOption configures a Decoder.
type DecoderOption func(*Decoder)

// WithExtractors replaces the default extractor chain.
func WithExtractors(extractors ...Extractor) DecoderOption {
	return func(d *Decoder) { d.extractors = extractors }
}

// NewDecoder creates a Decoder using DefaultExtractors.
func NewDecoder(opts ...DecoderOption) *Decoder {
	d := &Decoder{
		extractors: DefaultExtractors,
		utf8:       unicode.UTF8.NewDecoder(),
		scratch:    make([]byte, 4096),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Done reports whether the terminal frame has been seen. Once done, Feed and
// Flush ignore their input.
func (d *Decoder) Done() bool {
	return d.done
}

// Feed consumes the next chunk and returns the Deltas of every frame it
// completed, in order.
func (d *Decoder) Feed(chunk []byte) []Delta {
	if d.done {
		return nil
	}
	d.buf += d.normalize(d.decode(chunk, false))
	return d.drain()
}

// Flush is called once the transport reports end of stream. A trailing frame
// not followed by a blank line is processed as if it were.
func (d *Decoder) Flush() []Delta {
	if d.done {
		return nil
	}
	d.buf += d.normalize(d.decode(nil, true))
	deltas := d.drain()
	if d.done {
		return deltas
	}

	tail := d.buf
	d.buf = ""
	if delta, ok := d.frame(tail); ok {
		deltas = append(deltas, delta)
	}
	return deltas
}

// decode converts bytes to text, holding back an incomplete trailing rune
// until more input arrives. Invalid sequences become U+FFFD.
func (d *Decoder) decode(chunk []byte, atEOF bool) string {
	d.pending = append(d.pending, chunk...)

	var out strings.Builder
	for {
		nDst, nSrc, err := d.utf8.Transform(d.scratch, d.pending, atEOF)
		out.Write(d.scratch[:nDst])
		d.pending = append(d.pending[:0], d.pending[nSrc:]...)
		if !errors.Is(err, transform.ErrShortDst) {
			break
		}
	}
	return out.String()
}

// normalize rewrites CRLF and lone CR to LF. A CR ending one chunk and an LF
// starting the next still count as a single line break.
func (d *Decoder) normalize(s string) string {
	if !strings.ContainsRune(s, '\r') && !d.afterCR {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\r' {
			b.WriteByte('\n')
			d.afterCR = true
			continue
		}
		if c != '\n' || !d.afterCR {
			b.WriteByte(c)
		}
		d.afterCR = false
	}
	return b.String()
}

// drain extracts every complete frame from the buffer.
func (d *Decoder) drain() []Delta {
	var deltas []Delta
	for !d.done {
		idx := strings.Index(d.buf, "\n\n")
		if idx < 0 {
			break
		}
		raw := d.buf[:idx]
		d.buf = d.buf[idx+2:]

		if delta, ok := d.frame(raw); ok {
			deltas = append(deltas, delta)
		}
	}
	if d.done {
		d.buf = ""
	}
	return deltas
}

// frame processes one raw frame. Frames without data, with a payload that is
// not JSON, or with no recognised content produce no Delta.
func (d *Decoder) frame(raw string) (Delta, bool) {
	payload, ok := framePayload(raw)
	if !ok {
		return Delta{}, false
	}
	if payload == DoneValue {
		d.done = true
		return Delta{}, false
	}
	if !gjson.Valid(payload) {
		return Delta{}, false
	}
	return extract(d.extractors, payload)
}

// framePayload joins the data lines of a frame with newlines.
func framePayload(raw string) (string, bool) {
	var data []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "event:") {
			continue
		}
		if v, ok := strings.CutPrefix(line, "data:"); ok {
			data = append(data, strings.TrimSpace(v))
		}
	}
	if len(data) == 0 {
		return "", false
	}
	payload := strings.Join(data, "\n")
	return payload, payload != ""
}
