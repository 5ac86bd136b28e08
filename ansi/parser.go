package ansi

// Escape introducer bytes (ECMA-48 / ANSI X3.64).
const (
	ESC byte = 0x1B
	CSI byte = '[' // ESC [ opens a control sequence
)

// Kind classifies a parsed segment.
type Kind int

const (
	KindText    Kind = iota // plain bytes
	KindEscape              // ESC-prefixed sequence (non-CSI)
	KindControl             // CSI sequence (ESC [ ...)
)

// String returns a short label for the kind.
func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindEscape:
		return "escape"
	case KindControl:
		return "control"
	}
	return "unknown"
}

// Segment is one run of bytes of a single kind. Complete is false only for
// an escape or control sequence that was cut short, either by the end of
// the input or by a new ESC before its final byte.
type Segment struct {
	Kind     Kind
	Bytes    []byte
	Complete bool
}

// Parser splits a byte string into alternating text, escape and control
// segments. Concatenating the segment bytes always reproduces the input, so
// callers can keep the text and drop the rest without losing anything they
// did not mean to lose.
//
// A parser may be reused; every Parse call starts from a clean state. The
// returned segments are owned by the parser until the next Parse.
type Parser struct {
	segs []Segment
	kind Kind
	buf  []byte
}

// NewParser creates a parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse segments data and returns the ordered result.
func (p *Parser) Parse(data []byte) []Segment {
	p.segs = p.segs[:0]
	p.kind = KindText
	p.buf = p.buf[:0]

	for i := 0; i < len(data); i++ {
		c := data[i]

		if c == ESC {
			// A new sequence interrupts whatever we were in: text closes
			// complete, an unfinished sequence closes incomplete.
			p.flush(p.kind == KindText)
			if i+1 < len(data) && data[i+1] == CSI {
				p.kind = KindControl
				p.buf = append(p.buf, c, data[i+1])
				i++
			} else {
				p.kind = KindEscape
				p.buf = append(p.buf, c)
			}
			continue
		}

		p.buf = append(p.buf, c)
		switch p.kind {
		case KindEscape:
			if c >= 0x30 && c <= 0x7E {
				p.flush(true)
				p.kind = KindText
			}
		case KindControl:
			if c >= 0x40 && c <= 0x7E {
				p.flush(true)
				p.kind = KindText
			}
		}
	}

	// Whatever is left is a segment of the current kind; a sequence cut off
	// by end of input is reported, just marked incomplete.
	p.flush(p.kind == KindText)
	return p.segs
}

// Segments returns the result of the last Parse.
func (p *Parser) Segments() []Segment {
	return p.segs
}

// Text concatenates the bytes of all text segments, dropping every escape
// and control sequence.
func (p *Parser) Text() []byte {
	var out []byte
	for _, s := range p.segs {
		if s.Kind == KindText {
			out = append(out, s.Bytes...)
		}
	}
	return out
}

// Full concatenates all segments, reproducing the parsed input.
func (p *Parser) Full() []byte {
	var out []byte
	for _, s := range p.segs {
		out = append(out, s.Bytes...)
	}
	return out
}

// Strip is a convenience wrapper: parse data and keep only the text.
func Strip(data []byte) []byte {
	p := NewParser()
	p.Parse(data)
	return p.Text()
}

func (p *Parser) flush(complete bool) {
	if len(p.buf) == 0 {
		return
	}
	seg := Segment{
		Kind:     p.kind,
		Bytes:    append([]byte(nil), p.buf...),
		Complete: complete,
	}
	p.segs = append(p.segs, seg)
	p.buf = p.buf[:0]
}
