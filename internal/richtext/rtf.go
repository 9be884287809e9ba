// Package richtext converts note text to and from RTF.
package richtext

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// ErrFormat is returned for input that is not well-formed RTF, or text that
// cannot be represented.
var ErrFormat = errors.New("richtext: invalid format")

// Text is the formatted note body. Formatting is opaque to this module; only
// the character content survives a round trip.
type Text string

// Codec serializes note text to bytes and back.
type Codec interface {
	Serialize(t Text) ([]byte, error)
	Parse(data []byte) (Text, error)
}

// RTF is the Codec used for Text.rtf and QuickLook/Preview.rtf.
type RTF struct {
	Font     string
	FontSize int // in points
}

// NewRTF returns an RTF codec with a Helvetica 12pt body font.
func NewRTF() *RTF {
	return &RTF{Font: "Helvetica", FontSize: 12}
}

var _ Codec = (*RTF)(nil)

// Serialize writes t as an RTF document. Every valid UTF-8 string survives
// Parse(Serialize(t)) unchanged.
func (c *RTF) Serialize(t Text) ([]byte, error) {
	s := string(t)
	if !utf8.ValidString(s) {
		return nil, fmt.Errorf("%w: text is not valid UTF-8", ErrFormat)
	}
	font := c.Font
	if font == "" {
		font = "Helvetica"
	}
	size := c.FontSize
	if size <= 0 {
		size = 12
	}

	var b bytes.Buffer
	b.Grow(len(s) + 128)
	fmt.Fprintf(&b, "{\\rtf1\\ansi\\ansicpg1252\\deff0\\uc1{\\fonttbl{\\f0\\fswiss\\fcharset0 %s;}}\n\\f0\\fs%d ", font, size*2)
	for _, r := range s {
		switch {
		case r == '\\' || r == '{' || r == '}':
			b.WriteByte('\\')
			b.WriteRune(r)
		case r == '\n':
			b.WriteString("\\par\n")
		case r == '\t':
			b.WriteString("\\tab ")
		case r < 0x20 || r == 0x7f:
			writeUnicode(&b, r)
		case r < 0x80:
			b.WriteRune(r)
		case r <= 0xFFFF:
			writeUnicode(&b, r)
		default:
			hi, lo := utf16.EncodeRune(r)
			writeUnicode(&b, hi)
			writeUnicode(&b, lo)
		}
	}
	b.WriteString("}")
	return b.Bytes(), nil
}

// writeUnicode emits \uN? where N is the signed 16-bit code unit.
func writeUnicode(b *bytes.Buffer, r rune) {
	b.WriteString("\\u")
	b.WriteString(strconv.Itoa(int(int16(uint16(r)))))
	b.WriteByte('?')
}

// skippedDestinations are groups whose content is never part of the text.
var skippedDestinations = map[string]bool{
	"fonttbl":           true,
	"colortbl":          true,
	"expandedcolortbl":  true,
	"stylesheet":        true,
	"info":              true,
	"pict":              true,
	"header":            true,
	"footer":            true,
	"listtable":         true,
	"listoverridetable": true,
	"generator":         true,
	"themedata":         true,
	"latentstyles":      true,
}

var wordRunes = map[string]rune{
	"par":       '\n',
	"line":      '\n',
	"tab":       '\t',
	"emdash":    '\u2014',
	"endash":    '\u2013',
	"lquote":    '\u2018',
	"rquote":    '\u2019',
	"ldblquote": '\u201C',
	"rdblquote": '\u201D',
	"bullet":    '\u2022',
}

type group struct {
	skip  bool
	uc    int
	fresh bool // no control word seen yet in this group
}

type parser struct {
	data     []byte
	pos      int
	stack    []group
	out      strings.Builder
	fallback int // fallback characters still to drop after \uN
	high     rune
}

// Parse extracts the text content of an RTF document.
func (c *RTF) Parse(data []byte) (Text, error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if !bytes.HasPrefix(trimmed, []byte("{\\rtf")) {
		return "", fmt.Errorf("%w: missing {\\rtf header", ErrFormat)
	}
	p := &parser{data: trimmed}
	if err := p.run(); err != nil {
		return "", err
	}
	return Text(p.out.String()), nil
}

func (p *parser) cur() *group { return &p.stack[len(p.stack)-1] }

func (p *parser) run() error {
	for p.pos < len(p.data) {
		ch := p.data[p.pos]
		switch ch {
		case '{':
			g := group{uc: 1, fresh: true}
			if len(p.stack) > 0 {
				g.skip = p.cur().skip
				g.uc = p.cur().uc
			}
			p.stack = append(p.stack, g)
			p.pos++
		case '}':
			if len(p.stack) == 0 {
				return fmt.Errorf("%w: unbalanced closing brace at offset %d", ErrFormat, p.pos)
			}
			p.stack = p.stack[:len(p.stack)-1]
			p.fallback = 0
			p.pos++
			if len(p.stack) == 0 {
				return nil
			}
		case '\\':
			if len(p.stack) == 0 {
				return fmt.Errorf("%w: control word outside group", ErrFormat)
			}
			if err := p.control(); err != nil {
				return err
			}
		case '\r', '\n':
			p.pos++
		default:
			if len(p.stack) == 0 {
				p.pos++
				continue
			}
			r, size := utf8.DecodeRune(p.data[p.pos:])
			if r == utf8.RuneError && size <= 1 {
				r = charmap.Windows1252.DecodeByte(ch)
				size = 1
			}
			p.pos += size
			p.cur().fresh = false
			p.emit(r)
		}
	}
	if len(p.stack) != 0 {
		return fmt.Errorf("%w: unterminated group", ErrFormat)
	}
	return nil
}

// emit appends r unless the group is skipped or r is a \uN fallback char.
func (p *parser) emit(r rune) {
	if p.fallback > 0 {
		p.fallback--
		return
	}
	if p.cur().skip {
		return
	}
	p.flushHigh()
	p.out.WriteRune(r)
}

func (p *parser) emitUnicode(r rune) {
	if p.cur().skip {
		return
	}
	switch {
	case utf16.IsSurrogate(r) && r < 0xDC00:
		p.flushHigh()
		p.high = r
	case utf16.IsSurrogate(r) && p.high != 0:
		p.out.WriteRune(utf16.DecodeRune(p.high, r))
		p.high = 0
	default:
		p.flushHigh()
		p.out.WriteRune(r)
	}
}

func (p *parser) flushHigh() {
	if p.high != 0 {
		p.out.WriteRune(utf8.RuneError)
		p.high = 0
	}
}

func (p *parser) control() error {
	p.pos++ // backslash
	if p.pos >= len(p.data) {
		return fmt.Errorf("%w: dangling backslash", ErrFormat)
	}
	ch := p.data[p.pos]
	if !isLetter(ch) {
		p.pos++
		switch ch {
		case '\\', '{', '}':
			p.cur().fresh = false
			p.emit(rune(ch))
		case '\'':
			if p.pos+2 > len(p.data) {
				return fmt.Errorf("%w: truncated hex escape", ErrFormat)
			}
			v, err := strconv.ParseUint(string(p.data[p.pos:p.pos+2]), 16, 8)
			if err != nil {
				return fmt.Errorf("%w: bad hex escape", ErrFormat)
			}
			p.pos += 2
			p.cur().fresh = false
			p.emit(charmap.Windows1252.DecodeByte(byte(v)))
		case '*':
			p.cur().skip = true
		case '~':
			p.emit('\u00A0')
		case '_':
			p.emit('\u2011')
		case '\n', '\r':
			p.emit('\n')
		}
		return nil
	}

	start := p.pos
	for p.pos < len(p.data) && isLetter(p.data[p.pos]) {
		p.pos++
	}
	word := string(p.data[start:p.pos])
	numStart := p.pos
	if p.pos < len(p.data) && p.data[p.pos] == '-' {
		p.pos++
	}
	for p.pos < len(p.data) && p.data[p.pos] >= '0' && p.data[p.pos] <= '9' {
		p.pos++
	}
	param, hasParam := 0, false
	if p.pos > numStart {
		n, err := strconv.Atoi(string(p.data[numStart:p.pos]))
		if err != nil {
			return fmt.Errorf("%w: bad parameter for \\%s", ErrFormat, word)
		}
		param, hasParam = n, true
	}
	if p.pos < len(p.data) && p.data[p.pos] == ' ' {
		p.pos++
	}

	g := p.cur()
	if g.fresh && skippedDestinations[word] {
		g.skip = true
	}
	g.fresh = false

	switch word {
	case "u":
		if !hasParam {
			return nil
		}
		if param < 0 {
			param += 0x10000
		}
		p.fallback = 0
		p.emitUnicode(rune(param))
		p.fallback = g.uc
	case "uc":
		if hasParam && param >= 0 {
			g.uc = param
		}
	default:
		if r, ok := wordRunes[word]; ok {
			p.fallback = 0
			p.emit(r)
		}
	}
	return nil
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
