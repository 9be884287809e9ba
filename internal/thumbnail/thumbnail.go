// Package thumbnail composes the QuickLook preview image of a note: a text
// snippet, and below it the first attachment's picture or icon.
package thumbnail

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"strings"
	"unicode/utf8"

	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/starford/notebundle/internal/apperr"
	"github.com/starford/notebundle/internal/classify"
)

// DefaultSize is the edge length of Thumbnail.png.
const DefaultSize = 512

// basePixels is the canvas size at which text renders unscaled.
const basePixels = 256

var (
	background = color.RGBA{0xff, 0xff, 0xff, 0xff}
	ink        = color.RGBA{0x33, 0x33, 0x33, 0xff}
	rule       = color.RGBA{0xdd, 0xdd, 0xdd, 0xff}
)

// Attachment is the part of a note attachment the generator reads.
type Attachment interface {
	Name() string
	Bytes() ([]byte, error)
}

// IconProvider returns a representative image for a file extension.
type IconProvider interface {
	IconFor(ext string) image.Image
}

// Generator builds thumbnails.
type Generator struct {
	icons IconProvider
	face  font.Face
}

// New returns a Generator drawing fallback icons with icons. A nil provider
// selects DefaultIcons.
func New(icons IconProvider) *Generator {
	if icons == nil {
		icons = DefaultIcons{}
	}
	return &Generator{icons: icons, face: basicfont.Face7x13}
}

// Build renders a size×size PNG. With first == nil the text snippet fills the
// canvas; otherwise the text takes the upper half and the attachment the
// lower half. Output is deterministic for equal inputs.
func (g *Generator) Build(text string, first Attachment, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultSize
	}
	canvas := image.NewRGBA(image.Rect(0, 0, size, size))
	xdraw.Draw(canvas, canvas.Bounds(), image.NewUniform(background), image.Point{}, xdraw.Src)

	pad := max(size/16, 1)
	textArea := image.Rect(pad, pad, size-pad, size-pad)
	if first != nil {
		mid := size / 2
		textArea.Max.Y = mid - pad
		xdraw.Draw(canvas, image.Rect(pad, mid, size-pad, mid+max(size/256, 1)), image.NewUniform(rule), image.Point{}, xdraw.Src)
		g.drawAttachment(canvas, image.Rect(pad, mid+pad, size-pad, size-pad), first)
	}
	g.drawText(canvas, textArea, text, max(size/basePixels, 1))

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, apperr.E(apperr.CannotSaveAttachment, "build thumbnail", "", err)
	}
	return buf.Bytes(), nil
}

// drawText renders wrapped text into area at an integer zoom so the bitmap
// font stays legible on large canvases.
func (g *Generator) drawText(dst *image.RGBA, area image.Rectangle, text string, zoom int) {
	if area.Empty() {
		return
	}
	w, h := area.Dx()/zoom, area.Dy()/zoom
	if w <= 0 || h <= 0 {
		return
	}
	layer := image.NewRGBA(image.Rect(0, 0, w, h))
	m := g.face.Metrics()
	lineHeight := m.Height.Ceil() + 2
	maxLines := h / lineHeight
	d := &font.Drawer{Dst: layer, Src: image.NewUniform(ink), Face: g.face}
	for i, line := range wrap(text, g.face, fixed.I(w), maxLines) {
		d.Dot = fixed.P(0, i*lineHeight+m.Ascent.Ceil())
		d.DrawString(line)
	}
	sr := layer.Bounds()
	dr := image.Rect(area.Min.X, area.Min.Y, area.Min.X+w*zoom, area.Min.Y+h*zoom)
	xdraw.NearestNeighbor.Scale(dst, dr, layer, sr, xdraw.Over, nil)
}

func (g *Generator) drawAttachment(dst *image.RGBA, area image.Rectangle, a Attachment) {
	src := g.picture(a)
	if src == nil || area.Empty() {
		return
	}
	xdraw.CatmullRom.Scale(dst, fit(src.Bounds(), area), src, src.Bounds(), xdraw.Over, nil)
}

// picture decodes image attachments and falls back to the extension icon.
func (g *Generator) picture(a Attachment) image.Image {
	name := a.Name()
	if classify.ConformsTo(name, classify.TypeImage) {
		if data, err := a.Bytes(); err == nil {
			if img, _, err := Decode(data); err == nil {
				return img
			}
		}
	}
	ext, _ := classify.InferExtension(name)
	if icon := g.icons.IconFor(ext); icon != nil {
		return icon
	}
	return DefaultIcons{}.IconFor(ext)
}

// fit returns the largest rectangle with src's aspect ratio centred in area.
func fit(src, area image.Rectangle) image.Rectangle {
	sw, sh := src.Dx(), src.Dy()
	aw, ah := area.Dx(), area.Dy()
	if sw <= 0 || sh <= 0 {
		return image.Rectangle{}
	}
	w, h := aw, sh*aw/sw
	if h > ah {
		w, h = sw*ah/sh, ah
	}
	x := area.Min.X + (aw-w)/2
	y := area.Min.Y + (ah-h)/2
	return image.Rect(x, y, x+w, y+h)
}

// wrap breaks text into at most maxLines lines no wider than width. The last
// line ends in "..." when text was cut.
func wrap(text string, face font.Face, width fixed.Int26_6, maxLines int) []string {
	if maxLines <= 0 {
		return nil
	}
	var lines []string
	truncated := false
	push := func(s string) bool {
		if len(lines) == maxLines {
			truncated = true
			return false
		}
		lines = append(lines, s)
		return true
	}

paragraphs:
	for _, para := range strings.Split(strings.TrimSpace(text), "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			if !push("") {
				break
			}
			continue
		}
		var cur string
		for _, word := range words {
			candidate := word
			if cur != "" {
				candidate = cur + " " + word
			}
			if font.MeasureString(face, candidate) <= width {
				cur = candidate
				continue
			}
			if cur != "" {
				if !push(cur) {
					break paragraphs
				}
			}
			cur = word
			for font.MeasureString(face, cur) > width {
				head, rest := splitAt(cur, face, width)
				if !push(head) {
					break paragraphs
				}
				cur = rest
			}
		}
		if !push(cur) {
			break
		}
	}
	if truncated && len(lines) > 0 {
		last := &lines[len(lines)-1]
		for *last != "" && font.MeasureString(face, *last+"...") > width {
			_, n := utf8.DecodeLastRuneInString(*last)
			*last = (*last)[:len(*last)-n]
		}
		*last += "..."
	}
	return lines
}

// splitAt cuts s after the longest prefix that fits width, always keeping at
// least one rune so progress is made.
func splitAt(s string, face font.Face, width fixed.Int26_6) (string, string) {
	end := 0
	for i, r := range s {
		next := i + utf8.RuneLen(r)
		if end > 0 && font.MeasureString(face, s[:next]) > width {
			break
		}
		end = next
	}
	return s[:end], s[end:]
}

// MaxPixels bounds the decoded size of an attachment picture. Larger
// images are drawn as their extension icon.
const MaxPixels = 16 << 20

var (
	// ErrNoImage is returned by Decode for data that is not a supported image.
	ErrNoImage = errors.New("thumbnail: not a decodable image")
	// ErrTooLarge is returned by Decode for images above MaxPixels.
	ErrTooLarge = errors.New("thumbnail: image too large")
)

// Decode reads an image attachment in any registered format. The header is
// checked against MaxPixels before any pixel data is allocated.
func Decode(data []byte) (image.Image, string, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", errors.Join(ErrNoImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, "", fmt.Errorf("%w: %dx%d", ErrTooLarge, cfg.Width, cfg.Height)
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", errors.Join(ErrNoImage, err)
	}
	return img, format, nil
}
