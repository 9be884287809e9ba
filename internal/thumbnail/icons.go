package thumbnail

import (
	"hash/fnv"
	"image"
	"image/color"
	"strings"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const iconSize = 128

// DefaultIcons draws a generic document glyph tinted per extension and
// labelled with it.
type DefaultIcons struct{}

// IconFor implements IconProvider.
func (DefaultIcons) IconFor(ext string) image.Image {
	ext = strings.ToLower(ext)
	tint := tintFor(ext)
	img := image.NewRGBA(image.Rect(0, 0, iconSize, iconSize))

	page := image.Rect(24, 8, 104, 120)
	xdraw.Draw(img, page, image.NewUniform(shade(tint, 60)), image.Point{}, xdraw.Src)
	xdraw.Draw(img, page.Inset(2), image.NewUniform(shade(tint, 200)), image.Point{}, xdraw.Src)

	// Folded corner.
	for y := 0; y < 20; y++ {
		for x := 20 - y; x < 20; x++ {
			img.Set(page.Max.X-20+x, page.Min.Y+y, color.Transparent)
		}
		img.Set(page.Max.X-20+(19-y), page.Min.Y+y, shade(tint, 60))
	}

	band := image.Rect(page.Min.X, 64, page.Max.X, 88)
	xdraw.Draw(img, band, image.NewUniform(tint), image.Point{}, xdraw.Src)

	label := strings.ToUpper(ext)
	if label == "" {
		label = "FILE"
	}
	if len(label) > 8 {
		label = label[:8]
	}
	face := basicfont.Face7x13
	w := font.MeasureString(face, label).Ceil()
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.White),
		Face: face,
		Dot:  fixed.P(page.Min.X+(page.Dx()-w)/2, band.Min.Y+17),
	}
	d.DrawString(label)
	return img
}

func tintFor(ext string) color.RGBA {
	h := fnv.New32a()
	h.Write([]byte(ext))
	v := h.Sum32()
	return color.RGBA{
		R: 48 + uint8(v&0x7f),
		G: 48 + uint8((v>>8)&0x7f),
		B: 48 + uint8((v>>16)&0x7f),
		A: 0xff,
	}
}

// shade mixes c toward white (amount > 128) or black (amount < 128).
func shade(c color.RGBA, amount int) color.RGBA {
	mix := func(v uint8) uint8 {
		if amount >= 128 {
			return uint8(int(v) + (255-int(v))*(amount-128)/127)
		}
		return uint8(int(v) * amount / 128)
	}
	return color.RGBA{R: mix(c.R), G: mix(c.G), B: mix(c.B), A: 0xff}
}
