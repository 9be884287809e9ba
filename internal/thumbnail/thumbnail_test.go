package thumbnail

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

type fakeAttachment struct {
	name string
	data []byte
	err  error
}

func (f fakeAttachment) Name() string           { return f.name }
func (f fakeAttachment) Bytes() ([]byte, error) { return f.data, f.err }

func decodePNG(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("png.Decode: %v", err)
	}
	return img
}

func isWhite(c color.Color) bool {
	r, g, b, _ := c.RGBA()
	return r == 0xffff && g == 0xffff && b == 0xffff
}

func redPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			img.Set(x, y, color.RGBA{0xff, 0, 0, 0xff})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestBuildTextOnly(t *testing.T) {
	g := New(nil)
	data, err := g.Build("hello", nil, DefaultSize)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	img := decodePNG(t, data)
	if b := img.Bounds(); b.Dx() != 512 || b.Dy() != 512 {
		t.Fatalf("bounds = %v, want 512x512", b)
	}
	if !isWhite(img.At(256, 256)) {
		t.Error("a short text-only thumbnail should have no divider")
	}

	ink := false
	for y := 0; y < 128 && !ink; y++ {
		for x := 0; x < 256; x++ {
			if !isWhite(img.At(x, y)) {
				ink = true
				break
			}
		}
	}
	if !ink {
		t.Error("expected text pixels near the top")
	}
}

func TestBuildWithImageAttachment(t *testing.T) {
	g := New(nil)
	data, err := g.Build("caption", fakeAttachment{name: "dot.png", data: redPNG(t)}, DefaultSize)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	img := decodePNG(t, data)
	if isWhite(img.At(256, 256)) {
		t.Error("expected a divider between text and attachment")
	}
	r, gr, b, _ := img.At(256, 384).RGBA()
	if r>>8 < 200 || gr>>8 > 50 || b>>8 > 50 {
		t.Errorf("lower half centre = (%d,%d,%d), want red", r>>8, gr>>8, b>>8)
	}
}

type countingIcons struct{ asked []string }

func (c *countingIcons) IconFor(ext string) image.Image {
	c.asked = append(c.asked, ext)
	return DefaultIcons{}.IconFor(ext)
}

func TestBuildFallsBackToIcon(t *testing.T) {
	icons := &countingIcons{}
	g := New(icons)
	cases := []fakeAttachment{
		{name: "report.pdf", data: []byte("%PDF-1.4")},
		{name: "broken.png", data: []byte("not a png")},
		{name: "gone.jpg", err: errors.New("read failed")},
	}
	for _, a := range cases {
		if _, err := g.Build("x", a, 128); err != nil {
			t.Fatalf("Build(%s): %v", a.name, err)
		}
	}
	want := []string{"pdf", "png", "jpg"}
	if strings.Join(icons.asked, ",") != strings.Join(want, ",") {
		t.Errorf("icons asked for %v, want %v", icons.asked, want)
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	g := New(nil)
	att := fakeAttachment{name: "map.loc", data: []byte(`{"lat":1,"long":2}`)}
	a, err := g.Build("Same text\nsecond line", att, DefaultSize)
	if err != nil {
		t.Fatal(err)
	}
	b, err := g.Build("Same text\nsecond line", att, DefaultSize)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Error("thumbnails differ for identical input")
	}
}

func TestBuildDefaultSize(t *testing.T) {
	data, err := New(nil).Build("", nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if b := decodePNG(t, data).Bounds(); b.Dx() != DefaultSize {
		t.Errorf("width = %d, want %d", b.Dx(), DefaultSize)
	}
}

func TestWrap(t *testing.T) {
	face := basicfont.Face7x13
	width := fixed.I(7 * 10) // ten glyphs

	lines := wrap("the quick brown fox jumps", face, width, 10)
	want := []string{"the quick", "brown fox", "jumps"}
	if strings.Join(lines, "|") != strings.Join(want, "|") {
		t.Errorf("wrap = %q, want %q", lines, want)
	}

	lines = wrap("abcdefghijklmnopqrstuvwxyz", face, width, 10)
	if lines[0] != "abcdefghij" || len(lines) != 3 {
		t.Errorf("hard break = %q", lines)
	}

	lines = wrap("one\ntwo\nthree\nfour", face, width, 2)
	if len(lines) != 2 || lines[1] != "two..." {
		t.Errorf("truncated = %q", lines)
	}
}

func TestDefaultIconsDifferByExtension(t *testing.T) {
	if tintFor("pdf") == tintFor("zip") {
		t.Error("expected distinct tints for distinct extensions")
	}
	icon := DefaultIcons{}.IconFor("")
	if icon.Bounds().Dx() != iconSize {
		t.Errorf("icon width = %d", icon.Bounds().Dx())
	}
}

// oversizedPNG returns a valid 1x1 PNG whose header claims width x height.
func oversizedPNG(t *testing.T, width, height uint32) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 1, 1))); err != nil {
		t.Fatal(err)
	}
	data := buf.Bytes()
	binary.BigEndian.PutUint32(data[16:20], width)
	binary.BigEndian.PutUint32(data[20:24], height)
	binary.BigEndian.PutUint32(data[29:33], crc32.ChecksumIEEE(data[12:29]))
	return data
}

func TestDecodeRejectsOversizedImages(t *testing.T) {
	if _, _, err := Decode(oversizedPNG(t, 16000, 16000)); !errors.Is(err, ErrTooLarge) {
		t.Errorf("err = %v, want ErrTooLarge", err)
	}
	if _, _, err := Decode(redPNG(t)); err != nil {
		t.Errorf("small image: %v", err)
	}
}

func TestBuildDrawsIconForOversizedImage(t *testing.T) {
	icons := &countingIcons{}
	g := New(icons)
	if _, err := g.Build("big", fakeAttachment{name: "huge.png", data: oversizedPNG(t, 16000, 16000)}, 128); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if strings.Join(icons.asked, ",") != "png" {
		t.Errorf("icons asked for %v, want [png]", icons.asked)
	}
}
