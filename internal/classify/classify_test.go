package classify

import (
	"errors"
	"testing"
)

func TestInferExtension(t *testing.T) {
	cases := []struct {
		name string
		ext  string
		ok   bool
	}{
		{"photo.jpg", "jpg", true},
		{"archive.tar.gz", "gz", true},
		{"README", "", false},
		{"trailing.", "", false},
		{".hidden", "hidden", true},
	}
	for _, c := range cases {
		ext, ok := InferExtension(c.name)
		if ext != c.ext || ok != c.ok {
			t.Errorf("InferExtension(%q) = %q, %v; want %q, %v", c.name, ext, ok, c.ext, c.ok)
		}
	}
}

func TestConformsTo(t *testing.T) {
	if !ConformsTo("photo.JPG", TypeImage) {
		t.Error("jpg should conform to public.image")
	}
	if !ConformsTo("photo.png", TypeData) {
		t.Error("png should conform to public.data")
	}
	if ConformsTo("notes.txt", TypeImage) {
		t.Error("txt should not conform to public.image")
	}
	if ConformsTo("README", TypeItem) {
		t.Error("missing extension must fail closed")
	}
	if ConformsTo("blob.xyz", TypeItem) {
		t.Error("unknown extension must fail closed")
	}
	if !ConformsTo("spot.loc", TypeJSON) {
		t.Error("loc should conform to public.json")
	}
}

func TestParseLocation(t *testing.T) {
	loc, err := ParseLocation([]byte(`{"lat":51.5,"long":-0.12}`))
	if err != nil {
		t.Fatalf("ParseLocation: %v", err)
	}
	if loc.Lat != 51.5 || loc.Long != -0.12 {
		t.Errorf("loc = %+v", loc)
	}

	bad := map[string]string{
		"not json":     `lat=1`,
		"missing long": `{"lat":1}`,
		"string lat":   `{"lat":"1","long":2}`,
		"null long":    `{"lat":1,"long":null}`,
		"out of range": `{"lat":91,"long":0}`,
		"array":        `[1,2]`,
	}
	for name, in := range bad {
		if _, err := ParseLocation([]byte(in)); !errors.Is(err, ErrNotLocation) {
			t.Errorf("%s: err = %v, want ErrNotLocation", name, err)
		}
	}
}

func TestIsLocationAttachment(t *testing.T) {
	body := []byte(`{"lat":51.5,"long":-0.12}`)
	if !IsLocationAttachment("spot.loc", body) {
		t.Error("spot.loc with coordinates should be a location")
	}
	if !IsLocationAttachment("coords.json", body) {
		t.Error("json with coordinates should be a location")
	}
	if IsLocationAttachment("photo.jpg", body) {
		t.Error("photo.jpg must never be a location")
	}
	if IsLocationAttachment("spot.loc", []byte(`{"name":"x"}`)) {
		t.Error("loc without coordinates is not a location")
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	data, err := Location{Lat: 10, Long: 20}.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	loc, err := ParseLocation(data)
	if err != nil || loc.Lat != 10 || loc.Long != 20 {
		t.Errorf("loc = %+v, err = %v", loc, err)
	}
	if _, err := (Location{Lat: 100}).Encode(); err == nil {
		t.Error("expected validation error for lat 100")
	}
}
