// Package classify infers attachment types from file names and recognises
// location attachments.
package classify

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Uniform type identifiers used by the classifier.
const (
	TypeItem        = "public.item"
	TypeData        = "public.data"
	TypeContent     = "public.content"
	TypeText        = "public.text"
	TypePlainText   = "public.plain-text"
	TypeJSON        = "public.json"
	TypeRTF         = "public.rtf"
	TypeImage       = "public.image"
	TypePNG         = "public.png"
	TypeJPEG        = "public.jpeg"
	TypeGIF         = "com.compuserve.gif"
	TypeHEIC        = "public.heic"
	TypeTIFF        = "public.tiff"
	TypeWebP        = "org.webmproject.webp"
	TypeSVG         = "public.svg-image"
	TypePDF         = "com.adobe.pdf"
	TypeAudioVisual = "public.audiovisual-content"
	TypeMovie       = "public.movie"
	TypeMPEG4       = "public.mpeg-4"
	TypeQuickTime   = "com.apple.quicktime-movie"
	TypeAudio       = "public.audio"
	TypeMP3         = "public.mp3"
	TypeArchive     = "public.archive"
	TypeZip         = "public.zip-archive"
	TypeLocation    = "com.starford.notebundle.location"
)

var extensionTypes = map[string]string{
	"txt":  TypePlainText,
	"text": TypePlainText,
	"md":   TypePlainText,
	"json": TypeJSON,
	"rtf":  TypeRTF,
	"png":  TypePNG,
	"jpg":  TypeJPEG,
	"jpeg": TypeJPEG,
	"gif":  TypeGIF,
	"heic": TypeHEIC,
	"tif":  TypeTIFF,
	"tiff": TypeTIFF,
	"webp": TypeWebP,
	"svg":  TypeSVG,
	"pdf":  TypePDF,
	"mov":  TypeQuickTime,
	"mp4":  TypeMPEG4,
	"m4v":  TypeMPEG4,
	"mp3":  TypeMP3,
	"zip":  TypeZip,
	"loc":  TypeLocation,
}

// parents maps each type to the types it directly conforms to.
var parents = map[string][]string{
	TypeData:        {TypeItem},
	TypeContent:     {TypeItem},
	TypeText:        {TypeData, TypeContent},
	TypePlainText:   {TypeText},
	TypeJSON:        {TypeText},
	TypeRTF:         {TypeText},
	TypeImage:       {TypeData, TypeContent},
	TypePNG:         {TypeImage},
	TypeJPEG:        {TypeImage},
	TypeGIF:         {TypeImage},
	TypeHEIC:        {TypeImage},
	TypeTIFF:        {TypeImage},
	TypeWebP:        {TypeImage},
	TypeSVG:         {TypeImage},
	TypePDF:         {TypeData, TypeContent},
	TypeAudioVisual: {TypeData, TypeContent},
	TypeMovie:       {TypeAudioVisual},
	TypeQuickTime:   {TypeMovie},
	TypeMPEG4:       {TypeMovie},
	TypeAudio:       {TypeAudioVisual},
	TypeMP3:         {TypeAudio},
	TypeArchive:     {TypeData},
	TypeZip:         {TypeArchive},
	TypeLocation:    {TypeJSON},
}

// InferExtension returns the last dot-separated component of name.
func InferExtension(name string) (string, bool) {
	i := strings.LastIndexByte(name, '.')
	if i < 0 || i == len(name)-1 {
		return "", false
	}
	return name[i+1:], true
}

// TypeForExtension resolves a file extension to a type identifier.
func TypeForExtension(ext string) (string, bool) {
	t, ok := extensionTypes[strings.ToLower(ext)]
	return t, ok
}

// TypeForName resolves a file name to a type identifier via its extension.
func TypeForName(name string) (string, bool) {
	ext, ok := InferExtension(name)
	if !ok {
		return "", false
	}
	return TypeForExtension(ext)
}

// Conforms reports whether typ is target or descends from it.
func Conforms(typ, target string) bool {
	if typ == target {
		return true
	}
	for _, p := range parents[typ] {
		if Conforms(p, target) {
			return true
		}
	}
	return false
}

// ConformsTo reports whether the file name's type conforms to target. It
// fails closed: names without a known extension never conform.
func ConformsTo(name, target string) bool {
	typ, ok := TypeForName(name)
	if !ok {
		return false
	}
	return Conforms(typ, target)
}

// ErrNotLocation is returned when content is not a location document.
var ErrNotLocation = errors.New("classify: not a location")

// Location is a latitude/longitude pair stored as JSON in a location
// attachment.
type Location struct {
	Lat  float64 `json:"lat"`
	Long float64 `json:"long"`
}

// Validate checks the coordinate ranges.
func (l Location) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Lat, validation.Min(-90.0), validation.Max(90.0)),
		validation.Field(&l.Long, validation.Min(-180.0), validation.Max(180.0)),
	)
}

// ParseLocation decodes a location document. Both "lat" and "long" must be
// present and numeric.
func ParseLocation(data []byte) (Location, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Location{}, fmt.Errorf("%w: %v", ErrNotLocation, err)
	}
	var loc Location
	for key, dst := range map[string]*float64{"lat": &loc.Lat, "long": &loc.Long} {
		v, ok := raw[key]
		if !ok || string(v) == "null" {
			return Location{}, fmt.Errorf("%w: missing %q", ErrNotLocation, key)
		}
		if err := json.Unmarshal(v, dst); err != nil {
			return Location{}, fmt.Errorf("%w: %q is not a number", ErrNotLocation, key)
		}
	}
	if err := loc.Validate(); err != nil {
		return Location{}, fmt.Errorf("%w: %v", ErrNotLocation, err)
	}
	return loc, nil
}

// IsLocation reports whether data is a location document.
func IsLocation(data []byte) bool {
	_, err := ParseLocation(data)
	return err == nil
}

// binaryTypes never carry location content, whatever their bytes say.
var binaryTypes = []string{TypeImage, TypeAudioVisual, TypePDF, TypeArchive}

// CanHoldLocation reports whether a file with this name could be a location
// attachment. Images, media, PDFs and archives never are.
func CanHoldLocation(name string) bool {
	for _, t := range binaryTypes {
		if ConformsTo(name, t) {
			return false
		}
	}
	return true
}

// IsLocationAttachment decides the open affordance of an attachment: true
// means hand the coordinates to a map, false means open the file.
func IsLocationAttachment(name string, data []byte) bool {
	return CanHoldLocation(name) && IsLocation(data)
}

// Encode renders l as a location attachment body.
func (l Location) Encode() ([]byte, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(l)
}
