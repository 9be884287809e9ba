// Package models defines the data types shared between storage, the catalog
// index and the outer surfaces.
package models

import "time"

// TempPrefix marks the scratch files and directories storage creates while
// replacing a package. Entries carrying it are never package content.
const TempPrefix = ".notebundle-tmp-"

// Entry is one item of a package directory listing.
type Entry struct {
	Name    string    `json:"name"`
	IsDir   bool      `json:"is_dir"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// PackageMetadata is a lightweight description of a document package found
// in a library directory.
type PackageMetadata struct {
	Path        string    `json:"path"`
	Checksum    string    `json:"checksum"`
	Attachments int       `json:"attachments"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// DocumentSummary is what the catalog knows about a package.
type DocumentSummary struct {
	Path        string    `json:"path"`
	Title       string    `json:"title"`
	Snippet     string    `json:"snippet"`
	Tags        []string  `json:"tags"`
	Attachments int       `json:"attachments"`
	Checksum    string    `json:"checksum"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Package layout.
const (
	TextFile       = "Text.rtf"
	AttachmentsDir = "Attachments"
	QuickLookDir   = "QuickLook"
	PreviewFile    = "Preview.rtf"
	ThumbnailFile  = "Thumbnail.png"
)
