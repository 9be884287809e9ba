package mcpserver

// PackageFormatContract describes the document package layout and the text
// conventions that LLM consumers should follow when creating documents or
// attaching files.
const PackageFormatContract = `# notebundle Package Format

A document is a directory whose name ends with the library's package
extension (default ` + "`" + `.pkg` + "`" + `). Paths are relative to the library root and use
forward slashes.

## Layout

` + "```" + `
Trip.pkg/
  Text.rtf              the document text (RTF)
  Attachments/          one file per attachment, flat, optional
    map.loc
    photo.jpg
  QuickLook/            derived on every save, never edit
    Preview.rtf
    Thumbnail.png
` + "```" + `

## Text

Tools exchange text as plain UTF-8; it is stored as RTF on save.

1. The first non-empty line (or a leading ` + "`" + `# heading` + "`" + `) is the title.
2. An optional YAML header between ` + "`" + `---` + "`" + ` fences may set ` + "`" + `title` + "`" + ` and ` + "`" + `tags` + "`" + `.
3. ` + "`" + `#tag` + "`" + ` words in the body are tags.
4. ` + "`" + `[[Other title]]` + "`" + ` references another document by title; ` + "`" + `[[target|alias]]` + "`" + ` works too.

## Attachments

- Add files with the ` + "`" + `add_attachment` + "`" + ` tool as a base64 ` + "`" + `data:` + "`" + ` URI.
- Names are plain file names. A name already in use gets a suffix:
  ` + "`" + `photo.jpg` + "`" + ` becomes ` + "`" + `photo-2.jpg` + "`" + `.
- A location is a small JSON file such as ` + "`" + `map.loc` + "`" + ` holding
  ` + "`" + `{"lat": 37.33, "long": -122.03}` + "`" + `. Both keys are required and numeric.
  Images, media, PDFs and archives are never treated as locations.
- ` + "`" + `resolve_attachment` + "`" + ` reports whether an attachment opens as a map location
  or as a file.
`
