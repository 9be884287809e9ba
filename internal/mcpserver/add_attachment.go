package mcpserver

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/notebundle/internal/classify"
)

const maxAttachmentSize = 10 << 20 // 10 MB

var (
	mimeToExt = map[string]string{
		"image/png":                   ".png",
		"image/jpeg":                  ".jpg",
		"image/gif":                   ".gif",
		"image/webp":                  ".webp",
		"image/svg+xml":               ".svg",
		"image/tiff":                  ".tiff",
		"image/bmp":                   ".bmp",
		"application/pdf":             ".pdf",
		"application/json":            ".json",
		"application/zip":             ".zip",
		"text/plain":                  ".txt",
		"text/markdown":               ".md",
		"text/rtf":                    ".rtf",
		"audio/mpeg":                  ".mp3",
		"video/mp4":                   ".mp4",
		"application/octet-stream":    ".bin",
		"application/vnd.geo+json":    ".loc",
		"application/x-location+json": ".loc",
	}

	safeFilenameRe = regexp.MustCompile(`[^\p{L}\p{N}._\- ]`)
)

type addResult struct {
	Name       string `json:"name"`
	Size       int    `json:"size"`
	IsLocation bool   `json:"isLocation"`
}

func (s *Server) addAttachment(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	uri, err := req.RequireString("data")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	filename := ""
	if v, fErr := req.RequireString("filename"); fErr == nil {
		filename = v
	}

	data, detectedExt, err := decodeDataURI(uri)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(data) > maxAttachmentSize {
		return mcp.NewToolResultError(fmt.Sprintf("file too large: %d bytes (max %d)", len(data), maxAttachmentSize)), nil
	}

	if filename == "" {
		filename = uuid.New().String() + detectedExt
	}
	filename = sanitizeFilename(filename)

	if err := validateMagicBytes(data, strings.ToLower(filepath.Ext(filename))); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	doc, err := s.svc.OpenDocument(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err := doc.AddAttachmentBytes(filename, data)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := doc.SavePackage(ctx); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to save document: %v", err)), nil
	}
	if err := s.svc.Reindex(ctx, path); err != nil {
		s.logger.Warn("mcp: reindex failed", slog.String("path", path), slog.String("error", err.Error()))
	}

	out, _ := json.Marshal(addResult{
		Name:       name,
		Size:       len(data),
		IsLocation: classify.IsLocationAttachment(name, data),
	})
	return mcp.NewToolResultText(string(out)), nil
}

// decodeDataURI parses a data:[<mediatype>][;base64],<data> URI and returns
// the content with an extension for its media type.
func decodeDataURI(uri string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return nil, "", fmt.Errorf("only data: URIs are supported")
	}
	meta, encoded, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", fmt.Errorf("invalid data URI: missing comma separator")
	}
	if !strings.Contains(meta, ";base64") {
		return nil, "", fmt.Errorf("only base64 data URIs are supported")
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, "", fmt.Errorf("invalid base64 data: %w", err)
		}
	}

	mime := strings.Split(strings.TrimSuffix(meta, ";base64"), ";")[0]
	ext := mimeToExt[mime]
	if ext == "" {
		ext = ".bin"
	}
	return data, ext, nil
}

// sanitizeFilename strips path separators and unsafe characters.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = safeFilenameRe.ReplaceAllString(name, "_")
	name = strings.TrimLeft(name, ".")
	if name == "" {
		name = uuid.New().String()
	}
	return name
}

// sniffable lists the extensions whose content http.DetectContentType can
// confirm.
var sniffable = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".webp": true, ".bmp": true, ".pdf": true,
}

// validateMagicBytes checks that image and PDF content matches the declared
// extension. Other types are accepted as-is.
func validateMagicBytes(data []byte, ext string) error {
	if ext == ".svg" {
		prefix := data[:min(len(data), 1024)]
		if !bytes.Contains(prefix, []byte("<svg")) {
			return fmt.Errorf("content does not appear to be a valid SVG (missing <svg tag)")
		}
		return nil
	}
	if !sniffable[ext] {
		return nil
	}

	detected := strings.Split(http.DetectContentType(data), ";")[0]
	want := ext
	if ext == ".jpeg" {
		want = ".jpg"
	}
	if mimeToExt[detected] != want {
		return fmt.Errorf("content does not match extension %s (detected: %s)", ext, detected)
	}
	return nil
}
