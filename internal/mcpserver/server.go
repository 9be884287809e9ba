// Package mcpserver provides an MCP (Model Context Protocol) server that
// exposes the document library to LLM clients via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/notebundle/internal/classify"
	"github.com/starford/notebundle/internal/noteservice"
	"github.com/starford/notebundle/internal/richtext"
)

const contractURI = "notebundle://package-format"

// Server wraps the MCP server with the library tools.
type Server struct {
	mcp    *server.MCPServer
	svc    *noteservice.Service
	logger *slog.Logger
}

// New creates a new MCP server with all tools registered.
func New(svc *noteservice.Service, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{svc: svc, logger: logger}

	s.mcp = server.NewMCPServer(
		"notebundle",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_documents",
		mcp.WithDescription("List documents in the library, most recently updated first."),
		mcp.WithString("tag", mcp.Description("Optional tag to filter by")),
	), s.listDocuments)

	s.mcp.AddTool(mcp.NewTool("search_documents",
		mcp.WithDescription("Full-text search through document text and titles."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchDocuments)

	s.mcp.AddTool(mcp.NewTool("read_document",
		mcp.WithDescription("Read a document's text, tags, attachments and backlinks."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Package path relative to the library (e.g. trips/coast.pkg)")),
	), s.readDocument)

	s.mcp.AddTool(mcp.NewTool("create_document",
		mcp.WithDescription("Create a new document package holding the given text. "+
			"Read the package format via get_package_format first."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Package path relative to the library, ending with the package extension")),
		mcp.WithString("text", mcp.Required(), mcp.Description("Plain text of the document")),
	), s.createDocument)

	s.mcp.AddTool(mcp.NewTool("list_attachments",
		mcp.WithDescription("List a document's attachments with their types."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Package path")),
	), s.listAttachments)

	s.mcp.AddTool(mcp.NewTool("resolve_attachment",
		mcp.WithDescription("Report how an attachment opens: as a map location (with coordinates) or as a file."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Package path")),
		mcp.WithString("name", mcp.Required(), mcp.Description("Attachment name")),
	), s.resolveAttachment)

	s.mcp.AddTool(mcp.NewTool("add_attachment",
		mcp.WithDescription("Attach a file to a document and save it. "+
			"Provide the content as a base64 data URI (data:<mime>;base64,...)."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Package path")),
		mcp.WithString("data", mcp.Required(), mcp.Description("Base64 data URI with the file content")),
		mcp.WithString("filename", mcp.Description("Optional file name; derived from the MIME type if omitted")),
	), s.addAttachment)

	s.mcp.AddTool(mcp.NewTool("add_location",
		mcp.WithDescription("Attach a map location (latitude/longitude) to a document and save it."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Package path")),
		mcp.WithNumber("lat", mcp.Required(), mcp.Description("Latitude in degrees, -90 to 90")),
		mcp.WithNumber("long", mcp.Required(), mcp.Description("Longitude in degrees, -180 to 180")),
		mcp.WithString("name", mcp.Description("Optional attachment name; .loc is appended when missing")),
	), s.addLocation)

	s.mcp.AddTool(mcp.NewTool("get_package_format",
		mcp.WithDescription("Returns the document package format and text conventions."),
	), s.getPackageFormat)

	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Package Format",
			mcp.WithResourceDescription("Document package layout and text conventions."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readPackageFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) listDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tag := ""
	if v, err := req.RequireString("tag"); err == nil {
		tag = v
	}
	items, _, err := s.svc.ListDocuments(ctx, 200, 0, tag, "updated")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(items) == 0 {
		return mcp.NewToolResultText("no documents found"), nil
	}
	lines := make([]string, len(items))
	for i, it := range items {
		lines[i] = fmt.Sprintf("%s\t%s", it.Path, it.Title)
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) searchDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results)
}

func (s *Server) readDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err := s.svc.GetDocument(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("read %s: %v", path, err)), nil
	}
	return jsonResult(doc)
}

func (s *Server) createDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, err := s.svc.CreateDocument(ctx, path, richtext.Text(text)); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	s.logger.Info("mcp: document created", slog.String("path", path))
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", path)), nil
}

func (s *Server) listAttachments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err := s.svc.OpenDocument(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	atts := doc.Attachments()
	if len(atts) == 0 {
		return mcp.NewToolResultText("no attachments"), nil
	}
	return jsonResult(atts)
}

type resolveResult struct {
	Action string  `json:"action"`
	Path   string  `json:"path,omitempty"`
	Lat    float64 `json:"lat,omitempty"`
	Long   float64 `json:"long,omitempty"`
}

func (s *Server) resolveAttachment(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err := s.svc.OpenDocument(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	action, err := doc.ResolveOpenAction(name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	switch a := action.(type) {
	case noteservice.OpenLocation:
		return jsonResult(resolveResult{Action: "open_location", Lat: a.Lat, Long: a.Long})
	case noteservice.OpenExternally:
		return jsonResult(resolveResult{Action: "open_externally", Path: a.Path})
	}
	return mcp.NewToolResultError("unknown open action"), nil
}

type locationResult struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Long float64 `json:"long"`
}

func (s *Server) addLocation(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	lat, err := req.RequireFloat("lat")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	long, err := req.RequireFloat("long")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	doc, err := s.svc.OpenDocument(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err := doc.AddLocation(req.GetString("name", ""), classify.Location{Lat: lat, Long: long})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid location: %v", err)), nil
	}
	if err := doc.SavePackage(ctx); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to save document: %v", err)), nil
	}
	if err := s.svc.Reindex(ctx, path); err != nil {
		s.logger.Warn("mcp: reindex failed", slog.String("path", path), slog.String("error", err.Error()))
	}
	s.logger.Info("mcp: location added", slog.String("path", path), slog.String("name", name))
	return jsonResult(locationResult{Name: name, Lat: lat, Long: long})
}

// packageFormat is the format contract plus the extension this library uses.
func (s *Server) packageFormat() string {
	return PackageFormatContract + "\nThis library uses the `" + s.svc.Extension() + "` package extension.\n"
}

func (s *Server) getPackageFormat(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(s.packageFormat()), nil
}

func (s *Server) readPackageFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     s.packageFormat(),
		},
	}, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}
