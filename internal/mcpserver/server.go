// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Shelf collections as tools for LLM integration via stdio
// transport.
package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/shelf/internal/apperr"
	"github.com/starford/shelf/internal/codec"
	"github.com/starford/shelf/internal/models"
)

// Store is the subset of the collection store the tools call.
type Store interface {
	ListCollections(ctx context.Context) ([]string, error)
	CreateCollection(ctx context.Context, name string) error
	DeleteCollection(ctx context.Context, name string) error
	InsertRecord(ctx context.Context, name string, payload any, isBinary bool) (string, error)
	GetRecord(ctx context.Context, name, id string) (*models.Record, error)
	GetRecords(ctx context.Context, name string, page models.Page) ([]models.Record, error)
	UpdateRecord(ctx context.Context, name, id string, payload any, isBinary bool) error
	DeleteRecord(ctx context.Context, name, id string) error
}

// Server wraps the MCP server with Shelf tools.
type Server struct {
	mcp   *server.MCPServer
	store Store
	fetch fetchFunc
}

// New creates a new MCP server with all Shelf tools registered.
func New(store Store, version string) *Server {
	s := &Server{store: store, fetch: fetchHTTP}

	s.mcp = server.NewMCPServer(
		"Shelf",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_collections",
		mcp.WithDescription("List the names of all collections."),
	), s.listCollections)

	s.mcp.AddTool(mcp.NewTool("create_collection",
		mcp.WithDescription("Create a collection with an empty index. Re-creating an existing collection empties its index."),
		mcp.WithString("collection", mcp.Required(), mcp.Description("Collection name")),
	), s.createCollection)

	s.mcp.AddTool(mcp.NewTool("delete_collection",
		mcp.WithDescription("Delete a collection and all of its records."),
		mcp.WithString("collection", mcp.Required(), mcp.Description("Collection name")),
	), s.deleteCollection)

	s.mcp.AddTool(mcp.NewTool("insert_record",
		mcp.WithDescription("Insert a record and return its id. Pass either `document` (a JSON object) "+
			"or `data` (base64 bytes, stored as a binary record). Read the record format "+
			"via get_record_format or the shelf://record-format resource."),
		mcp.WithString("collection", mcp.Required(), mcp.Description("Collection name")),
		mcp.WithObject("document", mcp.Description("Structured record body")),
		mcp.WithString("data", mcp.Description("Base64-encoded binary record body")),
	), s.insertRecord)

	s.mcp.AddTool(mcp.NewTool("get_record",
		mcp.WithDescription("Read one record. Binary records are returned with a base64 `blob` field."),
		mcp.WithString("collection", mcp.Required(), mcp.Description("Collection name")),
		mcp.WithString("id", mcp.Required(), mcp.Description("Record id")),
	), s.getRecord)

	s.mcp.AddTool(mcp.NewTool("list_records",
		mcp.WithDescription("List records of a collection in insertion order."),
		mcp.WithString("collection", mcp.Required(), mcp.Description("Collection name")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of records (0 or absent = all)")),
		mcp.WithNumber("skip", mcp.Description("Number of records to skip")),
	), s.listRecords)

	s.mcp.AddTool(mcp.NewTool("update_record",
		mcp.WithDescription("Replace a record's body. Passing `data` instead of `document` (or the reverse) "+
			"switches the record between binary and structured."),
		mcp.WithString("collection", mcp.Required(), mcp.Description("Collection name")),
		mcp.WithString("id", mcp.Required(), mcp.Description("Record id")),
		mcp.WithObject("document", mcp.Description("Structured record body")),
		mcp.WithString("data", mcp.Description("Base64-encoded binary record body")),
	), s.updateRecord)

	s.mcp.AddTool(mcp.NewTool("delete_record",
		mcp.WithDescription("Delete a record."),
		mcp.WithString("collection", mcp.Required(), mcp.Description("Collection name")),
		mcp.WithString("id", mcp.Required(), mcp.Description("Record id")),
	), s.deleteRecord)

	s.mcp.AddTool(mcp.NewTool("import_record",
		mcp.WithDescription("Download an http(s) URL or decode a base64 data: URI and store it as a binary record."),
		mcp.WithString("collection", mcp.Required(), mcp.Description("Collection name")),
		mcp.WithString("url", mcp.Required(), mcp.Description("http(s) URL or data: URI")),
	), s.importRecord)

	s.mcp.AddTool(mcp.NewTool("get_record_format",
		mcp.WithDescription("Returns the Shelf record format. "+
			"Call this before inserting or updating records."),
	), s.getRecordFormat)

	s.mcp.AddResource(
		mcp.NewResource(recordFormatURI, "Record Format",
			mcp.WithResourceDescription("How Shelf stores structured and binary records."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readRecordFormatResource,
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

func (s *Server) listCollections(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	names, err := s.store.ListCollections(ctx)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(strings.Join(names, "\n")), nil
}

func (s *Server) createCollection(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("collection")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.store.CreateCollection(ctx, name); err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText("created: " + name), nil
}

func (s *Server) deleteCollection(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("collection")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.store.DeleteCollection(ctx, name); err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText("deleted: " + name), nil
}

func (s *Server) insertRecord(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("collection")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	payload, isBinary, err := recordBody(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := s.store.InsertRecord(ctx, name, payload, isBinary)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(map[string]any{"id": id, "isBinary": isBinary})
}

func (s *Server) getRecord(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("collection")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rec, err := s.store.GetRecord(ctx, name, id)
	if err != nil {
		return toolError(err), nil
	}
	if rec == nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s/%s", name, id)), nil
	}
	return jsonResult(rec)
}

func (s *Server) listRecords(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("collection")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	page := models.Page{Limit: req.GetInt("limit", 0), Skip: req.GetInt("skip", 0)}
	if page.Limit < 0 || page.Skip < 0 {
		return mcp.NewToolResultError("limit and skip must not be negative"), nil
	}
	recs, err := s.store.GetRecords(ctx, name, page)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(recs)
}

func (s *Server) updateRecord(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("collection")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	payload, isBinary, err := recordBody(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.store.UpdateRecord(ctx, name, id, payload, isBinary); err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText("updated: " + id), nil
}

func (s *Server) deleteRecord(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("collection")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.store.DeleteRecord(ctx, name, id); err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText("deleted: " + id), nil
}

func (s *Server) getRecordFormat(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(RecordFormat), nil
}

func (s *Server) readRecordFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      recordFormatURI,
			MIMEType: "text/markdown",
			Text:     RecordFormat,
		},
	}, nil
}

// recordBody extracts exactly one of "document" and "data" from the call.
func recordBody(req mcp.CallToolRequest) (any, bool, error) {
	args := req.GetArguments()
	rawDoc, hasDoc := args["document"]
	rawData, hasData := args["data"]
	switch {
	case hasDoc && hasData:
		return nil, false, errors.New("pass either document or data, not both")
	case hasDoc:
		doc, ok := rawDoc.(map[string]any)
		if !ok {
			return nil, false, errors.New("document must be a JSON object")
		}
		return codec.Normalize(doc), false, nil
	case hasData:
		encoded, ok := rawData.(string)
		if !ok {
			return nil, false, errors.New("data must be a base64 string")
		}
		blob, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, false, fmt.Errorf("invalid base64 data: %w", err)
		}
		return blob, true, nil
	default:
		return nil, false, errors.New("one of document or data is required")
	}
}

// toolError reports store errors to the caller. Server faults are reported
// without detail.
func toolError(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError("not found")
	case apperr.IsClientFault(err):
		return mcp.NewToolResultError(err.Error())
	default:
		slog.Error("mcp: tool failed", slog.String("error", err.Error()))
		return mcp.NewToolResultError("internal error")
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}
