// Package mcp exposes the PDF corpus over the Model Context Protocol.
// It registers retrieval and corpus management tools on a stdio server
// so MCP clients (Claude Desktop, Cursor) can query indexed documents.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/pdfmcp/pdfmcp/internal/config"
	"github.com/pdfmcp/pdfmcp/internal/corpus"
	"github.com/pdfmcp/pdfmcp/internal/query"
	"github.com/pdfmcp/pdfmcp/pkg/version"
)

// Server bridges MCP clients with the query service and corpus manager.
type Server struct {
	mcp     *mcp.Server
	service *query.Service
	corpus  *corpus.Manager
	config  *config.Config
	logger  *slog.Logger
}

// Dependencies carries the collaborators a Server needs.
type Dependencies struct {
	Service *query.Service
	Corpus  *corpus.Manager
	Logger  *slog.Logger
}

// NewServer creates an MCP server over the given query service and corpus.
func NewServer(cfg *config.Config, deps Dependencies) (*Server, error) {
	if deps.Service == nil {
		return nil, errors.New("query service is required")
	}
	if deps.Corpus == nil {
		return nil, errors.New("corpus manager is required")
	}
	if cfg == nil {
		cfg = config.NewConfig()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		service: deps.Service,
		corpus:  deps.Corpus,
		config:  cfg,
		logger:  logger,
	}

	s.mcp = mcp.NewServer(&mcp.Implementation{
		Name:    "pdfmcp",
		Version: version.Version,
	}, nil)

	s.registerTools()

	return s, nil
}

// registerTools registers the tool surface. ask_documents is only
// offered when an answer provider is configured.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "query_documents",
		Description: "Search the indexed PDF corpus and return the most relevant chunks with document and page attribution. Combines keyword and semantic matching.",
	}, s.queryDocumentsHandler)

	tools := 3
	if s.service.AnswerEnabled() {
		mcp.AddTool(s.mcp, &mcp.Tool{
			Name:        "ask_documents",
			Description: "Answer a question using the indexed PDF corpus. Retrieves relevant chunks, generates a grounded answer, and cites the source documents and pages.",
		}, s.askDocumentsHandler)
		tools++
	}

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "corpus_status",
		Description: "Report corpus state: documents indexed, chunks, embedding coverage, and the current index generation.",
	}, s.corpusStatusHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "reload_corpus",
		Description: "Re-scan the documents directory and rebuild the index if anything changed. Queries keep running against the previous generation during the rebuild.",
	}, s.reloadCorpusHandler)

	s.logger.Debug("tools registered", "count", tools, "answer_enabled", s.service.AnswerEnabled())
}

// Run starts the server on the configured transport and blocks until
// the context is canceled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	transport := strings.ToLower(s.config.Server.Transport)
	if transport != "" && transport != "stdio" {
		return fmt.Errorf("unsupported transport: %s", s.config.Server.Transport)
	}

	s.logger.Info("mcp server starting", "transport", "stdio", "version", version.Version)

	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcp server: %w", err)
	}

	s.logger.Info("mcp server stopped")
	return nil
}

func (s *Server) queryDocumentsHandler(ctx context.Context, req *mcp.CallToolRequest, input QueryDocumentsInput) (*mcp.CallToolResult, *query.RetrievalResponse, error) {
	requestID := uuid.NewString()
	start := time.Now()

	s.logger.Info("query_documents started",
		"request_id", requestID,
		"query", input.Query,
		"max_chunks", input.MaxChunks)

	resp, err := s.service.Retrieve(ctx, input.Query, input.MaxChunks)
	if err != nil {
		s.logger.Error("query_documents failed",
			"request_id", requestID,
			"error", err,
			"duration_ms", time.Since(start).Milliseconds())
		return nil, nil, MapError(err)
	}

	s.logger.Info("query_documents completed",
		"request_id", requestID,
		"chunks", resp.TotalChunks,
		"duration_ms", time.Since(start).Milliseconds())

	return nil, resp, nil
}

func (s *Server) askDocumentsHandler(ctx context.Context, req *mcp.CallToolRequest, input AskDocumentsInput) (*mcp.CallToolResult, *query.AnswerResponse, error) {
	requestID := uuid.NewString()
	start := time.Now()

	s.logger.Info("ask_documents started",
		"request_id", requestID,
		"query", input.Query,
		"max_chunks", input.MaxChunks)

	resp, err := s.service.Ask(ctx, input.Query, input.MaxChunks)
	if err != nil {
		s.logger.Error("ask_documents failed",
			"request_id", requestID,
			"error", err,
			"duration_ms", time.Since(start).Milliseconds())
		return nil, nil, MapError(err)
	}

	s.logger.Info("ask_documents completed",
		"request_id", requestID,
		"sources", len(resp.Sources),
		"confidence", resp.ConfidenceScore,
		"degraded", resp.Note != "",
		"duration_ms", time.Since(start).Milliseconds())

	return nil, resp, nil
}

func (s *Server) corpusStatusHandler(ctx context.Context, req *mcp.CallToolRequest, input CorpusStatusInput) (*mcp.CallToolResult, *CorpusStatusOutput, error) {
	st := s.corpus.Status()
	out := toStatusOutput(st)
	return nil, &out, nil
}

func (s *Server) reloadCorpusHandler(ctx context.Context, req *mcp.CallToolRequest, input ReloadCorpusInput) (*mcp.CallToolResult, *CorpusStatusOutput, error) {
	requestID := uuid.NewString()
	start := time.Now()

	s.logger.Info("reload_corpus started", "request_id", requestID)

	if err := s.corpus.Reload(ctx); err != nil {
		s.logger.Error("reload_corpus failed",
			"request_id", requestID,
			"error", err,
			"duration_ms", time.Since(start).Milliseconds())
		return nil, nil, MapError(err)
	}

	st := s.corpus.Status()
	out := toStatusOutput(st)

	s.logger.Info("reload_corpus completed",
		"request_id", requestID,
		"generation", st.Generation,
		"documents", st.Documents,
		"duration_ms", time.Since(start).Milliseconds())

	return nil, &out, nil
}
