// Package mcp exposes the search engine to MCP clients over stdio, so agents
// can run stock lookups against the live catalog.
package mcp

import (
	"context"
	"errors"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/restocker/invsearch/internal/search"
	"github.com/restocker/invsearch/pkg/version"
)

// defaultLimit applies when a client omits the limit parameter.
const defaultLimit = 20

// Server bridges MCP clients with the query engine.
type Server struct {
	mcp    *mcp.Server
	engine *search.Engine
	logger *slog.Logger
}

// SearchInput defines the input schema for the inventory_search tool.
type SearchInput struct {
	Query string `json:"query" jsonschema:"free-text query over item names, vendors, and SKUs"`
	Mode  string `json:"mode,omitempty" jsonschema:"search mode: keyword, semantic, or hybrid (default hybrid)"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 20"`
}

// SearchOutput defines the output schema for the inventory_search tool.
type SearchOutput struct {
	Results        []search.Result `json:"results" jsonschema:"ranked inventory items"`
	EffectiveMode  string          `json:"effective_mode" jsonschema:"mode actually used; keyword when semantic search was unavailable"`
	EffectiveLimit int             `json:"effective_limit" jsonschema:"limit actually applied after clamping"`
	Degraded       bool            `json:"degraded,omitempty" jsonschema:"true when the requested mode was degraded"`
}

// StatsInput defines the (empty) input schema for inventory_stats.
type StatsInput struct{}

// StatsOutput defines the output schema for inventory_stats.
type StatsOutput struct {
	ItemCount     int            `json:"item_count" jsonschema:"number of items in the catalog"`
	VendorCount   int            `json:"vendor_count" jsonschema:"number of distinct vendors"`
	TotalValue    float64        `json:"total_value" jsonschema:"total inventory value at last cost"`
	Categories    map[string]int `json:"categories" jsonschema:"item count per category"`
	IndexedItems  int            `json:"indexed_items" jsonschema:"items in the lexical index"`
	EmbeddedItems int            `json:"embedded_items" jsonschema:"items with a current embedding"`
}

// NewServer creates the MCP server and registers its tools.
func NewServer(engine *search.Engine, logger *slog.Logger) (*Server, error) {
	if engine == nil {
		return nil, errors.New("search engine is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{engine: engine, logger: logger}
	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "invsearch",
			Version: version.Version,
		},
		nil,
	)
	s.registerTools()
	return s, nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "inventory_search",
		Description: "Search the live inventory catalog. Combines keyword matching over names, vendors, and SKUs with semantic similarity, returning ranked items with on-hand quantity and last cost.",
	}, s.searchHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "inventory_stats",
		Description: "Summarize the catalog: item and vendor counts, per-category breakdown, and total inventory value at last cost.",
	}, s.statsHandler)

	s.logger.Info("MCP tools registered", slog.Int("count", 2))
}

func (s *Server) searchHandler(ctx context.Context, req *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	limit := input.Limit
	if limit == 0 {
		limit = defaultLimit
	}

	resp, err := s.engine.Search(ctx, search.Request{
		Query: input.Query,
		Mode:  input.Mode,
		Limit: limit,
	})
	if err != nil {
		s.logger.Warn("search tool call failed",
			slog.String("query", input.Query),
			slog.String("error", err.Error()))
		return nil, SearchOutput{}, MapError(err)
	}

	return nil, SearchOutput{
		Results:        resp.Results,
		EffectiveMode:  string(resp.EffectiveMode),
		EffectiveLimit: resp.EffectiveLimit,
		Degraded:       resp.Degraded,
	}, nil
}

func (s *Server) statsHandler(ctx context.Context, req *mcp.CallToolRequest, input StatsInput) (
	*mcp.CallToolResult,
	StatsOutput,
	error,
) {
	stats, err := s.engine.Stats(ctx)
	if err != nil {
		return nil, StatsOutput{}, MapError(err)
	}
	return nil, StatsOutput{
		ItemCount:     stats.ItemCount,
		VendorCount:   stats.VendorCount,
		TotalValue:    stats.TotalValue,
		Categories:    stats.Categories,
		IndexedItems:  stats.IndexedItems,
		EmbeddedItems: stats.EmbeddedItems,
	}, nil
}

// Serve runs the server over stdio until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("starting MCP server", slog.String("transport", "stdio"))
	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("MCP server stopped")
	return nil
}
