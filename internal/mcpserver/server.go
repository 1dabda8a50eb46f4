// Package mcpserver exposes the reader as Model Context Protocol tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/sells-group/datapulse/internal/reader"
)

// ServerName is the implementation name announced to clients.
const ServerName = "datapulse"

const defaultQueryLimit = 20

// New builds an MCP server with every DataPulse tool registered.
func New(r *reader.Reader, version string) *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: ServerName, Version: version}, nil)
	Register(srv, r)
	return srv
}

// Serve runs the tool server over stdio until ctx is done or the client
// disconnects.
func Serve(ctx context.Context, r *reader.Reader, version string) error {
	zap.L().Info("mcp: serving on stdio", zap.String("version", version))
	return New(r, version).Run(ctx, &mcp.StdioTransport{})
}

// handler decodes raw arguments and returns a JSON-encodable response.
type handler func(ctx context.Context, args json.RawMessage) (any, error)

func inputSchema(properties map[string]any, required ...string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// addTool wires h so that failures become tool errors rather than
// protocol errors.
func addTool(srv *mcp.Server, tool *mcp.Tool, h handler) {
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		resp, err := h(ctx, req.Params.Arguments)
		if err != nil {
			zap.L().Debug("mcp: tool failed", zap.String("tool", tool.Name), zap.Error(err))
			var res mcp.CallToolResult
			res.SetError(errors.New(err.Error()))
			return &res, nil
		}

		var text string
		if s, ok := resp.(string); ok {
			text = s
		} else {
			data, err := json.MarshalIndent(resp, "", "  ")
			if err != nil {
				var res mcp.CallToolResult
				res.SetError(fmt.Errorf("marshal: %w", err))
				return &res, nil
			}
			text = string(data)
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: text}},
		}, nil
	})
}

func decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 || string(raw) == "null" {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("invalid arguments: %w", err)
	}
	return v, nil
}

type readURLArgs struct {
	URL           string  `json:"url"`
	MinConfidence float64 `json:"min_confidence"`
}

type readBatchArgs struct {
	URLs          []string `json:"urls"`
	MinConfidence float64  `json:"min_confidence"`
}

type queryArgs struct {
	Limit         *int    `json:"limit"`
	MinConfidence float64 `json:"min_confidence"`
}

type searchArgs struct {
	Query         string   `json:"query"`
	Sites         []string `json:"sites"`
	Limit         int      `json:"limit"`
	FetchContent  bool     `json:"fetch_content"`
	MinConfidence float64  `json:"min_confidence"`
}

type detectArgs struct {
	URL string `json:"url"`
}

type digestArgs struct {
	TopN          int     `json:"top_n"`
	SecondaryN    int     `json:"secondary_n"`
	MaxPerSource  int     `json:"max_per_source"`
	MinConfidence float64 `json:"min_confidence"`
	Profile       string  `json:"profile"`
}

var confidenceProp = map[string]any{
	"type": "number", "minimum": 0, "maximum": 1,
	"description": "Reject items scoring below this confidence",
}

// Register adds the DataPulse tools to srv.
func Register(srv *mcp.Server, r *reader.Reader) {
	addTool(srv, &mcp.Tool{
		Name:        "read_url",
		Description: "Fetch one URL, score it and store it in the inbox. Returns the item.",
		InputSchema: inputSchema(map[string]any{
			"url":            map[string]any{"type": "string", "description": "URL to read"},
			"min_confidence": confidenceProp,
		}, "url"),
	}, func(ctx context.Context, raw json.RawMessage) (any, error) {
		args, err := decode[readURLArgs](raw)
		if err != nil {
			return nil, err
		}
		if args.URL == "" {
			return nil, errors.New("url is required")
		}
		return r.Read(ctx, args.URL, args.MinConfidence)
	})

	addTool(srv, &mcp.Tool{
		Name:        "read_batch",
		Description: "Fetch several URLs concurrently. Failed URLs are skipped; results are sorted by confidence.",
		InputSchema: inputSchema(map[string]any{
			"urls": map[string]any{
				"type": "array", "items": map[string]any{"type": "string"},
				"description": "URLs to read",
			},
			"min_confidence": confidenceProp,
		}, "urls"),
	}, func(ctx context.Context, raw json.RawMessage) (any, error) {
		args, err := decode[readBatchArgs](raw)
		if err != nil {
			return nil, err
		}
		return r.ReadBatch(ctx, args.URLs, reader.BatchOptions{MinConfidence: args.MinConfidence})
	})

	addTool(srv, &mcp.Tool{
		Name:        "query_inbox",
		Description: "List stored items, highest confidence first.",
		InputSchema: inputSchema(map[string]any{
			"limit":          map[string]any{"type": "integer", "minimum": 1, "description": "Maximum items (default 20)"},
			"min_confidence": confidenceProp,
		}),
	}, func(_ context.Context, raw json.RawMessage) (any, error) {
		args, err := decode[queryArgs](raw)
		if err != nil {
			return nil, err
		}
		limit := defaultQueryLimit
		if args.Limit != nil {
			limit = *args.Limit
		}
		return r.ListMemory(limit, args.MinConfidence), nil
	})

	addTool(srv, &mcp.Tool{
		Name:        "search",
		Description: "Search the web and store the hits in the inbox. Needs the Jina collector.",
		InputSchema: inputSchema(map[string]any{
			"query": map[string]any{"type": "string", "description": "Search query"},
			"sites": map[string]any{
				"type": "array", "items": map[string]any{"type": "string"},
				"description": "Restrict results to these domains",
			},
			"limit":          map[string]any{"type": "integer", "minimum": 1, "description": "Maximum results (default 5)"},
			"fetch_content":  map[string]any{"type": "boolean", "description": "Read each hit through the collector chain"},
			"min_confidence": confidenceProp,
		}, "query"),
	}, func(ctx context.Context, raw json.RawMessage) (any, error) {
		args, err := decode[searchArgs](raw)
		if err != nil {
			return nil, err
		}
		if args.Query == "" {
			return nil, errors.New("query is required")
		}
		return r.Search(ctx, args.Query, reader.SearchOptions{
			Sites:         args.Sites,
			Limit:         args.Limit,
			FetchContent:  args.FetchContent,
			MinConfidence: args.MinConfidence,
		})
	})

	addTool(srv, &mcp.Tool{
		Name:        "detect_platform",
		Description: "Name the collector that can read a URL, or generic.",
		InputSchema: inputSchema(map[string]any{
			"url": map[string]any{"type": "string", "description": "URL to probe"},
		}, "url"),
	}, func(ctx context.Context, raw json.RawMessage) (any, error) {
		args, err := decode[detectArgs](raw)
		if err != nil {
			return nil, err
		}
		if args.URL == "" {
			return nil, errors.New("url is required")
		}
		return r.DetectPlatform(ctx, args.URL), nil
	})

	addTool(srv, &mcp.Tool{
		Name:        "health",
		Description: "Report collector health, stored item count and dead-letter size.",
		InputSchema: inputSchema(map[string]any{}),
	}, func(ctx context.Context, _ json.RawMessage) (any, error) {
		return r.Health(ctx), nil
	})

	addTool(srv, &mcp.Tool{
		Name:        "build_digest",
		Description: "Select a ranked, source-diverse digest from the subscribed inbox.",
		InputSchema: inputSchema(map[string]any{
			"top_n":          map[string]any{"type": "integer", "minimum": 1, "description": "Primary items (default 3)"},
			"secondary_n":    map[string]any{"type": "integer", "minimum": 0, "description": "Secondary items (default 5)"},
			"max_per_source": map[string]any{"type": "integer", "minimum": 1, "description": "Per-source cap (default 2)"},
			"min_confidence": confidenceProp,
			"profile":        map[string]any{"type": "string", "description": "Subscription profile"},
		}),
	}, func(ctx context.Context, raw json.RawMessage) (any, error) {
		args, err := decode[digestArgs](raw)
		if err != nil {
			return nil, err
		}
		return r.BuildDigest(ctx, reader.DigestOptions{
			Profile:       args.Profile,
			MinConfidence: args.MinConfidence,
			TopN:          args.TopN,
			SecondaryN:    args.SecondaryN,
			MaxPerSource:  args.MaxPerSource,
		}), nil
	})
}
