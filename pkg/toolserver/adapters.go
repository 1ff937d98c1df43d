package toolserver

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// The built-in adapters front opaque shared backends. Each keeps its
// backend behind a narrow interface so real drivers can replace the
// in-process fakes without touching the server.

// QueryBackend executes parameterized read queries.
type QueryBackend interface {
	Query(ctx context.Context, query string, limit int) ([]map[string]any, error)
}

// NewSQLQueryAdapter exposes parameterized database reads.
func NewSQLQueryAdapter(backend QueryBackend) Adapter {
	maxLimit := 1000.0
	return AdapterFunc{
		ToolName:        "sql_query",
		ToolDescription: "Run a parameterized read-only query against the shared database",
		ToolSchema: Schema{
			"query": {Type: "string", Required: true, MaxLength: 4096},
			"limit": {Type: "integer", Maximum: &maxLimit},
		},
		Handler: func(ctx context.Context, args Args) (any, error) {
			limit := args.Int("limit")
			if limit <= 0 {
				limit = 100
			}
			rows, err := backend.Query(ctx, args.String("query"), limit)
			if err != nil {
				return nil, err
			}
			return map[string]any{"rows": rows, "count": len(rows)}, nil
		},
	}
}

// DocumentBackend searches the shared document store.
type DocumentBackend interface {
	Search(ctx context.Context, query string, limit int) ([]map[string]any, error)
}

// NewDocumentSearchAdapter exposes document-store search.
func NewDocumentSearchAdapter(backend DocumentBackend) Adapter {
	return AdapterFunc{
		ToolName:        "document_search",
		ToolDescription: "Search the shared document store",
		ToolSchema: Schema{
			"query": {Type: "string", Required: true, MaxLength: 1024},
			"limit": {Type: "integer"},
		},
		Handler: func(ctx context.Context, args Args) (any, error) {
			limit := args.Int("limit")
			if limit <= 0 {
				limit = 10
			}
			docs, err := backend.Search(ctx, args.String("query"), limit)
			if err != nil {
				return nil, err
			}
			return map[string]any{"documents": docs, "count": len(docs)}, nil
		},
	}
}

// AnalyticsBackend produces aggregate reports.
type AnalyticsBackend interface {
	Report(ctx context.Context, metric, period string) (map[string]any, error)
}

// NewAnalyticsReportAdapter exposes analytics aggregation.
func NewAnalyticsReportAdapter(backend AnalyticsBackend) Adapter {
	return AdapterFunc{
		ToolName:        "analytics_report",
		ToolDescription: "Generate an aggregate analytics report",
		ToolSchema: Schema{
			"metric": {Type: "string", Required: true},
			"period": {Type: "string", Enum: []string{"hour", "day", "week", "month"}},
		},
		Handler: func(ctx context.Context, args Args) (any, error) {
			period := args.String("period")
			if period == "" {
				period = "day"
			}
			return backend.Report(ctx, args.String("metric"), period)
		},
	}
}

// MemoryQueryBackend is a canned-row fake for development and tests.
type MemoryQueryBackend struct {
	mu   sync.RWMutex
	rows []map[string]any
}

// NewMemoryQueryBackend seeds the fake with rows.
func NewMemoryQueryBackend(rows ...map[string]any) *MemoryQueryBackend {
	return &MemoryQueryBackend{rows: rows}
}

func (b *MemoryQueryBackend) Query(ctx context.Context, query string, limit int) ([]map[string]any, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("empty query")
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if limit > len(b.rows) {
		limit = len(b.rows)
	}
	out := make([]map[string]any, limit)
	copy(out, b.rows[:limit])
	return out, nil
}

// MemoryDocumentBackend is a substring-match fake document store.
type MemoryDocumentBackend struct {
	mu   sync.RWMutex
	docs []map[string]any
}

// NewMemoryDocumentBackend seeds the fake with documents carrying a
// "content" field.
func NewMemoryDocumentBackend(docs ...map[string]any) *MemoryDocumentBackend {
	return &MemoryDocumentBackend{docs: docs}
}

func (b *MemoryDocumentBackend) Search(ctx context.Context, query string, limit int) ([]map[string]any, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []map[string]any
	needle := strings.ToLower(query)
	for _, doc := range b.docs {
		if len(out) >= limit {
			break
		}
		content, _ := doc["content"].(string)
		if needle == "" || strings.Contains(strings.ToLower(content), needle) {
			out = append(out, doc)
		}
	}
	return out, nil
}

// MemoryAnalyticsBackend returns deterministic aggregates for tests.
type MemoryAnalyticsBackend struct{}

func (MemoryAnalyticsBackend) Report(ctx context.Context, metric, period string) (map[string]any, error) {
	if metric == "" {
		return nil, fmt.Errorf("metric is required")
	}
	return map[string]any{
		"metric":       metric,
		"period":       period,
		"generated_at": time.Now().UTC().Format(time.RFC3339),
		"value":        0,
	}, nil
}
