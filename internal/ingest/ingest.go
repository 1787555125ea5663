// Package ingest pulls deploy-log events from an external paged API,
// stages them as a local batch file, and bulk-loads the text into the
// raw-log table that feeds signal extraction.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const (
	defaultPageSize = 20
	defaultTimeout  = 30 * time.Second
)

// Event is one row produced by the external API. Anything beyond the
// two required fields is carried opaquely through the batch file.
type Event struct {
	EntityID string `json:"entity_id"`
	Text     string `json:"text"`
}

// Summary reports one ingestion run.
type Summary struct {
	Pages   int `json:"pages"`
	Fetched int `json:"fetched"`
	Loaded  int `json:"loaded"`
	Skipped int `json:"skipped"`
}

// RawLogAppender is the store-side sink for loaded log lines.
type RawLogAppender interface {
	AppendRawLogs(ctx context.Context, entityID string, lines []string) error
}

// Config holds the loader's external API coordinates and staging path.
type Config struct {
	// BaseURL is the paged events endpoint, queried with page and
	// per_page parameters.
	BaseURL string
	// Token is sent as a bearer credential on every page request.
	Token string
	// BatchPath is where the fetched batch is staged before loading.
	BatchPath string
	// PageSize defaults to 20 when zero.
	PageSize int
}

func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("ingest: base URL is required")
	}
	if c.BatchPath == "" {
		return fmt.Errorf("ingest: batch path is required")
	}
	return nil
}

// Loader runs the fetch, stage, load pipeline.
type Loader struct {
	cfg        Config
	store      RawLogAppender
	httpClient *http.Client
	logger     *zap.Logger
}

// NewLoader creates a loader. A nil logger falls back to a no-op
// logger and a zero page size falls back to the default.
func NewLoader(cfg Config, store RawLogAppender, logger *zap.Logger) (*Loader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		cfg:        cfg,
		store:      store,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger,
	}, nil
}

// Run fetches every page, stages the batch file, and loads it into the
// raw-log table. Malformed entries are skipped and counted, never
// fatal.
func (l *Loader) Run(ctx context.Context) (Summary, error) {
	entries, pages, err := l.fetchAll(ctx)
	if err != nil {
		return Summary{}, err
	}

	if err := l.writeBatch(entries); err != nil {
		return Summary{}, err
	}

	summary, err := l.loadBatch(ctx)
	if err != nil {
		return Summary{}, err
	}
	summary.Pages = pages
	summary.Fetched = len(entries)

	l.logger.Info("ingestion run complete",
		zap.Int("pages", summary.Pages),
		zap.Int("fetched", summary.Fetched),
		zap.Int("loaded", summary.Loaded),
		zap.Int("skipped", summary.Skipped))
	return summary, nil
}

// fetchAll pages the API until an empty or short page.
func (l *Loader) fetchAll(ctx context.Context) ([]json.RawMessage, int, error) {
	var entries []json.RawMessage
	pages := 0
	for page := 1; ; page++ {
		batch, err := l.fetchPage(ctx, page)
		if err != nil {
			return nil, 0, err
		}
		if len(batch) == 0 {
			break
		}
		pages++
		entries = append(entries, batch...)
		if len(batch) < l.cfg.PageSize {
			break
		}
	}
	return entries, pages, nil
}

func (l *Loader) fetchPage(ctx context.Context, page int) ([]json.RawMessage, error) {
	u, err := url.Parse(l.cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("ingest: parsing base URL: %w", err)
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(l.cfg.PageSize))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("ingest: building page request: %w", err)
	}
	if l.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+l.cfg.Token)
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ingest: fetching page %d: %w", page, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ingest: page %d returned status %d", page, resp.StatusCode)
	}

	var batch []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&batch); err != nil {
		return nil, fmt.Errorf("ingest: decoding page %d: %w", page, err)
	}
	return batch, nil
}

// writeBatch stages the fetched entries as a single JSON array file.
// The file is the durable handoff point between fetch and load.
func (l *Loader) writeBatch(entries []json.RawMessage) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("ingest: encoding batch: %w", err)
	}
	if err := os.WriteFile(l.cfg.BatchPath, data, 0o644); err != nil {
		return fmt.Errorf("ingest: writing batch file: %w", err)
	}
	return nil
}

// loadBatch reads the staged file back and bulk-loads lines per
// entity. Entries missing entity_id or text are skipped.
func (l *Loader) loadBatch(ctx context.Context) (Summary, error) {
	data, err := os.ReadFile(l.cfg.BatchPath)
	if err != nil {
		return Summary{}, fmt.Errorf("ingest: reading batch file: %w", err)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Summary{}, fmt.Errorf("ingest: decoding batch file: %w", err)
	}

	var summary Summary
	byEntity := make(map[string][]string)
	var order []string
	for _, entry := range raw {
		var event Event
		if err := json.Unmarshal(entry, &event); err != nil || event.EntityID == "" || event.Text == "" {
			summary.Skipped++
			continue
		}
		if _, ok := byEntity[event.EntityID]; !ok {
			order = append(order, event.EntityID)
		}
		byEntity[event.EntityID] = append(byEntity[event.EntityID], event.Text)
	}

	for _, entity := range order {
		lines := byEntity[entity]
		if err := l.store.AppendRawLogs(ctx, entity, lines); err != nil {
			return Summary{}, fmt.Errorf("ingest: loading logs for %q: %w", entity, err)
		}
		summary.Loaded += len(lines)
	}
	return summary, nil
}
