package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nao1215/crawlkit/internal/database"
	"github.com/nao1215/crawlkit/internal/log"
	"github.com/nao1215/crawlkit/internal/model"
)

// StepFunc adapts a function to the Step interface.
type StepFunc struct {
	name string
	fn   func(ctx context.Context, resp *model.Response) error
}

// NewStepFunc returns a Step named name that calls fn.
func NewStepFunc(name string, fn func(ctx context.Context, resp *model.Response) error) *StepFunc {
	return &StepFunc{name: name, fn: fn}
}

// Name returns the step name.
func (s *StepFunc) Name() string {
	return s.name
}

// Do calls the wrapped function.
func (s *StepFunc) Do(ctx context.Context, resp *model.Response) error {
	return s.fn(ctx, resp)
}

// PageStore persists page records. *database.CrawlDB implements it.
type PageStore interface {
	InsertPage(ctx context.Context, record *database.PageRecord) (int64, error)
}

// StoreStep writes one page record per response into the crawl database.
//
// Design decision: only metadata is stored (status, title, hash, headers),
// not the body. The hash is enough to detect a changed page on the next
// crawl and keeps the database small.
type StoreStep struct {
	// store receives the page records.
	store PageStore

	// crawlID keys every record to the crawl that fetched it.
	crawlID string
}

// NewStoreStep creates a step that stores pages of crawlID in store.
func NewStoreStep(store PageStore, crawlID string) *StoreStep {
	return &StoreStep{
		store:   store,
		crawlID: crawlID,
	}
}

// Name returns the step name.
func (s *StoreStep) Name() string {
	return "store"
}

// Do stores the page record for resp.
func (s *StoreStep) Do(ctx context.Context, resp *model.Response) error {
	record := &database.PageRecord{
		CrawlID:     s.crawlID,
		URL:         resp.URL(),
		FinalURL:    resp.URL(),
		Status:      resp.Status(),
		ContentType: resp.ContentType(),
		Title:       resp.Title(),
		Hash:        resp.Hash(),
		Headers:     resp.Header(),
	}
	if req := resp.Request(); req != nil {
		record.URL = req.EffectiveURL()
		record.Generation = req.Generation()
	}

	if _, err := s.store.InsertPage(ctx, record); err != nil {
		return fmt.Errorf("store page %s: %w", record.URL, err)
	}
	return nil
}

// LogStep logs every response through the secure handler.
type LogStep struct {
	// logger for structured logging.
	logger *slog.Logger
}

// NewLogStep creates a step that logs responses at info level.
// A nil logger means slog.Default().
func NewLogStep(logger *slog.Logger) *LogStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogStep{logger: logger}
}

// Name returns the step name.
func (s *LogStep) Name() string {
	return "log"
}

// Do logs resp. It never fails.
func (s *LogStep) Do(ctx context.Context, resp *model.Response) error {
	s.logger.LogAttrs(ctx, slog.LevelInfo, "page fetched",
		log.RequestAttr(resp.Request()),
		slog.String("final_url", resp.URL()),
		slog.Int("status", resp.Status()),
		slog.Duration("elapsed", resp.Elapsed()),
	)
	return nil
}
