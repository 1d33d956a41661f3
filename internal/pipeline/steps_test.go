package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	"github.com/nao1215/crawlkit/internal/database"
	"github.com/nao1215/crawlkit/internal/log"
	"github.com/nao1215/crawlkit/internal/model"
)

func newTestLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// failingStore is a PageStore that always fails.
type failingStore struct{}

func (failingStore) InsertPage(context.Context, *database.PageRecord) (int64, error) {
	return 0, errors.New("disk full")
}

// TestStepFunc tests the function adapter.
func TestStepFunc(t *testing.T) {
	t.Parallel()

	var got string
	step := NewStepFunc("capture", func(_ context.Context, resp *model.Response) error {
		got = resp.URL()
		return nil
	})

	if step.Name() != "capture" {
		t.Errorf("expected name 'capture', got %q", step.Name())
	}
	if err := step.Do(context.Background(), newTestResponse(t, "http://example.com/a")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "http://example.com/a" {
		t.Errorf("expected URL to be passed through, got %q", got)
	}
}

// TestStoreStep tests page persistence.
func TestStoreStep(t *testing.T) {
	t.Parallel()

	t.Run("stores page metadata", func(t *testing.T) {
		t.Parallel()

		db, err := database.Open(t.TempDir(), database.DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		step := NewStoreStep(db, "crawl-1")
		if step.Name() != "store" {
			t.Errorf("expected name 'store', got %q", step.Name())
		}

		resp := newTestResponse(t, "http://example.com/page")
		if err := step.Do(context.Background(), resp); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		page, err := db.GetPage(context.Background(), "crawl-1", "http://example.com/page")
		if err != nil {
			t.Fatalf("failed to get page: %v", err)
		}
		if page == nil {
			t.Fatal("expected page to be stored")
		}
		if page.Title != "Example" {
			t.Errorf("expected title 'Example', got %q", page.Title)
		}
		if page.Status != http.StatusOK || page.ContentType != "text/html" {
			t.Errorf("unexpected page: %+v", page)
		}
		if page.Generation != 1 {
			t.Errorf("expected generation 1, got %d", page.Generation)
		}
		if page.Hash != resp.Hash() {
			t.Errorf("expected hash %q, got %q", resp.Hash(), page.Hash)
		}
	})

	t.Run("wraps store errors", func(t *testing.T) {
		t.Parallel()

		err := NewStoreStep(failingStore{}, "crawl-1").Do(context.Background(), newTestResponse(t, "http://example.com/"))
		if err == nil || !strings.Contains(err.Error(), "disk full") {
			t.Errorf("expected store error, got %v", err)
		}
	})
}

// TestLogStep tests that the log step masks cookies.
func TestLogStep(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := log.NewSecureLogger(&buf, true)

	req, err := model.NewRequest("http://example.com/", model.WithCookie("session", "s3cr3t-value"))
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	resp := model.NewResponse(req, http.StatusOK, nil, nil, "")

	step := NewLogStep(logger)
	if step.Name() != "log" {
		t.Errorf("expected name 'log', got %q", step.Name())
	}
	if err := step.Do(context.Background(), resp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "page fetched") {
		t.Errorf("expected log message, got %q", out)
	}
	if strings.Contains(out, "s3cr3t-value") {
		t.Errorf("cookie value leaked into log: %q", out)
	}
}
