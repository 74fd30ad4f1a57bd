package books

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/shelfcache/pkg/cache"
	"github.com/matzehuels/shelfcache/pkg/cover"
	errs "github.com/matzehuels/shelfcache/pkg/errors"
	"github.com/matzehuels/shelfcache/pkg/httputil"
	"github.com/matzehuels/shelfcache/pkg/integrations/hardcover"
	"github.com/matzehuels/shelfcache/pkg/integrations/openlibrary"
	"github.com/matzehuels/shelfcache/pkg/tiered"
)

type fakeTrending struct {
	calls atomic.Int32
	limit atomic.Int32
	books []hardcover.Book
	err   error
}

func (f *fakeTrending) TrendingBooks(_ context.Context, limit int) ([]hardcover.Book, error) {
	f.calls.Add(1)
	f.limit.Store(int32(limit))
	return f.books, f.err
}

type fakeAuthors struct {
	mu    sync.Mutex
	names []string
	err   error
}

func (f *fakeAuthors) FetchAuthor(_ context.Context, name string) (*openlibrary.Author, error) {
	f.mu.Lock()
	f.names = append(f.names, name)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &openlibrary.Author{
		Key:    "OL26320A",
		Name:   "Ursula K. Le Guin",
		Photos: []string{"https://covers.test/a/placeholder.jpg", "https://covers.test/a/1-L.jpg"},
	}, nil
}

func (f *fakeAuthors) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.names)
}

func cacheOptions() tiered.Options {
	return tiered.Options{
		BoundedWait: time.Second,
		Retry:       httputil.Policy{Attempts: 1},
		Logger:      log.New(io.Discard),
	}
}

func newTestService(t *testing.T, opts Options) *Service {
	t.Helper()
	if opts.Cache.Retry.Attempts == 0 {
		opts.Cache = cacheOptions()
	}
	s := New(opts)
	t.Cleanup(s.Close)
	return s
}

func TestTrendingBooksSelectsCovers(t *testing.T) {
	src := &fakeTrending{books: []hardcover.Book{
		{
			ID: 1, Title: "The Dispossessed", Authors: []string{"Ursula K. Le Guin"},
			Images: []hardcover.Image{
				{URL: "https://img.test/1-de.jpg", Width: 800, Height: 1200, LanguageID: 2},
				{URL: "https://img.test/1-en.jpg?width=100", Width: 100, Height: 150, LanguageID: 1},
			},
		},
		{ID: 2, Title: "Solaris", Images: []hardcover.Image{{URL: "https://img.test/no-cover.png"}}},
	}}
	s := newTestService(t, Options{
		Trending:      src,
		Selector:      cover.NewSelector(1, 480),
		TrendingLimit: 2,
	})

	r, err := s.TrendingBooks(context.Background())
	if err != nil {
		t.Fatalf("TrendingBooks() error = %v", err)
	}
	if r.State != tiered.StateFresh || len(r.Data) != 2 {
		t.Fatalf("TrendingBooks() = %+v", r)
	}
	if got := r.Data[0].CoverURL; got != "https://img.test/1-en.jpg?width=480" {
		t.Errorf("cover = %q, want the English edition at width 480", got)
	}
	if got := r.Data[1].CoverURL; got != "" {
		t.Errorf("placeholder-only book got cover %q", got)
	}
	if got := src.limit.Load(); got != 2 {
		t.Errorf("upstream limit = %d, want 2", got)
	}
	if s.TrendingKey() != "trending:books:2" {
		t.Errorf("TrendingKey() = %q", s.TrendingKey())
	}
}

func TestTrendingBooksServedFromCache(t *testing.T) {
	src := &fakeTrending{books: []hardcover.Book{{ID: 1, Title: "Kindred"}}}
	s := newTestService(t, Options{Trending: src})
	ctx := context.Background()

	for range 5 {
		if _, err := s.TrendingBooks(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if got := src.calls.Load(); got != 1 {
		t.Errorf("upstream calls = %d, want 1", got)
	}

	s.Invalidate(ctx, s.TrendingKey())
	if _, err := s.TrendingBooks(ctx); err != nil {
		t.Fatal(err)
	}
	if got := src.calls.Load(); got != 2 {
		t.Errorf("upstream calls after Invalidate = %d, want 2", got)
	}
}

func TestTrendingBooksError(t *testing.T) {
	src := &fakeTrending{err: errs.New(errs.ErrCodeClient, "bad token")}
	s := newTestService(t, Options{Trending: src})

	_, err := s.TrendingBooks(context.Background())
	if !errs.Is(err, errs.ErrCodeClient) {
		t.Errorf("TrendingBooks() error = %v, want CLIENT_ERROR", err)
	}
}

func TestAuthorNormalizesKey(t *testing.T) {
	src := &fakeAuthors{}
	s := newTestService(t, Options{Authors: src})
	ctx := context.Background()

	r, err := s.Author(ctx, "Ursula K. Le Guin")
	if err != nil {
		t.Fatalf("Author() error = %v", err)
	}
	if r.Data.Name != "Ursula K. Le Guin" || r.Data.PhotoURL != "https://covers.test/a/1-L.jpg?width=800" {
		t.Errorf("Author() = %+v", r.Data)
	}

	// Same author, different spelling: served from cache.
	if _, err := s.Author(ctx, "  ursula k le guin "); err != nil {
		t.Fatal(err)
	}
	if got := src.calls(); got != 1 {
		t.Errorf("upstream calls = %d, want 1", got)
	}
	if got := s.AuthorKey("Ursula K. Le Guin"); got != "author:ursula-k-le-guin" {
		t.Errorf("AuthorKey() = %q", got)
	}
}

func TestAuthorRejectsInvalidNames(t *testing.T) {
	src := &fakeAuthors{}
	s := newTestService(t, Options{Authors: src})

	for _, name := range []string{"", "   ", "?!", "bad\x00name"} {
		if _, err := s.Author(context.Background(), name); !errs.Is(err, errs.ErrCodeInvalidInput) {
			t.Errorf("Author(%q) error = %v, want INVALID_INPUT", name, err)
		}
	}
	if got := src.calls(); got != 0 {
		t.Errorf("upstream called %d times for invalid names", got)
	}
}

func TestAuthorNotFound(t *testing.T) {
	src := &fakeAuthors{err: errs.New(errs.ErrCodeNotFound, "no match")}
	s := newTestService(t, Options{Authors: src})

	_, err := s.Author(context.Background(), "Nobody")
	if !errs.Is(err, errs.ErrCodeNotFound) {
		t.Errorf("Author() error = %v, want NOT_FOUND", err)
	}
}

func TestMissingSources(t *testing.T) {
	s := newTestService(t, Options{})
	if _, err := s.TrendingBooks(context.Background()); !errs.Is(err, errs.ErrCodeInternal) {
		t.Errorf("TrendingBooks() error = %v", err)
	}
	if _, err := s.Author(context.Background(), "Octavia Butler"); !errs.Is(err, errs.ErrCodeInternal) {
		t.Errorf("Author() error = %v", err)
	}
}

func TestScopedKeys(t *testing.T) {
	s := newTestService(t, Options{Keyer: cache.NewScopedKeyer(nil, "staging:")})
	if got := s.TrendingKey(); got != "staging:trending:books:20" {
		t.Errorf("TrendingKey() = %q", got)
	}
}

func TestAuthorThroughOpenLibrary(t *testing.T) {
	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/search/authors.json", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"numFound": 1,
			"docs":     []map[string]any{{"key": "OL1A", "name": "Octavia E. Butler", "top_work": "Kindred", "work_count": 42}},
		})
	})
	mux.HandleFunc("/authors/OL1A.json", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"name":   "Octavia E. Butler",
			"bio":    map[string]any{"type": "/type/text", "value": "American author."},
			"photos": []int{-1, 7},
		})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	s := newTestService(t, Options{Authors: openlibrary.NewClient(server.URL, server.Client(), nil)})
	r, err := s.Author(context.Background(), "Octavia Butler")
	if err != nil {
		t.Fatalf("Author() error = %v", err)
	}
	want := Author{
		Key:       "OL1A",
		Name:      "Octavia E. Butler",
		Bio:       "American author.",
		TopWork:   "Kindred",
		WorkCount: 42,
		PhotoURL:  "https://covers.openlibrary.org/a/id/7-L.jpg?width=800",
	}
	if r.Data != want {
		t.Errorf("Author() =\n%+v\nwant\n%+v", r.Data, want)
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("upstream requests = %d, want 2", got)
	}
}
