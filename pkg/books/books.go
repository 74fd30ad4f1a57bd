// Package books serves trending books and author details through the tiered
// cache.
//
// A [Service] owns one [tiered.Manager] per value type. Upstream records are
// reduced to what the pages need before they are cached, including picking a
// single cover or photo URL, so cached entries stay small and readers never
// repeat the selection.
package books

import (
	"context"

	"github.com/matzehuels/shelfcache/pkg/cache"
	"github.com/matzehuels/shelfcache/pkg/cover"
	errs "github.com/matzehuels/shelfcache/pkg/errors"
	"github.com/matzehuels/shelfcache/pkg/integrations"
	"github.com/matzehuels/shelfcache/pkg/integrations/hardcover"
	"github.com/matzehuels/shelfcache/pkg/integrations/openlibrary"
	"github.com/matzehuels/shelfcache/pkg/tiered"
)

// DefaultTrendingLimit is the list size used when none is configured.
const DefaultTrendingLimit = 20

// Book is a trending book as served to clients.
type Book struct {
	ID          int64    `json:"id"`
	Title       string   `json:"title"`
	Slug        string   `json:"slug"`
	ReleaseYear int      `json:"release_year,omitempty"`
	Rating      float64  `json:"rating,omitempty"`
	UsersCount  int      `json:"users_count,omitempty"`
	Authors     []string `json:"authors,omitempty"`
	CoverURL    string   `json:"cover_url,omitempty"`
}

// Author is an author page as served to clients.
type Author struct {
	Key       string `json:"key"`
	Name      string `json:"name"`
	Bio       string `json:"bio,omitempty"`
	BirthDate string `json:"birth_date,omitempty"`
	DeathDate string `json:"death_date,omitempty"`
	TopWork   string `json:"top_work,omitempty"`
	WorkCount int    `json:"work_count,omitempty"`
	PhotoURL  string `json:"photo_url,omitempty"`
}

// TrendingSource is the upstream for trending books; *hardcover.Client
// satisfies it.
type TrendingSource interface {
	TrendingBooks(ctx context.Context, limit int) ([]hardcover.Book, error)
}

// AuthorSource is the upstream for authors; *openlibrary.Client satisfies it.
type AuthorSource interface {
	FetchAuthor(ctx context.Context, name string) (*openlibrary.Author, error)
}

// Options configures a [Service].
type Options struct {
	Trending      TrendingSource
	Authors       AuthorSource
	Selector      *cover.Selector // Default: cover.NewSelector(0, cover.DefaultWidth)
	Keyer         cache.Keyer     // Default: cache.DefaultKeyer
	TrendingLimit int             // Default: DefaultTrendingLimit
	Cache         tiered.Options
}

// Service answers book queries from the cache tiers, falling back to the
// upstreams.
type Service struct {
	trending TrendingSource
	authors  AuthorSource
	selector *cover.Selector
	keys     cache.Keyer
	limit    int

	books  *tiered.Manager[[]Book]
	people *tiered.Manager[Author]
}

// New creates a Service. Both managers share opts.Cache, including the
// distributed tier.
func New(opts Options) *Service {
	if opts.Selector == nil {
		opts.Selector = cover.NewSelector(0, cover.DefaultWidth)
	}
	if opts.Keyer == nil {
		opts.Keyer = cache.NewDefaultKeyer()
	}
	if opts.TrendingLimit <= 0 {
		opts.TrendingLimit = DefaultTrendingLimit
	}
	return &Service{
		trending: opts.Trending,
		authors:  opts.Authors,
		selector: opts.Selector,
		keys:     opts.Keyer,
		limit:    opts.TrendingLimit,
		books:    tiered.New[[]Book](opts.Cache),
		people:   tiered.New[Author](opts.Cache),
	}
}

// TrendingKey is the cache key of the trending list.
func (s *Service) TrendingKey() string {
	return s.keys.TrendingKey(s.limit)
}

// AuthorKey is the cache key for name, or "" if name has no letters or digits.
func (s *Service) AuthorKey(name string) string {
	n := integrations.NormalizeName(name)
	if n == "" {
		return ""
	}
	return s.keys.AuthorKey(n)
}

// TrendingBooks returns the trending list.
func (s *Service) TrendingBooks(ctx context.Context) (tiered.Result[[]Book], error) {
	if s.trending == nil {
		return tiered.Result[[]Book]{}, errs.New(errs.ErrCodeInternal, "no trending source configured")
	}
	return s.books.Get(ctx, s.TrendingKey(), func(ctx context.Context) ([]Book, error) {
		raw, err := s.trending.TrendingBooks(ctx, s.limit)
		if err != nil {
			return nil, err
		}
		out := make([]Book, 0, len(raw))
		for _, b := range raw {
			out = append(out, s.toBook(b))
		}
		return out, nil
	})
}

// Author returns the author best matching name. Names that differ only in
// case, spacing or punctuation share one cache entry.
func (s *Service) Author(ctx context.Context, name string) (tiered.Result[Author], error) {
	if err := errs.ValidateAuthorName(name); err != nil {
		return tiered.Result[Author]{}, err
	}
	key := s.AuthorKey(name)
	if key == "" {
		return tiered.Result[Author]{}, errs.New(errs.ErrCodeInvalidInput, "author name %q has no letters or digits", name)
	}
	if s.authors == nil {
		return tiered.Result[Author]{}, errs.New(errs.ErrCodeInternal, "no author source configured")
	}
	return s.people.Get(ctx, key, func(ctx context.Context) (Author, error) {
		a, err := s.authors.FetchAuthor(ctx, name)
		if err != nil {
			return Author{}, err
		}
		return s.toAuthor(a), nil
	})
}

// Settle waits for an in-flight fetch of key to finish.
func (s *Service) Settle(ctx context.Context, key string) error {
	if err := s.books.Settle(ctx, key); err != nil {
		return err
	}
	return s.people.Settle(ctx, key)
}

// Invalidate drops key from every tier.
func (s *Service) Invalidate(ctx context.Context, key string) {
	s.books.Invalidate(ctx, key)
	s.people.Invalidate(ctx, key)
}

// Wait blocks until background fetches and refreshes are done.
func (s *Service) Wait() {
	s.books.Wait()
	s.people.Wait()
}

// Close stops background work. The distributed tier is left open.
func (s *Service) Close() {
	s.books.Close()
	s.people.Close()
}

func (s *Service) toBook(b hardcover.Book) Book {
	cands := make([]cover.Candidate, 0, len(b.Images))
	for _, img := range b.Images {
		cands = append(cands, cover.Candidate{
			URL:        img.URL,
			Width:      img.Width,
			Height:     img.Height,
			LanguageID: img.LanguageID,
		})
	}
	url, _ := s.selector.SelectBest(cands)
	return Book{
		ID:          b.ID,
		Title:       b.Title,
		Slug:        b.Slug,
		ReleaseYear: b.ReleaseYear,
		Rating:      b.Rating,
		UsersCount:  b.UsersCount,
		Authors:     b.Authors,
		CoverURL:    url,
	}
}

func (s *Service) toAuthor(a *openlibrary.Author) Author {
	cands := make([]cover.Candidate, 0, len(a.Photos))
	for _, p := range a.Photos {
		cands = append(cands, cover.Candidate{URL: p})
	}
	url, _ := s.selector.SelectBest(cands)
	return Author{
		Key:       a.Key,
		Name:      a.Name,
		Bio:       a.Bio,
		BirthDate: a.BirthDate,
		DeathDate: a.DeathDate,
		TopWork:   a.TopWork,
		WorkCount: a.WorkCount,
		PhotoURL:  url,
	}
}
