package hardcover

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	errs "github.com/matzehuels/shelfcache/pkg/errors"
	"github.com/matzehuels/shelfcache/pkg/integrations"
)

// DefaultEndpoint is the public Hardcover GraphQL endpoint.
const DefaultEndpoint = "https://api.hardcover.app/v1/graphql"

// trendingWindow is how far back books_trending looks.
const trendingWindow = 30 * 24 * time.Hour

// Book is a trending book as returned by Hardcover, with every image the
// upstream knows about so the caller can pick the best cover.
type Book struct {
	ID          int64    `json:"id"`
	Title       string   `json:"title"`
	Slug        string   `json:"slug"`
	ReleaseYear int      `json:"release_year,omitempty"`
	Rating      float64  `json:"rating,omitempty"`
	UsersCount  int      `json:"users_count,omitempty"`
	Authors     []string `json:"authors,omitempty"`
	Images      []Image  `json:"images,omitempty"`
}

// Image is one cover candidate. LanguageID is zero for the book-level image.
type Image struct {
	URL        string `json:"url"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	LanguageID int    `json:"language_id,omitempty"`
}

// Client queries the Hardcover GraphQL API.
//
// All methods are safe for concurrent use by multiple goroutines.
type Client struct {
	*integrations.Client
	endpoint string
	now      func() time.Time
}

// NewClient creates a Hardcover client.
//
// The token is sent as "Authorization: Bearer <token>"; a token that already
// carries the "Bearer " prefix is accepted as-is. Pass nil for httpClient to
// use [integrations.NewHTTPClient]; callers that need to respect the upstream
// rate limit should pass [httputil.NewThrottledClient].
func NewClient(endpoint, token string, httpClient *http.Client, logger *log.Logger) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	headers := map[string]string{}
	if token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer ")); token != "" {
		headers["Authorization"] = "Bearer " + token
	}
	return &Client{
		Client:   integrations.NewClient(httpClient, headers, logger),
		endpoint: endpoint,
		now:      time.Now,
	}
}

// TrendingBooks returns up to limit books trending over the last 30 days,
// in trending order.
//
// Returns:
//   - CLIENT_ERROR if Hardcover rejects the query
//   - TRANSIENT_ERROR for timeouts, 5xx, 429, or throttling errors in the envelope
//   - MALFORMED_RESPONSE for non-JSON bodies or missing data
func (c *Client) TrendingBooks(ctx context.Context, limit int) ([]Book, error) {
	if limit <= 0 {
		return nil, errs.New(errs.ErrCodeInvalidInput, "trending limit must be positive")
	}

	now := c.now().UTC()
	trending, err := query[trendingData](ctx, c, trendingQuery, map[string]any{
		"from":  now.Add(-trendingWindow).Format(time.DateOnly),
		"to":    now.Format(time.DateOnly),
		"limit": limit,
	})
	if err != nil {
		return nil, err
	}
	ids := trending.BooksTrending.IDs
	if len(ids) == 0 {
		return []Book{}, nil
	}

	data, err := query[booksData](ctx, c, booksQuery, map[string]any{"ids": ids})
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]apiBook, len(data.Books))
	for _, b := range data.Books {
		byID[b.ID] = b
	}
	books := make([]Book, 0, len(ids))
	for _, id := range ids {
		if b, ok := byID[id]; ok {
			books = append(books, b.toBook())
		}
	}
	return books, nil
}

func (b apiBook) toBook() Book {
	out := Book{
		ID:          b.ID,
		Title:       b.Title,
		Slug:        b.Slug,
		ReleaseYear: b.ReleaseYear,
		Rating:      b.Rating,
		UsersCount:  b.UsersCount,
	}
	for _, c := range b.Contributions {
		if name := strings.TrimSpace(c.Author.Name); name != "" && !slices.Contains(out.Authors, name) {
			out.Authors = append(out.Authors, name)
		}
	}
	if b.Image != nil && b.Image.URL != "" {
		out.Images = append(out.Images, Image{URL: b.Image.URL, Width: b.Image.Width, Height: b.Image.Height})
	}
	for _, e := range b.Editions {
		if e.Image != nil && e.Image.URL != "" {
			out.Images = append(out.Images, Image{
				URL:        e.Image.URL,
				Width:      e.Image.Width,
				Height:     e.Image.Height,
				LanguageID: e.LanguageID,
			})
		}
	}
	return out
}
