package hardcover

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	errs "github.com/matzehuels/shelfcache/pkg/errors"
	"github.com/matzehuels/shelfcache/pkg/integrations"
)

const trendingQuery = `query TrendingBooks($from: date!, $to: date!, $limit: Int!) {
  books_trending(from: $from, to: $to, limit: $limit, offset: 0) {
    ids
  }
}`

const booksQuery = `query BooksByIDs($ids: [Int!]) {
  books(where: {id: {_in: $ids}}) {
    id
    title
    slug
    release_year
    rating
    users_count
    image { url width height }
    contributions { author { name } }
    editions(where: {image_id: {_is_null: false}}, order_by: {users_count: desc}, limit: 5) {
      language_id
      image { url width height }
    }
  }
}`

// throttleMarkers identify envelope errors that are really rate limits.
var throttleMarkers = []string{"throttl", "rate limit", "too many requests"}

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type gqlResponse[T any] struct {
	Data   *T         `json:"data"`
	Errors []gqlError `json:"errors"`
}

// Validate delegates to the data payload when it knows how to check itself.
// Partial data next to an errors array is not checked; the errors decide.
func (r *gqlResponse[T]) Validate() error {
	if r.Data == nil || len(r.Errors) > 0 {
		return nil
	}
	if v, ok := any(r.Data).(interface{ Validate() error }); ok {
		return v.Validate()
	}
	return nil
}

type gqlError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

// query posts a GraphQL document and returns the decoded data.
//
// A 2xx JSON response that carries a top-level errors array is a failure:
// throttling messages become TRANSIENT_ERROR, anything else CLIENT_ERROR.
// A response with neither data nor errors is MALFORMED_RESPONSE.
func query[T any](ctx context.Context, c *Client, q string, vars map[string]any) (*T, error) {
	var resp gqlResponse[T]
	req := integrations.Request{
		Method: http.MethodPost,
		URL:    c.endpoint,
		Body:   gqlRequest{Query: q, Variables: vars},
	}
	if err := c.Do(ctx, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Errors) > 0 {
		return nil, classifyErrors(resp.Errors)
	}
	if resp.Data == nil {
		return nil, errs.New(errs.ErrCodeMalformed, "hardcover response has no data")
	}
	return resp.Data, nil
}

func classifyErrors(list []gqlError) error {
	msgs := make([]string, 0, len(list))
	throttled := false
	for _, e := range list {
		msgs = append(msgs, e.Message)
		lower := strings.ToLower(e.Message + " " + e.Extensions.Code)
		for _, m := range throttleMarkers {
			if strings.Contains(lower, m) {
				throttled = true
			}
		}
	}
	cause := fmt.Errorf("%s", strings.Join(msgs, "; "))
	if throttled {
		return errs.Wrap(errs.ErrCodeTransient, &errs.RateLimitedError{Message: cause.Error()}, "hardcover throttled")
	}
	return errs.Wrap(errs.ErrCodeClient, cause, "hardcover rejected query")
}

type trendingData struct {
	BooksTrending struct {
		IDs []int64 `json:"ids"`
	} `json:"books_trending"`
}

type booksData struct {
	Books []apiBook `json:"books"`
}

// Validate rejects book payloads missing identity fields.
func (d *booksData) Validate() error {
	for i, b := range d.Books {
		if b.ID == 0 || b.Title == "" {
			return fmt.Errorf("book %d missing id or title", i)
		}
	}
	return nil
}

type apiImage struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type apiBook struct {
	ID            int64     `json:"id"`
	Title         string    `json:"title"`
	Slug          string    `json:"slug"`
	ReleaseYear   int       `json:"release_year"`
	Rating        float64   `json:"rating"`
	UsersCount    int       `json:"users_count"`
	Image         *apiImage `json:"image"`
	Contributions []struct {
		Author struct {
			Name string `json:"name"`
		} `json:"author"`
	} `json:"contributions"`
	Editions []struct {
		LanguageID int       `json:"language_id"`
		Image      *apiImage `json:"image"`
	} `json:"editions"`
}
