// Package cover picks the best image among several candidates for a book
// cover or an author photo.
//
// Candidates matching a placeholder pattern are dropped. The rest are scored
// by resolution, with a bonus for portrait proportions and a much larger one
// for the preferred language, so language always outranks resolution. The
// winner's URL is rewritten to a canonical width.
package cover

import (
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	errs "github.com/matzehuels/shelfcache/pkg/errors"
)

const (
	// LanguageBonus is added to candidates in the preferred language. It is
	// larger than any resolution score.
	LanguageBonus = 1e6

	// DefaultWidth is the canonical width written into selected URLs.
	DefaultWidth = 800

	// DefaultWidthParam is the query parameter that carries the width.
	DefaultWidthParam = "width"

	minPortrait = 1.2
	maxPortrait = 2.5
)

// DefaultPlaceholders match the "no cover available" images used by the
// upstreams.
var DefaultPlaceholders = []*regexp.Regexp{
	regexp.MustCompile(`(?i)placeholder`),
	regexp.MustCompile(`(?i)no[-_]?cover`),
	regexp.MustCompile(`(?i)default[-_]?cover`),
}

// Candidate is one image option. Zero Width or Height means unknown.
type Candidate struct {
	URL        string `json:"url"`
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
	LanguageID int    `json:"language_id,omitempty"`
}

// Selector scores candidates. The zero value has no language preference, no
// placeholder patterns, and normalizes to [DefaultWidth] via
// [DefaultWidthParam].
type Selector struct {
	PreferredLanguage int              // 0 means no preference
	Placeholders      []*regexp.Regexp // URLs matching any pattern are excluded
	CanonicalWidth    int              // Width written into the selected URL
	WidthParam        string           // Query parameter holding the width
}

// NewSelector returns a Selector with the default placeholder patterns.
func NewSelector(preferredLanguage, canonicalWidth int) *Selector {
	return &Selector{
		PreferredLanguage: preferredLanguage,
		Placeholders:      DefaultPlaceholders,
		CanonicalWidth:    canonicalWidth,
		WidthParam:        DefaultWidthParam,
	}
}

// SelectBest returns the normalized URL of the highest-scoring candidate.
// The first candidate wins ties. It returns false when no valid candidate
// exists.
func (s *Selector) SelectBest(cands []Candidate) (string, bool) {
	best := -1
	bestScore := math.Inf(-1)
	for i, c := range cands {
		if !s.valid(c) {
			continue
		}
		if score := s.Score(c); score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return "", false
	}
	return s.Normalize(cands[best].URL), true
}

// Score returns log(1+w*h) * (1+portrait) + language, where portrait is 1
// for height/width in [1.2, 2.5] and language is [LanguageBonus] for the
// preferred language.
func (s *Selector) Score(c Candidate) float64 {
	w, h := float64(max(c.Width, 0)), float64(max(c.Height, 0))
	portrait := 0.0
	if w > 0 {
		if ratio := h / w; ratio >= minPortrait && ratio <= maxPortrait {
			portrait = 1
		}
	}
	score := math.Log1p(w*h) * (1 + portrait)
	if s.PreferredLanguage != 0 && c.LanguageID == s.PreferredLanguage {
		score += LanguageBonus
	}
	return score
}

// Normalize sets the width parameter of u to the canonical width. Every other
// query parameter keeps its position and encoding, so signed URLs stay
// intact. Unparsable URLs are returned unchanged.
func (s *Selector) Normalize(u string) string {
	parsed, err := url.Parse(u)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return u
	}
	width := s.CanonicalWidth
	if width <= 0 {
		width = DefaultWidth
	}
	param := s.WidthParam
	if param == "" {
		param = DefaultWidthParam
	}
	parsed.RawQuery = setQueryParam(parsed.RawQuery, param, strconv.Itoa(width))
	return parsed.String()
}

// setQueryParam replaces the first occurrence of key in a raw query with
// key=value, drops later duplicates, and appends the pair if key is absent.
func setQueryParam(raw, key, value string) string {
	pair := url.QueryEscape(key) + "=" + url.QueryEscape(value)
	if raw == "" {
		return pair
	}
	parts := strings.Split(raw, "&")
	out := parts[:0]
	replaced := false
	for _, p := range parts {
		name, _, _ := strings.Cut(p, "=")
		if k, err := url.QueryUnescape(name); err == nil && k == key {
			if !replaced {
				out = append(out, pair)
				replaced = true
			}
			continue
		}
		out = append(out, p)
	}
	if !replaced {
		out = append(out, pair)
	}
	return strings.Join(out, "&")
}

func (s *Selector) valid(c Candidate) bool {
	if errs.ValidateURL(c.URL) != nil {
		return false
	}
	for _, re := range s.Placeholders {
		if re.MatchString(c.URL) {
			return false
		}
	}
	return true
}
