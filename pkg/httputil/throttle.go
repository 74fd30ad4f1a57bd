package httputil

import (
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// ThrottledTransport holds outgoing requests until the limiter admits them.
// Waiting respects the request context, so a per-attempt timeout also bounds
// the time spent queued behind the limiter.
type ThrottledTransport struct {
	http.RoundTripper
	*rate.Limiter
}

// RoundTrip implements http.RoundTripper.
func (t ThrottledTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if err := t.Wait(r.Context()); err != nil {
		return nil, err
	}
	return t.transport().RoundTrip(r)
}

func (t ThrottledTransport) transport() http.RoundTripper {
	if t.RoundTripper != nil {
		return t.RoundTripper
	}
	return http.DefaultTransport
}

// NewThrottledClient returns an http.Client limited to rps requests per second
// with a burst of one. A non-positive rps disables throttling.
func NewThrottledClient(rps float64) *http.Client {
	if rps <= 0 {
		return &http.Client{}
	}
	return &http.Client{
		Transport: ThrottledTransport{
			RoundTripper: http.DefaultTransport,
			Limiter:      rate.NewLimiter(rate.Every(time.Duration(float64(time.Second)/rps)), 1),
		},
	}
}
