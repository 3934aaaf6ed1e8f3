package httpds

import (
	"context"
	"io"
	"strings"
)

// Source streams the body of a URL. Each Open performs a new GET.
type Source struct {
	client *Client
	url    string
}

// NewSource returns a Source for url using c (a default Client when nil).
func NewSource(c *Client, url string) *Source {
	if c == nil {
		c = NewClient(Config{})
	}
	return &Source{client: c, url: url}
}

// IsURL reports whether s names an http or https resource.
func IsURL(s string) bool {
	l := strings.ToLower(s)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}

func (s *Source) Name() string { return s.url }

// Open starts a GET and returns the response body.
func (s *Source) Open(ctx context.Context) (io.ReadCloser, error) {
	resp, err := s.client.Get(ctx, s.url)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}
