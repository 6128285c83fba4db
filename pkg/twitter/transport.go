package twitter

import (
	"context"
	"io"
	"net/http"
	"time"
)

// Request is one outgoing GET
type Request struct {
	URL     string
	Headers map[string]string
	Timeout time.Duration
}

// Response is a fully read HTTP response
type Response struct {
	StatusCode int
	Status     string
	Body       []byte
}

// Transport sends requests. Errors are reserved for failures where no
// response arrived (timeouts, resets); every status code is a Response.
type Transport interface {
	Do(ctx context.Context, req Request) (*Response, error)
}

// HTTPTransport is the net/http Transport
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport creates a transport over the given client, or a default one
func NewHTTPTransport(client *http.Client) *HTTPTransport {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPTransport{client: client}
}

func (t *HTTPTransport) Do(ctx context.Context, req Request) (*Response, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, err
	}
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &Response{StatusCode: resp.StatusCode, Status: resp.Status, Body: body}, nil
}
