package amari

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"net/http"
	"strings"

	"github.com/Keksclan/amari-go/contextx"
	"github.com/Keksclan/amari-go/internal/core"
)

// maxErrorBody bounds how much of a failed response is kept in APIError.
const maxErrorBody = 4 << 10

// send is the innermost handler of the remote-call chain: it performs one
// HTTP round trip and decodes a 2xx body into call.Out.
func (c *Client) send(ctx context.Context, call *core.Call) error {
	url := c.cfg.baseURL + call.Path
	if len(call.Query) > 0 {
		url += "?" + call.Query.Encode()
	}

	var body io.Reader
	if call.Body != nil {
		b, err := json.Marshal(call.Body)
		if err != nil {
			return fmt.Errorf("amari: %s: encode request: %w", call.Endpoint, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, call.Method, url, body)
	if err != nil {
		return fmt.Errorf("amari: %s: %w", call.Endpoint, err)
	}
	maps.Copy(req.Header, call.Header)
	req.Header.Set("Authorization", c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if id := contextx.RequestIDFromContext(ctx); id != "" {
		req.Header.Set(contextx.RequestIDHeader, id)
	}
	c.cfg.tracing.Inject(ctx, req.Header)

	resp, err := c.cfg.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveRequest(call.Endpoint, 0)
		return fmt.Errorf("amari: %s: %w", call.Endpoint, err)
	}
	defer resp.Body.Close()
	c.metrics.ObserveRequest(call.Endpoint, resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{
			StatusCode: resp.StatusCode,
			Endpoint:   call.Endpoint,
			Body:       strings.TrimSpace(string(b)),
			retryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	if call.Out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(call.Out); err != nil {
		return fmt.Errorf("amari: %s: decode response: %w", call.Endpoint, err)
	}
	return nil
}
