package overpass

import (
	"context"
	"fmt"
	"github.com/hauke96/sigolo/v2"
	"github.com/pkg/errors"
	"io"
	"net/http"
	"net/url"
	ownOsm "osm4cities/osm"
	"strings"
	"time"
)

const (
	DefaultURL     = "https://overpass-api.de/api/interpreter"
	DefaultTimeout = 180 * time.Second
)

// UpstreamQueryError is returned when the query service is unreachable, timed out or answered with a non-success
// status. The status code is 0 when no response was received.
type UpstreamQueryError struct {
	StatusCode int
	Err        error
}

func (e *UpstreamQueryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("Overpass query failed with status %d: %s", e.StatusCode, e.Err.Error())
	}
	return fmt.Sprintf("Overpass query failed: %s", e.Err.Error())
}

func (e *UpstreamQueryError) Unwrap() error {
	return e.Err
}

// Response contains the decoded elements and the unmodified response body.
type Response struct {
	Elements []ownOsm.Element
	Raw      []byte
}

// Executor runs a fully resolved query against an Overpass compatible service.
type Executor interface {
	Execute(ctx context.Context, query string) (*Response, error)
}

type Client struct {
	url     string
	timeout time.Duration
	client  *http.Client
}

func NewClient(serviceUrl string, timeout time.Duration) *Client {
	if serviceUrl == "" {
		serviceUrl = DefaultURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		url:     serviceUrl,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

// Execute sends the query as form encoded "data" parameter. There is no retry, failed queries are retried by the next
// refresh.
func (c *Client) Execute(ctx context.Context, query string) (*Response, error) {
	sigolo.Debugf("Execute Overpass query against %s", c.url)
	sigolo.Tracef("Query:\n%s", query)
	queryStartTime := time.Now()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	form := url.Values{}
	form.Set("data", query)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.Wrap(err, "Unable to create Overpass request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &UpstreamQueryError{Err: err}
	}
	defer func() {
		closeErr := resp.Body.Close()
		if closeErr != nil {
			sigolo.Errorf("Unable to close Overpass response body: %s", closeErr.Error())
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UpstreamQueryError{StatusCode: resp.StatusCode, Err: errors.Wrap(err, "Unable to read response body")}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UpstreamQueryError{StatusCode: resp.StatusCode, Err: errors.Errorf("Unexpected response: %s", truncate(string(body), 200))}
	}

	elements, err := ownOsm.DecodeResponse(body)
	if err != nil {
		return nil, &UpstreamQueryError{StatusCode: resp.StatusCode, Err: err}
	}

	sigolo.Debugf("Finished Overpass query in %s with %d elements", time.Since(queryStartTime), len(elements))

	return &Response{
		Elements: elements,
		Raw:      body,
	}, nil
}

func truncate(s string, maxLength int) string {
	runes := []rune(s)
	if len(runes) > maxLength {
		return string(runes[:maxLength]) + "... [truncated]"
	}
	return s
}
