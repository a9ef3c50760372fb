package eventful

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	appLog "concertmap/internal/log"
	"concertmap/internal/query"
)

// TransportError is a failed exchange with the data source: a network
// error or a non-2xx status.
type TransportError struct {
	// URL is redacted; it never carries the query string.
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("eventful: %s returned status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("eventful: request to %s failed: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Client queries the relay with a single GET per search. It never retries.
type Client struct {
	relayURL string
	http     *http.Client
}

// NewClient creates a data-source client for relayURL. A nil httpClient gets
// a plain client without a deadline; the session applies its own timeout.
func NewClient(relayURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{relayURL: relayURL, http: httpClient}
}

// Search sends q to the relay and decodes the response.
func (c *Client) Search(ctx context.Context, q query.Query) ([]Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.relayURL, nil)
	if err != nil {
		return nil, err
	}
	req.URL.RawQuery = q.Values().Encode()
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	appLog.Debug("eventful search start", "url", redactURL(c.relayURL), "location", q.Location, "date", q.DateRange)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{URL: redactURL(c.relayURL), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &TransportError{URL: redactURL(c.relayURL), StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{URL: redactURL(c.relayURL), Err: err}
	}

	records, err := Decode(body)
	if err != nil {
		return nil, err
	}

	appLog.Info("eventful search done",
		"location", q.Location,
		"date", q.DateRange,
		"records", len(records),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return records, nil
}

// redactURL hides everything after the host so credentials in paths or
// query strings never reach the logs.
//
//	https://api.example.com/json/events/search?app_key=abcd
//	-> https://api.example.com/...(redacted)
func redactURL(u string) string {
	const redactedSuffix = "/...(redacted)"

	i := -1
	for idx := 0; idx+2 < len(u); idx++ {
		if u[idx:idx+3] == "://" {
			i = idx + 3
			break
		}
	}
	if i == -1 {
		return "url://...(redacted)"
	}

	j := i
	for j < len(u) && u[j] != '/' && u[j] != '?' {
		j++
	}
	return u[:j] + redactedSuffix
}
