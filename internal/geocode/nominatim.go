package geocode

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"concertmap/internal/geo"
	appLog "concertmap/internal/log"
)

// Nominatim queries an OpenStreetMap Nominatim server.
type Nominatim struct {
	baseURL   string
	userAgent string
	http      *http.Client
}

// NewNominatim returns a client for baseURL. Nominatim's usage policy
// requires an identifying User-Agent.
func NewNominatim(baseURL, userAgent string, httpClient *http.Client) *Nominatim {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Nominatim{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
		http:      httpClient,
	}
}

func (n *Nominatim) Geocode(ctx context.Context, address string) (geo.Position, error) {
	if strings.TrimSpace(address) == "" {
		return geo.Position{}, &Error{Address: address, Status: StatusInvalidRequest}
	}

	v := url.Values{}
	v.Set("format", "json")
	v.Set("limit", "1")
	v.Set("q", address)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"/search?"+v.Encode(), nil)
	if err != nil {
		return geo.Position{}, &Error{Address: address, Status: StatusInvalidRequest, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if n.userAgent != "" {
		req.Header.Set("User-Agent", n.userAgent)
	}

	start := time.Now()
	resp, err := n.http.Do(req)
	if err != nil {
		return geo.Position{}, &Error{Address: address, Status: StatusRequestFailed, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return geo.Position{}, &Error{Address: address, Status: resp.Status}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return geo.Position{}, &Error{Address: address, Status: StatusRequestFailed, Err: err}
	}
	if !gjson.ValidBytes(body) {
		return geo.Position{}, &Error{Address: address, Status: StatusInvalidResponse}
	}

	first := gjson.GetBytes(body, "0")
	if !first.Exists() {
		return geo.Position{}, &Error{Address: address, Status: StatusZeroResults}
	}
	pos := geo.Parse(first.Get("lat").String(), first.Get("lon").String())
	if !pos.Valid() {
		return geo.Position{}, &Error{Address: address, Status: StatusInvalidResponse}
	}

	appLog.Debug("geocoded",
		"address", address,
		"match", first.Get("display_name").String(),
		"position", pos.String(),
		"duration", time.Since(start).String(),
	)
	return pos, nil
}
