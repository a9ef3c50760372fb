package eventful

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"concertmap/internal/clock"
	appLog "concertmap/internal/log"
	"concertmap/internal/query"
)

// Relay forwards browser/session searches to the upstream event API using
// the server-held key, and hands the JSON body back unchanged.
type Relay struct {
	baseURL string
	apiKey  string
	client  *http.Client
	clock   clock.Clock
	ttl     time.Duration

	// In-memory cache of upstream bodies keyed by the canonical query
	// string, so identical searches inside ttl do not spend API quota.
	mu    sync.RWMutex
	cache map[string]relayEntry
}

type relayEntry struct {
	body     []byte
	storedAt time.Time
}

// RelayOption customizes a Relay.
type RelayOption func(*Relay)

// WithHTTPClient sets the client used for upstream calls.
func WithHTTPClient(c *http.Client) RelayOption {
	return func(r *Relay) {
		if c != nil {
			r.client = c
		}
	}
}

// WithClock overrides the clock used for cache ages.
func WithClock(c clock.Clock) RelayOption {
	return func(r *Relay) {
		if c != nil {
			r.clock = c
		}
	}
}

// WithCacheTTL sets how long a body is reused. Zero disables caching.
func WithCacheTTL(d time.Duration) RelayOption {
	return func(r *Relay) {
		if d >= 0 {
			r.ttl = d
		}
	}
}

const defaultRelayTTL = 5 * time.Minute

// NewRelay creates a relay to baseURL authenticated with apiKey.
func NewRelay(baseURL, apiKey string, opts ...RelayOption) *Relay {
	r := &Relay{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second},
		clock:   clock.NewSystem(),
		ttl:     defaultRelayTTL,
		cache:   make(map[string]relayEntry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ServeHTTP implements GET /concerts.
func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		writeRelayError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if r.apiKey == "" {
		writeRelayError(w, http.StatusServiceUnavailable, "event search is not configured")
		return
	}

	params := req.URL.Query()
	params.Del("app_key")
	key := params.Encode()
	q := query.FromValues(params)

	if body, ok := r.lookup(key); ok {
		appLog.Debug("relay cache hit", "location", q.Location, "date", q.DateRange)
		writeRelayBody(w, body)
		return
	}

	upstream, err := url.Parse(r.baseURL)
	if err != nil {
		appLog.Error("relay: bad upstream url", err)
		writeRelayError(w, http.StatusInternalServerError, "relay misconfigured")
		return
	}
	forwarded := url.Values{}
	for k, vs := range params {
		forwarded[k] = vs
	}
	forwarded.Set("app_key", r.apiKey)
	upstream.RawQuery = forwarded.Encode()

	upReq, err := http.NewRequestWithContext(req.Context(), http.MethodGet, upstream.String(), nil)
	if err != nil {
		writeRelayError(w, http.StatusInternalServerError, "relay misconfigured")
		return
	}

	appLog.Info("relay forward", "url", redactURL(r.baseURL), "location", q.Location, "date", q.DateRange)

	resp, err := r.client.Do(upReq)
	if err != nil {
		appLog.Error("relay upstream request failed", err, "url", redactURL(r.baseURL))
		writeRelayError(w, http.StatusBadGateway, "upstream unavailable")
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		appLog.Error("relay upstream read failed", err, "url", redactURL(r.baseURL))
		writeRelayError(w, http.StatusBadGateway, "upstream unavailable")
		return
	}
	if resp.StatusCode != http.StatusOK {
		appLog.Warn("relay upstream non-OK", "status", resp.StatusCode, "url", redactURL(r.baseURL))
		writeRelayError(w, http.StatusBadGateway, "upstream returned "+resp.Status)
		return
	}
	if !gjson.ValidBytes(body) {
		appLog.Warn("relay upstream body is not JSON", "url", redactURL(r.baseURL), "bytes", len(body))
		writeRelayError(w, http.StatusBadGateway, "upstream returned malformed JSON")
		return
	}

	r.store(key, body)
	writeRelayBody(w, body)
}

// PurgeExpired drops cache entries older than the TTL and returns how many
// were removed.
func (r *Relay) PurgeExpired() int {
	now := r.clock.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for k, e := range r.cache {
		if now.Sub(e.storedAt) >= r.ttl {
			delete(r.cache, k)
			removed++
		}
	}
	return removed
}

// CacheLen reports the number of cached bodies.
func (r *Relay) CacheLen() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}

func (r *Relay) lookup(key string) ([]byte, bool) {
	if r.ttl <= 0 {
		return nil, false
	}
	r.mu.RLock()
	e, ok := r.cache[key]
	r.mu.RUnlock()
	if !ok || r.clock.Now().Sub(e.storedAt) >= r.ttl {
		return nil, false
	}
	return e.body, true
}

func (r *Relay) store(key string, body []byte) {
	if r.ttl <= 0 {
		return
	}
	r.mu.Lock()
	r.cache[key] = relayEntry{body: body, storedAt: r.clock.Now()}
	r.mu.Unlock()
}

func writeRelayBody(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func writeRelayError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: msg})
}
