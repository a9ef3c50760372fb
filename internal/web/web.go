package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"concertmap/internal/calendar"
	"concertmap/internal/clock"
	"concertmap/internal/config"
	"concertmap/internal/finder"
	appLog "concertmap/internal/log"
	"concertmap/internal/mapview"
	"concertmap/internal/ui"
)

// Runner executes a function on the session's loop goroutine and waits
// for it. *loop.Loop satisfies it.
type Runner interface {
	Do(ctx context.Context, fn func()) error
}

// Deps are the live components the server exposes.
type Deps struct {
	Loop     Runner
	Session  *finder.Session
	Recorder *mapview.Recorder
	Relay    http.Handler
	Hub      *Hub
	Clock    clock.Clock
}

// Server serves the kiosk page, its action API, the map stream and the
// events relay.
type Server struct {
	cfg   *config.Config
	debug bool
	mux   *http.ServeMux
	deps  Deps
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, debug bool, deps Deps) *Server {
	if deps.Clock == nil {
		deps.Clock = clock.NewSystem()
	}
	if deps.Hub == nil {
		deps.Hub = NewHub()
	}
	s := &Server{
		cfg:   cfg,
		debug: debug,
		mux:   http.NewServeMux(),
		deps:  deps,
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="ConcertMap", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	if s.deps.Relay != nil {
		s.mux.Handle("/concerts", s.deps.Relay)
	}
	s.mux.HandleFunc("/preview.png", s.handlePreview)

	s.mux.HandleFunc("GET /api/state", s.handleState)
	s.mux.HandleFunc("POST /api/search", s.handleSearch)
	s.mux.HandleFunc("POST /api/filter", s.handleFilter)
	s.mux.HandleFunc("POST /api/markers/{id}/click", s.handleMarkerClick)
	s.mux.HandleFunc("POST /api/venues/{name}/click", s.handleVenueClick)
	s.mux.HandleFunc("POST /api/infowindow/close", s.handleInfoWindowClose)
	s.mux.HandleFunc("POST /api/panel/{action}", s.handlePanel)
	s.mux.HandleFunc("POST /api/gesture", s.handleGesture)
	s.mux.HandleFunc("GET /api/venues.geojson", s.handleGeoJSON)
	s.mux.HandleFunc("GET /api/venues/{name}/calendar.ics", s.handleCalendar)
	s.mux.HandleFunc("GET /ws", s.handleWS)

	// Everything else is the kiosk page and its assets.
	s.mux.Handle("/", s.staticFileServer())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// onLoop runs fn on the session loop. On failure it writes the response
// and returns false.
func (s *Server) onLoop(w http.ResponseWriter, r *http.Request, fn func()) bool {
	if s.deps.Loop == nil || s.deps.Session == nil {
		writeError(w, http.StatusServiceUnavailable, "session not available")
		return false
	}
	if err := s.deps.Loop.Do(r.Context(), fn); err != nil {
		appLog.Warn("session call failed", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusServiceUnavailable, "session not available")
		return false
	}
	return true
}

// respond pushes the new state to every browser and returns it to the caller.
func (s *Server) respond(w http.ResponseWriter, status int, snap finder.Snapshot) {
	s.deps.Hub.PushState(snap)
	writeJSON(w, status, snap)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	var snap finder.Snapshot
	if !s.onLoop(w, r, func() { snap = s.deps.Session.Snapshot() }) {
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type searchRequest struct {
	Location *string `json:"location"`
	Date     string  `json:"date"`
	Submit   bool    `json:"submit"`
}

// handleSearch edits the input fields and optionally submits them.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var date time.Time
	if req.Date != "" {
		loc := s.deps.Clock.Now().Location()
		d, err := time.ParseInLocation("2006-01-02", req.Date, loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		date = d
	}

	var (
		snap finder.Snapshot
		err  error
	)
	ok := s.onLoop(w, r, func() {
		if req.Location != nil {
			s.deps.Session.SetLocation(strings.TrimSpace(*req.Location))
		}
		if !date.IsZero() {
			s.deps.Session.SetDate(date)
		}
		if req.Submit {
			err = s.deps.Session.Submit()
		}
		snap = s.deps.Session.Snapshot()
	})
	if !ok {
		return
	}
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	s.respond(w, http.StatusOK, snap)
}

type filterRequest struct {
	Term string `json:"term"`
}

// handleFilter sets the filter term. An invalid pattern is kept and
// reported with 422 alongside the resulting state.
func (s *Server) handleFilter(w http.ResponseWriter, r *http.Request) {
	var req filterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var (
		snap finder.Snapshot
		err  error
	)
	if !s.onLoop(w, r, func() {
		err = s.deps.Session.SetFilter(req.Term)
		snap = s.deps.Session.Snapshot()
	}) {
		return
	}
	status := http.StatusOK
	if err != nil {
		status = http.StatusUnprocessableEntity
	}
	s.respond(w, status, snap)
}

func (s *Server) handleMarkerClick(w http.ResponseWriter, r *http.Request) {
	h := mapview.MarkerHandle(r.PathValue("id"))
	s.sessionAction(w, r, func(sess *finder.Session) error {
		return sess.ClickMarker(h)
	})
}

func (s *Server) handleVenueClick(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	s.sessionAction(w, r, func(sess *finder.Session) error {
		return sess.ClickVenue(name)
	})
}

func (s *Server) handleInfoWindowClose(w http.ResponseWriter, r *http.Request) {
	s.sessionAction(w, r, func(sess *finder.Session) error {
		sess.CloseInfoWindow()
		return nil
	})
}

func (s *Server) handlePanel(w http.ResponseWriter, r *http.Request) {
	a, err := ui.ParseAction(r.PathValue("action"))
	if err != nil || a == "" {
		writeError(w, http.StatusBadRequest, "unknown panel action")
		return
	}
	s.sessionAction(w, r, func(sess *finder.Session) error {
		sess.Panel(a)
		return nil
	})
}

// sessionAction runs fn on the loop and answers with the new state.
func (s *Server) sessionAction(w http.ResponseWriter, r *http.Request, fn func(*finder.Session) error) {
	var (
		snap finder.Snapshot
		err  error
	)
	if !s.onLoop(w, r, func() {
		err = fn(s.deps.Session)
		snap = s.deps.Session.Snapshot()
	}) {
		return
	}
	switch {
	case errors.Is(err, finder.ErrUnknownMarker), errors.Is(err, finder.ErrUnknownVenue):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		s.respond(w, http.StatusOK, snap)
	}
}

type gestureRequest struct {
	Zone      string `json:"zone"`
	Direction string `json:"direction"`
}

type gestureResponse struct {
	Action string          `json:"action"`
	State  finder.Snapshot `json:"state"`
}

func (s *Server) handleGesture(w http.ResponseWriter, r *http.Request) {
	var req gestureRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	zone, err := ui.ParseZone(req.Zone)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	dir, err := ui.ParseDirection(req.Direction)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var resp gestureResponse
	if !s.onLoop(w, r, func() {
		resp.Action = string(s.deps.Session.Swipe(zone, dir))
		resp.State = s.deps.Session.Snapshot()
	}) {
		return
	}
	s.deps.Hub.PushState(resp.State)
	writeJSON(w, http.StatusOK, resp)
}

// handleGeoJSON exports the markers as they are drawn, hidden ones included.
func (s *Server) handleGeoJSON(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Recorder == nil {
		writeError(w, http.StatusServiceUnavailable, "map not available")
		return
	}
	body, err := s.deps.Recorder.FeatureCollection().MarshalJSON()
	if err != nil {
		appLog.Error("failed to encode geojson", err)
		writeError(w, http.StatusInternalServerError, "failed to encode markers")
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var (
		body  string
		found bool
	)
	if !s.onLoop(w, r, func() {
		v, ok := s.deps.Session.Venue(name)
		if !ok {
			return
		}
		found = true
		body = calendar.ForVenue(v, s.deps.Clock.Now())
	}) {
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, finder.ErrUnknownVenue.Error())
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="venue.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

// handleWS streams map commands, alerts and state. A new connection first
// receives a replay of the current map followed by the current state.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.deps.Loop == nil || s.deps.Session == nil || s.deps.Recorder == nil {
		writeError(w, http.StatusServiceUnavailable, "session not available")
		return
	}
	conn, err := s.deps.Hub.upgrade(w, r)
	if err != nil {
		// Upgrade already answered the request.
		appLog.Warn("ws upgrade failed", "err", err)
		return
	}

	var c *client
	err = s.deps.Loop.Do(r.Context(), func() {
		cmds := s.deps.Recorder.Replay()
		snap := s.deps.Session.Snapshot()
		initial := make([]Message, 0, len(cmds)+1)
		for i := range cmds {
			initial = append(initial, Message{Type: MessageCommand, Command: &cmds[i]})
		}
		initial = append(initial, Message{Type: MessageState, State: &snap})
		c = s.deps.Hub.register(conn, initial)
	})
	if err != nil {
		appLog.Warn("ws register failed", "err", err)
		_ = conn.Close()
		return
	}
	appLog.Debug("ws client connected", "remote", r.RemoteAddr)
	s.deps.Hub.serve(c)
}

// staticFileServer serves the kiosk page from cfg.StaticDir.
func (s *Server) staticFileServer() http.Handler {
	dir := ""
	if s.cfg != nil {
		dir = s.cfg.StaticDir
	}
	if dir == "" {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "static UI not available", http.StatusServiceUnavailable)
		})
	}

	fileServer := http.FileServer(http.Dir(dir))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		// Unmatched /api/* requests must 404, never fall through to HTML.
		if path == "/api" || strings.HasPrefix(path, "/api/") {
			http.NotFound(w, r)
			return
		}
		fileServer.ServeHTTP(w, r)
	})
}

// handlePreview serves the last captured map PNG from disk.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	if s.cfg == nil || s.cfg.Preview.Path == "" {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, s.cfg.Preview.Path)
}

const maxBodyBytes = 64 << 10

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
