// Package finder is the kiosk session: it turns user actions into queries,
// feeds results through aggregation and filtering, and keeps the map, the
// venue list and the panels consistent.
//
// A Session is not safe for concurrent use. Every method, and every
// callback it schedules, runs on the loop goroutine.
package finder

import (
	"context"
	"errors"
	"time"

	"concertmap/internal/clock"
	"concertmap/internal/eventful"
	"concertmap/internal/fetch"
	"concertmap/internal/filter"
	"concertmap/internal/geo"
	"concertmap/internal/geocode"
	appLog "concertmap/internal/log"
	"concertmap/internal/loop"
	"concertmap/internal/mapsync"
	"concertmap/internal/mapview"
	"concertmap/internal/query"
	"concertmap/internal/ui"
	"concertmap/internal/venue"
)

// todayLabel is the header text until the user picks a date.
const todayLabel = "today"

var (
	ErrUnknownMarker = errors.New("finder: unknown marker")
	ErrUnknownVenue  = errors.New("finder: unknown venue")
	ErrNotStarted    = errors.New("finder: session not started")
)

// Alerter shows a failure to the user.
type Alerter interface {
	Alert(err error)
}

// Options configures a Session. Source, Surface and Scheduler are required.
type Options struct {
	HomeLocation string
	Home         geo.Position

	Source    fetch.Source
	Geocoder  geocode.Geocoder
	Surface   mapview.Surface
	Scheduler loop.Scheduler
	Alerter   Alerter
	Clock     clock.Clock

	FetchTimeout    time.Duration
	InfoWindowDelay time.Duration
	GeocodeTimeout  time.Duration

	// Changed is called on the loop goroutine after state changed
	// without a direct user action: results arrived or the map moved.
	Changed func()
}

// Session is one kiosk's state.
type Session struct {
	opts Options
	ctx  context.Context

	collection *venue.Collection
	filter     *filter.Engine
	sync       *mapsync.Synchronizer
	fetcher    *fetch.Fetcher
	panels     *ui.Machine

	location      string
	date          time.Time
	shownLocation string
	shownDate     time.Time
	displayDate   string
	center        geo.Position

	geocodeGen uint64
	started    bool
}

// New builds a session. Nothing is fetched until Start.
func New(opts Options) *Session {
	if opts.Clock == nil {
		opts.Clock = clock.NewSystem()
	}
	if opts.Alerter == nil {
		opts.Alerter = logAlerter{}
	}
	if opts.GeocodeTimeout <= 0 {
		opts.GeocodeTimeout = 10 * time.Second
	}

	s := &Session{
		opts:          opts,
		ctx:           context.Background(),
		collection:    venue.NewCollection(),
		location:      opts.HomeLocation,
		shownLocation: opts.HomeLocation,
		displayDate:   todayLabel,
		center:        opts.Home,
	}
	s.sync = mapsync.New(opts.Surface, opts.Scheduler, opts.InfoWindowDelay)
	s.filter = filter.New(s.sync)
	s.fetcher = fetch.New(opts.Source, opts.Scheduler, opts.Alerter, opts.FetchTimeout)
	s.panels = ui.New(s.sync)
	return s
}

// Start centers the map on home and requests today's events there. ctx
// bounds every background request the session makes.
func (s *Session) Start(ctx context.Context) {
	if ctx != nil {
		s.ctx = ctx
	}
	s.started = true
	s.date = dateOf(s.opts.Clock.Now())
	s.opts.Surface.SetCenter(s.center)

	q := query.Build(s.location, s.date)
	s.shownLocation = s.location
	s.shownDate = s.date
	appLog.Info("session started", "location", s.location, "date", q.DateRange)
	s.fetcher.Start(s.ctx, q, s.applyRecords)
}

// SetLocation updates the location field. Nothing is fetched until Submit.
func (s *Session) SetLocation(location string) {
	s.location = location
}

// SetDate updates the date field. Only the calendar day is kept.
func (s *Session) SetDate(date time.Time) {
	s.date = dateOf(date)
}

// Submit replaces the venue set with results for the current location and
// date: markers and list are cleared first, then the search starts, the map
// is re-centered and the input panel closes.
func (s *Session) Submit() error {
	return s.submit(true)
}

func (s *Session) submit(recenter bool) error {
	if !s.started {
		return ErrNotStarted
	}

	s.reset()

	q := query.Build(s.location, s.date)
	s.fetcher.Start(s.ctx, q, s.applyRecords)
	if recenter {
		s.geocode(s.location)
	}

	s.displayDate = query.DisplayDate(s.date)
	s.shownLocation = s.location
	s.shownDate = s.date
	s.panels.CloseInput()
	return nil
}

// reset clears markers before dropping the venues they belong to.
func (s *Session) reset() {
	s.sync.Clear()
	s.collection.Reset()
	s.filter.Reset()
}

func (s *Session) applyRecords(records []eventful.Record) {
	s.collection.Aggregate(records, observer{s})
	s.changed()
}

// observer wires aggregation into filtering and markers.
type observer struct {
	s *Session
}

// VenueAdded registers a new venue for filtering, then gives it a marker
// that already reflects the filter result.
func (o observer) VenueAdded(v *venue.Venue) {
	o.s.filter.Register(v)
	o.s.sync.Attach(v)
}

func (o observer) VenueChanged(v *venue.Venue) {
	o.s.filter.Refresh(v)
}

func (s *Session) geocode(address string) {
	if s.opts.Geocoder == nil {
		return
	}
	s.geocodeGen++
	gen := s.geocodeGen
	ctx, cancel := context.WithTimeout(s.ctx, s.opts.GeocodeTimeout)

	go func() {
		defer cancel()
		pos, err := s.opts.Geocoder.Geocode(ctx, address)
		s.opts.Scheduler.Post(func() {
			if gen != s.geocodeGen {
				return
			}
			if err != nil {
				appLog.Warn("geocode failed, map center unchanged", "address", address, "err", err)
				s.opts.Alerter.Alert(err)
				return
			}
			s.center = pos
			s.opts.Surface.SetCenter(pos)
			s.changed()
		})
	}()
}

// SetFilter applies a new filter term. An invalid pattern hides every
// venue, is alerted, and is returned.
func (s *Session) SetFilter(term string) error {
	if err := s.filter.SetTerm(term); err != nil {
		s.opts.Alerter.Alert(err)
		return err
	}
	return nil
}

// ClickMarker toggles the marker's bounce and opens its info window.
func (s *Session) ClickMarker(h mapview.MarkerHandle) error {
	v, ok := s.collection.ByMarker(h)
	if !ok {
		return ErrUnknownMarker
	}
	s.sync.ToggleBounce(v)
	return s.sync.Focus(v)
}

// ClickVenue handles a click on a list entry: the sidebar toggles, then
// the venue bounces and its window opens.
func (s *Session) ClickVenue(name string) error {
	v, ok := s.collection.Lookup(name)
	if !ok {
		return ErrUnknownVenue
	}
	s.panels.ToggleSidebar()
	s.sync.ToggleBounce(v)
	return s.sync.Focus(v)
}

// CloseInfoWindow handles the window's own close icon.
func (s *Session) CloseInfoWindow() {
	s.sync.InfoWindowClosedByUser()
}

func (s *Session) ToggleSidebar() {
	s.panels.ToggleSidebar()
}

func (s *Session) OpenInput() {
	s.panels.OpenInput()
}

func (s *Session) CloseInput() {
	s.panels.CloseInput()
}

// Panel runs a named panel action.
func (s *Session) Panel(a ui.Action) {
	s.panels.Do(a)
}

// Swipe runs the transition bound to an edge swipe.
func (s *Session) Swipe(zone ui.Zone, dir ui.Direction) ui.Action {
	return s.panels.Swipe(zone, dir)
}

// RollDate moves a kiosk left on yesterday to today and searches again.
// It does nothing if the user chose another day. It reports whether a new
// search started.
func (s *Session) RollDate(today time.Time) bool {
	if !s.started {
		return false
	}
	today = dateOf(today)
	yesterday := today.AddDate(0, 0, -1)
	if !sameDay(s.shownDate, yesterday) || !sameDay(s.date, s.shownDate) {
		return false
	}

	keepLabel := s.displayDate == todayLabel
	s.location = s.shownLocation
	s.date = today
	if err := s.submit(false); err != nil {
		return false
	}
	if keepLabel {
		s.displayDate = todayLabel
	}
	appLog.Info("date rolled over", "date", today.Format("2006-01-02"))
	s.changed()
	return true
}

// Venue looks up a venue of the current result set.
func (s *Session) Venue(name string) (*venue.Venue, bool) {
	return s.collection.Lookup(name)
}

func (s *Session) changed() {
	if s.opts.Changed != nil {
		s.opts.Changed()
	}
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

type logAlerter struct{}

func (logAlerter) Alert(err error) {
	appLog.Warn("alert", "err", err)
}
