package finder

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"concertmap/internal/clock"
	"concertmap/internal/eventful"
	"concertmap/internal/fetch"
	"concertmap/internal/filter"
	"concertmap/internal/geo"
	"concertmap/internal/geocode"
	"concertmap/internal/loop"
	"concertmap/internal/mapsync"
	"concertmap/internal/mapview"
	"concertmap/internal/query"
	"concertmap/internal/ui"
)

var (
	home    = geo.Position{Lat: 38.9071923, Lng: -77.03687070000001}
	startAt = time.Date(2016, 5, 5, 18, 0, 0, 0, time.UTC)
)

type fakeSource struct {
	mu      sync.Mutex
	results map[string][]eventful.Record
	gates   map[string]chan struct{}
	queries []query.Query
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		results: map[string][]eventful.Record{},
		gates:   map[string]chan struct{}{},
	}
}

func (f *fakeSource) Search(ctx context.Context, q query.Query) ([]eventful.Record, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	gate := f.gates[q.Location]
	records := f.results[q.Location]
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return records, nil
}

func (f *fakeSource) block(location string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[location] = ch
	return ch
}

func (f *fakeSource) lastQuery() query.Query {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries[len(f.queries)-1]
}

type fakeGeocoder struct {
	positions map[string]geo.Position
}

func (g *fakeGeocoder) Geocode(_ context.Context, address string) (geo.Position, error) {
	if p, ok := g.positions[address]; ok {
		return p, nil
	}
	return geo.Position{}, &geocode.Error{Address: address, Status: geocode.StatusZeroResults}
}

type alertLog struct {
	errs []error
}

func (a *alertLog) Alert(err error) { a.errs = append(a.errs, err) }

type harness struct {
	session *Session
	source  *fakeSource
	sched   *loop.Manual
	rec     *mapview.Recorder
	alerts  *alertLog
	changes int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		source: newFakeSource(),
		sched:  loop.NewManual(startAt),
		rec:    mapview.NewRecorder(geo.Position{}),
		alerts: &alertLog{},
	}
	h.source.results["Washington, DC"] = []eventful.Record{
		{VenueName: "Blues Alley", Latitude: "38.9047", Longitude: "-77.0626", Title: "Jazz Night", HasPerformers: true, StartTime: "2016-05-05 20:00:00"},
		{VenueName: "9:30 Club", Latitude: "38.9178", Longitude: "-77.0237", Title: "Indie Rock", HasPerformers: true},
		{VenueName: "Blues Alley", Latitude: "38.9047", Longitude: "-77.0626", Title: "Swing Set", HasPerformers: true},
		{VenueName: "Open Field", Latitude: "38.9", Longitude: "-77.0", Title: "No performers"},
	}
	h.source.results["Baltimore, MD"] = []eventful.Record{
		{VenueName: "Ottobar", Latitude: "39.3187", Longitude: "-76.6183", Title: "Punk", HasPerformers: true},
	}
	h.session = New(Options{
		HomeLocation: "Washington, DC",
		Home:         home,
		Source:       h.source,
		Geocoder:     &fakeGeocoder{positions: map[string]geo.Position{"Baltimore, MD": {Lat: 39.2904, Lng: -76.6122}}},
		Surface:      h.rec,
		Scheduler:    h.sched,
		Alerter:      h.alerts,
		Clock:        clock.NewFixed(startAt),
		Changed:      func() { h.changes++ },
	})
	return h
}

// waitFor drains posted callbacks until cond holds.
func (h *harness) waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	for !cond() {
		if !h.sched.Await(2 * time.Second) {
			t.Fatalf("timed out waiting for %s", what)
		}
	}
}

func (h *harness) startAndLoad(t *testing.T) {
	t.Helper()
	h.session.Start(context.Background())
	h.waitFor(t, "initial results", func() bool { return len(h.session.Snapshot().Venues) > 0 })
}

func TestStartLoadsHomeForToday(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.startAndLoad(t)

	q := h.source.lastQuery()
	if q.Location != "Washington, DC" || q.DateRange != "2016050500-2016050500" {
		t.Fatalf("query = %+v", q)
	}
	if h.rec.Center() != home {
		t.Fatalf("center = %v, want home", h.rec.Center())
	}

	snap := h.session.Snapshot()
	if len(snap.Venues) != 2 || snap.Venues[0].Name != "Blues Alley" || snap.Venues[0].Events != 2 {
		t.Fatalf("venues = %+v", snap.Venues)
	}
	if snap.DisplayDate != "today" || snap.Loading {
		t.Fatalf("display = %q, loading = %v", snap.DisplayDate, snap.Loading)
	}
	if len(h.rec.Markers()) != 2 {
		t.Fatalf("markers = %d, want 2", len(h.rec.Markers()))
	}
	for _, m := range h.rec.Markers() {
		if !m.Visible {
			t.Fatalf("marker %q hidden with empty filter", m.Title)
		}
	}
	if h.changes == 0 {
		t.Fatal("Changed not called after results")
	}
	if _, err := json.Marshal(snap); err != nil {
		t.Fatalf("snapshot not encodable: %v", err)
	}
}

func TestSubmitResetsBeforeFetching(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.startAndLoad(t)

	gate := h.source.block("Baltimore, MD")
	h.session.OpenInput()
	h.session.SetLocation("Baltimore, MD")
	h.session.SetDate(time.Date(2016, 5, 7, 15, 0, 0, 0, time.UTC))
	if err := h.session.Submit(); err != nil {
		t.Fatalf("submit: %v", err)
	}

	snap := h.session.Snapshot()
	if len(snap.Venues) != 0 || len(h.rec.Markers()) != 0 {
		t.Fatalf("old venues survived submit: %d venues, %d markers", len(snap.Venues), len(h.rec.Markers()))
	}
	if snap.InputOpen {
		t.Fatal("input panel should close on submit")
	}
	if snap.DisplayDate != "May 7th 2016" || snap.ShownLocation != "Baltimore, MD" {
		t.Fatalf("display = %q, shown = %q", snap.DisplayDate, snap.ShownLocation)
	}
	if !snap.Loading {
		t.Fatal("search should be in flight")
	}

	h.waitFor(t, "geocode", func() bool { return h.rec.Center().Lat == 39.2904 })

	close(gate)
	h.waitFor(t, "new results", func() bool { return len(h.session.Snapshot().Venues) == 1 })
	if q := h.source.lastQuery(); q.DateRange != "2016050700-2016050700" {
		t.Fatalf("date range = %q", q.DateRange)
	}
	if h.session.Snapshot().Venues[0].Name != "Ottobar" {
		t.Fatalf("venues = %+v", h.session.Snapshot().Venues)
	}
}

func TestStaleResultsAreDropped(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	gate := h.source.block("Washington, DC")
	h.session.Start(context.Background())

	h.sched.Advance(fetch.DefaultTimeout)
	if len(h.alerts.errs) != 1 || !errors.Is(h.alerts.errs[0], fetch.ErrTimeout) {
		t.Fatalf("alerts = %v, want one timeout", h.alerts.errs)
	}

	h.session.SetLocation("Baltimore, MD")
	if err := h.session.Submit(); err != nil {
		t.Fatal(err)
	}
	h.waitFor(t, "baltimore results", func() bool { return len(h.session.Snapshot().Venues) == 1 })
	h.waitFor(t, "geocode", func() bool { return h.rec.Center().Lat == 39.2904 })

	close(gate)
	h.sched.Await(2 * time.Second)
	snap := h.session.Snapshot()
	if len(snap.Venues) != 1 || snap.Venues[0].Name != "Ottobar" {
		t.Fatalf("stale venues leaked: %+v", snap.Venues)
	}
	for _, m := range h.rec.Markers() {
		if m.Title != "Ottobar" {
			t.Fatalf("stale marker %q", m.Title)
		}
	}
}

func TestSubmitBeforeStart(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	if err := h.session.Submit(); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("err = %v", err)
	}
}

func TestFilterDrivesMarkersAndList(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.startAndLoad(t)

	if err := h.session.SetFilter("swing"); err != nil {
		t.Fatal(err)
	}
	visible := map[string]bool{}
	for _, v := range h.session.Snapshot().Venues {
		visible[v.Name] = v.Visible
		m, _ := h.rec.Marker(mapview.MarkerHandle(v.Marker))
		if m.Visible != v.Visible {
			t.Fatalf("marker for %q visible=%v, venue visible=%v", v.Name, m.Visible, v.Visible)
		}
	}
	if !visible["Blues Alley"] || visible["9:30 Club"] {
		t.Fatalf("visible = %v", visible)
	}

	err := h.session.SetFilter("(")
	var ferr *filter.Error
	if !errors.As(err, &ferr) {
		t.Fatalf("err = %v", err)
	}
	if len(h.alerts.errs) != 1 {
		t.Fatalf("alerts = %v", h.alerts.errs)
	}
	snap := h.session.Snapshot()
	if snap.FilterError == "" || snap.Filter != "(" {
		t.Fatalf("filter = %q, error = %q", snap.Filter, snap.FilterError)
	}
	for _, m := range h.rec.Markers() {
		if m.Visible {
			t.Fatalf("marker %q visible under invalid filter", m.Title)
		}
	}
}

func TestFilterSurvivesSubmit(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.startAndLoad(t)
	_ = h.session.SetFilter("jazz")

	h.session.SetLocation("Baltimore, MD")
	_ = h.session.Submit()
	h.waitFor(t, "results", func() bool { return len(h.session.Snapshot().Venues) == 1 })

	v := h.session.Snapshot().Venues[0]
	if v.Visible {
		t.Fatal("Ottobar should be hidden by the kept filter")
	}
	m, _ := h.rec.Marker(mapview.MarkerHandle(v.Marker))
	if m.Visible {
		t.Fatal("marker should be hidden by the kept filter")
	}
}

func TestClickVenue(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.startAndLoad(t)

	h.session.ToggleSidebar()
	if err := h.session.ClickVenue("9:30 Club"); err != nil {
		t.Fatal(err)
	}
	snap := h.session.Snapshot()
	if snap.SidebarOpen {
		t.Fatal("list click should toggle the sidebar closed")
	}
	if snap.Bouncing != "9:30 Club" {
		t.Fatalf("bouncing = %q", snap.Bouncing)
	}
	if snap.InfoOpen {
		t.Fatal("window opened before the delay")
	}

	h.sched.Advance(mapsync.DefaultOpenDelay)
	snap = h.session.Snapshot()
	if !snap.InfoOpen || snap.InfoVenue != "9:30 Club" {
		t.Fatalf("info open = %v on %q", snap.InfoOpen, snap.InfoVenue)
	}

	if err := h.session.ClickVenue("Nowhere"); !errors.Is(err, ErrUnknownVenue) {
		t.Fatalf("err = %v", err)
	}
}

func TestClickMarkerTogglesBounce(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.startAndLoad(t)
	venues := h.session.Snapshot().Venues
	a := mapview.MarkerHandle(venues[0].Marker)
	b := mapview.MarkerHandle(venues[1].Marker)

	_ = h.session.ClickMarker(a)
	_ = h.session.ClickMarker(b)
	if got := h.session.Snapshot().Bouncing; got != venues[1].Name {
		t.Fatalf("bouncing = %q", got)
	}
	ma, _ := h.rec.Marker(a)
	if ma.Animation != mapview.AnimationNone {
		t.Fatalf("first marker still animating: %s", ma.Animation)
	}

	_ = h.session.ClickMarker(b)
	if got := h.session.Snapshot().Bouncing; got != "" {
		t.Fatalf("second click should stop the bounce, bouncing = %q", got)
	}

	h.sched.Advance(mapsync.DefaultOpenDelay)
	if _, ok := h.rec.Window(); !ok {
		t.Fatal("marker click should still open the window")
	}

	h.session.CloseInfoWindow()
	if h.session.Snapshot().InfoOpen {
		t.Fatal("window should close")
	}

	if err := h.session.ClickMarker("missing"); !errors.Is(err, ErrUnknownMarker) {
		t.Fatalf("err = %v", err)
	}
}

func TestPanelsCloseWindow(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.startAndLoad(t)
	venues := h.session.Snapshot().Venues
	_ = h.session.ClickMarker(mapview.MarkerHandle(venues[0].Marker))
	h.sched.Advance(mapsync.DefaultOpenDelay)

	h.session.Swipe(ui.RightEdge, ui.SwipeLeft)
	snap := h.session.Snapshot()
	if !snap.InputOpen || snap.InfoOpen || snap.Bouncing != "" {
		t.Fatalf("snapshot = %+v", snap)
	}

	h.session.Panel(ui.ActionToggleSidebar)
	snap = h.session.Snapshot()
	if !snap.SidebarOpen || snap.InputOpen || snap.Arrow != "arrow-left" {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestGeocodeFailureKeepsCenter(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.startAndLoad(t)

	h.session.SetLocation("Atlantis")
	_ = h.session.Submit()
	h.waitFor(t, "geocode alert", func() bool {
		for _, err := range h.alerts.errs {
			var gerr *geocode.Error
			if errors.As(err, &gerr) {
				return true
			}
		}
		return false
	})
	if h.rec.Center() != home {
		t.Fatalf("center moved to %v", h.rec.Center())
	}
}

func TestRollDate(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.startAndLoad(t)

	if h.session.RollDate(startAt) {
		t.Fatal("same day should not roll")
	}
	next := startAt.AddDate(0, 0, 1)
	if !h.session.RollDate(next) {
		t.Fatal("next day should roll")
	}
	snap := h.session.Snapshot()
	if snap.Date != "2016-05-06" || snap.DisplayDate != "today" {
		t.Fatalf("date = %q, display = %q", snap.Date, snap.DisplayDate)
	}
	if q := h.source.lastQuery(); q.DateRange != "2016050600-2016050600" || q.Location != "Washington, DC" {
		t.Fatalf("query = %+v", q)
	}
	h.waitFor(t, "rolled results", func() bool { return len(h.session.Snapshot().Venues) == 2 })
	if len(h.alerts.errs) != 0 {
		t.Fatalf("roll over should not geocode: %v", h.alerts.errs)
	}

	h.session.SetDate(time.Date(2016, 6, 1, 0, 0, 0, 0, time.UTC))
	if h.session.RollDate(next.AddDate(0, 0, 1)) {
		t.Fatal("a date chosen by the user should not roll")
	}
}
