package mapsync

import (
	"errors"
	"math"
	"testing"
	"time"

	"concertmap/internal/eventful"
	"concertmap/internal/geo"
	"concertmap/internal/loop"
	"concertmap/internal/mapview"
	"concertmap/internal/venue"
)

func setup(t *testing.T, names ...string) (*Synchronizer, *mapview.Recorder, *loop.Manual, []*venue.Venue) {
	t.Helper()
	rec := mapview.NewRecorder(geo.Position{Lat: 38.9, Lng: -77.0}, mapview.WithCallLog())
	sched := loop.NewManual(time.Date(2016, 5, 5, 20, 0, 0, 0, time.UTC))
	s := New(rec, sched, 0)

	records := make([]eventful.Record, 0, len(names))
	for i, n := range names {
		records = append(records, eventful.Record{
			VenueName:     n,
			Latitude:      "38.9",
			Longitude:     []string{"-77.01", "-77.02", "-77.03", "-77.04"}[i%4],
			HasPerformers: true,
		})
	}
	venues := venue.NewCollection().Aggregate(records, nil)
	for _, v := range venues {
		v.SetVisible(true)
		s.Attach(v)
	}
	return s, rec, sched, venues
}

func bouncingCount(venues []*venue.Venue) int {
	n := 0
	for _, v := range venues {
		if v.Bouncing() {
			n++
		}
	}
	return n
}

func TestAttachMirrorsVisibility(t *testing.T) {
	t.Parallel()

	s, rec, _, venues := setup(t, "A", "B")
	a, b := venues[0], venues[1]

	b.SetVisible(false)
	s.VisibilityChanged(b)

	ma, _ := rec.Marker(a.Marker())
	mb, _ := rec.Marker(b.Marker())
	if !ma.Visible || mb.Visible {
		t.Fatalf("visible = %v/%v, want true/false", ma.Visible, mb.Visible)
	}

	before := len(rec.Markers())
	s.Attach(a)
	if len(rec.Markers()) != before {
		t.Fatal("re-attaching must not create a second marker")
	}
}

func TestAttachHiddenVenue(t *testing.T) {
	t.Parallel()

	rec := mapview.NewRecorder(geo.Position{})
	s := New(rec, loop.NewManual(time.Time{}), 0)
	v := venue.New(eventful.Record{VenueName: "Hidden", Latitude: "1", Longitude: "1"})
	s.Attach(v)

	m, ok := rec.Marker(v.Marker())
	if !ok || m.Visible {
		t.Fatalf("marker = %+v, want hidden", m)
	}
}

func TestSingleBounce(t *testing.T) {
	t.Parallel()

	s, rec, _, venues := setup(t, "A", "B", "C")
	a, b := venues[0], venues[1]

	if !s.ToggleBounce(a) {
		t.Fatal("A should start bouncing")
	}
	if !s.ToggleBounce(b) {
		t.Fatal("B should start bouncing")
	}
	if a.Bouncing() || !b.Bouncing() || bouncingCount(venues) != 1 {
		t.Fatalf("bouncing a=%v b=%v count=%d", a.Bouncing(), b.Bouncing(), bouncingCount(venues))
	}
	if m, _ := rec.Marker(a.Marker()); m.Animation != mapview.AnimationNone {
		t.Fatalf("A animation = %s", m.Animation)
	}
	if s.Bouncing() != b {
		t.Fatal("Bouncing() should be B")
	}

	if s.ToggleBounce(b) {
		t.Fatal("toggling a bouncing marker should stop it")
	}
	if bouncingCount(venues) != 0 || s.Bouncing() != nil {
		t.Fatal("nothing should bounce")
	}
	if m, _ := rec.Marker(b.Marker()); m.Animation != mapview.AnimationNone {
		t.Fatalf("B animation = %s", m.Animation)
	}
}

func TestFocusOrdering(t *testing.T) {
	t.Parallel()

	s, rec, sched, venues := setup(t, "A")
	a := venues[0]
	start := len(rec.Calls())

	if err := s.Focus(a); err != nil {
		t.Fatalf("focus: %v", err)
	}
	calls := rec.Calls()[start:]
	if len(calls) != 2 || calls[0] != mapview.OpCloseInfoWindow || calls[1] != mapview.OpPanTo {
		t.Fatalf("calls = %v, want [close pan]", calls)
	}
	if rec.Center() != a.Position {
		t.Fatalf("center = %v, want %v", rec.Center(), a.Position)
	}

	sched.Advance(DefaultOpenDelay - time.Millisecond)
	if s.InfoOpen() {
		t.Fatal("window opened before the delay")
	}
	if !s.Pending() {
		t.Fatal("open should be pending")
	}

	sched.Advance(time.Millisecond)
	w, ok := rec.Window()
	if !ok || w.Marker != a.Marker() || s.InfoVenue() != a {
		t.Fatalf("window = %+v, %v", w, ok)
	}
	calls = rec.Calls()[start:]
	if calls[len(calls)-1] != mapview.OpOpenInfoWindow {
		t.Fatalf("last call = %s", calls[len(calls)-1])
	}
}

func TestFocusSupersedesPendingOpen(t *testing.T) {
	t.Parallel()

	s, rec, sched, venues := setup(t, "A", "B")
	a, b := venues[0], venues[1]

	_ = s.Focus(a)
	sched.Advance(300 * time.Millisecond)
	_ = s.Focus(b)
	sched.Advance(time.Second)

	w, ok := rec.Window()
	if !ok || w.Marker != b.Marker() {
		t.Fatalf("window on %q, want B", w.Marker)
	}
	opens := 0
	for _, c := range rec.Calls() {
		if c == mapview.OpOpenInfoWindow {
			opens++
		}
	}
	if opens != 1 {
		t.Fatalf("opens = %d, want 1", opens)
	}
}

func TestFocusClosesOpenWindowFirst(t *testing.T) {
	t.Parallel()

	s, rec, sched, venues := setup(t, "A", "B")
	a, b := venues[0], venues[1]

	_ = s.Focus(a)
	sched.Advance(DefaultOpenDelay)
	if s.InfoVenue() != a {
		t.Fatal("A should be open")
	}

	_ = s.Focus(b)
	if s.InfoOpen() {
		t.Fatal("old window should close immediately")
	}
	if _, ok := rec.Window(); ok {
		t.Fatal("surface still shows the old window")
	}
	sched.Advance(DefaultOpenDelay)
	if s.InfoVenue() != b {
		t.Fatal("B should be open")
	}
}

func TestFocusWithoutPositionSkipsPan(t *testing.T) {
	t.Parallel()

	rec := mapview.NewRecorder(geo.Position{Lat: 1, Lng: 1}, mapview.WithCallLog())
	sched := loop.NewManual(time.Time{})
	s := New(rec, sched, 10*time.Millisecond)
	v := venue.New(eventful.Record{VenueName: "Nowhere", Latitude: "x"})
	if !math.IsNaN(v.Position.Lat) {
		t.Fatal("expected NaN latitude")
	}
	s.Attach(v)

	_ = s.Focus(v)
	for _, c := range rec.Calls() {
		if c == mapview.OpPanTo {
			t.Fatal("pan issued for an invalid position")
		}
	}
	sched.Advance(10 * time.Millisecond)
	if !s.InfoOpen() {
		t.Fatal("window should still open")
	}
}

func TestFocusRenderError(t *testing.T) {
	t.Parallel()

	s, rec, sched, venues := setup(t, "A")
	boom := errors.New("boom")
	s.render = func(*venue.Venue) (string, error) { return "", boom }

	if err := s.Focus(venues[0]); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	sched.Advance(time.Second)
	if _, ok := rec.Window(); ok {
		t.Fatal("no window should open after a render error")
	}
}

func TestCloseInfoWindowStopsBouncesAndPendingOpen(t *testing.T) {
	t.Parallel()

	s, rec, sched, venues := setup(t, "A")
	a := venues[0]
	s.ToggleBounce(a)
	_ = s.Focus(a)

	s.CloseInfoWindow()
	sched.Advance(time.Second)

	if s.InfoOpen() || s.Pending() {
		t.Fatal("window should stay closed")
	}
	if _, ok := rec.Window(); ok {
		t.Fatal("surface window should stay closed")
	}
	if a.Bouncing() {
		t.Fatal("bounce should stop")
	}
	if sched.PendingTimers() != 0 {
		t.Fatalf("pending timers = %d", sched.PendingTimers())
	}
}

func TestInfoWindowClosedByUser(t *testing.T) {
	t.Parallel()

	s, _, sched, venues := setup(t, "A")
	s.ToggleBounce(venues[0])
	_ = s.Focus(venues[0])
	sched.Advance(DefaultOpenDelay)

	s.InfoWindowClosedByUser()
	if s.InfoOpen() || venues[0].Bouncing() {
		t.Fatal("close icon should close the window and stop the bounce")
	}
}

func TestClearRemovesEverything(t *testing.T) {
	t.Parallel()

	s, rec, sched, venues := setup(t, "A", "B", "C")
	s.ToggleBounce(venues[1])
	_ = s.Focus(venues[2])

	s.Clear()
	sched.Advance(time.Second)

	if n := len(rec.Markers()); n != 0 {
		t.Fatalf("markers left = %d", n)
	}
	if s.MarkerCount() != 0 || s.Bouncing() != nil || s.InfoOpen() || s.Pending() {
		t.Fatal("synchronizer state not cleared")
	}
	if _, ok := rec.Window(); ok {
		t.Fatal("pending open fired after clear")
	}
	if venues[1].Bouncing() {
		t.Fatal("bouncing flag left on a cleared venue")
	}
}
