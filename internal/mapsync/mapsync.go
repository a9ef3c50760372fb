// Package mapsync keeps the map surface in step with the venue collection.
//
// It owns the two session-wide slots: the one bouncing venue and the one
// open info window. All methods must be called from the loop goroutine.
package mapsync

import (
	"time"

	"concertmap/internal/infowindow"
	appLog "concertmap/internal/log"
	"concertmap/internal/loop"
	"concertmap/internal/mapview"
	"concertmap/internal/venue"
)

// DefaultOpenDelay is the pause between panning and opening a window.
const DefaultOpenDelay = 600 * time.Millisecond

// Synchronizer drives a mapview.Surface from venue state.
type Synchronizer struct {
	surface mapview.Surface
	sched   loop.Scheduler
	delay   time.Duration
	render  func(*venue.Venue) (string, error)

	attached []*venue.Venue
	bouncing *venue.Venue
	info     *venue.Venue

	pending      loop.Timer
	pendingVenue *venue.Venue
	openSeq      uint64
}

// New returns a synchronizer. A non-positive delay uses DefaultOpenDelay.
func New(surface mapview.Surface, sched loop.Scheduler, delay time.Duration) *Synchronizer {
	if delay <= 0 {
		delay = DefaultOpenDelay
	}
	return &Synchronizer{
		surface: surface,
		sched:   sched,
		delay:   delay,
		render:  infowindow.Render,
	}
}

// Attach creates v's marker and shows or hides it per v.Visible(). A venue
// that already has a marker is left alone.
func (s *Synchronizer) Attach(v *venue.Venue) {
	if v.Marker() != "" {
		return
	}
	h := s.surface.CreateMarker(v.Position, v.Name)
	v.AttachMarker(h)
	s.attached = append(s.attached, v)
	if !v.Position.Valid() {
		appLog.Warn("venue has no usable position", "venue", v.Name, "position", v.Position.String())
	}
	s.Apply(v)
}

// Apply pushes v.Visible() to its marker.
func (s *Synchronizer) Apply(v *venue.Venue) {
	h := v.Marker()
	if h == "" {
		return
	}
	s.surface.SetMarkerVisible(h, v.Visible())
}

// VisibilityChanged lets the filter engine drive markers directly.
func (s *Synchronizer) VisibilityChanged(v *venue.Venue) {
	s.Apply(v)
}

// ToggleBounce stops v if it is bouncing. Otherwise it stops whichever
// venue is bouncing and starts v. It reports whether v is now bouncing.
func (s *Synchronizer) ToggleBounce(v *venue.Venue) bool {
	if v.Bouncing() {
		s.setAnimation(v, false)
		s.bouncing = nil
		return false
	}
	s.StopBounces()
	s.setAnimation(v, true)
	s.bouncing = v
	return true
}

// StopBounces stops the bouncing venue, if any.
func (s *Synchronizer) StopBounces() {
	if s.bouncing == nil {
		return
	}
	s.setAnimation(s.bouncing, false)
	s.bouncing = nil
}

func (s *Synchronizer) setAnimation(v *venue.Venue, bounce bool) {
	v.SetBouncing(bounce)
	if v.Marker() == "" {
		return
	}
	a := mapview.AnimationNone
	if bounce {
		a = mapview.AnimationBounce
	}
	s.surface.SetMarkerAnimation(v.Marker(), a)
}

// Focus closes any open window, pans to v and opens v's window once the
// delay has passed. A later Focus, Clear or close cancels the pending open.
func (s *Synchronizer) Focus(v *venue.Venue) error {
	s.closeWindow()

	content, err := s.render(v)
	if err != nil {
		appLog.Error("info window render failed", err, "venue", v.Name)
		return err
	}

	if v.Position.Valid() {
		s.surface.PanTo(v.Position)
	}

	s.openSeq++
	seq := s.openSeq
	s.pendingVenue = v
	s.pending = s.sched.AfterFunc(s.delay, func() {
		if seq != s.openSeq || s.pendingVenue != v {
			return
		}
		s.pending = nil
		s.pendingVenue = nil
		s.surface.OpenInfoWindow(content, v.Marker())
		s.info = v
	})
	return nil
}

// CloseInfoWindow closes the window, cancels a pending open and stops
// bounces.
func (s *Synchronizer) CloseInfoWindow() {
	s.closeWindow()
	s.StopBounces()
}

// InfoWindowClosedByUser records that the browser closed the window from
// its own close icon.
func (s *Synchronizer) InfoWindowClosedByUser() {
	appLog.Debug("info window closed from map", "venue", s.infoName())
	s.CloseInfoWindow()
}

func (s *Synchronizer) closeWindow() {
	s.cancelPending()
	s.surface.CloseInfoWindow()
	s.info = nil
}

func (s *Synchronizer) cancelPending() {
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
	s.pendingVenue = nil
	s.openSeq++
}

// Clear removes every marker this synchronizer created and empties both
// slots. Call it before the venue collection is discarded.
func (s *Synchronizer) Clear() {
	s.cancelPending()
	if s.info != nil {
		s.surface.CloseInfoWindow()
		s.info = nil
	}
	if s.bouncing != nil {
		s.bouncing.SetBouncing(false)
		s.bouncing = nil
	}
	for _, v := range s.attached {
		s.surface.RemoveMarker(v.Marker())
	}
	appLog.Debug("markers cleared", "count", len(s.attached))
	s.attached = nil
}

// Bouncing returns the bouncing venue, or nil.
func (s *Synchronizer) Bouncing() *venue.Venue {
	return s.bouncing
}

// InfoOpen reports whether an info window is showing.
func (s *Synchronizer) InfoOpen() bool {
	return s.info != nil
}

// InfoVenue returns the venue whose window is open, or nil.
func (s *Synchronizer) InfoVenue() *venue.Venue {
	return s.info
}

// Pending reports whether a window is waiting to open.
func (s *Synchronizer) Pending() bool {
	return s.pendingVenue != nil
}

// MarkerCount is the number of markers currently on the surface.
func (s *Synchronizer) MarkerCount() int {
	return len(s.attached)
}

func (s *Synchronizer) infoName() string {
	if s.info == nil {
		return ""
	}
	return s.info.Name
}
