package mapview

import (
	"sync"

	"github.com/google/uuid"
	geojson "github.com/paulmach/go.geojson"

	"concertmap/internal/geo"
)

// Marker is the Recorder's view of one marker.
type Marker struct {
	Handle    MarkerHandle
	Position  geo.Position
	Title     string
	Visible   bool
	Animation Animation
}

// InfoWindow is the open window, if any.
type InfoWindow struct {
	Marker  MarkerHandle
	Content string
}

// Recorder is an in-memory Surface. It is the source of truth for what a
// newly connected browser must draw, and the fake map in tests.
type Recorder struct {
	mu      sync.RWMutex
	newID   func() string
	markers map[MarkerHandle]*Marker
	order   []MarkerHandle
	center  geo.Position
	window  *InfoWindow

	logCalls bool
	calls    []Op
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithCallLog keeps every Surface call for Calls. The log grows without
// bound, so it is meant for tests.
func WithCallLog() RecorderOption {
	return func(r *Recorder) {
		r.logCalls = true
	}
}

// NewRecorder returns an empty map centered on center.
func NewRecorder(center geo.Position, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		newID:   uuid.NewString,
		markers: make(map[MarkerHandle]*Marker),
		center:  center,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Recorder) record(op Op) {
	if r.logCalls {
		r.calls = append(r.calls, op)
	}
}

// CreateMarker adds a hidden marker. The caller shows it once it knows the
// marker's visibility.

func (r *Recorder) CreateMarker(pos geo.Position, title string) MarkerHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := MarkerHandle(r.newID())
	r.markers[h] = &Marker{Handle: h, Position: pos, Title: title, Visible: false, Animation: AnimationDrop}
	r.order = append(r.order, h)
	r.record(OpCreateMarker)
	return h
}

func (r *Recorder) SetMarkerVisible(h MarkerHandle, visible bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.markers[h]; ok {
		m.Visible = visible
	}
	r.record(OpSetVisible)
}

func (r *Recorder) SetMarkerAnimation(h MarkerHandle, a Animation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.markers[h]; ok {
		m.Animation = a
	}
	r.record(OpSetAnimation)
}

func (r *Recorder) RemoveMarker(h MarkerHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.markers, h)
	for i, other := range r.order {
		if other == h {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if r.window != nil && r.window.Marker == h {
		r.window = nil
	}
	r.record(OpRemoveMarker)
}

func (r *Recorder) PanTo(pos geo.Position) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.center = pos
	r.record(OpPanTo)
}

func (r *Recorder) SetCenter(pos geo.Position) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.center = pos
	r.record(OpSetCenter)
}

func (r *Recorder) OpenInfoWindow(content string, h MarkerHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.window = &InfoWindow{Marker: h, Content: content}
	r.record(OpOpenInfoWindow)
}

func (r *Recorder) CloseInfoWindow() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.window = nil
	r.record(OpCloseInfoWindow)
}

// Marker returns a copy of one marker.
func (r *Recorder) Marker(h MarkerHandle) (Marker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.markers[h]
	if !ok {
		return Marker{}, false
	}
	return *m, true
}

// Markers returns copies of all markers in creation order.
func (r *Recorder) Markers() []Marker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Marker, 0, len(r.order))
	for _, h := range r.order {
		out = append(out, *r.markers[h])
	}
	return out
}

// Window returns the open info window.
func (r *Recorder) Window() (InfoWindow, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.window == nil {
		return InfoWindow{}, false
	}
	return *r.window, true
}

// Center is the current map center.
func (r *Recorder) Center() geo.Position {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.center
}

// Calls lists every Surface call received, in order. It is empty unless
// the Recorder was built WithCallLog.
func (r *Recorder) Calls() []Op {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Op, len(r.calls))
	copy(out, r.calls)
	return out
}

// Replay describes the current map as the commands that would rebuild it.
func (r *Recorder) Replay() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmds := []Command{{Op: OpSetCenter, Position: positionPtr(r.center)}}
	for _, h := range r.order {
		m := r.markers[h]
		cmds = append(cmds,
			Command{Op: OpCreateMarker, Marker: h, Position: positionPtr(m.Position), Title: m.Title, Visible: boolPtr(false)},
			Command{Op: OpSetVisible, Marker: h, Visible: boolPtr(m.Visible)},
			Command{Op: OpSetAnimation, Marker: h, Animation: m.Animation},
		)
	}
	if r.window != nil {
		cmds = append(cmds, Command{Op: OpOpenInfoWindow, Marker: r.window.Marker, Content: r.window.Content})
	}
	return cmds
}

// FeatureCollection renders the markers as GeoJSON points. Markers without
// a valid position are left out.
func (r *Recorder) FeatureCollection() *geojson.FeatureCollection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fc := geojson.NewFeatureCollection()
	for _, h := range r.order {
		m := r.markers[h]
		if !m.Position.Valid() {
			continue
		}
		f := geojson.NewPointFeature([]float64{m.Position.Lng, m.Position.Lat})
		f.ID = string(m.Handle)
		f.SetProperty("title", m.Title)
		f.SetProperty("visible", m.Visible)
		f.SetProperty("animation", string(m.Animation))
		f.SetProperty("info_open", r.window != nil && r.window.Marker == h)
		fc.AddFeature(f)
	}
	return fc
}
