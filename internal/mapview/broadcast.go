package mapview

import "concertmap/internal/geo"

// Publisher receives every command a Broadcaster forwards.
type Publisher interface {
	Publish(cmd Command)
}

// Broadcaster is a Surface that applies each call to an inner Surface and
// then publishes it, so connected browsers mirror the session's map.
type Broadcaster struct {
	inner Surface
	pub   Publisher
}

// NewBroadcaster wraps inner. pub may be nil until a hub exists.
func NewBroadcaster(inner Surface, pub Publisher) *Broadcaster {
	return &Broadcaster{inner: inner, pub: pub}
}

func (b *Broadcaster) publish(cmd Command) {
	if b.pub != nil {
		b.pub.Publish(cmd)
	}
}

func (b *Broadcaster) CreateMarker(pos geo.Position, title string) MarkerHandle {
	h := b.inner.CreateMarker(pos, title)
	b.publish(Command{Op: OpCreateMarker, Marker: h, Position: positionPtr(pos), Title: title, Visible: boolPtr(false)})
	return h
}

func (b *Broadcaster) SetMarkerVisible(h MarkerHandle, visible bool) {
	b.inner.SetMarkerVisible(h, visible)
	b.publish(Command{Op: OpSetVisible, Marker: h, Visible: boolPtr(visible)})
}

func (b *Broadcaster) SetMarkerAnimation(h MarkerHandle, a Animation) {
	b.inner.SetMarkerAnimation(h, a)
	b.publish(Command{Op: OpSetAnimation, Marker: h, Animation: a})
}

func (b *Broadcaster) RemoveMarker(h MarkerHandle) {
	b.inner.RemoveMarker(h)
	b.publish(Command{Op: OpRemoveMarker, Marker: h})
}

func (b *Broadcaster) PanTo(pos geo.Position) {
	b.inner.PanTo(pos)
	b.publish(Command{Op: OpPanTo, Position: positionPtr(pos)})
}

func (b *Broadcaster) SetCenter(pos geo.Position) {
	b.inner.SetCenter(pos)
	b.publish(Command{Op: OpSetCenter, Position: positionPtr(pos)})
}

func (b *Broadcaster) OpenInfoWindow(content string, h MarkerHandle) {
	b.inner.OpenInfoWindow(content, h)
	b.publish(Command{Op: OpOpenInfoWindow, Marker: h, Content: content})
}

func (b *Broadcaster) CloseInfoWindow() {
	b.inner.CloseInfoWindow()
	b.publish(Command{Op: OpCloseInfoWindow})
}
