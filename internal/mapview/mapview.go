// Package mapview is the boundary to whatever draws the map. The session
// only issues the calls in Surface; the browser does the drawing.
package mapview

import "concertmap/internal/geo"

// MarkerHandle identifies a marker on a Surface. Treat it as opaque.
type MarkerHandle string

// Animation is a marker animation.
type Animation string

const (
	AnimationNone   Animation = "none"
	AnimationBounce Animation = "bounce"
	// AnimationDrop is the entry animation of a freshly created marker.
	AnimationDrop Animation = "drop"
)

// Surface is the map-rendering collaborator.
type Surface interface {
	// CreateMarker adds a hidden marker; SetMarkerVisible shows it.
	CreateMarker(pos geo.Position, title string) MarkerHandle
	SetMarkerVisible(h MarkerHandle, visible bool)
	SetMarkerAnimation(h MarkerHandle, a Animation)
	RemoveMarker(h MarkerHandle)
	PanTo(pos geo.Position)
	SetCenter(pos geo.Position)
	OpenInfoWindow(content string, h MarkerHandle)
	CloseInfoWindow()
}

// Op names a Surface call on the wire.
type Op string

const (
	OpCreateMarker    Op = "create_marker"
	OpSetVisible      Op = "set_visible"
	OpSetAnimation    Op = "set_animation"
	OpRemoveMarker    Op = "remove_marker"
	OpPanTo           Op = "pan_to"
	OpSetCenter       Op = "set_center"
	OpOpenInfoWindow  Op = "open_info_window"
	OpCloseInfoWindow Op = "close_info_window"
)

// Command is one Surface call in JSON form. Positions that are not valid
// coordinates are left out, since JSON cannot carry NaN.
type Command struct {
	Op        Op            `json:"op"`
	Marker    MarkerHandle  `json:"marker,omitempty"`
	Position  *geo.Position `json:"position,omitempty"`
	Title     string        `json:"title,omitempty"`
	Visible   *bool         `json:"visible,omitempty"`
	Animation Animation     `json:"animation,omitempty"`
	Content   string        `json:"content,omitempty"`
}

func positionPtr(p geo.Position) *geo.Position {
	if !p.Valid() {
		return nil
	}
	return &p
}

func boolPtr(b bool) *bool {
	return &b
}
