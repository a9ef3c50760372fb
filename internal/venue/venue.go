// Package venue groups raw search records into unique venues.
package venue

import (
	"time"

	"concertmap/internal/eventful"
	"concertmap/internal/geo"
	"concertmap/internal/mapview"
)

// shortNameLen is the list label width in characters.
const shortNameLen = 35

// Layouts tried, in order, for a record's start_time.
var startTimeLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02",
}

// Event is one performance. It is never modified after creation.
type Event struct {
	StartTime time.Time
	// RawStartTime is the source string, kept for display when it could
	// not be parsed.
	RawStartTime string
	Title        string
	DetailURL    string
	// ImageURL is empty when the source had no image.
	ImageURL string
}

// NewEvent builds an Event from a raw record.
func NewEvent(rec eventful.Record) Event {
	return Event{
		StartTime:    parseStartTime(rec.StartTime),
		RawStartTime: rec.StartTime,
		Title:        rec.Title,
		DetailURL:    rec.URL,
		ImageURL:     rec.ImageURL,
	}
}

func parseStartTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range startTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Venue is a physical place with one or more events. Identity is Name.
type Venue struct {
	Name      string
	ShortName string
	Position  geo.Position

	events      []Event
	title       string
	description string

	visible  bool
	marker   mapview.MarkerHandle
	bouncing bool
}

// New creates a venue from its first record.
func New(rec eventful.Record) *Venue {
	return &Venue{
		Name:        rec.VenueName,
		ShortName:   truncate(rec.VenueName, shortNameLen),
		Position:    geo.Parse(rec.Latitude, rec.Longitude),
		events:      []Event{NewEvent(rec)},
		title:       rec.Title,
		description: rec.Description,
	}
}

// merge appends a later record for the same venue.
func (v *Venue) merge(rec eventful.Record) {
	v.events = append(v.events, NewEvent(rec))
	v.title = v.title + " " + rec.Title
	v.description = v.description + " " + rec.Description
}

// Events returns the venue's events in arrival order.
func (v *Venue) Events() []Event {
	out := make([]Event, len(v.events))
	copy(out, v.events)
	return out
}

// EventCount is len(Events()) without the copy.
func (v *Venue) EventCount() int {
	return len(v.events)
}

// SearchableTitle is every merged record title, space-joined.
func (v *Venue) SearchableTitle() string {
	return v.title
}

// SearchableDescription is every merged record description, space-joined.
func (v *Venue) SearchableDescription() string {
	return v.description
}

// Visible is the last filter result for this venue.
func (v *Venue) Visible() bool {
	return v.visible
}

// SetVisible records a filter result. It reports whether the value changed.
func (v *Venue) SetVisible(visible bool) bool {
	if v.visible == visible {
		return false
	}
	v.visible = visible
	return true
}

// Marker is the map handle, empty until AttachMarker.
func (v *Venue) Marker() mapview.MarkerHandle {
	return v.marker
}

// AttachMarker sets the marker handle once. Later calls are ignored and
// return false.
func (v *Venue) AttachMarker(h mapview.MarkerHandle) bool {
	if v.marker != "" {
		return false
	}
	v.marker = h
	return true
}

// Bouncing reports whether this venue's marker is animating.
func (v *Venue) Bouncing() bool {
	return v.bouncing
}

// SetBouncing is used by the marker synchronizer, which owns the
// one-bouncing-venue rule.
func (v *Venue) SetBouncing(b bool) {
	v.bouncing = b
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
