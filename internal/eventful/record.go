package eventful

import (
	"errors"

	"github.com/tidwall/gjson"

	appLog "concertmap/internal/log"
)

// ErrMalformed is returned when a search body is not JSON.
var ErrMalformed = errors.New("eventful: malformed search response")

// Record is one raw event as returned by the search API, reduced to the
// fields the venue aggregation reads. Numeric fields stay strings; the
// consumer decides how to parse them.
type Record struct {
	VenueName   string
	Latitude    string
	Longitude   string
	Title       string
	Description string
	StartTime   string
	URL         string
	// ImageURL is image.medium.url, or empty when the source had no image.
	ImageURL string
	// HasPerformers is true when the performers field is present and
	// non-empty.
	HasPerformers bool
}

// Decode parses a search response body.
//
// The API is loose about shapes: "events" is null when nothing matched and
// "event" is a bare object when exactly one event matched. Both collapse to
// a slice here.
func Decode(body []byte) ([]Record, error) {
	if !gjson.ValidBytes(body) {
		return nil, ErrMalformed
	}

	events := gjson.GetBytes(body, "events.event")
	if !events.Exists() || events.Type == gjson.Null {
		return []Record{}, nil
	}

	var out []Record
	switch {
	case events.IsArray():
		out = make([]Record, 0, len(events.Array()))
		events.ForEach(func(_, ev gjson.Result) bool {
			if ev.IsObject() {
				out = append(out, decodeRecord(ev))
			}
			return true
		})
	case events.IsObject():
		out = []Record{decodeRecord(events)}
	default:
		appLog.Warn("eventful: unexpected events.event shape", "type", events.Type.String())
		out = []Record{}
	}

	return out, nil
}

func decodeRecord(ev gjson.Result) Record {
	return Record{
		VenueName:     ev.Get("venue_name").String(),
		Latitude:      ev.Get("latitude").String(),
		Longitude:     ev.Get("longitude").String(),
		Title:         ev.Get("title").String(),
		Description:   ev.Get("description").String(),
		StartTime:     ev.Get("start_time").String(),
		URL:           ev.Get("url").String(),
		ImageURL:      ev.Get("image.medium.url").String(),
		HasPerformers: present(ev.Get("performers")),
	}
}

// present reports whether a field carries at least one value.
func present(r gjson.Result) bool {
	if !r.Exists() {
		return false
	}
	switch r.Type {
	case gjson.Null, gjson.False:
		return false
	case gjson.String:
		return r.Str != ""
	case gjson.Number:
		return r.Num != 0
	case gjson.JSON:
		if r.IsArray() {
			return len(r.Array()) > 0
		}
		return len(r.Map()) > 0
	default:
		return true
	}
}
