// Package calendar exports a venue's events as an iCalendar feed.
package calendar

import (
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"concertmap/internal/venue"
)

const productID = "concertmap"

// dateOnlyLen is len("2006-01-02"); such start times become all-day events.
const dateOnlyLen = 10

// ForVenue renders v as a PUBLISH calendar with one VEVENT per event.
// Events without a known start get no DTSTART.
func ForVenue(v *venue.Venue, now time.Time) string {
	cal := ical.NewCalendarFor(productID)
	cal.SetMethod(ical.MethodPublish)
	cal.SetXWRCalName(v.Name)

	for _, e := range v.Events() {
		ev := cal.AddEvent(UID(v.Name, e))
		ev.SetDtStampTime(now)
		ev.SetSummary(e.Title)
		ev.SetLocation(v.Name)
		if e.DetailURL != "" {
			ev.SetURL(e.DetailURL)
		}
		if v.Position.Valid() {
			ev.SetGeo(v.Position.Lat, v.Position.Lng)
		}
		switch {
		case e.StartTime.IsZero():
		case len(strings.TrimSpace(e.RawStartTime)) == dateOnlyLen:
			ev.SetAllDayStartAt(e.StartTime)
		default:
			ev.SetStartAt(e.StartTime)
		}
	}
	return cal.Serialize()
}

// UID is stable for the same venue, detail URL and start.
func UID(venueName string, e venue.Event) string {
	key := venueName + "\x00" + e.DetailURL + "\x00" + e.RawStartTime
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(key)).String() + "@" + productID
}
