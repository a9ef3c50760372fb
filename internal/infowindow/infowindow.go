// Package infowindow renders the HTML shown in a venue's info window.
package infowindow

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/dustin/go-humanize"

	"concertmap/internal/venue"
)

const contentTemplate = `<div class="info-window">
<h2 class="info-window-title">{{.Name}}</h2>
{{- range .Events}}
<div class="event-img">{{if .ImageURL}}<img src="{{.ImageURL}}" class="image">{{end}}</div>
<div class="event-details">
<h4 class="artist">{{.Title}}</h4>
<h4 class="start-time">{{startTime .}}</h4>
</div>
<a class="event-details link" href="{{.DetailURL}}">Click Here for More Details</a>
<hr>
{{- end}}
</div>`

var tmpl = template.Must(template.New("infowindow").Funcs(template.FuncMap{
	"startTime": StartTime,
}).Parse(contentTemplate))

type view struct {
	Name   string
	Events []venue.Event
}

// Render builds the info-window content for v, one block per event in
// arrival order.
func Render(v *venue.Venue) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, view{Name: v.Name, Events: v.Events()}); err != nil {
		return "", fmt.Errorf("render info window for %q: %w", v.Name, err)
	}
	return buf.String(), nil
}

// StartTime formats an event start like "May 5th 2016 @ 8:00 pm". Events
// whose start could not be parsed show the source text.
func StartTime(e venue.Event) string {
	if e.StartTime.IsZero() {
		return e.RawStartTime
	}
	return FormatTime(e.StartTime)
}

// FormatTime is the display format for a known start time.
func FormatTime(t time.Time) string {
	return fmt.Sprintf("%s %s %d @ %s",
		t.Format("Jan"),
		humanize.Ordinal(t.Day()),
		t.Year(),
		t.Format("3:04 pm"),
	)
}
