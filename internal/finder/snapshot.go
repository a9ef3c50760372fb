package finder

import (
	"concertmap/internal/geo"
	"concertmap/internal/venue"
)

// Snapshot is the session state the browser renders outside the map.
type Snapshot struct {
	Location      string        `json:"location"`
	Date          string        `json:"date"`
	ShownLocation string        `json:"shown_location"`
	DisplayDate   string        `json:"display_date"`
	Filter        string        `json:"filter"`
	FilterError   string        `json:"filter_error,omitempty"`
	Panel         string        `json:"panel"`
	SidebarOpen   bool          `json:"sidebar_open"`
	InputOpen     bool          `json:"input_open"`
	InfoOpen      bool          `json:"info_open"`
	Arrow         string        `json:"arrow"`
	Center        *geo.Position `json:"center,omitempty"`
	Generation    uint64        `json:"generation"`
	Loading       bool          `json:"loading"`
	TimedOut      bool          `json:"timed_out"`
	Bouncing      string        `json:"bouncing,omitempty"`
	InfoVenue     string        `json:"info_venue,omitempty"`
	Venues        []VenueView   `json:"venues"`
}

// VenueView is one list entry.
type VenueView struct {
	Name      string        `json:"name"`
	ShortName string        `json:"short_name"`
	Marker    string        `json:"marker"`
	Position  *geo.Position `json:"position,omitempty"`
	Visible   bool          `json:"visible"`
	Bouncing  bool          `json:"bouncing"`
	Events    int           `json:"events"`
}

// Snapshot copies the current state. Positions that are not valid are left
// out so the result always encodes as JSON.
func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		Location:      s.location,
		Date:          s.date.Format("2006-01-02"),
		ShownLocation: s.shownLocation,
		DisplayDate:   s.displayDate,
		Filter:        s.filter.Term(),
		Panel:         s.panels.Panel().String(),
		SidebarOpen:   s.panels.SidebarOpen(),
		InputOpen:     s.panels.InputOpen(),
		InfoOpen:      s.panels.InfoOpen(),
		Arrow:         s.panels.SidebarArrow(),
		Center:        validPosition(s.center),
		Generation:    s.fetcher.Generation(),
		Loading:       s.fetcher.Active(),
		TimedOut:      s.fetcher.TimedOut(),
		Venues:        make([]VenueView, 0, s.collection.Len()),
	}
	if err := s.filter.Err(); err != nil {
		snap.FilterError = err.Error()
	}
	if v := s.sync.Bouncing(); v != nil {
		snap.Bouncing = v.Name
	}
	if v := s.sync.InfoVenue(); v != nil {
		snap.InfoVenue = v.Name
	}
	for _, v := range s.collection.Venues() {
		snap.Venues = append(snap.Venues, viewOf(v))
	}
	return snap
}

func viewOf(v *venue.Venue) VenueView {
	return VenueView{
		Name:      v.Name,
		ShortName: v.ShortName,
		Marker:    string(v.Marker()),
		Position:  validPosition(v.Position),
		Visible:   v.Visible(),
		Bouncing:  v.Bouncing(),
		Events:    v.EventCount(),
	}
}

func validPosition(p geo.Position) *geo.Position {
	if !p.Valid() {
		return nil
	}
	return &p
}
