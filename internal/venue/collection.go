package venue

import (
	"concertmap/internal/eventful"
	appLog "concertmap/internal/log"
	"concertmap/internal/mapview"
)

// Observer is told about venues as aggregation creates or changes them.
type Observer interface {
	// VenueAdded is called once per new venue, after it joined the collection.
	VenueAdded(v *Venue)
	// VenueChanged is called after a merge changed the venue's searchable text.
	VenueChanged(v *Venue)
}

// Collection is the ordered set of venues for the current query.
type Collection struct {
	venues []*Venue
	byName map[string]*Venue
}

// NewCollection returns an empty collection.
func NewCollection() *Collection {
	return &Collection{byName: make(map[string]*Venue)}
}

// Aggregate folds records into the collection in a single pass and returns
// the updated venue order.
//
// Records without performers are skipped. The first record for a name
// creates the venue; later ones append an event and extend the searchable
// title and description. Names match exactly, case included.
func (c *Collection) Aggregate(records []eventful.Record, obs Observer) []*Venue {
	added, merged, dropped := 0, 0, 0

	for _, rec := range records {
		if !rec.HasPerformers {
			dropped++
			continue
		}

		if existing, ok := c.byName[rec.VenueName]; ok {
			existing.merge(rec)
			merged++
			if obs != nil {
				obs.VenueChanged(existing)
			}
			continue
		}

		v := New(rec)
		c.venues = append(c.venues, v)
		c.byName[v.Name] = v
		added++
		if obs != nil {
			obs.VenueAdded(v)
		}
	}

	appLog.Debug("venues aggregated",
		"records", len(records),
		"added", added,
		"merged", merged,
		"dropped", dropped,
		"total", len(c.venues),
	)
	return c.Venues()
}

// Venues returns the venues in first-seen order.
func (c *Collection) Venues() []*Venue {
	out := make([]*Venue, len(c.venues))
	copy(out, c.venues)
	return out
}

// Len is the number of venues.
func (c *Collection) Len() int {
	return len(c.venues)
}

// Lookup finds a venue by exact name.
func (c *Collection) Lookup(name string) (*Venue, bool) {
	v, ok := c.byName[name]
	return v, ok
}

// ByMarker finds the venue owning a marker handle.
func (c *Collection) ByMarker(h mapview.MarkerHandle) (*Venue, bool) {
	if h == "" {
		return nil, false
	}
	for _, v := range c.venues {
		if v.marker == h {
			return v, true
		}
	}
	return nil, false
}

// Reset discards every venue.
func (c *Collection) Reset() {
	c.venues = nil
	c.byName = make(map[string]*Venue)
}
