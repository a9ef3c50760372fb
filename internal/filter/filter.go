// Package filter decides which venues are visible for the live search term.
//
// The term is a case-insensitive regular expression matched against a
// venue's name, merged titles and merged descriptions. An empty term shows
// everything. A term that does not compile hides everything until it is
// replaced.
package filter

import (
	"fmt"
	"regexp"

	appLog "concertmap/internal/log"
	"concertmap/internal/venue"
)

// Sink is told every time a registered venue's visibility is (re)computed
// to a new value, and once when a venue is registered.
type Sink interface {
	VisibilityChanged(v *venue.Venue)
}

// Error reports a term that is not a valid pattern.
type Error struct {
	Pattern string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("filter: invalid pattern %q: %v", e.Pattern, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Compile turns a search term into the pattern used by Match.
func Compile(term string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("(?i)" + term)
	if err != nil {
		return nil, &Error{Pattern: term, Err: err}
	}
	return re, nil
}

// Match reports whether re matches any of fields. A nil pattern matches
// nothing.
func Match(re *regexp.Regexp, fields ...string) bool {
	if re == nil {
		return false
	}
	for _, f := range fields {
		if re.MatchString(f) {
			return true
		}
	}
	return false
}

// Engine holds the current term and the venues it applies to.
type Engine struct {
	term   string
	re     *regexp.Regexp
	err    error
	venues []*venue.Venue
	sink   Sink
}

// New returns an engine with an empty term. sink may be nil.
func New(sink Sink) *Engine {
	re, _ := Compile("")
	return &Engine{re: re, sink: sink}
}

// Term is the last term passed to SetTerm, valid or not.
func (e *Engine) Term() string {
	return e.term
}

// Err is the compile error of the current term, or nil.
func (e *Engine) Err() error {
	return e.err
}

// SetTerm replaces the term and recomputes every registered venue. An
// invalid term hides all venues and returns an *Error.
func (e *Engine) SetTerm(term string) error {
	e.term = term
	re, err := Compile(term)
	e.re = re
	e.err = err
	if err != nil {
		appLog.Warn("filter pattern rejected", "term", term, "err", err)
	}

	changed := 0
	for _, v := range e.venues {
		if e.evaluate(v, false) {
			changed++
		}
	}
	appLog.Debug("filter applied", "term", term, "venues", len(e.venues), "changed", changed)
	return err
}

// Register adds a venue and computes its visibility. The sink is always
// notified so a fresh marker picks up the result.
func (e *Engine) Register(v *venue.Venue) {
	e.venues = append(e.venues, v)
	e.evaluate(v, true)
}

// Refresh recomputes one venue after its searchable text changed.
func (e *Engine) Refresh(v *venue.Venue) {
	e.evaluate(v, false)
}

// Reset forgets every venue. The term is kept.
func (e *Engine) Reset() {
	e.venues = nil
}

// VisibleCount is the number of registered venues currently shown.
func (e *Engine) VisibleCount() int {
	n := 0
	for _, v := range e.venues {
		if v.Visible() {
			n++
		}
	}
	return n
}

func (e *Engine) evaluate(v *venue.Venue, notify bool) bool {
	visible := Match(e.re, v.Name, v.SearchableTitle(), v.SearchableDescription())
	changed := v.SetVisible(visible)
	if (changed || notify) && e.sink != nil {
		e.sink.VisibilityChanged(v)
	}
	return changed
}
