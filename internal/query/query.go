// Package query turns the user's location and date into the normalized
// parameters sent to the event search.
package query

import (
	"net/url"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
)

// Fixed search parameters.
const (
	Category            = "music"
	PageSize            = 20
	SortOrder           = "popularity"
	Include             = "categories, price"
	ChangeMultiDayStart = true
)

// Wire keys of the search API.
const (
	KeyCategory            = "category"
	KeyLocation            = "location"
	KeyDate                = "date"
	KeyPageSize            = "page_size"
	KeySortOrder           = "sort_order"
	KeyInclude             = "include"
	KeyChangeMultiDayStart = "change_multi_day_start"
)

// Query is an immutable set of search parameters. Build a new one per submit.
type Query struct {
	Category            string
	Location            string
	DateRange           string
	PageSize            int
	SortOrder           string
	Include             string
	ChangeMultiDayStart bool
}

// Build creates the query for one calendar day. An empty location is passed
// through; rejecting it is the caller's call.
func Build(location string, date time.Time) Query {
	return Query{
		Category:            Category,
		Location:            location,
		DateRange:           DateRange(date),
		PageSize:            PageSize,
		SortOrder:           SortOrder,
		Include:             Include,
		ChangeMultiDayStart: ChangeMultiDayStart,
	}
}

// DateRange formats a single day as YYYYMMDD00-YYYYMMDD00. Only the calendar
// day of date is kept.
func DateRange(date time.Time) string {
	day := date.Format("20060102") + "00"
	return day + "-" + day
}

// DisplayDate renders a day for the header, e.g. "May 5th 2016".
func DisplayDate(date time.Time) string {
	return date.Format("January") + " " + humanize.Ordinal(date.Day()) + " " + date.Format("2006")
}

// Values serializes the query for an HTTP GET.
func (q Query) Values() url.Values {
	v := url.Values{}
	v.Set(KeyCategory, q.Category)
	v.Set(KeyLocation, q.Location)
	v.Set(KeyDate, q.DateRange)
	v.Set(KeyPageSize, strconv.Itoa(q.PageSize))
	v.Set(KeySortOrder, q.SortOrder)
	v.Set(KeyInclude, q.Include)
	v.Set(KeyChangeMultiDayStart, strconv.FormatBool(q.ChangeMultiDayStart))
	return v
}

// FromValues reads a query back from its wire form. Missing or malformed
// numeric/boolean fields take the fixed defaults.
func FromValues(v url.Values) Query {
	q := Query{
		Category:            v.Get(KeyCategory),
		Location:            v.Get(KeyLocation),
		DateRange:           v.Get(KeyDate),
		PageSize:            PageSize,
		SortOrder:           v.Get(KeySortOrder),
		Include:             v.Get(KeyInclude),
		ChangeMultiDayStart: ChangeMultiDayStart,
	}
	if n, err := strconv.Atoi(v.Get(KeyPageSize)); err == nil && n > 0 {
		q.PageSize = n
	}
	if b, err := strconv.ParseBool(v.Get(KeyChangeMultiDayStart)); err == nil {
		q.ChangeMultiDayStart = b
	}
	return q
}
