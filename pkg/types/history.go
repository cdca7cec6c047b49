package types

import "time"

// VisitType records how a page was reached. Values follow the browser
// history transition types.
type VisitType int

const (
	VisitUnknown VisitType = iota
	VisitLink
	VisitTyped
	VisitBookmark
	VisitEmbed
	VisitPermanentRedirect
	VisitTemporaryRedirect
	VisitDownload
	VisitFramedLink
)

// Valid reports whether t is one of the known visit types.
func (t VisitType) Valid() bool {
	return t >= VisitLink && t <= VisitFramedLink
}

// Site is one row of browsing history. A live site always has a URL; a
// deleted site keeps its GUID as a tombstone with no URL.
type Site struct {
	ID        int64
	GUID      string
	URL       string
	Title     string
	IsDeleted bool

	// Populated by history queries only.
	LatestVisit *Visit
	VisitCount  int
	Icon        *Favicon
}

// Visit is a single visit to a site. Visits are unique per
// (site, date, type).
type Visit struct {
	ID   int64
	Date time.Time
	Type VisitType

	// Site identifies the visited site. On insert SiteID or Site.URL must be
	// set. Query results carry the site's ID, GUID and URL; the title is
	// denormalized and not guaranteed to be current.
	SiteID int64
	Site   *Site
}

// NewVisit returns a visit to url at date with the given type.
func NewVisit(url, title string, date time.Time, typ VisitType) *Visit {
	return &Visit{
		Date: date,
		Type: typ,
		Site: &Site{URL: url, Title: title},
	}
}

// ToMicros converts t to integer microseconds since the Unix epoch, the
// storage representation of every timestamp.
func ToMicros(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}

// FromMicros is the inverse of ToMicros. Results are in UTC.
func FromMicros(us int64) time.Time {
	if us == 0 {
		return time.Time{}
	}
	return time.UnixMicro(us).UTC()
}
