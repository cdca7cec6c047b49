package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/mesh-intelligence/browserdb/pkg/types"
)

// emit writes v as indented JSON in --json mode and calls text otherwise.
func (a *app) emit(out io.Writer, v any, text func(io.Writer)) error {
	if a.jsonMode {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(out)
	return nil
}

// table writes tab-aligned rows under header.
func table(out io.Writer, header string, rows func(w io.Writer)) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, header)
	rows(tw)
	tw.Flush()
}

// collect converts a generic query cursor into typed entries, failing on
// a failure cursor.
func collect[T any](cur *types.Cursor[any]) ([]T, error) {
	typed := types.ConvertCursor[T](cur)
	if typed.Status() != types.CursorSuccess {
		if err := typed.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("query failed: %s", typed.Message())
	}
	return typed.All(), nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}

type siteRecord struct {
	ID        int64      `json:"id"`
	GUID      string     `json:"guid"`
	URL       string     `json:"url"`
	Title     string     `json:"title"`
	Visits    int        `json:"visits"`
	LastVisit *time.Time `json:"last_visit,omitempty"`
	Icon      string     `json:"icon,omitempty"`
}

func newSiteRecord(s *types.Site) siteRecord {
	r := siteRecord{ID: s.ID, GUID: s.GUID, URL: s.URL, Title: s.Title, Visits: s.VisitCount}
	if s.LatestVisit != nil {
		d := s.LatestVisit.Date
		r.LastVisit = &d
	}
	if s.Icon != nil {
		r.Icon = s.Icon.URL
	}
	return r
}

type visitRecord struct {
	ID   int64     `json:"id"`
	URL  string    `json:"url"`
	Date time.Time `json:"date"`
	Type string    `json:"type"`
}

func newVisitRecord(v *types.Visit) visitRecord {
	r := visitRecord{ID: v.ID, Date: v.Date, Type: visitTypeName(v.Type)}
	if v.Site != nil {
		r.URL = v.Site.URL
	}
	return r
}

type bookmarkRecord struct {
	ID        int64     `json:"id"`
	GUID      string    `json:"guid"`
	Kind      string    `json:"kind"`
	URL       string    `json:"url,omitempty"`
	Title     string    `json:"title"`
	Parent    string    `json:"parent"`
	DateAdded time.Time `json:"date_added"`
}

func newBookmarkRecord(b *types.Bookmark) bookmarkRecord {
	return bookmarkRecord{
		ID:        b.ID,
		GUID:      b.GUID,
		Kind:      bookmarkKindName(b.Kind),
		URL:       b.URL,
		Title:     b.Title,
		Parent:    b.ParentGUID,
		DateAdded: b.DateAdded,
	}
}

type faviconRecord struct {
	ID     int64     `json:"id"`
	URL    string    `json:"url"`
	Width  int       `json:"width"`
	Height int       `json:"height"`
	Date   time.Time `json:"date"`
}

func newFaviconRecord(f *types.Favicon) faviconRecord {
	return faviconRecord{ID: f.ID, URL: f.URL, Width: f.Width, Height: f.Height, Date: f.Date}
}

var visitTypeNames = map[types.VisitType]string{
	types.VisitLink:              "link",
	types.VisitTyped:             "typed",
	types.VisitBookmark:          "bookmark",
	types.VisitEmbed:             "embed",
	types.VisitPermanentRedirect: "redirect-permanent",
	types.VisitTemporaryRedirect: "redirect-temporary",
	types.VisitDownload:          "download",
	types.VisitFramedLink:        "framed-link",
}

func visitTypeName(t types.VisitType) string {
	if name, ok := visitTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

func parseVisitType(s string) (types.VisitType, error) {
	for t, name := range visitTypeNames {
		if name == s {
			return t, nil
		}
	}
	return types.VisitUnknown, userError(fmt.Errorf("unknown visit type %q", s))
}

func bookmarkKindName(k types.BookmarkKind) string {
	switch k {
	case types.BookmarkKindFolder:
		return "folder"
	case types.BookmarkKindSeparator:
		return "separator"
	default:
		return "bookmark"
	}
}

// queryOptions builds QueryOptions from the common list flags.
func queryOptions(filter, sort string, limit int) (*types.QueryOptions, error) {
	s, err := types.ParseSortOptions(sort)
	if err != nil {
		return nil, userError(fmt.Errorf("--sort %q: %w", sort, err))
	}
	if limit < 0 {
		return nil, userError(errors.New("--limit must not be negative"))
	}
	return &types.QueryOptions{Filter: filter, Sort: s, Limit: limit}, nil
}
