package types

import "time"

// IconType classifies where a favicon came from.
type IconType int

const (
	IconTypeIcon IconType = iota
	IconTypeAppleIcon
	IconTypeAppleIconPrecomposed
	IconTypeGuess
	IconTypeLocal
)

// Favicon is an icon image for one or more sites. Data holds the raw image
// bytes supplied by the downloader and may be nil.
type Favicon struct {
	ID     int64
	URL    string
	Date   time.Time
	Type   IconType
	Width  int
	Height int
	Data   []byte

	// Site, when set on insert, links the favicon to that site.
	Site *Site
}

// FaviconSite associates a site with a favicon.
type FaviconSite struct {
	ID        int64
	SiteID    int64
	FaviconID int64
}
