package types

import "time"

// BookmarkKind distinguishes folders, bookmarks and separators.
type BookmarkKind int

const (
	BookmarkKindBookmark BookmarkKind = iota
	BookmarkKindFolder
	BookmarkKindSeparator
)

// Well-known folder GUIDs.
const (
	RootFolderGUID    = "root________"
	MobileFolderGUID  = "mobile______"
	MenuFolderGUID    = "menu________"
	ToolbarFolderGUID = "toolbar_____"
)

// Bookmark is a folder, bookmark or separator. Folders have no URL.
type Bookmark struct {
	ID         int64
	GUID       string
	Kind       BookmarkKind
	URL        string
	Title      string
	ParentGUID string
	FaviconID  int64
	DateAdded  time.Time
}
