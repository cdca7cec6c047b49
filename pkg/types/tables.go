package types

// Logical table names accepted by the generic insert/update/delete/query
// surface. A logical table may be backed by several physical tables or
// views.
const (
	TableHistory   = "history"
	TableVisits    = "visits"
	TableFavicons  = "favicons"
	TableBookmarks = "bookmarks"
	TableQueue     = "queue"
)

// StandardTableNames lists the logical tables in creation order.
var StandardTableNames = []string{
	TableHistory,
	TableVisits,
	TableFavicons,
	TableBookmarks,
	TableQueue,
}
