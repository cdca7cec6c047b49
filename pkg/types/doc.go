// Package types defines the entities, query options, cursor and standard
// errors shared by the browserdb storage layer and its callers.
//
// Entities are plain values: History and Visits, Favicons and their site
// associations, Bookmarks and the tab queue. Tables hydrate them from rows
// and never hand out live database handles.
package types
