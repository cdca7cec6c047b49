package types

// QueuedTab is a URL queued for opening the next time the browser is in
// the foreground.
type QueuedTab struct {
	URL   string
	Title string
}
