package browser

import (
	"context"

	"github.com/mesh-intelligence/browserdb/pkg/types"
)

// TabQueue holds URLs to open the next time the browser is in front.
type TabQueue struct {
	p *Profile
}

// Add queues a tab. A URL already queued keeps its place.
func (q *TabQueue) Add(ctx context.Context, url, title string, done func(int64, error)) {
	q.p.change(ctx, func(ctx context.Context) (int64, error) {
		return q.p.db.Insert(ctx, types.TableQueue, &types.QueuedTab{URL: url, Title: title})
	}, done)
}

// List returns the queued tabs in arrival order.
func (q *TabQueue) List(ctx context.Context, done func(*types.Cursor[*types.QueuedTab])) {
	query(ctx, q.p, types.TableQueue, nil, done)
}

// Remove drops one queued URL.
func (q *TabQueue) Remove(ctx context.Context, url string, done func(int64, error)) {
	q.p.change(ctx, func(ctx context.Context) (int64, error) {
		return q.p.db.Delete(ctx, types.TableQueue, &types.QueuedTab{URL: url})
	}, done)
}

// Clear empties the queue.
func (q *TabQueue) Clear(ctx context.Context, done func(int64, error)) {
	q.p.change(ctx, func(ctx context.Context) (int64, error) {
		return q.p.db.Delete(ctx, types.TableQueue, nil)
	}, done)
}
