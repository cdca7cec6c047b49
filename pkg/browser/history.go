package browser

import (
	"context"

	"github.com/mesh-intelligence/browserdb/pkg/types"
)

// History records visits and lists sites.
type History struct {
	p *Profile
}

// AddVisit records v, creating its site when needed. done receives the
// visit id.
func (h *History) AddVisit(ctx context.Context, v *types.Visit, done func(int64, error)) {
	h.p.change(ctx, func(ctx context.Context) (int64, error) {
		return h.p.db.Insert(ctx, types.TableHistory, v)
	}, done)
}

// Sites lists live sites with their latest visit, visit count and icon.
func (h *History) Sites(ctx context.Context, opts *types.QueryOptions, done func(*types.Cursor[*types.Site])) {
	query(ctx, h.p, types.TableHistory, opts, done)
}

// Visits lists the visits to siteURL, most recent first. An empty siteURL
// lists every visit.
func (h *History) Visits(ctx context.Context, siteURL string, done func(*types.Cursor[*types.Visit])) {
	query(ctx, h.p, types.TableVisits, &types.QueryOptions{Filter: siteURL, Sort: types.SortLastVisit}, done)
}

// RemoveSite deletes the site at url and its visits.
func (h *History) RemoveSite(ctx context.Context, url string, done func(int64, error)) {
	h.p.change(ctx, func(ctx context.Context) (int64, error) {
		n, err := h.p.db.Delete(ctx, types.TableHistory, &types.Site{URL: url})
		if err == nil {
			h.p.Favicons.forget(url)
		}
		return n, err
	}, done)
}

// Clear deletes all history.
func (h *History) Clear(ctx context.Context, done func(int64, error)) {
	h.p.change(ctx, func(ctx context.Context) (int64, error) {
		n, err := h.p.db.Delete(ctx, types.TableHistory, nil)
		if err == nil {
			h.p.Favicons.cache.Purge()
		}
		return n, err
	}, done)
}
