package browser

import (
	"context"

	"github.com/mesh-intelligence/browserdb/pkg/types"
)

// Bookmarks manages the bookmark tree.
type Bookmarks struct {
	p *Profile
}

// Add inserts b. done receives its row id; b.GUID is filled in.
func (b *Bookmarks) Add(ctx context.Context, bm *types.Bookmark, done func(int64, error)) {
	b.p.change(ctx, func(ctx context.Context) (int64, error) {
		return b.p.db.Insert(ctx, types.TableBookmarks, bm)
	}, done)
}

// Update rewrites the bookmark with bm's ID or GUID.
func (b *Bookmarks) Update(ctx context.Context, bm *types.Bookmark, done func(int64, error)) {
	b.p.change(ctx, func(ctx context.Context) (int64, error) {
		return b.p.db.Update(ctx, types.TableBookmarks, bm)
	}, done)
}

// Remove deletes the item with guid and, for folders, everything inside.
func (b *Bookmarks) Remove(ctx context.Context, guid string, done func(int64, error)) {
	b.p.change(ctx, func(ctx context.Context) (int64, error) {
		return b.p.db.Delete(ctx, types.TableBookmarks, &types.Bookmark{GUID: guid})
	}, done)
}

// Children lists the items directly inside the folder parentGUID.
func (b *Bookmarks) Children(ctx context.Context, parentGUID string, sort types.SortOptions, done func(*types.Cursor[*types.Bookmark])) {
	query(ctx, b.p, types.TableBookmarks, &types.QueryOptions{Filter: parentGUID, Sort: sort}, done)
}
