package browser

import (
	"bytes"
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mesh-intelligence/browserdb/pkg/types"
)

// Favicons stores icons and looks up the best icon for a site. Lookups are
// served from an LRU cache keyed by site URL. The cache is only touched from
// the profile's worker, so a lookup never races the write that invalidates
// it.
type Favicons struct {
	p     *Profile
	cache *lru.Cache[string, *types.Favicon]
}

// Add stores icon and links it to the site at siteURL, creating the site
// when needed. An empty siteURL stores the icon unlinked.
func (f *Favicons) Add(ctx context.Context, icon *types.Favicon, siteURL string, done func(int64, error)) {
	f.p.change(ctx, func(ctx context.Context) (int64, error) {
		if siteURL != "" {
			icon.Site = &types.Site{URL: siteURL}
		}
		id, err := f.p.db.Insert(ctx, types.TableFavicons, icon)
		if err == nil {
			// Any cached site may have been using this icon.
			if siteURL != "" {
				f.forget(siteURL)
			} else {
				f.cache.Purge()
			}
		}
		return id, err
	}, done)
}

// IconForURL returns the widest icon linked to siteURL, or
// types.ErrNotFound.
func (f *Favicons) IconForURL(ctx context.Context, siteURL string, done func(*types.Favicon, error)) {
	type result struct {
		icon *types.Favicon
		err  error
	}
	var cb func(result)
	if done != nil {
		cb = func(r result) { done(r.icon, r.err) }
	}
	submit(f.p,
		func() result {
			icon, err := f.lookup(ctx, siteURL)
			return result{icon, err}
		},
		func() result { return result{nil, types.ErrClosed} },
		cb)
}

func (f *Favicons) lookup(ctx context.Context, siteURL string) (*types.Favicon, error) {
	if icon, ok := f.cache.Get(siteURL); ok {
		return cloneFavicon(icon), nil
	}
	cur := types.ConvertCursor[*types.Favicon](f.p.db.Query(ctx, types.TableFavicons, &types.QueryOptions{
		Filter: siteURL,
		Sort:   types.SortFrecency,
		Limit:  1,
	}))
	if err := cur.Err(); err != nil {
		return nil, err
	}
	icon, err := cur.At(0)
	if err != nil {
		return nil, fmt.Errorf("icon for %s: %w", siteURL, types.ErrNotFound)
	}
	f.cache.Add(siteURL, cloneFavicon(icon))
	return icon, nil
}

// cloneFavicon copies icon so callers never share the cached value.
func cloneFavicon(icon *types.Favicon) *types.Favicon {
	c := *icon
	c.Data = bytes.Clone(icon.Data)
	if icon.Site != nil {
		site := *icon.Site
		c.Site = &site
	}
	return &c
}

// Clear deletes every icon.
func (f *Favicons) Clear(ctx context.Context, done func(int64, error)) {
	f.p.change(ctx, func(ctx context.Context) (int64, error) {
		n, err := f.p.db.Delete(ctx, types.TableFavicons, nil)
		if err == nil {
			f.cache.Purge()
		}
		return n, err
	}, done)
}

func (f *Favicons) forget(siteURL string) { f.cache.Remove(siteURL) }
