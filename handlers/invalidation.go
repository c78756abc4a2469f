package handlers

import (
	"context"
	"fmt"

	"github.com/hyxhhh1013/Myproject-sub000/cache"
)

const (
	photosRoute     = "/api/photos"
	categoriesRoute = "/api/photo-categories"
	tagsRoute       = "/api/tags"
)

// Invalidator drops cached reads after a committed write. Photo payloads embed
// category summaries and tag names, and category and tag listings carry photo
// counts, so each write clears every family that renders the changed rows.
// The write has already committed when these run, so a cancelled request
// context must not stop the invalidation.
type Invalidator struct {
	Cache *cache.ResponseCache
}

func (iv Invalidator) PhotosChanged(ctx context.Context, ids ...uint) {
	ctx = context.WithoutCancel(ctx)
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, fmt.Sprintf("%s/%d", photosRoute, id))
	}
	iv.Cache.Invalidate(ctx, keys...)
	iv.Cache.InvalidatePrefix(ctx, photosRoute, categoriesRoute, tagsRoute)
}

func (iv Invalidator) CategoriesChanged(ctx context.Context, ids ...uint) {
	ctx = context.WithoutCancel(ctx)
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, fmt.Sprintf("%s/%d", categoriesRoute, id))
	}
	iv.Cache.Invalidate(ctx, keys...)
	iv.Cache.InvalidatePrefix(ctx, categoriesRoute, photosRoute)
}
