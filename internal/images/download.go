package images

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

type Downloader interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

// CachedDownloader keeps recent downloads so the prompt reader and the
// extractor share one fetch per attachment.
type CachedDownloader struct {
	next  Downloader
	cache *cache.Cache
}

func NewCachedDownloader(next Downloader, ttl time.Duration) *CachedDownloader {
	return &CachedDownloader{
		next:  next,
		cache: cache.New(ttl, 2*ttl),
	}
}

func (d *CachedDownloader) Download(ctx context.Context, url string) ([]byte, error) {
	if v, ok := d.cache.Get(url); ok {
		return v.([]byte), nil
	}
	data, err := d.next.Download(ctx, url)
	if err != nil {
		return nil, err
	}
	d.cache.SetDefault(url, data)
	return data, nil
}
