// Package images pulls, downsizes and caches the images attached to chat
// messages.
package images

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/memoria/pkg/util"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	cacheRetention  = 24 * time.Hour
	cacheMaxEntries = 50
	fetchWorkers    = 4
)

var (
	urlPattern      = regexp.MustCompile(`https?://\S+`)
	imageExtensions = []string{".png", ".jpg", ".jpeg", ".webp", ".bmp", ".gif"}
)

// Seen tracks image sources already embedded during one assembly pass.
type Seen map[string]struct{}

func (s Seen) Has(src string) bool {
	_, ok := s[src]
	return ok
}

func (s Seen) Add(src string) {
	s[src] = struct{}{}
}

// Extractor turns message attachments and image links into data URLs.
type Extractor struct {
	dl    Downloader
	cache *cache.Cache
	mu    sync.Mutex
	log   zerolog.Logger
}

func NewExtractor(dl Downloader) *Extractor {
	return &Extractor{
		dl:    dl,
		cache: cache.New(cacheRetention, time.Hour),
		log:   log.With().Str("component", "images").Logger(),
	}
}

// Extract returns up to limit images for msg, looking at the attachments of
// msg and quote first and falling back to embed previews and image links in
// the message text. Sources in seen are skipped and new ones are recorded.
// maxSide bounds the area of each image to maxSide² pixels.
func (e *Extractor) Extract(ctx context.Context, msg, quote *discordgo.Message, limit, maxSide int, seen Seen) []string {
	if limit <= 0 {
		return nil
	}
	if v, ok := e.cache.Get(msg.ID); ok {
		imgs := v.([]string)
		return imgs[:min(len(imgs), limit)]
	}

	var sources []string
	for _, att := range attachedImages(msg, quote, limit) {
		sources = append(sources, att.URL)
	}
	if out := e.fetchAll(ctx, sources, maxSide, seen); len(out) > 0 {
		e.store(msg.ID, out)
		return out
	}

	urls := linkedImages(msg)
	if len(urls) > limit {
		urls = urls[:limit]
	}
	out := e.fetchAll(ctx, urls, maxSide, seen)
	if len(out) > 0 {
		e.store(msg.ID, out)
	}
	return out
}

// fetchAll downloads the sources not yet in seen concurrently and returns
// the decodable ones in source order.
func (e *Extractor) fetchAll(ctx context.Context, sources []string, maxSide int, seen Seen) []string {
	var fresh []string
	for _, src := range sources {
		if seen.Has(src) {
			continue
		}
		seen.Add(src)
		fresh = append(fresh, src)
	}

	type fetched struct {
		img string
		ok  bool
	}
	results := util.Map(ctx, fresh, fetchWorkers, func(ctx context.Context, src string) fetched {
		img, ok := e.fetch(ctx, src, maxSide)
		return fetched{img, ok}
	})

	var out []string
	for _, r := range results {
		if r.ok {
			out = append(out, r.img)
		}
	}
	return out
}

func (e *Extractor) fetch(ctx context.Context, url string, maxSide int) (string, bool) {
	data, err := e.dl.Download(ctx, url)
	if err != nil {
		e.log.Warn().Err(err).Str("url", url).Msg("image download failed")
		return "", false
	}
	png, ok := Downscale(data, maxSide)
	if !ok {
		return "", false
	}
	return DataURL(png), true
}

// store caches imgs, evicting the oldest entries beyond the cap.
func (e *Extractor) store(id string, imgs []string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for e.cache.ItemCount() >= cacheMaxEntries {
		oldest, oldestExp := "", int64(0)
		for k, item := range e.cache.Items() {
			if oldest == "" || item.Expiration < oldestExp {
				oldest, oldestExp = k, item.Expiration
			}
		}
		if oldest == "" {
			break
		}
		e.cache.Delete(oldest)
	}
	e.cache.SetDefault(id, imgs)
}

func attachedImages(msg, quote *discordgo.Message, limit int) []*discordgo.MessageAttachment {
	all := append([]*discordgo.MessageAttachment{}, msg.Attachments...)
	if quote != nil {
		all = append(all, quote.Attachments...)
	}
	var imgs []*discordgo.MessageAttachment
	for _, att := range all {
		if strings.HasPrefix(att.ContentType, "image/") {
			imgs = append(imgs, att)
		}
	}
	if len(imgs) > limit {
		imgs = imgs[:limit]
	}
	return imgs
}

func linkedImages(msg *discordgo.Message) []string {
	var urls []string
	if len(msg.Embeds) > 0 {
		em := msg.Embeds[0]
		if em.Image != nil && em.Image.URL != "" {
			urls = append(urls, em.Image.URL)
		}
		if em.Thumbnail != nil && em.Thumbnail.URL != "" {
			urls = append(urls, em.Thumbnail.URL)
		}
	}
	for _, u := range urlPattern.FindAllString(msg.Content, -1) {
		if IsImageURL(u) {
			urls = append(urls, u)
		}
	}
	return urls
}

// IsImageURL reports whether u ends in a known image extension.
func IsImageURL(u string) bool {
	lower := strings.ToLower(u)
	for _, ext := range imageExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
