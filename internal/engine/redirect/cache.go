package redirect

import (
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/rs/zerolog/log"

	"smartqr/internal/engine/qrcodes"
	"smartqr/internal/platform/config"
)

// QRCodeCache keeps recently scanned QR codes keyed by short code.
// A nil *QRCodeCache is a valid, always-missing cache.
type QRCodeCache struct {
	client *ristretto.Cache
	ttl    time.Duration
}

func NewQRCodeCache(cfg config.CacheConfig) (*QRCodeCache, error) {
	maxEntries := int64(cfg.MaxEntries)
	if maxEntries <= 0 {
		maxEntries = 10000
	}

	client, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10, // ristretto recommends 10x the expected entries
		MaxCost:     maxEntries,      // every entry costs 1
		BufferItems: 64,
		Metrics:     true,
	})
	if err != nil {
		return nil, err
	}

	log.Info().Int64("max_entries", maxEntries).Dur("ttl", cfg.QRCodeTTL).Msg("QR code cache initialized")
	return &QRCodeCache{client: client, ttl: cfg.QRCodeTTL}, nil
}

func (c *QRCodeCache) Get(shortCode string) (*qrcodes.QRCode, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	val, ok := c.client.Get(shortCode)
	if !ok {
		return nil, false
	}
	q, ok := val.(*qrcodes.QRCode)
	return q, ok
}

// Set stores q. Writes are buffered, call Wait to make them visible immediately.
func (c *QRCodeCache) Set(q *qrcodes.QRCode) bool {
	if c == nil || c.client == nil || q == nil {
		return false
	}
	return c.client.SetWithTTL(q.ShortCode, q, 1, c.ttl)
}

func (c *QRCodeCache) Delete(shortCode string) {
	if c == nil || c.client == nil {
		return
	}
	c.client.Del(shortCode)
}

func (c *QRCodeCache) Wait() {
	if c == nil || c.client == nil {
		return
	}
	c.client.Wait()
}

// HitRatio is the share of Gets served from the cache.
func (c *QRCodeCache) HitRatio() float64 {
	if c == nil || c.client == nil || c.client.Metrics == nil {
		return 0
	}
	return c.client.Metrics.Ratio()
}

func (c *QRCodeCache) Close() {
	if c == nil || c.client == nil {
		return
	}
	c.client.Close()
}
