package credentials

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/andrebq/gatekeeper/cassette"
)

type (
	// LinkCache remembers resolved sessions for a short while, so busy
	// clients do not hit the cassette on every request.
	//
	// Entries are keyed by the session hash, the session itself never
	// reaches the cache.
	LinkCache struct {
		cache *bigcache.BigCache
	}
)

// NewLinkCache keeps entries for ttl. Revoke only reaches the cache of the
// process doing it, other processes sharing the cassette keep accepting a
// revoked session until their entry expires.
func NewLinkCache(ttl time.Duration) (*LinkCache, error) {
	cfg := bigcache.DefaultConfig(ttl)
	cfg.Verbose = false
	cache, err := bigcache.NewBigCache(cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to create link cache, cause %w", err)
	}
	return &LinkCache{cache: cache}, nil
}

func (l *LinkCache) Get(key string) (cassette.Link, bool) {
	buf, err := l.cache.Get(key)
	if err != nil {
		return cassette.Link{}, false
	}
	expires, row, found := strings.Cut(string(buf), ":")
	if !found {
		return cassette.Link{}, false
	}
	n, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return cassette.Link{}, false
	}
	return cassette.Link{Row: row, ExpiresAt: cassette.FromUnixNano(n)}, true
}

func (l *LinkCache) Put(key string, link cassette.Link) {
	val := strconv.FormatInt(cassette.ToUnixNano(link.ExpiresAt), 10) + ":" + link.Row
	// a full cache only means more trips to the cassette
	_ = l.cache.Set(key, []byte(val))
}

func (l *LinkCache) Forget(key string) {
	_ = l.cache.Delete(key)
}

func (l *LinkCache) Close() error {
	return l.cache.Close()
}
