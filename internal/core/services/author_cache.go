package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/clipstream/realtime-backend/internal/core/domain"
	apperrors "github.com/clipstream/realtime-backend/internal/core/errors"
	"github.com/clipstream/realtime-backend/internal/core/ports"
)

type authorCacheEntry struct {
	author  *domain.Author // nil means a cached not-found
	expires time.Time
}

// CachedAuthorLookup memoizes author resolution. Authorship changes are
// rare, so hits are served from memory for the TTL; not-found results are
// cached for a shorter window so newly published content shows up quickly.
type CachedAuthorLookup struct {
	next   ports.AuthorLookup
	ttl    time.Duration
	negTTL time.Duration

	mu      sync.RWMutex
	entries map[string]authorCacheEntry
	now     func() time.Time
}

var _ ports.AuthorLookup = (*CachedAuthorLookup)(nil)

// NewCachedAuthorLookup wraps next with a TTL cache.
func NewCachedAuthorLookup(next ports.AuthorLookup, ttl, negTTL time.Duration) *CachedAuthorLookup {
	return &CachedAuthorLookup{
		next:    next,
		ttl:     ttl,
		negTTL:  negTTL,
		entries: make(map[string]authorCacheEntry),
		now:     time.Now,
	}
}

// GetAuthor resolves the author, consulting the cache first.
func (c *CachedAuthorLookup) GetAuthor(ctx context.Context, contentType domain.ContentType, contentID int64) (*domain.Author, error) {
	key := fmt.Sprintf("%s:%d", contentType, contentID)
	now := c.now()

	c.mu.RLock()
	entry, hit := c.entries[key]
	c.mu.RUnlock()

	if hit && now.Before(entry.expires) {
		if entry.author == nil {
			return nil, apperrors.ErrAuthorNotFound
		}
		author := *entry.author
		return &author, nil
	}

	author, err := c.next.GetAuthor(ctx, contentType, contentID)
	if err != nil {
		if errors.Is(err, apperrors.ErrAuthorNotFound) {
			c.store(key, nil, now.Add(c.negTTL))
		}
		return nil, err
	}

	c.store(key, author, now.Add(c.ttl))
	result := *author
	return &result, nil
}

func (c *CachedAuthorLookup) store(key string, author *domain.Author, expires time.Time) {
	var copied *domain.Author
	if author != nil {
		a := *author
		copied = &a
	}

	c.mu.Lock()
	c.entries[key] = authorCacheEntry{author: copied, expires: expires}
	c.mu.Unlock()
}
