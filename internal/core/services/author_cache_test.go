package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipstream/realtime-backend/internal/core/domain"
	apperrors "github.com/clipstream/realtime-backend/internal/core/errors"
)

func TestCachedAuthorLookup_ServesHitsFromCache(t *testing.T) {
	authorID := uuid.New()
	next := &fakeAuthors{authors: map[string]domain.Author{
		"post:1": {ID: authorID, DisplayName: "sam"},
	}}
	cache := NewCachedAuthorLookup(next, 5*time.Minute, 30*time.Second)

	for i := 0; i < 3; i++ {
		author, err := cache.GetAuthor(context.Background(), domain.ContentPost, 1)
		require.NoError(t, err)
		assert.Equal(t, authorID, author.ID)
	}

	assert.Equal(t, 1, next.lookups)
}

func TestCachedAuthorLookup_ExpiresAfterTTL(t *testing.T) {
	next := &fakeAuthors{authors: map[string]domain.Author{
		"post:1": {ID: uuid.New(), DisplayName: "sam"},
	}}
	cache := NewCachedAuthorLookup(next, 5*time.Minute, 30*time.Second)

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	current := start
	cache.now = func() time.Time { return current }

	_, err := cache.GetAuthor(context.Background(), domain.ContentPost, 1)
	require.NoError(t, err)

	current = start.Add(6 * time.Minute)
	_, err = cache.GetAuthor(context.Background(), domain.ContentPost, 1)
	require.NoError(t, err)

	assert.Equal(t, 2, next.lookups)
}

func TestCachedAuthorLookup_CachesNotFoundBriefly(t *testing.T) {
	next := &fakeAuthors{}
	cache := NewCachedAuthorLookup(next, 5*time.Minute, 30*time.Second)

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	current := start
	cache.now = func() time.Time { return current }

	_, err := cache.GetAuthor(context.Background(), domain.ContentVideo, 9)
	assert.ErrorIs(t, err, apperrors.ErrAuthorNotFound)

	// Within the negative window the miss is served from cache.
	current = start.Add(10 * time.Second)
	_, err = cache.GetAuthor(context.Background(), domain.ContentVideo, 9)
	assert.ErrorIs(t, err, apperrors.ErrAuthorNotFound)
	assert.Equal(t, 1, next.lookups)

	// Newly published content becomes visible once the window lapses.
	next.authors = map[string]domain.Author{"video:9": {ID: uuid.New(), DisplayName: "sam"}}
	current = start.Add(time.Minute)
	author, err := cache.GetAuthor(context.Background(), domain.ContentVideo, 9)
	require.NoError(t, err)
	assert.Equal(t, "sam", author.DisplayName)
	assert.Equal(t, 2, next.lookups)
}

func TestCachedAuthorLookup_DistinctKeysPerContent(t *testing.T) {
	next := &fakeAuthors{authors: map[string]domain.Author{
		"post:1":  {ID: uuid.New(), DisplayName: "sam"},
		"video:1": {ID: uuid.New(), DisplayName: "alex"},
	}}
	cache := NewCachedAuthorLookup(next, 5*time.Minute, 30*time.Second)

	post, err := cache.GetAuthor(context.Background(), domain.ContentPost, 1)
	require.NoError(t, err)
	video, err := cache.GetAuthor(context.Background(), domain.ContentVideo, 1)
	require.NoError(t, err)

	assert.NotEqual(t, post.ID, video.ID)
	assert.Equal(t, 2, next.lookups)
}

func TestCachedAuthorLookup_ReturnsCopies(t *testing.T) {
	next := &fakeAuthors{authors: map[string]domain.Author{
		"post:1": {ID: uuid.New(), DisplayName: "sam"},
	}}
	cache := NewCachedAuthorLookup(next, 5*time.Minute, 30*time.Second)

	first, err := cache.GetAuthor(context.Background(), domain.ContentPost, 1)
	require.NoError(t, err)
	first.DisplayName = "mutated"

	second, err := cache.GetAuthor(context.Background(), domain.ContentPost, 1)
	require.NoError(t, err)
	assert.Equal(t, "sam", second.DisplayName)
}
