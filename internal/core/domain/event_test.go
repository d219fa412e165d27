package domain_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipstream/realtime-backend/internal/core/domain"
)

func TestEventKind_Valid(t *testing.T) {
	tests := []struct {
		name string
		kind domain.EventKind
		want bool
	}{
		{"CONTENT_LIKED is valid", domain.KindContentLiked, true},
		{"CONTENT_UNLIKED is valid", domain.KindContentUnliked, true},
		{"COMMENT_CREATED is valid", domain.KindCommentCreated, true},
		{"FOLLOW_CREATED is valid", domain.KindFollowCreated, true},
		{"FOLLOW_REMOVED is valid", domain.KindFollowRemoved, true},
		{"CONTENT_PUBLISHED is valid", domain.KindContentPublished, true},
		{"empty is invalid", domain.EventKind(""), false},
		{"lowercase is invalid", domain.EventKind("content_liked"), false},
		{"unknown kind is invalid", domain.EventKind("CONTENT_SHARED"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.kind.Valid())
		})
	}
}

func TestEventKind_HasContentTarget(t *testing.T) {
	assert.True(t, domain.KindContentLiked.HasContentTarget())
	assert.True(t, domain.KindCommentCreated.HasContentTarget())
	assert.True(t, domain.KindContentPublished.HasContentTarget())
	assert.False(t, domain.KindFollowCreated.HasContentTarget())
	assert.False(t, domain.KindFollowRemoved.HasContentTarget())
}

func TestDomainEvent_TargetKey(t *testing.T) {
	authorID := uuid.New()

	contentEvent := domain.DomainEvent{
		Kind:        domain.KindContentLiked,
		ContentType: domain.ContentPost,
		ContentID:   42,
	}
	assert.Equal(t, "CONTENT_LIKED|post:42", contentEvent.TargetKey())

	followEvent := domain.DomainEvent{
		Kind:     domain.KindFollowCreated,
		AuthorID: authorID,
	}
	assert.Equal(t, "FOLLOW_CREATED|user:"+authorID.String(), followEvent.TargetKey())
}

func TestDomainEvent_TargetKey_IgnoresActor(t *testing.T) {
	// Two different users liking the same post share a debounce target.
	base := domain.DomainEvent{
		Kind:        domain.KindContentLiked,
		ContentType: domain.ContentVideo,
		ContentID:   7,
	}
	a := base
	a.ActorID = uuid.New()
	b := base
	b.ActorID = uuid.New()

	assert.Equal(t, a.TargetKey(), b.TargetKey())
}

func TestDomainEvent_IdempotencyKey(t *testing.T) {
	actorID := uuid.New()
	base := domain.DomainEvent{
		Kind:        domain.KindContentLiked,
		ContentType: domain.ContentPost,
		ContentID:   1,
		ActorID:     actorID,
	}

	t.Run("same action in same bucket collides", func(t *testing.T) {
		a := base
		a.CreatedAt = time.Date(2026, 3, 1, 12, 0, 0, 100, time.UTC)
		b := base
		b.CreatedAt = time.Date(2026, 3, 1, 12, 0, 0, 900, time.UTC)

		require.Equal(t, a.IdempotencyKey(2*time.Second), b.IdempotencyKey(2*time.Second))
	})

	t.Run("different buckets differ", func(t *testing.T) {
		a := base
		a.CreatedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		b := base
		b.CreatedAt = time.Date(2026, 3, 1, 12, 0, 4, 0, time.UTC)

		require.NotEqual(t, a.IdempotencyKey(2*time.Second), b.IdempotencyKey(2*time.Second))
	})

	t.Run("different actors differ", func(t *testing.T) {
		a := base
		a.CreatedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		b := a
		b.ActorID = uuid.New()

		require.NotEqual(t, a.IdempotencyKey(2*time.Second), b.IdempotencyKey(2*time.Second))
	})
}

func TestRoomKeys(t *testing.T) {
	userID := uuid.New()

	userRoom := domain.UserRoom(userID)
	assert.Equal(t, domain.RoomKey("user:"+userID.String()), userRoom)
	assert.True(t, userRoom.IsUserRoom())
	assert.False(t, userRoom.IsContentRoom())

	contentRoom := domain.ContentRoom(domain.ContentVideo, 99)
	assert.Equal(t, domain.RoomKey("content:video:99"), contentRoom)
	assert.True(t, contentRoom.IsContentRoom())
	assert.False(t, contentRoom.IsUserRoom())
}

func TestRoomKey_ParseContentRoom(t *testing.T) {
	tests := []struct {
		name     string
		key      domain.RoomKey
		wantType domain.ContentType
		wantID   int64
		wantOK   bool
	}{
		{"valid post room", domain.RoomKey("content:post:42"), domain.ContentPost, 42, true},
		{"valid video room", domain.RoomKey("content:video:1"), domain.ContentVideo, 1, true},
		{"user room is not content", domain.RoomKey("user:" + uuid.NewString()), "", 0, false},
		{"unknown content type", domain.RoomKey("content:story:5"), "", 0, false},
		{"non-numeric id", domain.RoomKey("content:post:abc"), "", 0, false},
		{"zero id", domain.RoomKey("content:post:0"), "", 0, false},
		{"negative id", domain.RoomKey("content:post:-3"), "", 0, false},
		{"missing segments", domain.RoomKey("content:post"), "", 0, false},
		{"empty key", domain.RoomKey(""), "", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ct, id, ok := tt.key.ParseContentRoom()
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantType, ct)
				assert.Equal(t, tt.wantID, id)
			}
		})
	}
}
