package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventKind identifies the type of domain event announced over the
// real-time channel. The set is closed: the dispatcher rejects any kind
// not listed here.
type EventKind string

const (
	KindContentLiked     EventKind = "CONTENT_LIKED"
	KindContentUnliked   EventKind = "CONTENT_UNLIKED"
	KindCommentCreated   EventKind = "COMMENT_CREATED"
	KindFollowCreated    EventKind = "FOLLOW_CREATED"
	KindFollowRemoved    EventKind = "FOLLOW_REMOVED"
	KindContentPublished EventKind = "CONTENT_PUBLISHED"
)

// Valid reports whether the kind is one of the known event kinds.
func (k EventKind) Valid() bool {
	switch k {
	case KindContentLiked, KindContentUnliked, KindCommentCreated,
		KindFollowCreated, KindFollowRemoved, KindContentPublished:
		return true
	}
	return false
}

// HasContentTarget reports whether events of this kind reference a piece
// of content. Follow events target a user, not content.
func (k EventKind) HasContentTarget() bool {
	switch k {
	case KindFollowCreated, KindFollowRemoved:
		return false
	}
	return true
}

// ContentType identifies the kind of content an event targets.
type ContentType string

const (
	ContentPost  ContentType = "post"
	ContentVideo ContentType = "video"
)

// Valid reports whether the content type is known.
func (t ContentType) Valid() bool {
	return t == ContentPost || t == ContentVideo
}

// Actor is the user who performed the action being announced.
type Actor struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// DomainEvent is an immutable record of a state change that completed in
// the CRUD layer and should be announced to connected clients.
type DomainEvent struct {
	Kind        EventKind
	ContentType ContentType
	ContentID   int64
	AuthorID    uuid.UUID // content author, or followee for follow events
	ActorID     uuid.UUID
	ActorName   string
	Count       int64 // resulting aggregate count after the mutation
	CreatedAt   time.Time
}

// TargetKey identifies the (kind, target) pair used for debouncing.
// Rapid events sharing a target key are coalesced into one delivery.
func (e DomainEvent) TargetKey() string {
	if e.Kind.HasContentTarget() {
		return fmt.Sprintf("%s|%s:%d", e.Kind, e.ContentType, e.ContentID)
	}
	return fmt.Sprintf("%s|user:%s", e.Kind, e.AuthorID)
}

// IdempotencyKey derives a deterministic key from (kind, target, actor,
// timestamp bucket). Two emissions of the same action within one bucket
// produce the same key and are treated as duplicates.
func (e DomainEvent) IdempotencyKey(bucket time.Duration) string {
	ts := e.CreatedAt
	if bucket > 0 {
		ts = ts.Truncate(bucket)
	}
	return fmt.Sprintf("%s|%s|%d", e.TargetKey(), e.ActorID, ts.UnixNano())
}

// BatchedEvent is the payload actually delivered to clients: one or more
// DomainEvents sharing a target key, coalesced within the debounce window.
// Count carries the final state; Actors lists the distinct acting users in
// arrival order.
type BatchedEvent struct {
	Kind        EventKind   `json:"kind"`
	ContentType ContentType `json:"contentType,omitempty"`
	ContentID   int64       `json:"contentId,omitempty"`
	AuthorID    uuid.UUID   `json:"authorId"`
	Count       int64       `json:"count"`
	Actors      []Actor     `json:"actors"`
	EventCount  int         `json:"eventCount"`
	OccurredAt  time.Time   `json:"occurredAt"`
}

// DispatchResult describes what the dispatcher did with an emitted event.
type DispatchResult string

const (
	// DispatchAccepted means the event opened a new debounce window and
	// will be delivered when the window closes.
	DispatchAccepted DispatchResult = "accepted"
	// DispatchCoalesced means the event was merged into an already-open
	// debounce window for its target.
	DispatchCoalesced DispatchResult = "coalesced"
	// DispatchDeduplicated means an identical emission was already seen
	// within the dedup window and this one was dropped.
	DispatchDeduplicated DispatchResult = "deduplicated"
)
