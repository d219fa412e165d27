package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clipstream/realtime-backend/internal/core/domain"
	apperrors "github.com/clipstream/realtime-backend/internal/core/errors"
	"github.com/clipstream/realtime-backend/internal/core/ports"
)

// DispatcherConfig tunes the dedup and debounce behaviour. The windows
// are configurable defaults, not fixed constants.
type DispatcherConfig struct {
	DedupWindow    time.Duration
	DebounceWindow time.Duration
	Channel        string // Cluster fan-out channel
	InstanceID     string // This process; filters self-origin messages
	PublishTimeout time.Duration
}

// DefaultDispatcherConfig returns the documented default windows.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		DedupWindow:    2 * time.Second,
		DebounceWindow: 1 * time.Second,
		Channel:        "realtime:events",
		PublishTimeout: 2 * time.Second,
	}
}

// pendingBatch accumulates events sharing a target key during one
// debounce window. The latest event wins the count; actors are kept
// distinct in arrival order.
type pendingBatch struct {
	latest   domain.DomainEvent
	author   domain.Author
	actors   []domain.Actor
	actorSet map[uuid.UUID]struct{}
	merged   int
	timer    *time.Timer
}

// Dispatcher is the single write entry point into the real-time
// subsystem. It validates events, drops duplicates, coalesces bursts, and
// routes the result to local rooms and sibling instances.
//
// Delivery is best-effort and fire-and-forget: Emit never blocks on
// delivery, and a delivery failure never propagates to the caller.
type Dispatcher struct {
	rooms   ports.RoomManager
	authors ports.AuthorLookup
	broker  ports.Broker

	cfg    DispatcherConfig
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	seen    map[string]time.Time // idempotency key -> expiry
	pending map[string]*pendingBatch
	closed  bool
}

var _ ports.EventDispatcher = (*Dispatcher)(nil)

// NewDispatcher creates a dispatcher. broker may be nil for single-instance
// deployments; local delivery still works.
func NewDispatcher(
	rooms ports.RoomManager,
	authors ports.AuthorLookup,
	broker ports.Broker,
	cfg DispatcherConfig,
	logger *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		rooms:   rooms,
		authors: authors,
		broker:  broker,
		cfg:     cfg,
		logger:  logger.With("component", "dispatcher"),
		now:     time.Now,
		seen:    make(map[string]time.Time),
		pending: make(map[string]*pendingBatch),
	}
}

// Emit validates and enqueues a domain event for delivery. A non-nil
// error always means the event was invalid and dropped; delivery problems
// are logged, never returned.
func (d *Dispatcher) Emit(ctx context.Context, event domain.DomainEvent) (domain.DispatchResult, error) {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = d.now()
	}

	if err := validateEvent(event); err != nil {
		d.logger.Warn("event dropped: validation failed",
			"kind", event.Kind,
			"actor_id", event.ActorID,
			"error", err,
		)
		return "", fmt.Errorf("%w: %w", apperrors.ErrValidationFailed, err)
	}

	author, err := d.resolveAuthor(ctx, event)
	if err != nil {
		d.logger.Warn("event dropped: author resolution failed",
			"kind", event.Kind,
			"content_type", event.ContentType,
			"content_id", event.ContentID,
			"error", err,
		)
		return "", fmt.Errorf("%w: %w", apperrors.ErrValidationFailed, err)
	}

	now := d.now()

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return "", apperrors.ErrDispatcherClosed
	}

	d.pruneSeenLocked(now)

	idemKey := event.IdempotencyKey(d.cfg.DedupWindow)
	if expiry, dup := d.seen[idemKey]; dup && now.Before(expiry) {
		d.mu.Unlock()
		d.logger.Debug("event deduplicated", "key", idemKey)
		return domain.DispatchDeduplicated, nil
	}
	d.seen[idemKey] = now.Add(d.cfg.DedupWindow)

	targetKey := event.TargetKey()
	if batch, open := d.pending[targetKey]; open {
		batch.latest = event
		batch.author = author
		batch.merged++
		if _, known := batch.actorSet[event.ActorID]; !known {
			batch.actorSet[event.ActorID] = struct{}{}
			batch.actors = append(batch.actors, domain.Actor{ID: event.ActorID, Name: event.ActorName})
		}
		d.mu.Unlock()
		return domain.DispatchCoalesced, nil
	}

	batch := &pendingBatch{
		latest:   event,
		author:   author,
		actors:   []domain.Actor{{ID: event.ActorID, Name: event.ActorName}},
		actorSet: map[uuid.UUID]struct{}{event.ActorID: {}},
		merged:   1,
	}
	batch.timer = time.AfterFunc(d.cfg.DebounceWindow, func() {
		d.flush(targetKey)
	})
	d.pending[targetKey] = batch
	d.mu.Unlock()

	return domain.DispatchAccepted, nil
}

// HandleClusterMessage is the broker subscription handler. Messages
// published by this instance are ignored; everything else goes straight
// to local room delivery, bypassing dedup and debounce (the origin
// instance already did both).
func (d *Dispatcher) HandleClusterMessage(payload []byte) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		d.logger.Warn("dropping malformed cluster message", "error", err)
		return
	}
	if env.Origin == d.cfg.InstanceID {
		return
	}

	for _, room := range env.Rooms {
		d.rooms.Broadcast(domain.RoomKey(room), env.Payload)
	}
}

// Close flushes every open debounce window and rejects further emissions.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true

	batches := make([]*pendingBatch, 0, len(d.pending))
	for key, batch := range d.pending {
		batch.timer.Stop()
		batches = append(batches, batch)
		delete(d.pending, key)
	}
	d.mu.Unlock()

	for _, batch := range batches {
		d.deliver(batch)
	}
}

// flush closes the debounce window for one target and delivers its batch.
func (d *Dispatcher) flush(targetKey string) {
	d.mu.Lock()
	batch, ok := d.pending[targetKey]
	if !ok {
		d.mu.Unlock()
		return
	}
	delete(d.pending, targetKey)
	d.mu.Unlock()

	d.deliver(batch)
}

func (d *Dispatcher) deliver(batch *pendingBatch) {
	event := batch.latest
	batched := domain.BatchedEvent{
		Kind:       event.Kind,
		AuthorID:   batch.author.ID,
		Count:      event.Count,
		Actors:     batch.actors,
		EventCount: batch.merged,
		OccurredAt: event.CreatedAt,
	}
	if event.Kind.HasContentTarget() {
		batched.ContentType = event.ContentType
		batched.ContentID = event.ContentID
	}

	payload, err := json.Marshal(batched)
	if err != nil {
		d.logger.Error("failed to marshal batched event", "kind", event.Kind, "error", err)
		return
	}

	routes := d.routesFor(batch)
	for _, room := range routes {
		d.rooms.Broadcast(room, payload)
	}

	d.logger.Debug("batch delivered",
		"kind", event.Kind,
		"rooms", len(routes),
		"events_merged", batch.merged,
		"actors", len(batch.actors),
	)

	d.publish(routes, payload)
}

// routesFor picks the delivery targets: the content viewer room always
// (live counts stay synced for everyone, the actor included), and the
// author's inbox unless the author is the only actor — nobody gets
// notified about their own action.
func (d *Dispatcher) routesFor(batch *pendingBatch) []domain.RoomKey {
	event := batch.latest
	routes := make([]domain.RoomKey, 0, 2)

	if event.Kind.HasContentTarget() {
		routes = append(routes, domain.ContentRoom(event.ContentType, event.ContentID))
	}

	for _, actor := range batch.actors {
		if actor.ID != batch.author.ID {
			routes = append(routes, domain.UserRoom(batch.author.ID))
			break
		}
	}

	return routes
}

// envelope is the wire format between instances.
type envelope struct {
	Origin  string          `json:"origin"`
	Rooms   []string        `json:"rooms"`
	Payload json.RawMessage `json:"payload"`
}

// publish republishes a delivered batch cluster-wide. Failure degrades to
// local-only delivery; it never propagates upstream.
func (d *Dispatcher) publish(routes []domain.RoomKey, payload []byte) {
	if d.broker == nil || len(routes) == 0 {
		return
	}

	rooms := make([]string, len(routes))
	for i, r := range routes {
		rooms[i] = string(r)
	}

	data, err := json.Marshal(envelope{
		Origin:  d.cfg.InstanceID,
		Rooms:   rooms,
		Payload: payload,
	})
	if err != nil {
		d.logger.Error("failed to marshal cluster envelope", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.PublishTimeout)
	defer cancel()

	if err := d.broker.Publish(ctx, d.cfg.Channel, data); err != nil {
		d.logger.Warn("cluster publish failed, delivered locally only", "error", err)
	}
}

func (d *Dispatcher) resolveAuthor(ctx context.Context, event domain.DomainEvent) (domain.Author, error) {
	if !event.Kind.HasContentTarget() {
		// Follow events target the followee directly.
		return domain.Author{ID: event.AuthorID}, nil
	}

	author, err := d.authors.GetAuthor(ctx, event.ContentType, event.ContentID)
	if err != nil {
		return domain.Author{}, err
	}
	return *author, nil
}

// pruneSeenLocked drops expired dedup entries. Callers hold d.mu.
func (d *Dispatcher) pruneSeenLocked(now time.Time) {
	for key, expiry := range d.seen {
		if now.After(expiry) {
			delete(d.seen, key)
		}
	}
}

func validateEvent(e domain.DomainEvent) error {
	if !e.Kind.Valid() {
		return apperrors.ErrUnknownEventKind
	}
	if e.ActorID == uuid.Nil {
		return apperrors.ErrActorRequired
	}
	if e.ActorName == "" {
		return apperrors.ErrActorNameRequired
	}
	if e.Count < 0 {
		return apperrors.ErrNegativeCount
	}
	if e.Kind.HasContentTarget() {
		if !e.ContentType.Valid() {
			return apperrors.ErrUnknownContent
		}
		if e.ContentID <= 0 {
			return apperrors.ErrContentIDRequired
		}
	} else if e.AuthorID == uuid.Nil {
		return apperrors.ErrAuthorRequired
	}
	return nil
}
