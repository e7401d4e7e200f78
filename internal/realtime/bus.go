package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"marketchat/internal/metrics"
)

// ParticipantSource resolves who should receive an event. The bus looks
// membership up per event, so a membership change is reflected on the next
// fan-out without a registry refresh step.
type ParticipantSource interface {
	ParticipantIDs(ctx context.Context, conversationID string) ([]string, error)
	// CounterpartIDs lists users sharing at least one conversation with the
	// given user; presence transitions go to their sessions.
	CounterpartIDs(ctx context.Context, userID string) ([]string, error)
}

// Bus fans domain events out to the sessions of conversation participants.
// Typing state and presence refcounts live only here: they have no replay
// requirement and a different lifecycle than persisted events.
type Bus struct {
	hub   *Hub
	parts ParticipantSource
	log   *zap.Logger

	typingExpiry     time.Duration
	presenceDebounce time.Duration

	mu            sync.Mutex
	eventSeq      map[string]int64                     // conversation id -> last event seq
	typing        map[string]map[string]*time.Timer    // conversation id -> user id -> expiry timer
	offlineTimers map[string]*time.Timer               // user id -> pending offline broadcast
}

func NewBus(hub *Hub, parts ParticipantSource, typingExpiry, presenceDebounce time.Duration, log *zap.Logger) *Bus {
	if typingExpiry <= 0 {
		typingExpiry = 5 * time.Second
	}
	if presenceDebounce <= 0 {
		presenceDebounce = 3 * time.Second
	}
	return &Bus{
		hub:              hub,
		parts:            parts,
		log:              log,
		typingExpiry:     typingExpiry,
		presenceDebounce: presenceDebounce,
		eventSeq:         make(map[string]int64),
		typing:           make(map[string]map[string]*time.Timer),
		offlineTimers:    make(map[string]*time.Timer),
	}
}

// Publish delivers an event to every session of the conversation's
// participants. Typing events skip the originator's own sessions. Delivery
// failures are dropped and counted, never retried in the write path.
func (b *Bus) Publish(ctx context.Context, ev Event) {
	userIDs, err := b.parts.ParticipantIDs(ctx, ev.ConversationID)
	if err != nil {
		b.log.Warn("participant lookup failed, event dropped",
			zap.String("conversation_id", ev.ConversationID),
			zap.String("kind", string(ev.Kind)),
			zap.Error(err))
		return
	}

	if ev.Kind == EventTypingStart || ev.Kind == EventTypingStop {
		userIDs = exclude(userIDs, ev.UserID)
	}

	ev.Seq = b.nextSeq(ev.ConversationID)
	b.fanout(ev, userIDs)
}

func (b *Bus) nextSeq(conversationID string) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.eventSeq[conversationID]++
	return b.eventSeq[conversationID]
}

func (b *Bus) fanout(ev Event, userIDs []string) {
	payload, err := json.Marshal(ev)
	if err != nil {
		b.log.Error("event marshal failed", zap.Error(err))
		return
	}
	for _, s := range b.hub.SessionsFor(userIDs) {
		if s.TrySend(payload) {
			metrics.EventsPushed.WithLabelValues(string(ev.Kind)).Inc()
			continue
		}
		metrics.PushBackpressure.Inc()
		b.log.Warn("session queue full or closed, event dropped",
			zap.String("session_id", s.ID),
			zap.String("user_id", s.UserID),
			zap.String("kind", string(ev.Kind)))
	}
}

// TypingStart publishes the indicator and arms (or re-arms) the auto-expiry
// timer. If no stop follows within the expiry window the bus emits the stop
// itself.
func (b *Bus) TypingStart(ctx context.Context, conversationID, userID string) {
	b.mu.Lock()
	byUser, ok := b.typing[conversationID]
	if !ok {
		byUser = make(map[string]*time.Timer)
		b.typing[conversationID] = byUser
	}
	if t, ok := byUser[userID]; ok {
		t.Stop()
	}
	byUser[userID] = time.AfterFunc(b.typingExpiry, func() {
		b.TypingStop(context.Background(), conversationID, userID)
	})
	b.mu.Unlock()

	b.Publish(ctx, Event{Kind: EventTypingStart, ConversationID: conversationID, UserID: userID})
}

// TypingStop clears any pending expiry and publishes the stop. Safe to call
// when no indicator is active.
func (b *Bus) TypingStop(ctx context.Context, conversationID, userID string) {
	b.mu.Lock()
	byUser := b.typing[conversationID]
	t, active := byUser[userID]
	if active {
		t.Stop()
		delete(byUser, userID)
		if len(byUser) == 0 {
			delete(b.typing, conversationID)
		}
	}
	b.mu.Unlock()

	if !active {
		return
	}
	b.Publish(ctx, Event{Kind: EventTypingStop, ConversationID: conversationID, UserID: userID})
}

// Connect registers a session. The first session for a user cancels any
// pending offline broadcast; a 0 -> 1 transition announces the user online.
func (b *Bus) Connect(ctx context.Context, s *Session) {
	count := b.hub.Add(s)
	metrics.OnlineSessions.Set(float64(b.hub.Len()))
	metrics.OnlineUsers.Set(float64(b.hub.Users()))

	if count != 1 {
		return
	}

	b.mu.Lock()
	pending := b.offlineTimers[s.UserID]
	if pending != nil {
		pending.Stop()
		delete(b.offlineTimers, s.UserID)
	}
	b.mu.Unlock()

	// A reconnect inside the debounce window is invisible to others.
	if pending == nil {
		b.broadcastPresence(ctx, s.UserID, true)
	}
}

// Disconnect removes a session. The offline transition is broadcast only when
// the last session closes, debounced to absorb rapid reconnects.
func (b *Bus) Disconnect(userID, sessionID string) {
	remaining := b.hub.Remove(userID, sessionID)
	metrics.OnlineSessions.Set(float64(b.hub.Len()))
	metrics.OnlineUsers.Set(float64(b.hub.Users()))

	if remaining > 0 {
		return
	}

	b.mu.Lock()
	if t, ok := b.offlineTimers[userID]; ok {
		t.Stop()
	}
	b.offlineTimers[userID] = time.AfterFunc(b.presenceDebounce, func() {
		b.mu.Lock()
		delete(b.offlineTimers, userID)
		b.mu.Unlock()
		if !b.hub.Online(userID) {
			b.broadcastPresence(context.Background(), userID, false)
		}
	})
	b.mu.Unlock()
}

func (b *Bus) broadcastPresence(ctx context.Context, userID string, online bool) {
	counterparts, err := b.parts.CounterpartIDs(ctx, userID)
	if err != nil {
		b.log.Warn("counterpart lookup failed, presence dropped",
			zap.String("user_id", userID), zap.Error(err))
		return
	}
	ev := Event{
		Kind:    EventPresenceChanged,
		UserID:  userID,
		Payload: PresencePayload{Online: online},
	}
	b.fanout(ev, counterparts)
}

func exclude(ids []string, skip string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != skip {
			out = append(out, id)
		}
	}
	return out
}
