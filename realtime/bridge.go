package realtime

import (
	"context"
	"sync"

	"github.com/booksnap/booksnap-api/cache"
	"go.uber.org/zap"
)

// Invalidator is the part of the query cache the bridge drives.
type Invalidator interface {
	Invalidate(key cache.Key)
	InvalidateFamily(families ...string)
}

// Bridge turns message insert events into cache invalidations for the
// conversation being viewed and every conversation list. Each Watch lives
// exactly as long as the viewer: it ends on Close, on context cancellation,
// on sign-out through CloseUser, or when the broker goes away.
type Bridge struct {
	broker Broker
	cache  Invalidator
	log    *zap.Logger

	mu      sync.Mutex
	watches map[string]map[*Watch]struct{}
}

func NewBridge(broker Broker, inv Invalidator, log *zap.Logger) *Bridge {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bridge{
		broker:  broker,
		cache:   inv,
		log:     log,
		watches: make(map[string]map[*Watch]struct{}),
	}
}

// Watch is one viewer's subscription to a conversation.
type Watch struct {
	UserID         string
	ConversationID string

	bridge *Bridge
	sub    Subscription
	notify chan Event
	done   chan struct{}
	once   sync.Once
}

// Watch subscribes userID to changes on conversationID. Callers must either
// Close the watch or cancel ctx.
func (b *Bridge) Watch(ctx context.Context, userID, conversationID string) (*Watch, error) {
	sub, err := b.broker.Subscribe(ctx, MessagesTopic(conversationID))
	if err != nil {
		return nil, err
	}
	w := &Watch{
		UserID:         userID,
		ConversationID: conversationID,
		bridge:         b,
		sub:            sub,
		notify:         make(chan Event, 1),
		done:           make(chan struct{}),
	}

	b.mu.Lock()
	if b.watches[userID] == nil {
		b.watches[userID] = make(map[*Watch]struct{})
	}
	b.watches[userID][w] = struct{}{}
	b.mu.Unlock()

	b.log.Debug("watch opened",
		zap.String("user_id", userID), zap.String("conversation_id", conversationID))
	go w.run(ctx)
	return w, nil
}

// Notify delivers at most one pending event at a time and is closed when
// the watch ends.
func (w *Watch) Notify() <-chan Event {
	return w.notify
}

// Done is closed when the watch ends.
func (w *Watch) Done() <-chan struct{} {
	return w.done
}

// Close ends the watch and releases its subscription. It is idempotent.
func (w *Watch) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.sub.Close()
		w.bridge.forget(w)
		w.bridge.log.Debug("watch closed",
			zap.String("user_id", w.UserID), zap.String("conversation_id", w.ConversationID))
	})
	return err
}

func (w *Watch) run(ctx context.Context) {
	defer close(w.notify)
	events := w.sub.Events()
	for {
		select {
		case <-ctx.Done():
			_ = w.Close()
			return
		case <-w.done:
			return
		case event, ok := <-events:
			if !ok {
				_ = w.Close()
				return
			}
			w.bridge.invalidate(w.ConversationID)
			select {
			case w.notify <- event:
			default:
			}
		}
	}
}

func (b *Bridge) invalidate(conversationID string) {
	if b.cache == nil {
		return
	}
	b.cache.Invalidate(cache.ConversationKey(conversationID))
	b.cache.InvalidateFamily(cache.FamilyConversations)
}

// CloseUser ends every watch held by userID and reports how many ended.
func (b *Bridge) CloseUser(userID string) int {
	b.mu.Lock()
	set := b.watches[userID]
	watches := make([]*Watch, 0, len(set))
	for w := range set {
		watches = append(watches, w)
	}
	b.mu.Unlock()

	for _, w := range watches {
		_ = w.Close()
	}
	return len(watches)
}

// Active returns the number of open watches held by userID.
func (b *Bridge) Active(userID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.watches[userID])
}

// Close ends every open watch.
func (b *Bridge) Close() {
	b.mu.Lock()
	var watches []*Watch
	for _, set := range b.watches {
		for w := range set {
			watches = append(watches, w)
		}
	}
	b.mu.Unlock()

	for _, w := range watches {
		_ = w.Close()
	}
}

func (b *Bridge) forget(w *Watch) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set := b.watches[w.UserID]
	delete(set, w)
	if len(set) == 0 {
		delete(b.watches, w.UserID)
	}
}
