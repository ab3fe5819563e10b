package chat

import (
	"context"
	"fmt"
	"sync"

	"github.com/noorbazaar/storefront-backend/pkg/db/models"
	"github.com/noorbazaar/storefront-backend/pkg/logger"
	"github.com/noorbazaar/storefront-backend/pkg/metrics"
	"github.com/noorbazaar/storefront-backend/pkg/redis"
)

// FeedState tracks one conversation subscription.
type FeedState int

const (
	StateDisconnected FeedState = iota
	StateSyncing
	StateLive
)

func (s FeedState) String() string {
	switch s {
	case StateSyncing:
		return "syncing"
	case StateLive:
		return "live"
	default:
		return "disconnected"
	}
}

// FeedSource delivers change-event payloads for one conversation. The closer
// tears the underlying channel down and ends the stream.
type FeedSource interface {
	SubscribeConversation(ctx context.Context, conversationID string) (<-chan string, func() error, error)
}

type historyLoader interface {
	History(ctx context.Context, conversationID string) ([]models.SupportMessage, error)
}

// Subscriber keeps a local copy of one conversation's feed. Every change
// notification triggers a full reload, there is no incremental merge, so the
// local list is only eventually consistent with the server's ordering.
type Subscriber struct {
	source  FeedSource
	loader  historyLoader
	logg    *logger.Logger
	metrics *metrics.ChatMetrics

	mu             sync.RWMutex
	state          FeedState
	conversationID string
	messages       []models.SupportMessage
	closer         func() error
	done           chan struct{}

	// OnChange, when set before Subscribe, runs after every reload with the
	// fresh snapshot. Called from the consumer goroutine.
	OnChange func(conversationID string, messages []models.SupportMessage)
}

// NewSubscriber builds a feed subscriber in the disconnected state.
func NewSubscriber(source FeedSource, loader historyLoader, logg *logger.Logger, chatMetrics *metrics.ChatMetrics) (*Subscriber, error) {
	if source == nil {
		return nil, fmt.Errorf("feed source required")
	}
	if loader == nil {
		return nil, fmt.Errorf("history loader required")
	}
	return &Subscriber{
		source:  source,
		loader:  loader,
		logg:    logg,
		metrics: chatMetrics,
	}, nil
}

// Subscribe syncs the feed and then follows change notifications until
// Unsubscribe. A failed initial sync or channel setup leaves the subscriber
// disconnected, re-subscribing is the caller's retry mechanism.
func (s *Subscriber) Subscribe(ctx context.Context, conversationID string) error {
	if conversationID == "" {
		s.Unsubscribe()
		return nil
	}
	s.Unsubscribe()

	s.setState(StateSyncing, conversationID)

	messages, err := s.loader.History(ctx, conversationID)
	if err != nil {
		s.setState(StateDisconnected, "")
		return err
	}

	events, closer, err := s.source.SubscribeConversation(ctx, conversationID)
	if err != nil {
		s.setState(StateDisconnected, "")
		return err
	}

	done := make(chan struct{})
	s.mu.Lock()
	s.state = StateLive
	s.conversationID = conversationID
	s.messages = messages
	s.closer = closer
	s.done = done
	s.mu.Unlock()

	go s.consume(ctx, conversationID, events, done)
	return nil
}

// Unsubscribe releases the channel and returns to the disconnected state.
func (s *Subscriber) Unsubscribe() {
	s.mu.Lock()
	closer := s.closer
	done := s.done
	s.state = StateDisconnected
	s.conversationID = ""
	s.messages = nil
	s.closer = nil
	s.done = nil
	s.mu.Unlock()

	if closer != nil {
		if err := closer(); err != nil && s.logg != nil {
			s.logg.Warn(context.Background(), "feed channel close failed")
		}
	}
	if done != nil {
		<-done
	}
}

func (s *Subscriber) setState(state FeedState, conversationID string) {
	s.mu.Lock()
	s.state = state
	s.conversationID = conversationID
	s.mu.Unlock()
}

// State reports the current subscription state.
func (s *Subscriber) State() FeedState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Messages returns the latest feed snapshot.
func (s *Subscriber) Messages() []models.SupportMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot := make([]models.SupportMessage, len(s.messages))
	copy(snapshot, s.messages)
	return snapshot
}

func (s *Subscriber) consume(ctx context.Context, conversationID string, events <-chan string, done chan struct{}) {
	defer close(done)
	for range events {
		s.mu.RLock()
		stale := s.conversationID != conversationID
		s.mu.RUnlock()
		if stale {
			// keep draining until the closed channel ends the stream
			continue
		}

		messages, err := s.loader.History(ctx, conversationID)
		if err != nil {
			if s.logg != nil {
				s.logg.Warn(s.logg.WithConversationID(ctx, conversationID), "feed reload failed")
			}
			continue
		}
		s.metrics.IncReload()

		s.mu.Lock()
		if s.conversationID == conversationID {
			s.messages = messages
		}
		s.mu.Unlock()
		if s.OnChange != nil {
			s.OnChange(conversationID, messages)
		}
	}
}

type redisFeedSource struct {
	client *redis.Client
}

// NewRedisFeedSource follows conversation change events over Redis pub/sub.
func NewRedisFeedSource(client *redis.Client) FeedSource {
	return &redisFeedSource{client: client}
}

func (s *redisFeedSource) SubscribeConversation(ctx context.Context, conversationID string) (<-chan string, func() error, error) {
	pubsub := s.client.Subscribe(ctx, s.client.ConversationChannel(conversationID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("subscribing conversation channel: %w", err)
	}

	out := make(chan string)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			out <- msg.Payload
		}
	}()
	return out, pubsub.Close, nil
}
