package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/noorbazaar/storefront-backend/pkg/config"
	"github.com/noorbazaar/storefront-backend/pkg/logger"
)

// Roles a presence record can carry.
const (
	RoleCustomer = "customer"
	RoleStaff    = "staff"
)

// Record is the ephemeral presence payload stored per online participant.
// It lives behind a TTL and disappears when the client stops refreshing.
type Record struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	LastSeen    time.Time `json:"last_seen"`
}

type presenceStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
	ScanKeys(ctx context.Context, pattern string) ([]string, error)
	TypingKey(conversationID, userID string) string
	TypingPattern(conversationID string) string
	OnlineKey(userID string) string
	OnlinePattern() string
}

// Tracker maintains the two presence signals, typing and online, as
// fire-and-forget TTL records. Nothing here is ordered relative to message
// delivery and nothing may depend on that ordering.
type Tracker struct {
	store presenceStore
	cfg   config.PresenceConfig
	logg  *logger.Logger
}

// NewTracker builds a presence tracker over the provided store.
func NewTracker(store presenceStore, cfg config.PresenceConfig, logg *logger.Logger) (*Tracker, error) {
	if store == nil {
		return nil, fmt.Errorf("presence store required")
	}
	if cfg.RecordTTL <= 0 || cfg.TypingTTL <= 0 {
		return nil, fmt.Errorf("presence ttls must be positive")
	}
	return &Tracker{store: store, cfg: cfg, logg: logg}, nil
}

// StartTyping publishes a typing record for the participant. The record
// carries its own TTL so an abandoned tab stops "typing" on its own.
func (t *Tracker) StartTyping(ctx context.Context, conversationID, userID string) error {
	if conversationID == "" || userID == "" {
		return fmt.Errorf("conversation and user ids required")
	}
	key := t.store.TypingKey(conversationID, userID)
	return t.store.Set(ctx, key, "1", t.cfg.TypingTTL)
}

// StopTyping retracts the participant's typing record.
func (t *Tracker) StopTyping(ctx context.Context, conversationID, userID string) error {
	if conversationID == "" || userID == "" {
		return fmt.Errorf("conversation and user ids required")
	}
	return t.store.Del(ctx, t.store.TypingKey(conversationID, userID))
}

// AnyoneTyping reports whether any participant other than selfUserID has a
// live typing record in the conversation.
func (t *Tracker) AnyoneTyping(ctx context.Context, conversationID, selfUserID string) (bool, error) {
	keys, err := t.store.ScanKeys(ctx, t.store.TypingPattern(conversationID))
	if err != nil {
		return false, err
	}
	self := t.store.TypingKey(conversationID, selfUserID)
	for _, key := range keys {
		if key != self {
			return true, nil
		}
	}
	return false, nil
}

// Track registers a participant as online. Clients call this on subscribe and
// then keep the record alive through Refresh.
func (t *Tracker) Track(ctx context.Context, userID, displayName, role string) error {
	if userID == "" {
		return fmt.Errorf("user id required")
	}
	if role != RoleCustomer && role != RoleStaff {
		return fmt.Errorf("unknown presence role %q", role)
	}
	payload, err := json.Marshal(Record{
		UserID:      userID,
		DisplayName: displayName,
		Role:        role,
		LastSeen:    time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return t.store.Set(ctx, t.store.OnlineKey(userID), string(payload), t.cfg.RecordTTL)
}

// Refresh extends a live record's TTL without rewriting it. A missing record
// is not an error, the next Track recreates it.
func (t *Tracker) Refresh(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("user id required")
	}
	return t.store.Expire(ctx, t.store.OnlineKey(userID), t.cfg.RecordTTL)
}

// Untrack removes a participant's online record on disconnect.
func (t *Tracker) Untrack(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("user id required")
	}
	return t.store.Del(ctx, t.store.OnlineKey(userID))
}

// Online returns every live presence record.
func (t *Tracker) Online(ctx context.Context) ([]Record, error) {
	keys, err := t.store.ScanKeys(ctx, t.store.OnlinePattern())
	if err != nil {
		return nil, err
	}
	records := make([]Record, 0, len(keys))
	for _, key := range keys {
		raw, err := t.store.Get(ctx, key)
		if err != nil {
			// record expired between scan and read
			continue
		}
		var record Record
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			if t.logg != nil {
				t.logg.Warn(ctx, "unreadable presence record skipped")
			}
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

// IsStaffOnline reports whether any staff member has a live record.
func (t *Tracker) IsStaffOnline(ctx context.Context) (bool, error) {
	return t.roleOnline(ctx, RoleStaff)
}

// IsCustomerOnline reports whether any customer has a live record.
func (t *Tracker) IsCustomerOnline(ctx context.Context) (bool, error) {
	return t.roleOnline(ctx, RoleCustomer)
}

func (t *Tracker) roleOnline(ctx context.Context, role string) (bool, error) {
	records, err := t.Online(ctx)
	if err != nil {
		return false, err
	}
	for _, record := range records {
		if strings.EqualFold(record.Role, role) {
			return true, nil
		}
	}
	return false, nil
}
