package cart

import (
	"context"
	"fmt"
	"strings"

	pkgerrors "github.com/noorbazaar/storefront-backend/pkg/errors"
	"github.com/noorbazaar/storefront-backend/pkg/logger"
)

// Cart is the view returned to callers after every operation.
type Cart struct {
	Lines      []Line `json:"lines"`
	Total      int64  `json:"total"`
	ItemsCount int    `json:"items_count"`
}

// AddInput carries the product snapshot the storefront sends on add-to-cart.
type AddInput struct {
	ProductID       string
	Title           string
	UnitPrice       int64
	DiscountPercent int
	Quantity        int
	Attributes      []SelectedAttribute
}

// Service exposes the cart operations for one storefront session.
//
// Mutations never surface persistence failures: the snapshot write is
// best-effort and a failed save leaves the caller with the updated in-flight
// view, matching the "cart can never error at the user" contract.
type Service interface {
	AddToCart(ctx context.Context, sessionID string, input AddInput) (*Cart, error)
	RemoveFromCart(ctx context.Context, sessionID, key string) (*Cart, error)
	IncreaseQuantity(ctx context.Context, sessionID, key string) (*Cart, error)
	DecreaseQuantity(ctx context.Context, sessionID, key string) (*Cart, error)
	ClearCart(ctx context.Context, sessionID string) error
	GetCart(ctx context.Context, sessionID string) (*Cart, error)
}

type service struct {
	snapshots SnapshotStore
	logg      *logger.Logger
}

// NewService builds a cart service backed by the provided snapshot store.
func NewService(snapshots SnapshotStore, logg *logger.Logger) (Service, error) {
	if snapshots == nil {
		return nil, fmt.Errorf("snapshot store required")
	}
	return &service{snapshots: snapshots, logg: logg}, nil
}

func (s *service) AddToCart(ctx context.Context, sessionID string, input AddInput) (*Cart, error) {
	if err := validateSession(sessionID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.ProductID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if input.UnitPrice < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unit price cannot be negative")
	}
	if input.DiscountPercent < 0 || input.DiscountPercent > 100 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "discount percent out of range")
	}
	qty := input.Quantity
	if qty < 1 {
		qty = 1
	}

	lines := s.load(ctx, sessionID)
	key := LineKey(input.ProductID, input.Attributes)

	merged := false
	for i := range lines {
		if lines[i].Key == key {
			lines[i].Quantity += qty
			merged = true
			break
		}
	}
	if !merged {
		lines = append(lines, Line{
			Key:             key,
			ProductID:       input.ProductID,
			Title:           input.Title,
			UnitPrice:       input.UnitPrice,
			DiscountPercent: input.DiscountPercent,
			Quantity:        qty,
			Attributes:      input.Attributes,
		})
	}

	s.persist(ctx, sessionID, lines)
	return buildCart(lines), nil
}

func (s *service) RemoveFromCart(ctx context.Context, sessionID, key string) (*Cart, error) {
	if err := validateSession(sessionID); err != nil {
		return nil, err
	}

	lines := s.load(ctx, sessionID)
	kept := lines[:0]
	for _, line := range lines {
		if line.Key != key {
			kept = append(kept, line)
		}
	}

	s.persist(ctx, sessionID, kept)
	return buildCart(kept), nil
}

func (s *service) IncreaseQuantity(ctx context.Context, sessionID, key string) (*Cart, error) {
	return s.adjustQuantity(ctx, sessionID, key, 1)
}

// DecreaseQuantity clamps at 1. Dropping a line is an explicit remove, never a
// side effect of decrementing.
func (s *service) DecreaseQuantity(ctx context.Context, sessionID, key string) (*Cart, error) {
	return s.adjustQuantity(ctx, sessionID, key, -1)
}

func (s *service) adjustQuantity(ctx context.Context, sessionID, key string, delta int) (*Cart, error) {
	if err := validateSession(sessionID); err != nil {
		return nil, err
	}

	lines := s.load(ctx, sessionID)
	for i := range lines {
		if lines[i].Key != key {
			continue
		}
		next := lines[i].Quantity + delta
		if next < 1 {
			next = 1
		}
		lines[i].Quantity = next
		break
	}

	s.persist(ctx, sessionID, lines)
	return buildCart(lines), nil
}

func (s *service) ClearCart(ctx context.Context, sessionID string) error {
	if err := validateSession(sessionID); err != nil {
		return err
	}
	if err := s.snapshots.Delete(ctx, sessionID); err != nil && s.logg != nil {
		s.logg.Warn(s.logg.WithSessionID(ctx, sessionID), "cart snapshot delete failed")
	}
	return nil
}

func (s *service) GetCart(ctx context.Context, sessionID string) (*Cart, error) {
	if err := validateSession(sessionID); err != nil {
		return nil, err
	}
	return buildCart(s.load(ctx, sessionID)), nil
}

// load reads and decodes the persisted snapshot. Storage errors and corrupt
// payloads both degrade to an empty cart.
func (s *service) load(ctx context.Context, sessionID string) []Line {
	raw, err := s.snapshots.Load(ctx, sessionID)
	if err != nil {
		if s.logg != nil {
			s.logg.Warn(s.logg.WithSessionID(ctx, sessionID), "cart snapshot load failed")
		}
		return nil
	}
	return decodeSnapshot(raw)
}

func (s *service) persist(ctx context.Context, sessionID string, lines []Line) {
	snapshot, err := encodeSnapshot(lines)
	if err == nil {
		err = s.snapshots.Save(ctx, sessionID, snapshot)
	}
	if err != nil && s.logg != nil {
		s.logg.Warn(s.logg.WithSessionID(ctx, sessionID), "cart snapshot save failed")
	}
}

func buildCart(lines []Line) *Cart {
	if lines == nil {
		lines = []Line{}
	}
	var total int64
	count := 0
	for _, line := range lines {
		total += line.LineTotal()
		count += line.Quantity
	}
	return &Cart{Lines: lines, Total: total, ItemsCount: count}
}

func validateSession(sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}
	return nil
}
