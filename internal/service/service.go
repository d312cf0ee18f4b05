package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"eclatpos/backend/internal/cart"
	"eclatpos/backend/internal/catalog"
	"eclatpos/backend/internal/domain"
	"eclatpos/backend/internal/store"
)

var (
	ErrAdminRequired   = errors.New("admin role required")
	ErrEmptyCart       = errors.New("cart is empty")
	ErrUnknownCategory = errors.New("unknown category")
	ErrNoValidLines    = errors.New("no valid purchase lines")
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	AllowNegativeStock bool
	LowStockThreshold  int
	Location           *time.Location
}

type Service struct {
	repo    store.Repository
	catalog *catalog.Store
	carts   *cart.Registry
	opts    Options
}

func New(repo store.Repository, catalogStore *catalog.Store, carts *cart.Registry, opts Options) *Service {
	if opts.LowStockThreshold <= 0 {
		opts.LowStockThreshold = 5
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if carts == nil {
		carts = cart.NewRegistry()
	}

	return &Service{
		repo:    repo,
		catalog: catalogStore,
		carts:   carts,
		opts:    opts,
	}
}

func (s *Service) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	return s.catalog.Snapshot(ctx)
}

// Refresh discards the held snapshot and re-reads everything.
func (s *Service) Refresh(ctx context.Context) (domain.Snapshot, error) {
	return s.catalog.Refresh(ctx)
}

// snapshotAfterWrite is used once a write has committed. A failed re-read
// is logged and the caller still gets the write's result.
func (s *Service) snapshotAfterWrite(ctx context.Context) domain.Snapshot {
	snap, err := s.catalog.Refresh(ctx)
	if err != nil {
		log.Printf("[service] WARN: refresh after write failed: %v", err)
	}
	return snap
}

func requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return ErrAdminRequired
	}
	return nil
}

// cartOwner keys carts by operator so two logged-in sessions never share one.
func cartOwner(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok && actor.Username != "" {
		return actor.Username
	}
	return "local"
}

func (s *Service) today() time.Time {
	return time.Now().In(s.opts.Location)
}

// FormatMoney renders cents as "123.45 DH".
func FormatMoney(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2) + " DH"
}
