package catalog

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"eclatpos/backend/internal/cache"
	"eclatpos/backend/internal/domain"
	"eclatpos/backend/internal/store"
)

// Store keeps the last refreshed view of products, purchases and sales.
// Every write goes through the repository and is followed by Refresh, so
// readers never see a locally patched copy.
type Store struct {
	repo  store.Repository
	cache cache.SnapshotCache
	ttl   time.Duration

	mu      sync.RWMutex
	current *domain.Snapshot
}

func New(repo store.Repository, snapshotCache cache.SnapshotCache, ttl time.Duration) *Store {
	if snapshotCache == nil {
		snapshotCache = cache.NoopSnapshotCache{}
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Store{repo: repo, cache: snapshotCache, ttl: ttl}
}

// Refresh re-reads the full catalog and both ledgers from the repository.
func (s *Store) Refresh(ctx context.Context) (domain.Snapshot, error) {
	if err := s.cache.Invalidate(ctx); err != nil {
		log.Printf("[catalog] WARN: snapshot cache invalidate failed: %v", err)
	}

	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return domain.Snapshot{}, err
	}
	purchases, err := s.repo.ListPurchases(ctx)
	if err != nil {
		return domain.Snapshot{}, err
	}
	sales, err := s.repo.ListSales(ctx)
	if err != nil {
		return domain.Snapshot{}, err
	}

	snap := domain.Snapshot{
		Products:    products,
		Purchases:   purchases,
		Sales:       sales,
		RefreshedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.current = &snap
	s.mu.Unlock()

	if err := s.cache.Set(ctx, &snap, s.ttl); err != nil {
		log.Printf("[catalog] WARN: snapshot cache set failed: %v", err)
	}
	return snap, nil
}

// Snapshot returns the in-memory view, then the shared cache, and only
// refreshes from the repository when neither is available.
func (s *Store) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	s.mu.RLock()
	current := s.current
	s.mu.RUnlock()
	if current != nil {
		return *current, nil
	}

	cached, ok, err := s.cache.Get(ctx)
	if err != nil {
		log.Printf("[catalog] WARN: snapshot cache get failed: %v", err)
	}
	if ok && cached != nil {
		s.mu.Lock()
		s.current = cached
		s.mu.Unlock()
		return *cached, nil
	}

	return s.Refresh(ctx)
}

func (s *Store) Products(ctx context.Context) ([]domain.Product, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Products, nil
}

// FindByBarcode matches on exact equality. An empty barcode never matches.
func (s *Store) FindByBarcode(ctx context.Context, barcode string) (domain.Product, bool, error) {
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return domain.Product{}, false, nil
	}
	products, err := s.Products(ctx)
	if err != nil {
		return domain.Product{}, false, err
	}
	for _, p := range products {
		if p.Barcode == barcode {
			return p, true, nil
		}
	}
	return domain.Product{}, false, nil
}

func (s *Store) FindByID(ctx context.Context, id string) (domain.Product, bool, error) {
	products, err := s.Products(ctx)
	if err != nil {
		return domain.Product{}, false, err
	}
	for _, p := range products {
		if p.ID == id {
			return p, true, nil
		}
	}
	return domain.Product{}, false, nil
}

// Upsert applies a single intake line: merge on barcode or create.
func (s *Store) Upsert(ctx context.Context, line domain.PurchaseLine) (domain.Product, bool, error) {
	product, created, err := s.repo.ApplyIntake(ctx, line)
	if err != nil {
		return domain.Product{}, false, err
	}
	s.refreshAfterWrite(ctx)
	return *product, created, nil
}

// AdjustStock adds delta to the stored stock without clamping.
func (s *Store) AdjustStock(ctx context.Context, productID string, delta int) (domain.Product, error) {
	product, err := s.repo.AdjustStock(ctx, productID, delta)
	if err != nil {
		return domain.Product{}, err
	}
	s.refreshAfterWrite(ctx)
	return *product, nil
}

func (s *Store) Edit(ctx context.Context, product domain.Product) (domain.Product, error) {
	updated, err := s.repo.UpdateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}
	s.refreshAfterWrite(ctx)
	return *updated, nil
}

// Delete removes the product permanently. Purchase and sale history keep
// their own copies of name and barcode.
func (s *Store) Delete(ctx context.Context, productID string) error {
	if err := s.repo.DeleteProduct(ctx, productID); err != nil {
		return err
	}
	s.refreshAfterWrite(ctx)
	return nil
}

// refreshAfterWrite keeps the write's result even when the re-read fails;
// the next Snapshot call retries from the repository.
func (s *Store) refreshAfterWrite(ctx context.Context) {
	if _, err := s.Refresh(ctx); err != nil {
		log.Printf("[catalog] WARN: refresh after write failed: %v", err)
		s.mu.Lock()
		s.current = nil
		s.mu.Unlock()
	}
}
