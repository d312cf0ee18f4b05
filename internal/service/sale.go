package service

import (
	"context"
	"errors"
	"log"
	"strings"

	"eclatpos/backend/internal/domain"
	"eclatpos/backend/internal/store"
	"eclatpos/backend/internal/xid"
)

func (s *Service) Cart(ctx context.Context) domain.CartView {
	return s.carts.For(cartOwner(ctx)).View()
}

// AddToCart puts one unit of the product in the operator's cart, checked
// against the stock in the current snapshot.
func (s *Service) AddToCart(ctx context.Context, productID string) (domain.CartView, error) {
	product, found, err := s.catalog.FindByID(ctx, strings.TrimSpace(productID))
	if err != nil {
		return domain.CartView{}, err
	}
	if !found {
		return domain.CartView{}, store.ErrNotFound
	}

	c := s.carts.For(cartOwner(ctx))
	if err := c.Add(product); err != nil {
		return c.View(), err
	}
	return c.View(), nil
}

func (s *Service) RemoveFromCart(ctx context.Context, productID string) (domain.CartView, error) {
	c := s.carts.For(cartOwner(ctx))
	if err := c.Remove(productID); err != nil {
		return c.View(), err
	}
	return c.View(), nil
}

// ScanToCart adds the product with exactly this barcode. Matched is false
// when no product carries it, so the scanner field is kept for correction.
func (s *Service) ScanToCart(ctx context.Context, barcode string) (domain.CartScanResponse, error) {
	products, err := s.catalog.Products(ctx)
	if err != nil {
		return domain.CartScanResponse{}, err
	}

	c := s.carts.For(cartOwner(ctx))
	matched, err := c.Scan(barcode, products)
	if err != nil {
		return domain.CartScanResponse{Matched: matched, Cart: c.View()}, err
	}
	return domain.CartScanResponse{Matched: matched, Cart: c.View()}, nil
}

func (s *Service) ClearCart(ctx context.Context) domain.CartView {
	c := s.carts.For(cartOwner(ctx))
	c.Clear()
	return c.View()
}

// ConfirmSale turns the operator's cart into a sale. Stock is decremented
// conditionally per product; if any product no longer has enough, nothing
// is written and the cart is re-synced to the refreshed catalog.
func (s *Service) ConfirmSale(ctx context.Context, req domain.SaleRequest) (domain.SaleResponse, error) {
	c := s.carts.For(cartOwner(ctx))

	submissionID := strings.TrimSpace(req.SubmissionID)
	if submissionID != "" {
		if existing, err := s.repo.FindSaleBySubmission(ctx, submissionID); err == nil {
			c.Clear()
			return s.duplicateSale(ctx, existing), nil
		} else if !errors.Is(err, store.ErrNotFound) {
			return domain.SaleResponse{}, err
		}
	} else {
		submissionID = xid.New("sub")
	}

	if c.Len() == 0 {
		return domain.SaleResponse{}, ErrEmptyCart
	}

	sale, err := s.repo.CreateSale(ctx, domain.SaleRecord{
		SubmissionID: submissionID,
		Lines:        c.SaleLines(),
	}, store.SaleOptions{AllowNegativeStock: s.opts.AllowNegativeStock})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicateSubmission):
			existing, lookupErr := s.repo.FindSaleBySubmission(ctx, submissionID)
			if lookupErr == nil {
				c.Clear()
				return s.duplicateSale(ctx, existing), nil
			}
		case errors.Is(err, store.ErrStockChanged):
			snap, refreshErr := s.catalog.Refresh(ctx)
			if refreshErr != nil {
				log.Printf("[service] WARN: refresh after stock change failed: %v", refreshErr)
			} else {
				c.Sync(snap.Products)
			}
		}
		return domain.SaleResponse{}, err
	}

	c.Clear()
	return domain.SaleResponse{
		Sale:     *sale,
		Snapshot: s.snapshotAfterWrite(ctx),
	}, nil
}

func (s *Service) ListSales(ctx context.Context) ([]domain.SaleRecord, error) {
	snap, err := s.catalog.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Sales, nil
}

// DeleteSale removes the sale record. Sold stock is not put back.
func (s *Service) DeleteSale(ctx context.Context, saleID string) (domain.Snapshot, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Snapshot{}, err
	}
	if strings.TrimSpace(saleID) == "" {
		return domain.Snapshot{}, store.ErrInvalidTransaction
	}
	if err := s.repo.DeleteSale(ctx, saleID); err != nil {
		return domain.Snapshot{}, err
	}
	return s.snapshotAfterWrite(ctx), nil
}

func (s *Service) duplicateSale(ctx context.Context, existing *domain.SaleRecord) domain.SaleResponse {
	snap, err := s.catalog.Snapshot(ctx)
	if err != nil {
		snap = s.snapshotAfterWrite(ctx)
	}
	return domain.SaleResponse{
		Sale:      *existing,
		Duplicate: true,
		Snapshot:  snap,
	}
}
