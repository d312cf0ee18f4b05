package service

import (
	"context"
	"strings"

	"eclatpos/backend/internal/domain"
	"eclatpos/backend/internal/store"
)

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.catalog.Products(ctx)
}

// LookupBarcode pre-fills a purchase line from the catalog entry that
// carries barcode, if any.
func (s *Service) LookupBarcode(ctx context.Context, barcode string) (domain.BarcodeLookupResponse, error) {
	product, found, err := s.catalog.FindByBarcode(ctx, barcode)
	if err != nil {
		return domain.BarcodeLookupResponse{}, err
	}
	if !found {
		return domain.BarcodeLookupResponse{Found: false}, nil
	}
	return domain.BarcodeLookupResponse{
		Found:          true,
		ProductID:      product.ID,
		Name:           product.Name,
		SalePriceCents: product.PriceCents,
		Category:       product.Category,
		Image:          product.Image,
		Stock:          product.Stock,
	}, nil
}

// UpsertProduct adds qty units of a product, merging on barcode.
func (s *Service) UpsertProduct(ctx context.Context, req domain.ProductUpsertRequest) (domain.ProductResponse, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.ProductResponse{}, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" || req.Qty < 0 || req.SalePriceCents < 0 {
		return domain.ProductResponse{}, store.ErrInvalidTransaction
	}
	category, ok := domain.IntakeCategory(req.Category)
	if !ok {
		return domain.ProductResponse{}, ErrUnknownCategory
	}

	product, created, err := s.catalog.Upsert(ctx, domain.PurchaseLine{
		ProductName:    name,
		Barcode:        strings.TrimSpace(req.Barcode),
		Qty:            req.Qty,
		SalePriceCents: req.SalePriceCents,
		Category:       category,
		Image:          strings.TrimSpace(req.Image),
	})
	if err != nil {
		return domain.ProductResponse{}, err
	}

	snap, err := s.catalog.Snapshot(ctx)
	if err != nil {
		return domain.ProductResponse{}, err
	}
	return domain.ProductResponse{Product: product, Created: created, Snapshot: snap}, nil
}

// UpdateProduct edits catalog fields and optionally applies a stock delta.
func (s *Service) UpdateProduct(ctx context.Context, productID string, req domain.ProductUpdateRequest) (domain.ProductResponse, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.ProductResponse{}, err
	}

	existing, err := s.repo.GetProductByID(ctx, productID)
	if err != nil {
		return domain.ProductResponse{}, err
	}

	updated := *existing
	edited := false
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.ProductResponse{}, store.ErrInvalidTransaction
		}
		updated.Name = name
		edited = true
	}
	if req.PriceCents != nil {
		if *req.PriceCents < 0 {
			return domain.ProductResponse{}, store.ErrInvalidTransaction
		}
		updated.PriceCents = *req.PriceCents
		edited = true
	}
	if req.Category != nil {
		category, ok := domain.NormalizeCategory(*req.Category)
		if !ok {
			return domain.ProductResponse{}, ErrUnknownCategory
		}
		updated.Category = category
		edited = true
	}
	if req.Image != nil {
		updated.Image = strings.TrimSpace(*req.Image)
		edited = true
	}
	if !edited && (req.StockDelta == nil || *req.StockDelta == 0) {
		return domain.ProductResponse{}, store.ErrInvalidTransaction
	}

	product := *existing
	if edited {
		product, err = s.catalog.Edit(ctx, updated)
		if err != nil {
			return domain.ProductResponse{}, err
		}
	}
	if req.StockDelta != nil && *req.StockDelta != 0 {
		product, err = s.catalog.AdjustStock(ctx, productID, *req.StockDelta)
		if err != nil {
			return domain.ProductResponse{}, err
		}
	}

	snap, err := s.catalog.Snapshot(ctx)
	if err != nil {
		return domain.ProductResponse{}, err
	}
	return domain.ProductResponse{Product: product, Snapshot: snap}, nil
}

// DeleteProduct removes the product from the catalog. Invoices that
// mention it are left untouched.
func (s *Service) DeleteProduct(ctx context.Context, productID string) (domain.Snapshot, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Snapshot{}, err
	}
	if strings.TrimSpace(productID) == "" {
		return domain.Snapshot{}, store.ErrInvalidTransaction
	}
	if err := s.catalog.Delete(ctx, productID); err != nil {
		return domain.Snapshot{}, err
	}
	return s.catalog.Snapshot(ctx)
}
