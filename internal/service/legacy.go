package service

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"eclatpos/backend/internal/domain"
)

// MigrateLegacy copies products exported from the old browser storage into
// the repository. Products are replaced by barcode; rows without a name are
// skipped and unknown categories fall back to the default one.
func (s *Service) MigrateLegacy(ctx context.Context, legacy []domain.LegacyProduct) (domain.LegacyMigrationResponse, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.LegacyMigrationResponse{}, err
	}

	resp := domain.LegacyMigrationResponse{Received: len(legacy)}
	products := make([]domain.Product, 0, len(legacy))
	for _, old := range legacy {
		name := strings.TrimSpace(old.Name)
		if name == "" || old.Price < 0 {
			resp.Skipped++
			continue
		}
		category, ok := domain.NormalizeCategory(old.Category)
		if !ok {
			category = domain.DefaultCategory
		}

		id := ""
		if legacyID := strings.TrimSpace(old.ID); legacyID != "" {
			id = "prd-legacy-" + legacyID
		}
		products = append(products, domain.Product{
			ID:         id,
			Name:       name,
			Barcode:    strings.TrimSpace(old.Barcode),
			PriceCents: decimal.NewFromFloat(old.Price).Shift(2).Round(0).IntPart(),
			Stock:      old.Stock,
			Category:   category,
			Image:      strings.TrimSpace(old.Image),
		})
	}

	if len(products) == 0 {
		return resp, nil
	}
	written, err := s.repo.UpsertProducts(ctx, products)
	if err != nil {
		return domain.LegacyMigrationResponse{}, err
	}
	resp.Migrated = written
	resp.Skipped += len(products) - written

	s.snapshotAfterWrite(ctx)
	return resp, nil
}
