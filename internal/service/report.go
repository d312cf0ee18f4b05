package service

import (
	"context"
	"slices"

	"eclatpos/backend/internal/domain"
)

const recentSalesLimit = 5

// Dashboard summarizes the current snapshot. Day and month boundaries use
// the store's timezone.
func (s *Service) Dashboard(ctx context.Context) (domain.Dashboard, error) {
	snap, err := s.catalog.Snapshot(ctx)
	if err != nil {
		return domain.Dashboard{}, err
	}

	now := s.today()
	y, m, d := now.Date()
	report := domain.Dashboard{
		Date:              now.Format(invoiceDateLayout),
		ProductCount:      len(snap.Products),
		SalesCount:        len(snap.Sales),
		PurchaseCount:     len(snap.Purchases),
		LowStockThreshold: s.opts.LowStockThreshold,
		LowStock:          []domain.LowStockItem{},
		RecentSales:       []domain.SaleRecord{},
	}

	for _, sale := range snap.Sales {
		report.AllSalesCents += sale.TotalCents
		sy, sm, sd := sale.CreatedAt.In(s.opts.Location).Date()
		if sy == y && sm == m {
			report.MonthSalesCents += sale.TotalCents
			if sd == d {
				report.TodaySalesCents += sale.TotalCents
			}
		}
	}

	for _, p := range snap.Products {
		if p.Stock > 0 {
			report.StockValueCents += int64(p.Stock) * p.PriceCents
		}
		if p.Stock < 0 {
			report.NegativeStockCount++
		}
		if p.Stock < s.opts.LowStockThreshold {
			report.LowStock = append(report.LowStock, domain.LowStockItem{
				ProductID: p.ID,
				Name:      p.Name,
				Barcode:   p.Barcode,
				Stock:     p.Stock,
			})
		}
	}
	slices.SortStableFunc(report.LowStock, func(a, b domain.LowStockItem) int {
		return a.Stock - b.Stock
	})

	for _, purchase := range snap.Purchases {
		report.PurchaseTotalCents += purchase.TotalCostCents
	}

	sales := slices.Clone(snap.Sales)
	slices.SortStableFunc(sales, func(a, b domain.SaleRecord) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if len(sales) > recentSalesLimit {
		sales = sales[:recentSalesLimit]
	}
	report.RecentSales = append(report.RecentSales, sales...)

	report.TodaySalesDisplay = FormatMoney(report.TodaySalesCents)
	report.MonthSalesDisplay = FormatMoney(report.MonthSalesCents)
	report.StockValueDisplay = FormatMoney(report.StockValueCents)
	return report, nil
}
