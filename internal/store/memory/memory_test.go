package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eclatpos/backend/internal/domain"
	"eclatpos/backend/internal/store"
)

func TestReceivePurchaseRejectsWholeInvoiceOnInvalidLine(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.ReceivePurchase(ctx, domain.PurchaseInvoice{Lines: []domain.PurchaseLine{
		{ProductName: "Ok", Barcode: "1", Qty: 1},
		{ProductName: "", Barcode: "2", Qty: 1},
	}})
	assert.ErrorIs(t, err, store.ErrInvalidTransaction)

	products, err := s.ListProducts(ctx)
	require.NoError(t, err)
	assert.Empty(t, products)
}

func TestReceivePurchaseRejectsRepeatedSubmission(t *testing.T) {
	s := New()
	ctx := context.Background()
	invoice := domain.PurchaseInvoice{
		SubmissionID: "sub-1",
		Lines:        []domain.PurchaseLine{{ProductName: "Mascara", Barcode: "1", Qty: 2, CostCents: 100}},
	}

	receipt, err := s.ReceivePurchase(ctx, invoice)
	require.NoError(t, err)
	assert.Equal(t, int64(200), receipt.Invoice.TotalCostCents)

	_, err = s.ReceivePurchase(ctx, invoice)
	assert.ErrorIs(t, err, store.ErrDuplicateSubmission)

	found, err := s.FindPurchaseBySubmission(ctx, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, receipt.Invoice.ID, found.ID)

	p, err := s.GetProductByBarcode(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, 2, p.Stock)
}

func TestCreateSaleAggregatesLinesPerProduct(t *testing.T) {
	s := New()
	ctx := context.Background()
	p, _, err := s.ApplyIntake(ctx, domain.PurchaseLine{ProductName: "Vernis", Barcode: "v", Qty: 3, SalePriceCents: 2500})
	require.NoError(t, err)

	_, err = s.CreateSale(ctx, domain.SaleRecord{Lines: []domain.SaleLine{
		{ProductID: p.ID, Qty: 2, UnitPriceCents: 2500},
		{ProductID: p.ID, Qty: 2, UnitPriceCents: 2500},
	}}, store.SaleOptions{})
	assert.ErrorIs(t, err, store.ErrStockChanged)

	unchanged, err := s.GetProductByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, unchanged.Stock)

	sales, err := s.ListSales(ctx)
	require.NoError(t, err)
	assert.Empty(t, sales)
}

func TestCreateSaleFailsForMissingProduct(t *testing.T) {
	s := New()
	_, err := s.CreateSale(context.Background(), domain.SaleRecord{Lines: []domain.SaleLine{
		{ProductID: "prd-gone", Qty: 1},
	}}, store.SaleOptions{AllowNegativeStock: true})
	assert.ErrorIs(t, err, store.ErrStockChanged)
}

func TestUpdateProductRejectsBarcodeClash(t *testing.T) {
	s := New()
	ctx := context.Background()
	a, _, err := s.ApplyIntake(ctx, domain.PurchaseLine{ProductName: "A", Barcode: "a", Qty: 1})
	require.NoError(t, err)
	_, _, err = s.ApplyIntake(ctx, domain.PurchaseLine{ProductName: "B", Barcode: "b", Qty: 1})
	require.NoError(t, err)

	edit := *a
	edit.Barcode = "b"
	_, err = s.UpdateProduct(ctx, edit)
	assert.ErrorIs(t, err, store.ErrDuplicateBarcode)

	edit.Barcode = "a2"
	updated, err := s.UpdateProduct(ctx, edit)
	require.NoError(t, err)
	assert.Equal(t, "a2", updated.Barcode)

	_, err = s.GetProductByBarcode(ctx, "a")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpsertProductsReplacesRowWithoutBarcodeByID(t *testing.T) {
	s := New()
	ctx := context.Background()
	row := domain.Product{ID: "prd-legacy-17", Name: "Savon noir", PriceCents: 2000, Stock: 4, Category: "عناية بالبشرة"}

	written, err := s.UpsertProducts(ctx, []domain.Product{row})
	require.NoError(t, err)
	assert.Equal(t, 1, written)
	first, err := s.GetProductByID(ctx, "prd-legacy-17")
	require.NoError(t, err)

	row.Stock = 7
	_, err = s.UpsertProducts(ctx, []domain.Product{row})
	require.NoError(t, err)

	products, err := s.ListProducts(ctx)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "prd-legacy-17", products[0].ID)
	assert.Equal(t, 7, products[0].Stock)
	assert.Equal(t, first.CreatedAt, products[0].CreatedAt)
}

func TestSeededStoreHasUsersAndProducts(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "admin", users[0].Username)
	assert.Equal(t, domain.RoleAdmin, users[0].Role)

	products, err := s.ListProducts(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, products)
}
