package store

import (
	"context"
	"errors"

	"eclatpos/backend/internal/domain"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrStockChanged        = errors.New("stock changed since the cart was built")
	ErrInvalidTransaction  = errors.New("invalid transaction")
	ErrDuplicateBarcode    = errors.New("barcode already used by another product")
	ErrDuplicateSubmission = errors.New("submission already recorded")
)

// SaleOptions controls how CreateSale decrements stock.
type SaleOptions struct {
	// AllowNegativeStock turns the conditional decrement into an unconditional
	// one so overselling is recorded as a backorder instead of failing.
	AllowNegativeStock bool
}

// Repository is the only path to the datastore. Multi-line writes
// (ReceivePurchase, CreateSale) are applied as a single commit.
type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	GetProductByBarcode(ctx context.Context, barcode string) (*domain.Product, error)
	ApplyIntake(ctx context.Context, line domain.PurchaseLine) (*domain.Product, bool, error)
	UpsertProducts(ctx context.Context, products []domain.Product) (int, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	AdjustStock(ctx context.Context, productID string, delta int) (*domain.Product, error)
	DeleteProduct(ctx context.Context, productID string) error

	ReceivePurchase(ctx context.Context, invoice domain.PurchaseInvoice) (*domain.PurchaseReceipt, error)
	FindPurchaseBySubmission(ctx context.Context, submissionID string) (*domain.PurchaseInvoice, error)
	ListPurchases(ctx context.Context) ([]domain.PurchaseInvoice, error)
	DeletePurchase(ctx context.Context, invoiceID string) error

	CreateSale(ctx context.Context, sale domain.SaleRecord, opts SaleOptions) (*domain.SaleRecord, error)
	FindSaleBySubmission(ctx context.Context, submissionID string) (*domain.SaleRecord, error)
	ListSales(ctx context.Context) ([]domain.SaleRecord, error)
	DeleteSale(ctx context.Context, saleID string) error

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
