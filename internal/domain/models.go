package domain

import "time"

type Product struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Barcode    string    `json:"barcode"`
	PriceCents int64     `json:"price_cents"`
	Stock      int       `json:"stock"`
	Category   string    `json:"category"`
	Image      string    `json:"image,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type ProductUpsertRequest struct {
	Name           string `json:"name"`
	Barcode        string `json:"barcode"`
	Qty            int    `json:"qty"`
	SalePriceCents int64  `json:"sale_price_cents"`
	Category       string `json:"category"`
	Image          string `json:"image,omitempty"`
}

type ProductUpdateRequest struct {
	Name       *string `json:"name,omitempty"`
	PriceCents *int64  `json:"price_cents,omitempty"`
	Category   *string `json:"category,omitempty"`
	Image      *string `json:"image,omitempty"`
	StockDelta *int    `json:"stock_delta,omitempty"`
}

type ProductResponse struct {
	Product  Product  `json:"product"`
	Created  bool     `json:"created,omitempty"`
	Snapshot Snapshot `json:"snapshot"`
}

// BarcodeLookupResponse pre-fills a purchase line from an existing catalog entry.
type BarcodeLookupResponse struct {
	Found          bool   `json:"found"`
	ProductID      string `json:"product_id,omitempty"`
	Name           string `json:"name,omitempty"`
	SalePriceCents int64  `json:"sale_price_cents,omitempty"`
	Category       string `json:"category,omitempty"`
	Image          string `json:"image,omitempty"`
	Stock          int    `json:"stock,omitempty"`
}

type PurchaseLine struct {
	ProductName    string `json:"product_name"`
	Barcode        string `json:"barcode"`
	Qty            int    `json:"qty"`
	CostCents      int64  `json:"cost_cents"`
	SalePriceCents int64  `json:"sale_price_cents"`
	Category       string `json:"category"`
	Image          string `json:"image,omitempty"`
}

type PurchaseInvoice struct {
	ID             string         `json:"id"`
	SubmissionID   string         `json:"submission_id"`
	Supplier       string         `json:"supplier"`
	InvoiceNumber  string         `json:"invoice_number"`
	InvoiceDate    string         `json:"invoice_date"`
	TotalCostCents int64          `json:"total_cost_cents"`
	CreatedAt      time.Time      `json:"created_at"`
	Lines          []PurchaseLine `json:"lines"`
}

type PurchaseRequest struct {
	SubmissionID  string         `json:"submission_id"`
	Supplier      string         `json:"supplier"`
	InvoiceNumber string         `json:"invoice_number"`
	InvoiceDate   string         `json:"invoice_date"`
	Lines         []PurchaseLine `json:"lines"`
}

// PurchaseReceipt is what the gateway reports after applying a purchase invoice.
type PurchaseReceipt struct {
	Invoice  PurchaseInvoice
	Created  int
	Updated  int
	Products []Product
}

type PurchaseResponse struct {
	Invoice   PurchaseInvoice `json:"invoice"`
	Created   int             `json:"created"`
	Updated   int             `json:"updated"`
	Dropped   int             `json:"dropped"`
	Duplicate bool            `json:"duplicate"`
	Snapshot  Snapshot        `json:"snapshot"`
}

type PurchaseImportPreview struct {
	Lines   []PurchaseLine `json:"lines"`
	Dropped int            `json:"dropped"`
}

type SaleLine struct {
	ProductID      string `json:"product_id"`
	Name           string `json:"name"`
	Barcode        string `json:"barcode"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	Qty            int    `json:"qty"`
}

type SaleRecord struct {
	ID           string     `json:"id"`
	SubmissionID string     `json:"submission_id"`
	TotalCents   int64      `json:"total_cents"`
	CreatedAt    time.Time  `json:"created_at"`
	Lines        []SaleLine `json:"lines"`
}

type SaleRequest struct {
	SubmissionID string `json:"submission_id"`
}

type SaleResponse struct {
	Sale      SaleRecord `json:"sale"`
	Duplicate bool       `json:"duplicate"`
	Snapshot  Snapshot   `json:"snapshot"`
}

type CartLine struct {
	ProductID      string `json:"product_id"`
	Name           string `json:"name"`
	Barcode        string `json:"barcode"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	Stock          int    `json:"stock"`
	Qty            int    `json:"qty"`
}

type CartView struct {
	Lines      []CartLine `json:"lines"`
	ItemCount  int        `json:"item_count"`
	TotalCents int64      `json:"total_cents"`
}

type CartAddRequest struct {
	ProductID string `json:"product_id"`
}

type CartScanRequest struct {
	Barcode string `json:"barcode"`
}

type CartScanResponse struct {
	Matched bool     `json:"matched"`
	Cart    CartView `json:"cart"`
}

// Snapshot is the full refreshed view of products and invoices.
type Snapshot struct {
	Products    []Product         `json:"products"`
	Purchases   []PurchaseInvoice `json:"purchases"`
	Sales       []SaleRecord      `json:"sales"`
	RefreshedAt time.Time         `json:"refreshed_at"`
}

type LegacyProduct struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Barcode  string  `json:"barcode"`
	Stock    int     `json:"stock"`
	Price    float64 `json:"price"`
	Category string  `json:"category"`
	Image    string  `json:"image"`
}

type LegacyMigrationResponse struct {
	Received int `json:"received"`
	Migrated int `json:"migrated"`
	Skipped  int `json:"skipped"`
}

type LowStockItem struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Barcode   string `json:"barcode"`
	Stock     int    `json:"stock"`
}

type Dashboard struct {
	Date               string         `json:"date"`
	TodaySalesCents    int64          `json:"today_sales_cents"`
	TodaySalesDisplay  string         `json:"today_sales_display"`
	MonthSalesCents    int64          `json:"month_sales_cents"`
	MonthSalesDisplay  string         `json:"month_sales_display"`
	AllSalesCents      int64          `json:"all_sales_cents"`
	SalesCount         int            `json:"sales_count"`
	StockValueCents    int64          `json:"stock_value_cents"`
	StockValueDisplay  string         `json:"stock_value_display"`
	ProductCount       int            `json:"product_count"`
	NegativeStockCount int            `json:"negative_stock_count"`
	LowStockThreshold  int            `json:"low_stock_threshold"`
	LowStock           []LowStockItem `json:"low_stock"`
	RecentSales        []SaleRecord   `json:"recent_sales"`
	PurchaseCount      int            `json:"purchase_count"`
	PurchaseTotalCents int64          `json:"purchase_total_cents"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
)
