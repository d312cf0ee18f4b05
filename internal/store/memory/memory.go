package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"eclatpos/backend/internal/domain"
	"eclatpos/backend/internal/store"
	"eclatpos/backend/internal/xid"
)

type Store struct {
	mu                   sync.RWMutex
	products             map[string]domain.Product
	productIDByBarcode   map[string]string
	purchasesByID        map[string]domain.PurchaseInvoice
	purchaseBySubmission map[string]string
	salesByID            map[string]domain.SaleRecord
	saleBySubmission     map[string]string
	usersByUsername      map[string]domain.UserAccount
}

// New returns an empty store without users.
func New() *Store {
	return &Store{
		products:             make(map[string]domain.Product),
		productIDByBarcode:   make(map[string]string),
		purchasesByID:        make(map[string]domain.PurchaseInvoice),
		purchaseBySubmission: make(map[string]string),
		salesByID:            make(map[string]domain.SaleRecord),
		saleBySubmission:     make(map[string]string),
		usersByUsername:      make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD;
// dev defaults are used with a warning when unset. Production runs on
// PostgreSQL when DATABASE_URL is set and never sees these accounts.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "eclat2026")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"eclat", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store with a small cosmetics catalog and dev users.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()
	seed := []domain.Product{
		{Name: "Rouge à lèvres Velours", Barcode: "6111000000011", PriceCents: 3500, Stock: 24, Category: "ماكياج"},
		{Name: "Mascara Volume", Barcode: "6111000000028", PriceCents: 6500, Stock: 18, Category: "ماكياج"},
		{Name: "Eau de parfum Oud", Barcode: "6111000000035", PriceCents: 32000, Stock: 6, Category: "عطور"},
		{Name: "Crème hydratante Argan", Barcode: "6111000000042", PriceCents: 9000, Stock: 15, Category: "عناية بالبشرة"},
		{Name: "Huile capillaire", Barcode: "6111000000059", PriceCents: 7500, Stock: 4, Category: "عناية بالشعر"},
		{Name: "Vernis Rouge Passion", Barcode: "6111000000066", PriceCents: 2500, Stock: 30, Category: "أظافر"},
		{Name: "Trousse dorée", Barcode: "6111000000073", PriceCents: 12000, Stock: 3, Category: "إكسسوارات"},
		{Name: "Coffret cadeau", Barcode: "6111000000080", PriceCents: 25000, Stock: 5, Category: "هدايا"},
	}
	for _, p := range seed {
		p.ID = xid.New("prd")
		p.CreatedAt = now
		p.UpdatedAt = now
		s.products[p.ID] = p
		s.productIDByBarcode[p.Barcode] = p.ID
	}
	s.usersByUsername = seedUsers()
	return s
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return cmpString(a.Name, b.Name)
		}
		return cmpString(a.Category, b.Category)
	})

	return products, nil
}

func (s *Store) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &product, nil
}

func (s *Store) GetProductByBarcode(_ context.Context, barcode string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.productByBarcodeLocked(barcode)
	if !ok {
		return nil, store.ErrNotFound
	}
	return &product, nil
}

func (s *Store) ApplyIntake(_ context.Context, line domain.PurchaseLine) (*domain.Product, bool, error) {
	if strings.TrimSpace(line.ProductName) == "" || line.Qty < 0 {
		return nil, false, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product, created := s.applyIntakeLocked(line, time.Now().UTC())
	return &product, created, nil
}

func (s *Store) UpsertProducts(_ context.Context, products []domain.Product) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	written := 0
	for _, p := range products {
		p.Name = strings.TrimSpace(p.Name)
		p.Barcode = strings.TrimSpace(p.Barcode)
		if p.Name == "" {
			continue
		}
		taken, idTaken := s.products[p.ID]
		if existing, ok := s.productByBarcodeLocked(p.Barcode); ok {
			p.ID = existing.ID
			p.CreatedAt = existing.CreatedAt
		} else if p.Barcode == "" && p.ID != "" && idTaken {
			// Rows without a barcode are keyed by ID, so a rerun replaces them.
			p.CreatedAt = taken.CreatedAt
			if taken.Barcode != "" {
				delete(s.productIDByBarcode, taken.Barcode)
			}
		} else {
			if p.ID == "" || idTaken {
				p.ID = xid.New("prd")
			}
			if p.CreatedAt.IsZero() {
				p.CreatedAt = now
			}
		}
		p.UpdatedAt = now
		s.products[p.ID] = p
		if p.Barcode != "" {
			s.productIDByBarcode[p.Barcode] = p.ID
		}
		written++
	}
	return written, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || strings.TrimSpace(product.Name) == "" || product.PriceCents < 0 {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.products[product.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if product.Barcode != existing.Barcode && product.Barcode != "" {
		if ownerID, taken := s.productIDByBarcode[product.Barcode]; taken && ownerID != product.ID {
			return nil, store.ErrDuplicateBarcode
		}
	}

	if existing.Barcode != "" {
		delete(s.productIDByBarcode, existing.Barcode)
	}
	product.Stock = existing.Stock
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = time.Now().UTC()
	s.products[product.ID] = product
	if product.Barcode != "" {
		s.productIDByBarcode[product.Barcode] = product.ID
	}
	return &product, nil
}

func (s *Store) AdjustStock(_ context.Context, productID string, delta int) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.products[productID]
	if !exists {
		return nil, store.ErrNotFound
	}
	product.Stock += delta
	product.UpdatedAt = time.Now().UTC()
	s.products[productID] = product
	return &product, nil
}

func (s *Store) DeleteProduct(_ context.Context, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.products[productID]
	if !exists {
		return store.ErrNotFound
	}
	delete(s.products, productID)
	if s.productIDByBarcode[product.Barcode] == productID {
		delete(s.productIDByBarcode, product.Barcode)
	}
	return nil
}

func (s *Store) ReceivePurchase(_ context.Context, invoice domain.PurchaseInvoice) (*domain.PurchaseReceipt, error) {
	if len(invoice.Lines) == 0 {
		return nil, store.ErrInvalidTransaction
	}
	for _, line := range invoice.Lines {
		if strings.TrimSpace(line.ProductName) == "" || line.Qty < 1 {
			return nil, store.ErrInvalidTransaction
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if invoice.SubmissionID != "" {
		if _, exists := s.purchaseBySubmission[invoice.SubmissionID]; exists {
			return nil, store.ErrDuplicateSubmission
		}
	}

	now := time.Now().UTC()
	if invoice.ID == "" {
		invoice.ID = xid.New("pur")
	}
	if invoice.CreatedAt.IsZero() {
		invoice.CreatedAt = now
	}
	invoice.TotalCostCents = domain.PurchaseTotalCost(invoice.Lines)

	receipt := &domain.PurchaseReceipt{Products: make([]domain.Product, 0, len(invoice.Lines))}
	for _, line := range invoice.Lines {
		product, created := s.applyIntakeLocked(line, now)
		if created {
			receipt.Created++
		} else {
			receipt.Updated++
		}
		receipt.Products = append(receipt.Products, product)
	}

	invoice.Lines = slices.Clone(invoice.Lines)
	s.purchasesByID[invoice.ID] = invoice
	if invoice.SubmissionID != "" {
		s.purchaseBySubmission[invoice.SubmissionID] = invoice.ID
	}
	receipt.Invoice = invoice
	return receipt, nil
}

func (s *Store) FindPurchaseBySubmission(_ context.Context, submissionID string) (*domain.PurchaseInvoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.purchaseBySubmission[submissionID]
	if !exists {
		return nil, store.ErrNotFound
	}
	invoice, exists := s.purchasesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &invoice, nil
}

func (s *Store) ListPurchases(_ context.Context) ([]domain.PurchaseInvoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	purchases := make([]domain.PurchaseInvoice, 0, len(s.purchasesByID))
	for _, invoice := range s.purchasesByID {
		purchases = append(purchases, invoice)
	}
	slices.SortFunc(purchases, func(a, b domain.PurchaseInvoice) int {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return purchases, nil
}

// DeletePurchase drops the invoice record only; the stock it added stays.
func (s *Store) DeletePurchase(_ context.Context, invoiceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	invoice, exists := s.purchasesByID[invoiceID]
	if !exists {
		return store.ErrNotFound
	}
	delete(s.purchasesByID, invoiceID)
	if invoice.SubmissionID != "" {
		delete(s.purchaseBySubmission, invoice.SubmissionID)
	}
	return nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.SaleRecord, opts store.SaleOptions) (*domain.SaleRecord, error) {
	if len(sale.Lines) == 0 {
		return nil, store.ErrInvalidTransaction
	}

	requested := make(map[string]int, len(sale.Lines))
	for _, line := range sale.Lines {
		if line.ProductID == "" || line.Qty < 1 || line.UnitPriceCents < 0 {
			return nil, store.ErrInvalidTransaction
		}
		requested[line.ProductID] += line.Qty
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sale.SubmissionID != "" {
		if _, exists := s.saleBySubmission[sale.SubmissionID]; exists {
			return nil, store.ErrDuplicateSubmission
		}
	}

	for productID, qty := range requested {
		product, exists := s.products[productID]
		if !exists {
			return nil, fmt.Errorf("%w: product %s no longer exists", store.ErrStockChanged, productID)
		}
		if !opts.AllowNegativeStock && product.Stock < qty {
			return nil, fmt.Errorf("%w: %s has %d left", store.ErrStockChanged, product.Name, product.Stock)
		}
	}

	now := time.Now().UTC()
	for productID, qty := range requested {
		product := s.products[productID]
		product.Stock -= qty
		product.UpdatedAt = now
		s.products[productID] = product
	}

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = now
	}
	sale.Lines = slices.Clone(sale.Lines)
	sale.TotalCents = domain.SaleTotal(sale.Lines)
	s.salesByID[sale.ID] = sale
	if sale.SubmissionID != "" {
		s.saleBySubmission[sale.SubmissionID] = sale.ID
	}
	created := sale
	return &created, nil
}

func (s *Store) FindSaleBySubmission(_ context.Context, submissionID string) (*domain.SaleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.saleBySubmission[submissionID]
	if !exists {
		return nil, store.ErrNotFound
	}
	sale, exists := s.salesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &sale, nil
}

func (s *Store) ListSales(_ context.Context) ([]domain.SaleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.SaleRecord, 0, len(s.salesByID))
	for _, sale := range s.salesByID {
		sales = append(sales, sale)
	}
	slices.SortFunc(sales, func(a, b domain.SaleRecord) int {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return sales, nil
}

// DeleteSale drops the sale record only; sold stock is not restored.
func (s *Store) DeleteSale(_ context.Context, saleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, exists := s.salesByID[saleID]
	if !exists {
		return store.ErrNotFound
	}
	delete(s.salesByID, saleID)
	if sale.SubmissionID != "" {
		delete(s.saleBySubmission, sale.SubmissionID)
	}
	return nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" {
		return store.ErrInvalidTransaction
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrInvalidTransaction
	}
	user.Username = username
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) productByBarcodeLocked(barcode string) (domain.Product, bool) {
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return domain.Product{}, false
	}
	id, exists := s.productIDByBarcode[barcode]
	if !exists {
		return domain.Product{}, false
	}
	product, exists := s.products[id]
	return product, exists
}

func (s *Store) applyIntakeLocked(line domain.PurchaseLine, at time.Time) (domain.Product, bool) {
	if existing, ok := s.productByBarcodeLocked(line.Barcode); ok {
		merged := domain.ApplyIntake(existing, line, at)
		s.products[merged.ID] = merged
		return merged, false
	}

	product := domain.NewProductFromIntake(xid.New("prd"), line, at)
	s.products[product.ID] = product
	if product.Barcode != "" {
		s.productIDByBarcode[product.Barcode] = product.ID
	}
	return product, true
}

func newestFirst(a time.Time, b time.Time, aID string, bID string) int {
	if a.Equal(b) {
		return cmpString(bID, aID)
	}
	if a.After(b) {
		return -1
	}
	return 1
}

func cmpString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
