package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"eclatpos/backend/internal/domain"
	"eclatpos/backend/internal/store"
	"eclatpos/backend/internal/xid"
)

//go:embed schema.sql
var schemaSQL string

const productColumns = `id, name, barcode, price_cents, stock, category, image, created_at, updated_at`

type Store struct {
	db *sql.DB
}

type rowScanner interface {
	Scan(dest ...any) error
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// EnsureSchema creates the tables and indexes when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		ORDER BY category, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetProductByBarcode(ctx context.Context, barcode string) (*domain.Product, error) {
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return nil, store.ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE barcode = $1`, barcode)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) ApplyIntake(ctx context.Context, line domain.PurchaseLine) (*domain.Product, bool, error) {
	if strings.TrimSpace(line.ProductName) == "" || line.Qty < 0 {
		return nil, false, store.ErrInvalidTransaction
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = tx.Rollback() }()

	product, created, err := applyIntakeTx(ctx, tx, line, time.Now().UTC())
	if err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	return &product, created, nil
}

func (s *Store) UpsertProducts(ctx context.Context, products []domain.Product) (int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	written := 0
	for _, p := range products {
		p.Name = strings.TrimSpace(p.Name)
		p.Barcode = strings.TrimSpace(p.Barcode)
		if p.Name == "" {
			continue
		}
		if p.ID == "" {
			p.ID = xid.New("prd")
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}

		if p.Barcode != "" {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO products (id, name, barcode, price_cents, stock, category, image, created_at, updated_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
				ON CONFLICT (barcode) WHERE barcode <> ''
				DO UPDATE SET name = EXCLUDED.name, price_cents = EXCLUDED.price_cents, stock = EXCLUDED.stock,
					category = EXCLUDED.category, image = EXCLUDED.image, updated_at = EXCLUDED.updated_at
			`, p.ID, p.Name, p.Barcode, p.PriceCents, p.Stock, p.Category, p.Image, p.CreatedAt, now)
		} else {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO products (id, name, barcode, price_cents, stock, category, image, created_at, updated_at)
				VALUES ($1,$2,'',$3,$4,$5,$6,$7,$8)
				ON CONFLICT (id)
				DO UPDATE SET name = EXCLUDED.name, price_cents = EXCLUDED.price_cents, stock = EXCLUDED.stock,
					category = EXCLUDED.category, image = EXCLUDED.image, updated_at = EXCLUDED.updated_at
			`, p.ID, p.Name, p.PriceCents, p.Stock, p.Category, p.Image, p.CreatedAt, now)
		}
		if err != nil {
			return 0, err
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return written, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || strings.TrimSpace(product.Name) == "" || product.PriceCents < 0 {
		return nil, store.ErrInvalidTransaction
	}

	row := s.db.QueryRowContext(ctx, `
		UPDATE products
		SET name = $2, barcode = $3, price_cents = $4, category = $5, image = $6, updated_at = now()
		WHERE id = $1
		RETURNING `+productColumns,
		product.ID, product.Name, strings.TrimSpace(product.Barcode), product.PriceCents, product.Category, product.Image)
	updated, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateBarcode
		}
		return nil, err
	}
	return &updated, nil
}

func (s *Store) AdjustStock(ctx context.Context, productID string, delta int) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE products
		SET stock = stock + $2, updated_at = now()
		WHERE id = $1
		RETURNING `+productColumns, productID, delta)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) DeleteProduct(ctx context.Context, productID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ReceivePurchase(ctx context.Context, invoice domain.PurchaseInvoice) (*domain.PurchaseReceipt, error) {
	if len(invoice.Lines) == 0 {
		return nil, store.ErrInvalidTransaction
	}
	for _, line := range invoice.Lines {
		if strings.TrimSpace(line.ProductName) == "" || line.Qty < 1 {
			return nil, store.ErrInvalidTransaction
		}
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	if invoice.ID == "" {
		invoice.ID = xid.New("pur")
	}
	if invoice.CreatedAt.IsZero() {
		invoice.CreatedAt = now
	}
	invoice.TotalCostCents = domain.PurchaseTotalCost(invoice.Lines)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO purchase_invoices (id, submission_id, supplier, invoice_number, invoice_date, total_cost_cents, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, invoice.ID, nullIfEmpty(invoice.SubmissionID), invoice.Supplier, invoice.InvoiceNumber,
		invoice.InvoiceDate, invoice.TotalCostCents, invoice.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateSubmission
		}
		return nil, err
	}

	receipt := &domain.PurchaseReceipt{Products: make([]domain.Product, 0, len(invoice.Lines))}
	for i, line := range invoice.Lines {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO purchase_lines (invoice_id, line_no, product_name, barcode, qty, cost_cents, sale_price_cents, category, image)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, invoice.ID, i+1, line.ProductName, line.Barcode, line.Qty, line.CostCents,
			line.SalePriceCents, line.Category, line.Image)
		if err != nil {
			return nil, err
		}

		product, created, err := applyIntakeTx(ctx, tx, line, now)
		if err != nil {
			return nil, err
		}
		if created {
			receipt.Created++
		} else {
			receipt.Updated++
		}
		receipt.Products = append(receipt.Products, product)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	receipt.Invoice = invoice
	return receipt, nil
}

func (s *Store) FindPurchaseBySubmission(ctx context.Context, submissionID string) (*domain.PurchaseInvoice, error) {
	purchases, err := s.listPurchases(ctx, `WHERE submission_id = $1`, submissionID)
	if err != nil {
		return nil, err
	}
	if len(purchases) == 0 {
		return nil, store.ErrNotFound
	}
	return &purchases[0], nil
}

func (s *Store) ListPurchases(ctx context.Context) ([]domain.PurchaseInvoice, error) {
	return s.listPurchases(ctx, "")
}

func (s *Store) listPurchases(ctx context.Context, where string, args ...any) ([]domain.PurchaseInvoice, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, COALESCE(submission_id, ''), supplier, invoice_number, invoice_date, total_cost_cents, created_at
		FROM purchase_invoices
		`+where+`
		ORDER BY created_at DESC, id DESC
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	purchases := make([]domain.PurchaseInvoice, 0, 32)
	index := map[string]int{}
	ids := make([]string, 0, 32)
	for rows.Next() {
		var inv domain.PurchaseInvoice
		if err := rows.Scan(&inv.ID, &inv.SubmissionID, &inv.Supplier, &inv.InvoiceNumber,
			&inv.InvoiceDate, &inv.TotalCostCents, &inv.CreatedAt); err != nil {
			return nil, err
		}
		inv.CreatedAt = inv.CreatedAt.UTC()
		inv.Lines = []domain.PurchaseLine{}
		index[inv.ID] = len(purchases)
		ids = append(ids, inv.ID)
		purchases = append(purchases, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return purchases, nil
	}

	lineRows, err := s.db.QueryContext(ctx, `
		SELECT invoice_id, product_name, barcode, qty, cost_cents, sale_price_cents, category, image
		FROM purchase_lines
		WHERE invoice_id = ANY($1)
		ORDER BY invoice_id, line_no
	`, ids)
	if err != nil {
		return nil, err
	}
	defer lineRows.Close()

	for lineRows.Next() {
		var invoiceID string
		var line domain.PurchaseLine
		if err := lineRows.Scan(&invoiceID, &line.ProductName, &line.Barcode, &line.Qty, &line.CostCents,
			&line.SalePriceCents, &line.Category, &line.Image); err != nil {
			return nil, err
		}
		pos := index[invoiceID]
		purchases[pos].Lines = append(purchases[pos].Lines, line)
	}
	if err := lineRows.Err(); err != nil {
		return nil, err
	}
	return purchases, nil
}

// DeletePurchase removes the invoice and its lines. Stock added by the
// invoice is left in place.
func (s *Store) DeletePurchase(ctx context.Context, invoiceID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM purchase_invoices WHERE id = $1`, invoiceID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.SaleRecord, opts store.SaleOptions) (*domain.SaleRecord, error) {
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
	productIDs := make([]string, 0, len(requested))
	for id := range requested {
		productIDs = append(productIDs, id)
	}
	slices.Sort(productIDs)

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = now
	}
	sale.TotalCents = domain.SaleTotal(sale.Lines)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (id, submission_id, total_cents, created_at)
		VALUES ($1,$2,$3,$4)
	`, sale.ID, nullIfEmpty(sale.SubmissionID), sale.TotalCents, sale.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateSubmission
		}
		return nil, saleConflict(err)
	}

	for _, productID := range productIDs {
		qty := requested[productID]
		var res sql.Result
		if opts.AllowNegativeStock {
			res, err = tx.ExecContext(ctx, `
				UPDATE products SET stock = stock - $2, updated_at = now()
				WHERE id = $1
			`, productID, qty)
		} else {
			res, err = tx.ExecContext(ctx, `
				UPDATE products SET stock = stock - $2, updated_at = now()
				WHERE id = $1 AND stock >= $2
			`, productID, qty)
		}
		if err != nil {
			return nil, saleConflict(err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			return nil, fmt.Errorf("%w: product %s", store.ErrStockChanged, productID)
		}
	}

	for i, line := range sale.Lines {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sale_lines (sale_id, line_no, product_id, name, barcode, unit_price_cents, qty)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, sale.ID, i+1, line.ProductID, line.Name, line.Barcode, line.UnitPriceCents, line.Qty)
		if err != nil {
			return nil, saleConflict(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, saleConflict(err)
	}
	return &sale, nil
}

func (s *Store) FindSaleBySubmission(ctx context.Context, submissionID string) (*domain.SaleRecord, error) {
	sales, err := s.listSales(ctx, `WHERE submission_id = $1`, submissionID)
	if err != nil {
		return nil, err
	}
	if len(sales) == 0 {
		return nil, store.ErrNotFound
	}
	return &sales[0], nil
}

func (s *Store) ListSales(ctx context.Context) ([]domain.SaleRecord, error) {
	return s.listSales(ctx, "")
}

func (s *Store) listSales(ctx context.Context, where string, args ...any) ([]domain.SaleRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, COALESCE(submission_id, ''), total_cents, created_at
		FROM sales
		`+where+`
		ORDER BY created_at DESC, id DESC
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.SaleRecord, 0, 64)
	index := map[string]int{}
	ids := make([]string, 0, 64)
	for rows.Next() {
		var sale domain.SaleRecord
		if err := rows.Scan(&sale.ID, &sale.SubmissionID, &sale.TotalCents, &sale.CreatedAt); err != nil {
			return nil, err
		}
		sale.CreatedAt = sale.CreatedAt.UTC()
		sale.Lines = []domain.SaleLine{}
		index[sale.ID] = len(sales)
		ids = append(ids, sale.ID)
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return sales, nil
	}

	lineRows, err := s.db.QueryContext(ctx, `
		SELECT sale_id, product_id, name, barcode, unit_price_cents, qty
		FROM sale_lines
		WHERE sale_id = ANY($1)
		ORDER BY sale_id, line_no
	`, ids)
	if err != nil {
		return nil, err
	}
	defer lineRows.Close()

	for lineRows.Next() {
		var saleID string
		var line domain.SaleLine
		if err := lineRows.Scan(&saleID, &line.ProductID, &line.Name, &line.Barcode, &line.UnitPriceCents, &line.Qty); err != nil {
			return nil, err
		}
		pos := index[saleID]
		sales[pos].Lines = append(sales[pos].Lines, line)
	}
	if err := lineRows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

// DeleteSale removes the sale and its lines without restoring stock.
func (s *Store) DeleteSale(ctx context.Context, saleID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, saleID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidTransaction
	}
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidTransaction
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidTransaction
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// applyIntakeTx merges one purchase line into the catalog inside tx. Lines
// with a barcode lock the matching row; lines without one always insert.
func applyIntakeTx(ctx context.Context, tx *sql.Tx, line domain.PurchaseLine, at time.Time) (domain.Product, bool, error) {
	barcode := strings.TrimSpace(line.Barcode)
	line.Barcode = barcode

	if barcode != "" {
		row := tx.QueryRowContext(ctx, `
			SELECT `+productColumns+`
			FROM products
			WHERE barcode = $1
			FOR UPDATE
		`, barcode)
		existing, err := scanProduct(row)
		switch {
		case err == nil:
			merged := domain.ApplyIntake(existing, line, at)
			_, err := tx.ExecContext(ctx, `
				UPDATE products
				SET stock = $2, price_cents = $3, category = $4, image = $5, updated_at = $6
				WHERE id = $1
			`, merged.ID, merged.Stock, merged.PriceCents, merged.Category, merged.Image, merged.UpdatedAt)
			if err != nil {
				return domain.Product{}, false, err
			}
			return merged, false, nil
		case !errors.Is(err, sql.ErrNoRows):
			return domain.Product{}, false, err
		}
	}

	product := domain.NewProductFromIntake(xid.New("prd"), line, at)
	_, err := tx.ExecContext(ctx, `
		INSERT INTO products (id, name, barcode, price_cents, stock, category, image, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, product.ID, product.Name, product.Barcode, product.PriceCents, product.Stock,
		product.Category, product.Image, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Product{}, false, fmt.Errorf("%w: %s", store.ErrDuplicateBarcode, barcode)
		}
		return domain.Product{}, false, err
	}
	return product, true, nil
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	if err := row.Scan(&p.ID, &p.Name, &p.Barcode, &p.PriceCents, &p.Stock, &p.Category,
		&p.Image, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return domain.Product{}, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001"
	}
	return false
}

// saleConflict reports a concurrent checkout on the same products as a
// stock change so the cashier refreshes and retries.
func saleConflict(err error) error {
	if isSerializationFailure(err) {
		return fmt.Errorf("%w: %v", store.ErrStockChanged, err)
	}
	return err
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
