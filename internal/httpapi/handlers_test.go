package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"eclatpos/backend/internal/cache"
	"eclatpos/backend/internal/cart"
	"eclatpos/backend/internal/catalog"
	"eclatpos/backend/internal/domain"
	"eclatpos/backend/internal/importer"
	"eclatpos/backend/internal/service"
	"eclatpos/backend/internal/store"
	"eclatpos/backend/internal/store/memory"
)

const trousseBarcode = "6111000000073"

// newTestAPI wires the seeded memory store through the real catalog,
// service and auth manager so handler tests run the full request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	catalogStore := catalog.New(repo, cache.NoopSnapshotCache{}, time.Minute)
	svc := service.New(repo, catalogStore, cart.NewRegistry(), service.Options{})
	auth := NewAuthManager("test-secret-key", time.Hour, repo)

	return New(svc, auth, "*")
}

type session struct {
	api   *API
	token string
	csrf  string
}

func newSession(t *testing.T, api *API, username, password string) session {
	t.Helper()
	return session{api: api, token: login(t, api, username, password), csrf: fetchCSRFToken(t, api)}
}

func (s session) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("X-CSRF-Token", s.csrf)
	res := httptest.NewRecorder()
	s.api.Handler().ServeHTTP(res, req)
	return res
}

func decodeBody[T any](t *testing.T, res *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatalf("decode body: %v (body: %s)", err, res.Body.String())
	}
	return out
}

func expectStatus(t *testing.T, res *httptest.ResponseRecorder, want int) {
	t.Helper()
	if res.Code != want {
		t.Fatalf("expected %d, got %d (body: %s)", want, res.Code, res.Body.String())
	}
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	api.Handler().ServeHTTP(rec, req)

	expectStatus(t, rec, http.StatusOK)
	body := decodeBody[map[string]any](t, rec)
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLoginInvalidCredentials(t *testing.T) {
	api := newTestAPI(t)
	payload, _ := json.Marshal(domain.LoginRequest{Username: "admin", Password: "wrongpassword"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	api.Handler().ServeHTTP(rec, req)

	expectStatus(t, rec, http.StatusUnauthorized)
}

func TestProductsRequireBearerToken(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	rec := httptest.NewRecorder()

	api.Handler().ServeHTTP(rec, req)

	expectStatus(t, rec, http.StatusUnauthorized)
}

func TestCashierCanListButNotUpsertProducts(t *testing.T) {
	api := newTestAPI(t)
	cashier := newSession(t, api, "eclat", "eclat2026")

	res := cashier.do(t, http.MethodGet, "/api/v1/products", nil)
	expectStatus(t, res, http.StatusOK)
	listed := decodeBody[map[string][]domain.Product](t, res)
	if len(listed["products"]) != 8 {
		t.Fatalf("expected 8 seeded products, got %d", len(listed["products"]))
	}

	res = cashier.do(t, http.MethodPost, "/api/v1/products", domain.ProductUpsertRequest{
		Name: "Blush", Qty: 2, SalePriceCents: 4000, Category: "ماكياج",
	})
	expectStatus(t, res, http.StatusForbidden)
}

func TestUpsertProductCreatesThenMergesByBarcode(t *testing.T) {
	api := newTestAPI(t)
	admin := newSession(t, api, "admin", "admin123")

	res := admin.do(t, http.MethodPost, "/api/v1/products", domain.ProductUpsertRequest{
		Name: "Blush Pêche", Barcode: "6111000000097", Qty: 2, SalePriceCents: 4000, Category: "ماكياج",
	})
	expectStatus(t, res, http.StatusCreated)
	created := decodeBody[domain.ProductResponse](t, res)
	if !created.Created || created.Product.Stock != 2 {
		t.Fatalf("expected new product with stock 2, got %+v", created.Product)
	}

	res = admin.do(t, http.MethodPost, "/api/v1/products", domain.ProductUpsertRequest{
		Name: "Blush Pêche v2", Barcode: "6111000000097", Qty: 3, SalePriceCents: 4500, Category: "ماكياج",
	})
	expectStatus(t, res, http.StatusOK)
	merged := decodeBody[domain.ProductResponse](t, res)
	if merged.Created || merged.Product.ID != created.Product.ID {
		t.Fatalf("expected merge into existing product")
	}
	if merged.Product.Stock != 5 || merged.Product.PriceCents != 4500 || merged.Product.Name != "Blush Pêche" {
		t.Fatalf("unexpected merged product %+v", merged.Product)
	}
}

func TestUpsertProductRejectsUnknownCategory(t *testing.T) {
	api := newTestAPI(t)
	admin := newSession(t, api, "admin", "admin123")

	res := admin.do(t, http.MethodPost, "/api/v1/products", domain.ProductUpsertRequest{
		Name: "Stylo", Qty: 1, SalePriceCents: 100, Category: "papeterie",
	})
	expectStatus(t, res, http.StatusBadRequest)
}

func TestBarcodeLookup(t *testing.T) {
	api := newTestAPI(t)
	cashier := newSession(t, api, "eclat", "eclat2026")

	res := cashier.do(t, http.MethodGet, "/api/v1/products/barcode/"+trousseBarcode, nil)
	expectStatus(t, res, http.StatusOK)
	found := decodeBody[domain.BarcodeLookupResponse](t, res)
	if !found.Found || found.Name != "Trousse dorée" || found.SalePriceCents != 12000 {
		t.Fatalf("unexpected lookup %+v", found)
	}

	res = cashier.do(t, http.MethodGet, "/api/v1/products/barcode/0000", nil)
	expectStatus(t, res, http.StatusOK)
	if decodeBody[domain.BarcodeLookupResponse](t, res).Found {
		t.Fatalf("expected unknown barcode not to match")
	}
}

func TestPatchAndDeleteProduct(t *testing.T) {
	api := newTestAPI(t)
	admin := newSession(t, api, "admin", "admin123")

	lookup := decodeBody[domain.BarcodeLookupResponse](t, admin.do(t, http.MethodGet, "/api/v1/products/barcode/"+trousseBarcode, nil))

	price := int64(13000)
	delta := -5
	res := admin.do(t, http.MethodPatch, "/api/v1/products/"+lookup.ProductID, domain.ProductUpdateRequest{
		PriceCents: &price,
		StockDelta: &delta,
	})
	expectStatus(t, res, http.StatusOK)
	updated := decodeBody[domain.ProductResponse](t, res)
	if updated.Product.PriceCents != 13000 || updated.Product.Stock != -2 {
		t.Fatalf("unexpected product after patch %+v", updated.Product)
	}

	res = admin.do(t, http.MethodDelete, "/api/v1/products/"+lookup.ProductID, nil)
	expectStatus(t, res, http.StatusOK)

	res = admin.do(t, http.MethodDelete, "/api/v1/products/"+lookup.ProductID, nil)
	expectStatus(t, res, http.StatusNotFound)
}

func TestSubmitPurchaseIsIdempotent(t *testing.T) {
	api := newTestAPI(t)
	admin := newSession(t, api, "admin", "admin123")

	req := domain.PurchaseRequest{
		SubmissionID:  "sub-http-1",
		Supplier:      "Argan Co",
		InvoiceNumber: "F-0042",
		InvoiceDate:   "2026-03-01",
		Lines: []domain.PurchaseLine{
			{ProductName: "Trousse dorée", Barcode: trousseBarcode, Qty: 4, CostCents: 6000, SalePriceCents: 12000, Category: "إكسسوارات"},
			{ProductName: "", Barcode: "x", Qty: 1},
		},
	}

	res := admin.do(t, http.MethodPost, "/api/v1/purchases", req)
	expectStatus(t, res, http.StatusCreated)
	first := decodeBody[domain.PurchaseResponse](t, res)
	if first.Updated != 1 || first.Dropped != 1 || first.Invoice.TotalCostCents != 24000 {
		t.Fatalf("unexpected purchase response %+v", first)
	}

	res = admin.do(t, http.MethodPost, "/api/v1/purchases", req)
	expectStatus(t, res, http.StatusOK)
	second := decodeBody[domain.PurchaseResponse](t, res)
	if !second.Duplicate || second.Invoice.ID != first.Invoice.ID {
		t.Fatalf("expected duplicate response for the same invoice")
	}

	lookup := decodeBody[domain.BarcodeLookupResponse](t, admin.do(t, http.MethodGet, "/api/v1/products/barcode/"+trousseBarcode, nil))
	if lookup.Stock != 7 {
		t.Fatalf("expected stock 3+4 applied once, got %d", lookup.Stock)
	}
}

func TestSubmitPurchaseWithNoValidLines(t *testing.T) {
	api := newTestAPI(t)
	admin := newSession(t, api, "admin", "admin123")

	res := admin.do(t, http.MethodPost, "/api/v1/purchases", domain.PurchaseRequest{
		Lines: []domain.PurchaseLine{{ProductName: "Vide", Qty: 0}},
	})
	expectStatus(t, res, http.StatusBadRequest)
}

func importRequest(t *testing.T, s session, path, filename, content string, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := io.WriteString(part, content); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("X-CSRF-Token", s.csrf)
	res := httptest.NewRecorder()
	s.api.Handler().ServeHTTP(res, req)
	return res
}

func TestImportPurchasePreviewThenSubmit(t *testing.T) {
	api := newTestAPI(t)
	admin := newSession(t, api, "admin", "admin123")
	csvData := "Nom du produit;Code barres;Quantité;Prix d'achat;Prix de vente;Catégorie\n" +
		"Sérum Rose;6111000000103;6;45,50;89,00;عناية بالبشرة\n" +
		";;2;;;\n"

	res := importRequest(t, admin, "/api/v1/purchases/import?preview=1", "facture.csv", csvData, nil)
	expectStatus(t, res, http.StatusOK)
	preview := decodeBody[domain.PurchaseImportPreview](t, res)
	if len(preview.Lines) != 1 || preview.Dropped != 1 {
		t.Fatalf("unexpected preview %+v", preview)
	}
	if preview.Lines[0].CostCents != 4550 || preview.Lines[0].SalePriceCents != 8900 {
		t.Fatalf("unexpected money parsing %+v", preview.Lines[0])
	}

	products := decodeBody[map[string][]domain.Product](t, admin.do(t, http.MethodGet, "/api/v1/products", nil))
	if len(products["products"]) != 8 {
		t.Fatalf("expected preview not to touch the catalog")
	}

	res = importRequest(t, admin, "/api/v1/purchases/import", "facture.csv", csvData, map[string]string{
		"supplier":       "Rose Lab",
		"invoice_number": "RL-7",
	})
	expectStatus(t, res, http.StatusCreated)
	resp := decodeBody[domain.PurchaseResponse](t, res)
	if resp.Created != 1 || resp.Invoice.Supplier != "Rose Lab" || resp.Invoice.TotalCostCents != 27300 {
		t.Fatalf("unexpected import response %+v", resp)
	}
}

func TestImportPurchaseRejectsUnsupportedFile(t *testing.T) {
	api := newTestAPI(t)
	admin := newSession(t, api, "admin", "admin123")

	res := importRequest(t, admin, "/api/v1/purchases/import", "facture.pdf", "%PDF", nil)
	expectStatus(t, res, http.StatusBadRequest)
}

func TestCartScanStopsAtStockAndSaleDecrements(t *testing.T) {
	api := newTestAPI(t)
	cashier := newSession(t, api, "eclat", "eclat2026")

	for i := 0; i < 3; i++ {
		res := cashier.do(t, http.MethodPost, "/api/v1/cart/scan", domain.CartScanRequest{Barcode: trousseBarcode})
		expectStatus(t, res, http.StatusOK)
		if !decodeBody[domain.CartScanResponse](t, res).Matched {
			t.Fatalf("expected scan %d to match", i+1)
		}
	}
	res := cashier.do(t, http.MethodPost, "/api/v1/cart/scan", domain.CartScanRequest{Barcode: trousseBarcode})
	expectStatus(t, res, http.StatusConflict)

	res = cashier.do(t, http.MethodPost, "/api/v1/cart/scan", domain.CartScanRequest{Barcode: "no-such-code"})
	expectStatus(t, res, http.StatusOK)
	scan := decodeBody[domain.CartScanResponse](t, res)
	if scan.Matched || scan.Cart.ItemCount != 3 || scan.Cart.TotalCents != 36000 {
		t.Fatalf("unexpected cart after unknown scan %+v", scan)
	}

	res = cashier.do(t, http.MethodPost, "/api/v1/sales", domain.SaleRequest{SubmissionID: "sale-http-1"})
	expectStatus(t, res, http.StatusCreated)
	sale := decodeBody[domain.SaleResponse](t, res)
	if sale.Sale.TotalCents != 36000 {
		t.Fatalf("expected total 36000, got %d", sale.Sale.TotalCents)
	}

	cartView := decodeBody[domain.CartView](t, cashier.do(t, http.MethodGet, "/api/v1/cart", nil))
	if cartView.ItemCount != 0 {
		t.Fatalf("expected cart to be cleared after sale")
	}

	lookup := decodeBody[domain.BarcodeLookupResponse](t, cashier.do(t, http.MethodGet, "/api/v1/products/barcode/"+trousseBarcode, nil))
	if lookup.Stock != 0 {
		t.Fatalf("expected stock 0 after sale, got %d", lookup.Stock)
	}

	res = cashier.do(t, http.MethodPost, "/api/v1/sales", domain.SaleRequest{SubmissionID: "sale-http-1"})
	expectStatus(t, res, http.StatusOK)
	if !decodeBody[domain.SaleResponse](t, res).Duplicate {
		t.Fatalf("expected repeated confirm to be reported as duplicate")
	}
}

func TestConfirmSaleWithEmptyCart(t *testing.T) {
	api := newTestAPI(t)
	cashier := newSession(t, api, "eclat", "eclat2026")

	res := cashier.do(t, http.MethodPost, "/api/v1/sales", nil)
	expectStatus(t, res, http.StatusBadRequest)
}

func TestCartItemsAddAndRemove(t *testing.T) {
	api := newTestAPI(t)
	cashier := newSession(t, api, "eclat", "eclat2026")
	lookup := decodeBody[domain.BarcodeLookupResponse](t, cashier.do(t, http.MethodGet, "/api/v1/products/barcode/"+trousseBarcode, nil))

	res := cashier.do(t, http.MethodPost, "/api/v1/cart/items", domain.CartAddRequest{ProductID: lookup.ProductID})
	expectStatus(t, res, http.StatusOK)

	res = cashier.do(t, http.MethodPost, "/api/v1/cart/items", domain.CartAddRequest{ProductID: "prd-missing"})
	expectStatus(t, res, http.StatusNotFound)

	res = cashier.do(t, http.MethodDelete, "/api/v1/cart/items/"+lookup.ProductID, nil)
	expectStatus(t, res, http.StatusOK)
	if decodeBody[domain.CartView](t, res).ItemCount != 0 {
		t.Fatalf("expected empty cart after remove")
	}

	res = cashier.do(t, http.MethodDelete, "/api/v1/cart/items/"+lookup.ProductID, nil)
	expectStatus(t, res, http.StatusBadRequest)
}

func TestDeleteSaleRequiresAdmin(t *testing.T) {
	api := newTestAPI(t)
	cashier := newSession(t, api, "eclat", "eclat2026")

	res := cashier.do(t, http.MethodDelete, "/api/v1/sales/sale-anything", nil)
	expectStatus(t, res, http.StatusForbidden)
}

func TestDashboardAndSnapshot(t *testing.T) {
	api := newTestAPI(t)
	cashier := newSession(t, api, "eclat", "eclat2026")

	res := cashier.do(t, http.MethodGet, "/api/v1/reports/dashboard", nil)
	expectStatus(t, res, http.StatusOK)
	dashboard := decodeBody[domain.Dashboard](t, res)
	if dashboard.ProductCount != 8 || dashboard.LowStockThreshold != 5 {
		t.Fatalf("unexpected dashboard %+v", dashboard)
	}
	if len(dashboard.LowStock) != 2 {
		t.Fatalf("expected two seeded products under the threshold, got %d", len(dashboard.LowStock))
	}

	res = cashier.do(t, http.MethodPost, "/api/v1/snapshot/refresh", nil)
	expectStatus(t, res, http.StatusOK)
	snap := decodeBody[domain.Snapshot](t, res)
	if len(snap.Products) != 8 || snap.RefreshedAt.IsZero() {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestLegacyMigrateReplacesByBarcode(t *testing.T) {
	api := newTestAPI(t)
	admin := newSession(t, api, "admin", "admin123")

	res := admin.do(t, http.MethodPost, "/api/v1/legacy/migrate", []domain.LegacyProduct{
		{ID: "1", Name: "Trousse dorée", Barcode: trousseBarcode, Stock: 11, Price: 119.9, Category: "إكسسوارات"},
		{ID: "2", Name: "", Barcode: "x", Stock: 1, Price: 1},
	})
	expectStatus(t, res, http.StatusOK)
	resp := decodeBody[domain.LegacyMigrationResponse](t, res)
	if resp.Received != 2 || resp.Migrated != 1 || resp.Skipped != 1 {
		t.Fatalf("unexpected migration counts %+v", resp)
	}

	lookup := decodeBody[domain.BarcodeLookupResponse](t, admin.do(t, http.MethodGet, "/api/v1/products/barcode/"+trousseBarcode, nil))
	if lookup.Stock != 11 || lookup.SalePriceCents != 11990 {
		t.Fatalf("expected legacy row to replace the product, got %+v", lookup)
	}
}

func TestUsersListedForAdmin(t *testing.T) {
	api := newTestAPI(t)
	admin := newSession(t, api, "admin", "admin123")

	res := admin.do(t, http.MethodGet, "/api/v1/users", nil)
	expectStatus(t, res, http.StatusOK)
	users := decodeBody[map[string][]UserSummary](t, res)["users"]
	if len(users) != 2 || users[0].Username != "admin" || users[1].Username != "eclat" {
		t.Fatalf("unexpected users %+v", users)
	}
}

func TestStatusForMapsDomainErrors(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{store.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("sale: %w", store.ErrStockChanged), http.StatusConflict},
		{store.ErrDuplicateBarcode, http.StatusConflict},
		{cart.ErrInsufficientStock, http.StatusConflict},
		{store.ErrInvalidTransaction, http.StatusBadRequest},
		{service.ErrEmptyCart, http.StatusBadRequest},
		{service.ErrUnknownCategory, http.StatusBadRequest},
		{importer.ErrMissingColumns, http.StatusBadRequest},
		{service.ErrAdminRequired, http.StatusForbidden},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Errorf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
