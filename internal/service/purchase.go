package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"eclatpos/backend/internal/domain"
	"eclatpos/backend/internal/importer"
	"eclatpos/backend/internal/store"
	"eclatpos/backend/internal/xid"
)

const invoiceDateLayout = "2006-01-02"

// SubmitPurchase records a supplier invoice and folds every line into the
// catalog in one commit. Lines without a name or with qty <= 0 are dropped;
// if nothing is left the whole submission is rejected.
func (s *Service) SubmitPurchase(ctx context.Context, req domain.PurchaseRequest) (domain.PurchaseResponse, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.PurchaseResponse{}, err
	}

	invoice, dropped, err := s.normalizePurchase(req)
	if err != nil {
		return domain.PurchaseResponse{}, err
	}

	if existing, err := s.repo.FindPurchaseBySubmission(ctx, invoice.SubmissionID); err == nil {
		return s.duplicatePurchase(ctx, existing), nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.PurchaseResponse{}, err
	}

	receipt, err := s.repo.ReceivePurchase(ctx, invoice)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateSubmission) {
			existing, lookupErr := s.repo.FindPurchaseBySubmission(ctx, invoice.SubmissionID)
			if lookupErr == nil {
				return s.duplicatePurchase(ctx, existing), nil
			}
		}
		return domain.PurchaseResponse{}, err
	}

	return domain.PurchaseResponse{
		Invoice:  receipt.Invoice,
		Created:  receipt.Created,
		Updated:  receipt.Updated,
		Dropped:  dropped,
		Snapshot: s.snapshotAfterWrite(ctx),
	}, nil
}

// ImportPurchase parses an .xlsx or .csv invoice and submits it with the
// given header. Rows without a name are counted as dropped.
func (s *Service) ImportPurchase(ctx context.Context, header domain.PurchaseRequest, file io.Reader, filename string) (domain.PurchaseResponse, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.PurchaseResponse{}, err
	}

	parsed, err := importer.Parse(file, filename)
	if err != nil {
		return domain.PurchaseResponse{}, fmt.Errorf("%w: %w", store.ErrInvalidTransaction, err)
	}
	header.Lines = parsed.Lines

	resp, err := s.SubmitPurchase(ctx, header)
	if err != nil {
		return domain.PurchaseResponse{}, err
	}
	resp.Dropped += parsed.Dropped
	return resp, nil
}

// PreviewImport parses the file and reports the lines that would be
// submitted, without touching the catalog.
func (s *Service) PreviewImport(ctx context.Context, file io.Reader, filename string) (domain.PurchaseImportPreview, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.PurchaseImportPreview{}, err
	}

	parsed, err := importer.Parse(file, filename)
	if err != nil {
		return domain.PurchaseImportPreview{}, fmt.Errorf("%w: %w", store.ErrInvalidTransaction, err)
	}
	lines, dropped, err := normalizePurchaseLines(parsed.Lines)
	if err != nil && !errors.Is(err, ErrNoValidLines) {
		return domain.PurchaseImportPreview{}, err
	}
	return domain.PurchaseImportPreview{Lines: lines, Dropped: dropped + parsed.Dropped}, nil
}

func (s *Service) ListPurchases(ctx context.Context) ([]domain.PurchaseInvoice, error) {
	snap, err := s.catalog.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Purchases, nil
}

// DeletePurchase removes the invoice record. Stock it added stays in the
// catalog.
func (s *Service) DeletePurchase(ctx context.Context, invoiceID string) (domain.Snapshot, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Snapshot{}, err
	}
	if strings.TrimSpace(invoiceID) == "" {
		return domain.Snapshot{}, store.ErrInvalidTransaction
	}
	if err := s.repo.DeletePurchase(ctx, invoiceID); err != nil {
		return domain.Snapshot{}, err
	}
	return s.snapshotAfterWrite(ctx), nil
}

func (s *Service) duplicatePurchase(ctx context.Context, existing *domain.PurchaseInvoice) domain.PurchaseResponse {
	snap, err := s.catalog.Snapshot(ctx)
	if err != nil {
		snap = s.snapshotAfterWrite(ctx)
	}
	return domain.PurchaseResponse{
		Invoice:   *existing,
		Duplicate: true,
		Snapshot:  snap,
	}
}

func (s *Service) normalizePurchase(req domain.PurchaseRequest) (domain.PurchaseInvoice, int, error) {
	invoiceDate := strings.TrimSpace(req.InvoiceDate)
	if invoiceDate == "" {
		invoiceDate = s.today().Format(invoiceDateLayout)
	} else if _, err := time.Parse(invoiceDateLayout, invoiceDate); err != nil {
		return domain.PurchaseInvoice{}, 0, store.ErrInvalidTransaction
	}

	lines, dropped, err := normalizePurchaseLines(req.Lines)
	if err != nil {
		return domain.PurchaseInvoice{}, 0, err
	}

	submissionID := strings.TrimSpace(req.SubmissionID)
	if submissionID == "" {
		submissionID = xid.New("sub")
	}

	return domain.PurchaseInvoice{
		SubmissionID:  submissionID,
		Supplier:      strings.TrimSpace(req.Supplier),
		InvoiceNumber: strings.TrimSpace(req.InvoiceNumber),
		InvoiceDate:   invoiceDate,
		Lines:         lines,
	}, dropped, nil
}

func normalizePurchaseLines(raw []domain.PurchaseLine) ([]domain.PurchaseLine, int, error) {
	lines := make([]domain.PurchaseLine, 0, len(raw))
	dropped := 0
	for _, line := range raw {
		line.ProductName = strings.TrimSpace(line.ProductName)
		line.Barcode = strings.TrimSpace(line.Barcode)
		line.Image = strings.TrimSpace(line.Image)
		if line.ProductName == "" || line.Qty <= 0 {
			dropped++
			continue
		}
		if line.CostCents < 0 || line.SalePriceCents < 0 {
			return nil, 0, store.ErrInvalidTransaction
		}
		category, ok := domain.IntakeCategory(line.Category)
		if !ok {
			return nil, 0, fmt.Errorf("%w: %q", ErrUnknownCategory, line.Category)
		}
		line.Category = category
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return lines, dropped, ErrNoValidLines
	}
	return lines, dropped, nil
}
