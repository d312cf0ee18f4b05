package domain

import (
	"strings"
	"time"
)

const DefaultCategory = "ماكياج"

// Categories is the fixed set of catalog categories offered by the store.
var Categories = []string{
	"ماكياج",
	"عطور",
	"عناية بالبشرة",
	"عناية بالشعر",
	"إكسسوارات",
	"هدايا",
	"أظافر",
}

// NormalizeCategory maps an empty category to DefaultCategory and reports
// whether the value belongs to Categories.
func NormalizeCategory(raw string) (string, bool) {
	category := strings.TrimSpace(raw)
	if category == "" {
		return DefaultCategory, true
	}
	for _, known := range Categories {
		if category == known {
			return known, true
		}
	}
	return category, false
}

// IntakeCategory validates the category of a purchase line. An empty
// category stays empty: a merge keeps the product's category and a new
// product gets DefaultCategory.
func IntakeCategory(raw string) (string, bool) {
	if strings.TrimSpace(raw) == "" {
		return "", true
	}
	return NormalizeCategory(raw)
}

// ApplyIntake merges a purchase line into an existing catalog entry.
// Stock grows by the line quantity and price follows the latest invoice.
// Category and image are only replaced when the line carries one.
func ApplyIntake(product Product, line PurchaseLine, at time.Time) Product {
	product.Stock += line.Qty
	product.PriceCents = line.SalePriceCents
	if strings.TrimSpace(line.Category) != "" {
		product.Category = line.Category
	}
	if strings.TrimSpace(line.Image) != "" {
		product.Image = line.Image
	}
	product.UpdatedAt = at
	return product
}

func NewProductFromIntake(id string, line PurchaseLine, at time.Time) Product {
	category := strings.TrimSpace(line.Category)
	if category == "" {
		category = DefaultCategory
	}
	return Product{
		ID:         id,
		Name:       line.ProductName,
		Barcode:    line.Barcode,
		PriceCents: line.SalePriceCents,
		Stock:      line.Qty,
		Category:   category,
		Image:      line.Image,
		CreatedAt:  at,
		UpdatedAt:  at,
	}
}

func PurchaseTotalCost(lines []PurchaseLine) int64 {
	total := int64(0)
	for _, line := range lines {
		total += int64(line.Qty) * line.CostCents
	}
	return total
}

func SaleTotal(lines []SaleLine) int64 {
	total := int64(0)
	for _, line := range lines {
		total += int64(line.Qty) * line.UnitPriceCents
	}
	return total
}
