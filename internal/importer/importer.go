package importer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"eclatpos/backend/internal/domain"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format, expected .xlsx or .csv")
	ErrMissingColumns    = errors.New("missing required columns")
	ErrEmptyFile         = errors.New("file has no rows")
)

const (
	colName = iota
	colBarcode
	colQty
	colCost
	colSalePrice
	colCategory
	colImage
)

// headerAliases are compared after foldHeader, so accents, case, spaces
// and punctuation do not matter.
var headerAliases = map[int][]string{
	colName:      {"اسمالمنتج", "المنتج", "الاسم", "nomduproduit", "produit", "nom", "designation", "name"},
	colBarcode:   {"الباركود", "باركود", "الرمز", "codebarres", "codebarre", "ean", "barcode"},
	colQty:       {"الكمية", "quantite", "qte", "qty"},
	colCost:      {"ثمنالشراء", "سعرالشراء", "prixdachat", "cout", "cost"},
	colSalePrice: {"ثمنالبيع", "سعرالبيع", "prixdevente", "prix", "price"},
	colCategory:  {"الفئة", "الصنف", "categorie", "category"},
	colImage:     {"الصورة", "image"},
}

// Image is the only optional column.
var requiredColumns = []int{colName, colBarcode, colQty, colCost, colSalePrice, colCategory}

var columnLabels = map[int]string{
	colName:      "name",
	colBarcode:   "barcode",
	colQty:       "qty",
	colCost:      "cost",
	colSalePrice: "sale price",
	colCategory:  "category",
	colImage:     "image",
}

func columnFor(header string) (int, bool) {
	folded := foldHeader(header)
	for col, aliases := range headerAliases {
		for _, alias := range aliases {
			if folded == alias {
				return col, true
			}
		}
	}
	return 0, false
}

// Result is the parsed purchase lines plus the number of rows dropped
// because they had no product name.
type Result struct {
	Lines   []domain.PurchaseLine
	Dropped int
}

// Parse reads a spreadsheet of purchase lines. The format is picked from
// the filename extension.
func Parse(r io.Reader, filename string) (Result, error) {
	var rows [][]string
	var err error
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx":
		rows, err = readXLSX(r)
	case ".csv":
		rows, err = readCSV(r)
	default:
		return Result{}, ErrUnsupportedFormat
	}
	if err != nil {
		return Result{}, err
	}
	return parseRows(rows)
}

func readXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyFile
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return rows, nil
}

func readCSV(r io.Reader) ([][]string, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))

	reader := csv.NewReader(bytes.NewReader(raw))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	firstLine, _, _ := bytes.Cut(raw, []byte("\n"))
	if bytes.Count(firstLine, []byte(";")) > bytes.Count(firstLine, []byte(",")) {
		reader.Comma = ';'
	}

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return rows, nil
}

func parseRows(rows [][]string) (Result, error) {
	headerAt := -1
	for i, row := range rows {
		if !isBlank(row) {
			headerAt = i
			break
		}
	}
	if headerAt < 0 {
		return Result{}, ErrEmptyFile
	}

	columns := map[int]int{}
	for i, cell := range rows[headerAt] {
		if col, ok := columnFor(cell); ok {
			if _, seen := columns[col]; !seen {
				columns[col] = i
			}
		}
	}
	var missing []string
	for _, col := range requiredColumns {
		if _, ok := columns[col]; !ok {
			missing = append(missing, columnLabels[col])
		}
	}
	if len(missing) > 0 {
		return Result{}, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	result := Result{Lines: make([]domain.PurchaseLine, 0, len(rows)-headerAt-1)}
	for _, row := range rows[headerAt+1:] {
		if isBlank(row) {
			continue
		}
		cell := func(col int) string {
			idx, ok := columns[col]
			if !ok || idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}

		name := cell(colName)
		if name == "" {
			result.Dropped++
			continue
		}
		result.Lines = append(result.Lines, domain.PurchaseLine{
			ProductName:    name,
			Barcode:        cell(colBarcode),
			Qty:            parseQty(cell(colQty)),
			CostCents:      toCents(parseNumber(cell(colCost))),
			SalePriceCents: toCents(parseNumber(cell(colSalePrice))),
			Category:       cell(colCategory),
			Image:          cell(colImage),
		})
	}
	return result, nil
}

// parseNumber accepts "12,50", "12.50 DH" or "1 200"; anything else is zero.
func parseNumber(raw string) decimal.Decimal {
	s := strings.TrimSpace(raw)
	for _, suffix := range []string{"درهم", "DH", "dh", "Dh", "MAD", "mad"} {
		s = strings.TrimSuffix(strings.TrimSpace(s), suffix)
	}
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	s = strings.ReplaceAll(s, ",", ".")
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// maxQty bounds a single line. Larger, fractional or unreadable
// quantities parse as 0 so the row is dropped.
const maxQty = 1_000_000

func parseQty(raw string) int {
	d := parseNumber(raw)
	if !d.IsInteger() || d.Sign() <= 0 || d.GreaterThan(decimal.NewFromInt(maxQty)) {
		return 0
	}
	return int(d.IntPart())
}

func toCents(d decimal.Decimal) int64 {
	return d.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func foldHeader(raw string) string {
	stripMarks := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(stripMarks, raw)
	if err != nil {
		folded = raw
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return -1
	}, folded)
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
