package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ThiagoRGoveia/stocks-dossier/internal/models"
	"github.com/shopspring/decimal"
)

const utf8BOM = "\ufeff"

// RowParser decides which rows of a feed file are loadable and turns them into records.
type RowParser interface {
	Kind() models.RecordKind
	Header() []string
	IsHeaderRow(row []string) bool
	Eligible(row []string) bool
	Parse(row []string) (models.Record, error)
}

// ValidateFirstRow checks the first row of a file against the expected header. Only that row is
// inspected: columns must match positionally and in number. Trailing empty columns are ignored
// because NSE files terminate every line with a comma.
func ValidateFirstRow(row []string, expected []string) bool {
	row = normalizeRow(row)
	if len(row) != len(expected) {
		return false
	}
	for index, column := range row {
		if column != expected[index] {
			return false
		}
	}
	return true
}

func normalizeRow(row []string) []string {
	cleaned := make([]string, len(row))
	for i, column := range row {
		if i == 0 {
			column = strings.TrimPrefix(column, utf8BOM)
		}
		cleaned[i] = strings.TrimSpace(column)
	}
	for len(cleaned) > 0 && cleaned[len(cleaned)-1] == "" {
		cleaned = cleaned[:len(cleaned)-1]
	}
	return cleaned
}

// field returns the trimmed value at index, or "" when the row is too short.
func field(row []string, index int) string {
	if index >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[index])
}

// hasRequiredFields reports whether every required field is present and non-empty.
func hasRequiredFields(row []string, required map[int]string) bool {
	for index := range required {
		if field(row, index) == "" {
			return false
		}
	}
	return true
}

func parseDecimal(row []string, index int, name string) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(field(row, index))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid %s %q: %w", name, field(row, index), err)
	}
	return value, nil
}

func parseInt(row []string, index int, name string) (int64, error) {
	value, err := strconv.ParseInt(field(row, index), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, field(row, index), err)
	}
	return value, nil
}
