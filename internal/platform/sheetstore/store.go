// Package sheetstore keeps intake submissions as rows of a single table.
// Row 1 is the header; row numbers are 1-based like a spreadsheet and shift
// down by one after a delete.
package sheetstore

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

var (
	ErrRowNotFound   = errors.New("row not found")
	ErrInvalidRow    = errors.New("invalid row index")
	ErrInvalidColumn = errors.New("invalid column index")
)

// HeaderRow is the row number holding column labels.
const HeaderRow = 1

// ColumnName converts a 0-based column index to spreadsheet letters.
func ColumnName(col int) (string, error) {
	if col < 0 {
		return "", fmt.Errorf("%w: %d", ErrInvalidColumn, col)
	}
	return excelize.ColumnNumberToName(col + 1)
}

// A1Range returns "Sheet!A<from>:<last><to>" for width columns.
func A1Range(sheet string, width, from, to int) (string, error) {
	last, err := ColumnName(width - 1)
	if err != nil {
		return "", err
	}
	if from <= 0 && to <= 0 {
		return fmt.Sprintf("%s!A:%s", quoteSheet(sheet), last), nil
	}
	return fmt.Sprintf("%s!A%d:%s%d", quoteSheet(sheet), from, last, to), nil
}

// A1Cell returns "Sheet!<col><row>".
func A1Cell(sheet string, row, col int) (string, error) {
	name, err := ColumnName(col)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s!%s%d", quoteSheet(sheet), name, row), nil
}

func quoteSheet(name string) string {
	if strings.ContainsAny(name, " '!") {
		return "'" + strings.ReplaceAll(name, "'", "''") + "'"
	}
	return name
}

// RowFromRange extracts the first row number from an A1 range such as
// "Submissions!A5:CR5".
func RowFromRange(rng string) (int, error) {
	if i := strings.LastIndexByte(rng, '!'); i >= 0 {
		rng = rng[i+1:]
	}
	if i := strings.IndexByte(rng, ':'); i >= 0 {
		rng = rng[:i]
	}
	digits := strings.TrimLeftFunc(rng, func(r rune) bool {
		return (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || r == '$'
	})
	n, err := strconv.Atoi(digits)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("parse row from range %q", rng)
	}
	return n, nil
}

func checkDataRow(row int) error {
	if row <= HeaderRow {
		return fmt.Errorf("%w: %d (row %d is the header)", ErrInvalidRow, row, HeaderRow)
	}
	return nil
}

func checkRow(row int) error {
	if row < HeaderRow {
		return fmt.Errorf("%w: %d", ErrInvalidRow, row)
	}
	return nil
}

func cloneRow(r []string) []string {
	out := make([]string, len(r))
	copy(out, r)
	return out
}

// trimRow drops trailing empty cells, matching what spreadsheet reads return.
func trimRow(r []string) []string {
	n := len(r)
	for n > 0 && r[n-1] == "" {
		n--
	}
	return r[:n]
}
