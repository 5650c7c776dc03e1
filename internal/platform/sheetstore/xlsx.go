package sheetstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"
)

const (
	overflowSheet  = "_overflow"
	overflowPrefix = "@overflow:"
	// overflowChunk stays below excelize.TotalCellChars.
	overflowChunk = 32000
)

// XLSX persists the table to a local workbook. Values longer than a single
// xlsx cell allows are spilled into a hidden sheet and referenced from the
// main cell, so image data URIs survive a round trip intact.
type XLSX struct {
	mu    sync.Mutex
	path  string
	sheet string
	f     *excelize.File
}

// OpenXLSX opens path or creates a new workbook there with the named sheet.
func OpenXLSX(path, sheet string) (*XLSX, error) {
	if sheet == "" {
		return nil, errors.New("sheet name is required")
	}
	var f *excelize.File
	if _, err := os.Stat(path); err == nil {
		f, err = excelize.OpenFile(path)
		if err != nil {
			return nil, fmt.Errorf("open workbook %s: %w", path, err)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		f = excelize.NewFile()
	} else {
		return nil, fmt.Errorf("stat workbook %s: %w", path, err)
	}

	x := &XLSX{path: path, sheet: sheet, f: f}
	idx, err := f.GetSheetIndex(sheet)
	if err != nil {
		return nil, fmt.Errorf("lookup sheet %s: %w", sheet, err)
	}
	if idx < 0 {
		if err := x.createSheet(); err != nil {
			return nil, err
		}
		if err := x.save(); err != nil {
			return nil, err
		}
	}
	return x, nil
}

func (x *XLSX) createSheet() error {
	if idx, _ := x.f.GetSheetIndex("Sheet1"); idx >= 0 && len(x.f.GetSheetList()) == 1 {
		if err := x.f.SetSheetName("Sheet1", x.sheet); err != nil {
			return fmt.Errorf("rename default sheet: %w", err)
		}
		return nil
	}
	if _, err := x.f.NewSheet(x.sheet); err != nil {
		return fmt.Errorf("create sheet %s: %w", x.sheet, err)
	}
	return nil
}

func (x *XLSX) save() error {
	if dir := filepath.Dir(x.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create workbook dir: %w", err)
		}
	}
	if err := x.f.SaveAs(x.path); err != nil {
		return fmt.Errorf("save workbook %s: %w", x.path, err)
	}
	return nil
}

func (x *XLSX) Header(_ context.Context) ([]string, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	rows, err := x.rows()
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

func (x *XLSX) WriteHeader(_ context.Context, header []string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.writeRow(HeaderRow, header); err != nil {
		return err
	}
	return x.save()
}

func (x *XLSX) Append(_ context.Context, row []string) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	rows, err := x.f.GetRows(x.sheet)
	if err != nil {
		return 0, fmt.Errorf("read rows: %w", err)
	}
	next := len(rows) + 1
	if err := x.writeRow(next, row); err != nil {
		return 0, err
	}
	if err := x.save(); err != nil {
		return 0, err
	}
	return next, nil
}

func (x *XLSX) Rows(_ context.Context) ([][]string, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.rows()
}

func (x *XLSX) Row(_ context.Context, row int) ([]string, error) {
	if err := checkRow(row); err != nil {
		return nil, err
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	rows, err := x.rows()
	if err != nil {
		return nil, err
	}
	if row > len(rows) {
		return nil, fmt.Errorf("%w: %d", ErrRowNotFound, row)
	}
	return rows[row-1], nil
}

func (x *XLSX) UpdateCell(_ context.Context, row, col int, value string) error {
	if err := checkDataRow(row); err != nil {
		return err
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	rows, err := x.f.GetRows(x.sheet)
	if err != nil {
		return fmt.Errorf("read rows: %w", err)
	}
	if row > len(rows) {
		return fmt.Errorf("%w: %d", ErrRowNotFound, row)
	}
	cell, err := excelize.CoordinatesToCellName(col+1, row)
	if err != nil {
		return fmt.Errorf("%w: %d", ErrInvalidColumn, col)
	}
	if col < len(rows[row-1]) {
		if err := x.releaseOverflow(rows[row-1][col]); err != nil {
			return err
		}
	}
	stored, err := x.spill(value)
	if err != nil {
		return err
	}
	if err := x.f.SetCellStr(x.sheet, cell, stored); err != nil {
		return fmt.Errorf("write %s: %w", cell, err)
	}
	return x.save()
}

func (x *XLSX) DeleteRow(_ context.Context, row int) error {
	if err := checkDataRow(row); err != nil {
		return err
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	rows, err := x.f.GetRows(x.sheet)
	if err != nil {
		return fmt.Errorf("read rows: %w", err)
	}
	if row > len(rows) {
		return fmt.Errorf("%w: %d", ErrRowNotFound, row)
	}
	for _, v := range rows[row-1] {
		if err := x.releaseOverflow(v); err != nil {
			return err
		}
	}
	if err := x.f.RemoveRow(x.sheet, row); err != nil {
		return fmt.Errorf("remove row %d: %w", row, err)
	}
	return x.save()
}

func (x *XLSX) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.f.Close()
}

func (x *XLSX) rows() ([][]string, error) {
	rows, err := x.f.GetRows(x.sheet)
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	var overflow [][]string
	for i, r := range rows {
		for j, v := range r {
			if !strings.HasPrefix(v, overflowPrefix) {
				continue
			}
			if overflow == nil {
				if overflow, err = x.f.GetRows(overflowSheet); err != nil {
					return nil, fmt.Errorf("read overflow: %w", err)
				}
			}
			full, err := resolveOverflow(overflow, v)
			if err != nil {
				return nil, fmt.Errorf("row %d col %d: %w", i+1, j, err)
			}
			r[j] = full
		}
		rows[i] = trimRow(r)
	}
	return rows, nil
}

func (x *XLSX) writeRow(row int, cells []string) error {
	values := make([]interface{}, len(cells))
	for i, c := range cells {
		stored, err := x.spill(c)
		if err != nil {
			return err
		}
		values[i] = stored
	}
	start, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("%w: %d", ErrInvalidRow, row)
	}
	if err := x.f.SetSheetRow(x.sheet, start, &values); err != nil {
		return fmt.Errorf("write row %d: %w", row, err)
	}
	return nil
}

// spill returns the value to store in the main cell, moving long values
// (or values that look like a reference) into the overflow sheet.
func (x *XLSX) spill(value string) (string, error) {
	if len(value) <= overflowChunk && !strings.HasPrefix(value, overflowPrefix) {
		return value, nil
	}
	if err := x.ensureOverflowSheet(); err != nil {
		return "", err
	}
	used, err := x.f.GetRows(overflowSheet)
	if err != nil {
		return "", fmt.Errorf("read overflow: %w", err)
	}
	slot := len(used) + 1
	for i, r := range used {
		if len(r) == 0 {
			slot = i + 1
			break
		}
	}

	chunks := make([]interface{}, 0, len(value)/overflowChunk+1)
	for len(value) > overflowChunk {
		chunks = append(chunks, value[:overflowChunk])
		value = value[overflowChunk:]
	}
	chunks = append(chunks, value)
	start, _ := excelize.CoordinatesToCellName(1, slot)
	if err := x.f.SetSheetRow(overflowSheet, start, &chunks); err != nil {
		return "", fmt.Errorf("write overflow: %w", err)
	}
	return overflowPrefix + strconv.Itoa(slot), nil
}

func resolveOverflow(used [][]string, ref string) (string, error) {
	slot, err := strconv.Atoi(strings.TrimPrefix(ref, overflowPrefix))
	if err != nil || slot < 1 {
		return "", fmt.Errorf("bad overflow reference %q", ref)
	}
	if slot > len(used) {
		return "", fmt.Errorf("overflow slot %d missing", slot)
	}
	return strings.Join(used[slot-1], ""), nil
}

func (x *XLSX) releaseOverflow(stored string) error {
	if !strings.HasPrefix(stored, overflowPrefix) {
		return nil
	}
	slot, err := strconv.Atoi(strings.TrimPrefix(stored, overflowPrefix))
	if err != nil || slot < 1 {
		return nil
	}
	used, err := x.f.GetRows(overflowSheet)
	if err != nil {
		return fmt.Errorf("read overflow: %w", err)
	}
	if slot > len(used) {
		return nil
	}
	for col := range used[slot-1] {
		cell, _ := excelize.CoordinatesToCellName(col+1, slot)
		if err := x.f.SetCellStr(overflowSheet, cell, ""); err != nil {
			return fmt.Errorf("clear overflow: %w", err)
		}
	}
	return nil
}

func (x *XLSX) ensureOverflowSheet() error {
	idx, err := x.f.GetSheetIndex(overflowSheet)
	if err != nil {
		return fmt.Errorf("lookup overflow sheet: %w", err)
	}
	if idx >= 0 {
		return nil
	}
	if _, err := x.f.NewSheet(overflowSheet); err != nil {
		return fmt.Errorf("create overflow sheet: %w", err)
	}
	if err := x.f.SetSheetVisible(overflowSheet, false); err != nil {
		return fmt.Errorf("hide overflow sheet: %w", err)
	}
	return nil
}
