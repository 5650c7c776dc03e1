package sheetstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

// fakeSheets serves the subset of the Sheets v4 REST API the store uses,
// backed by a Memory table.
type fakeSheets struct {
	t    *testing.T
	mem  *Memory
	name string
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	path := strings.TrimPrefix(r.URL.Path, "/v4/spreadsheets/")
	id, rest, _ := strings.Cut(path, "/")

	switch {
	case strings.HasSuffix(id, ":batchUpdate"):
		var req struct {
			Requests []struct {
				DeleteDimension struct {
					Range struct {
						StartIndex int `json:"startIndex"`
					} `json:"range"`
				} `json:"deleteDimension"`
			} `json:"requests"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		for _, q := range req.Requests {
			if err := f.mem.DeleteRow(ctx, q.DeleteDimension.Range.StartIndex+1); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		}
		writeJSON(w, map[string]any{"spreadsheetId": "sheet-1"})

	case rest == "":
		writeJSON(w, map[string]any{"sheets": []any{
			map[string]any{"properties": map[string]any{"sheetId": 0, "title": "Other"}},
			map[string]any{"properties": map[string]any{"sheetId": 42, "title": f.name}},
		}})

	case strings.HasSuffix(rest, ":append"):
		var body struct {
			Values [][]string `json:"values"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		n, _ := f.mem.Append(ctx, body.Values[0])
		writeJSON(w, map[string]any{"updates": map[string]any{
			"updatedRange": f.name + "!A" + itoa(n) + ":C" + itoa(n),
		}})

	case r.Method == http.MethodGet:
		rng := strings.TrimPrefix(rest, "values/")
		from := rowOf(f.t, rng)
		rows, _ := f.mem.Rows(ctx)
		var values [][]string
		if from == 0 {
			values = rows
		} else if from <= len(rows) {
			values = [][]string{rows[from-1]}
		}
		writeJSON(w, map[string]any{"range": rng, "values": values})

	case r.Method == http.MethodPut:
		rng := strings.TrimPrefix(rest, "values/")
		var body struct {
			Values [][]string `json:"values"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, cellRef, _ := strings.Cut(rng, "!")
		cellRef, _, _ = strings.Cut(cellRef, ":")
		col, row, err := excelize.CellNameToCoordinates(cellRef)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if row == HeaderRow {
			err = f.mem.WriteHeader(ctx, body.Values[0])
		} else {
			err = f.mem.UpdateCell(ctx, row, col-1, body.Values[0][0])
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, map[string]any{"updatedRange": rng})

	default:
		http.NotFound(w, r)
	}
}

func rowOf(t *testing.T, rng string) int {
	t.Helper()
	n, err := RowFromRange(rng)
	if err != nil {
		return 0
	}
	return n
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newFakeSheets(t *testing.T) *GoogleSheets {
	t.Helper()
	fake := &fakeSheets{t: t, mem: NewMemory(), name: "Submissions"}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	g, err := NewGoogleSheetsWithClient(context.Background(), SheetsConfig{
		SpreadsheetID: "sheet-1",
		SheetName:     "Submissions",
		Width:         3,
	}, srv.Client(), srv.URL+"/")
	if err != nil {
		t.Fatalf("NewGoogleSheetsWithClient: %v", err)
	}
	return g
}

func TestGoogleSheets(t *testing.T) {
	exerciseTable(t, newFakeSheets(t))
}

func TestGoogleSheets_ResolvesSheetIDOnce(t *testing.T) {
	g := newFakeSheets(t)
	id, err := g.sheetID(context.Background())
	if err != nil {
		t.Fatalf("sheetID: %v", err)
	}
	if id != 42 {
		t.Errorf("sheetID = %d, want 42", id)
	}
	if g.sheet == nil || *g.sheet != 42 {
		t.Error("sheet id not cached")
	}
}

func TestNewGoogleSheets_RequiresCredentials(t *testing.T) {
	_, err := NewGoogleSheets(context.Background(), SheetsConfig{SheetName: "Submissions", Width: 3})
	if err == nil {
		t.Fatal("expected error for missing credentials")
	}
}
