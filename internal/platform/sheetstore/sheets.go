package sheetstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// SheetsConfig identifies the spreadsheet and the service account used to
// reach it.
type SheetsConfig struct {
	ClientEmail   string
	PrivateKey    string
	SpreadsheetID string
	SheetName     string
	// Width is the number of columns read and written per row.
	Width int
}

// GoogleSheets stores rows in a Google spreadsheet through the Sheets v4 API.
type GoogleSheets struct {
	svc   *sheets.Service
	cfg   SheetsConfig
	mu    sync.Mutex
	sheet *int64
}

// NewGoogleSheets authenticates with a service-account key.
func NewGoogleSheets(ctx context.Context, cfg SheetsConfig) (*GoogleSheets, error) {
	if cfg.ClientEmail == "" || cfg.PrivateKey == "" || cfg.SpreadsheetID == "" {
		return nil, errors.New("google sheets credentials are incomplete")
	}
	conf := &jwt.Config{
		Email:      cfg.ClientEmail,
		PrivateKey: []byte(cfg.PrivateKey),
		Scopes:     []string{sheets.SpreadsheetsScope},
		TokenURL:   google.JWTTokenURL,
	}
	return NewGoogleSheetsWithClient(ctx, cfg, conf.Client(ctx), "")
}

// NewGoogleSheetsWithClient uses a pre-built HTTP client. A non-empty
// endpoint overrides the API base URL.
func NewGoogleSheetsWithClient(ctx context.Context, cfg SheetsConfig, client *http.Client, endpoint string) (*GoogleSheets, error) {
	if cfg.SheetName == "" {
		return nil, errors.New("sheet name is required")
	}
	if cfg.Width <= 0 {
		return nil, errors.New("sheet width must be positive")
	}
	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &GoogleSheets{svc: svc, cfg: cfg}, nil
}

func (g *GoogleSheets) Header(ctx context.Context) ([]string, error) {
	rng, err := A1Range(g.cfg.SheetName, g.cfg.Width, HeaderRow, HeaderRow)
	if err != nil {
		return nil, err
	}
	vr, err := g.svc.Spreadsheets.Values.Get(g.cfg.SpreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(vr.Values) == 0 {
		return nil, nil
	}
	return toStrings(vr.Values[0]), nil
}

func (g *GoogleSheets) WriteHeader(ctx context.Context, header []string) error {
	rng, err := A1Range(g.cfg.SheetName, len(header), HeaderRow, HeaderRow)
	if err != nil {
		return err
	}
	vr := &sheets.ValueRange{Values: [][]interface{}{toValues(header)}}
	if _, err := g.svc.Spreadsheets.Values.Update(g.cfg.SpreadsheetID, rng, vr).
		ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return nil
}

func (g *GoogleSheets) Append(ctx context.Context, row []string) (int, error) {
	rng, err := A1Range(g.cfg.SheetName, g.cfg.Width, 0, 0)
	if err != nil {
		return 0, err
	}
	vr := &sheets.ValueRange{Values: [][]interface{}{toValues(row)}}
	resp, err := g.svc.Spreadsheets.Values.Append(g.cfg.SpreadsheetID, rng, vr).
		ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("append row: %w", err)
	}
	if resp.Updates == nil {
		return 0, errors.New("append row: response has no update range")
	}
	return RowFromRange(resp.Updates.UpdatedRange)
}

func (g *GoogleSheets) Rows(ctx context.Context) ([][]string, error) {
	rng, err := A1Range(g.cfg.SheetName, g.cfg.Width, 0, 0)
	if err != nil {
		return nil, err
	}
	vr, err := g.svc.Spreadsheets.Values.Get(g.cfg.SpreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	out := make([][]string, len(vr.Values))
	for i, r := range vr.Values {
		out[i] = toStrings(r)
	}
	return out, nil
}

func (g *GoogleSheets) Row(ctx context.Context, row int) ([]string, error) {
	if err := checkRow(row); err != nil {
		return nil, err
	}
	rng, err := A1Range(g.cfg.SheetName, g.cfg.Width, row, row)
	if err != nil {
		return nil, err
	}
	vr, err := g.svc.Spreadsheets.Values.Get(g.cfg.SpreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read row %d: %w", row, err)
	}
	if len(vr.Values) == 0 || len(vr.Values[0]) == 0 {
		return nil, fmt.Errorf("%w: %d", ErrRowNotFound, row)
	}
	return toStrings(vr.Values[0]), nil
}

func (g *GoogleSheets) UpdateCell(ctx context.Context, row, col int, value string) error {
	if err := checkDataRow(row); err != nil {
		return err
	}
	cell, err := A1Cell(g.cfg.SheetName, row, col)
	if err != nil {
		return err
	}
	vr := &sheets.ValueRange{Values: [][]interface{}{{value}}}
	if _, err := g.svc.Spreadsheets.Values.Update(g.cfg.SpreadsheetID, cell, vr).
		ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return fmt.Errorf("update %s: %w", cell, err)
	}
	return nil
}

func (g *GoogleSheets) DeleteRow(ctx context.Context, row int) error {
	if err := checkDataRow(row); err != nil {
		return err
	}
	sheetID, err := g.sheetID(ctx)
	if err != nil {
		return err
	}
	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			DeleteDimension: &sheets.DeleteDimensionRequest{
				Range: &sheets.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "ROWS",
					StartIndex: int64(row - 1),
					EndIndex:   int64(row),
				},
			},
		}},
	}
	if _, err := g.svc.Spreadsheets.BatchUpdate(g.cfg.SpreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete row %d: %w", row, err)
	}
	return nil
}

func (g *GoogleSheets) Close() error { return nil }

// sheetID resolves the numeric id of the configured tab once.
func (g *GoogleSheets) sheetID(ctx context.Context) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sheet != nil {
		return *g.sheet, nil
	}
	ss, err := g.svc.Spreadsheets.Get(g.cfg.SpreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("read spreadsheet metadata: %w", err)
	}
	for _, s := range ss.Sheets {
		if s.Properties != nil && s.Properties.Title == g.cfg.SheetName {
			id := s.Properties.SheetId
			g.sheet = &id
			return id, nil
		}
	}
	return 0, fmt.Errorf("sheet %q not found in spreadsheet", g.cfg.SheetName)
}

func toValues(row []string) []interface{} {
	out := make([]interface{}, len(row))
	for i, v := range row {
		out[i] = v
	}
	return out
}

func toStrings(row []interface{}) []string {
	out := make([]string, len(row))
	for i, v := range row {
		if s, ok := v.(string); ok {
			out[i] = s
		} else if v != nil {
			out[i] = fmt.Sprint(v)
		}
	}
	return out
}
