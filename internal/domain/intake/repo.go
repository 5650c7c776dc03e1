package intake

import "context"

// Store is the row table submissions are kept in. Row numbers are 1-based
// and row 1 is the header. Implementations live in platform/sheetstore.
type Store interface {
	Header(ctx context.Context) ([]string, error)
	WriteHeader(ctx context.Context, header []string) error
	Append(ctx context.Context, row []string) (int, error)
	Rows(ctx context.Context) ([][]string, error)
	Row(ctx context.Context, row int) ([]string, error)
	UpdateCell(ctx context.Context, row, col int, value string) error
	DeleteRow(ctx context.Context, row int) error
}

// Notifier is told about every stored submission.
type Notifier interface {
	Notify(ctx context.Context, n Notice) error
}

// Notice identifies a stored submission for the notification pipeline.
type Notice struct {
	SubmissionID string `json:"submissionId"`
	RowIndex     int    `json:"rowIndex"`
	PatientName  string `json:"patientName"`
}
