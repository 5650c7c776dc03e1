package intake

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/redmonddental/intake/internal/platform/hipaa"
	"github.com/redmonddental/intake/internal/platform/imaging"
	"github.com/redmonddental/intake/internal/platform/sheetstore"
	"github.com/redmonddental/intake/pkg/pagination"
)

var (
	ErrNotFound      = errors.New("submission not found")
	ErrInvalidRow    = errors.New("invalid submission reference")
	ErrInvalidStatus = errors.New("invalid status")
	ErrImageMissing  = errors.New("image not found")
)

var submissions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "intake",
	Name:      "submissions_total",
	Help:      "Form submissions by outcome.",
}, []string{"result"})

// Receipt is returned to the patient after a successful submission.
type Receipt struct {
	SubmissionID string `json:"submissionId"`
	RowIndex     int    `json:"rowIndex"`
}

// Submission is one stored row and its position.
type Submission struct {
	RowIndex int      `json:"rowIndex"`
	Cells    []string `json:"data"`
}

// Dashboard is the admin overview.
type Dashboard struct {
	Submissions []Summary `json:"submissions"`
	Stats       Stats     `json:"stats"`
	Total       int       `json:"total"`
	Limit       int       `json:"limit"`
	Offset      int       `json:"offset"`
}

type Service struct {
	store    Store
	notifier Notifier
	logger   zerolog.Logger
	now      func() time.Time
}

// NewService wires the submission workflow. notifier may be nil.
func NewService(store Store, notifier Notifier, logger zerolog.Logger) *Service {
	return &Service{
		store:    store,
		notifier: notifier,
		logger:   logger.With().Str("component", "intake").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetNotifier replaces the notifier. It is meant for wiring at startup,
// before requests are served.
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

// Submit validates, stores and announces a new registration. Only store
// errors fail the call; notification problems are logged.
func (s *Service) Submit(ctx context.Context, r *PatientRecord) (*Receipt, error) {
	if err := r.Validate(); err != nil {
		submissions.WithLabelValues("invalid").Inc()
		return nil, err
	}
	now := s.now()
	r.Normalize(now)
	if err := compressCards(&r.InsuranceInfo); err != nil {
		submissions.WithLabelValues("invalid").Inc()
		return nil, err
	}

	if _, err := s.InitSheet(ctx); err != nil {
		submissions.WithLabelValues("error").Inc()
		return nil, err
	}

	meta := Meta{Timestamp: now, Status: StatusNew, SubmissionID: uuid.New().String()}
	row, err := s.store.Append(ctx, ToRow(meta, r))
	if err != nil {
		submissions.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("append submission: %w", err)
	}
	submissions.WithLabelValues("stored").Inc()

	hipaa.Patient(s.logger.Info(), r.PatientInfo.PatientName).
		Str("submission_id", meta.SubmissionID).
		Int("row", row).
		Msg("submission stored")

	if s.notifier != nil {
		notice := Notice{SubmissionID: meta.SubmissionID, RowIndex: row, PatientName: r.PatientInfo.PatientName}
		if err := s.notifier.Notify(ctx, notice); err != nil {
			s.logger.Warn().Err(err).Str("submission_id", meta.SubmissionID).Msg("queue notification")
		}
	}
	return &Receipt{SubmissionID: meta.SubmissionID, RowIndex: row}, nil
}

// compressCards re-encodes card photos so rows stay within cell limits.
// Signatures are stored untouched.
func compressCards(ins *InsuranceInfo) error {
	for field, uri := range map[string]*string{
		"insuranceInfo.insuranceCardFront": &ins.InsuranceCardFront,
		"insuranceInfo.insuranceCardBack":  &ins.InsuranceCardBack,
	} {
		if *uri == "" {
			continue
		}
		res, err := imaging.CompressDataURI(*uri)
		if err != nil {
			return &ValidationError{Fields: map[string]string{field: "must be a decodable image"}}
		}
		*uri = res.DataURI
	}
	return nil
}

// InitSheet writes the header row when the table is empty. It reports
// whether it wrote anything.
func (s *Service) InitSheet(ctx context.Context) (bool, error) {
	header, err := s.store.Header(ctx)
	if err != nil {
		return false, fmt.Errorf("read header: %w", err)
	}
	if len(header) > 0 {
		return false, nil
	}
	if err := s.store.WriteHeader(ctx, Header()); err != nil {
		return false, fmt.Errorf("write header: %w", err)
	}
	s.logger.Info().Int("columns", ColumnCount).Msg("header row written")
	return true, nil
}

// List returns every row, header included.
func (s *Service) List(ctx context.Context) ([][]string, error) {
	rows, err := s.store.Rows(ctx)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	if rows == nil {
		rows = [][]string{}
	}
	return rows, nil
}

// Resolve turns a row number or submission UUID into a row number and its
// cells.
func (s *Service) Resolve(ctx context.Context, ref string) (int, []string, error) {
	ref = strings.TrimSpace(ref)
	if n, err := strconv.Atoi(ref); err == nil {
		if n <= sheetstore.HeaderRow {
			return 0, nil, fmt.Errorf("%w: row %d", ErrInvalidRow, n)
		}
		cells, err := s.store.Row(ctx, n)
		if err != nil {
			return 0, nil, storeErr(err, ref)
		}
		return n, cells, nil
	}

	if _, err := uuid.Parse(ref); err != nil {
		return 0, nil, fmt.Errorf("%w: %q", ErrInvalidRow, ref)
	}
	rows, err := s.store.Rows(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("read rows: %w", err)
	}
	for i := sheetstore.HeaderRow; i < len(rows); i++ {
		if len(rows[i]) > ColSubmissionID && rows[i][ColSubmissionID] == ref {
			return i + 1, rows[i], nil
		}
	}
	return 0, nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
}

func storeErr(err error, ref string) error {
	switch {
	case errors.Is(err, sheetstore.ErrRowNotFound):
		return fmt.Errorf("%w: %s", ErrNotFound, ref)
	case errors.Is(err, sheetstore.ErrInvalidRow):
		return fmt.Errorf("%w: %s", ErrInvalidRow, ref)
	}
	return err
}

func (s *Service) Get(ctx context.Context, ref string) (*Submission, error) {
	row, cells, err := s.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	return &Submission{RowIndex: row, Cells: cells}, nil
}

// View decodes a stored row. Rows written under another layout are refused.
func (s *Service) View(ctx context.Context, ref string) (int, View, error) {
	row, cells, err := s.Resolve(ctx, ref)
	if err != nil {
		return 0, View{}, err
	}
	if err := CheckVersion(cells); err != nil {
		return 0, View{}, err
	}
	return row, FromRow(cells), nil
}

// Update names the admin-editable cells of a submission. Nil fields are
// left alone.
type Update struct {
	Status *string
	Notes  *string
}

// Update writes the cells named in u and nothing else. The status value is
// checked and the row resolved before any write. Cells are written one at
// a time, so a store failure on the notes cell leaves an already written
// status in place.
func (s *Service) Update(ctx context.Context, ref string, u Update) (int, error) {
	if u.Status != nil && !validStatuses[*u.Status] {
		return 0, fmt.Errorf("%w: %q (want %s, %s or %s)", ErrInvalidStatus, *u.Status, StatusNew, StatusInProgress, StatusComplete)
	}
	row, _, err := s.Resolve(ctx, ref)
	if err != nil {
		return 0, err
	}
	if u.Status != nil {
		if err := s.store.UpdateCell(ctx, row, ColStatus, *u.Status); err != nil {
			return 0, storeErr(err, ref)
		}
		s.logger.Info().Int("row", row).Str("status", *u.Status).Msg("status updated")
	}
	if u.Notes != nil {
		if err := s.store.UpdateCell(ctx, row, ColNotes, *u.Notes); err != nil {
			return 0, storeErr(err, ref)
		}
		s.logger.Info().Int("row", row).Msg("notes updated")
	}
	return row, nil
}

// UpdateStatus writes only the status cell.
func (s *Service) UpdateStatus(ctx context.Context, ref, status string) (int, error) {
	return s.Update(ctx, ref, Update{Status: &status})
}

// UpdateNotes writes only the notes cell.
func (s *Service) UpdateNotes(ctx context.Context, ref, notes string) (int, error) {
	return s.Update(ctx, ref, Update{Notes: &notes})
}

// Delete removes a submission. Rows below it move up by one.
func (s *Service) Delete(ctx context.Context, ref string) (int, error) {
	row, _, err := s.Resolve(ctx, ref)
	if err != nil {
		return 0, err
	}
	if err := s.store.DeleteRow(ctx, row); err != nil {
		return 0, storeErr(err, ref)
	}
	s.logger.Info().Int("row", row).Msg("submission deleted")
	return row, nil
}

// RenderPDF builds the transcript and its download name.
func (s *Service) RenderPDF(ctx context.Context, ref string) (*Transcript, string, error) {
	row, v, err := s.View(ctx, ref)
	if err != nil {
		return nil, "", err
	}
	t, err := RenderTranscript(v)
	if err != nil {
		return nil, "", fmt.Errorf("render transcript: %w", err)
	}
	return t, PDFFilename(v.PatientName(), strconv.Itoa(row)), nil
}

// StoredImage is a decoded image cell.
type StoredImage struct {
	RowIndex int
	Mime     string
	Data     []byte
}

// Image decodes one stored image cell.
func (s *Service) Image(ctx context.Context, ref, key string) (*StoredImage, error) {
	row, v, err := s.View(ctx, ref)
	if err != nil {
		return nil, err
	}
	uri := v.Image(key)
	if uri == "" {
		return nil, fmt.Errorf("%w: %s", ErrImageMissing, key)
	}
	mime, data, err := imaging.ParseDataURI(uri)
	if err != nil {
		return nil, err
	}
	return &StoredImage{RowIndex: row, Mime: mime, Data: data}, nil
}

// Dashboard lists submissions newest first. Stats cover every row, not just
// the filtered page.
func (s *Service) Dashboard(ctx context.Context, f ListFilter) (*Dashboard, error) {
	rows, err := s.store.Rows(ctx)
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}

	var stats Stats
	matched := []Summary{}
	search := strings.ToLower(strings.TrimSpace(f.Search))
	for i := len(rows) - 1; i >= sheetstore.HeaderRow; i-- {
		sum := summarize(i+1, rows[i])
		stats.add(sum.Status)
		if f.Status != "" && !strings.EqualFold(sum.Status, f.Status) {
			continue
		}
		if search != "" && !sum.matches(search) {
			continue
		}
		matched = append(matched, sum)
	}

	page := pagination.Params{Limit: f.Limit, Offset: f.Offset}
	if page.Limit <= 0 {
		page.Limit = pagination.DefaultLimit
	}
	start, end := page.Window(len(matched))
	return &Dashboard{
		Submissions: matched[start:end],
		Stats:       stats,
		Total:       len(matched),
		Limit:       page.Limit,
		Offset:      page.Offset,
	}, nil
}

func summarize(row int, cells []string) Summary {
	v := FromRow(cells)
	status := v.Status()
	if status == "" {
		status = StatusNew
	}
	return Summary{
		RowIndex:     row,
		SubmissionID: v.Meta.SubmissionID,
		Timestamp:    v.Text(KeyTimestamp),
		PatientName:  v.PatientName(),
		Email:        v.Record.PatientInfo.Email,
		Phone:        v.Record.PatientInfo.PhoneCell,
		Status:       status,
	}
}

func (m Summary) matches(lowered string) bool {
	for _, f := range []string{m.PatientName, m.Email, m.Phone} {
		if strings.Contains(strings.ToLower(f), lowered) {
			return true
		}
	}
	return false
}

func (st *Stats) add(status string) {
	st.Total++
	switch {
	case strings.EqualFold(status, StatusNew):
		st.New++
	case strings.EqualFold(status, StatusInProgress):
		st.InProgress++
	case strings.EqualFold(status, StatusComplete):
		st.Complete++
	}
}
