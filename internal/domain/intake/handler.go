package intake

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/redmonddental/intake/internal/platform/imaging"
	"github.com/redmonddental/intake/pkg/pagination"
)

// maxUpload bounds a multipart image posted to compress-image.
const maxUpload = 10 << 20

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts patient-facing routes on public and staff routes on
// admin, which must already enforce a session.
func (h *Handler) RegisterRoutes(public, admin *echo.Group) {
	public.POST("/submit-form", h.Submit)
	public.POST("/compress-image", h.CompressImage)

	admin.GET("/submissions", h.ListSubmissions)
	admin.GET("/admin/dashboard", h.Dashboard)
	admin.GET("/submission/:rowIndex", h.GetSubmission)
	admin.PATCH("/submission/:rowIndex", h.UpdateSubmission)
	admin.DELETE("/submission/:rowIndex", h.DeleteSubmission)
	admin.GET("/submission/:rowIndex/pdf", h.DownloadPDF)
	admin.GET("/view-insurance-card", h.ViewInsuranceCard)
	admin.GET("/view-signature", h.ViewSignature)
	admin.POST("/init-sheet", h.InitSheet)
}

// httpError maps domain errors to status codes.
func httpError(err error) error {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrImageMissing):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidRow), errors.Is(err, ErrInvalidStatus),
		errors.Is(err, imaging.ErrMalformedDataURI), errors.Is(err, imaging.ErrUnsupportedImage):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrSchemaVersion):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

// bindError maps a c.Bind failure to a response. HTTP errors raised while
// reading the body, such as 413 from the body limit, pass through.
func bindError(err error, msg string) error {
	var he *echo.HTTPError
	if errors.As(err, &he) && he.Code != http.StatusBadRequest {
		return he
	}
	return echo.NewHTTPError(http.StatusBadRequest, msg)
}

func (h *Handler) Submit(c echo.Context) error {
	var rec PatientRecord
	if err := c.Bind(&rec); err != nil {
		return bindError(err, "invalid request body")
	}
	receipt, err := h.svc.Submit(c.Request().Context(), &rec)
	var ve *ValidationError
	if errors.As(err, &ve) {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"error":   "validation failed",
			"fields":  ve.Fields,
		})
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to submit form")
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"success":      true,
		"submissionId": receipt.SubmissionID,
		"rowIndex":     receipt.RowIndex,
	})
}

func (h *Handler) CompressImage(c echo.Context) error {
	var (
		res imaging.Result
		err error
	)
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		res, err = compressUpload(c)
	} else {
		var body struct {
			DataURL string `json:"dataUrl"`
		}
		if err := c.Bind(&body); err != nil {
			return bindError(err, "dataUrl or file is required")
		}
		if body.DataURL == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "dataUrl or file is required")
		}
		res, err = imaging.CompressDataURI(body.DataURL)
	}
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"dataUrl": res.DataURI,
		"width":   res.Width,
		"height":  res.Height,
		"quality": res.Quality,
		"length":  res.Length(),
	})
}

func compressUpload(c echo.Context) (imaging.Result, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return imaging.Result{}, echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	f, err := fh.Open()
	if err != nil {
		return imaging.Result{}, err
	}
	defer f.Close()

	raw, err := io.ReadAll(io.LimitReader(f, maxUpload+1))
	if err != nil {
		return imaging.Result{}, err
	}
	if len(raw) > maxUpload {
		return imaging.Result{}, echo.NewHTTPError(http.StatusRequestEntityTooLarge, "file too large")
	}
	return imaging.Compress(raw)
}

func (h *Handler) ListSubmissions(c echo.Context) error {
	rows, err := h.svc.List(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":     true,
		"submissions": rows,
	})
}

func (h *Handler) Dashboard(c echo.Context) error {
	p := pagination.FromContext(c)
	d, err := h.svc.Dashboard(c.Request().Context(), ListFilter{
		Status: c.QueryParam("status"),
		Search: c.QueryParam("search"),
		Limit:  p.Limit,
		Offset: p.Offset,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":     true,
		"submissions": d.Submissions,
		"stats":       d.Stats,
		"total":       d.Total,
		"limit":       d.Limit,
		"offset":      d.Offset,
		"hasMore":     d.Offset+d.Limit < d.Total,
	})
}

func (h *Handler) GetSubmission(c echo.Context) error {
	sub, err := h.svc.Get(c.Request().Context(), c.Param("rowIndex"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":  true,
		"rowIndex": sub.RowIndex,
		"data":     sub.Cells,
	})
}

type updateRequest struct {
	Status *string `json:"status"`
	Notes  *string `json:"notes"`
}

func (h *Handler) UpdateSubmission(c echo.Context) error {
	var req updateRequest
	if err := c.Bind(&req); err != nil {
		return bindError(err, "invalid request body")
	}
	if req.Status == nil && req.Notes == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "status or notes is required")
	}

	row, err := h.svc.Update(c.Request().Context(), c.Param("rowIndex"), Update{Status: req.Status, Notes: req.Notes})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":  true,
		"rowIndex": row,
	})
}

func (h *Handler) DeleteSubmission(c echo.Context) error {
	row, err := h.svc.Delete(c.Request().Context(), c.Param("rowIndex"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":  true,
		"rowIndex": row,
	})
}

func (h *Handler) DownloadPDF(c echo.Context) error {
	t, filename, err := h.svc.RenderPDF(c.Request().Context(), c.Param("rowIndex"))
	if err != nil {
		return httpError(err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.Blob(http.StatusOK, "application/pdf", t.PDF)
}

var cardKeys = map[string]string{
	"front": KeyCardFront,
	"back":  KeyCardBack,
}

var signatureKeys = map[string]string{
	"financial":  KeyFinancialSignature,
	"hipaa":      KeyHIPAASignature,
	"assignment": KeyAssignmentSignature,
}

func (h *Handler) ViewInsuranceCard(c echo.Context) error {
	side := c.QueryParam("side")
	key, ok := cardKeys[side]
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "side must be front or back")
	}
	return h.serveImage(c, key, func(row string) string {
		return fmt.Sprintf("insurance-%s-%s.jpg", side, row)
	})
}

func (h *Handler) ViewSignature(c echo.Context) error {
	kind := c.QueryParam("type")
	key, ok := signatureKeys[kind]
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "type must be financial, hipaa or assignment")
	}
	return h.serveImage(c, key, func(row string) string {
		return fmt.Sprintf("signature-%s-%s.png", kind, row)
	})
}

func (h *Handler) serveImage(c echo.Context, key string, filename func(row string) string) error {
	ref := c.QueryParam("row")
	if ref == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "row is required")
	}
	img, err := h.svc.Image(c.Request().Context(), ref, key)
	if err != nil {
		return httpError(err)
	}
	hdr := c.Response().Header()
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set(echo.HeaderContentDisposition, fmt.Sprintf("inline; filename=%q", filename(strconv.Itoa(img.RowIndex))))
	return c.Blob(http.StatusOK, img.Mime, img.Data)
}

func (h *Handler) InitSheet(c echo.Context) error {
	created, err := h.svc.InitSheet(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	msg := "header row already present"
	if created {
		msg = "header row written"
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"created": created,
		"message": msg,
	})
}
