package internment

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/hospital/internment/internal/platform/auth"
	"github.com/hospital/internment/pkg/dates"
	"github.com/hospital/internment/pkg/pagination"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Read endpoints – admin, physician, nurse, auditor
	readGroup := api.Group("", auth.RequireRole("admin", "physician", "nurse", "auditor"))
	readGroup.GET("/internments", h.ListInternments)
	readGroup.GET("/internments/review", h.GetReviewBoard)
	readGroup.GET("/internments/review/stats", h.GetReviewStats)
	readGroup.GET("/internments/review/export.xlsx", h.ExportReviewBoard)
	readGroup.GET("/internments/by-cpf/:cpf", h.ListByCPF)
	readGroup.GET("/internments/:id", h.GetInternment)
	readGroup.GET("/internments/:id/history", h.GetHistory)
	readGroup.GET("/internments/:id/waits", h.GetWaits)

	// Bed audits and notes – auditors record these during their rounds
	auditGroup := api.Group("", auth.RequireRole("admin", "physician", "nurse", "auditor"))
	auditGroup.POST("/internments/:id/annotations", h.Annotate)
	auditGroup.POST("/internments/:id/bed-audits", h.AddBedAudit)
	auditGroup.PUT("/internments/:id/bed-audits/:auditID", h.UpdateBedAudit)
	auditGroup.DELETE("/internments/:id/bed-audits/:auditID", h.DeleteBedAudit)

	// Record writes – admin, physician, nurse
	writeGroup := api.Group("", auth.RequireRole("admin", "physician", "nurse"))
	writeGroup.POST("/internments", h.Admit)
	writeGroup.PUT("/internments/:id", h.Save)
	writeGroup.POST("/internments/:id/discharge", h.Discharge)
}

// SaveResponse pairs the stored record with the history entries the save
// appended.
type SaveResponse struct {
	Patient *Patient       `json:"patient"`
	Entries []HistoryEntry `json:"entries"`
}

func (h *Handler) Admit(c echo.Context) error {
	author, err := requireAuthor(c)
	if err != nil {
		return err
	}
	var p Patient
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.Admit(c.Request().Context(), &p, author); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetInternment(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	p, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListInternments(c echo.Context) error {
	pg := pagination.FromContext(c)
	params := map[string]string{}
	for _, k := range []string{"cpf", "criticality", "hospital", "active"} {
		if v := c.QueryParam(k); v != "" {
			params[k] = v
		}
	}
	patients, total, err := h.svc.Search(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	pagination.SetLinkHeader(c, pg, total)
	return c.JSON(http.StatusOK, pagination.NewResponse(patients, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListByCPF(c echo.Context) error {
	patients, err := h.svc.ListByCPF(c.Request().Context(), c.Param("cpf"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, patients)
}

func (h *Handler) Save(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	author, err := requireAuthor(c)
	if err != nil {
		return err
	}
	var p Patient
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	saved, entries, err := h.svc.Save(c.Request().Context(), id, &p, author)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, SaveResponse{Patient: saved, Entries: entries})
}

func (h *Handler) Discharge(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	author, err := requireAuthor(c)
	if err != nil {
		return err
	}
	var body struct {
		Date   string `json:"date"`
		Reason string `json:"reason"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if body.Date == "" {
		body.Date = dates.Format(h.svc.Today())
	}
	saved, entries, err := h.svc.Discharge(c.Request().Context(), id, body.Date, body.Reason, author)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, SaveResponse{Patient: saved, Entries: entries})
}

func (h *Handler) Annotate(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	author, err := requireAuthor(c)
	if err != nil {
		return err
	}
	var body struct {
		Text string `json:"text"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	entry, err := h.svc.Annotate(c.Request().Context(), id, author, body.Text)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, entry)
}

func (h *Handler) GetHistory(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	entries, err := h.svc.History(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, entries)
}

func (h *Handler) GetWaits(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	waits, err := h.svc.Waits(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, waits)
}

func (h *Handler) AddBedAudit(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	author, err := requireAuthor(c)
	if err != nil {
		return err
	}
	var audit BedAudit
	if err := c.Bind(&audit); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	saved, entries, err := h.svc.AddBedAudit(c.Request().Context(), id, audit, author)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, SaveResponse{Patient: saved, Entries: entries})
}

func (h *Handler) UpdateBedAudit(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	auditID, err := parseID(c, "auditID")
	if err != nil {
		return err
	}
	author, err := requireAuthor(c)
	if err != nil {
		return err
	}
	var body struct {
		BedType BedType `json:"bed_type"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	saved, entries, err := h.svc.UpdateBedAudit(c.Request().Context(), id, auditID, body.BedType, author)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, SaveResponse{Patient: saved, Entries: entries})
}

func (h *Handler) DeleteBedAudit(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	auditID, err := parseID(c, "auditID")
	if err != nil {
		return err
	}
	author, err := requireAuthor(c)
	if err != nil {
		return err
	}
	saved, entries, err := h.svc.DeleteBedAudit(c.Request().Context(), id, auditID, author)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, SaveResponse{Patient: saved, Entries: entries})
}

func (h *Handler) GetReviewBoard(c echo.Context) error {
	items, err := h.svc.ReviewBoard(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

// GetReviewStats returns the rollup for today, or for ?date=YYYY-MM-DD.
func (h *Handler) GetReviewStats(c echo.Context) error {
	ctx := c.Request().Context()
	if d := c.QueryParam("date"); d != "" {
		day, err := dates.Parse(d)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid date")
		}
		stats, err := h.svc.ReviewStatsAt(ctx, day)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusOK, stats)
	}
	stats, err := h.svc.ReviewStats(ctx)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, stats)
}

func (h *Handler) ExportReviewBoard(c echo.Context) error {
	ctx := c.Request().Context()
	items, err := h.svc.ReviewBoard(ctx)
	if err != nil {
		return httpError(err)
	}
	stats, err := h.svc.ReviewStats(ctx)
	if err != nil {
		return httpError(err)
	}
	data, err := ExportReviewBoard(items, stats)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	filename := fmt.Sprintf("auditoria-%s.xlsx", stats.Date)
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.Blob(http.StatusOK, xlsxContentType, data)
}

func parseID(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

func requireAuthor(c echo.Context) (string, error) {
	author := auth.UserIDFromContext(c.Request().Context())
	if author == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing user identity")
	}
	return author, nil
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrDuplicateAuditDate):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrValidation), errors.Is(err, ErrUnknownCriticality), errors.Is(err, dates.ErrInvalidDate):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
