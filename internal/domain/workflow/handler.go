package workflow

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"

	"github.com/drbfraser/CRADLE-Platform-sub001/internal/platform/auth"
	"github.com/drbfraser/CRADLE-Platform-sub001/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole("admin", "physician", "nurse", "chw"))
	read.GET("/workflow/templates", h.ListTemplates)
	read.GET("/workflow/templates/:id", h.GetTemplate)
	read.GET("/workflow/instances/:id", h.GetInstance)
	read.GET("/workflow/instances/:id/actions", h.AvailableActions)
	read.GET("/workflow/instances/:id/events", h.ListEvents)
	read.GET("/workflow/instances/:id/next-step", h.EvaluateCurrentStep)
	read.GET("/patients/:id/workflow/instances", h.ListInstancesByPatient)

	write := api.Group("", auth.RequireRole("admin", "physician", "nurse"))
	write.POST("/workflow/templates", h.CreateTemplate)
	write.DELETE("/workflow/templates/:id", h.ArchiveTemplate)
	write.POST("/workflow/instances", h.CreateInstance)
	write.POST("/workflow/instances/:id/actions", h.ApplyAction)
	write.POST("/workflow/instances/:id/cancel", h.CancelInstance)
}

func parseID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// -- Templates --

func (h *Handler) CreateTemplate(c echo.Context) error {
	var t Template
	if err := c.Bind(&t); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateTemplate(c.Request().Context(), &t); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, t)
}

func (h *Handler) GetTemplate(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	t, err := h.svc.GetTemplate(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "template not found")
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) ListTemplates(c echo.Context) error {
	pg := pagination.FromContext(c)
	includeArchived := c.QueryParam("archived") == "true"
	items, total, err := h.svc.ListTemplates(c.Request().Context(), includeArchived, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ArchiveTemplate(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.ArchiveTemplate(c.Request().Context(), id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return echo.NewHTTPError(http.StatusNotFound, "template not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Instances --

type createInstanceRequest struct {
	TemplateID  uuid.UUID `json:"workflow_template_id"`
	PatientID   uuid.UUID `json:"patient_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
}

func (h *Handler) CreateInstance(c echo.Context) error {
	var req createInstanceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	in, err := h.svc.CreateInstance(c.Request().Context(), req.TemplateID, req.PatientID, req.Name, req.Description)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return echo.NewHTTPError(http.StatusNotFound, "template not found")
		}
		if errors.Is(err, ErrTemplateArchived) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, in)
}

func (h *Handler) GetInstance(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	in, err := h.svc.GetInstance(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "instance not found")
	}
	return c.JSON(http.StatusOK, in)
}

func (h *Handler) ListInstancesByPatient(c echo.Context) error {
	patientID, err := parseID(c, "id")
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListInstancesByPatient(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) AvailableActions(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	actions, err := h.svc.AvailableActions(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "instance not found")
	}
	if actions == nil {
		actions = []Action{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"actions": actions})
}

type applyActionResponse struct {
	Instance *Instance `json:"instance"`
	Events   []Event   `json:"events"`
}

// invalidActionPayload is the 409 body for an action that is not currently
// legal; it carries the actions that were legal at decision time so the
// client can re-sync.
type invalidActionPayload struct {
	Message   string   `json:"message"`
	Attempted Action   `json:"attempted_action"`
	Available []Action `json:"available_actions"`
}

func (h *Handler) ApplyAction(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var action Action
	if err := c.Bind(&action); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	in, events, err := h.svc.ApplyAction(c.Request().Context(), id, action)
	if err != nil {
		var invalid *InvalidWorkflowActionError
		switch {
		case errors.Is(err, ErrOverrideNotSupported):
			return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
		case errors.As(err, &invalid):
			available := invalid.Available
			if available == nil {
				available = []Action{}
			}
			return c.JSON(http.StatusConflict, invalidActionPayload{
				Message:   invalid.Error(),
				Attempted: invalid.Attempted,
				Available: available,
			})
		case errors.Is(err, pgx.ErrNoRows):
			return echo.NewHTTPError(http.StatusNotFound, "instance not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, applyActionResponse{Instance: in, Events: events})
}

func (h *Handler) ListEvents(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	events, err := h.svc.InstanceEvents(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if events == nil {
		events = []Event{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"events": events})
}

func (h *Handler) EvaluateCurrentStep(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	res, err := h.svc.EvaluateCurrentStep(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return echo.NewHTTPError(http.StatusNotFound, "instance not found")
		}
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) CancelInstance(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	in, err := h.svc.CancelInstance(c.Request().Context(), id)
	if err != nil {
		var invalid *InvalidWorkflowActionError
		switch {
		case errors.As(err, &invalid):
			return echo.NewHTTPError(http.StatusConflict, "instance is already terminal")
		case errors.Is(err, pgx.ErrNoRows):
			return echo.NewHTTPError(http.StatusNotFound, "instance not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, in)
}
