package registration

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/intake/intake/internal/platform/places"
)

type Handler struct {
	mgr    *Manager
	logger zerolog.Logger
}

func NewHandler(mgr *Manager, logger zerolog.Logger) *Handler {
	return &Handler{mgr: mgr, logger: logger}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/steps", h.ListSteps)
	g.POST("", h.Create)
	g.GET("/:id", h.Get)
	g.DELETE("/:id", h.Delete)
	g.PATCH("/:id/fields", h.SetFields)
	g.POST("/:id/next", h.Next)
	g.POST("/:id/prev", h.Prev)
	g.POST("/:id/goto", h.Goto)
	g.GET("/:id/facilities", h.Facilities)
	g.GET("/:id/insurances", h.Insurances)
	g.POST("/:id/id-card", h.UploadID)
	g.POST("/:id/address/:target/suggest", h.SuggestAddress)
	g.POST("/:id/address/:target/select", h.SelectAddress)
	g.POST("/:id/address/:target/blur", h.BlurAddress)
	g.DELETE("/:id/toast", h.DismissToast)
	g.GET("/:id/payload", h.Payload)
	g.POST("/:id/submit", h.Submit)
}

// failureResponse carries the wizard's state alongside the error so clients
// can render the invalid fields and any toast.
type failureResponse struct {
	Error  string    `json:"error"`
	Fields []FieldID `json:"fields,omitempty"`
	View   *View     `json:"view,omitempty"`
}

type dataResponse struct {
	Data any `json:"data"`
}

func (h *Handler) wizard(c echo.Context) (*Wizard, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid session id")
	}
	w, err := h.mgr.Get(id)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusNotFound, "registration session not found")
	}
	return w, nil
}

func addressTarget(c echo.Context) (AddressTarget, error) {
	t, err := ParseAddressTarget(c.Param("target"))
	if err != nil {
		return "", echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return t, nil
}

// fail maps a wizard error to a response. Errors that leave something for
// the patient to see carry the current view.
func (h *Handler) fail(c echo.Context, w *Wizard, err error) error {
	if errors.Is(c.Request().Context().Err(), context.DeadlineExceeded) {
		return echo.NewHTTPError(http.StatusGatewayTimeout, "request processing exceeded the allowed time limit")
	}
	var verr *ValidationError
	var ferr *FieldError
	switch {
	case errors.As(err, &verr):
		v := w.View()
		return c.JSON(http.StatusUnprocessableEntity, failureResponse{Error: err.Error(), Fields: verr.Fields, View: &v})
	case errors.Is(err, ErrExtractionFailed), errors.Is(err, ErrSubmissionFailed):
		v := w.View()
		return c.JSON(http.StatusBadGateway, failureResponse{Error: err.Error(), View: &v})
	case errors.As(err, &ferr):
		v := w.View()
		return c.JSON(http.StatusBadRequest, failureResponse{Error: err.Error(), View: &v})
	case errors.Is(err, ErrSessionClosed):
		return echo.NewHTTPError(http.StatusGone, err.Error())
	case errors.Is(err, ErrStepOutOfRange), errors.Is(err, ErrUnknownAddressTarget):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrStepLocked), errors.Is(err, ErrNoNextStep), errors.Is(err, ErrNotFinalStep),
		errors.Is(err, ErrAlreadySubmitted), errors.Is(err, ErrSubmissionInProgress),
		errors.Is(err, ErrExtractionInProgress):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, places.ErrNotConfigured):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	h.logger.Error().Err(err).Str("session_id", w.ID().String()).Msg("registration request failed")
	return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
}

func (h *Handler) ListSteps(c echo.Context) error {
	return c.JSON(http.StatusOK, dataResponse{Data: Steps})
}

func (h *Handler) Create(c echo.Context) error {
	w := h.mgr.Create()
	return c.JSON(http.StatusCreated, w.View())
}

func (h *Handler) Get(c echo.Context) error {
	w, err := h.wizard(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, w.View())
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid session id")
	}
	if err := h.mgr.Close(c.Request().Context(), id); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "registration session not found")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) SetFields(c echo.Context) error {
	w, err := h.wizard(c)
	if err != nil {
		return err
	}
	var patch map[string]json.RawMessage
	if err := json.NewDecoder(c.Request().Body).Decode(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(patch) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "no fields provided")
	}
	if err := w.SetFields(c.Request().Context(), patch); err != nil {
		return h.fail(c, w, err)
	}
	return c.JSON(http.StatusOK, w.View())
}

func (h *Handler) Next(c echo.Context) error {
	w, err := h.wizard(c)
	if err != nil {
		return err
	}
	if err := w.Next(); err != nil {
		return h.fail(c, w, err)
	}
	return c.JSON(http.StatusOK, w.View())
}

func (h *Handler) Prev(c echo.Context) error {
	w, err := h.wizard(c)
	if err != nil {
		return err
	}
	if err := w.Prev(); err != nil {
		return h.fail(c, w, err)
	}
	return c.JSON(http.StatusOK, w.View())
}

type gotoRequest struct {
	Step *int `json:"step"`
}

func (h *Handler) Goto(c echo.Context) error {
	w, err := h.wizard(c)
	if err != nil {
		return err
	}
	var req gotoRequest
	if err := c.Bind(&req); err != nil || req.Step == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "step is required")
	}
	if err := w.Goto(*req.Step); err != nil {
		return h.fail(c, w, err)
	}
	return c.JSON(http.StatusOK, w.View())
}

func (h *Handler) Facilities(c echo.Context) error {
	w, err := h.wizard(c)
	if err != nil {
		return err
	}
	list, err := w.LoadFacilities(c.Request().Context(), c.QueryParam("country"))
	if err != nil {
		return h.fail(c, w, err)
	}
	return c.JSON(http.StatusOK, dataResponse{Data: list})
}

func (h *Handler) Insurances(c echo.Context) error {
	w, err := h.wizard(c)
	if err != nil {
		return err
	}
	list, err := w.LoadInsurances(c.Request().Context(), c.QueryParam("country"))
	if err != nil {
		return h.fail(c, w, err)
	}
	return c.JSON(http.StatusOK, dataResponse{Data: list})
}

type uploadRequest struct {
	Image string `json:"image"`
}

func (h *Handler) UploadID(c echo.Context) error {
	w, err := h.wizard(c)
	if err != nil {
		return err
	}
	var req uploadRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Image == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "No image data provided")
	}
	if err := w.UploadID(c.Request().Context(), req.Image); err != nil {
		return h.fail(c, w, err)
	}
	return c.JSON(http.StatusOK, w.View())
}

type suggestRequest struct {
	Input string `json:"input"`
}

func (h *Handler) SuggestAddress(c echo.Context) error {
	w, err := h.wizard(c)
	if err != nil {
		return err
	}
	target, err := addressTarget(c)
	if err != nil {
		return err
	}
	var req suggestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if _, err := w.SuggestAddress(c.Request().Context(), target, req.Input); err != nil {
		return h.fail(c, w, err)
	}
	return c.JSON(http.StatusOK, w.View())
}

type selectRequest struct {
	PlaceID string `json:"placeId"`
}

func (h *Handler) SelectAddress(c echo.Context) error {
	w, err := h.wizard(c)
	if err != nil {
		return err
	}
	target, err := addressTarget(c)
	if err != nil {
		return err
	}
	var req selectRequest
	if err := c.Bind(&req); err != nil || req.PlaceID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "placeId is required")
	}
	if err := w.SelectAddress(c.Request().Context(), target, req.PlaceID); err != nil {
		return h.fail(c, w, err)
	}
	return c.JSON(http.StatusOK, w.View())
}

func (h *Handler) BlurAddress(c echo.Context) error {
	w, err := h.wizard(c)
	if err != nil {
		return err
	}
	target, err := addressTarget(c)
	if err != nil {
		return err
	}
	if err := w.BlurAddress(target); err != nil {
		return h.fail(c, w, err)
	}
	return c.JSON(http.StatusOK, w.View())
}

func (h *Handler) DismissToast(c echo.Context) error {
	w, err := h.wizard(c)
	if err != nil {
		return err
	}
	if err := w.DismissToast(); err != nil {
		return h.fail(c, w, err)
	}
	return c.JSON(http.StatusOK, w.View())
}

func (h *Handler) Payload(c echo.Context) error {
	w, err := h.wizard(c)
	if err != nil {
		return err
	}
	p, err := w.Payload(c.Request().Context())
	if err != nil {
		return h.fail(c, w, err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) Submit(c echo.Context) error {
	w, err := h.wizard(c)
	if err != nil {
		return err
	}
	if err := w.Submit(c.Request().Context()); err != nil {
		return h.fail(c, w, err)
	}
	return c.JSON(http.StatusOK, w.View())
}
