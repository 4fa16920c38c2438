package leads

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// API is the subset of Client the pass-through routes use.
type API interface {
	ListFacilities(ctx context.Context, country string) ([]Facility, error)
	ListAllFacilities(ctx context.Context) ([]Facility, error)
	ListInsurances(ctx context.Context, country string) ([]Insurance, error)
	FacilityInfo(ctx context.Context, id string) (json.RawMessage, error)
	Signup(ctx context.Context, payload any) (*SignupResult, error)
}

type Handler struct {
	api    API
	logger zerolog.Logger
}

func NewHandler(api API, logger zerolog.Logger) *Handler {
	return &Handler{api: api, logger: logger}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/facilities", h.ListFacilities)
	g.GET("/insurances", h.ListInsurances)
	g.GET("/facility-info", h.FacilityInfo)
	g.POST("/signup", h.Signup)
}

type listResponse struct {
	Status string `json:"status"`
	Data   any    `json:"data"`
}

type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ListFacilities never fails: when the CRM is unreachable the built-in
// directory is served instead.
func (h *Handler) ListFacilities(c echo.Context) error {
	ctx := c.Request().Context()
	country := strings.ToUpper(c.QueryParam("country"))

	var (
		list []Facility
		err  error
	)
	if country != "" {
		list, err = h.api.ListFacilities(ctx, country)
	} else {
		list, err = h.api.ListAllFacilities(ctx)
	}
	if err != nil {
		h.logger.Warn().Err(err).Str("country", country).Msg("facility directory unavailable, serving fallback")
		list = MockFacilities(country)
	}
	return c.JSON(http.StatusOK, listResponse{Status: "success", Data: list})
}

func (h *Handler) ListInsurances(c echo.Context) error {
	country := strings.ToUpper(c.QueryParam("country"))
	if country == "" {
		country = "CO"
	}
	list, err := h.api.ListInsurances(c.Request().Context(), country)
	if err != nil {
		h.logger.Warn().Err(err).Str("country", country).Msg("insurance directory unavailable, serving fallback")
		list = MockInsurances(country)
	}
	return c.JSON(http.StatusOK, listResponse{Status: "success", Data: list})
}

func (h *Handler) FacilityInfo(c echo.Context) error {
	id := c.QueryParam("id")
	if id == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Status: "error", Message: "Facility ID is required"})
	}
	info, err := h.api.FacilityInfo(c.Request().Context(), id)
	if err != nil {
		h.logger.Error().Err(err).Str("facility_id", id).Msg("facility info failed")
		return c.JSON(http.StatusInternalServerError, errorResponse{Status: "error", Message: "Failed to fetch facility information"})
	}
	return c.JSON(http.StatusOK, listResponse{Status: "success", Data: info})
}

// Signup relays the CRM's response body unchanged.
func (h *Handler) Signup(c echo.Context) error {
	var payload json.RawMessage
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.api.Signup(c.Request().Context(), payload)
	if err != nil {
		h.logger.Error().Err(err).Msg("signup relay failed")
		return c.JSON(http.StatusInternalServerError, errorResponse{Status: "error", Message: "Failed to submit registration"})
	}
	return c.JSONBlob(http.StatusOK, res.Raw)
}
