package places

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Lookup is what the pass-through routes need from a Client.
type Lookup interface {
	Autocomplete(ctx context.Context, input, country string) ([]Prediction, error)
	Details(ctx context.Context, placeID string) (*PlaceDetails, error)
}

type Handler struct {
	lookup Lookup
	logger zerolog.Logger
}

func NewHandler(lookup Lookup, logger zerolog.Logger) *Handler {
	return &Handler{lookup: lookup, logger: logger}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/places/autocomplete", h.Autocomplete)
	g.GET("/places/details", h.Details)
}

type errorBody struct {
	Error string `json:"error"`
}

func (h *Handler) Autocomplete(c echo.Context) error {
	input := c.QueryParam("input")
	if input == "" {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "Input parameter is required"})
	}

	preds, err := h.lookup.Autocomplete(c.Request().Context(), input, c.QueryParam("country"))
	if err != nil {
		return h.fail(c, err, "Failed to fetch address suggestions")
	}
	status := "OK"
	if len(preds) == 0 {
		status = "ZERO_RESULTS"
	}
	return c.JSON(http.StatusOK, map[string]any{"predictions": preds, "status": status})
}

func (h *Handler) Details(c echo.Context) error {
	placeID := c.QueryParam("place_id")
	if placeID == "" {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "Place ID parameter is required"})
	}

	d, err := h.lookup.Details(c.Request().Context(), placeID)
	if err != nil {
		return h.fail(c, err, "Failed to fetch place details")
	}
	return c.JSON(http.StatusOK, map[string]any{"result": d, "status": "OK"})
}

func (h *Handler) fail(c echo.Context, err error, msg string) error {
	if errors.Is(err, ErrNotConfigured) {
		msg = "Google Places API key not configured"
	}
	h.logger.Error().Err(err).Msg("places lookup failed")
	return c.JSON(http.StatusInternalServerError, errorBody{Error: msg})
}
