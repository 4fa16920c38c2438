package vision

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// IDExtractor is what the /process-id route needs.
type IDExtractor interface {
	ExtractID(ctx context.Context, imageData string) (*IDData, error)
}

// NameParser is what the /parse-name route needs.
type NameParser interface {
	ParseName(ctx context.Context, fullName string) (*Name, error)
}

// Reader combines both model-backed operations.
type Reader interface {
	IDExtractor
	NameParser
}

type Handler struct {
	reader Reader
	logger zerolog.Logger
}

func NewHandler(reader Reader, logger zerolog.Logger) *Handler {
	return &Handler{reader: reader, logger: logger}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/process-id", h.ProcessID)
	g.POST("/parse-name", h.ParseName)
}

type processIDRequest struct {
	ImageData string `json:"imageData"`
}

// processIDResponse keeps unread fields as JSON null.
type processIDResponse struct {
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	DOB       *string `json:"dob"`
	Sex       *string `json:"sex"`
	IDNumber  *string `json:"idNumber"`
}

type processIDError struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// ProcessID answers 200 with the extracted fields, 200 with an "error" field
// when the image was rejected, and 500 when extraction itself failed.
func (h *Handler) ProcessID(c echo.Context) error {
	var req processIDRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, processIDError{Error: "Invalid request body"})
	}
	if req.ImageData == "" {
		return c.JSON(http.StatusBadRequest, processIDError{Error: "No image data provided"})
	}

	data, err := h.reader.ExtractID(c.Request().Context(), req.ImageData)
	if err != nil {
		var rejected *RejectedError
		if errors.As(err, &rejected) {
			return c.JSON(http.StatusOK, processIDError{Error: rejected.Message})
		}
		h.logger.Error().Err(err).Msg("id extraction failed")
		return c.JSON(http.StatusInternalServerError, processIDError{Error: "Failed to process ID image", Details: err.Error()})
	}

	return c.JSON(http.StatusOK, processIDResponse{
		FirstName: nullable(data.FirstName),
		LastName:  nullable(data.LastName),
		DOB:       nullable(data.DOB),
		Sex:       nullable(data.Sex),
		IDNumber:  nullable(data.IDNumber),
	})
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

type parseNameRequest struct {
	FullName string `json:"fullName"`
}

// ParseName splits a full name with the text model, falling back to a plain
// first-word split when the model is unavailable.
func (h *Handler) ParseName(c echo.Context) error {
	var req parseNameRequest
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.FullName) == "" {
		return c.JSON(http.StatusBadRequest, processIDError{Error: "Invalid full name provided"})
	}

	name, err := h.reader.ParseName(c.Request().Context(), req.FullName)
	if err != nil {
		h.logger.Warn().Err(err).Msg("name parsing failed, splitting locally")
		fallback := SplitName(req.FullName)
		name = &fallback
	}
	return c.JSON(http.StatusOK, name)
}
