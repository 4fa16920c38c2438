package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/intake/intake/internal/config"
	"github.com/intake/intake/internal/domain/registration"
	"github.com/intake/intake/internal/platform/attachment"
	"github.com/intake/intake/internal/platform/leads"
	"github.com/intake/intake/internal/platform/middleware"
	"github.com/intake/intake/internal/platform/places"
	"github.com/intake/intake/internal/platform/vision"
)

// sweepInterval is how often idle registration sessions are evicted.
const sweepInterval = time.Minute

func main() {
	rootCmd := &cobra.Command{
		Use:   "intake-server",
		Short: "Patient registration API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(stepsCmd())
	rootCmd.AddCommand(checkCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the registration API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func stepsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "steps",
		Short: "Print the wizard step sequence",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printSteps(cmd.OutOrStdout())
		},
	}
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <form.json|form.yaml>",
		Short: "Validate saved form answers step by step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			form, err := decodeForm(f, filepath.Ext(args[0]))
			if err != nil {
				return err
			}
			reports, err := checkForm(form, time.Now())
			if err != nil {
				return err
			}
			failed := false
			out := cmd.OutOrStdout()
			for _, r := range reports {
				if len(r.Invalid) == 0 {
					fmt.Fprintf(out, "%2d  %-22s ok\n", r.Index, r.Key)
					continue
				}
				failed = true
				fmt.Fprintf(out, "%2d  %-22s invalid: %v\n", r.Index, r.Key, r.Invalid)
			}
			if failed {
				return fmt.Errorf("form is incomplete")
			}
			return nil
		},
	}
}

func newLogger(dev bool) zerolog.Logger {
	if dev {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func runServer() error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Logger
	logger := newLogger(cfg.IsDev())

	e, mgr, err := newServer(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build server")
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	sweeperDone := make(chan struct{})
	go func() {
		mgr.Run(ctx, sweepInterval)
		close(sweeperDone)
	}()

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Bool("tls", cfg.TLSEnabled).Msg("starting server")
		var err error
		if cfg.TLSEnabled {
			err = e.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = e.Start(addr)
		}
		if err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	stop()
	<-sweeperDone
	logger.Info().Msg("server stopped")
	return nil
}

// newServer builds the echo instance with every route registered. The
// returned manager owns the registration sessions; the caller runs its
// sweeper.
func newServer(cfg *config.Config, logger zerolog.Logger) (*echo.Echo, *registration.Manager, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.SecurityHeaders(middleware.SecurityHeadersConfig{HSTSMaxAge: hstsMaxAge(cfg)}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit, cfg.UploadLimit))
	if cfg.RequestTimeout > 0 {
		e.Use(middleware.RequestTimeout(cfg.RequestTimeout, "/health"))
	}

	// API groups
	api := e.Group("/api")

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	api.Use(middleware.RateLimit(rateLimitCfg))

	// Collaborators
	leadsClient := leads.NewClient(cfg.LeadsAPIURL, cfg.LeadsAPIKey)

	var visionOpts []vision.ExtractorOption
	if cfg.OpenAIBaseURL != "" {
		visionOpts = append(visionOpts, vision.WithBaseURL(cfg.OpenAIBaseURL))
	}
	extractor := vision.NewExtractor(cfg.OpenAIAPIKey, cfg.OpenAIModel, visionOpts...)

	placesClient, err := places.NewClient(cfg.PlacesAPIKey)
	if err != nil {
		return nil, nil, err
	}

	// Pass-through routes
	leads.NewHandler(leadsClient, logger).RegisterRoutes(api)
	vision.NewHandler(extractor, logger).RegisterRoutes(api)
	places.NewHandler(placesClient, logger).RegisterRoutes(api)

	// Registration wizard
	mgr := registration.NewManager(registration.Collaborators{
		Directory: leadsClient,
		Extractor: extractor,
		Addresses: placesClient,
		Submitter: leadsClient,
	}, attachment.NewInMemoryStore(), logger, registration.WithSessionTTL(cfg.SessionTTL))
	registration.NewHandler(mgr, logger).RegisterRoutes(api.Group("/v1/registrations"))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{
			"status":   "ok",
			"sessions": mgr.Len(),
		})
	})

	return e, mgr, nil
}

func hstsMaxAge(cfg *config.Config) int {
	if cfg.TLSEnabled {
		return 31536000
	}
	return 0
}

func printSteps(out io.Writer) error {
	for i, st := range registration.Steps {
		if _, err := fmt.Fprintf(out, "%2d  %-22s %s\n", i, st.Key, st.Title); err != nil {
			return err
		}
	}
	return nil
}

// stepReport lists the required fields of one step that did not validate.
type stepReport struct {
	Index   int
	Key     registration.StepKey
	Invalid []registration.FieldID
}

// decodeForm reads a flat object of field values. Files ending in .yaml or
// .yml are read as YAML, anything else as JSON.
func decodeForm(r io.Reader, ext string) (map[string]json.RawMessage, error) {
	raw := map[string]json.RawMessage{}
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		var doc map[string]any
		if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode form: %w", err)
		}
		for k, v := range doc {
			b, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("decode form: field %s: %w", k, err)
			}
			raw[k] = b
		}
	default:
		if err := json.NewDecoder(r).Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode form: %w", err)
		}
	}
	return raw, nil
}

// checkForm applies field values to an empty form and validates the fields
// that complete each step, including the signature and consent on the last.
// Unknown or malformed values are errors.
func checkForm(raw map[string]json.RawMessage, now time.Time) ([]stepReport, error) {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	s := &registration.FormState{}
	for _, k := range keys {
		if err := s.Set(registration.FieldID(k), raw[k]); err != nil {
			return nil, err
		}
	}

	reports := make([]stepReport, 0, len(registration.Steps))
	for i, st := range registration.Steps {
		rep := stepReport{Index: i, Key: st.Key}
		for _, id := range registration.CompletionFields(i, s) {
			if !registration.Validate(id, s, now) {
				rep.Invalid = append(rep.Invalid, id)
			}
		}
		reports = append(reports, rep)
	}
	return reports, nil
}
