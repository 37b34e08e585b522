package httpapi

import (
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	app "github.com/R3E-Network/roster/internal/app"
	"github.com/R3E-Network/roster/internal/app/metrics"
	"github.com/R3E-Network/roster/internal/app/services/players"
	"github.com/R3E-Network/roster/internal/app/services/wallet"
	"github.com/R3E-Network/roster/internal/httputil"
	"github.com/R3E-Network/roster/internal/middleware"
	"github.com/R3E-Network/roster/pkg/logger"
)

// Options configures the HTTP surface.
type Options struct {
	Logger            *logger.Logger
	AllowedOrigins    []string
	RequestsPerSecond float64
	Burst             int
	// AuditSize bounds the in-memory command trail served at /api/commands.
	AuditSize    int
	AuditLogPath string
}

// Handler serves the roster page and the JSON API.
type Handler struct {
	app   *app.Application
	log   *logger.Logger
	pages *template.Template
	audit *auditLog
	sink  *fileAuditSink
	root  http.Handler

	limiter   *middleware.RateLimiter
	stopSweep chan struct{}
	closeOnce sync.Once
}

// limiterSweep is how often idle rate limit entries are dropped.
const limiterSweep = time.Minute

// NewHandler builds the router with its middleware chain.
func NewHandler(application *app.Application, opts Options) (*Handler, error) {
	if application == nil {
		return nil, errors.New("httpapi: application required")
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewDefault("http")
	}

	pages, err := parsePages()
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	sink, err := newFileAuditSink(opts.AuditLogPath)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	var auditTarget auditSink
	if sink != nil {
		auditTarget = sink
	}

	h := &Handler{
		app:   application,
		log:   log,
		pages: pages,
		audit: newAuditLog(opts.AuditSize, auditTarget),
		sink:  sink,
	}

	r := mux.NewRouter()
	r.Use(middleware.MetricsMiddleware)
	if opts.RequestsPerSecond > 0 {
		h.limiter = middleware.NewRateLimiter(opts.RequestsPerSecond, opts.Burst, log.Named("ratelimit"))
		h.stopSweep = make(chan struct{})
		h.limiter.StartCleanup(limiterSweep, h.stopSweep)
		r.Use(h.limiter.Handler)
	}

	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	// HTML
	r.HandleFunc("/", h.index).Methods(http.MethodGet)
	r.HandleFunc("/players", h.createFromForm).Methods(http.MethodPost)
	r.HandleFunc("/players/{id}/confirm", h.confirmPage).Methods(http.MethodGet)
	r.HandleFunc("/players/{id}/edit", h.editFromForm).Methods(http.MethodPost)
	r.HandleFunc("/players/{id}/delete", h.deleteFromForm).Methods(http.MethodPost)
	r.HandleFunc("/wallet/connect", h.walletConnectForm).Methods(http.MethodPost)
	r.HandleFunc("/wallet/disconnect", h.walletDisconnectForm).Methods(http.MethodPost)

	// JSON
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/players", h.listPlayers).Methods(http.MethodGet)
	api.HandleFunc("/players", h.createPlayer).Methods(http.MethodPost)
	api.HandleFunc("/players/{id}", h.getPlayer).Methods(http.MethodGet)
	api.HandleFunc("/players/{id}", h.updatePlayer).Methods(http.MethodPatch)
	api.HandleFunc("/players/{id}", h.deletePlayer).Methods(http.MethodDelete)
	api.HandleFunc("/commands", h.dispatchCommand).Methods(http.MethodPost)
	api.HandleFunc("/commands", h.recentCommands).Methods(http.MethodGet)
	api.HandleFunc("/wallet", h.walletState).Methods(http.MethodGet)
	api.HandleFunc("/wallet/connect", h.walletConnect).Methods(http.MethodPost)
	api.HandleFunc("/wallet/disconnect", h.walletDisconnect).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		httputil.NotFound(w, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	// mux only runs r.Use middleware on matched routes, so tracing, logging
	// and CORS preflight wrap the router itself.
	var root http.Handler = r
	root = middleware.NewCORSMiddleware(opts.AllowedOrigins).Handler(root)
	root = middleware.LoggingMiddleware(log)(root)
	root = middleware.TracingMiddleware(root)
	h.root = root
	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.root.ServeHTTP(w, r)
}

// Close stops the rate limiter sweep and releases the audit log file.
func (h *Handler) Close() error {
	var err error
	h.closeOnce.Do(func() {
		if h.stopSweep != nil {
			close(h.stopSweep)
		}
		err = h.sink.Close()
	})
	return err
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"services": h.app.Services(),
	})
}

// dispatch runs cmd through the player service and records the outcome.
func (h *Handler) dispatch(r *http.Request, via string, cmd players.Command) (players.Result, error) {
	res, err := h.app.Players.Dispatch(r.Context(), cmd)

	entry := auditEntry{
		Time:       timeNow().UTC(),
		TraceID:    logger.TraceIDFromContext(r.Context()),
		Action:     string(cmd.Action),
		PlayerID:   cmd.ID,
		Outcome:    "ok",
		Via:        via,
		RemoteAddr: r.RemoteAddr,
	}
	if cmd.Action == players.ActionCreate && err == nil {
		entry.PlayerID = res.Player.ID
	}
	switch {
	case errors.Is(err, players.ErrConfirmationRequired):
		entry.Outcome = "unconfirmed"
	case err != nil:
		entry.Outcome = "error"
		entry.Error = err.Error()
	}
	h.audit.add(entry)
	return res, err
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, players.ErrPlayerNotFound):
		return http.StatusNotFound
	case errors.Is(err, players.ErrConfirmationRequired):
		return http.StatusConflict
	case errors.Is(err, players.ErrUnknownAction),
		errors.Is(err, players.ErrUnknownField),
		errors.Is(err, wallet.ErrNotInstalled),
		errors.Is(err, wallet.ErrNoAccounts):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError writes err as JSON, hiding internal failures.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.WithContext(r.Context()).WithError(err).Error("request failed")
		httputil.InternalError(w, "")
		return
	}
	httputil.WriteError(w, status, err.Error())
}
