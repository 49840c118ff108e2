// Package httptransport is the thin HTTP layer. Handlers delegate to domain
// services without embedding business logic so transport concerns remain
// isolated.
package httptransport

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"verigate/internal/authorizing"
	"verigate/internal/keri"
	"verigate/internal/platform/middleware"
	"verigate/internal/reporting"
	dErrors "verigate/pkg/domain-errors"
	httpErrors "verigate/pkg/http-errors"
)

// Handler holds the domain services the endpoints delegate to.
type Handler struct {
	resolver   keri.KeyStateResolver
	parser     keri.PresentationParser
	authorizer *authorizing.Authorizer
	filer      *reporting.Filer
	gatherer   prometheus.Gatherer
	logger     *slog.Logger
}

// NewHandler wires the transport layer over the domain services.
func NewHandler(
	resolver keri.KeyStateResolver,
	parser keri.PresentationParser,
	authorizer *authorizing.Authorizer,
	filer *reporting.Filer,
	gatherer prometheus.Gatherer,
	logger *slog.Logger,
) *Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		resolver:   resolver,
		parser:     parser,
		authorizer: authorizer,
		filer:      filer,
		gatherer:   gatherer,
		logger:     logger,
	}
}

// NewRouter wires all public endpoints with middleware.
func NewRouter(h *Handler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(5 * time.Minute))

	r.Put("/presentations/{said}", h.handlePresentationPut)
	r.Get("/authorizations/{aid}", h.handleAuthorizationGet)
	r.Post("/request/verify/{aid}", h.handleRequestVerify)

	r.Post("/reports/{aid}/{dig}", h.handleReportPost)
	r.Get("/reports/{aid}/{dig}", h.handleReportGet)
	r.Get("/reports/{aid}", h.handleReportList)

	r.Get("/health", h.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))

	return r
}

func writeJSON(w http.ResponseWriter, status int, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

// writeError centralizes domain error translation to HTTP responses, keeping
// the JSON error envelope consistent across handlers.
func writeError(w http.ResponseWriter, err error) {
	writeJSONError(w, httpErrors.CodeFor(err), err.Error(), httpErrors.StatusFor(err))
}

func writeJSONError(w http.ResponseWriter, code dErrors.Code, description string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             string(code),
		"error_description": description,
	})
}
