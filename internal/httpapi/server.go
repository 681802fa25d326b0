package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bbkernel/internal/annotation"
	"bbkernel/internal/apperr"
	"bbkernel/internal/rest"
	"bbkernel/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Ready() bool
	Status() types.StatusResponse
	Services(f types.ServiceFilter) types.ServicesResponse
	Listeners() types.ListenersResponse
	Routes() types.RoutesResponse
	NextSequence(ctx context.Context, name string, def int64) (types.SequenceValue, error)
	RaiseSequence(ctx context.Context, name string, value int64) (types.SequenceValue, error)
	AnnotationReader() annotation.Reader
	// AppHandler serves requests no kernel endpoint matched. May be nil.
	AppHandler() http.Handler
}

type servicesQuery struct {
	_      struct{} `bb:"pagination{count_default: 50, count_max: 500}"`
	Prefix string   `bb:"query_param{name: prefix, requirements: 'omitempty,max=128'}" json:"prefix"`
	Tag    string   `bb:"query_param{name: tag}" json:"tag"`
	Page   rest.Page
}

type nextQuery struct {
	Default int64 `bb:"query_param{name: default, default: '1'}" json:"default" validate:"gte=0"`
}

// NewMux builds the kernel HTTP surface. Requests no kernel endpoint
// matches go to svc.AppHandler.
func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
			MaxAge:         300,
		}))
	}
	r.Use(MetricsMiddleware)
	r.Use(RequestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("booting"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Route("/_kernel", func(r chi.Router) {
		r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, svc.Status())
		})

		r.Get("/services", func(w http.ResponseWriter, r *http.Request) {
			var q servicesQuery
			if err := rest.Bind(r, &q, svc.AnnotationReader()); err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, svc.Services(types.ServiceFilter{
				Prefix: q.Prefix,
				Tag:    q.Tag,
				Start:  q.Page.Start,
				Count:  q.Page.Count,
			}))
		})

		r.Get("/listeners", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, svc.Listeners())
		})

		r.Get("/routes", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, svc.Routes())
		})

		r.Post("/sequences/{name}/next", func(w http.ResponseWriter, r *http.Request) {
			var q nextQuery
			if err := rest.Bind(r, &q, svc.AnnotationReader()); err != nil {
				writeError(w, err)
				return
			}
			ctx, cancel := handlerContext(r.Context())
			defer cancel()
			v, err := svc.NextSequence(ctx, chi.URLParam(r, "name"), q.Default)
			if err != nil {
				writeError(w, sequenceError(err))
				return
			}
			writeJSON(w, v)
		})

		r.Put("/sequences/{name}", func(w http.ResponseWriter, r *http.Request) {
			ct := r.Header.Get("Content-Type")
			if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
				writeError(w, apperr.New(apperr.NamespaceFrontController+http.StatusUnsupportedMediaType, "Content-Type must be application/json"))
				return
			}
			// Limit body size (configurable, default 1MiB)
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
			var req types.RaiseRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, apperr.Wrap(apperr.CodeBadRequest, err, "invalid JSON body"))
				return
			}
			if err := rest.Validate(req); err != nil {
				writeError(w, err)
				return
			}
			ctx, cancel := handlerContext(r.Context())
			defer cancel()
			v, err := svc.RaiseSequence(ctx, chi.URLParam(r, "name"), req.Value)
			if err != nil {
				writeError(w, sequenceError(err))
				return
			}
			writeJSON(w, v)
		})
	})

	if swaggerEnabled {
		MountSwagger(r)
	}

	notFound := func(w http.ResponseWriter, r *http.Request) {
		if h := svc.AppHandler(); h != nil {
			h.ServeHTTP(w, r)
			return
		}
		writeError(w, apperr.Newf(apperr.CodeNotFound, "no route matches %s %s", r.Method, r.URL.Path))
	}
	r.NotFound(notFound)
	r.MethodNotAllowed(notFound)

	return r
}

// sequenceError maps sequencer failures caused by the caller to client
// errors.
func sequenceError(err error) error {
	switch {
	case apperr.HasCode(err, apperr.CodeInvalidArgument):
		return apperr.Wrap(apperr.CodeBadRequest, err, "invalid sequence request")
	case apperr.HasCode(err, apperr.CodeServiceNotFound):
		return apperr.Wrap(apperr.CodeNotFound, err, "sequencer unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		return apperr.Wrap(apperr.NamespaceFrontController+http.StatusGatewayTimeout, err, "sequence request timed out")
	}
	return err
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		writeError(w, apperr.Wrap(apperr.CodeInternal, err, "failed to encode response"))
	}
}
