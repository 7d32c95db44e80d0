package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"breedserve/internal/apperr"
	"breedserve/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	PredictBreed(ctx context.Context, img []byte) (types.PredictResponse, error)
	DetectSpecies(ctx context.Context, img []byte) (types.SpeciesResult, error)
	Health() types.HealthResponse
	Status() types.StatusResponse
	Ready() bool
	Reload() bool
}

// NewMux builds the host router.
func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5, "application/json"))
	r.Use(MetricsMiddleware)
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

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"service": "breedserve",
			"endpoints": []string{
				"GET /health", "GET /healthz", "GET /readyz", "GET /status", "GET /metrics",
				"POST /predict", "POST /species", "POST /reload",
			},
		})
	})

	// /health is always 200: a model that is still loading or failed does
	// not make the process unhealthy.
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Health())
	})

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
		_, _ = w.Write([]byte(svc.Health().ModelState))
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(svc.Status()); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
		}
	})

	r.Post("/predict", func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		img, q, err := readImage(w, r)
		if err != nil {
			logEnd(r, "predict", writeError(w, err, ""), start, err)
			return
		}
		if e := logEvent(r, LevelDebug); e != nil {
			e = e.Int("bytes", len(img))
			if q != nil {
				e = e.Int("width", q.Width).Int("height", q.Height).Float64("blur_score", q.BlurScore)
			}
			e.Msg("predict start")
		}
		ctx, cancel := requestContext(r)
		defer cancel()
		resp, err := svc.PredictBreed(ctx, img)
		if err == nil && len(resp.Predictions) == 0 {
			err = apperr.New(apperr.InferenceFailure, "model returned no predictions")
		}
		if err != nil {
			if r.Context().Err() != nil {
				return
			}
			logEnd(r, "predict", writeError(w, err, svc.Health().ModelState), start, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
		logEnd(r, "predict", http.StatusOK, start, nil)
	})

	r.Post("/species", func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		img, _, err := readImage(w, r)
		if err != nil {
			logEnd(r, "species", writeError(w, err, ""), start, err)
			return
		}
		ctx, cancel := requestContext(r)
		defer cancel()
		res, err := svc.DetectSpecies(ctx, img)
		if err != nil {
			if r.Context().Err() != nil {
				return
			}
			logEnd(r, "species", writeError(w, err, svc.Health().ModelState), start, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
		logEnd(r, "species", http.StatusOK, start, nil)
	})

	r.Post("/reload", func(w http.ResponseWriter, r *http.Request) {
		if svc.Reload() {
			writeJSON(w, http.StatusAccepted, map[string]any{"started": true})
			return
		}
		writeJSON(w, http.StatusConflict, map[string]any{"started": false, "model_state": svc.Health().ModelState})
	})

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)
	return r
}
