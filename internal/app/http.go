package app

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"go.aimuz.me/voicebridge/internal/metrics"
	"go.aimuz.me/voicebridge/internal/types"
)

// Handler exposes a Service over HTTP.
type Handler struct {
	svc *Service
}

// NewHandler creates a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Router returns the HTTP routes. Action results always carry a status;
// malformed requests are rejected with 400.
func (h *Handler) Router(allowedOrigins []string) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/session", func(r chi.Router) {
			r.Get("/", h.Session)
			r.Post("/start", h.Start)
			r.Post("/stop", h.Stop)
			r.Post("/play", h.Play)
			r.Put("/auto", h.Auto)
			r.Get("/history", h.History)
		})
		r.Get("/microphone/test", h.TestMicrophone)
		r.Post("/record", h.Record)
		r.Route("/translate", func(r chi.Router) {
			r.Post("/", h.Translate)
			r.Post("/batch", h.TranslateBatch)
			r.Delete("/cache", h.ForgetTranslation)
		})
		r.Post("/detect", h.Detect)
		r.Get("/languages", h.Languages)
	})

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", metrics.Handler())
	return r
}

func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	var req types.StartRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, h.svc.StartSession(r.Context(), req))
}

func (h *Handler) Stop(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, h.svc.StopSession())
}

func (h *Handler) Session(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, h.svc.SessionView())
}

func (h *Handler) History(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, h.svc.History())
}

func (h *Handler) Play(w http.ResponseWriter, r *http.Request) {
	var req types.PlayRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	writeJSON(w, h.svc.PlayLastTranslation(r.Context(), req))
}

func (h *Handler) Auto(w http.ResponseWriter, r *http.Request) {
	var req types.AutoRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, h.svc.SetAutoTranslate(req))
}

func (h *Handler) TestMicrophone(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.svc.TestMicrophone(r.Context()))
}

func (h *Handler) Record(w http.ResponseWriter, r *http.Request) {
	var req types.RecordRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, h.svc.Record(r.Context(), req))
}

func (h *Handler) Translate(w http.ResponseWriter, r *http.Request) {
	var req types.TranslateRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, h.svc.Translate(r.Context(), req))
}

func (h *Handler) TranslateBatch(w http.ResponseWriter, r *http.Request) {
	var req types.BatchTranslateRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, h.svc.TranslateBatch(r.Context(), req))
}

func (h *Handler) ForgetTranslation(w http.ResponseWriter, r *http.Request) {
	var req types.ForgetRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	writeJSON(w, h.svc.ForgetTranslation(req))
}

func (h *Handler) Detect(w http.ResponseWriter, r *http.Request) {
	var req types.DetectRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, h.svc.DetectLanguage(r.Context(), req))
}

func (h *Handler) Languages(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, h.svc.Languages())
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok", "version": h.svc.Version()})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response", "error", err)
	}
}
