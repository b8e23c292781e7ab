package web

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lojf/weatherbot/internal/handlers"
)

type Deps struct {
	Updates       handlers.UpdateHandler
	WebhookSecret string
	BotUsername   string
	Logger        *slog.Logger
}

func Router(d Deps) http.Handler {
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)

	r.Get("/", handlers.Home)
	r.Get("/health", handlers.Health)

	r.Route("/telegram", func(tr chi.Router) {
		tr.Post("/webhook", handlers.TelegramWebhook(d.WebhookSecret, d.Updates, log))
		tr.Get("/info", handlers.TelegramInfo)
		tr.Get("/qr.png", handlers.BotQR(d.BotUsername))
	})

	return r
}

func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Info("http_request",
				"request_id", middleware.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"remote", r.RemoteAddr,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}
