package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking/internal/auth"
	"github.com/hackgods/clinic-booking/internal/metrics"
)

type RouterConfig struct {
	Service     Service
	Predictions PredictionService // prediction review routes are mounted when set
	Issuer      *auth.Issuer
	Health      *HealthHandler
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
	Gatherer    prometheus.Gatherer // served on /metrics when set

	CORSOrigins       []string
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(MetricsMiddleware(cfg.Metrics))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "token", "dtoken", "atoken", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if cfg.RateLimitRequests > 0 {
		r.Use(httprate.LimitByIP(cfg.RateLimitRequests, cfg.RateLimitWindow))
	}

	// Health endpoints
	if cfg.Health != nil {
		r.Get("/health/live", cfg.Health.Liveness)
		r.Get("/health/ready", cfg.Health.Readiness)
	}
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	h := NewHandler(cfg.Service, cfg.Predictions, cfg.Logger)
	predictions := cfg.Predictions != nil

	r.Route("/api", func(r chi.Router) {
		r.Post("/payment/webhook", h.PaymentWebhook)

		if predictions {
			r.With(OptionalRole(cfg.Issuer, auth.RolePatient)).Post("/predictions/savePrediction", h.SavePrediction)
		}

		r.Route("/user", func(r chi.Router) {
			r.Use(RequireRole(cfg.Issuer, auth.RolePatient))
			r.Post("/book-appointment", h.BookAppointment)
			r.Get("/appointments", h.ListMyAppointments)
			r.Post("/cancel-appointment", h.CancelMyAppointment)
			r.Post("/payment-razorpay", h.CreatePaymentOrder)
			r.Post("/verifyRazorpay", h.VerifyPayment)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireRole(cfg.Issuer, auth.RoleAdmin))
			r.Get("/appointments", h.AdminListAppointments)
			r.Post("/cancel-appointment", h.AdminCancelAppointment)
			r.Post("/change-availability", h.ChangeAvailability)
			r.Get("/all-doctors", h.AdminListDoctors)
			r.Get("/dashboard", h.Dashboard)

			if predictions {
				r.Get("/predictions", h.AdminListPredictions)
				r.Post("/predictions/{predictionId}/send-for-review", h.SendPredictionForReview)
				r.Post("/assign-review", h.AssignPredictionReviewer)
				r.Post("/upload-prediction", h.UploadPrediction)
				r.Delete("/predictions/{predictionId}", h.DeletePrediction)
				r.Delete("/predictions/{predictionId}/force", h.ForceDeletePrediction)
			}
		})

		r.Route("/doctor", func(r chi.Router) {
			r.Get("/list", h.ListDoctors)

			r.Group(func(r chi.Router) {
				r.Use(RequireRole(cfg.Issuer, auth.RoleDoctor))
				r.Get("/appointments", h.DoctorAppointments)
				r.Post("/complete-appointment", h.DoctorCompleteAppointment)
				r.Post("/cancel-appointment", h.DoctorCancelAppointment)

				if predictions {
					r.Get("/predictions", h.DoctorPredictions)
					r.Post("/predictions/{predictionId}/review", h.DoctorReviewPrediction)
				}
			})
		})
	})

	return r
}
