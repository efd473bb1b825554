package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"storefront/internal/config"
	"storefront/internal/domain"
	"storefront/internal/events"
	"storefront/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// Catalog is the synced read side. *livesync.Store satisfies it.
type Catalog interface {
	Items() []models.CatalogItem
	Bookings() []models.Booking
	Categories() []models.Category
	Reviews() []models.Review
	About() *models.AboutInfo
	AppInfo() *models.AppInfo
	Loading() bool
	OnChange(listener func(events.CollectionChange)) func()
}

type ItemWriter interface {
	Create(ctx context.Context, in models.ItemPatch) (*models.CatalogItem, error)
	Update(ctx context.Context, id string, patch models.ItemPatch) (*models.CatalogItem, error)
	Delete(ctx context.Context, id string) error
}

type BookingWriter interface {
	Create(ctx context.Context, in models.BookingInput) (*models.Booking, error)
	UpdateStatus(ctx context.Context, id, status string) (*models.Booking, error)
	Delete(ctx context.Context, id string) error
}

type CategoryWriter interface {
	Create(ctx context.Context, in models.CategoryPatch) (*models.Category, error)
	Update(ctx context.Context, id string, patch models.CategoryPatch) (*models.Category, error)
	Delete(ctx context.Context, id string) error
}

type ReviewWriter interface {
	GetAll(ctx context.Context) ([]models.Review, error)
	Create(ctx context.Context, in models.ReviewInput) (*models.Review, error)
	Approve(ctx context.Context, id string) (*models.Review, error)
	Delete(ctx context.Context, id string) error
}

type AboutWriter interface {
	Update(ctx context.Context, patch models.AboutPatch) (*models.AboutInfo, error)
}

type AppInfoWriter interface {
	Update(ctx context.Context, patch models.AppInfoPatch) (*models.AppInfo, error)
}

// Deps wires the server to the store and the repositories. Notifier and
// History may be nil when notifications are disabled.
type Deps struct {
	Catalog    Catalog
	Items      ItemWriter
	Bookings   BookingWriter
	Categories CategoryWriter
	Reviews    ReviewWriter
	About      AboutWriter
	AppInfo    AppInfoWriter
	Notifier   domain.Notifier
	History    domain.NotificationHistory
}

// Server is the storefront HTTP API: public catalog reads served from the
// synced store, customer submissions, the admin surface and the live feed.
type Server struct {
	cfg     config.APIConfig
	deps    Deps
	auth    *HTTPAuth
	live    *LiveHub
	logger  *zerolog.Logger
	server  *http.Server
	cancel  func()
	handler http.Handler
	now     func() time.Time
}

func NewServer(cfg config.APIConfig, deps Deps, logger *zerolog.Logger) *Server {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "api").Logger()

	s := &Server{
		cfg:    cfg,
		deps:   deps,
		auth:   NewHTTPAuth(cfg),
		live:   NewLiveHub(cfg.CORS.AllowedOrigins, &l),
		logger: &l,
		now:    time.Now,
	}
	s.cancel = deps.Catalog.OnChange(s.live.Publish)
	s.handler = s.routes()

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the live feed and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	s.live.Close()
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(recovery(s.logger))
	r.Use(requestID)
	r.Use(loggingMiddleware(s.logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", requestIDHeader, s.auth.keyHeader, s.auth.extraHeader},
		ExposedHeaders:   []string{requestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(s.auth.RateLimit)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/items", s.handleListItems)
		r.Get("/items/{id}", s.handleGetItem)
		r.Get("/categories", s.handleListCategories)
		r.Get("/reviews", s.handleListReviews)
		r.Post("/reviews", s.handleCreateReview)
		r.Post("/bookings", s.handleCreateBooking)
		r.Get("/site/about", s.handleGetAbout)
		r.Get("/site/app", s.handleGetAppInfo)
		r.Handle("/live", s.live)

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.auth.RequireAdmin)

			r.Post("/items", s.handleCreateItem)
			r.Patch("/items/{id}", s.handleUpdateItem)
			r.Delete("/items/{id}", s.handleDeleteItem)

			r.Post("/categories", s.handleCreateCategory)
			r.Patch("/categories/{id}", s.handleUpdateCategory)
			r.Delete("/categories/{id}", s.handleDeleteCategory)

			r.Get("/bookings", s.handleListBookings)
			r.Patch("/bookings/{id}/status", s.handleUpdateBookingStatus)
			r.Delete("/bookings/{id}", s.handleDeleteBooking)

			r.Get("/reviews", s.handleListAllReviews)
			r.Post("/reviews/{id}/approve", s.handleApproveReview)
			r.Delete("/reviews/{id}", s.handleDeleteReview)

			r.Put("/site/about", s.handleUpdateAbout)
			r.Put("/site/app", s.handleUpdateAppInfo)

			r.Get("/notifications", s.handleListNotifications)
			r.Post("/notifications", s.handleSendNotification)

			r.Get("/export/bookings.xlsx", s.handleExportBookings)
		})
	})

	return r
}
