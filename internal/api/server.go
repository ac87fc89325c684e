package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tessera/internal/cache"
	"tessera/internal/config"
	"tessera/internal/database"
	"tessera/internal/external"
	"tessera/internal/handlers"
	"tessera/internal/jobs"
	"tessera/internal/logger"
	"tessera/internal/messaging"
	"tessera/internal/middleware"
	"tessera/internal/repository"
	"tessera/internal/search"
	"tessera/internal/service"
)

type Server struct {
	router   *gin.Engine
	config   *config.Config
	db       *database.DB
	nats     *messaging.NATSClient
	cache    *cache.AvailabilityCache
	services *service.Services
	repos    *repository.Repositories
	sweeper  *jobs.ExpirySweeper
}

func NewServer(cfg *config.Config) *Server {
	gin.SetMode(cfg.GinMode)

	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := db.RunMigrations(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	natsClient, err := messaging.NewNATSClient(cfg.NATS)
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}

	// Redis and Elasticsearch are accelerators, not dependencies. The service
	// comes up without them.
	var availability *cache.AvailabilityCache
	if cfg.Redis.Enabled {
		availability, err = cache.NewAvailabilityCache(cfg.Redis)
		if err != nil {
			logger.Get().Warn("Availability cache unavailable, continuing without it", "error", err)
			availability = nil
		}
	}

	var bookingIndex *search.BookingIndex
	if cfg.Elasticsearch.Enabled {
		bookingIndex, err = search.NewBookingIndex(cfg.Elasticsearch)
		if err != nil {
			logger.Get().Warn("Booking search index unavailable, continuing without it", "error", err)
			bookingIndex = nil
		}
	}

	captureClient := external.NewCaptureClient(cfg.Capture)

	var mailer *external.Mailer
	if cfg.Mail.Enabled {
		mailer = external.NewMailer(cfg.Mail)
	}

	repos := repository.NewRepositories(db)
	services := service.NewServices(cfg, repos, natsClient, captureClient, mailer, availability, bookingIndex)

	sweeper := jobs.NewExpirySweeper(repos.Bookings, repos.Zones, natsClient, availability,
		cfg.Sweep.Interval, cfg.Sweep.BatchSize)

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.CORS())
	router.Use(middleware.Logger())

	server := &Server{
		router:   router,
		config:   cfg,
		db:       db,
		nats:     natsClient,
		cache:    availability,
		services: services,
		repos:    repos,
		sweeper:  sweeper,
	}

	server.setupRoutes()

	return server
}

func (s *Server) setupRoutes() {
	h := handlers.New(s.services)

	api := s.router.Group("/api")

	// The provider webhook authenticates with its signature, not a caller
	// identity, so it sits outside the identity group.
	api.POST("/payments/notifications", h.PaymentNotification)

	authed := api.Group("")
	authed.Use(middleware.Identity())
	{
		bookings := authed.Group("/bookings")
		{
			bookings.POST("", h.CreateBooking)
			bookings.GET("", h.ListBookings)
			bookings.GET("/:code", h.GetBooking)
			bookings.GET("/:code/tickets", h.ListBookingTickets)
			bookings.PATCH("/cancel", h.CancelBooking)
		}

		authed.GET("/zones/:id/booking-info", h.GetZoneBookingInfo)

		payments := authed.Group("/payments")
		{
			payments.POST("/checkout-session", h.CreateCheckoutSession)
			payments.POST("/finalize", h.FinalizePayment)
			payments.GET("", h.PaymentHistory)
		}

		tickets := authed.Group("/tickets")
		{
			tickets.GET("/:code", h.GetTicket)
			tickets.GET("/:code/validate", h.ValidateTicket)
			tickets.POST("/check-in", h.CheckInTicket)
		}

		admin := authed.Group("/admin")
		admin.Use(middleware.RequireAdmin())
		{
			admin.GET("/bookings", h.AdminListBookings)
			admin.POST("/payments/mark-paid", h.AdminMarkPaid)
			admin.POST("/tickets/issue", h.IssueTickets)
			admin.POST("/tickets/cancel", h.CancelTicket)
		}
	}

	s.router.GET("/health", s.healthCheck)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func (s *Server) healthCheck(c *gin.Context) {
	health := s.db.HealthCheck(c.Request.Context())
	status := http.StatusOK
	if health.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status":   health.Status,
		"service":  "tessera-api",
		"database": health,
	})
}

// StartSweeper launches the in-process expiry sweeper.
func (s *Server) StartSweeper() {
	s.sweeper.Start()
}

// GetRouter returns the router, for tests and for the outer http.Server.
func (s *Server) GetRouter() *gin.Engine {
	return s.router
}

func (s *Server) Cleanup() error {
	s.sweeper.Stop()

	if err := s.nats.Close(); err != nil {
		log.Printf("Error closing NATS connection: %v", err)
	}

	if err := s.cache.Close(); err != nil {
		log.Printf("Error closing cache connection: %v", err)
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			log.Printf("Error closing database connection: %v", err)
			return err
		}
	}

	return nil
}
