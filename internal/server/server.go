package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/config"
	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/handlers"
	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/logging"
	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/middleware"
)

type Server struct {
	config     *config.Config
	router     *gin.Engine
	handlers   *handlers.Handlers
	httpServer *http.Server
}

func New(h *handlers.Handlers, cfg *config.Config) *Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger())

	s := &Server{
		config:   cfg,
		router:   router,
		handlers: h,
	}

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handlers.Health)
	s.router.GET("/ready", s.handlers.Ready)
	s.router.GET("/live", s.handlers.Live)
	s.router.GET("/metrics", s.handlers.Metrics)
	s.router.GET("/version", s.handlers.Version)

	v2 := s.router.Group("/api/v2")
	{
		v2.POST("/pending-orders", s.handlers.SubmitPending)

		users := v2.Group("/users/:user_id")
		users.GET("/orders", s.handlers.GetUserOrders)
		users.POST("/payments/success", s.handlers.RecordPaymentSuccess)
		users.GET("/checkout/success/:ref", s.handlers.CheckoutSuccess)
	}
}

// Router exposes the configured engine.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	logging.Infof("Starting server on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
