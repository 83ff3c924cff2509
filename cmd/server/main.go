package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/pabfc/membership-payments/docs"
	"github.com/pabfc/membership-payments/internal/audit"
	"github.com/pabfc/membership-payments/internal/config"
	"github.com/pabfc/membership-payments/internal/database"
	"github.com/pabfc/membership-payments/internal/handlers"
	mW "github.com/pabfc/membership-payments/internal/middleware"
	"github.com/pabfc/membership-payments/internal/mpesa"
	"github.com/pabfc/membership-payments/internal/services"
	"github.com/pabfc/membership-payments/internal/settlement"
	"github.com/pabfc/membership-payments/internal/store"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.temporal.io/sdk/client"
)

// @title PABFC Membership Payments API
// @version 1.0
// @description M-Pesa STK push payments for gym memberships
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	docs.SwaggerInfo.Host = "localhost:" + cfg.Port

	db := database.InitDatabase(cfg.Database)
	defer db.Close()

	redisClient := database.InitRedis(cfg.Redis)
	if redisClient != nil {
		defer redisClient.Close()
	}

	gateway, err := mpesa.NewClient(mpesa.Config{
		BaseURL:        cfg.Mpesa.BaseURL,
		ConsumerKey:    cfg.Mpesa.ConsumerKey,
		ConsumerSecret: cfg.Mpesa.ConsumerSecret,
		ShortCode:      cfg.Mpesa.ShortCode,
		PassKey:        cfg.Mpesa.PassKey,
		CallbackURL:    cfg.Mpesa.CallbackURL(),
		HTTPClient:     &http.Client{Timeout: cfg.Mpesa.Timeout},
	}, mpesa.NewTokenCache(redisClient))
	if err != nil {
		log.Fatalf("Failed to initialize M-Pesa client: %v", err)
	}

	// Lazy: callbacks must be accepted while Temporal is down.
	temporalClient, err := client.NewLazyClient(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		log.Fatalf("Failed to create Temporal client: %v", err)
	}
	defer temporalClient.Close()

	auditLogger := audit.NewAuditLogger()
	paymentStore := store.NewPaymentStore(db)
	trigger := settlement.NewTrigger(temporalClient, cfg.Temporal.TaskQueue)

	paymentService := services.NewPaymentService(paymentStore, store.NewPlanStore(db), store.NewSettingsStore(db), gateway, auditLogger)
	callbackService := services.NewCallbackService(paymentStore, gateway, trigger, cfg.Mpesa.VerifyCallbacks, auditLogger)

	paymentHandler := handlers.NewPaymentHandler(paymentService)
	callbackHandler := handlers.NewCallbackHandler(callbackService)
	authenticator := mW.NewAuthenticator(cfg.JWT.SecretKey, redisClient)

	r := chi.NewRouter()

	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	r.Route("/api/v1", func(r chi.Router) {
		// Called by Safaricom
		r.Post("/payments/mpesa/callback", callbackHandler.MpesaCallback)

		r.Group(func(r chi.Router) {
			r.Use(authenticator.Middleware)

			r.Post("/payments/stk-push", paymentHandler.InitiateSTKPush)
			r.Get("/payments/stk-push/{checkoutRequestId}/status", paymentHandler.GetSTKPushStatus)
		})
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
