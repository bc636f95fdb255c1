// Package main is the entry point for the development stub server. It
// implements the backend contract the client core talks to, in memory,
// so the client can be exercised end to end without infrastructure.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bankr-ai/assistant-client/internal/assistant"
	"github.com/bankr-ai/assistant-client/internal/config"
	"github.com/bankr-ai/assistant-client/internal/handler"
	"github.com/bankr-ai/assistant-client/internal/middleware"
	"github.com/bankr-ai/assistant-client/internal/service"
	"github.com/bankr-ai/assistant-client/pkg/logger"
	"github.com/bankr-ai/assistant-client/pkg/tracing"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting devserver")

	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "bankrai-devserver", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing")
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Pick the assistant backend. An unset provider with an OpenAI key
	// configured still selects the live client.
	provider := assistant.Provider(cfg.AssistantProvider)
	if provider == assistant.ProviderCanned && cfg.OpenAIAPIKey != "" {
		provider = assistant.ProviderOpenAI
	}
	apiKey := cfg.OpenAIAPIKey
	if provider == assistant.ProviderAnthropic {
		apiKey = cfg.AnthropicAPIKey
	}
	responder, err := assistant.NewResponder(provider, apiKey, "")
	if err != nil {
		log.Warn("failed to create assistant responder, using canned replies")
		responder = assistant.Canned{}
	}
	log.Info("assistant responder: " + responder.Name())

	userSvc := service.NewUserService(log)
	chatSvc := service.NewChatService(userSvc, responder, log)

	healthHandler := handler.NewHealthHandler()
	authHandler := handler.NewAuthHandler(userSvc, cfg.JWTSecret, cfg.JWTExpiration, log)
	userHandler := handler.NewUserHandler(userSvc, log)
	chatHandler := handler.NewChatHandler(chatSvc, log)
	billingHandler := handler.NewBillingHandler(userSvc,
		"https://checkout.stripe.example/session",
		"https://billing.stripe.example/portal", log)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-App-Name", "X-App-Version"},
		ExposedHeaders:   []string{"X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/signup", authHandler.Signup)
		r.Post("/auth/login", authHandler.Login)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWTSecret))
			r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

			r.Post("/auth/logout", authHandler.Logout)
			r.Get("/users/me", userHandler.Me)
			r.Patch("/users/me", userHandler.Update)
			r.Post("/users/{id}/sync-iap-subscription", userHandler.SyncIAPSubscription)

			r.Route("/chats", func(r chi.Router) {
				r.Get("/", chatHandler.List)
				r.Post("/", chatHandler.Create)
				r.Delete("/{id}", chatHandler.Delete)
				r.Post("/{id}/messages", chatHandler.SendMessage)
			})

			r.Post("/stripe/create-checkout-session", billingHandler.CreateCheckoutSession)
			r.Get("/stripe/subscription", billingHandler.GetSubscription)
			r.Post("/stripe/create-portal-session", billingHandler.CreatePortalSession)
			r.Post("/stripe/cancel-subscription", billingHandler.CancelSubscription)
			r.Get("/plaid/fetch", billingHandler.FetchBankData)
			r.Delete("/plaid/disconnect", billingHandler.DisconnectBank)
		})
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("server listening on :" + cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error: " + err.Error())
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown: " + err.Error())
	}

	log.Info("server stopped")
}
