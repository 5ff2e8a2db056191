package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Abraxas-365/keystone/pkg/config"
	"github.com/Abraxas-365/keystone/pkg/errx"
	"github.com/Abraxas-365/keystone/pkg/kernel"
	"github.com/Abraxas-365/keystone/pkg/logx"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
)

const appVersion = "1.0.0"

func main() {
	// 1. Initialize Logger
	logx.SetDefaultLogger(logx.NewLogger(logx.LoadFromEnv()))
	logx.Info("🚀 Starting Keystone identity server...")

	// 2. Load and validate configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logx.Fatalf("Invalid configuration: %v", err)
	}

	// 3. Initialize Dependency Container
	container := NewContainer(cfg)
	defer container.Cleanup()

	// 4. Create Fiber App
	app := newApp(container)

	// 5. Start Server with Graceful Shutdown
	startServer(app, cfg.Server.Port)
}

// newApp builds the fiber application with every route registered
func newApp(container *Container) *fiber.App {
	cfg := container.Config

	app := fiber.New(fiber.Config{
		AppName:               "Keystone",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(cfg.Server.Debug),
		BodyLimit:             cfg.Server.BodyLimit,
		Immutable:             true,
		IdleTimeout:           120 * time.Second,
	})

	// Global Middleware
	app.Use(recover.New(recover.Config{
		EnableStackTrace: cfg.Server.Debug,
	}))

	app.Use(requestid.New(requestid.Config{
		Header:    fiber.HeaderXRequestID,
		Generator: uuid.NewString,
	}))
	app.Use(requestContext)

	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.CORSOrigins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Access-Token, X-Refresh-Token, X-Request-ID",
		AllowMethods:     "GET, POST, PUT, DELETE, PATCH, HEAD, OPTIONS",
		AllowCredentials: cfg.Server.CORSOrigins != "*",
		ExposeHeaders:    "X-Request-ID, X-Access-Token, X-Refresh-Token",
	}))

	app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} ${path} | ${ip} | ${reqHeader:X-Request-ID}\n",
		TimeFormat: "2006-01-02 15:04:05",
		TimeZone:   "Local",
	}))

	// Health & Info
	app.Get("/health", healthCheckHandler(container))
	app.Get("/", infoHandler)

	// Routes: /auth/*, /organizations/*, /users/*, /recovery/*
	container.IAM.RegisterRoutes(app)
	logx.Info("✓ IAM routes registered")

	app.Use(notFoundHandler)
	printRouteSummary()
	return app
}

// requestContext copies the request id into the user context so services
// log it through logx.WithContext
func requestContext(c *fiber.Ctx) error {
	if rid, ok := c.Locals(requestid.ConfigDefault.ContextKey).(string); ok {
		c.SetUserContext(context.WithValue(c.UserContext(), kernel.RequestIDKey, rid))
	}
	return c.Next()
}

// ============================================================================
// Handler Functions
// ============================================================================

func healthCheckHandler(container *Container) fiber.Handler {
	return func(c *fiber.Ctx) error {
		health := fiber.Map{
			"status":  "healthy",
			"service": "keystone",
			"version": appVersion,
			"store":   container.Config.Store.Mode,
		}

		if container.DB != nil {
			if err := container.DB.PingContext(c.UserContext()); err != nil {
				health["db"] = "unhealthy"
				health["db_error"] = err.Error()
				health["status"] = "degraded"
			} else {
				health["db"] = "healthy"
			}
		}

		if container.Redis != nil {
			if err := container.Redis.Ping(c.UserContext()).Err(); err != nil {
				health["redis"] = "unhealthy"
				health["redis_error"] = err.Error()
				health["status"] = "degraded"
			} else {
				health["redis"] = "healthy"
			}
		}

		status := fiber.StatusOK
		if health["status"] == "degraded" {
			status = fiber.StatusServiceUnavailable
		}
		return c.Status(status).JSON(health)
	}
}

func infoHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"service":     "Keystone",
		"version":     appVersion,
		"description": "Multi-tenant identity and access management",
		"features": []string{
			"Multi-tenant organizations and accounts",
			"JWT access/refresh sessions with counter invalidation",
			"Two-factor authentication",
			"Password recovery",
			"Google sign-in",
		},
		"endpoints": fiber.Map{
			"health": "/health",
		},
	})
}

func notFoundHandler(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(errx.HTTPErrorResponse{
		Error:     "Route not found",
		Code:      "NOT_FOUND",
		Type:      string(errx.TypeNotFound),
		Status:    fiber.StatusNotFound,
		RequestID: c.GetRespHeader(fiber.HeaderXRequestID),
	})
}

// ============================================================================
// Error Handler
// ============================================================================

// errorHandler converts returned errors to JSON responses. With debug set the
// underlying cause of an errx.Error is included.
func errorHandler(debug bool) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		requestID := c.GetRespHeader(fiber.HeaderXRequestID)

		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(errx.HTTPErrorResponse{
				Error:     fe.Message,
				Code:      "FIBER_ERROR",
				Type:      string(errx.TypeValidation),
				Status:    fe.Code,
				RequestID: requestID,
			})
		}

		status, body := errx.Response(err)
		body.RequestID = requestID

		entry := logx.WithContext(c.UserContext()).WithFields(logx.Fields{
			"path":   c.Path(),
			"method": c.Method(),
			"ip":     c.IP(),
			"status": status,
			"code":   body.Code,
		})
		if status >= fiber.StatusInternalServerError {
			entry.WithError(err).Error("request failed")
		} else {
			entry.Debugf("request rejected: %v", err)
		}

		var e *errx.Error
		if debug && errx.As(err, &e) && e.Err != nil {
			details := map[string]any{"underlying_error": e.Err.Error()}
			for k, v := range body.Details {
				details[k] = v
			}
			body.Details = details
		}
		return c.Status(status).JSON(body)
	}
}

// ============================================================================
// Utility Functions
// ============================================================================

func printRouteSummary() {
	logx.Info("📋 Route Summary:")
	logx.Info("   ├─ Auth: /auth/*")
	logx.Info("   ├─ Organizations: /organizations/*")
	logx.Info("   ├─ Users: /users/*")
	logx.Info("   ├─ Recovery: /recovery/*")
	logx.Info("   └─ Health: /health")
}

func startServer(app *fiber.App, port string) {
	go func() {
		logx.Info(strings.Repeat("=", 61))
		logx.Infof("🚀 Server listening on port %s", port)
		logx.Infof("💚 Health Check: http://localhost:%s/health", port)
		logx.Info(strings.Repeat("=", 61))

		if err := app.Listen(":" + port); err != nil {
			logx.Fatalf("Server error: %v", err)
		}
	}()

	gracefulShutdown(app)
}

func gracefulShutdown(app *fiber.App) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	sig := <-sigChan
	logx.Infof("🛑 Received signal: %v", sig)
	logx.Info("Shutting down gracefully...")

	if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
		logx.Errorf("Server forced to shutdown: %v", err)
	}

	logx.Info("✅ Server exited successfully")
}
