// cmd/container.go
//
// Root composition root. Owns infrastructure (DB, Redis, mail) and composes
// bounded-context containers. This is the only place that knows about ALL modules.
package main

import (
	"context"

	"github.com/Abraxas-365/keystone/pkg/config"
	"github.com/Abraxas-365/keystone/pkg/iam/iamcontainer"
	"github.com/Abraxas-365/keystone/pkg/logx"
	"github.com/Abraxas-365/keystone/pkg/notifx"
	"github.com/Abraxas-365/keystone/pkg/notifx/notifxconsole"
	"github.com/Abraxas-365/keystone/pkg/notifx/notifxses"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

// Container holds shared infrastructure and composed module containers.
type Container struct {
	Config *config.Config

	// Infrastructure (shared across all modules)
	DB    *sqlx.DB
	Redis *redis.Client
	Mail  *notifx.Client

	// Bounded-context containers
	IAM *iamcontainer.Container
}

func NewContainer(cfg *config.Config) *Container {
	logx.Info("🔧 Initializing application container...")

	c := &Container{Config: cfg}

	c.initInfrastructure()
	c.initMail()
	c.initModules()

	logx.Info("✅ Application container initialized")
	return c
}

// ---------------------------------------------------------------------------
// Infrastructure: DB and Redis, each only when a module is configured to use it
// ---------------------------------------------------------------------------

func (c *Container) initInfrastructure() {
	logx.Info("🏗️ Initializing infrastructure...")

	// 1. Database
	if c.Config.Store.Mode == "postgres" {
		db, err := sqlx.Connect("postgres", c.Config.Database.DSN())
		if err != nil {
			logx.Fatalf("Failed to connect to database: %v", err)
		}
		db.SetMaxOpenConns(c.Config.Database.MaxOpenConns)
		db.SetMaxIdleConns(c.Config.Database.MaxIdleConns)
		db.SetConnMaxLifetime(c.Config.Database.ConnMaxLifetime)
		c.DB = db
		logx.Info("  ✅ Database connected")
	}

	// 2. Redis
	if c.Config.Recovery.Mode == "redis" {
		c.Redis = redis.NewClient(&redis.Options{
			Addr:     c.Config.Redis.Address(),
			Password: c.Config.Redis.Password,
			DB:       c.Config.Redis.DB,
		})
		if _, err := c.Redis.Ping(context.Background()).Result(); err != nil {
			logx.Fatalf("Failed to connect to Redis: %v (RECOVERY_MODE=redis)", err)
		}
		logx.Info("  ✅ Redis connected")
	}

	logx.Info("✅ Infrastructure initialized")
}

func (c *Container) initMail() {
	n := c.Config.Notifx

	var provider notifx.EmailSender
	switch n.Provider {
	case "ses":
		cfg, err := awsConfig.LoadDefaultConfig(context.Background(), awsConfig.WithRegion(n.AWSRegion))
		if err != nil {
			logx.Fatalf("Unable to load AWS SDK config: %v", err)
		}
		provider = notifxses.NewSESProvider(ses.NewFromConfig(cfg), n.From())
		logx.Infof("  ✅ SES mail configured (region: %s)", n.AWSRegion)

	case "console":
		provider = notifxconsole.NewConsoleProvider()
		logx.Warn("  ⚠️  Mail is printed to the log (NOTIFX_PROVIDER=console)")

	default:
		logx.Fatalf("Unknown NOTIFX_PROVIDER: %s (use 'console' or 'ses')", n.Provider)
	}

	var defaults []notifx.Option
	if n.ConfigurationSet != "" {
		defaults = append(defaults, notifx.WithConfigID(n.ConfigurationSet))
	}
	if len(n.Tags) > 0 {
		defaults = append(defaults, notifx.WithTags(n.Tags))
	}
	c.Mail = notifx.NewClient(provider, n.From()).WithDefaults(defaults...)
}

// ---------------------------------------------------------------------------
// Module composition: each bounded context wires itself
// ---------------------------------------------------------------------------

func (c *Container) initModules() {
	logx.Info("📦 Initializing modules...")
	ctx := context.Background()

	deps := iamcontainer.Deps{
		DB:   c.DB,
		Cfg:  c.Config,
		Mail: c.Mail,
	}
	// a nil *redis.Client must stay a nil Cmdable
	if c.Redis != nil {
		deps.Redis = c.Redis
	}

	iamContainer, err := iamcontainer.New(ctx, deps)
	if err != nil {
		logx.Fatalf("Failed to initialize IAM: %v", err)
	}
	if err := iamContainer.Seed(ctx); err != nil {
		logx.Fatalf("Failed to seed IAM defaults: %v", err)
	}
	c.IAM = iamContainer
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

func (c *Container) Cleanup() {
	logx.Info("🧹 Cleaning up resources...")

	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			logx.Errorf("Error closing database: %v", err)
		} else {
			logx.Info("  ✅ Database connection closed")
		}
	}

	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			logx.Errorf("Error closing Redis: %v", err)
		} else {
			logx.Info("  ✅ Redis connection closed")
		}
	}

	logx.Info("✅ Cleanup complete")
}
