package iamcontainer

import (
	"context"
	"fmt"

	"github.com/Abraxas-365/keystone/pkg/config"
	"github.com/Abraxas-365/keystone/pkg/iam/auth"
	"github.com/Abraxas-365/keystone/pkg/iam/auth/authinfra"
	"github.com/Abraxas-365/keystone/pkg/iam/credential"
	"github.com/Abraxas-365/keystone/pkg/iam/organization"
	"github.com/Abraxas-365/keystone/pkg/iam/organization/organizationapi"
	"github.com/Abraxas-365/keystone/pkg/iam/organization/organizationinfra"
	"github.com/Abraxas-365/keystone/pkg/iam/organization/organizationsrv"
	"github.com/Abraxas-365/keystone/pkg/iam/recovery"
	"github.com/Abraxas-365/keystone/pkg/iam/recovery/recoveryinfra"
	"github.com/Abraxas-365/keystone/pkg/iam/role"
	"github.com/Abraxas-365/keystone/pkg/iam/user"
	"github.com/Abraxas-365/keystone/pkg/iam/user/userinfra"
	"github.com/Abraxas-365/keystone/pkg/kernel"
	"github.com/Abraxas-365/keystone/pkg/logx"
	"github.com/Abraxas-365/keystone/pkg/notifx"
	"github.com/gofiber/fiber/v2"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

// ---------------------------------------------------------------------------
// Deps: explicit external dependencies this bounded context requires.
// ---------------------------------------------------------------------------

type Deps struct {
	// DB is required when Cfg.Store.Mode is "postgres"
	DB *sqlx.DB
	// Redis is required when Cfg.Recovery.Mode is "redis"
	Redis redis.Cmdable
	Cfg   *config.Config

	// Mail delivers recovery and welcome messages. The IAM module only sees
	// it through the narrow Mailer ports of recovery and organizationsrv.
	Mail *notifx.Client
}

// ---------------------------------------------------------------------------
// Container: the public surface of the IAM module.
// ---------------------------------------------------------------------------

type Container struct {
	Roles *role.Registry

	Users         user.Repository
	Organizations organization.Repository

	Authenticator       *auth.Authenticator
	OrganizationService *organizationsrv.Service
	RecoveryService     *recovery.Service

	AuthHandlers         *auth.Handlers
	OrganizationHandlers *organizationapi.Handlers
	RecoveryHandlers     *recovery.Handlers

	Middleware *auth.TokenMiddleware
	Throttle   *auth.Throttle

	bootstrap organizationsrv.Bootstrap
}

// ---------------------------------------------------------------------------
// New: constructs the entire IAM dependency graph.
// Order matters: repos → services → handlers → middleware.
// ---------------------------------------------------------------------------

func New(ctx context.Context, deps Deps) (*Container, error) {
	logx.Info("🔧 Initializing IAM container...")

	cfg := deps.Cfg
	if deps.Mail == nil {
		return nil, fmt.Errorf("iam: a mail client is required")
	}
	c := &Container{}

	// ── Repositories ─────────────────────────────────────────────────────

	if err := c.initRepositories(ctx, deps); err != nil {
		return nil, err
	}

	recoveryStore, err := newRecoveryStore(deps)
	if err != nil {
		return nil, err
	}

	// ── Domain services ──────────────────────────────────────────────────

	c.Roles = role.Default()
	if len(cfg.Auth.Roles) > 0 {
		c.Roles = c.Roles.Merge(role.NewRegistry(cfg.Auth.Roles))
		logx.Infof("  ✅ Role registry extended: %v", c.Roles.Names())
	}

	verifier := credential.NewVerifier(cfg.Auth.BcryptCost)
	tokens := auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL, cfg.Auth.Issuer)
	audit := authinfra.NewLogxAuditService()

	authOpts := []auth.Option{auth.WithAudit(audit)}
	if cfg.OAuth.Google.Enabled {
		authOpts = append(authOpts, auth.WithExternalVerifier(
			authinfra.NewGoogleVerifier(cfg.OAuth.Google.ClientID, cfg.OAuth.Google.ClientSecret),
		))
		logx.Info("  ✅ Google OAuth enabled")
	}
	c.Authenticator = auth.NewAuthenticator(c.Users, tokens, c.Roles, authOpts...)

	c.OrganizationService = organizationsrv.NewService(c.Organizations, c.Users, c.Roles, verifier,
		organizationsrv.WithAudit(audit),
		organizationsrv.WithMailer(deps.Mail),
		organizationsrv.WithTfaIssuer(cfg.Auth.TfaIssuer),
	)
	c.RecoveryService = recovery.NewService(c.Users, recoveryStore, deps.Mail, verifier, cfg.Recovery.LinkBase, cfg.Recovery.TTL)

	// ── Middleware ────────────────────────────────────────────────────────

	c.Middleware = auth.NewTokenMiddleware(c.Authenticator, auth.CookieConfig{
		Domain: cfg.Auth.CookieDomain,
		Secure: cfg.Auth.CookieSecure,
	})
	c.Throttle = auth.NewThrottle(cfg.Auth.ThrottleDelay)

	// ── Handlers ─────────────────────────────────────────────────────────

	c.AuthHandlers = auth.NewHandlers(c.Authenticator, c.Middleware, c.Throttle)
	c.OrganizationHandlers = organizationapi.NewHandlers(c.OrganizationService, c.Authenticator, c.Middleware)
	c.RecoveryHandlers = recovery.NewHandlers(c.RecoveryService)

	c.bootstrap = bootstrapFrom(cfg.Bootstrap)

	logx.Info("✅ IAM container initialized")
	return c, nil
}

func (c *Container) initRepositories(ctx context.Context, deps Deps) error {
	switch deps.Cfg.Store.Mode {
	case "postgres":
		if deps.DB == nil {
			return fmt.Errorf("iam: postgres store requires a database")
		}
		users, err := userinfra.NewPostgresRepository(ctx, deps.DB)
		if err != nil {
			return fmt.Errorf("iam: user store: %w", err)
		}
		orgs, err := organizationinfra.NewPostgresRepository(ctx, deps.DB)
		if err != nil {
			return fmt.Errorf("iam: organization store: %w", err)
		}
		c.Users, c.Organizations = users, orgs
		logx.Info("  ✅ Using postgres record store")
	default:
		c.Users = userinfra.NewMemoryRepository()
		c.Organizations = organizationinfra.NewMemoryRepository()
		logx.Warn("  ⚠️  Using in-memory record store (data is lost on restart)")
	}
	return nil
}

func newRecoveryStore(deps Deps) (recovery.Store, error) {
	if deps.Cfg.Recovery.Mode == "redis" {
		if deps.Redis == nil {
			return nil, fmt.Errorf("iam: redis recovery store requires a redis client")
		}
		logx.Info("  ✅ Using Redis recovery token store")
		return recoveryinfra.NewRedisStore(deps.Redis), nil
	}
	logx.Warn("  ⚠️  Using in-memory recovery token store (not shared across instances)")
	return recoveryinfra.NewMemoryStore(), nil
}

func bootstrapFrom(cfg config.BootstrapConfig) organizationsrv.Bootstrap {
	b := organizationsrv.Bootstrap{
		OrganizationID:          kernel.OrganizationID(cfg.OrganizationID),
		OrganizationName:        cfg.OrganizationName,
		OrganizationDescription: cfg.Description,
		AdminEmail:              cfg.AdminEmail,
		AdminPassword:           cfg.AdminPassword,
		AdminFirstName:          cfg.AdminFirstName,
		AdminLastName:           cfg.AdminLastName,
		ReadOnly:                cfg.ReadOnly,
	}
	if len(cfg.AdminRoles) > 0 {
		b.AdminRoles = make(map[kernel.OrganizationID]string, len(cfg.AdminRoles))
		for org, name := range cfg.AdminRoles {
			b.AdminRoles[kernel.OrganizationID(org)] = name
		}
	}
	return b
}

// Seed creates the configured default organization and system admin. The
// admin is skipped when no admin email is configured.
func (c *Container) Seed(ctx context.Context) error {
	if c.bootstrap.AdminEmail == "" {
		logx.Warn("  ⚠️  BOOTSTRAP_ADMIN_EMAIL not set, no system admin will be seeded")
	}
	if err := c.OrganizationService.Seed(ctx, c.bootstrap); err != nil {
		return err
	}
	logx.WithField("organization_id", c.bootstrap.OrganizationID).Info("  ✅ Bootstrap data seeded")
	return nil
}

// RegisterRoutes mounts every IAM route on router
func (c *Container) RegisterRoutes(router fiber.Router) {
	c.AuthHandlers.RegisterRoutes(router)
	c.OrganizationHandlers.RegisterRoutes(router)
	c.RecoveryHandlers.RegisterRoutes(router, c.Throttle.Middleware(recoveryKey))
}

func recoveryKey(c *fiber.Ctx) string {
	var body struct {
		Email string `json:"email"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.IP()
	}
	return "recovery:" + user.NormalizeEmail(body.Email)
}
