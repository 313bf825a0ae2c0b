// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"
	"time"

	groupsfeature "github.com/musterapp/muster/internal/app/features/groups"
	healthfeature "github.com/musterapp/muster/internal/app/features/health"
	loginfeature "github.com/musterapp/muster/internal/app/features/login"
	sessionfeature "github.com/musterapp/muster/internal/app/features/session"
	"github.com/musterapp/muster/internal/app/groupops"
	"github.com/musterapp/muster/internal/app/membership"
	groupstore "github.com/musterapp/muster/internal/app/store/groups"
	locationstore "github.com/musterapp/muster/internal/app/store/locations"
	lockstore "github.com/musterapp/muster/internal/app/store/locks"
	"github.com/musterapp/muster/internal/app/store/prefs"
	userstore "github.com/musterapp/muster/internal/app/store/users"
	"github.com/musterapp/muster/internal/app/system/auth"
	"github.com/musterapp/muster/internal/app/system/ratelimit"

	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this
// WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup,
// and any Startup hooks have completed. Muster wires the stores, the
// membership reconciler, and the group-operations service, then mounts
// the feature routers: auth, session resolution, groups, and health.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	tokens, err := auth.NewTokenManager(appCfg.TokenSecret, appCfg.TokenTTL)
	if err != nil {
		logger.Error("token manager init failed", zap.Error(err))
		return nil, err
	}

	db := deps.MongoDatabase
	users := userstore.New(db)
	groups := groupstore.New(db)
	locations := locationstore.New(db)
	locks := lockstore.New(db)

	var pstore prefs.Store
	if deps.Redis != nil {
		pstore = prefs.NewRedis(deps.Redis)
	} else {
		pstore = prefs.NewMemory()
	}

	hub := membership.NewHub()
	reconciler := membership.New(users, groups, pstore, hub, logger)
	ops := groupops.New(groups, users, locations, pstore, locks, hub, logger,
		groupops.WithLockTTL(appCfg.LockTTL))

	r := chi.NewRouter()

	// Global auth middleware: loads the token's user into context.
	// This makes the current user available to all handlers via
	// auth.CurrentUser(r).
	r.Use(tokens.LoadSessionUser)

	// Health check endpoint for load balancers and orchestrators
	healthHandler := healthfeature.NewHandler(deps.MongoClient, deps.Redis, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))

	r.Handle("/metrics", promhttp.Handler())

	// Authentication and onboarding
	loginLimiter := ratelimit.New(10, time.Minute)
	loginHandler := loginfeature.NewHandler(users, tokens, loginLimiter, logger)
	r.Mount("/auth", loginfeature.Routes(loginHandler, loginLimiter))

	// Group resolution
	sessionHandler := sessionfeature.NewHandler(reconciler, hub, logger)
	r.Mount("/session", sessionfeature.Routes(sessionHandler))

	// Group lifecycle
	groupsHandler := groupsfeature.NewHandler(ops, groups, locations, logger)
	r.Mount("/groups", groupsfeature.Routes(groupsHandler))

	return r, nil
}
