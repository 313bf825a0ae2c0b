// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"

	groupstore "github.com/musterapp/muster/internal/app/store/groups"

	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Startup runs one-time application initialization after DB connections
// and schema setup are complete, but before the HTTP handler is built.
//
// The singleton role-class groups are provisioned lazily on first use,
// so this pre-provisioning is not required for correctness; doing it
// here just keeps the first volunteer's sign-in off the provisioning
// path.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	groups := groupstore.New(deps.MongoDatabase)
	for _, roleClass := range []string{"volunteers", "organizers"} {
		if _, err := groups.EnsureSpecial(ctx, roleClass); err != nil {
			return err
		}
	}
	logger.Info("special groups provisioned")
	return nil
}
