package provisioner

import (
	"github.com/smallbiznis/controlplane/internal/observability/metrics"
	"github.com/smallbiznis/controlplane/internal/ratelimit"
	"github.com/smallbiznis/controlplane/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Metrics *metrics.Metrics `optional:"true"`
	Locker  *ratelimit.Locker `optional:"true"`
}

// New picks the strategy the catalog database supports.
func New(p Params) Provisioner {
	if db.IsPostgres(p.DB) {
		return NewSchemaProvisioner(p.DB, p.Log, p.Metrics, p.Locker)
	}
	return NewMembershipProvisioner(p.DB, p.Log, p.Metrics, p.Locker)
}

var Module = fx.Module("provisioner",
	fx.Provide(New),
)
