package roles

import (
	"go.uber.org/fx"

	auditlog "github.com/fatflowers/agentbilling/internal/app/service/audit_log"
)

func newChangeLogger(s *auditlog.Service) ChangeLogger { return s }

// Module exposes the role reconciler via Fx.
var Module = fx.Options(
	fx.Provide(NewGormStore, newChangeLogger, NewReconciler),
)
