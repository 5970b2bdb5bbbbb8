package webhook_handler

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	auditlog "github.com/fatflowers/agentbilling/internal/app/service/audit_log"
	"github.com/fatflowers/agentbilling/internal/app/service/catalog"
	"github.com/fatflowers/agentbilling/internal/app/service/roles"
	"github.com/fatflowers/agentbilling/internal/app/service/subscription"
	"github.com/fatflowers/agentbilling/internal/platform/stripeclient"
	"github.com/fatflowers/agentbilling/pkg/config"
	"github.com/fatflowers/agentbilling/pkg/metrics"
)

func newHandler(cfg *config.Config, sc *stripeclient.Client, plans *catalog.Service, subs *subscription.Service, reconciler *roles.Reconciler, audit *auditlog.Service, rec *metrics.Recorder, log *zap.SugaredLogger) *Handler {
	return New(cfg, sc, plans, subs, reconciler, audit, rec, log)
}

// Module exposes the Stripe webhook handler via Fx.
var Module = fx.Options(
	fx.Provide(newHandler),
)
