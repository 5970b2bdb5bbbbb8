package app

import (
	"time"

	"go.uber.org/fx"

	"github.com/fatflowers/agentbilling/internal/app/api/server"
	auditlog "github.com/fatflowers/agentbilling/internal/app/service/audit_log"
	"github.com/fatflowers/agentbilling/internal/app/service/catalog"
	"github.com/fatflowers/agentbilling/internal/app/service/roles"
	"github.com/fatflowers/agentbilling/internal/app/service/statistics"
	"github.com/fatflowers/agentbilling/internal/app/service/subscription"
	webhookhandler "github.com/fatflowers/agentbilling/internal/app/service/webhook_handler"
	"github.com/fatflowers/agentbilling/internal/platform/broker"
	"github.com/fatflowers/agentbilling/internal/platform/cache"
	"github.com/fatflowers/agentbilling/internal/platform/db"
	"github.com/fatflowers/agentbilling/internal/platform/stripeclient"
	"github.com/fatflowers/agentbilling/pkg/config"
	"github.com/fatflowers/agentbilling/pkg/logger"
	"github.com/fatflowers/agentbilling/pkg/metrics"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

var Module = fx.Options(
	logger.Module,
	config.Module,
	metrics.Module,
	db.Module,
	cache.Module,
	broker.Module,
	stripeclient.Module,
	server.Module,
	auditlog.Module,
	catalog.Module,
	roles.Module,
	subscription.Module,
	statistics.Module,
	webhookhandler.Module,
)
