package audit_log

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fatflowers/agentbilling/internal/models"
	"github.com/fatflowers/agentbilling/pkg/logctx"
	"github.com/fatflowers/agentbilling/pkg/tool"
)

type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func New(db *gorm.DB, log *zap.SugaredLogger) *Service { return &Service{db: db, log: log} }

// SaveWebhookEvent asynchronously persists a webhook event log. Nil input is ignored.
func (s *Service) SaveWebhookEvent(ctx context.Context, entry *models.WebhookEventLog) {
	if entry == nil {
		return
	}
	if entry.ID == "" {
		entry.ID = tool.GenerateUUIDV7()
	}
	go s.save(ctx, entry, "webhook event log")
}

// SaveRoleChange asynchronously persists a role change log. Nil input is ignored.
func (s *Service) SaveRoleChange(ctx context.Context, entry *models.RoleChangeLog) {
	if entry == nil {
		return
	}
	if entry.ID == "" {
		entry.ID = tool.GenerateUUIDV7()
	}
	go s.save(ctx, entry, "role change log")
}

func (s *Service) save(ctx context.Context, entry any, what string) {
	// outlives the request context
	if err := s.db.WithContext(context.WithoutCancel(ctx)).Create(entry).Error; err != nil {
		logctx.FromCtx(ctx, s.log).Errorf("failed to save %s: %v", what, err)
	}
}

var Module = fx.Options(
	fx.Provide(New),
)
