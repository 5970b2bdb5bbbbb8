package roles

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/fatflowers/agentbilling/internal/models"
	"github.com/fatflowers/agentbilling/internal/platform/broker"
	"github.com/fatflowers/agentbilling/pkg/config"
	"github.com/fatflowers/agentbilling/pkg/logctx"
	"github.com/fatflowers/agentbilling/pkg/metrics"
	"github.com/fatflowers/agentbilling/pkg/types"
)

// ChangeLogger records applied role transitions.
type ChangeLogger interface {
	SaveRoleChange(ctx context.Context, entry *models.RoleChangeLog)
}

// Event carries what the reconciler needs from one subscription event.
type Event struct {
	ID                   string
	Type                 types.EventType
	UserID               string
	StripeSubscriptionID string
	Status               types.SubscriptionStatus
	PlanID               string
	Role                 types.Role
}

type Result struct {
	Transition Transition
	// Affected counts rows written by the transition.
	Affected int64
	// Failed is set when the transition was rolled back, including when the error was swallowed.
	Failed bool
}

// RoleChangedMessage is published after a role transition commits.
type RoleChangedMessage struct {
	UserID     string         `json:"user_id"`
	Transition TransitionKind `json:"transition"`
	From       *types.Role    `json:"from,omitempty"`
	To         types.Role     `json:"to"`
	EventID    string         `json:"event_id"`
	ChangedAt  time.Time      `json:"changed_at"`
}

type Reconciler struct {
	store      Store
	ranking    types.Ranking
	propagate  bool
	routingKey string
	changeLog  ChangeLogger
	publisher  broker.Publisher
	metrics    *metrics.Recorder
	log        *zap.SugaredLogger
	now        func() time.Time
}

func NewReconciler(cfg *config.Config, store Store, changeLog ChangeLogger, publisher broker.Publisher, rec *metrics.Recorder, log *zap.SugaredLogger) *Reconciler {
	return &Reconciler{
		store:      store,
		ranking:    cfg.Ranking(),
		propagate:  cfg.Billing.PropagateRoleErrors,
		routingKey: cfg.Broker.RoutingKey,
		changeLog:  changeLog,
		publisher:  publisher,
		metrics:    rec,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Reconcile applies the role transition implied by a created/updated subscription event.
// Role failures are logged and swallowed unless billing.propagate_role_errors is set.
func (r *Reconciler) Reconcile(ctx context.Context, ev Event) (*Result, error) {
	lg := logctx.FromCtx(ctx, r.log).With("event_id", ev.ID, "stripe_subscription_id", ev.StripeSubscriptionID)

	res := &Result{}
	err := r.store.WithUserLock(ctx, ev.UserID, func(tx Tx) error {
		latest, err := tx.LatestRole(ctx, ev.UserID)
		if err != nil {
			return fmt.Errorf("failed to get previous role: %w", err)
		}
		var previous *types.Role
		if latest != nil {
			previous = &latest.Role
		}
		res.Transition = Decide(r.ranking, Input{Status: ev.Status, Previous: previous, Resolved: ev.Role})
		res.Affected, err = r.apply(ctx, tx, ev.UserID, res.Transition)
		return err
	})
	if err != nil {
		res.Failed = true
		res.Affected = 0
		return res, r.fail(lg, ev, res.Transition, err)
	}

	switch res.Transition.Kind {
	case TransitionUnknownRank:
		lg.Warnw("unknown role rank, role left untouched", "from", res.Transition.From, "to", res.Transition.To)
	case TransitionUnhandled:
		lg.Infow("unhandled subscription status", "status", ev.Status)
	default:
		lg.Infow("role reconciled", "transition", res.Transition.Kind, "from", res.Transition.From, "to", res.Transition.To, "affected", res.Affected)
	}
	r.committed(ctx, ev, res)
	return res, nil
}

func (r *Reconciler) apply(ctx context.Context, tx Tx, userID string, t Transition) (int64, error) {
	now := r.now()
	switch t.Kind {
	case TransitionGrant, TransitionUpgrade:
		if err := tx.InsertRole(ctx, userID, t.To, now); err != nil {
			return 0, err
		}
		return 1, nil
	case TransitionDowngrade:
		n, err := tx.DeleteRole(ctx, userID, *t.From)
		if err != nil {
			return 0, err
		}
		if err := tx.UpsertRole(ctx, userID, t.To, now); err != nil {
			return n, err
		}
		return n + 1, nil
	case TransitionRevert:
		return tx.SetAllRoles(ctx, userID, t.To)
	}
	return 0, nil
}

// Cleanup runs after a subscription is deleted: the current row is reset to
// the base role and every non-base row of the user is removed.
func (r *Reconciler) Cleanup(ctx context.Context, ev Event) (*Result, error) {
	lg := logctx.FromCtx(ctx, r.log).With("event_id", ev.ID, "stripe_subscription_id", ev.StripeSubscriptionID)
	base := r.ranking.Base()

	res := &Result{Transition: Transition{Kind: TransitionCleanup, To: base}}
	err := r.store.WithUserLock(ctx, ev.UserID, func(tx Tx) error {
		latest, err := tx.LatestRole(ctx, ev.UserID)
		if err != nil {
			return fmt.Errorf("failed to get latest role: %w", err)
		}
		if latest != nil {
			res.Transition.From = &latest.Role
			if latest.Role != base {
				if err := tx.SetRoleByID(ctx, latest.ID, base); err != nil {
					return err
				}
				res.Affected++
			}
		}
		n, err := tx.DeleteRolesExcept(ctx, ev.UserID, base)
		if err != nil {
			return err
		}
		res.Affected += n
		return nil
	})
	if err != nil {
		res.Failed = true
		res.Affected = 0
		return res, r.fail(lg, ev, res.Transition, err)
	}

	lg.Infow("roles cleaned up after subscription deletion", "from", res.Transition.From, "affected", res.Affected)
	r.committed(ctx, ev, res)
	return res, nil
}

// ListRoles returns the role history of a user, newest first.
func (r *Reconciler) ListRoles(ctx context.Context, userID string) ([]*models.UserRole, error) {
	return r.store.ListRoles(ctx, userID)
}

func (r *Reconciler) fail(lg *zap.SugaredLogger, ev Event, t Transition, err error) error {
	r.metrics.RoleTransition("failed")
	lg.Errorw("role reconciliation failed", "transition", t.Kind, "err", err)
	if r.propagate {
		return fmt.Errorf("role reconciliation for user %s: %w", ev.UserID, err)
	}
	return nil
}

func (r *Reconciler) committed(ctx context.Context, ev Event, res *Result) {
	t := res.Transition
	r.metrics.RoleTransition(string(t.Kind))
	if !t.Kind.Mutates() || res.Affected == 0 {
		return
	}

	if r.changeLog != nil {
		to := t.To
		r.changeLog.SaveRoleChange(ctx, &models.RoleChangeLog{
			UserID:               ev.UserID,
			Transition:           string(t.Kind),
			FromRole:             t.From,
			ToRole:               &to,
			StripeSubscriptionID: ev.StripeSubscriptionID,
			EventID:              ev.ID,
			Extra: datatypes.JSONMap{
				"event_type": string(ev.Type),
				"status":     string(ev.Status),
				"plan_id":    ev.PlanID,
				"affected":   res.Affected,
			},
		})
	}

	if r.publisher != nil {
		msg := RoleChangedMessage{
			UserID:     ev.UserID,
			Transition: t.Kind,
			From:       t.From,
			To:         t.To,
			EventID:    ev.ID,
			ChangedAt:  r.now(),
		}
		if err := r.publisher.Publish(ctx, r.routingKey, msg); err != nil {
			logctx.FromCtx(ctx, r.log).Warnw("failed to publish role change", "user_id", ev.UserID, "err", err)
		}
	}
}
