package service

import (
	"context"
	"errors"
	"strings"
	"time"

	metricdomain "github.com/datavista/metrica/internal/metric/domain"
	"github.com/datavista/metrica/internal/orgcontext"
	usagedomain "github.com/datavista/metrica/internal/usage/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func (s *Service) Publish(ctx context.Context, id string) (*metricdomain.Response, error) {
	return s.transition(ctx, id, "publish", metricdomain.StatusPublished)
}

func (s *Service) Archive(ctx context.Context, id string) (*metricdomain.Response, error) {
	return s.transition(ctx, id, "archive", metricdomain.StatusArchived)
}

func (s *Service) transition(ctx context.Context, id, op string, next metricdomain.Status) (*metricdomain.Response, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, metricdomain.ErrInvalidOrganization
	}

	metricID, err := metricdomain.ParseID(strings.TrimSpace(id))
	if err != nil || metricID == 0 {
		return nil, metricdomain.ErrInvalidID
	}

	item, err := s.repo.FindByID(ctx, s.db, orgID, metricID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, metricdomain.ErrNotFound
	}
	if !item.Status.CanTransition(next) {
		return nil, &metricdomain.StateError{Op: op, Status: item.Status}
	}

	// Publishing re-checks the expression so a definition drafted against
	// an earlier validator version cannot go live invalid.
	if next == metricdomain.StatusPublished {
		if err := s.validator.Validate(ctx, item.Expression, item.SourceID); err != nil {
			return nil, err
		}
	}

	prior := item.Status
	item.Status = next
	item.UpdatedBy = s.actor(ctx)
	item.UpdatedAt = time.Now().UTC()

	changed, err := s.repo.UpdateStatus(ctx, s.db, orgID, item.ID, prior, next, item.UpdatedBy)
	if err != nil {
		return nil, err
	}
	if !changed {
		// A concurrent transition won the race; report the status the row
		// holds now instead of overwriting it.
		current, err := s.repo.FindByID(ctx, s.db, orgID, metricID)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, metricdomain.ErrNotFound
		}
		return nil, &metricdomain.StateError{Op: op, Status: current.Status}
	}

	s.metrics.RecordLifecycleChange(ctx, string(next))
	s.audit(ctx, "metric."+op, item)

	s.log.Info("metric lifecycle change",
		zap.String("metric_id", item.ID.String()),
		zap.String("status", string(next)),
	)

	return s.toResponse(item), nil
}

func (s *Service) Delete(ctx context.Context, id string, force bool) error {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return metricdomain.ErrInvalidOrganization
	}

	metricID, err := metricdomain.ParseID(strings.TrimSpace(id))
	if err != nil || metricID == 0 {
		return metricdomain.ErrInvalidID
	}

	var deleted *metricdomain.MetricDefinition
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := s.repo.FindByID(ctx, tx, orgID, metricID)
		if err != nil {
			return err
		}
		if item == nil {
			return metricdomain.ErrNotFound
		}

		count, err := s.usageRepo.CountByMetric(ctx, tx, metricID)
		if err != nil {
			return err
		}
		if count > 0 {
			if !force {
				return &usagedomain.InUseError{MetricID: metricID, UsageCount: count}
			}
			if err := s.usageRepo.DeleteByMetric(ctx, tx, metricID); err != nil {
				return err
			}
		}

		if err := s.repo.Delete(ctx, tx, orgID, metricID); err != nil {
			return err
		}
		deleted = item
		return nil
	})
	if err != nil {
		var inUse *usagedomain.InUseError
		if errors.As(err, &inUse) {
			s.metrics.RecordDeletionBlocked(ctx, "in_use")
		}
		return err
	}

	s.audit(ctx, "metric.delete", deleted)
	s.log.Info("metric deleted",
		zap.String("metric_id", metricID.String()),
		zap.Bool("force", force),
	)
	return nil
}

func (s *Service) audit(ctx context.Context, action string, item *metricdomain.MetricDefinition) {
	if s.auditSvc == nil || item == nil {
		return
	}
	targetID := item.ID.String()
	_ = s.auditSvc.AuditLog(ctx, action, "metric", &targetID, map[string]any{
		"code":   item.Code,
		"status": string(item.Status),
	})
}
