package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	metricdomain "github.com/datavista/metrica/internal/metric/domain"
	obsmetrics "github.com/datavista/metrica/internal/observability/metrics"
	"github.com/datavista/metrica/internal/orgcontext"
	usagedomain "github.com/datavista/metrica/internal/usage/domain"
	"github.com/datavista/metrica/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       usagedomain.Repository
	MetricRepo metricdomain.Repository
	Metrics    *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       usagedomain.Repository
	metricRepo metricdomain.Repository
	metrics    *obsmetrics.Metrics
}

func New(p Params) usagedomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("usage.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		metricRepo: p.MetricRepo,
		metrics:    p.Metrics,
	}
}

func (s *Service) Record(ctx context.Context, req usagedomain.RecordRequest) (*usagedomain.Response, bool, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, false, usagedomain.ErrInvalidOrganization
	}

	metricID, err := usagedomain.ParseID(strings.TrimSpace(req.MetricID))
	if err != nil || metricID == 0 {
		return nil, false, usagedomain.ErrInvalidMetric
	}

	resourceType, ok := usagedomain.ParseResourceType(req.ResourceType)
	if !ok {
		return nil, false, usagedomain.ErrInvalidResourceType
	}

	resourceID := strings.TrimSpace(req.ResourceID)
	if resourceID == "" {
		return nil, false, usagedomain.ErrInvalidResourceID
	}

	resourceName := strings.TrimSpace(req.ResourceName)
	if resourceName == "" {
		return nil, false, usagedomain.ErrInvalidResourceName
	}

	actor, _ := orgcontext.ActorFromContext(ctx)
	usage := &usagedomain.MetricUsage{
		ID:           s.genID.Generate(),
		MetricID:     metricID,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		ResourceName: resourceName,
		OrgID:        orgID,
		CreatedBy:    actor,
		CreatedAt:    time.Now().UTC(),
	}

	var inserted bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := s.metricRepo.FindByID(ctx, tx, orgID, metricID)
		if err != nil {
			return err
		}
		if item == nil {
			return usagedomain.ErrInvalidMetric
		}
		// Only published definitions acquire consumers. The check lives in
		// the same transaction as the insert so a definition archived after
		// the caller looked at it cannot gain a usage row.
		if item.Status != metricdomain.StatusPublished {
			return &metricdomain.StateError{Op: "bind", Status: item.Status}
		}

		inserted, err = s.repo.Insert(ctx, tx, usage)
		if err != nil {
			return err
		}
		if !inserted {
			// Repeated bind: hand back the row that already holds the key.
			existing, err := s.repo.Find(ctx, tx, metricID, resourceType, resourceID)
			if err != nil {
				return err
			}
			if existing != nil {
				usage = existing
			}
			return nil
		}
		return s.repo.AdjustUsageCount(ctx, tx, metricID, 1)
	})
	if err != nil {
		return nil, false, err
	}

	if inserted {
		s.metrics.RecordBinding(ctx, string(resourceType))
	}

	return s.toResponse(usage), inserted, nil
}

func (s *Service) Remove(ctx context.Context, req usagedomain.RemoveRequest) error {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return usagedomain.ErrInvalidOrganization
	}

	metricID, err := usagedomain.ParseID(strings.TrimSpace(req.MetricID))
	if err != nil || metricID == 0 {
		return usagedomain.ErrInvalidMetric
	}

	resourceType, ok := usagedomain.ParseResourceType(req.ResourceType)
	if !ok {
		return usagedomain.ErrInvalidResourceType
	}

	resourceID := strings.TrimSpace(req.ResourceID)
	if resourceID == "" {
		return usagedomain.ErrInvalidResourceID
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		removed, err := s.repo.Delete(ctx, tx, metricID, resourceType, resourceID)
		if err != nil {
			return err
		}
		if !removed {
			// Unbinding an absent row is a no-op, same as a repeated bind.
			return nil
		}
		return s.repo.AdjustUsageCount(ctx, tx, metricID, -1)
	})
}

func (s *Service) List(ctx context.Context, req usagedomain.ListRequest) (usagedomain.ListResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return usagedomain.ListResponse{}, usagedomain.ErrInvalidOrganization
	}

	metricID, err := usagedomain.ParseID(strings.TrimSpace(req.MetricID))
	if err != nil || metricID == 0 {
		return usagedomain.ListResponse{}, usagedomain.ErrInvalidMetric
	}

	page := req.Pagination.Normalize()
	items, total, err := s.repo.List(ctx, s.db, orgID, metricID, page)
	if err != nil {
		return usagedomain.ListResponse{}, err
	}

	usages := make([]usagedomain.Response, 0, len(items))
	for i := range items {
		usages = append(usages, *s.toResponse(&items[i]))
	}

	return usagedomain.ListResponse{
		PageInfo: pagination.BuildPageInfo(page, total),
		Usages:   usages,
	}, nil
}

func (s *Service) GuardDeletion(ctx context.Context, metricID string, force bool) error {
	id, err := usagedomain.ParseID(strings.TrimSpace(metricID))
	if err != nil || id == 0 {
		return usagedomain.ErrInvalidMetric
	}

	count, err := s.repo.CountByMetric(ctx, s.db, id)
	if err != nil {
		return err
	}
	if count > 0 && !force {
		return &usagedomain.InUseError{MetricID: id, UsageCount: count}
	}
	return nil
}

func (s *Service) toResponse(u *usagedomain.MetricUsage) *usagedomain.Response {
	return &usagedomain.Response{
		ID:             u.ID.String(),
		MetricID:       u.MetricID.String(),
		ResourceType:   string(u.ResourceType),
		ResourceID:     u.ResourceID,
		ResourceName:   u.ResourceName,
		OrganizationID: u.OrgID.String(),
		CreatedBy:      u.CreatedBy,
		CreatedAt:      u.CreatedAt,
	}
}
