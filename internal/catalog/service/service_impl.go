package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/datavista/metrica/internal/catalog/domain"
	metricdomain "github.com/datavista/metrica/internal/metric/domain"
	obsmetrics "github.com/datavista/metrica/internal/observability/metrics"
	"github.com/datavista/metrica/internal/orgcontext"
	usagedomain "github.com/datavista/metrica/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	MetricRepo metricdomain.Repository
	UsageSvc   usagedomain.Service
	Metrics    *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	metricRepo metricdomain.Repository
	usageSvc   usagedomain.Service
	metrics    *obsmetrics.Metrics
}

func New(p Params) catalogdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("catalog.service"),
		metricRepo: p.MetricRepo,
		usageSvc:   p.UsageSvc,
		metrics:    p.Metrics,
	}
}

func (s *Service) ListSelectable(ctx context.Context, req catalogdomain.ListSelectableRequest) (catalogdomain.ListSelectableResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return catalogdomain.ListSelectableResponse{}, catalogdomain.ErrInvalidOrganization
	}

	var sourceID snowflake.ID
	if raw := strings.TrimSpace(req.SourceID); raw != "" {
		parsed, err := metricdomain.ParseID(raw)
		if err != nil || parsed == 0 {
			return catalogdomain.ListSelectableResponse{}, catalogdomain.ErrInvalidSource
		}
		sourceID = parsed
	}

	items, err := s.metricRepo.ListByStatus(ctx, s.db, orgID, metricdomain.StatusPublished, sourceID)
	if err != nil {
		return catalogdomain.ListSelectableResponse{}, err
	}

	metrics := make([]catalogdomain.SelectableMetric, 0, len(items))
	for i := range items {
		metrics = append(metrics, catalogdomain.SelectableMetric{
			ID:          items[i].ID.String(),
			Code:        items[i].Code,
			Name:        items[i].Name,
			Description: items[i].Description,
			Unit:        items[i].Unit,
			DataType:    string(items[i].DataType),
			SourceID:    items[i].SourceID.String(),
		})
	}

	return catalogdomain.ListSelectableResponse{Metrics: metrics}, nil
}

func (s *Service) Bind(ctx context.Context, req catalogdomain.BindRequest) (*catalogdomain.BindResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, catalogdomain.ErrInvalidOrganization
	}

	metricID, err := metricdomain.ParseID(strings.TrimSpace(req.MetricID))
	if err != nil || metricID == 0 {
		return nil, catalogdomain.ErrInvalidMetric
	}

	item, err := s.metricRepo.FindByID(ctx, s.db, orgID, metricID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, catalogdomain.ErrMetricNotFound
	}

	// The published-only rule is enforced inside Record's transaction;
	// here we only translate the outcome for the caller.
	usage, bound, err := s.usageSvc.Record(ctx, usagedomain.RecordRequest{
		MetricID:     metricID.String(),
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
		ResourceName: req.ResourceName,
	})
	if err != nil {
		var stateErr *metricdomain.StateError
		if errors.As(err, &stateErr) {
			s.metrics.RecordBindRejection(ctx, strings.ToLower(string(stateErr.Status)))
		}
		return nil, err
	}

	if bound {
		s.log.Info("metric bound",
			zap.String("metric_id", metricID.String()),
			zap.String("resource_type", usage.ResourceType),
			zap.String("resource_id", usage.ResourceID),
		)
	}

	return &catalogdomain.BindResponse{
		Usage:     *usage,
		Bound:     bound,
		CreatedAt: usage.CreatedAt,
	}, nil
}

func (s *Service) Unbind(ctx context.Context, req catalogdomain.UnbindRequest) error {
	return s.usageSvc.Remove(ctx, usagedomain.RemoveRequest{
		MetricID:     req.MetricID,
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
	})
}
