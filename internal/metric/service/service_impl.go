package service

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/datavista/metrica/internal/audit/domain"
	"github.com/datavista/metrica/internal/expr"
	metricdomain "github.com/datavista/metrica/internal/metric/domain"
	obsmetrics "github.com/datavista/metrica/internal/observability/metrics"
	"github.com/datavista/metrica/internal/orgcontext"
	usagedomain "github.com/datavista/metrica/internal/usage/domain"
	"github.com/datavista/metrica/pkg/db"
	"github.com/datavista/metrica/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var codePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]{0,63}$`)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Repo      metricdomain.Repository
	UsageRepo usagedomain.Repository
	Validator expr.Validator
	AuditSvc  auditdomain.Service `optional:"true"`
	Metrics   *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	repo      metricdomain.Repository
	usageRepo usagedomain.Repository
	validator expr.Validator
	auditSvc  auditdomain.Service
	metrics   *obsmetrics.Metrics
}

func New(p Params) metricdomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("metric.service"),
		genID:     p.GenID,
		repo:      p.Repo,
		usageRepo: p.UsageRepo,
		validator: p.Validator,
		auditSvc:  p.AuditSvc,
		metrics:   p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, req metricdomain.CreateRequest) (*metricdomain.Response, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, metricdomain.ErrInvalidOrganization
	}

	code := strings.TrimSpace(req.Code)
	if !codePattern.MatchString(code) {
		return nil, metricdomain.ErrInvalidCode
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, metricdomain.ErrInvalidName
	}

	dataType, ok := metricdomain.ParseDataType(req.DataType)
	if !ok {
		return nil, metricdomain.ErrInvalidDataType
	}

	sourceID, err := metricdomain.ParseID(strings.TrimSpace(req.SourceID))
	if err != nil || sourceID == 0 {
		return nil, metricdomain.ErrInvalidSource
	}

	expression := strings.TrimSpace(req.Expression)
	if err := s.validator.Validate(ctx, expression, sourceID); err != nil {
		return nil, err
	}

	actor := s.actor(ctx)
	owner := strings.TrimSpace(req.Owner)
	if owner == "" {
		owner = actor
	}

	now := time.Now().UTC()
	m := &metricdomain.MetricDefinition{
		ID:          s.genID.Generate(),
		OrgID:       orgID,
		Code:        code,
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		Unit:        strings.TrimSpace(req.Unit),
		DataType:    dataType,
		Expression:  expression,
		SourceID:    sourceID,
		Status:      metricdomain.StatusDraft,
		Owner:       owner,
		UsageCount:  0,
		CreatedBy:   actor,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Insert(ctx, s.db, m); err != nil {
		// The (org_id, code) unique constraint decides concurrent races.
		if db.IsDuplicateKeyErr(err) {
			return nil, metricdomain.ErrCodeExists
		}
		return nil, err
	}

	s.metrics.RecordDefinitionCreated(ctx, string(dataType))

	return s.toResponse(m), nil
}

func (s *Service) Update(ctx context.Context, req metricdomain.UpdateRequest) (*metricdomain.Response, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, metricdomain.ErrInvalidOrganization
	}

	id, err := metricdomain.ParseID(strings.TrimSpace(req.ID))
	if err != nil || id == 0 {
		return nil, metricdomain.ErrInvalidID
	}

	item, err := s.repo.FindByID(ctx, s.db, orgID, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, metricdomain.ErrNotFound
	}
	if !item.Status.Editable() {
		return nil, metricdomain.ErrNotEditable
	}

	if req.Code != nil {
		code := strings.TrimSpace(*req.Code)
		if !codePattern.MatchString(code) {
			return nil, metricdomain.ErrInvalidCode
		}
		if code != item.Code {
			existing, err := s.repo.FindByCode(ctx, s.db, orgID, code)
			if err != nil {
				return nil, err
			}
			if existing != nil && existing.ID != item.ID {
				return nil, metricdomain.ErrCodeExists
			}
			item.Code = code
		}
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, metricdomain.ErrInvalidName
		}
		item.Name = name
	}

	if req.Description != nil {
		item.Description = strings.TrimSpace(*req.Description)
	}

	if req.Unit != nil {
		item.Unit = strings.TrimSpace(*req.Unit)
	}

	if req.DataType != nil {
		dataType, ok := metricdomain.ParseDataType(*req.DataType)
		if !ok {
			return nil, metricdomain.ErrInvalidDataType
		}
		item.DataType = dataType
	}

	if req.SourceID != nil {
		sourceID, err := metricdomain.ParseID(strings.TrimSpace(*req.SourceID))
		if err != nil || sourceID == 0 {
			return nil, metricdomain.ErrInvalidSource
		}
		item.SourceID = sourceID
	}

	if req.Expression != nil {
		item.Expression = strings.TrimSpace(*req.Expression)
	}

	// The expression is re-validated on every edit, not only when it
	// changed: the source may have changed underneath it.
	if err := s.validator.Validate(ctx, item.Expression, item.SourceID); err != nil {
		return nil, err
	}

	if req.Owner != nil {
		owner := strings.TrimSpace(*req.Owner)
		if owner == "" {
			return nil, metricdomain.ErrInvalidName
		}
		item.Owner = owner
	}

	item.UpdatedBy = s.actor(ctx)
	item.UpdatedAt = time.Now().UTC()

	updated, err := s.repo.Update(ctx, s.db, item)
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, metricdomain.ErrCodeExists
		}
		return nil, err
	}
	if !updated {
		// The row left DRAFT (or was deleted) between the read and the write.
		current, err := s.repo.FindByID(ctx, s.db, orgID, id)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, metricdomain.ErrNotFound
		}
		return nil, metricdomain.ErrNotEditable
	}

	return s.toResponse(item), nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*metricdomain.Response, error) {
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

	return s.toResponse(item), nil
}

func (s *Service) Search(ctx context.Context, req metricdomain.SearchRequest) (metricdomain.SearchResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return metricdomain.SearchResponse{}, metricdomain.ErrInvalidOrganization
	}

	filter := metricdomain.SearchFilter{
		Keyword: strings.TrimSpace(req.Keyword),
	}
	if raw := strings.TrimSpace(req.Status); raw != "" {
		status, ok := metricdomain.ParseStatus(raw)
		if !ok {
			return metricdomain.SearchResponse{}, metricdomain.ErrInvalidStatus
		}
		filter.Status = status
	}
	if raw := strings.TrimSpace(req.SourceID); raw != "" {
		sourceID, err := metricdomain.ParseID(raw)
		if err != nil || sourceID == 0 {
			return metricdomain.SearchResponse{}, metricdomain.ErrInvalidSource
		}
		filter.SourceID = sourceID
	}

	page := req.Pagination.Normalize()
	items, total, err := s.repo.Search(ctx, s.db, orgID, filter, page)
	if err != nil {
		return metricdomain.SearchResponse{}, err
	}

	metrics := make([]metricdomain.Response, 0, len(items))
	for i := range items {
		metrics = append(metrics, *s.toResponse(&items[i]))
	}

	return metricdomain.SearchResponse{
		PageInfo: pagination.BuildPageInfo(page, total),
		Metrics:  metrics,
	}, nil
}

func (s *Service) actor(ctx context.Context) string {
	actor, _ := orgcontext.ActorFromContext(ctx)
	return actor
}

func (s *Service) toResponse(m *metricdomain.MetricDefinition) *metricdomain.Response {
	return &metricdomain.Response{
		ID:             m.ID.String(),
		OrganizationID: m.OrgID.String(),
		Code:           m.Code,
		Name:           m.Name,
		Description:    m.Description,
		Unit:           m.Unit,
		DataType:       string(m.DataType),
		Expression:     m.Expression,
		SourceID:       m.SourceID.String(),
		Status:         string(m.Status),
		Owner:          m.Owner,
		UsageCount:     m.UsageCount,
		CreatedBy:      m.CreatedBy,
		CreatedAt:      m.CreatedAt,
		UpdatedBy:      m.UpdatedBy,
		UpdatedAt:      m.UpdatedAt,
	}
}
