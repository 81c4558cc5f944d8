package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/datavista/metrica/internal/catalog/domain"
	metricdomain "github.com/datavista/metrica/internal/metric/domain"
	metricrepo "github.com/datavista/metrica/internal/metric/repository"
	"github.com/datavista/metrica/internal/orgcontext"
	usagedomain "github.com/datavista/metrica/internal/usage/domain"
	usagerepo "github.com/datavista/metrica/internal/usage/repository"
	usageservice "github.com/datavista/metrica/internal/usage/service"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db   *gorm.DB
	node *snowflake.Node
	svc  catalogdomain.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&metricdomain.MetricDefinition{},
		&usagedomain.MetricUsage{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	metricRepo := metricrepo.Provide()
	usageSvc := usageservice.New(usageservice.Params{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Repo:       usagerepo.Provide(),
		MetricRepo: metricRepo,
	})
	svc := New(Params{
		DB:         db,
		Log:        zap.NewNop(),
		MetricRepo: metricRepo,
		UsageSvc:   usageSvc,
	})

	return &fixture{db: db, node: node, svc: svc}
}

func (f *fixture) ctx(orgID snowflake.ID) context.Context {
	ctx := orgcontext.WithOrgID(context.Background(), int64(orgID))
	return orgcontext.WithActor(ctx, "user:"+f.node.Generate().String())
}

func (f *fixture) seedMetric(t *testing.T, orgID snowflake.ID, code string, status metricdomain.Status, sourceID snowflake.ID) snowflake.ID {
	t.Helper()
	id := f.node.Generate()
	now := time.Now().UTC()
	require.NoError(t, f.db.Create(&metricdomain.MetricDefinition{
		ID:         id,
		OrgID:      orgID,
		Code:       code,
		Name:       code,
		DataType:   metricdomain.DataTypeInteger,
		Expression: "COUNT(*)",
		SourceID:   sourceID,
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}).Error)
	return id
}

func TestListSelectable_PublishedOnly(t *testing.T) {
	f := newFixture(t)
	orgID := f.node.Generate()
	sourceID := f.node.Generate()

	f.seedMetric(t, orgID, "draft_metric", metricdomain.StatusDraft, sourceID)
	published := f.seedMetric(t, orgID, "published_metric", metricdomain.StatusPublished, sourceID)
	f.seedMetric(t, orgID, "archived_metric", metricdomain.StatusArchived, sourceID)

	resp, err := f.svc.ListSelectable(f.ctx(orgID), catalogdomain.ListSelectableRequest{})
	require.NoError(t, err)
	require.Len(t, resp.Metrics, 1)
	assert.Equal(t, published.String(), resp.Metrics[0].ID)
	assert.Equal(t, "published_metric", resp.Metrics[0].Code)
}

func TestListSelectable_SourceFilter(t *testing.T) {
	f := newFixture(t)
	orgID := f.node.Generate()
	sourceA := f.node.Generate()
	sourceB := f.node.Generate()

	f.seedMetric(t, orgID, "metric_a", metricdomain.StatusPublished, sourceA)
	f.seedMetric(t, orgID, "metric_b", metricdomain.StatusPublished, sourceB)

	resp, err := f.svc.ListSelectable(f.ctx(orgID), catalogdomain.ListSelectableRequest{SourceID: sourceA.String()})
	require.NoError(t, err)
	require.Len(t, resp.Metrics, 1)
	assert.Equal(t, "metric_a", resp.Metrics[0].Code)
}

func TestBind(t *testing.T) {
	f := newFixture(t)
	orgID := f.node.Generate()
	metricID := f.seedMetric(t, orgID, "published_metric", metricdomain.StatusPublished, f.node.Generate())
	ctx := f.ctx(orgID)

	req := catalogdomain.BindRequest{
		MetricID:     metricID.String(),
		ResourceType: "DATACHART",
		ResourceID:   "chart-1",
		ResourceName: "Signups Chart",
	}

	resp, err := f.svc.Bind(ctx, req)
	require.NoError(t, err)
	assert.True(t, resp.Bound)
	assert.Equal(t, "DATACHART", resp.Usage.ResourceType)

	// Binding is idempotent per (metric, resource type, resource id).
	resp, err = f.svc.Bind(ctx, req)
	require.NoError(t, err)
	assert.False(t, resp.Bound)
}

func TestBind_RejectsUnpublished(t *testing.T) {
	f := newFixture(t)
	orgID := f.node.Generate()
	ctx := f.ctx(orgID)

	draft := f.seedMetric(t, orgID, "draft_metric", metricdomain.StatusDraft, f.node.Generate())
	archived := f.seedMetric(t, orgID, "archived_metric", metricdomain.StatusArchived, f.node.Generate())

	var stateErr *metricdomain.StateError

	_, err := f.svc.Bind(ctx, catalogdomain.BindRequest{
		MetricID:     draft.String(),
		ResourceType: "WIDGET",
		ResourceID:   "widget-1",
		ResourceName: "Widget",
	})
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, metricdomain.StatusDraft, stateErr.Status)

	_, err = f.svc.Bind(ctx, catalogdomain.BindRequest{
		MetricID:     archived.String(),
		ResourceType: "WIDGET",
		ResourceID:   "widget-1",
		ResourceName: "Widget",
	})
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, metricdomain.StatusArchived, stateErr.Status)
}

func TestBind_UnknownMetric(t *testing.T) {
	f := newFixture(t)
	orgID := f.node.Generate()

	_, err := f.svc.Bind(f.ctx(orgID), catalogdomain.BindRequest{
		MetricID:     f.node.Generate().String(),
		ResourceType: "WIDGET",
		ResourceID:   "widget-1",
		ResourceName: "Widget",
	})
	assert.ErrorIs(t, err, catalogdomain.ErrMetricNotFound)
}

func TestUnbind(t *testing.T) {
	f := newFixture(t)
	orgID := f.node.Generate()
	metricID := f.seedMetric(t, orgID, "published_metric", metricdomain.StatusPublished, f.node.Generate())
	ctx := f.ctx(orgID)

	_, err := f.svc.Bind(ctx, catalogdomain.BindRequest{
		MetricID:     metricID.String(),
		ResourceType: "DASHBOARD",
		ResourceID:   "dash-1",
		ResourceName: "Dashboard",
	})
	require.NoError(t, err)

	unbind := catalogdomain.UnbindRequest{
		MetricID:     metricID.String(),
		ResourceType: "DASHBOARD",
		ResourceID:   "dash-1",
	}
	require.NoError(t, f.svc.Unbind(ctx, unbind))

	// Repeating the unbind is a no-op.
	require.NoError(t, f.svc.Unbind(ctx, unbind))

	var m metricdomain.MetricDefinition
	require.NoError(t, f.db.First(&m, "id = ?", metricID).Error)
	assert.Equal(t, int64(0), m.UsageCount)
}
