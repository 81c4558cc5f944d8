package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	metricdomain "github.com/datavista/metrica/internal/metric/domain"
	metricrepo "github.com/datavista/metrica/internal/metric/repository"
	"github.com/datavista/metrica/internal/orgcontext"
	usagedomain "github.com/datavista/metrica/internal/usage/domain"
	usagerepo "github.com/datavista/metrica/internal/usage/repository"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db   *gorm.DB
	node *snowflake.Node
	svc  usagedomain.Service
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

	svc := New(Params{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Repo:       usagerepo.Provide(),
		MetricRepo: metricrepo.Provide(),
	})

	return &fixture{db: db, node: node, svc: svc}
}

func (f *fixture) ctx(orgID snowflake.ID) context.Context {
	ctx := orgcontext.WithOrgID(context.Background(), int64(orgID))
	return orgcontext.WithActor(ctx, "user:"+f.node.Generate().String())
}

func (f *fixture) seedMetric(t *testing.T, orgID snowflake.ID, status metricdomain.Status) snowflake.ID {
	t.Helper()
	id := f.node.Generate()
	now := time.Now().UTC()
	require.NoError(t, f.db.Create(&metricdomain.MetricDefinition{
		ID:         id,
		OrgID:      orgID,
		Code:       "metric_" + id.String(),
		Name:       "Test Metric",
		DataType:   metricdomain.DataTypeDecimal,
		Expression: "SUM(amount)",
		SourceID:   f.node.Generate(),
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}).Error)
	return id
}

func (f *fixture) usageCount(t *testing.T, metricID snowflake.ID) int64 {
	t.Helper()
	var m metricdomain.MetricDefinition
	require.NoError(t, f.db.First(&m, "id = ?", metricID).Error)
	return m.UsageCount
}

func recordRequest(metricID snowflake.ID) usagedomain.RecordRequest {
	return usagedomain.RecordRequest{
		MetricID:     metricID.String(),
		ResourceType: "DASHBOARD",
		ResourceID:   "dash-1",
		ResourceName: "Revenue Dashboard",
	}
}

func TestRecordUsage(t *testing.T) {
	f := newFixture(t)
	orgID := f.node.Generate()
	metricID := f.seedMetric(t, orgID, metricdomain.StatusPublished)

	resp, inserted, err := f.svc.Record(f.ctx(orgID), recordRequest(metricID))
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, "DASHBOARD", resp.ResourceType)
	assert.Equal(t, int64(1), f.usageCount(t, metricID))
}

func TestRecordUsage_Idempotent(t *testing.T) {
	f := newFixture(t)
	orgID := f.node.Generate()
	metricID := f.seedMetric(t, orgID, metricdomain.StatusPublished)
	ctx := f.ctx(orgID)

	_, inserted, err := f.svc.Record(ctx, recordRequest(metricID))
	require.NoError(t, err)
	assert.True(t, inserted)

	_, inserted, err = f.svc.Record(ctx, recordRequest(metricID))
	require.NoError(t, err)
	assert.False(t, inserted)

	// The counter moves once regardless of retries.
	assert.Equal(t, int64(1), f.usageCount(t, metricID))
}

func TestRecordUsage_DistinctResources(t *testing.T) {
	f := newFixture(t)
	orgID := f.node.Generate()
	metricID := f.seedMetric(t, orgID, metricdomain.StatusPublished)
	ctx := f.ctx(orgID)

	_, _, err := f.svc.Record(ctx, recordRequest(metricID))
	require.NoError(t, err)

	second := recordRequest(metricID)
	second.ResourceType = "WIDGET"
	second.ResourceName = "Revenue Widget"
	_, inserted, err := f.svc.Record(ctx, second)
	require.NoError(t, err)
	assert.True(t, inserted)

	assert.Equal(t, int64(2), f.usageCount(t, metricID))
}

func TestRecordUsage_UnknownMetric(t *testing.T) {
	f := newFixture(t)
	orgID := f.node.Generate()

	_, _, err := f.svc.Record(f.ctx(orgID), recordRequest(f.node.Generate()))
	assert.ErrorIs(t, err, usagedomain.ErrInvalidMetric)
}

func TestRecordUsage_UnpublishedMetric(t *testing.T) {
	f := newFixture(t)
	orgID := f.node.Generate()
	ctx := f.ctx(orgID)

	for _, status := range []metricdomain.Status{metricdomain.StatusDraft, metricdomain.StatusArchived} {
		metricID := f.seedMetric(t, orgID, status)

		_, _, err := f.svc.Record(ctx, recordRequest(metricID))
		var stateErr *metricdomain.StateError
		require.ErrorAs(t, err, &stateErr)
		assert.Equal(t, "bind", stateErr.Op)
		assert.Equal(t, status, stateErr.Status)

		// No row and no counter movement for a non-published definition.
		var rows int64
		require.NoError(t, f.db.Model(&usagedomain.MetricUsage{}).Where("metric_id = ?", metricID).Count(&rows).Error)
		assert.Zero(t, rows)
		assert.Equal(t, int64(0), f.usageCount(t, metricID))
	}
}

func TestRecordUsage_InvalidResourceType(t *testing.T) {
	f := newFixture(t)
	orgID := f.node.Generate()
	metricID := f.seedMetric(t, orgID, metricdomain.StatusPublished)

	req := recordRequest(metricID)
	req.ResourceType = "REPORT"
	_, _, err := f.svc.Record(f.ctx(orgID), req)
	assert.ErrorIs(t, err, usagedomain.ErrInvalidResourceType)
}

func TestRemoveUsage(t *testing.T) {
	f := newFixture(t)
	orgID := f.node.Generate()
	metricID := f.seedMetric(t, orgID, metricdomain.StatusPublished)
	ctx := f.ctx(orgID)

	_, _, err := f.svc.Record(ctx, recordRequest(metricID))
	require.NoError(t, err)
	require.Equal(t, int64(1), f.usageCount(t, metricID))

	remove := usagedomain.RemoveRequest{
		MetricID:     metricID.String(),
		ResourceType: "DASHBOARD",
		ResourceID:   "dash-1",
	}
	require.NoError(t, f.svc.Remove(ctx, remove))
	assert.Equal(t, int64(0), f.usageCount(t, metricID))

	// Removing an absent binding is a no-op and never drives the counter
	// below zero.
	require.NoError(t, f.svc.Remove(ctx, remove))
	assert.Equal(t, int64(0), f.usageCount(t, metricID))
}

func TestListUsages(t *testing.T) {
	f := newFixture(t)
	orgID := f.node.Generate()
	metricID := f.seedMetric(t, orgID, metricdomain.StatusPublished)
	ctx := f.ctx(orgID)

	_, _, err := f.svc.Record(ctx, recordRequest(metricID))
	require.NoError(t, err)

	second := recordRequest(metricID)
	second.ResourceType = "STORYBOARD"
	second.ResourceID = "story-7"
	second.ResourceName = "Quarterly Story"
	_, _, err = f.svc.Record(ctx, second)
	require.NoError(t, err)

	resp, err := f.svc.List(ctx, usagedomain.ListRequest{MetricID: metricID.String()})
	require.NoError(t, err)
	assert.Len(t, resp.Usages, 2)
	assert.Equal(t, int64(2), resp.Total)
}

func TestGuardDeletion(t *testing.T) {
	f := newFixture(t)
	orgID := f.node.Generate()
	metricID := f.seedMetric(t, orgID, metricdomain.StatusPublished)
	ctx := f.ctx(orgID)

	require.NoError(t, f.svc.GuardDeletion(ctx, metricID.String(), false))

	_, _, err := f.svc.Record(ctx, recordRequest(metricID))
	require.NoError(t, err)

	err = f.svc.GuardDeletion(ctx, metricID.String(), false)
	var inUse *usagedomain.InUseError
	require.ErrorAs(t, err, &inUse)
	assert.Equal(t, int64(1), inUse.UsageCount)

	assert.NoError(t, f.svc.GuardDeletion(ctx, metricID.String(), true))
}
