package service

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/datavista/metrica/internal/expr"
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

type stubValidator struct {
	err error
}

func (v *stubValidator) Validate(ctx context.Context, expression string, sourceID snowflake.ID) error {
	return v.err
}

type fixture struct {
	db    *gorm.DB
	node  *snowflake.Node
	svc   metricdomain.Service
	valid *stubValidator
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

	valid := &stubValidator{}
	svc := New(Params{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Repo:      metricrepo.Provide(),
		UsageRepo: usagerepo.Provide(),
		Validator: valid,
	})

	return &fixture{db: db, node: node, svc: svc, valid: valid}
}

func (f *fixture) ctx(orgID snowflake.ID) context.Context {
	ctx := orgcontext.WithOrgID(context.Background(), int64(orgID))
	return orgcontext.WithActor(ctx, "user:"+f.node.Generate().String())
}

func createRequest() metricdomain.CreateRequest {
	return metricdomain.CreateRequest{
		Code:       "revenue_total",
		Name:       "Total Revenue",
		Unit:       "USD",
		DataType:   "DECIMAL",
		Expression: "SUM(amount)",
		SourceID:   "1234567890",
		Owner:      "finance",
	}
}

func TestCreateMetric(t *testing.T) {
	f := newFixture(t)
	ctx := f.ctx(f.node.Generate())

	resp, err := f.svc.Create(ctx, createRequest())
	require.NoError(t, err)
	assert.Equal(t, "revenue_total", resp.Code)
	assert.Equal(t, string(metricdomain.StatusDraft), resp.Status)
	assert.Equal(t, int64(0), resp.UsageCount)
	assert.NotEmpty(t, resp.ID)
}

func TestCreateMetric_DuplicateCode(t *testing.T) {
	f := newFixture(t)
	ctx := f.ctx(f.node.Generate())

	_, err := f.svc.Create(ctx, createRequest())
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, createRequest())
	assert.ErrorIs(t, err, metricdomain.ErrCodeExists)
}

func TestCreateMetric_SameCodeAcrossOrgs(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(f.ctx(f.node.Generate()), createRequest())
	require.NoError(t, err)

	_, err = f.svc.Create(f.ctx(f.node.Generate()), createRequest())
	assert.NoError(t, err)
}

func TestCreateMetric_InvalidInput(t *testing.T) {
	f := newFixture(t)
	ctx := f.ctx(f.node.Generate())

	req := createRequest()
	req.Code = "9starts-with-digit"
	_, err := f.svc.Create(ctx, req)
	assert.ErrorIs(t, err, metricdomain.ErrInvalidCode)

	req = createRequest()
	req.DataType = "FLOAT"
	_, err = f.svc.Create(ctx, req)
	assert.ErrorIs(t, err, metricdomain.ErrInvalidDataType)

	req = createRequest()
	req.Name = "  "
	_, err = f.svc.Create(ctx, req)
	assert.ErrorIs(t, err, metricdomain.ErrInvalidName)
}

func TestCreateMetric_ExpressionRejected(t *testing.T) {
	f := newFixture(t)
	ctx := f.ctx(f.node.Generate())

	f.valid.err = &expr.ValidationError{Message: "unbalanced parentheses"}
	_, err := f.svc.Create(ctx, createRequest())

	var vErr *expr.ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestUpdateMetric_DraftOnly(t *testing.T) {
	f := newFixture(t)
	ctx := f.ctx(f.node.Generate())

	created, err := f.svc.Create(ctx, createRequest())
	require.NoError(t, err)

	newName := "Gross Revenue"
	updated, err := f.svc.Update(ctx, metricdomain.UpdateRequest{ID: created.ID, Name: &newName})
	require.NoError(t, err)
	assert.Equal(t, "Gross Revenue", updated.Name)

	_, err = f.svc.Publish(ctx, created.ID)
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, metricdomain.UpdateRequest{ID: created.ID, Name: &newName})
	assert.ErrorIs(t, err, metricdomain.ErrNotEditable)
}

func TestLifecycleTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := f.ctx(f.node.Generate())

	created, err := f.svc.Create(ctx, createRequest())
	require.NoError(t, err)

	published, err := f.svc.Publish(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, string(metricdomain.StatusPublished), published.Status)

	// Re-publishing is not allowed.
	_, err = f.svc.Publish(ctx, created.ID)
	var stateErr *metricdomain.StateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, metricdomain.StatusPublished, stateErr.Status)

	archived, err := f.svc.Archive(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, string(metricdomain.StatusArchived), archived.Status)

	// Archived is terminal.
	_, err = f.svc.Publish(ctx, created.ID)
	assert.ErrorAs(t, err, &stateErr)
	_, err = f.svc.Archive(ctx, created.ID)
	assert.ErrorAs(t, err, &stateErr)
}

func TestArchiveDraft(t *testing.T) {
	f := newFixture(t)
	ctx := f.ctx(f.node.Generate())

	created, err := f.svc.Create(ctx, createRequest())
	require.NoError(t, err)

	archived, err := f.svc.Archive(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, string(metricdomain.StatusArchived), archived.Status)
}

func TestPublish_RevalidatesExpression(t *testing.T) {
	f := newFixture(t)
	ctx := f.ctx(f.node.Generate())

	created, err := f.svc.Create(ctx, createRequest())
	require.NoError(t, err)

	f.valid.err = &expr.ValidationError{Message: "unknown function"}
	_, err = f.svc.Publish(ctx, created.ID)

	var vErr *expr.ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestDeleteMetric_GuardAndForce(t *testing.T) {
	f := newFixture(t)
	orgID := f.node.Generate()
	ctx := f.ctx(orgID)

	created, err := f.svc.Create(ctx, createRequest())
	require.NoError(t, err)
	metricID, err := metricdomain.ParseID(created.ID)
	require.NoError(t, err)

	usage := &usagedomain.MetricUsage{
		ID:           f.node.Generate(),
		MetricID:     metricID,
		ResourceType: usagedomain.ResourceDashboard,
		ResourceID:   "dash-1",
		ResourceName: "Revenue Dashboard",
		OrgID:        orgID,
	}
	require.NoError(t, f.db.Create(usage).Error)

	err = f.svc.Delete(ctx, created.ID, false)
	var inUse *usagedomain.InUseError
	require.ErrorAs(t, err, &inUse)
	assert.Equal(t, int64(1), inUse.UsageCount)

	// Still present after the blocked delete.
	_, err = f.svc.GetByID(ctx, created.ID)
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, created.ID, true))

	_, err = f.svc.GetByID(ctx, created.ID)
	assert.ErrorIs(t, err, metricdomain.ErrNotFound)

	var remaining int64
	require.NoError(t, f.db.Model(&usagedomain.MetricUsage{}).Where("metric_id = ?", metricID).Count(&remaining).Error)
	assert.Equal(t, int64(0), remaining)
}

func TestDeleteMetric_NoUsages(t *testing.T) {
	f := newFixture(t)
	ctx := f.ctx(f.node.Generate())

	created, err := f.svc.Create(ctx, createRequest())
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, created.ID, false))
	_, err = f.svc.GetByID(ctx, created.ID)
	assert.ErrorIs(t, err, metricdomain.ErrNotFound)
}

func TestSearchMetrics(t *testing.T) {
	f := newFixture(t)
	ctx := f.ctx(f.node.Generate())

	first := createRequest()
	_, err := f.svc.Create(ctx, first)
	require.NoError(t, err)

	second := createRequest()
	second.Code = "active_users"
	second.Name = "Active Users"
	second.DataType = "INTEGER"
	created, err := f.svc.Create(ctx, second)
	require.NoError(t, err)

	_, err = f.svc.Publish(ctx, created.ID)
	require.NoError(t, err)

	resp, err := f.svc.Search(ctx, metricdomain.SearchRequest{Keyword: "users"})
	require.NoError(t, err)
	require.Len(t, resp.Metrics, 1)
	assert.Equal(t, "active_users", resp.Metrics[0].Code)

	resp, err = f.svc.Search(ctx, metricdomain.SearchRequest{Status: "PUBLISHED"})
	require.NoError(t, err)
	require.Len(t, resp.Metrics, 1)
	assert.Equal(t, int64(1), resp.Total)

	resp, err = f.svc.Search(ctx, metricdomain.SearchRequest{})
	require.NoError(t, err)
	assert.Len(t, resp.Metrics, 2)
}

func TestOrgScoping(t *testing.T) {
	f := newFixture(t)

	created, err := f.svc.Create(f.ctx(f.node.Generate()), createRequest())
	require.NoError(t, err)

	// Another org cannot see it.
	_, err = f.svc.GetByID(f.ctx(f.node.Generate()), created.ID)
	assert.ErrorIs(t, err, metricdomain.ErrNotFound)

	// Without an org in context nothing is served.
	_, err = f.svc.GetByID(context.Background(), created.ID)
	assert.True(t, errors.Is(err, metricdomain.ErrInvalidOrganization))
}

func TestPublishLosesRaceToArchive(t *testing.T) {
	f := newFixture(t)
	orgID := f.node.Generate()
	ctx := f.ctx(orgID)

	created, err := f.svc.Create(ctx, createRequest())
	require.NoError(t, err)
	id, err := metricdomain.ParseID(created.ID)
	require.NoError(t, err)

	// A publisher reads the row while it still holds DRAFT.
	repo := metricrepo.Provide()
	stale, err := repo.FindByID(ctx, f.db, orgID, id)
	require.NoError(t, err)
	require.Equal(t, metricdomain.StatusDraft, stale.Status)

	// An archive commits before the publisher writes.
	_, err = f.svc.Archive(ctx, created.ID)
	require.NoError(t, err)

	// The stale write is rejected instead of rewinding the row.
	changed, err := repo.UpdateStatus(ctx, f.db, orgID, id, stale.Status, metricdomain.StatusPublished, stale.UpdatedBy)
	require.NoError(t, err)
	assert.False(t, changed)

	current, err := f.svc.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, string(metricdomain.StatusArchived), current.Status)
}

func TestUpdateLosesRaceToPublish(t *testing.T) {
	f := newFixture(t)
	orgID := f.node.Generate()
	ctx := f.ctx(orgID)

	created, err := f.svc.Create(ctx, createRequest())
	require.NoError(t, err)
	id, err := metricdomain.ParseID(created.ID)
	require.NoError(t, err)

	// An editor reads the draft, then the row leaves DRAFT underneath it.
	repo := metricrepo.Provide()
	stale, err := repo.FindByID(ctx, f.db, orgID, id)
	require.NoError(t, err)

	_, err = f.svc.Publish(ctx, created.ID)
	require.NoError(t, err)

	stale.Name = "Edited After Read"
	applied, err := repo.Update(ctx, f.db, stale)
	require.NoError(t, err)
	assert.False(t, applied)

	current, err := f.svc.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Total Revenue", current.Name)
}
