package priority

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stoneforge-ai/stoneforge/internal/model"
	"github.com/stoneforge-ai/stoneforge/internal/store"
	"github.com/stoneforge-ai/stoneforge/internal/store/memstore"
)

func seedTask(t *testing.T, ctx context.Context, s store.Store, id string, p model.Priority, c model.Complexity, createdAt time.Time) {
	t.Helper()
	require.NoError(t, s.CreateElement(ctx, &model.Element{
		ID: id, Type: model.ElementTask, CreatedAt: createdAt, UpdatedAt: createdAt, CreatedBy: "u",
		Payload: &model.Task{Title: id, Status: model.StatusOpen, Priority: p, Complexity: c, TaskType: model.TaskTypeTask},
	}))
}

func TestEffectiveEqualsBaseWithNoDependents(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	seedTask(t, ctx, s, "el-a", model.PriorityLow, model.ComplexityTrivial, time.Now())

	e := New(s, 0)
	r, err := e.Effective(ctx, "el-a")
	require.NoError(t, err)
	assert.Equal(t, model.PriorityLow, r.EffectivePriority)
	assert.False(t, r.IsInfluenced)
}

func TestEffectiveInheritsMostUrgentDependent(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	seedTask(t, ctx, s, "el-a", model.PriorityLow, model.ComplexityTrivial, time.Now())
	seedTask(t, ctx, s, "el-b", model.PriorityCritical, model.ComplexityTrivial, time.Now())
	require.NoError(t, s.AddDependency(ctx, &model.Dependency{BlockedID: "el-b", BlockerID: "el-a", Type: model.DepBlocks, CreatedAt: time.Now(), CreatedBy: "u"}))

	e := New(s, 0)
	r, err := e.Effective(ctx, "el-a")
	require.NoError(t, err)
	assert.Equal(t, model.PriorityCritical, r.EffectivePriority)
	assert.True(t, r.IsInfluenced)
	assert.Equal(t, []string{"el-b"}, r.DependentInfluencers)
}

func TestEffectivePropagatesTransitively(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	seedTask(t, ctx, s, "el-a", model.PriorityLow, model.ComplexityTrivial, time.Now())
	seedTask(t, ctx, s, "el-b", model.PriorityLow, model.ComplexityTrivial, time.Now())
	seedTask(t, ctx, s, "el-c", model.PriorityCritical, model.ComplexityTrivial, time.Now())
	require.NoError(t, s.AddDependency(ctx, &model.Dependency{BlockedID: "el-b", BlockerID: "el-a", Type: model.DepBlocks, CreatedAt: time.Now(), CreatedBy: "u"}))
	require.NoError(t, s.AddDependency(ctx, &model.Dependency{BlockedID: "el-c", BlockerID: "el-b", Type: model.DepBlocks, CreatedAt: time.Now(), CreatedBy: "u"}))

	e := New(s, 0)
	r, err := e.Effective(ctx, "el-a")
	require.NoError(t, err)
	assert.Equal(t, model.PriorityCritical, r.EffectivePriority)
}

func TestEffectiveRespectsMaxDepth(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	seedTask(t, ctx, s, "el-a", model.PriorityLow, model.ComplexityTrivial, time.Now())
	seedTask(t, ctx, s, "el-b", model.PriorityCritical, model.ComplexityTrivial, time.Now())
	require.NoError(t, s.AddDependency(ctx, &model.Dependency{BlockedID: "el-b", BlockerID: "el-a", Type: model.DepBlocks, CreatedAt: time.Now(), CreatedBy: "u"}))

	e := New(s, 1) // el-a is at depth 0; dependent el-b is at depth 1, which does not exceed maxDepth, so it's still included
	r, err := e.Effective(ctx, "el-a")
	require.NoError(t, err)
	assert.Equal(t, model.PriorityCritical, r.EffectivePriority)

	e2 := New(s, 0) // DefaultMaxDepth, same result expected
	r2, err := e2.Effective(ctx, "el-a")
	require.NoError(t, err)
	assert.Equal(t, r.EffectivePriority, r2.EffectivePriority)
}

func TestEffectiveMissingElementReturnsMedium(t *testing.T) {
	s := memstore.New()
	e := New(s, 0)
	r, err := e.Effective(context.Background(), "el-missing")
	require.NoError(t, err)
	assert.Equal(t, model.PriorityMedium, r.EffectivePriority)
	assert.Equal(t, model.PriorityMedium, r.BasePriority)
}

func TestSortByEffectivePriorityOrdersAscending(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	now := time.Now()
	seedTask(t, ctx, s, "el-a", model.PriorityLow, model.ComplexityTrivial, now)
	seedTask(t, ctx, s, "el-b", model.PriorityCritical, model.ComplexityTrivial, now.Add(time.Hour))
	seedTask(t, ctx, s, "el-c", model.PriorityHigh, model.ComplexityTrivial, now.Add(2*time.Hour))

	e := New(s, 0)
	elA, _ := s.GetElement(ctx, "el-a")
	elB, _ := s.GetElement(ctx, "el-b")
	elC, _ := s.GetElement(ctx, "el-c")
	annotated, err := e.EnhanceTasksWithEffectivePriority(ctx, []*model.Element{elA, elB, elC})
	require.NoError(t, err)

	SortByEffectivePriority(annotated)
	require.Len(t, annotated, 3)
	assert.Equal(t, "el-b", annotated[0].Element.ID)
	assert.Equal(t, "el-c", annotated[1].Element.ID)
	assert.Equal(t, "el-a", annotated[2].Element.ID)
}

func TestAggregateComplexitySumsTransitiveBlockers(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	seedTask(t, ctx, s, "el-a", model.PriorityLow, model.ComplexityMedium, time.Now())
	seedTask(t, ctx, s, "el-b", model.PriorityLow, model.ComplexityComplex, time.Now())
	require.NoError(t, s.AddDependency(ctx, &model.Dependency{BlockedID: "el-a", BlockerID: "el-b", Type: model.DepBlocks, CreatedAt: time.Now(), CreatedBy: "u"}))

	e := New(s, 0)
	total, err := e.AggregateComplexity(ctx, "el-a")
	require.NoError(t, err)
	assert.Equal(t, int(model.ComplexityMedium)+int(model.ComplexityComplex), total)
}
