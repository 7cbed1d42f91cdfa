package stoneforge_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stoneforge "github.com/stoneforge-ai/stoneforge"
	"github.com/stoneforge-ai/stoneforge/internal/model"
	"github.com/stoneforge-ai/stoneforge/internal/store/memstore"
)

func newEngine(t *testing.T) *stoneforge.Engine {
	t.Helper()
	s := memstore.New()
	return stoneforge.New(s, stoneforge.DefaultOptions(), nil)
}

func createTask(t *testing.T, ctx context.Context, e *stoneforge.Engine, title string, p stoneforge.Priority) *stoneforge.Element {
	t.Helper()
	elem, err := e.CreateElement(ctx, model.ElementTask, &stoneforge.Task{
		Title: title, Status: stoneforge.StatusOpen, Priority: p, TaskType: model.TaskTypeTask,
	}, "user-1", stoneforge.CreateOptions{})
	require.NoError(t, err)
	return elem
}

func TestCreateElementAssignsIDAndPersists(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	elem := createTask(t, ctx, e, "fix the widget", stoneforge.PriorityMedium)
	assert.NotEmpty(t, elem.ID)

	got, err := e.GetElement(ctx, elem.ID)
	require.NoError(t, err)
	assert.Equal(t, elem.ID, got.ID)
}

func TestAddDependencyBlocksDependent(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	blocker := createTask(t, ctx, e, "build the foundation", stoneforge.PriorityMedium)
	blocked := createTask(t, ctx, e, "build the roof", stoneforge.PriorityMedium)

	require.NoError(t, e.AddDependency(ctx, &stoneforge.Dependency{
		BlockedID: blocked.ID, BlockerID: blocker.ID, Type: stoneforge.DepBlocks, CreatedBy: "user-1",
	}))

	blockedTasks, err := e.Blocked(ctx, stoneforge.ElementFilter{})
	require.NoError(t, err)
	require.Len(t, blockedTasks, 1)
	assert.Equal(t, blocked.ID, blockedTasks[0].Element.ID)
	assert.Equal(t, blocker.ID, blockedTasks[0].Row.BlockedBy)

	ready, err := e.Ready(ctx, stoneforge.ElementFilter{})
	require.NoError(t, err)
	ids := make([]string, 0, len(ready))
	for _, r := range ready {
		ids = append(ids, r.Element.ID)
	}
	assert.NotContains(t, ids, blocked.ID)
	assert.Contains(t, ids, blocker.ID)
}

func TestAddDependencyRejectsCycle(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	a := createTask(t, ctx, e, "task a", stoneforge.PriorityMedium)
	b := createTask(t, ctx, e, "task b", stoneforge.PriorityMedium)
	require.NoError(t, e.AddDependency(ctx, &stoneforge.Dependency{BlockedID: b.ID, BlockerID: a.ID, Type: stoneforge.DepBlocks, CreatedBy: "u"}))

	err := e.AddDependency(ctx, &stoneforge.Dependency{BlockedID: a.ID, BlockerID: b.ID, Type: stoneforge.DepBlocks, CreatedBy: "u"})
	require.Error(t, err)
}

func TestRemoveDependencyUnblocks(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	blocker := createTask(t, ctx, e, "block", stoneforge.PriorityMedium)
	blocked := createTask(t, ctx, e, "blocked", stoneforge.PriorityMedium)
	require.NoError(t, e.AddDependency(ctx, &stoneforge.Dependency{BlockedID: blocked.ID, BlockerID: blocker.ID, Type: stoneforge.DepBlocks, CreatedBy: "u"}))

	require.NoError(t, e.RemoveDependency(ctx, blocked.ID, blocker.ID, stoneforge.DepBlocks, "u"))

	blockedTasks, err := e.Blocked(ctx, stoneforge.ElementFilter{})
	require.NoError(t, err)
	assert.Empty(t, blockedTasks)
}

func TestEffectivePriorityInheritsFromBlockedDependent(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	blocker := createTask(t, ctx, e, "low prio blocker", stoneforge.PriorityLow)
	blocked := createTask(t, ctx, e, "critical blocked", stoneforge.PriorityCritical)
	require.NoError(t, e.AddDependency(ctx, &stoneforge.Dependency{BlockedID: blocked.ID, BlockerID: blocker.ID, Type: stoneforge.DepBlocks, CreatedBy: "u"}))

	result, err := e.EffectivePriority(ctx, blocker.ID)
	require.NoError(t, err)
	assert.Equal(t, stoneforge.PriorityCritical, result.EffectivePriority)
	assert.True(t, result.IsInfluenced)
}

func TestAggregateComplexityDisabledByDefault(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	task := createTask(t, ctx, e, "task", stoneforge.PriorityMedium)

	total, err := e.AggregateComplexity(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, total)
}

func TestDeleteElementRemovesFromListing(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	task := createTask(t, ctx, e, "throwaway", stoneforge.PriorityMedium)

	require.NoError(t, e.DeleteElement(ctx, task.ID, "user-1", false))

	_, err := e.GetElement(ctx, task.ID)
	assert.Error(t, err)
}

func TestSearchFindsByTitle(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	createTask(t, ctx, e, "refactor the gizmo", stoneforge.PriorityMedium)

	results, err := e.Search(ctx, "gizmo", nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestStatsCountsElements(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	createTask(t, ctx, e, "a", stoneforge.PriorityMedium)
	createTask(t, ctx, e, "b", stoneforge.PriorityHigh)

	stats, err := e.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.ElementsByType[model.ElementTask])
}

func TestStatsAndDependencyCountsBreakDownByType(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	blocker := createTask(t, ctx, e, "blocker", stoneforge.PriorityMedium)
	blocked := createTask(t, ctx, e, "blocked", stoneforge.PriorityMedium)
	require.NoError(t, e.AddDependency(ctx, &stoneforge.Dependency{
		BlockedID: blocked.ID, BlockerID: blocker.ID, Type: stoneforge.DepBlocks, CreatedBy: "u",
	}))

	stats, err := e.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.DependencyCount)
	assert.Equal(t, 1, stats.DependencyCountByType[stoneforge.DepBlocks])

	blockedCounts, err := e.DependencyCounts(ctx, blocked.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, blockedCounts.Blockers)

	blockerCounts, err := e.DependencyCounts(ctx, blocker.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, blockerCounts.Blocked)
}

func TestApprovalGateUnblocksDependent(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	blocker := createTask(t, ctx, e, "release gate", stoneforge.PriorityMedium)
	blocked := createTask(t, ctx, e, "ship it", stoneforge.PriorityMedium)

	meta := &stoneforge.AwaitsMetadata{
		GateType:          stoneforge.GateApproval,
		RequiredApprovers: []string{"alice", "bob"},
		ApprovalCount:     2,
	}
	require.NoError(t, e.AddDependency(ctx, &stoneforge.Dependency{
		BlockedID: blocked.ID, BlockerID: blocker.ID, Type: stoneforge.DepAwaits,
		Metadata: meta.ToMap(), CreatedBy: "u",
	}))

	blockedTasks, err := e.Blocked(ctx, stoneforge.ElementFilter{})
	require.NoError(t, err)
	require.Len(t, blockedTasks, 1)

	require.NoError(t, e.RecordApproval(ctx, blocked.ID, blocker.ID, "alice", "u"))
	require.NoError(t, e.RecordApproval(ctx, blocked.ID, blocker.ID, "bob", "u"))

	satisfied, err := e.GateSatisfied(ctx, blocked.ID, blocker.ID)
	require.NoError(t, err)
	assert.True(t, satisfied)

	blockedTasks, err = e.Blocked(ctx, stoneforge.ElementFilter{})
	require.NoError(t, err)
	assert.Empty(t, blockedTasks)
}

func TestExternalGateUnblocksDependentWithoutExternalKey(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	blocker := createTask(t, ctx, e, "external system", stoneforge.PriorityMedium)
	blocked := createTask(t, ctx, e, "resume on webhook", stoneforge.PriorityMedium)

	meta := &stoneforge.AwaitsMetadata{GateType: stoneforge.GateExternal}
	require.NoError(t, e.AddDependency(ctx, &stoneforge.Dependency{
		BlockedID: blocked.ID, BlockerID: blocker.ID, Type: stoneforge.DepAwaits,
		Metadata: meta.ToMap(), CreatedBy: "u",
	}))

	blockedTasks, err := e.Blocked(ctx, stoneforge.ElementFilter{})
	require.NoError(t, err)
	require.Len(t, blockedTasks, 1)

	satisfied, err := e.GateSatisfied(ctx, blocked.ID, blocker.ID)
	require.NoError(t, err)
	assert.False(t, satisfied)

	require.NoError(t, e.SatisfyGate(ctx, blocked.ID, blocker.ID, "u"))

	satisfied, err = e.GateSatisfied(ctx, blocked.ID, blocker.ID)
	require.NoError(t, err)
	assert.True(t, satisfied)

	blockedTasks, err = e.Blocked(ctx, stoneforge.ElementFilter{})
	require.NoError(t, err)
	assert.Empty(t, blockedTasks)
}

func TestRebuildBlockedCacheMatchesIncremental(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	blocker := createTask(t, ctx, e, "blocker", stoneforge.PriorityMedium)
	blocked := createTask(t, ctx, e, "blocked", stoneforge.PriorityMedium)
	require.NoError(t, e.AddDependency(ctx, &stoneforge.Dependency{BlockedID: blocked.ID, BlockerID: blocker.ID, Type: stoneforge.DepBlocks, CreatedBy: "u"}))

	checked, blockedCount, _, err := e.RebuildBlockedCache(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, checked)
	assert.Equal(t, 1, blockedCount)
}
