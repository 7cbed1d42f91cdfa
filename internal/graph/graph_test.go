package graph

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

func seedTask(t *testing.T, ctx context.Context, s store.Store, id string) {
	t.Helper()
	require.NoError(t, s.CreateElement(ctx, &model.Element{
		ID: id, Type: model.ElementTask, CreatedAt: time.Now(), UpdatedAt: time.Now(), CreatedBy: "u",
		Payload: &model.Task{Title: id, Status: model.StatusOpen, Priority: model.PriorityMedium, TaskType: model.TaskTypeTask},
	}))
}

func TestAddDependencyRejectsMissingElements(t *testing.T) {
	s := memstore.New()
	g := New(s)
	ctx := context.Background()
	seedTask(t, ctx, s, "el-a")

	err := g.AddDependency(ctx, &model.Dependency{BlockedID: "el-a", BlockerID: "el-missing", Type: model.DepBlocks, CreatedAt: time.Now(), CreatedBy: "u"})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestAddDependencyDetectsDirectCycle(t *testing.T) {
	s := memstore.New()
	g := New(s)
	ctx := context.Background()
	seedTask(t, ctx, s, "el-a")
	seedTask(t, ctx, s, "el-b")

	require.NoError(t, g.AddDependency(ctx, &model.Dependency{BlockedID: "el-a", BlockerID: "el-b", Type: model.DepBlocks, CreatedAt: time.Now(), CreatedBy: "u"}))

	err := g.AddDependency(ctx, &model.Dependency{BlockedID: "el-b", BlockerID: "el-a", Type: model.DepBlocks, CreatedAt: time.Now(), CreatedBy: "u"})
	require.ErrorIs(t, err, ErrCycle)
}

func TestAddDependencyDetectsTransitiveCycle(t *testing.T) {
	s := memstore.New()
	g := New(s)
	ctx := context.Background()
	for _, id := range []string{"el-a", "el-b", "el-c"} {
		seedTask(t, ctx, s, id)
	}
	require.NoError(t, g.AddDependency(ctx, &model.Dependency{BlockedID: "el-a", BlockerID: "el-b", Type: model.DepBlocks, CreatedAt: time.Now(), CreatedBy: "u"}))
	require.NoError(t, g.AddDependency(ctx, &model.Dependency{BlockedID: "el-b", BlockerID: "el-c", Type: model.DepBlocks, CreatedAt: time.Now(), CreatedBy: "u"}))

	err := g.AddDependency(ctx, &model.Dependency{BlockedID: "el-c", BlockerID: "el-a", Type: model.DepBlocks, CreatedAt: time.Now(), CreatedBy: "u"})
	require.ErrorIs(t, err, ErrCycle)
}

func TestAddDependencyAllowsAwaitsNotCyclable(t *testing.T) {
	s := memstore.New()
	g := New(s)
	ctx := context.Background()
	seedTask(t, ctx, s, "el-a")
	seedTask(t, ctx, s, "el-b")
	meta := (&model.AwaitsMetadata{GateType: model.GateTimer, WaitUntil: time.Now().Add(time.Hour)}).ToMap()
	require.NoError(t, g.AddDependency(ctx, &model.Dependency{BlockedID: "el-a", BlockerID: "el-b", Type: model.DepAwaits, Metadata: meta, CreatedAt: time.Now(), CreatedBy: "u"}))
	require.NoError(t, g.AddDependency(ctx, &model.Dependency{BlockedID: "el-b", BlockerID: "el-a", Type: model.DepAwaits, Metadata: meta, CreatedAt: time.Now(), CreatedBy: "u"}))
}

func TestAddDependencyRejectsInvalidAwaitsMetadata(t *testing.T) {
	s := memstore.New()
	g := New(s)
	ctx := context.Background()
	seedTask(t, ctx, s, "el-a")
	seedTask(t, ctx, s, "el-b")
	err := g.AddDependency(ctx, &model.Dependency{BlockedID: "el-a", BlockerID: "el-b", Type: model.DepAwaits, CreatedAt: time.Now(), CreatedBy: "u"})
	require.Error(t, err)

	err = g.AddDependency(ctx, &model.Dependency{
		BlockedID: "el-a", BlockerID: "el-b", Type: model.DepAwaits,
		Metadata: (&model.AwaitsMetadata{GateType: model.GateApproval}).ToMap(),
		CreatedAt: time.Now(), CreatedBy: "u",
	})
	require.Error(t, err)
}

func TestTreeFlattensDepthFirst(t *testing.T) {
	s := memstore.New()
	g := New(s)
	ctx := context.Background()
	for _, id := range []string{"el-a", "el-b", "el-c"} {
		seedTask(t, ctx, s, id)
	}
	require.NoError(t, g.AddDependency(ctx, &model.Dependency{BlockedID: "el-a", BlockerID: "el-b", Type: model.DepBlocks, CreatedAt: time.Now(), CreatedBy: "u"}))
	require.NoError(t, g.AddDependency(ctx, &model.Dependency{BlockedID: "el-b", BlockerID: "el-c", Type: model.DepBlocks, CreatedAt: time.Now(), CreatedBy: "u"}))

	nodes, err := g.Tree(ctx, "el-a", 10, false)
	require.NoError(t, err)
	require.Len(t, nodes, 3)
	assert.Equal(t, "el-a", nodes[0].Element.ID)
}

func TestTreeRespectsMaxDepth(t *testing.T) {
	s := memstore.New()
	g := New(s)
	ctx := context.Background()
	for _, id := range []string{"el-a", "el-b", "el-c"} {
		seedTask(t, ctx, s, id)
	}
	require.NoError(t, g.AddDependency(ctx, &model.Dependency{BlockedID: "el-a", BlockerID: "el-b", Type: model.DepBlocks, CreatedAt: time.Now(), CreatedBy: "u"}))
	require.NoError(t, g.AddDependency(ctx, &model.Dependency{BlockedID: "el-b", BlockerID: "el-c", Type: model.DepBlocks, CreatedAt: time.Now(), CreatedBy: "u"}))

	nodes, err := g.Tree(ctx, "el-a", 1, false)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
}

func TestDetectCyclesFindsExistingCycle(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	for _, id := range []string{"el-a", "el-b"} {
		seedTask(t, ctx, s, id)
	}
	require.NoError(t, s.AddDependency(ctx, &model.Dependency{BlockedID: "el-a", BlockerID: "el-b", Type: model.DepBlocks, CreatedAt: time.Now(), CreatedBy: "u"}))
	require.NoError(t, s.AddDependency(ctx, &model.Dependency{BlockedID: "el-b", BlockerID: "el-a", Type: model.DepBlocks, CreatedAt: time.Now(), CreatedBy: "u"}))

	g := New(s)
	cycles, err := g.DetectCycles(ctx)
	require.NoError(t, err)
	require.Len(t, cycles, 1)
	assert.Equal(t, model.DepBlocks, cycles[0].Type)
}
