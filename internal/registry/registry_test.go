package registry

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

func fixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

func newRegistry() (*Registry, store.Store) {
	s := memstore.New()
	return New(s, fixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))), s
}

func TestCreateAssignsIDAndAppendsEvent(t *testing.T) {
	r, s := newRegistry()
	ctx := context.Background()

	elem, err := r.Create(ctx, model.ElementTask, &model.Task{
		Title:    "fix the thing",
		Status:   model.StatusOpen,
		Priority: model.PriorityMedium,
		TaskType: model.TaskTypeTask,
	}, "user-1", CreateOptions{})
	require.NoError(t, err)
	assert.NotEmpty(t, elem.ID)

	events, err := s.EventsForElement(ctx, elem.ID, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventCreated, events[0].EventType)
}

func TestCreateHonorsExplicitID(t *testing.T) {
	r, _ := newRegistry()
	elem, err := r.Create(context.Background(), model.ElementTask, &model.Task{
		Title: "x", Status: model.StatusOpen, Priority: model.PriorityMedium, TaskType: model.TaskTypeTask,
	}, "user-1", CreateOptions{ID: "el-custom"})
	require.NoError(t, err)
	assert.Equal(t, "el-custom", elem.ID)
}

func TestCreateRejectsMismatchedType(t *testing.T) {
	r, _ := newRegistry()
	_, err := r.Create(context.Background(), model.ElementPlan, &model.Task{
		Title: "x", Status: model.StatusOpen, Priority: model.PriorityMedium, TaskType: model.TaskTypeTask,
	}, "user-1", CreateOptions{})
	require.Error(t, err)
}

func TestUpdateFiresStatusChangedEventAndHook(t *testing.T) {
	r, s := newRegistry()
	ctx := context.Background()

	elem, err := r.Create(ctx, model.ElementTask, &model.Task{
		Title: "x", Status: model.StatusOpen, Priority: model.PriorityMedium, TaskType: model.TaskTypeTask,
	}, "user-1", CreateOptions{})
	require.NoError(t, err)

	var hookOld, hookNew model.Status
	hookCalled := false
	r.OnStatusChanged = func(ctx context.Context, elementID string, old, new model.Status) {
		hookCalled = true
		hookOld, hookNew = old, new
	}

	_, err = r.Update(ctx, elem.ID, "user-1", func(e *model.Element) error {
		e.Payload.(*model.Task).Status = model.StatusInProgress
		return nil
	})
	require.NoError(t, err)

	require.True(t, hookCalled)
	assert.Equal(t, model.StatusOpen, hookOld)
	assert.Equal(t, model.StatusInProgress, hookNew)

	events, err := s.EventsForElement(ctx, elem.ID, 0)
	require.NoError(t, err)
	require.Len(t, events, 3) // created, updated, status_changed
	assert.Equal(t, model.EventStatusChanged, events[0].EventType)
}

func TestUpdateWithoutStatusChangeSkipsHook(t *testing.T) {
	r, _ := newRegistry()
	ctx := context.Background()
	elem, err := r.Create(ctx, model.ElementTask, &model.Task{
		Title: "x", Status: model.StatusOpen, Priority: model.PriorityMedium, TaskType: model.TaskTypeTask,
	}, "user-1", CreateOptions{})
	require.NoError(t, err)

	r.OnStatusChanged = func(ctx context.Context, elementID string, old, new model.Status) {
		t.Fatal("hook should not fire when status is unchanged")
	}
	_, err = r.Update(ctx, elem.ID, "user-1", func(e *model.Element) error {
		e.Payload.(*model.Task).Title = "renamed"
		return nil
	})
	require.NoError(t, err)
}

func TestDeleteFiresHookAndEvent(t *testing.T) {
	r, s := newRegistry()
	ctx := context.Background()
	elem, err := r.Create(ctx, model.ElementTask, &model.Task{
		Title: "x", Status: model.StatusOpen, Priority: model.PriorityMedium, TaskType: model.TaskTypeTask,
	}, "user-1", CreateOptions{})
	require.NoError(t, err)

	deletedID := ""
	r.OnElementDeleted = func(ctx context.Context, elementID string) { deletedID = elementID }

	require.NoError(t, r.Delete(ctx, elem.ID, "user-1", true))
	assert.Equal(t, elem.ID, deletedID)

	events, err := s.EventsForElement(ctx, elem.ID, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, model.EventDeleted, events[0].EventType)
}

func TestGetAndList(t *testing.T) {
	r, _ := newRegistry()
	ctx := context.Background()
	elem, err := r.Create(ctx, model.ElementTask, &model.Task{
		Title: "x", Status: model.StatusOpen, Priority: model.PriorityMedium, TaskType: model.TaskTypeTask,
	}, "user-1", CreateOptions{})
	require.NoError(t, err)

	got, err := r.Get(ctx, elem.ID)
	require.NoError(t, err)
	assert.Equal(t, elem.ID, got.ID)

	taskType := model.ElementTask
	list, err := r.List(ctx, store.ElementFilter{Type: &taskType})
	require.NoError(t, err)
	require.Len(t, list, 1)
}
