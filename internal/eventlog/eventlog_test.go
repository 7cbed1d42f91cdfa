package eventlog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stoneforge-ai/stoneforge/internal/model"
	"github.com/stoneforge-ai/stoneforge/internal/store/memstore"
)

func TestAppendAndForElement(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()

	_, err := Append(ctx, s, "el-1", model.EventCreated, "user-1", nil)
	require.NoError(t, err)

	events, err := ForElement(ctx, s, "el-1", 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventCreated, events[0].EventType)
	assert.Nil(t, events[0].OldValue)
}

func TestAppendStatusChange(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()

	_, err := AppendStatusChange(ctx, s, "el-1", "user-1", model.StatusOpen, model.StatusInProgress)
	require.NoError(t, err)

	events, err := ForElement(ctx, s, "el-1", 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventStatusChanged, events[0].EventType)
	require.NotNil(t, events[0].OldValue)
	require.NotNil(t, events[0].NewValue)
	assert.Equal(t, string(model.StatusOpen), *events[0].OldValue)
	assert.Equal(t, string(model.StatusInProgress), *events[0].NewValue)
}

func TestSinceOrdering(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()

	id1, err := Append(ctx, s, "el-1", model.EventCreated, "u", nil)
	require.NoError(t, err)
	_, err = Append(ctx, s, "el-1", model.EventUpdated, "u", func() ([]byte, []byte) {
		return nil, []byte(`{"title":"new"}`)
	})
	require.NoError(t, err)

	since, err := Since(ctx, s, id1, 0)
	require.NoError(t, err)
	require.Len(t, since, 1)
	assert.Equal(t, model.EventUpdated, since[0].EventType)
}
