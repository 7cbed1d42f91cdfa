package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDependencyValidateRejectsSelfDependency(t *testing.T) {
	d := &Dependency{BlockedID: "el-a", BlockerID: "el-a", Type: DepBlocks, CreatedBy: "user-1"}
	err := d.Validate()
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "blockerId", verr.Field)
}

func TestDependencyValidateRejectsThreadIDOnNonRelatesTo(t *testing.T) {
	thread := "thread-1"
	d := &Dependency{BlockedID: "el-a", BlockerID: "el-b", Type: DepBlocks, CreatedBy: "user-1", ThreadID: &thread}
	err := d.Validate()
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "threadId", verr.Field)
}

func TestDependencyValidateAllowsThreadIDOnRelatesTo(t *testing.T) {
	thread := "thread-1"
	d := &Dependency{BlockedID: "el-a", BlockerID: "el-b", Type: DepRelatesTo, CreatedBy: "user-1", ThreadID: &thread}
	assert.NoError(t, d.Validate())
}

func TestDependencyTypeGating(t *testing.T) {
	assert.True(t, DepBlocks.Gating())
	assert.True(t, DepParentChild.Gating())
	assert.True(t, DepAwaits.Gating())
	assert.False(t, DepRelatesTo.Gating())
}

func TestDependencyTypeSameTypeCyclable(t *testing.T) {
	assert.True(t, DepBlocks.SameTypeCyclable())
	assert.True(t, DepParentChild.SameTypeCyclable())
	assert.False(t, DepAwaits.SameTypeCyclable())
	assert.False(t, DepRelatesTo.SameTypeCyclable())
}

func TestScanOrderMatchesSpec(t *testing.T) {
	assert.Equal(t, []DependencyType{DepBlocks, DepParentChild, DepAwaits}, ScanOrder)
}

func TestAwaitsMetadataValidateTimerRequiresWaitUntil(t *testing.T) {
	m := &AwaitsMetadata{GateType: GateTimer}
	err := m.Validate()
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "waitUntil", verr.Field)

	m.WaitUntil = time.Now()
	assert.NoError(t, m.Validate())
}

func TestAwaitsMetadataValidateApprovalRequiresApproversOrCount(t *testing.T) {
	m := &AwaitsMetadata{GateType: GateApproval}
	err := m.Validate()
	require.Error(t, err)

	m.ApprovalCount = 2
	assert.NoError(t, m.Validate())
}

func TestAwaitsMetadataValidateExternalNeedsNoKey(t *testing.T) {
	m := &AwaitsMetadata{GateType: GateExternal}
	require.NoError(t, m.Validate())
	assert.Empty(t, m.ExternalKey)

	m.GateType = GateWebhook
	assert.NoError(t, m.Validate())
}

func TestAwaitsMetadataRoundTripsThroughMap(t *testing.T) {
	wait := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	satisfiedAt := wait.Add(time.Hour)
	original := &AwaitsMetadata{
		GateType:          GateApproval,
		RequiredApprovers: []string{"alice", "bob"},
		ApprovalCount:     2,
		CurrentApprovers:  []string{"alice"},
		Satisfied:         true,
		SatisfiedAt:       &satisfiedAt,
		SatisfiedBy:       "bob",
		WaitUntil:         wait,
	}

	roundTripped, err := AwaitsMetadataFromMap(original.ToMap())
	require.NoError(t, err)
	assert.Equal(t, original.GateType, roundTripped.GateType)
	assert.Equal(t, original.RequiredApprovers, roundTripped.RequiredApprovers)
	assert.Equal(t, original.ApprovalCount, roundTripped.ApprovalCount)
	assert.Equal(t, original.CurrentApprovers, roundTripped.CurrentApprovers)
	assert.True(t, roundTripped.Satisfied)
	assert.Equal(t, original.SatisfiedBy, roundTripped.SatisfiedBy)
	require.NotNil(t, roundTripped.SatisfiedAt)
	assert.True(t, original.SatisfiedAt.Equal(*roundTripped.SatisfiedAt))
	assert.True(t, original.WaitUntil.Equal(roundTripped.WaitUntil))
}

func TestAwaitsMetadataFromMapRejectsBadTimestamp(t *testing.T) {
	_, err := AwaitsMetadataFromMap(map[string]any{
		"gateType":  "timer",
		"waitUntil": "not-a-timestamp",
	})
	require.Error(t, err)
}
