package window

import (
	"fmt"
	"testing"

	"wisefido-bridge/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reading(i int) models.Reading {
	return models.Reading{DeviceID: fmt.Sprintf("dev-%d", i), MovementScore: float64(i)}
}

func TestWindow_NeverExceedsCapacity(t *testing.T) {
	w := New(DefaultCapacity)

	for i := 0; i < 100; i++ {
		w.Append(reading(i))
		assert.LessOrEqual(t, w.Len(), DefaultCapacity)
	}
	assert.Equal(t, DefaultCapacity, w.Len())
	assert.Equal(t, DefaultCapacity, w.Cap())
}

func TestWindow_EvictsOldestAfter31Appends(t *testing.T) {
	w := New(30)
	for i := 0; i < 31; i++ {
		w.Append(reading(i))
	}

	all := w.Snapshot(30)
	require.Len(t, all, 30)
	assert.Equal(t, "dev-1", all[0].DeviceID)
	assert.Equal(t, "dev-30", all[29].DeviceID)
	for _, r := range all {
		assert.NotEqual(t, "dev-0", r.DeviceID)
	}
}

func TestWindow_SnapshotLastK(t *testing.T) {
	w := New(5)
	for i := 0; i < 8; i++ {
		w.Append(reading(i))
	}

	last := w.Snapshot(3)
	require.Len(t, last, 3)
	assert.Equal(t, []float64{5, 6, 7}, []float64{last[0].MovementScore, last[1].MovementScore, last[2].MovementScore})

	// 截断到当前条数
	assert.Len(t, w.Snapshot(50), 5)
	assert.Nil(t, w.Snapshot(0))
}

func TestWindow_SnapshotIsACopy(t *testing.T) {
	w := New(3)
	w.Append(reading(1))

	snap := w.Snapshot(1)
	snap[0].MovementScore = 99

	assert.Equal(t, 1.0, w.Snapshot(1)[0].MovementScore)
}

func TestWindow_Empty(t *testing.T) {
	w := New(0)
	assert.Equal(t, DefaultCapacity, w.Cap())
	assert.Equal(t, 0, w.Len())
	assert.Nil(t, w.Snapshot(10))
}
