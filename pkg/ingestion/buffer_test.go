package ingestion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neurascale/neural-engine/pkg/features"
)

func chunkAt(overall float64) *queuedChunk {
	return &queuedChunk{
		deviceID: "dev",
		quality:  features.QualityReport{Overall: overall},
	}
}

func TestBoundedBuffer_OfferUnderWatermarkAlwaysSucceeds(t *testing.T) {
	b := newBoundedBuffer(10, 0.8)
	for i := 0; i < 5; i++ {
		require.NoError(t, b.Offer(chunkAt(0.5)))
	}
	assert.Equal(t, 5, b.Len())
}

func TestBoundedBuffer_ShedsWorseEntryUnderPressure(t *testing.T) {
	b := newBoundedBuffer(4, 0.5) // watermark at 2 items

	require.NoError(t, b.Offer(chunkAt(0.2))) // priority 5.0, worst
	require.NoError(t, b.Offer(chunkAt(0.9))) // priority ~1.1

	// Buffer is now at watermark (2/4). A higher-priority (better
	// quality) chunk should shed the 0.2-quality entry to make room.
	require.NoError(t, b.Offer(chunkAt(0.95)))
	assert.Equal(t, 2, b.Len())

	first := b.Pop()
	require.NotNil(t, first)
	assert.InDelta(t, 0.9, first.quality.Overall, 0.001)
}

func TestBoundedBuffer_BusyWhenWorseThanEverythingQueued(t *testing.T) {
	b := newBoundedBuffer(4, 0.5)

	require.NoError(t, b.Offer(chunkAt(0.9)))
	require.NoError(t, b.Offer(chunkAt(0.95)))

	// Over watermark, and this new chunk is the worst of all three.
	err := b.Offer(chunkAt(0.1))
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, 2, b.Len())
}

func TestBoundedBuffer_FullAtHardCapacityShedsWorst(t *testing.T) {
	b := newBoundedBuffer(2, 1.1) // a watermark above 1 falls back to the default 0.8
	require.NoError(t, b.Offer(chunkAt(0.5)))
	require.NoError(t, b.Offer(chunkAt(0.6)))

	err := b.Offer(chunkAt(0.99))
	// At hard capacity, shedding only helps if there's room after the
	// evict; since capacity==len, a shed must occur for Offer to
	// succeed. The better-quality probe should still shed the worst.
	assert.NoError(t, err)
	assert.Equal(t, 2, b.Len())
}

func TestBoundedBuffer_RecordPacketLossBreaksTies(t *testing.T) {
	b := newBoundedBuffer(3, 0.5) // watermark crosses once 2 items are queued
	b.RecordPacketLoss("dev-a", 10)
	b.RecordPacketLoss("dev-b", 1)

	qa := &queuedChunk{deviceID: "dev-a", quality: features.QualityReport{Overall: 0.5}}
	qb := &queuedChunk{deviceID: "dev-b", quality: features.QualityReport{Overall: 0.5}}
	require.NoError(t, b.Offer(qa))
	require.NoError(t, b.Offer(qb))

	// Equal quality; dev-a has higher recent packet loss so it is
	// shed first when a better chunk arrives.
	better := &queuedChunk{deviceID: "dev-c", quality: features.QualityReport{Overall: 0.95}}
	require.NoError(t, b.Offer(better))

	remaining := []string{}
	for {
		item := b.Pop()
		if item == nil {
			break
		}
		remaining = append(remaining, item.deviceID)
	}
	assert.NotContains(t, remaining, "dev-a")
	assert.Contains(t, remaining, "dev-b")
}

func TestBoundedBuffer_PopEmptyReturnsNil(t *testing.T) {
	b := newBoundedBuffer(4, 0.8)
	assert.Nil(t, b.Pop())
}
