package trellis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCronTime(t *testing.T) {
	t.Run("rejects_an_invalid_cron_spec", func(t *testing.T) {
		ctrl := NewController()
		loop := NewPollingLoop(nil)
		_, err := NewCronTime(ctrl, loop, "not a cron spec")
		require.Error(t, err)
	})

	t.Run("onFire_queues_a_tick_instead_of_advancing_the_clock_inline", func(t *testing.T) {
		ctrl := NewController()
		loop := NewPollingLoop(nil)
		ct, err := NewCronTime(ctrl, loop, "@every 1h")
		require.NoError(t, err)

		assert.Equal(t, Epoch, ct.Time().Get())

		ct.onFire()
		assert.Equal(t, Epoch, ct.Time().Get(), "the clock only advances once the loop flushes the queued call")
		assert.Equal(t, 1, loop.Flush(0), "the queued call should run exactly once on flush")
	})

	t.Run("the_queued_tick_advances_the_clock_once_flushed", func(t *testing.T) {
		ctrl := NewController()
		loop := NewPollingLoop(nil)
		ct, err := NewCronTime(ctrl, loop, "@every 1h")
		require.NoError(t, err)

		ct.onFire()
		assert.Equal(t, 1, loop.Flush(1))
		got := ct.Time().Get()
		assert.Equal(t, int8(0), got.kind, "a real tick should land a concrete Timer, not a sentinel")
		assert.NotEqual(t, Epoch, got)
	})
}
