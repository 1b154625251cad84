package trellis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimerLessAndEqual(t *testing.T) {
	a := At(time.Unix(100, 0))
	b := At(time.Unix(200, 0))

	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))
	assert.True(t, NotYet.Equal(Forever), "Forever is NotYet under another name")
	assert.True(t, a.Less(NotYet), "every concrete instant is earlier than the NotYet sentinel")
	assert.False(t, NotYet.Less(a))
	assert.True(t, a.Equal(At(time.Unix(100, 0))))
}

func TestTimerBeginsWith(t *testing.T) {
	t0 := At(time.Unix(0, 0))
	t1 := At(time.Unix(10, 0))
	t2 := At(time.Unix(20, 0))

	assert.Equal(t, NotYet, NotYet.BeginsWith(false, t0), "a false flag always resets to NotYet")

	started := NotYet.BeginsWith(true, t1)
	assert.Equal(t, t1, started, "the first true reading starts the streak at now")

	stillGoing := started.BeginsWith(true, t2)
	assert.Equal(t, t1, stillGoing, "BeginsWith keeps the earlier of the recorded start and now")

	assert.Equal(t, NotYet, stillGoing.BeginsWith(false, t2), "the streak resets the moment flag goes false")
}

func TestTimerSub(t *testing.T) {
	a := At(time.Unix(100, 0))
	b := At(time.Unix(40, 0))
	assert.Equal(t, 60*time.Second, a.Sub(b))
	assert.Equal(t, time.Duration(0), NotYet.Sub(b), "a sentinel extreme has no finite distance from a concrete instant")
	assert.Equal(t, time.Duration(0), a.Sub(NotYet))
}

func TestTimeAdvanceFiresDueEvents(t *testing.T) {
	ctrl := NewController()
	tm := NewTime(ctrl)
	assert.Equal(t, Epoch, tm.Get())

	var fired []string
	tm.ScheduleAt(At(tm.Get().when.Add(5*time.Second)), func() { fired = append(fired, "five") })
	tm.ScheduleAt(At(tm.Get().when.Add(10*time.Second)), func() { fired = append(fired, "ten") })

	require.NoError(t, tm.Advance(5*time.Second))
	assert.Equal(t, []string{"five"}, fired)

	require.NoError(t, tm.Advance(5*time.Second))
	assert.Equal(t, []string{"five", "ten"}, fired)

	require.NoError(t, tm.Advance(time.Second))
	assert.Equal(t, []string{"five", "ten"}, fired, "a fired event is dropped and never fires again")
}

func TestTimeTickSetsAnAbsoluteInstant(t *testing.T) {
	ctrl := NewController()
	tm := NewTime(ctrl)

	target := time.Unix(1000, 0)
	require.NoError(t, tm.Tick(target))
	assert.True(t, tm.Get().Equal(At(target)))
}

func TestTimeReached(t *testing.T) {
	ctrl := NewController()
	tm := NewTime(ctrl)

	deadline := At(tm.Get().when.Add(time.Minute))
	assert.False(t, tm.Reached(deadline))
	assert.False(t, tm.Reached(NotYet))

	require.NoError(t, tm.Advance(time.Minute))
	assert.True(t, tm.Reached(deadline))
}

func TestTimeScheduleAtFiresImmediatelyIfAlreadyReached(t *testing.T) {
	ctrl := NewController()
	tm := NewTime(ctrl)
	require.NoError(t, tm.Advance(time.Hour))

	fired := false
	tm.ScheduleAt(Epoch, func() { fired = true })
	assert.True(t, fired, "scheduling for a deadline already in the past fires right away")
}

func TestTimeScheduleAtCancel(t *testing.T) {
	ctrl := NewController()
	tm := NewTime(ctrl)

	fired := false
	cancel := tm.ScheduleAt(At(tm.Get().when.Add(time.Second)), func() { fired = true })
	cancel()

	require.NoError(t, tm.Advance(time.Hour))
	assert.False(t, fired, "a cancelled event must not fire even once its deadline passes")
}

func TestTimeNextEventTime(t *testing.T) {
	ctrl := NewController()
	tm := NewTime(ctrl)

	_, ok := tm.NextEventTime(false)
	assert.False(t, ok, "nothing scheduled yet")

	near := At(tm.Get().when.Add(5 * time.Second))
	far := At(tm.Get().when.Add(time.Hour))
	tm.ScheduleAt(far, func() {})
	tm.ScheduleAt(near, func() {})

	got, ok := tm.NextEventTime(false)
	require.True(t, ok)
	assert.True(t, got.Equal(near), "NextEventTime reports the nearest pending deadline")

	rel, ok := tm.NextEventTime(true)
	require.True(t, ok)
	assert.Equal(t, 5*time.Second, rel.Sub(Epoch))
}
