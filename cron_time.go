package trellis

import (
	"time"

	"github.com/robfig/cron/v3"
)

// CronTime drives a Time service from a cron schedule instead of a
// real-time ticker: each firing calls Tick with the wall-clock instant
// cron handed it, through loop.Call so the advance happens serialized with
// everything else touching the graph.
//
// Grounded on robfig/cron/v3's Cron type; activity.py's Time.auto_update
// plays the equivalent role of "something external drives the clock
// forward," here specialized to a cron expression instead of a fixed
// interval.
type CronTime struct {
	cron *cron.Cron
	time *Time
	loop EventLoop
	id   cron.EntryID
}

// NewCronTime creates a Time service advanced according to spec (standard
// five-field cron syntax). Call Start to begin ticking.
func NewCronTime(ctrl *Controller, loop EventLoop, spec string) (*CronTime, error) {
	ct := &CronTime{
		cron: cron.New(),
		time: NewTime(ctrl),
		loop: loop,
	}
	id, err := ct.cron.AddFunc(spec, ct.onFire)
	if err != nil {
		return nil, err
	}
	ct.id = id
	return ct, nil
}

func (ct *CronTime) onFire() {
	now := time.Now()
	ct.loop.Call(func() error {
		return ct.time.Tick(now)
	})
}

// Time returns the underlying Time service cells depend on.
func (ct *CronTime) Time() *Time { return ct.time }

// Start begins the cron scheduler.
func (ct *CronTime) Start() { ct.cron.Start() }

// Stop halts the cron scheduler, letting any in-flight firing finish.
func (ct *CronTime) Stop() {
	ctx := ct.cron.Stop()
	<-ctx.Done()
}
