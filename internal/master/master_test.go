package master_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/rwchcd/internal/alarms"
	"github.com/thatsimonsguy/rwchcd/internal/hwbackend"
	"github.com/thatsimonsguy/rwchcd/internal/master"
	"github.com/thatsimonsguy/rwchcd/internal/outdoor"
	"github.com/thatsimonsguy/rwchcd/internal/plant"
	"github.com/thatsimonsguy/rwchcd/internal/runtime"
	"github.com/thatsimonsguy/rwchcd/internal/timekeep"
	"github.com/thatsimonsguy/rwchcd/internal/units"
)

func TestLoopRunsIterationsAndChecksInWithWatchdog(t *testing.T) {
	clk := timekeep.NewManual()
	p := plant.New(hwbackend.NewRegistry(), func(string) units.Temp { return units.TempUnset })
	rt := runtime.New(p)
	om := outdoor.NewModel(600, 3600, units.CelsiusToTemp(18))
	al := alarms.New("", nil, time.Minute)
	wd := master.NewWatchdog(time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go wd.Run(ctx)

	sampled := 0
	loop := &master.Loop{
		Clock: clk, Runtime: rt, Outdoor: om, Alarms: al, Watchdog: wd,
		Period: 5 * time.Millisecond, WatchdogAckWait: time.Second,
		InputSample: func(now timekeep.Tick) { sampled++ },
	}

	runCtx, runCancel := context.WithTimeout(ctx, 40*time.Millisecond)
	defer runCancel()
	err := loop.Run(runCtx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Greater(t, sampled, 0)

	select {
	case <-wd.Aborted():
		t.Fatal("watchdog should not have aborted while the loop was checking in")
	default:
	}
}

func TestLoopSkipsPlantRunWhenSystemOff(t *testing.T) {
	clk := timekeep.NewManual()
	p := plant.New(hwbackend.NewRegistry(), func(string) units.Temp { return units.TempUnset })
	rt := runtime.New(p)
	require.NoError(t, rt.SetSystemMode(runtime.SystemOff))
	om := outdoor.NewModel(600, 3600, units.CelsiusToTemp(18))

	loop := &master.Loop{Clock: clk, Runtime: rt, Outdoor: om, Period: 5 * time.Millisecond}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Millisecond)
	defer cancel()
	err := loop.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
