package config

import (
	"fmt"
	"time"

	"github.com/thatsimonsguy/rwchcd/internal/actuator"
	"github.com/thatsimonsguy/rwchcd/internal/alarms"
	"github.com/thatsimonsguy/rwchcd/internal/circuit"
	"github.com/thatsimonsguy/rwchcd/internal/dhwt"
	"github.com/thatsimonsguy/rwchcd/internal/heatsource"
	"github.com/thatsimonsguy/rwchcd/internal/hwbackend"
	"github.com/thatsimonsguy/rwchcd/internal/hwbackend/simbackend"
	"github.com/thatsimonsguy/rwchcd/internal/master"
	"github.com/thatsimonsguy/rwchcd/internal/outdoor"
	"github.com/thatsimonsguy/rwchcd/internal/plant"
	"github.com/thatsimonsguy/rwchcd/internal/runtime"
	"github.com/thatsimonsguy/rwchcd/internal/timekeep"
	"github.com/thatsimonsguy/rwchcd/internal/units"
)

// System is everything Build wires together from a Config: the hardware
// registry, the running plant, the process-wide runtime singleton, the
// outdoor model every circuit reads, and the alarm collector. cmd/rwchcd
// assembles a master.Loop around these.
type System struct {
	Registry *hwbackend.Registry
	Plant    *plant.Plant
	Runtime  *runtime.Runtime
	Outdoor  *outdoor.Model
	Alarms   *alarms.Alarms

	// OutdoorSensor is the resolved handle Build wired for the building's
	// outdoor reading, exposed so cmd/rwchcd's input-sampling step can
	// feed it into Outdoor.Update every iteration.
	OutdoorSensor hwbackend.Handle
}

// Build constructs a complete System from a validated Config. Every
// backend kind other than "sim" resolves to an in-memory simbackend.Backend
// standing in for a physical driver that is not wired up yet; Build logs
// nothing and makes no hardware calls (backend Setup is not called either)
// — bringing the system online is the caller's job via
// System.Plant.Online().
func Build(cfg *Config, now timekeep.Tick) (*System, error) {
	reg := hwbackend.NewRegistry()
	if q := cfg.SensorQuarantine; q.FaultThreshold > 0 {
		reg.SetQuarantinePolicy(q.BootstrapSamples, q.FaultThreshold, q.RecoverThreshold)
	}
	sims := make(map[string]*simbackend.Backend, len(cfg.Backends))

	for _, b := range cfg.Backends {
		sim := simbackend.New()
		for _, n := range b.TempSensors {
			sim.AddInput(hwbackend.Temperature, n)
		}
		for _, n := range b.SwitchSensors {
			sim.AddInput(hwbackend.Switch, n)
		}
		for _, n := range b.Relays {
			sim.AddOutput(n)
		}
		if err := reg.Register(b.Name, sim); err != nil {
			return nil, fmt.Errorf("register backend %s: %w", b.Name, err)
		}
		sims[b.Name] = sim
	}

	outdoorSensor, err := reg.ResolveInput(cfg.Building.OutdoorSensor.Backend, hwbackend.Temperature, cfg.Building.OutdoorSensor.Resource)
	if err != nil {
		return nil, fmt.Errorf("resolve outdoor sensor: %w", err)
	}
	om := outdoor.NewModel(cfg.Building.TauMixedSeconds, cfg.Building.TauAttenuatedSeconds, units.CelsiusToTemp(cfg.Building.SummerThresholdCelsius))

	feedSensors := make(map[string]hwbackend.Handle, len(cfg.Circuits))
	p := plant.New(reg, func(name string) units.Temp {
		h, ok := feedSensors[name]
		if !ok {
			return units.TempUnset
		}
		return h.Temp()
	})

	ambientSensors := make(map[string]hwbackend.Handle, len(cfg.Circuits))
	p.SetAmbientReader(func(name string) units.Temp {
		h, ok := ambientSensors[name]
		if !ok {
			return units.TempUnset
		}
		return h.Temp()
	})

	for _, cc := range cfg.Circuits {
		c, feed, ambient, err := buildCircuit(reg, cc, now)
		if err != nil {
			return nil, fmt.Errorf("circuit %s: %w", cc.Name, err)
		}
		if feed.Valid() {
			feedSensors[cc.Name] = feed
		}
		if ambient.Valid() {
			ambientSensors[cc.Name] = ambient
		}
		p.AddCircuit(c)
	}

	dhwtSensors := make(map[string][3]hwbackend.Handle, len(cfg.DHWTs))
	p.SetDHWTSensorReader(func(name string) (units.Temp, units.Temp, units.Temp) {
		trio, ok := dhwtSensors[name]
		if !ok {
			return units.TempUnset, units.TempUnset, units.TempUnset
		}
		top, bottom, inlet := units.TempUnset, units.TempUnset, units.TempUnset
		if trio[0].Valid() {
			top = trio[0].Temp()
		}
		if trio[1].Valid() {
			bottom = trio[1].Temp()
		}
		if trio[2].Valid() {
			inlet = trio[2].Temp()
		}
		return top, bottom, inlet
	})

	for _, dc := range cfg.DHWTs {
		d, top, bottom, inlet, err := buildDHWT(reg, dc, now)
		if err != nil {
			return nil, fmt.Errorf("dhwt %s: %w", dc.Name, err)
		}
		dhwtSensors[dc.Name] = [3]hwbackend.Handle{top, bottom, inlet}
		p.AddDHWT(d)
	}

	for _, hc := range cfg.HeatSources {
		h, err := buildHeatSource(reg, hc, now)
		if err != nil {
			return nil, fmt.Errorf("heat source %s: %w", hc.Name, err)
		}
		p.AddHeatSource(h)
	}

	rt := runtime.New(p)

	var notifierArgs []string
	al := alarms.New(cfg.Alarms.NotifierPath, notifierArgs, time.Duration(cfg.Alarms.ThrottleSeconds)*time.Second)
	p.SetAlarmFunc(al.Raise)

	return &System{
		Registry:      reg,
		Plant:         p,
		Runtime:       rt,
		Outdoor:       om,
		Alarms:        al,
		OutdoorSensor: outdoorSensor,
	}, nil
}

func buildRelay(reg *hwbackend.Registry, name string, rc RelayConfig, now timekeep.Tick) (*actuator.Relay, error) {
	h, err := reg.ResolveOutput(rc.Backend, rc.Resource)
	if err != nil {
		return nil, err
	}
	return actuator.NewRelay(name, h, timekeep.SecToTk(float64(rc.MinOnSeconds)), timekeep.SecToTk(float64(rc.MinOffSeconds)), now), nil
}

func buildPump(reg *hwbackend.Registry, name string, pc PumpConfig, now timekeep.Tick) (*actuator.Pump, error) {
	r, err := buildRelay(reg, name, pc.RelayConfig, now)
	if err != nil {
		return nil, err
	}
	return actuator.NewPump(r, timekeep.SecToTk(float64(pc.CooldownSeconds))), nil
}

func parseValveLaw(s string) actuator.Law {
	switch s {
	case "successive":
		return actuator.SuccessiveApproximation
	case "pi":
		return actuator.PIVelocity
	default:
		return actuator.BangBang
	}
}

func buildValve(reg *hwbackend.Registry, name string, vc *ValveConfig, now timekeep.Tick) (*actuator.Valve, error) {
	open, err := reg.ResolveOutput(vc.OpenBackend, vc.OpenResource)
	if err != nil {
		return nil, fmt.Errorf("open relay: %w", err)
	}
	closeH, err := reg.ResolveOutput(vc.CloseBackend, vc.CloseResource)
	if err != nil {
		return nil, fmt.Errorf("close relay: %w", err)
	}
	openRelay := actuator.NewRelay(name+"_open", open, 0, 0, now)
	closeRelay := actuator.NewRelay(name+"_close", closeH, 0, 0, now)
	ctl := actuator.ControlConfig{
		TDeadzone:      units.DeltaK(vc.TDeadzoneKelvin),
		DeadbandPct:    vc.DeadbandPercent,
		SampleInterval: timekeep.SecToTk(float64(vc.SampleIntervalSecs)),
		AmountPct:      vc.AmountPercent,
		Tu:             vc.TuSeconds,
		Td:             vc.TdSeconds,
	}
	if vc.TempInLowCelsius != 0 || vc.TempInHighCelsius != 0 {
		ctl.TempInLow = units.CelsiusToTemp(vc.TempInLowCelsius)
		ctl.TempInHigh = units.CelsiusToTemp(vc.TempInHighCelsius)
	}
	return actuator.NewValve(name, openRelay, closeRelay, timekeep.SecToTk(float64(vc.TravelSeconds)), parseValveLaw(vc.Law), ctl, now), nil
}

// ParseRunMode maps a config mode string to a circuit.RunMode, used both
// when building a circuit's initial mode and by the scheduler to apply a
// weekly override by name.
func ParseRunMode(s string) circuit.RunMode {
	switch s {
	case "manual":
		return circuit.Manual
	case "eco":
		return circuit.Eco
	case "frostfree":
		return circuit.FrostFree
	case "dhwonly":
		return circuit.DHWOnly
	case "off":
		return circuit.Off
	default:
		return circuit.Comfort
	}
}

func buildCircuit(reg *hwbackend.Registry, cc CircuitConfig, now timekeep.Tick) (*circuit.Circuit, hwbackend.Handle, hwbackend.Handle, error) {
	var feed hwbackend.Handle
	if !cc.FeedWaterSensor.empty() {
		var err error
		feed, err = reg.ResolveInput(cc.FeedWaterSensor.Backend, hwbackend.Temperature, cc.FeedWaterSensor.Resource)
		if err != nil {
			return nil, hwbackend.Handle{}, hwbackend.Handle{}, fmt.Errorf("feed water sensor: %w", err)
		}
	}

	var ambient hwbackend.Handle
	if !cc.AmbientSensor.empty() {
		var err error
		ambient, err = reg.ResolveInput(cc.AmbientSensor.Backend, hwbackend.Temperature, cc.AmbientSensor.Resource)
		if err != nil {
			return nil, hwbackend.Handle{}, hwbackend.Handle{}, fmt.Errorf("ambient sensor: %w", err)
		}
	}

	pump, err := buildPump(reg, cc.Name+"_pump", cc.Pump, now)
	if err != nil {
		return nil, hwbackend.Handle{}, hwbackend.Handle{}, fmt.Errorf("pump: %w", err)
	}

	var valve *actuator.Valve
	if cc.Valve != nil {
		valve, err = buildValve(reg, cc.Name+"_valve", cc.Valve, now)
		if err != nil {
			return nil, hwbackend.Handle{}, hwbackend.Handle{}, fmt.Errorf("valve: %w", err)
		}
	}

	cfg := circuit.Config{
		Law: circuit.TempLaw{
			Tout1:   units.CelsiusToTemp(cc.Law.Tout1Celsius),
			Twater1: units.CelsiusToTemp(cc.Law.Twater1Celsius),
			Tout2:   units.CelsiusToTemp(cc.Law.Tout2Celsius),
			Twater2: units.CelsiusToTemp(cc.Law.Twater2Celsius),
			NH100:   cc.Law.NH100,
		},
		EcoShift:          units.DeltaK(cc.EcoShiftKelvin),
		FrostFreeTemp:     units.CelsiusToTemp(cc.FrostFreeTempCelsius),
		ManualTemp:        units.CelsiusToTemp(cc.ManualTempCelsius),
		RorLimitPerHour:   units.DeltaK(cc.RorLimitPerHourKelvin),
		OutdoorCutoffHigh: units.CelsiusToTemp(cc.OutdoorCutoffHighCelsius),
		OutdoorCutoffLow:  units.CelsiusToTemp(cc.OutdoorCutoffLowCelsius),
		ComfortAmbient:    units.CelsiusToTemp(cc.ComfortAmbientCelsius),
		EcoAmbient:        units.CelsiusToTemp(cc.EcoAmbientCelsius),
		FrostFreeAmbient:  units.CelsiusToTemp(cc.FrostFreeAmbientCelsius),
		AmbientFactorPct:  cc.AmbientFactorPct,
		SetToffset:        units.DeltaK(cc.SetToffsetKelvin),
		LimitWtMin:        units.CelsiusToTemp(cc.LimitWtMinCelsius),
		LimitWtMax:        units.CelsiusToTemp(cc.LimitWtMaxCelsius),
		TempInOffset:      units.DeltaK(cc.TempInOffsetKelvin),
	}

	c := circuit.New(cc.Name, cfg, valve, pump, now)
	if err := c.SetMode(ParseRunMode(cc.InitialMode)); err != nil {
		return nil, hwbackend.Handle{}, hwbackend.Handle{}, err
	}
	return c, feed, ambient, nil
}

func buildDHWT(reg *hwbackend.Registry, dc DHWTConfig, now timekeep.Tick) (*dhwt.DHWT, hwbackend.Handle, hwbackend.Handle, hwbackend.Handle, error) {
	var top, bottom, inlet hwbackend.Handle
	var err error
	if !dc.TopSensor.empty() {
		top, err = reg.ResolveInput(dc.TopSensor.Backend, hwbackend.Temperature, dc.TopSensor.Resource)
		if err != nil {
			return nil, hwbackend.Handle{}, hwbackend.Handle{}, hwbackend.Handle{}, fmt.Errorf("top sensor: %w", err)
		}
	}
	if !dc.BottomSensor.empty() {
		bottom, err = reg.ResolveInput(dc.BottomSensor.Backend, hwbackend.Temperature, dc.BottomSensor.Resource)
		if err != nil {
			return nil, hwbackend.Handle{}, hwbackend.Handle{}, hwbackend.Handle{}, fmt.Errorf("bottom sensor: %w", err)
		}
	}
	if !dc.InletSensor.empty() {
		inlet, err = reg.ResolveInput(dc.InletSensor.Backend, hwbackend.Temperature, dc.InletSensor.Resource)
		if err != nil {
			return nil, hwbackend.Handle{}, hwbackend.Handle{}, hwbackend.Handle{}, fmt.Errorf("inlet sensor: %w", err)
		}
	}

	feedPump, err := buildPump(reg, dc.Name+"_feed_pump", dc.FeedPump, now)
	if err != nil {
		return nil, hwbackend.Handle{}, hwbackend.Handle{}, hwbackend.Handle{}, fmt.Errorf("feed pump: %w", err)
	}

	var recyclePump *actuator.Pump
	if dc.RecyclePump != nil {
		recyclePump, err = buildPump(reg, dc.Name+"_recycle_pump", *dc.RecyclePump, now)
		if err != nil {
			return nil, hwbackend.Handle{}, hwbackend.Handle{}, hwbackend.Handle{}, fmt.Errorf("recycle pump: %w", err)
		}
	}

	var electric *actuator.Relay
	if dc.ElectricRelay != nil {
		electric, err = buildRelay(reg, dc.Name+"_electric", *dc.ElectricRelay, now)
		if err != nil {
			return nil, hwbackend.Handle{}, hwbackend.Handle{}, hwbackend.Handle{}, fmt.Errorf("electric relay: %w", err)
		}
	}

	// An unset lockout duration defaults to the charge-time limit itself:
	// the tank sits out for as long as it was allowed to charge.
	lockoutSecs := dc.LockoutDurationSecs
	if lockoutSecs == 0 {
		lockoutSecs = dc.MaxChargeDurationSecs
	}

	cfg := dhwt.Config{
		Target:            units.CelsiusToTemp(dc.TargetCelsius),
		TripBelow:         units.DeltaK(dc.TripBelowKelvin),
		UntripAbove:       units.DeltaK(dc.UntripAboveKelvin),
		MaxChargeDuration: timekeep.SecToTk(float64(dc.MaxChargeDurationSecs)),
		LockoutDuration:   timekeep.SecToTk(float64(lockoutSecs)),
		LimitWinTMax:      units.CelsiusToTemp(dc.LimitWinTMaxCelsius),
		TempInOffset:      units.DeltaK(dc.TempInOffsetKelvin),
		ElectricFailover:  dc.ElectricFailover,
	}

	return dhwt.New(dc.Name, cfg, feedPump, recyclePump, electric), top, bottom, inlet, nil
}

func parseIdleMode(s string) heatsource.IdleMode {
	switch s {
	case "frostonly":
		return heatsource.IdleFrostOnly
	case "always":
		return heatsource.IdleAlways
	default:
		return heatsource.IdleNever
	}
}

func buildHeatSource(reg *hwbackend.Registry, hc HeatSourceConfig, now timekeep.Tick) (*heatsource.HeatSource, error) {
	feed, err := reg.ResolveInput(hc.FeedWaterSensor.Backend, hwbackend.Temperature, hc.FeedWaterSensor.Resource)
	if err != nil {
		return nil, fmt.Errorf("feed water sensor: %w", err)
	}
	// The burner's minimum burn time is enforced as the relay's own
	// min-dwell, in both directions, raising whatever the relay declares to
	// at least that time.
	burnerRelayCfg := hc.BurnerRelay
	if hc.BurnerMinTimeSecs > burnerRelayCfg.MinOnSeconds {
		burnerRelayCfg.MinOnSeconds = hc.BurnerMinTimeSecs
	}
	if hc.BurnerMinTimeSecs > burnerRelayCfg.MinOffSeconds {
		burnerRelayCfg.MinOffSeconds = hc.BurnerMinTimeSecs
	}
	burner, err := buildRelay(reg, hc.Name+"_burner", burnerRelayCfg, now)
	if err != nil {
		return nil, fmt.Errorf("burner relay: %w", err)
	}

	var loadPump *actuator.Pump
	if hc.LoadPump != nil {
		loadPump, err = buildPump(reg, hc.Name+"_loadpump", *hc.LoadPump, now)
		if err != nil {
			return nil, fmt.Errorf("load pump: %w", err)
		}
	}

	cfg := heatsource.Config{
		Idle:              parseIdleMode(hc.Idle),
		FreezeTemp:        units.CelsiusToTemp(hc.FreezeTempCelsius),
		LimitTMin:         units.CelsiusToTemp(hc.LimitTMinCelsius),
		LimitTMax:         units.CelsiusToTemp(hc.LimitTMaxCelsius),
		LimitTHardMax:     units.CelsiusToTemp(hc.LimitTHardMaxCelsius),
		Hysteresis:        units.DeltaK(hc.HysteresisKelvin),
		ConsumerStopDelay: timekeep.SecToTk(float64(hc.ConsumerStopDelaySecs)),
	}

	return heatsource.New(hc.Name, cfg, burner, loadPump, func() units.Temp { return feed.Temp() }), nil
}

// NewWatchdog builds the master.Watchdog implied by a MasterLoopConfig.
func (cfg *Config) NewWatchdog() *master.Watchdog {
	return master.NewWatchdog(time.Duration(cfg.MasterLoop.WatchdogTimeoutSeconds * float64(time.Second)))
}
