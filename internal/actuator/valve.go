package actuator

import (
	"github.com/thatsimonsguy/rwchcd/internal/timekeep"
	"github.com/thatsimonsguy/rwchcd/internal/units"
)

// Law selects which control strategy a Valve uses to chase its target
// output temperature. Each law turns a (target, measured output) pair into
// a requested action and course; Valve itself owns the shared position
// integrator, end-stop detection and break-before-make interlock so no law
// can command both relays on at once.
type Law int

const (
	BangBang Law = iota
	SuccessiveApproximation
	PIVelocity
)

// Action is what a valve is currently being asked to do with its motor.
type Action int

const (
	Stop Action = iota
	Open
	Close
)

func (a Action) String() string {
	switch a {
	case Open:
		return "open"
	case Close:
		return "close"
	default:
		return "stop"
	}
}

// fullCourseTenths is the course requested for a "drive to the end stop"
// command: 120% of full travel, so integration drift can never leave the
// valve short of the stop it was sent to.
const fullCourseTenths = 1200

// piTuningFactor is the closed-loop aggressiveness divisor for the PI law;
// 10 is the moderate tuning the control law was characterized with.
const piTuningFactor = 10.0

// ControlConfig carries a valve control law's tuning. Zero values get
// usable defaults at construction so a config file only has to name the
// law it wants.
type ControlConfig struct {
	// TDeadzone is the temperature band around the target inside which the
	// valve is considered on-temperature and left alone.
	TDeadzone units.Delta

	// DeadbandPct is the smallest move, in percent of full travel, worth
	// commanding at all; smaller PI outputs accumulate instead of wearing
	// the motor with sub-perceptible nudges.
	DeadbandPct float64

	// SampleInterval is how often the successive-approximation and PI laws
	// take a fresh decision; between samples the integrator just keeps
	// executing the last course.
	SampleInterval timekeep.Tick

	// AmountPct is the fixed corrective step of the successive-approximation
	// law, in percent of full travel.
	AmountPct float64

	// TempInLow/TempInHigh are the PI law's jacketing bounds: a target at or
	// below TempInLow means the hot inlet cannot help and the valve is sent
	// fully closed; at or above TempInHigh, fully open. Their span also sets
	// the process gain.
	TempInLow  units.Temp
	TempInHigh units.Temp

	// Tu and Td are the process ultimate period and dead time in seconds,
	// from which the PI gains are derived.
	Tu float64
	Td float64
}

func (c ControlConfig) withDefaults(eteTime timekeep.Tick) ControlConfig {
	if c.TDeadzone == 0 {
		c.TDeadzone = units.DeltaK(2)
	}
	if c.DeadbandPct == 0 {
		c.DeadbandPct = 2
	}
	if c.SampleInterval == 0 {
		c.SampleInterval = timekeep.SecToTk(10)
	}
	if c.AmountPct == 0 {
		c.AmountPct = 5
	}
	if c.TempInLow == 0 {
		c.TempInLow = units.CelsiusToTemp(20)
	}
	if c.TempInHigh == 0 {
		c.TempInHigh = units.CelsiusToTemp(80)
	}
	if c.Tu == 0 {
		c.Tu = timekeep.TkToSec(eteTime)
	}
	if c.Tu == 0 {
		c.Tu = 60
	}
	return c
}

// Valve models a two-relay motorized mixing valve. Position is tracked in
// tenths of a percent (0 = fully closed, 1000 = fully open) by integrating
// drive time against the valve's end-to-end travel time, since there is no
// direct position feedback. Running a relay for 3x the end-to-end time is
// taken as proof the valve is actually at that end stop (true_pos), which
// resynchronizes the estimate and corrects for any drift accumulated from
// missed or stretched cycles; once there, further motion into the stop is
// suppressed.
type Valve struct {
	name   string
	open   *Relay
	close_ *Relay

	eteTime timekeep.Tick
	law     Law
	cfg     ControlConfig

	position int // 0..1000, estimated unless truePos
	truePos  bool

	lastUpdate timekeep.Tick
	accOpen    timekeep.Tick
	accClose   timekeep.Tick

	action Action
	course int // tenths of a percent remaining in the current action

	// sampled-law state, shared by successive-approximation and PI
	sampled    bool
	lastSample timekeep.Tick

	// PI velocity-form state
	kp, ki     float64
	prevOutput units.Temp
	dbAcc      float64
	piReset    bool
}

// NewValve builds a valve driven by two relays (already constructed with
// their own min-dwell semantics), with the given full-travel time, control
// law and law tuning. now seeds the position integrator clock; the valve
// starts assumed fully closed, not true_pos, until end-stop detection
// confirms it.
func NewValve(name string, open, close_ *Relay, eteTime timekeep.Tick, law Law, cfg ControlConfig, now timekeep.Tick) *Valve {
	v := &Valve{
		name: name, open: open, close_: close_,
		eteTime: eteTime, law: law,
		cfg:        cfg.withDefaults(eteTime),
		lastUpdate: now,
		piReset:    true,
	}
	k := (v.cfg.TempInHigh.Sub(v.cfg.TempInLow)).ToKelvin() / 100
	if k < 0 {
		k = -k
	}
	if k == 0 {
		k = 1
	}
	tc := piTuningFactor * maxFloat(v.cfg.Tu, 8*v.cfg.Td) / 10
	kpU := v.cfg.Tu / (v.cfg.Td + tc)
	v.kp = kpU / k
	v.ki = v.kp / v.cfg.Tu
	return v
}

// Position returns the current estimated position, 0..1000.
func (v *Valve) Position() int { return v.position }

// Name returns the valve's identifying name.
func (v *Valve) Name() string { return v.name }

// OpenRelay returns the valve's opening-direction relay, for persisting its
// accounting across restarts.
func (v *Valve) OpenRelay() *Relay { return v.open }

// CloseRelay returns the valve's closing-direction relay.
func (v *Valve) CloseRelay() *Relay { return v.close_ }

// TruePos reports whether the position is exactly known (confirmed at an
// end stop) rather than merely integrated.
func (v *Valve) TruePos() bool { return v.truePos }

// RequestAction returns the valve's current requested action.
func (v *Valve) RequestAction() Action { return v.action }

// RequestCourse asks the valve to travel tenths (tenths of a percent of
// full travel) in the given direction, replacing whatever course was
// previously pending.
func (v *Valve) RequestCourse(a Action, tenths int) {
	if a == Stop || tenths <= 0 {
		v.RequestStop()
		return
	}
	v.action = a
	v.course = tenths
}

// RequestStop cancels any pending course.
func (v *Valve) RequestStop() {
	v.action = Stop
	v.course = 0
}

// RequestOpenFull drives the valve into its open end stop.
func (v *Valve) RequestOpenFull() { v.RequestCourse(Open, fullCourseTenths) }

// RequestCloseFull drives the valve into its closed end stop.
func (v *Valve) RequestCloseFull() { v.RequestCourse(Close, fullCourseTenths) }

// ControlTemp runs the valve's configured control law against the target
// output temperature and the measured output temperature, converting the
// error into a requested action and course. Update must still be called to
// actually drive the relays and advance the position estimate.
func (v *Valve) ControlTemp(now timekeep.Tick, target, output units.Temp) {
	if !units.Usable(target) || !units.Usable(output) {
		v.RequestStop()
		return
	}
	switch v.law {
	case BangBang:
		v.controlBangBang(target, output)
	case SuccessiveApproximation:
		v.controlSuccessive(now, target, output)
	default:
		v.controlPIVelocity(now, target, output)
	}
}

// controlBangBang compares output to target: inside the dead-zone the
// valve is stopped, outside it the valve is sent hard at the relevant end
// stop. The crudest law, adequate for a valve whose loop has enough
// thermal inertia to smooth the swings.
func (v *Valve) controlBangBang(target, output units.Temp) {
	err := target.Sub(output)
	switch {
	case err > v.cfg.TDeadzone:
		v.RequestCourse(Open, fullCourseTenths)
	case err < -v.cfg.TDeadzone:
		v.RequestCourse(Close, fullCourseTenths)
	default:
		v.RequestStop()
	}
}

// controlSuccessive requests a fixed AmountPct move in the corrective
// direction once per SampleInterval, converging in bounded steps without
// needing a tuned gain.
func (v *Valve) controlSuccessive(now timekeep.Tick, target, output units.Temp) {
	if !v.takeSample(now) {
		return
	}
	err := target.Sub(output)
	half := v.cfg.TDeadzone / 2
	amount := int(v.cfg.AmountPct * 10)
	switch {
	case err > half:
		v.RequestCourse(Open, amount)
	case err < -half:
		v.RequestCourse(Close, amount)
	default:
		v.RequestStop()
	}
}

// controlPIVelocity is a velocity-form PI law on the output temperature:
// each sample computes an incremental command from the integral of the
// error plus the change in measured output, rather than an absolute
// position, so no absolute controller output has to survive a restart.
// Commands smaller than the dead-band accumulate instead of being issued,
// sparing the motor from sub-perceptible nudges.
func (v *Valve) controlPIVelocity(now timekeep.Tick, target, output units.Temp) {
	if !v.takeSample(now) {
		return
	}
	dt := timekeep.TkToSec(v.cfg.SampleInterval)

	// Jacketing: a target outside the achievable inlet span can only be
	// chased to an end stop; do that directly and restart the controller
	// state when normal operation resumes.
	if target <= v.cfg.TempInLow {
		v.RequestCloseFull()
		v.piReset = true
		return
	}
	if target >= v.cfg.TempInHigh {
		v.RequestOpenFull()
		v.piReset = true
		return
	}

	err := target.Sub(output)
	if abs(int(err)) < int(v.cfg.TDeadzone)/2 {
		v.piReset = true
		return
	}

	if v.piReset {
		v.prevOutput = output
		v.dbAcc = 0
		v.piReset = false
	}

	iterm := v.ki * err.ToKelvin() * dt
	pterm := v.kp * v.prevOutput.Sub(output).ToKelvin()
	pct := iterm + pterm + v.dbAcc

	if pct < v.cfg.DeadbandPct && pct > -v.cfg.DeadbandPct {
		v.dbAcc += iterm
		return
	}
	v.prevOutput = output
	v.dbAcc = 0

	tenths := int(pct * 10)
	if tenths > 0 {
		v.RequestCourse(Open, tenths)
	} else {
		v.RequestCourse(Close, -tenths)
	}
}

// takeSample reports whether a sampled law is due for a fresh decision,
// advancing the sample clock if so.
func (v *Valve) takeSample(now timekeep.Tick) bool {
	if v.sampled && !timekeep.AGeB(now, v.lastSample+v.cfg.SampleInterval) {
		return false
	}
	v.sampled = true
	v.lastSample = now
	return true
}

// Update executes the current action for one scheduling tick: it drives
// the relays (break-before-make), advances the position estimate by the
// elapsed travel, burns down the remaining course, and handles end-stop
// detection. Returns the new position estimate.
func (v *Valve) Update(now timekeep.Tick) (int, error) {
	elapsed := now - v.lastUpdate
	v.lastUpdate = now

	v.integrate(elapsed)

	// Per-tick step and half-step stop criterion: once the remaining course
	// is less than half of what one tick of travel covers, stopping now is
	// closer to the request than another full tick would be.
	step := int(elapsed) * 1000 / int(v.eteTime)
	if v.action != Stop && v.course < step/2 {
		v.RequestStop()
	}

	// End-stop suppression: driving further into a confirmed stop only
	// stalls the motor.
	if v.truePos {
		if v.action == Open && v.position >= 1000 {
			v.RequestStop()
		}
		if v.action == Close && v.position <= 0 {
			v.RequestStop()
		}
	}

	// Break-before-make: the opposing relay is always written (released)
	// before the new direction is energized; the relays' own dwell
	// accounting enforces any configured make delay.
	v.open.RequestOn(v.action == Open)
	v.close_.RequestOn(v.action == Close)

	var errOpen, errClose error
	if v.action == Open {
		_, errClose = v.close_.Update(now)
		_, errOpen = v.open.Update(now)
	} else {
		_, errOpen = v.open.Update(now)
		_, errClose = v.close_.Update(now)
	}

	if errOpen != nil {
		return v.position, errOpen
	}
	return v.position, errClose
}

func (v *Valve) integrate(elapsed timekeep.Tick) {
	if elapsed <= 0 {
		return
	}
	step := int(elapsed) * 1000 / int(v.eteTime)

	// The direction accumulators reset only on reversal, not on a stop: an
	// interrupted drive toward the same stop still counts toward end-stop
	// confirmation.
	switch {
	case v.open.IsOn():
		v.position += step
		v.course -= step
		v.accOpen += elapsed
		v.accClose = 0
	case v.close_.IsOn():
		v.position -= step
		v.course -= step
		v.accClose += elapsed
		v.accOpen = 0
	}
	if v.course < 0 {
		v.course = 0
	}

	if v.accOpen >= 3*v.eteTime {
		v.position = 1000
		v.truePos = true
	}
	if v.accClose >= 3*v.eteTime {
		v.position = 0
		v.truePos = true
	}
	v.position = clampInt(v.position, 0, 1000)
}

func clampInt(x, lo, hi int) int {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
