// Package hwbackend defines the hardware-backend abstraction: the boundary
// between the core control packages and whatever reads real sensors and
// drives real relays. Concrete backends (a direct-attached SPI board, an
// MQTT bridge) are out of scope here; only the registry interface they
// implement is specified, plus an in-memory backend used for tests and as
// a safe default.
package hwbackend

import (
	"fmt"
	"sync"
	"time"

	"github.com/thatsimonsguy/rwchcd/internal/rwerr"
	"github.com/thatsimonsguy/rwchcd/internal/units"
)

// InputKind distinguishes the two input resource kinds a backend exposes.
type InputKind int

const (
	Temperature InputKind = iota
	Switch
)

func (k InputKind) String() string {
	if k == Temperature {
		return "temperature"
	}
	return "switch"
}

// ID is a dense, opaque, per-backend numeric identifier resolved once at
// setup/online time. Zero is never issued by a conforming backend.
type ID int

// Value is the atomically-captured reading for one input.
type Value struct {
	Temp units.Temp // valid when the input is a Temperature
	On   bool       // valid when the input is a Switch
}

// Backend is the lifecycle + resolution + I/O contract every hardware
// backend must implement. Setup validates configuration; Online connects to
// hardware and starts any background task; Offline disconnects; Exit
// releases all resources. Names are resolved to IDs once; after that the
// core never passes a name to a backend on the hot path.
type Backend interface {
	Setup(name string) error
	Online() error
	Offline() error
	Exit() error

	InputIBN(kind InputKind, name string) (ID, error)
	OutputIBN(name string) (ID, error)

	InputName(kind InputKind, id ID) (string, error)
	OutputName(id ID) (string, error)

	InputValueGet(kind InputKind, id ID) (Value, error)
	InputTimeGet(kind InputKind, id ID) (time.Time, error)

	OutputStateSet(id ID, state bool) error
}

// Handle is the opaque (backend, resource) pair the core caches after
// resolving a config-time name. It is safe to copy and compare.
type Handle struct {
	Name    string
	backend Backend
	id      ID
	monitor *Monitor // nil for output handles and switch inputs; set for temperature inputs
}

// Temp reads the handle's current temperature. It is the caller's
// responsibility to check units.Usable on the result; a fault is reported
// as one of the sentinel values, not as a Go error, matching the core's
// "usable" policy instead of forcing every call site into error handling
// for a transient sensor glitch.
//
// Every reading is run through the registry's quarantine monitor first: a
// sensor that has returned faultThreshold consecutive unusable readings is
// held unusable until it has shown recoverThreshold consecutive good
// samples, rather than letting control logic see it flap tick to tick.
func (h Handle) Temp() units.Temp {
	if h.backend == nil {
		return units.TempDiscon
	}
	v, err := h.backend.InputValueGet(Temperature, h.id)
	t := v.Temp
	if err != nil {
		t = units.TempDiscon
	}
	if h.monitor != nil && h.monitor.Observe(h.Name, units.Usable(t)) {
		return units.TempDiscon
	}
	return t
}

// SwitchOn reads the handle's current switch state.
func (h Handle) SwitchOn() (bool, error) {
	if h.backend == nil {
		return false, rwerr.New(rwerr.NotConfigured, "switch handle not resolved")
	}
	v, err := h.backend.InputValueGet(Switch, h.id)
	if err != nil {
		return false, rwerr.Wrap(rwerr.Hardware, "switch read failed", err)
	}
	return v.On, nil
}

// LastUpdate reports when the handle's underlying input was last sampled.
func (h Handle) LastUpdate(kind InputKind) time.Time {
	if h.backend == nil {
		return time.Time{}
	}
	t, _ := h.backend.InputTimeGet(kind, h.id)
	return t
}

// SetOutput requests a new output state; it does not by itself guarantee
// the hardware has been driven — backends may coalesce writes into a later
// output phase.
func (h Handle) SetOutput(state bool) error {
	if h.backend == nil {
		return rwerr.New(rwerr.NotConfigured, "output handle not resolved")
	}
	return h.backend.OutputStateSet(h.id, state)
}

// Valid reports whether the handle was actually resolved against a backend.
func (h Handle) Valid() bool { return h.backend != nil }

// Registry holds every configured backend by name and resolves (backend,
// resource) name pairs into cached Handles exactly once, at online time.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Backend
	monitor  *Monitor
}

// NewRegistry returns an empty backend registry. Every temperature input it
// resolves is quarantined by a Monitor with conservative defaults (no
// bootstrap delay, three consecutive faults to quarantine, two consecutive
// good samples to recover); call SetQuarantinePolicy before resolving any
// sensors to tune it.
func NewRegistry() *Registry {
	return &Registry{
		backends: make(map[string]Backend),
		monitor:  NewMonitor(0, 3, 2),
	}
}

// SetQuarantinePolicy replaces the registry's quarantine monitor. It must be
// called before ResolveInput so every temperature handle picks up the new
// policy.
func (r *Registry) SetQuarantinePolicy(bootstrapSamples, faultThreshold, recoverThreshold int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.monitor = NewMonitor(bootstrapSamples, faultThreshold, recoverThreshold)
}

// Register adds a named backend. It must be called before Online.
func (r *Registry) Register(name string, b Backend) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.backends[name]; exists {
		return rwerr.New(rwerr.Exists, fmt.Sprintf("backend %q already registered", name))
	}
	r.backends[name] = b
	return nil
}

func (r *Registry) get(name string) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[name]
	if !ok {
		return nil, rwerr.New(rwerr.NotFound, fmt.Sprintf("backend %q not registered", name))
	}
	return b, nil
}

// ResolveInput resolves a (backend, resource) name pair for a sensor/switch
// input into a cached Handle.
func (r *Registry) ResolveInput(backend string, kind InputKind, name string) (Handle, error) {
	b, err := r.get(backend)
	if err != nil {
		return Handle{}, err
	}
	id, err := b.InputIBN(kind, name)
	if err != nil {
		return Handle{}, rwerr.Wrap(rwerr.NotFound, fmt.Sprintf("input %s/%s not found", backend, name), err)
	}
	h := Handle{Name: name, backend: b, id: id}
	if kind == Temperature {
		h.monitor = r.monitor
	}
	return h, nil
}

// ResolveOutput resolves a (backend, resource) name pair for a relay output.
func (r *Registry) ResolveOutput(backend string, name string) (Handle, error) {
	b, err := r.get(backend)
	if err != nil {
		return Handle{}, err
	}
	id, err := b.OutputIBN(name)
	if err != nil {
		return Handle{}, rwerr.Wrap(rwerr.NotFound, fmt.Sprintf("output %s/%s not found", backend, name), err)
	}
	return Handle{Name: name, backend: b, id: id}, nil
}

// Online brings every registered backend online, collecting (not aborting
// on) individual failures, matching the plant's online() contract of
// attempting every element and returning a collective error.
func (r *Registry) Online() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var failed []string
	for name, b := range r.backends {
		if err := b.Online(); err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", name, err))
		}
	}
	if len(failed) > 0 {
		return rwerr.New(rwerr.Hardware, fmt.Sprintf("backend online failures: %v", failed))
	}
	return nil
}

// Offline mirrors Online.
func (r *Registry) Offline() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var failed []string
	for name, b := range r.backends {
		if err := b.Offline(); err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", name, err))
		}
	}
	if len(failed) > 0 {
		return rwerr.New(rwerr.Hardware, fmt.Sprintf("backend offline failures: %v", failed))
	}
	return nil
}

// Exit releases every backend's resources.
func (r *Registry) Exit() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, b := range r.backends {
		_ = b.Exit()
	}
}
