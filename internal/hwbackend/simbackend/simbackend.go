// Package simbackend implements an in-memory hwbackend.Backend, standing in
// for a real SPI- or MQTT-attached board. It is the default backend for
// tests and for any configured resource with no real hardware behind it
// yet.
package simbackend

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/thatsimonsguy/rwchcd/internal/hwbackend"
	"github.com/thatsimonsguy/rwchcd/internal/rwerr"
	"github.com/thatsimonsguy/rwchcd/internal/units"
)

type input struct {
	name  string
	kind  hwbackend.InputKind
	temp  atomic.Int64 // units.Temp, always valid to load
	on    atomic.Bool
	stamp atomic.Int64 // unix nanoseconds of last SetTemp/SetSwitch
}

type output struct {
	name string
	on   atomic.Bool
}

// Backend is a goroutine-safe, in-memory implementation of
// hwbackend.Backend. Tests drive it directly via SetTemp/SetSwitch/State;
// production configs can point resources at it to simulate hardware that
// does not exist yet.
type Backend struct {
	mu      sync.RWMutex
	name    string
	online  bool
	inputs  []*input
	outputs []*output
	byInput map[hwbackend.InputKind]map[string]hwbackend.ID
	byOut   map[string]hwbackend.ID
}

// New returns an offline simulation backend with no resources configured.
func New() *Backend {
	return &Backend{
		byInput: map[hwbackend.InputKind]map[string]hwbackend.ID{
			hwbackend.Temperature: {},
			hwbackend.Switch:      {},
		},
		byOut: map[string]hwbackend.ID{},
	}
}

// AddInput declares a named input resource and returns its dense ID.
// Callers (test setup or config loading) must do this before Online.
func (b *Backend) AddInput(kind hwbackend.InputKind, name string) hwbackend.ID {
	b.mu.Lock()
	defer b.mu.Unlock()
	in := &input{name: name, kind: kind}
	in.temp.Store(int64(units.TempUnset))
	b.inputs = append(b.inputs, in)
	id := hwbackend.ID(len(b.inputs))
	b.byInput[kind][name] = id
	return id
}

// AddOutput declares a named relay output resource and returns its ID.
func (b *Backend) AddOutput(name string) hwbackend.ID {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.outputs = append(b.outputs, &output{name: name})
	id := hwbackend.ID(len(b.outputs))
	b.byOut[name] = id
	return id
}

// SetTemp injects a temperature reading for a previously-declared input.
func (b *Backend) SetTemp(id hwbackend.ID, t units.Temp) {
	b.mu.RLock()
	in := b.inputs[id-1]
	b.mu.RUnlock()
	in.temp.Store(int64(t))
	in.stamp.Store(time.Now().UnixNano())
}

// SetSwitch injects a switch reading for a previously-declared input.
func (b *Backend) SetSwitch(id hwbackend.ID, on bool) {
	b.mu.RLock()
	in := b.inputs[id-1]
	b.mu.RUnlock()
	in.on.Store(on)
	in.stamp.Store(time.Now().UnixNano())
}

// State reports the last commanded state of a relay output, for assertions
// in tests.
func (b *Backend) State(id hwbackend.ID) bool {
	b.mu.RLock()
	out := b.outputs[id-1]
	b.mu.RUnlock()
	return out.on.Load()
}

func (b *Backend) Setup(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.name = name
	return nil
}

func (b *Backend) Online() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.online = true
	return nil
}

func (b *Backend) Offline() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.online = false
	return nil
}

func (b *Backend) Exit() error { return nil }

func (b *Backend) InputIBN(kind hwbackend.InputKind, name string) (hwbackend.ID, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	id, ok := b.byInput[kind][name]
	if !ok {
		return 0, rwerr.New(rwerr.NotFound, "no such simulated input: "+name)
	}
	return id, nil
}

func (b *Backend) OutputIBN(name string) (hwbackend.ID, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	id, ok := b.byOut[name]
	if !ok {
		return 0, rwerr.New(rwerr.NotFound, "no such simulated output: "+name)
	}
	return id, nil
}

func (b *Backend) InputName(kind hwbackend.InputKind, id hwbackend.ID) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if int(id) < 1 || int(id) > len(b.inputs) {
		return "", rwerr.New(rwerr.NotFound, "input id out of range")
	}
	return b.inputs[id-1].name, nil
}

func (b *Backend) OutputName(id hwbackend.ID) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if int(id) < 1 || int(id) > len(b.outputs) {
		return "", rwerr.New(rwerr.NotFound, "output id out of range")
	}
	return b.outputs[id-1].name, nil
}

func (b *Backend) InputValueGet(kind hwbackend.InputKind, id hwbackend.ID) (hwbackend.Value, error) {
	b.mu.RLock()
	if !b.online {
		b.mu.RUnlock()
		return hwbackend.Value{}, rwerr.New(rwerr.Offline, "backend offline")
	}
	if int(id) < 1 || int(id) > len(b.inputs) {
		b.mu.RUnlock()
		return hwbackend.Value{}, rwerr.New(rwerr.NotFound, "input id out of range")
	}
	in := b.inputs[id-1]
	b.mu.RUnlock()
	if kind == hwbackend.Switch {
		return hwbackend.Value{On: in.on.Load()}, nil
	}
	return hwbackend.Value{Temp: units.Temp(in.temp.Load())}, nil
}

func (b *Backend) InputTimeGet(kind hwbackend.InputKind, id hwbackend.ID) (time.Time, error) {
	b.mu.RLock()
	if int(id) < 1 || int(id) > len(b.inputs) {
		b.mu.RUnlock()
		return time.Time{}, rwerr.New(rwerr.NotFound, "input id out of range")
	}
	in := b.inputs[id-1]
	b.mu.RUnlock()
	ns := in.stamp.Load()
	if ns == 0 {
		return time.Time{}, nil
	}
	return time.Unix(0, ns), nil
}

func (b *Backend) OutputStateSet(id hwbackend.ID, state bool) error {
	b.mu.RLock()
	if !b.online {
		b.mu.RUnlock()
		return rwerr.New(rwerr.Offline, "backend offline")
	}
	if int(id) < 1 || int(id) > len(b.outputs) {
		b.mu.RUnlock()
		return rwerr.New(rwerr.NotFound, "output id out of range")
	}
	out := b.outputs[id-1]
	b.mu.RUnlock()
	out.on.Store(state)
	return nil
}
