// Package metrics publishes the core's hot-path values as Prometheus
// gauges: a passive, pull-based view into outdoor temperatures, per-circuit
// heat requests, per-DHWT charge state, the boiler's target/consumer_shift,
// and relay on/off accumulators. It is deliberately separate from the
// alarms notifier path (push, throttled, event-driven) — this is ambient
// observability a maintainer scrapes whether or not anything is alarming.
package metrics

import (
	"github.com/DataDog/datadog-go/statsd"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/rwchcd/internal/units"
)

// DatadogConfig describes the optional dogstatsd sink; zero value leaves it
// disabled.
type DatadogConfig struct {
	Enabled   bool
	AgentAddr string
	Namespace string
	Tags      []string
}

// Registry holds every gauge the core publishes, keyed by entity name so a
// caller can update one value without the metrics package needing to know
// about circuits, DHWTs or heat sources directly. Alongside the pull-based
// Prometheus gauges it optionally pushes the same values to a dogstatsd
// agent, so an installation can use either sink without code changes.
type Registry struct {
	outdoorRaw        prometheus.Gauge
	outdoorMixed       prometheus.Gauge
	outdoorAttenuated  prometheus.Gauge
	summer             prometheus.Gauge

	circuitHeatRequest *prometheus.GaugeVec
	circuitValvePos    *prometheus.GaugeVec

	dhwtCharging    *prometheus.GaugeVec
	dhwtTarget      *prometheus.GaugeVec
	dhwtElectricOn  *prometheus.GaugeVec

	boilerTarget        *prometheus.GaugeVec
	boilerConsumerShift *prometheus.GaugeVec
	boilerBurnerOn      *prometheus.GaugeVec

	relayOnSeconds  *prometheus.GaugeVec
	relayOffSeconds *prometheus.GaugeVec
	relayCycles     *prometheus.GaugeVec

	alarmsPending prometheus.Gauge

	dogstatsd *statsd.Client
}

// New registers every gauge against reg (pass prometheus.NewRegistry() in
// tests, prometheus.DefaultRegisterer in production), and, if dd is
// enabled, dials a dogstatsd client to push the same values to a local
// Datadog agent. A failed dial only disables the Datadog side; Prometheus
// keeps working.
func New(reg prometheus.Registerer, dd DatadogConfig) *Registry {
	f := promauto.With(reg)
	r := &Registry{
		outdoorRaw:        f.NewGauge(prometheus.GaugeOpts{Name: "rwchcd_outdoor_raw_celsius", Help: "Instantaneous outdoor sensor reading"}),
		outdoorMixed:      f.NewGauge(prometheus.GaugeOpts{Name: "rwchcd_outdoor_mixed_celsius", Help: "Fast-filtered outdoor temperature"}),
		outdoorAttenuated: f.NewGauge(prometheus.GaugeOpts{Name: "rwchcd_outdoor_attenuated_celsius", Help: "Slow-filtered outdoor temperature"}),
		summer:            f.NewGauge(prometheus.GaugeOpts{Name: "rwchcd_summer", Help: "1 if the building model is in summer mode"}),

		circuitHeatRequest: f.NewGaugeVec(prometheus.GaugeOpts{Name: "rwchcd_circuit_heat_request_celsius", Help: "Circuit's requested water temperature"}, []string{"circuit"}),
		circuitValvePos:    f.NewGaugeVec(prometheus.GaugeOpts{Name: "rwchcd_circuit_valve_position_percent", Help: "Circuit's mixing valve estimated position"}, []string{"circuit"}),

		dhwtCharging:   f.NewGaugeVec(prometheus.GaugeOpts{Name: "rwchcd_dhwt_charging", Help: "1 if the tank is actively charging"}, []string{"dhwt"}),
		dhwtTarget:     f.NewGaugeVec(prometheus.GaugeOpts{Name: "rwchcd_dhwt_target_celsius", Help: "Tank's configured target temperature"}, []string{"dhwt"}),
		dhwtElectricOn: f.NewGaugeVec(prometheus.GaugeOpts{Name: "rwchcd_dhwt_electric_on", Help: "1 if the tank's electric self-heater is on"}, []string{"dhwt"}),

		boilerTarget:        f.NewGaugeVec(prometheus.GaugeOpts{Name: "rwchcd_boiler_target_celsius", Help: "Boiler's computed target water temperature"}, []string{"source"}),
		boilerConsumerShift: f.NewGaugeVec(prometheus.GaugeOpts{Name: "rwchcd_boiler_consumer_shift_percent", Help: "Demand-shaping shift broadcast to consumers, as a signed percentage"}, []string{"source"}),
		boilerBurnerOn:      f.NewGaugeVec(prometheus.GaugeOpts{Name: "rwchcd_boiler_burner_on", Help: "1 if the burner relay is on"}, []string{"source"}),

		relayOnSeconds:  f.NewGaugeVec(prometheus.GaugeOpts{Name: "rwchcd_relay_on_seconds_total", Help: "Cumulative on-time"}, []string{"relay"}),
		relayOffSeconds: f.NewGaugeVec(prometheus.GaugeOpts{Name: "rwchcd_relay_off_seconds_total", Help: "Cumulative off-time"}, []string{"relay"}),
		relayCycles:     f.NewGaugeVec(prometheus.GaugeOpts{Name: "rwchcd_relay_cycles_total", Help: "Lifetime on-transition count"}, []string{"relay"}),

		alarmsPending: f.NewGauge(prometheus.GaugeOpts{Name: "rwchcd_alarms_pending", Help: "Alarms queued since the last notifier run"}),
	}

	if dd.Enabled {
		client, err := statsd.New(dd.AgentAddr)
		if err != nil {
			log.Warn().Err(err).Str("addr", dd.AgentAddr).Msg("failed to create dogstatsd client")
		} else {
			client.Namespace = dd.Namespace
			client.Tags = dd.Tags
			r.dogstatsd = client
			log.Info().Str("addr", dd.AgentAddr).Str("namespace", dd.Namespace).Strs("tags", dd.Tags).Msg("datadog metrics initialized")
		}
	}

	return r
}

func boolVal(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// gauge pushes one value to the dogstatsd agent, if one is configured. A
// transport error is logged and otherwise swallowed: Datadog is a secondary
// sink and must never block or fail the Prometheus publish path alongside
// it.
func (r *Registry) gauge(name string, value float64, tags ...string) {
	if r.dogstatsd == nil {
		return
	}
	if err := r.dogstatsd.Gauge(name, value, tags, 1); err != nil {
		log.Warn().Err(err).Str("metric", name).Msg("failed to emit datadog gauge")
	}
}

// SetOutdoor publishes one iteration's outdoor model readings.
func (r *Registry) SetOutdoor(raw, mixed, attenuated units.Temp, summer bool) {
	if units.Usable(raw) {
		r.outdoorRaw.Set(units.TempToCelsius(raw))
		r.gauge("rwchcd.outdoor.raw_celsius", units.TempToCelsius(raw))
	}
	if units.Usable(mixed) {
		r.outdoorMixed.Set(units.TempToCelsius(mixed))
		r.gauge("rwchcd.outdoor.mixed_celsius", units.TempToCelsius(mixed))
	}
	if units.Usable(attenuated) {
		r.outdoorAttenuated.Set(units.TempToCelsius(attenuated))
		r.gauge("rwchcd.outdoor.attenuated_celsius", units.TempToCelsius(attenuated))
	}
	r.summer.Set(boolVal(summer))
	r.gauge("rwchcd.summer", boolVal(summer))
}

// SetCircuit publishes one circuit's heat request and valve position.
func (r *Registry) SetCircuit(name string, heatRequest units.Temp, valvePosTenths int, hasValve bool) {
	if units.Usable(heatRequest) {
		r.circuitHeatRequest.WithLabelValues(name).Set(units.TempToCelsius(heatRequest))
		r.gauge("rwchcd.circuit.heat_request_celsius", units.TempToCelsius(heatRequest), "circuit:"+name)
	}
	if hasValve {
		pos := float64(valvePosTenths) / 10
		r.circuitValvePos.WithLabelValues(name).Set(pos)
		r.gauge("rwchcd.circuit.valve_position_percent", pos, "circuit:"+name)
	}
}

// SetDHWT publishes one tank's charge state.
func (r *Registry) SetDHWT(name string, charging, electricOn bool, target units.Temp) {
	r.dhwtCharging.WithLabelValues(name).Set(boolVal(charging))
	r.gauge("rwchcd.dhwt.charging", boolVal(charging), "dhwt:"+name)
	r.dhwtElectricOn.WithLabelValues(name).Set(boolVal(electricOn))
	r.gauge("rwchcd.dhwt.electric_on", boolVal(electricOn), "dhwt:"+name)
	if units.Usable(target) {
		r.dhwtTarget.WithLabelValues(name).Set(units.TempToCelsius(target))
		r.gauge("rwchcd.dhwt.target_celsius", units.TempToCelsius(target), "dhwt:"+name)
	}
}

// SetBoiler publishes one heat source's target, consumer shift (a signed
// percentage, not a temperature) and burner state.
func (r *Registry) SetBoiler(name string, target units.Temp, consumerShiftPct float64, burnerOn bool) {
	if units.Usable(target) {
		r.boilerTarget.WithLabelValues(name).Set(units.TempToCelsius(target))
		r.gauge("rwchcd.boiler.target_celsius", units.TempToCelsius(target), "source:"+name)
	}
	r.boilerConsumerShift.WithLabelValues(name).Set(consumerShiftPct)
	r.gauge("rwchcd.boiler.consumer_shift_percent", consumerShiftPct, "source:"+name)
	r.boilerBurnerOn.WithLabelValues(name).Set(boolVal(burnerOn))
	r.gauge("rwchcd.boiler.burner_on", boolVal(burnerOn), "source:"+name)
}

// SetRelay publishes one relay's accumulated accounting in seconds.
func (r *Registry) SetRelay(name string, onSeconds, offSeconds float64, cycles int) {
	r.relayOnSeconds.WithLabelValues(name).Set(onSeconds)
	r.gauge("rwchcd.relay.on_seconds_total", onSeconds, "relay:"+name)
	r.relayOffSeconds.WithLabelValues(name).Set(offSeconds)
	r.gauge("rwchcd.relay.off_seconds_total", offSeconds, "relay:"+name)
	r.relayCycles.WithLabelValues(name).Set(float64(cycles))
	r.gauge("rwchcd.relay.cycles_total", float64(cycles), "relay:"+name)
}

// SetAlarmsPending publishes the current alarm queue depth.
func (r *Registry) SetAlarmsPending(n int) {
	r.alarmsPending.Set(float64(n))
	r.gauge("rwchcd.alarms.pending", float64(n))
}
