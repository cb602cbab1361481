// Package config loads the daemon's declarative configuration from a YAML
// document and validates it: every resource name referenced by a circuit,
// DHWT or heat source must resolve to a sensor or relay declared under a
// backend, and no backend may declare the same temp sensor or relay name
// twice (switch-sensor names and references shared between consumers are
// not checked for duplicates). Validation collects every problem first, then panics with the full
// readable list rather than stopping at the first mistake, since a
// misconfigured plant must never come online at all (pre-online failures
// abort the process).
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// BackendConfig declares one named hardware backend and the sensor/relay
// resource names it exposes. Only "sim" (backed by
// internal/hwbackend/simbackend) is built in; any other Kind is accepted
// by the loader but resolves to the simulation backend until a concrete
// driver is wired up behind the registry interface.
type BackendConfig struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"`

	TempSensors   []string `yaml:"temp_sensors"`
	SwitchSensors []string `yaml:"switch_sensors"`
	Relays        []string `yaml:"relays"`
}

// SensorRef names a sensor by its owning backend and resource name.
type SensorRef struct {
	Backend  string `yaml:"backend"`
	Resource string `yaml:"resource"`
}

func (s SensorRef) empty() bool { return s.Backend == "" && s.Resource == "" }

// RelayConfig is the shared shape of every relay-backed actuator
// declaration: which backend/resource drives it and its dwell times.
type RelayConfig struct {
	Backend       string `yaml:"backend"`
	Resource      string `yaml:"resource"`
	MinOnSeconds  int    `yaml:"min_on_seconds"`
	MinOffSeconds int    `yaml:"min_off_seconds"`
}

// PumpConfig wraps a RelayConfig with an off-cooldown.
type PumpConfig struct {
	RelayConfig     `yaml:",inline"`
	CooldownSeconds int `yaml:"cooldown_seconds"`
}

// ValveConfig declares a motorized mixing valve's two relays, travel time,
// control law and the law's tuning. All tuning fields are optional; zero
// values pick the actuator package's defaults.
type ValveConfig struct {
	OpenBackend   string `yaml:"open_backend"`
	OpenResource  string `yaml:"open_resource"`
	CloseBackend  string `yaml:"close_backend"`
	CloseResource string `yaml:"close_resource"`
	TravelSeconds int    `yaml:"travel_seconds"`
	Law           string `yaml:"law"` // "bangbang" | "successive" | "pi"

	TDeadzoneKelvin     float64 `yaml:"tdeadzone_kelvin"`
	DeadbandPercent     float64 `yaml:"deadband_percent"`
	SampleIntervalSecs  int     `yaml:"sample_interval_seconds"`
	AmountPercent       float64 `yaml:"amount_percent"` // successive-approximation step
	TempInLowCelsius    float64 `yaml:"tempin_low_celsius"`
	TempInHighCelsius   float64 `yaml:"tempin_high_celsius"`
	TuSeconds           float64 `yaml:"tu_seconds"`
	TdSeconds           float64 `yaml:"td_seconds"`
}

// TempLawConfig mirrors circuit.TempLaw in config form (degrees Celsius,
// not fixed-point), so the YAML file never carries the internal
// centikelvin encoding.
type TempLawConfig struct {
	Tout1Celsius   float64 `yaml:"tout1_celsius"`
	Twater1Celsius float64 `yaml:"twater1_celsius"`
	Tout2Celsius   float64 `yaml:"tout2_celsius"`
	Twater2Celsius float64 `yaml:"twater2_celsius"`
	NH100          float64 `yaml:"nh100"`
}

// CircuitConfig declares one hydraulic circuit.
type CircuitConfig struct {
	Name string `yaml:"name"`

	Law TempLawConfig `yaml:"law"`

	EcoShiftKelvin           float64 `yaml:"eco_shift_kelvin"`
	FrostFreeTempCelsius     float64 `yaml:"frostfree_temp_celsius"`
	ManualTempCelsius        float64 `yaml:"manual_temp_celsius"`
	RorLimitPerHourKelvin    float64 `yaml:"ror_limit_per_hour_kelvin"`
	OutdoorCutoffHighCelsius float64 `yaml:"outdoor_cutoff_high_celsius"`
	OutdoorCutoffLowCelsius  float64 `yaml:"outdoor_cutoff_low_celsius"`

	// SetToffsetKelvin shifts request_ambient to form target_ambient.
	SetToffsetKelvin   float64 `yaml:"set_toffset_kelvin"`
	LimitWtMinCelsius  float64 `yaml:"limit_wtmin_celsius"`
	LimitWtMaxCelsius  float64 `yaml:"limit_wtmax_celsius"`
	TempInOffsetKelvin float64 `yaml:"temp_in_offset_kelvin"`

	FeedWaterSensor SensorRef    `yaml:"feed_water_sensor"`
	Pump            PumpConfig   `yaml:"pump"`
	Valve           *ValveConfig `yaml:"valve"`

	// AmbientSensor, when set, feeds a measured room temperature into the
	// circuit's templaw alongside weather compensation; AmbientFactorPct
	// controls how strongly. The *AmbientCelsius fields give the
	// request_ambient setpoint per runmode they apply to.
	AmbientSensor           SensorRef `yaml:"ambient_sensor"`
	AmbientFactorPct        float64   `yaml:"ambient_factor_pct"`
	ComfortAmbientCelsius   float64   `yaml:"comfort_ambient_celsius"`
	EcoAmbientCelsius       float64   `yaml:"eco_ambient_celsius"`
	FrostFreeAmbientCelsius float64   `yaml:"frostfree_ambient_celsius"`

	InitialMode string `yaml:"initial_mode"`
}

// DHWTConfig declares one domestic hot water tank.
type DHWTConfig struct {
	Name string `yaml:"name"`

	TargetCelsius         float64 `yaml:"target_celsius"`
	TripBelowKelvin       float64 `yaml:"trip_below_kelvin"`
	UntripAboveKelvin     float64 `yaml:"untrip_above_kelvin"`
	MaxChargeDurationSecs int     `yaml:"max_charge_duration_seconds"`
	LockoutDurationSecs   int     `yaml:"lockout_duration_seconds"`

	// LimitWinTMaxCelsius clips the feed temperature requested of the heat
	// source while charging (limit_wintmax); zero disables the clip.
	LimitWinTMaxCelsius float64 `yaml:"limit_wintmax_celsius"`
	// TempInOffsetKelvin is added to Target to get the requested feed
	// temperature (temp_inoffset).
	TempInOffsetKelvin float64 `yaml:"temp_inoffset_kelvin"`
	// ElectricFailover turns the self-heater on unconditionally when both
	// sensors are unusable, instead of leaving it off.
	ElectricFailover bool `yaml:"electric_failover"`

	TopSensor    SensorRef `yaml:"top_sensor"`
	BottomSensor SensorRef `yaml:"bottom_sensor"`
	// InletSensor is the feed-return inlet (tid_win) used for discharge
	// protection; optional.
	InletSensor SensorRef `yaml:"inlet_sensor"`

	FeedPump      PumpConfig   `yaml:"feed_pump"`
	RecyclePump   *PumpConfig  `yaml:"recycle_pump"`
	ElectricRelay *RelayConfig `yaml:"electric_relay"`
}

// HeatSourceConfig declares one boiler.
type HeatSourceConfig struct {
	Name string `yaml:"name"`

	Idle string `yaml:"idle"` // "never" | "frostonly" | "always"

	FreezeTempCelsius    float64 `yaml:"freeze_temp_celsius"`
	LimitTMinCelsius     float64 `yaml:"limit_tmin_celsius"`
	LimitTMaxCelsius     float64 `yaml:"limit_tmax_celsius"`
	LimitTHardMaxCelsius float64 `yaml:"limit_thardmax_celsius"`

	HysteresisKelvin  float64 `yaml:"hysteresis_kelvin"`
	BurnerMinTimeSecs int     `yaml:"burner_min_time_seconds"`

	ConsumerStopDelaySecs int `yaml:"consumer_stop_delay_seconds"`

	FeedWaterSensor SensorRef   `yaml:"feed_water_sensor"`
	BurnerRelay     RelayConfig `yaml:"burner_relay"`
	LoadPump        *PumpConfig `yaml:"load_pump"`
}

// BuildingModelConfig declares the outdoor-temperature model shared by
// every circuit.
type BuildingModelConfig struct {
	OutdoorSensor          SensorRef `yaml:"outdoor_sensor"`
	TauMixedSeconds        float64   `yaml:"tau_mixed_seconds"`
	TauAttenuatedSeconds   float64   `yaml:"tau_attenuated_seconds"`
	SummerThresholdCelsius float64   `yaml:"summer_threshold_celsius"`
}

// MasterLoopConfig tunes the master control loop and its watchdog.
type MasterLoopConfig struct {
	PeriodSeconds          float64 `yaml:"period_seconds"`
	WatchdogTimeoutSeconds float64 `yaml:"watchdog_timeout_seconds"`
	WatchdogAckWaitSeconds float64 `yaml:"watchdog_ack_wait_seconds"`
}

// AlarmsConfig configures the stateless alarm collector's external
// notifier.
type AlarmsConfig struct {
	NotifierPath    string `yaml:"notifier_path"`
	ThrottleSeconds int    `yaml:"throttle_seconds"`
}

// SensorQuarantineConfig tunes how many consecutive faulting samples a
// temperature sensor tolerates before its readings are held unusable
// regardless of what the backend reports, and how many consecutive good
// samples it takes to trust it again. Zero values fall back to
// hwbackend's built-in defaults.
type SensorQuarantineConfig struct {
	BootstrapSamples int `yaml:"bootstrap_samples"`
	FaultThreshold   int `yaml:"fault_threshold"`
	RecoverThreshold int `yaml:"recover_threshold"`
}

// ScheduleEntry applies a runmode/dhwmode override at a fixed point in a
// weekly schedule.
type ScheduleEntry struct {
	Weekday int    `yaml:"weekday"` // 0 = Sunday, matching time.Weekday
	Hour    int    `yaml:"hour"`
	Minute  int    `yaml:"minute"`
	Circuit string `yaml:"circuit"` // empty applies to every circuit
	Mode    string `yaml:"mode"`
}

// DatadogConfig wires an optional dogstatsd emitter alongside the
// Prometheus gauges; disabled by default since not every installation
// runs a local agent.
type DatadogConfig struct {
	Enabled   bool     `yaml:"enabled"`
	AgentAddr string   `yaml:"agent_addr"`
	Namespace string   `yaml:"namespace"`
	Tags      []string `yaml:"tags"`
}

// Config is the complete daemon configuration.
type Config struct {
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`

	StorePath string `yaml:"store_path"`

	MetricsEnabled    bool   `yaml:"metrics_enabled"`
	MetricsListenAddr string `yaml:"metrics_listen_addr"`
	SysmetricsEnabled bool   `yaml:"sysmetrics_enabled"`

	Datadog DatadogConfig `yaml:"datadog"`

	SensorQuarantine SensorQuarantineConfig `yaml:"sensor_quarantine"`

	MasterLoop MasterLoopConfig    `yaml:"master_loop"`
	Building   BuildingModelConfig `yaml:"building"`
	Alarms     AlarmsConfig        `yaml:"alarms"`

	Backends    []BackendConfig    `yaml:"backends"`
	Circuits    []CircuitConfig    `yaml:"circuits"`
	DHWTs       []DHWTConfig       `yaml:"dhwts"`
	HeatSources []HeatSourceConfig `yaml:"heat_sources"`

	Schedule []ScheduleEntry `yaml:"schedule"`
}

// Load reads and parses the YAML file at path and validates it, panicking
// with a collected, readable message on any missing or conflicting
// resource reference: a plant wired against phantom hardware must die at
// startup, not limp online.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&cfg)
	cfg.validate()
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.MasterLoop.PeriodSeconds == 0 {
		cfg.MasterLoop.PeriodSeconds = 1
	}
	if cfg.MasterLoop.WatchdogTimeoutSeconds == 0 {
		cfg.MasterLoop.WatchdogTimeoutSeconds = 60
	}
	if cfg.MasterLoop.WatchdogAckWaitSeconds == 0 {
		cfg.MasterLoop.WatchdogAckWaitSeconds = 2
	}
	if cfg.Alarms.ThrottleSeconds == 0 {
		cfg.Alarms.ThrottleSeconds = 60
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Building.TauMixedSeconds == 0 {
		cfg.Building.TauMixedSeconds = 600
	}
	if cfg.Building.TauAttenuatedSeconds == 0 {
		cfg.Building.TauAttenuatedSeconds = 3600
	}
}

// validate checks that every backend/resource reference used by a circuit,
// DHWT or heat source resolves to a name declared under some backend, and
// that no backend declares the same temp sensor or relay name twice (switch
// sensors are not checked for duplicates). It panics with the
// full collected list of problems on failure rather than failing fast on
// the first mistake, so one config-editing session fixes everything.
func (cfg *Config) validate() {
	var problems []string

	known := make(map[string]map[string]bool) // backend -> kind/resource -> declared
	for _, b := range cfg.Backends {
		if known[b.Name] == nil {
			known[b.Name] = map[string]bool{}
		}
		seen := map[string]string{}
		for _, n := range b.TempSensors {
			key := "temp:" + n
			if prev, ok := seen[key]; ok {
				problems = append(problems, fmt.Sprintf("backend %s: temp sensor %q declared twice (%s)", b.Name, n, prev))
			}
			seen[key] = "temp_sensors"
			known[b.Name][key] = true
		}
		for _, n := range b.SwitchSensors {
			key := "switch:" + n
			seen[key] = "switch_sensors"
			known[b.Name][key] = true
		}
		for _, n := range b.Relays {
			key := "relay:" + n
			if prev, ok := seen[key]; ok {
				problems = append(problems, fmt.Sprintf("backend %s: relay %q declared twice (%s)", b.Name, n, prev))
			}
			seen[key] = "relays"
			known[b.Name][key] = true
		}
	}

	checkSensor := func(where string, ref SensorRef, kind string) {
		if ref.empty() {
			return
		}
		if !known[ref.Backend][kind+":"+ref.Resource] {
			problems = append(problems, fmt.Sprintf("%s: sensor %s/%s not declared under any backend", where, ref.Backend, ref.Resource))
		}
	}
	checkRelay := func(where string, r RelayConfig) {
		if r.Backend == "" && r.Resource == "" {
			problems = append(problems, fmt.Sprintf("%s: missing relay backend/resource", where))
			return
		}
		if !known[r.Backend]["relay:"+r.Resource] {
			problems = append(problems, fmt.Sprintf("%s: relay %s/%s not declared under any backend", where, r.Backend, r.Resource))
		}
	}

	if cfg.Building.OutdoorSensor.empty() {
		problems = append(problems, "building: missing outdoor_sensor")
	} else {
		checkSensor("building", cfg.Building.OutdoorSensor, "temp")
	}

	for _, c := range cfg.Circuits {
		if c.Name == "" {
			problems = append(problems, "circuits: entry missing name")
			continue
		}
		where := "circuit " + c.Name
		checkSensor(where, c.FeedWaterSensor, "temp")
		checkSensor(where, c.AmbientSensor, "temp")
		checkRelay(where+".pump", c.Pump.RelayConfig)
		if c.Valve != nil {
			if !known[c.Valve.OpenBackend]["relay:"+c.Valve.OpenResource] {
				problems = append(problems, fmt.Sprintf("%s.valve: open relay %s/%s not declared", where, c.Valve.OpenBackend, c.Valve.OpenResource))
			}
			if !known[c.Valve.CloseBackend]["relay:"+c.Valve.CloseResource] {
				problems = append(problems, fmt.Sprintf("%s.valve: close relay %s/%s not declared", where, c.Valve.CloseBackend, c.Valve.CloseResource))
			}
		}
	}

	for _, d := range cfg.DHWTs {
		if d.Name == "" {
			problems = append(problems, "dhwts: entry missing name")
			continue
		}
		where := "dhwt " + d.Name
		checkSensor(where+".top", d.TopSensor, "temp")
		checkSensor(where+".bottom", d.BottomSensor, "temp")
		checkRelay(where+".feed_pump", d.FeedPump.RelayConfig)
		if d.ElectricRelay != nil {
			checkRelay(where+".electric_relay", *d.ElectricRelay)
		}
	}

	for _, h := range cfg.HeatSources {
		if h.Name == "" {
			problems = append(problems, "heat_sources: entry missing name")
			continue
		}
		where := "heat source " + h.Name
		checkSensor(where, h.FeedWaterSensor, "temp")
		checkRelay(where+".burner_relay", h.BurnerRelay)
	}

	if len(problems) > 0 {
		panic("invalid configuration:\n  " + strings.Join(problems, "\n  "))
	}
}

// Dump renders the configuration back to YAML, used by the daemon's
// SIGUSR1 handler to echo the in-memory configuration to stdout.
func (cfg *Config) Dump() (string, error) {
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
