// Package sysmetrics samples host resource usage (system CPU/memory and
// this process's RSS/CPU share) once per call and exposes it as Prometheus
// gauges plus a periodic log line. It exists because a heating controller
// is expected to run unattended on modest embedded hardware for years; a
// slow memory leak or a runaway CPU loop needs to be visible the same way
// an outdoor sensor fault is, not discovered only when the box locks up.
package sysmetrics

import (
	"os"

	dto "github.com/prometheus/client_model/go"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Sampler periodically reads host and process resource usage.
type Sampler struct {
	proc *process.Process

	sysCPUPercent  prometheus.Gauge
	procCPUPercent prometheus.Gauge
	sysMemUsed     prometheus.Gauge
	sysMemTotal    prometheus.Gauge
	procRSS        prometheus.Gauge
}

// New constructs a Sampler bound to the current process and registers its
// gauges against reg.
func New(reg prometheus.Registerer) *Sampler {
	f := promauto.With(reg)
	s := &Sampler{
		sysCPUPercent:  f.NewGauge(prometheus.GaugeOpts{Name: "rwchcd_sys_cpu_percent", Help: "System-wide CPU utilization"}),
		procCPUPercent: f.NewGauge(prometheus.GaugeOpts{Name: "rwchcd_proc_cpu_percent", Help: "Process CPU utilization"}),
		sysMemUsed:     f.NewGauge(prometheus.GaugeOpts{Name: "rwchcd_sys_mem_used_bytes", Help: "System memory in use"}),
		sysMemTotal:    f.NewGauge(prometheus.GaugeOpts{Name: "rwchcd_sys_mem_total_bytes", Help: "System memory installed"}),
		procRSS:        f.NewGauge(prometheus.GaugeOpts{Name: "rwchcd_proc_rss_bytes", Help: "Process resident set size"}),
	}
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		s.proc = p
	}
	return s
}

// Sample takes one reading and updates the gauges. It never returns an
// error: a failed gopsutil call just leaves the corresponding gauge at its
// last known value, since resource monitoring must never be the reason the
// control loop misses an iteration.
func (s *Sampler) Sample() {
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		s.sysCPUPercent.Set(pct[0])
	}
	if vmem, err := mem.VirtualMemory(); err == nil {
		s.sysMemUsed.Set(float64(vmem.Used))
		s.sysMemTotal.Set(float64(vmem.Total))
	}
	if s.proc == nil {
		return
	}
	if info, err := s.proc.MemoryInfo(); err == nil {
		s.procRSS.Set(float64(info.RSS))
	}
	if pct, err := s.proc.CPUPercent(); err == nil {
		s.procCPUPercent.Set(pct)
	}
}

// LogSummary emits one structured log line summarizing the last sample; the
// daemon calls this from a once-a-minute periodic timer, not from every
// master-loop iteration.
func (s *Sampler) LogSummary() {
	evt := log.Info()
	evt = evt.Float64("sys_cpu_percent", metricValue(s.sysCPUPercent))
	evt = evt.Float64("proc_cpu_percent", metricValue(s.procCPUPercent))
	evt = evt.Float64("sys_mem_used_bytes", metricValue(s.sysMemUsed))
	evt = evt.Float64("proc_rss_bytes", metricValue(s.procRSS))
	evt.Msg("resource usage")
}

func metricValue(g prometheus.Gauge) float64 {
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		return 0
	}
	return m.GetGauge().GetValue()
}
