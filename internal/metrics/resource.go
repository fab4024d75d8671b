package metrics

import (
	"runtime"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v4/process"
)

// Target is one OS process to sample.
type Target struct {
	Name string
	PID  int
}

// ResourceCollector samples CPU, memory, threads and file descriptors of
// supervised OS processes on every scrape. Targets that vanished between
// listing and sampling are skipped.
type ResourceCollector struct {
	targets func() []Target

	cpuPercent *prometheus.Desc
	memoryRSS  *prometheus.Desc
	memoryVMS  *prometheus.Desc
	numThreads *prometheus.Desc
	numFDs     *prometheus.Desc
}

func NewResourceCollector(targets func() []Target) *ResourceCollector {
	labels := []string{"name", "pid"}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName("supervisr", "process", name), help, labels, nil)
	}
	return &ResourceCollector{
		targets:    targets,
		cpuPercent: desc("cpu_percent", "CPU usage percentage of supervised OS processes."),
		memoryRSS:  desc("memory_rss_bytes", "Resident memory of supervised OS processes."),
		memoryVMS:  desc("memory_vms_bytes", "Virtual memory of supervised OS processes."),
		numThreads: desc("num_threads", "Number of threads of supervised OS processes."),
		numFDs:     desc("num_fds", "Number of open file descriptors of supervised OS processes (Unix only)."),
	}
}

func (c *ResourceCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.cpuPercent
	ch <- c.memoryRSS
	ch <- c.memoryVMS
	ch <- c.numThreads
	if runtime.GOOS != "windows" {
		ch <- c.numFDs
	}
}

func (c *ResourceCollector) Collect(ch chan<- prometheus.Metric) {
	for _, t := range c.targets() {
		if t.PID <= 0 {
			continue
		}
		p, err := process.NewProcess(int32(t.PID))
		if err != nil {
			continue
		}
		pid := strconv.Itoa(t.PID)
		gauge := func(d *prometheus.Desc, v float64) {
			ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, t.Name, pid)
		}
		if cpu, err := p.CPUPercent(); err == nil {
			gauge(c.cpuPercent, cpu)
		}
		if mem, err := p.MemoryInfo(); err == nil && mem != nil {
			gauge(c.memoryRSS, float64(mem.RSS))
			gauge(c.memoryVMS, float64(mem.VMS))
		}
		if n, err := p.NumThreads(); err == nil {
			gauge(c.numThreads, float64(n))
		}
		if runtime.GOOS != "windows" {
			if n, err := p.NumFDs(); err == nil {
				gauge(c.numFDs, float64(n))
			}
		}
	}
}
