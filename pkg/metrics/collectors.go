package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/mist-hpc/mist/internal/store"
	"github.com/mist-hpc/mist/internal/store/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"
)

const collectTimeout = 5 * time.Second

type jobStatsCollector struct {
	store     store.Store
	jobsTotal *prometheus.Desc
}

// NewJobStatsCollector reports the number of jobs per state as seen by the registry.
func NewJobStatsCollector(s store.Store) prometheus.Collector {
	return &jobStatsCollector{
		store: s,
		jobsTotal: prometheus.NewDesc(
			fmt.Sprintf("%s_jobs_total", mist),
			"Total number of jobs known to the registry by state.",
			[]string{"state"},
			prometheus.Labels{},
		),
	}
}

func (c *jobStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.jobsTotal
}

func (c *jobStatsCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), collectTimeout)
	defer cancel()

	counts, err := c.store.Job().CountByState(ctx)
	if err != nil {
		zap.S().Named("job_collector").Errorf("failed to collect job statistics: %s", err)
		return
	}

	for _, state := range model.JobStates() {
		ch <- prometheus.MustNewConstMetric(c.jobsTotal, prometheus.GaugeValue, float64(counts[state]), string(state))
	}
}

type hostCollector struct {
	cpuUsage    *prometheus.Desc
	memoryUsage *prometheus.Desc
	diskUsage   *prometheus.Desc
	diskPath    string
}

// NewHostCollector reports cpu, memory and disk usage of the host running the
// executors, in percent.
func NewHostCollector(diskPath string) prometheus.Collector {
	fqName := func(name string) string {
		return fmt.Sprintf("%s_host_%s", mist, name)
	}

	return &hostCollector{
		diskPath: diskPath,
		cpuUsage: prometheus.NewDesc(
			fqName("cpu_usage_percent"),
			"CPU usage of the host.",
			nil, nil,
		),
		memoryUsage: prometheus.NewDesc(
			fqName("memory_usage_percent"),
			"Memory usage of the host.",
			nil, nil,
		),
		diskUsage: prometheus.NewDesc(
			fqName("disk_usage_percent"),
			"Disk usage of the host.",
			[]string{"path"}, nil,
		),
	}
}

func (c *hostCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.cpuUsage
	ch <- c.memoryUsage
	ch <- c.diskUsage
}

func (c *hostCollector) Collect(ch chan<- prometheus.Metric) {
	logger := zap.S().Named("host_collector")

	if usage, err := cpu.Percent(0, false); err != nil {
		logger.Warnf("failed to read cpu usage: %s", err)
	} else if len(usage) > 0 {
		ch <- prometheus.MustNewConstMetric(c.cpuUsage, prometheus.GaugeValue, usage[0])
	}

	if vm, err := mem.VirtualMemory(); err != nil {
		logger.Warnf("failed to read memory usage: %s", err)
	} else {
		ch <- prometheus.MustNewConstMetric(c.memoryUsage, prometheus.GaugeValue, vm.UsedPercent)
	}

	if du, err := disk.Usage(c.diskPath); err != nil {
		logger.Warnf("failed to read disk usage of %s: %s", c.diskPath, err)
	} else {
		ch <- prometheus.MustNewConstMetric(c.diskUsage, prometheus.GaugeValue, du.UsedPercent, c.diskPath)
	}
}

// RegisterCollectors registers cs to DefaultRegisterer, ignoring collectors already registered.
func RegisterCollectors(cs ...prometheus.Collector) {
	for _, c := range cs {
		mustRegisterOrExisting(c)
	}
}
