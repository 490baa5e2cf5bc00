// Package promstats exports allocator statistics as Prometheus metrics.
package promstats

import (
	"github.com/hookwrapper/arsenal/memutils"
	"github.com/prometheus/client_golang/prometheus"
)

// StatisticsSource is anything that can report detailed allocator statistics, such as a
// *tam.Allocator
type StatisticsSource interface {
	DetailedStatistics(stats *memutils.DetailedStatistics)
}

// Collector is a prometheus.Collector that reads a fresh statistics snapshot from its source on
// every scrape
type Collector struct {
	source StatisticsSource

	blocks         *prometheus.Desc
	blockBytes     *prometheus.Desc
	slots          *prometheus.Desc
	slotBytes      *prometheus.Desc
	freeSlots      *prometheus.Desc
	fullBlocks     *prometheus.Desc
	emptyBlocks    *prometheus.Desc
	blocksReserved *prometheus.Desc
	blocksReleased *prometheus.Desc
}

var _ prometheus.Collector = &Collector{}

// NewCollector creates a Collector for source. constLabels are attached to every metric, which
// lets several allocators be registered side by side.
func NewCollector(namespace string, source StatisticsSource, constLabels prometheus.Labels) *Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "tam", name), help, nil, constLabels)
	}

	return &Collector{
		source: source,

		blocks:         desc("blocks", "Number of executable blocks currently reserved"),
		blockBytes:     desc("block_bytes", "Size in bytes of all executable blocks currently reserved"),
		slots:          desc("slots", "Number of slots currently handed out"),
		slotBytes:      desc("slot_bytes", "Size in bytes of all slots currently handed out"),
		freeSlots:      desc("free_slots", "Number of carved slots available for reuse"),
		fullBlocks:     desc("full_blocks", "Number of blocks with no free slots"),
		emptyBlocks:    desc("empty_blocks", "Number of blocks with no slots handed out"),
		blocksReserved: desc("blocks_reserved_total", "Total number of blocks reserved from the operating system"),
		blocksReleased: desc("blocks_released_total", "Total number of blocks returned to the operating system"),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.blocks
	ch <- c.blockBytes
	ch <- c.slots
	ch <- c.slotBytes
	ch <- c.freeSlots
	ch <- c.fullBlocks
	ch <- c.emptyBlocks
	ch <- c.blocksReserved
	ch <- c.blocksReleased
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	var stats memutils.DetailedStatistics
	c.source.DetailedStatistics(&stats)

	ch <- prometheus.MustNewConstMetric(c.blocks, prometheus.GaugeValue, float64(stats.BlockCount))
	ch <- prometheus.MustNewConstMetric(c.blockBytes, prometheus.GaugeValue, float64(stats.BlockBytes))
	ch <- prometheus.MustNewConstMetric(c.slots, prometheus.GaugeValue, float64(stats.AllocationCount))
	ch <- prometheus.MustNewConstMetric(c.slotBytes, prometheus.GaugeValue, float64(stats.AllocationBytes))
	ch <- prometheus.MustNewConstMetric(c.freeSlots, prometheus.GaugeValue, float64(stats.FreeSlotCount))
	ch <- prometheus.MustNewConstMetric(c.fullBlocks, prometheus.GaugeValue, float64(stats.FullBlockCount))
	ch <- prometheus.MustNewConstMetric(c.emptyBlocks, prometheus.GaugeValue, float64(stats.EmptyBlockCount))
	ch <- prometheus.MustNewConstMetric(c.blocksReserved, prometheus.CounterValue, float64(stats.BlocksReserved))
	ch <- prometheus.MustNewConstMetric(c.blocksReleased, prometheus.CounterValue, float64(stats.BlocksReleased))
}
