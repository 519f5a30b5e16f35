package kv

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports Pebble engine metrics for a Store.
type Collector struct {
	store *Store

	compactions    *prometheus.Desc
	compactionDebt *prometheus.Desc
	memtableSize   *prometheus.Desc
	memtableCount  *prometheus.Desc
	walFiles       *prometheus.Desc
	walSize        *prometheus.Desc
	walBytesIn     *prometheus.Desc
	walBytesOut    *prometheus.Desc
	diskUsage      *prometheus.Desc
}

// NewCollector returns a Collector for s. It reports nothing once s is
// closed.
func NewCollector(s *Store) *Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("daybook_index_pebble_"+name, help, nil, nil)
	}
	return &Collector{
		store:          s,
		compactions:    desc("compactions_total", "Compactions performed."),
		compactionDebt: desc("compaction_debt_bytes", "Estimated bytes left to compact."),
		memtableSize:   desc("memtable_size_bytes", "Bytes allocated by memtables."),
		memtableCount:  desc("memtable_count", "Memtables in use."),
		walFiles:       desc("wal_files", "Live WAL files."),
		walSize:        desc("wal_size_bytes", "Bytes of live WAL data."),
		walBytesIn:     desc("wal_bytes_in_total", "Logical bytes written to the WAL."),
		walBytesOut:    desc("wal_bytes_written_total", "Physical bytes written to the WAL."),
		diskUsage:      desc("disk_usage_bytes", "Bytes used on disk by the store."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.compactions
	ch <- c.compactionDebt
	ch <- c.memtableSize
	ch <- c.memtableCount
	ch <- c.walFiles
	ch <- c.walSize
	ch <- c.walBytesIn
	ch <- c.walBytesOut
	ch <- c.diskUsage
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()

	if c.store.db == nil {
		return
	}
	m := c.store.db.Metrics()

	counter := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, v)
	}
	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v)
	}
	counter(c.compactions, float64(m.Compact.Count))
	gauge(c.compactionDebt, float64(m.Compact.EstimatedDebt))
	gauge(c.memtableSize, float64(m.MemTable.Size))
	gauge(c.memtableCount, float64(m.MemTable.Count))
	gauge(c.walFiles, float64(m.WAL.Files))
	gauge(c.walSize, float64(m.WAL.Size))
	counter(c.walBytesIn, float64(m.WAL.BytesIn))
	counter(c.walBytesOut, float64(m.WAL.BytesWritten))
	gauge(c.diskUsage, float64(m.DiskSpaceUsage()))
}
