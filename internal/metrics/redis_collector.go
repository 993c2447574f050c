package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
)

// redisCollector reports snapshot storage usage straight from Redis so
// scrape values stay correct across process restarts.
type redisCollector struct {
	rdb       *redis.Client
	logger    *slog.Logger
	namespace string

	snapshotCountDesc *prometheus.Desc
	snapshotBytesDesc *prometheus.Desc
}

func newRedisCollector(rdb *redis.Client, namespace string, logger *slog.Logger) *redisCollector {
	if logger == nil {
		logger = slog.Default()
	}
	if namespace == "" {
		namespace = "tv"
	}
	return &redisCollector{
		rdb:       rdb,
		logger:    logger,
		namespace: namespace,
		snapshotCountDesc: prometheus.NewDesc(
			"threadview_snapshots_stored",
			"Number of thread snapshots currently stored in Redis.",
			nil,
			prometheus.Labels{"namespace": namespace},
		),
		snapshotBytesDesc: prometheus.NewDesc(
			"threadview_snapshot_bytes",
			"Total size in bytes of stored thread snapshots.",
			nil,
			prometheus.Labels{"namespace": namespace},
		),
	}
}

func (c *redisCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.snapshotCountDesc
	ch <- c.snapshotBytesDesc
}

func (c *redisCollector) Collect(ch chan<- prometheus.Metric) {
	if c.rdb == nil {
		return
	}

	// Keep Redis reads bounded so scrapes do not hang.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pattern := c.namespace + ":thread:*"
	var (
		cursor uint64
		keys   []string
	)
	for {
		batch, next, err := c.rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			c.logger.Warn("prometheus redis collector failed", "err", err)
			return
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 || len(keys) >= 10000 {
			break
		}
	}

	pipe := c.rdb.Pipeline()
	lens := make([]*redis.IntCmd, len(keys))
	for i, k := range keys {
		lens[i] = pipe.StrLen(ctx, k)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		c.logger.Warn("prometheus redis collector failed", "err", err)
		return
	}

	var totalBytes int64
	for _, l := range lens {
		totalBytes += l.Val()
	}

	emitGauge(ch, c.snapshotCountDesc, float64(len(keys)))
	emitGauge(ch, c.snapshotBytesDesc, float64(totalBytes))
}

func emitGauge(ch chan<- prometheus.Metric, desc *prometheus.Desc, v float64, labelValues ...string) {
	m, err := prometheus.NewConstMetric(desc, prometheus.GaugeValue, v, labelValues...)
	if err != nil {
		return
	}
	ch <- m
}

var registerRedisCollectorOnce sync.Once

func RegisterRedisCollector(rdb *redis.Client, namespace string, logger *slog.Logger) {
	registerRedisCollectorOnce.Do(func() {
		prometheus.MustRegister(newRedisCollector(rdb, namespace, logger))
	})
}
