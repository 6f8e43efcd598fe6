package database

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"alloc-bench/internal/config"
	"alloc-bench/internal/logging"
	"alloc-bench/internal/manifest"
	"alloc-bench/internal/results"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sirupsen/logrus"
)

const (
	MetricsMeasurement = "allocator_metrics"
	RunMeasurement     = "allocator_run"
)

// PointWriter is the subset of the blocking write API the exporter needs.
type PointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
	WriteRecord(ctx context.Context, line ...string) error
}

type InfluxDBClient struct {
	client   influxdb2.Client
	writeAPI PointWriter
	bucket   string
	org      string
}

func NewInfluxDBClient(cfg config.DatabaseConfig) (*InfluxDBClient, error) {
	logger := logging.GetLogger()

	client := influxdb2.NewClient(cfg.Host, cfg.Password)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	health, err := client.Health(ctx)
	if err != nil {
		client.Close()
		logger.WithField("host", cfg.Host).WithError(err).Error("Failed to connect to InfluxDB")
		return nil, err
	}
	if health.Status != "pass" {
		client.Close()
		message := ""
		if health.Message != nil {
			message = *health.Message
		}
		logger.WithFields(logrus.Fields{
			"host":    cfg.Host,
			"status":  health.Status,
			"message": message,
		}).Error("InfluxDB health check failed")
		return nil, fmt.Errorf("influxdb at %s is not healthy: %s", cfg.Host, health.Status)
	}

	logger.WithFields(logrus.Fields{
		"host":   cfg.Host,
		"bucket": cfg.Name,
		"org":    cfg.Org,
	}).Info("Connected to InfluxDB")

	return &InfluxDBClient{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Name),
		bucket:   cfg.Name,
		org:      cfg.Org,
	}, nil
}

// NewWithWriter wraps an existing writer, e.g. a test double.
func NewWithWriter(w PointWriter, bucket, org string) *InfluxDBClient {
	return &InfluxDBClient{writeAPI: w, bucket: bucket, org: org}
}

// WriteRun exports one run: a point per record plus one run metadata point.
func (idb *InfluxDBClient) WriteRun(ctx context.Context, summary *manifest.Summary, records []results.Record) error {
	points := BuildPoints(summary, records)
	if len(points) == 0 {
		return nil
	}
	if err := idb.writeAPI.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("failed to write data points: %w", err)
	}

	logging.GetLogger().WithFields(logrus.Fields{
		"run_id": summary.RunID,
		"points": len(points),
		"bucket": idb.bucket,
	}).Info("Exported run to InfluxDB")
	return nil
}

// Replay writes previously spooled line protocol.
func (idb *InfluxDBClient) Replay(ctx context.Context, spool *SpoolArtifact) error {
	if len(spool.Lines) == 0 {
		return nil
	}
	if err := idb.writeAPI.WriteRecord(ctx, spool.Lines...); err != nil {
		return fmt.Errorf("failed to replay spooled run %s: %w", spool.RunID, err)
	}
	return nil
}

func (idb *InfluxDBClient) Close() {
	if idb.client != nil {
		idb.client.Close()
	}
}

// BuildPoints converts a run into InfluxDB points. Records share the run's
// start time and are told apart by their tags.
func BuildPoints(summary *manifest.Summary, records []results.Record) []*write.Point {
	ts := summary.StartTime
	if ts.IsZero() {
		ts = time.Now()
	}

	points := make([]*write.Point, 0, len(records)+1)
	for _, rec := range records {
		fields := make(map[string]interface{}, len(rec.Metrics))
		for _, m := range rec.Metrics {
			fields[m.Name] = m.Value
		}
		points = append(points, influxdb2.NewPoint(MetricsMeasurement,
			map[string]string{
				"run_id":     summary.RunID,
				"suite":      summary.Suite,
				"profile":    summary.Profile,
				"bench":      rec.Workload,
				"variant":    rec.Variant,
				"invocation": strconv.Itoa(rec.Invocation),
			},
			fields,
			ts))
	}

	meta := map[string]interface{}{
		"matrix_checksum":  summary.MatrixChecksum,
		"mode":             summary.Mode,
		"cells":            summary.Cells,
		"succeeded":        summary.Succeeded,
		"failed":           len(summary.Failures),
		"invocations":      summary.Invocations,
		"duration_seconds": int64(summary.EndTime.Sub(summary.StartTime).Seconds()),
		"run_started":      summary.StartTime.Format(time.RFC3339),
		"run_finished":     summary.EndTime.Format(time.RFC3339),
		"config_file":      summary.ConfigContent,
	}
	if summary.Host != nil {
		meta["hostname"] = summary.Host.Hostname
		meta["kernel_version"] = summary.Host.KernelVersion
		meta["cpu_vendor"] = summary.Host.CPUVendor
		meta["cpu_model"] = summary.Host.CPUModel
		meta["logical_cpus"] = summary.Host.LogicalCPUs
		meta["rdt_supported"] = summary.Host.RDT.Supported
	}
	points = append(points, influxdb2.NewPoint(RunMeasurement,
		map[string]string{"run_id": summary.RunID, "suite": summary.Suite},
		meta,
		ts))

	return points
}
