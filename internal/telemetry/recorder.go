package telemetry

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"washdeck/internal/infrastructure/config"
)

const (
	defaultConnectTimeout = 10 * time.Second

	// millisecondsPerSecond converts seconds to milliseconds for the InfluxDB API.
	millisecondsPerSecond = 1000
)

// Recorder wraps the InfluxDB v2 client for usage telemetry.
//
// All methods are safe for concurrent use and safe on a nil receiver;
// writes are non-blocking and batched.
type Recorder struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI

	mu      sync.RWMutex
	onError func(err error)
}

// Connect establishes a connection to the InfluxDB server and verifies it
// with a ping. Returns ErrDisabled when telemetry is off in configuration;
// callers may then carry a nil Recorder.
func Connect(cfg config.TelemetryConfig) (*Recorder, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = 10
	}

	// #nosec G115 -- values validated above to be positive
	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(uint(batchSize)).
			SetFlushInterval(uint(flushInterval)*millisecondsPerSecond),
	)

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()

	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)

	r := &Recorder{
		client:   client,
		writeAPI: writeAPI,
	}

	go r.handleWriteErrors(writeAPI.Errors())

	return r, nil
}

// handleWriteErrors forwards async write errors to the callback.
func (r *Recorder) handleWriteErrors(errorsCh <-chan error) {
	for err := range errorsCh {
		r.mu.RLock()
		callback := r.onError
		r.mu.RUnlock()

		if callback != nil {
			callback(err)
		}
	}
}

// SetOnError sets a callback invoked when async write errors occur.
func (r *Recorder) SetOnError(callback func(err error)) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.onError = callback
	r.mu.Unlock()
}

// RecordUsage writes one usage sample for a device, typically on every
// push delta and after each snapshot load.
func (r *Recorder) RecordUsage(deviceID int64, running bool, timeLeftSeconds int64) {
	if r == nil {
		return
	}

	point := write.NewPoint(
		"device_usage",
		map[string]string{
			"device_id": strconv.FormatInt(deviceID, 10),
		},
		map[string]interface{}{
			"running":   running,
			"time_left": timeLeftSeconds,
		},
		time.Now(),
	)

	r.writeAPI.WritePoint(point)
}

// RecordCommand writes one accepted command event for a device.
func (r *Recorder) RecordCommand(deviceID int64, verb string) {
	if r == nil {
		return
	}

	point := write.NewPoint(
		"device_commands",
		map[string]string{
			"device_id": strconv.FormatInt(deviceID, 10),
			"verb":      verb,
		},
		map[string]interface{}{
			"count": 1,
		},
		time.Now(),
	)

	r.writeAPI.WritePoint(point)
}

// Close flushes pending writes and shuts the client down. Safe on nil.
func (r *Recorder) Close() {
	if r == nil || r.client == nil {
		return
	}

	r.writeAPI.Flush()
	r.client.Close()
}
