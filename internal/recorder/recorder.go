// Package recorder captures fixed-duration labeled recordings from the
// device stream and persists them to the store.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/sensorbench/sensorbench/internal/device"
	"github.com/sensorbench/sensorbench/internal/metrics"
	"github.com/sensorbench/sensorbench/internal/sample"
	"github.com/sensorbench/sensorbench/internal/store"
)

type Config struct {
	// Store persists finished recordings.
	Store *store.Store

	// Dial opens a connection to the device. Called lazily on the first
	// recording and again after a read failure.
	Dial func(ctx context.Context) (device.Conn, error)

	// Duration is the capture window, measured in device time.
	Duration time.Duration

	// MaxWait bounds the wall-clock time a single recording may take; it
	// guards against a silent or stalled device. Zero means 4x Duration.
	MaxWait time.Duration

	// Clock is the time source for recording timestamps.
	Clock clockwork.Clock
}

func (c *Config) Validate() error {
	if c.Store == nil {
		return errors.New("store is required")
	}
	if c.Dial == nil {
		return errors.New("dial func is required")
	}
	if c.Duration <= 0 {
		return errors.New("duration must be greater than 0")
	}
	if c.MaxWait == 0 {
		c.MaxWait = 4 * c.Duration
	}
	if c.MaxWait < c.Duration {
		return errors.New("max wait must not be below duration")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Recorder owns the device connection and serializes captures on it.
type Recorder struct {
	log *slog.Logger
	cfg Config

	mu   sync.Mutex
	conn device.Conn
}

func New(log *slog.Logger, cfg Config) (*Recorder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Recorder{log: log, cfg: cfg}, nil
}

// Record captures one duration-bounded recording for the label and saves it.
// The window is measured with device timestamps: the first valid frame marks
// t=0 and capture stops at the first frame at or past the duration. Returns
// the recording and its stored filename.
func (r *Recorder) Record(ctx context.Context, label string) (*sample.Recording, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, err := r.ensureConn(ctx)
	if err != nil {
		metrics.Errors.WithLabelValues(metrics.ErrorTypeDeviceOpen).Inc()
		return nil, "", fmt.Errorf("failed to open device: %w", err)
	}

	// Drop whatever accumulated in the OS buffer since the last capture so
	// the window starts at live data.
	if err := conn.ResetInputBuffer(); err != nil {
		r.log.Warn("Failed to reset input buffer", "error", err)
	}

	captureCtx, cancel := context.WithTimeout(ctx, r.cfg.MaxWait)
	defer cancel()

	r.log.Info("Recording started", "label", label, "duration", r.cfg.Duration)

	reader := device.NewReader(r.log, conn)
	durMillis := r.cfg.Duration.Milliseconds()
	start := int64(-1)

	var frames []sample.Frame
	for {
		tf, err := reader.Next(captureCtx)
		if err != nil {
			r.dropConn()
			metrics.Errors.WithLabelValues(metrics.ErrorTypeDeviceRead).Inc()
			return nil, "", fmt.Errorf("device stream failed after %d frames: %w", len(frames), err)
		}
		if start < 0 {
			start = tf.DeviceMillis
		}
		if tf.DeviceMillis-start >= durMillis {
			break
		}
		frames = append(frames, tf.Frame)
	}

	rec := &sample.Recording{
		Label:   label,
		TakenAt: r.cfg.Clock.Now(),
		Frames:  frames,
	}
	name, err := r.cfg.Store.Save(rec)
	if err != nil {
		metrics.Errors.WithLabelValues(metrics.ErrorTypeStoreSave).Inc()
		return nil, "", fmt.Errorf("failed to save recording: %w", err)
	}

	metrics.Recordings.WithLabelValues(label).Inc()
	r.log.Info("Recording finished", "label", label, "file", name, "frames", len(frames))
	return rec, name, nil
}

// Close releases the device connection, if any.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return nil
	}
	err := r.conn.Close()
	r.conn = nil
	return err
}

func (r *Recorder) ensureConn(ctx context.Context) (device.Conn, error) {
	if r.conn != nil {
		return r.conn, nil
	}
	conn, err := r.cfg.Dial(ctx)
	if err != nil {
		return nil, err
	}
	r.conn = conn
	return conn, nil
}

// dropConn closes and forgets a failed connection so the next Record redials.
func (r *Recorder) dropConn() {
	if r.conn == nil {
		return
	}
	if err := r.conn.Close(); err != nil {
		r.log.Warn("Failed to close device connection", "error", err)
	}
	r.conn = nil
}
