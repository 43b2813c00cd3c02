package device

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/sensorbench/sensorbench/internal/metrics"
	"github.com/sensorbench/sensorbench/internal/sample"
)

// TimedFrame is one parsed reading together with the device-millisecond
// timestamp that prefixes it on the wire.
type TimedFrame struct {
	DeviceMillis int64
	Frame        sample.Frame
}

// Reader turns the device's newline-delimited CSV stream into frames.
// Each wire line is `timestamp,<6 float channels>`; lines with the wrong
// arity or unparsable numbers are skipped.
type Reader struct {
	log     *slog.Logger
	conn    Conn
	buf     []byte
	pending []byte
}

func NewReader(log *slog.Logger, conn Conn) *Reader {
	return &Reader{
		log:  log,
		conn: conn,
		buf:  make([]byte, 4096),
	}
}

// Next blocks until the next valid frame arrives, the context is cancelled,
// or the port errors. Port read timeouts surface as empty reads and are used
// as cancellation points.
func (r *Reader) Next(ctx context.Context) (TimedFrame, error) {
	for {
		line, err := r.readLine(ctx)
		if err != nil {
			return TimedFrame{}, err
		}
		tf, ok := ParseLine(line)
		if !ok {
			if line != "" {
				r.log.Debug("Skipping malformed frame line", "line", line)
				metrics.FramesSkipped.Inc()
			}
			continue
		}
		metrics.FramesRead.Inc()
		return tf, nil
	}
}

func (r *Reader) readLine(ctx context.Context) (string, error) {
	for {
		if i := bytes.IndexByte(r.pending, '\n'); i >= 0 {
			line := strings.TrimRight(string(r.pending[:i]), "\r")
			r.pending = r.pending[i+1:]
			return line, nil
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, err := r.conn.Read(r.buf)
		if err != nil {
			if err == io.EOF {
				return "", io.EOF
			}
			return "", fmt.Errorf("serial read failed: %w", err)
		}
		r.pending = append(r.pending, r.buf[:n]...)
	}
}

// ParseLine parses one wire line into a timed frame. The second return is
// false for blank or malformed lines.
func ParseLine(line string) (TimedFrame, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return TimedFrame{}, false
	}

	parts := strings.Split(line, ",")
	if len(parts) != sample.Columns+1 {
		return TimedFrame{}, false
	}

	millis, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return TimedFrame{}, false
	}

	var frame sample.Frame
	for i, p := range parts[1:] {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return TimedFrame{}, false
		}
		frame[i] = v
	}

	return TimedFrame{DeviceMillis: millis, Frame: frame}, true
}
