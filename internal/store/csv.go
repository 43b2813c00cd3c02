package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sensorbench/sensorbench/internal/sample"
)

// writeFrames writes one CSV row per frame, channel columns only, no header.
func writeFrames(path string, frames []sample.Frame) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create recording file: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	row := make([]string, sample.Columns)
	for _, f := range frames {
		for i, v := range f {
			row[i] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write recording row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush recording file: %w", err)
	}
	return file.Close()
}

// readFrames reads a recording file, skipping rows that do not parse as a
// full frame.
func readFrames(path string) ([]sample.Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1

	var frames []sample.Frame
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read recording file: %w", err)
		}
		if len(row) != sample.Columns {
			continue
		}
		values := make([]float64, 0, sample.Columns)
		ok := true
		for _, field := range row {
			v, perr := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if perr != nil {
				ok = false
				break
			}
			values = append(values, v)
		}
		if !ok {
			continue
		}
		f, ferr := sample.FrameFromValues(values)
		if ferr != nil {
			continue
		}
		frames = append(frames, f)
	}
	return frames, nil
}

// ParseFilenameTime recovers the capture time from a recording filename of
// the form {label}_{timestamp}.csv.
func ParseFilenameTime(label, filename string) (time.Time, error) {
	prefix := label + "_"
	if !strings.HasPrefix(filename, prefix) || !strings.HasSuffix(filename, ".csv") {
		return time.Time{}, fmt.Errorf("filename %q does not match label %q", filename, label)
	}
	stamp := strings.TrimSuffix(strings.TrimPrefix(filename, prefix), ".csv")
	t, err := time.Parse(sample.FilenameTimeLayout, stamp)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse filename timestamp: %w", err)
	}
	return t, nil
}
