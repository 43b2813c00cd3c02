package sample

import (
	"fmt"
	"time"
)

const (
	// Columns is the number of float channels in a frame: three accelerometer
	// axes followed by three gyroscope axes.
	Columns = 6

	// SmoothedChannels is the number of leading channels the preview smooths.
	SmoothedChannels = 3

	// FilenameTimeLayout is the timestamp encoding used in recording filenames.
	// Lexicographic order of filenames matches chronological order.
	FilenameTimeLayout = "20060102_150405"
)

// ChannelNames are the canonical channel names, in column order.
var ChannelNames = [Columns]string{"acc_x", "acc_y", "acc_z", "gyro_x", "gyro_y", "gyro_z"}

// Frame is a single reading from the device: one value per channel.
type Frame [Columns]float64

// FrameFromValues builds a Frame from a parsed row.
func FrameFromValues(values []float64) (Frame, error) {
	var f Frame
	if len(values) != Columns {
		return f, fmt.Errorf("expected %d channel values, got %d", Columns, len(values))
	}
	copy(f[:], values)
	return f, nil
}

// Recording is a labeled, fixed-duration capture of frames.
type Recording struct {
	// Label is the label directory the recording belongs to.
	Label string `json:"label"`

	// TakenAt is the host time the recording was captured.
	TakenAt time.Time `json:"taken_at"`

	// Frames are the captured readings in stream order.
	Frames []Frame `json:"frames"`
}

// Filename returns the on-disk name for the recording, {label}_{timestamp}.csv.
func (r *Recording) Filename() string {
	return fmt.Sprintf("%s_%s.csv", r.Label, r.TakenAt.Format(FilenameTimeLayout))
}

// ChannelSeries extracts one channel of the recording as a flat series.
func (r *Recording) ChannelSeries(channel int) []float64 {
	out := make([]float64, len(r.Frames))
	for i, f := range r.Frames {
		out[i] = f[channel]
	}
	return out
}
