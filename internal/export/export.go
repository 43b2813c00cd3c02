// Package export merges stored recordings into a single labeled dataset.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strconv"

	"github.com/alitto/pond/v2"

	"github.com/sensorbench/sensorbench/internal/metrics"
	"github.com/sensorbench/sensorbench/internal/sample"
	"github.com/sensorbench/sensorbench/internal/store"
)

type chunk struct {
	label string
	file  string
	rows  [][]string
}

// Header returns the column header of a merged dataset: label, source file,
// then the channel names.
func Header() []string {
	return append([]string{"label", "recording"}, sample.ChannelNames[:]...)
}

// Merge writes every stored recording to w as CSV: a header row, then one row
// per frame prefixed with the label and source filename. Recordings are parsed
// concurrently but written in listing order, labels ascending and recordings
// newest first. Any unreadable recording aborts the merge. Returns the number
// of recordings merged.
func Merge(log *slog.Logger, st *store.Store, w io.Writer) (int, error) {
	labels, err := st.Labels()
	if err != nil {
		return 0, err
	}

	pool := pond.NewResultPool[chunk](runtime.NumCPU())
	defer pool.StopAndWait()
	group := pool.NewGroup()

	for _, l := range labels {
		names, err := st.List(l.Name)
		if err != nil {
			return 0, err
		}
		for _, name := range names {
			label, file := l.Name, name
			group.SubmitErr(func() (chunk, error) {
				rec, err := st.Load(label, file)
				if err != nil {
					metrics.Errors.WithLabelValues(metrics.ErrorTypeExportRecord).Inc()
					return chunk{}, fmt.Errorf("failed to load %s/%s: %w", label, file, err)
				}
				rows := make([][]string, 0, len(rec.Frames))
				for _, frame := range rec.Frames {
					row := make([]string, 0, 2+sample.Columns)
					row = append(row, label, file)
					for _, v := range frame {
						row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
					}
					rows = append(rows, row)
				}
				return chunk{label: label, file: file, rows: rows}, nil
			})
		}
	}

	chunks, err := group.Wait()
	if err != nil {
		return 0, err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(Header()); err != nil {
		return 0, err
	}
	for _, c := range chunks {
		for _, row := range c.rows {
			if err := cw.Write(row); err != nil {
				return 0, err
			}
		}
		log.Debug("Merged recording", "label", c.label, "file", c.file, "frames", len(c.rows))
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, err
	}
	return len(chunks), nil
}
