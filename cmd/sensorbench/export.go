package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/sensorbench/sensorbench/internal/config"
	"github.com/sensorbench/sensorbench/internal/export"
	"github.com/sensorbench/sensorbench/internal/sample"
	"github.com/sensorbench/sensorbench/internal/store"
)

func exportSamples(log *slog.Logger, st *store.Store, out string) (int, error) {
	f, err := os.Create(out)
	if err != nil {
		return 0, fmt.Errorf("failed to create output file: %w", err)
	}
	n, err := export.Merge(log, st, f)
	if err != nil {
		f.Close()
		return 0, err
	}
	return n, f.Close()
}

func showRecording(st *store.Store, cfg config.Config, label, file string) error {
	rec, err := st.Load(label, file)
	if err != nil {
		return err
	}

	smoothedFrames, smoothed, err := sample.SmoothRecording(rec.Frames, cfg.Smoothing.Window, cfg.Smoothing.Order)
	if err != nil {
		return err
	}

	fmt.Printf("%s/%s: %d frames", label, file, len(rec.Frames))
	if !rec.TakenAt.IsZero() {
		fmt.Printf(", taken %s", rec.TakenAt.Format("2006-01-02 15:04:05"))
	}
	fmt.Println()

	printStats("raw", sample.SummarizeChannels(rec.Frames))
	if smoothed {
		printStats(fmt.Sprintf("smoothed (window %d, order %d)", cfg.Smoothing.Window, cfg.Smoothing.Order),
			sample.SummarizeChannels(smoothedFrames))
	} else {
		fmt.Printf("too few frames to smooth (need %d)\n", cfg.Smoothing.Window)
	}
	return nil
}

func printStats(title string, stats [sample.Columns]sample.Summary) {
	fmt.Println(title)
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Channel", "Min", "Max", "Mean", "StdDev"})
	for ch, s := range stats {
		table.Append([]string{
			sample.ChannelNames[ch],
			strconv.FormatFloat(s.Min, 'f', 4, 64),
			strconv.FormatFloat(s.Max, 'f', 4, 64),
			strconv.FormatFloat(s.Mean, 'f', 4, 64),
			strconv.FormatFloat(s.StdDev, 'f', 4, 64),
		})
	}
	table.Render()
}
