package main

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/randomizedcoder/toggle-jitter/internal/consumer"
)

type summary struct {
	Stats      consumer.Stats
	Period     time.Duration
	Overhead   time.Duration
	Iterations uint64
	LogPath    string
	Err        error
}

func printSummary(w io.Writer, s summary) {
	header := color.New(color.FgHiCyan, color.Bold).SprintfFunc()
	label := color.New(color.FgWhite).SprintFunc()
	value := color.New(color.FgHiWhite).SprintfFunc()
	warn := color.New(color.FgHiYellow).SprintfFunc()
	ok := color.New(color.FgGreen, color.Bold).SprintFunc()
	bad := color.New(color.FgRed, color.Bold).SprintFunc()

	fmt.Fprintln(w, header("Toggle jitter summary"))
	fmt.Fprintln(w, "─────────────────────────────────────────────────")
	fmt.Fprintf(w, "  %-22s %s\n", label("period"), value("%v", s.Period))
	fmt.Fprintf(w, "  %-22s %s\n", label("clock overhead"), value("%v", s.Overhead))
	fmt.Fprintf(w, "  %-22s %s\n", label("toggles"), value("%d", s.Iterations))
	fmt.Fprintf(w, "  %-22s %s\n", label("samples recorded"), value("%d", s.Stats.Count))
	if s.Stats.Dropped > 0 {
		fmt.Fprintf(w, "  %-22s %s\n", label("samples dropped"), warn("%d", s.Stats.Dropped))
	} else {
		fmt.Fprintf(w, "  %-22s %s\n", label("samples dropped"), value("0"))
	}
	if s.Stats.Count > 0 {
		fmt.Fprintf(w, "  %-22s %s\n", label("interval min/mean/max"),
			value("%v / %v / %v", s.Stats.Min, s.Stats.Mean(), s.Stats.Max))
		fmt.Fprintf(w, "  %-22s %s\n", label("window |jitter| max"), value("%d ns", int64(s.Stats.WindowMaxAbsJitter)))
		fmt.Fprintf(w, "  %-22s %s\n", label("window |jitter| avg"), value("%d ns", int64(s.Stats.WindowMeanAbsJitter)))
	}
	if s.LogPath != "" {
		fmt.Fprintf(w, "  %-22s %s\n", label("jitter log"), value("%s", s.LogPath))
	}
	if s.Err != nil {
		fmt.Fprintf(w, "  %-22s %s %v\n", label("result"), bad("FAILED"), s.Err)
		return
	}
	fmt.Fprintf(w, "  %-22s %s\n", label("result"), ok("OK"))
}
