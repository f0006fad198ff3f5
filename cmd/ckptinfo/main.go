// Command ckptinfo prints the checkpoint history of a directory and can plot
// a tracked metric.
//
//	ckptinfo -dir runs/hyena/ckpt
//	ckptinfo -dir runs/hyena/ckpt -plot val_loss -out val_loss.png
package main

import (
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"github.com/YuminosukeSato/genotrain/checkpoint"
	"github.com/YuminosukeSato/genotrain/pkg/log"
)

var (
	flagDir      = flag.String("dir", "", "checkpoint directory")
	flagPlot     = flag.String("plot", "", "metric to plot against step")
	flagOut      = flag.String("out", "", "plot output file (default <metric>.png)")
	flagLogLevel = flag.String("log", "warn", "log level: debug, info, warn or error")
)

func main() {
	flag.Parse()
	if *flagDir == "" {
		fmt.Fprintln(os.Stderr, "ckptinfo: -dir is required")
		flag.Usage()
		os.Exit(2)
	}
	log.SetupLogger(*flagLogLevel)

	// 既存ディレクトリのみ対象（NewManager はディレクトリを作成するため事前に確認）
	if st, err := os.Stat(*flagDir); err != nil || !st.IsDir() {
		fmt.Fprintf(os.Stderr, "ckptinfo: %s is not a directory\n", *flagDir)
		os.Exit(1)
	}

	mgr, err := openManager(*flagDir)
	if err != nil {
		log.GetLogger().Error("Failed to open checkpoint directory", err)
		os.Exit(1)
	}

	if err := render(os.Stdout, mgr); err != nil {
		log.GetLogger().Error("Failed to render checkpoints", err)
		os.Exit(1)
	}

	if *flagPlot != "" {
		out := *flagOut
		if out == "" {
			out = *flagPlot + ".png"
		}
		if err := mgr.PlotMetricHistory(*flagPlot, out); err != nil {
			log.GetLogger().Error("Failed to plot metric", err)
			os.Exit(1)
		}
		fmt.Printf("wrote %s\n", out)
	}
}

// openManager opens dir with the best-tracking settings stored in its
// history file, so the summary reports the direction the run used.
func openManager(dir string) (*checkpoint.Manager, error) {
	opts := []checkpoint.Option{checkpoint.WithMaxCheckpoints(0)}
	if h, err := checkpoint.ReadHistory(dir); err == nil && h.MetricForBest != "" {
		opts = append(opts,
			checkpoint.WithMetricForBest(h.MetricForBest),
			checkpoint.WithMinimize(h.MinimizeMetric),
		)
	}
	return checkpoint.NewManager(dir, opts...)
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	headerStyle = lipgloss.NewStyle().Padding(0, 1).Bold(true).Reverse(true)
	bestStyle   = lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("42")).Bold(true)
)

// render writes the summary and the checkpoint table.
func render(w io.Writer, mgr *checkpoint.Manager) error {
	h := mgr.History()
	records := mgr.ListCheckpoints()

	fmt.Fprintln(w, titleStyle.Render("Checkpoints in "+mgr.Dir()))
	direction := "max"
	if h.MinimizeMetric {
		direction = "min"
	}
	if h.BestCheckpointPath != "" {
		fmt.Fprintf(w, "best %s (%s): %s at %s\n", h.MetricForBest, direction,
			formatMetric(h.BestMetric), filepath.Base(h.BestCheckpointPath))
	} else {
		fmt.Fprintf(w, "best %s (%s): none\n", h.MetricForBest, direction)
	}
	if len(records) == 0 {
		fmt.Fprintln(w, "no checkpoints")
		return nil
	}

	metricNames := metricColumns(records)
	headers := append([]string{"Step", "Epoch", "File", "Size", "Opt", "Sched"}, metricNames...)
	rows := make([][]string, 0, len(records))
	bestRow := -1
	for i, r := range records {
		info, err := mgr.GetCheckpointInfo(r.Path)
		if err != nil {
			return err
		}
		row := []string{
			strconv.Itoa(r.Step),
			strconv.Itoa(r.Epoch),
			filepath.Base(r.Path),
			humanize.IBytes(uint64(info.FileSize)),
			yesNo(info.HasOptimizer),
			yesNo(info.HasScheduler),
		}
		for _, name := range metricNames {
			v, ok := r.Metrics[name]
			if !ok {
				row = append(row, "")
				continue
			}
			row = append(row, formatMetric(v))
		}
		if r.Path == h.BestCheckpointPath {
			bestRow = i
		}
		rows = append(rows, row)
	}

	table := lgtable.New().
		Border(lipgloss.RoundedBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch row {
			case lgtable.HeaderRow:
				return headerStyle
			case bestRow:
				return bestStyle
			}
			return cellStyle
		}).
		Headers(headers...).
		Rows(rows...)
	fmt.Fprintln(w, table.Render())
	return nil
}

func metricColumns(records []checkpoint.Record) []string {
	seen := make(map[string]bool)
	var names []string
	for _, r := range records {
		for name := range r.Metrics {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names
}

func formatMetric(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strconv.FormatFloat(v, 'g', 6, 64)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
