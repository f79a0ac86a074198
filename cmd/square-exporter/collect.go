package main

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/fairyhunter13/square-exporter/internal/collector"
	"github.com/fairyhunter13/square-exporter/internal/config"
	"github.com/fairyhunter13/square-exporter/internal/model"
	"github.com/fairyhunter13/square-exporter/internal/obs"
	"github.com/fairyhunter13/square-exporter/internal/scheduler"
)

type collectOutput struct {
	Currency string         `yaml:"currency"`
	Windows  []windowOutput `yaml:"windows"`
	Error    string         `yaml:"error,omitempty"`
}

type windowOutput struct {
	Name         string              `yaml:"name"`
	BeginTime    string              `yaml:"begin_time"`
	EndTime      string              `yaml:"end_time"`
	AverageValue float64             `yaml:"average_value"`
	Result       *model.WindowResult `yaml:"result"`
}

func collectCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "collect",
		Short: "Run a single collection cycle and print the results as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			obs.InitLoggerTo(os.Stderr, cfg.LogLevel)
			return collectOnce(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}
}

// collectOnce runs one cycle through a scheduler so it gets the same cycle
// logging and panic isolation as the serve loop.
func collectOnce(ctx context.Context, cfg config.Config, out io.Writer) error {
	ex := newExporter(ctx, cfg)
	var report collector.CycleReport
	sched := scheduler.New(func(ctx context.Context, now time.Time) error {
		var err error
		report, err = ex.controller.RunCycle(ctx, now)
		return err
	}, scheduler.Options{Metrics: ex.metrics})
	runErr := sched.RunNow(ctx)

	doc := collectOutput{Currency: ex.currency}
	for _, w := range []struct {
		name collector.Window
		res  *model.WindowResult
	}{
		{collector.Trailing, report.Trailing},
		{collector.MonthToDate, report.MonthToDate},
	} {
		tw := report.Windows[w.name]
		wo := windowOutput{Name: string(w.name), Result: w.res}
		if !tw.Start.IsZero() {
			wo.BeginTime, wo.EndTime = tw.BeginParam(), tw.EndParam()
		}
		if w.res != nil {
			wo.AverageValue = w.res.AveragePayment()
		}
		doc.Windows = append(doc.Windows, wo)
	}
	if runErr != nil {
		doc.Error = runErr.Error()
	}

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return runErr
}
