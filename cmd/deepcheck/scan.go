package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	appscans "github.com/bryanwahyu/deepcheck/internal/application/scans"
	"github.com/bryanwahyu/deepcheck/internal/domain/detection"
	"github.com/bryanwahyu/deepcheck/internal/infra/detector/remote"
	"github.com/bryanwahyu/deepcheck/internal/report"
)

// errScanFailed is returned after the report is written so the exit status is 1.
var errScanFailed = errors.New("one or more images could not be scanned")

// NewScanCmd creates the scan command.
func NewScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan FILE...",
		Short: "Scan image files",
		Long: `Scan uploads each file to the prediction service and prints a report.

Examples:
  # Scan one image with the detailed model
  deepcheck scan photo.jpg

  # Scan a folder with the fast model, four at a time, as Markdown
  deepcheck scan --mode MobileNet --concurrency 4 --format markdown shots/*.png`,
		Args: cobra.MinimumNArgs(1),
		RunE: runScanCmd,
	}

	cmd.Flags().StringP("mode", "m", "", "Model: Xception or MobileNet (default from config)")
	cmd.Flags().StringP("endpoint", "e", "", "Prediction endpoint (default from config)")
	cmd.Flags().DurationP("timeout", "t", 0, "Per-request timeout (default from config)")
	cmd.Flags().IntP("concurrency", "n", 2, "Number of concurrent uploads")
	cmd.Flags().StringP("format", "f", report.FormatText, "Output format: text, json or markdown")
	cmd.Flags().StringP("output", "o", "", "Write the report to a file instead of stdout")

	return cmd
}

type scanOptions struct {
	mode        detection.ScanMode
	endpoint    string
	timeout     time.Duration
	concurrency int
	format      string
	output      string
}

func runScanCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := setupLogger(cmd, cfg)
	if err != nil {
		return err
	}

	opts := scanOptions{
		mode:     detection.ParseMode(cfg.Detector.DefaultMode, detection.DefaultMode),
		endpoint: cfg.Detector.Endpoint,
		timeout:  cfg.Detector.Timeout,
	}
	if v, _ := cmd.Flags().GetString("mode"); v != "" {
		opts.mode = detection.ParseMode(v, opts.mode)
	}
	if v, _ := cmd.Flags().GetString("endpoint"); v != "" {
		opts.endpoint = v
	}
	if v, _ := cmd.Flags().GetDuration("timeout"); v > 0 {
		opts.timeout = v
	}
	opts.concurrency, _ = cmd.Flags().GetInt("concurrency")
	opts.format, _ = cmd.Flags().GetString("format")
	opts.output, _ = cmd.Flags().GetString("output")

	out := cmd.OutOrStdout()
	if opts.output != "" {
		f, err := os.Create(opts.output)
		if err != nil {
			return fmt.Errorf("create report file: %w", err)
		}
		defer f.Close()
		out = f
	}
	w, err := report.New(opts.format, out)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc := &appscans.Service{
		Detector: remote.NewClient(opts.endpoint, opts.timeout),
		Logger:   logger,
	}
	logger.Debug("starting scan", "files", len(args), "mode", opts.mode, "endpoint", opts.endpoint)

	results, err := svc.DetectFiles(ctx, args, opts.mode, opts.concurrency)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	rep := report.NewReport(results, opts.endpoint, time.Now())
	if err := w.Write(rep); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if rep.HasFailures() {
		return errScanFailed
	}
	return nil
}
