package scans

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bryanwahyu/deepcheck/internal/domain/detection"
)

// FileResult is the outcome of scanning one file from disk.
type FileResult struct {
	Path     string
	Mode     detection.ScanMode
	Info     detection.ImageInfo
	Result   *detection.ScanResult
	Err      error
	Duration time.Duration
}

// DetectFiles scans paths with at most concurrency requests in flight.
// Results keep the order of paths. A failed file never stops the others;
// the returned error is only set when ctx ends the batch early.
func (s *Service) DetectFiles(ctx context.Context, paths []string, mode detection.ScanMode, concurrency int) ([]FileResult, error) {
	if concurrency <= 0 {
		concurrency = 1
	}
	results := make([]FileResult, len(paths))
	scanned := make([]bool, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, path := range paths {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			results[i] = s.detectFile(ctx, path, mode)
			scanned[i] = true
			return nil
		})
	}

	err := g.Wait()
	cause := err
	if cause == nil {
		cause = context.Canceled
	}
	for i := range results {
		if !scanned[i] {
			results[i] = FileResult{Path: paths[i], Mode: mode, Err: fmt.Errorf("not scanned: %w", cause)}
		}
	}
	return results, err
}

func (s *Service) detectFile(ctx context.Context, path string, mode detection.ScanMode) (out FileResult) {
	out = FileResult{Path: path, Mode: mode}
	started := s.clock().Now()
	defer func() { out.Duration = s.clock().Now().Sub(started) }()

	data, err := os.ReadFile(path)
	if err != nil {
		out.Err = fmt.Errorf("read %s: %w", path, err)
		return out
	}
	req, err := detection.NewScanRequest(data, path, "", mode)
	if err != nil {
		out.Err = fmt.Errorf("%s: %w", path, err)
		return out
	}
	out.Info = req.Info

	res, err := s.Detect(ctx, req)
	if err != nil {
		out.Err = err
		return out
	}
	out.Result = &res
	return out
}
