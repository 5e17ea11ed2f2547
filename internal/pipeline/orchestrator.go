package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	apperrors "github.com/gitviz/gitviz/internal/errors"
	"github.com/gitviz/gitviz/internal/git"
	"github.com/gitviz/gitviz/internal/identity"
	"github.com/gitviz/gitviz/internal/models"
	"github.com/gitviz/gitviz/internal/timeline"
)

const defaultScanWorkers = 4

// Options configures one pipeline run. Dates are validated before the
// orchestrator is constructed; the guards here only protect library use.
type Options struct {
	Start         time.Time
	End           time.Time
	SecondsPerDay float64
	TimeScale     float64
	Output        string
	Workers       int        // 0 = min(repositories, 4)
	Cache         *git.Cache // nil disables scan caching
	PrefixPaths   bool
	KeepLog       bool   // retain the serialized timeline log
	WorkDir       string // base for the per-run temp dir, "" = system default
}

// Result summarizes a completed run.
type Result struct {
	Output       string
	Repositories int
	Events       int
	Entries      int
	People       int
	LogPath      string // set when KeepLog
	Duration     time.Duration
}

// Orchestrator drives a full run: parallel scan, merge, scale, serialize,
// then renderer and encoder subprocesses chained by a pipe. The first
// error aborts everything; temp artifacts are removed on every exit path
// unless the caller asked to keep the log.
type Orchestrator struct {
	repos    []models.Repository
	resolver *identity.Resolver
	renderer Renderer
	encoder  Encoder
	logger   *logrus.Logger
	opts     Options
}

// NewOrchestrator creates an orchestrator for one run.
func NewOrchestrator(
	repos []models.Repository,
	resolver *identity.Resolver,
	renderer Renderer,
	encoder Encoder,
	logger *logrus.Logger,
	opts Options,
) *Orchestrator {
	return &Orchestrator{
		repos:    repos,
		resolver: resolver,
		renderer: renderer,
		encoder:  encoder,
		logger:   logger,
		opts:     opts,
	}
}

// Run executes the pipeline and blocks until the video is written or
// something fails.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	startTime := time.Now()
	runID := uuid.NewString()[:8]
	log := o.logger.WithField("run_id", runID)

	if len(o.repos) == 0 {
		return nil, apperrors.New(apperrors.KindRepositoryAccess, "no repositories to visualize")
	}
	if o.opts.Start.After(o.opts.End) {
		return nil, apperrors.DateRange(fmt.Sprintf("start date %s is after end date %s",
			o.opts.Start.Format(time.DateOnly), o.opts.End.Format(time.DateOnly)))
	}

	log.WithFields(logrus.Fields{
		"repositories": len(o.repos),
		"start":        o.opts.Start.Format(time.DateOnly),
		"end":          o.opts.End.Format(time.DateOnly),
	}).Info("Starting visualization pipeline")

	sources, err := o.scanAll(ctx, log)
	if err != nil {
		return nil, err
	}

	merged := timeline.Merge(sources, o.resolver)
	entries := timeline.Scale(merged, o.opts.Start, o.opts.SecondsPerDay, o.opts.TimeScale)
	if len(entries) == 0 {
		return nil, apperrors.New(apperrors.KindInternal, fmt.Sprintf(
			"no commit events found between %s and %s",
			o.opts.Start.Format(time.DateOnly), o.opts.End.Format(time.DateOnly)))
	}

	log.WithFields(logrus.Fields{
		"events":  len(merged),
		"entries": len(entries),
		"people":  len(o.resolver.Persons()),
	}).Info("Timeline assembled")

	tmpDir, err := os.MkdirTemp(o.opts.WorkDir, "gitviz-"+runID+"-*")
	if err != nil {
		return nil, apperrors.Internal(err, "create temp directory")
	}
	defer func() {
		if !o.opts.KeepLog {
			os.RemoveAll(tmpDir)
		}
	}()

	logPath := filepath.Join(tmpDir, "timeline.log")
	if err := writeLogFile(logPath, entries); err != nil {
		return nil, err
	}

	if err := o.renderAndEncode(ctx, log, logPath); err != nil {
		return nil, err
	}

	result := &Result{
		Output:       o.opts.Output,
		Repositories: len(o.repos),
		Events:       len(merged),
		Entries:      len(entries),
		People:       len(o.resolver.Persons()),
		Duration:     time.Since(startTime),
	}
	if o.opts.KeepLog {
		result.LogPath = logPath
		log.WithField("log", logPath).Info("Timeline log retained")
	}

	log.WithFields(logrus.Fields{
		"output":   result.Output,
		"entries":  result.Entries,
		"people":   result.People,
		"duration": result.Duration.String(),
	}).Info("Visualization complete")

	return result, nil
}

// scanAll extracts every repository's history on a bounded worker pool.
// Results land in insertion order regardless of completion order; the
// first failure cancels the rest.
func (o *Orchestrator) scanAll(ctx context.Context, log *logrus.Entry) ([][]models.CommitEvent, error) {
	workers := o.opts.Workers
	if workers <= 0 {
		workers = defaultScanWorkers
	}
	if workers > len(o.repos) {
		workers = len(o.repos)
	}

	sources := make([][]models.CommitEvent, len(o.repos))
	progress := rate.Sometimes{Interval: time.Second}
	var scanned atomic.Int32

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, repo := range o.repos {
		i, repo := i, repo
		g.Go(func() error {
			scanner := git.NewScanner(repo,
				git.WithCache(o.opts.Cache),
				git.WithPathPrefix(o.opts.PrefixPaths))
			events, err := scanner.Scan(gctx, o.opts.Start, o.opts.End)
			if err != nil {
				return err
			}
			sources[i] = events

			done := scanned.Add(1)
			progress.Do(func() {
				log.WithFields(logrus.Fields{
					"scanned": done,
					"total":   len(o.repos),
				}).Info("Scanning repositories")
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sources, nil
}

// renderAndEncode streams the serialized log through the renderer and
// pipes its frame output straight into the encoder.
func (o *Orchestrator) renderAndEncode(ctx context.Context, log *logrus.Entry, logPath string) error {
	logFile, err := os.Open(logPath)
	if err != nil {
		return apperrors.Internal(err, "open timeline log")
	}
	defer logFile.Close()

	pr, pw := io.Pipe()

	// Whichever stage fails first is the root cause: the pipe then carries
	// that failure into the other stage, whose error is consequent. Each
	// goroutine records its error before closing its pipe end, so the
	// first claim always belongs to the stage that actually broke.
	var (
		wg        sync.WaitGroup
		renderErr error
		encodeErr error
		rootErr   error
		rootOnce  sync.Once
	)
	claim := func(err error) {
		if err != nil {
			rootOnce.Do(func() { rootErr = err })
		}
	}
	wg.Add(2)
	go func() {
		defer wg.Done()
		renderErr = o.renderer.Render(ctx, logFile, pw)
		claim(renderErr)
		pw.CloseWithError(renderErr)
	}()
	go func() {
		defer wg.Done()
		encodeErr = o.encoder.Encode(ctx, pr, o.opts.Output)
		claim(encodeErr)
		pr.CloseWithError(encodeErr)
	}()
	wg.Wait()

	if rootErr == nil {
		return nil
	}
	if renderErr != nil && encodeErr != nil && renderErr != encodeErr {
		if rootErr == renderErr {
			log.WithField("error", encodeErr).Warn("Encoder also failed")
		} else {
			log.WithField("error", renderErr).Warn("Renderer also failed")
		}
	}
	return rootErr
}

func writeLogFile(path string, entries []models.TimelineEntry) error {
	f, err := os.Create(path)
	if err != nil {
		return apperrors.Internal(err, "create timeline log")
	}
	if err := timeline.WriteLog(f, entries); err != nil {
		f.Close()
		return apperrors.Internal(err, "write timeline log")
	}
	if err := f.Close(); err != nil {
		return apperrors.Internal(err, "close timeline log")
	}
	return nil
}
