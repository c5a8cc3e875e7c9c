package detector

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"KeyZones/internal/domain/models"
	domrepo "KeyZones/internal/domain/repository"
	domsvc "KeyZones/internal/domain/service"
	applogger "KeyZones/pkg/logger"
	"KeyZones/pkg/util"
)

var _ domsvc.ZoneDetector = (*ProcessDetector)(nil)

// Option configures ProcessDetector.
type Option func(*ProcessDetector)

// WithTimeout bounds a single invocation. Zero means no bound beyond the caller's context.
func WithTimeout(d time.Duration) Option {
	return func(p *ProcessDetector) { p.timeout = d }
}

// WithMergeStderr folds the error stream into the output stream. Failure is
// still classified by exit status only.
func WithMergeStderr(merge bool) Option {
	return func(p *ProcessDetector) { p.mergeStderr = merge }
}

// WithPreflight checks the candle file exists before spawning.
func WithPreflight(enabled bool) Option {
	return func(p *ProcessDetector) { p.preflight = enabled }
}

// WithDateLayout sets the layout used for date arguments.
func WithDateLayout(layout string) Option {
	return func(p *ProcessDetector) { p.dateLayout = layout }
}

// WithWaitDelay bounds how long Wait blocks on inherited pipes after the
// process is killed.
func WithWaitDelay(d time.Duration) Option {
	return func(p *ProcessDetector) { p.waitDelay = d }
}

func WithLogger(l *applogger.Logger) Option {
	return func(p *ProcessDetector) { p.l = l }
}

func WithMetrics(m domrepo.Metrics) Option {
	return func(p *ProcessDetector) { p.m = m }
}

// ProcessDetector runs the level detection script as a child process:
//
//	<interpreter> <script> <candles> <start|None> <end|None> <tf> <zone%> <merge%> <asset> <artifact>
//
// Each non-empty stdout line is one level, in the order printed. The chart is
// written by the script to the artifact path.
type ProcessDetector struct {
	interpreter string
	script      string
	candles     domrepo.CandleSource
	artifacts   domrepo.ArtifactStore
	dateLayout  string
	timeout     time.Duration
	waitDelay   time.Duration
	mergeStderr bool
	preflight   bool
	l           *applogger.Logger
	m           domrepo.Metrics
}

func NewProcessDetector(interpreter, script string, candles domrepo.CandleSource, artifacts domrepo.ArtifactStore, opts ...Option) *ProcessDetector {
	p := &ProcessDetector{
		interpreter: interpreter,
		script:      script,
		candles:     candles,
		artifacts:   artifacts,
		dateLayout:  util.DefaultDateLayout,
		waitDelay:   2 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.l == nil {
		p.l = applogger.Nop()
	}
	return p
}

// Args returns the full command line for q, interpreter first.
func (p *ProcessDetector) Args(q models.ZoneQuery) []string {
	return []string{
		p.interpreter,
		p.script,
		p.candles.Path(q.Asset),
		q.Window.StartArg(p.dateLayout),
		q.Window.EndArg(p.dateLayout),
		q.Timeframe.Label(),
		util.FormatPercent(q.ZoneSizePercent),
		util.FormatPercent(q.MergeDistancePercent),
		q.Asset.Name(),
		p.artifacts.PathFor(q.Asset, q.Timeframe),
	}
}

// Detect runs the script once for q. Failures are returned as *models.DetectionError.
func (p *ProcessDetector) Detect(ctx context.Context, q models.ZoneQuery) (models.ZoneResult, error) {
	start := time.Now()
	res, err := p.run(ctx, q)
	res.Duration = time.Since(start)

	if p.m != nil {
		p.m.RecordDetection(q.Asset.Name(), q.Timeframe.Label(), err != nil)
		p.m.RecordLatency("detect", res.Duration.Seconds())
	}
	if err != nil {
		p.l.Warn("zone detection failed",
			applogger.String("asset", q.Asset.Name()),
			applogger.String("timeframe", q.Timeframe.Label()),
			applogger.Duration("duration_ms", res.Duration),
			applogger.Error(err),
		)
		return res, err
	}
	p.l.Debug("zone detection ok",
		applogger.String("asset", q.Asset.Name()),
		applogger.String("timeframe", q.Timeframe.Label()),
		applogger.Int("levels", len(res.Levels)),
		applogger.Duration("duration_ms", res.Duration),
	)
	return res, nil
}

func (p *ProcessDetector) run(ctx context.Context, q models.ZoneQuery) (models.ZoneResult, error) {
	if err := q.Validate(); err != nil {
		return models.FailedResult(q, err), models.NewDetectionError(q, nil, err)
	}
	if p.preflight {
		if err := p.candles.Check(q.Asset, q.Timeframe); err != nil {
			return models.FailedResult(q, err), models.NewDetectionError(q, nil, err)
		}
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	args := p.Args(q)
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.WaitDelay = p.waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	if p.mergeStderr {
		cmd.Stderr = &stdout
	} else {
		cmd.Stderr = &stderr
	}

	runErr := cmd.Run()
	lines, scanErr := splitLines(stdout.Bytes())
	diag, _ := splitLines(stderr.Bytes())

	if runErr != nil {
		output := append(lines, diag...)
		cause := runErr
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			cause = fmt.Errorf("timed out after %s: %w", p.timeout, context.DeadlineExceeded)
		case errors.Is(ctx.Err(), context.Canceled):
			cause = context.Canceled
		default:
			if tail := lastLine(output); tail != "" {
				cause = fmt.Errorf("%w: %s", runErr, tail)
			}
		}
		derr := models.NewDetectionError(q, output, cause)
		return models.FailedResult(q, derr), derr
	}

	if scanErr != nil {
		derr := models.NewDetectionError(q, append(lines, diag...), fmt.Errorf("read detector output: %w", scanErr))
		return models.FailedResult(q, derr), derr
	}

	if len(diag) > 0 {
		p.l.Debug("detector wrote to stderr",
			applogger.String("asset", q.Asset.Name()),
			applogger.String("timeframe", q.Timeframe.Label()),
			applogger.Strings("stderr", diag),
		)
	}

	return models.ZoneResult{
		Asset:        q.Asset,
		Timeframe:    q.Timeframe,
		Levels:       lines,
		ArtifactPath: p.artifacts.PathFor(q.Asset, q.Timeframe),
	}, nil
}

// splitLines returns the non-empty lines of b without trailing whitespace.
// On a scan error the lines read so far are returned with it.
func splitLines(b []byte) ([]string, error) {
	out := make([]string, 0, 16)
	sc := bufio.NewScanner(bytes.NewReader(b))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), " \t\r")
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out, sc.Err()
}

func lastLine(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return lines[len(lines)-1]
}
