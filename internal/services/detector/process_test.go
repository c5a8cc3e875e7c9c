package detector

import (
	"bufio"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"KeyZones/internal/domain/models"
	"KeyZones/internal/repository"
)

type fixture struct {
	dir       string
	candles   *repository.FSCandleSource
	artifacts *repository.FSArtifactStore
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	f := fixture{
		dir:       dir,
		candles:   repository.NewFSCandleSource(filepath.Join(dir, "data")),
		artifacts: repository.NewFSArtifactStore(filepath.Join(dir, "temp"), nil),
	}
	require.NoError(t, f.artifacts.Ensure(context.Background()))
	return f
}

func (f fixture) script(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(f.dir, "levels.sh")
	require.NoError(t, os.WriteFile(p, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return p
}

func (f fixture) detector(t *testing.T, body string, opts ...Option) *ProcessDetector {
	return NewProcessDetector("/bin/sh", f.script(t, body), f.candles, f.artifacts, opts...)
}

func btc1h(t *testing.T) models.ZoneQuery {
	w, warnings := models.ParseDateWindow("2024-01-01", "None", "2006-01-02")
	require.Empty(t, warnings)
	return models.NewZoneQuery(models.AssetBTC, models.TF1h, w)
}

func TestArgsFollowPositionalContract(t *testing.T) {
	f := newFixture(t)
	d := f.detector(t, "exit 0")

	args := d.Args(btc1h(t))
	require.Len(t, args, 10)
	assert.Equal(t, "/bin/sh", args[0])
	assert.Equal(t, filepath.Join(f.dir, "data", "BTC", "candles"), args[2])
	assert.Equal(t, []string{"2024-01-01", "None", "1h", "3", "2", "BTC"}, args[3:9])
	assert.Equal(t, filepath.Join(f.dir, "temp", "levels_BTC_1h.png"), args[9])
}

func TestDetectReturnsLevelsInOrder(t *testing.T) {
	f := newFixture(t)
	d := f.detector(t, `echo "100.0"
echo ""
echo "105.5"
printf 'png' > "$9"`)

	res, err := d.Detect(context.Background(), btc1h(t))
	require.NoError(t, err)
	assert.False(t, res.Failed)
	assert.Equal(t, []string{"100.0", "105.5"}, res.Levels)
	assert.Equal(t, f.artifacts.PathFor(models.AssetBTC, models.TF1h), res.ArtifactPath)

	b, err := os.ReadFile(res.ArtifactPath)
	require.NoError(t, err)
	assert.Equal(t, "png", string(b))
}

func TestDetectPassesArgumentsThrough(t *testing.T) {
	f := newFixture(t)
	d := f.detector(t, `for a in "$@"; do echo "$a"; done`)

	q := btc1h(t)
	res, err := d.Detect(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, d.Args(q)[2:], res.Levels)
}

func TestDetectNonZeroExitFails(t *testing.T) {
	f := newFixture(t)
	d := f.detector(t, `echo "100.0"
echo "Traceback: boom" >&2
exit 3`)

	res, err := d.Detect(context.Background(), btc1h(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrDetectionFailed))
	assert.True(t, res.Failed)
	assert.Empty(t, res.Levels)
	assert.Equal(t, []string{"100.0", "Traceback: boom"}, res.Diagnostics)
	assert.Contains(t, err.Error(), "Traceback: boom")
}

func TestDetectOversizedOutputLineFails(t *testing.T) {
	f := newFixture(t)
	d := f.detector(t, `echo "100.0"
head -c 2000000 /dev/zero | tr '\0' 'x'
echo ""
echo "105.5"`)

	res, err := d.Detect(context.Background(), btc1h(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrDetectionFailed))
	assert.True(t, errors.Is(err, bufio.ErrTooLong))
	assert.True(t, res.Failed)
	assert.Empty(t, res.Levels)
	assert.Equal(t, []string{"100.0"}, res.Diagnostics)
}

func TestDetectSeparateStreamsIgnoreStderrOnSuccess(t *testing.T) {
	f := newFixture(t)
	d := f.detector(t, `echo "warning: deprecated" >&2
echo "100.0"`)

	res, err := d.Detect(context.Background(), btc1h(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"100.0"}, res.Levels)
}

func TestDetectMergedStreams(t *testing.T) {
	f := newFixture(t)
	d := f.detector(t, `echo "warning: deprecated" >&2
echo "100.0"`, WithMergeStderr(true))

	res, err := d.Detect(context.Background(), btc1h(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"warning: deprecated", "100.0"}, res.Levels)
}

func TestDetectTimeout(t *testing.T) {
	f := newFixture(t)
	d := f.detector(t, "exec sleep 5", WithTimeout(100*time.Millisecond), WithWaitDelay(100*time.Millisecond))

	start := time.Now()
	res, err := d.Detect(context.Background(), btc1h(t))
	require.Error(t, err)
	assert.True(t, res.Failed)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.True(t, errors.Is(err, models.ErrDetectionFailed))
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestDetectPreflightMissingCandles(t *testing.T) {
	f := newFixture(t)
	marker := filepath.Join(f.dir, "ran")
	d := f.detector(t, `touch "`+marker+`"`, WithPreflight(true))

	_, err := d.Detect(context.Background(), btc1h(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrCandlesMissing))
	assert.True(t, errors.Is(err, models.ErrDetectionFailed))
	_, statErr := os.Stat(marker)
	assert.True(t, os.IsNotExist(statErr), "detector must not run without candles")

	require.NoError(t, os.MkdirAll(f.candles.Path(models.AssetBTC), 0o755))
	require.NoError(t, os.WriteFile(f.candles.File(models.AssetBTC, models.TF1h), []byte("open_time\n"), 0o644))
	_, err = d.Detect(context.Background(), btc1h(t))
	require.NoError(t, err)
	_, statErr = os.Stat(marker)
	assert.NoError(t, statErr)
}

func TestDetectMissingInterpreter(t *testing.T) {
	f := newFixture(t)
	d := NewProcessDetector(filepath.Join(f.dir, "no-such-python"), "levels.py", f.candles, f.artifacts)

	res, err := d.Detect(context.Background(), btc1h(t))
	require.Error(t, err)
	assert.True(t, res.Failed)
	assert.True(t, errors.Is(err, models.ErrDetectionFailed))
}

func TestDetectRejectsInvalidQuery(t *testing.T) {
	f := newFixture(t)
	d := f.detector(t, "echo 1")

	q := btc1h(t)
	q.ZoneSizePercent = -1
	_, err := d.Detect(context.Background(), q)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrDetectionFailed))
}
