package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogIsClosed(t *testing.T) {
	assert.Equal(t, []Asset{AssetBTC, AssetETH, AssetSOL}, Assets())
	assert.Equal(t, []Timeframe{TF5m, TF15m, TF1h, TF4h}, Timeframes())

	_, err := ParseAsset("DOGE")
	assert.Error(t, err)
	a, err := ParseAsset("BTC")
	require.NoError(t, err)
	assert.Equal(t, AssetBTC, a)

	_, err = ParseTimeframe("1d")
	assert.Error(t, err)
	tf, err := ParseTimeframe("4h")
	require.NoError(t, err)
	assert.Equal(t, TF4h, tf)
}

func TestAssetsReturnsCopy(t *testing.T) {
	as := Assets()
	as[0] = "XRP"
	assert.Equal(t, AssetBTC, Assets()[0])
}

func TestParseDateWindowDegradesMalformedBounds(t *testing.T) {
	w, warnings := ParseDateWindow("2024-01-01", "yesterday", "2006-01-02")

	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), w.Start)
	assert.True(t, w.End.IsZero())
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "yesterday")
	assert.Equal(t, "2024-01-01", w.StartArg("2006-01-02"))
	assert.Equal(t, "None", w.EndArg("2006-01-02"))
}

func TestParseDateWindowSentinels(t *testing.T) {
	w, warnings := ParseDateWindow("None", "", "2006-01-02")
	assert.Empty(t, warnings)
	assert.True(t, w.Start.IsZero())
	assert.True(t, w.End.IsZero())
	assert.Equal(t, "None..None", w.String())
}

func TestDateWindowRejectsReversedBounds(t *testing.T) {
	start := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := NewDateWindow(start, end)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidDateInput))

	w, err := NewDateWindow(end, start)
	require.NoError(t, err)
	assert.Equal(t, end, w.Start)

	_, err = NewDateWindow(start, start)
	assert.NoError(t, err)
}

func TestZoneQueryValidate(t *testing.T) {
	q := NewZoneQuery(AssetBTC, TF1h, DateWindow{})
	require.NoError(t, q.Validate())
	assert.Equal(t, 3.0, q.ZoneSizePercent)
	assert.Equal(t, 2.0, q.MergeDistancePercent)

	bad := q
	bad.ZoneSizePercent = 0
	assert.Error(t, bad.Validate())

	bad = q
	bad.MergeDistancePercent = 100.5
	assert.Error(t, bad.Validate())

	bad = q
	bad.ZoneSizePercent = 100
	assert.NoError(t, bad.Validate())

	bad = q
	bad.Asset = "XRP"
	assert.Error(t, bad.Validate())
}

func TestDetectionErrorMatchesSentinelAndCause(t *testing.T) {
	cause := errors.New("exit status 1")
	err := NewDetectionError(NewZoneQuery(AssetETH, TF4h, DateWindow{}), []string{"Traceback"}, cause)

	assert.True(t, errors.Is(err, ErrDetectionFailed))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "detect ETH/4h: exit status 1", err.Error())

	r := FailedResult(NewZoneQuery(AssetETH, TF4h, DateWindow{}), err)
	assert.True(t, r.Failed)
	assert.Equal(t, []string{"Traceback"}, r.Diagnostics)
}

func TestResultMatrixAccessors(t *testing.T) {
	m := NewResultMatrix(7, DateWindow{})
	m.Put(ZoneResult{Asset: AssetSOL, Timeframe: TF4h, Levels: []string{"a"}})
	m.Put(ZoneResult{Asset: AssetBTC, Timeframe: TF5m, Failed: true})
	m.Put(ZoneResult{Asset: AssetBTC, Timeframe: TF1h})

	assert.Equal(t, 3, m.Len())
	assert.Equal(t, 1, m.FailedCount())

	var order []string
	m.Each(func(r ZoneResult) { order = append(order, r.Asset.Name()+"/"+r.Timeframe.Label()) })
	assert.Equal(t, []string{"BTC/5m", "BTC/1h", "SOL/4h"}, order)

	r, ok := m.Get(AssetSOL, TF4h)
	require.True(t, ok)
	assert.Equal(t, []string{"a"}, r.Levels)
	_, ok = m.Get(AssetETH, TF4h)
	assert.False(t, ok)
}

func TestParseLevel(t *testing.T) {
	d, ok := ParseLevel("01/03/2024: $61500.0 -> $63345.0 | Reversals: 4")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), d.FirstSeen)
	assert.Equal(t, 61500.0, d.Start)
	assert.Equal(t, 63345.0, d.End)
	assert.Equal(t, 4, d.Reversals)

	_, ok = ParseLevel("Traceback (most recent call last):")
	assert.False(t, ok)
}

func TestMatrixViewKeepsLevelOrder(t *testing.T) {
	m := NewResultMatrix(3, DateWindow{})
	m.Put(ZoneResult{
		Asset:        AssetBTC,
		Timeframe:    TF1h,
		Levels:       []string{"100.0", "105.5", "02/01/2024: $90.0 -> $93.0 | Reversals: 2"},
		ArtifactPath: "/tmp/levels_BTC_1h.png",
	})
	m.Put(ZoneResult{Asset: AssetETH, Timeframe: TF1h, Failed: true, Err: ErrCandlesMissing})

	v := m.View()
	assert.Equal(t, 2, v.Total)
	assert.Equal(t, 1, v.Failed)
	assert.Equal(t, "None", v.StartDate)

	btc := v.Results["BTC"]["1h"]
	require.Len(t, btc.Levels, 3)
	assert.Equal(t, "100.0", btc.Levels[0].Raw)
	assert.Equal(t, "105.5", btc.Levels[1].Raw)
	assert.Nil(t, btc.Levels[0].Start)
	require.NotNil(t, btc.Levels[2].Reversals)
	assert.Equal(t, 2, *btc.Levels[2].Reversals)
	assert.Equal(t, "2024-01-02", btc.Levels[2].FirstSeen)

	eth := v.Results["ETH"]["1h"]
	assert.True(t, eth.Failed)
	assert.Equal(t, ErrCandlesMissing.Error(), eth.Error)
}

func TestCatalog(t *testing.T) {
	c := Catalog()
	assert.Equal(t, []string{"BTC", "ETH", "SOL"}, c.Assets)
	assert.Equal(t, []string{"5m", "15m", "1h", "4h"}, c.Timeframes)
}
