package models

import "fmt"

// Asset identifies a tradable asset from the fixed catalog.
type Asset string

const (
	AssetBTC Asset = "BTC"
	AssetETH Asset = "ETH"
	AssetSOL Asset = "SOL"
)

var assets = []Asset{AssetBTC, AssetETH, AssetSOL}

// Assets returns the catalog in presentation order.
func Assets() []Asset {
	out := make([]Asset, len(assets))
	copy(out, assets)
	return out
}

// Name is the stable name passed to the detector and shown in the UI.
func (a Asset) Name() string { return string(a) }

// PathSegment is the directory name holding the asset's candles.
func (a Asset) PathSegment() string { return string(a) }

func (a Asset) String() string { return string(a) }

// IsValid reports whether a belongs to the catalog.
func (a Asset) IsValid() bool {
	for _, v := range assets {
		if v == a {
			return true
		}
	}
	return false
}

// ParseAsset converts a raw name into a catalog asset.
func ParseAsset(s string) (Asset, error) {
	a := Asset(s)
	if !a.IsValid() {
		return "", fmt.Errorf("unknown asset %q", s)
	}
	return a, nil
}
