package models

import (
	"sort"
	"time"
)

// Column names of the records table.
const (
	ColTimestamp    = "timestamp"
	ColAssetType    = "asset_type"
	ColBidAskSpread = "bid_ask_spread"
	ColVolume       = "volume"
	ColBidPrice     = "bid_price"
)

// RequiredColumns lists the columns every record source must expose.
var RequiredColumns = []string{ColTimestamp, ColAssetType, ColBidAskSpread, ColVolume, ColBidPrice}

// FeatureNames is the fixed order of the feature vector.
var FeatureNames = []string{ColBidAskSpread, ColVolume, ColBidPrice}

// NumFeatures is len(FeatureNames).
const NumFeatures = 3

// Record is one market microstructure observation.
type Record struct {
	AssetType    string    `json:"asset_type"`
	Timestamp    time.Time `json:"timestamp"`
	BidAskSpread float64   `json:"bid_ask_spread"`
	Volume       float64   `json:"volume"`
	BidPrice     float64   `json:"bid_price"`
}

// Features returns the record as a vector in FeatureNames order.
func (r Record) Features() []float64 {
	return []float64{r.BidAskSpread, r.Volume, r.BidPrice}
}

// RecordFromFeatures builds a record from a vector in FeatureNames order.
func RecordFromFeatures(asset string, ts time.Time, v []float64) Record {
	return Record{AssetType: asset, Timestamp: ts, BidAskSpread: v[0], Volume: v[1], BidPrice: v[2]}
}

// SortByTimestamp orders recs by timestamp in place and drops duplicate
// timestamps, keeping the record that came last in the input. It returns the
// shortened slice.
func SortByTimestamp(recs []Record) []Record {
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Timestamp.Before(recs[j].Timestamp) })
	out := recs[:0]
	for i, r := range recs {
		if i+1 < len(recs) && recs[i+1].Timestamp.Equal(r.Timestamp) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// RawRecord is a row as read from a source, before timestamp parsing.
type RawRecord struct {
	Row          int     `parquet:"-"`
	AssetType    string  `parquet:"asset_type"`
	Timestamp    string  `parquet:"timestamp"`
	BidAskSpread float64 `parquet:"bid_ask_spread"`
	Volume       float64 `parquet:"volume"`
	BidPrice     float64 `parquet:"bid_price"`
}

// AssetSeries holds the records of one asset ordered by timestamp ascending,
// one record per timestamp.
type AssetSeries struct {
	AssetType string   `json:"asset_type"`
	Records   []Record `json:"records"`
}

// Matrix returns the feature vectors of the series.
func (s AssetSeries) Matrix() [][]float64 {
	out := make([][]float64, len(s.Records))
	for i, r := range s.Records {
		out[i] = r.Features()
	}
	return out
}

// RecordInput is a record as submitted to the predict endpoint. Pointer
// fields distinguish an absent column from a zero value.
type RecordInput struct {
	AssetType    string   `json:"asset_type"`
	Timestamp    *string  `json:"timestamp"`
	BidAskSpread *float64 `json:"bid_ask_spread"`
	Volume       *float64 `json:"volume"`
	BidPrice     *float64 `json:"bid_price"`
}

// MissingColumns returns the required columns absent from r.
func (r RecordInput) MissingColumns() []string {
	var missing []string
	if r.Timestamp == nil {
		missing = append(missing, ColTimestamp)
	}
	if r.BidAskSpread == nil {
		missing = append(missing, ColBidAskSpread)
	}
	if r.Volume == nil {
		missing = append(missing, ColVolume)
	}
	if r.BidPrice == nil {
		missing = append(missing, ColBidPrice)
	}
	return missing
}
