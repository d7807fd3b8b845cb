package usecase

import (
	"fmt"
	"time"

	"FinCast/internal/domain/models"
)

// Liquidity risk thresholds relative to the moving averages.
const (
	highSpreadFactor     = 3.0
	highVolumeFactor     = 0.4
	moderateSpreadFactor = 1.2
	moderateVolumeFactor = 0.7
)

// AssessLiquidity scores history followed by forecast against moving averages
// of spread and volume over the last window records, the record itself
// included.
func AssessLiquidity(current, predicted []models.Record, window int) models.LiquidityReport {
	if window < 1 {
		window = 1
	}
	rep := models.LiquidityReport{
		TotalRecords:      len(current) + len(predicted),
		CurrentWarnings:   []string{},
		PredictedWarnings: []string{},
	}
	switch {
	case len(current) > 0:
		rep.AssetType = current[0].AssetType
	case len(predicted) > 0:
		rep.AssetType = predicted[0].AssetType
	}

	all := make([]models.Record, 0, rep.TotalRecords)
	all = append(all, current...)
	all = append(all, predicted...)

	var spreadSum, volumeSum float64
	for i, r := range all {
		spreadSum += r.BidAskSpread
		volumeSum += r.Volume
		if i >= window {
			spreadSum -= all[i-window].BidAskSpread
			volumeSum -= all[i-window].Volume
		}
		n := float64(min(i+1, window))
		spreadMA, volumeMA := spreadSum/n, volumeSum/n

		high := r.BidAskSpread > highSpreadFactor*spreadMA || r.Volume < highVolumeFactor*volumeMA
		moderate := r.BidAskSpread > moderateSpreadFactor*spreadMA || r.Volume < moderateVolumeFactor*volumeMA
		isPrediction := i >= len(current)

		switch {
		case high && isPrediction:
			rep.PredictedHighRiskCount++
			rep.PredictedWarnings = append(rep.PredictedWarnings, riskWarning("Predicted", r, spreadMA, volumeMA))
		case high:
			rep.CurrentHighRiskCount++
			rep.CurrentWarnings = append(rep.CurrentWarnings, riskWarning("Current", r, spreadMA, volumeMA))
		case moderate && isPrediction:
			rep.PredictedModerateRiskCount++
		case moderate:
			rep.CurrentModerateRiskCount++
		}
	}

	rep.HighRiskCount = rep.CurrentHighRiskCount + rep.PredictedHighRiskCount
	rep.ModerateRiskCount = rep.CurrentModerateRiskCount + rep.PredictedModerateRiskCount
	return rep
}

func riskWarning(kind string, r models.Record, spreadMA, volumeMA float64) string {
	return fmt.Sprintf("%s high risk for %s at %s: Spread=%.2f (MA=%.2f), Volume=%.0f (MA=%.0f)",
		kind, r.AssetType, r.Timestamp.UTC().Format(time.RFC3339), r.BidAskSpread, spreadMA, r.Volume, volumeMA)
}
