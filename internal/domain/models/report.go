package models

// LiquidityReport summarizes liquidity risk over history and forecast.
type LiquidityReport struct {
	AssetType                  string   `json:"asset_type"`
	TotalRecords               int      `json:"total_records"`
	HighRiskCount              int      `json:"high_risk_count"`
	ModerateRiskCount          int      `json:"moderate_risk_count"`
	CurrentHighRiskCount       int      `json:"current_high_risk_count"`
	PredictedHighRiskCount     int      `json:"predicted_high_risk_count"`
	CurrentModerateRiskCount   int      `json:"current_moderate_risk_count"`
	PredictedModerateRiskCount int      `json:"predicted_moderate_risk_count"`
	CurrentWarnings            []string `json:"current_warnings"`
	PredictedWarnings          []string `json:"predicted_warnings"`
}

// ReportResponse bundles a report with the data it was computed from.
type ReportResponse struct {
	Report         LiquidityReport  `json:"report"`
	HistoricalData []Record         `json:"historical_data"`
	Predictions    []ForecastRecord `json:"predictions"`
}
