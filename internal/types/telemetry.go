package types

// Telemetry metric names for CloudWatch.
// All components MUST use these constants.
const (
	// Metric Names
	MetricCitiesRanked     = "CitiesRanked"
	MetricCityFailures     = "CityFailures"
	MetricPipelineDuration = "PipelineDuration"
	MetricStageItems       = "StageItems"
	MetricAPILatency       = "APILatency"
	MetricAPIRequestCount  = "APIRequestCount"

	// Dimension Keys
	DimStage    = "Stage"
	DimResult   = "Result"
	DimMethod   = "Method"
	DimEndpoint = "Endpoint"
	DimStatus   = "Status"

	// Metric Namespace
	MetricNamespace = "Forecasting"
)

// Pipeline stage names used as the Stage metric dimension and in logs.
const (
	StageFetch     = "fetch"
	StageAnalyze   = "analyze"
	StageAggregate = "aggregate"
)
