package config

import "fmt"

// Parameter is a configuration value kept in SSM Parameter Store at
// /{env}/forecasting/{Key}. A deployment points {EnvVar}_SSM_PARAM at the
// stored path and the loader copies the value into EnvVar.
type Parameter struct {
	EnvVar string
	Key    string
	// Secure parameters are stored as SecureString.
	Secure bool
	// Optional parameters may be absent from the store; EnvVar then keeps
	// its envconfig default.
	Optional bool
}

// The parameters written by cmd/ops/bootstrap.
var (
	ParamWeatherAPIKey    = Parameter{EnvVar: "WEATHER_API_KEY", Key: "weather/api_key", Secure: true}
	ParamWeatherUserAgent = Parameter{EnvVar: "WEATHER_USER_AGENT", Key: "weather/user_agent"}
	ParamReportBucket     = Parameter{EnvVar: "REPORT_BUCKET", Key: "reports/bucket"}
	ParamRankingQueueURL  = Parameter{EnvVar: "RANKING_QUEUE_URL", Key: "queue/ranking_url"}
	ParamMetricNamespace  = Parameter{EnvVar: "METRIC_NAMESPACE", Key: "observability/metric_namespace", Optional: true}
)

// Parameters is every value the loader resolves from SSM, in bootstrap order.
var Parameters = []Parameter{
	ParamWeatherAPIKey,
	ParamWeatherUserAgent,
	ParamReportBucket,
	ParamRankingQueueURL,
	ParamMetricNamespace,
}

// ssmParamSuffix marks the variable holding a parameter's SSM path, e.g.
// WEATHER_API_KEY_SSM_PARAM.
const ssmParamSuffix = "_SSM_PARAM"

// ParameterPrefix is the SSM path prefix of every parameter of env.
func ParameterPrefix(env string) string {
	return fmt.Sprintf("/%s/forecasting/", env)
}

// Path is the SSM path of p in env.
func (p Parameter) Path(env string) string {
	return ParameterPrefix(env) + p.Key
}

// PointerVar is the variable a deployment sets to p's SSM path.
func (p Parameter) PointerVar() string {
	return p.EnvVar + ssmParamSuffix
}
