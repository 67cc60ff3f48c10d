package main

import (
	"github.com/prometheus/client_golang/prometheus"
)

// apiErrorCount implements utils.ErrorCounter over a prometheus counter labeled by endpoint
type apiErrorCount struct {
	apiErrorCounter *prometheus.CounterVec
}

var AEC = &apiErrorCount{
	apiErrorCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tanglewallet_iota_api_error_counter",
		Help: "Increases every time IOTA API returns an error",
	}, []string{"endpoint"}),
}

func (aec *apiErrorCount) CheckError(endpoint string, err error) bool {
	if err == nil {
		return false
	}
	if endpoint == "" {
		endpoint = "general"
	}
	aec.apiErrorCounter.With(prometheus.Labels{"endpoint": endpoint}).Inc()
	if log != nil {
		log.Debugf("API error at '%v': %v", endpoint, err)
	}
	return true
}
