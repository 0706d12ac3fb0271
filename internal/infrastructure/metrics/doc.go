// Package metrics exposes Prometheus metrics for the cover decision engine.
//
// The collectors live on a private registry served at the configured path
// (default /metrics):
//
//	graylogic_covers_commands_total{cover,reason}    position commands issued
//	graylogic_covers_target_position{cover}          last commanded position
//	graylogic_covers_override_active{cover}          1 while an override holds
//	graylogic_covers_evaluations_total{cover,trigger} decision cycles run
//	graylogic_http_requests_total{route,status}      API traffic
//
// Metrics.Observe is registered as a snapshot listener and
// Metrics.ObserveEvaluation as the engines' evaluation observer.
package metrics
