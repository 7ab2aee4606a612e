// Package monitoring exports run metrics to Prometheus and serves them,
// together with a health probe, the latest run report and a websocket event
// feed, over HTTP.
//
// Usage:
//
//	metrics := monitoring.NewMetrics()
//	server := monitoring.NewServer(logger, ":9090", metrics)
//	server.Start()
//
//	// pass metrics as the simulation's node.Recorder, then
//	metrics.Publish(result)
//	server.SetReport(report)
//	server.Publish(monitoring.EventRunFinished, report.Summary)
package monitoring
