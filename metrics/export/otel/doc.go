// Package otel publishes lmsauth engine metrics through an OpenTelemetry
// meter. Each counter becomes an Int64ObservableCounter and each latency
// histogram a set of cumulative bucket gauges, all read by one callback per
// collection. The caller owns the MeterProvider.
package otel
