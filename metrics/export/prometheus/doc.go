// Package prometheus renders lmsauth engine metrics in the Prometheus text
// exposition format. Counters are named lmsauth_*_total; the latency
// histograms are lmsauth_login_latency_seconds and
// lmsauth_validate_latency_seconds. Mount Exporter.Handler on your own mux;
// nothing is registered globally.
package prometheus
