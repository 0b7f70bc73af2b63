package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestJobMetricsSplitsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewJobMetrics(reg)
	finished := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)

	m.ObserveRun("close-ended-auctions", 250*time.Millisecond, finished, nil)
	m.ObserveRun("close-ended-auctions", 40*time.Millisecond, finished.Add(time.Minute), errors.New("db down"))
	m.CycleSkipped()

	mfs, err := reg.Gather()
	require.NoError(t, err)

	ok := sample(mfs, "farmbid_cron_job_runs_total", map[string]string{"job": "close-ended-auctions", "outcome": "ok"})
	require.NotNil(t, ok)
	require.Equal(t, float64(1), ok.GetCounter().GetValue())

	failed := sample(mfs, "farmbid_cron_job_runs_total", map[string]string{"job": "close-ended-auctions", "outcome": "error"})
	require.NotNil(t, failed)
	require.Equal(t, float64(1), failed.GetCounter().GetValue())

	// a failed run must not advance the staleness gauge
	last := sample(mfs, "farmbid_cron_job_last_success_unixtime", map[string]string{"job": "close-ended-auctions"})
	require.NotNil(t, last)
	require.Equal(t, float64(finished.Unix()), last.GetGauge().GetValue())

	hist := sample(mfs, "farmbid_cron_job_duration_seconds", map[string]string{"job": "close-ended-auctions"})
	require.NotNil(t, hist)
	require.Equal(t, uint64(2), hist.GetHistogram().GetSampleCount())

	skipped := sample(mfs, "farmbid_cron_cycles_skipped_total", nil)
	require.NotNil(t, skipped)
	require.Equal(t, float64(1), skipped.GetCounter().GetValue())
}

func TestJobMetricsBlankJobName(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewJobMetrics(reg).ObserveRun("", time.Millisecond, time.Now(), nil)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	require.NotNil(t, sample(mfs, "farmbid_cron_job_runs_total", map[string]string{"job": "unknown", "outcome": "ok"}))

	var nilMetrics *JobMetrics
	nilMetrics.ObserveRun("x", time.Second, time.Now(), nil)
	nilMetrics.CycleSkipped()
}

// sample returns the series of family name whose labels include want.
func sample(mfs []*dto.MetricFamily, name string, want map[string]string) *dto.Metric {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return nil
	}
outer:
	for _, metric := range mf.GetMetric() {
		have := make(map[string]string, len(metric.GetLabel()))
		for _, pair := range metric.GetLabel() {
			have[pair.GetName()] = pair.GetValue()
		}
		for k, v := range want {
			if have[k] != v {
				continue outer
			}
		}
		return metric
	}
	return nil
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	metric := sample(mfs, name, map[string]string{label: value})
	if metric == nil {
		return 0, fmt.Errorf("no %s series with %s=%s", name, label, value)
	}
	return metric.GetCounter().GetValue(), nil
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}
