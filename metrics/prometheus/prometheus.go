// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package prometheus exposes the pool's geth-style metrics registry as a
// prometheus Gatherer, so the daemon can serve them on /metrics.
package prometheus

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/luxfi/geth/metrics"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Gatherer implements [prometheus.Gatherer] by gathering all metrics from
// the given registry.
type Gatherer struct {
	registry Registry
}

var _ prometheus.Gatherer = (*Gatherer)(nil)

// NewGatherer returns a [Gatherer] using the given registry.
func NewGatherer(registry Registry) *Gatherer {
	return &Gatherer{
		registry: registry,
	}
}

// Gather gathers metrics from the registry and converts them to a slice of
// metric families.
func (g *Gatherer) Gather() (mfs []*dto.MetricFamily, err error) {
	// Gather and pre-sort the metrics to avoid random listings
	var names []string
	g.registry.Each(func(name string, i any) {
		names = append(names, name)
	})
	sort.Strings(names)

	mfs = make([]*dto.MetricFamily, 0, len(names))
	for _, name := range names {
		mf, err := metricFamily(g.registry, name)
		switch {
		case errors.Is(err, errMetricSkip):
			continue
		case err != nil:
			return nil, err
		}
		mfs = append(mfs, mf)
	}

	return mfs, nil
}

var (
	errMetricSkip             = errors.New("metric skipped")
	errMetricTypeNotSupported = errors.New("metric type is not supported")
)

func ptrTo[T any](x T) *T { return &x }

func metricFamily(registry Registry, name string) (*dto.MetricFamily, error) {
	m := registry.Get(name)
	name = strings.ReplaceAll(name, "/", "_")

	if m == nil {
		return nil, fmt.Errorf("%w: %q metric is nil", errMetricSkip, name)
	}

	switch m := m.(type) {
	case *metrics.Counter:
		return &dto.MetricFamily{
			Name: ptrTo(name),
			Type: dto.MetricType_COUNTER.Enum(),
			Metric: []*dto.Metric{{
				Counter: &dto.Counter{
					Value: ptrTo(float64(m.Snapshot().Count())),
				},
			}},
		}, nil
	case *metrics.Gauge:
		return &dto.MetricFamily{
			Name: ptrTo(name),
			Type: dto.MetricType_GAUGE.Enum(),
			Metric: []*dto.Metric{{
				Gauge: &dto.Gauge{
					Value: ptrTo(float64(m.Snapshot().Value())),
				},
			}},
		}, nil
	case *metrics.GaugeFloat64:
		return &dto.MetricFamily{
			Name: ptrTo(name),
			Type: dto.MetricType_GAUGE.Enum(),
			Metric: []*dto.Metric{{
				Gauge: &dto.Gauge{
					Value: ptrTo(m.Snapshot().Value()),
				},
			}},
		}, nil
	case *metrics.Meter:
		return &dto.MetricFamily{
			Name: ptrTo(name),
			Type: dto.MetricType_GAUGE.Enum(),
			Metric: []*dto.Metric{{
				Gauge: &dto.Gauge{
					Value: ptrTo(float64(m.Snapshot().Count())),
				},
			}},
		}, nil
	case metrics.Histogram:
		return histogramFamily(name, m.Snapshot().Count(), float64(m.Snapshot().Sum()), m.Snapshot().Percentiles), nil
	case *metrics.Timer:
		return histogramFamily(name, m.Snapshot().Count(), float64(m.Snapshot().Sum()), m.Snapshot().Percentiles), nil
	default:
		return nil, fmt.Errorf("%w: metric %q type %T", errMetricTypeNotSupported, name, m)
	}
}

func histogramFamily(name string, count int64, sum float64, percentiles func([]float64) []float64) *dto.MetricFamily {
	quantiles := []float64{.5, .75, .95, .99, .999, .9999}
	thresholds := percentiles(quantiles)
	dtoQuantiles := make([]*dto.Quantile, len(quantiles))
	for i := range thresholds {
		dtoQuantiles[i] = &dto.Quantile{
			Quantile: ptrTo(quantiles[i]),
			Value:    ptrTo(thresholds[i]),
		}
	}
	return &dto.MetricFamily{
		Name: ptrTo(name),
		Type: dto.MetricType_SUMMARY.Enum(),
		Metric: []*dto.Metric{{
			Summary: &dto.Summary{
				SampleCount: ptrTo(uint64(count)),
				SampleSum:   ptrTo(sum),
				Quantile:    dtoQuantiles,
			},
		}},
	}
}
