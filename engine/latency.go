package engine

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// HDR 直方图范围: 1µs 到 60s, 3 位有效数字
const (
	histMin    = 1
	histMax    = 60_000_000
	histSigFig = 3
)

// LatencyReport 是周期耗时的分位数汇总
type LatencyReport struct {
	Count int64
	P50   time.Duration
	P99   time.Duration
	Max   time.Duration
}

type latency struct {
	mu   sync.Mutex
	hist *hdrhistogram.Histogram
}

func newLatency() *latency {
	return &latency{hist: hdrhistogram.New(histMin, histMax, histSigFig)}
}

func (l *latency) record(d time.Duration) {
	us := d.Microseconds()
	if us < histMin {
		us = histMin
	}
	if us > histMax {
		us = histMax
	}
	l.mu.Lock()
	_ = l.hist.RecordValue(us)
	l.mu.Unlock()
}

func (l *latency) report() LatencyReport {
	l.mu.Lock()
	defer l.mu.Unlock()
	return LatencyReport{
		Count: l.hist.TotalCount(),
		P50:   time.Duration(l.hist.ValueAtQuantile(50)) * time.Microsecond,
		P99:   time.Duration(l.hist.ValueAtQuantile(99)) * time.Microsecond,
		Max:   time.Duration(l.hist.Max()) * time.Microsecond,
	}
}
