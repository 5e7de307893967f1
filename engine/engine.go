// Package engine 是合并/汇总循环：每秒从 mailbox 取出一批 Update，
// 合并到进程表，重新计算总量并交给展示层。
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cdr.dev/slog/v3"
	"github.com/coder/quartz"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/xerrors"

	"bwtop/format"
	"bwtop/model"
	"bwtop/table"
)

// Period 是刷新周期，固定 1 秒
const Period = time.Second

// FailureText 是探针启动失败时展示的警告
const FailureText = "Failed to access network device(s)."

// Drainer 是 mailbox 的消费端
type Drainer interface {
	Drain() map[uint32]model.Update
}

// Presenter 是展示层：接收行变更、每周期的汇总和一次性的警告
type Presenter interface {
	table.RowPresenter
	Refresh(totals model.Totals, summary string)
	Warn(text string)
}

type Options struct {
	Mailbox   Drainer
	Presenter Presenter
	Users     table.UserResolver
	// Status 是探针 Start 的返回值，在 Run 开始时展示一次
	Status     model.Status
	Logger     slog.Logger
	Clock      quartz.Clock
	Registerer prometheus.Registerer
}

type Engine struct {
	mailbox   Drainer
	presenter Presenter
	table     *table.Table
	status    model.Status
	logger    slog.Logger
	clock     quartz.Clock
	metrics   *metrics
	latency   *latency

	mu      sync.Mutex
	totals  model.Totals
	summary string
}

func New(opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = quartz.NewReal()
	}
	return &Engine{
		mailbox:   opts.Mailbox,
		presenter: opts.Presenter,
		table:     table.New(opts.Presenter, opts.Users),
		status:    opts.Status,
		logger:    opts.Logger,
		clock:     opts.Clock,
		metrics:   newMetrics(opts.Registerer),
		latency:   newLatency(),
		summary:   Summary(model.Totals{}),
	}
}

// Run 每个 Period 执行一次 Cycle，直到 ctx 被取消。
// 正在进行的周期总会完整执行完。
func (e *Engine) Run(ctx context.Context) error {
	if e.status == model.StatusFailure {
		e.logger.Warn(ctx, "probe failed to start, table will stay empty")
		e.presenter.Warn(FailureText)
	}

	w := e.clock.TickerFunc(ctx, Period, func() error {
		e.Cycle(ctx)
		return nil
	}, "engine", "cycle")
	err := w.Wait()

	r := e.latency.report()
	e.logger.Info(ctx, "engine stopped",
		slog.F("cycles", r.Count),
		slog.F("p50", r.P50),
		slog.F("p99", r.P99),
		slog.F("max", r.Max),
	)

	if xerrors.Is(err, context.Canceled) || xerrors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// Cycle: drain -> merge -> total -> 交给展示层
func (e *Engine) Cycle(ctx context.Context) {
	start := e.clock.Now()

	batch := e.mailbox.Drain()
	if len(batch) == 0 {
		// 没有更新，表和总量都不变
		e.metrics.cycles.WithLabelValues("idle").Inc()
		return
	}

	// 同一个 PID 在 batch 里最多出现一次，所以遍历顺序不影响结果
	for pid, u := range batch {
		e.apply(ctx, pid, u)
	}

	totals := e.computeTotals()
	summary := Summary(totals)

	e.mu.Lock()
	e.totals = totals
	e.summary = summary
	e.mu.Unlock()

	e.presenter.Refresh(totals, summary)

	e.metrics.cycles.WithLabelValues("merged").Inc()
	e.metrics.rows.Set(float64(e.table.Len()))

	elapsed := e.clock.Since(start)
	e.metrics.duration.Observe(elapsed.Seconds())
	e.latency.record(elapsed)
	if elapsed > Period {
		e.logger.Warn(ctx, "refresh cycle exceeded period",
			slog.F("elapsed", elapsed),
			slog.F("updates", len(batch)),
			slog.F("rows", e.table.Len()),
		)
	}
}

func (e *Engine) apply(ctx context.Context, pid uint32, u model.Update) {
	switch u.Action {
	case model.ActionRemove:
		if !e.table.Remove(pid) {
			// 同一周期内先 upsert 再 remove 也会走到这里
			e.anomaly(ctx, anomalyRemoveUntracked, u)
			return
		}
	case model.ActionUpsert:
		e.table.Upsert(pid, u)
	default:
		e.anomaly(ctx, anomalyUnknownAction, u)
		return
	}
	e.metrics.applied.WithLabelValues(u.Action.String()).Inc()
}

// anomaly 记录违反探针事件约定的更新，忽略它并继续
func (e *Engine) anomaly(ctx context.Context, kind string, u model.Update) {
	e.metrics.anomalies.WithLabelValues(kind).Inc()
	fields := []slog.Field{
		slog.F("kind", kind),
		slog.F("pid", u.PID),
		slog.F("action", u.Action.String()),
	}
	if kind == anomalyUnknownAction {
		e.logger.Warn(ctx, "ignoring update", fields...)
		return
	}
	e.logger.Debug(ctx, "ignoring update", fields...)
}

// computeTotals 每次都重新求和，不做增量维护
func (e *Engine) computeTotals() model.Totals {
	var t model.Totals
	for row := range e.table.Rows() {
		t.SentBytes += row.SentBytes
		t.RecvBytes += row.RecvBytes
		if row.SentRate > 0 {
			t.SentRate += row.SentRate
		}
		if row.RecvRate > 0 {
			t.RecvRate += row.RecvRate
		}
	}
	return t
}

// Totals 返回最近一次发布的总量
func (e *Engine) Totals() model.Totals {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.totals
}

// Summary 返回最近一次发布的汇总行
func (e *Engine) Summary() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.summary
}

// Table 只应在引擎协程里或引擎停止后使用
func (e *Engine) Table() *table.Table {
	return e.table
}

func (e *Engine) LatencyReport() LatencyReport {
	return e.latency.report()
}

// Summary 渲染状态栏的汇总行
func Summary(t model.Totals) string {
	return fmt.Sprintf("Sent: %s | Received: %s | Outbound bandwidth: %s | Inbound bandwidth: %s",
		format.ByteCount(t.SentBytes),
		format.ByteCount(t.RecvBytes),
		format.Rate(t.SentRate),
		format.Rate(t.RecvRate),
	)
}
