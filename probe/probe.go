// Package probe 在内核里统计每个进程的收发字节数，按固定间隔把变化
// 以 Update 事件的形式发布到 mailbox。
package probe

import (
	"context"
	"sync"
	"time"

	"cdr.dev/slog/v3"
	"github.com/coder/quartz"
	"golang.org/x/xerrors"

	"bwtop/model"
)

// ErrUnsupported 表示当前平台没有可用的探针实现
var ErrUnsupported = xerrors.New("ebpf probe requires linux")

// DefaultInterval 是默认采样间隔
const DefaultInterval = time.Second

// Source 是内核流量数据的来源
type Source interface {
	// Snapshot 返回每个 PID 的累计流量
	Snapshot() (map[uint32]Counters, error)
	// Forget 删除已退出进程的内核记录
	Forget(pid uint32) error
	Close() error
}

// Publisher 是 mailbox 的生产端
type Publisher interface {
	Publish(u model.Update)
}

// UserCache 是 uid -> 用户名的缓存。采样协程在发布前先查一次，
// 可能阻塞的用户数据库查询就不会落在引擎的刷新周期里。
type UserCache interface {
	Lookup(uid uint32) string
}

type Options struct {
	Open     func() (Source, error)
	Mailbox  Publisher
	Info     ProcessInfo
	Users    UserCache // 可以为空
	Device   string
	Interval time.Duration
	Logger   slog.Logger
	Clock    quartz.Clock
}

type Probe struct {
	open     func() (Source, error)
	mailbox  Publisher
	sampler  *Sampler
	users    UserCache
	interval time.Duration
	logger   slog.Logger
	clock    quartz.Clock

	mu     sync.Mutex
	status model.Status
	source Source
	cancel context.CancelFunc
	done   chan struct{}
}

func New(opts Options) *Probe {
	if opts.Clock == nil {
		opts.Clock = quartz.NewReal()
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Info == nil {
		opts.Info = NewProcessInfo()
	}
	return &Probe{
		open:     opts.Open,
		mailbox:  opts.Mailbox,
		sampler:  NewSampler(opts.Device, opts.Info),
		users:    opts.Users,
		interval: opts.Interval,
		logger:   opts.Logger,
		clock:    opts.Clock,
	}
}

// Start 打开数据源并启动采样协程。
// 打开失败时返回 StatusFailure，不会重试。
func (p *Probe) Start(ctx context.Context) model.Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.done != nil {
		return p.status
	}

	src, err := p.open()
	if err != nil {
		p.logger.Warn(ctx, "open traffic source", slog.Error(err))
		p.status = model.StatusFailure
		return p.status
	}
	p.source = src
	p.status = model.StatusOK

	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	go func() {
		defer close(p.done)
		w := p.clock.TickerFunc(ctx, p.interval, func() error {
			p.poll(ctx)
			return nil
		}, "probe", "sample")
		_ = w.Wait()
	}()

	p.logger.Info(ctx, "probe started", slog.F("interval", p.interval))
	return p.status
}

// Status 返回 Start 的结果
func (p *Probe) Status() model.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Stop 等待采样协程退出并关闭数据源
func (p *Probe) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.done == nil {
		return nil
	}
	p.cancel()
	<-p.done
	p.done = nil

	if err := p.source.Close(); err != nil {
		return xerrors.Errorf("close traffic source: %w", err)
	}
	return nil
}

func (p *Probe) poll(ctx context.Context) {
	snap, err := p.source.Snapshot()
	if err != nil {
		p.logger.Warn(ctx, "read traffic snapshot", slog.Error(err))
		return
	}

	updates, gone := p.sampler.Sample(p.clock.Now(), snap)
	for _, u := range updates {
		if p.users != nil && u.Action == model.ActionUpsert {
			p.users.Lookup(u.UID)
		}
		p.mailbox.Publish(u)
	}
	for _, pid := range gone {
		if err := p.source.Forget(pid); err != nil {
			p.logger.Debug(ctx, "forget exited process", slog.F("pid", pid), slog.Error(err))
		}
	}
}
