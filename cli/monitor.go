package cli

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"cdr.dev/slog/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"bwtop/config"
	"bwtop/engine"
	"bwtop/mailbox"
	"bwtop/probe"
	"bwtop/ui"
	"bwtop/users"
)

// resolveMode 把 auto 换成具体模式：标准输出是终端就用 tui
func resolveMode(mode string, isTerminal bool) string {
	if mode != config.ModeAuto {
		return mode
	}
	if isTerminal {
		return config.ModeTUI
	}
	return config.ModePlain
}

func runMonitor(cmd *cobra.Command, flags *rootFlags) error {
	cfg, err := loadConfig(cmd, flags)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mode := resolveMode(cfg.UI.Mode, term.IsTerminal(int(os.Stdout.Fd())))
	logger, closeLog := newLogger(cfg.Log, mode, cmd.ErrOrStderr())
	defer closeLog()
	logger.Info(ctx, "starting bwtop", slog.F("version", version), slog.F("mode", mode))

	reg := newRegistry()
	if cfg.Metrics.Listen != "" {
		_, closeMetrics, err := serveMetrics(ctx, logger.Named("metrics"), reg, cfg.Metrics.Listen)
		if err != nil {
			return err
		}
		defer closeMetrics()
	}

	mb := mailbox.New()
	resolver := users.NewResolver()
	p := probe.New(probe.Options{
		Open: func() (probe.Source, error) {
			return probe.OpenEBPF(ctx, cfg.Probe.Object, logger.Named("ebpf"))
		},
		Mailbox:  mb,
		Users:    resolver,
		Device:   cfg.Probe.Device,
		Interval: cfg.Probe.Interval,
		Logger:   logger.Named("probe"),
	})

	newEngine := func(presenter engine.Presenter) *engine.Engine {
		return engine.New(engine.Options{
			Mailbox:    mb,
			Presenter:  presenter,
			Users:      resolver,
			Status:     p.Start(ctx),
			Logger:     logger.Named("engine"),
			Registerer: reg,
		})
	}
	defer func() {
		if err := p.Stop(); err != nil {
			logger.Warn(context.Background(), "stop probe", slog.Error(err))
		}
	}()

	if mode == config.ModeTUI {
		return runTUI(ctx, newEngine)
	}
	return runPlain(ctx, cmd.OutOrStdout(), newEngine)
}

// runTUI 界面事件循环和引擎各跑一个协程，任何一个结束都会让另一个退出
func runTUI(ctx context.Context, newEngine func(engine.Presenter) *engine.Engine) error {
	t, err := ui.NewTUI()
	if err != nil {
		return err
	}
	defer t.Close()

	e := newEngine(t)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return t.Loop(ctx)
	})
	g.Go(func() error {
		defer cancel()
		return e.Run(ctx)
	})
	return g.Wait()
}

func runPlain(ctx context.Context, w io.Writer, newEngine func(engine.Presenter) *engine.Engine) error {
	return newEngine(ui.NewPlain(w)).Run(ctx)
}
