// Package cli 是 bwtop 的命令行入口：解析参数、读取配置，
// 把探针、mailbox、引擎和展示层接到一起。
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"bwtop/config"
)

// About 是程序的一句话介绍
const About = "Per-application bandwidth usage statistics."

type rootFlags struct {
	configPath    string
	mode          string
	object        string
	metricsListen string
	verbose       bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "bwtop",
		Short: About,
		Long: `bwtop shows how much network traffic each process sends and receives.

Per-process byte counters are collected by an eBPF probe attached to the
kernel TCP/UDP send and receive paths. The table is refreshed once a second.

Examples:
  sudo bwtop
  sudo bwtop --mode plain
  sudo bwtop --metrics-listen 127.0.0.1:9100`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMonitor(cmd, flags)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "config file (default ./bwtop.yaml or ~/.config/bwtop/config.yaml)")
	pf.StringVar(&flags.mode, "mode", "", "output mode: auto, tui or plain")
	pf.StringVar(&flags.object, "object", "", "path to the compiled BPF object")
	pf.StringVar(&flags.metricsListen, "metrics-listen", "", "serve Prometheus metrics on this address")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Start the monitor (same as running bwtop without a subcommand)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runMonitor(cmd, flags)
			},
		},
		newConfigCmd(flags),
		newVersionCmd(),
	)
	return cmd
}

// loadConfig 读取配置文件并应用命令行覆盖
func loadConfig(cmd *cobra.Command, flags *rootFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	f := cmd.Flags()
	if f.Changed("mode") {
		cfg.UI.Mode = flags.mode
	}
	if f.Changed("object") {
		cfg.Probe.Object = flags.object
	}
	if f.Changed("metrics-listen") {
		cfg.Metrics.Listen = flags.metricsListen
	}
	if flags.verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newConfigCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			b, err := cfg.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(b)
			return err
		},
	}
}

// Execute 运行根命令，出错时以状态码 1 退出
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
