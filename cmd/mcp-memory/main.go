package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/paolino/mcp-memory-server/internal/audit"
	"github.com/paolino/mcp-memory-server/internal/config"
	"github.com/paolino/mcp-memory-server/internal/killgate"
	"github.com/paolino/mcp-memory-server/internal/logging"
	"github.com/paolino/mcp-memory-server/internal/mcp"
	"github.com/paolino/mcp-memory-server/internal/memory"
	"github.com/paolino/mcp-memory-server/internal/query"
	"github.com/paolino/mcp-memory-server/internal/tools"
	"github.com/paolino/mcp-memory-server/internal/workerpool"
)

var (
	version    = "0.1.0"
	cfgFile    string
	outputFlag string
	logLevel   string
	listenAddr string
)

const shutdownTimeout = 10 * time.Second

var rootCmd = &cobra.Command{
	Use:           "mcp-memory",
	Short:         "Memory and process inspection tool server",
	Long:          `mcp-memory reports RAM and swap usage, finds heavy or stale processes and terminates them with safety checks, as a JSON-RPC tool server or from the command line.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the tools over stdio, or over WebSocket with --listen",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Show RAM and swap usage",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTool(cmd, tools.CmdListMemoryUsage, nil)
	},
}

var topCmd = &cobra.Command{
	Use:   "top",
	Short: "List the processes using the most memory or CPU",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		payload := map[string]any{}
		copyIntFlag(cmd, payload, "count", "n")
		copyStringFlag(cmd, payload, "sort", "sort_by")
		return runTool(cmd, tools.CmdListTopProcesses, payload)
	},
}

var groupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "Group processes by name with their combined memory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		payload := map[string]any{}
		copyIntFlag(cmd, payload, "count", "n")
		copyIntFlag(cmd, payload, "min-count", "min_count")
		return runTool(cmd, tools.CmdListProcessGroups, payload)
	},
}

var staleCmd = &cobra.Command{
	Use:   "stale",
	Short: "Find old idle processes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		payload := map[string]any{}
		copyFloatFlag(cmd, payload, "min-age", "min_age_hours")
		copyFloatFlag(cmd, payload, "min-memory", "min_memory_mb")
		copyStringFlag(cmd, payload, "name-pattern", "name_pattern")
		if cmd.Flags().Changed("state") {
			states, _ := cmd.Flags().GetStringSlice("state")
			payload["states"] = states
		}
		return runTool(cmd, tools.CmdFindStale, payload)
	},
}

var killCmd = &cobra.Command{
	Use:   "kill PID [PID...]",
	Short: "Send SIGTERM or SIGKILL to processes after safety checks",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pids, err := parsePIDs(args)
		if err != nil {
			return err
		}
		confirmFlags, _ := cmd.Flags().GetStringArray("confirm")
		confirm, err := parseConfirm(confirmFlags)
		if err != nil {
			return err
		}
		payload := map[string]any{"pids": pids, "confirm_names": confirm}
		copyStringFlag(cmd, payload, "signal", "signal_name")
		return runTool(cmd, tools.CmdKillProcesses, payload)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "mcp-memory v%s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/mcp-memory/mcp-memory.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputFlag, "output", "o", "", "output format: json or yaml")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "serve WebSocket clients on host:port instead of stdio")

	topCmd.Flags().IntP("count", "n", query.DefaultTopN, "number of processes (1-100)")
	topCmd.Flags().String("sort", query.SortByMemory, "sort by memory or cpu")

	groupsCmd.Flags().IntP("count", "n", query.DefaultGroupN, "number of groups (1-50)")
	groupsCmd.Flags().Int("min-count", query.DefaultMinCount, "minimum processes per group")

	staleCmd.Flags().Float64("min-age", query.DefaultMinAgeHrs, "minimum age in hours")
	staleCmd.Flags().StringSlice("state", query.DefaultStates(), "process states to include")
	staleCmd.Flags().String("name-pattern", "", "case-insensitive regular expression for the name")
	staleCmd.Flags().Float64("min-memory", 0, "minimum resident memory in MB")

	killCmd.Flags().String("signal", killgate.DefaultSignalName, "SIGTERM or SIGKILL")
	killCmd.Flags().StringArray("confirm", nil, "require PID=NAME to still match, repeatable")

	rootCmd.AddCommand(serveCmd, memoryCmd, topCmd, groupsCmd, staleCmd, killCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// setup loads config, applies flag overrides and starts logging. The
// returned func flushes and closes the log sink.
func setup(cmd *cobra.Command) (*config.Config, func(), error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if outputFlag != "" {
		cfg.Output = outputFlag
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if cmd.Flags().Changed("listen") {
		cfg.ListenAddr = listenAddr
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, nil, fmt.Errorf("invalid settings: %v", errs)
	}

	var sink io.WriteCloser
	if cfg.LogFile != "" {
		sink = logging.NewFileWriter(cfg.LogFile, cfg.LogMaxSizeMB, cfg.LogMaxBackups)
		logging.Init(cfg.LogFormat, cfg.LogLevel, sink)
	} else {
		logging.Init(cfg.LogFormat, cfg.LogLevel, nil)
	}

	cleanup := func() {
		logging.Sync()
		if sink != nil {
			_ = sink.Close()
		}
	}
	return cfg, cleanup, nil
}

// newToolbox builds the live toolbox, attaching the audit trail when enabled.
func newToolbox(cfg *config.Config) (*tools.Toolbox, *audit.Logger, error) {
	var opts []killgate.Option
	var auditLog *audit.Logger
	if cfg.AuditEnabled {
		l, err := audit.NewLogger(audit.Options{
			Path:       cfg.AuditFile,
			MaxSizeMB:  cfg.AuditMaxSizeMB,
			MaxBackups: cfg.AuditMaxBackups,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open audit log: %w", err)
		}
		auditLog = l
		opts = append(opts, killgate.WithRecorder(l))
	}

	tb := tools.NewToolbox(memory.NewSummarizer(nil), query.NewEngine(nil), killgate.New(opts...))
	return tb, auditLog, nil
}

func runServe(cmd *cobra.Command) error {
	cfg, cleanup, err := setup(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	tb, auditLog, err := newToolbox(cfg)
	if err != nil {
		return err
	}
	defer auditLog.Close()

	transport := "stdio"
	if cfg.ListenAddr != "" {
		transport = "websocket"
	}
	log := logging.L("main")
	log.Infow("starting mcp-memory", "version", version, "transport", transport, "workers", cfg.Workers)
	auditLog.Log(audit.EventServerStart, "", map[string]any{"version": version, "transport": transport})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool := workerpool.New(cfg.Workers, cfg.QueueSize)
	server := mcp.NewServer(tb, pool, version)

	if transport == "websocket" {
		err = mcp.NewWebSocketServer(server, cfg.MaxConnections).ListenAndServe(ctx, cfg.ListenAddr)
	} else {
		err = server.ServeStdio(ctx, os.Stdin, os.Stdout)
		if ctx.Err() != nil {
			err = nil
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if perr := pool.Shutdown(shutdownCtx); perr != nil {
		log.Warnw("worker pool did not drain", "error", perr)
	}

	auditLog.Log(audit.EventServerStop, "", map[string]any{"version": version})
	log.Infow("mcp-memory stopped")
	return err
}

func runTool(cmd *cobra.Command, name string, payload map[string]any) error {
	cfg, cleanup, err := setup(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	tb, auditLog, err := newToolbox(cfg)
	if err != nil {
		return err
	}
	defer auditLog.Close()

	result, ok := tb.Dispatch(cmd.Context(), name, payload)
	if !ok {
		return fmt.Errorf("unknown tool: %s", name)
	}
	if result.Failed() {
		return fmt.Errorf("%s", result.Error)
	}
	return render(cmd.OutOrStdout(), cfg.Output, result.Data)
}

func parsePIDs(args []string) ([]int, error) {
	pids := make([]int, 0, len(args))
	for _, a := range args {
		pid, err := strconv.Atoi(strings.TrimSpace(a))
		if err != nil {
			return nil, fmt.Errorf("invalid pid %q", a)
		}
		pids = append(pids, pid)
	}
	return pids, nil
}

// parseConfirm turns PID=NAME flags into the confirmation map. Names may
// contain '='.
func parseConfirm(values []string) (map[int]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	confirm := make(map[int]string, len(values))
	for _, v := range values {
		pidStr, name, ok := strings.Cut(v, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --confirm %q: want PID=NAME", v)
		}
		pid, err := strconv.Atoi(strings.TrimSpace(pidStr))
		if err != nil {
			return nil, fmt.Errorf("invalid --confirm %q: bad pid", v)
		}
		confirm[pid] = name
	}
	return confirm, nil
}

func copyIntFlag(cmd *cobra.Command, payload map[string]any, flag, key string) {
	if cmd.Flags().Changed(flag) {
		v, _ := cmd.Flags().GetInt(flag)
		payload[key] = v
	}
}

func copyFloatFlag(cmd *cobra.Command, payload map[string]any, flag, key string) {
	if cmd.Flags().Changed(flag) {
		v, _ := cmd.Flags().GetFloat64(flag)
		payload[key] = v
	}
}

func copyStringFlag(cmd *cobra.Command, payload map[string]any, flag, key string) {
	if cmd.Flags().Changed(flag) {
		v, _ := cmd.Flags().GetString(flag)
		payload[key] = v
	}
}
