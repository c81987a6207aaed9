package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/five82/leafrun/internal/app"
	"github.com/five82/leafrun/internal/config"
	"github.com/five82/leafrun/internal/prefs"
)

const programName = "leafrun"

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var globalFlags = struct {
	configFile string
	prefsFile  string
	offline    bool
	debug      bool
	dataDir    string
	backend    string
	apiBase    string
}{}

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", programName, err)
		return 1
	}
	return 0
}

func rootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           programName,
		Short:         "Offline-first leaflet route tracker",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return tuiRun(cmd.Context())
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&globalFlags.configFile, "config", "", "path to config file (default ~/.config/leafrun/config.toml)")
	flags.StringVar(&globalFlags.prefsFile, "prefs", prefs.DefaultPath(), "path to TUI preferences file")
	flags.BoolVar(&globalFlags.offline, "offline", false, "never contact the server; queue every action")
	flags.BoolVarP(&globalFlags.debug, "debug", "D", false, "enable debug logging")
	flags.StringVar(&globalFlags.dataDir, "data-dir", "", "override the local data directory")
	flags.StringVar(&globalFlags.backend, "backend", "", "override the local store backend (badger, sqlite, memory)")
	flags.StringVar(&globalFlags.apiBase, "api", "", "override the server base URL")

	rootCmd.AddCommand(
		tuiCommand(),
		statusCommand(),
		completeCommand(),
		reportCommand(),
		syncCommand(),
		optimizeCommand(),
		queueCommand(),
		exportCommand(),
	)
	return rootCmd
}

func tuiCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Open the interactive route view (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return tuiRun(cmd.Context())
		},
	}
}

func tuiRun(ctx context.Context) error {
	rt, err := app.Open(runtimeOptions(true))
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()
	return rt.RunTUI(ctx, globalFlags.prefsFile)
}

// runtimeOptions maps the global flags onto app options. The TUI logs to a
// file so the terminal stays clean; CLI commands log to stderr.
func runtimeOptions(logToFile bool) app.Options {
	return app.Options{
		ConfigPath: globalFlags.configFile,
		PrefsPath:  globalFlags.prefsFile,
		Version:    version,
		Offline:    globalFlags.offline,
		Debug:      globalFlags.debug,
		LogToFile:  logToFile,
		LogWriter:  os.Stderr,
		Override:   applyFlagOverrides,
	}
}

func applyFlagOverrides(cfg *config.Config) {
	if globalFlags.dataDir != "" {
		cfg.DataDir = globalFlags.dataDir
	}
	if globalFlags.backend != "" {
		cfg.StoreBackend = globalFlags.backend
	}
	if globalFlags.apiBase != "" {
		cfg.APIBase = globalFlags.apiBase
	}
}
