package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/user/pingwatch/internal/storage"
	"github.com/user/pingwatch/internal/util"
)

// Version is set at build time with -ldflags.
var Version = "dev"

var (
	cfgFile string
	cfg     *util.Config
)

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "pingwatch",
	Short: "Host reachability monitor with incident tracking",
	Long: `pingwatch periodically pings a set of hosts. Every failed check is
recorded as an incident together with a traceroute taken at the time of the
failure, and incidents are resolved automatically once the host answers again.

It runs as a background daemon and exposes incidents through the CLI, a
terminal dashboard, an HTTP API and Markdown reports.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "",
		"config file (default is $HOME/.pingwatch/config.yaml)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("data-dir", "", "directory holding the database, logs and PID file")
	flags.StringSlice("hosts", nil, "hosts to monitor (comma separated)")
	flags.Int("interval", 0, "seconds between check cycles (10-3600)")
	flags.Int("timeout", 0, "per-attempt ping timeout in milliseconds (1000-30000)")
	flags.Int("retries", 0, "extra ping attempts before a host counts as down (1-10)")
	flags.Int("resolve-window", 0, "recent incidents per host scanned on recovery")

	for key, flag := range map[string]string{
		"log_level":      "log-level",
		"data_dir":       "data-dir",
		"hosts":          "hosts",
		"interval":       "interval",
		"timeout":        "timeout",
		"retries":        "retries",
		"resolve_window": "resolve-window",
	} {
		viper.BindPFlag(key, flags.Lookup(flag))
	}

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(incidentsCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(webCmd)
	rootCmd.AddCommand(uiCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(completionCmd)
}

func initConfig() {
	var err error
	cfg, err = util.LoadConfig(viper.GetViper(), cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	util.InitLogger(cfg.LogLevel, cfg.LogFile)
}

// openStore opens a store handle on the configured data directory.
func openStore() (*storage.IncidentStorage, error) {
	db, err := storage.Open(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return storage.NewIncidentStorage(db, util.Logger().Named("storage")), nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("pingwatch version %s\n", Version)
	},
}

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion script",
	Long: `Generate shell completion script for pingwatch.

To load completions:

Bash:
  $ source <(pingwatch completion bash)

Zsh:
  $ source <(pingwatch completion zsh)

Fish:
  $ pingwatch completion fish | source

PowerShell:
  PS> pingwatch completion powershell | Out-String | Invoke-Expression
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		switch args[0] {
		case "bash":
			return cmd.Root().GenBashCompletion(out)
		case "zsh":
			return cmd.Root().GenZshCompletion(out)
		case "fish":
			return cmd.Root().GenFishCompletion(out, true)
		default:
			return cmd.Root().GenPowerShellCompletionWithDesc(out)
		}
	},
}
