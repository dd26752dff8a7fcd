package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/user/pingwatch/internal/util"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a default config file",
	Long: `Write a config file with default values. Without a path the file is
written to config.yaml in the data directory.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return yaml.NewEncoder(cmd.OutOrStdout()).Encode(cfg)
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing file")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := filepath.Join(cfg.DataDir, "config.yaml")
	if len(args) == 1 {
		path = args[0]
	}

	if util.FileExists(path) && !configForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	def := util.DefaultConfig()
	def.DataDir = cfg.DataDir
	def.LogFile = filepath.Join(cfg.DataDir, "pingwatch.log")
	def.ReportOutputDir = filepath.Join(cfg.DataDir, "reports")

	data, err := yaml.Marshal(def)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.EnsureDir(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("Config written to %s\n", path)
	return nil
}
