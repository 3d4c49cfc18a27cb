package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"linkrelay/internal/config"
	"linkrelay/internal/dispatcher"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:           "linkrelay",
		Short:         "linkrelay: send YouTube and Instagram videos back to Telegram chats",
		Long:          "linkrelay is a Telegram bot that downloads the video behind a YouTube or Instagram link and replies with it.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json or config.yaml (default: ~/.linkrelay/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(gatewayCmd())
	root.AddCommand(fetchCmd())
	root.AddCommand(classifyCmd())
	root.AddCommand(historyCmd())
	root.AddCommand(configCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(serviceCmd())

	if err := root.Execute(); err != nil {
		printError(err)
		os.Exit(1)
	}
}

// printError lists validation problems one per line instead of as a blob.
func printError(err error) {
	var verr *config.ValidationError
	if errors.As(err, &verr) {
		fmt.Fprintln(os.Stderr, "Error: invalid configuration")
		for _, p := range verr.Problems {
			fmt.Fprintf(os.Stderr, "  - %s\n", p)
		}
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := config.ExpandPath(resolveConfigPath())
			if _, err := os.Stat(cfgPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", cfgPath)
			}
			// The token stays empty; TOKEN from the environment fills it in.
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}

func classifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <text>",
		Short: "Print which retriever a message would use",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			text := joinArgs(args)
			kind := dispatcher.Classify(text)
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", kind, dispatcher.ExtractLink(text, kind))
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. downloads.workers)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadLocal(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.GetByPath(config.Sanitize(cfg), args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. downloads.workers 4)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			err := config.Update(cfgPath, func(cfg *config.Config) error {
				return config.SetByPath(cfg, args[0], args[1])
			})
			if err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			logger.Info("config updated", "path", args[0], "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadLocal(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfg = config.Sanitize(cfg)
			for _, path := range config.ListPaths() {
				val, err := config.GetByPath(cfg, path)
				if err != nil {
					return err
				}
				data, _ := json.Marshal(val)
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", path, data)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), resolveConfigPath())
		},
	})

	return cmd
}
