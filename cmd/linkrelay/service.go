package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"linkrelay/internal/config"

	"github.com/spf13/cobra"
)

const serviceName = "linkrelay"

func serviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage the systemd user unit that runs the gateway",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "install",
		Short: "Write a systemd user unit for 'linkrelay gateway'",
		RunE: func(cmd *cobra.Command, args []string) error {
			if runtime.GOOS != "linux" {
				return fmt.Errorf("unsupported OS: %s (systemd units need linux)", runtime.GOOS)
			}
			execPath, err := os.Executable()
			if err != nil {
				return fmt.Errorf("cannot determine executable path: %w", err)
			}
			unitPath, err := unitFilePath()
			if err != nil {
				return err
			}
			cfgPath := absConfigPath(resolveConfigPath())
			envPath := filepath.Join(filepath.Dir(cfgPath), "env")

			if err := os.MkdirAll(filepath.Dir(unitPath), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(unitPath, []byte(renderUnit(execPath, cfgPath, envPath)), 0o644); err != nil {
				return err
			}

			fmt.Printf("Unit installed: %s\n", unitPath)
			fmt.Printf("Put TOKEN=<bot token> in %s, then:\n", envPath)
			fmt.Printf("  systemctl --user daemon-reload\n")
			fmt.Printf("  systemctl --user enable --now %s\n", serviceName)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "uninstall",
		Short: "Remove the systemd user unit",
		RunE: func(cmd *cobra.Command, args []string) error {
			unitPath, err := unitFilePath()
			if err != nil {
				return err
			}
			if err := os.Remove(unitPath); err != nil {
				return fmt.Errorf("remove unit: %w", err)
			}
			fmt.Printf("Unit removed: %s\n", unitPath)
			return nil
		},
	})

	return cmd
}

func unitFilePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "systemd", "user", serviceName+".service"), nil
}

func absConfigPath(path string) string {
	path = config.ExpandPath(path)
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

func renderUnit(execPath, cfgPath, envPath string) string {
	r := strings.NewReplacer(
		"{{EXEC}}", execPath,
		"{{CONFIG}}", cfgPath,
		"{{ENV}}", envPath,
	)
	return r.Replace(systemdTemplate)
}

const systemdTemplate = `[Unit]
Description=linkrelay Telegram video relay
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
EnvironmentFile=-{{ENV}}
ExecStart={{EXEC}} gateway --config {{CONFIG}}
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target
`
