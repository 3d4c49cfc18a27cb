package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"linkrelay/internal/config"
	"linkrelay/internal/history"

	"github.com/lrstanley/go-ytdlp"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your linkrelay installation",
		Long: `Verifies the configuration, the yt-dlp binary, the temp directory and
the optional history database. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := config.ExpandPath(resolveConfigPath())
			fmt.Printf("linkrelay doctor v%s\n\n", version)

			var passed, failed, warned int

			if _, err := os.Stat(cfgPath); err != nil {
				printWarn("Config file", fmt.Sprintf("not found at %s, using defaults", cfgPath))
				warned++
			} else {
				printPass("Config file", cfgPath)
				passed++
			}

			cfg, err := config.LoadLocal(cfgPath)
			if err != nil {
				printFail("Config validation", err.Error())
				failed++
				fmt.Printf("\n%d passed, %d warnings, %d failed\n", passed, warned, failed)
				return fmt.Errorf("%d check(s) failed", failed)
			}
			printPass("Config validation", "valid")
			passed++

			if strings.TrimSpace(cfg.Telegram.Token) == "" {
				printFail("Telegram token", "missing (set TOKEN or telegram.token)")
				failed++
			} else {
				printPass("Telegram token", "configured")
				passed++
			}

			if v, err := checkExtractor(cfg.YouTube.BinaryPath); err != nil {
				printFail("yt-dlp", err.Error())
				failed++
			} else {
				printPass("yt-dlp", v)
				passed++
			}

			if err := checkWritableDir(cfg.Downloads.TempDir); err != nil {
				printFail("Temp directory", err.Error())
				failed++
			} else {
				printPass("Temp directory", cfg.Downloads.TempDir)
				passed++
			}

			if cfg.History.Enabled {
				if err := checkDatabase(cfg.History.DBPath); err != nil {
					printFail("History database", err.Error())
					failed++
				} else {
					printPass("History database", cfg.History.DBPath)
					passed++
				}
			}

			if cfg.Metrics.Enabled {
				if err := checkAddr(cfg.Metrics.Addr); err != nil {
					printWarn("Metrics address", fmt.Sprintf("%s may be in use: %v", cfg.Metrics.Addr, err))
					warned++
				} else {
					printPass("Metrics address", cfg.Metrics.Addr+" available")
					passed++
				}
			}

			if cfg.General.LogFile != "" {
				if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
					printWarn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
					warned++
				} else {
					printPass("Log file", cfg.General.LogFile)
					passed++
				}
			}

			fmt.Printf("\nResults: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				return fmt.Errorf("%d check(s) failed", failed)
			}
			return nil
		},
	}
}

// checkExtractor resolves the yt-dlp binary and returns its version.
func checkExtractor(binary string) (string, error) {
	path, err := exec.LookPath(binary)
	if err != nil {
		return "", fmt.Errorf("%s not found in PATH", binary)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	res, err := ytdlp.New().SetExecutable(path).Version(ctx)
	if err != nil {
		return "", fmt.Errorf("%s --version: %w", path, err)
	}
	return fmt.Sprintf("%s (%s)", path, strings.TrimSpace(res.Stdout)), nil
}

func checkWritableDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create %s: %w", dir, err)
	}
	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

func checkDatabase(dbPath string) error {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("cannot create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", history.DSN(dbPath))
	if err != nil {
		return fmt.Errorf("cannot open: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("cannot ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS _doctor_test (id INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS _doctor_test")
	return err
}

func checkAddr(addr string) error {
	if addr == "" {
		return errors.New("empty address")
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return ln.Close()
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}
