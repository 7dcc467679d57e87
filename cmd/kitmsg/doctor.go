package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"kitmsg/internal/config"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
)

type checkResult struct {
	passed, warned, failed int
}

func (r *checkResult) pass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
	r.passed++
}

func (r *checkResult) warn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
	r.warned++
}

func (r *checkResult) fail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
	r.failed++
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your kitmsg installation",
		Long: `Verifies that the configuration, parameter database, bridge port and
NATS server are usable. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("kitmsg doctor v%s\n\n", version)

			var r checkResult

			if _, err := os.Stat(cfgPath); err != nil {
				r.fail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				fmt.Printf("\nRun 'kitmsg init' to create a default configuration.\n")
				return nil
			}
			r.pass("Config file", cfgPath)

			cfg, err := config.Load(cfgPath)
			if err != nil {
				r.fail("Config validation", err.Error())
				fmt.Printf("\n%d passed, %d failed\n", r.passed, r.failed)
				return fmt.Errorf("%d check(s) failed", r.failed)
			}
			r.pass("Config validation", "valid")

			if cfg.Store.Driver == "sqlite" {
				if err := checkDatabase(cfg.Store.DBPath); err != nil {
					r.fail("Database", err.Error())
				} else {
					r.pass("Database", cfg.Store.DBPath)
				}
			} else {
				r.warn("Database", "memory driver: parameters are lost on restart")
			}

			if cfg.Bridge.Enabled {
				addr := net.JoinHostPort(cfg.Bridge.Host, strconv.Itoa(cfg.Bridge.Port))
				if err := checkPort(addr); err != nil {
					r.warn("Bridge port", fmt.Sprintf("%s may be in use: %v", addr, err))
				} else {
					r.pass("Bridge port", addr+" available")
				}
			}

			if cfg.NATS.Enabled {
				if err := checkNATS(cfg.NATS.URL, cfg.NATS.Token); err != nil {
					r.fail("NATS", err.Error())
				} else {
					r.pass("NATS", cfg.NATS.URL)
				}
			}

			if cfg.General.LogFile != "" {
				if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
					r.warn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
				} else {
					r.pass("Log file", cfg.General.LogFile)
				}
			}

			fmt.Printf("\nResults: %d passed, %d warnings, %d failed\n", r.passed, r.warned, r.failed)
			if r.failed > 0 {
				return fmt.Errorf("%d check(s) failed", r.failed)
			}
			return nil
		},
	}
}

func checkDatabase(dbPath string) error {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("cannot create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
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
	db.ExecContext(ctx, "DROP TABLE IF EXISTS _doctor_test")
	return nil
}

func checkPort(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return ln.Close()
}

func checkNATS(url, token string) error {
	opts := []nats.Option{nats.Name("kitmsg-doctor"), nats.Timeout(3 * time.Second)}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return fmt.Errorf("cannot connect: %w", err)
	}
	nc.Close()
	return nil
}
