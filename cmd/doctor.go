package cmd

import (
	"database/sql"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/adhocore/gronx"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/pedidolabs/pedidobot/internal/config"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("pedidobot doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	fmt.Println()
	fmt.Println("  Database:")
	if cfg.Managed() {
		fmt.Printf("    %-12s postgres\n", "Backend:")
		db, dbErr := sql.Open("pgx", cfg.Database.PostgresDSN)
		if dbErr != nil {
			fmt.Printf("    %-12s CONNECT FAILED (%s)\n", "Status:", dbErr)
		} else if pingErr := db.Ping(); pingErr != nil {
			fmt.Printf("    %-12s CONNECT FAILED (%s)\n", "Status:", pingErr)
			db.Close()
		} else {
			fmt.Printf("    %-12s reachable\n", "Status:")
			printSchemaVersion(db)
			db.Close()
		}
	} else {
		path := config.ExpandHome(cfg.Database.SQLitePath)
		fmt.Printf("    %-12s sqlite (standalone)\n", "Backend:")
		fmt.Printf("    %-12s %s", "Path:", path)
		if _, statErr := os.Stat(path); statErr != nil {
			fmt.Println(" (will be created)")
		} else {
			fmt.Println(" (OK)")
		}
	}

	fmt.Println()
	fmt.Println("  Provider:")
	name := cfg.Provider.Name
	if name == "" {
		name = "openai"
	}
	checkSecret(name, cfg.Provider.APIKey)

	fmt.Println()
	fmt.Println("  Channels:")
	checkChannel("WhatsApp", cfg.WhatsApp.Enabled,
		cfg.WhatsApp.AccessToken != "" && cfg.WhatsApp.VerifyToken != "")
	checkChannel("Telegram (vendors)", cfg.Notify.Enabled, cfg.Notify.BotToken != "")

	fmt.Println()
	fmt.Println("  Ops:")
	if cfg.Gateway.Token != "" {
		fmt.Printf("    %-12s token set (emergency + sweep endpoints enabled)\n", "Gateway:")
	} else {
		fmt.Printf("    %-12s no token (ops endpoints disabled)\n", "Gateway:")
	}

	if cfg.Reminders.Enabled {
		expr := cfg.Reminders.CronExpr
		if expr == "" {
			expr = "*/15 * * * *"
		}
		if gronx.New().IsValid(expr) {
			fmt.Printf("    %-12s %q (OK)\n", "Reminders:", expr)
		} else {
			fmt.Printf("    %-12s %q (INVALID CRON)\n", "Reminders:", expr)
		}
	} else {
		fmt.Printf("    %-12s disabled\n", "Reminders:")
	}

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func printSchemaVersion(db *sql.DB) {
	var version uint
	var dirty bool
	err := db.QueryRow("SELECT version, dirty FROM schema_migrations").Scan(&version, &dirty)
	if err != nil {
		fmt.Printf("    %-12s not initialized (run: pedidobot migrate up)\n", "Schema:")
		return
	}
	if dirty {
		fmt.Printf("    %-12s v%d (DIRTY — run: pedidobot migrate force %d)\n", "Schema:", version, version-1)
		return
	}
	fmt.Printf("    %-12s v%d\n", "Schema:", version)
}

func checkSecret(name, key string) {
	if key == "" {
		fmt.Printf("    %-12s (no API key — set PEDIDOBOT_PROVIDER_API_KEY)\n", name+":")
		return
	}
	masked := key
	if len(key) > 8 {
		masked = key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
	}
	fmt.Printf("    %-12s %s\n", name+":", masked)
}

func checkChannel(name string, enabled, hasCredentials bool) {
	status := "disabled"
	if enabled && hasCredentials {
		status = "enabled"
	} else if enabled {
		status = "enabled (missing credentials)"
	}
	fmt.Printf("    %-20s %s\n", name+":", status)
}
