// cmd/preflight/main.go
package main

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/hamed0406/pagewatch/internal/atomicfile"
	"github.com/hamed0406/pagewatch/internal/config"
	"github.com/hamed0406/pagewatch/internal/repo/file"
	pg "github.com/hamed0406/pagewatch/internal/repo/postgres"
)

func main() {
	fail := func(msg string) {
		fmt.Fprintln(os.Stderr, "✖", msg)
		os.Exit(1)
	}
	warn := func(msg string) { fmt.Fprintln(os.Stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Println("✔", msg) }

	cfg := config.FromEnv()

	if _, _, err := net.SplitHostPort(cfg.Addr); err != nil {
		fail(fmt.Sprintf("ADDR=%q is not host:port: %v", cfg.Addr, err))
	}
	ok("ADDR=" + cfg.Addr)

	// Output root must accept new session directories.
	probe := filepath.Join(cfg.OutputDir, ".preflight")
	if err := atomicfile.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		fail(fmt.Sprintf("OUTPUT_DIR %q is not writable: %v", cfg.OutputDir, err))
	}
	_ = os.Remove(probe)
	ok("OUTPUT_DIR writable: " + cfg.OutputDir)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch {
	case cfg.DatabaseURL != "":
		db, err := pg.New(ctx, cfg.DatabaseURL, nil)
		if err != nil {
			fail("DATABASE_URL unreachable: " + err.Error())
		}
		db.Close()
		ok("DATABASE_URL reachable (registry in Postgres)")
	case cfg.RegistryPath != "":
		n, err := file.New(cfg.RegistryPath, nil).Check()
		if err != nil {
			fail("REGISTRY_PATH unreadable: " + err.Error())
		}
		ok(fmt.Sprintf("REGISTRY_PATH %s (%d sites)", cfg.RegistryPath, n))
	default:
		warn("no DATABASE_URL or REGISTRY_PATH; sites are kept in memory and lost on restart.")
	}

	if cfg.SlackWebhookURL == "" {
		warn("SLACK_WEBHOOK_URL empty; alerts go to the log only.")
	} else if u, err := url.Parse(cfg.SlackWebhookURL); err != nil || u.Scheme != "https" {
		fail("SLACK_WEBHOOK_URL must be an https URL.")
	} else {
		ok("SLACK_WEBHOOK_URL present")
	}

	if len(cfg.AllowedOrigins) == 0 || cfg.AllowedOrigins[0] == "*" {
		warn("ALLOWED_ORIGINS allows any origin.")
	} else {
		ok(fmt.Sprintf("ALLOWED_ORIGINS=%v", cfg.AllowedOrigins))
	}

	ok("preflight passed")
}
