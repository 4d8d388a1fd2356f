package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/The-Promised-Neverland/hostwatch/internal/config"
	"github.com/The-Promised-Neverland/hostwatch/internal/daemon"
	"github.com/The-Promised-Neverland/hostwatch/pkg/logger"
)

func main() {
	envFile := pflag.String("env-file", ".env", "optional dotenv file with agent settings")
	action := pflag.String("service", "", "manage the OS service: install, uninstall, start, stop, restart or status")
	pflag.Parse()

	if abs, err := filepath.Abs(*envFile); err == nil {
		*envFile = abs
	}

	cfg, err := config.New(*envFile)
	if err != nil {
		color.Red("❌ Configuration error:\n%v", err)
		os.Exit(2)
	}
	logger.Init(cfg.LogFile(), cfg.LogLevel())

	app, err := daemon.NewApplication(cfg)
	if err != nil {
		logger.Log.Error("❌ Failed to build application", "err", err)
		color.Red("❌ %v", err)
		os.Exit(1)
	}
	manager := daemon.NewDaemonManager(cfg, app, []string{"--env-file", *envFile})

	if *action != "" {
		msg, err := manager.Control(*action)
		if err != nil {
			logger.Log.Error("❌ Service action failed", "action", *action, "err", err)
			color.Red("❌ %s failed: %v", *action, err)
			os.Exit(1)
		}
		logger.Log.Info("✅ Service action completed", "action", *action)
		color.Green("✅ %s", msg)
		return
	}

	if err := manager.RunDaemon(); err != nil {
		logger.Log.Error("❌ Service failed", "err", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
