// lawbot automates the law office's WhatsApp client intake.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/neo050/Office-Automation-Law-bot/cmd"
	"github.com/neo050/Office-Automation-Law-bot/config"
	"github.com/neo050/Office-Automation-Law-bot/logger"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}
	dir, _ := config.ConfigDir()
	if err := logger.Init(cfg.BuildLoggerConfig(), dir); err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
	}
	cmd.Execute()
}
