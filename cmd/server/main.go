package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lojf/weatherbot/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "server",
		Short:        "Telegram webhook relay for the weather agent",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			configFile, _ := cmd.Flags().GetString("config")
			v, err := config.NewViper(configFile)
			if err != nil {
				return err
			}
			bindFlags(cmd, v)
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), v, cfg)
		},
	}

	cmd.Flags().String("config", "", "Dotenv or config file (defaults to ./.env when present).")
	cmd.Flags().String("host", config.DefaultHost, "Listen host (HOST).")
	cmd.Flags().Int("port", config.DefaultPort, "Listen port (PORT).")
	cmd.Flags().Bool("reload", true, "Watch the config file and apply LOG_LEVEL changes live (RELOAD).")
	cmd.Flags().String("log-level", "info", "Logging level: debug|info|warn|error (LOG_LEVEL).")
	cmd.Flags().String("log-format", "text", "Logging format: text|json (LOG_FORMAT).")
	cmd.Flags().String("db-path", "", "SQLite update journal; empty disables it (DB_PATH).")
	return cmd
}

// bindFlags lets explicitly passed flags win over env and file values.
func bindFlags(cmd *cobra.Command, v *viper.Viper) {
	for key, flag := range map[string]string{
		"host":       "host",
		"port":       "port",
		"reload":     "reload",
		"log_level":  "log-level",
		"log_format": "log-format",
		"db_path":    "db-path",
	} {
		if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
			_ = v.BindPFlag(key, f)
		}
	}
}
