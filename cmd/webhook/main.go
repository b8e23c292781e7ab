// Command webhook registers, inspects and removes the bot's Telegram webhook.
// It is run by an operator after deploying the server, not by the server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lojf/weatherbot/internal/bot"
	"github.com/lojf/weatherbot/internal/config"
	"github.com/lojf/weatherbot/internal/logutil"
)

const requestTimeout = 10 * time.Second

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

type env struct {
	cfg    *config.Config
	client *bot.Client
	logger *logutil.Logger
}

// Close releases the log file sink, if any.
func (e *env) Close() error { return e.logger.Close() }

func loadEnv(configFile string) (*env, error) {
	v, err := config.NewViper(configFile)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}
	logger, err := logutil.New(cfg)
	if err != nil {
		return nil, err
	}
	client := bot.NewClient(cfg.TelegramBotToken, logger.Logger).WithBaseURL(cfg.TelegramAPIBaseURL)
	return &env{cfg: cfg, client: client, logger: logger}, nil
}

func newRootCmd(out io.Writer) *cobra.Command {
	var configFile string
	root := &cobra.Command{
		Use:          "webhook",
		Short:        "Manage the Telegram webhook",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "Dotenv or config file (defaults to ./.env when present).")
	root.SetOut(out)

	load := func() (*env, error) { return loadEnv(configFile) }

	root.AddCommand(&cobra.Command{
		Use:   "set [url]",
		Short: "Point Telegram at url (or TELEGRAM_WEBHOOK_URL) with the secret token",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := load()
			if err != nil {
				return err
			}
			defer e.Close()
			var arg string
			if len(args) == 1 {
				arg = args[0]
			}
			url, err := e.cfg.WebhookTarget(arg)
			if err != nil {
				return report(cmd, bot.APIResponse{"ok": false, "error": err.Error()})
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			return report(cmd, e.client.SetWebhook(ctx, url, e.cfg.TelegramSecretToken))
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "info",
		Short: "Show the current webhook status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := load()
			if err != nil {
				return err
			}
			defer e.Close()
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			return report(cmd, e.client.GetWebhookInfo(ctx))
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "delete",
		Short: "Remove the webhook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := load()
			if err != nil {
				return err
			}
			defer e.Close()
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			return report(cmd, e.client.DeleteWebhook(ctx))
		},
	})

	return root
}

// report prints the API response and turns ok:false into a non-zero exit.
func report(cmd *cobra.Command, resp bot.APIResponse) error {
	b, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(b))
	if !resp.OK() {
		msg, _ := resp["error"].(string)
		if msg == "" {
			msg, _ = resp["description"].(string)
		}
		return fmt.Errorf("webhook request failed: %s", msg)
	}
	return nil
}
