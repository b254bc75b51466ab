package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/ovo-bot/ovo-agent/internal/conf"
	"github.com/ovo-bot/ovo-agent/internal/data"
	"github.com/ovo-bot/ovo-agent/internal/infra/feishu"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var envFile, groupID, userID, quoteID string
	flagSet := pflag.NewFlagSet("ovo-send", pflag.ContinueOnError)
	flagSet.StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	flagSet.StringVar(&groupID, "group", "", "group chat id to send to")
	flagSet.StringVar(&userID, "user", "", "user open_id to send a private message to")
	flagSet.StringVar(&quoteID, "quote", "", "message id to reply to (group only)")
	flagSet.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: ovo-send (--group <chat_id> | --user <open_id>) [--quote <msg_id>] <message>")
		flagSet.PrintDefaults()
	}
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	text := strings.TrimSpace(strings.Join(flagSet.Args(), " "))
	if text == "" || (groupID == "") == (userID == "") {
		flagSet.Usage()
		return errors.New("exactly one of --group or --user and a message are required")
	}

	cfg, err := conf.Load(envFile)
	if err != nil {
		return err
	}
	if cfg.Feishu.AppID == "" || cfg.Feishu.AppSecret == "" {
		return errors.New("FEISHU_APP_ID and FEISHU_APP_SECRET must be set")
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := feishu.NewClient(cfg.Feishu.AppID, cfg.Feishu.AppSecret, logger)
	messages := data.NewFeishuRepo(client, 0, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if groupID != "" {
		err = messages.SendGroupText(ctx, groupID, text, quoteID)
	} else {
		err = messages.SendPrivateText(ctx, userID, text)
	}
	if err != nil {
		return err
	}

	fmt.Println("Message sent successfully!")
	return nil
}
