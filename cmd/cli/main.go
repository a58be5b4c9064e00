package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"go.uber.org/zap"

	"github.com/hamed0406/hostwatch/internal/config"
	"github.com/hamed0406/hostwatch/internal/domain"
	"github.com/hamed0406/hostwatch/internal/notify"
	"github.com/hamed0406/hostwatch/internal/scheduler"
)

// Sends a test alert to every configured chat and, once confirmed, edits it
// to the recovered text, the same path a real incident takes.
func main() {
	env, err := config.FromEnv()
	if err != nil {
		fmt.Println("Environment error:", err)
		os.Exit(1)
	}
	path := env.ConfigPath
	flag.StringVar(&path, "config-path", path, "path to the YAML or JSON config file")
	flag.StringVar(&path, "c", path, "shorthand for -config-path")
	yes := flag.Bool("y", false, "do not ask for confirmation")
	flag.Parse()

	cfg, err := config.Load(path, env)
	if err != nil {
		fmt.Println("Config error:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	reader := bufio.NewReader(os.Stdin)
	confirm := func(q string) bool {
		if *yes {
			return true
		}
		fmt.Print(q, " [y/N]: ")
		line, _ := reader.ReadString('\n')
		return strings.EqualFold(strings.TrimSpace(line), "y")
	}

	if !confirm(fmt.Sprintf("Send a test alert to %d chat(s)?", len(cfg.Telegram.ChatIDs))) {
		return
	}

	bot := notify.NewTelegram(cfg.Telegram.APIToken, cfg.Telegram.APIURL)
	alerter := scheduler.NewAlerter(zap.NewNop(), bot, cfg.Telegram.ChatIDs, cfg.RetryBackoff(), nil)
	target := domain.Target{Address: "hostwatch-test", Description: "test alert"}

	outcomes, err := alerter.SendToAll(ctx, fmt.Sprintf("🔔 HOST: %s - %s, please ignore", target.Address, target.Description))
	if err != nil {
		fmt.Println("Interrupted before every chat got the alert:", err)
		os.Exit(1)
	}
	fmt.Printf("Delivered to %d chat(s).\n", len(outcomes))

	if !confirm("Mark it resolved?") {
		return
	}
	failed := 0
	for _, msg := range scheduler.AlertMessages(target.Address, outcomes) {
		if !alerter.Resolve(ctx, msg, fmt.Sprintf("✅ HOST: %s - %s resolved", target.Address, target.Description)) {
			failed++
			fmt.Println("Could not edit the message in chat", msg.RecipientID)
		}
	}
	if failed > 0 {
		os.Exit(1)
	}
	fmt.Println("Resolved.")
}
