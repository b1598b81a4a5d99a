// Command console is an interactive client that talks to the providers directly.
// Lines holding an image link are fetched and described; everything else is chat.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/chzyer/readline"
	flag "github.com/spf13/pflag"

	"github.com/hpn/hpn-ask-relay/internal/config"
	"github.com/hpn/hpn-ask-relay/internal/console"
	"github.com/hpn/hpn-ask-relay/internal/relay"
	"github.com/hpn/hpn-ask-relay/internal/ui"
)

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func mainImpl() error {
	configPath := flag.StringP("config", "c", "", "path to config.yaml")
	attempts := flag.Int("attempts", 0, "primary attempts per question (default from config)")
	delay := flag.Duration("delay", 0, "pause between primary attempts (default from config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	// Log lines would interleave with the prompt, so they go to a file or nowhere.
	logger, closeLog, err := relay.NewLogger(cfg.Logging, io.Discard, cfg.Secrets()...)
	if err != nil {
		return err
	}
	defer closeLog()

	app, err := relay.New(cfg, logger)
	if err != nil {
		return err
	}

	opts := app.Responder.Defaults()
	if *attempts > 0 {
		opts.Attempts = *attempts
	}
	if *delay > 0 {
		opts.Delay = *delay
	}
	session := console.NewSession(app.Responder, app.Fetcher, opts)

	ui.PrintBanner("CONSOLE")
	fmt.Println("Type a question. Paste an image link to have it described. :reset clears the chat, :quit exits.")

	rl, err := readline.New("> ")
	if err != nil {
		return err
	}
	defer func() {
		_ = rl.Close()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	for {
		line, err := rl.Readline()
		if err != nil { // io.EOF or interrupt
			break
		}
		line = strings.TrimSpace(line)
		switch line {
		case "":
			continue
		case ":quit", ":q":
			return nil
		case ":reset":
			session.Reset()
			continue
		}

		turn := session.Send(ctx, line)
		if turn.FetchErr != nil {
			ui.PrintWarning(fmt.Sprintf("could not fetch %s: %v", turn.ImageURL, turn.FetchErr))
		} else if turn.ImageUID != "" {
			ui.PrintFetched(turn.ImageURL, turn.ImageUID)
		}
		ui.PrintReply(string(turn.Result.Kind), turn.Result.Text)

		if ctx.Err() != nil {
			break
		}
	}

	ui.PrintGoodbye()
	return nil
}
