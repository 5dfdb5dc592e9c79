// Package main is the entry point for the server-sync application.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term" //nolint:depguard // Required for TTY detection

	"github.com/joe/server-sync/internal/config"
	"github.com/joe/server-sync/internal/gameserver"
	"github.com/joe/server-sync/internal/lifecycle"
	"github.com/joe/server-sync/internal/netaddr"
	"github.com/joe/server-sync/internal/remote"
	"github.com/joe/server-sync/internal/syncengine"
	"github.com/joe/server-sync/internal/tui"
	"github.com/joe/server-sync/internal/tui/shared"
	pkgerrors "github.com/joe/server-sync/pkg/errors"
)

func main() {
	cfg, err := config.ParseFlags()
	if err != nil {
		exitWith(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// After the first signal the cycle stops and saves; restoring default
	// handling lets a second signal abort.
	go func() {
		<-ctx.Done()
		stop()
	}()

	if err := run(ctx, cfg); err != nil {
		exitWith(err)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	lock, err := lockServerDir(cfg.InternalDir())
	if err != nil {
		return err
	}
	defer lock.Unlock() //nolint:errcheck // best effort on exit

	interactive := cfg.Command() == config.Interactive

	logger, closeLog, err := newLogger(cfg, interactive)
	if err != nil {
		return err
	}
	defer closeLog()

	slog.SetDefault(logger)

	store, err := remote.Open(cfg.Remote, cfg.Timeout,
		remote.WithAttempts(cfg.Attempts),
		remote.WithLogger(logger))
	if err != nil {
		return err
	}
	defer store.Close()

	engine := syncengine.NewEngine(cfg.ServerDir, store, logger)
	engine.SmallFileThreshold = cfg.SmallFileThreshold
	engine.KeepBackups = cfg.KeepBackups

	var mirror io.Writer
	if !interactive {
		mirror = os.Stdout
	}

	console := gameserver.NewConsole(gameserver.DefaultHistorySize, mirror)
	launcher := gameserver.NewLauncher(cfg.GameServer(), console, logger)

	opts := []lifecycle.Option{lifecycle.WithLogger(logger)}
	if cfg.Address != "" {
		opts = append(opts, lifecycle.WithAddressSource(netaddr.Static(cfg.Address)))
	}

	server := lifecycle.New(engine, launcher, opts...)

	logger.Debug("starting", "command", cfg.Command(), "server_dir", cfg.ServerDir, "remote", cfg.Target().Redacted())

	switch cfg.Command() {
	case config.Interactive:
		bridge := shared.NewEventBridge()
		defer bridge.Close()

		engine.SetEventEmitter(bridge)

		return tui.Run(tui.Options{
			Context:     ctx,
			Controller:  server,
			Console:     console,
			Transfers:   store,
			ServerStats: launcher,
			Events:      bridge,
			Title:       config.Config{}.Version(),
			AltScreen:   term.IsTerminal(int(os.Stdout.Fd())),
		})
	case config.Run:
		return runHeadless(ctx, server, console, logger)
	case config.Status:
		return printStatus(ctx, server)
	case config.SetOffline:
		return server.Apply(ctx, lifecycle.SetOffline)
	case config.Download:
		return server.Apply(ctx, lifecycle.DownloadFiles)
	case config.Upload:
		return server.Apply(ctx, lifecycle.UploadFiles)
	case config.ClearBusy:
		return server.Apply(ctx, lifecycle.ClearBusyFlag)
	}

	return fmt.Errorf("%w: unknown command %v", config.ErrInvalidConfig, cfg.Command())
}

// runHeadless hosts one cycle. Lines typed on stdin go to the server console;
// the cycle ends when the server exits or a signal arrives.
func runHeadless(ctx context.Context, server *lifecycle.Lifecycle, console *gameserver.Console, logger *slog.Logger) error {
	if err := server.Start(ctx); err != nil {
		return err
	}

	go forwardStdin(console, logger)

	return server.Wait()
}

func forwardStdin(console *gameserver.Console, logger *slog.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if err := console.Send(scanner.Text()); err != nil {
			logger.Warn("console command not sent", "err", err)
		}
	}
}

func printStatus(ctx context.Context, server *lifecycle.Lifecycle) error {
	info, err := server.RemoteInfo(ctx)
	if err != nil {
		return err
	}

	fmt.Println(info.Status)

	if info.Host != "" {
		fmt.Println(info.Host)
	}

	return nil
}

func exitWith(err error) {
	if errors.Is(err, context.Canceled) {
		os.Exit(1)
	}

	enriched := pkgerrors.NewEnricher().Enrich(err, "")
	fmt.Fprintf(os.Stderr, "Error: %v\n", enriched)

	if suggestions := pkgerrors.FormatSuggestions(enriched); suggestions != "" {
		fmt.Fprintln(os.Stderr, suggestions)
	}

	os.Exit(1)
}
