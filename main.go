// main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/profile"
	"github.com/sirupsen/logrus"

	"chatrelay/internal"
)

func main() {
	os.Exit(realMain(os.Args[1:]))
}

// realMain runs the server and returns the process exit code once every
// deferred cleanup, profiling included, has run.
func realMain(args []string) int {
	cfg, err := internal.LoadConfig(".env")
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		return 1
	}

	flags := flag.NewFlagSet("chatrelay", flag.ContinueOnError)
	var (
		cpuProfile   = flags.Bool("profile-cpu", false, "Enable CPU profiling.")
		memProfile   = flags.Bool("profile-mem", false, "Enable memory profiling.")
		blockProfile = flags.Bool("profile-lock", false, "Enable lock profiling.")
		profilePath  = flags.String("profile-path", "", "Path where to write profile data.")
	)
	flags.StringVar(&cfg.Host, "host", cfg.Host, "Listen host")
	flags.StringVar(&cfg.Port, "port", cfg.Port, "Listen port")
	flags.StringVar(&cfg.WSAddr, "ws", cfg.WSAddr, "Websocket gateway address, empty to disable")
	flags.IntVar(&cfg.HistoryLimit, "history-limit", cfg.HistoryLimit, "Max broadcast lines kept in history, 0 keeps all")
	flags.IntVar(&cfg.HistoryReplay, "history-replay", cfg.HistoryReplay, "Num of history lines pushed to a newly joined user")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level")
	flags.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "Activity log file, empty to disable")
	flags.BoolVar(&cfg.UI, "ui", cfg.UI, "Run the server console UI")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "[USAGE]:", err)
		flags.PrintDefaults()
		return 1
	}

	logger, closeLog, err := internal.NewLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		return 1
	}
	defer closeLog()

	switch {
	case *cpuProfile:
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(*profilePath), profile.NoShutdownHook).Stop()
	case *memProfile:
		defer profile.Start(profile.MemProfile, profile.MemProfileAllocs, profile.ProfilePath(*profilePath), profile.NoShutdownHook).Stop()
	case *blockProfile:
		defer profile.Start(profile.BlockProfile, profile.ProfilePath(*profilePath), profile.NoShutdownHook).Stop()
	}

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("Server failed")
		return 1
	}
	return 0
}

func run(cfg internal.Config, logger *logrus.Logger) error {
	server, err := internal.NewServer(cfg, logger)
	if err != nil {
		return err
	}

	listener, err := server.Listen()
	if err != nil {
		return err
	}

	serveErr := make(chan error, 2)
	go func() {
		serveErr <- server.Serve(listener)
	}()

	var gateway *http.Server
	if cfg.WSAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/ws", server)
		gateway = &http.Server{Addr: cfg.WSAddr, Handler: mux}
		go func() {
			logger.WithField("addr", cfg.WSAddr).Info("Websocket gateway started")
			if err := gateway.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- fmt.Errorf("websocket gateway: %w", err)
			}
		}()
	}

	if cfg.UI {
		err = internal.RunWithUI(server, logger)
	} else {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		select {
		case <-stop:
			logger.Info("Shutting down gracefully...")
		case err = <-serveErr:
		}
	}

	if gateway != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		gateway.Shutdown(ctx)
	}
	server.Close()
	if errors.Is(err, internal.ErrServerClosed) {
		return nil
	}
	return err
}
