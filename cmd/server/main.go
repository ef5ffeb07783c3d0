package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"pagepress/internal/app"
	"pagepress/internal/config"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintln(os.Stderr, "warning: .env:", err)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	l := app.NewLogger(cfg)

	ctx := context.Background()
	deps, err := app.Open(ctx, cfg, l)
	if err != nil {
		l.Errorf("init: %v", err)
		os.Exit(1)
	}
	defer deps.Close()

	e := newServer(deps)
	addr := cfg.Server.Addr

	go func() {
		l.Infof("server listening on %s", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Errorf("server error: %v", err)
			os.Exit(1)
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	l.Infof("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		l.Errorf("shutdown: %v", err)
	}
	l.Infof("bye")
}
