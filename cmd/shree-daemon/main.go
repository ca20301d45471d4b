package main

import (
	"context"
	"errors"
	log "log/slog"
	"os"
	"os/signal"
	"syscall"

	cli "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"shree/internal/app"
	"shree/internal/config"
	"shree/internal/event"
	"shree/internal/ipc"
	"shree/internal/notify"
	"shree/internal/tts"
)

func main() {
	fs := cli.NewFlagSet("shree-daemon", cli.ExitOnError)
	config.Flags(fs)
	_ = fs.Parse(os.Args[1:])

	cfg, err := config.Load(fs)
	if err != nil {
		config.SetupLogger(os.Stdout, "info")
		log.Error("Failed to load config", "err", err)
		os.Exit(1)
	}
	config.SetupLogger(os.Stdout, cfg.Log.Level)

	log.Info("Booting up")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Daemon stopped", "err", err)
		os.Exit(1)
	}
	log.Info("Bye")
}

func run(ctx context.Context, cfg *config.Config) error {
	// Deferred first so it is closed last, after the running task finished.
	var speech *app.Speech
	if cfg.Speech.Enabled {
		speech = app.NewSpeech(tts.NewSpeaker(tts.Voice{Language: cfg.Speech.Lang, Rate: cfg.Speech.Rate}), 16)
		defer speech.Close()
	}

	a, err := app.New(ctx, cfg, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()

	if speech != nil {
		a.Events.Add(speech)
	}

	a.Events.Add(event.Funcs{
		Confirm: func(prompt string) { go desktop("Shree needs an answer", prompt) },
		Completed: func(r event.Result) {
			if !r.Success {
				go desktop("Shree: "+r.Task+" failed", r.Message)
			}
		},
	})

	var listener app.Listener
	if cfg.Voice.Enabled {
		voice, err := app.OpenVoice(cfg.Voice, true)
		if err != nil {
			return err
		}
		defer voice.Close()
		listener = voice
		log.Debug("Loaded recorder and whisper")
	}

	socket := cfg.Socket
	if socket == "" {
		socket = ipc.DefaultSocketPath()
	}
	srv, err := ipc.Listen(socket, app.NewDaemon(a, listener))
	if err != nil {
		return err
	}
	log.Info("Boot up - successful", "socket", srv.Path())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Serve(ctx) })

	if cfg.Bus.URL != "" {
		p, err := a.ConnectBus(ctx)
		if err != nil {
			return err
		}
		defer p.Close()
		g.Go(func() error { return p.Run(ctx) })
	}

	return g.Wait()
}

func desktop(summary, body string) {
	if err := notify.Desktop(summary, body); err != nil {
		log.Debug("Desktop notification failed", "err", err)
	}
}
