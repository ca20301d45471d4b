package main

import (
	"context"
	"errors"
	log "log/slog"
	"os"
	"os/signal"
	"syscall"

	cli "github.com/spf13/pflag"

	"shree/internal/app"
	"shree/internal/config"
	"shree/internal/console"
	"shree/internal/tts"
)

func main() {
	fs := cli.NewFlagSet("shree", cli.ExitOnError)
	config.Flags(fs)
	_ = fs.Parse(os.Args[1:])

	cfg, err := config.Load(fs)
	if err != nil {
		config.SetupLogger(os.Stderr, "info")
		log.Error("Failed to load config", "err", err)
		os.Exit(1)
	}
	config.SetupLogger(os.Stderr, cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Shree stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	// Deferred first so it is closed last, after the running task finished.
	var speech *app.Speech
	if cfg.Speech.Enabled {
		speech = app.NewSpeech(tts.NewSpeaker(tts.Voice{Language: cfg.Speech.Lang, Rate: cfg.Speech.Rate}), 16)
		defer speech.Close()
	}

	a, err := app.New(ctx, cfg, app.Options{Stdin: os.Stdin})
	if err != nil {
		return err
	}
	defer a.Close()

	if speech != nil {
		a.Events.Add(speech)
	}

	var voice *app.Voice
	if cfg.Voice.Enabled || cfg.Voice.Input != "" {
		voice, err = app.OpenVoice(cfg.Voice, cfg.Voice.Enabled)
		if err != nil {
			return err
		}
		defer voice.Close()
	}

	if cfg.Bus.URL != "" {
		p, err := a.ConnectBus(ctx)
		if err != nil {
			return err
		}
		defer p.Close()
		go func() {
			if err := p.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("Hub connection lost", "err", err)
			}
		}()
	}

	c := console.Config{In: os.Stdin, Out: os.Stdout}
	if cfg.Voice.Enabled {
		c.Voice = voice
	}
	if cfg.Voice.Input != "" {
		c.First, err = voice.TranscribeFile(ctx, cfg.Voice.Input)
		if err != nil {
			return err
		}
	}

	return console.New(a, c).Run(ctx)
}
