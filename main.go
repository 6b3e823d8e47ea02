package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/rtpsfix/rtpsd/admin"
	"github.com/rtpsfix/rtpsd/capture"
	"github.com/rtpsfix/rtpsd/core"
	"github.com/rtpsfix/rtpsd/export"
	"github.com/rtpsfix/rtpsd/security"
)

func main() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	f := pflag.NewFlagSet("rtpsd", pflag.ExitOnError)
	core.AddFlags(f)

	cfg, k, err := core.LoadConfig(f, os.Args[1:])
	if err != nil {
		logger.Fatal().Err(err).Msg("configuration error")
	}

	ac, err := security.LoadFromFlags(k, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("access control configuration error")
	}
	if ac != nil {
		cfg.AccessControl = ac
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cf := k.String("capture-file"); cf != "" {
		comp, err := capture.ParseCompression(k.String("capture-compression"))
		if err != nil {
			logger.Fatal().Err(err).Msg("capture configuration error")
		}
		cap, err := capture.Open(cf, comp)
		if err != nil {
			logger.Fatal().Err(err).Msg("could not open capture file")
		}
		defer cap.Close()
		cfg.Capture = cap
	}

	if broker := k.String("kafka-broker"); broker != "" {
		bridge, err := export.NewKafkaBridge(ctx, broker, k.String("kafka-topic"), logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("could not connect kafka export bridge")
		}
		defer bridge.Close()
		cfg.Export = bridge
	}

	var prefix core.GuidPrefix
	copy(prefix[:], fmt.Sprintf("rtpsd%07d", cfg.ParticipantId))

	p, err := core.NewParticipant(ctx, prefix, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("could not create participant")
	}
	defer p.Close()

	if addr := k.String("admin-addr"); addr != "" {
		srv := admin.NewServer(addr, p.Registry, logger)
		go func() {
			if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn().Err(err).Msg("admin server exited")
			}
		}()
	}

	logger.Info().Int("domain", cfg.DomainId).Msg("participant running")
	<-ctx.Done()
	logger.Info().Msg("shutting down")
}
