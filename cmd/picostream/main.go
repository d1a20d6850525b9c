package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/norasector/picostream/pkg/dsp/viz"
	"github.com/norasector/picostream/pkg/picostream"
	"github.com/norasector/picostream/pkg/picostream/config"
	"github.com/norasector/picostream/pkg/picostream/device"
	"github.com/norasector/picostream/pkg/picostream/device/file"
	"github.com/norasector/picostream/pkg/picostream/device/sim"
	"golang.org/x/sync/errgroup"
)

const plotPoints = 20000

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.InfoLevel)
	configFile := flag.String("config", "", "YAML config file (built-in defaults when empty)")
	serve := flag.Bool("serve", false, "keep serving the plot after acquisition until interrupted")
	debug := flag.Bool("debug", false, "log every notification")

	flag.Parse()
	if *debug {
		log.Logger = log.Logger.Level(zerolog.DebugLevel)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatal().Err(err).Str("config", *configFile).Msg("error loading config")
	}

	var dev device.Device
	switch cfg.Device {
	case "file":
		log.Info().Str("device", "file").Str("location", cfg.PlaybackLocation).Msg("initializing device...")
		dev, err = file.NewFileDevice(cfg.PlaybackLocation, cfg.PlaybackBlockSize)
		if err != nil {
			log.Fatal().Str("device", "file").Err(err).Msg("failed to init file reader")
		}
		if cfg.SigGen.Enabled {
			log.Info().Msg("playback has no signal generator, disabling it")
			cfg.SigGen.Enabled = false
		}
	default:
		log.Info().Str("device", "sim").Msg("initializing device...")
		dev = sim.NewSimulator(sim.WithLogger(log.Logger))
	}

	opts, err := cfg.Options()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid streaming options")
	}

	streamerOpts := []picostream.StreamerOption{picostream.WithLogger(log.Logger)}
	if cfg.InfluxDB.Host != "" {
		client := influxdb2.NewClient(cfg.InfluxDB.Host, cfg.InfluxDB.Token)
		defer client.Close()
		writeAPI := client.WriteAPI(cfg.InfluxDB.Organization, cfg.InfluxDB.Bucket)
		defer writeAPI.Flush()
		streamerOpts = append(streamerOpts, picostream.WithInfluxDB(writeAPI))
	}

	streamer, err := picostream.NewStreamer(dev, opts, streamerOpts...)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create streamer")
	}

	plotter := viz.NewTimeDomainPlotter("channel "+opts.Channel.Channel.String(), plotPoints)
	plotType, err := viz.ParsePlotType(cfg.Plot.Type)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid plot type")
	}
	plotter.SetPlotType(plotType)

	eg, ctx := errgroup.WithContext(context.Background())
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	eg.Go(func() error {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
		return nil
	})

	if cfg.VizServer.Port > 0 {
		vizServer := viz.NewServer(cfg.VizServer.Port)
		vizServer.Register(plotter)
		log.Info().Int("port", cfg.VizServer.Port).Msg("viz server starting")
		eg.Go(func() error {
			return vizServer.Run(ctx)
		})
	}

	eg.Go(func() error {
		res, err := streamer.Run(ctx)
		if perr := present(res, cfg, plotter); perr != nil {
			log.Error().Err(perr).Msg("error presenting result")
		}
		if !*serve || cfg.VizServer.Port == 0 {
			cancel()
		}
		return err
	})

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("exited program")
	}
}
