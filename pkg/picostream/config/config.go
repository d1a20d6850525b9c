package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/norasector/picostream/pkg/dsp/viz"
	"github.com/norasector/picostream/pkg/picostream"
	"github.com/norasector/picostream/pkg/picostream/device"
)

type Config struct {
	Device            string        `yaml:"device"`
	PlaybackLocation  string        `yaml:"playback_location"`
	PlaybackBlockSize int           `yaml:"playback_block_size"`
	BufferLength      int           `yaml:"buffer_length"`
	DataLength        int           `yaml:"data_length"`
	SampleInterval    uint32        `yaml:"sample_interval"`
	SampleUnits       string        `yaml:"sample_units"`
	StreamTimeout     time.Duration `yaml:"stream_timeout"`
	PollDelay         time.Duration `yaml:"poll_delay"`
	PreTrigger        uint32        `yaml:"pre_trigger"`
	PostTrigger       uint32        `yaml:"post_trigger"`
	DownsampleRatio   uint32        `yaml:"downsample_ratio"`
	Channel           Channel       `yaml:"channel"`
	SigGen            SigGen        `yaml:"sig_gen"`
	Plot              struct {
		Output       string `yaml:"output"`
		Type         string `yaml:"type"`
		SamplesShown int    `yaml:"samples_shown"`
	} `yaml:"plot"`
	VizServer struct {
		Port int `yaml:"port"`
	} `yaml:"viz_server"`
	InfluxDB struct {
		Host         string `yaml:"host"`
		Token        string `yaml:"token"`
		Organization string `yaml:"organization"`
		Bucket       string `yaml:"bucket"`
	} `yaml:"influxdb"`
}

type Channel struct {
	Name         string  `yaml:"name"`
	Enabled      bool    `yaml:"enabled"`
	Coupling     string  `yaml:"coupling"`
	Range        string  `yaml:"range"`
	AnalogOffset float32 `yaml:"analog_offset"`
}

type SigGen struct {
	Enabled   bool    `yaml:"enabled"`
	Waveform  string  `yaml:"waveform"`
	Frequency float64 `yaml:"frequency"`
	Amplitude float64 `yaml:"amplitude"`
	Offset    float64 `yaml:"offset"`
}

// Default mirrors a PicoScope 2406B streaming channel A at 1 us with its generator looped back.
func Default() Config {
	c := Config{
		Device:            "sim",
		PlaybackBlockSize: 10000,
		BufferLength:      100000,
		DataLength:        500000,
		SampleInterval:    1,
		SampleUnits:       "us",
		StreamTimeout:     5 * time.Second,
		PollDelay:         2 * time.Millisecond,
		PostTrigger:       10000,
		DownsampleRatio:   1,
		Channel: Channel{
			Name:     "A",
			Enabled:  true,
			Coupling: "dc",
			Range:    "2V",
		},
		SigGen: SigGen{
			Enabled:   true,
			Waveform:  "sine",
			Frequency: 5,
			Amplitude: 2.0,
		},
	}
	c.Plot.SamplesShown = 10
	c.Plot.Type = "lines"
	return c
}

// Load reads a YAML file over the defaults. An empty path yields the defaults.
func Load(path string) (Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	contents, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.UnmarshalStrict(contents, &c); err != nil {
		return c, fmt.Errorf("error unmarshaling yaml file: %w", err)
	}
	if c.PlaybackLocation != "" {
		c.Device = "file"
	}
	return c, c.Validate()
}

func (c Config) Validate() error {
	switch c.Device {
	case "sim":
	case "file":
		if c.PlaybackLocation == "" {
			return fmt.Errorf("file device requires playback_location")
		}
		if c.PlaybackBlockSize <= 0 {
			return fmt.Errorf("playback_block_size must be positive")
		}
	default:
		return fmt.Errorf("unknown device %q", c.Device)
	}
	if c.BufferLength <= 0 || c.DataLength <= 0 {
		return fmt.Errorf("buffer_length and data_length must be positive")
	}
	if c.SampleInterval == 0 {
		return fmt.Errorf("sample_interval must be positive")
	}
	if c.StreamTimeout <= 0 {
		return fmt.Errorf("stream_timeout must be positive")
	}
	if c.PollDelay < 0 {
		return fmt.Errorf("poll_delay must not be negative")
	}
	if c.Plot.SamplesShown < 0 {
		return fmt.Errorf("plot.samples_shown must not be negative")
	}
	if _, err := viz.ParsePlotType(c.Plot.Type); err != nil {
		return err
	}
	_, err := c.Options()
	return err
}

func parseChannel(name string) (device.Channel, error) {
	switch name {
	case "A", "a", "":
		return device.ChannelA, nil
	case "B", "b":
		return device.ChannelB, nil
	case "C", "c":
		return device.ChannelC, nil
	case "D", "d":
		return device.ChannelD, nil
	}
	return 0, fmt.Errorf("unknown channel %q", name)
}

// Options converts the configuration to streamer options.
func (c Config) Options() (picostream.Options, error) {
	var opts picostream.Options

	ch, err := parseChannel(c.Channel.Name)
	if err != nil {
		return opts, err
	}
	coupling, err := device.ParseCoupling(c.Channel.Coupling)
	if err != nil {
		return opts, err
	}
	rng, err := device.ParseRange(c.Channel.Range)
	if err != nil {
		return opts, err
	}
	units, err := device.ParseTimeUnits(c.SampleUnits)
	if err != nil {
		return opts, err
	}

	opts = picostream.Options{
		BufferLength: c.BufferLength,
		DataLength:   c.DataLength,
		Channel: device.ChannelSettings{
			Channel:      ch,
			Enabled:      c.Channel.Enabled,
			Coupling:     coupling,
			Range:        rng,
			AnalogOffset: c.Channel.AnalogOffset,
		},
		Streaming: device.StreamingSettings{
			Interval:        device.SampleInterval{Count: c.SampleInterval, Units: units},
			PreTrigger:      c.PreTrigger,
			PostTrigger:     c.PostTrigger,
			DownsampleRatio: c.DownsampleRatio,
		},
		Timeout:   c.StreamTimeout,
		PollDelay: c.PollDelay,
	}

	if c.SigGen.Enabled {
		wave, err := device.ParseWaveform(c.SigGen.Waveform)
		if err != nil {
			return opts, err
		}
		opts.SigGen = &device.SigGenSettings{
			Waveform:     wave,
			Frequency:    c.SigGen.Frequency,
			AmplitudeVpp: c.SigGen.Amplitude,
			OffsetVolts:  c.SigGen.Offset,
		}
	}

	return opts, nil
}
