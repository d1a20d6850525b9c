package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/norasector/picostream/pkg/dsp/analysis"
	"github.com/norasector/picostream/pkg/dsp/viz"
	"github.com/norasector/picostream/pkg/picostream"
	"github.com/norasector/picostream/pkg/picostream/config"
)

// present prints the head of the capture, logs a summary and hands the waveform to the plotter.
func present(res *picostream.Result, cfg config.Config, plotter *viz.TimeDomainPlotter) error {
	if res.Len() == 0 {
		log.Warn().Str("reason", res.Reason.String()).Msg("no samples captured")
		return nil
	}

	fmt.Fprintln(os.Stdout, formatHead(res.Samples, cfg.Plot.SamplesShown))

	volts := res.Volts()
	summary := analysis.Summarize(volts, res.SampleRate())
	log.Info().
		Int("samples", summary.Samples).
		Float64("min_v", summary.Min).
		Float64("max_v", summary.Max).
		Float64("mean_v", summary.Mean).
		Float64("rms_v", summary.RMS).
		Float64("dominant_hz", summary.DominantFreq).
		Msg("capture summary")

	plotter.SetData(volts, res.SampleInterval.Duration(), res.Range.Volts())
	if cfg.Plot.Output != "" {
		if err := plotter.Save(cfg.Plot.Output); err != nil {
			return err
		}
		log.Info().Str("output", cfg.Plot.Output).Msg("plot saved")
	}
	return nil
}

// formatHead renders up to n samples as 16-bit hex words.
func formatHead(samples []int16, n int) string {
	if n > len(samples) {
		n = len(samples)
	}
	if n < 0 {
		n = 0
	}
	words := make([]string, 0, n)
	for _, s := range samples[:n] {
		words = append(words, fmt.Sprintf("%04X", uint16(s)))
	}
	return strings.Join(words, " ")
}
