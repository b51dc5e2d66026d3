// Command sim-preview renders the synthetic signal generator's output to an
// HTML chart so the waveform can be eyeballed without attaching hardware or
// running the full server.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/biostream/internal/acquire"
)

var (
	channels = flag.Int("channels", 4, "Number of channels to synthesise")
	rate     = flag.Float64("rate", 1000, "Sample rate in Hz")
	seed     = flag.Int64("seed", 1, "Noise seed")
	duration = flag.Float64("duration", 1.0, "Seconds of signal to render")
	out      = flag.String("out", "sim-preview.html", "Output HTML file")
)

func main() {
	flag.Parse()

	if *channels < 1 || *rate <= 0 || *duration <= 0 {
		log.Fatal("channels, rate, and duration must all be positive")
	}

	gen := acquire.NewSignalGenerator(*channels, *rate, *seed)
	total := int(*rate * *duration)

	samples := make([][]float64, *channels)
	for len(samples[0]) < total {
		batch := gen.NextBatch()
		for ch := range samples {
			samples[ch] = append(samples[ch], batch[ch]...)
		}
	}

	xAxis := make([]string, total)
	for i := range xAxis {
		xAxis[i] = fmt.Sprintf("%.3f", float64(i) / *rate)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Synthetic signal preview",
			Subtitle: fmt.Sprintf("%d channels @ %g Hz, seed %d", *channels, *rate, *seed),
		}),
		charts.WithXAxisOpts(opts.XAxis{Name: "time (s)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "amplitude (uV)"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)

	line.SetXAxis(xAxis)
	for ch := 0; ch < *channels; ch++ {
		data := make([]opts.LineData, total)
		for i := 0; i < total; i++ {
			data[i] = opts.LineData{Value: samples[ch][i]}
		}
		line.AddSeries(fmt.Sprintf("ch %d", ch), data)
	}

	f, err := os.Create(*out)
	if err != nil {
		log.Fatalf("failed to create %s: %v", *out, err)
	}
	defer f.Close()

	if err := line.Render(f); err != nil {
		log.Fatalf("failed to render chart: %v", err)
	}
	log.Printf("wrote %s (%d samples per channel)", *out, total)
}
