// Command bitpack-check packs random-walk data with the bitpack codec, reads
// it back and reports whether every block survived the round trip.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kingpin/v2"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/Lazin/bitpack"
)

func main() {
	var cfg Config
	app := kingpin.New("bitpack-check", "Round-trip random-walk data through the bitpack codec.")
	app.HelpFlag.Short('h')
	cfg.RegisterFlags(app)
	kingpin.MustParse(app.Parse(os.Args[1:]))

	logger := newLogger(cfg.LogLevel)
	level.Info(logger).Log("msg", "starting", "values", cfg.Values, "seed", cfg.Seed, "buffer_size", cfg.BufferSize)

	stats, err := Run(cfg, logger)
	printStats(&stats)
	if err != nil {
		level.Error(logger).Log("msg", "round trip failed", "err", err)
		color.New(color.FgRed, color.Bold).Println("FAIL")
		os.Exit(1)
	}
	color.New(color.FgGreen, color.Bold).Println("PASS")
}

func newLogger(lvl string) log.Logger {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	var opt level.Option
	switch lvl {
	case "debug":
		opt = level.AllowDebug()
	case "warn":
		opt = level.AllowWarn()
	case "error":
		opt = level.AllowError()
	default:
		opt = level.AllowInfo()
	}
	logger = level.NewFilter(logger, opt)
	return log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)
}

func printStats(s *Stats) {
	bold := color.New(color.Bold)
	bold.Println("Summary:")
	fmt.Printf("\tvalues: %s, blocks: %s, buffer flushes: %s\n",
		humanize.Comma(int64(s.Values)), humanize.Comma(int64(s.Blocks)), humanize.Comma(int64(s.Flushes)))
	fmt.Printf("\traw size: %v, packed size: %v, ratio: %.2f\n",
		humanize.IBytes(s.RawBytes()), humanize.IBytes(s.PackedBytes), s.Ratio())
	if s.Blocks == 0 {
		return
	}
	bold.Println("Block widths:")
	for w, n := range s.Widths {
		if n == 0 {
			continue
		}
		fmt.Printf("\t%2d bits: %s blocks (%.1f%%), %v each\n",
			w, humanize.Comma(int64(n)), 100*float64(n)/float64(s.Blocks), humanize.IBytes(uint64(bitpack.PackedSize(w))))
	}
}
