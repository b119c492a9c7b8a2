package main

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/alecthomas/kingpin/v2"
	"github.com/dustin/go-humanize"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/zeebo/errs"

	"github.com/Lazin/bitpack"
	"github.com/Lazin/bitpack/internal/walk"
)

// Error is the class of every verification failure reported by the checker.
var Error = errs.Class("bitpack-check")

// Config holds the command line configuration.
type Config struct {
	Values     int
	Seed       int64
	Start      float64
	Mean       float64
	Stddev     float64
	BufferSize string
	LogLevel   string
}

// RegisterFlags binds the configuration to app's flags.
func (c *Config) RegisterFlags(app *kingpin.Application) {
	app.Flag("values", "Number of random-walk samples to pack and verify.").Default("1000000").IntVar(&c.Values)
	app.Flag("seed", "Seed of the random source.").Default("1").Int64Var(&c.Seed)
	app.Flag("walk.start", "Initial value of the random walk.").Default("0").Float64Var(&c.Start)
	app.Flag("walk.mean", "Mean of the random-walk increments.").Default("10.1").Float64Var(&c.Mean)
	app.Flag("walk.stddev", "Standard deviation of the random-walk increments.").Default("0.01").Float64Var(&c.Stddev)
	app.Flag("buffer-size", "Capacity of the packing buffer, e.g. 64KiB.").Default("64KiB").StringVar(&c.BufferSize)
	app.Flag("log.level", "Only log messages with the given severity or above.").Default("info").EnumVar(&c.LogLevel, "debug", "info", "warn", "error")
}

// bufferBytes parses BufferSize.
func (c *Config) bufferBytes() (int, error) {
	n, err := humanize.ParseBytes(c.BufferSize)
	if err != nil {
		return 0, fmt.Errorf("invalid buffer size %q: %w", c.BufferSize, err)
	}
	if n < uint64(bitpack.PackedSize(bitpack.MaxBitWidth)) || n > math.MaxInt32 {
		return 0, fmt.Errorf("buffer size %s must hold at least one full-width block (%d bytes) and fit in 2GiB",
			c.BufferSize, bitpack.PackedSize(bitpack.MaxBitWidth))
	}
	return int(n), nil
}

// Stats summarizes a run.
type Stats struct {
	Values      int
	Blocks      int
	Flushes     int
	PackedBytes uint64
	Widths      [bitpack.MaxBitWidth + 1]int
}

// RawBytes returns the unpacked size of the values.
func (s *Stats) RawBytes() uint64 {
	return uint64(s.Blocks) * bitpack.BlockSize * 8
}

// Ratio returns raw size divided by packed size.
func (s *Stats) Ratio() float64 {
	if s.PackedBytes == 0 {
		return 0
	}
	return float64(s.RawBytes()) / float64(s.PackedBytes)
}

// Checker packs blocks into one bounded buffer and, whenever the buffer
// cannot take the next block, reads every block back and compares it with
// what was packed before reusing the buffer.
type Checker struct {
	logger  log.Logger
	buf     *bitpack.Buffer
	pending []bitpack.Block
	widths  []int
	stats   Stats
}

// NewChecker returns a checker with a buffer of capacity bytes.
func NewChecker(logger log.Logger, capacity int) *Checker {
	return &Checker{
		logger: logger,
		buf:    bitpack.NewBuffer(capacity),
	}
}

// Add packs blk at its required width, verifying and recycling the buffer
// first if the block would not fit.
func (c *Checker) Add(blk *bitpack.Block) error {
	width := bitpack.RequiredBitWidth(blk)
	size := bitpack.PackedSize(width)
	if size > c.buf.Cap() {
		return Error.New("block of width %d needs %d bytes, buffer holds %d", width, size, c.buf.Cap())
	}
	if c.buf.Available() < size {
		if err := c.Flush(); err != nil {
			return err
		}
	}
	if err := bitpack.Pack(c.buf, blk, width); err != nil {
		return Error.Wrap(err)
	}
	c.pending = append(c.pending, *blk)
	c.widths = append(c.widths, width)
	c.stats.Blocks++
	c.stats.PackedBytes += uint64(size)
	c.stats.Widths[width]++
	return nil
}

// Flush verifies every block packed since the last flush and empties the
// buffer. All mismatches are reported together.
func (c *Checker) Flush() error {
	if len(c.pending) == 0 {
		return nil
	}
	written := c.buf.Len()
	c.buf.Reset()

	var group errs.Group
	var got bitpack.Block
	for i := range c.pending {
		if err := bitpack.Unpack(c.buf, &got, c.widths[i]); err != nil {
			group.Add(Error.New("flush %d block %d (width %d): %w", c.stats.Flushes, i, c.widths[i], err))
			break
		}
		if got != c.pending[i] {
			group.Add(Error.New("flush %d block %d (width %d): got %v, want %v",
				c.stats.Flushes, i, c.widths[i], got, c.pending[i]))
		}
	}
	if read := c.buf.Len(); read != written {
		group.Add(Error.New("flush %d: read %d bytes, wrote %d", c.stats.Flushes, read, written))
	}

	level.Debug(c.logger).Log("msg", "verified buffer", "flush", c.stats.Flushes,
		"blocks", len(c.pending), "bytes", written)

	c.buf.Reset()
	c.pending = c.pending[:0]
	c.widths = c.widths[:0]
	c.stats.Flushes++
	return group.Err()
}

// Stats returns the counters collected so far.
func (c *Checker) Stats() Stats {
	return c.stats
}

// Run packs cfg.Values random-walk samples and verifies them. Each sample is
// the XOR of the IEEE-754 bit patterns of two consecutive walk values, so
// slowly moving walks yield narrow blocks.
func Run(cfg Config, logger log.Logger) (Stats, error) {
	capacity, err := cfg.bufferBytes()
	if err != nil {
		return Stats{}, err
	}
	rw := walk.New(rand.New(rand.NewSource(cfg.Seed)), cfg.Start, cfg.Mean, cfg.Stddev)
	checker := NewChecker(logger, capacity)

	finish := func(err error) (Stats, error) {
		stats := checker.Stats()
		stats.Values = cfg.Values
		return stats, err
	}

	prev := math.Float64bits(rw.Value())
	var blk bitpack.Block
	fill := 0
	for i := 0; i < cfg.Values; i++ {
		cur := math.Float64bits(rw.Next())
		blk[fill] = cur ^ prev
		prev = cur
		fill++
		if fill == bitpack.BlockSize {
			if err := checker.Add(&blk); err != nil {
				return finish(err)
			}
			fill = 0
		}
	}
	if fill > 0 {
		clear(blk[fill:])
		if err := checker.Add(&blk); err != nil {
			return finish(err)
		}
	}
	return finish(checker.Flush())
}
