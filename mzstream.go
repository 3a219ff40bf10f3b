// Copyright 2018 Rob Marissen.
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/524D/mzstream/internal/mzml"
)

// Program name and version, written to the software list of mzML output
const progName = "mzstream"

var progVersion = `Unknown`

func initLogger(level string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).Level(lvl).With().Timestamp().Str("app", progName).Logger()
	return nil
}

// scanFilter returns a filter that keeps scans within the MS level and
// retention time ranges of cfg
func scanFilter(cfg config) (func(*mzml.Scan) bool, error) {
	msMin, msMax, err := parseIntRange(cfg.MSLevel, 0, math.MaxInt)
	if err != nil {
		return nil, fmt.Errorf("mslevel %q: %w", cfg.MSLevel, err)
	}
	rtMin, rtMax, err := parseFloat64Range(cfg.RT, -math.MaxFloat64, math.MaxFloat64)
	if err != nil {
		return nil, fmt.Errorf("rt %q: %w", cfg.RT, err)
	}
	return func(s *mzml.Scan) bool {
		msLevel, err := s.MSLevel()
		if err != nil || msLevel < msMin || msLevel > msMax {
			return false
		}
		rt, err := s.RetentionTime()
		if err != nil {
			return false
		}
		// Scans without retention time are kept
		return rt < 0 || (rt >= rtMin && rt <= rtMax)
	}, nil
}

func filterFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "mslevel",
			Usage: "keep spectra with MS level in `range`, e.g. 2:2",
			Value: ":",
		},
		&cli.StringFlag{
			Name:  "rt",
			Usage: "keep spectra with retention time (seconds) in `range`, e.g. 600:1200",
			Value: ":",
		},
		&cli.BoolFlag{
			Name:  "immediate",
			Usage: "copy binary data while parsing instead of reading it from the file later",
		},
	}
}

// openRun applies the command flags to cfg and reads the input file
func openRun(cmd *cli.Command, cfg *config) (*mzml.RawFile, func(), error) {
	if err := cfg.applyFlags(cmd); err != nil {
		return nil, nil, cli.Exit(err.Error(), 2)
	}
	if cmd.Args().Len() != 1 {
		return nil, nil, cli.Exit("expected one mzML file", 2)
	}
	filter, err := scanFilter(*cfg)
	if err != nil {
		return nil, nil, cli.Exit(err.Error(), 2)
	}
	path := cmd.Args().First()
	start := time.Now()
	rf, closer, err := readInput(path, mzml.Options{
		ScanFilter:       filter,
		ImmediateCapture: cfg.Immediate,
	})
	if err != nil {
		return nil, nil, cli.Exit(fmt.Sprintf("read %s: %v", path, err), 1)
	}
	log.Info().Str("file", path).Int("spectra", rf.NumSpecs()).
		Int("chromatograms", rf.NumChromatograms()).Dur("elapsed", time.Since(start)).
		Msg("mzML read")
	return rf, func() { closer.Close() }, nil
}

func infoCmd(cfg *config) *cli.Command {
	return &cli.Command{
		Name:      "info",
		Usage:     "Print a JSON summary of an mzML file",
		ArgsUsage: "FILE",
		Flags:     filterFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			rf, done, err := openRun(cmd, cfg)
			if err != nil {
				return err
			}
			defer done()
			s, err := summarize(rf)
			if err != nil {
				return cli.Exit(fmt.Sprintf("summarize: %v", err), 1)
			}
			path := cmd.Args().First()
			s.File = path
			if s.Fingerprint, err = fingerprintFile(path); err != nil {
				return cli.Exit(fmt.Sprintf("fingerprint: %v", err), 1)
			}
			return writeSummary(os.Stdout, s)
		},
	}
}

func dumpCmd(cfg *config) *cli.Command {
	return &cli.Command{
		Name:      "dump",
		Usage:     "Print peaks and precursors of a range of spectra",
		ArgsUsage: "FILE",
		Flags: append(filterFlags(),
			&cli.StringFlag{
				Name:  "spec",
				Usage: "print spectra with index in `range`, e.g. 3:6",
				Value: ":",
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			rf, done, err := openRun(cmd, cfg)
			if err != nil {
				return err
			}
			defer done()
			if err := dumpSpecs(os.Stdout, rf, cmd.String("spec")); err != nil {
				return cli.Exit(fmt.Sprintf("dump: %v", err), 1)
			}
			return nil
		},
	}
}

func convertCmd(cfg *config) *cli.Command {
	return &cli.Command{
		Name:      "convert",
		Usage:     "Write an mzML file with re-encoded binary data",
		ArgsUsage: "FILE",
		Flags: append(filterFlags(),
			&cli.StringFlag{
				Name:  "compression",
				Usage: "binary data compression: none, zlib, linear, pic, slof, linear+zlib, pic+zlib, slof+zlib",
				Value: "zlib",
			},
			&cli.StringFlag{
				Name:     "output",
				Aliases:  []string{"o"},
				Usage:    "output `file`, compressed if the name ends in .xz or .gz",
				Required: true,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			rf, done, err := openRun(cmd, cfg)
			if err != nil {
				return err
			}
			defer done()
			out, err := createOutput(cmd.String("output"))
			if err != nil {
				return cli.Exit(fmt.Sprintf("create output: %v", err), 1)
			}
			err = mzml.Write(out, rf, mzml.WriteOptions{
				Compression: cfg.Compression,
				Software:    cfg.Software,
				Version:     progVersion,
			})
			if cerr := out.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return cli.Exit(fmt.Sprintf("write %s: %v", cmd.String("output"), err), 1)
			}
			return nil
		},
	}
}

func newApp() *cli.Command {
	cfg := defaultConfig()
	return &cli.Command{
		Name:    progName,
		Usage:   "Stream and convert mzML mass spectrometry files",
		Version: progVersion,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "TOML configuration `file`",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug, info, warn, error)",
				Value: "warn",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			loaded, err := loadConfig(cmd.String("config"))
			if err != nil {
				return ctx, cli.Exit(err.Error(), 2)
			}
			cfg = loaded
			if cmd.IsSet("log-level") {
				cfg.LogLevel = cmd.String("log-level")
			}
			if err := initLogger(cfg.LogLevel); err != nil {
				return ctx, cli.Exit(err.Error(), 2)
			}
			return ctx, nil
		},
		Commands: []*cli.Command{
			infoCmd(&cfg),
			dumpCmd(&cfg),
			convertCmd(&cfg),
		},
	}
}

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
