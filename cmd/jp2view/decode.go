package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/profile"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ajroetker/jp2view"
	"github.com/ajroetker/jp2view/openjpeg"
)

type decodeFlags struct {
	outDir   string
	reduce   int
	layers   int
	threads  int
	workers  int
	jobs     int
	maxBytes int64
	profile  profileMode
}

func (f *decodeFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.outDir, "output", "o", ".", "output directory for PNG files")
	fs.IntVar(&f.reduce, "reduce", 0, "discard the N finest resolution levels")
	fs.IntVar(&f.layers, "layers", 0, "decode at most N quality layers (0 = all)")
	fs.IntVar(&f.threads, "threads", 0, "engine worker threads (0 = engine default)")
	fs.IntVar(&f.workers, "workers", 0, "goroutines used to assemble each bitmap")
	fs.IntVarP(&f.jobs, "jobs", "j", 1, "files decoded at the same time")
	fs.Int64Var(&f.maxBytes, "max-bytes", jp2view.DefaultMaxBytes, "reject images whose bitmap needs more memory than this")
	fs.Var(&f.profile, "profile", "write a cpu or mem profile to the output directory")
}

func (f *decodeFlags) options(logger log.FieldLogger) []jp2view.Option {
	return []jp2view.Option{
		jp2view.WithReduce(f.reduce),
		jp2view.WithMaxLayers(f.layers),
		jp2view.WithWorkers(f.workers),
		jp2view.WithLogger(logger),
		jp2view.WithThreads(f.threads),
		jp2view.WithMaxBytes(f.maxBytes),
	}
}

func newDecodeCmd(logger *log.Logger) *cobra.Command {
	var f decodeFlags
	cmd := &cobra.Command{
		Use:   "decode FILE...",
		Short: "Decode files to PNG",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files := lo.Uniq(lo.Map(args, func(a string, _ int) string { return filepath.Clean(a) }))
			return runDecode(cmd.Context(), logger, f, files)
		},
	}
	f.register(cmd.Flags())
	return cmd
}

func runDecode(ctx context.Context, logger *log.Logger, f decodeFlags, files []string) error {
	outs, err := outputNames(f.outDir, files)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(f.outDir, 0o755); err != nil {
		return err
	}
	if stop := f.profile.start(f.outDir); stop != nil {
		defer stop()
	}

	inputs := make([][]byte, len(files))
	for i, name := range files {
		data, err := os.ReadFile(name)
		if err != nil {
			return err
		}
		inputs[i] = data
	}

	start := time.Now()
	results, err := jp2view.DecodeAll(ctx, openjpeg.New(), inputs, f.jobs, f.options(logger)...)
	if err != nil {
		return err
	}
	logger.WithFields(log.Fields{"files": len(files), "elapsed": time.Since(start)}).Info("decoded")

	var failed int
	for i, r := range results {
		entry := logger.WithField("file", files[i])
		if r.Err != nil {
			failed++
			reportFailure(entry, r.Err)
			continue
		}
		out := outs[i]
		if err := writePNG(out, r.Bitmap); err != nil {
			failed++
			entry.WithError(err).Error("cannot write PNG")
			continue
		}
		entry.WithFields(log.Fields{
			"width":  r.Bitmap.Width,
			"height": r.Bitmap.Height,
			"color":  r.Bitmap.ColorSpace.String(),
			"output": out,
		}).Info("wrote")
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(files))
	}
	return nil
}

func reportFailure(entry *log.Entry, err error) {
	var jerr *jp2view.Error
	if !errors.As(err, &jerr) {
		entry.WithError(err).Error("decode failed")
		return
	}
	entry = entry.WithFields(log.Fields{"kind": jerr.Kind.String(), "phase": jerr.Phase.String()})
	for _, ev := range jerr.Diagnostics {
		entry.WithField("severity", ev.Severity.String()).Debug(ev.Message)
	}
	entry.WithError(jerr.Err).Error("decode failed")
}

// outputName maps a.jp2 to dir/a.png.
func outputName(dir, file string) string {
	base := filepath.Base(file)
	return filepath.Join(dir, strings.TrimSuffix(base, filepath.Ext(base))+".png")
}

// outputNames returns the output name of every file, failing when two
// files would be written to the same PNG.
func outputNames(dir string, files []string) ([]string, error) {
	outs := make([]string, len(files))
	owner := make(map[string]string, len(files))
	for i, file := range files {
		out := outputName(dir, file)
		if prev, ok := owner[out]; ok {
			return nil, fmt.Errorf("%s and %s would both be written to %s", prev, file, out)
		}
		owner[out] = file
		outs[i] = out
	}
	return outs, nil
}

func writePNG(name string, bm *jp2view.Bitmap) error {
	var buf bytes.Buffer
	if err := png.Encode(&buf, bm.Image()); err != nil {
		return err
	}
	return os.WriteFile(name, buf.Bytes(), 0o644)
}

// profileMode is a pflag.Value selecting a pkg/profile mode.
type profileMode string

var profileModes = map[string]func(*profile.Profile){
	"cpu": profile.CPUProfile,
	"mem": profile.MemProfile,
}

func (p *profileMode) String() string { return string(*p) }

func (p *profileMode) Set(s string) error {
	if _, ok := profileModes[s]; !ok && s != "" {
		modes := lo.Keys(profileModes)
		sort.Strings(modes)
		return fmt.Errorf("unknown profile %q (want one of %s)", s, strings.Join(modes, ", "))
	}
	*p = profileMode(s)
	return nil
}

func (p *profileMode) Type() string { return "mode" }

// start begins profiling into dir and returns the function that stops it,
// or nil when profiling is off.
func (p *profileMode) start(dir string) func() {
	mode, ok := profileModes[string(*p)]
	if !ok {
		return nil
	}
	return profile.Start(mode, profile.ProfilePath(dir), profile.Quiet, profile.NoShutdownHook).Stop
}
