// Command jp2view decodes JPEG 2000 codestreams and JP2 files to PNG and
// prints their header information.
//
// Usage:
//
//	jp2view decode -o out/ a.jp2 b.j2k        # decode to out/a.png, out/b.png
//	jp2view decode --reduce 2 --jobs 4 *.jp2  # quarter resolution, 4 files at a time
//	jp2view info a.jp2                        # header only, no engine needed
//
// Decoding needs the libopenjp2 engine: build with -tags openjpeg.
package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type rootFlags struct {
	verbose int
	json    bool
}

func newRootCmd() *cobra.Command {
	var rf rootFlags
	logger := log.New()
	logger.SetOutput(os.Stderr)

	root := &cobra.Command{
		Use:           "jp2view",
		Short:         "Decode JPEG 2000 images",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			configureLogger(logger, rf)
		},
	}
	root.PersistentFlags().CountVarP(&rf.verbose, "verbose", "v", "log engine diagnostics (-v info, -vv debug)")
	root.PersistentFlags().BoolVar(&rf.json, "log-json", false, "log in JSON")

	root.AddCommand(newDecodeCmd(logger), newInfoCmd(), newVersionCmd())
	return root
}

func configureLogger(logger *log.Logger, rf rootFlags) {
	switch {
	case rf.verbose >= 2:
		logger.SetLevel(log.DebugLevel)
	case rf.verbose == 1:
		logger.SetLevel(log.InfoLevel)
	default:
		logger.SetLevel(log.WarnLevel)
	}
	if rf.json {
		logger.SetFormatter(&log.JSONFormatter{})
	} else {
		logger.SetFormatter(&log.TextFormatter{DisableTimestamp: true})
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "jp2view: %v\n", err)
		os.Exit(1)
	}
}
