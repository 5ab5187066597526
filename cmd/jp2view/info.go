package main

import (
	"fmt"
	"io"
	"os"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/ajroetker/jp2view"
	"github.com/ajroetker/jp2view/openjpeg"
)

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info FILE...",
		Short: "Print header information",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var failed int
			for _, name := range args {
				if err := printInfo(cmd.OutOrStdout(), name); err != nil {
					failed++
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", name, err)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed", failed, len(args))
			}
			return nil
		},
	}
}

func printInfo(w io.Writer, name string) error {
	data, err := os.ReadFile(name)
	if err != nil {
		return err
	}
	h, err := jp2view.DecodeConfig(data)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s: %s %dx%d, %s, %d tile(s), %d layer(s), %d decomposition level(s)\n",
		name, h.Format, h.Width(), h.Height(), h.ColorSpace, h.NumTiles, h.NumLayers, h.NumDecompLevels)
	for i, c := range h.Components {
		sign := lo.Ternary(c.Signed, "signed", "unsigned")
		fmt.Fprintf(w, "  component %d: %dx%d, %d-bit %s, subsampling %dx%d\n",
			i, c.Width, c.Height, c.Depth, sign, c.Dx, c.Dy)
	}
	if h.JP2 != nil {
		fmt.Fprintf(w, "  jp2: palette=%t alpha=%t\n", h.JP2.Palette != nil, h.JP2.HasAlpha())
		if pal := h.JP2.Palette; pal != nil {
			fmt.Fprintf(w, "  palette: %d entries x %d columns, applied=%t\n",
				pal.NumEntries, pal.NumColumns, h.JP2.PaletteApplied())
		}
	}
	if n := h.OutputComponents(); n != len(h.Components) {
		fmt.Fprintf(w, "  decoded components: %d\n", n)
	}
	for _, c := range h.Comments {
		fmt.Fprintf(w, "  comment: %s\n", c)
	}
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the linked libopenjp2 version",
		Run: func(cmd *cobra.Command, args []string) {
			v := openjpeg.Version()
			if !openjpeg.Available {
				v = "not linked (build with -tags openjpeg)"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "libopenjp2 %s\n", v)
		},
	}
}
