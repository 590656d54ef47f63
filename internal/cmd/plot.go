package cmd

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"

	"github.com/bsdinis/jiftool/internal/jif"
	"github.com/bsdinis/jiftool/internal/jif/page"
	"github.com/bsdinis/jiftool/internal/jif/pheader"
	"github.com/bsdinis/jiftool/internal/output"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var plotOutFlag string

func addPlotCommand(parent *cobra.Command) {
	plotCmd := &cobra.Command{
		Use:   "plot JIFFILE",
		Short: "Render a JIF's pheader layout as a PNG heatmap",
		Long: `Plot renders one horizontal band per pheader: two pixels per page, colored
by what that page resolves to (zero, shared/reference, or private data).
Useful for eyeballing how much of a snapshot is actually private before
deciding whether a diff-based build is worth it.`,
		Args: cobra.ExactArgs(1),
		RunE: runPlot,
	}
	plotCmd.Flags().StringVarP(&plotOutFlag, "output", "o", "", "Output PNG path (default: a temp file)")
	parent.AddCommand(plotCmd)
}

var (
	colorZero    = color.RGBA{R: 0x20, G: 0x20, B: 0x20, A: 0xff}
	colorShared  = color.RGBA{R: 0x20, G: 0x60, B: 0xc0, A: 0xff}
	colorPrivate = color.RGBA{R: 0xc0, G: 0x40, B: 0x20, A: 0xff}
)

const pageColumnWidth = 2 // pixels per page column, so narrow bands stay visible

func runPlot(cmd *cobra.Command, args []string) error {
	j, err := jif.Load(args[0])
	if err != nil {
		return err
	}
	if len(j.Pheaders) == 0 {
		return fmt.Errorf("plot: JIF has no pheaders")
	}

	maxPages := 0
	for _, p := range j.Pheaders {
		n := int((p.VEnd - p.VBegin) / page.Size)
		if n > maxPages {
			maxPages = n
		}
	}

	img := image.NewRGBA(image.Rect(0, 0, maxPages*pageColumnWidth, len(j.Pheaders)*bandHeight))
	for row, p := range j.Pheaders {
		col := 0
		for addr := p.VBegin; addr < p.VEnd; addr += page.Size {
			c := colorForAddr(p, addr)
			for dx := 0; dx < pageColumnWidth; dx++ {
				for dy := 0; dy < bandHeight; dy++ {
					img.Set(col*pageColumnWidth+dx, row*bandHeight+dy, c)
				}
			}
			col++
		}
	}

	outPath := plotOutFlag
	if outPath == "" {
		outPath = filepath.Join(os.TempDir(), fmt.Sprintf("jiftool-plot-%s.png", uuid.NewString()))
	}
	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", outPath, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("encoding PNG: %w", err)
	}

	if output.IsJSON() {
		return output.PrintJSON(cmd.OutOrStdout(), map[string]any{"output": outPath})
	}
	if !output.IsQuiet() {
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", outPath)
	}
	return nil
}

const bandHeight = 8

func colorForAddr(p *pheader.Pheader, addr uint64) color.RGBA {
	iv, _, found := p.Tree.Resolve(addr)
	if !found {
		if p.Ref != nil {
			return colorShared
		}
		return colorZero
	}
	if iv.IsZero() {
		return colorZero
	}
	return colorPrivate
}
