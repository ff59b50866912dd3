package info

import (
	"fmt"
	"io"
	"text/tabwriter"

	"exeskin/exe"
)

type CLICmd struct {
	Exe string `arg:"" help:"Executable to inspect" type:"existingfile"`
}

func (c *CLICmd) Run(out io.Writer) error {
	im, err := exe.Load(c.Exe)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "code section\t%s\t\n\n", im.Code())
	fmt.Fprintln(tw, "id\twidth\theight\tbits\tpalette\toffset\tlength\t")
	for _, d := range im.Bitmaps() {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%d\t0x%x\t%d\t\n",
			d.ID, d.Width, d.Height, d.BitDepth, d.PaletteEntries(), d.Range.Offset, d.Range.Length)
	}

	return tw.Flush()
}
