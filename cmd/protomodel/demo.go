package main

import (
	"bytes"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/protomodel/model"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Round-trip a sample of every catalog type",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := configureColor(); err != nil {
			return err
		}
		return runDemo(cmd.OutOrStdout())
	},
}

// runDemo encodes each sample, decodes it back and checks that encoding the
// decoded value reproduces the same bytes.
func runDemo(w io.Writer) error {
	c, err := newCatalog(model.WithLogger(model.Logger().Named("demo")))
	if err != nil {
		return err
	}

	all := samples()
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	slices.Sort(names)

	var failed int
	for _, name := range names {
		t, err := c.lookup(name)
		if err != nil {
			return err
		}
		data, err := c.reg.Marshal(all[name])
		if err != nil {
			return fmt.Errorf("%s: encode: %w", name, err)
		}
		back, err := c.reg.DeserializeType(t, data)
		if err != nil {
			return fmt.Errorf("%s: decode: %w", name, err)
		}
		again, err := c.reg.Marshal(back)
		if err != nil {
			return fmt.Errorf("%s: re-encode: %w", name, err)
		}

		status := valueStyle.Render("ok")
		if !bytes.Equal(data, again) {
			status = errorStyle.Render("mismatch")
			failed++
			model.Logger().Warn("round trip changed bytes",
				zap.String("type", name),
				zap.Binary("first", data),
				zap.Binary("second", again))
		}
		fmt.Fprintf(w, "%s %s %s\n", fieldStyle.Width(10).Render(name), typeStyle.Render(fmt.Sprintf("%4d bytes", len(data))), status)
	}

	fmt.Fprintln(w, helpStyle.Render(fmt.Sprintf("%d types registered, %d lock contentions", len(c.reg.Types()), c.reg.Contentions())))
	if failed > 0 {
		return fmt.Errorf("%d round trips changed their bytes", failed)
	}
	return nil
}
