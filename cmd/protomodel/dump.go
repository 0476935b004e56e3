package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/wippyai/protomodel/wire"
)

var dumpCmd = &cobra.Command{
	Use:   "dump [file]",
	Short: "Print the raw wire structure of a payload",
	Long: wrapString(`Decode a protobuf payload without a schema and print every field with its
offset, number, wire type and value. Byte blocks holding a valid message
are expanded. Reads stdin when no file is given.`),
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := configureColor(); err != nil {
			return err
		}
		src, closeFn, err := openInput(args)
		if err != nil {
			return err
		}
		defer closeFn()
		return dump(cmd.OutOrStdout(), src, terminalWidth(os.Stdout))
	},
}

func openInput(args []string) (io.Reader, func(), error) {
	if len(args) == 0 || args[0] == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(args[0])
	if err != nil {
		return nil, nil, fmt.Errorf("open input: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

// dump prints src as one message, or as consecutive records when a prefix
// style is configured. width truncates lines when positive.
func dump(w io.Writer, src io.Reader, width int) error {
	style, field, stream, err := streamConfig()
	if err != nil {
		return err
	}

	if !stream {
		data, err := io.ReadAll(src)
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		fields, perr := parseWire(data)
		renderFields(w, fields, 0, width)
		return perr
	}

	for i := 0; ; i++ {
		body, n, err := wire.ReadRecord(src, style, field)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("record %d", i))+" "+helpStyle.Render(fmt.Sprintf("%d bytes", n)))
		fields, perr := parseWire(body)
		renderFields(w, fields, 1, width)
		if perr != nil {
			return perr
		}
	}
}

func renderFields(w io.Writer, fields []wireField, depth, width int) {
	for i := range fields {
		fmt.Fprintln(w, clip(formatField(&fields[i], depth), width))
		if len(fields[i].Children) > 0 {
			renderFields(w, fields[i].Children, depth+1, width)
		}
	}
}

func formatField(f *wireField, depth int) string {
	return fmt.Sprintf("%s%s %s %s %s",
		strings.Repeat("  ", depth),
		helpStyle.Render(fmt.Sprintf("@%04d", f.Offset)),
		fieldStyle.Render(fmt.Sprintf("#%d", f.Num)),
		typeStyle.Render(wire.TypeName(f.Type)),
		valueStyle.Render(f.Value),
	)
}

// clip truncates s to width cells, keeping styles intact.
func clip(s string, width int) string {
	if width <= 0 {
		return s
	}
	return lipgloss.NewStyle().MaxWidth(width).Render(s)
}
