package main

import (
	"fmt"
	"reflect"

	"github.com/spf13/cobra"
)

var schemaCmd = &cobra.Command{
	Use:   "schema [type]",
	Short: "Print the proto2 schema of catalog types",
	Long:  wrapString(`Print the proto2 schema of one catalog type and everything it reaches, or of every catalog type when none is named.`),
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newCatalog()
		if err != nil {
			return err
		}
		var t reflect.Type
		if len(args) == 1 {
			if t, err = c.lookup(args[0]); err != nil {
				return err
			}
		}
		out, err := c.reg.Schema(t)
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), out)
		return err
	},
}
