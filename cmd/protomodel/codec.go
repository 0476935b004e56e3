package main

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"reflect"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	encodeCmd = &cobra.Command{
		Use:   "encode <type> [file]",
		Short: "Encode a JSON document as a catalog type",
		Long: wrapString(`Read a JSON document (stdin when no file is given), decode it into the
named catalog type and write its protobuf encoding. Output is hex on a
terminal and raw bytes otherwise, unless --hex is set.`),
		Args: cobra.RangeArgs(1, 2),
		RunE: runEncode,
	}

	decodeCmd = &cobra.Command{
		Use:   "decode <type> [file]",
		Short: "Decode a payload as a catalog type and print it as JSON",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runDecode,
	}
)

func init() {
	encodeCmd.Flags().Bool("hex", false, wrapString("write hex even when stdout is not a terminal"))
}

func runEncode(cmd *cobra.Command, args []string) error {
	c, err := newCatalog()
	if err != nil {
		return err
	}
	t, err := c.lookup(args[0])
	if err != nil {
		return err
	}
	src, closeFn, err := openInput(args[1:])
	if err != nil {
		return err
	}
	defer closeFn()

	data, err := encodeJSON(c, t, src)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if viper.GetBool("hex") || isTerminal(os.Stdout) {
		_, err = fmt.Fprintln(out, hex.EncodeToString(data))
		return err
	}
	_, err = out.Write(data)
	return err
}

// encodeJSON decodes one JSON document into a new t and encodes it,
// framed as a record when a prefix style is configured.
func encodeJSON(c *catalog, t reflect.Type, src io.Reader) ([]byte, error) {
	if t.Kind() == reflect.Interface {
		return nil, fmt.Errorf("%s is an interface; encode one of its concrete types", t.Name())
	}
	v := reflect.New(t)
	if err := json.NewDecoder(src).Decode(v.Interface()); err != nil {
		return nil, fmt.Errorf("parse JSON: %w", err)
	}

	style, field, stream, err := streamConfig()
	if err != nil {
		return nil, err
	}
	if !stream {
		return c.reg.Marshal(v.Interface())
	}
	var buf bytes.Buffer
	if err := c.reg.SerializeWithLengthPrefix(&buf, v.Interface(), style, field); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func runDecode(cmd *cobra.Command, args []string) error {
	c, err := newCatalog()
	if err != nil {
		return err
	}
	t, err := c.lookup(args[0])
	if err != nil {
		return err
	}
	src, closeFn, err := openInput(args[1:])
	if err != nil {
		return err
	}
	defer closeFn()

	values, err := decodeInput(c, t, src)
	for _, v := range values {
		doc, jerr := json.MarshalIndent(v, "", "  ")
		if jerr != nil {
			return jerr
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(doc))
	}
	return err
}

// decodeInput decodes src as one t, or as a stream of t records when a
// prefix style is configured. Values decoded before an error are returned.
func decodeInput(c *catalog, t reflect.Type, src io.Reader) ([]any, error) {
	style, field, stream, err := streamConfig()
	if err != nil {
		return nil, err
	}
	if !stream {
		data, err := io.ReadAll(src)
		if err != nil {
			return nil, fmt.Errorf("read input: %w", err)
		}
		v, err := c.reg.DeserializeType(t, data)
		if err != nil {
			return nil, err
		}
		return []any{v}, nil
	}

	var out []any
	for v, err := range c.reg.DeserializeItems(src, t, style, field) {
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
	return out, nil
}
