package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/wippyai/protomodel/model"
	"github.com/wippyai/protomodel/wire"
)

const (
	Version = "0.3.0"

	// wrapWidth is the number of characters help text is wrapped at
	wrapWidth = 50
)

var (
	// rootCmd is the base command when called without any subcommands
	rootCmd = &cobra.Command{
		Use:   "protomodel",
		Short: "protobuf wire tooling for runtime-described Go types",
		Long: fmt.Sprintf(`protomodel (v%s)

Inspect protocol buffer payloads and exercise the runtime type model:
dump raw wire data, browse it interactively, and encode, decode or print
the schema of the built-in catalog types.`, Version),
		SilenceUsage:      true,
		PersistentPreRunE: bindFlags,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of protomodel",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("protomodel v%s\n", Version)
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(encodeCmd)
	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(demoCmd)
	rootCmd.AddCommand(versionCmd)

	key := "verbose"
	rootCmd.PersistentFlags().Bool(key, false, wrapString("log registry activity (type discovery, graph builds, lock contention) to stderr"))
	key = "color"
	rootCmd.PersistentFlags().String(key, "auto", wrapString("colorize output (auto, always, never)"))
	key = "prefix"
	rootCmd.PersistentFlags().String(key, "", wrapString("treat input and output as a stream of length-prefixed records (base128, fixed32, fixed32be)"))
	key = "field"
	rootCmd.PersistentFlags().Int(key, 0, wrapString("field number written before each base128 record prefix, 0 for none"))
}

// Execute runs the root command. It only needs to happen once.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// initConfig loads .env files and wires environment variables into viper.
func initConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("protomodel")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func bindFlags(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	log, err := newLogger(viper.GetBool("verbose"))
	if err != nil {
		return err
	}
	model.SetLogger(log)
	return nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if !verbose {
		return zap.NewNop(), nil
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

// streamConfig returns the configured record prefix. ok is false when input
// is a single message.
func streamConfig() (style wire.PrefixStyle, field int, ok bool, err error) {
	name := viper.GetString("prefix")
	if name == "" {
		return 0, 0, false, nil
	}
	style, ok = wire.ParsePrefixStyle(name)
	if !ok {
		return 0, 0, false, fmt.Errorf("invalid prefix style %q", name)
	}
	return style, viper.GetInt("field"), true, nil
}

// wrapString wraps text at wrapWidth characters
func wrapString(text string) string {
	var lines []string
	var line strings.Builder
	width := 0

	for _, word := range strings.Fields(text) {
		if width > 0 && width+1+len(word) > wrapWidth {
			lines = append(lines, line.String())
			line.Reset()
			width = 0
		}
		if width > 0 {
			line.WriteString(" ")
			width++
		}
		line.WriteString(word)
		width += len(word)
	}
	if line.Len() > 0 {
		lines = append(lines, line.String())
	}
	return strings.Join(lines, "\n")
}
