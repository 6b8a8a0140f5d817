package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/nsa-yoda/ReplyXL/bootUtils"
	"github.com/nsa-yoda/ReplyXL/config"
	"github.com/nsa-yoda/ReplyXL/imagize"
	"github.com/nsa-yoda/ReplyXL/logger"
	"github.com/nsa-yoda/ReplyXL/secrets"
	"github.com/nsa-yoda/ReplyXL/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// swapped in tests
var (
	serveFn    = Serve
	generateFn = Generate
	provideFn  = imagize.Provide
)

func main() {
	defer logger.Sync()
	run(os.Args[1:])
}

// run executes the CLI. Startup errors are fatal.
func run(args []string) {
	root := NewRoot()
	root.SetArgs(args)

	if err := root.Execute(); err != nil {
		logger.Fatal("imagize failed", zap.Error(err))
	}
}

func NewRoot() *cobra.Command {
	var (
		configPath string
		port       int
		processes  int
	)

	rootCmd := &cobra.Command{
		Use:           "imagize",
		Short:         "Serve the imagize dispatch service",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var portOverride *int
			if cmd.Flags().Changed("port") {
				portOverride = &port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serveFn(ctx, configPath, portOverride, processes)
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", bootUtils.GetEnvOrDefault("IMAGIZE_CONFIG", ""), "path to the INI config file")
	rootCmd.Flags().IntVar(&port, "port", config.DefaultPort, "port to listen on, overrides the config file")
	rootCmd.Flags().IntVar(&processes, "processes", 1, "number of accept loops sharing the listener")

	generateCmd := &cobra.Command{
		Use:   "generate [text]",
		Short: "Print the image prompt for a passage (read from stdin when no argument is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var text string
			if len(args) == 1 {
				text = args[0]
			} else {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				text = string(data)
			}
			return generateFn(cmd.Context(), configPath, text, cmd.OutOrStdout())
		},
	}

	rootCmd.AddCommand(generateCmd)
	return rootCmd
}

// Serve runs the bootstrap sequence and blocks until ctx is cancelled.
func Serve(ctx context.Context, configPath string, portOverride *int, processes int) error {
	boot := server.NewBootstrap()

	if err := boot.LoadConfig(configPath, portOverride); err != nil {
		return err
	}
	settings := boot.Settings()

	secrets.LoadIntoEnv(ctx, secrets.FromSettings(settings)...)

	// A restricted environment never generates, so it needs no backend.
	var gen imagize.Generator
	if !settings.Restricted() {
		g, err := provideFn(settings)
		if err != nil {
			logger.Warn("Generation backend unavailable, generation requests will fail",
				zap.String("generator", settings.Generator), zap.Error(err))
			g = imagize.Unavailable{Err: err}
		}
		gen = g
	}

	if err := boot.SelectTable(gen); err != nil {
		return err
	}

	return boot.Serve(ctx, processes)
}

func Generate(ctx context.Context, configPath, text string, out io.Writer) error {
	settings, err := config.Load(configPath)
	if err != nil {
		return err
	}

	secrets.LoadIntoEnv(ctx, secrets.FromSettings(settings)...)

	gen, err := provideFn(settings)
	if err != nil {
		return fmt.Errorf("generator: %w", err)
	}
	text = strings.TrimSpace(text)

	streamer, ok := gen.(imagize.Streamer)
	if !ok {
		res, err := gen.Generate(ctx, text)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, res.Prompt)
		return err
	}

	if _, err := streamer.Stream(ctx, text, func(chunk string) error {
		_, err := io.WriteString(out, chunk)
		return err
	}); err != nil {
		return err
	}
	_, err = fmt.Fprintln(out)
	return err
}
