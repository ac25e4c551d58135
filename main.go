package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mauipipe/visionresizer/cache"
	"github.com/mauipipe/visionresizer/diagnose"
	"github.com/mauipipe/visionresizer/sizer"
	"github.com/mauipipe/visionresizer/vision"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type app struct {
	configPath string
	verbose    bool
	v          *viper.Viper
	config     *Configuration
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:          "visionresizer",
		Short:        "Image size normalization for vision-language model preprocessing",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := log.InfoLevel
			if a.verbose {
				level = log.DebugLevel
			}
			cmd.SetContext(withLogger(cmd.Context(), newLogger(cmd.ErrOrStderr(), level)))

			v, err := newViper(a.configPath)
			if err != nil {
				return err
			}
			config, err := decodeConfig(v)
			if err != nil {
				return err
			}
			a.v, a.config = v, config
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file (default ./config.{yaml,toml,json})")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable verbose logging")

	root.AddCommand(a.newServeCmd())
	root.AddCommand(a.newNormalizeCmd())
	root.AddCommand(a.newDetectCmd())
	root.AddCommand(a.newVerifyCmd())
	root.AddCommand(a.newWarmupCmd())
	root.AddCommand(a.newVisionCmd())

	return root
}

func (a *app) newServer(logger *log.Logger) (*Server, error) {
	provider, err := cache.New(cache.Options{
		BasePath:   a.config.CachePath,
		LRUEnabled: a.config.LRUSize > 0,
		LRUSize:    a.config.LRUSize,
	})
	if err != nil {
		return nil, err
	}
	return NewServer(a.config, provider, logger), nil
}

func (a *app) newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the resize HTTP service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := loggerFromContext(ctx)
			runtime.GOMAXPROCS(MaxParallelism(logger))

			srv, err := a.newServer(logger)
			if err != nil {
				return err
			}

			if a.v.ConfigFileUsed() != "" {
				a.v.OnConfigChange(func(e fsnotify.Event) {
					config, err := decodeConfig(a.v)
					if err != nil {
						logger.Error("ignoring invalid configuration", "file", e.Name, "err", err)
						return
					}
					srv.SetConfig(config)
					logger.Info("configuration reloaded", "file", e.Name, "op", e.Op.String())
				})
				a.v.WatchConfig()
			}

			server := &http.Server{
				Addr:              fmt.Sprintf(":%d", a.config.Port),
				Handler:           srv.Router(),
				ReadHeaderTimeout: 5 * time.Second,
			}

			errc := make(chan error, 1)
			go func() {
				logger.Info("listening", "addr", server.Addr, "cache", a.config.CachePath)
				errc <- server.ListenAndServe()
			}()

			select {
			case err := <-errc:
				return err
			case <-ctx.Done():
			}

			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}
}

func (a *app) newNormalizeCmd() *cobra.Command {
	var (
		budgetName string
		budget     sizer.Budget
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "normalize HEIGHT WIDTH",
		Short: "Print the normalized height and width for an image size",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			height, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid height %q", args[0])
			}
			width, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid width %q", args[1])
			}

			b, ok := a.config.Budget(budgetName)
			if !ok {
				return fmt.Errorf("unknown budget %q", budgetName)
			}
			flags := cmd.Flags()
			if flags.Changed("factor") {
				b.Factor = budget.Factor
			}
			if flags.Changed("min-pixels") {
				b.MinPixels = budget.MinPixels
			}
			if flags.Changed("max-pixels") {
				b.MaxPixels = budget.MaxPixels
			}

			size, err := sizer.Normalize(height, width, b)
			if err != nil {
				return err
			}

			loggerFromContext(cmd.Context()).Debug("normalized", "budget", b, "area", size.Area())
			if asJSON {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(size)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d %d\n", size.Height, size.Width)
			return err
		},
	}

	cmd.Flags().StringVarP(&budgetName, "budget", "b", defaultBudgetName, "named budget from the configuration")
	cmd.Flags().IntVar(&budget.Factor, "factor", sizer.DefaultFactor, "both sides are rounded to a multiple of this")
	cmd.Flags().IntVar(&budget.MinPixels, "min-pixels", sizer.DefaultMinPixels, "lower bound for the output area")
	cmd.Flags().IntVar(&budget.MaxPixels, "max-pixels", sizer.DefaultMaxPixels, "upper bound for the output area")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}

func (a *app) newDetectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detect",
		Short: "Report platform details and the available accelerator",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			platform := diagnose.DetectPlatform()
			if err := platform.WriteReport(out); err != nil {
				return err
			}

			backend := diagnose.DetectBackend(cmd.Context())
			_, err := fmt.Fprintf(out, "\nAccelerator: %s\n", backend)
			return err
		},
	}
}

func (a *app) newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check that the tools and directories the pipeline needs are available",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report := diagnose.Verify(cmd.Context(), a.config.EnvironmentChecks())
			if err := report.WriteReport(cmd.OutOrStdout()); err != nil {
				return err
			}
			if !report.OK() {
				return fmt.Errorf("%d required check(s) failed", len(report.Failed()))
			}
			return nil
		},
	}
}

func (a *app) newWarmupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "warmup",
		Short: "Normalize the configured warmup images into the cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := loggerFromContext(cmd.Context())
			srv, err := a.newServer(logger)
			if err != nil {
				return err
			}

			start := time.Now()
			result, err := srv.WarmUp(cmd.Context())
			if err != nil {
				return err
			}
			logger.Infof("Warmed %d images (%s)", result.Warmed, time.Since(start).Round(time.Millisecond))
			if len(result.Failed) > 0 {
				return fmt.Errorf("%d warmup item(s) failed", len(result.Failed))
			}
			return nil
		},
	}
}

func (a *app) newVisionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vision [FILE]",
		Short: "List the images and videos referenced by a JSON message list",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}

			data, err := io.ReadAll(r)
			if err != nil {
				return err
			}
			messages, err := vision.DecodeMessages(data)
			if err != nil {
				return err
			}

			images, videos := vision.ExtractVisionInfo(messages)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(visionResponse{Images: images, Videos: videos})
		},
	}
}
