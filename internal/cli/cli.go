package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pfrederiksen/canyon-gpx/internal/config"
	"github.com/pfrederiksen/canyon-gpx/internal/converter"
	"github.com/pfrederiksen/canyon-gpx/internal/logger"
	"github.com/pfrederiksen/canyon-gpx/internal/metrics"
	"github.com/pfrederiksen/canyon-gpx/internal/scraper"
	"github.com/pfrederiksen/canyon-gpx/internal/server"
)

const (
	ExitSuccess     = 0
	ExitError       = 1
	ExitNoWaypoints = 2
)

// app holds the state shared by all commands of one invocation
type app struct {
	configPath string
	verbose    bool
	cfg        *config.Config
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "canyon-gpx",
		Short: "Convert descente-canyon.com topos to GPX waypoint files",
		Long: `A tool that downloads canyon pages from descente-canyon.com and turns the
waypoints of their maps (parkings, start, end, ...) into GPX files.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}

	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to configuration file (default: ./config.yaml if present)")
	cmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging and print metrics")

	cmd.AddCommand(a.newConvertCmd(), a.newRegionCmd(), a.newServeCmd())

	return cmd
}

// setup loads the configuration and installs the default logger
func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if a.verbose {
		cfg.Log.Level = string(logger.LevelDebug)
	}
	a.cfg = cfg

	logger.SetDefault(logger.New(logger.ParseLevel(cfg.Log.Level), cmd.ErrOrStderr()))

	return nil
}

func (a *app) converter() *converter.Converter {
	return converter.New(scraper.New(
		scraper.WithTimeout(a.cfg.Fetch.TimeoutDuration()),
		scraper.WithUserAgent(a.cfg.Fetch.UserAgent),
		scraper.WithInsecureSkipVerify(a.cfg.Fetch.InsecureSkipVerify),
	))
}

func (a *app) newConvertCmd() *cobra.Command {
	var (
		flagID     string
		flagURL    string
		flagOutput string
	)

	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert a single canyon to GPX",
		Example: `  canyon-gpx convert --id 2669
  canyon-gpx convert --url https://www.descente-canyon.com/canyoning/canyon/2669/ -o -`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if flagID == "" && flagURL == "" {
				return fmt.Errorf("--id or --url is required")
			}

			result, err := a.converter().Convert(cmd.Context(), converter.Request{ID: flagID, URL: flagURL})
			if err != nil {
				return err
			}
			return a.finish(cmd, result, flagOutput)
		},
	}

	cmd.Flags().StringVar(&flagID, "id", "", "Canyon identifier")
	cmd.Flags().StringVar(&flagURL, "url", "", "Any descente-canyon.com page URL of the canyon")
	cmd.Flags().StringVarP(&flagOutput, "output", "o", "", "Output file, '-' for stdout (default: suggested file name)")

	return cmd
}

func (a *app) newRegionCmd() *cobra.Command {
	var (
		flagListing string
		flagOutput  string
	)

	cmd := &cobra.Command{
		Use:   "region",
		Short: "Merge every canyon of a regional listing into one GPX file",
		RunE: func(cmd *cobra.Command, args []string) error {
			listing := flagListing
			if listing == "" {
				listing = a.cfg.Region.ListingURL
			}

			result, err := a.converter().ConvertRegion(cmd.Context(), listing)
			if err != nil {
				return err
			}
			return a.finish(cmd, result, flagOutput)
		},
	}

	cmd.Flags().StringVar(&flagListing, "listing", "", "Regional listing page URL (default: region.listing_url)")
	cmd.Flags().StringVarP(&flagOutput, "output", "o", "", "Output file, '-' for stdout (default: suggested file name)")

	return cmd
}

func (a *app) newServeCmd() *cobra.Command {
	var (
		flagHost string
		flagPort int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the GPX conversion HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("host") {
				a.cfg.Server.Host = flagHost
			}
			if cmd.Flags().Changed("port") {
				a.cfg.Server.Port = flagPort
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return server.New(a.converter(), a.cfg).ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&flagHost, "host", "", "Host to listen on (default: server.host)")
	cmd.Flags().IntVar(&flagPort, "port", 0, "Port to listen on (default: server.port)")

	return cmd
}

// finish writes the result and, in verbose mode, the collected metrics
func (a *app) finish(cmd *cobra.Command, result *converter.Result, output string) error {
	path, err := WriteResult(cmd.OutOrStdout(), result, output)
	if err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	if path != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d waypoints to %s\n", result.Waypoints, path)
	}
	if a.verbose {
		snapshot, err := metrics.Snapshot()
		if err != nil {
			return err
		}
		return WriteMetrics(cmd.ErrOrStderr(), snapshot)
	}
	return nil
}

// ExitCode maps a command error to the process exit status
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, converter.ErrNoWaypoints):
		return ExitNoWaypoints
	default:
		return ExitError
	}
}

// Execute runs the CLI
func Execute() {
	err := NewRootCmd().ExecuteContext(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(ExitCode(err))
}
