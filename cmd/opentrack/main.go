package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/maccman/opentrack-sub000/pkg/config"
	"github.com/maccman/opentrack-sub000/pkg/destinations"
	"github.com/maccman/opentrack-sub000/pkg/events"
	"github.com/maccman/opentrack-sub000/pkg/logger"
	"github.com/maccman/opentrack-sub000/pkg/router"

	// Import all destination adapters to register them
	_ "github.com/maccman/opentrack-sub000/pkg/destinations/bigquery"
	_ "github.com/maccman/opentrack-sub000/pkg/destinations/crm"
	_ "github.com/maccman/opentrack-sub000/pkg/destinations/webhook"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	var configFile string

	root := &cobra.Command{
		Use:   "opentrack",
		Short: "Opentrack - analytics event delivery",
		Long: `Opentrack fans analytics events out to configured destinations:
a BigQuery warehouse, a CRM, and generic webhooks. Destinations fail
independently and retry transient errors with exponential backoff.`,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to YAML config file")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Opentrack v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "destinations",
		Short: "List available destinations",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Available destinations:")
			for _, name := range destinations.Registered() {
				fmt.Printf("  - %s\n", name)
			}
		},
	})

	deliverCmd := &cobra.Command{
		Use:   "deliver [event.json]",
		Short: "Deliver one event to all enabled destinations",
		Long: `Deliver reads a single event as JSON from the given file (or stdin when
no file is given) and fans it out to every enabled destination. The exit
status is non-zero when any delivery fails.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return deliver(configFile, path)
		},
	}
	root.AddCommand(deliverCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func deliver(configFile, eventFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Encoding:    cfg.Logging.Encoding,
		Development: cfg.Logging.Development,
	}); err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	event, err := readEvent(eventFile)
	if err != nil {
		return err
	}

	dests, err := destinations.Build(cfg)
	if err != nil {
		return fmt.Errorf("building destinations: %w", err)
	}
	if len(dests) == 0 {
		return fmt.Errorf("no destinations enabled")
	}

	outcomes, err := router.New(dests).Process(context.Background(), event)
	if err != nil {
		return err
	}

	failed := 0
	for _, o := range outcomes {
		if o.Success {
			fmt.Printf("%s: ok (%s)\n", o.Destination, o.Duration)
			continue
		}
		failed++
		fmt.Printf("%s: FAILED (%s): %v\n", o.Destination, o.Duration, o.Err)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d deliveries failed", failed, len(outcomes))
	}
	return nil
}

func readEvent(path string) (*events.Event, error) {
	var data []byte
	var err error

	if path == "" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading event: %w", err)
	}

	var event events.Event
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("parsing event: %w", err)
	}
	return &event, nil
}
