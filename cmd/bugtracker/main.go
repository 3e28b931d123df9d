// Command bugtracker aggregates bug reports from Shortcut, Slack and
// Zendesk into a single store, and ships the operational tooling around
// that store: one-shot and scheduled ingestion, connectivity probes, and
// a sweep for cleaning out unwanted records.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/castifi/bugtracker-dashboard/config"
	"github.com/castifi/bugtracker-dashboard/ingest"
	"github.com/castifi/bugtracker-dashboard/logger"
	"github.com/castifi/bugtracker-dashboard/source"
	"github.com/castifi/bugtracker-dashboard/source/shortcut"
	"github.com/castifi/bugtracker-dashboard/source/slack"
	"github.com/castifi/bugtracker-dashboard/source/zendesk"
	"github.com/castifi/bugtracker-dashboard/store"
	"github.com/castifi/bugtracker-dashboard/store/dynamodb"
	"github.com/castifi/bugtracker-dashboard/store/postgres"
	"github.com/castifi/bugtracker-dashboard/sweep"
	"github.com/castifi/bugtracker-dashboard/types"
)

const runTimeout = 10 * time.Minute

func main() {
	app := &cli.App{
		Name:  "bugtracker",
		Usage: "Aggregate bug reports from Shortcut, Slack and Zendesk into one store",
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Run one ingestion pass and print its summary",
				Action: runCommand,
			},
			{
				Name:   "serve",
				Usage:  "Run ingestion on a cron schedule until interrupted",
				Action: serveCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "schedule",
						Usage: "Cron schedule expression (falls back to CRON_SCHEDULE)",
					},
				},
			},
			{
				Name:   "sweep",
				Usage:  "Find and delete stored records matching text patterns",
				Action: sweepCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "source",
						Usage:    "Source system to scan (shortcut, slack or zendesk)",
						Required: true,
					},
					&cli.StringSliceFlag{
						Name:  "pattern",
						Usage: "Case-insensitive substring to match against title and text; repeatable",
					},
					&cli.IntFlag{
						Name:  "segments",
						Usage: "Number of parallel scan segments",
						Value: 4,
					},
					&cli.BoolFlag{
						Name:  "yes",
						Usage: "Delete without asking for confirmation",
					},
				},
			},
			{
				Name:   "probe",
				Usage:  "Check connectivity of every configured source",
				Action: probeCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCommand(c *cli.Context) error {
	cfg := config.Load()
	log := logger.New(cfg)

	ctx, cancel := context.WithTimeout(c.Context, runTimeout)
	defer cancel()

	st, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close(ctx) }()

	connectors := newConnectors(cfg, log)
	if len(connectors) == 0 {
		log.Warn().Msg("no sources are configured")
	}

	summary := ingest.NewOrchestrator(st, log, connectors...).Run(ctx)

	body, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	fmt.Println(string(body))

	return nil
}

func serveCommand(c *cli.Context) error {
	cfg := config.Load()
	log := logger.New(cfg)

	schedule := c.String("schedule")
	if schedule == "" {
		schedule = cfg.CronSchedule
	}

	st, err := newStore(c.Context, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close(context.Background()) }()

	connectors := newConnectors(cfg, log)
	if len(connectors) == 0 {
		return errors.New("no sources are configured")
	}

	orch := ingest.NewOrchestrator(st, log, connectors...)

	cr := cron.New()

	if _, err := cr.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()

		orch.Run(ctx)
	}); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}

	log.Info().Str("schedule", schedule).Msg("ingestion scheduler started")

	cr.Start()
	defer cr.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("ingestion scheduler stopping")

	return nil
}

func sweepCommand(c *cli.Context) error {
	cfg := config.Load()
	log := logger.New(cfg)

	st, err := newStore(c.Context, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close(c.Context) }()

	sw := sweep.New(st, log)

	matched, err := sw.Find(c.Context, sweep.Criteria{
		Source:   types.Source(c.String("source")),
		Patterns: c.StringSlice("pattern"),
		Segments: c.Int("segments"),
	})
	if err != nil {
		return err
	}

	if len(matched) == 0 {
		fmt.Println("No matching records found.")

		return nil
	}

	for _, record := range matched {
		fmt.Printf("%s\t%s\t%s\n", record.PartitionKey, record.SortKey, record.Title)
	}

	if !c.Bool("yes") && !confirm(fmt.Sprintf("Delete %d records? [y/N]: ", len(matched))) {
		fmt.Println("Aborted.")

		return nil
	}

	deleted, err := sw.Delete(c.Context, matched)
	if err != nil {
		return fmt.Errorf("deleted %d of %d records: %w", deleted, len(matched), err)
	}

	fmt.Printf("Deleted %d records.\n", deleted)

	return nil
}

func probeCommand(c *cli.Context) error {
	cfg := config.Load()
	log := logger.New(cfg)

	connectors := newConnectors(cfg, log)
	if len(connectors) == 0 {
		return errors.New("no sources are configured")
	}

	failed := 0

	for _, conn := range connectors {
		pinger, ok := conn.(source.Pinger)
		if !ok {
			continue
		}

		if err := pinger.Ping(c.Context); err != nil {
			fmt.Printf("%-10s FAIL  %v\n", pinger.Name(), err)

			failed++

			continue
		}

		fmt.Printf("%-10s OK\n", pinger.Name())
	}

	if failed > 0 {
		return cli.Exit(fmt.Sprintf("%d of %d sources failed", failed, len(connectors)), 1)
	}

	return nil
}

// newStore builds, connects and initializes the configured store backend.
func newStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendDynamoDB:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
		}

		client := dynamodb.New(&awsCfg, cfg.TableName)
		if err := client.Connect(); err != nil {
			return nil, fmt.Errorf("failed to connect to DynamoDB: %w", err)
		}

		if err := client.Init(ctx, false); err != nil {
			return nil, fmt.Errorf("failed to validate DynamoDB table: %w", err)
		}

		return client, nil

	case config.BackendPostgres:
		client := postgres.New(
			postgres.WithHost(cfg.PGHost),
			postgres.WithPort(cfg.PGPort),
			postgres.WithUser(cfg.PGUser),
			postgres.WithPassword(cfg.PGPassword),
			postgres.WithDatabase(cfg.PGDatabase),
			postgres.WithSSLMode(postgres.SSLMode(cfg.PGSSLMode)),
			postgres.WithTable(cfg.PGTable),
		)
		if err := client.Connect(ctx); err != nil {
			return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
		}

		if err := client.Init(ctx, false); err != nil {
			return nil, fmt.Errorf("failed to initialize Postgres schema: %w", err)
		}

		return client, nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// newConnectors builds a connector for every source whose credentials are
// configured. Sources with incomplete credentials are skipped.
func newConnectors(cfg config.Config, log zerolog.Logger) []source.Connector {
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	connectors := []source.Connector{}

	if cfg.ShortcutEnabled() {
		connectors = append(connectors, shortcut.New(cfg.ShortcutToken,
			shortcut.WithHTTPClient(httpClient),
			shortcut.WithLogger(log),
		))
	}

	if cfg.SlackEnabled() {
		connectors = append(connectors, slack.New(cfg.SlackToken,
			slack.WithHTTPClient(httpClient),
			slack.WithLogger(log),
		))
	}

	if cfg.ZendeskEnabled() {
		connectors = append(connectors, zendesk.New(cfg.ZendeskDomain, cfg.ZendeskEmail, cfg.ZendeskToken,
			zendesk.WithHTTPClient(httpClient),
			zendesk.WithLogger(log),
		))
	}

	return connectors
}

func confirm(prompt string) bool {
	fmt.Print(prompt)

	answer, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}

	answer = strings.ToLower(strings.TrimSpace(answer))

	return answer == "y" || answer == "yes"
}
