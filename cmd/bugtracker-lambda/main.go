// Command bugtracker-lambda is the scheduled AWS Lambda entry point for
// ingestion. Each invocation runs one full pass over every configured
// source and reports the outcome through an API-gateway style response.
package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/rs/zerolog"

	"github.com/castifi/bugtracker-dashboard/config"
	"github.com/castifi/bugtracker-dashboard/ingest"
	"github.com/castifi/bugtracker-dashboard/logger"
	"github.com/castifi/bugtracker-dashboard/source"
	"github.com/castifi/bugtracker-dashboard/source/shortcut"
	"github.com/castifi/bugtracker-dashboard/source/slack"
	"github.com/castifi/bugtracker-dashboard/source/zendesk"
	"github.com/castifi/bugtracker-dashboard/store/dynamodb"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg)

	handler := ingest.NewHandler(runFunc(cfg, log), log)

	lambda.Start(handler.Handle)
}

// runFunc wires one full ingestion pass. The table client is connected per
// invocation so a connection fault surfaces as an error response instead of
// killing the runtime at startup.
func runFunc(cfg config.Config, log zerolog.Logger) ingest.RunFunc {
	return func(ctx context.Context) (*ingest.Summary, error) {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
		}

		client := dynamodb.New(&awsCfg, cfg.TableName)
		if err := client.Connect(); err != nil {
			return nil, fmt.Errorf("failed to connect to DynamoDB: %w", err)
		}

		if err := client.Init(ctx, true); err != nil {
			return nil, fmt.Errorf("failed to initialize DynamoDB client: %w", err)
		}
		defer func() { _ = client.Close(ctx) }()

		return ingest.NewOrchestrator(client, log, newConnectors(cfg, log)...).Run(ctx), nil
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
