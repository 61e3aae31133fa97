package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/claimdesk/expense-ledger/internal/api/handlers"
	envconfig "github.com/claimdesk/expense-ledger/internal/common/config"
	"github.com/claimdesk/expense-ledger/internal/docstore"
	"github.com/claimdesk/expense-ledger/internal/domain/authz"
	"github.com/claimdesk/expense-ledger/internal/domain/ledger"
	"github.com/claimdesk/expense-ledger/internal/events"
	"github.com/claimdesk/expense-ledger/internal/events/kafka"
	dynamodbstore "github.com/claimdesk/expense-ledger/internal/platform/dynamodb"
	dynamoClient "github.com/claimdesk/expense-ledger/internal/platform/dynamodb/client"
	"github.com/claimdesk/expense-ledger/internal/platform/exportfs"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := envconfig.LoadFromEnv()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	var store docstore.Store
	switch cfg.StoreBackend {
	case "memory":
		store = docstore.NewMemoryStore()
	default:
		client, err := dynamoClient.NewDynamoDBClient(ctx, cfg.AWSRegion)
		if err != nil {
			logger.Error("failed to create DynamoDB client", "error", err)
			os.Exit(1)
		}
		store = dynamodbstore.NewDocumentStore(client, cfg.DynamoDBTableName, logger)
	}

	var publisher events.Publisher = events.NoopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher := kafka.NewPublisher(cfg.KafkaBrokers)
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
	}

	var sink ledger.ExportSink
	if cfg.ExportDir != "" {
		sink = exportfs.NewSink(cfg.ExportDir, logger)
	}

	repo := docstore.NewLedgerRepository(store)
	service := ledger.NewService(repo, authz.NewCapabilityGate(), publisher, sink, logger)

	mux := http.NewServeMux()
	handlers.NewLedgerHandler(service, logger).Register(mux)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	logger.Info("expense ledger listening",
		"addr", cfg.HTTPAddr, "store", cfg.StoreBackend, "environment", cfg.Environment)
	if err := http.ListenAndServe(cfg.HTTPAddr, mux); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
