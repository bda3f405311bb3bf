// Package cli provides the command-line entrypoint for the runledger
// server: configuration loading, service construction, HTTP transport
// wiring, and graceful shutdown.
package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/runledger/runledger/api"
	"github.com/runledger/runledger/cardinality"
	"github.com/runledger/runledger/common"
	"github.com/runledger/runledger/config"
	"github.com/runledger/runledger/coordinator"
	"github.com/runledger/runledger/domain"
	"github.com/runledger/runledger/metadata"
	"github.com/runledger/runledger/metrics"
	"github.com/runledger/runledger/query"
	"github.com/runledger/runledger/storage"
)

var cfgFile string

// RootCmd is the runledger server entrypoint.
var RootCmd = &cobra.Command{
	Use:   "runledger",
	Short: "ingest and query server for experiment tracking runs, parameters, tags and metrics",
	Run:   runServer,
}

func init() {
	cobra.OnInitialize(initConfig)
	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.runledger.yaml)")
	RootCmd.PersistentFlags().Int("ingest-port", 0, "ingest server port")
	RootCmd.PersistentFlags().Int("query-port", 0, "query server port")
	RootCmd.PersistentFlags().String("database-url", "", "Postgres connection string")
	RootCmd.PersistentFlags().String("clickhouse-host", "", "ClickHouse host:port")
	RootCmd.PersistentFlags().String("api-key", "", "static API key required on every request")
	RootCmd.PersistentFlags().String("redis-url", "", "optional Redis URL for the query result cache")

	viper.BindPFlag("ingest_port", RootCmd.PersistentFlags().Lookup("ingest-port"))
	viper.BindPFlag("query_port", RootCmd.PersistentFlags().Lookup("query-port"))
	viper.BindPFlag("database_url", RootCmd.PersistentFlags().Lookup("database-url"))
	viper.BindPFlag("clickhouse_host", RootCmd.PersistentFlags().Lookup("clickhouse-host"))
	viper.BindPFlag("api_key", RootCmd.PersistentFlags().Lookup("api-key"))
	viper.BindPFlag("redis_url", RootCmd.PersistentFlags().Lookup("redis-url"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".runledger")
	}
	viper.SetEnvPrefix("RUNLEDGER")
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

func loadConfig() config.RunledgerConfig {
	db := config.LoadDatabaseConfig("RUNLEDGER_DB")
	ch := config.LoadClickHouseConfig("RUNLEDGER_CLICKHOUSE")
	auth := config.LoadAuthConfig("RUNLEDGER_AUTH")
	svc := config.LoadServiceConfig("RUNLEDGER")
	ingest := config.LoadIngestConfig("RUNLEDGER")
	redis := config.LoadRedisConfig("RUNLEDGER_REDIS")
	artifacts := config.LoadArtifactConfig("RUNLEDGER_ARTIFACTS")

	cfg := config.RunledgerConfig{
		IngestHost:        "0.0.0.0",
		IngestPort:        viper.GetInt("ingest_port"),
		QueryHost:         "0.0.0.0",
		QueryPort:         viper.GetInt("query_port"),
		Database:          db,
		ClickHouse:        ch,
		Ingest:            ingest,
		Auth:              auth,
		Service:           svc,
		Redis:             redis,
		Artifacts:         artifacts,
		ResumeTokenSecret: auth.JWTSecret,
		DisableAuth:       auth.APIKey == "",
	}
	if v := viper.GetString("database_url"); v != "" {
		cfg.Database.URL = v
	}
	if v := viper.GetString("clickhouse_host"); v != "" {
		cfg.ClickHouse.Host = v
	}
	if v := viper.GetString("api_key"); v != "" {
		cfg.Auth.APIKey = v
	}
	if v := viper.GetString("redis_url"); v != "" {
		cfg.Redis.URL = v
	}
	if cfg.IngestPort == 0 {
		cfg.IngestPort = 8080
	}
	if cfg.QueryPort == 0 {
		cfg.QueryPort = 8081
	}
	return cfg
}

func newLogger(cfg config.ServiceConfig) *logrus.Entry {
	l := common.NewLogger(common.LoggerConfig{
		Level:      common.LogLevel(cfg.LogLevel),
		Format:     cfg.LogFormat,
		Service:    cfg.Name,
		Version:    cfg.Version,
		TimeFormat: time.RFC3339,
	})
	return l.WithField("service", cfg.Name)
}

// seedGuard rebuilds the in-memory cardinality guard from the stores at
// boot, per the requirement that a restart must not under-count.
func seedGuard(ctx context.Context, meta *metadata.Store, metricsStore *metrics.Store, guard *cardinality.Guard, log *logrus.Entry) {
	runIDs, err := metricsStore.AllRunIDsWithData(ctx)
	if err != nil {
		log.WithError(err).Warn("cardinality seed: list run ids")
		return
	}
	for _, runID := range runIDs {
		run, err := meta.GetRun(ctx, runID)
		if err != nil {
			log.WithError(err).WithField("run_id", runID).Warn("cardinality seed: get run")
			continue
		}
		names, err := metricsStore.DistinctMetricNames(ctx, runID)
		if err != nil {
			log.WithError(err).WithField("run_id", runID).Warn("cardinality seed: distinct names")
			continue
		}
		tagKeys := make([]string, 0, len(run.Tags))
		for k := range run.Tags {
			tagKeys = append(tagKeys, k)
		}
		guard.Seed(run.ProjectID, runID, names, tagKeys, 0)
		if !run.Status.IsTerminal() && run.Status != domain.RunCrashed {
			guard.RegisterRun(run.ProjectID, runID)
		}
	}
}

func runServer(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	log := newLogger(cfg.Service)
	ctx := context.Background()

	metaStore, err := metadata.New(ctx, cfg.Database.URL, log)
	if err != nil {
		log.Fatalf("metadata store: %v", err)
	}
	defer metaStore.Close()

	metricsStore, err := metrics.New(ctx, cfg.ClickHouse, log)
	if err != nil {
		log.Fatalf("metrics store: %v", err)
	}
	defer metricsStore.Close()

	guard := cardinality.New(cardinality.DefaultThresholds())
	seedGuard(ctx, metaStore, metricsStore, guard, log)

	coord := coordinator.New(metaStore, metricsStore, guard, cfg.Ingest, cfg.ResumeTokenSecret, log)

	engine := query.New(metaStore, metricsStore, log)
	if cfg.Redis.URL != "" {
		cache, err := query.NewResultCache(ctx, cfg.Redis.URL, cfg.Redis.TTL)
		if err != nil {
			log.WithError(err).Warn("query result cache unavailable, continuing without it")
		} else {
			defer cache.Close()
			engine = engine.WithCache(cache)
			coord = coord.WithCacheInvalidator(cache)
			log.Info("query result cache connected")
		}
	}

	coord.Start(ctx)
	defer coord.Stop()

	var presigner *storage.ArtifactPresigner
	if cfg.Artifacts.Bucket != "" {
		s3Client, err := storage.NewClient(ctx, storage.Config{
			Endpoint:  cfg.Artifacts.Endpoint,
			Region:    cfg.Artifacts.Region,
			Bucket:    cfg.Artifacts.Bucket,
			AccessKey: cfg.Artifacts.AccessKey,
			SecretKey: cfg.Artifacts.SecretKey,
		})
		if err != nil {
			log.WithError(err).Warn("artifact presigner unavailable, continuing without it")
		} else {
			presigner = storage.NewArtifactPresigner(s3Client, cfg.Artifacts.Bucket, cfg.Artifacts.URLExpiry)
			log.WithField("bucket", cfg.Artifacts.Bucket).Info("artifact presign endpoint enabled")
		}
	}

	apiKey := cfg.Auth.APIKey
	log.WithField("api_key", common.MaskSecret(apiKey)).Info("auth configured")
	ingestServer := api.NewIngestServer(coord, presigner, apiKey)
	queryServer := api.NewQueryServer(engine, apiKey)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		addr := fmt.Sprintf("%s:%d", cfg.IngestHost, cfg.IngestPort)
		log.Printf("ingest server listening on %s", addr)
		if err := ingestServer.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ingest server: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		addr := fmt.Sprintf("%s:%d", cfg.QueryHost, cfg.QueryPort)
		log.Printf("query server listening on %s", addr)
		if err := queryServer.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("query server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ingestServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("ingest server shutdown")
	}
	if err := queryServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("query server shutdown")
	}
}
