package app

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"proxysieve/internal/cache"
	"proxysieve/internal/checker"
	"proxysieve/internal/config"
	"proxysieve/internal/database"
	"proxysieve/internal/dnsbl"
	"proxysieve/internal/export"
	"proxysieve/internal/geo"
	"proxysieve/internal/metrics"
	"proxysieve/internal/pipeline"
	"proxysieve/internal/sources"
	"proxysieve/internal/support"
	"proxysieve/internal/support/reputation"
)

const sourceFetchTimeout = 30 * time.Second

// Run executes one full validation pass: fetch candidates, drive them
// through the pipeline, write artifacts. A run that accepts zero candidates
// exits zero; only infrastructure failures are fatal.
func Run() error {
	if err := godotenv.Load(); err != nil {
		log.Warn("No .env file found. Falling back to system environment variables.")
	}

	if strings.EqualFold(support.GetEnv("LOG_LEVEL", ""), "debug") {
		log.SetLevel(log.DebugLevel)
	}

	settingsFlag := flag.String("settings", "", "Path to the settings file")
	inputFlag := flag.String("input", "", "Read candidate lines from a local file instead of fetching sources")
	outputFlag := flag.String("output", "", "Output directory override")
	metricsPortFlag := flag.Int("metrics-port", 0, "Port for the /metrics listener (0 disables)")
	flag.Parse()

	if *settingsFlag != "" {
		config.SetSettingsPath(*settingsFlag)
	}
	config.ReadSettings()
	cfg := config.GetConfig()

	outputDir := cfg.Output.Directory
	if *outputFlag != "" {
		outputDir = *outputFlag
	}
	if err := os.MkdirAll(outputDir, os.ModePerm); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	metricsPort := cfg.MetricsPort
	if *metricsPortFlag != 0 {
		metricsPort = *metricsPortFlag
	}
	metrics.Serve(metricsPort)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := database.SetupDB(database.WithDialector(database.DialectorFromEnv())); err != nil {
		log.Warn("Result store unavailable, continuing without persistence", "error", err)
		database.DB = nil
	}

	redisClient, err := support.GetRedisClient()
	if err != nil {
		log.Debug("Redis unavailable, verdict cache is process-local", "error", err)
		redisClient = nil
	}
	defer func() {
		if err := support.CloseRedisClient(); err != nil {
			log.Warn("Error closing redis client", "error", err)
		}
	}()

	policy, err := dnsbl.ParsePolicy(cfg.DNSBL.Policy)
	if err != nil {
		log.Warn("Unknown DNSBL policy, using fail-open", "policy", cfg.DNSBL.Policy)
	}

	orchestrator := pipeline.New(
		pipeline.Options{
			ChunkSize:        cfg.Checker.ChunkSize,
			ProbeConcurrency: cfg.Checker.ProbeConcurrency,
			DNSConcurrency:   cfg.DNSBL.QueryConcurrency,
			ScoreThreshold:   cfg.Scoring.Threshold,
			MaxLatencyMillis: float64(cfg.Checker.MaxLatencyMs),
			OverallDeadline:  cfg.OverallDeadline(),
		},
		checker.NewProber(cfg.ConnectTimeout()),
		dnsbl.NewResolver(cfg.DNSBL.Domains, cfg.DNSQueryTimeout(), policy),
		reputation.Score,
		database.NewResultStore(),
		cache.NewVerdictCache(redisClient, cfg.VerdictCacheTTL()),
	)

	metrics.RunPhase.Set(float64(pipeline.PhaseFetching))
	rawLines, err := loadCandidates(ctx, cfg, *inputFlag)
	if err != nil {
		return err
	}
	log.Info("Candidate lines collected", "count", len(rawLines))

	result := orchestrator.Run(ctx, rawLines)

	annotator := geo.NewAnnotator(cfg.GeoLite.CountryDBPath)
	defer annotator.Close()
	annotator.Annotate(result.Records)

	if err := export.WriteArtifacts(
		outputDir, cfg.Output.CleanFile, cfg.Output.ReportFile,
		result.Accepted, result.Records,
	); err != nil {
		return err
	}

	return nil
}

func loadCandidates(ctx context.Context, cfg config.Config, inputPath string) ([]string, error) {
	if inputPath != "" {
		data, err := os.ReadFile(inputPath)
		if err != nil {
			return nil, fmt.Errorf("read input file: %w", err)
		}
		var lines []string
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line != "" {
				lines = append(lines, line)
			}
		}
		return lines, nil
	}

	fetcher := sources.NewFetcher(sourceFetchTimeout)
	return fetcher.FetchAll(ctx, cfg.Sources), nil
}
