// Command collider-report runs the single-lepton ttbar columnar analysis:
// it reads the configured fileset, fans chunks out across a worker pool,
// applies object selection, region classification and the systematic
// variation set, and persists the resulting histograms to SQLite.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/banshee-data/collider.report/internal/analysis/corrections"
	"github.com/banshee-data/collider.report/internal/analysis/runner"
	"github.com/banshee-data/collider.report/internal/analysis/selection"
	"github.com/banshee-data/collider.report/internal/analysis/source"
	storage "github.com/banshee-data/collider.report/internal/analysis/storage/sqlite"
	"github.com/banshee-data/collider.report/internal/analysis/variation"
	"github.com/banshee-data/collider.report/internal/config"
	"github.com/banshee-data/collider.report/internal/db"
)

var (
	configPath    = flag.String("config", "", "analysis config file (JSON); empty walks up for "+config.DefaultConfigPath)
	dbPath        = flag.String("db", "analysis_results.db", "SQLite results database")
	migrationsDir = flag.String("migrations", "internal/db/migrations", "schema migrations directory")
	workers       = flag.Int("workers", 0, "worker pool size (0 uses config)")
	chunkSize     = flag.Int("chunk-size", 0, "events per chunk (0 uses config)")
	label         = flag.String("label", "", "run label recorded with the results")
	devMode       = flag.Bool("dev", false, "generate synthetic events instead of reading fixture files")
	devEvents     = flag.Int("dev-events", 10000, "synthetic events per unit file in dev mode")
	devSeed       = flag.Uint64("dev-seed", 0, "base seed for synthetic generation in dev mode")
)

func main() {
	flag.Parse()

	var cfg *config.AnalysisConfig
	if *configPath == "" {
		cfg = config.MustLoadDefaultConfig()
	} else {
		var err error
		cfg, err = config.LoadAnalysisConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	if len(cfg.Units) == 0 {
		log.Fatal("Config defines no processing units")
	}

	database, err := db.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()
	if err := database.MigrateUp(*migrationsDir); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	nWorkers := cfg.GetWorkers()
	if *workers > 0 {
		nWorkers = *workers
	}
	nChunk := cfg.GetChunkSize()
	if *chunkSize > 0 {
		nChunk = *chunkSize
	}

	cuts := selection.DefaultCuts()
	cuts.LeptonMinPt = cfg.GetLeptonMinPt()
	cuts.LeptonMaxAbsEta = cfg.GetLeptonMaxAbsEta()
	cuts.JetMinPt = cfg.GetJetMinPt()
	cuts.JetMaxAbsEta = cfg.GetJetMaxAbsEta()

	processor := &variation.ChunkProcessor{
		Cuts:          cuts,
		BTagThreshold: cfg.GetBTagThreshold(),
		Luminosity:    cfg.GetLuminosity(),
		Corrections:   corrections.DefaultSet(),
		HistBins:      cfg.GetHistBins(),
		HistLow:       cfg.GetHistLow(),
		HistHigh:      cfg.GetHistHigh(),
		PtScaleFactor: variation.DefaultPtScaleFactor,
		ResSmearSigma: variation.DefaultResSmearSigma,
	}

	var src source.EventSource
	if *devMode {
		src = &source.SyntheticSource{EventsPerFile: *devEvents, Seed: *devSeed}
	} else {
		src = source.NewFixtureSource()
	}

	units := make([]source.Unit, len(cfg.Units))
	for i, u := range cfg.Units {
		units[i] = source.Unit{
			Name:       u.Name,
			Process:    u.Process,
			Variation:  u.Variation,
			XSec:       u.XSec,
			NEvtsTotal: u.NEvtsTotal,
			IsData:     u.IsData,
			Files:      u.Files,
		}
	}

	runStore := storage.NewRunStore(database.DB)
	histStore := storage.NewHistogramStore(database.DB)

	configJSON, err := json.Marshal(cfg)
	if err != nil {
		log.Fatalf("Failed to encode config snapshot: %v", err)
	}
	run := &storage.AnalysisRun{Label: *label, ConfigJSON: configJSON}
	if err := runStore.Insert(run); err != nil {
		log.Fatalf("Failed to record run: %v", err)
	}
	log.Printf("Run %s: %d units, %d workers, chunk size %d", run.RunID, len(units), nWorkers, nChunk)

	r := &runner.Runner{
		Source:    src,
		Processor: processor,
		Workers:   nWorkers,
		ChunkSize: nChunk,
	}

	acc, report, err := r.Run(ctx, units)
	if err != nil {
		run.Status = storage.RunStatusFailed
		if ferr := runStore.Finish(run); ferr != nil {
			log.Printf("Failed to mark run failed: %v", ferr)
		}
		log.Fatalf("Analysis failed: %v", err)
	}

	if err := histStore.SaveAccumulator(run.RunID, acc); err != nil {
		run.Status = storage.RunStatusFailed
		if ferr := runStore.Finish(run); ferr != nil {
			log.Printf("Failed to mark run failed: %v", ferr)
		}
		log.Fatalf("Failed to save histograms: %v", err)
	}

	run.Units = report.Units
	run.Chunks = report.Chunks
	run.ProcessedChunks = report.Processed
	run.SkippedChunks = report.Skipped
	run.Events = report.Events
	run.Status = storage.RunStatusComplete
	if err := runStore.Finish(run); err != nil {
		log.Fatalf("Failed to finish run: %v", err)
	}

	log.Printf("Run %s complete: %d/%d chunks (%d skipped), %d events, %d histograms",
		run.RunID, report.Processed, report.Chunks, report.Skipped, report.Events, len(acc.Keys()))
}
