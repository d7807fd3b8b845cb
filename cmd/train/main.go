package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"FinCast/internal/di"
	"FinCast/internal/domain/models"
	internalrepo "FinCast/internal/repository"
	"FinCast/internal/services/forecast"
	"FinCast/internal/usecase"
	"FinCast/pkg/config"
	xhttp "FinCast/pkg/http"
	applogger "FinCast/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	asset := flag.String("asset", "", "train on one asset type only")
	export := flag.String("export", "", "write the loaded dataset to this parquet file")
	importCSV := flag.String("import-csv", "", "import this csv file into sqlite.path and exit")
	notify := flag.String("notify", "", "base URL of a running server to reload after training")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	l, err := di.ProvideLogger(cfg)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *importCSV != "" {
		if err := importToSQLite(ctx, cfg, *importCSV, l); err != nil {
			l.Error("csv import failed", applogger.Error(err))
			os.Exit(1)
		}
		return
	}

	if err := run(ctx, cfg, *asset, *export, *notify, l); err != nil {
		l.Error("training failed", applogger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, asset, export, notify string, l *applogger.Logger) error {
	src, err := di.ProvideRecordSource(cfg, l)
	if err != nil {
		return err
	}
	defer src.Close()
	loader := di.ProvideLoader(src, cfg, l)

	training, err := di.ProvideTrainingConfig(cfg)
	if err != nil {
		return err
	}

	if export != "" {
		series, err := loader.Load(ctx)
		if err != nil {
			return err
		}
		if err := internalrepo.WriteParquet(export, series); err != nil {
			return fmt.Errorf("export dataset: %w", err)
		}
		l.Info("dataset exported", applogger.String("path", export), applogger.Int("assets", len(series)))
	}

	var warm *forecast.Model
	if training.Resume {
		if prev, err := forecast.LoadArtifact(cfg.Model.ArtifactPath); err == nil && prev.Framing == training.Builder.Mode {
			if warm, err = prev.Model(); err == nil {
				l.Info("resuming from artifact", applogger.Time("trained_at", prev.TrainedAt))
			}
		}
	}

	a, err := usecase.RunTraining(ctx, loader, asset, training, warm, l)
	if err != nil {
		return err
	}
	if err := forecast.SaveArtifact(cfg.Model.ArtifactPath, a); err != nil {
		return err
	}

	fmt.Printf("test MSE: %.6f (train %.6f, val %.6f, %d samples)\n",
		a.Report.TestMSE, a.Report.TrainMSE, a.Report.ValMSE, a.Report.Samples)
	l.Info("artifact written", applogger.String("path", cfg.Model.ArtifactPath))

	if notify != "" {
		return notifyServer(ctx, notify, l)
	}
	return nil
}

// notifyServer makes a running server load the new artifact and reads back
// what it is now serving.
func notifyServer(ctx context.Context, base string, l *applogger.Logger) error {
	client := xhttp.NewClient(base, xhttp.WithTimeout(10*time.Second), xhttp.WithAttempts(3))

	var reloaded models.ModelInfo
	if err := client.Post(ctx, "/api/model/reload", nil, &reloaded); err != nil {
		return fmt.Errorf("reload %s: %w", base, err)
	}
	var serving models.ModelInfo
	if err := client.Get(ctx, "/api/model", &serving); err != nil {
		return fmt.Errorf("model info %s: %w", base, err)
	}
	if !serving.TrainedAt.Equal(reloaded.TrainedAt) {
		return fmt.Errorf("server at %s is serving a model trained at %s, not %s",
			base, serving.TrainedAt.Format(time.RFC3339), reloaded.TrainedAt.Format(time.RFC3339))
	}

	fmt.Printf("server %s now serves %s (window %d, test MSE %.6f)\n",
		base, serving.Framing, serving.WindowSize, serving.TestMSE)
	l.Info("server reloaded", applogger.String("url", base), applogger.Time("trained_at", serving.TrainedAt))
	return nil
}

// importToSQLite copies a csv dataset into the sqlite records table.
func importToSQLite(ctx context.Context, cfg *config.Config, path string, l *applogger.Logger) error {
	if cfg.SQLite.Path == "" {
		return fmt.Errorf("sqlite.path is not configured")
	}
	csvSrc, err := internalrepo.NewFileRecordSource(path, internalrepo.FormatCSV)
	if err != nil {
		return err
	}
	csvSrc.SetLogger(l)

	cols, err := csvSrc.Columns(ctx)
	if err != nil {
		return err
	}
	if missing := internalrepo.MissingColumns(cols); len(missing) > 0 {
		return &models.DataSourceError{Op: "import", Missing: missing}
	}
	rows, err := csvSrc.Fetch(ctx, "")
	if err != nil {
		return err
	}

	db, err := internalrepo.NewSQLiteRecordSource(cfg.SQLite.Path, cfg.Source.Table)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		return err
	}
	if err := db.Import(ctx, rows); err != nil {
		return err
	}
	l.Info("csv imported",
		applogger.String("csv", path),
		applogger.String("sqlite", cfg.SQLite.Path),
		applogger.Int("rows", len(rows)))
	return nil
}
