package main

import (
	"flag"
	"log"
	"os"

	"FinCast/internal/di"
	"FinCast/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	artifact := flag.String("model", "", "model artifact path (overrides model.artifact_path)")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if *artifact != "" {
		cfg.Model.ArtifactPath = *artifact
	}

	log.Printf("env=%s source=%s cache=%s model=%s",
		cfg.Environment, cfg.Source.Driver, cfg.Cache.Mode, cfg.Model.ArtifactPath)

	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	if err := app.Run(); err != nil {
		log.Printf("fincast exited: %v", err)
		os.Exit(1)
	}
}
