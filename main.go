package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"sleepanalysis/adapters/postgres"
	"sleepanalysis/api"
	"sleepanalysis/internal/causal"
	"sleepanalysis/internal/config"
	"sleepanalysis/internal/optimize"
)

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	gin.SetMode(appConfig.Server.GinMode)

	causalCfg := causal.Config{
		BootstrapResamples: appConfig.Analysis.BootstrapResamples,
		Seed:               appConfig.Analysis.Seed,
	}
	optimizerCfg := optimize.Config{
		Seed:             appConfig.Analysis.Seed,
		SearchCandidates: appConfig.Analysis.SearchCandidates,
		Population:       appConfig.Analysis.ParetoPopulation,
		Generations:      appConfig.Analysis.ParetoGenerations,
		MaxConcurrent:    4,
	}

	// Optional run archive. Without DATABASE_URL the service is stateless.
	archive, err := postgres.NewArchive(context.Background(), appConfig.Database.URL)
	if err != nil {
		log.Fatalf("Failed to initialize run archive: %v", err)
	}
	if archive.Enabled() {
		defer archive.Close()
	}

	server := api.NewServer(causalCfg, optimizerCfg, archive)
	if appConfig.Paths.ExcelFile != "" {
		server.SetDefaultWorkbook(appConfig.Paths.ExcelFile)
	}
	if err := server.Start(":" + appConfig.Server.Port); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
