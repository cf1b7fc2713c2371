package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/jengzang/svi-coverage-go/internal/analysis"
	"github.com/jengzang/svi-coverage-go/internal/api"
	"github.com/jengzang/svi-coverage-go/internal/config"
	"github.com/jengzang/svi-coverage-go/internal/database"
	"github.com/jengzang/svi-coverage-go/internal/handler"
	"github.com/jengzang/svi-coverage-go/internal/repository"
	"github.com/jengzang/svi-coverage-go/internal/service"

	// Import step packages to register them
	_ "github.com/jengzang/svi-coverage-go/internal/analysis/annotation"
	_ "github.com/jengzang/svi-coverage-go/internal/analysis/foundation"
	_ "github.com/jengzang/svi-coverage-go/internal/analysis/spatial"
	_ "github.com/jengzang/svi-coverage-go/internal/analysis/stats"
	_ "github.com/jengzang/svi-coverage-go/internal/analysis/temporal"
	_ "github.com/jengzang/svi-coverage-go/internal/analysis/viz"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: svi [-env file] <command>\n\ncommands:\n")
	for _, name := range analysis.StepNames() {
		fmt.Fprintf(os.Stderr, "  %s\n", name)
	}
	fmt.Fprintf(os.Stderr, "  serve\n  steps\n")
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	envFile := flag.String("env", ".env", "dotenv file loaded before reading the environment")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() != 1 {
		usage()
		os.Exit(2)
	}

	// 加载 .env
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("Failed to load %s: %v", *envFile, err)
	}

	// 加载配置
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, flag.Arg(0)); err != nil {
		stop()
		log.Fatalf("%v", err)
	}
}

func run(ctx context.Context, cfg *config.Config, command string) error {
	if command == "steps" {
		fmt.Println(strings.Join(analysis.StepNames(), "\n"))
		return nil
	}

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	if command == "serve" {
		return serve(ctx, cfg, db)
	}

	step, err := analysis.GetStep(command, cfg, db)
	if err != nil {
		return err
	}

	var recorder analysis.RunRecorder
	if db != nil {
		recorder = repository.NewRunRepository(db)
	}

	progress, err := analysis.Execute(ctx, step, recorder)
	if err != nil {
		return err
	}
	log.Printf("[CLI] %s: %s", command, progress.Message)
	return nil
}

// openDB returns nil when no results database is configured
func openDB(cfg *config.Config) (*sql.DB, error) {
	if cfg.DBPath == "" {
		return nil, nil
	}
	// 初始化数据库
	db, err := database.Open(database.Config{Path: cfg.DBPath})
	if err != nil {
		return nil, fmt.Errorf("failed to open results database: %w", err)
	}
	return db, nil
}

func serve(ctx context.Context, cfg *config.Config, db *sql.DB) error {
	if db == nil {
		return errors.New("serve requires DB_PATH")
	}

	svc := service.NewCoverageService(repository.NewResultsRepository(db), repository.NewRunRepository(db))
	router := api.SetupRouter(cfg, handler.NewCoverageHandler(svc))

	srv := &http.Server{
		Addr:              cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server starting on port %s", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}

	log.Printf("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}
