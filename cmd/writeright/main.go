package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/writeright/writeright/internal/auth"
	"github.com/writeright/writeright/internal/batch"
	"github.com/writeright/writeright/internal/config"
	"github.com/writeright/writeright/internal/engine"
	"github.com/writeright/writeright/internal/game"
	"github.com/writeright/writeright/internal/generator"
	"github.com/writeright/writeright/internal/llm"
	"github.com/writeright/writeright/internal/sched"
	"github.com/writeright/writeright/internal/storage"
	"github.com/writeright/writeright/internal/store"
	"github.com/writeright/writeright/internal/web"
	"github.com/writeright/writeright/internal/words"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "writeright",
		Short: "Adaptive Chinese character learning backend",
		RunE:  run,
	}

	f := rootCmd.Flags()
	f.Int("port", 8080, "HTTP port for the API")
	f.String("database-url", "postgres://localhost:5432/writeright", "PostgreSQL connection string")
	f.Bool("migrate", true, "apply pending schema migrations on startup")
	f.String("model", "claude-3-5-haiku-latest", "model used for question generation")
	f.Int("max-tokens", 1000, "default max tokens per generation request")
	f.Int("batch-size", 5, "characters coalesced into one generation request")
	f.Int("batch-max-wait-ms", 200, "max milliseconds a generation request waits to fill a batch")
	f.Bool("use-accuracy", false, "let per-question accuracy influence selection scores")
	f.String("blob-base-url", "http://localhost:9000", "base URL of the blob store")
	f.String("recognizer-base-url", "http://localhost:9100", "base URL of the handwriting recognizer")
	f.String("dict-api-base", "", "dictionary API base URL (empty uses the built-in default)")
	f.String("dict-audio-base", "", "dictionary audio base URL (empty uses the built-in default)")
	f.String("pepper", "", "server-side password pepper (required outside dev mode)")
	f.Bool("dev-mode", false, "enable @example.com login shortcuts and relax the pepper requirement")

	// Bind flags to viper. Viper keys use underscores (database_url) so
	// they match the env var suffix after stripping the WRITERIGHT_ prefix.
	bindFlag := func(viperKey, flagName string) {
		_ = viper.BindPFlag(viperKey, f.Lookup(flagName))
	}
	bindFlag("port", "port")
	bindFlag("database_url", "database-url")
	bindFlag("migrate", "migrate")
	bindFlag("model", "model")
	bindFlag("max_tokens", "max-tokens")
	bindFlag("batch_size", "batch-size")
	bindFlag("batch_max_wait_ms", "batch-max-wait-ms")
	bindFlag("use_accuracy", "use-accuracy")
	bindFlag("blob_base_url", "blob-base-url")
	bindFlag("recognizer_base_url", "recognizer-base-url")
	bindFlag("dict_api_base", "dict-api-base")
	bindFlag("dict_audio_base", "dict-audio-base")
	bindFlag("pepper", "pepper")
	bindFlag("dev_mode", "dev-mode")

	// WRITERIGHT_DATABASE_URL -> "database_url", and so on.
	viper.SetEnvPrefix("WRITERIGHT")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	fmt.Printf("WriteRight %s starting\n", config.Version)
	fmt.Printf("  Port: :%d\n", cfg.Port)
	fmt.Printf("  Model: %s\n", cfg.Model)
	fmt.Printf("  Batch: %d questions / %dms\n", cfg.BatchSize, cfg.BatchMaxWaitMS)
	fmt.Printf("  Dev mode: %t\n", cfg.DevMode)
	fmt.Println()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	if cfg.Migrate {
		if err := st.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	blob := storage.NewClient(cfg.BlobBaseURL)
	recognizer := storage.NewRecognizer(cfg.RecognizerBaseURL)

	catalog := words.NewService(st, words.NewDictScraper(cfg.DictAPIBase, cfg.DictAudioBase))
	wrongWords := words.NewWrongWordService(st, catalog)

	mgr := batch.NewManager()
	gen, err := generator.New(st, catalog, llm.New(cfg.Model, int64(cfg.MaxTokens)), blob, mgr,
		cfg.BatchSize, time.Duration(cfg.BatchMaxWaitMS)*time.Millisecond, int64(cfg.MaxTokens))
	if err != nil {
		return fmt.Errorf("build generator: %w", err)
	}

	engCfg := engine.DefaultConfig()
	engCfg.UseAccuracy = cfg.UseAccuracy
	selector := engine.New(engCfg, st, wrongWords, catalog, gen, blob)

	authSvc, err := auth.New(st, cfg.Pepper, cfg.DevMode)
	if err != nil {
		return err
	}
	games := game.New(st, blob)

	scheduler := sched.New(
		sched.GameSessionCleanup(st, sched.GameCleanupInterval),
		sched.AuthSessionCleanup(st, sched.AuthCleanupInterval),
		sched.PoolRefresh(st, sched.PoolRefreshInterval),
	)
	if err := scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	srv := web.New(cfg.Port, web.Deps{
		Auth:       authSvc,
		Selector:   selector,
		Games:      games,
		WrongWords: wrongWords,
		Files:      blob,
		Recognizer: recognizer,
		DB:         st,
	})
	go func() {
		if err := srv.Start(); err != nil {
			log.Printf("web server error: %v", err)
			cancel()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	select {
	case sig := <-sigCh:
		log.Printf("received %s, shutting down...", sig)
	case <-ctx.Done():
	}

	// Stop taking requests first, then drain the background machinery.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("web server shutdown: %v", err)
	}
	scheduler.Stop()
	gen.Shutdown(shutdownCtx)
	st.PrepareForShutdown(5 * time.Second)

	return nil
}
