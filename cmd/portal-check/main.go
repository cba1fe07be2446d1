package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"integration-school-portal/internal/cache"
	"integration-school-portal/internal/config"
	"integration-school-portal/internal/excel"
	"integration-school-portal/internal/logger"
	"integration-school-portal/internal/model"
	"integration-school-portal/internal/retrieval"
	"integration-school-portal/internal/storage"
	"integration-school-portal/internal/vault"
	"integration-school-portal/internal/worker"
	perrors "integration-school-portal/pkg/errors"

	"golang.org/x/term"
)

func main() {
	identifier := flag.String("identifier", "", "portal login; empty uses the stored credentials")
	week := flag.String("week", "", "any date (YYYY-MM-DD) inside the timetable week; empty means the current week")
	remember := flag.Bool("remember", false, "store the credentials in the vault after a successful login")
	forget := flag.Bool("forget", false, "remove stored credentials and exit")
	xlsx := flag.String("xlsx", "", "also write the result as an XLSX workbook to this path")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.Logging.Level, "console")
	log := logger.Get()

	if cfg.Vault.Backend == "redis" || cfg.Cache.Backend == "redis" {
		log.Warn().Msg("Redis backends are not used by portal-check, falling back to file vault and memory cache")
		cfg.Vault.Backend, cfg.Cache.Backend = "file", "memory"
	}
	store, err := storage.New(cfg, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize vault storage")
	}
	timetableCache, err := cache.New(cfg, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize timetable cache")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pool := worker.NewWorkerPool("prefetch", cfg.Workers.Prefetch)
	pool.Start(ctx)
	defer pool.Stop()

	service := retrieval.NewService(cfg, vault.New(store, cfg.Vault), timetableCache, pool)

	if *forget {
		if err := service.ForgetCredentials(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to clear credentials")
		}
		log.Info().Msg("Stored credentials removed")
		return
	}

	var weekStart time.Time
	if *week != "" {
		if weekStart, err = model.ParseWeek(*week); err != nil {
			log.Fatal().Err(err).Msg("Invalid week")
		}
	}

	var result *model.RetrievalResult
	if *identifier == "" {
		result, err = service.RetrieveStored(ctx, weekStart)
	} else {
		secret, perr := readSecret()
		if perr != nil {
			log.Fatal().Err(perr).Msg("Failed to read password")
		}
		cred := model.Credential{Identifier: *identifier, Secret: secret}
		result, err = service.Retrieve(ctx, cred, weekStart, *remember)
	}

	switch {
	case errors.Is(err, perrors.ErrNoStoredCredentials):
		log.Fatal().Msg("No stored credentials, pass -identifier")
	case errors.Is(err, perrors.ErrAuthRejected):
		log.Fatal().Err(err).Msg("Portal rejected the credentials")
	case err != nil:
		log.Fatal().Err(err).Bool("retryable", perrors.IsRetryable(err)).Msg("Retrieval failed")
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		log.Fatal().Err(err).Msg("Failed to write result")
	}

	if *xlsx != "" {
		data, err := excel.NewExporter().Export(model.NewSnapshot(*identifier, result))
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to export workbook")
		}
		if err := os.WriteFile(*xlsx, data, 0o600); err != nil {
			log.Fatal().Err(err).Msg("Failed to write workbook")
		}
		log.Info().Str("path", *xlsx).Msg("Workbook written")
	}
}

// readSecret prompts without echo on a terminal and otherwise reads
// PORTAL_SECRET or the first line of stdin.
func readSecret() (string, error) {
	if s := os.Getenv("PORTAL_SECRET"); s != "" {
		return s, nil
	}
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, "Password: ")
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		return string(b), err
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
