// Package main verifies stored selection audits by replaying their draws.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"solana-round-selector/internal/domain"
	"solana-round-selector/internal/logging"
	"solana-round-selector/internal/selector"
	"solana-round-selector/internal/storage"
	"solana-round-selector/internal/storage/memory"
	pgstore "solana-round-selector/internal/storage/postgres"
	"solana-round-selector/internal/verification"
)

func main() {
	roundID := flag.String("round-id", "", "Round ID to verify")
	fromTime := flag.String("from-time", "", "Start of the snapshot range (RFC3339)")
	toTime := flag.String("to-time", "", "End of the snapshot range (RFC3339)")
	auditFile := flag.String("audit-file", "", "JSON file holding one audit or an array of audits")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("SELECTOR_STORAGE_POSTGRES_DSN"), "PostgreSQL connection string")
	engineVersion := flag.String("engine-version", selector.EngineVersion, "Expected engine version, empty to skip the check")
	outputJSON := flag.Bool("json", false, "Output as JSON instead of YAML")
	logLevel := flag.String("log-level", "warn", "Log level")

	flag.Parse()

	logger, err := logging.New(*logLevel, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", zap.Stringer("signal", sig))
		cancel()
	}()

	var store storage.AuditStore
	switch {
	case *auditFile != "":
		audits, err := loadAuditFile(*auditFile)
		if err != nil {
			logger.Fatal("load audit file", zap.Error(err))
		}
		mem := memory.NewAuditStore()
		for _, a := range audits {
			if err := mem.Insert(ctx, a); err != nil {
				logger.Fatal("load audit", zap.String("round_id", a.RoundID), zap.Error(err))
			}
		}
		store = mem
	case *postgresDSN != "":
		pool, err := pgstore.NewPool(ctx, *postgresDSN)
		if err != nil {
			logger.Fatal("connect to postgres", zap.Error(err))
		}
		defer pool.Close()
		store = pgstore.NewAuditStore(pool)
	default:
		logger.Fatal("--audit-file or --postgres-dsn is required")
	}

	verifier := verification.NewAuditVerifier(store, *engineVersion, logger)

	var report *verification.VerificationReport
	switch {
	case *roundID != "":
		res, err := verifier.VerifyRound(ctx, *roundID)
		if err != nil {
			logger.Fatal("verify round", zap.Error(err))
		}
		report = singleReport(res)
	case *fromTime != "" && *toTime != "":
		from, to, err := parseRange(*fromTime, *toTime)
		if err != nil {
			logger.Fatal("parse range", zap.Error(err))
		}
		report, err = verifier.VerifyRange(ctx, from, to)
		if err != nil {
			logger.Fatal("verify range", zap.Error(err))
		}
	case *fromTime != "" || *toTime != "":
		logger.Fatal("both --from-time and --to-time must be specified together")
	default:
		logger.Fatal("--round-id or --from-time/--to-time is required")
	}

	if err := writeReport(os.Stdout, report, *outputJSON); err != nil {
		logger.Fatal("write report", zap.Error(err))
	}

	if report.DivergentAudits > 0 {
		os.Exit(2)
	}
}

// loadAuditFile reads one audit object or an array of audits.
func loadAuditFile(path string) ([]*domain.SelectionAudit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New("audit file is empty")
	}

	if trimmed[0] == '[' {
		var audits []*domain.SelectionAudit
		if err := json.Unmarshal(trimmed, &audits); err != nil {
			return nil, fmt.Errorf("decode audits: %w", err)
		}
		return audits, nil
	}

	var a domain.SelectionAudit
	if err := json.Unmarshal(trimmed, &a); err != nil {
		return nil, fmt.Errorf("decode audit: %w", err)
	}
	return []*domain.SelectionAudit{&a}, nil
}

func parseRange(from, to string) (time.Time, time.Time, error) {
	start, err := time.Parse(time.RFC3339, from)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse from-time: %w", err)
	}
	end, err := time.Parse(time.RFC3339, to)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse to-time: %w", err)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("to-time %s is before from-time %s", to, from)
	}
	return start, end, nil
}

func singleReport(res *verification.VerificationResult) *verification.VerificationReport {
	report := &verification.VerificationReport{
		TotalAudits: 1,
		Results:     []verification.VerificationResult{*res},
	}
	if res.Match {
		report.MatchedAudits = 1
	} else {
		report.DivergentAudits = 1
	}
	return report
}

func writeReport(w io.Writer, report *verification.VerificationReport, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return err
	}
	return enc.Close()
}
