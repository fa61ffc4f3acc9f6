package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ethereum/go-ethereum/common"

	"github.com/jpark-fi/onbook/params"
	"github.com/jpark-fi/onbook/pkg/api"
	"github.com/jpark-fi/onbook/pkg/core/engine"
	"github.com/jpark-fi/onbook/pkg/core/ordertable"
	"github.com/jpark-fi/onbook/pkg/ledger"
	"github.com/jpark-fi/onbook/pkg/storage"
	"github.com/jpark-fi/onbook/pkg/util"
)

func main() {
	cfg := params.LoadFromEnv("") // "" means load .env from the current directory

	logger, err := util.NewLoggerWithFile(cfg.Node.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Node.LogFile)

	if !common.IsHexAddress(cfg.Fees.Setter) {
		sugar.Fatalw("invalid_fee_setter", "value", cfg.Fees.Setter)
	}
	feeSetter := common.HexToAddress(cfg.Fees.Setter)

	// ---- Event journal (the engine's only persisted history) ----
	journalPath := filepath.Join(cfg.Node.DataDir, "events.db")
	journal, err := storage.OpenEventLog(journalPath, sugar)
	if err != nil {
		sugar.Fatalw("event_log_open_failed", "path", journalPath, "err", err)
	}
	defer journal.Close()
	sugar.Infow("event_log_opened", "path", journalPath, "last_seq", journal.Seq())

	// ---- Engine ----
	led := ledger.NewInMemory()
	table := ordertable.NewTable()
	eng := engine.New(table, led, feeSetter)
	eng.Logger = sugar

	srv := api.NewServer(eng)
	eng.Sink = engine.MultiSink{journal, srv.EventSink()}

	if cfg.Fees.Recipient != "" {
		if !common.IsHexAddress(cfg.Fees.Recipient) {
			sugar.Fatalw("invalid_fee_recipient", "value", cfg.Fees.Recipient)
		}
		if err := eng.SetFeeRecipient(feeSetter, common.HexToAddress(cfg.Fees.Recipient)); err != nil {
			sugar.Fatalw("set_fee_recipient_failed", "err", err)
		}
		sugar.Infow("fees_enabled", "recipient", cfg.Fees.Recipient)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(cfg.API.Addr) }()
	sugar.Infow("onbook_started", "api_addr", cfg.API.Addr, "fee_setter", feeSetter.Hex())

	select {
	case <-ctx.Done():
		sugar.Info("shutdown signal received")
	case err := <-errCh:
		sugar.Errorw("api_server_stopped", "err", err)
	}
}
