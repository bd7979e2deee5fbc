package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"jobmarket/config"
	"jobmarket/core/events"
	"jobmarket/core/types"
	"jobmarket/native/arbitration"
	"jobmarket/native/escrow"
	"jobmarket/native/jobs"
	"jobmarket/observability/logging"
	"jobmarket/rpc"
	"jobmarket/state"
	"jobmarket/storage"
)

// slogEmitter forwards engine events onto the structured log so operators can
// follow the job lifecycle without a separate event sink.
type slogEmitter struct {
	logger *slog.Logger
}

func (e slogEmitter) Emit(evt events.Event) {
	payload, ok := evt.(interface{ Event() *types.Event })
	if !ok {
		e.logger.Info(evt.EventType())
		return
	}
	event := payload.Event()
	if event == nil {
		return
	}
	attrs := make([]any, 0, len(event.Attributes))
	for key, value := range event.Attributes {
		attrs = append(attrs, slog.String(key, value))
	}
	e.logger.Info(event.Type, attrs...)
}

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("JOBMARKET_ENV"))

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	if env == "" {
		env = cfg.Environment
	}
	logger := logging.Setup(cfg.ServiceName, env)

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	manager := state.NewManager(db)
	ledger := escrow.NewLedger(manager)
	emitter := slogEmitter{logger: logger}

	jobsEngine := jobs.NewEngine()
	jobsEngine.SetState(manager)
	jobsEngine.SetLedger(ledger)
	jobsEngine.SetEmitter(emitter)
	jobsEngine.SetCancellationFeeBps(cfg.CancellationFeeBps)

	arbitrationEngine := arbitration.NewEngine()
	arbitrationEngine.SetState(manager)
	arbitrationEngine.SetLedger(ledger)
	arbitrationEngine.SetLocks(jobsEngine.Locks())
	arbitrationEngine.SetEmitter(emitter)
	arbitrationEngine.SetArbitrationFeeBps(cfg.ArbitrationFeeBps)

	server := rpc.NewServer(jobsEngine, arbitrationEngine)

	logger.Info("starting jobmarket daemon",
		slog.String("rpc_address", cfg.RPCAddress),
		slog.String("data_dir", cfg.DataDir),
	)
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("RPC server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
