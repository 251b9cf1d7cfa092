package main

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	dbm "github.com/cometbft/cometbft-db"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Legatia/deflow/pkg/apperrors"
	"github.com/Legatia/deflow/pkg/authorization"
	"github.com/Legatia/deflow/pkg/chain"
	"github.com/Legatia/deflow/pkg/config"
	"github.com/Legatia/deflow/pkg/database"
	"github.com/Legatia/deflow/pkg/engine"
	"github.com/Legatia/deflow/pkg/eventbus"
	"github.com/Legatia/deflow/pkg/feeestimator"
	"github.com/Legatia/deflow/pkg/kvdb"
	"github.com/Legatia/deflow/pkg/notify"
	"github.com/Legatia/deflow/pkg/pool"
	"github.com/Legatia/deflow/pkg/portfolio"
	"github.com/Legatia/deflow/pkg/risk"
	"github.com/Legatia/deflow/pkg/scheduler"
	"github.com/Legatia/deflow/pkg/signing"
	"github.com/Legatia/deflow/pkg/snapshot"
	"github.com/Legatia/deflow/pkg/spending"
	"github.com/Legatia/deflow/pkg/store"
	"github.com/Legatia/deflow/pkg/treasury"
	"github.com/Legatia/deflow/pkg/utxo"
	"github.com/Legatia/deflow/pkg/workflow"
)

// HealthStatus tracks the health of every wired component for the /health
// endpoint. Degraded components keep the service serving traffic; a
// disconnected critical component flips the overall status to "error".
type HealthStatus struct {
	Status        string `json:"status"`
	Database      string `json:"database"`
	KVStore       string `json:"kv_store"`
	Firestore     string `json:"firestore"`
	Scheduler     string `json:"scheduler"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	startTime     time.Time
	mu            sync.RWMutex
}

var healthStatus = &HealthStatus{
	Status:    "starting",
	Database:  "unknown",
	KVStore:   "unknown",
	Firestore: "unknown",
	Scheduler: "unknown",
	startTime: time.Now(),
}

func (h *HealthStatus) set(field *string, value string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	*field = value
	h.updateOverallStatus()
}

func (h *HealthStatus) updateOverallStatus() {
	if h.Database == "disconnected" || h.KVStore == "disconnected" {
		h.Status = "error"
		return
	}
	if h.Firestore == "disabled" || h.Scheduler != "running" {
		h.Status = "degraded"
		return
	}
	h.Status = "ok"
}

func (h *HealthStatus) ToJSON() []byte {
	h.mu.Lock()
	h.UptimeSeconds = int64(time.Since(h.startTime).Seconds())
	h.mu.Unlock()

	h.mu.RLock()
	defer h.mu.RUnlock()
	data, _ := json.Marshal(h)
	return data
}

func main() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.Printf("starting DeFlow automation service")

	var (
		nodeID   = flag.String("node-id", "", "Node ID (overrides NODE_ID env var)")
		showHelp = flag.Bool("help", false, "Show help message")
	)
	flag.Parse()

	if *showHelp {
		printHelp()
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load configuration:", err)
	}
	if *nodeID != "" {
		cfg.ValidatorID = *nodeID
	}
	log.Printf("node id: %s", cfg.ValidatorID)

	// --- Durable KV store backing workflows/executions/schedules ---
	goLevelDB, err := dbm.NewGoLevelDB("deflow", cfg.KVDataDir)
	if err != nil {
		healthStatus.set(&healthStatus.KVStore, "disconnected")
		log.Fatal("failed to open KV store:", err)
	}
	healthStatus.set(&healthStatus.KVStore, "connected")
	kv := kvdb.NewKVAdapter(goLevelDB)
	workflowStore := store.NewWorkflowStore(kv)
	log.Printf("KV store opened at %s", cfg.KVDataDir)

	// --- Chain registry (Bitcoin/EVM family/Solana adapters) ---
	chainRegistry, err := chain.NewDefaultRegistry(cfg.BitcoinNetwork)
	if err != nil {
		log.Fatal("failed to build chain registry:", err)
	}

	// --- Signing oracle deriving per-user addresses without local keys ---
	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		log.Fatal("failed to seed signing oracle:", err)
	}
	oracle := signing.NewLocalOracle(seed)

	// --- Database connection for treasury/pool audit trails ---
	var dbClient *database.Client
	var repos *database.Repositories
	dbClient, err = database.NewClient(cfg, database.WithLogger(
		log.New(log.Writer(), "[database] ", log.LstdFlags),
	))
	if err != nil {
		if cfg.DatabaseRequired {
			log.Fatalf("database connection required but failed: %v", err)
		}
		log.Printf("warning: database connection failed, audit trail disabled: %v", err)
		healthStatus.set(&healthStatus.Database, "disconnected")
	} else {
		healthStatus.set(&healthStatus.Database, "connected")
		if err := dbClient.MigrateUp(context.Background()); err != nil {
			log.Printf("warning: database migration failed: %v", err)
		}
		repos = database.NewRepositories(dbClient)
	}

	// --- Firestore-backed notification channel (optional) ---
	var firestoreChannel *notify.FirestoreChannel
	if cfg.FirestoreEnabled {
		firestoreChannel, err = notify.NewFirestoreChannel(context.Background(), notify.FirestoreConfig{
			ProjectID:       cfg.FirebaseProjectID,
			CredentialsFile: cfg.FirebaseCredentialsFile,
			Enabled:         true,
			Logger:          log.New(log.Writer(), "[firestore] ", log.LstdFlags),
		})
		if err != nil {
			log.Printf("warning: firestore channel init failed: %v", err)
			healthStatus.set(&healthStatus.Firestore, "disconnected")
		} else {
			healthStatus.set(&healthStatus.Firestore, "connected")
		}
	} else {
		healthStatus.set(&healthStatus.Firestore, "disabled")
	}

	// --- Starter workflow templates, cloned on demand via /api/templates ---
	templates, templateErrs := config.LoadTemplateDir(cfg.TemplateDir)
	for _, terr := range templateErrs {
		log.Printf("warning: skipping workflow template: %v", terr)
	}
	log.Printf("loaded %d workflow template(s) from %s", len(templates), cfg.TemplateDir)

	notifyChannels := []notify.Channel{notify.NewEmailChannel(log.New(log.Writer(), "[notify] ", log.LstdFlags))}
	if firestoreChannel != nil {
		notifyChannels = append(notifyChannels, firestoreChannel)
	}
	dispatcher := notify.NewDispatcher(log.New(log.Writer(), "[notify] ", log.LstdFlags), notifyChannels...)

	// --- Node-config schema registry (§4.2 check (b)), seeded into its own
	// durable region and reloaded from it on every boot ---
	nodeRegistry := loadNodeRegistry(workflowStore)
	validator := workflow.NewValidatorWithRegistry(nodeRegistry)

	// --- DeFi domain services, built before the executors so the transfer
	// executor can gate on risk and feed fees into the pool/treasury ---
	authService := authorization.NewService(oracle, 5*time.Minute)
	spendingLimiter := spending.NewLimiter()
	feeEstimator := feeestimator.NewEstimator(feeestimator.DefaultTTL)
	riskManager := risk.NewManager(250000.0)
	poolManager := pool.NewManager()
	poolState := pool.NewState()
	pool.ActivationThresholdUSD = cfg.PoolActivationThresholdUSD
	treasuryLedger := treasury.NewLedger(treasury.TeamHierarchy{
		OwnerPrincipal: cfg.TreasuryOwnerPrincipal,
	}, cfg.TreasuryMinDistributionUSD)

	executorLogger := log.New(log.Writer(), "[executors] ", log.LstdFlags)
	executors := buildExecutors(chainRegistry, oracle, authService, spendingLimiter, feeEstimator, riskManager, poolManager, poolState, treasuryLedger, executorLogger)
	execEngine := engine.NewEngine(workflowStore, executors, log.New(log.Writer(), "[engine] ", log.LstdFlags))

	// --- Scheduler for cron-triggered workflows ---
	sched, err := scheduler.NewScheduler(workflowStore, &scheduler.Config{
		CheckInterval: 15 * time.Second,
		Callback: func(ctx context.Context, workflowID uuid.UUID) error {
			wf, err := workflowStore.GetWorkflow(workflowID)
			if err != nil {
				return err
			}
			_, err = execEngine.Run(ctx, wf)
			return err
		},
		Logger: log.New(log.Writer(), "[scheduler] ", log.LstdFlags),
	})
	if err != nil {
		log.Fatal("failed to create scheduler:", err)
	}

	snapshotManager := snapshot.NewManager(workflowStore, log.New(log.Writer(), "[snapshot] ", log.LstdFlags))
	eventBus := eventbus.NewBus(func(ctx context.Context, l eventbus.Listener, evt eventbus.Event) {
		wf, err := workflowStore.GetWorkflow(mustParseUUID(l.WorkflowID))
		if err != nil {
			log.Printf("eventbus: workflow %s not found: %v", l.WorkflowID, err)
			return
		}
		if _, err := execEngine.Run(ctx, wf); err != nil {
			log.Printf("eventbus: execution of workflow %s failed: %v", l.WorkflowID, err)
		}
	}, log.New(log.Writer(), "[eventbus] ", log.LstdFlags))

	ctx, cancel := context.WithCancel(context.Background())
	poolState, treasuryLedger, err = snapshotManager.PostRestore(ctx, sched, poolState, treasuryLedger)
	if err != nil {
		log.Fatal("failed to restore pool/treasury state and start scheduler:", err)
	}
	healthStatus.set(&healthStatus.Scheduler, "running")
	log.Printf("scheduler running, checking every 15s")

	// --- Monthly treasury distribution job: checks every hour whether the
	// configured distribution cadence has elapsed, running the payout pass
	// and crediting every team member's earnings when it has ---
	go runTreasuryDistributionJob(ctx, treasuryLedger, log.New(log.Writer(), "[treasury] ", log.LstdFlags))

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if healthStatus.Status == "error" {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		w.Write(healthStatus.ToJSON())
	})
	mux.Handle("/metrics", promhttp.Handler())
	deps := &apiDeps{
		store:      workflowStore,
		engine:     execEngine,
		scheduler:  sched,
		validator:  validator,
		risk:       riskManager,
		pool:       poolManager,
		poolState:  poolState,
		treasury:   treasuryLedger,
		auth:       authService,
		spending:   spendingLimiter,
		bus:        eventBus,
		dispatcher: dispatcher,
		repos:      repos,
		registry:   chainRegistry,
		portfolio:  portfolio.NewAggregator(chainRegistry, oracle),
		templates:  templates,
		logger:     log.New(log.Writer(), "[api] ", log.LstdFlags),
	}
	registerAPI(mux, deps)

	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	go func() {
		log.Printf("DeFlow API listening on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("failed to start HTTP server:", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Printf("shutting down...")
	cancel()
	if err := sched.Stop(); err != nil {
		log.Printf("scheduler stop error: %v", err)
	}
	if err := snapshotManager.PreSnapshot(poolState, treasuryLedger); err != nil {
		log.Printf("pre-snapshot error: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("http server shutdown error: %v", err)
	}
	if firestoreChannel != nil {
		if err := firestoreChannel.Close(); err != nil {
			log.Printf("firestore channel close error: %v", err)
		}
	}
	if err := goLevelDB.Close(); err != nil {
		log.Printf("kv store close error: %v", err)
	}
	log.Printf("DeFlow service stopped")
}

func printHelp() {
	fmt.Println("deflow - DeFi workflow automation service")
	fmt.Println()
	fmt.Println("Usage: deflow [flags]")
	fmt.Println()
	fmt.Println("  -node-id string   Node ID (overrides NODE_ID env var)")
	fmt.Println("  -help             Show this help message")
	fmt.Println()
	fmt.Println("Configuration is read from environment variables; see pkg/config/config.go.")
}

// loadNodeRegistry seeds store.RegionNodeRegistry with the built-in node
// schemas (idempotent upsert, safe on every boot) and then reloads the full
// region, so any schema an operator persisted directly is honored too.
func loadNodeRegistry(s *store.WorkflowStore) *workflow.NodeRegistry {
	registry := workflow.DefaultNodeRegistry()
	for _, schema := range registry.Schemas() {
		if err := s.PutRegion(store.RegionNodeRegistry, schema.NodeType, schema); err != nil {
			log.Printf("warning: failed to seed node registry entry %q: %v", schema.NodeType, err)
		}
	}
	if err := s.ListRegion(store.RegionNodeRegistry, func(id string, rawJSON []byte) bool {
		var schema workflow.NodeSchema
		if err := json.Unmarshal(rawJSON, &schema); err != nil {
			log.Printf("warning: failed to decode node registry entry %q: %v", id, err)
			return true
		}
		registry.Register(schema)
		return true
	}); err != nil {
		log.Printf("warning: failed to load node registry: %v", err)
	}
	return registry
}

// runTreasuryDistributionJob checks hourly whether ledger's configured
// distribution cadence has elapsed, crediting team earnings and logging the
// run when it has. Exits when ctx is cancelled.
func runTreasuryDistributionJob(ctx context.Context, ledger *treasury.Ledger, logger *log.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ledger.CheckAndExecuteDistribution(time.Now()); err != nil {
				logger.Printf("distribution check: %v", err)
			}
		}
	}
}

// buildExecutors wires a chain-adapter-backed NodeExecutor for each workflow
// action node type the engine understands. The transfer executor runs the
// full DeFi action gate chain from spec §7: spending limit, authorization,
// risk assessment, chain execution, then the pool fee deposit that feeds
// the treasury ledger.
func buildExecutors(
	registry *chain.Registry,
	oracle signing.Oracle,
	authService *authorization.Service,
	spendingLimiter *spending.Limiter,
	feeEstimator *feeestimator.Estimator,
	riskManager *risk.Manager,
	poolManager *pool.Manager,
	poolState *pool.State,
	treasuryLedger *treasury.Ledger,
	logger *log.Logger,
) map[string]engine.NodeExecutor {
	return map[string]engine.NodeExecutor{
		"action.derive_address": engine.NodeExecutorFunc(func(ctx context.Context, node workflow.Node, inputs map[string]interface{}) (map[string]interface{}, error) {
			chainIDRaw, _ := node.Config["chain"].(string)
			adapter, err := registry.Get(chain.ChainId(chainIDRaw))
			if err != nil {
				return nil, err
			}
			userID, _ := node.Config["user_id"].(string)
			addr, err := adapter.DeriveAddress(ctx, oracle, userID)
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{"address": addr.Value}, nil
		}),
		"action.select_utxos": engine.NodeExecutorFunc(func(ctx context.Context, node workflow.Node, inputs map[string]interface{}) (map[string]interface{}, error) {
			adapter, err := registry.Get(chain.ChainBitcoin)
			if err != nil {
				return nil, err
			}
			userID, _ := node.Config["user_id"].(string)
			addr, err := adapter.DeriveAddress(ctx, oracle, userID)
			if err != nil {
				return nil, err
			}
			available, err := adapter.GetUTXOs(ctx, addr)
			if err != nil {
				return nil, err
			}
			amountSats, _ := node.Config["amount_sats"].(float64)
			strategy, _ := node.Config["strategy"].(string)
			fee, err := feeEstimator.Estimate(ctx, adapter, chain.TransferRequest{Chain: chain.ChainBitcoin, Asset: "BTC", Amount: uint64(amountSats)})
			if err != nil {
				return nil, err
			}
			selection, err := utxo.SelectUTXOs(available, uint64(amountSats), fee.SatPerByte, utxo.Strategy(strategy))
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{
				"total_input_sats": selection.TotalInput,
				"fee_sats":         selection.FeeSats,
				"change_sats":      selection.ChangeSats,
				"input_count":      len(selection.Inputs),
			}, nil
		}),
		"action.transfer": engine.NodeExecutorFunc(func(ctx context.Context, node workflow.Node, inputs map[string]interface{}) (map[string]interface{}, error) {
			chainIDRaw, _ := node.Config["chain"].(string)
			adapter, err := registry.Get(chain.ChainId(chainIDRaw))
			if err != nil {
				return nil, err
			}
			userID, _ := node.Config["user_id"].(string)
			toAddress, _ := node.Config["to_address"].(string)
			asset, _ := node.Config["asset"].(string)
			amount, _ := node.Config["amount"].(float64)

			// Stage (1): spending limit, ahead of every other gate so a
			// daily-cap breach never burns the caller's authorization.
			now := time.Now()
			if err := spendingLimiter.CheckAndReserve(userID, asset, amount, now); err != nil {
				return nil, err
			}

			// Stage (2): authorization, single-use.
			authIDRaw, _ := node.Config["authorization_id"].(string)
			authID, err := uuid.Parse(authIDRaw)
			if err != nil {
				spendingLimiter.Release(userID, asset, amount, now)
				return nil, apperrors.Wrap(apperrors.KindSignatureRequired, err)
			}
			grant, err := authService.Consume(authID)
			if err != nil {
				spendingLimiter.Release(userID, asset, amount, now)
				return nil, err
			}
			if grant.UserID != userID {
				spendingLimiter.Release(userID, asset, amount, now)
				return nil, apperrors.New(apperrors.KindSignatureRequired, "authorization does not belong to this user")
			}

			// Stage (3): risk assessment against the user's allocation limits.
			allocationUSD := pool.EstimateAssetUSDValue(pool.Asset(asset), uint64(amount))
			riskLevel := 5
			if declared, ok := node.Config["risk_level"].(float64); ok {
				riskLevel = int(declared)
			}
			assessment := risk.Score(risk.Profile{
				DeclaredRiskLevel:  riskLevel,
				ChainCount:         1,
				TotalAllocationUSD: allocationUSD,
				MaxAllocationUSD:   allocationUSD,
			})
			if stopped, reason := riskManager.IsEmergencyStopped(node.ID); stopped {
				spendingLimiter.Release(userID, asset, amount, now)
				return nil, apperrors.Newf(apperrors.KindEmergencyStopTriggered, "node %q: %s", node.ID, reason)
			}
			if err := riskManager.ValidateAllocation(userID, assessment, 0, allocationUSD); err != nil {
				spendingLimiter.Release(userID, asset, amount, now)
				return nil, err
			}

			// Stage (4): chain execution.
			priority, _ := node.Config["priority"].(string)
			req := chain.TransferRequest{
				Chain:     chain.ChainId(chainIDRaw),
				FromUser:  userID,
				ToAddress: toAddress,
				Asset:     asset,
				Amount:    uint64(amount),
				Priority:  priority,
			}
			fee, err := feeEstimator.Estimate(ctx, adapter, req)
			if err != nil {
				spendingLimiter.Release(userID, asset, amount, now)
				return nil, err
			}
			unsigned, err := adapter.BuildTransfer(ctx, req, fee)
			if err != nil {
				spendingLimiter.Release(userID, asset, amount, now)
				return nil, err
			}
			sig, err := oracle.Sign(ctx, signing.SchemeECDSASecp256k1, signing.NewDerivationPath("deflow", "transfer", userID), unsigned.SigHash)
			if err != nil {
				spendingLimiter.Release(userID, asset, amount, now)
				return nil, err
			}
			txID, err := adapter.Broadcast(ctx, chain.SignedTransaction{
				Chain:     unsigned.Chain,
				Payload:   unsigned.Payload,
				Signature: sig,
			})
			if err != nil {
				spendingLimiter.Release(userID, asset, amount, now)
				return nil, err
			}

			// Stage (5): pool fee deposit, feeding the treasury ledger.
			if feeAmount, perr := strconv.ParseUint(fee.TotalFeeNative, 10, 64); perr == nil {
				if err := poolManager.AddToReserves(poolState, pool.Asset(asset), feeAmount); err != nil {
					logger.Printf("failed to deposit transfer fee into pool reserves: %v", err)
				}
			} else {
				logger.Printf("failed to parse fee %q for pool deposit: %v", fee.TotalFeeNative, perr)
			}
			treasuryLedger.AddTransactionFeeRevenue(fee.TotalFeeUSD)

			return map[string]interface{}{
				"tx_id":      txID,
				"fee_native": fee.TotalFeeNative,
			}, nil
		}),
	}
}
