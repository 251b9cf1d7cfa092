package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Legatia/deflow/pkg/authorization"
	"github.com/Legatia/deflow/pkg/chain"
	"github.com/Legatia/deflow/pkg/config"
	"github.com/Legatia/deflow/pkg/database"
	"github.com/Legatia/deflow/pkg/engine"
	"github.com/Legatia/deflow/pkg/eventbus"
	"github.com/Legatia/deflow/pkg/notify"
	"github.com/Legatia/deflow/pkg/pool"
	"github.com/Legatia/deflow/pkg/portfolio"
	"github.com/Legatia/deflow/pkg/risk"
	"github.com/Legatia/deflow/pkg/scheduler"
	"github.com/Legatia/deflow/pkg/spending"
	"github.com/Legatia/deflow/pkg/store"
	"github.com/Legatia/deflow/pkg/treasury"
	"github.com/Legatia/deflow/pkg/workflow"
)

// apiDeps bundles every component the HTTP handlers need, the way the
// teacher's handler constructors take their collaborators by value.
type apiDeps struct {
	store      *store.WorkflowStore
	engine     *engine.Engine
	scheduler  *scheduler.Scheduler
	validator  *workflow.Validator
	risk       *risk.Manager
	pool       *pool.Manager
	poolState  *pool.State
	treasury   *treasury.Ledger
	auth       *authorization.Service
	spending   *spending.Limiter
	bus        *eventbus.Bus
	dispatcher *notify.Dispatcher
	repos      *database.Repositories
	registry   *chain.Registry
	portfolio  *portfolio.Aggregator
	templates  []*config.WorkflowTemplate
	logger     *log.Logger
}

func mustParseUUID(s string) uuid.UUID {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil
	}
	return id
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// registerAPI wires the workflow, execution, and DeFi domain endpoints onto
// mux, mirroring the teacher's one-handler-per-concern mux registration
// style (pkg/server/*.go in the teacher repo).
func registerAPI(mux *http.ServeMux, d *apiDeps) {
	mux.HandleFunc("/api/workflows", d.handleWorkflows)
	mux.HandleFunc("/api/workflows/", d.handleWorkflowByID)
	mux.HandleFunc("/api/executions/", d.handleExecutionByID)
	mux.HandleFunc("/api/webhooks/", d.handleWebhookTrigger)
	mux.HandleFunc("/api/events/emit", d.handleEventEmit)
	mux.HandleFunc("/api/authorizations", d.handleIssueAuthorization)
	mux.HandleFunc("/api/risk/assess", d.handleRiskAssess)
	mux.HandleFunc("/api/pool/status", d.handlePoolStatus)
	mux.HandleFunc("/api/pool/liquidity", d.handlePoolAddLiquidity)
	mux.HandleFunc("/api/pool/emergency-pause", d.handlePoolEmergencyPause)
	mux.HandleFunc("/api/treasury/status", d.handleTreasuryStatus)
	mux.HandleFunc("/api/treasury/revenue", d.handleTreasuryRevenue)
	mux.HandleFunc("/api/treasury/withdraw", d.handleTreasuryWithdraw)
	mux.HandleFunc("/api/templates", d.handleTemplates)
	mux.HandleFunc("/api/templates/", d.handleTemplateClone)
	mux.HandleFunc("/api/chains", d.handleChains)
	mux.HandleFunc("/api/portfolio/", d.handlePortfolio)
}

func (d *apiDeps) handleWorkflows(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		ownerID := r.URL.Query().Get("owner_id")
		if ownerID == "" {
			writeError(w, http.StatusBadRequest, "owner_id is required")
			return
		}
		wfs, err := d.store.ListWorkflowsByOwner(ownerID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, wfs)
	case http.MethodPost:
		var wf workflow.Workflow
		if err := json.NewDecoder(r.Body).Decode(&wf); err != nil {
			writeError(w, http.StatusBadRequest, "invalid workflow payload")
			return
		}
		if wf.ID == uuid.Nil {
			wf.ID = uuid.New()
		}
		now := time.Now()
		wf.CreatedAt = now
		wf.UpdatedAt = now

		validator := d.validator
		if validator == nil {
			validator = workflow.NewValidator()
		}
		if err := validator.Validate(&wf); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		if err := d.store.SaveWorkflow(&wf); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if wf.Trigger.Type == workflow.TriggerEvent && d.bus != nil {
			d.bus.Register(eventbus.Listener{
				ID:         wf.ID.String(),
				WorkflowID: wf.ID.String(),
				EventType:  wf.Trigger.EventFilter,
			})
		}
		if se, ok, err := scheduler.Schedule(&wf, now); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		} else if ok {
			if err := d.store.SaveScheduledExecution(&se); err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
		}
		writeJSON(w, http.StatusCreated, wf)
	default:
		writeError(w, http.StatusMethodNotAllowed, "unsupported method")
	}
}

func (d *apiDeps) handleWorkflowByID(w http.ResponseWriter, r *http.Request) {
	id := mustParseUUID(strings.TrimPrefix(r.URL.Path, "/api/workflows/"))
	if id == uuid.Nil {
		writeError(w, http.StatusBadRequest, "invalid workflow id")
		return
	}

	switch r.Method {
	case http.MethodGet:
		wf, err := d.store.GetWorkflow(id)
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, wf)
	case http.MethodDelete:
		if err := d.store.DeleteWorkflow(id); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if d.bus != nil {
			d.bus.Unregister(id.String())
		}
		w.WriteHeader(http.StatusNoContent)
	case http.MethodPost:
		// POST /api/workflows/{id}/run triggers an immediate execution.
		if !strings.HasSuffix(r.URL.Path, "/run") {
			writeError(w, http.StatusNotFound, "unknown action")
			return
		}
		wf, err := d.store.GetWorkflow(id)
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		ex, err := d.engine.Run(r.Context(), wf)
		if err != nil {
			d.logger.Printf("workflow %s execution failed: %v", id, err)
			d.notifyExecutionResult(r.Context(), wf, ex, err)
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		d.notifyExecutionResult(r.Context(), wf, ex, nil)
		writeJSON(w, http.StatusOK, ex)
	default:
		writeError(w, http.StatusMethodNotAllowed, "unsupported method")
	}
}

// notifyExecutionResult tells the owning user how their workflow run went,
// fanning out through every configured notification channel.
func (d *apiDeps) notifyExecutionResult(ctx context.Context, wf *workflow.Workflow, ex *workflow.Execution, runErr error) {
	if d.dispatcher == nil {
		return
	}
	n := notify.Notification{
		UserID:    wf.OwnerID,
		Title:     fmt.Sprintf("workflow %q", wf.Name),
		Severity:  "info",
		Timestamp: time.Now(),
		Metadata:  map[string]interface{}{"workflow_id": wf.ID.String()},
	}
	if runErr != nil {
		n.Severity = "critical"
		n.Body = fmt.Sprintf("execution failed: %v", runErr)
	} else {
		n.Body = "execution completed"
		if ex != nil {
			n.Metadata["execution_id"] = ex.ID.String()
		}
	}
	d.dispatcher.Send(ctx, n)
}

func (d *apiDeps) handleExecutionByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "unsupported method")
		return
	}
	id := mustParseUUID(strings.TrimPrefix(r.URL.Path, "/api/executions/"))
	if id == uuid.Nil {
		writeError(w, http.StatusBadRequest, "invalid execution id")
		return
	}
	ex, err := d.store.GetExecution(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ex)
}

// handleWebhookTrigger runs the single workflow whose ID is the path
// suffix, e.g. POST /api/webhooks/{workflow-id}, answering 409 when that
// workflow's trigger is not a webhook.
func (d *apiDeps) handleWebhookTrigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "unsupported method")
		return
	}
	id := mustParseUUID(strings.TrimPrefix(r.URL.Path, "/api/webhooks/"))
	if id == uuid.Nil {
		writeError(w, http.StatusBadRequest, "invalid workflow id")
		return
	}
	wf, err := d.store.GetWorkflow(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if wf.Trigger.Type != workflow.TriggerWebhook {
		writeError(w, http.StatusConflict, "workflow is not webhook-triggered")
		return
	}
	ex, err := d.engine.Run(r.Context(), wf)
	if err != nil {
		d.notifyExecutionResult(r.Context(), wf, ex, err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	d.notifyExecutionResult(r.Context(), wf, ex, nil)
	writeJSON(w, http.StatusAccepted, ex)
}

// handleEventEmit lets an external watcher (a balance poller, a price feed)
// push an event onto the bus, firing every workflow registered against it.
func (d *apiDeps) handleEventEmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "unsupported method")
		return
	}
	var evt eventbus.Event
	if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
		writeError(w, http.StatusBadRequest, "invalid event payload")
		return
	}
	if evt.Type == "" {
		writeError(w, http.StatusBadRequest, "event type is required")
		return
	}
	if d.bus != nil {
		d.bus.Emit(r.Context(), evt)
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleIssueAuthorization issues a single-use execution authorization a
// caller must present (as action.transfer's authorization_id config) before
// the engine will run a fund-moving node.
func (d *apiDeps) handleIssueAuthorization(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "unsupported method")
		return
	}
	var req struct {
		UserID     string `json:"user_id"`
		WorkflowID string `json:"workflow_id"`
		SigHashHex string `json:"sig_hash"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid authorization request payload")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	workflowID := mustParseUUID(req.WorkflowID)
	sigHash, err := hex.DecodeString(req.SigHashHex)
	if err != nil {
		writeError(w, http.StatusBadRequest, "sig_hash must be hex-encoded")
		return
	}
	grant, err := d.auth.Issue(r.Context(), req.UserID, workflowID, sigHash)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, grant)
}

// handleChains lists the chains this deployment has an adapter registered
// for, so a client can discover which `chain` values action nodes accept.
func (d *apiDeps) handleChains(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "unsupported method")
		return
	}
	writeJSON(w, http.StatusOK, d.registry.List())
}

// handlePortfolio composes a user's balance across every registered chain.
// The path is /api/portfolio/{userID}.
func (d *apiDeps) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "unsupported method")
		return
	}
	userID := strings.TrimPrefix(r.URL.Path, "/api/portfolio/")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing user id")
		return
	}
	writeJSON(w, http.StatusOK, d.portfolio.Compose(r.Context(), userID))
}

func (d *apiDeps) handleRiskAssess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "unsupported method")
		return
	}
	var profile risk.Profile
	if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
		writeError(w, http.StatusBadRequest, "invalid risk profile payload")
		return
	}
	assessment := risk.Score(profile)

	ownerID := r.URL.Query().Get("owner_id")
	if err := d.risk.ValidateAllocation(ownerID, assessment, 0, profile.TotalAllocationUSD); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"assessment": assessment,
			"error":      err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, assessment)
}

func (d *apiDeps) handlePoolStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "unsupported method")
		return
	}
	writeJSON(w, http.StatusOK, d.poolState)
}

// handlePoolAddLiquidity records an external liquidity deposit into the
// pool's reserves, potentially crossing the bootstrap activation threshold.
func (d *apiDeps) handlePoolAddLiquidity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "unsupported method")
		return
	}
	var req struct {
		Chain  string `json:"chain"`
		Asset  string `json:"asset"`
		Amount uint64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid liquidity request payload")
		return
	}
	if err := d.pool.AddLiquidity(d.poolState, chain.ChainId(req.Chain), pool.Asset(req.Asset), req.Amount); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if d.repos != nil {
		if err := d.repos.Pool.RecordReserveEvent(r.Context(), &database.ReserveEventRecord{
			ChainID:    req.Chain,
			Asset:      req.Asset,
			EventType:  "deposit",
			AmountSats: req.Amount,
			OccurredAt: time.Now(),
		}); err != nil {
			d.logger.Printf("failed to record reserve event: %v", err)
		}
	}
	phaseBefore := d.poolState.Phase
	if err := d.pool.CheckBootstrapCompletion(d.poolState); err != nil {
		d.logger.Printf("pool bootstrap completion check failed: %v", err)
	}
	if d.repos != nil && d.poolState.Phase != phaseBefore {
		if err := d.repos.Pool.RecordPhaseTransition(r.Context(), &database.PhaseTransitionRecord{
			FromPhase:  string(phaseBefore),
			ToPhase:    string(d.poolState.Phase),
			Reason:     "bootstrap targets met",
			OccurredAt: time.Now(),
		}); err != nil {
			d.logger.Printf("failed to record phase transition: %v", err)
		}
	}
	writeJSON(w, http.StatusOK, d.poolState)
}

// handlePoolEmergencyPause halts pool withdrawals immediately, e.g. in
// response to an exploit or oracle failure detected upstream.
func (d *apiDeps) handlePoolEmergencyPause(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "unsupported method")
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid pause request payload")
		return
	}
	phaseBefore := d.poolState.Phase
	d.pool.EmergencyPause(d.poolState, req.Reason)
	if d.repos != nil {
		if err := d.repos.Pool.RecordPhaseTransition(r.Context(), &database.PhaseTransitionRecord{
			FromPhase:  string(phaseBefore),
			ToPhase:    string(d.poolState.Phase),
			Reason:     req.Reason,
			OccurredAt: time.Now(),
		}); err != nil {
			d.logger.Printf("failed to record phase transition: %v", err)
		}
	}
	writeJSON(w, http.StatusOK, d.poolState)
}

func (d *apiDeps) handleTreasuryStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "unsupported method")
		return
	}
	writeJSON(w, http.StatusOK, d.treasury.AnnualProjection())
}

// handleTreasuryRevenue records subscription or enterprise-contract revenue
// collected outside the workflow engine (transaction fees are credited
// automatically by the transfer executor instead).
func (d *apiDeps) handleTreasuryRevenue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "unsupported method")
		return
	}
	var req struct {
		Source string  `json:"source"`
		Amount float64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid revenue request payload")
		return
	}
	switch req.Source {
	case "subscription":
		d.treasury.AddSubscriptionRevenue(req.Amount)
	case "enterprise":
		d.treasury.AddEnterpriseRevenue(req.Amount)
	default:
		writeError(w, http.StatusBadRequest, "source must be one of: subscription, enterprise")
		return
	}
	writeJSON(w, http.StatusOK, d.treasury.AnnualProjection())
}

// handleTreasuryWithdraw pays out a team member's accumulated earnings,
// e.g. POST /api/treasury/withdraw?principal=...
func (d *apiDeps) handleTreasuryWithdraw(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "unsupported method")
		return
	}
	principal := r.URL.Query().Get("principal")
	if principal == "" {
		writeError(w, http.StatusBadRequest, "principal is required")
		return
	}
	amount, err := d.treasury.WithdrawEarnings(principal)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"withdrawn": amount})
}

// handleTemplates lists the starter workflow templates loaded at boot.
func (d *apiDeps) handleTemplates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "unsupported method")
		return
	}
	writeJSON(w, http.StatusOK, d.templates)
}

// handleTemplateClone clones a template into a new workflow owned by the
// caller, e.g. POST /api/templates/{template-id}/clone?owner_id=...
func (d *apiDeps) handleTemplateClone(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "unsupported method")
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/api/templates/")
	templateID := strings.TrimSuffix(path, "/clone")

	ownerID := r.URL.Query().Get("owner_id")
	if ownerID == "" {
		writeError(w, http.StatusBadRequest, "owner_id is required")
		return
	}

	for _, t := range d.templates {
		if t.ID == templateID {
			wf := t.ToWorkflow(ownerID)
			if err := d.store.SaveWorkflow(wf); err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			writeJSON(w, http.StatusCreated, wf)
			return
		}
	}
	writeError(w, http.StatusNotFound, "template not found")
}
