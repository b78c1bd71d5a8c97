package routes

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"yieldrouter/crypto"
	"yieldrouter/gateway/middleware"
	"yieldrouter/native/aggregator"
	nativecommon "yieldrouter/native/common"
	"yieldrouter/observability/metrics"
)

const requestLimit = 1 << 16 // 64 KiB

// Engine is the subset of the aggregator engine served over HTTP.
type Engine interface {
	Params() (*aggregator.Params, error)
	Protocol(id aggregator.ProtocolID) (*aggregator.Protocol, bool, error)
	Protocols() ([]*aggregator.Protocol, error)
	BestProtocol() (*aggregator.Protocol, error)
	Position(user crypto.Address, id aggregator.ProtocolID) (*aggregator.Position, error)
	PendingRewards(user crypto.Address, id aggregator.ProtocolID) (*big.Int, error)
	FeeAccrual(id aggregator.ProtocolID) (*aggregator.FeeAccrual, error)

	RegisterProtocol(caller crypto.Address, address string, protocolType string) (aggregator.ProtocolID, error)
	UpdateProtocolStats(caller crypto.Address, id aggregator.ProtocolID, apy uint64, tvl *big.Int) error
	SetProtocolActive(caller crypto.Address, id aggregator.ProtocolID, active bool) error
	SweepFees(caller crypto.Address, id aggregator.ProtocolID) (*big.Int, error)
	DepositToBest(user crypto.Address, amount *big.Int, quote *aggregator.Quote) (*aggregator.DepositReceipt, error)
	Withdraw(user crypto.Address, id aggregator.ProtocolID, amount *big.Int) (*aggregator.WithdrawReceipt, error)
	ClaimRewards(user crypto.Address, id aggregator.ProtocolID) (*aggregator.ClaimReceipt, error)
	UpdateParams(caller crypto.Address, update aggregator.ParamsUpdate) error
	SetModulePaused(caller crypto.Address, module string, paused bool) error
}

type aggregatorRoutes struct {
	engine Engine
	logger *slog.Logger
}

type paramsJSON struct {
	Owner          string `json:"owner"`
	Custody        string `json:"custody"`
	FeeCollector   string `json:"feeCollector"`
	RewardPool     string `json:"rewardPool,omitempty"`
	ProtocolCount  uint64 `json:"protocolCount"`
	MinDeposit     string `json:"minDeposit"`
	MaxSlippageBps uint64 `json:"maxSlippageBps"`
	PlatformFeeBps uint64 `json:"platformFeeBps"`
}

type protocolJSON struct {
	ID               uint64 `json:"id"`
	Address          string `json:"address"`
	Type             string `json:"type"`
	Active           bool   `json:"active"`
	TVL              string `json:"tvl"`
	APY              uint64 `json:"apy"`
	RegisteredHeight uint64 `json:"registeredHeight"`
	FeesAccrued      string `json:"feesAccrued,omitempty"`
}

type positionJSON struct {
	User            string `json:"user"`
	ProtocolID      uint64 `json:"protocolId"`
	Amount          string `json:"amount"`
	Rewards         string `json:"rewards"`
	PendingRewards  string `json:"pendingRewards"`
	DepositHeight   uint64 `json:"depositHeight"`
	LastClaimHeight uint64 `json:"lastClaimHeight"`
}

type registerRequest struct {
	Address string `json:"address"`
	Type    string `json:"type"`
}

type statsRequest struct {
	APY uint64 `json:"apy"`
	TVL string `json:"tvl"`
}

type statusRequest struct {
	Active *bool `json:"active"`
}

type quoteJSON struct {
	ProtocolID uint64 `json:"protocolId"`
	APY        uint64 `json:"apy"`
}

type depositRequest struct {
	Amount string     `json:"amount"`
	Quote  *quoteJSON `json:"quote,omitempty"`
}

type withdrawRequest struct {
	ProtocolID uint64 `json:"protocolId"`
	Amount     string `json:"amount"`
}

type claimRequest struct {
	ProtocolID uint64 `json:"protocolId"`
}

// paramsRequest carries owner parameter changes. Absent fields are left
// untouched.
type paramsRequest struct {
	MinDeposit     *string `json:"minDeposit,omitempty"`
	PlatformFeeBps *uint64 `json:"platformFeeBps,omitempty"`
	MaxSlippageBps *uint64 `json:"maxSlippageBps,omitempty"`
	Owner          *string `json:"owner,omitempty"`
}

type pauseRequest struct {
	Module string `json:"module"`
	Paused *bool  `json:"paused"`
}

func (ar *aggregatorRoutes) mountReads(r chi.Router) {
	r.Get("/params", ar.getParams)
	r.Get("/protocols", ar.listProtocols)
	r.Get("/protocols/best", ar.bestProtocol)
	r.Get("/protocols/{id}", ar.getProtocol)
	r.Get("/positions/{user}/{id}", ar.getPosition)
}

func (ar *aggregatorRoutes) mountWrites(r chi.Router) {
	r.Post("/protocols", ar.registerProtocol)
	r.Post("/protocols/{id}/stats", ar.updateStats)
	r.Post("/protocols/{id}/status", ar.setStatus)
	r.Post("/protocols/{id}/sweep", ar.sweepFees)
	r.Post("/deposits", ar.deposit)
	r.Post("/withdrawals", ar.withdraw)
	r.Post("/claims", ar.claim)
	r.Post("/params", ar.updateParams)
	r.Post("/pauses", ar.setPause)
}

func (ar *aggregatorRoutes) getParams(w http.ResponseWriter, r *http.Request) {
	params, err := ar.engine.Params()
	if err != nil {
		ar.writeEngineError(w, r, err)
		return
	}
	out := paramsJSON{
		Owner:          params.Owner.String(),
		Custody:        params.Custody.String(),
		FeeCollector:   params.FeeCollector.String(),
		ProtocolCount:  params.ProtocolCount,
		MinDeposit:     amountString(params.MinDeposit),
		MaxSlippageBps: params.MaxSlippageBps,
		PlatformFeeBps: params.PlatformFeeBps,
	}
	if !params.RewardPool.IsZero() {
		out.RewardPool = params.RewardPool.String()
	}
	writeJSON(w, http.StatusOK, out)
}

func (ar *aggregatorRoutes) listProtocols(w http.ResponseWriter, r *http.Request) {
	protocols, err := ar.engine.Protocols()
	if err != nil {
		ar.writeEngineError(w, r, err)
		return
	}
	out := make([]protocolJSON, 0, len(protocols))
	for _, p := range protocols {
		out = append(out, protocolView(p))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"protocols": out})
}

func (ar *aggregatorRoutes) bestProtocol(w http.ResponseWriter, r *http.Request) {
	protocol, err := ar.engine.BestProtocol()
	if err != nil {
		ar.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, protocolView(protocol))
}

func (ar *aggregatorRoutes) getProtocol(w http.ResponseWriter, r *http.Request) {
	id, err := protocolIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err)
		return
	}
	protocol, ok, err := ar.engine.Protocol(id)
	if err != nil {
		ar.writeEngineError(w, r, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", fmt.Errorf("protocol %d not registered", id))
		return
	}
	view := protocolView(protocol)
	if fees, err := ar.engine.FeeAccrual(id); err == nil {
		view.FeesAccrued = amountString(fees.Accrued)
	}
	writeJSON(w, http.StatusOK, view)
}

func (ar *aggregatorRoutes) getPosition(w http.ResponseWriter, r *http.Request) {
	user, err := crypto.DecodeAddress(chi.URLParam(r, "user"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", fmt.Errorf("user: %w", err))
		return
	}
	id, err := protocolIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err)
		return
	}
	position, err := ar.engine.Position(user, id)
	if err != nil {
		ar.writeEngineError(w, r, err)
		return
	}
	pending, err := ar.engine.PendingRewards(user, id)
	if err != nil {
		ar.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, positionJSON{
		User:            user.String(),
		ProtocolID:      uint64(id),
		Amount:          amountString(position.Amount),
		Rewards:         amountString(position.Rewards),
		PendingRewards:  amountString(pending),
		DepositHeight:   position.DepositHeight,
		LastClaimHeight: position.LastClaimHeight,
	})
}

func (ar *aggregatorRoutes) registerProtocol(w http.ResponseWriter, r *http.Request) {
	caller, ok := ar.caller(w, r)
	if !ok {
		return
	}
	var req registerRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err)
		return
	}
	id, err := ar.engine.RegisterProtocol(caller, req.Address, req.Type)
	if err != nil {
		ar.writeEngineError(w, r, err)
		return
	}
	ar.logger.Info("protocol registered", slog.Uint64("protocol", uint64(id)), slog.String("request_id", middleware.RequestIDFrom(r.Context())))
	writeJSON(w, http.StatusCreated, map[string]uint64{"id": uint64(id)})
}

func (ar *aggregatorRoutes) updateStats(w http.ResponseWriter, r *http.Request) {
	caller, ok := ar.caller(w, r)
	if !ok {
		return
	}
	id, err := protocolIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err)
		return
	}
	var req statsRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err)
		return
	}
	tvl, err := parseAmount(req.TVL)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", fmt.Errorf("tvl: %w", err))
		return
	}
	if err := ar.engine.UpdateProtocolStats(caller, id, req.APY, tvl); err != nil {
		ar.writeEngineError(w, r, err)
		return
	}
	ar.respondProtocol(w, r, id)
}

func (ar *aggregatorRoutes) setStatus(w http.ResponseWriter, r *http.Request) {
	caller, ok := ar.caller(w, r)
	if !ok {
		return
	}
	id, err := protocolIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err)
		return
	}
	var req statusRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if req.Active == nil {
		writeError(w, http.StatusBadRequest, "invalid_request", errors.New("active is required"))
		return
	}
	if err := ar.engine.SetProtocolActive(caller, id, *req.Active); err != nil {
		ar.writeEngineError(w, r, err)
		return
	}
	ar.respondProtocol(w, r, id)
}

func (ar *aggregatorRoutes) sweepFees(w http.ResponseWriter, r *http.Request) {
	caller, ok := ar.caller(w, r)
	if !ok {
		return
	}
	id, err := protocolIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err)
		return
	}
	swept, err := ar.engine.SweepFees(caller, id)
	if err != nil {
		ar.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"protocolId": uint64(id), "swept": amountString(swept)})
}

func (ar *aggregatorRoutes) deposit(w http.ResponseWriter, r *http.Request) {
	caller, ok := ar.caller(w, r)
	if !ok {
		return
	}
	var req depositRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", fmt.Errorf("amount: %w", err))
		return
	}
	var quote *aggregator.Quote
	if req.Quote != nil {
		quote = &aggregator.Quote{ProtocolID: aggregator.ProtocolID(req.Quote.ProtocolID), APY: req.Quote.APY}
	}
	receipt, err := ar.engine.DepositToBest(caller, amount, quote)
	if err != nil {
		ar.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"protocolId": uint64(receipt.ProtocolID),
		"amount":     amountString(receipt.Amount),
		"apy":        receipt.APY,
		"height":     receipt.Height,
	})
}

func (ar *aggregatorRoutes) withdraw(w http.ResponseWriter, r *http.Request) {
	caller, ok := ar.caller(w, r)
	if !ok {
		return
	}
	var req withdrawRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", fmt.Errorf("amount: %w", err))
		return
	}
	receipt, err := ar.engine.Withdraw(caller, aggregator.ProtocolID(req.ProtocolID), amount)
	if err != nil {
		ar.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"protocolId": uint64(receipt.ProtocolID),
		"amount":     amountString(receipt.Amount),
		"fee":        amountString(receipt.Fee),
		"net":        amountString(receipt.Net),
		"rewards":    amountString(receipt.Rewards),
		"height":     receipt.Height,
	})
}

func (ar *aggregatorRoutes) claim(w http.ResponseWriter, r *http.Request) {
	caller, ok := ar.caller(w, r)
	if !ok {
		return
	}
	var req claimRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err)
		return
	}
	receipt, err := ar.engine.ClaimRewards(caller, aggregator.ProtocolID(req.ProtocolID))
	if err != nil {
		ar.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"protocolId": uint64(receipt.ProtocolID),
		"amount":     amountString(receipt.Amount),
		"paidOut":    receipt.PaidOut,
		"height":     receipt.Height,
	})
}

func (ar *aggregatorRoutes) updateParams(w http.ResponseWriter, r *http.Request) {
	caller, ok := ar.caller(w, r)
	if !ok {
		return
	}
	var req paramsRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err)
		return
	}
	update := aggregator.ParamsUpdate{
		PlatformFeeBps: req.PlatformFeeBps,
		MaxSlippageBps: req.MaxSlippageBps,
	}
	if req.MinDeposit != nil {
		minDeposit, err := parseAmount(*req.MinDeposit)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", fmt.Errorf("minDeposit: %w", err))
			return
		}
		update.MinDeposit = minDeposit
	}
	if req.Owner != nil {
		nextOwner, err := crypto.DecodeAddress(*req.Owner)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", fmt.Errorf("owner: %w", err))
			return
		}
		update.Owner = &nextOwner
	}
	if err := ar.engine.UpdateParams(caller, update); err != nil {
		ar.writeEngineError(w, r, err)
		return
	}
	ar.getParams(w, r)
}

func (ar *aggregatorRoutes) setPause(w http.ResponseWriter, r *http.Request) {
	caller, ok := ar.caller(w, r)
	if !ok {
		return
	}
	var req pauseRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if strings.TrimSpace(req.Module) == "" || req.Paused == nil {
		writeError(w, http.StatusBadRequest, "invalid_request", errors.New("module and paused are required"))
		return
	}
	if err := ar.engine.SetModulePaused(caller, req.Module, *req.Paused); err != nil {
		ar.writeEngineError(w, r, err)
		return
	}
	ar.logger.Warn("module pause toggled",
		slog.String("module", req.Module),
		slog.Bool("paused", *req.Paused),
		slog.String("request_id", middleware.RequestIDFrom(r.Context())))
	writeJSON(w, http.StatusOK, map[string]interface{}{"module": req.Module, "paused": *req.Paused})
}

func (ar *aggregatorRoutes) respondProtocol(w http.ResponseWriter, r *http.Request, id aggregator.ProtocolID) {
	protocol, ok, err := ar.engine.Protocol(id)
	if err != nil {
		ar.writeEngineError(w, r, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", fmt.Errorf("protocol %d not registered", id))
		return
	}
	writeJSON(w, http.StatusOK, protocolView(protocol))
}

// caller resolves the authenticated subject, answering 401 when absent.
func (ar *aggregatorRoutes) caller(w http.ResponseWriter, r *http.Request) (crypto.Address, bool) {
	addr, ok := middleware.Subject(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", errors.New("authenticated subject required"))
		return crypto.Address{}, false
	}
	return addr, true
}

func (ar *aggregatorRoutes) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := mapEngineError(err)
	if status >= http.StatusInternalServerError {
		ar.logger.Error("aggregator call failed",
			slog.String("path", r.URL.Path),
			slog.String("request_id", middleware.RequestIDFrom(r.Context())),
			slog.Any("error", err))
	}
	writeError(w, status, code, err)
}

func mapEngineError(err error) (int, string) {
	switch {
	case errors.Is(err, aggregator.ErrNotAuthorized):
		return http.StatusForbidden, "not_authorized"
	case errors.Is(err, aggregator.ErrInvalidProtocol):
		return http.StatusNotFound, "invalid_protocol"
	case errors.Is(err, nativecommon.ErrModulePaused):
		return http.StatusServiceUnavailable, "paused"
	case errors.Is(err, aggregator.ErrNotInitialized):
		return http.StatusServiceUnavailable, "not_initialized"
	case errors.Is(err, aggregator.ErrProtocolNotActive):
		return http.StatusConflict, "protocol_not_active"
	case errors.Is(err, aggregator.ErrMaxProtocolsReached):
		return http.StatusConflict, "max_protocols"
	case errors.Is(err, aggregator.ErrNoActiveProtocols):
		return http.StatusConflict, "no_active_protocols"
	case errors.Is(err, aggregator.ErrSlippageTooHigh):
		return http.StatusConflict, "slippage"
	case errors.Is(err, aggregator.ErrInsufficientBalance):
		return http.StatusConflict, "insufficient_balance"
	case errors.Is(err, aggregator.ErrAlreadyInitialized):
		return http.StatusConflict, "already_initialized"
	case errors.Is(err, aggregator.ErrInvalidAmount):
		return http.StatusUnprocessableEntity, "invalid_amount"
	case errors.Is(err, aggregator.ErrInvalidProtocolType):
		return http.StatusUnprocessableEntity, "invalid_protocol_type"
	case errors.Is(err, aggregator.ErrInvalidParams):
		return http.StatusUnprocessableEntity, "invalid_params"
	case errors.Is(err, aggregator.ErrTransferFailed):
		return http.StatusUnprocessableEntity, "transfer_failed"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// refreshProtocolGauges copies the registry into the protocol gauges so a
// scrape reflects current state.
func refreshProtocolGauges(engine Engine) {
	protocols, err := engine.Protocols()
	if err != nil {
		return
	}
	gauges := metrics.Protocols()
	for _, p := range protocols {
		gauges.Record(uint64(p.ID), p.TVL, p.APY, p.Active)
		if fees, err := engine.FeeAccrual(p.ID); err == nil {
			gauges.RecordFees(uint64(p.ID), fees.Accrued)
		}
	}
}

func protocolView(p *aggregator.Protocol) protocolJSON {
	return protocolJSON{
		ID:               uint64(p.ID),
		Address:          p.Address,
		Type:             string(p.Type),
		Active:           p.Active,
		TVL:              amountString(p.TVL),
		APY:              p.APY,
		RegisteredHeight: p.RegisteredHeight,
	}
}

func protocolIDParam(r *http.Request) (aggregator.ProtocolID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "id"))
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid protocol id %q", raw)
	}
	return aggregator.ProtocolID(id), nil
}

func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, errors.New("amount is required")
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid decimal amount %q", raw)
	}
	return value, nil
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func decodeRequest(r *http.Request, out interface{}) error {
	if r.Body == nil {
		return errors.New("missing request body")
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(io.LimitReader(r.Body, requestLimit))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	message := strings.TrimSpace(err.Error())
	if message == "" {
		message = http.StatusText(status)
	}
	writeJSON(w, status, map[string]string{"error": message, "code": code})
}
