// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/luxfi/geth/common"
	"go.uber.org/zap"

	"github.com/luxfi/decrypt"
	"github.com/luxfi/decrypt/coordinator"
	"github.com/luxfi/decrypt/orchestrator"
)

const (
	DecryptPath = "/decrypt"
	HandlesPath = "/handles"
	SigningPath = "/signing"
	ContextPath = "/context"

	maxRequestBytes = 1 << 20
)

// Orchestrator is the part of the decryption orchestrator the API serves
type Orchestrator interface {
	DecryptHandle(pairs []decrypt.HandleContractPair)
	GetResult(h decrypt.Handle) (decrypt.Value, bool)
	GetStatus(h decrypt.Handle) orchestrator.Status
	GetError(h decrypt.Handle) error
	Clear()
	SetContext(user common.Address, chainID uint64, instanceID string)
	Coordinator() *coordinator.Coordinator
}

type HandleContractPairRequest struct {
	Handle          string `json:"handle"`
	ContractAddress string `json:"contractAddress"`
}

// DecryptRequest schedules decryption of every listed pair
type DecryptRequest struct {
	Handles []HandleContractPairRequest `json:"handles"`
}

type DecryptResponse struct {
	Handles []decrypt.Handle `json:"handles"`
}

type HandleResponse struct {
	Handle decrypt.Handle      `json:"handle"`
	Status orchestrator.Status `json:"status"`
	Value  *decrypt.Value      `json:"value,omitempty"`
	Error  string              `json:"error,omitempty"`
}

type SigningResponse struct {
	State       string         `json:"state"`
	Error       string         `json:"error,omitempty"`
	UserAddress common.Address `json:"userAddress"`
	ChainID     uint64         `json:"chainId"`
}

// ContextRequest switches the active user, chain and instance
type ContextRequest struct {
	UserAddress string `json:"userAddress"`
	ChainID     uint64 `json:"chainId"`
	InstanceID  string `json:"instanceId"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type Handler struct {
	logger       *zap.Logger
	orchestrator Orchestrator
}

func NewHandler(logger *zap.Logger, o Orchestrator) *Handler {
	return &Handler{
		logger:       logger,
		orchestrator: o,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post(DecryptPath, h.decrypt)
	r.Get(HandlesPath+"/{handle}", h.getHandle)
	r.Delete(HandlesPath, h.clear)
	r.Get(SigningPath, h.signing)
	r.Put(ContextPath, h.setContext)
}

// NewRouter returns the API router. health, if not nil, is mounted at
// healthPath.
func NewRouter(
	logger *zap.Logger,
	o Orchestrator,
	healthPath string,
	health http.Handler,
) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if health != nil {
		r.Method(http.MethodGet, healthPath, health)
	}
	NewHandler(logger, o).RegisterRoutes(r)
	return r
}

func (h *Handler) decrypt(w http.ResponseWriter, r *http.Request) {
	var req DecryptRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		msg := "Could not decode request body"
		h.logger.Warn(msg, zap.Error(err))
		h.writeJSONError(w, http.StatusBadRequest, msg)
		return
	}
	if len(req.Handles) == 0 {
		h.writeJSONError(w, http.StatusBadRequest, "No handles requested")
		return
	}

	pairs := make([]decrypt.HandleContractPair, 0, len(req.Handles))
	resp := DecryptResponse{Handles: make([]decrypt.Handle, 0, len(req.Handles))}
	for _, p := range req.Handles {
		pair, err := decrypt.NewHandleContractPair(p.Handle, p.ContractAddress)
		if err != nil {
			h.writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		pairs = append(pairs, pair)
		resp.Handles = append(resp.Handles, pair.Handle)
	}

	h.orchestrator.DecryptHandle(pairs)
	h.writeJSON(w, http.StatusAccepted, resp)
}

func (h *Handler) getHandle(w http.ResponseWriter, r *http.Request) {
	handle, err := decrypt.ParseHandle(chi.URLParam(r, "handle"))
	if err != nil {
		h.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := HandleResponse{
		Handle: handle,
		Status: h.orchestrator.GetStatus(handle),
	}
	if v, ok := h.orchestrator.GetResult(handle); ok {
		resp.Value = &v
	}
	if err := h.orchestrator.GetError(handle); err != nil {
		resp.Error = err.Error()
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) clear(w http.ResponseWriter, _ *http.Request) {
	h.orchestrator.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) signing(w http.ResponseWriter, _ *http.Request) {
	coord := h.orchestrator.Coordinator()
	current := coord.Context()
	resp := SigningResponse{
		State:       coord.State().String(),
		UserAddress: current.UserAddress,
		ChainID:     current.ChainID,
	}
	if err := coord.Err(); err != nil {
		resp.Error = err.Error()
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) setContext(w http.ResponseWriter, r *http.Request) {
	var req ContextRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		h.writeJSONError(w, http.StatusBadRequest, "Could not decode request body")
		return
	}
	if !common.IsHexAddress(req.UserAddress) {
		h.writeJSONError(w, http.StatusBadRequest, "Invalid user address")
		return
	}
	h.orchestrator.SetContext(common.HexToAddress(req.UserAddress), req.ChainID, req.InstanceID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	resp, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("Error marshalling JSON response", zap.Error(err))
		h.writeJSONError(w, http.StatusInternalServerError, "Could not encode response")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(resp); err != nil {
		h.logger.Error("Error writing response", zap.Error(err))
	}
}

func (h *Handler) writeJSONError(w http.ResponseWriter, status int, errorMsg string) {
	resp, err := json.Marshal(ErrorResponse{Error: errorMsg})
	if err != nil {
		msg := "Error marshalling JSON error response"
		h.logger.Error(msg, zap.Error(err))
		resp = []byte(msg)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if _, err := w.Write(resp); err != nil {
		h.logger.Error("Error writing error response", zap.Error(err))
	}
}
