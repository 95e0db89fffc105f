package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/quantpulse/pulse/internal/contracts"
	"github.com/quantpulse/pulse/internal/coordinator"
	"github.com/quantpulse/pulse/pkg/config"
	"github.com/quantpulse/pulse/pkg/logger"
)

// CycleHandler exposes the control-plane surface for trading cycles.
// Every call returns a structured success/failure with a
// human-readable reason; no error crosses this boundary unhandled.
type CycleHandler struct {
	coordinator *coordinator.Coordinator
	defaults    config.CycleConfig
	logger      *logger.Logger
}

// NewCycleHandler creates a cycle handler.
func NewCycleHandler(coord *coordinator.Coordinator, defaults config.CycleConfig, log *logger.Logger) *CycleHandler {
	return &CycleHandler{
		coordinator: coord,
		defaults:    defaults,
		logger:      log,
	}
}

// startCycleRequest is the wire shape of a cycle start/config call.
// Omitted fields take operator-configured defaults.
type startCycleRequest struct {
	Mode            string   `json:"mode"`
	Aggressiveness  *float64 `json:"aggressiveness,omitempty"`
	MaxPositions    *int     `json:"max_positions,omitempty"`
	ScanFrequency   string   `json:"scan_frequency,omitempty"`
	RiskLevel       *float64 `json:"risk_level,omitempty"`
	TotalRiskBudget *float64 `json:"total_risk_budget,omitempty"`
	ConfidenceFloor *float64 `json:"confidence_floor,omitempty"`
}

func (req *startCycleRequest) toSettings(defaults config.CycleConfig) (contracts.CycleSettings, error) {
	settings := contracts.CycleSettings{
		Mode:            contracts.CycleMode(req.Mode),
		Aggressiveness:  0.5,
		MaxPositions:    defaults.MaxPositions,
		ScanFrequency:   defaults.ScanFrequency,
		RiskLevel:       defaults.RiskLevel,
		TotalRiskBudget: defaults.TotalRiskBudget,
		ConfidenceFloor: defaults.ConfidenceFloor,
	}
	if req.Mode == "" {
		settings.Mode = contracts.ModeNormal
	}

	if req.Aggressiveness != nil {
		settings.Aggressiveness = *req.Aggressiveness
	}
	if req.MaxPositions != nil {
		settings.MaxPositions = *req.MaxPositions
	}
	if req.ScanFrequency != "" {
		freq, err := time.ParseDuration(req.ScanFrequency)
		if err != nil {
			return settings, contracts.NewValidationError("scan_frequency: " + err.Error())
		}
		settings.ScanFrequency = freq
	}
	if req.RiskLevel != nil {
		settings.RiskLevel = *req.RiskLevel
	}
	if req.TotalRiskBudget != nil {
		settings.TotalRiskBudget = *req.TotalRiskBudget
	}
	if req.ConfidenceFloor != nil {
		settings.ConfidenceFloor = *req.ConfidenceFloor
	}

	return settings, nil
}

// Start handles POST /api/cycle/start.
func (h *CycleHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startCycleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	settings, err := req.toSettings(h.defaults)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	cycle, err := h.coordinator.StartCycle(r.Context(), settings)
	if err != nil {
		h.respondCycleError(w, err, "Failed to start cycle")
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"cycle":   cycle,
	})
}

// Stop handles POST /api/cycle/stop. Stopping twice is not an error:
// the second call reports that no cycle is active.
func (h *CycleHandler) Stop(w http.ResponseWriter, r *http.Request) {
	err := h.coordinator.StopCycle(r.Context())
	if errors.Is(err, contracts.ErrNoActiveCycle) {
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"message": "no active cycle",
		})
		return
	}
	if err != nil {
		h.respondCycleError(w, err, "Failed to stop cycle")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "cycle stopped",
	})
}

// EmergencyStop handles POST /api/cycle/emergency-stop.
func (h *CycleHandler) EmergencyStop(w http.ResponseWriter, r *http.Request) {
	err := h.coordinator.EmergencyStop(r.Context())
	if errors.Is(err, contracts.ErrNoActiveCycle) {
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"message": "no active cycle",
		})
		return
	}
	if err != nil {
		h.respondCycleError(w, err, "Failed to emergency stop")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "emergency stop executed, all positions closed",
	})
}

// UpdateConfig handles PUT /api/cycle/config.
func (h *CycleHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req startCycleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	settings, err := req.toSettings(h.defaults)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.coordinator.UpdateSettings(r.Context(), settings); err != nil {
		h.respondCycleError(w, err, "Failed to update cycle config")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"cycle":   h.coordinator.CurrentCycle(),
	})
}

// Get handles GET /api/cycle.
func (h *CycleHandler) Get(w http.ResponseWriter, r *http.Request) {
	cycle := h.coordinator.CurrentCycle()
	if cycle == nil {
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"status": string(contracts.CycleIdle),
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"cycle":  cycle,
		"ledger": h.coordinator.LedgerSnapshot(),
	})
}

func (h *CycleHandler) respondCycleError(w http.ResponseWriter, err error, logMsg string) {
	h.logger.WithError(err).Error(logMsg)

	status := http.StatusInternalServerError
	switch {
	case contracts.IsValidationError(err):
		status = http.StatusConflict
	case errors.Is(err, contracts.ErrNoActiveCycle):
		status = http.StatusNotFound
	}

	var initErr *contracts.InitFailureError
	if errors.As(err, &initErr) {
		status = http.StatusServiceUnavailable
	}

	respondJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   err.Error(),
	})
}
