package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

// cycleCmd groups cycle lifecycle subcommands. They talk to a running
// serve instance over its control API.
var cycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "Control the trading cycle",
	Long: `Controls the trading cycle of a running coordinator.

Example:
  go run ./cmd/pulse cycle start --mode normal
  go run ./cmd/pulse cycle stop
  go run ./cmd/pulse cycle status
  go run ./cmd/pulse cycle emergency-stop`,
}

var cycleStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a trading cycle",
	RunE:  runCycleStart,
}

var cycleStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the active cycle gracefully",
	RunE:  runCycleStop,
}

var cycleEmergencyCmd = &cobra.Command{
	Use:   "emergency-stop",
	Short: "Halt immediately and close all positions",
	RunE:  runCycleEmergency,
}

var cycleStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current cycle and risk ledger",
	RunE:  runCycleStatus,
}

var (
	cycleAPIAddr       string
	cycleMode          string
	cycleMaxPositions  int
	cycleScanFrequency string
	cycleRiskLevel     float64
)

func init() {
	rootCmd.AddCommand(cycleCmd)
	cycleCmd.AddCommand(cycleStartCmd, cycleStopCmd, cycleEmergencyCmd, cycleStatusCmd)

	cycleCmd.PersistentFlags().StringVar(&cycleAPIAddr, "addr", "http://localhost:8080", "coordinator API address")

	cycleStartCmd.Flags().StringVar(&cycleMode, "mode", "normal", "cycle mode (conservative|normal|aggressive)")
	cycleStartCmd.Flags().IntVar(&cycleMaxPositions, "max-positions", 0, "max concurrent positions (0 = server default)")
	cycleStartCmd.Flags().StringVar(&cycleScanFrequency, "scan-frequency", "", "scan interval, e.g. 30s (empty = server default)")
	cycleStartCmd.Flags().Float64Var(&cycleRiskLevel, "risk-level", 0, "per-trade risk fraction (0 = server default)")
}

func runCycleStart(cmd *cobra.Command, args []string) error {
	body := map[string]interface{}{"mode": cycleMode}
	if cycleMaxPositions > 0 {
		body["max_positions"] = cycleMaxPositions
	}
	if cycleScanFrequency != "" {
		body["scan_frequency"] = cycleScanFrequency
	}
	if cycleRiskLevel > 0 {
		body["risk_level"] = cycleRiskLevel
	}

	return callAPI(http.MethodPost, "/api/cycle/start", body)
}

func runCycleStop(cmd *cobra.Command, args []string) error {
	return callAPI(http.MethodPost, "/api/cycle/stop", map[string]interface{}{})
}

func runCycleEmergency(cmd *cobra.Command, args []string) error {
	return callAPI(http.MethodPost, "/api/cycle/emergency-stop", map[string]interface{}{})
}

func runCycleStatus(cmd *cobra.Command, args []string) error {
	return callAPI(http.MethodGet, "/api/cycle", nil)
}

// callAPI issues a request against the control API and pretty-prints
// the JSON response.
func callAPI(method, path string, body interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, cycleAPIAddr+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("coordinator not reachable at %s: %w", cycleAPIAddr, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		fmt.Println(string(raw))
	} else {
		fmt.Println(pretty.String())
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}
	return nil
}
