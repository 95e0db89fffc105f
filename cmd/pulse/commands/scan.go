package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/quantpulse/pulse/internal/contracts"
	"github.com/quantpulse/pulse/internal/funnel"
	"github.com/quantpulse/pulse/internal/services"
	"github.com/quantpulse/pulse/pkg/config"
	"github.com/quantpulse/pulse/pkg/logger"
)

// scanCmd runs one funnel pass without starting a cycle. No orders
// are placed; results print to stdout.
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run a one-off scan and funnel pass (dry run)",
	Long: `Runs a single scan through the candidate funnel and prints the
shortlist. Nothing is persisted and no orders are placed.

Example:
  go run ./cmd/pulse scan
  go run ./cmd/pulse scan --mode aggressive`,
	RunE: runScan,
}

var scanMode string

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringVar(&scanMode, "mode", "normal", "scan mode (conservative|normal|aggressive)")
}

func runScan(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Pulse Scan (dry run) ===")

	cfg, err := config.LoadFrom(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	log := logger.New(cfg)

	health := services.NewHealthRegistry()
	caller := services.NewCaller(cfg, log, nil, health)
	scanClient := services.NewScanClient(caller)
	newsClient := services.NewNewsClient(caller)

	funnelCfg := funnel.DefaultConfig()
	funnelCfg.UniverseSize = cfg.Cycle.UniverseSize
	funnelCfg.TrackedSize = cfg.Cycle.TrackedSize
	funnelCfg.CatalystSize = cfg.Cycle.CatalystSize
	funnelCfg.FinalSize = cfg.Cycle.FinalSize
	fn := funnel.New(funnelCfg, log)

	ctx := cmd.Context()
	scanID := contracts.NewScanID(time.Now())

	rows, scanResult := scanClient.Scan(ctx, contracts.CycleMode(scanMode),
		cfg.Cycle.UniverseSize, cfg.Services.Scan.Timeout)
	if !scanResult.Success {
		return fmt.Errorf("scan failed (%s): %s", scanResult.ErrorKind, scanResult.Error)
	}
	fmt.Printf("Scan returned %d rows in %v\n", len(rows), scanResult.Latency.Round(time.Millisecond))

	universe := fn.BuildUniverse(scanID, rows)
	fmt.Printf("Universe: %d candidates\n", len(universe))

	symbols := make([]string, 0, len(universe))
	for _, cand := range universe {
		symbols = append(symbols, cand.Symbol)
	}

	catalysts, newsResult := newsClient.Catalysts(ctx, symbols, 24*time.Hour, cfg.Services.News.Timeout)
	newsDegraded := !newsResult.Success
	if newsDegraded {
		fmt.Printf("News degraded (%s), catalyst gate relaxed\n", newsResult.ErrorKind)
	}

	tracked := fn.Track(universe, catalysts)
	withCatalyst := fn.FilterByCatalyst(tracked, newsDegraded)
	shortlist := fn.Shortlist(withCatalyst)

	fmt.Printf("Tracked: %d | Catalyst: %d | Shortlist: %d\n\n",
		len(tracked), len(withCatalyst), len(shortlist))

	fmt.Printf("%-6s %-8s %10s %10s %10s\n", "RANK", "SYMBOL", "PRICE", "CHG%", "SCORE")
	for _, cand := range shortlist {
		fmt.Printf("%-6d %-8s %10.2f %10.2f %10.1f\n",
			cand.Rank, cand.Symbol, cand.Price, cand.ChangePct, cand.CompositeScore)
	}

	return nil
}
