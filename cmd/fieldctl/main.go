// fieldctl is the operator CLI for a companion field database: inspect
// accumulated context trust, recompute the safety boundary, and replay
// recorded frame traces offline.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/coherence-field/go-companion/internal/boundary"
	"github.com/danielpatrickdp/coherence-field/go-companion/internal/config"
	"github.com/danielpatrickdp/coherence-field/go-companion/internal/contextkey"
	"github.com/danielpatrickdp/coherence-field/go-companion/internal/logging"
	"github.com/danielpatrickdp/coherence-field/go-companion/internal/replay"
	"github.com/danielpatrickdp/coherence-field/go-companion/internal/store"
)

// #region root

var (
	dbPath  string
	jsonOut bool
)

var rootCmd = &cobra.Command{
	Use:   "fieldctl",
	Short: "Inspect and replay a companion coherence field",
	Long: `fieldctl operates on the SQLite database written by the companion
daemon. It never needs the daemon running; snapshots and the mixing
matrix are read directly from the file.`,
	SilenceUsage: true,
}

func main() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "coherence.db", "path to the field database")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "output as JSON instead of text")
	rootCmd.AddCommand(inspectCmd, boundaryCmd, replayCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// #endregion root

// #region inspect

var inspectLast int

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show per-context trust from the last persisted snapshot",
	RunE:  runInspect,
}

type inspectRow struct {
	Context    string  `json:"context"`
	Count      uint32  `json:"interaction_count"`
	Score      float32 `json:"experience_score"`
	Floor      float32 `json:"earned_floor"`
	Habituated bool    `json:"habituated"`
}

func runInspect(cmd *cobra.Command, args []string) error {
	st, err := store.NewStore(dbPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer st.Close()

	snap, ok, err := st.LoadSnapshot()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no snapshot persisted yet in %s", dbPath)
	}

	fieldCfg := config.Default().Field
	rows := make([]inspectRow, 0, contextkey.NumContexts)
	for idx, cell := range snap.Cells {
		if !cell.Visited {
			continue
		}
		habituated := false
		for _, streak := range cell.Habituation {
			if streak >= fieldCfg.HabituationCap {
				habituated = true
				break
			}
		}
		rows = append(rows, inspectRow{
			Context:    contextkey.FromIndex(idx).String(),
			Count:      cell.Count,
			Score:      cell.Score,
			Floor:      fieldCfg.EarnedFloor(cell.Count),
			Habituated: habituated,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Score > rows[j].Score })

	if jsonOut {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(rows)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "snapshot tick %d, %d visited contexts\n\n", snap.Tick, len(rows))
	fmt.Fprintf(cmd.OutOrStdout(), "%-42s %8s %8s %8s %5s\n", "CONTEXT", "COUNT", "SCORE", "FLOOR", "HABIT")
	for _, r := range rows {
		fmt.Fprintf(cmd.OutOrStdout(), "%-42s %8d %8.4f %8.4f %5v\n", r.Context, r.Count, r.Score, r.Floor, r.Habituated)
	}

	entries, err := logging.ListSnapshots(st.DB(), inspectLast)
	if err != nil {
		return err
	}
	if len(entries) > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "\nrecent persists:\n")
		for _, e := range entries {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s  tick=%-10d trigger=%-10s live=%-3d degraded=%v\n",
				e.CreatedAt.Format("2006-01-02 15:04:05"), e.Tick, e.TriggerType, e.LiveContexts, e.Degraded)
		}
	}
	return nil
}

// #endregion inspect

// #region boundary

var boundaryCmd = &cobra.Command{
	Use:   "boundary",
	Short: "Recompute the trust boundary from the persisted snapshot and matrix",
	RunE:  runBoundary,
}

type boundaryRow struct {
	Inside    []string `json:"inside"`
	Outside   []string `json:"outside"`
	CutWeight float32  `json:"cut_weight"`
}

func runBoundary(cmd *cobra.Command, args []string) error {
	st, err := store.NewStore(dbPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer st.Close()

	snap, ok, err := st.LoadSnapshot()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no snapshot persisted yet in %s", dbPath)
	}
	m, ok, err := st.LoadMatrix()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no mixing matrix persisted yet in %s", dbPath)
	}

	cut := boundary.Discover(m, &snap, boundary.DefaultConfig())
	if len(cut.Inside) == 0 && len(cut.Outside) == 0 {
		return fmt.Errorf("too few observed contexts to place a boundary")
	}

	row := boundaryRow{CutWeight: cut.Weight}
	for _, idx := range cut.Inside {
		row.Inside = append(row.Inside, contextkey.FromIndex(idx).String())
	}
	for _, idx := range cut.Outside {
		row.Outside = append(row.Outside, contextkey.FromIndex(idx).String())
	}

	if jsonOut {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(row)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "cut weight %.4f\n\ninside (%d):\n", row.CutWeight, len(row.Inside))
	for _, c := range row.Inside {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", c)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\noutside (%d):\n", len(row.Outside))
	for _, c := range row.Outside {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", c)
	}
	return nil
}

// #endregion boundary

// #region replay

var replayCuriosity float32

var replayCmd = &cobra.Command{
	Use:   "replay [fixture.json]",
	Short: "Run a recorded frame trace through the reflexive pipeline",
	Args:  cobra.ExactArgs(1),
	RunE:  runReplay,
}

func runReplay(cmd *cobra.Command, args []string) error {
	fixture, err := replay.LoadFixture(args[0])
	if err != nil {
		return err
	}

	cfg := replay.DefaultReplayConfig()
	if fixture.Curiosity > 0 {
		cfg.Curiosity = fixture.Curiosity
	}
	if replayCuriosity > 0 {
		cfg.Curiosity = replayCuriosity
	}

	outputs := replay.Replay(fixture.Frames(), cfg, 0)
	summary := replay.Summarize(outputs)
	mismatches := fixture.Check(outputs)

	if jsonOut {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(struct {
			Description string         `json:"description"`
			Summary     replay.Summary `json:"summary"`
			Mismatches  []string       `json:"mismatches,omitempty"`
		}{fixture.Description, summary, mismatches})
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s\n\n", fixture.Description)
	fmt.Fprintf(cmd.OutOrStdout(), "ticks:             %d\n", summary.TotalTicks)
	fmt.Fprintf(cmd.OutOrStdout(), "visited contexts:  %d\n", summary.VisitedContexts)
	fmt.Fprintf(cmd.OutOrStdout(), "phase transitions: %d\n", summary.PhaseTransitions)
	fmt.Fprintf(cmd.OutOrStdout(), "final phase:       %s\n", summary.FinalPhase)
	fmt.Fprintf(cmd.OutOrStdout(), "mean effective:    %.4f\n", summary.MeanEffective)
	for _, m := range mismatches {
		fmt.Fprintf(cmd.OutOrStdout(), "MISMATCH: %s\n", m)
	}
	if len(mismatches) > 0 {
		return fmt.Errorf("%d expectation mismatches", len(mismatches))
	}
	return nil
}

// #endregion replay

func init() {
	inspectCmd.Flags().IntVar(&inspectLast, "last", 10, "show N most recent persisted snapshots")
	replayCmd.Flags().Float32Var(&replayCuriosity, "curiosity", 0, "override the fixture curiosity drive")
}
