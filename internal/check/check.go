// Package check runs lightweight post-persist validation on the field:
// score bounds, floor monotonicity, and mixing matrix stochasticity.
// Failures are reported for logging, never escalated; the reflexive
// loop keeps running regardless.
package check

import (
	"fmt"

	"github.com/danielpatrickdp/coherence-field/go-companion/internal/field"
	"github.com/danielpatrickdp/coherence-field/go-companion/internal/mixer"
)

// #region audit-config
// AuditConfig holds tolerances for post-persist validation.
type AuditConfig struct {
	// MatrixTolerance bounds row/column sum deviation from 1.
	MatrixTolerance float64
	// FloorSlack absorbs float rounding in the floor comparison.
	FloorSlack float32
}

// DefaultAuditConfig returns the standard tolerances.
func DefaultAuditConfig() AuditConfig {
	return AuditConfig{
		MatrixTolerance: 1e-3,
		FloorSlack:      1e-5,
	}
}

// #endregion audit-config

// #region audit-metric
// AuditMetric captures a single validation check result.
type AuditMetric struct {
	Name  string
	Value float64
	Pass  bool
}

// AuditResult is the output of a post-persist audit.
type AuditResult struct {
	Passed  bool
	Metrics []AuditMetric
	Reason  string
}

// #endregion audit-metric

// #region auditor
// Auditor validates field snapshots and mixing matrices after persists.
type Auditor struct {
	config AuditConfig
}

// NewAuditor creates an auditor with the given configuration.
func NewAuditor(config AuditConfig) *Auditor {
	return &Auditor{config: config}
}

// Run validates one snapshot and its matrix. m may be nil before the
// first mixing pass.
func (a *Auditor) Run(snap *field.Snapshot, fieldCfg field.Config, m *mixer.Matrix) AuditResult {
	var metrics []AuditMetric
	passed := true
	var failReasons []string

	// 1. Every visited score stays in [0,1] and at or above its floor.
	bounds, floors := true, true
	var worstScore, worstFloorGap float64
	for i := range snap.Cells {
		cell := &snap.Cells[i]
		if !cell.Visited {
			continue
		}
		if cell.Score < 0 || cell.Score > 1 {
			bounds = false
			worstScore = float64(cell.Score)
		}
		floor := fieldCfg.EarnedFloor(cell.Count)
		if gap := float64(floor - cell.Score); cell.Score < floor-a.config.FloorSlack && gap > worstFloorGap {
			floors = false
			worstFloorGap = gap
		}
	}
	metrics = append(metrics, AuditMetric{Name: "score_bounds", Value: worstScore, Pass: bounds})
	if !bounds {
		passed = false
		failReasons = append(failReasons, fmt.Sprintf("score %.4f outside [0,1]", worstScore))
	}
	metrics = append(metrics, AuditMetric{Name: "floor_monotonicity", Value: worstFloorGap, Pass: floors})
	if !floors {
		passed = false
		failReasons = append(failReasons, fmt.Sprintf("score fell %.5f below its earned floor", worstFloorGap))
	}

	// 2. Matrix stochasticity: row and column sums near 1.
	if m != nil && m.N() > 1 {
		rows, cols := m.RowColSums()
		var worst float64
		for i := range rows {
			if d := absf(rows[i] - 1); d > worst {
				worst = d
			}
			if d := absf(cols[i] - 1); d > worst {
				worst = d
			}
		}
		stochastic := worst <= a.config.MatrixTolerance
		metrics = append(metrics, AuditMetric{Name: "matrix_stochasticity", Value: worst, Pass: stochastic})
		if !stochastic {
			passed = false
			failReasons = append(failReasons, fmt.Sprintf("matrix sums deviate by %.6f", worst))
		}
	}

	reason := "all checks passed"
	if !passed {
		reason = fmt.Sprintf("audit failed: %s", failReasons[0])
		if len(failReasons) > 1 {
			reason = fmt.Sprintf("audit failed: %d checks: %s", len(failReasons), failReasons[0])
		}
	}
	return AuditResult{Passed: passed, Metrics: metrics, Reason: reason}
}

// #endregion auditor

// #region helpers
func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// #endregion helpers
