package model

import (
	"time"

	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/llm"
)

// Report 一次研究任务的最终结果
type Report struct {
	JobID        string              `json:"job_id"`
	Hypothesis   Hypothesis          `json:"hypothesis"`
	Keywords     ExtractedKeywords   `json:"keywords"`
	Sources      []string            `json:"sources"`
	StaleWarning string              `json:"stale_warning,omitempty"`
	Signals      []PainSignal        `json:"signals"`
	Evidence     []ScoredItem        `json:"evidence"` // RELATED/ADJACENT 条目，仅供参考
	Clusters     []Cluster           `json:"clusters"`
	Metrics      FilteringMetrics    `json:"metrics"`
	Expansion    []ExpansionAttempt  `json:"expansion"`
	Decisions    []RelevanceDecision `json:"decisions"`
	Usage        llm.UsageSummary    `json:"usage"`
	StartedAt    time.Time           `json:"started_at"`
	FinishedAt   time.Time           `json:"finished_at"`
}
