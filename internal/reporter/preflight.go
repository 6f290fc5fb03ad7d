package reporter

import (
	"context"
	"errors"

	"github.com/ppiankov/kafkabundle/internal/kafka"
)

// PreflightSummary contains high-level preflight counters.
type PreflightSummary struct {
	Brokers       []string `json:"brokers"`
	Reachable     bool     `json:"reachable"`
	TotalTopics   int      `json:"total_topics"`
	OKCount       int      `json:"ok_count"`
	CreatedCount  int      `json:"created_count"`
	MissingCount  int      `json:"missing_count"`
	MismatchCount int      `json:"mismatch_count"`
	FailedCount   int      `json:"failed_count"`
}

// TopicFinding is the preflight outcome for one topic.
type TopicFinding struct {
	Topic                    string            `json:"topic"`
	Status                   kafka.TopicStatus `json:"status"`
	DesiredPartitions        int32             `json:"desired_partitions"`
	ActualPartitions         int32             `json:"actual_partitions,omitempty"`
	DesiredReplicationFactor int16             `json:"desired_replication_factor"`
	ActualReplicationFactor  int16             `json:"actual_replication_factor,omitempty"`
	Reason                   string            `json:"reason,omitempty"`
}

// PreflightResult is the full output model for the preflight command.
type PreflightResult struct {
	Summary  *PreflightSummary `json:"summary"`
	Findings []*TopicFinding   `json:"findings"`
	// Error is set when the cluster could not be reached at all.
	Error string `json:"error,omitempty"`
}

// PreflightReporter generates preflight command output.
type PreflightReporter interface {
	GeneratePreflight(ctx context.Context, result *PreflightResult) error
}

// NewPreflightResult builds the report model from EnsureTopics output.
func NewPreflightResult(brokers []string, results []kafka.TopicResult, err error) *PreflightResult {
	summary := &PreflightSummary{
		Brokers:     append([]string(nil), brokers...),
		Reachable:   !errors.Is(err, kafka.ErrConnectivity),
		TotalTopics: len(results),
	}
	out := &PreflightResult{Summary: summary, Findings: make([]*TopicFinding, 0, len(results))}
	if !summary.Reachable {
		out.Error = err.Error()
	}

	for _, r := range results {
		finding := &TopicFinding{
			Topic:                    r.Topic,
			Status:                   r.Status,
			DesiredPartitions:        r.DesiredPartitions,
			ActualPartitions:         r.ActualPartitions,
			DesiredReplicationFactor: r.DesiredReplicationFactor,
			ActualReplicationFactor:  r.ActualReplicationFactor,
		}
		if r.Err != nil {
			finding.Reason = r.Err.Error()
		}

		switch r.Status {
		case kafka.TopicStatusOK:
			summary.OKCount++
		case kafka.TopicStatusCreated:
			summary.CreatedCount++
		case kafka.TopicStatusMissing:
			summary.MissingCount++
		case kafka.TopicStatusMismatch:
			summary.MismatchCount++
		default:
			summary.FailedCount++
		}
		out.Findings = append(out.Findings, finding)
	}

	return out
}
