package reporter

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/ppiankov/kafkabundle/internal/kafka"
)

// PreflightTextReporter writes preflight results in human-readable text.
type PreflightTextReporter struct {
	writer io.Writer
}

// NewPreflightTextReporter creates a text reporter for preflight results.
func NewPreflightTextReporter(w io.Writer) *PreflightTextReporter {
	return &PreflightTextReporter{writer: w}
}

// GeneratePreflight emits a text report grouped by status, problems first.
func (r *PreflightTextReporter) GeneratePreflight(ctx context.Context, result *PreflightResult) error {
	var writeErr error
	writef := func(format string, args ...any) {
		if writeErr != nil {
			return
		}
		_, writeErr = fmt.Fprintf(r.writer, format, args...)
	}

	writef("Kafka Preflight Report\n")
	writef("======================\n\n")

	if result.Summary != nil {
		summary := result.Summary
		reachable := "yes"
		if !summary.Reachable {
			reachable = "no"
		}
		writef("Summary:\n")
		writef("  Brokers:     %s\n", strings.Join(summary.Brokers, ","))
		writef("  Reachable:   %s\n", reachable)
		writef("  Topics:      %d\n", summary.TotalTopics)
		writef("  OK:          %d\n", summary.OKCount)
		writef("  CREATED:     %d\n", summary.CreatedCount)
		writef("  MISSING:     %d\n", summary.MissingCount)
		writef("  MISMATCH:    %d\n", summary.MismatchCount)
		writef("  FAILED:      %d\n\n", summary.FailedCount)
	}

	if result.Error != "" {
		writef("Error: %s\n", result.Error)
		return writeErr
	}

	if len(result.Findings) == 0 {
		writef("No topics configured.\n")
		return writeErr
	}

	orderedStatuses := []kafka.TopicStatus{
		kafka.TopicStatusFailed,
		kafka.TopicStatusMissing,
		kafka.TopicStatusMismatch,
		kafka.TopicStatusCreated,
		kafka.TopicStatusOK,
	}

	for _, status := range orderedStatuses {
		group := filterFindingsByStatus(result.Findings, status)
		if len(group) == 0 {
			continue
		}

		writef("%s (%d)\n", status, len(group))
		writef("%s\n\n", strings.Repeat("-", len(status)+5))

		sort.Slice(group, func(i, j int) bool {
			return group[i].Topic < group[j].Topic
		})

		for _, finding := range group {
			writef("[%s] %s\n", finding.Status, finding.Topic)
			writef("  Partitions:         %s\n", compare(int(finding.DesiredPartitions), int(finding.ActualPartitions)))
			writef("  Replication Factor: %s\n", compare(int(finding.DesiredReplicationFactor), int(finding.ActualReplicationFactor)))
			if finding.Reason != "" {
				writef("  Reason: %s\n", finding.Reason)
			}
			writef("\n")
		}
	}

	return writeErr
}

func compare(desired, actual int) string {
	if actual == 0 {
		return fmt.Sprintf("want %d", desired)
	}
	return fmt.Sprintf("want %d, have %d", desired, actual)
}

func filterFindingsByStatus(findings []*TopicFinding, status kafka.TopicStatus) []*TopicFinding {
	out := make([]*TopicFinding, 0)
	for _, finding := range findings {
		if finding.Status == status {
			out = append(out, finding)
		}
	}
	return out
}
