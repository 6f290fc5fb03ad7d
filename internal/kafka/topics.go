package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
)

// topicAdmin is the subset of *kadm.Client the registrar needs.
type topicAdmin interface {
	ListTopics(ctx context.Context, topics ...string) (kadm.TopicDetails, error)
	CreateTopics(ctx context.Context, partitions int32, replicationFactor int16, configs map[string]*string, topics ...string) (kadm.CreateTopicResponses, error)
}

// TopicRegistrar verifies or creates topics ahead of producer and consumer
// registration. Every operation checks connectivity first.
type TopicRegistrar struct {
	admin   topicAdmin
	checker *ConnectivityChecker
}

// NewTopicRegistrar creates a registrar.
func NewTopicRegistrar(admin topicAdmin, checker *ConnectivityChecker) *TopicRegistrar {
	return &TopicRegistrar{admin: admin, checker: checker}
}

// CheckConnectivity runs only the connectivity probe.
func (r *TopicRegistrar) CheckConnectivity(ctx context.Context) error {
	return r.checker.Check(ctx)
}

// EnsureTopicExists makes sure spec exists on the cluster.
//
// A missing topic is created when opts.CreateIfMissing is set and is a
// configuration error otherwise. With opts.Verify an existing topic must
// match the desired partition count and replication factor.
func (r *TopicRegistrar) EnsureTopicExists(ctx context.Context, spec TopicSpec, opts EnsureOptions) (TopicResult, error) {
	result := TopicResult{
		Topic:                    spec.Name,
		DesiredPartitions:        spec.Partitions,
		DesiredReplicationFactor: spec.ReplicationFactor,
	}

	if err := r.checker.Check(ctx); err != nil {
		result.Status = TopicStatusFailed
		result.Err = err
		return result, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.checker.timeout)
	defer cancel()

	detail, found, err := r.describe(ctx, spec.Name)
	if err != nil {
		result.Status = TopicStatusFailed
		result.Err = err
		return result, err
	}

	if !found {
		if !opts.CreateIfMissing {
			result.Status = TopicStatusMissing
			result.Err = configError(spec.Name, "", "topic does not exist and creation was not requested")
			return result, result.Err
		}

		created, err := r.create(ctx, spec)
		if err != nil {
			result.Status = TopicStatusFailed
			result.Err = err
			return result, err
		}
		if created {
			slog.Info("created topic",
				"topic", spec.Name,
				"partitions", spec.Partitions,
				"replication_factor", spec.ReplicationFactor,
			)
			result.Status = TopicStatusCreated
			result.ActualPartitions = spec.Partitions
			result.ActualReplicationFactor = spec.ReplicationFactor
			return result, nil
		}

		// Someone else created it between describe and create.
		detail, found, err = r.describe(ctx, spec.Name)
		if err != nil {
			result.Status = TopicStatusFailed
			result.Err = err
			return result, err
		}
		if !found {
			result.Status = TopicStatusFailed
			result.Err = r.connectivityError("describe topic", errors.New("topic reported as existing but not visible in metadata"))
			return result, result.Err
		}
	}

	result.ActualPartitions = int32(len(detail.Partitions))
	result.ActualReplicationFactor = replicationFactor(detail)
	result.Status = TopicStatusOK

	if !opts.Verify {
		return result, nil
	}

	if result.ActualPartitions != spec.Partitions {
		result.Status = TopicStatusMismatch
		result.Err = configError(spec.Name, "partitions",
			fmt.Sprintf("topic has %d partitions, expected %d", result.ActualPartitions, spec.Partitions))
		return result, result.Err
	}
	if result.ActualReplicationFactor != spec.ReplicationFactor {
		result.Status = TopicStatusMismatch
		result.Err = configError(spec.Name, "replication_factor",
			fmt.Sprintf("topic has replication factor %d, expected %d", result.ActualReplicationFactor, spec.ReplicationFactor))
		return result, result.Err
	}

	slog.Debug("verified topic configuration",
		"topic", spec.Name,
		"partitions", result.ActualPartitions,
		"replication_factor", result.ActualReplicationFactor,
	)
	return result, nil
}

func (r *TopicRegistrar) describe(ctx context.Context, topic string) (kadm.TopicDetail, bool, error) {
	details, err := r.admin.ListTopics(ctx, topic)
	if err != nil {
		return kadm.TopicDetail{}, false, r.classify(topic, "describe topic", err)
	}

	detail, ok := details[topic]
	if !ok || errors.Is(detail.Err, kerr.UnknownTopicOrPartition) {
		return kadm.TopicDetail{}, false, nil
	}
	if detail.Err != nil {
		return kadm.TopicDetail{}, false, r.classify(topic, "describe topic", detail.Err)
	}

	return detail, true, nil
}

// create reports false when the topic already existed.
func (r *TopicRegistrar) create(ctx context.Context, spec TopicSpec) (bool, error) {
	var configs map[string]*string
	if len(spec.Configs) > 0 {
		configs = make(map[string]*string, len(spec.Configs))
		for k, v := range spec.Configs {
			configs[k] = &v
		}
	}

	responses, err := r.admin.CreateTopics(ctx, spec.Partitions, spec.ReplicationFactor, configs, spec.Name)
	if err != nil {
		return false, r.classify(spec.Name, "create topic", err)
	}

	resp, ok := responses[spec.Name]
	if !ok {
		return false, r.connectivityError("create topic", errors.New("no response for topic"))
	}
	if errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return false, nil
	}
	if resp.Err != nil {
		err := resp.Err
		if resp.ErrMessage != "" {
			err = fmt.Errorf("%w: %s", resp.Err, resp.ErrMessage)
		}
		return false, r.classify(spec.Name, "create topic", err)
	}

	return true, nil
}

// classify maps an admin failure onto the error taxonomy: rejections that
// describe the request are configuration errors, everything else means the
// cluster could not serve it in time.
func (r *TopicRegistrar) classify(topic, op string, err error) error {
	switch {
	case errors.Is(err, kerr.InvalidPartitions),
		errors.Is(err, kerr.InvalidReplicationFactor),
		errors.Is(err, kerr.InvalidReplicaAssignment),
		errors.Is(err, kerr.InvalidConfig),
		errors.Is(err, kerr.InvalidTopicException),
		errors.Is(err, kerr.PolicyViolation),
		errors.Is(err, kerr.TopicAuthorizationFailed),
		errors.Is(err, kerr.ClusterAuthorizationFailed):
		return &ConfigurationError{Topic: topic, Reason: op + " rejected by broker", Err: err}
	default:
		return r.connectivityError(op, err)
	}
}

func (r *TopicRegistrar) connectivityError(op string, err error) error {
	return &ConnectivityError{
		Brokers: r.checker.brokers,
		Timeout: r.checker.timeout,
		Op:      op,
		Err:     err,
	}
}

// replicationFactor reads the replica count of the lowest partition.
func replicationFactor(detail kadm.TopicDetail) int16 {
	if len(detail.Partitions) == 0 {
		return 0
	}

	ids := make([]int32, 0, len(detail.Partitions))
	for id := range detail.Partitions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return int16(len(detail.Partitions[ids[0]].Replicas))
}
