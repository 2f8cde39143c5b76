package kafka

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/hashicorp/go-multierror"

	"github.com/digitalis-io/ktopology/pkg/config"
	"github.com/digitalis-io/ktopology/pkg/logger"
)

// clusterAdmin is the part of sarama.ClusterAdmin the reconciler uses.
type clusterAdmin interface {
	ListTopics() (map[string]sarama.TopicDetail, error)
	DescribeConfig(resource sarama.ConfigResource) ([]sarama.ConfigEntry, error)
	CreateTopic(topic string, detail *sarama.TopicDetail, validateOnly bool) error
	DeleteTopic(topic string) error
	IncrementalAlterConfig(resourceType sarama.ConfigResourceType, name string, entries map[string]sarama.IncrementalAlterConfigsEntry, validateOnly bool) error
	CreatePartitions(topic string, count int32, assignment [][]int32, validateOnly bool) error
	CreateACLs([]*sarama.ResourceAcls) error
	ListAcls(filter sarama.AclFilter) ([]sarama.ResourceAcls, error)
	DeleteACL(filter sarama.AclFilter, validateOnly bool) ([]sarama.MatchingAcl, error)
	DescribeCluster() (brokers []*sarama.Broker, controllerID int32, err error)
	DescribeClientQuotas(components []sarama.QuotaFilterComponent, strict bool) ([]sarama.DescribeClientQuotasEntry, error)
	AlterClientQuotas(entity []sarama.QuotaEntityComponent, op sarama.ClientQuotasOp, validateOnly bool) error
	Close() error
}

// Options holds the connection settings of the admin client.
type Options struct {
	Brokers      []string
	ClientID     string
	AdminTimeout time.Duration
	SASL         config.SASL
	TLS          config.TLS
}

// OptionsFromConfig extracts the connection settings from cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Brokers:      cfg.Brokers,
		ClientID:     cfg.ClientID,
		AdminTimeout: cfg.AdminTimeout,
		SASL:         cfg.SASL,
		TLS:          cfg.TLS,
	}
}

// Client is the admin client used to read and reconcile the cluster.
type Client struct {
	brokers []string
	admin   clusterAdmin
}

// ConnectivityError reports that the cluster could not be reached. Nothing
// is planned against a cluster in that state.
type ConnectivityError struct {
	Brokers []string
	Err     error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("failed to reach kafka cluster %s: %v", strings.Join(e.Brokers, ","), e.Err)
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

// NewClient connects a cluster admin to the brokers of opts.
func NewClient(opts Options) (*Client, error) {
	log := logger.Get()
	log.WithField("brokers", opts.Brokers).Debug("Creating new Kafka client")

	cfg, err := newSaramaConfig(opts)
	if err != nil {
		return nil, err
	}
	admin, err := sarama.NewClusterAdmin(opts.Brokers, cfg)
	if err != nil {
		log.WithError(err).WithField("brokers", opts.Brokers).Error("Failed to create cluster admin")
		return nil, &ConnectivityError{Brokers: opts.Brokers, Err: err}
	}

	log.WithField("brokers", opts.Brokers).Info("Successfully connected to Kafka cluster")
	return &Client{brokers: opts.Brokers, admin: admin}, nil
}

func newClient(brokers []string, admin clusterAdmin) *Client {
	return &Client{brokers: brokers, admin: admin}
}

func newSaramaConfig(opts Options) (*sarama.Config, error) {
	log := logger.Get()

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_8_0_0
	if opts.ClientID != "" {
		cfg.ClientID = opts.ClientID
	}
	cfg.Admin.Timeout = 10 * time.Second
	if opts.AdminTimeout > 0 {
		cfg.Admin.Timeout = opts.AdminTimeout
	}
	cfg.Metadata.Retry.Max = 3
	cfg.Metadata.Retry.Backoff = 250 * time.Millisecond
	cfg.Metadata.Timeout = 10 * time.Second

	if opts.SASL.Enabled {
		log.WithFields(map[string]interface{}{
			"mechanism": opts.SASL.Mechanism,
			"username":  opts.SASL.Username,
			"protocol":  opts.SASL.Protocol,
		}).Info("Configuring SASL authentication")

		cfg.Net.SASL.Enable = true
		cfg.Net.SASL.User = opts.SASL.Username
		cfg.Net.SASL.Password = opts.SASL.Password

		switch strings.ToUpper(opts.SASL.Mechanism) {
		case "", "PLAIN":
			cfg.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		case "SCRAM-SHA-256":
			cfg.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA256
			cfg.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
				return &XDGSCRAMClient{HashGeneratorFcn: SHA256}
			}
		case "SCRAM-SHA-512":
			cfg.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA512
			cfg.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
				return &XDGSCRAMClient{HashGeneratorFcn: SHA512}
			}
		default:
			return nil, fmt.Errorf("unsupported SASL mechanism: %s", opts.SASL.Mechanism)
		}

		if strings.ToUpper(opts.SASL.Protocol) == "SASL_SSL" {
			cfg.Net.TLS.Enable = true
		}
	}

	if opts.TLS.Enabled {
		tlsConfig, err := newTLSConfig(opts.TLS)
		if err != nil {
			return nil, err
		}
		cfg.Net.TLS.Enable = true
		cfg.Net.TLS.Config = tlsConfig
		log.Info("TLS configuration is applied")
	}
	return cfg, nil
}

func newTLSConfig(t config.TLS) (*tls.Config, error) {
	tlsConfig := &tls.Config{InsecureSkipVerify: t.InsecureSkipVerify}
	if t.CACert != "" {
		caCert, err := os.ReadFile(t.CACert)
		if err != nil {
			return nil, fmt.Errorf("could not read ca certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if ok := pool.AppendCertsFromPEM(caCert); !ok {
			return nil, fmt.Errorf("failed to append ca cert to pool")
		}
		tlsConfig.RootCAs = pool
	}
	if t.ClientCert != "" && t.ClientKey != "" {
		cert, err := tls.LoadX509KeyPair(t.ClientCert, t.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("could not load client key pair: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	return tlsConfig, nil
}

// HealthCheck asks the cluster for its brokers.
func (c *Client) HealthCheck() error {
	brokers, controllerID, err := c.admin.DescribeCluster()
	if err != nil {
		logger.Get().WithError(err).WithField("brokers", c.brokers).Error("Health check failed")
		return &ConnectivityError{Brokers: c.brokers, Err: err}
	}
	logger.Get().WithFields(map[string]interface{}{
		"brokers":    len(brokers),
		"controller": controllerID,
	}).Debug("Health check passed")
	return nil
}

// TopicInfo is the live layout of a topic.
type TopicInfo struct {
	Name              string
	Partitions        int32
	ReplicationFactor int16
}

// ListTopics returns every topic of the cluster keyed by name.
func (c *Client) ListTopics() (map[string]TopicInfo, error) {
	metadata, err := c.admin.ListTopics()
	if err != nil {
		return nil, fmt.Errorf("failed to list topics: %w", err)
	}
	topics := make(map[string]TopicInfo, len(metadata))
	for name, details := range metadata {
		topics[name] = TopicInfo{
			Name:              name,
			Partitions:        details.NumPartitions,
			ReplicationFactor: details.ReplicationFactor,
		}
	}
	return topics, nil
}

// DescribeTopicConfig returns the configuration set on the topic itself,
// without broker and default values.
func (c *Client) DescribeTopicConfig(name string) (map[string]string, error) {
	entries, err := c.admin.DescribeConfig(sarama.ConfigResource{
		Type: sarama.TopicResource,
		Name: name,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe config of topic %s: %w", name, err)
	}
	configs := make(map[string]string)
	for _, entry := range entries {
		if entry.Source != sarama.SourceTopic {
			continue
		}
		configs[entry.Name] = entry.Value
	}
	return configs, nil
}

// CreateTopic creates a topic. A topic that already exists is not an error.
// Use -1 for the broker default partitions or replication factor.
func (c *Client) CreateTopic(name string, partitions int32, replicationFactor int16, configs map[string]string) error {
	log := logger.Get()
	if name == "" {
		return fmt.Errorf("topic name cannot be empty")
	}

	detail := &sarama.TopicDetail{
		NumPartitions:     partitions,
		ReplicationFactor: replicationFactor,
		ConfigEntries:     make(map[string]*string, len(configs)),
	}
	for k, v := range configs {
		detail.ConfigEntries[k] = &v
	}

	err := c.admin.CreateTopic(name, detail, false)
	if errors.Is(err, sarama.ErrTopicAlreadyExists) {
		log.WithField("topic", name).Warn("Topic already exists, skipping creation")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create topic %s: %w", name, err)
	}
	log.WithFields(map[string]interface{}{
		"topic":             name,
		"partitions":        partitions,
		"replicationFactor": replicationFactor,
	}).Info("Successfully created topic")
	return nil
}

// DeleteTopics deletes every named topic and reports each failure.
func (c *Client) DeleteTopics(names []string) error {
	log := logger.Get()
	var result *multierror.Error
	for _, name := range names {
		if err := c.admin.DeleteTopic(name); err != nil {
			log.WithField("topic", name).WithError(err).Error("Failed to delete topic")
			result = multierror.Append(result, fmt.Errorf("failed to delete topic %s: %w", name, err))
			continue
		}
		log.WithField("topic", name).Info("Successfully deleted topic")
	}
	return result.ErrorOrNil()
}

// IncrementalAlterConfig sets and deletes topic config keys in one request.
func (c *Client) IncrementalAlterConfig(name string, set map[string]string, remove []string) error {
	entries := make(map[string]sarama.IncrementalAlterConfigsEntry, len(set)+len(remove))
	keys := make([]string, 0, len(set))
	for k, v := range set {
		entries[k] = sarama.IncrementalAlterConfigsEntry{
			Operation: sarama.IncrementalAlterConfigsOperationSet,
			Value:     &v,
		}
		keys = append(keys, k)
	}
	for _, k := range remove {
		entries[k] = sarama.IncrementalAlterConfigsEntry{Operation: sarama.IncrementalAlterConfigsOperationDelete}
	}
	sort.Strings(keys)

	if err := c.admin.IncrementalAlterConfig(sarama.TopicResource, name, entries, false); err != nil {
		return fmt.Errorf("failed to update topic config of %s: %w", name, err)
	}
	logger.Get().WithFields(map[string]interface{}{
		"topic":   name,
		"set":     keys,
		"deleted": remove,
	}).Info("Successfully updated topic configuration")
	return nil
}

// IncreasePartitions grows a topic to count partitions. It never shrinks a
// topic.
func (c *Client) IncreasePartitions(name string, count int32) error {
	metadata, err := c.admin.ListTopics()
	if err != nil {
		return fmt.Errorf("failed to list topics: %w", err)
	}
	topic, ok := metadata[name]
	if !ok {
		return fmt.Errorf("topic %s not found", name)
	}
	if count <= topic.NumPartitions {
		return fmt.Errorf("new partition count (%d) must be greater than current count (%d)", count, topic.NumPartitions)
	}
	if err := c.admin.CreatePartitions(name, count, nil, false); err != nil {
		return fmt.Errorf("failed to modify partitions of %s: %w", name, err)
	}
	logger.Get().WithFields(map[string]interface{}{
		"topic":         name,
		"oldPartitions": topic.NumPartitions,
		"newPartitions": count,
	}).Info("Successfully modified topic partitions")
	return nil
}

// Close releases the admin connection.
func (c *Client) Close() error {
	if c.admin == nil {
		return nil
	}
	if err := c.admin.Close(); err != nil {
		return fmt.Errorf("failed to close admin: %w", err)
	}
	return nil
}
