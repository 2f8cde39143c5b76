package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Strategy selects how access bindings are enforced on the cluster.
type Strategy string

const (
	StrategyACL  Strategy = "acl"
	StrategyRBAC Strategy = "rbac"
)

// SASL holds SASL authentication configuration
type SASL struct {
	Enabled   bool
	Mechanism string // PLAIN, SCRAM-SHA-256, SCRAM-SHA-512
	Username  string
	Password  string
	Protocol  string // SASL_PLAINTEXT or SASL_SSL
}

// TLS holds TLS/SSL configuration
type TLS struct {
	Enabled            bool
	CACert             string
	ClientCert         string
	ClientKey          string
	InsecureSkipVerify bool
}

// MDS holds the connection settings for the Confluent Metadata Service.
type MDS struct {
	URL            string
	User           string
	Password       string
	KafkaClusterID string
}

// Config is the full configuration surface of a reconciliation run.
type Config struct {
	Brokers      []string
	ClientID     string
	AdminTimeout time.Duration
	SASL         SASL
	TLS          TLS
	MDS          MDS

	LogLevel  string
	LogFormat string
	LogFile   string

	AllowDeleteTopics   bool
	AllowDeleteBindings bool
	AllowDeleteQuotas   bool

	ProjectNamespacing     bool
	MultipleContextsPerDir bool
	Recursive              bool
	DryRun                 bool

	Strategy      Strategy
	OptimizedACLs bool

	TopicDefaultPartitions        int32
	TopicDefaultReplicationFactor int16
	ManagedPrefixes               []string

	StateFile   string
	PlansFile   string
	RolesFiles  []string
	Concurrency int
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Brokers:                       []string{"localhost:9092"},
		ClientID:                      "ktopology",
		AdminTimeout:                  30 * time.Second,
		LogLevel:                      "info",
		LogFormat:                     "text",
		Strategy:                      StrategyACL,
		TopicDefaultPartitions:        -1,
		TopicDefaultReplicationFactor: -1,
		StateFile:                     ".ktopology.db",
		Concurrency:                   8,
	}
}

// SetDefaults registers the default values with v so that flags, env vars
// and the config file all layer on top of them.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("brokers", strings.Join(d.Brokers, ","))
	v.SetDefault("client_id", d.ClientID)
	v.SetDefault("admin_timeout", d.AdminTimeout)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
	v.SetDefault("strategy", string(d.Strategy))
	v.SetDefault("topic_default_partitions", d.TopicDefaultPartitions)
	v.SetDefault("topic_default_replication_factor", d.TopicDefaultReplicationFactor)
	v.SetDefault("state_file", d.StateFile)
	v.SetDefault("concurrency", d.Concurrency)
	v.SetDefault("sasl_mechanism", "PLAIN")
	v.SetDefault("sasl_protocol", "SASL_PLAINTEXT")
}

// Load reads every recognized key out of v.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Brokers:      splitList(v.GetString("brokers")),
		ClientID:     v.GetString("client_id"),
		AdminTimeout: v.GetDuration("admin_timeout"),
		SASL: SASL{
			Enabled:   v.GetBool("sasl_enabled"),
			Mechanism: v.GetString("sasl_mechanism"),
			Username:  v.GetString("sasl_username"),
			Password:  v.GetString("sasl_password"),
			Protocol:  v.GetString("sasl_protocol"),
		},
		TLS: TLS{
			Enabled:            v.GetBool("tls_enabled"),
			CACert:             v.GetString("tls_ca_cert"),
			ClientCert:         v.GetString("tls_client_cert"),
			ClientKey:          v.GetString("tls_client_key"),
			InsecureSkipVerify: v.GetBool("tls_skip_verify"),
		},
		MDS: MDS{
			URL:            v.GetString("mds_url"),
			User:           v.GetString("mds_user"),
			Password:       v.GetString("mds_password"),
			KafkaClusterID: v.GetString("mds_kafka_cluster_id"),
		},
		LogLevel:                      v.GetString("log_level"),
		LogFormat:                     v.GetString("log_format"),
		LogFile:                       v.GetString("log_file"),
		AllowDeleteTopics:             v.GetBool("allow_delete_topics"),
		AllowDeleteBindings:           v.GetBool("allow_delete_bindings"),
		AllowDeleteQuotas:             v.GetBool("allow_delete_quotas"),
		ProjectNamespacing:            v.GetBool("project_namespacing"),
		MultipleContextsPerDir:        v.GetBool("multiple_contexts_per_dir"),
		Recursive:                     v.GetBool("recursive"),
		DryRun:                        v.GetBool("dry_run"),
		Strategy:                      Strategy(strings.ToLower(v.GetString("strategy"))),
		OptimizedACLs:                 v.GetBool("optimized_acls"),
		TopicDefaultPartitions:        v.GetInt32("topic_default_partitions"),
		TopicDefaultReplicationFactor: int16(v.GetInt("topic_default_replication_factor")),
		ManagedPrefixes:               v.GetStringSlice("managed_prefixes"),
		StateFile:                     v.GetString("state_file"),
		PlansFile:                     v.GetString("plans_file"),
		RolesFiles:                    v.GetStringSlice("roles_files"),
		Concurrency:                   v.GetInt("concurrency"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the options that cannot be fixed up with a default.
func (c *Config) Validate() error {
	switch c.Strategy {
	case StrategyACL:
	case StrategyRBAC:
		if c.MDS.URL == "" {
			return fmt.Errorf("strategy %q requires mds_url", c.Strategy)
		}
		if c.MDS.KafkaClusterID == "" {
			return fmt.Errorf("strategy %q requires mds_kafka_cluster_id", c.Strategy)
		}
	default:
		return fmt.Errorf("unknown authorization strategy %q (want acl or rbac)", c.Strategy)
	}
	if len(c.Brokers) == 0 {
		return fmt.Errorf("at least one broker address is required")
	}
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
