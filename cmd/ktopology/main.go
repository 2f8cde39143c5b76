package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/digitalis-io/ktopology/pkg/config"
	"github.com/digitalis-io/ktopology/pkg/kafka"
	"github.com/digitalis-io/ktopology/pkg/logger"
	"github.com/digitalis-io/ktopology/pkg/mds"
)

// These variables are set via ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var cfgFile string

// flagKeys maps every persistent flag to its configuration key.
var flagKeys = map[string]string{
	"brokers":                          "brokers",
	"client-id":                        "client_id",
	"admin-timeout":                    "admin_timeout",
	"log-level":                        "log_level",
	"log-format":                       "log_format",
	"log-file":                         "log_file",
	"sasl":                             "sasl_enabled",
	"sasl-mechanism":                   "sasl_mechanism",
	"sasl-username":                    "sasl_username",
	"sasl-password":                    "sasl_password",
	"sasl-protocol":                    "sasl_protocol",
	"tls":                              "tls_enabled",
	"tls-ca-cert":                      "tls_ca_cert",
	"tls-client-cert":                  "tls_client_cert",
	"tls-client-key":                   "tls_client_key",
	"tls-skip-verify":                  "tls_skip_verify",
	"allow-delete-topics":              "allow_delete_topics",
	"allow-delete-bindings":            "allow_delete_bindings",
	"allow-delete-quotas":              "allow_delete_quotas",
	"project-namespacing":              "project_namespacing",
	"multiple-contexts-per-dir":        "multiple_contexts_per_dir",
	"recursive":                        "recursive",
	"dry-run":                          "dry_run",
	"strategy":                         "strategy",
	"optimized-acls":                   "optimized_acls",
	"topic-default-partitions":         "topic_default_partitions",
	"topic-default-replication-factor": "topic_default_replication_factor",
	"managed-prefixes":                 "managed_prefixes",
	"state-file":                       "state_file",
	"plans-file":                       "plans_file",
	"roles-files":                      "roles_files",
	"mds-url":                          "mds_url",
	"mds-user":                         "mds_user",
	"mds-password":                     "mds_password",
	"mds-kafka-cluster-id":             "mds_kafka_cluster_id",
	"concurrency":                      "concurrency",
}

func main() {
	rootCmd := &cobra.Command{
		Use:           "ktopology",
		Short:         "Reconcile a Kafka cluster with a declarative topology",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cfgFile == "" {
				return nil
			}
			viper.SetConfigFile(cfgFile)
			if err := viper.ReadInConfig(); err != nil {
				return fmt.Errorf("failed to read config file %s: %w", cfgFile, err)
			}
			return nil
		},
	}

	d := config.Default()
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Path to a YAML config file")
	flags.StringP("brokers", "b", strings.Join(d.Brokers, ","), "Comma-separated list of Kafka broker addresses")
	flags.String("client-id", d.ClientID, "Kafka client id")
	flags.Duration("admin-timeout", d.AdminTimeout, "Timeout of every admin request")
	flags.String("log-level", d.LogLevel, "Log level (debug, info, warn, error)")
	flags.String("log-format", d.LogFormat, "Log format (text, json)")
	flags.String("log-file", "", "Log file path (if empty, logs to stderr)")

	// SASL authentication flags
	flags.Bool("sasl", false, "Enable SASL authentication")
	flags.String("sasl-mechanism", "PLAIN", "SASL mechanism (PLAIN, SCRAM-SHA-256, SCRAM-SHA-512)")
	flags.String("sasl-username", "", "SASL username")
	flags.String("sasl-password", "", "SASL password")
	flags.String("sasl-protocol", "SASL_PLAINTEXT", "Security protocol (SASL_PLAINTEXT, SASL_SSL)")

	// TLS/SSL flags
	flags.Bool("tls", false, "Enable TLS/SSL")
	flags.String("tls-ca-cert", "", "Path to CA certificate file")
	flags.String("tls-client-cert", "", "Path to client certificate file")
	flags.String("tls-client-key", "", "Path to client key file")
	flags.Bool("tls-skip-verify", false, "Skip TLS certificate verification (insecure)")

	// Reconciliation flags
	flags.Bool("allow-delete-topics", false, "Delete topics no longer declared")
	flags.Bool("allow-delete-bindings", false, "Delete bindings no longer declared")
	flags.Bool("allow-delete-quotas", false, "Delete quotas no longer declared")
	flags.Bool("project-namespacing", false, "Include the project name in the merge key of descriptors")
	flags.Bool("multiple-contexts-per-dir", false, "Allow descriptors of different contexts in one directory")
	flags.Bool("recursive", false, "Read descriptors from subdirectories")
	flags.Bool("dry-run", false, "Plan only, never change the cluster")
	flags.String("strategy", string(d.Strategy), "Access control strategy (acl, rbac)")
	flags.Bool("optimized-acls", false, "Grant project consumers and producers on the project prefix")
	flags.Int32("topic-default-partitions", d.TopicDefaultPartitions, "Partitions of new topics that declare none (-1 for the broker default)")
	flags.Int16("topic-default-replication-factor", d.TopicDefaultReplicationFactor, "Replication factor of new topics that declare none (-1 for the broker default)")
	flags.StringSlice("managed-prefixes", nil, "Topic prefixes owned by this tool, eligible for deletion")
	flags.String("state-file", d.StateFile, "Path of the recorded state database")
	flags.String("plans-file", "", "Path of the topic plans document")
	flags.StringSlice("roles-files", nil, "Custom role documents, merged in order")
	flags.String("mds-url", "", "Metadata service URL (rbac strategy)")
	flags.String("mds-user", "", "Metadata service user")
	flags.String("mds-password", "", "Metadata service password")
	flags.String("mds-kafka-cluster-id", "", "Kafka cluster id used in role binding scopes")
	flags.Int("concurrency", d.Concurrency, "Parallel descriptor parses and config reads")

	// Bind Viper to flags
	for flag, key := range flagKeys {
		_ = viper.BindPFlag(key, flags.Lookup(flag))
	}
	config.SetDefaults(viper.GetViper())

	// Environment variable support
	viper.SetEnvPrefix("KTOPOLOGY") // e.g. KTOPOLOGY_BROKERS
	viper.AutomaticEnv()

	rootCmd.AddCommand(
		newApplyCmd(),
		newPlanCmd(),
		newValidateCmd(),
		newHealthCmd(),
		newVersionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration and initializes the logger from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}
	if err := logger.Init(cfg.LogLevel, cfg.LogFormat, cfg.LogFile); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ktopology version %s\n", Version)
			fmt.Printf("  Build Time: %s\n", BuildTime)
			fmt.Printf("  Git Commit: %s\n", GitCommit)
		},
	}
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the cluster and, with rbac, the metadata service answer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client, err := kafka.NewClient(kafka.OptionsFromConfig(cfg))
			if err != nil {
				return err
			}
			defer closeWithLog("kafka client", client)
			if err := client.HealthCheck(); err != nil {
				return err
			}
			if cfg.Strategy == config.StrategyRBAC {
				if err := mds.NewClient(cfg.MDS, cfg.AdminTimeout).HealthCheck(); err != nil {
					return err
				}
			}
			fmt.Println("ok")
			return nil
		},
	}
}
