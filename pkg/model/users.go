package model

const (
	DefaultConsumerGroup = "*"

	DefaultConnectStatusTopic  = "connect-status"
	DefaultConnectOffsetTopic  = "connect-offsets"
	DefaultConnectConfigsTopic = "connect-configs"
	DefaultConnectGroup        = "connect-cluster"

	DefaultKsqlDBID = "default_"
)

// Topics lists the topics a principal reads from and writes to.
type Topics struct {
	Read  []string `yaml:"read"`
	Write []string `yaml:"write"`
}

// Consumer reads from a topic with a consumer group.
type Consumer struct {
	Principal string `yaml:"principal"`
	Group     string `yaml:"group"`
}

// GroupOrDefault returns the consumer group, "*" when unset.
func (c Consumer) GroupOrDefault() string {
	return orDefault(c.Group, DefaultConsumerGroup)
}

// Producer writes to a topic.
type Producer struct {
	Principal     string `yaml:"principal"`
	TransactionID string `yaml:"transactionId"`
	Idempotence   bool   `yaml:"idempotence"`
	// AutoCreate grants the producer permission to create the topic.
	AutoCreate bool `yaml:"autoCreate"`
}

// KStream is a Kafka Streams application.
type KStream struct {
	Principal     string `yaml:"principal"`
	ApplicationID string `yaml:"applicationId"`
	Topics        Topics `yaml:"topics"`
	ExactlyOnce   bool   `yaml:"exactlyOnce"`
}

// ApplicationIDOrDefault returns the application id, or prefix when unset.
func (s KStream) ApplicationIDOrDefault(prefix string) string {
	return orDefault(s.ApplicationID, prefix)
}

// Connector is a Kafka Connect worker principal.
type Connector struct {
	Principal    string   `yaml:"principal"`
	Group        string   `yaml:"group"`
	StatusTopic  string   `yaml:"status_topic"`
	OffsetTopic  string   `yaml:"offset_topic"`
	ConfigsTopic string   `yaml:"configs_topic"`
	Topics       Topics   `yaml:"topics"`
	Connectors   []string `yaml:"connectors"`
}

func (c Connector) GroupOrDefault() string {
	return orDefault(c.Group, DefaultConnectGroup)
}

func (c Connector) StatusTopicOrDefault() string {
	return orDefault(c.StatusTopic, DefaultConnectStatusTopic)
}

func (c Connector) OffsetTopicOrDefault() string {
	return orDefault(c.OffsetTopic, DefaultConnectOffsetTopic)
}

func (c Connector) ConfigsTopicOrDefault() string {
	return orDefault(c.ConfigsTopic, DefaultConnectConfigsTopic)
}

// KsqlApp is a principal running queries on a ksqlDB cluster.
type KsqlApp struct {
	Principal string `yaml:"principal"`
	KsqlDBID  string `yaml:"ksqlDbId"`
	Topics    Topics `yaml:"topics"`
}

func (k KsqlApp) KsqlDBIDOrDefault() string {
	return orDefault(k.KsqlDBID, DefaultKsqlDBID)
}

// SchemaSubjects grants a principal a role on schema registry subjects.
type SchemaSubjects struct {
	Principal string   `yaml:"principal"`
	Subjects  []string `yaml:"subjects"`
	Role      string   `yaml:"role"`
	Prefixed  bool     `yaml:"prefixed"`
}

// Other is an object bound to a custom role. Its fields fill the role's
// resource name placeholders.
type Other map[string]string

// Principal returns the principal the role is granted to.
func (o Other) Principal() string {
	return o["principal"]
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
