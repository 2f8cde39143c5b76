package model

import (
	"errors"
	"fmt"
	"strings"
)

const (
	DefaultSchemaRegistryTopic = "_schemas"
	DefaultSchemaRegistryGroup = "schema-registry"
)

// Quota keys understood by the brokers.
const (
	QuotaProducerByteRate  = "producer_byte_rate"
	QuotaConsumerByteRate  = "consumer_byte_rate"
	QuotaRequestPercentage = "request_percentage"
)

// Platform holds the cluster-wide declarations of a topology.
type Platform struct {
	Kafka          KafkaPlatform          `yaml:"kafka"`
	SchemaRegistry SchemaRegistryPlatform `yaml:"schema_registry"`
	KsqlDB         KsqlDBPlatform         `yaml:"ksqldb"`
}

type KafkaPlatform struct {
	Quotas []Quota `yaml:"quotas"`
	// RBAC maps a cluster-scoped role to its principals.
	RBAC map[string][]string `yaml:"rbac"`
}

type SchemaRegistryPlatform struct {
	Instances []SchemaRegistryInstance `yaml:"instances"`
}

type KsqlDBPlatform struct {
	Instances []KsqlServerInstance `yaml:"instances"`
}

type SchemaRegistryInstance struct {
	Principal string `yaml:"principal"`
	Topic     string `yaml:"topic"`
	Group     string `yaml:"group"`
}

func (s SchemaRegistryInstance) TopicOrDefault() string {
	return orDefault(s.Topic, DefaultSchemaRegistryTopic)
}

func (s SchemaRegistryInstance) GroupOrDefault() string {
	return orDefault(s.Group, DefaultSchemaRegistryGroup)
}

type KsqlServerInstance struct {
	Principal string `yaml:"principal"`
	KsqlDBID  string `yaml:"ksqlDbId"`
	Owner     string `yaml:"owner"`
}

func (k KsqlServerInstance) KsqlDBIDOrDefault() string {
	return orDefault(k.KsqlDBID, DefaultKsqlDBID)
}

// Quota is a client quota assigned to a user principal. Nil fields are not
// enforced.
type Quota struct {
	Principal         string   `yaml:"principal" json:"principal"`
	ProducerByteRate  *float64 `yaml:"producer_byte_rate" json:"producer_byte_rate,omitempty"`
	ConsumerByteRate  *float64 `yaml:"consumer_byte_rate" json:"consumer_byte_rate,omitempty"`
	RequestPercentage *float64 `yaml:"request_percentage" json:"request_percentage,omitempty"`
}

// User returns the quota entity name, the principal without its "User:"
// type prefix.
func (q Quota) User() string {
	return strings.TrimPrefix(q.Principal, "User:")
}

// Validate rejects a quota without a principal or without any value.
func (q Quota) Validate() error {
	if q.User() == "" {
		return errors.New("quota without a principal")
	}
	if len(q.Values()) == 0 {
		return fmt.Errorf("quota of %s declares no value", q.Principal)
	}
	return nil
}

// Values returns the declared quota values keyed by broker quota key.
func (q Quota) Values() map[string]float64 {
	out := map[string]float64{}
	if q.ProducerByteRate != nil {
		out[QuotaProducerByteRate] = *q.ProducerByteRate
	}
	if q.ConsumerByteRate != nil {
		out[QuotaConsumerByteRate] = *q.ConsumerByteRate
	}
	if q.RequestPercentage != nil {
		out[QuotaRequestPercentage] = *q.RequestPercentage
	}
	return out
}

// QuotaFromValues builds a quota for principal out of broker quota values.
func QuotaFromValues(principal string, values map[string]float64) Quota {
	q := Quota{Principal: principal}
	if v, ok := values[QuotaProducerByteRate]; ok {
		q.ProducerByteRate = &v
	}
	if v, ok := values[QuotaConsumerByteRate]; ok {
		q.ConsumerByteRate = &v
	}
	if v, ok := values[QuotaRequestPercentage]; ok {
		q.RequestPercentage = &v
	}
	return q
}
