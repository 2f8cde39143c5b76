package kafka

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/IBM/sarama"

	"github.com/digitalis-io/ktopology/pkg/logger"
	"github.com/digitalis-io/ktopology/pkg/model"
)

const userPrincipalPrefix = "User:"

// ErrEmptyQuota is returned for a quota alteration that would neither set
// nor remove any value. The broker keeps no entity for it.
var ErrEmptyQuota = errors.New("quota declares no value")

var quotaKeys = []string{
	model.QuotaProducerByteRate,
	model.QuotaConsumerByteRate,
	model.QuotaRequestPercentage,
}

func userEntity(principal string) []sarama.QuotaEntityComponent {
	return []sarama.QuotaEntityComponent{{
		EntityType: sarama.QuotaEntityUser,
		MatchType:  sarama.QuotaMatchExact,
		Name:       strings.TrimPrefix(principal, userPrincipalPrefix),
	}}
}

// DescribeClientQuotas returns the quotas of every named user entity keyed
// by principal. Default and client-id entities are left out.
func (c *Client) DescribeClientQuotas() (map[string]model.Quota, error) {
	entries, err := c.admin.DescribeClientQuotas([]sarama.QuotaFilterComponent{{
		EntityType: sarama.QuotaEntityUser,
		MatchType:  sarama.QuotaMatchAny,
	}}, false)
	if err != nil {
		return nil, fmt.Errorf("failed to describe client quotas: %w", err)
	}

	quotas := map[string]model.Quota{}
	for _, entry := range entries {
		if len(entry.Entity) != 1 {
			continue
		}
		entity := entry.Entity[0]
		if entity.EntityType != sarama.QuotaEntityUser || entity.MatchType != sarama.QuotaMatchExact {
			continue
		}
		principal := userPrincipalPrefix + entity.Name
		quotas[principal] = model.QuotaFromValues(principal, entry.Values)
	}
	return quotas, nil
}

// AlterClientQuotas sets the declared values of q and removes the keys in
// remove.
func (c *Client) AlterClientQuotas(q model.Quota, remove []string) error {
	values := q.Values()
	if len(values) == 0 && len(remove) == 0 {
		return fmt.Errorf("failed to alter quotas of %s: %w", q.Principal, ErrEmptyQuota)
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	entity := userEntity(q.Principal)
	for _, k := range keys {
		op := sarama.ClientQuotasOp{Key: k, Value: values[k]}
		if err := c.admin.AlterClientQuotas(entity, op, false); err != nil {
			return fmt.Errorf("failed to set quota %s of %s: %w", k, q.Principal, err)
		}
	}
	for _, k := range remove {
		op := sarama.ClientQuotasOp{Key: k, Remove: true}
		if err := c.admin.AlterClientQuotas(entity, op, false); err != nil {
			return fmt.Errorf("failed to remove quota %s of %s: %w", k, q.Principal, err)
		}
	}
	logger.Get().WithFields(map[string]interface{}{
		"principal": q.Principal,
		"set":       keys,
		"removed":   remove,
	}).Info("Successfully altered client quotas")
	return nil
}

// RemoveClientQuotas removes every quota of principal.
func (c *Client) RemoveClientQuotas(principal string) error {
	entity := userEntity(principal)
	for _, k := range quotaKeys {
		op := sarama.ClientQuotasOp{Key: k, Remove: true}
		if err := c.admin.AlterClientQuotas(entity, op, false); err != nil {
			return fmt.Errorf("failed to remove quota %s of %s: %w", k, principal, err)
		}
	}
	logger.Get().WithField("principal", principal).Info("Successfully removed client quotas")
	return nil
}
