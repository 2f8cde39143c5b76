package kafka

import (
	"fmt"
	"strings"

	"github.com/IBM/sarama"
	"github.com/hashicorp/go-multierror"

	"github.com/digitalis-io/ktopology/pkg/logger"
	"github.com/digitalis-io/ktopology/pkg/model"
)

// CreateBindings creates one ACL per binding, grouped by resource. A
// binding that cannot be expressed as an ACL is reported and the others are
// still created.
func (c *Client) CreateBindings(bindings []model.Binding) error {
	if len(bindings) == 0 {
		return nil
	}
	var result *multierror.Error
	byResource := map[sarama.Resource]*sarama.ResourceAcls{}
	var ordered []*sarama.ResourceAcls
	created := 0
	for _, b := range bindings {
		resource, acl, err := toSarama(b)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("binding %s: %w", b, err))
			continue
		}
		ra, ok := byResource[resource]
		if !ok {
			ra = &sarama.ResourceAcls{Resource: resource}
			byResource[resource] = ra
			ordered = append(ordered, ra)
		}
		ra.Acls = append(ra.Acls, &acl)
		created++
	}
	if len(ordered) == 0 {
		return result.ErrorOrNil()
	}

	if err := c.admin.CreateACLs(ordered); err != nil {
		return multierror.Append(result, fmt.Errorf("failed to create ACLs: %w", err))
	}
	logger.Get().WithFields(map[string]interface{}{
		"resources": len(ordered),
		"acls":      created,
	}).Info("Successfully created ACLs")
	return result.ErrorOrNil()
}

// DeleteBindings deletes the ACL matching each binding exactly. A binding
// with no matching ACL is already gone and is not an error.
func (c *Client) DeleteBindings(bindings []model.Binding) error {
	log := logger.Get()
	var result *multierror.Error
	for _, b := range bindings {
		resource, acl, err := toSarama(b)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		filter := sarama.AclFilter{
			ResourceType:              resource.ResourceType,
			ResourceName:              &b.ResourceName,
			ResourcePatternTypeFilter: resource.ResourcePatternType,
			Principal:                 &b.Principal,
			Host:                      &b.Host,
			Operation:                 acl.Operation,
			PermissionType:            acl.PermissionType,
		}
		matches, err := c.admin.DeleteACL(filter, false)
		if err != nil {
			log.WithError(err).WithField("binding", b.String()).Error("Failed to delete ACL")
			result = multierror.Append(result, fmt.Errorf("failed to delete ACL %s: %w", b, err))
			continue
		}
		if len(matches) == 0 {
			log.WithField("binding", b.String()).Warn("No matching ACL found to delete")
			continue
		}
		log.WithFields(map[string]interface{}{
			"binding": b.String(),
			"deleted": len(matches),
		}).Info("Successfully deleted ACL")
	}
	return result.ErrorOrNil()
}

// ListBindings returns every ACL of the cluster.
func (c *Client) ListBindings() ([]model.Binding, error) {
	filter := sarama.AclFilter{
		ResourceType:              sarama.AclResourceAny,
		ResourcePatternTypeFilter: sarama.AclPatternAny,
		Operation:                 sarama.AclOperationAny,
		PermissionType:            sarama.AclPermissionAny,
	}
	result, err := c.admin.ListAcls(filter)
	if err != nil {
		return nil, fmt.Errorf("failed to describe ACLs: %w", err)
	}

	var bindings []model.Binding
	for _, ra := range result {
		for _, acl := range ra.Acls {
			bindings = append(bindings, model.Binding{
				Principal:    acl.Principal,
				ResourceType: resourceTypeName(ra.Resource.ResourceType),
				ResourceName: ra.Resource.ResourceName,
				PatternType:  patternTypeName(ra.Resource.ResourcePatternType),
				Operation:    operationName(acl.Operation),
				Permission:   permissionName(acl.PermissionType),
				Host:         acl.Host,
			})
		}
	}
	logger.Get().WithField("count", len(bindings)).Debug("Listed ACLs")
	return bindings, nil
}

func toSarama(b model.Binding) (sarama.Resource, sarama.Acl, error) {
	resourceType := parseResourceType(b.ResourceType)
	if resourceType == sarama.AclResourceUnknown {
		return sarama.Resource{}, sarama.Acl{}, fmt.Errorf("resource type %q cannot be expressed as an ACL", b.ResourceType)
	}
	pattern := parsePatternType(b.PatternType)
	if pattern == sarama.AclPatternUnknown {
		return sarama.Resource{}, sarama.Acl{}, fmt.Errorf("unknown pattern type %q", b.PatternType)
	}
	operation := parseOperation(b.Operation)
	if operation == sarama.AclOperationUnknown {
		return sarama.Resource{}, sarama.Acl{}, fmt.Errorf("unknown ACL operation %q", b.Operation)
	}
	permission := parsePermissionType(b.Permission)
	if permission == sarama.AclPermissionUnknown {
		return sarama.Resource{}, sarama.Acl{}, fmt.Errorf("unknown permission %q", b.Permission)
	}
	host := b.Host
	if host == "" {
		host = model.AnyHost
	}
	return sarama.Resource{
			ResourceType:        resourceType,
			ResourceName:        b.ResourceName,
			ResourcePatternType: pattern,
		}, sarama.Acl{
			Principal:      b.Principal,
			Host:           host,
			Operation:      operation,
			PermissionType: permission,
		}, nil
}

var resourceTypes = map[sarama.AclResourceType]string{
	sarama.AclResourceTopic:           model.ResourceTopic,
	sarama.AclResourceGroup:           model.ResourceGroup,
	sarama.AclResourceCluster:         model.ResourceCluster,
	sarama.AclResourceTransactionalID: model.ResourceTransactionalID,
	sarama.AclResourceDelegationToken: "DelegationToken",
}

var patternTypes = map[sarama.AclResourcePatternType]string{
	sarama.AclPatternLiteral:  model.PatternLiteral,
	sarama.AclPatternPrefixed: model.PatternPrefixed,
	sarama.AclPatternAny:      "ANY",
	sarama.AclPatternMatch:    "MATCH",
}

var operations = map[sarama.AclOperation]string{
	sarama.AclOperationAll:             model.OpAll,
	sarama.AclOperationRead:            model.OpRead,
	sarama.AclOperationWrite:           model.OpWrite,
	sarama.AclOperationCreate:          model.OpCreate,
	sarama.AclOperationDelete:          model.OpDelete,
	sarama.AclOperationAlter:           model.OpAlter,
	sarama.AclOperationDescribe:        model.OpDescribe,
	sarama.AclOperationClusterAction:   "CLUSTER_ACTION",
	sarama.AclOperationDescribeConfigs: model.OpDescribeConfigs,
	sarama.AclOperationAlterConfigs:    model.OpAlterConfigs,
	sarama.AclOperationIdempotentWrite: model.OpIdempotentWrite,
}

var permissions = map[sarama.AclPermissionType]string{
	sarama.AclPermissionAllow: model.PermissionAllow,
	sarama.AclPermissionDeny:  model.PermissionDeny,
}

func resourceTypeName(t sarama.AclResourceType) string {
	if name, ok := resourceTypes[t]; ok {
		return name
	}
	return "UNKNOWN"
}

func parseResourceType(s string) sarama.AclResourceType {
	for t, name := range resourceTypes {
		if strings.EqualFold(name, s) {
			return t
		}
	}
	return sarama.AclResourceUnknown
}

func patternTypeName(t sarama.AclResourcePatternType) string {
	if name, ok := patternTypes[t]; ok {
		return name
	}
	return "UNKNOWN"
}

func parsePatternType(s string) sarama.AclResourcePatternType {
	for t, name := range patternTypes {
		if strings.EqualFold(name, s) {
			return t
		}
	}
	return sarama.AclPatternUnknown
}

func operationName(o sarama.AclOperation) string {
	if name, ok := operations[o]; ok {
		return name
	}
	return "UNKNOWN"
}

func parseOperation(s string) sarama.AclOperation {
	for o, name := range operations {
		if strings.EqualFold(name, s) {
			return o
		}
	}
	return sarama.AclOperationUnknown
}

func permissionName(p sarama.AclPermissionType) string {
	if name, ok := permissions[p]; ok {
		return name
	}
	return "UNKNOWN"
}

func parsePermissionType(s string) sarama.AclPermissionType {
	for p, name := range permissions {
		if strings.EqualFold(name, s) {
			return p
		}
	}
	return sarama.AclPermissionUnknown
}
