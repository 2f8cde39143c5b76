package model

import (
	"sort"
	"strings"
)

// Resource types a binding can target. Subject, Connector and KsqlCluster
// only exist with role-based access control.
const (
	ResourceTopic           = "Topic"
	ResourceGroup           = "Group"
	ResourceCluster         = "Cluster"
	ResourceTransactionalID = "TransactionalId"
	ResourceSubject         = "Subject"
	ResourceConnector       = "Connector"
	ResourceKsqlCluster     = "KsqlCluster"
)

const (
	PatternLiteral  = "LITERAL"
	PatternPrefixed = "PREFIXED"
)

const (
	PermissionAllow = "ALLOW"
	PermissionDeny  = "DENY"
)

// ACL operations.
const (
	OpRead            = "READ"
	OpWrite           = "WRITE"
	OpCreate          = "CREATE"
	OpDelete          = "DELETE"
	OpAlter           = "ALTER"
	OpDescribe        = "DESCRIBE"
	OpDescribeConfigs = "DESCRIBE_CONFIGS"
	OpAlterConfigs    = "ALTER_CONFIGS"
	OpIdempotentWrite = "IDEMPOTENT_WRITE"
	OpAll             = "ALL"
)

var resourceTypes = []string{
	ResourceTopic, ResourceGroup, ResourceCluster, ResourceTransactionalID,
	ResourceSubject, ResourceConnector, ResourceKsqlCluster,
}

var aclOperations = []string{
	OpRead, OpWrite, OpCreate, OpDelete, OpAlter, OpDescribe,
	OpDescribeConfigs, OpAlterConfigs, OpIdempotentWrite, OpAll,
}

// CanonicalResourceType returns the declared spelling of a resource type
// given in any case.
func CanonicalResourceType(s string) (string, bool) {
	for _, t := range resourceTypes {
		if strings.EqualFold(t, s) {
			return t, true
		}
	}
	return "", false
}

// IsACLResourceType reports whether Kafka ACLs can target resource type t.
func IsACLResourceType(t string) bool {
	switch t {
	case ResourceTopic, ResourceGroup, ResourceCluster, ResourceTransactionalID:
		return true
	}
	return false
}

// IsACLOperation reports whether op is an upper-case ACL operation name.
func IsACLOperation(op string) bool {
	for _, o := range aclOperations {
		if o == op {
			return true
		}
	}
	return false
}

// ClusterResourceName is the literal name of the Kafka cluster resource.
const ClusterResourceName = "kafka-cluster"

// AnyHost matches every client host.
const AnyHost = "*"

// Binding is a normalized access grant. With ACLs Operation is an ACL
// operation; with role-based access control it is the role name.
type Binding struct {
	Principal    string `json:"principal"`
	ResourceType string `json:"resource_type"`
	ResourceName string `json:"resource_name"`
	PatternType  string `json:"pattern_type"`
	Operation    string `json:"operation"`
	Permission   string `json:"permission"`
	Host         string `json:"host"`
}

// Key returns a stable identity of the binding, used as the recorded
// state key.
func (b Binding) Key() string {
	return strings.Join([]string{
		b.ResourceType, b.ResourceName, b.PatternType, b.Principal, b.Operation, b.Permission, b.Host,
	}, "|")
}

func (b Binding) String() string {
	return b.Principal + " " + b.Permission + " " + b.Operation + " on " +
		b.ResourceType + ":" + b.ResourceName + " (" + b.PatternType + ", host " + b.Host + ")"
}

// SortBindings stable-sorts bindings by resource type, resource name,
// principal and operation, then by the remaining fields.
func SortBindings(bindings []Binding) {
	sort.SliceStable(bindings, func(i, j int) bool {
		a, b := bindings[i], bindings[j]
		if a.ResourceType != b.ResourceType {
			return a.ResourceType < b.ResourceType
		}
		if a.ResourceName != b.ResourceName {
			return a.ResourceName < b.ResourceName
		}
		if a.Principal != b.Principal {
			return a.Principal < b.Principal
		}
		if a.Operation != b.Operation {
			return a.Operation < b.Operation
		}
		if a.PatternType != b.PatternType {
			return a.PatternType < b.PatternType
		}
		if a.Permission != b.Permission {
			return a.Permission < b.Permission
		}
		return a.Host < b.Host
	})
}
