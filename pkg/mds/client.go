package mds

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"

	"github.com/digitalis-io/ktopology/pkg/config"
	"github.com/digitalis-io/ktopology/pkg/logger"
	"github.com/digitalis-io/ktopology/pkg/model"
)

const (
	basePath          = "/security/1.0"
	kafkaClusterScope = "kafka-cluster"
)

// Client manages role bindings through the Confluent Metadata Service.
type Client struct {
	baseURL   string
	user      string
	password  string
	clusterID string
	// http sends role binding changes and never retries them.
	http *retryablehttp.Client
	// probe sends read-only requests, retried on transient failures.
	probe *retryablehttp.Client
	log   *logrus.Entry
}

// healthCheckRetries bounds the retries of read-only requests.
const healthCheckRetries = 3

// NewClient returns a client for the metadata service of cfg. timeout bounds
// every single request.
func NewClient(cfg config.MDS, timeout time.Duration) *Client {
	log := logger.For("mds")
	return &Client{
		baseURL:   strings.TrimSuffix(cfg.URL, "/"),
		user:      cfg.User,
		password:  cfg.Password,
		clusterID: cfg.KafkaClusterID,
		http:      newHTTPClient(log, timeout, 0),
		probe:     newHTTPClient(log, timeout, healthCheckRetries),
		log:       log,
	}
}

func newHTTPClient(log *logrus.Entry, timeout time.Duration, retries int) *retryablehttp.Client {
	httpClient := retryablehttp.NewClient()
	httpClient.Logger = &retryableHTTPLogrusWrapper{log: log}
	httpClient.RetryMax = retries
	httpClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	if timeout > 0 {
		httpClient.HTTPClient.Timeout = timeout
	}
	return httpClient
}

// Error is a non successful answer of the metadata service.
type Error struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("mds %s %s returned %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

type clusters struct {
	Clusters map[string]string `json:"clusters"`
}

type resourcePattern struct {
	ResourceType string `json:"resourceType"`
	Name         string `json:"name"`
	PatternType  string `json:"patternType"`
}

type resourceBindings struct {
	Scope            clusters          `json:"scope"`
	ResourcePatterns []resourcePattern `json:"resourcePatterns"`
}

// HealthCheck authenticates against the metadata service.
func (c *Client) HealthCheck() error {
	return c.do(c.probe, http.MethodGet, basePath+"/authenticate", nil)
}

// CreateBindings assigns the role of each binding to its principal.
func (c *Client) CreateBindings(bindings []model.Binding) error {
	return c.apply(http.MethodPost, bindings)
}

// DeleteBindings removes the role of each binding from its principal.
func (c *Client) DeleteBindings(bindings []model.Binding) error {
	return c.apply(http.MethodDelete, bindings)
}

type groupKey struct {
	principal string
	role      string
	cluster   bool
}

func (c *Client) apply(method string, bindings []model.Binding) error {
	var (
		order  []groupKey
		groups = map[groupKey][]resourcePattern{}
	)
	for _, b := range bindings {
		key := groupKey{principal: b.Principal, role: b.Operation, cluster: isClusterScoped(b)}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
			groups[key] = nil
		}
		if key.cluster {
			continue
		}
		groups[key] = append(groups[key], resourcePattern{
			ResourceType: b.ResourceType,
			Name:         b.ResourceName,
			PatternType:  b.PatternType,
		})
	}

	scope := clusters{Clusters: map[string]string{kafkaClusterScope: c.clusterID}}
	var result *multierror.Error
	for _, key := range order {
		path := fmt.Sprintf("%s/principals/%s/roles/%s", basePath, url.PathEscape(key.principal), url.PathEscape(key.role))
		var body any = scope
		if !key.cluster {
			path += "/bindings"
			body = resourceBindings{Scope: scope, ResourcePatterns: groups[key]}
		}
		if err := c.do(c.http, method, path, body); err != nil {
			result = multierror.Append(result, err)
			continue
		}
		c.log.WithFields(map[string]interface{}{
			"method":    method,
			"principal": key.principal,
			"role":      key.role,
			"resources": len(groups[key]),
		}).Info("Successfully updated role bindings")
	}
	return result.ErrorOrNil()
}

func isClusterScoped(b model.Binding) bool {
	return b.ResourceType == model.ResourceCluster && b.ResourceName == ""
}

func (c *Client) do(client *retryablehttp.Client, method, path string, body any) error {
	var raw []byte
	if body != nil {
		var err error
		if raw, err = json.Marshal(body); err != nil {
			return fmt.Errorf("failed to encode mds request: %w", err)
		}
	}
	req, err := retryablehttp.NewRequest(method, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("failed to build mds request: %w", err)
	}
	req.SetBasicAuth(c.user, c.password)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call mds %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &Error{Method: method, Path: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
}
