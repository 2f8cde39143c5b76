package mds

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digitalis-io/ktopology/pkg/config"
	"github.com/digitalis-io/ktopology/pkg/model"
)

type recordedRequest struct {
	Method string
	Path   string
	User   string
	Body   map[string]interface{}
}

type fakeMDS struct {
	mu       sync.Mutex
	requests []recordedRequest
	status   int
}

func (f *fakeMDS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user, _, _ := r.BasicAuth()
	rec := recordedRequest{Method: r.Method, Path: r.URL.EscapedPath(), User: user}
	data, _ := io.ReadAll(r.Body)
	if len(data) > 0 {
		_ = json.Unmarshal(data, &rec.Body)
	}
	f.mu.Lock()
	f.requests = append(f.requests, rec)
	status := f.status
	f.mu.Unlock()
	if status == 0 {
		status = http.StatusNoContent
	}
	w.WriteHeader(status)
	if status >= 300 {
		_, _ = w.Write([]byte("forbidden by policy"))
	}
}

func newTestClient(t *testing.T, fake *fakeMDS) *Client {
	t.Helper()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)
	c := NewClient(config.MDS{
		URL:            server.URL + "/",
		User:           "mds-admin",
		Password:       "secret",
		KafkaClusterID: "abc-123",
	}, 5*time.Second)
	c.probe.RetryWaitMin = time.Millisecond
	c.probe.RetryWaitMax = time.Millisecond
	return c
}

func TestCreateBindingsGroupsByPrincipalAndRole(t *testing.T) {
	fake := &fakeMDS{}
	c := newTestClient(t, fake)

	err := c.CreateBindings([]model.Binding{
		{Principal: "User:app", ResourceType: model.ResourceTopic, ResourceName: "ctx.foo", PatternType: model.PatternLiteral, Operation: "DeveloperRead"},
		{Principal: "User:app", ResourceType: model.ResourceGroup, ResourceName: "*", PatternType: model.PatternLiteral, Operation: "DeveloperRead"},
		{Principal: "User:app", ResourceType: model.ResourceTopic, ResourceName: "ctx.", PatternType: model.PatternPrefixed, Operation: "ResourceOwner"},
	})
	require.NoError(t, err)
	require.Len(t, fake.requests, 2)

	first := fake.requests[0]
	assert.Equal(t, http.MethodPost, first.Method)
	assert.Equal(t, "/security/1.0/principals/User:app/roles/DeveloperRead/bindings", first.Path)
	assert.Equal(t, "mds-admin", first.User)
	assert.Equal(t, map[string]interface{}{"clusters": map[string]interface{}{"kafka-cluster": "abc-123"}}, first.Body["scope"])
	patterns := first.Body["resourcePatterns"].([]interface{})
	require.Len(t, patterns, 2)
	assert.Equal(t, map[string]interface{}{"resourceType": "Topic", "name": "ctx.foo", "patternType": "LITERAL"}, patterns[0])
	assert.Equal(t, map[string]interface{}{"resourceType": "Group", "name": "*", "patternType": "LITERAL"}, patterns[1])

	assert.Equal(t, "/security/1.0/principals/User:app/roles/ResourceOwner/bindings", fake.requests[1].Path)
}

func TestClusterScopedRole(t *testing.T) {
	fake := &fakeMDS{}
	c := newTestClient(t, fake)

	err := c.DeleteBindings([]model.Binding{{
		Principal:    "User:sr",
		ResourceType: model.ResourceCluster,
		PatternType:  model.PatternLiteral,
		Operation:    "SecurityAdmin",
	}})
	require.NoError(t, err)
	require.Len(t, fake.requests, 1)

	req := fake.requests[0]
	assert.Equal(t, http.MethodDelete, req.Method)
	assert.Equal(t, "/security/1.0/principals/User:sr/roles/SecurityAdmin", req.Path)
	assert.Equal(t, map[string]interface{}{"kafka-cluster": "abc-123"}, req.Body["clusters"])
	assert.NotContains(t, req.Body, "resourcePatterns")
}

func TestErrorsAreAggregated(t *testing.T) {
	fake := &fakeMDS{status: http.StatusForbidden}
	c := newTestClient(t, fake)

	err := c.CreateBindings([]model.Binding{
		{Principal: "User:a", ResourceType: model.ResourceTopic, ResourceName: "t", PatternType: model.PatternLiteral, Operation: "DeveloperRead"},
		{Principal: "User:b", ResourceType: model.ResourceTopic, ResourceName: "t", PatternType: model.PatternLiteral, Operation: "DeveloperRead"},
	})
	require.Error(t, err)
	assert.Len(t, fake.requests, 2)

	var mdsErr *Error
	require.ErrorAs(t, err, &mdsErr)
	assert.Equal(t, http.StatusForbidden, mdsErr.StatusCode)
	assert.Equal(t, "forbidden by policy", mdsErr.Body)
}

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{name: "authenticated", status: http.StatusOK},
		{name: "rejected", status: http.StatusUnauthorized, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeMDS{status: tt.status}
			c := newTestClient(t, fake)

			err := c.HealthCheck()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			require.Len(t, fake.requests, 1)
			assert.Equal(t, "/security/1.0/authenticate", fake.requests[0].Path)
			assert.Equal(t, http.MethodGet, fake.requests[0].Method)
		})
	}
}

func TestNoBindingsNoRequests(t *testing.T) {
	fake := &fakeMDS{}
	c := newTestClient(t, fake)

	require.NoError(t, c.CreateBindings(nil))
	assert.Empty(t, fake.requests)
}

func TestBindingChangesAreNotRetried(t *testing.T) {
	fake := &fakeMDS{status: http.StatusServiceUnavailable}
	c := newTestClient(t, fake)

	err := c.CreateBindings([]model.Binding{{
		Principal:    "User:alice",
		ResourceType: model.ResourceTopic,
		ResourceName: "orders",
		PatternType:  model.PatternLiteral,
		Operation:    "DeveloperWrite",
	}})
	var mdsErr *Error
	require.ErrorAs(t, err, &mdsErr)
	assert.Equal(t, http.StatusServiceUnavailable, mdsErr.StatusCode)
	assert.Len(t, fake.requests, 1)
}

func TestHealthCheckRetriesTransientFailures(t *testing.T) {
	fake := &fakeMDS{status: http.StatusServiceUnavailable}
	c := newTestClient(t, fake)

	assert.Error(t, c.HealthCheck())
	assert.Len(t, fake.requests, healthCheckRetries+1)
}
