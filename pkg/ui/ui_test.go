package ui

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digitalis-io/ktopology/pkg/backend"
	"github.com/digitalis-io/ktopology/pkg/plan"
)

type fakeAction struct {
	kind plan.Kind
	key  string
	desc string
}

func (a fakeAction) Kind() plan.Kind  { return a.kind }
func (a fakeAction) Key() string      { return a.key }
func (a fakeAction) Describe() string { return a.desc }

func (a fakeAction) Run(context.Context) (backend.Change, error) {
	return backend.Change{}, nil
}

func testPlan(t *testing.T, dryRun bool, actions ...plan.Action) *plan.ExecutionPlan {
	t.Helper()
	controller, err := backend.NewController(backend.NewMemoryStore(nil))
	require.NoError(t, err)
	p := plan.New(controller, dryRun)
	p.Add(actions...)
	return p
}

var (
	createOrders = fakeAction{kind: plan.KindCreateTopic, key: "ctx.shop.orders", desc: "create topic ctx.shop.orders"}
	grantBob     = fakeAction{kind: plan.KindCreateBindings, key: "User:bob", desc: "create 2 bindings\n  User:bob ALLOW READ on Topic:ctx.shop.orders"}
)

func TestRenderPlan(t *testing.T) {
	out := RenderPlan([]plan.Action{createOrders, grantBob}, []string{"topic ctx.shop.legacy has 12 partitions"})

	assert.Contains(t, out, "Execution plan: 2 actions")
	assert.Contains(t, out, "CreateTopic")
	assert.Contains(t, out, "ctx.shop.orders")
	assert.Contains(t, out, "create 2 bindings")
	assert.NotContains(t, out, "User:bob ALLOW READ", "only the first description line is listed")
	assert.Contains(t, out, "warning: ")
	assert.Contains(t, out, "12 partitions")
}

func TestRenderEmptyPlan(t *testing.T) {
	out := RenderPlan(nil, nil)
	assert.Contains(t, out, "Nothing to do")
}

func TestRenderReport(t *testing.T) {
	result := &plan.RunResult{
		Applied: []plan.Action{createOrders},
		Failed: []*plan.ActionError{{
			Kind: plan.KindCreateBindings,
			Key:  "User:bob",
			Err:  errors.New("cluster authorization failed"),
		}},
	}
	out := RenderReport(result)

	assert.Contains(t, out, "applied 1")
	assert.Contains(t, out, "failed 1")
	assert.Contains(t, out, "skipped 0")
	assert.Contains(t, out, "cluster authorization failed")
}

func TestPlanModelNavigation(t *testing.T) {
	m := NewPlanModel(testPlan(t, true, createOrders, grantBob))
	assert.Equal(t, createOrders, m.Selected())
	assert.Contains(t, m.View(), "(dry run)")
	assert.Contains(t, m.View(), "create topic ctx.shop.orders")

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = next.(PlanModel)
	assert.Equal(t, grantBob, m.Selected())
	assert.Contains(t, m.View(), "User:bob ALLOW READ")

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m = next.(PlanModel)
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyUp})
	m = next.(PlanModel)
	assert.Equal(t, grantBob, m.Selected(), "the table keeps its cursor while the detail pane has focus")

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestPlanModelEmptyPlan(t *testing.T) {
	m := NewPlanModel(testPlan(t, false))
	assert.Nil(t, m.Selected())
	assert.Contains(t, m.View(), "No action planned.")
}
