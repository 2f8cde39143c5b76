package plan

import (
	"context"
	"fmt"
	"sort"

	"github.com/hashicorp/go-multierror"

	"github.com/digitalis-io/ktopology/pkg/backend"
	"github.com/digitalis-io/ktopology/pkg/logger"
)

// ExecutionPlan collects the actions of one reconciliation pass.
type ExecutionPlan struct {
	controller *backend.Controller
	dryRun     bool
	actions    []Action

	// Warnings holds inconsistencies found while planning that no action
	// can fix.
	Warnings []string
}

// New returns an empty plan recording applied actions in controller.
func New(controller *backend.Controller, dryRun bool) *ExecutionPlan {
	return &ExecutionPlan{controller: controller, dryRun: dryRun}
}

// Add appends actions to the plan.
func (p *ExecutionPlan) Add(actions ...Action) {
	p.actions = append(p.actions, actions...)
}

// Warn records a planning inconsistency.
func (p *ExecutionPlan) Warn(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	logger.For("plan").Warn(msg)
	p.Warnings = append(p.Warnings, msg)
}

// DryRun reports whether Run leaves the cluster untouched.
func (p *ExecutionPlan) DryRun() bool {
	return p.dryRun
}

// Len returns the number of planned actions.
func (p *ExecutionPlan) Len() int {
	return len(p.actions)
}

// Actions returns the planned actions in execution order. Actions of the
// same phase keep the order they were added in.
func (p *ExecutionPlan) Actions() []Action {
	out := make([]Action, len(p.actions))
	copy(out, p.actions)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Kind().Phase() < out[j].Kind().Phase()
	})
	return out
}

// RunResult is the outcome of every planned action.
type RunResult struct {
	Applied []Action
	Failed  []*ActionError
	Skipped []Action
}

// Err aggregates the failed actions, nil when none failed.
func (r *RunResult) Err() error {
	var result *multierror.Error
	for _, f := range r.Failed {
		result = multierror.Append(result, f)
	}
	return result.ErrorOrNil()
}

// Run applies the actions one by one. A failed action is reported and the
// run goes on; a cancelled context skips whatever is left.
func (p *ExecutionPlan) Run(ctx context.Context) *RunResult {
	log := logger.For("plan")
	actions := p.Actions()
	result := &RunResult{}

	if p.dryRun {
		result.Skipped = actions
		log.WithField("actions", len(actions)).Info("Dry run, no action applied")
		return result
	}

	for i, action := range actions {
		if ctx.Err() != nil {
			result.Skipped = append(result.Skipped, actions[i:]...)
			log.WithError(ctx.Err()).WithField("skipped", len(actions)-i).Warn("Run cancelled, skipping remaining actions")
			break
		}

		fields := map[string]interface{}{
			"kind": string(action.Kind()),
			"key":  action.Key(),
		}
		change, err := action.Run(ctx)
		if err == nil {
			if err = p.controller.Record(change); err != nil {
				err = fmt.Errorf("failed to record state: %w", err)
			}
		}
		if err != nil {
			log.WithFields(fields).WithError(err).Error("Action failed")
			result.Failed = append(result.Failed, &ActionError{Kind: action.Kind(), Key: action.Key(), Err: err})
			continue
		}
		log.WithFields(fields).Info("Successfully applied action")
		result.Applied = append(result.Applied, action)
	}
	return result
}
