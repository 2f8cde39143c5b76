package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/digitalis-io/ktopology/pkg/backend"
	"github.com/digitalis-io/ktopology/pkg/bindings"
	"github.com/digitalis-io/ktopology/pkg/config"
	"github.com/digitalis-io/ktopology/pkg/kafka"
	"github.com/digitalis-io/ktopology/pkg/loader"
	"github.com/digitalis-io/ktopology/pkg/logger"
	"github.com/digitalis-io/ktopology/pkg/mds"
	"github.com/digitalis-io/ktopology/pkg/model"
	"github.com/digitalis-io/ktopology/pkg/plan"
	"github.com/digitalis-io/ktopology/pkg/roles"
	"github.com/digitalis-io/ktopology/pkg/ui"
)

type runOptions struct {
	dryRun      bool
	tui         bool
	interactive bool
	timeout     time.Duration
}

func newApplyCmd() *cobra.Command {
	opts := runOptions{}
	cmd := &cobra.Command{
		Use:   "apply <path>",
		Short: "Plan and apply a topology to the cluster",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			opts.dryRun = cfg.DryRun
			return reconcile(cmd.Context(), cfg, args[0], opts)
		},
	}
	cmd.Flags().BoolVarP(&opts.interactive, "interactive", "i", false, "Ask for confirmation before applying")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "Abort the run after this long (0 for no limit)")
	return cmd
}

func newPlanCmd() *cobra.Command {
	opts := runOptions{dryRun: true}
	cmd := &cobra.Command{
		Use:   "plan <path>",
		Short: "Show the actions apply would take",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return reconcile(cmd.Context(), cfg, args[0], opts)
		},
	}
	cmd.Flags().BoolVar(&opts.tui, "tui", false, "Browse the plan interactively")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "Abort planning after this long (0 for no limit)")
	return cmd
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <path>",
		Short: "Load the topology and check its custom roles without contacting the cluster",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			topologies, r, err := loadTopologies(cfg, args[0])
			if err != nil {
				return err
			}
			builder, err := bindings.ForStrategy(cfg.Strategy)
			if err != nil {
				return err
			}
			desired, err := bindings.Desired(topologies, r, builder, cfg)
			if err != nil {
				return err
			}
			fmt.Printf("%d topologies valid, %d custom roles, %d bindings\n", len(topologies), r.Len(), desired.Len())
			return nil
		},
	}
}

// loadTopologies loads the descriptors at path and checks that every
// custom role they use is defined.
func loadTopologies(cfg *config.Config, path string) (map[string]*model.Topology, *roles.Roles, error) {
	topologies, err := loader.Load(path, cfg.PlansFile, loader.OptionsFromConfig(cfg))
	if err != nil {
		return nil, nil, err
	}
	r, err := roles.LoadFiles(cfg.RolesFiles...)
	if err != nil {
		return nil, nil, err
	}
	logger.For("roles").WithField("roles", r.Names()).Debug("Loaded custom roles")
	for _, key := range sortedKeys(topologies) {
		if err := r.ValidateTopology(topologies[key]); err != nil {
			return nil, nil, fmt.Errorf("topology %s: %w", key, err)
		}
	}
	return topologies, r, nil
}

func reconcile(ctx context.Context, cfg *config.Config, path string, opts runOptions) error {
	log := logger.Get()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	topologies, r, err := loadTopologies(cfg, path)
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

	builder, err := bindings.ForStrategy(cfg.Strategy)
	if err != nil {
		return err
	}
	var provider plan.AccessProvider = client
	if cfg.Strategy == config.StrategyRBAC {
		mdsClient := mds.NewClient(cfg.MDS, cfg.AdminTimeout)
		if err := mdsClient.HealthCheck(); err != nil {
			return err
		}
		provider = mdsClient
	}

	store, err := openStateStore(cfg.StateFile, opts.dryRun)
	if err != nil {
		return err
	}
	controller, err := backend.NewController(store)
	if err != nil {
		_ = store.Close()
		return err
	}
	defer closeWithLog("state store", controller)

	p := plan.New(controller, opts.dryRun)
	if err := plan.NewTopicManager(client, controller, cfg).UpdatePlan(ctx, topologies, p); err != nil {
		return err
	}
	if err := plan.NewAccessManager(provider, builder, r, controller, cfg).UpdatePlan(topologies, p); err != nil {
		return err
	}
	if err := plan.NewQuotasManager(client, cfg).UpdatePlan(topologies, p); err != nil {
		return err
	}

	if opts.tui {
		return ui.Browse(p)
	}
	fmt.Print(ui.RenderPlan(p.Actions(), p.Warnings))
	if p.Len() == 0 || opts.dryRun {
		return nil
	}

	if opts.interactive {
		ok, err := ui.Confirm(fmt.Sprintf("Apply %d actions?", p.Len()), "The cluster will be changed to match the topology.")
		if err != nil {
			return err
		}
		if !ok {
			log.Warn("Apply cancelled by user")
			return nil
		}
	}

	result := p.Run(ctx)
	fmt.Print(ui.RenderReport(result))
	return result.Err()
}

// openStateStore opens the state file for writing, or reads a copy of it
// when nothing will be applied.
func openStateStore(path string, dryRun bool) (backend.Store, error) {
	if dryRun {
		return backend.LoadSnapshot(path)
	}
	return backend.OpenBoltStore(path)
}

func closeWithLog(what string, c io.Closer) {
	if err := c.Close(); err != nil {
		logger.Get().WithError(err).Errorf("Error closing %s", what)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
