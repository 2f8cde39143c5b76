package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/digitalis-io/ktopology/pkg/config"
	"github.com/digitalis-io/ktopology/pkg/logger"
	"github.com/digitalis-io/ktopology/pkg/model"
)

// Options controls how descriptor files are grouped into topologies.
type Options struct {
	ProjectNamespacing     bool
	MultipleContextsPerDir bool
	Recursive              bool
	// Concurrency bounds the number of files parsed at once.
	Concurrency int
}

// OptionsFromConfig extracts the loader options from cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ProjectNamespacing:     cfg.ProjectNamespacing,
		MultipleContextsPerDir: cfg.MultipleContextsPerDir,
		Recursive:              cfg.Recursive,
		Concurrency:            cfg.Concurrency,
	}
}

// Load reads a descriptor file, or every descriptor of a directory, and
// returns the merged topologies keyed by their prefix key.
func Load(path, plansFile string, opts Options) (map[string]*model.Topology, error) {
	plans, err := LoadPlans(plansFile)
	if err != nil {
		return nil, err
	}
	files, err := ResolveFiles(path, opts.Recursive)
	if err != nil {
		return nil, err
	}
	topologies, err := parseFiles(files, parser{plans: plans, plansGiven: plansFile != ""}, opts.Concurrency)
	if err != nil {
		return nil, err
	}
	return Merge(topologies, opts)
}

// ResolveFiles lists the descriptor files under path. For a directory the
// regular files come first in lexical order, followed by the files of each
// subdirectory, also in lexical order, when recursive is set.
func ResolveFiles(path string, recursive bool) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &ParsingError{File: path, Err: err}
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, &ParsingError{File: path, Err: err}
	}
	var files, dirs []string
	for _, entry := range entries {
		full := filepath.Join(path, entry.Name())
		if entry.IsDir() {
			dirs = append(dirs, full)
			continue
		}
		files = append(files, full)
	}
	if !recursive {
		return files, nil
	}
	for _, dir := range dirs {
		nested, err := ResolveFiles(dir, recursive)
		if err != nil {
			return nil, err
		}
		files = append(files, nested...)
	}
	return files, nil
}

func parseFiles(files []string, p parser, concurrency int) ([]*model.Topology, error) {
	if concurrency < 1 {
		concurrency = 1
	}
	topologies := make([]*model.Topology, len(files))

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, file := range files {
		g.Go(func() error {
			data, err := os.ReadFile(file)
			if err != nil {
				return &ParsingError{File: file, Err: err}
			}
			topology, err := p.parse(file, data)
			if err != nil {
				return err
			}
			logger.For("loader").WithFields(map[string]interface{}{
				"file":     file,
				"context":  topology.Context,
				"projects": len(topology.Projects),
			}).Debug("Parsed descriptor")
			topologies[i] = topology
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return topologies, nil
}

// PrefixKey returns the key that decides which documents merge together:
// the context alone, or the context and every ordered field value when
// project namespacing is enabled.
func PrefixKey(t *model.Topology, namespacing bool) string {
	if !namespacing {
		return t.Context
	}
	return t.ContextPrefix()
}

// Merge groups topologies by prefix key and folds each group into its
// first member. Topologies must be given in load order.
func Merge(topologies []*model.Topology, opts Options) (map[string]*model.Topology, error) {
	collection := make(map[string]*model.Topology)
	for _, topology := range topologies {
		prefix := PrefixKey(topology, opts.ProjectNamespacing)

		if !opts.MultipleContextsPerDir && len(collection) > 0 && isNewContext(collection, topology.Context) {
			return nil, &ConflictError{Reason: "topologies from different contexts are not allowed"}
		}

		base, ok := collection[prefix]
		if !ok {
			collection[prefix] = topology
			continue
		}
		if err := mergeInto(base, topology, prefix); err != nil {
			return nil, err
		}
	}
	return collection, nil
}

func isNewContext(collection map[string]*model.Topology, ctx string) bool {
	for key := range collection {
		if key == ctx || strings.HasPrefix(key, ctx+model.PrefixSeparator) {
			return false
		}
	}
	return true
}

func mergeInto(base, topology *model.Topology, prefix string) error {
	for _, project := range topology.Projects {
		if base.Project(project.Name) != nil {
			return &ConflictError{
				Prefix: prefix,
				Reason: fmt.Sprintf("project %s is already declared under the same prefix, merging projects is not supported", project.Name),
			}
		}
	}
	for _, field := range topology.Order {
		base.AddOther(field, topology.FullContext[field])
	}
	for _, project := range topology.Projects {
		base.AddProject(project)
	}

	existing := make(map[string]bool, len(base.SpecialTopics))
	for _, t := range base.SpecialTopics {
		existing[t.Name] = true
	}
	for _, t := range topology.SpecialTopics {
		if existing[t.Name] {
			return &ConflictError{
				Prefix: prefix,
				Reason: fmt.Sprintf("special topic %s is declared more than once, each special topic must be defined once", t.Name),
			}
		}
		existing[t.Name] = true
		base.AddSpecialTopic(t)
	}

	base.Platform.Kafka.Quotas = append(base.Platform.Kafka.Quotas, topology.Platform.Kafka.Quotas...)
	base.Platform.SchemaRegistry.Instances = append(base.Platform.SchemaRegistry.Instances, topology.Platform.SchemaRegistry.Instances...)
	base.Platform.KsqlDB.Instances = append(base.Platform.KsqlDB.Instances, topology.Platform.KsqlDB.Instances...)
	for role, principals := range topology.Platform.Kafka.RBAC {
		if base.Platform.Kafka.RBAC == nil {
			base.Platform.Kafka.RBAC = map[string][]string{}
		}
		base.Platform.Kafka.RBAC[role] = append(base.Platform.Kafka.RBAC[role], principals...)
	}
	return nil
}
