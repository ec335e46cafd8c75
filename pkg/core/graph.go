package core

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
)

// DesiredStateBuilder produces the composed resource set for one application
// node (manifest fetch plus overlay composition). It returns the resources
// and the revision the set was built from.
type DesiredStateBuilder interface {
	BuildDesired(ctx context.Context, app Application) ([]Resource, string, error)
}

// ResolvedApplication pairs a graph node with its composed resource set.
// Child Application declarations have been lifted out of Resources; they
// appear as their own nodes in the resolution result. Shared lists the
// identities this application declares that another application in the same
// resolution also declares, keyed to the other claimants.
type ResolvedApplication struct {
	App       Application
	Resources []Resource
	Revision  string
	Shared    map[ResourceKey][]string
}

// GraphResolver expands root declarations into flat, fully specified
// application sets. The finished set is shared across ResolveRoot calls so a
// node re-declared under two different roots with different specs is still a
// duplicate identity.
type GraphResolver struct {
	builder    DesiredStateBuilder
	inProgress map[string]struct{}
	finished   map[string]ApplicationSpec
}

func NewGraphResolver(builder DesiredStateBuilder) *GraphResolver {
	return &GraphResolver{
		builder:    builder,
		inProgress: map[string]struct{}{},
		finished:   map[string]ApplicationSpec{},
	}
}

// ResolveRoot expands one root in DFS pre-order (each parent before the
// children it declares). Documents of kind Application found in a node's
// composed resource set become child nodes and are expanded recursively. A
// node whose identity is already on the expansion path is a cycle; a node
// re-declared with a different spec is a duplicate identity. Both fail this
// root's resolution entirely: no partial branch is returned. Other roots are
// unaffected and resolve on their own ResolveRoot calls.
func (resolver *GraphResolver) ResolveRoot(ctx context.Context, root Application) ([]ResolvedApplication, error) {
	return resolver.visit(ctx, root, nil)
}

// ResolveGraph resolves every root with a shared resolver, failing the whole
// set on the first error.
func ResolveGraph(ctx context.Context, roots []Application, builder DesiredStateBuilder) ([]ResolvedApplication, error) {
	resolver := NewGraphResolver(builder)

	var resolved []ResolvedApplication
	for _, root := range roots {
		expanded, err := resolver.ResolveRoot(ctx, root)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, expanded...)
	}
	return resolved, nil
}

// SharedClaims maps each application to the resource identities it declares
// that another resolved application also declares. Dual claims surface as
// conflicts in both applications; neither side wins the identity.
func SharedClaims(resolved []ResolvedApplication) map[string]map[ResourceKey][]string {
	claimants := map[ResourceKey][]string{}
	for _, node := range resolved {
		for _, resource := range node.Resources {
			claimants[resource.Key] = append(claimants[resource.Key], node.App.Name)
		}
	}

	shared := map[string]map[ResourceKey][]string{}
	for key, apps := range claimants {
		if len(apps) < 2 {
			continue
		}
		for _, app := range apps {
			others := make([]string, 0, len(apps)-1)
			for _, other := range apps {
				if other != app {
					others = append(others, other)
				}
			}
			if shared[app] == nil {
				shared[app] = map[ResourceKey][]string{}
			}
			shared[app][key] = others
		}
	}
	return shared
}

func (resolver *GraphResolver) visit(ctx context.Context, app Application, chain []string) ([]ResolvedApplication, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if _, active := resolver.inProgress[app.Name]; active {
		return nil, &GraphError{Kind: GraphCycle, App: app.Name, Chain: append([]string(nil), chain...)}
	}

	if previousSpec, done := resolver.finished[app.Name]; done {
		if !reflect.DeepEqual(previousSpec, app.Spec) {
			return nil, &GraphError{Kind: GraphDuplicateIdentity, App: app.Name, Chain: append([]string(nil), chain...)}
		}
		// Identical re-declaration of an already resolved node is a no-op.
		return nil, nil
	}

	resolver.inProgress[app.Name] = struct{}{}
	defer delete(resolver.inProgress, app.Name)
	chain = append(chain, app.Name)

	resources, revision, err := resolver.builder.BuildDesired(ctx, app)
	if err != nil {
		return nil, err
	}

	own, declarations := splitDeclarations(resources)

	resolver.finished[app.Name] = app.Spec
	resolved := []ResolvedApplication{{App: app, Resources: own, Revision: revision}}

	for _, declaration := range declarations {
		child, err := parseDeclaration(app.Name, declaration)
		if err != nil {
			return nil, err
		}

		expanded, err := resolver.visit(ctx, child, chain)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, expanded...)
	}

	return resolved, nil
}

func splitDeclarations(resources []Resource) (own []Resource, declarations []Resource) {
	for _, resource := range resources {
		if IsApplicationDeclaration(resource.Content) {
			declarations = append(declarations, resource)
			continue
		}
		own = append(own, resource)
	}
	return own, declarations
}

// parseDeclaration converts a child Application document into a graph node.
func parseDeclaration(parent string, declaration Resource) (Application, error) {
	specDocument, _ := declaration.Content["spec"].(map[string]any)
	if specDocument == nil {
		return Application{}, fmt.Errorf("application %q declared by %q has no spec", declaration.Key.Name, parent)
	}

	raw, err := json.Marshal(specDocument)
	if err != nil {
		return Application{}, fmt.Errorf("encode application %q spec: %w", declaration.Key.Name, err)
	}

	var spec ApplicationSpec
	if err := json.Unmarshal(raw, &spec); err != nil {
		return Application{}, fmt.Errorf("decode application %q spec: %w", declaration.Key.Name, err)
	}

	child := Application{Name: declaration.Key.Name, Parent: parent, Spec: spec}
	DefaultApplication(&child)
	if err := ValidateApplication(&child); err != nil {
		return Application{}, fmt.Errorf("application %q declared by %q: %w", child.Name, parent, err)
	}
	return child, nil
}
