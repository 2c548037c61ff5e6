// Package registry loads operation cards, validates them and serves them by
// capability id.
//
// Loading is a boot-time check: every document is decoded, checked against
// the CUE meta-schema in card.cue, validated semantically and has its JSON
// Schemas compiled. Nothing is served unless everything passes; a failed load
// returns a *LoadError naming every problem at once.
package registry

import (
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aryeko/ghx-router-sub004/internal/card"
	"github.com/aryeko/ghx-router-sub004/internal/composite"
	"github.com/aryeko/ghx-router-sub004/internal/gql"
	"github.com/aryeko/ghx-router-sub004/internal/schema"
)

// DefaultPriority is the curated listing order. Capabilities not named here
// follow in lexical order.
var DefaultPriority = []string{
	"repo.view",
	"issue.view",
	"issue.list",
	"issue.comments.create",
	"issue.close",
	"issue.reopen",
	"issue.labels.add",
	"issue.milestone.set",
	"issue.milestone.clear",
	"pr.view",
	"pr.merge",
}

// Registry is an immutable set of validated cards.
type Registry struct {
	cards    map[string]*card.OperationCard
	inputs   map[string]*schema.Schema
	outputs  map[string]*schema.Schema
	order    []string
	logger   *slog.Logger
	priority []string
}

// Option configures Load.
type Option func(*Registry)

// WithLogger sets the logger used while loading.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithPriority replaces DefaultPriority.
func WithPriority(ids []string) Option {
	return func(r *Registry) { r.priority = ids }
}

// Load reads every *.yaml, *.yml and *.json document under fsys. GraphQL
// documentPath values are resolved inside the same fsys.
func Load(fsys fs.FS, opts ...Option) (*Registry, error) {
	r := &Registry{
		cards:    make(map[string]*card.OperationCard),
		inputs:   make(map[string]*schema.Schema),
		outputs:  make(map[string]*schema.Schema),
		logger:   slog.Default(),
		priority: DefaultPriority,
	}
	for _, opt := range opts {
		opt(r)
	}

	meta, err := newMetaChecker()
	if err != nil {
		return nil, err
	}

	var files []string
	err = fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch path.Ext(p) {
		case ".yaml", ".yml", ".json":
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan card documents: %w", err)
	}
	sort.Strings(files)

	if len(files) == 0 {
		return nil, &LoadError{Issues: []Issue{{Code: ErrNoCards, Message: "no card documents found"}}}
	}

	var issues []Issue
	sources := make(map[string]string, len(files))
	for _, file := range files {
		c, fileIssues := decodeCard(fsys, meta, file)
		if len(fileIssues) > 0 {
			issues = append(issues, fileIssues...)
			continue
		}
		if prev, dup := sources[c.CapabilityID]; dup {
			issues = append(issues, Issue{
				Code:         ErrDuplicateID,
				File:         file,
				CapabilityID: c.CapabilityID,
				Message:      fmt.Sprintf("already defined in %s", prev),
			})
			continue
		}
		sources[c.CapabilityID] = file
		r.cards[c.CapabilityID] = c
	}

	for id, c := range r.cards {
		file := sources[id]
		issues = append(issues, validateCard(c, file)...)
		issues = append(issues, r.compileSchemas(c, file)...)
	}
	issues = append(issues, r.validateComposites(sources)...)

	if len(issues) > 0 {
		sort.SliceStable(issues, func(i, j int) bool {
			if issues[i].File != issues[j].File {
				return issues[i].File < issues[j].File
			}
			return issues[i].Code < issues[j].Code
		})
		return nil, &LoadError{Issues: issues}
	}

	r.order = r.sortIDs()
	r.logger.Debug("cards loaded", "count", len(r.cards))
	return r, nil
}

func decodeCard(fsys fs.FS, meta *metaChecker, file string) (*card.OperationCard, []Issue) {
	data, err := fs.ReadFile(fsys, file)
	if err != nil {
		return nil, []Issue{{Code: ErrDecode, File: file, Message: err.Error()}}
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, []Issue{{Code: ErrDecode, File: file, Message: err.Error()}}
	}
	if raw == nil {
		return nil, []Issue{{Code: ErrDecode, File: file, Message: "empty document"}}
	}
	if issues := meta.check(file, raw); len(issues) > 0 {
		return nil, issues
	}

	var c card.OperationCard
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, []Issue{{Code: ErrDecode, File: file, Message: err.Error()}}
	}

	if g := c.GraphQL; g != nil {
		doc, issue := readDocument(fsys, file, g.Document, g.DocumentPath, "graphql")
		if issue != nil {
			issue.CapabilityID = c.CapabilityID
			return nil, []Issue{*issue}
		}
		g.Document = doc
		if res := g.Resolution; res != nil {
			lookup, issue := readDocument(fsys, file, res.Lookup.Document, res.Lookup.DocumentPath, "graphql.resolution.lookup")
			if issue != nil {
				issue.CapabilityID = c.CapabilityID
				return nil, []Issue{*issue}
			}
			res.Lookup.Document = lookup
		}
	}
	return &c, nil
}

func readDocument(fsys fs.FS, file, inline, docPath, field string) (string, *Issue) {
	if inline != "" {
		return inline, nil
	}
	if docPath == "" {
		return "", &Issue{Code: ErrGraphQLDocument, File: file, Field: field, Message: "one of document or documentPath is required"}
	}
	data, err := fs.ReadFile(fsys, docPath)
	if err != nil {
		return "", &Issue{Code: ErrGraphQLDocument, File: file, Field: field + ".documentPath", Message: err.Error()}
	}
	return string(data), nil
}

// validateCard runs the semantic checks that need the whole decoded card.
// It fills in GraphQL operation types derived from the documents.
func validateCard(c *card.OperationCard, file string) []Issue {
	var issues []Issue
	add := func(code, field, format string, args ...any) {
		issues = append(issues, Issue{
			Code:         code,
			File:         file,
			CapabilityID: c.CapabilityID,
			Field:        field,
			Message:      fmt.Sprintf(format, args...),
		})
	}

	for i, route := range c.Routing.Order() {
		if !c.Configured(route) {
			field := "routing.preferred"
			if i > 0 {
				field = "routing.fallbacks"
			}
			add(ErrRouteNotConfigured, field, "route %q has no %s configuration", route, route)
		}
	}
	if c.GraphQL != nil && c.Composite != nil {
		add(ErrComposite, "composite", "a card cannot declare both graphql and composite")
	}

	if g := c.GraphQL; g != nil {
		opType, err := gql.OperationType(g.Document)
		if err != nil {
			add(ErrGraphQLDocument, "graphql.document", "%v", err)
		} else {
			if g.OperationType != "" && g.OperationType != opType {
				add(ErrGraphQLDocument, "graphql.operationType", "declared %q but document is a %s", g.OperationType, opType)
			}
			g.OperationType = opType
			if name, _ := gql.OperationName(g.Document); name != g.OperationName {
				add(ErrGraphQLDocument, "graphql.operationName", "declared %q but document names %q", g.OperationName, name)
			}
		}
		if g.Resolution != nil {
			issues = append(issues, validateResolution(c, file)...)
		}
	}

	if cli := c.CLI; cli != nil {
		for i, arg := range cli.Args {
			if _, err := card.ParseTemplate("arg", arg); err != nil {
				add(ErrCLITemplate, fmt.Sprintf("cli.args[%d]", i), "%v", err)
			}
		}
	}
	if rest := c.REST; rest != nil {
		for i, ep := range rest.Endpoints {
			if _, err := card.ParseTemplate("path", ep.Path); err != nil {
				add(ErrCLITemplate, fmt.Sprintf("rest.endpoints[%d].path", i), "%v", err)
			}
		}
	}
	return issues
}

func validateResolution(c *card.OperationCard, file string) []Issue {
	var issues []Issue
	add := func(code, field, format string, args ...any) {
		issues = append(issues, Issue{
			Code:         code,
			File:         file,
			CapabilityID: c.CapabilityID,
			Field:        field,
			Message:      fmt.Sprintf(format, args...),
		})
	}
	res := c.GraphQL.Resolution

	lookupType, err := gql.OperationType(res.Lookup.Document)
	if err != nil {
		add(ErrGraphQLDocument, "graphql.resolution.lookup.document", "%v", err)
	} else if lookupType != "query" {
		add(ErrResolution, "graphql.resolution.lookup.document", "lookup must be a query, got %s", lookupType)
	}
	if lookupVars, err := gql.VariableNames(res.Lookup.Document); err == nil {
		declared := make(map[string]bool, len(lookupVars))
		for _, v := range lookupVars {
			declared[v] = true
		}
		for v := range res.Lookup.Vars {
			if !declared[v] {
				add(ErrResolution, "graphql.resolution.lookup.vars", "lookup document does not declare $%s", v)
			}
		}
	}

	targets := map[string]bool{}
	if names, err := gql.VariableNames(c.GraphQL.Document); err == nil {
		for _, n := range names {
			targets[n] = true
		}
	}
	for i, inj := range res.Inject {
		field := fmt.Sprintf("graphql.resolution.inject[%d]", i)
		if !targets[inj.Target] {
			add(ErrResolution, field+".target", "document does not declare $%s", inj.Target)
		}
		switch inj.Source {
		case card.SourceNullLiteral:
		case card.SourceScalar:
			if inj.Path == "" {
				add(ErrInjectSource, field+".path", "scalar source requires path")
			}
		case card.SourceInput:
			if inj.From == "" {
				add(ErrInjectSource, field+".from_input", "input source requires from_input")
			}
		case card.SourceMapArray:
			if inj.From == "" || inj.NodesPath == "" || inj.MatchField == "" || inj.ExtractField == "" {
				add(ErrInjectSource, field, "map_array source requires from_input, nodes_path, match_field and extract_field")
			}
		default:
			add(ErrInjectSource, field+".source", "unknown inject source %q", inj.Source)
		}
	}
	return issues
}

func (r *Registry) compileSchemas(c *card.OperationCard, file string) []Issue {
	var issues []Issue
	in, err := schema.Compile(c.CapabilityID+".input", c.InputSchema)
	if err != nil {
		issues = append(issues, Issue{Code: ErrSchemaCompile, File: file, CapabilityID: c.CapabilityID, Field: "input_schema", Message: err.Error()})
	} else {
		r.inputs[c.CapabilityID] = in
	}
	out, err := schema.Compile(c.CapabilityID+".output", c.OutputSchema)
	if err != nil {
		issues = append(issues, Issue{Code: ErrSchemaCompile, File: file, CapabilityID: c.CapabilityID, Field: "output_schema", Message: err.Error()})
	} else {
		r.outputs[c.CapabilityID] = out
	}
	return issues
}

func (r *Registry) validateComposites(sources map[string]string) []Issue {
	var issues []Issue
	for id, c := range r.cards {
		if c.Composite == nil {
			continue
		}
		for i, step := range c.Composite.Steps {
			field := fmt.Sprintf("composite.steps[%d].capability_id", i)
			target, ok := r.cards[step.CapabilityID]
			switch {
			case !ok:
				issues = append(issues, Issue{Code: ErrComposite, File: sources[id], CapabilityID: id, Field: field,
					Message: fmt.Sprintf("unknown capability %q", step.CapabilityID)})
			case !buildable(target):
				issues = append(issues, Issue{Code: ErrComposite, File: sources[id], CapabilityID: id, Field: field,
					Message: fmt.Sprintf("%q is not a plain graphql mutation and cannot be batched", step.CapabilityID)})
			}
		}
	}
	return issues
}

// buildable reports whether c can serve as a composite step: a GraphQL
// mutation needing no resolution.
func buildable(c *card.OperationCard) bool {
	return c.GraphQL != nil && c.GraphQL.Resolution == nil && c.GraphQL.IsMutation()
}

func (r *Registry) sortIDs() []string {
	rank := make(map[string]int, len(r.priority))
	for i, id := range r.priority {
		if _, seen := rank[id]; !seen {
			rank[id] = i
		}
	}
	ids := make([]string, 0, len(r.cards))
	for id := range r.cards {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ri, iok := rank[ids[i]]
		rj, jok := rank[ids[j]]
		switch {
		case iok && jok:
			return ri < rj
		case iok != jok:
			return iok
		}
		return ids[i] < ids[j]
	})
	return ids
}

// Get returns the card for id.
func (r *Registry) Get(id string) (*card.OperationCard, bool) {
	c, ok := r.cards[id]
	return c, ok
}

// List returns every card in listing order.
func (r *Registry) List() []*card.OperationCard {
	out := make([]*card.OperationCard, len(r.order))
	for i, id := range r.order {
		out[i] = r.cards[id]
	}
	return out
}

// Len returns the number of cards.
func (r *Registry) Len() int { return len(r.cards) }

// InputSchema returns the compiled input schema of id.
func (r *Registry) InputSchema(id string) *schema.Schema { return r.inputs[id] }

// OutputSchema returns the compiled output schema of id.
func (r *Registry) OutputSchema(id string) *schema.Schema { return r.outputs[id] }

// Builders returns a composite builder for every card that can be a
// composite step.
func (r *Registry) Builders() map[string]composite.Builder {
	out := make(map[string]composite.Builder)
	for id, c := range r.cards {
		if buildable(c) {
			out[id] = composite.DocumentBuilder(c.GraphQL.Document)
		}
	}
	return out
}

// Describe renders a one-line summary of a card's routing.
func Describe(c *card.OperationCard) string {
	routes := make([]string, 0, 3)
	for _, route := range c.Routing.Order() {
		routes = append(routes, string(route))
	}
	return fmt.Sprintf("%s (%s)", c.CapabilityID, strings.Join(routes, " > "))
}
