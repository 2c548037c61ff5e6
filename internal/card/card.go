package card

// Route identifies a transport capable of executing a capability.
type Route string

const (
	RouteCLI     Route = "cli"
	RouteGraphQL Route = "graphql"
	RouteREST    Route = "rest"
)

// Routes lists every valid route in a stable order.
var Routes = []Route{RouteCLI, RouteGraphQL, RouteREST}

// Valid reports whether r is one of the known routes.
func (r Route) Valid() bool {
	switch r {
	case RouteCLI, RouteGraphQL, RouteREST:
		return true
	}
	return false
}

// OperationCard is the declarative definition of one capability.
type OperationCard struct {
	CapabilityID string         `yaml:"capability_id" json:"capability_id"`
	Version      string         `yaml:"version" json:"version"`
	Description  string         `yaml:"description" json:"description"`
	InputSchema  map[string]any `yaml:"input_schema" json:"input_schema"`
	OutputSchema map[string]any `yaml:"output_schema" json:"output_schema"`
	Routing      Routing        `yaml:"routing" json:"routing"`
	GraphQL      *GraphQLSpec   `yaml:"graphql,omitempty" json:"graphql,omitempty"`
	CLI          *CLISpec       `yaml:"cli,omitempty" json:"cli,omitempty"`
	REST         *RESTSpec      `yaml:"rest,omitempty" json:"rest,omitempty"`
	Composite    *CompositeSpec `yaml:"composite,omitempty" json:"composite,omitempty"`
}

// Routing is the card's route preference.
type Routing struct {
	Preferred Route    `yaml:"preferred" json:"preferred"`
	Fallbacks []Route  `yaml:"fallbacks" json:"fallbacks"`
	Notes     []string `yaml:"notes,omitempty" json:"notes,omitempty"`
}

// Order returns the preferred route followed by the fallbacks, without
// duplicates.
func (r Routing) Order() []Route {
	order := make([]Route, 0, 1+len(r.Fallbacks))
	seen := make(map[Route]bool, 1+len(r.Fallbacks))
	for _, route := range append([]Route{r.Preferred}, r.Fallbacks...) {
		if route == "" || seen[route] {
			continue
		}
		seen[route] = true
		order = append(order, route)
	}
	return order
}

// GraphQLSpec configures the typed query/mutation route.
type GraphQLSpec struct {
	OperationName string `yaml:"operationName" json:"operationName"`
	// OperationType is "query" or "mutation". The registry derives it from
	// the document when the card leaves it empty.
	OperationType string          `yaml:"operationType,omitempty" json:"operationType,omitempty"`
	DocumentPath  string          `yaml:"documentPath,omitempty" json:"documentPath,omitempty"`
	Document      string          `yaml:"document,omitempty" json:"document,omitempty"`
	OutputPath    string          `yaml:"output_path,omitempty" json:"output_path,omitempty"`
	Resolution    *ResolutionSpec `yaml:"resolution,omitempty" json:"resolution,omitempty"`
}

// IsMutation reports whether the operation is a mutation.
func (g *GraphQLSpec) IsMutation() bool {
	return g != nil && g.OperationType == "mutation"
}

// ResolutionSpec describes a lookup whose result feeds a mutation.
type ResolutionSpec struct {
	Lookup LookupSpec   `yaml:"lookup" json:"lookup"`
	Inject []InjectSpec `yaml:"inject" json:"inject"`
}

// LookupSpec is the preparatory query. Vars maps lookup variable names to
// input field names.
type LookupSpec struct {
	OperationName string            `yaml:"operationName" json:"operationName"`
	DocumentPath  string            `yaml:"documentPath,omitempty" json:"documentPath,omitempty"`
	Document      string            `yaml:"document,omitempty" json:"document,omitempty"`
	Vars          map[string]string `yaml:"vars" json:"vars"`
}

// InjectSource selects how an injected value is produced.
type InjectSource string

const (
	SourceNullLiteral InjectSource = "null_literal"
	SourceScalar      InjectSource = "scalar"
	SourceInput       InjectSource = "input"
	SourceMapArray    InjectSource = "map_array"
)

// Valid reports whether s is a known inject source.
func (s InjectSource) Valid() bool {
	switch s {
	case SourceNullLiteral, SourceScalar, SourceInput, SourceMapArray:
		return true
	}
	return false
}

// InjectSpec writes one mutation variable.
//
// scalar reads Path from the lookup result; input copies input field From;
// map_array maps every name in input array From to the ExtractField of the
// node (under NodesPath) whose MatchField equals it case-insensitively.
type InjectSpec struct {
	Target       string       `yaml:"target" json:"target"`
	Source       InjectSource `yaml:"source" json:"source"`
	Path         string       `yaml:"path,omitempty" json:"path,omitempty"`
	From         string       `yaml:"from_input,omitempty" json:"from_input,omitempty"`
	NodesPath    string       `yaml:"nodes_path,omitempty" json:"nodes_path,omitempty"`
	MatchField   string       `yaml:"match_field,omitempty" json:"match_field,omitempty"`
	ExtractField string       `yaml:"extract_field,omitempty" json:"extract_field,omitempty"`
}

// CLISpec configures the command-line route. Command is the subcommand path
// (e.g. "issue close"); Args are text/template strings rendered against the
// input, and arguments that render empty are dropped.
type CLISpec struct {
	Command   string   `yaml:"command" json:"command"`
	Args      []string `yaml:"args,omitempty" json:"args,omitempty"`
	Output    string   `yaml:"output,omitempty" json:"output,omitempty"`
	TimeoutMs int      `yaml:"timeout_ms,omitempty" json:"timeout_ms,omitempty"`
}

// RESTSpec configures the REST route.
type RESTSpec struct {
	Endpoints []RESTEndpoint `yaml:"endpoints" json:"endpoints"`
}

// RESTEndpoint is one HTTP endpoint; Path is a text/template.
type RESTEndpoint struct {
	Method string `yaml:"method" json:"method"`
	Path   string `yaml:"path" json:"path"`
}

// CompositeSpec expands one invocation into several concrete operations.
type CompositeSpec struct {
	Steps          []CompositeStep `yaml:"steps" json:"steps"`
	OutputStrategy string          `yaml:"output_strategy,omitempty" json:"output_strategy,omitempty"`
}

// Output strategies for composite cards.
const (
	OutputMerge = "merge"
	OutputArray = "array"
	OutputLast  = "last"
)

// CompositeStep is one step of a composite card. ParamsMap maps builder
// parameter names to source field names.
type CompositeStep struct {
	CapabilityID  string            `yaml:"capability_id" json:"capability_id"`
	Foreach       string            `yaml:"foreach,omitempty" json:"foreach,omitempty"`
	Actions       []string          `yaml:"actions,omitempty" json:"actions,omitempty"`
	RequiresAnyOf []string          `yaml:"requires_any_of,omitempty" json:"requires_any_of,omitempty"`
	ParamsMap     map[string]string `yaml:"params_map" json:"params_map"`
}

// HasGraphQL reports whether the card can run on the GraphQL route.
func (c *OperationCard) HasGraphQL() bool {
	return c.GraphQL != nil || c.Composite != nil
}

// IsCLIOnly reports whether the CLI is the only usable batch route.
func (c *OperationCard) IsCLIOnly() bool {
	return !c.HasGraphQL() && c.CLI != nil
}

// Configured reports whether the card carries configuration for route.
func (c *OperationCard) Configured(route Route) bool {
	switch route {
	case RouteGraphQL:
		return c.HasGraphQL()
	case RouteCLI:
		return c.CLI != nil
	case RouteREST:
		return c.REST != nil && len(c.REST.Endpoints) > 0
	}
	return false
}
