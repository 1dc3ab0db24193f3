package neo4j

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/fwojciec/hangar"
	"github.com/fwojciec/hangar/mcp"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
)

// Tool names served by Tools, before any target prefix.
const (
	SchemaToolName = "get_neo4j_schema"
	CypherToolName = "read_neo4j_cypher"
)

const defaultRowLimit = 100

const schemaDescription = "List node labels, relationship types, their properties, " +
	"and the label patterns relationships connect. Call this before writing Cypher."

const cypherDescription = "Run a read-only Cypher query against the aircraft graph " +
	"and return the rows as JSON. Write clauses are rejected."

var cypherSchema = json.RawMessage(`{"type":"object","properties":{` +
	`"query":{"type":"string","description":"Cypher query to execute"},` +
	`"params":{"type":"object","description":"Query parameters"}},` +
	`"required":["query"]}`)

// Queries used by the schema tool. They rely only on built-in procedures.
const (
	nodePropsQuery = `CALL db.schema.nodeTypeProperties() ` +
		`YIELD nodeLabels, propertyName, propertyTypes ` +
		`RETURN nodeLabels, propertyName, propertyTypes`
	relPropsQuery = `CALL db.schema.relTypeProperties() ` +
		`YIELD relType, propertyName, propertyTypes ` +
		`RETURN relType, propertyName, propertyTypes`
	patternQuery = `MATCH (a)-[r]->(b) ` +
		`RETURN DISTINCT labels(a) AS from, type(r) AS rel, labels(b) AS to LIMIT 500`
)

var (
	writeClause = regexp.MustCompile(`(?i)\b(CREATE|MERGE|DELETE|DETACH|SET|REMOVE|DROP|FOREACH|LOAD\s+CSV)\b`)
	writeCall   = regexp.MustCompile(`(?i)\bCALL\s+(apoc\.(create|merge|refactor|periodic|nodes\.delete)|db\.create|dbms\.)`)
	literal     = regexp.MustCompile("'(?:[^'\\\\]|\\\\.)*'|\"(?:[^\"\\\\]|\\\\.)*\"|`[^`]*`")
)

// Tools serves the graph as MCP tools.
type Tools struct {
	reader   Reader
	target   string
	rowLimit int
}

var _ mcp.ToolProvider = (*Tools)(nil)

// Option configures Tools.
type Option func(*Tools)

// WithTarget prefixes every tool name with target and the gateway separator.
func WithTarget(target string) Option {
	return func(t *Tools) { t.target = target }
}

// WithRowLimit caps the rows returned by a Cypher query.
func WithRowLimit(n int) Option {
	return func(t *Tools) {
		if n > 0 {
			t.rowLimit = n
		}
	}
}

// NewTools returns the graph tools backed by r.
func NewTools(r Reader, opts ...Option) *Tools {
	t := &Tools{reader: r, rowLimit: defaultRowLimit}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Tools implements mcp.ToolProvider.
func (t *Tools) Tools() []mcpgo.Tool {
	schema := mcpgo.NewTool(t.name(SchemaToolName),
		mcpgo.WithDescription(schemaDescription),
		mcpgo.WithReadOnlyHintAnnotation(true),
	)
	cypher := mcpgo.NewToolWithRawSchema(t.name(CypherToolName), cypherDescription, cypherSchema)
	cypher.Annotations.ReadOnlyHint = mcpgo.ToBoolPtr(true)
	return []mcpgo.Tool{schema, cypher}
}

// CallTool implements mcp.ToolProvider.
func (t *Tools) CallTool(ctx context.Context, name string, args json.RawMessage) (*mcpgo.CallToolResult, error) {
	_, bare := hangar.SplitToolName(name)
	switch bare {
	case SchemaToolName:
		return t.schema(ctx)
	case CypherToolName:
		return t.cypher(ctx, args)
	default:
		return nil, fmt.Errorf("neo4j: unknown tool %q: %w", name, hangar.ErrToolNotFound)
	}
}

func (t *Tools) name(tool string) string {
	if t.target == "" {
		return tool
	}
	return t.target + hangar.TargetSeparator + tool
}

type cypherArgs struct {
	Query  string         `json:"query"`
	Params map[string]any `json:"params"`
}

func (t *Tools) cypher(ctx context.Context, raw json.RawMessage) (*mcpgo.CallToolResult, error) {
	var args cypherArgs
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, fmt.Errorf("neo4j: decode arguments: %v: %w", err, hangar.ErrToolArgument)
		}
	}
	query := strings.TrimSpace(args.Query)
	if query == "" {
		return nil, fmt.Errorf("neo4j: query is required: %w", hangar.ErrToolArgument)
	}
	if err := CheckReadOnly(query); err != nil {
		return nil, err
	}

	rows, err := t.reader.Read(ctx, query, args.Params)
	if err != nil {
		return errorResult(err), nil
	}
	truncated := false
	if len(rows) > t.rowLimit {
		rows = rows[:t.rowLimit]
		truncated = true
	}
	if rows == nil {
		rows = []Row{}
	}
	body, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("neo4j: encode rows: %w", err)
	}
	text := string(body)
	if truncated {
		text += fmt.Sprintf("\n(showing the first %d rows; add LIMIT or aggregate to narrow the result)", t.rowLimit)
	}
	return mcpgo.NewToolResultText(text), nil
}

// CheckReadOnly rejects queries containing write clauses. String literals
// and quoted identifiers are ignored.
func CheckReadOnly(query string) error {
	stripped := literal.ReplaceAllString(query, "''")
	if m := writeClause.FindString(stripped); m != "" {
		return fmt.Errorf("neo4j: write clause %s not allowed: %w", strings.ToUpper(m), hangar.ErrToolArgument)
	}
	if m := writeCall.FindString(stripped); m != "" {
		return fmt.Errorf("neo4j: procedure %q not allowed: %w", m, hangar.ErrToolArgument)
	}
	return nil
}

// Schema describes the graph model.
type Schema struct {
	Nodes         map[string]map[string][]string `json:"nodes"`
	Relationships map[string]map[string][]string `json:"relationships"`
	Patterns      []string                       `json:"patterns"`
}

func (t *Tools) schema(ctx context.Context) (*mcpgo.CallToolResult, error) {
	s, err := t.loadSchema(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	body, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("neo4j: encode schema: %w", err)
	}
	return mcpgo.NewToolResultStructured(s, string(body)), nil
}

func (t *Tools) loadSchema(ctx context.Context) (Schema, error) {
	s := Schema{
		Nodes:         map[string]map[string][]string{},
		Relationships: map[string]map[string][]string{},
		Patterns:      []string{},
	}

	rows, err := t.reader.Read(ctx, nodePropsQuery, nil)
	if err != nil {
		return s, err
	}
	for _, r := range rows {
		label := strings.Join(stringList(r["nodeLabels"]), ":")
		addProperty(s.Nodes, label, r["propertyName"], r["propertyTypes"])
	}

	rows, err = t.reader.Read(ctx, relPropsQuery, nil)
	if err != nil {
		return s, err
	}
	for _, r := range rows {
		rel, _ := r["relType"].(string)
		rel = strings.TrimSuffix(strings.TrimPrefix(rel, ":`"), "`")
		addProperty(s.Relationships, rel, r["propertyName"], r["propertyTypes"])
	}

	rows, err = t.reader.Read(ctx, patternQuery, nil)
	if err != nil {
		return s, err
	}
	seen := map[string]bool{}
	for _, r := range rows {
		rel, _ := r["rel"].(string)
		p := fmt.Sprintf("(:%s)-[:%s]->(:%s)",
			strings.Join(stringList(r["from"]), ":"), rel, strings.Join(stringList(r["to"]), ":"))
		if !seen[p] {
			seen[p] = true
			s.Patterns = append(s.Patterns, p)
		}
	}
	sort.Strings(s.Patterns)
	return s, nil
}

func addProperty(into map[string]map[string][]string, name string, prop, types any) {
	if name == "" {
		return
	}
	props, ok := into[name]
	if !ok {
		props = map[string][]string{}
		into[name] = props
	}
	if p, ok := prop.(string); ok && p != "" {
		props[p] = stringList(types)
	}
}

// stringList converts a list value returned by the driver into strings.
func stringList(v any) []string {
	switch x := v.(type) {
	case []string:
		return x
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func errorResult(err error) *mcpgo.CallToolResult {
	return mcpgo.NewToolResultError(err.Error())
}
