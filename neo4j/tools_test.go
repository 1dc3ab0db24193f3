package neo4j_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fwojciec/hangar"
	"github.com/fwojciec/hangar/mcp"
	"github.com/fwojciec/hangar/mock"
	"github.com/fwojciec/hangar/neo4j"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type readerFn func(ctx context.Context, query string, params map[string]any) ([]neo4j.Row, error)

func (f readerFn) Read(ctx context.Context, query string, params map[string]any) ([]neo4j.Row, error) {
	return f(ctx, query, params)
}

func schemaReader() readerFn {
	return func(_ context.Context, query string, _ map[string]any) ([]neo4j.Row, error) {
		switch {
		case strings.Contains(query, "nodeTypeProperties"):
			return []neo4j.Row{
				{"nodeLabels": []any{"Aircraft"}, "propertyName": "tail_number", "propertyTypes": []any{"String"}},
				{"nodeLabels": []any{"Aircraft"}, "propertyName": "model", "propertyTypes": []any{"String"}},
				{"nodeLabels": []any{"System"}, "propertyName": "name", "propertyTypes": []any{"String"}},
			}, nil
		case strings.Contains(query, "relTypeProperties"):
			return []neo4j.Row{
				{"relType": ":`HAS_SYSTEM`", "propertyName": nil, "propertyTypes": nil},
			}, nil
		default:
			return []neo4j.Row{
				{"from": []any{"Aircraft"}, "rel": "HAS_SYSTEM", "to": []any{"System"}},
				{"from": []any{"Aircraft"}, "rel": "HAS_SYSTEM", "to": []any{"System"}},
			}, nil
		}
	}
}

func resultText(t *testing.T, res *mcpgo.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	var sb strings.Builder
	for _, c := range res.Content {
		if tc, ok := mcpgo.AsTextContent(c); ok {
			sb.WriteString(tc.Text)
		}
	}
	return sb.String()
}

func TestTools_Names(t *testing.T) {
	t.Parallel()

	t.Run("bare", func(t *testing.T) {
		t.Parallel()
		tools := neo4j.NewTools(schemaReader()).Tools()
		require.Len(t, tools, 2)
		assert.Equal(t, neo4j.SchemaToolName, tools[0].Name)
		assert.Equal(t, neo4j.CypherToolName, tools[1].Name)
		assert.True(t, json.Valid(tools[1].RawInputSchema))
		require.NotNil(t, tools[1].Annotations.ReadOnlyHint)
		assert.True(t, *tools[1].Annotations.ReadOnlyHint)
	})

	t.Run("target prefix", func(t *testing.T) {
		t.Parallel()
		tools := neo4j.NewTools(schemaReader(), neo4j.WithTarget("fleet-graph")).Tools()
		assert.Equal(t, "fleet-graph___get_neo4j_schema", tools[0].Name)
		assert.Equal(t, "fleet-graph___read_neo4j_cypher", tools[1].Name)
	})
}

func TestTools_Schema(t *testing.T) {
	t.Parallel()
	tools := neo4j.NewTools(schemaReader())

	res, err := tools.CallTool(context.Background(), neo4j.SchemaToolName, nil)
	require.NoError(t, err)
	require.False(t, res.IsError)

	s, ok := res.StructuredContent.(neo4j.Schema)
	require.True(t, ok)
	assert.JSONEq(t, resultText(t, res), mustJSON(t, s))
	assert.Equal(t, []string{"String"}, s.Nodes["Aircraft"]["tail_number"])
	assert.Contains(t, s.Nodes, "System")
	assert.Contains(t, s.Relationships, "HAS_SYSTEM")
	assert.Equal(t, []string{"(:Aircraft)-[:HAS_SYSTEM]->(:System)"}, s.Patterns)
}

func TestTools_Schema_ReadFailureIsToolError(t *testing.T) {
	t.Parallel()
	tools := neo4j.NewTools(readerFn(func(context.Context, string, map[string]any) ([]neo4j.Row, error) {
		return nil, errors.New("neo4j: read: connection refused")
	}))

	res, err := tools.CallTool(context.Background(), neo4j.SchemaToolName, nil)
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "connection refused")
}

func TestTools_Cypher(t *testing.T) {
	t.Parallel()

	var gotQuery string
	var gotParams map[string]any
	tools := neo4j.NewTools(readerFn(func(_ context.Context, q string, p map[string]any) ([]neo4j.Row, error) {
		gotQuery, gotParams = q, p
		return []neo4j.Row{{"tail": "N95040A", "events": int64(3)}}, nil
	}), neo4j.WithTarget("fleet-graph"))

	args := json.RawMessage(`{"query":"MATCH (a:Aircraft {tail_number: $tail}) RETURN a.tail_number AS tail","params":{"tail":"N95040A"}}`)
	res, err := tools.CallTool(context.Background(), "fleet-graph___read_neo4j_cypher", args)
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.JSONEq(t, `[{"tail":"N95040A","events":3}]`, resultText(t, res))
	assert.True(t, strings.HasPrefix(gotQuery, "MATCH"))
	assert.Equal(t, map[string]any{"tail": "N95040A"}, gotParams)
}

func TestTools_Cypher_RowLimit(t *testing.T) {
	t.Parallel()
	tools := neo4j.NewTools(readerFn(func(context.Context, string, map[string]any) ([]neo4j.Row, error) {
		rows := make([]neo4j.Row, 5)
		for i := range rows {
			rows[i] = neo4j.Row{"n": i}
		}
		return rows, nil
	}), neo4j.WithRowLimit(2))

	res, err := tools.CallTool(context.Background(), neo4j.CypherToolName, json.RawMessage(`{"query":"MATCH (n) RETURN n"}`))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, res), `[{"n":0},{"n":1}]`)
	assert.Contains(t, resultText(t, res), "first 2 rows")
}

func TestTools_Cypher_EmptyResult(t *testing.T) {
	t.Parallel()
	tools := neo4j.NewTools(readerFn(func(context.Context, string, map[string]any) ([]neo4j.Row, error) {
		return nil, nil
	}))

	res, err := tools.CallTool(context.Background(), neo4j.CypherToolName, json.RawMessage(`{"query":"MATCH (n:Nothing) RETURN n"}`))
	require.NoError(t, err)
	assert.Equal(t, "[]", resultText(t, res))
}

func TestTools_Cypher_ArgumentErrors(t *testing.T) {
	t.Parallel()
	called := false
	tools := neo4j.NewTools(readerFn(func(context.Context, string, map[string]any) ([]neo4j.Row, error) {
		called = true
		return nil, nil
	}))

	for _, args := range []string{`{"query":"  "}`, `{}`, `{"query":`, `{"query":"MATCH (n) DETACH DELETE n"}`} {
		_, err := tools.CallTool(context.Background(), neo4j.CypherToolName, json.RawMessage(args))
		assert.ErrorIs(t, err, hangar.ErrToolArgument, args)
	}
	assert.False(t, called)
}

func TestTools_UnknownTool(t *testing.T) {
	t.Parallel()
	_, err := neo4j.NewTools(schemaReader()).CallTool(context.Background(), "write_neo4j_cypher", nil)
	assert.ErrorIs(t, err, hangar.ErrToolNotFound)
}

func TestCheckReadOnly(t *testing.T) {
	t.Parallel()

	tests := []struct {
		query string
		ok    bool
	}{
		{"MATCH (a:Aircraft) RETURN a LIMIT 5", true},
		{"MATCH (a:Aircraft)-[:HAS_EVENT]->(e) WHERE e.fault = 'SET POINT DRIFT' RETURN e", true},
		{"MATCH (n) WHERE n.`created` IS NOT NULL RETURN n", true},
		{"CALL db.schema.visualization()", true},
		{"CREATE (a:Aircraft {tail_number: 'X'})", false},
		{"match (a) set a.retired = true", false},
		{"MERGE (a:Airport {iata: 'JFK'})", false},
		{"MATCH (n) REMOVE n.flag", false},
		{"LOAD CSV FROM 'file:///x.csv' AS row RETURN row", false},
		{"CALL apoc.periodic.iterate('MATCH (n) RETURN n', 'DELETE n', {})", false},
		{"CALL dbms.killQuery('q-1')", false},
	}
	for _, tt := range tests {
		err := neo4j.CheckReadOnly(tt.query)
		if tt.ok {
			assert.NoError(t, err, tt.query)
		} else {
			assert.ErrorIs(t, err, hangar.ErrToolArgument, tt.query)
		}
	}
}

func TestTools_ServedOverMCP(t *testing.T) {
	t.Parallel()

	tools := neo4j.NewTools(readerFn(func(context.Context, string, map[string]any) ([]neo4j.Row, error) {
		return []neo4j.Row{{"count": int64(42)}}, nil
	}), neo4j.WithTarget("fleet-graph"))
	srv := httptest.NewServer(mcp.NewServer(tools))
	t.Cleanup(srv.Close)

	creds := &mock.CredentialProvider{
		TokenFn: func(context.Context) (hangar.Credential, error) {
			return hangar.Credential{AccessToken: "tok", Expiry: time.Now().Add(time.Hour)}, nil
		},
	}
	session, err := mcp.New(srv.URL, creds).Open(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })

	descs, err := session.DiscoverTools(context.Background(), []string{"fleet-graph"})
	require.NoError(t, err)
	require.Len(t, descs, 2)
	assert.Equal(t, "fleet-graph", descs[0].Target)

	res, err := session.InvokeTool(context.Background(), "fleet-graph___read_neo4j_cypher",
		json.RawMessage(`{"query":"MATCH (a:Aircraft) RETURN count(a) AS count"}`))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.JSONEq(t, `[{"count":42}]`, hangar.JoinText(res.Content))

	res, err = session.InvokeTool(context.Background(), "fleet-graph___read_neo4j_cypher",
		json.RawMessage(`{"query":"CREATE (a:Aircraft)"}`))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Equal(t, hangar.ToolReportedError, res.Kind, fmt.Sprint(res.Content))
	assert.Contains(t, hangar.JoinText(res.Content), "write clause CREATE not allowed")
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}
