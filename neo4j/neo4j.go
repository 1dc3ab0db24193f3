// Package neo4j exposes a Neo4j property graph as read-only MCP tools.
package neo4j

import (
	"context"
	"fmt"

	neo "github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

// Row is a single query result keyed by column name.
type Row map[string]any

// Reader runs a Cypher query in a read transaction.
type Reader interface {
	Read(ctx context.Context, query string, params map[string]any) ([]Row, error)
}

// Driver is a Reader backed by the Neo4j Go driver.
type Driver struct {
	driver   neo.DriverWithContext
	database string
}

var _ Reader = (*Driver)(nil)

// Open connects to the database at uri. An empty username connects without
// authentication; an empty database uses the server default.
func Open(uri, username, password, database string) (*Driver, error) {
	auth := neo.NoAuth()
	if username != "" {
		auth = neo.BasicAuth(username, password, "")
	}
	d, err := neo.NewDriverWithContext(uri, auth)
	if err != nil {
		return nil, fmt.Errorf("neo4j: create driver: %w", err)
	}
	return &Driver{driver: d, database: database}, nil
}

// Ping verifies connectivity to the database.
func (d *Driver) Ping(ctx context.Context) error {
	if err := d.driver.VerifyConnectivity(ctx); err != nil {
		return fmt.Errorf("neo4j: verify connectivity: %w", err)
	}
	return nil
}

// Close releases the driver.
func (d *Driver) Close(ctx context.Context) error {
	return d.driver.Close(ctx)
}

// Read implements Reader. Records are collected inside a managed read
// transaction so the server refuses any write the query attempts.
func (d *Driver) Read(ctx context.Context, query string, params map[string]any) ([]Row, error) {
	session := d.driver.NewSession(ctx, neo.SessionConfig{
		AccessMode:   neo.AccessModeRead,
		DatabaseName: d.database,
	})
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		var rows []Row
		for result.Next(ctx) {
			rec := result.Record()
			row := make(Row, len(rec.Keys))
			for i, key := range rec.Keys {
				row[key] = plain(rec.Values[i])
			}
			rows = append(rows, row)
		}
		return rows, result.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("neo4j: read: %w", err)
	}
	rows, _ := out.([]Row)
	return rows, nil
}

// plain converts driver graph values into JSON-friendly maps.
func plain(v any) any {
	switch x := v.(type) {
	case dbtype.Node:
		return map[string]any{"labels": x.Labels, "properties": plainMap(x.Props)}
	case dbtype.Relationship:
		return map[string]any{"type": x.Type, "properties": plainMap(x.Props)}
	case dbtype.Path:
		nodes := make([]any, len(x.Nodes))
		for i, n := range x.Nodes {
			nodes[i] = plain(n)
		}
		rels := make([]any, len(x.Relationships))
		for i, r := range x.Relationships {
			rels[i] = plain(r)
		}
		return map[string]any{"nodes": nodes, "relationships": rels}
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = plain(e)
		}
		return out
	case map[string]any:
		return plainMap(x)
	case dbtype.Date, dbtype.LocalTime, dbtype.LocalDateTime, dbtype.Time, dbtype.Duration:
		return fmt.Sprint(x)
	default:
		return v
	}
}

func plainMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = plain(v)
	}
	return out
}
