package cypher_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nervus-db/nervusdb/pkg/config"
	"github.com/nervus-db/nervusdb/pkg/cypher"
	"github.com/nervus-db/nervusdb/pkg/storage"
)

func openTestEngine(t *testing.T) *storage.Engine {
	t.Helper()
	eng, err := storage.Open(t.TempDir(), config.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })
	return eng
}

func run(t *testing.T, eng *storage.Engine, src string) *cypher.QueryResult {
	t.Helper()
	pq, err := cypher.Prepare(src)
	require.NoError(t, err)
	res, err := pq.Run(eng, nil, nil)
	require.NoError(t, err)
	return res
}

// A two-hop pattern compiles and executes.
func TestTwoHopPatternMatch(t *testing.T) {
	eng := openTestEngine(t)

	create := run(t, eng, "CREATE (a {name: 'a'})-[:R]->(b {name: 'b'})-[:R]->(c {name: 'c'})")
	require.NotNil(t, create.Stats)
	require.Equal(t, 3, create.Stats.NodesCreated)
	require.Equal(t, 2, create.Stats.RelationshipsCreated)

	res := run(t, eng, "MATCH (a)-[:R]->(b)-[:R]->(c) RETURN a, c")
	require.Len(t, res.Rows, 1)
	row := res.Rows[0]
	a, ok := row["a"]
	require.True(t, ok)
	c, ok := row["c"]
	require.True(t, ok)
	aID, ok := a.AsNodeID()
	require.True(t, ok)
	cID, ok := c.AsNodeID()
	require.True(t, ok)
	require.NotEqual(t, aID, cID)
}

func TestExplainDoesNotExecute(t *testing.T) {
	eng := openTestEngine(t)
	res := run(t, eng, "EXPLAIN MATCH (n) RETURN n")
	require.NotEmpty(t, res.Explain)
	require.Nil(t, res.Rows)
}

func TestCreateMatchFilterReturn(t *testing.T) {
	eng := openTestEngine(t)
	run(t, eng, "CREATE (:Person {name: 'Alice', age: 30})")
	run(t, eng, "CREATE (:Person {name: 'Bob', age: 25})")

	res := run(t, eng, "MATCH (p:Person) WHERE p.age > 26 RETURN p.name AS name")
	require.Len(t, res.Rows, 1)
	require.Equal(t, "Alice", res.Rows[0]["name"].Str)
}

func TestSetAndRemoveProperty(t *testing.T) {
	eng := openTestEngine(t)
	run(t, eng, "CREATE (:Person {name: 'Alice'})")

	res := run(t, eng, "MATCH (p:Person) SET p.age = 31 RETURN p.age AS age")
	require.Len(t, res.Rows, 1)
	require.Equal(t, int64(31), res.Rows[0]["age"].Int)

	res = run(t, eng, "MATCH (p:Person) REMOVE p.age RETURN p.age AS age")
	require.Len(t, res.Rows, 1)
	require.Equal(t, cypher.VKNull, res.Rows[0]["age"].Kind)
}

func TestDeleteNode(t *testing.T) {
	eng := openTestEngine(t)
	run(t, eng, "CREATE (:Person {name: 'Alice'})")
	stats := run(t, eng, "MATCH (p:Person) DELETE p").Stats
	require.Equal(t, 1, stats.NodesDeleted)

	res := run(t, eng, "MATCH (p:Person) RETURN p")
	require.Empty(t, res.Rows)
}

func TestMergeOnCreateOnMatch(t *testing.T) {
	eng := openTestEngine(t)

	res := run(t, eng, "MERGE (p:Person {name: 'Alice'}) ON CREATE SET p.visits = 1 ON MATCH SET p.visits = p.visits + 1 RETURN p.visits AS visits")
	require.Len(t, res.Rows, 1)
	require.Equal(t, int64(1), res.Rows[0]["visits"].Int)

	res = run(t, eng, "MERGE (p:Person {name: 'Alice'}) ON CREATE SET p.visits = 1 ON MATCH SET p.visits = p.visits + 1 RETURN p.visits AS visits")
	require.Len(t, res.Rows, 1)
	require.Equal(t, int64(2), res.Rows[0]["visits"].Int)
}

func TestUnwindProducesOneRowPerElement(t *testing.T) {
	eng := openTestEngine(t)
	res := run(t, eng, "UNWIND [1, 2, 3] AS x RETURN x")
	require.Len(t, res.Rows, 3)
	var got []int64
	for _, r := range res.Rows {
		got = append(got, r["x"].Int)
	}
	require.ElementsMatch(t, []int64{1, 2, 3}, got)
}

func TestForeachAppliesWrites(t *testing.T) {
	eng := openTestEngine(t)
	run(t, eng, "FOREACH (x IN [1,2,3] | CREATE (:Counter {v: x}))")

	res := run(t, eng, "MATCH (c:Counter) RETURN c.v AS v")
	require.Len(t, res.Rows, 3)
}

// Duplicate edges with the same key are matched once per occurrence.
func TestEdgeMultiplicityThroughCypher(t *testing.T) {
	eng := openTestEngine(t)
	run(t, eng, "CREATE (:A)-[:R]->(:B)")
	run(t, eng, "MATCH (a:A), (b:B) CREATE (a)-[:R]->(b)")

	res := run(t, eng, "MATCH (a:A)-[:R]->(b:B) RETURN b")
	require.Len(t, res.Rows, 2)
}

func TestNullPropagatesThroughArithmetic(t *testing.T) {
	eng := openTestEngine(t)
	run(t, eng, "CREATE (:Person {name: 'Alice'})")
	res := run(t, eng, "MATCH (p:Person) RETURN p.missing + 1 AS x")
	require.Len(t, res.Rows, 1)
	require.Equal(t, cypher.VKNull, res.Rows[0]["x"].Kind)
}

func TestImpossibleLabelShortCircuits(t *testing.T) {
	eng := openTestEngine(t)
	run(t, eng, "CREATE (:Person {name: 'Alice'})")
	res := run(t, eng, "MATCH (n:NoSuchLabel) RETURN n")
	require.Empty(t, res.Rows)
}

func TestIncomingDirectionPattern(t *testing.T) {
	eng := openTestEngine(t)
	run(t, eng, "CREATE (:A {name: 'a'})-[:R]->(:B {name: 'b'})")

	res := run(t, eng, "MATCH (b:B)<-[:R]-(a:A) RETURN a.name AS name")
	require.Len(t, res.Rows, 1)
	require.Equal(t, "a", res.Rows[0]["name"].Str)
}

func TestUndirectedPatternBindsOtherEndpoint(t *testing.T) {
	eng := openTestEngine(t)
	run(t, eng, "CREATE (:A {name: 'a'})-[:R]->(:B {name: 'b'})")

	res := run(t, eng, "MATCH (a:A)--(x) RETURN x.name AS name")
	require.Len(t, res.Rows, 1)
	require.Equal(t, "b", res.Rows[0]["name"].Str)
}

// Reads inside a write query observe the overlay: a MATCH later in the
// same statement sees nodes and edges created by an earlier clause.
func TestMatchSeesSameQueryCreates(t *testing.T) {
	eng := openTestEngine(t)
	res := run(t, eng, "CREATE (:A {name: 'a'})-[:R]->(:B {name: 'b'}) WITH 1 AS one MATCH (x:A)-[:R]->(y:B) RETURN y.name AS name")
	require.Len(t, res.Rows, 1)
	require.Equal(t, "b", res.Rows[0]["name"].Str)
}

func TestMergeSeesSameQueryCreates(t *testing.T) {
	eng := openTestEngine(t)
	run(t, eng, "CREATE (:P {k: 1}) WITH 1 AS one MERGE (p:P {k: 1})")

	res := run(t, eng, "MATCH (p:P) RETURN p")
	require.Len(t, res.Rows, 1)
}

// A WITH projection passes on only the columns it lists.
func TestWithProjectionNarrowsColumns(t *testing.T) {
	eng := openTestEngine(t)
	run(t, eng, "CREATE (:Person {name: 'Alice', age: 30})")
	res := run(t, eng, "MATCH (p:Person) WITH p.name AS name RETURN name")
	require.Len(t, res.Rows, 1)
	require.Equal(t, "Alice", res.Rows[0]["name"].Str)
	_, hasAge := res.Rows[0]["age"]
	require.False(t, hasAge)
}
