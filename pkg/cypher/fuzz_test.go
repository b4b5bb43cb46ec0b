package cypher_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nervus-db/nervusdb/pkg/config"
	"github.com/nervus-db/nervusdb/pkg/cypher"
	"github.com/nervus-db/nervusdb/pkg/storage"
)

var fuzzSeeds = []string{
	"",
	"MATCH (n) RETURN n",
	"MATCH (a)-[:R]->(b) WHERE a.x > 1 RETURN a, b",
	"MATCH (a)<-[r:R]-(b) RETURN r",
	"CREATE (:X {p: 'v'})-[:R {w: 1}]->(:Y)",
	"MERGE (n:N {k: 1}) ON CREATE SET n.c = 0 ON MATCH SET n.c = n.c + 1",
	"UNWIND [1,2,3] AS x RETURN x * 2 AS y ORDER BY y DESC SKIP 1 LIMIT 1",
	"FOREACH (i IN range(1, 3) | CREATE (:C {v: i}))",
	"WITH 1 AS one RETURN one + null",
	"EXPLAIN MATCH (n) RETURN n",
	"EXPLAINED MATCH (n) RETURN n",
	"MATCH p = (a)-[:R*1..3]->(b) RETURN p",
	"RETURN CASE WHEN true THEN 1 ELSE 2 END",
	"MATCH (n) WHERE EXISTS { (n)-[:R]->() } RETURN n",
	"RETURN [x IN [1,2,3] WHERE x > 1 | x * 10]",
	"MATCH (n RETURN",
	"MATCH (a)-[->(b)",
	"RETURN 'unterminated",
	"RETURN }{][)(",
	"!!!",
	"MATCH (n) RETURN n ~~~",
	"\x00\xff\xfe",
	"RETURN 99999999999999999999999999",
}

// Prepare never panics: for any input it returns a query or an error.
func FuzzPrepare(f *testing.F) {
	for _, s := range fuzzSeeds {
		f.Add(s)
	}
	f.Fuzz(func(t *testing.T, src string) {
		pq, err := cypher.Prepare(src)
		if err == nil && pq == nil {
			t.Fatal("Prepare returned nil, nil")
		}
	})
}

// Preparing and executing any input against an empty database never
// panics; execution is bounded by cancelling after 64 rows.
func FuzzPrepareAndRunEmpty(f *testing.F) {
	for _, s := range fuzzSeeds {
		f.Add(s)
	}
	f.Fuzz(func(t *testing.T, src string) {
		pq, err := cypher.Prepare(src)
		if err != nil {
			return
		}
		eng, err := storage.Open(t.TempDir(), config.DefaultConfig())
		if err != nil {
			t.Fatalf("opening engine: %v", err)
		}
		defer eng.Close()

		produced := 0
		cancel := func() bool {
			produced++
			return produced > 64
		}
		_, _ = pq.Run(eng, nil, cancel)
	})
}

// The seed corpus itself must never panic and must classify cleanly into
// parsed queries or errors.
func TestPrepareCorpusNeverPanics(t *testing.T) {
	for _, src := range fuzzSeeds {
		pq, err := cypher.Prepare(src)
		if err != nil {
			continue
		}
		require.NotNil(t, pq, "src=%q", src)
	}
}

func TestTrailingGarbageIsParseError(t *testing.T) {
	_, err := cypher.Prepare("MATCH (n) RETURN n ~~~")
	require.Error(t, err)
	var pe *cypher.ParseError
	require.ErrorAs(t, err, &pe)
}
