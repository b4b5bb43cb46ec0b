// Package nervusdb is an embedded property-graph database with a
// Cypher-subset query language.
//
// A process opens a directory with pkg/storage.Open to obtain an Engine,
// which hands out wait-free read Snapshots and serialized write
// transactions backed by a write-ahead log. pkg/cypher compiles and runs
// Cypher queries against that Engine: MATCH/OPTIONAL MATCH/WHERE/WITH/
// RETURN/ORDER BY/SKIP/LIMIT/UNWIND for reads, and CREATE/MERGE/SET/
// REMOVE/DELETE/FOREACH for writes, all inside one all-or-nothing
// transaction per query.
//
// Design Principles:
//   - Snapshot isolation: every read sees a consistent point-in-time view
//     with no locking, via an atomically-swapped base-graph-plus-L0-runs
//     structure (pkg/storage).
//   - One writer at a time, serialized through a single WAL; a write
//     query's CREATE/MERGE/SET/DELETE clauses are evaluated entirely
//     against an in-memory overlay and only replayed onto the
//     transaction once the whole plan has drained without error.
//   - Streaming, pull-based query execution: every physical operator is a
//     single-use Next() iterator pulled one row at a time. ORDER BY buffers
//     its whole input, and OPTIONAL MATCH and MERGE buffer the matches for
//     one input row before emitting them.
//   - Lazy materialization: query results carry bare node/edge identifiers
//     until a clause actually needs their labels or properties.
//
// Example Usage:
//
//	eng, err := storage.Open("/var/lib/nervusdb", config.DefaultConfig())
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer eng.Close()
//
//	pq, err := cypher.Prepare(`
//		MATCH (a:Person {name: $name})-[:FOLLOWS]->(b:Person)
//		RETURN b.name
//	`)
//	if err != nil {
//		log.Fatal(err)
//	}
//	result, err := pq.Run(eng, map[string]any{"name": "Alice"}, nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	for _, row := range result.Rows {
//		fmt.Println(row["b.name"])
//	}
package nervusdb
