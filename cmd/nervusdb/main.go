// Package main provides the NervusDB CLI entry point.
package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nervus-db/nervusdb/pkg/config"
	"github.com/nervus-db/nervusdb/pkg/cypher"
	"github.com/nervus-db/nervusdb/pkg/nervuscache"
	"github.com/nervus-db/nervusdb/pkg/storage"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "nervusdb",
		Short: "NervusDB - an embedded property-graph database with a Cypher-subset query language",
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("nervusdb v%s\n", version)
		},
	})

	openCmd := &cobra.Command{
		Use:   "open <dir>",
		Short: "Open a database directory and report its live node count and txid horizon",
		Args:  cobra.ExactArgs(1),
		RunE:  runOpen,
	}
	rootCmd.AddCommand(openCmd)

	queryCmd := &cobra.Command{
		Use:   "query <dir> <cypher>",
		Short: "Run one Cypher statement against a directory and print the resulting rows",
		Args:  cobra.ExactArgs(2),
		RunE:  runQuery,
	}
	rootCmd.AddCommand(queryCmd)

	compactCmd := &cobra.Command{
		Use:   "compact <dir>",
		Short: "Fold every L0 run into a new base graph and truncate the WAL",
		Args:  cobra.ExactArgs(1),
		RunE:  runCompact,
	}
	rootCmd.AddCommand(compactCmd)

	benchCmd := &cobra.Command{
		Use:   "bench <dir>",
		Short: "Smoke-load N nodes and M edges and report throughput",
		Args:  cobra.ExactArgs(1),
		RunE:  runBench,
	}
	benchCmd.Flags().Int("nodes", 10000, "number of nodes to create")
	benchCmd.Flags().Int("edges", 20000, "number of edges to create")
	rootCmd.AddCommand(benchCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func openEngine(dir string) (*storage.Engine, error) {
	cfgPath := dir + "/nervusdb.yaml"
	cfg, err := config.Load(cfgPath)
	if err != nil {
		cfg = config.DefaultConfig()
	}
	eng, err := storage.Open(dir, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.CacheSize > 0 {
		if c, cerr := nervuscache.New(cfg.CacheSize); cerr == nil {
			eng.SetCache(c)
		}
	}
	return eng, nil
}

func runOpen(cmd *cobra.Command, args []string) error {
	dir := args[0]
	eng, err := openEngine(dir)
	if err != nil {
		return fmt.Errorf("opening %s: %w", dir, err)
	}
	defer eng.Close()

	snap := eng.BeginRead()
	nodeCount := 0
	for range snap.Nodes() {
		nodeCount++
	}
	base, top := snap.TxHorizon()
	fmt.Printf("opened %s\n", dir)
	fmt.Printf("  live nodes:   %d\n", nodeCount)
	fmt.Printf("  base txid:    %d\n", base)
	fmt.Printf("  horizon txid: %d\n", top)
	return nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	dir, src := args[0], args[1]
	eng, err := openEngine(dir)
	if err != nil {
		return fmt.Errorf("opening %s: %w", dir, err)
	}
	defer eng.Close()

	pq, err := cypher.Prepare(src)
	if err != nil {
		return fmt.Errorf("preparing query: %w", err)
	}
	result, err := pq.Run(eng, nil, nil)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}
	if result.Explain != "" {
		fmt.Print(result.Explain)
		return nil
	}
	printRows(result)
	if result.Stats != nil {
		printStats(result.Stats)
	}
	return nil
}

func printRows(result *cypher.QueryResult) {
	cols := result.Columns
	if len(cols) == 0 {
		cols = inferColumns(result.Rows)
	}
	if len(cols) == 0 {
		fmt.Printf("%d row(s)\n", len(result.Rows))
		return
	}
	fmt.Println(strings.Join(cols, " | "))
	for _, row := range result.Rows {
		cells := make([]string, len(cols))
		for i, c := range cols {
			cells[i] = fmt.Sprint(row[c])
		}
		fmt.Println(strings.Join(cells, " | "))
	}
	fmt.Printf("(%d row(s))\n", len(result.Rows))
}

func inferColumns(rows []cypher.Row) []string {
	if len(rows) == 0 {
		return nil
	}
	cols := make([]string, 0, len(rows[0]))
	for k := range rows[0] {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

func printStats(s *cypher.QueryStats) {
	fmt.Printf("nodes created: %d, nodes deleted: %d, relationships created: %d, relationships deleted: %d\n",
		s.NodesCreated, s.NodesDeleted, s.RelationshipsCreated, s.RelationshipsDeleted)
	fmt.Printf("properties set: %d, labels added: %d, labels removed: %d\n",
		s.PropertiesSet, s.LabelsAdded, s.LabelsRemoved)
}

func runCompact(cmd *cobra.Command, args []string) error {
	dir := args[0]
	eng, err := openEngine(dir)
	if err != nil {
		return fmt.Errorf("opening %s: %w", dir, err)
	}
	defer eng.Close()

	start := time.Now()
	if err := eng.Compact(); err != nil {
		return fmt.Errorf("compacting: %w", err)
	}
	fmt.Printf("compacted %s in %s\n", dir, time.Since(start))
	return nil
}

func runBench(cmd *cobra.Command, args []string) error {
	dir := args[0]
	nodes, _ := cmd.Flags().GetInt("nodes")
	edges, _ := cmd.Flags().GetInt("edges")

	eng, err := openEngine(dir)
	if err != nil {
		return fmt.Errorf("opening %s: %w", dir, err)
	}
	defer eng.Close()

	start := time.Now()
	ids, bytesWritten, err := benchCreateNodes(eng, nodes)
	if err != nil {
		return fmt.Errorf("creating nodes: %w", err)
	}
	edgeBytes, err := benchCreateEdges(eng, ids, edges)
	if err != nil {
		return fmt.Errorf("creating edges: %w", err)
	}
	elapsed := time.Since(start)
	total := bytesWritten + edgeBytes

	fmt.Printf("created %d nodes and %d edges in %s\n", nodes, edges, elapsed)
	fmt.Printf("throughput: %s/s (%s total)\n",
		humanize.Bytes(uint64(float64(total)/elapsed.Seconds())), humanize.Bytes(uint64(total)))
	return nil
}

func benchCreateNodes(eng *storage.Engine, n int) ([]storage.NodeID, uint64, error) {
	tx, err := eng.BeginWrite()
	if err != nil {
		return nil, 0, err
	}
	labelID, err := tx.GetOrCreateLabel("BenchNode")
	if err != nil {
		tx.Rollback()
		return nil, 0, err
	}
	ids := make([]storage.NodeID, 0, n)
	var written uint64
	for i := 0; i < n; i++ {
		id, err := tx.CreateNode(0, false, labelID)
		if err != nil {
			tx.Rollback()
			return nil, 0, err
		}
		ids = append(ids, id)
		written += uint64(len(strconv.Itoa(i)))
	}
	if err := tx.Commit(); err != nil {
		return nil, 0, err
	}
	return ids, written, nil
}

func benchCreateEdges(eng *storage.Engine, ids []storage.NodeID, n int) (uint64, error) {
	if len(ids) == 0 || n == 0 {
		return 0, nil
	}
	tx, err := eng.BeginWrite()
	if err != nil {
		return 0, err
	}
	relID, err := tx.GetOrCreateLabel("BENCH_LINK")
	if err != nil {
		tx.Rollback()
		return 0, err
	}
	var written uint64
	for i := 0; i < n; i++ {
		src := ids[i%len(ids)]
		dst := ids[(i+1)%len(ids)]
		if err := tx.CreateEdge(src, relID, dst); err != nil {
			tx.Rollback()
			return 0, err
		}
		written += 16
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return written, nil
}
