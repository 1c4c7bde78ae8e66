// Command cqlbench is a concurrent insert/select load-test harness for the
// driver: fixed worker count racing over a shared batch counter, latency
// sampled on a fraction of requests, with optional CPU/memory profiling.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/profile"

	cqldriver "github.com/scylladb/cql-native-driver"
	"github.com/scylladb/cql-native-driver/frame"
	"github.com/scylladb/cql-native-driver/transport"
)

type workload int

const (
	inserts workload = iota
	selects
	mixed
)

const (
	insertStmt = "INSERT INTO benchks.benchtab (pk, v1, v2) VALUES(?, ?, ?)"
	selectStmt = "SELECT v1, v2 FROM benchks.benchtab WHERE pk = ?"
	samples    = 20_000
)

type config struct {
	hosts       []string
	concurrency int64
	tasks       int64
	batchSize   int64
	workload    workload
	dontPrepare bool
	profileCPU  bool
	profileMem  bool
}

func readConfig() config {
	hosts := flag.String("hosts", "127.0.0.1:9042", "comma-separated list of contact points")
	concurrency := flag.Int64("concurrency", 256, "number of concurrent workers")
	tasks := flag.Int64("tasks", 1_000_000, "total number of partition keys to process")
	batchSize := flag.Int64("batch-size", 128, "partition keys claimed per worker iteration")
	wl := flag.String("workload", "mixed", "inserts, selects, or mixed")
	dontPrepare := flag.Bool("dont-prepare", false, "skip keyspace/table setup (assume already present)")
	profileCPU := flag.Bool("profile-cpu", false, "write a CPU profile")
	profileMem := flag.Bool("profile-mem", false, "write a memory profile")
	flag.Parse()

	var w workload
	switch *wl {
	case "inserts":
		w = inserts
	case "selects":
		w = selects
	default:
		w = mixed
	}

	return config{
		hosts:       strings.Split(*hosts, ","),
		concurrency: *concurrency,
		tasks:       *tasks,
		batchSize:   *batchSize,
		workload:    w,
		dontPrepare: *dontPrepare,
		profileCPU:  *profileCPU,
		profileMem:  *profileMem,
	}
}

func main() {
	cfg := readConfig()
	log.Printf("benchmark configuration: %#v", cfg)

	if cfg.profileCPU && cfg.profileMem {
		log.Fatal("select one profile type")
	}
	if cfg.profileCPU {
		defer profile.Start(profile.CPUProfile).Stop()
	}
	if cfg.profileMem {
		defer profile.Start(profile.MemProfile).Stop()
	}

	ctx := context.Background()
	sessCfg := cqldriver.DefaultSessionConfig("benchks", cfg.hosts...)
	sessCfg.RetryPolicy = transport.FallthroughRetryPolicy{}

	session, err := cqldriver.NewSession(sessCfg)
	if err != nil {
		log.Fatalf("opening session: %v", err)
	}
	defer session.Close()

	if !cfg.dontPrepare {
		prepareKeyspaceAndTable(ctx, session)
	}

	insertQ, err := session.Prepare(ctx, insertStmt)
	if err != nil {
		log.Fatalf("preparing insert: %v", err)
	}
	selectQ, err := session.Prepare(ctx, selectStmt)
	if err != nil {
		log.Fatalf("preparing select: %v", err)
	}

	if cfg.workload == selects && !cfg.dontPrepare {
		prepareSelectsBenchmark(ctx, session, insertQ, cfg)
	}

	insertCh := make(chan time.Duration, 2*samples)
	selectCh := make(chan time.Duration, 2*samples)

	var wg sync.WaitGroup
	var nextBatchStart int64
	start := time.Now()

	for i := int64(0); i < cfg.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runWorker(ctx, session, insertQ, selectQ, cfg, &nextBatchStart, insertCh, selectCh)
		}()
	}
	wg.Wait()

	elapsed := time.Since(start)
	fmt.Printf("time %d\n", elapsed.Milliseconds())
	printLatencies("select", selectCh)
	printLatencies("insert", insertCh)
	log.Printf("finished: %d ms elapsed", elapsed.Milliseconds())
}

func runWorker(ctx context.Context, session *cqldriver.Session, insertQ, selectQ transport.Statement, cfg config, nextBatchStart *int64, insertCh, selectCh chan<- time.Duration) {
	for {
		batchStart := atomic.AddInt64(nextBatchStart, cfg.batchSize) - cfg.batchSize
		if batchStart >= cfg.tasks {
			return
		}
		batchEnd := batchStart + cfg.batchSize
		if batchEnd > cfg.tasks {
			batchEnd = cfg.tasks
		}

		for pk := batchStart; pk < batchEnd; pk++ {
			sample := rand.Int63n(cfg.tasks) < samples

			if cfg.workload == inserts || cfg.workload == mixed {
				stmt := insertQ.Clone()
				bindInt64(&stmt, 0, pk)
				bindInt64(&stmt, 1, 2*pk)
				bindInt64(&stmt, 2, 3*pk)

				t0 := time.Now()
				if _, err := session.Execute(ctx, stmt, nil); err != nil {
					log.Fatalf("insert pk=%d: %v", pk, err)
				}
				if sample {
					insertCh <- time.Since(t0)
				}
			}

			if cfg.workload == selects || cfg.workload == mixed {
				stmt := selectQ.Clone()
				bindInt64(&stmt, 0, pk)

				t0 := time.Now()
				res, err := session.Execute(ctx, stmt, nil)
				if err != nil {
					log.Fatalf("select pk=%d: %v", pk, err)
				}
				if len(res.Rows) != 1 {
					log.Fatalf("select pk=%d: expected 1 row, got %d", pk, len(res.Rows))
				}
				if sample {
					selectCh <- time.Since(t0)
				}
			}
		}
	}
}

func prepareSelectsBenchmark(ctx context.Context, session *cqldriver.Session, insertQ transport.Statement, cfg config) {
	log.Println("preparing selects benchmark (inserting rows)...")

	workers := cfg.concurrency
	if workers < 1024 {
		workers = 1024
	}

	var wg sync.WaitGroup
	var nextBatchStart int64
	for i := int64(0); i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				batchStart := atomic.AddInt64(&nextBatchStart, cfg.batchSize) - cfg.batchSize
				if batchStart >= cfg.tasks {
					return
				}
				batchEnd := batchStart + cfg.batchSize
				if batchEnd > cfg.tasks {
					batchEnd = cfg.tasks
				}
				for pk := batchStart; pk < batchEnd; pk++ {
					stmt := insertQ.Clone()
					bindInt64(&stmt, 0, pk)
					bindInt64(&stmt, 1, 2*pk)
					bindInt64(&stmt, 2, 3*pk)
					if _, err := session.Execute(ctx, stmt, nil); err != nil {
						log.Fatalf("insert pk=%d: %v", pk, err)
					}
				}
			}
		}()
	}
	wg.Wait()
}

func prepareKeyspaceAndTable(ctx context.Context, session *cqldriver.Session) {
	run := func(cql string) {
		if _, err := session.Execute(ctx, transport.Statement{Content: cql, Consistency: frame.ONE}, nil); err != nil {
			log.Fatalf("%s: %v", cql, err)
		}
		if err := session.AwaitSchemaAgreement(ctx); err != nil {
			log.Fatalf("awaiting schema agreement after %q: %v", cql, err)
		}
	}

	run("DROP KEYSPACE IF EXISTS benchks")
	run("CREATE KEYSPACE IF NOT EXISTS benchks WITH REPLICATION = {'class': 'SimpleStrategy', 'replication_factor': 1}")
	run("CREATE TABLE IF NOT EXISTS benchks.benchtab (pk bigint PRIMARY KEY, v1 bigint, v2 bigint)")
}

func bindInt64(stmt *transport.Statement, pos int, v int64) {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> uint(56-8*i))
	}
	stmt.Values[pos].N = 8
	stmt.Values[pos].Bytes = b
}

func printLatencies(name string, ch chan time.Duration) {
	n := len(ch)
	for i := 0; i < n; i++ {
		fmt.Printf("%s %d\n", name, (<-ch).Nanoseconds())
	}
}
