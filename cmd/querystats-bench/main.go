//                           _       _
// __      _____  __ ___   ___  __ _| |_ ___
// \ \ /\ / / _ \/ _` \ \ / / |/ _` | __/ _ \
//  \ V  V /  __/ (_| |\ V /| | (_| | ||  __/
//   \_/\_/ \___|\__,_| \_/ |_|\__,_|\__\___|
//
//  Copyright © 2016 - 2025 Weaviate B.V. All rights reserved.
//
//  CONTACT: hello@weaviate.io
//

// querystats-bench drives a synthetic statement workload through the
// tracker and reports ingest throughput. It doubles as a smoke test for
// the whole pipeline: fingerprinting, normalization, eviction, text GC and
// the dump/restore cycle all run under realistic concurrency.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	flags "github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/weaviate/querystats/config"
	"github.com/weaviate/querystats/entities/statements"
	"github.com/weaviate/querystats/monitoring"
	"github.com/weaviate/querystats/store"
	"github.com/weaviate/querystats/usecases/tracker"
)

type options struct {
	Config   string        `long:"config" description:"config file (yaml)"`
	Workers  int           `long:"workers" default:"8" description:"concurrent ingest workers"`
	Duration time.Duration `long:"duration" default:"30s" description:"how long to run"`
	Distinct int           `long:"distinct" default:"10000" description:"distinct statements in the workload"`
	Top      int           `long:"top" default:"10" description:"rows to print at the end"`
	Metrics  string        `long:"metrics-addr" default:":2112" description:"prometheus listen address"`
	Verbose  bool          `short:"v" long:"verbose" description:"debug logging"`
}

var templates = []string{
	"SELECT id, name FROM users WHERE id = %d",
	"SELECT count(*) FROM orders WHERE customer_id = %d AND total > %d",
	"INSERT INTO events (kind, payload) VALUES ('%d', '%d')",
	"UPDATE inventory SET stock = stock - %d WHERE sku = %d",
	"DELETE FROM sessions WHERE expires_at < %d",
}

func main() {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		os.Exit(1)
	}

	logger := logrus.New()
	if opts.Verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	cfg, err := config.Load(opts.Config)
	if err != nil {
		logger.WithError(err).Fatal("load config")
	}

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)

	tr, err := tracker.New(cfg, logger, metrics)
	if err != nil {
		logger.WithError(err).Fatal("start tracker")
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		logger.WithField("addr", opts.Metrics).Info("serving metrics")
		if err := http.ListenAndServe(opts.Metrics, mux); err != nil {
			logger.WithError(err).Warn("metrics listener stopped")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), opts.Duration)
	defer cancel()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		logger.Info("interrupted, shutting down")
		cancel()
	}()

	var recorded atomic.Int64
	start := time.Now()

	var wg sync.WaitGroup
	for w := 0; w < opts.Workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(w)))
			sess := tr.Session(uint64(w%4+1), 1)
			for ctx.Err() == nil {
				tmpl := templates[rng.Intn(len(templates))]
				query := fmt.Sprintf(tmpl, rng.Intn(opts.Distinct), rng.Intn(100))
				tr.RecordExecution(sess, tracker.Statement{
					Query:        query,
					Length:       -1,
					Unclassified: true,
				}, statements.Sample{
					TotalTime: rng.Float64() * 10,
					Rows:      int64(rng.Intn(100)),
				})
				recorded.Add(1)
			}
		}(w)
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	var last int64
	for done := false; !done; {
		select {
		case <-ctx.Done():
			done = true
		case <-ticker.C:
			n := recorded.Load()
			logger.WithField("statements", n).
				WithField("rate", fmt.Sprintf("%.0f/s", float64(n-last)/5)).
				Info("ingesting")
			last = n
		}
	}
	wg.Wait()

	elapsed := time.Since(start)
	total := recorded.Load()
	logger.WithField("statements", total).
		WithField("elapsed", elapsed.Round(time.Millisecond)).
		WithField("rate", fmt.Sprintf("%.0f/s", float64(total)/elapsed.Seconds())).
		Info("workload finished")

	printTop(tr, opts.Top)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := tr.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Fatal("shutdown")
	}
}

func printTop(tr *tracker.Tracker, n int) {
	rows, err := tr.Snapshot(store.SnapshotOptions{ShowText: true, Privileged: true})
	if err != nil {
		return
	}
	exec := statements.StatKindExec
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Stats.TotalTime[exec] > rows[j].Stats.TotalTime[exec]
	})
	if len(rows) > n {
		rows = rows[:n]
	}

	fmt.Printf("\n%-8s %-12s %-10s %-10s %s\n", "CALLS", "TOTAL(ms)", "MEAN(ms)", "STDDEV", "QUERY")
	for _, row := range rows {
		query := "<none>"
		if row.Query != nil {
			query = *row.Query
		}
		if len(query) > 60 {
			query = query[:57] + "..."
		}
		fmt.Printf("%-8d %-12.2f %-10.3f %-10.3f %s\n",
			row.Stats.Calls[exec],
			row.Stats.TotalTime[exec],
			row.Stats.MeanTime[exec],
			row.Stats.Stddev(exec),
			query)
	}

	info, err := tr.Info()
	if err != nil {
		return
	}
	count, _ := tr.Count()
	fmt.Printf("\nentries=%d dealloc_count=%d stats_reset=%s\n",
		count, info.DeallocCount, info.StatsReset.Format(time.RFC3339))
}
