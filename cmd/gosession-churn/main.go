// Command gosession-churn drives concurrent session lifecycle churn and
// prints latency percentiles plus an aggregated metrics snapshot.
//
// Each worker owns an independent session backed by either an in-memory
// store or a Redis store under a worker-specific key. A cycle is one
// authenticate, one restore from the persisted snapshot, and one
// invalidate.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goSession "github.com/kvistad/goSession"
	"github.com/kvistad/goSession/store/memstore"
	"github.com/kvistad/goSession/store/redisstore"
	"github.com/redis/go-redis/v9"
)

// stubAuthenticator resolves every attempt with a fresh opaque token. It
// keeps the harness focused on session machinery cost, not backend cost.
type stubAuthenticator struct {
	goSession.AuthenticatorEvents
}

func (a *stubAuthenticator) Authenticate(context.Context, goSession.Content) (goSession.Content, error) {
	return goSession.Content{"token": uuid.NewString()}, nil
}

func (a *stubAuthenticator) Restore(_ context.Context, data goSession.Content) (goSession.Content, error) {
	return data.Clone(), nil
}

func (a *stubAuthenticator) Invalidate(context.Context, goSession.Content) error {
	return nil
}

func main() {
	var (
		workers   = flag.Int("workers", 64, "number of concurrent workers")
		cycles    = flag.Int("cycles", 1000, "lifecycle cycles per worker")
		backend   = flag.String("store", "memory", "store backend: memory or redis")
		redisAddr = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix    = flag.String("prefix", "churn", "redis key prefix")
	)
	flag.Parse()

	if *workers <= 0 || *cycles <= 0 {
		fmt.Fprintln(os.Stderr, "workers and cycles must be > 0")
		os.Exit(2)
	}

	var (
		client  redis.UniversalClient
		cleanup func()
	)
	if *backend == "redis" {
		addr := *redisAddr
		if addr == "" {
			addr = os.Getenv("REDIS_ADDR")
		}
		if addr == "" {
			mr, err := miniredis.Run()
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
				os.Exit(1)
			}
			addr = mr.Addr()
			client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
			cleanup = func() {
				_ = client.Close()
				mr.Close()
			}
			fmt.Printf("using miniredis at %s\n", addr)
		} else {
			client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
			cleanup = func() { _ = client.Close() }
			fmt.Printf("using redis at %s\n", addr)
		}
		defer cleanup()
	} else if *backend != "memory" {
		fmt.Fprintf(os.Stderr, "unknown store backend %q\n", *backend)
		os.Exit(2)
	}

	registry := goSession.NewRegistry()
	if err := registry.Register("stub", &stubAuthenticator{}); err != nil {
		fmt.Fprintf(os.Stderr, "register failed: %v\n", err)
		os.Exit(1)
	}
	registry.Freeze()

	fmt.Printf("running %d workers x %d cycles against %s store\n", *workers, *cycles, *backend)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		latencies = make([]time.Duration, 0, *workers**cycles)
		failures  int64
		snapshots = make([]goSession.MetricsSnapshot, *workers)
	)

	start := time.Now()
	for w := 0; w < *workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			ctx := context.Background()

			store, closeStore, err := buildStore(*backend, client, *prefix, worker)
			if err != nil {
				fmt.Fprintf(os.Stderr, "worker %d store: %v\n", worker, err)
				return
			}
			defer closeStore()

			session, err := goSession.New().
				WithStore(store).
				WithRegistry(registry).
				WithMetricsEnabled(true).
				WithLatencyHistograms(true).
				Build()
			if err != nil {
				fmt.Fprintf(os.Stderr, "worker %d build: %v\n", worker, err)
				return
			}
			defer session.Close()

			workerLatencies := make([]time.Duration, 0, *cycles)
			var workerFailures int64

			for c := 0; c < *cycles; c++ {
				t0 := time.Now()
				err := session.Authenticate(ctx, "stub", nil)
				workerLatencies = append(workerLatencies, time.Since(t0))
				if err != nil {
					workerFailures++
					continue
				}
				if err := session.Restore(ctx); err != nil {
					workerFailures++
				}
				if err := session.Invalidate(ctx); err != nil {
					workerFailures++
				}
			}

			mu.Lock()
			latencies = append(latencies, workerLatencies...)
			failures += workerFailures
			snapshots[worker] = session.MetricsSnapshot()
			mu.Unlock()
		}(w)
	}
	wg.Wait()
	total := time.Since(start)

	printLatencies(total, latencies, failures)
	printCounters(mergeSnapshots(snapshots))
}

func buildStore(backend string, client redis.UniversalClient, prefix string, worker int) (goSession.Store, func(), error) {
	if backend == "redis" {
		store, err := redisstore.New(client, redisstore.Config{
			Key: fmt.Sprintf("%s:%d", prefix, worker),
		})
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	}
	return memstore.New(), func() {}, nil
}

func printLatencies(total time.Duration, samples []time.Duration, failures int64) {
	if len(samples) == 0 {
		fmt.Println("no samples collected")
		return
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	fmt.Println("---- authenticate latency ----")
	fmt.Printf("ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		len(samples),
		failures,
		total.Round(time.Millisecond),
		float64(len(samples))/total.Seconds(),
		percentile(samples, 50).Round(time.Microsecond),
		percentile(samples, 95).Round(time.Microsecond),
		percentile(samples, 99).Round(time.Microsecond),
	)
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func mergeSnapshots(snapshots []goSession.MetricsSnapshot) map[goSession.MetricID]uint64 {
	merged := make(map[goSession.MetricID]uint64)
	for _, snap := range snapshots {
		for id, v := range snap.Counters {
			merged[id] += v
		}
	}
	return merged
}

func printCounters(merged map[goSession.MetricID]uint64) {
	rows := []struct {
		name string
		id   goSession.MetricID
	}{
		{"authenticate_success", goSession.MetricAuthenticateSuccess},
		{"authenticate_failure", goSession.MetricAuthenticateFailure},
		{"restore_success", goSession.MetricRestoreSuccess},
		{"restore_failure", goSession.MetricRestoreFailure},
		{"invalidate_success", goSession.MetricInvalidateSuccess},
		{"invalidate_failure", goSession.MetricInvalidateFailure},
		{"store_update_applied", goSession.MetricStoreUpdateApplied},
		{"store_update_rejected", goSession.MetricStoreUpdateRejected},
	}

	fmt.Println("---- aggregated counters ----")
	for _, row := range rows {
		fmt.Printf("%-22s %d\n", row.name, merged[row.id])
	}
}
