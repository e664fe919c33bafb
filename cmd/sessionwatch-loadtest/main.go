// Command sessionwatch-loadtest measures monitor store throughput: it signs in
// many namespaces, then runs concurrent session reads and activity touches.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/sessionwatch"
	"github.com/MrEthical07/sessionwatch/record"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func main() {
	var (
		sessions    = flag.Int("sessions", 10000, "number of namespaces to sign in")
		concurrency = flag.Int("concurrency", 128, "number of concurrent workers")
		ops         = flag.Int("ops", 100000, "operations per phase (read + touch)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, SW_REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "swload", "session key prefix")
	)
	flag.Parse()

	if *sessions <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "sessions, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("SW_REDIS_ADDR")
	}

	var cleanup func()
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		cleanup = mr.Close
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		cleanup = func() {}
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	defer func() { _ = client.Close() }()

	cfg := sessionwatch.DefaultConfig()
	cfg.Session.RedisPrefix = *prefix
	cfg.Session.Window = time.Hour
	monitor, err := sessionwatch.New().WithConfig(cfg).WithRedis(client).Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build monitor: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = monitor.Close() }()

	namespaces := make([]string, *sessions)
	fmt.Printf("signing in %d namespaces...\n", *sessions)
	startSeed := time.Now()
	for i := range namespaces {
		namespaces[i] = fmt.Sprintf("ns-%d", i)
		if _, err := monitor.SignIn(ctx, namespaces[i], principalFor(i)); err != nil {
			fmt.Fprintf(os.Stderr, "sign in failed: %v\n", err)
			os.Exit(1)
		}
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	readStats := runPhase(namespaces, *ops, *concurrency, 7919, func(ns string) error {
		if _, ok := monitor.Session(ctx, ns); !ok {
			return fmt.Errorf("session %s missing", ns)
		}
		return nil
	})
	touchStats := runPhase(namespaces, *ops, *concurrency, 6151, func(ns string) error {
		_, _, err := monitor.Touch(ctx, ns)
		return err
	})

	fmt.Println("---- results ----")
	printStats("read", readStats)
	printStats("touch", touchStats)

	snap := monitor.MetricsSnapshot()
	fmt.Printf("renewals=%d malformed=%d\n",
		snap.Counters[sessionwatch.MetricRenewal],
		snap.Counters[sessionwatch.MetricMalformedRecord],
	)
}

func runPhase(namespaces []string, ops, concurrency int, seed int64, op func(ns string) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*seed))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				ns := namespaces[r.Intn(len(namespaces))]
				t0 := time.Now()
				err := op(ns)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}

func principalFor(i int) record.Principal {
	return record.Principal{
		AccessToken:    fmt.Sprintf("at-%d", i),
		TokenType:      "bearer",
		User:           record.User{ID: fmt.Sprintf("u-%d", i), Username: fmt.Sprintf("ops%d@example.com", i)},
		PermissionList: []string{"MERCHANT_ADMIN"},
	}
}
