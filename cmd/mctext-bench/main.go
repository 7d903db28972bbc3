package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pior/mctext"
)

type OperationType string

const (
	CacheHit     OperationType = "cache-hit"
	DynamicValue OperationType = "dynamic-value"
	CacheMiss    OperationType = "cache-miss"
	Increment    OperationType = "increment"
	Delete       OperationType = "delete"
	All          OperationType = "all"
)

type BenchmarkResult struct {
	Operation    OperationType
	Duration     time.Duration
	TotalOps     int64
	Successes    int64
	Failures     int64
	AvgLatency   time.Duration
	OpsPerSecond float64
	Correctness  bool
	ErrorMessage string
}

func main() {
	var (
		operation   = flag.String("operation", "all", "Operation type: cache-hit, dynamic-value, cache-miss, increment, delete, or all")
		duration    = flag.Duration("duration", 5*time.Second, "Duration to run benchmarks")
		concurrency = flag.Int("concurrency", 1, "Number of concurrent workers")
		servers     = flag.String("servers", "localhost:11211", "Comma-separated list of memcached servers")
	)
	flag.Parse()

	fmt.Printf("mctext Benchmark Tool\n")
	fmt.Printf("======================\n")
	fmt.Printf("Operation: %s\n", *operation)
	fmt.Printf("Duration: %v\n", *duration)
	fmt.Printf("Concurrency: %d\n", *concurrency)
	fmt.Printf("Servers: %s\n", *servers)
	fmt.Println()

	cfg := mctext.DefaultConfig(strings.Split(*servers, ",")...)
	cfg.MinConn = 2
	cfg.MaxConn = 20
	cfg.MaxIdleMs = int64(5 * time.Minute / time.Millisecond)

	client, err := mctext.New(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}
	defer client.ShutDown()

	fmt.Print("Testing connection...")
	ctx := context.Background()
	var probe string
	if _, err := client.Get(ctx, "test-connection-key", &probe); err != nil {
		fmt.Printf(" failed: %v\n", err)
		fmt.Printf("Make sure memcached is running on %s\n", *servers)
		return
	}
	fmt.Println(" success!")
	fmt.Println()

	if OperationType(*operation) == All {
		runAllOperations(client, *duration, *concurrency)
	} else {
		result := runSingleOperation(client, OperationType(*operation), *duration, *concurrency)
		printResult(result)
	}
}

func runAllOperations(client *mctext.Client, duration time.Duration, concurrency int) {
	operations := []OperationType{CacheHit, DynamicValue, CacheMiss, Increment, Delete}

	for _, op := range operations {
		fmt.Printf("\n--- Running %s benchmark ---\n", op)
		result := runSingleOperation(client, op, duration, concurrency)
		printResult(result)
		time.Sleep(500 * time.Millisecond)
	}
}

func runSingleOperation(client *mctext.Client, operation OperationType, duration time.Duration, concurrency int) *BenchmarkResult {
	switch operation {
	case CacheHit:
		return runCacheHitBenchmark(client, duration, concurrency)
	case DynamicValue:
		return runDynamicValueBenchmark(client, duration, concurrency)
	case CacheMiss:
		return runCacheMissBenchmark(client, duration, concurrency)
	case Increment:
		return runIncrementBenchmark(client, duration, concurrency)
	case Delete:
		return runDeleteBenchmark(client, duration, concurrency)
	default:
		return &BenchmarkResult{Operation: operation, ErrorMessage: fmt.Sprintf("unknown operation: %s", operation)}
	}
}

// CacheHit: seed one key, then hammer it with gets.
func runCacheHitBenchmark(client *mctext.Client, duration time.Duration, concurrency int) *BenchmarkResult {
	ctx := context.Background()
	key := "cache-hit-key"
	value := "cache-hit-value"

	if err := client.Set(ctx, key, value, 3600); err != nil {
		return &BenchmarkResult{Operation: CacheHit, ErrorMessage: fmt.Sprintf("failed to seed value: %v", err)}
	}

	result := &BenchmarkResult{Operation: CacheHit, Correctness: true}
	var totalOps, successes, failures, totalLatency int64
	startTime := time.Now()
	var wg sync.WaitGroup

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Since(startTime) < duration {
				opStart := time.Now()
				var got string
				found, err := client.Get(ctx, key, &got)
				atomic.AddInt64(&totalOps, 1)
				atomic.AddInt64(&totalLatency, int64(time.Since(opStart)))

				if err != nil || !found {
					atomic.AddInt64(&failures, 1)
					continue
				}
				atomic.AddInt64(&successes, 1)
				if got != value {
					result.Correctness = false
					result.ErrorMessage = "value mismatch"
				}
			}
		}()
	}
	wg.Wait()
	return finalize(result, totalOps, successes, failures, totalLatency, startTime)
}

// DynamicValue: set then get a fresh key on every iteration.
func runDynamicValueBenchmark(client *mctext.Client, duration time.Duration, concurrency int) *BenchmarkResult {
	ctx := context.Background()
	result := &BenchmarkResult{Operation: DynamicValue, Correctness: true}
	var totalOps, successes, failures, totalLatency int64
	startTime := time.Now()
	var wg sync.WaitGroup

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			opCount := 0
			for time.Since(startTime) < duration {
				key := fmt.Sprintf("dynamic-key-%d-%d", workerID, opCount)
				value := fmt.Sprintf("dynamic-value-%d-%d", workerID, opCount)

				opStart := time.Now()
				err := client.Set(ctx, key, value, 3600)
				atomic.AddInt64(&totalOps, 1)
				atomic.AddInt64(&totalLatency, int64(time.Since(opStart)))
				if err != nil {
					atomic.AddInt64(&failures, 1)
					opCount++
					continue
				}
				atomic.AddInt64(&successes, 1)

				opStart = time.Now()
				var got string
				found, err := client.Get(ctx, key, &got)
				atomic.AddInt64(&totalOps, 1)
				atomic.AddInt64(&totalLatency, int64(time.Since(opStart)))
				if err != nil || !found {
					atomic.AddInt64(&failures, 1)
				} else {
					atomic.AddInt64(&successes, 1)
					if got != value {
						result.Correctness = false
						result.ErrorMessage = "value mismatch"
					}
				}
				opCount++
			}
		}(i)
	}
	wg.Wait()
	return finalize(result, totalOps, successes, failures, totalLatency, startTime)
}

// CacheMiss: get keys that were never set.
func runCacheMissBenchmark(client *mctext.Client, duration time.Duration, concurrency int) *BenchmarkResult {
	ctx := context.Background()
	result := &BenchmarkResult{Operation: CacheMiss, Correctness: true}
	var totalOps, successes, failures, totalLatency int64
	startTime := time.Now()
	var wg sync.WaitGroup

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			opCount := 0
			for time.Since(startTime) < duration {
				key := fmt.Sprintf("nonexistent-key-%d-%d", workerID, opCount)

				opStart := time.Now()
				var got string
				found, err := client.Get(ctx, key, &got)
				atomic.AddInt64(&totalOps, 1)
				atomic.AddInt64(&totalLatency, int64(time.Since(opStart)))

				switch {
				case err != nil:
					atomic.AddInt64(&failures, 1)
				case !found:
					atomic.AddInt64(&successes, 1)
				default:
					atomic.AddInt64(&failures, 1)
					result.Correctness = false
					result.ErrorMessage = "expected cache miss but got a value"
				}
				opCount++
			}
		}(i)
	}
	wg.Wait()
	return finalize(result, totalOps, successes, failures, totalLatency, startTime)
}

// Increment: repeatedly incr a shared counter, verifying it stays numeric.
func runIncrementBenchmark(client *mctext.Client, duration time.Duration, concurrency int) *BenchmarkResult {
	ctx := context.Background()
	key := "increment-key"

	if err := client.StoreCounter(ctx, key, 0); err != nil {
		return &BenchmarkResult{Operation: Increment, ErrorMessage: fmt.Sprintf("failed to initialize counter: %v", err)}
	}

	result := &BenchmarkResult{Operation: Increment, Correctness: true}
	var totalOps, successes, failures, totalLatency int64
	startTime := time.Now()
	var wg sync.WaitGroup

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Since(startTime) < duration {
				opStart := time.Now()
				n, err := client.Incr(ctx, key, 1)
				atomic.AddInt64(&totalOps, 1)
				atomic.AddInt64(&totalLatency, int64(time.Since(opStart)))

				if err != nil {
					atomic.AddInt64(&failures, 1)
					continue
				}
				atomic.AddInt64(&successes, 1)
				if _, err := strconv.ParseUint(strconv.FormatUint(n, 10), 10, 64); err != nil {
					result.Correctness = false
					result.ErrorMessage = "counter value is not a number"
				}
			}
		}()
	}
	wg.Wait()
	return finalize(result, totalOps, successes, failures, totalLatency, startTime)
}

// Delete: set then delete a fresh key on every iteration.
func runDeleteBenchmark(client *mctext.Client, duration time.Duration, concurrency int) *BenchmarkResult {
	ctx := context.Background()
	result := &BenchmarkResult{Operation: Delete, Correctness: true}
	var totalOps, successes, failures, totalLatency int64
	startTime := time.Now()
	var wg sync.WaitGroup

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			opCount := 0
			for time.Since(startTime) < duration {
				key := fmt.Sprintf("delete-key-%d-%d", workerID, opCount)
				value := fmt.Sprintf("delete-value-%d-%d", workerID, opCount)

				opStart := time.Now()
				err := client.Set(ctx, key, value, 3600)
				atomic.AddInt64(&totalOps, 1)
				atomic.AddInt64(&totalLatency, int64(time.Since(opStart)))
				if err != nil {
					atomic.AddInt64(&failures, 1)
					opCount++
					continue
				}
				atomic.AddInt64(&successes, 1)

				opStart = time.Now()
				err = client.Delete(ctx, key)
				atomic.AddInt64(&totalOps, 1)
				atomic.AddInt64(&totalLatency, int64(time.Since(opStart)))
				if err != nil {
					atomic.AddInt64(&failures, 1)
				} else {
					atomic.AddInt64(&successes, 1)
				}
				opCount++
			}
		}(i)
	}
	wg.Wait()
	return finalize(result, totalOps, successes, failures, totalLatency, startTime)
}

func finalize(result *BenchmarkResult, totalOps, successes, failures, totalLatency int64, startTime time.Time) *BenchmarkResult {
	result.Duration = time.Since(startTime)
	result.TotalOps = totalOps
	result.Successes = successes
	result.Failures = failures
	if totalOps > 0 {
		result.AvgLatency = time.Duration(totalLatency / totalOps)
		result.OpsPerSecond = float64(totalOps) / result.Duration.Seconds()
	}
	return result
}

func printResult(result *BenchmarkResult) {
	fmt.Printf("Operation: %s\n", result.Operation)
	fmt.Printf("Duration: %v\n", result.Duration)
	fmt.Printf("Total Operations: %d\n", result.TotalOps)
	fmt.Printf("Successes: %d\n", result.Successes)
	fmt.Printf("Failures: %d\n", result.Failures)
	if result.TotalOps > 0 {
		fmt.Printf("Success Rate: %.2f%%\n", float64(result.Successes)/float64(result.TotalOps)*100)
		fmt.Printf("Ops/sec: %.2f\n", result.OpsPerSecond)
		fmt.Printf("Avg Latency: %v\n", result.AvgLatency)
	}
	fmt.Printf("Correctness: %t\n", result.Correctness)
	if result.ErrorMessage != "" {
		fmt.Printf("Error: %s\n", result.ErrorMessage)
	}
	fmt.Println()
}
