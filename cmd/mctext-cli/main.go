package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pior/mctext"
)

func main() {
	servers := flag.String("servers", "127.0.0.1:11211", "comma-separated list of host:port servers")
	flag.Parse()

	fmt.Println("mctext CLI")
	fmt.Println("==========")
	fmt.Println("Commands: get <key>, set <key> <value> [ttl], delete <key>, mget <key1> <key2> ..., stats, quit")
	fmt.Println()

	cfg := mctext.DefaultConfig(strings.Split(*servers, ",")...)
	client, err := mctext.New(context.Background(), cfg)
	if err != nil {
		fmt.Printf("Failed to create client: %v\n", err)
		os.Exit(1)
	}
	defer client.ShutDown()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		command := strings.ToLower(parts[0])
		ctx := context.Background()

		switch command {
		case "get":
			if len(parts) != 2 {
				fmt.Println("Usage: get <key>")
				continue
			}
			handleGet(ctx, client, parts[1])

		case "set":
			if len(parts) < 3 || len(parts) > 4 {
				fmt.Println("Usage: set <key> <value> [ttl_seconds]")
				continue
			}
			var ttl int64
			if len(parts) == 4 {
				ttl, err = strconv.ParseInt(parts[3], 10, 64)
				if err != nil {
					fmt.Printf("Invalid TTL: %v\n", err)
					continue
				}
			}
			handleSet(ctx, client, parts[1], parts[2], ttl)

		case "delete", "del":
			if len(parts) != 2 {
				fmt.Println("Usage: delete <key>")
				continue
			}
			handleDelete(ctx, client, parts[1])

		case "mget", "multi-get":
			if len(parts) < 2 {
				fmt.Println("Usage: mget <key1> <key2> ...")
				continue
			}
			handleMultiGet(ctx, client, parts[1:])

		case "stats":
			handleStats(ctx, client)

		case "help":
			fmt.Println("Commands:")
			fmt.Println("  get <key>                 - Get a value by key")
			fmt.Println("  set <key> <value> [ttl]   - Set a key-value pair with optional TTL seconds")
			fmt.Println("  delete <key>              - Delete a key")
			fmt.Println("  mget <key1> <key2>        - Get multiple keys at once")
			fmt.Println("  stats                     - Show per-server stats blocks")
			fmt.Println("  quit                      - Exit the CLI")

		case "quit", "exit":
			fmt.Println("Goodbye!")
			return

		default:
			fmt.Printf("Unknown command: %s. Type 'help' for available commands.\n", command)
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Printf("Error reading input: %v\n", err)
	}
}

func handleGet(ctx context.Context, client *mctext.Client, key string) {
	start := time.Now()
	var value string
	found, err := client.Get(ctx, key, &value)
	duration := time.Since(start)

	if err != nil {
		fmt.Printf("Error: %v (took %v)\n", err, duration)
		return
	}
	if !found {
		fmt.Printf("Key not found (took %v)\n", duration)
		return
	}
	fmt.Printf("Value: %s (took %v)\n", value, duration)
}

func handleSet(ctx context.Context, client *mctext.Client, key, value string, ttl int64) {
	start := time.Now()
	err := client.Set(ctx, key, value, ttl)
	duration := time.Since(start)

	if err != nil {
		fmt.Printf("Error: %v (took %v)\n", err, duration)
		return
	}
	fmt.Printf("Stored successfully (took %v)\n", duration)
}

func handleDelete(ctx context.Context, client *mctext.Client, key string) {
	start := time.Now()
	err := client.Delete(ctx, key)
	duration := time.Since(start)

	if err != nil {
		fmt.Printf("Error: %v (took %v)\n", err, duration)
		return
	}
	fmt.Printf("Delete successful (took %v)\n", duration)
}

func handleMultiGet(ctx context.Context, client *mctext.Client, keys []string) {
	start := time.Now()
	items, err := client.GetMulti(ctx, keys)
	duration := time.Since(start)

	if err != nil {
		fmt.Printf("Error: %v (took %v)\n", err, duration)
		return
	}

	for _, key := range keys {
		if item, ok := items[key]; ok {
			fmt.Printf("  %s: %s\n", key, string(item.Data))
		} else {
			fmt.Printf("  %s: <not found>\n", key)
		}
	}
	fmt.Printf("Retrieved %d out of %d keys (took %v)\n", len(items), len(keys), duration)
}

func handleStats(ctx context.Context, client *mctext.Client) {
	stats, err := client.Stats(ctx)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if len(stats) == 0 {
		fmt.Println("No statistics available")
		return
	}

	for addr, block := range stats {
		fmt.Printf("Server %s:\n", addr)
		for k, v := range block {
			fmt.Printf("  %s: %s\n", k, v)
		}
		fmt.Println()
	}

	metrics := client.Metrics()
	fmt.Printf("Client counters: gets=%d sets=%d hits=%d misses=%d hitrate=%.2f errors=%d\n",
		metrics.Gets, metrics.Sets, metrics.CacheHits, metrics.CacheMisses, metrics.HitRate(), metrics.Errors)
}
