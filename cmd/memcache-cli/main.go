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

	"github.com/memcachex/memcache"
)

func main() {
	addrs := flag.String("addrs", "127.0.0.1:11211", "comma-separated server addresses")
	flag.Parse()

	fmt.Println("Memcache CLI Tool")
	fmt.Println("================")
	fmt.Println("Commands: get <key>, set <key> <value> [ttl], delete <key>, multi-get <key1> <key2> ..., stats, version, quit")
	fmt.Println()

	servers := memcache.NewStaticServers(memcache.ParseServerList(*addrs)...)
	client, err := memcache.NewClient(servers, memcache.Config{})
	if err != nil {
		fmt.Printf("Failed to create client: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

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
			ttl := time.Duration(0)
			if len(parts) == 4 {
				ttlSecs, err := strconv.Atoi(parts[3])
				if err != nil {
					fmt.Printf("Invalid TTL: %v\n", err)
					continue
				}
				ttl = time.Duration(ttlSecs) * time.Second
			}
			handleSet(ctx, client, parts[1], parts[2], ttl)

		case "delete", "del":
			if len(parts) != 2 {
				fmt.Println("Usage: delete <key>")
				continue
			}
			handleDelete(ctx, client, parts[1])

		case "multi-get", "mget":
			if len(parts) < 2 {
				fmt.Println("Usage: multi-get <key1> <key2> ...")
				continue
			}
			handleMultiGet(ctx, client, parts[1:])

		case "stats":
			handleStats(client)

		case "version":
			handleVersion(ctx, client)

		case "help":
			fmt.Println("Commands:")
			fmt.Println("  get <key>                 - Get a value by key")
			fmt.Println("  set <key> <value> [ttl]   - Set a key-value pair with optional TTL")
			fmt.Println("  delete <key>              - Delete a key")
			fmt.Println("  multi-get <key1> <key2>   - Get multiple keys at once")
			fmt.Println("  stats                     - Show pool statistics")
			fmt.Println("  version                   - Print each server's version")
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

func handleGet(ctx context.Context, client *memcache.Client, key string) {
	start := time.Now()
	item, err := client.Get(ctx, key)
	duration := time.Since(start)

	if err != nil {
		fmt.Printf("Error: %v (took %v)\n", err, duration)
		return
	}
	if !item.Found {
		fmt.Printf("Key not found (took %v)\n", duration)
		return
	}
	fmt.Printf("Value: %s (took %v)\n", string(item.Value), duration)
	if item.Flags != 0 {
		fmt.Printf("Flags: %d\n", item.Flags)
	}
}

func handleSet(ctx context.Context, client *memcache.Client, key, value string, ttl time.Duration) {
	start := time.Now()
	err := client.Set(ctx, key, []byte(value), ttl)
	duration := time.Since(start)

	if err != nil {
		fmt.Printf("Error: %v (took %v)\n", err, duration)
		return
	}
	fmt.Printf("Stored successfully (took %v)\n", duration)
}

func handleDelete(ctx context.Context, client *memcache.Client, key string) {
	start := time.Now()
	ok, err := client.Delete(ctx, key)
	duration := time.Since(start)

	if err != nil {
		fmt.Printf("Error: %v (took %v)\n", err, duration)
		return
	}
	if !ok {
		fmt.Printf("Key not found (took %v)\n", duration)
		return
	}
	fmt.Printf("Delete successful (took %v)\n", duration)
}

func handleMultiGet(ctx context.Context, client *memcache.Client, keys []string) {
	start := time.Now()
	items, err := client.MultiGet(ctx, keys)
	duration := time.Since(start)

	if err != nil {
		fmt.Printf("Error: %v (took %v)\n", err, duration)
		return
	}

	for _, key := range keys {
		if item, ok := items[key]; ok {
			fmt.Printf("  %s: %s\n", key, string(item.Value))
		} else {
			fmt.Printf("  %s: <not found>\n", key)
		}
	}
	fmt.Printf("Retrieved %d out of %d keys (took %v)\n", len(items), len(keys), duration)
}

func handleStats(client *memcache.Client) {
	stats := client.PoolStats()
	if len(stats) == 0 {
		fmt.Println("No statistics available")
		return
	}

	fmt.Println("Server Statistics:")
	for addr, stat := range stats {
		fmt.Printf("Server %s:\n", addr)
		fmt.Printf("  Total:  %d\n", stat.TotalConns)
		fmt.Printf("  Idle:   %d\n", stat.IdleConns)
		fmt.Printf("  Active: %d\n", stat.ActiveConns)
		fmt.Printf("  Peak:   %d\n", stat.PeakConns)
		fmt.Println()
	}
}

func handleVersion(ctx context.Context, client *memcache.Client) {
	start := time.Now()
	versions, err := client.Version(ctx)
	duration := time.Since(start)

	if err != nil {
		fmt.Printf("Error: %v (took %v)\n", err, duration)
		return
	}
	for addr, v := range versions {
		fmt.Printf("  %s: %s\n", addr, v)
	}
	fmt.Printf("(took %v)\n", duration)
}
