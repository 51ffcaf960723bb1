// Command zteradb-shell is an interactive query shell for ZTeraDB.
//
// Queries are written as "<verb> <schema> [filter expression]", where the
// filter is a CEL boolean expression compiled to the server's filter tree:
//
//	> select user status == "A" && age >= 21
//	> count order total > 100.0
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/peterh/liner"

	"github.com/zteradb/zteradb-go"
	"github.com/zteradb/zteradb-go/logger"
	"github.com/zteradb/zteradb-go/pool"
	"github.com/zteradb/zteradb-go/zql"
)

const prompt = "zteradb> "

func main() {
	host := flag.String("host", "127.0.0.1", "server host")
	port := flag.Int("port", 7600, "server port")
	configPath := flag.String("config", "zteradb.json", "config file path")
	verbose := flag.Bool("v", false, "log client activity")
	flag.Parse()

	cfg, err := zteradb.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	opts := &pool.Options{}
	if *verbose {
		opts.Logger = logger.New(logger.Config{Level: "DEBUG"})
	}

	ctx := context.Background()
	db, err := zteradb.Connect(ctx, *host, *port, cfg, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	fmt.Printf("Connected to %s:%d (env %s). Type .help for commands.\n", *host, *port, cfg.Env)

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	for {
		input, err := line.Prompt(prompt)
		if err != nil {
			fmt.Println()
			return
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if input == ".quit" || input == ".exit" {
			return
		}
		dispatch(ctx, db, input)
	}
}

func dispatch(ctx context.Context, db *pool.Pool, input string) {
	switch {
	case input == ".help":
		printHelp()
	case input == ".ping":
		if err := db.Ping(ctx); err != nil {
			fmt.Printf("ping failed: %v\n", err)
		} else {
			fmt.Println("pong")
		}
	case input == ".stats":
		stats := db.Stats()
		fmt.Printf("idle=%d in_use=%d min=%d max=%d\n", stats.Idle, stats.InUse, stats.Min, stats.Max)
	case strings.HasPrefix(input, "select "):
		runQuery(ctx, db, strings.TrimPrefix(input, "select "), false)
	case strings.HasPrefix(input, "count "):
		runQuery(ctx, db, strings.TrimPrefix(input, "count "), true)
	default:
		fmt.Println("unknown command; type .help")
	}
}

func runQuery(ctx context.Context, db *pool.Pool, rest string, count bool) {
	parts := strings.SplitN(strings.TrimSpace(rest), " ", 2)
	schema := parts[0]
	if schema == "" {
		fmt.Println("usage: select <schema> [filter expression]")
		return
	}

	q := zql.NewQuery(schema).Select()
	if count {
		q.Count()
	}
	if len(parts) == 2 && strings.TrimSpace(parts[1]) != "" {
		cond, err := zql.CompileCEL(parts[1])
		if err != nil {
			fmt.Printf("bad filter: %v\n", err)
			return
		}
		q.FilterCondition(cond)
	}

	rows, err := db.Run(ctx, q)
	if err != nil {
		fmt.Printf("query failed: %v\n", err)
		return
	}

	n := 0
	for rows.Next() {
		out, err := json.Marshal(rows.Row())
		if err != nil {
			fmt.Printf("row: %v\n", rows.Row())
		} else {
			fmt.Println(string(out))
		}
		n++
	}
	if err := rows.Err(); err != nil {
		fmt.Printf("query failed: %v\n", err)
		return
	}
	fmt.Printf("(%d rows)\n", n)
}

func printHelp() {
	fmt.Print(`Commands:
  select <schema> [filter]   run a SELECT, optional CEL filter expression
  count <schema> [filter]    run a counting SELECT
  .ping                      check server connectivity
  .stats                     show pool statistics
  .help                      show this help
  .quit                      exit
`)
}
