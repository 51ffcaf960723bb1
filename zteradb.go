// Package zteradb is a client for the ZTeraDB document database. It speaks
// the server's length-prefixed JSON protocol over a pool of authenticated
// TCP connections and exposes a composable query builder.
//
// Typical use:
//
//	cfg, err := zteradb.LoadConfig("zteradb.json")
//	...
//	db, err := zteradb.Connect(ctx, "db.example.com", 7600, cfg, nil)
//	...
//	defer db.Close()
//
//	cond, err := zql.CompileCEL(`status == "A" && age >= 21`)
//	...
//	rows, err := db.Run(ctx, zql.NewQuery("user").Select().FilterCondition(cond))
//	...
//	for rows.Next() {
//		fmt.Println(rows.Row())
//	}
package zteradb

import (
	"context"

	"github.com/zteradb/zteradb-go/config"
	"github.com/zteradb/zteradb-go/pool"
)

// Config is the client configuration. See the config package for loading
// and validation.
type Config = config.Config

// Connect builds a pool bound to host:port and eagerly opens the configured
// minimum number of authenticated connections.
func Connect(ctx context.Context, host string, port int, cfg *config.Config, opts *pool.Options) (*pool.Pool, error) {
	return pool.New(ctx, host, port, cfg, opts)
}

// LoadConfig reads and validates a configuration file, applying
// ZTERADB_-prefixed environment overrides.
func LoadConfig(path string) (*config.Config, error) {
	return config.Load(path)
}
