// Package pool manages the set of authenticated transports behind a client
// and dispatches queries across them.
package pool

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/zteradb/zteradb-go/auth"
	"github.com/zteradb/zteradb-go/config"
	zterr "github.com/zteradb/zteradb-go/errors"
	"github.com/zteradb/zteradb-go/logger"
	"github.com/zteradb/zteradb-go/transport"
	"github.com/zteradb/zteradb-go/wire"
	"github.com/zteradb/zteradb-go/zql"
)

// warmupConcurrency bounds how many eager connections are opened at once
// during construction.
const warmupConcurrency = 4

// Options tunes pool behavior beyond what the client config carries.
type Options struct {
	Logger      *slog.Logger  // nil = discard
	Timeout     time.Duration // per-I/O deadline on each transport; 0 = none
	DialTimeout time.Duration // 0 = transport default
}

// Pool owns every transport it creates. A transport is in exactly one of the
// idle or in-use sets until it is closed; the two maps are the only shared
// mutable state and are guarded by mu.
type Pool struct {
	host  string
	port  int
	cfg   *config.Config
	authn *auth.Authenticator
	log   *slog.Logger
	topts transport.Options

	mu      sync.Mutex
	idle    map[string]*transport.Transport
	inUse   map[string]*transport.Transport
	pending int // slots reserved for transports being opened
	closed  bool
}

// New validates cfg, then eagerly opens and authenticates the configured
// minimum number of transports. Connection failures during warmup shrink
// the initial pool; an authentication rejection or a malformed token reply
// fails construction, since every later connection would fail the same way.
func New(ctx context.Context, host string, port int, cfg *config.Config, opts *Options) (*Pool, error) {
	if cfg == nil {
		return nil, zterr.Value("config must not be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if host == "" {
		return nil, zterr.Value("host must be a non-empty string")
	}
	if port <= 0 || port > 65535 {
		return nil, zterr.Value("port %d is out of range", port)
	}
	if opts == nil {
		opts = &Options{}
	}

	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}

	p := &Pool{
		host:  host,
		port:  port,
		cfg:   cfg,
		authn: auth.New(cfg),
		log:   log,
		idle:  make(map[string]*transport.Transport),
		inUse: make(map[string]*transport.Transport),
		topts: transport.Options{
			UseTLS:        cfg.UseTLS,
			VerifyTLSHost: cfg.VerifyTLSHost,
			Timeout:       opts.Timeout,
			DialTimeout:   opts.DialTimeout,
		},
	}

	if err := p.warmup(ctx); err != nil {
		p.Close()
		return nil, err
	}

	return p, nil
}

// warmup opens the eager connections concurrently, bounded by a small
// worker pool.
func (p *Pool) warmup(ctx context.Context) error {
	count := p.cfg.Options.ConnectionPool.Min
	if count == 0 {
		return nil
	}

	workerCount := warmupConcurrency
	if count < workerCount {
		workerCount = count
	}
	workers, err := ants.NewPool(workerCount)
	if err != nil {
		return zterr.Connection("failed to start warmup workers", err)
	}
	defer workers.Release()

	var (
		wg      sync.WaitGroup
		errMu   sync.Mutex
		authErr error
	)

	for i := 0; i < count; i++ {
		wg.Add(1)
		submitErr := workers.Submit(func() {
			defer wg.Done()
			t, err := p.connect(ctx)
			if err != nil {
				// A rejected handshake or a malformed token reply is
				// fatal; anything else just shrinks the warm pool.
				if zterr.IsAuth(err) || zterr.IsValue(err) {
					errMu.Lock()
					authErr = err
					errMu.Unlock()
				}
				p.log.Warn("warmup connection failed", "error", err)
				return
			}
			p.mu.Lock()
			if p.closed {
				p.mu.Unlock()
				t.Close()
				return
			}
			p.idle[t.ID()] = t
			p.mu.Unlock()
		})
		if submitErr != nil {
			wg.Done()
		}
	}

	wg.Wait()
	return authErr
}

// connect opens one transport and runs the handshake on it.
func (p *Pool) connect(ctx context.Context) (*transport.Transport, error) {
	t, err := transport.Open(ctx, p.host, p.port, p.topts)
	if err != nil {
		return nil, err
	}

	hs, err := p.authn.Handshake()
	if err != nil {
		t.Close()
		return nil, err
	}
	if err := t.SendJSON(hs); err != nil {
		t.Close()
		return nil, err
	}

	body, err := t.ReadFrame()
	if err != nil {
		t.Close()
		return nil, err
	}
	token, err := auth.ParseReply(body)
	if err != nil {
		t.Close()
		return nil, err
	}

	t.SetToken(token)
	p.log.Debug("transport authenticated",
		"transport", t.ID(), "expires", token.ExpiresAt)
	return t, nil
}

// acquire takes an idle transport, refreshing it if its token is about to
// expire, or opens a new one within the configured ceiling. The returned
// transport is in the in-use set.
func (p *Pool) acquire(ctx context.Context) (*transport.Transport, error) {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, zterr.Connection("pool is closed", nil)
		}

		// Take any idle transport.
		var t *transport.Transport
		for id, idle := range p.idle {
			t = idle
			delete(p.idle, id)
			break
		}

		if t != nil {
			if t.Token() != nil && !t.Token().Expired(time.Now()) {
				p.inUse[t.ID()] = t
				p.mu.Unlock()
				return t, nil
			}
			// Stale token: discard and retry, which falls through to
			// opening a fresh transport once idle is drained.
			p.mu.Unlock()
			p.log.Debug("discarding transport with expiring token", "transport", t.ID())
			t.Close()
			continue
		}

		max := p.cfg.Options.ConnectionPool.Max
		total := len(p.idle) + len(p.inUse) + p.pending
		if max > 0 && total >= max {
			p.mu.Unlock()
			return nil, zterr.Connection("connection pool exhausted", nil)
		}
		p.pending++
		p.mu.Unlock()

		t, err := p.connect(ctx)

		p.mu.Lock()
		p.pending--
		if err != nil {
			p.mu.Unlock()
			return nil, err
		}
		if p.closed {
			p.mu.Unlock()
			t.Close()
			return nil, zterr.Connection("pool is closed", nil)
		}
		p.inUse[t.ID()] = t
		p.mu.Unlock()
		return t, nil
	}
}

// release returns an in-use transport to the idle set.
func (p *Pool) release(t *transport.Transport) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.inUse, t.ID())
	if p.closed || t.Closed() {
		t.Close()
		return
	}
	p.idle[t.ID()] = t
}

// destroy removes a transport from both sets and closes it.
func (p *Pool) destroy(t *transport.Transport) {
	p.mu.Lock()
	delete(p.idle, t.ID())
	delete(p.inUse, t.ID())
	p.mu.Unlock()
	t.Close()
}

// Run executes the query and returns its streamed rows. The borrowed
// transport goes back to idle when the stream drains cleanly and is
// destroyed on any error or early Close.
func (p *Pool) Run(ctx context.Context, q *zql.Query) (*Rows, error) {
	if q == nil {
		return nil, zterr.Value("query must not be nil")
	}
	if err := q.Err(); err != nil {
		return nil, err
	}
	doc, err := q.Generate()
	if err != nil {
		return nil, err
	}

	// Queries inherit the pool's database and environment unless they
	// carry their own.
	if doc["db"] == "" {
		doc["db"] = p.cfg.DatabaseID
	}
	if doc["env"] == "" {
		doc["env"] = p.cfg.Env
	}

	t, err := p.acquire(ctx)
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"query":        doc,
		"request_type": wire.RequestQuery,
		"database_id":  p.cfg.DatabaseID,
		"env":          p.cfg.Env,
	}
	if err := t.SendJSON(payload); err != nil {
		p.destroy(t)
		return nil, err
	}

	p.log.Debug("query dispatched", "transport", t.ID(), "schema", doc["sh"])
	return &Rows{pool: p, t: t, stream: t.Receive()}, nil
}

// RunOne executes the query and returns its first row. A stream that
// terminates without any data frame reports NoResponseData.
func (p *Pool) RunOne(ctx context.Context, q *zql.Query) (map[string]interface{}, error) {
	rows, err := p.Run(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if rows.Next() {
		return rows.Row(), nil
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return nil, zterr.NoResponseData("query returned no rows")
}

// Ping checks connectivity with a ping round trip on a borrowed transport.
func (p *Pool) Ping(ctx context.Context) error {
	t, err := p.acquire(ctx)
	if err != nil {
		return err
	}

	payload := map[string]interface{}{
		"request_type": wire.RequestPing,
		"database_id":  p.cfg.DatabaseID,
		"env":          p.cfg.Env,
	}
	if err := t.SendJSON(payload); err != nil {
		p.destroy(t)
		return err
	}

	msg, err := t.ReadMessage()
	if err != nil {
		p.destroy(t)
		return err
	}
	if msg.ResponseCode != wire.ResponsePong {
		p.destroy(t)
		return zterr.Query(msg.DataString())
	}

	p.release(t)
	return nil
}

// Stats reports the pool's current shape.
type Stats struct {
	Idle  int
	InUse int
	Min   int
	Max   int
}

// Stats returns a snapshot of the idle/in-use split and the configured
// bounds.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Idle:  len(p.idle),
		InUse: len(p.inUse),
		Min:   p.cfg.Options.ConnectionPool.Min,
		Max:   p.cfg.Options.ConnectionPool.Max,
	}
}

// Close closes every transport in both sets. In-flight queries observe a
// protocol error on their next read. Safe to call more than once.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true

	transports := make([]*transport.Transport, 0, len(p.idle)+len(p.inUse))
	for _, t := range p.idle {
		transports = append(transports, t)
	}
	for _, t := range p.inUse {
		transports = append(transports, t)
	}
	p.idle = make(map[string]*transport.Transport)
	p.inUse = make(map[string]*transport.Transport)
	p.mu.Unlock()

	// Attempt every close even when some fail.
	for _, t := range transports {
		if err := t.Close(); err != nil {
			p.log.Warn("failed to close transport", "transport", t.ID(), "error", err)
		}
	}

	p.log.Debug("pool closed", "transports", len(transports))
	return nil
}
