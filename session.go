// Package cqldriver is the module root: a thin Session/Request execution
// surface over the transport package's Connection/Pool/Cluster machinery.
// It intentionally stops short of a fluent query builder, type marshaling,
// or ORM layer — callers construct transport.Statement values directly and
// bind already-encoded frame.Value bytes.
package cqldriver

import (
	"context"
	"fmt"
	"log"

	"github.com/scylladb/cql-native-driver/frame"
	"github.com/scylladb/cql-native-driver/frame/response"
	"github.com/scylladb/cql-native-driver/transport"
)

type EventType = string

const (
	TopologyChange EventType = "TOPOLOGY_CHANGE"
	StatusChange   EventType = "STATUS_CHANGE"
	SchemaChange   EventType = "SCHEMA_CHANGE"
)

var (
	ErrNoHosts   = fmt.Errorf("error in session config: no hosts given")
	ErrEventType = fmt.Errorf("error in session config: invalid event type")
)

// SessionConfig is the bounded option set a caller configures before
// opening a Session, following transport.ConnConfig's field-by-field
// layout but adding the cluster-wide policies layered on top of it.
type SessionConfig struct {
	Hosts  []string
	Events []EventType

	Policy                     transport.HostSelectionPolicy
	RetryPolicy                transport.RetryPolicy
	SpeculativeExecutionPolicy transport.SpeculativeExecutionPolicy
	PreparedCacheSize          int

	transport.ConnConfig
}

// DefaultSessionConfig returns a SessionConfig with conservative defaults:
// round-robin host selection, the conservative DefaultRetryPolicy, and no
// speculative execution.
func DefaultSessionConfig(keyspace string, hosts ...string) SessionConfig {
	return SessionConfig{
		Hosts:                      hosts,
		Policy:                     transport.NewRoundRobinPolicy(),
		RetryPolicy:                transport.DefaultRetryPolicy{},
		SpeculativeExecutionPolicy: transport.NoSpeculativeExecution{},
		PreparedCacheSize:          1000,
		ConnConfig:                 transport.DefaultConnConfig(keyspace),
	}
}

func (cfg SessionConfig) Clone() SessionConfig {
	v := cfg
	v.Hosts = append([]string(nil), cfg.Hosts...)
	v.Events = append([]EventType(nil), cfg.Events...)
	return v
}

func (cfg *SessionConfig) Validate() error {
	if len(cfg.Hosts) == 0 {
		return ErrNoHosts
	}
	for _, e := range cfg.Events {
		if e != TopologyChange && e != StatusChange && e != SchemaChange {
			return ErrEventType
		}
	}
	if cfg.RetryPolicy == nil {
		cfg.RetryPolicy = transport.DefaultRetryPolicy{}
	}
	if cfg.SpeculativeExecutionPolicy == nil {
		cfg.SpeculativeExecutionPolicy = transport.NoSpeculativeExecution{}
	}
	return nil
}

// Session owns one Cluster, its Prepared Statement Cache, and the policies
// every Request issued through it shares.
type Session struct {
	cfg     SessionConfig
	cluster *transport.Cluster
	cache   *transport.PreparedCache
}

func NewSession(cfg SessionConfig) (*Session, error) {
	cfg = cfg.Clone()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cluster, err := transport.NewCluster(cfg.ConnConfig, cfg.Policy, cfg.Events, cfg.Hosts...)
	if err != nil {
		return nil, err
	}

	return &Session{
		cfg:     cfg,
		cluster: cluster,
		cache:   transport.NewPreparedCache(cfg.PreparedCacheSize),
	}, nil
}

// Prepare returns a bindable Statement for content, transparently sharing
// one in-flight PREPARE per (keyspace, content) pair via the Session's
// PreparedCache.
func (s *Session) Prepare(ctx context.Context, content string) (transport.Statement, error) {
	return s.cache.GetOrPrepare(s.cfg.Keyspace, content, func() (transport.Statement, error) {
		n := s.cluster.Policy().Node(s.cluster.NewQueryInfo(), 0)
		if n == nil {
			return transport.Statement{}, &transport.NoHostAvailable{}
		}
		return n.Prepare(ctx, transport.Statement{
			Content:     content,
			Keyspace:    s.cfg.Keyspace,
			Consistency: s.cfg.DefaultConsistency,
		})
	})
}

// Execute runs stmt to completion (single page, or the whole statement for
// DML), applying the Session's RetryPolicy and SpeculativeExecutionPolicy.
// UNPREPARED responses are handled transparently: the cache entry is
// invalidated, the statement is re-prepared once through the cache (which
// then holds the fresh query id for later callers) and run once more.
func (s *Session) Execute(ctx context.Context, stmt transport.Statement, pagingState []byte) (transport.QueryResult, error) {
	qi, err := s.queryInfo(stmt)
	if err != nil {
		return transport.QueryResult{}, err
	}

	res, err := transport.RunSpeculative(ctx, s.cluster.Policy(), s.cfg.SpeculativeExecutionPolicy, qi, stmt, pagingState)
	if err == nil {
		return res, nil
	}

	if coded, ok := err.(response.CodedError); ok && coded.Code() == response.ErrUnprepared {
		// UNPREPARED: the coordinator forgot this query id; invalidate and
		// re-prepare before surfacing the failure to the retry policy.
		s.cache.Invalidate(stmt.Keyspace, stmt.Content)
		reprepared, perr := s.Prepare(ctx, stmt.Content)
		if perr == nil {
			stmt.QueryID = reprepared.QueryID
			stmt.Metadata = reprepared.Metadata
			return transport.RunSpeculative(ctx, s.cluster.Policy(), s.cfg.SpeculativeExecutionPolicy, qi, stmt, pagingState)
		}
	}

	return s.executeWithRetry(ctx, qi, stmt, pagingState, err)
}

// executeWithRetry consults the RetryPolicy on firstErr, walking the rest
// of the query plan if it says to move on.
func (s *Session) executeWithRetry(ctx context.Context, qi transport.QueryInfo, stmt transport.Statement, pagingState []byte, firstErr error) (transport.QueryResult, error) {
	rd := s.cfg.RetryPolicy.NewRetryDecider()
	lastErr := firstErr
	idx := 1

	for {
		ri := transport.RetryInfo{Error: lastErr, Idempotent: stmt.Idempotent, Consistency: stmt.Consistency}
		switch rd.Decide(ri) {
		case transport.DontRetry:
			return transport.QueryResult{}, lastErr
		case transport.RetrySameNode:
			// no node identity is tracked at this layer once
			// RunSpeculative returns; treat as moving to the next plan
			// entry, the closest equivalent without re-plumbing node
			// identity through the speculative runner.
		case transport.RetryNextNode:
		}

		n := s.cluster.Policy().Node(qi, idx)
		if n == nil {
			return transport.QueryResult{}, lastErr
		}
		idx++

		conn, err := n.Conn(qi)
		if err != nil {
			lastErr = err
			continue
		}
		res, err := conn.RunQuery(ctx, stmt, pagingState)
		if err == nil {
			return res, nil
		}
		lastErr = err
	}
}

func (s *Session) queryInfo(stmt transport.Statement) (transport.QueryInfo, error) {
	token, ok := routingToken(stmt)
	if !ok {
		return s.cluster.NewQueryInfo(), nil
	}
	return s.cluster.NewTokenAwareQueryInfo(token, stmt.Keyspace)
}

// routingToken computes the Murmur3 token for stmt's partition key, the
// same compound-key encoding the coordinator itself uses to place rows
// (single-column partition keys hash their raw bytes directly; composite
// keys hash the <short length><value><0> encoding CQL calls out for
// "compound" partition keys).
func routingToken(stmt transport.Statement) (transport.Token, bool) {
	if stmt.PkCnt == 0 {
		return 0, false
	}
	if stmt.PkCnt == 1 {
		return transport.MurmurToken(stmt.Values[stmt.PkIndexes[0]].Bytes), true
	}

	var buf frame.Buffer
	for _, idx := range stmt.PkIndexes {
		v := stmt.Values[idx]
		buf.WriteShort(frame.Short(v.N))
		buf.Write(v.Bytes)
		buf.WriteByte(0)
	}
	return transport.MurmurToken(buf.Bytes()), true
}

// AwaitSchemaAgreement blocks until every known node reports the same
// schema version, or timeout elapses; call after issuing DDL.
func (s *Session) AwaitSchemaAgreement(ctx context.Context) error {
	return s.cluster.AwaitSchemaAgreement(ctx, s.cfg.ConnectTimeout*10)
}

func (s *Session) Close() {
	log.Println("session: closing")
	s.cluster.Close()
}
