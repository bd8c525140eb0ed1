package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/cvcontext/internal/db"
)

var _ db.Store = (*Store)(nil)

const (
	readyPollMin = 50 * time.Millisecond
	readyPollMax = time.Second
)

// Store is db.Store over rueidis, for Redis 8+ and Valkey with valkey-search.
type Store struct {
	client rueidis.Client
}

// NewStore connects with opt. Client-side caching is off and RESP2 is forced
// because FT.SEARCH replies are parsed as RESP2 arrays.
func NewStore(opt rueidis.ClientOption) (*Store, error) {
	if len(opt.InitAddress) == 0 {
		return nil, errors.New("at least one address is required")
	}
	opt.DisableCache = true
	opt.AlwaysRESP2 = true

	client, err := rueidis.NewClient(opt)
	if err != nil {
		return nil, fmt.Errorf("create rueidis client: %w", err)
	}
	return newStore(client), nil
}

func newStore(c rueidis.Client) *Store { return &Store{client: c} }

// Ping sends PING.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.do(ctx, s.b().Ping().Build()).Error(); err != nil {
		return &db.Error{Op: db.OpPing, Err: err}
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() { s.client.Close() }

// WaitForReady pings with a doubling delay until the server answers or
// timeout passes. The timeout error carries the last ping failure.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	delay := readyPollMin
	for {
		err := s.Ping(ctx)
		if err == nil {
			return nil
		}

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("store not ready after %s: %w (last ping: %w)", timeout, ctx.Err(), err)
		case <-t.C:
		}
		delay = min(2*delay, readyPollMax)
	}
}

func (s *Store) do(ctx context.Context, cmd rueidis.Completed) rueidis.RedisResult {
	return s.client.Do(ctx, cmd)
}

func (s *Store) b() rueidis.Builder { return s.client.B() }

// isRedisErr reports whether err is a server reply containing substr, ignoring case.
func isRedisErr(err error, substr string) bool {
	re, ok := rueidis.IsRedisErr(err)
	return ok && strings.Contains(strings.ToLower(re.Error()), strings.ToLower(substr))
}
