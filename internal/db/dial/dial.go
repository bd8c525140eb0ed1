// Package dial turns connection-target URLs into db.Store backends.
package dial

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/redis/rueidis"
	"go.uber.org/zap"

	"github.com/kailas-cloud/cvcontext/internal/db"
	"github.com/kailas-cloud/cvcontext/internal/db/memory"
	dbRedis "github.com/kailas-cloud/cvcontext/internal/db/redis"
	"github.com/kailas-cloud/cvcontext/internal/domain"
)

// Dialer opens stores for targets of the form:
//
//	redis://[user:pass@]host:port[/db]
//	rediss://...            (TLS)
//	valkey://, valkeys://   (aliases of redis://, rediss://)
//	memory://<name>         (in-process, shared per name within one Dialer)
type Dialer struct {
	readiness time.Duration
	logger    *zap.Logger

	mu     sync.Mutex
	memory map[string]*memory.Store
}

// New creates a Dialer. readiness > 0 makes Open wait for network stores to answer PING.
func New(readiness time.Duration, logger *zap.Logger) *Dialer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dialer{
		readiness: readiness,
		logger:    logger,
		memory:    make(map[string]*memory.Store),
	}
}

// Open returns a store for target. Each call to a network target opens a new client.
func (d *Dialer) Open(ctx context.Context, target string) (db.Store, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", domain.ErrUnsupportedTarget, target, err)
	}

	switch u.Scheme {
	case "memory":
		return d.openMemory(u), nil
	case "redis", "rediss":
		return d.openRedis(ctx, target)
	case "valkey", "valkeys":
		return d.openRedis(ctx, "redis"+strings.TrimPrefix(target, "valkey"))
	default:
		return nil, fmt.Errorf("%w: scheme %q", domain.ErrUnsupportedTarget, u.Scheme)
	}
}

func (d *Dialer) openMemory(u *url.URL) *memory.Store {
	name := u.Host + u.Path

	d.mu.Lock()
	defer d.mu.Unlock()

	s, ok := d.memory[name]
	if !ok {
		s = memory.New()
		d.memory[name] = s
		d.logger.Debug("Created in-process store", zap.String("name", name))
	}
	return s
}

func (d *Dialer) openRedis(ctx context.Context, target string) (db.Store, error) {
	opt, err := rueidis.ParseURL(target)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrUnsupportedTarget, err)
	}

	s, err := dbRedis.NewStore(opt)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	if d.readiness > 0 {
		if err := s.WaitForReady(ctx, d.readiness); err != nil {
			s.Close()
			return nil, err
		}
	}

	d.logger.Debug("Opened store", zap.Strings("addrs", opt.InitAddress), zap.Int("db", opt.SelectDB))
	return s, nil
}
