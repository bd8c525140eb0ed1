package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/rueidis"
	"github.com/redis/rueidis/mock"
	"go.uber.org/mock/gomock"

	"github.com/kailas-cloud/cvcontext/internal/db"
)

const (
	embKeyA = "cvctx:emb_cache:all-MiniLM-L6-v2:5f1d"
	embKeyB = "cvctx:emb_cache:all-MiniLM-L6-v2:9ac0"
	embKeyC = "cvctx:emb_cache:all-MiniLM-L6-v2:e3b0"
)

func TestGet(t *testing.T) {
	s, c := newMockStore(t)
	c.EXPECT().Do(gomock.Any(), mock.Match("GET", embKeyA)).
		Return(mock.Result(mock.RedisBlobString("\x00\x00\x80\x3f")))

	data, err := s.Get(context.Background(), embKeyA)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(data) != 4 || data[3] != 0x3f {
		t.Errorf("unexpected payload: % x", data)
	}
}

func TestGet_Failures(t *testing.T) {
	tests := []struct {
		name     string
		reply    rueidis.RedisResult
		notFound bool
	}{
		{"nil_reply", mock.Result(mock.RedisNil()), true},
		{"timeout", mock.ErrorResult(context.DeadlineExceeded), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, c := newMockStore(t)
			c.EXPECT().Do(gomock.Any(), mock.Match("GET", embKeyA)).Return(tc.reply)

			_, err := s.Get(context.Background(), embKeyA)
			if got := errors.Is(err, db.ErrKeyNotFound); got != tc.notFound {
				t.Fatalf("errors.Is(ErrKeyNotFound) = %v, want %v (err: %v)", got, tc.notFound, err)
			}
			if !tc.notFound {
				if dbErr := asDBError(t, err); dbErr.Op != db.OpGet || dbErr.Key != embKeyA {
					t.Errorf("unexpected error context: %+v", dbErr)
				}
			}
		})
	}
}

func TestSet(t *testing.T) {
	tests := []struct {
		name string
		ttl  time.Duration
		cmd  []string
	}{
		{"no_ttl", 0, []string{"SET", embKeyA, "blob"}},
		{"thirty_days", 30 * 24 * time.Hour, []string{"SET", embKeyA, "blob", "EX", "2592000"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, c := newMockStore(t)
			c.EXPECT().Do(gomock.Any(), mock.Match(tc.cmd...)).
				Return(mock.Result(mock.RedisString("OK")))

			if err := s.Set(context.Background(), embKeyA, []byte("blob"), tc.ttl); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestSet_Error(t *testing.T) {
	s, c := newMockStore(t)
	c.EXPECT().Do(gomock.Any(), command("SET")).
		Return(mock.Result(mock.RedisError("OOM command not allowed when used memory > 'maxmemory'")))

	err := s.Set(context.Background(), embKeyA, []byte("blob"), 0)
	if dbErr := asDBError(t, err); dbErr.Op != db.OpSet {
		t.Errorf("Op = %q, want %q", dbErr.Op, db.OpSet)
	}
}

func TestMGet_MixedHitsAndMisses(t *testing.T) {
	s, c := newMockStore(t)
	c.EXPECT().
		DoMulti(gomock.Any(), mock.Match("GET", embKeyA), mock.Match("GET", embKeyB), mock.Match("GET", embKeyC)).
		Return([]rueidis.RedisResult{
			mock.Result(mock.RedisBlobString("a")),
			mock.Result(mock.RedisNil()),
			mock.Result(mock.RedisBlobString("c")),
		})

	got, err := s.MGet(context.Background(), []string{embKeyA, embKeyB, embKeyC})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 || string(got[0]) != "a" || got[1] != nil || string(got[2]) != "c" {
		t.Errorf("unexpected values: %q", got)
	}
}

func TestMGet_ErrorNamesKey(t *testing.T) {
	s, c := newMockStore(t)
	c.EXPECT().DoMulti(gomock.Any(), gomock.Any(), gomock.Any()).
		Return([]rueidis.RedisResult{
			mock.Result(mock.RedisBlobString("a")),
			mock.ErrorResult(context.DeadlineExceeded),
		})

	_, err := s.MGet(context.Background(), []string{embKeyA, embKeyB})
	dbErr := asDBError(t, err)
	if dbErr.Op != db.OpMGet || dbErr.Key != embKeyB {
		t.Errorf("unexpected error context: %+v", dbErr)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("cause should be preserved")
	}
}

func TestMGet_NoKeys(t *testing.T) {
	got, err := newStore(nil).MGet(context.Background(), nil)
	if err != nil || got != nil {
		t.Fatalf("expected nil, nil; got %v, %v", got, err)
	}
}
