package redis

import (
	"errors"
	"testing"

	"github.com/redis/rueidis/mock"
	"go.uber.org/mock/gomock"

	"github.com/kailas-cloud/cvcontext/internal/db"
)

func newMockStore(t *testing.T) (*Store, *mock.Client) {
	t.Helper()
	c := mock.NewClient(gomock.NewController(t))
	return newStore(c), c
}

// command matches any invocation of the named command.
func command(name string) gomock.Matcher {
	return mock.MatchFn(func(cmd []string) bool {
		return len(cmd) > 0 && cmd[0] == name
	})
}

func asDBError(t *testing.T, err error) *db.Error {
	t.Helper()
	var dbErr *db.Error
	if !errors.As(err, &dbErr) {
		t.Fatalf("expected *db.Error, got %T: %v", err, err)
	}
	return dbErr
}
