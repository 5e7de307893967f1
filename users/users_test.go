package users

import (
	"errors"
	"os/user"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bwtop/model"
)

func TestLookupCurrentUser(t *testing.T) {
	me, err := user.Current()
	require.NoError(t, err)
	uid, err := strconv.ParseUint(me.Uid, 10, 32)
	require.NoError(t, err)

	r := NewResolver()
	assert.Equal(t, me.Username, r.Lookup(uint32(uid)))
}

func TestLookupFallsBackToUID(t *testing.T) {
	calls := 0
	r := NewResolver()
	r.lookup = func(string) (string, error) {
		calls++
		return "", errors.New("unknown user")
	}

	assert.Equal(t, "4000000000", r.Lookup(4000000000))
	assert.Equal(t, "4000000000", r.Lookup(4000000000))
	assert.Equal(t, "0", r.Lookup(0))
	assert.Equal(t, 2, calls, "misses are cached too")
}

func TestLookupCachesHits(t *testing.T) {
	calls := 0
	r := NewResolver()
	r.lookup = func(id string) (string, error) {
		calls++
		return "user" + id, nil
	}

	assert.Equal(t, "user1000", r.Lookup(1000))
	assert.Equal(t, "user1000", r.Lookup(1000))
	assert.Equal(t, "user0", r.Lookup(0))
	assert.Equal(t, 2, calls)
}

func TestLookupUnknownUID(t *testing.T) {
	r := NewResolver()
	r.lookup = func(string) (string, error) {
		t.Fatal("unknown uid must not hit the user database")
		return "", nil
	}

	assert.Equal(t, Unknown, r.Lookup(model.UnknownUID))
}
