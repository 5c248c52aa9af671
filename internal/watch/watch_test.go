package watch

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLister struct {
	pages [][]Item
	rv    string
	err   error
	calls int
}

func (f *fakeLister) List(_ context.Context, cont string) ([]Item, string, string, error) {
	f.calls++
	if f.err != nil {
		return nil, "", "", f.err
	}
	idx := 0
	if cont != "" {
		idx = int(cont[0] - '0')
	}
	if idx >= len(f.pages) {
		return nil, f.rv, "", nil
	}
	next := ""
	if idx+1 < len(f.pages) {
		next = string(rune('0' + idx + 1))
	}
	return f.pages[idx], f.rv, next, nil
}

type fakeOpener struct {
	lines []string
	err   error
}

func (f *fakeOpener) OpenWatch(_ context.Context, _ string) (io.ReadCloser, error) {
	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(strings.NewReader(strings.Join(f.lines, "\n"))), nil
}

func jsonDecode(line []byte) (string, Item, int, error) {
	s := string(line)
	switch {
	case strings.HasPrefix(s, "ADDED:"):
		return PhaseAdded, Item{UID: s[6:], ResourceVersion: "2"}, 0, nil
	case strings.HasPrefix(s, "MODIFIED:"):
		return PhaseModified, Item{UID: s[9:], ResourceVersion: "3"}, 0, nil
	case strings.HasPrefix(s, "DELETED:"):
		return PhaseDeleted, Item{UID: s[8:]}, 0, nil
	case strings.HasPrefix(s, "ERROR:410"):
		return "ERROR", Item{}, 410, nil
	case strings.HasPrefix(s, "BOOKMARK:"):
		return "BOOKMARK", Item{ResourceVersion: s[9:]}, 0, nil
	}
	return "", Item{}, 0, errors.New("bad line")
}

func TestListAndReconcile_FiresAddedModifiedDeleted(t *testing.T) {
	lister := &fakeLister{pages: [][]Item{{{UID: "a", ResourceVersion: "1"}, {UID: "b", ResourceVersion: "1"}}}, rv: "1"}
	w := New(Config{}, lister, &fakeOpener{}, jsonDecode, nil)

	var got []string
	w.callback = func(item Item, phase string) error {
		got = append(got, phase+":"+item.UID)
		return nil
	}

	require.NoError(t, w.listAndReconcile(context.Background()))
	assert.ElementsMatch(t, []string{"ADDED:a", "ADDED:b"}, got)
	assert.Equal(t, int64(2), w.CacheSize())

	got = nil
	lister.pages = [][]Item{{{UID: "a", ResourceVersion: "2"}}}
	require.NoError(t, w.listAndReconcile(context.Background()))
	assert.Contains(t, got, "MODIFIED:a")
	assert.Contains(t, got, "DELETED:b")
	assert.Equal(t, int64(1), w.CacheSize())
}

func TestListAndReconcile_Paginates(t *testing.T) {
	lister := &fakeLister{
		pages: [][]Item{
			{{UID: "a", ResourceVersion: "1"}},
			{{UID: "b", ResourceVersion: "1"}},
		},
		rv: "1",
	}
	w := New(Config{}, lister, &fakeOpener{}, jsonDecode, nil)
	require.NoError(t, w.listAndReconcile(context.Background()))
	assert.Equal(t, int64(2), w.CacheSize())
	assert.Equal(t, 2, lister.calls)
}

func TestApplyStreamEvent_410PurgesResourceVersion(t *testing.T) {
	w := New(Config{}, &fakeLister{}, &fakeOpener{}, jsonDecode, nil)
	w.resourceVersion = "99"

	purge := w.applyStreamEvent(lineResult{eventType: "ERROR", statusCode: 410})
	assert.True(t, purge)
	assert.Empty(t, w.resourceVersion)
}

func TestApplyStreamEvent_BookmarkAdvancesResourceVersionOnly(t *testing.T) {
	w := New(Config{}, &fakeLister{}, &fakeOpener{}, jsonDecode, nil)
	called := false
	w.callback = func(Item, string) error { called = true; return nil }

	purge := w.applyStreamEvent(lineResult{eventType: "BOOKMARK", item: Item{ResourceVersion: "42"}})
	assert.False(t, purge)
	assert.Equal(t, "42", w.resourceVersion)
	assert.False(t, called, "bookmark must not invoke the user callback")
}

func TestApplyStreamEvent_CacheMutationSurvivesCallbackError(t *testing.T) {
	w := New(Config{}, &fakeLister{}, &fakeOpener{}, jsonDecode, nil)
	w.callback = func(Item, string) error { return errors.New("boom") }

	w.applyStreamEvent(lineResult{eventType: PhaseAdded, item: Item{UID: "a", ResourceVersion: "1"}})
	_, ok := w.cache["a"]
	assert.True(t, ok, "a callback error must not roll back the cache write")
}

func TestGiveUp_ClosesAfterResyncFailureMax(t *testing.T) {
	max := 0
	w := New(Config{ResyncFailureMax: &max, ResyncDelaySec: 60, RelistIntervalSec: 60, LastSeenLimitSeconds: 60},
		&fakeLister{err: errors.New("list failed")}, &fakeOpener{}, jsonDecode, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	w.Start(ctx)

	select {
	case <-w.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not give up in time")
	}
	assert.GreaterOrEqual(t, w.FailureCount(), int64(1))
}

func TestCompareResourceVersions(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want int
	}{
		{name: "newer", a: "10", b: "2", want: 1},
		{name: "older", a: "2", b: "10", want: -1},
		{name: "equal", a: "5", b: "5", want: 0},
		{name: "non numeric equal", a: "x", b: "x", want: 0},
		{name: "non numeric differ treated as newer", a: "x", b: "y", want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, compareResourceVersions(tt.a, tt.b))
		})
	}
}

func TestBackoffDelay_CapsAtThirtySeconds(t *testing.T) {
	assert.Equal(t, 500*time.Millisecond, backoffDelay(0))
	assert.Equal(t, 30*time.Second, backoffDelay(1000))
}
