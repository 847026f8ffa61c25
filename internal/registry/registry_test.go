package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat2sql-go/internal/pipeline"
)

type fakeHandle struct {
	calls int
	tag   string
}

func (f *fakeHandle) Run(ctx context.Context, state *pipeline.State) {
	f.calls++
	state.AppendHistory(f.tag, "success", "", 0, 0)
}

func TestRegisterGetInvoke(t *testing.T) {
	r := New()
	h := &fakeHandle{tag: "h1"}
	r.Register("split", KindSplitQuery, h, nil)

	d, ok := r.Get("split")
	require.True(t, ok)
	assert.Equal(t, KindSplitQuery, d.Kind)

	state := pipeline.New("q")
	ok = r.Invoke(context.Background(), "split", state)
	require.True(t, ok)
	assert.Equal(t, 1, h.calls)
	require.Len(t, state.History, 1)
	assert.Equal(t, "h1", state.History[0].Stage)
}

func TestInvokeUnknownNameReturnsFalse(t *testing.T) {
	r := New()
	ok := r.Invoke(context.Background(), "missing", pipeline.New("q"))
	assert.False(t, ok)
}

func TestReplaceOverwritesEntry(t *testing.T) {
	r := New()
	first := &fakeHandle{tag: "first"}
	second := &fakeHandle{tag: "second"}
	r.Register("gen", KindGenerateSQL, first, nil)
	r.Replace("gen", KindGenerateSQL, second, nil)

	state := pipeline.New("q")
	r.Invoke(context.Background(), "gen", state)

	assert.Equal(t, 0, first.calls)
	assert.Equal(t, 1, second.calls)
}

// Invariant 9: register; remove; register yields a descriptor whose
// invoke behaves as a fresh instance (its own call counter starts at
// zero, unaffected by the removed entry's history).
func TestRegisterRemoveRegisterIsFreshInstance(t *testing.T) {
	r := New()
	first := &fakeHandle{tag: "first"}
	r.Register("fetch", KindFetchData, first, nil)
	state := pipeline.New("q")
	r.Invoke(context.Background(), "fetch", state)
	assert.Equal(t, 1, first.calls)

	r.Remove("fetch")
	_, ok := r.Get("fetch")
	assert.False(t, ok)

	second := &fakeHandle{tag: "second"}
	r.Register("fetch", KindFetchData, second, nil)

	d, ok := r.Get("fetch")
	require.True(t, ok)
	assert.Same(t, second, d.Handle)
	assert.Equal(t, 0, second.calls)
}

func TestListAndClear(t *testing.T) {
	r := New()
	r.Register("a", KindCustom, &fakeHandle{}, nil)
	r.Register("b", KindCustom, &fakeHandle{}, nil)

	names := r.List()
	assert.ElementsMatch(t, []string{"a", "b"}, names)

	r.Clear()
	assert.Empty(t, r.List())
}
