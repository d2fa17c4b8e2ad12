package tributary

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/chatflow/pkg/flow"
	"github.com/rendis/chatflow/pkg/schema"
)

func noop(_ context.Context, _ *flow.Context, _ flow.SpeakFunc, _ flow.ListenFunc) error {
	return nil
}

func TestRegistry_RegisterAndResolve(t *testing.T) {
	reg := NewRegistry()
	double := func(_ context.Context, fc *flow.Context, _ flow.SpeakFunc, _ flow.ListenFunc) error {
		fc.SetParameter(fc.Parameter().(int64) * 2)
		return nil
	}
	require.NoError(t, reg.Register("double", double))

	fn, err := reg.Resolve("double")
	require.NoError(t, err)

	fc := flow.NewContext("origin", int64(5))
	require.NoError(t, fn(context.Background(), fc, nil, nil))
	assert.Equal(t, int64(10), fc.Parameter())
}

func TestRegistry_LastRegistrationWins(t *testing.T) {
	reg := NewRegistry()
	first := func(_ context.Context, fc *flow.Context, _ flow.SpeakFunc, _ flow.ListenFunc) error {
		fc.SetParameter("first")
		return nil
	}
	second := func(_ context.Context, fc *flow.Context, _ flow.SpeakFunc, _ flow.ListenFunc) error {
		fc.SetParameter("second")
		return nil
	}
	require.NoError(t, reg.Register("t", first))
	require.NoError(t, reg.Register("t", second))
	assert.Equal(t, 1, reg.Count())

	fn, err := reg.Resolve("t")
	require.NoError(t, err)
	fc := flow.NewContext("origin", nil)
	require.NoError(t, fn(context.Background(), fc, nil, nil))
	assert.Equal(t, "second", fc.Parameter())
}

func TestRegistry_RegisterInvalid(t *testing.T) {
	reg := NewRegistry()

	err := reg.Register("", noop)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	err = reg.Register("x", nil)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
	assert.Zero(t, reg.Count())
}

func TestRegistry_MustRegister(t *testing.T) {
	reg := NewRegistry()
	assert.NotPanics(t, func() { reg.MustRegister("ok", noop) })
	assert.Panics(t, func() { reg.MustRegister("", noop) })
}

func TestRegistry_ResolveUnknown(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister("double", noop)
	reg.MustRegister("to_number", noop)

	_, err := reg.Resolve("dubble")
	require.Error(t, err)

	var cfErr *schema.ChatflowError
	require.True(t, errors.As(err, &cfErr))
	assert.Equal(t, schema.ErrCodeUnknownTributary, cfErr.Code)
	assert.Equal(t, "dubble", cfErr.Details["name"])
	assert.Equal(t, "double", cfErr.Details["suggestion"])
	assert.Contains(t, cfErr.Message, `did you mean "double"?`)
}

func TestRegistry_ResolveUnknownWithoutSuggestion(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister("double", noop)

	_, err := reg.Resolve("completely_unrelated")
	var cfErr *schema.ChatflowError
	require.True(t, errors.As(err, &cfErr))
	assert.NotContains(t, cfErr.Details, "suggestion")
}

func TestRegistry_HasNamesCount(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister("b", noop)
	reg.MustRegister("a", noop)

	assert.True(t, reg.Has("a"))
	assert.False(t, reg.Has("c"))
	assert.Equal(t, []string{"a", "b"}, reg.Names())
	assert.Equal(t, 2, reg.Count())
}

func TestRegistry_ConcurrentResolve(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister("t", noop)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := reg.Resolve("t")
			assert.NoError(t, err)
			assert.True(t, reg.Has("t"))
		}()
	}
	wg.Wait()
}

func TestSuggest(t *testing.T) {
	names := []string{"greet", "goodbye", "origin"}

	assert.Equal(t, "greet", Suggest("gret", names))
	assert.Equal(t, "origin", Suggest("orign", names))
	assert.Equal(t, "goodbye", Suggest("gdby", names))
	assert.Empty(t, Suggest("zzzzzzzz", names))
	assert.Empty(t, Suggest("", names))
	assert.Empty(t, Suggest("x", nil))
}
