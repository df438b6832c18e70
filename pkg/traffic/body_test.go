package traffic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONBodyHelpers(t *testing.T) {
	body := `{"user":{"name":"ann","roles":["a","b"]}}`

	t.Run("read", func(t *testing.T) {
		v, ok := JSONField(body, "user.name")
		assert.True(t, ok)
		assert.Equal(t, "ann", v)

		_, ok = JSONField(body, "user.age")
		assert.False(t, ok)

		_, ok = JSONField("plain text", "user")
		assert.False(t, ok)
	})

	t.Run("set", func(t *testing.T) {
		out, err := SetJSONField(body, "user.name", "bob")
		require.NoError(t, err)
		assert.JSONEq(t, `{"user":{"name":"bob","roles":["a","b"]}}`, out)

		out, err = SetJSONField("", "a.b", 1)
		require.NoError(t, err)
		assert.JSONEq(t, `{"a":{"b":1}}`, out)

		_, err = SetJSONField("{broken", "a", 1)
		assert.ErrorIs(t, err, ErrNotJSON)
	})

	t.Run("delete", func(t *testing.T) {
		out, err := DeleteJSONField(body, "user.roles")
		require.NoError(t, err)
		assert.JSONEq(t, `{"user":{"name":"ann"}}`, out)

		_, err = DeleteJSONField("", "a")
		assert.ErrorIs(t, err, ErrNotJSON)
	})

	t.Run("pretty", func(t *testing.T) {
		assert.Equal(t, "plain", PrettyJSON("plain"))
		assert.Contains(t, PrettyJSON(`{"a":1}`), "\n  \"a\": 1")
	})
}

func TestRequestResponseSetJSONField(t *testing.T) {
	req := NewRequest()
	req.Body = `{"q":"x"}`
	require.NoError(t, req.SetJSONField("q", "y"))
	assert.JSONEq(t, `{"q":"y"}`, req.Body)

	res := NewResponse()
	res.Body = "<html>"
	assert.ErrorIs(t, res.SetJSONField("a", 1), ErrNotJSON)
	assert.Equal(t, "<html>", res.Body)
}
