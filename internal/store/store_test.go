package store

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"glancesync/pkg/traffic"
)

func ex(id string) traffic.Exchange {
	return traffic.Exchange{ID: id, Method: "GET", URL: "http://example.test/" + id, Status: 200}
}

func ids(entries []traffic.Exchange) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

func TestStore(t *testing.T) {
	t.Parallel()

	t.Run("upsert_appends_in_arrival_order", func(t *testing.T) {
		s := New()
		assert.True(t, s.Upsert(ex("a")))
		assert.True(t, s.Upsert(ex("b")))
		assert.True(t, s.Upsert(ex("c")))

		assert.Equal(t, []string{"a", "b", "c"}, ids(s.All()))
		assert.Equal(t, 3, s.Len())
	})

	t.Run("upsert_replaces_in_place", func(t *testing.T) {
		s := New()
		s.Upsert(ex("a"))
		s.Upsert(ex("b"))
		s.Upsert(ex("c"))

		updated := ex("b")
		updated.Status = 503
		assert.False(t, s.Upsert(updated))

		all := s.All()
		assert.Equal(t, []string{"a", "b", "c"}, ids(all))
		assert.Equal(t, 503, all[1].Status)
	})

	t.Run("repeated_upsert_is_idempotent", func(t *testing.T) {
		s := New()
		for i := 0; i < 5; i++ {
			s.Upsert(ex("same"))
		}
		require.Equal(t, 1, s.Len())
		got, ok := s.Get("same")
		require.True(t, ok)
		assert.Equal(t, ex("same"), got)
	})

	t.Run("evict_oldest", func(t *testing.T) {
		s := New()
		for i := 1; i <= 5; i++ {
			s.Upsert(ex(strconv.Itoa(i)))
		}

		evicted := s.EvictOldest(2)
		assert.Equal(t, []string{"1", "2"}, ids(evicted))
		assert.Equal(t, []string{"3", "4", "5"}, ids(s.All()))
		assert.False(t, s.Has("1"))
	})

	t.Run("evict_more_than_len", func(t *testing.T) {
		s := New()
		s.Upsert(ex("a"))

		evicted := s.EvictOldest(10)
		assert.Len(t, evicted, 1)
		assert.Equal(t, 0, s.Len())
	})

	t.Run("evict_zero_keeps_version", func(t *testing.T) {
		s := New()
		s.Upsert(ex("a"))
		v := s.Version()

		assert.Nil(t, s.EvictOldest(0))
		assert.Equal(t, v, s.Version())
	})

	t.Run("replace_collapses_duplicates", func(t *testing.T) {
		s := New()
		s.Upsert(ex("old"))

		second := ex("x")
		second.Status = 404
		s.Replace([]traffic.Exchange{ex("x"), ex("y"), second})

		all := s.All()
		assert.Equal(t, []string{"x", "y"}, ids(all))
		assert.Equal(t, 404, all[0].Status)
		assert.False(t, s.Has("old"))
	})

	t.Run("version_increments_on_mutation", func(t *testing.T) {
		s := New()
		v0 := s.Version()
		s.Upsert(ex("a"))
		v1 := s.Version()
		s.Upsert(ex("a"))
		v2 := s.Version()
		s.Clear()
		v3 := s.Version()

		assert.Less(t, v0, v1)
		assert.Less(t, v1, v2)
		assert.Less(t, v2, v3)
	})

	t.Run("all_returns_copy", func(t *testing.T) {
		s := New()
		s.Upsert(ex("a"))

		first := s.All()
		first[0].ID = "mutated"

		assert.Equal(t, []string{"a"}, ids(s.All()))
	})

	t.Run("returned_headers_are_detached", func(t *testing.T) {
		s := New()
		in := ex("a")
		in.RequestHeaders = traffic.NewHeader()
		in.RequestHeaders.Add("X-A", "1")
		s.Upsert(in)
		version := s.Version()

		// 调用方在写入后修改自己的副本
		in.RequestHeaders.Set("X-A", "caller")

		got := s.All()
		got[0].RequestHeaders.Set("X-A", "from-all")
		got[0].RequestHeaders.Add("X-B", "2")

		one, ok := s.Get("a")
		require.True(t, ok)
		one.RequestHeaders.Set("X-A", "from-get")

		stored, _ := s.Get("a")
		assert.Equal(t, "1", stored.RequestHeaders.Get("X-A"))
		assert.False(t, stored.RequestHeaders.Has("X-B"))
		assert.Equal(t, "1", s.All()[0].RequestHeaders.Get("X-A"))
		assert.Equal(t, version, s.Version())
	})

	t.Run("replace_detaches_input", func(t *testing.T) {
		s := New()
		in := ex("a")
		in.ResponseHeaders.Add("Content-Type", "text/plain")
		s.Replace([]traffic.Exchange{in})

		in.ResponseHeaders.Set("Content-Type", "application/json")

		stored, _ := s.Get("a")
		assert.Equal(t, "text/plain", stored.ResponseHeaders.Get("Content-Type"))
	})

	t.Run("subscribe_receives_latest_version", func(t *testing.T) {
		s := New()
		ch, cancel := s.Subscribe()
		defer cancel()

		s.Upsert(ex("a"))
		s.Upsert(ex("b"))

		select {
		case v := <-ch:
			assert.Equal(t, s.Version(), v)
		default:
			t.Fatal("expected version notification")
		}
	})

	t.Run("unsubscribe_closes_channel", func(t *testing.T) {
		s := New()
		ch, cancel := s.Subscribe()
		cancel()
		cancel()

		_, ok := <-ch
		assert.False(t, ok)
		s.Upsert(ex("a"))
	})
}
