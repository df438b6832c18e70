package pagination

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"glancesync/pkg/model"
	"glancesync/pkg/traffic"
)

// fakeFetcher 模拟按新到旧返回的后端历史
type fakeFetcher struct {
	total int
	err   error
	calls []string
}

func (f *fakeFetcher) Traffic(_ context.Context, page, pageSize int) (*model.TrafficPage, error) {
	f.calls = append(f.calls, strconv.Itoa(page)+"/"+strconv.Itoa(pageSize))
	if f.err != nil {
		return nil, f.err
	}
	// 第 1 页包含最新的记录，编号越大越新
	newest := f.total - (page-1)*pageSize
	var entries []traffic.Exchange
	for n := newest; n > newest-pageSize && n > 0; n-- {
		entries = append(entries, traffic.Exchange{ID: strconv.Itoa(n), Status: 200})
	}
	return &model.TrafficPage{Entries: entries, Total: f.total}, nil
}

func entryIDs(entries []traffic.Exchange) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

func TestLoadPage(t *testing.T) {
	t.Parallel()

	t.Run("reverses_to_oldest_first", func(t *testing.T) {
		f := &fakeFetcher{total: 237}
		c := New(f, 50, nil)

		res, err := c.LoadPage(context.Background(), 3, 50)
		require.NoError(t, err)
		require.True(t, c.Commit(res))

		require.Len(t, res.Entries, 50)
		assert.Equal(t, "88", res.Entries[0].ID)
		assert.Equal(t, "137", res.Entries[49].ID)
		assert.Equal(t, model.PageWindow{Page: 3, PageSize: 50, Total: 237}, c.Current())
	})

	t.Run("error_keeps_window", func(t *testing.T) {
		f := &fakeFetcher{total: 10}
		c := New(f, 5, nil)
		res, err := c.LoadPage(context.Background(), 2, 5)
		require.NoError(t, err)
		require.True(t, c.Commit(res))

		f.err = errors.New("connection refused")
		_, err = c.LoadPage(context.Background(), 1, 5)
		require.Error(t, err)
		assert.ErrorIs(t, err, f.err)
		assert.Equal(t, model.PageWindow{Page: 2, PageSize: 5, Total: 10}, c.Current())
	})

	t.Run("defaults_invalid_arguments", func(t *testing.T) {
		f := &fakeFetcher{total: 3}
		c := New(f, 20, nil)

		res, err := c.LoadPage(context.Background(), 0, 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"1/20"}, f.calls)
		assert.Equal(t, 1, res.Window.Page)
		assert.Equal(t, []string{"1", "2", "3"}, entryIDs(res.Entries))
	})

	t.Run("stale_response_discarded", func(t *testing.T) {
		f := &fakeFetcher{total: 100}
		c := New(f, 10, nil)

		older, err := c.LoadPage(context.Background(), 2, 10)
		require.NoError(t, err)
		newer, err := c.LoadPage(context.Background(), 4, 10)
		require.NoError(t, err)

		require.True(t, c.Commit(newer))
		assert.False(t, c.Commit(older))
		assert.Equal(t, 4, c.Current().Page)
	})

	t.Run("cancel_invalidates_pending", func(t *testing.T) {
		c := New(&fakeFetcher{total: 5}, 10, nil)
		res, err := c.LoadPage(context.Background(), 1, 10)
		require.NoError(t, err)

		c.Cancel()
		assert.False(t, c.Commit(res))
	})
}

func TestWindowTotals(t *testing.T) {
	t.Parallel()

	c := New(&fakeFetcher{}, 50, nil)
	assert.Equal(t, model.PageWindow{Page: 1, PageSize: 50}, c.Current())
	assert.Equal(t, 1, c.IncrementTotal())
	assert.Equal(t, 2, c.IncrementTotal())

	c.Reset()
	assert.Equal(t, 0, c.Current().Total)

	c.SetDefaultSize(25)
	assert.Equal(t, 25, c.Current().PageSize)
}

func TestPageWindow(t *testing.T) {
	t.Parallel()

	w := model.PageWindow{Page: 1, PageSize: 50, Total: 237}
	assert.True(t, w.LiveTail())
	assert.False(t, w.HasPrev())
	assert.True(t, w.HasNext())
	assert.Equal(t, 5, w.PageCount())

	w.Page = 5
	assert.False(t, w.HasNext())
	assert.True(t, w.HasPrev())

	assert.Equal(t, 1, model.PageWindow{Page: 1, PageSize: 50}.PageCount())
}
