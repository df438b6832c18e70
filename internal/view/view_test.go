package view

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"glancesync/internal/store"
	"glancesync/pkg/model"
	"glancesync/pkg/traffic"
)

func sample() []traffic.Exchange {
	return []traffic.Exchange{
		{ID: "1", Method: "GET", URL: "https://api.example.com/users", Status: 200},
		{ID: "2", Method: "POST", URL: "https://api.example.com/users", Status: 201},
		{ID: "3", Method: "GET", URL: "https://cdn.example.com/app.js", Status: 304},
		{ID: "4", Method: "DELETE", URL: "https://api.example.com/users/7", Status: 404},
	}
}

func ids(entries []traffic.Exchange) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

func TestApply(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		filter model.Filter
		want   []string
	}{
		{"empty_filter_newest_first", model.Filter{}, []string{"4", "3", "2", "1"}},
		{"text_matches_url_case_insensitive", model.Filter{Text: "CDN"}, []string{"3"}},
		{"text_matches_method", model.Filter{Text: "post"}, []string{"2"}},
		{"text_matches_status", model.Filter{Text: "404"}, []string{"4"}},
		{"methods", model.Filter{Methods: []string{"get", "DELETE"}}, []string{"4", "3", "1"}},
		{"glob_suffix", model.Filter{URLPattern: "*.js"}, []string{"3"}},
		{"glob_contains", model.Filter{URLPattern: "*users*"}, []string{"4", "2", "1"}},
		{"prefix", model.Filter{URLPattern: "https://api.", URLMode: ModePrefix}, []string{"4", "2", "1"}},
		{"exact", model.Filter{URLPattern: "https://api.example.com/users", URLMode: ModeExact}, []string{"2", "1"}},
		{"regex", model.Filter{URLPattern: `/users/\d+$`, URLMode: ModeRegex}, []string{"4"}},
		{"invalid_regex_matches_nothing", model.Filter{URLPattern: `(`, URLMode: ModeRegex}, []string{}},
		{"combined", model.Filter{Text: "users", Methods: []string{"GET"}}, []string{"1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := sample()
			got := Apply(in, tc.filter)
			assert.Equal(t, tc.want, ids(got))
			assert.Equal(t, []string{"1", "2", "3", "4"}, ids(in))
		})
	}
}

func TestGlob(t *testing.T) {
	t.Parallel()

	cases := []struct {
		s, pattern string
		want       bool
	}{
		{"https://api.example.com/users", "*", true},
		{"https://api.example.com/users", "https://api.example.com/users", true},
		{"https://api.example.com/v2/users", "*/api*/users", true},
		{"https://x.test/api/v2/users", "*/api/*/users", true},
		{"https://x.test/api/users", "*/api/*/users", false},
		{"https://x.test/api/v2/orders", "*/api/*/users", false},
		{"ab", "a*b", true},
		{"axxb", "a*b", true},
		{"axxbc", "a*b", false},
		{"a", "a*a", false},
		{"aba", "a*a", true},
		{"https://cdn.test/app.js", "https://*.test/*.js", true},
		{"https://cdn.test/app.css", "https://*.test/*.js", false},
		{"https://cdn.test/app.js", "*cdn**js", true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, glob(tc.s, tc.pattern), "%s ~ %s", tc.s, tc.pattern)
	}
}

func TestProjectionCache(t *testing.T) {
	t.Parallel()

	s := store.New()
	for _, ex := range sample() {
		s.Upsert(ex)
	}
	p := NewProjection(s)

	require.Equal(t, []string{"4", "3", "2", "1"}, ids(p.Entries()))

	p.SetFilter(model.Filter{Methods: []string{"GET"}})
	assert.Equal(t, []string{"3", "1"}, ids(p.Entries()))
	assert.Equal(t, 2, p.Count())

	s.Upsert(traffic.Exchange{ID: "5", Method: "GET", URL: "https://api.example.com/health", Status: 200})
	assert.Equal(t, []string{"5", "3", "1"}, ids(p.Entries()))

	// 返回值为副本
	got := p.Entries()
	got[0].ID = "mutated"
	got[0].RequestHeaders.Set("X-A", "mutated")
	assert.Equal(t, "5", p.Entries()[0].ID)
	assert.False(t, p.Entries()[0].RequestHeaders.Has("X-A"))
	assert.Equal(t, []string{"GET"}, p.Filter().Methods)

	f := p.Filter()
	f.Methods[0] = "DELETE"
	assert.Equal(t, []string{"GET"}, p.Filter().Methods)
	assert.Equal(t, 3, p.Count())
}
