package sso

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCondition_Evaluate(t *testing.T) {
	doc := decodeFixture(t, extractFixture)

	tests := []struct {
		condition string
		match     bool
	}{
		{`$.email == "a@x.com"`, true},
		{`$.email == "b@x.com"`, false},
		{`$.email != "b@x.com"`, true},
		{`$.id == 99`, true},
		{`$.id > 50 && $.id < 100`, true},
		{`$.score >= 1.5`, true},
		{`$.active`, true},
		{`"ops" in $.groups`, true},
		{`"qa" in $.groups`, false},
		{`$.groups[0] == "dev"`, true},
		{`$.name.first == "A" && $.name.last == "B"`, true},
		{`$.name.first == "Z" || $['odd key'] == "spaced"`, true},
		{`$.email endsWith "@x.com"`, true},
		{`$.email contains "@y.com"`, false},
		{`$.missing == nil`, true},
		{`profile.email == "a@x.com"`, true},
		{`len($.groups) == 2`, true},
		{`$.claims["https://example.com/role"] == "admin"`, true},
		{`"$.email" == "$.email"`, true},
	}

	for _, tt := range tests {
		t.Run(tt.condition, func(t *testing.T) {
			c, err := CompileCondition(tt.condition)
			require.NoError(t, err)

			match, err := c.Evaluate(doc)
			require.NoError(t, err)
			assert.Equal(t, tt.match, match)
			assert.Equal(t, tt.condition, c.String())
		})
	}
}

func TestCompileCondition_Invalid(t *testing.T) {
	invalid := []string{
		`$.email ==`,
		`"unterminated`,
		`$.groups[0 == "dev"`,
		`$.a[x] == 1`,
	}
	for _, source := range invalid {
		_, err := CompileCondition(source)
		assert.Error(t, err, source)
	}
}

func TestCondition_RuntimeError(t *testing.T) {
	c, err := CompileCondition(`$.email > 5`)
	require.NoError(t, err)

	match, err := c.Evaluate(decodeFixture(t, extractFixture))
	assert.Error(t, err)
	assert.False(t, match)
}

func TestCondition_HyphenatedKey(t *testing.T) {
	doc := decodeFixture(t, `{"given-name":"x","count":3}`)

	value, ok := Extract(doc, "$.given-name")
	require.True(t, ok)
	assert.Equal(t, "x", value)

	for _, source := range []string{`$.given-name == "x"`, `$['given-name'] == "x"`, `$.count - 1 == 2`} {
		cond, err := CompileCondition(source)
		require.NoError(t, err, source)
		match, err := cond.Evaluate(doc)
		require.NoError(t, err, source)
		assert.True(t, match, source)
	}
}

func TestRewritePathLiterals(t *testing.T) {
	rewritten, paths, err := rewritePathLiterals(`$.a.b == "$.not" && $['k'] in $.list`)
	require.NoError(t, err)
	assert.Equal(t, `jsonPath("$.a.b") == "$.not" && jsonPath("$['k']") in jsonPath("$.list")`, rewritten)
	assert.Equal(t, []string{"$.a.b", "$['k']", "$.list"}, paths)

	rewritten, paths, err = rewritePathLiterals(`$.given-name == "x" && $.count - 1 > 0`)
	require.NoError(t, err)
	assert.Equal(t, `jsonPath("$.given-name") == "x" && jsonPath("$.count") - 1 > 0`, rewritten)
	assert.Equal(t, []string{"$.given-name", "$.count"}, paths)

	rewritten, paths, err = rewritePathLiterals(`$env != nil`)
	require.NoError(t, err)
	assert.Equal(t, `$env != nil`, rewritten)
	assert.Empty(t, paths)
}
