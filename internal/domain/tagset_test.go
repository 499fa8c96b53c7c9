package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTagSetKeepsInsertionOrderWithoutDuplicates(t *testing.T) {
	t.Parallel()

	var tags TagSet
	assert.True(t, tags.Add("security"))
	assert.True(t, tags.Add(" AI-ML "))
	assert.False(t, tags.Add("ai-ml"))
	assert.False(t, tags.Add(""))
	assert.True(t, tags.Add("data"))

	assert.Equal(t, []string{"security", "ai-ml", "data"}, tags.Names())
	assert.Equal(t, 3, tags.Len())
	assert.True(t, tags.Contains("AI-ML"))
	assert.Equal(t, []string{"security", "ai-ml"}, tags.First(2))
	assert.Equal(t, []string{"security", "ai-ml", "data"}, tags.First(10))
}

func TestTagSetNamesIsACopy(t *testing.T) {
	t.Parallel()

	tags := NewTagSet("a", "b")
	names := tags.Names()
	names[0] = "mutated"

	assert.Equal(t, []string{"a", "b"}, tags.Names())
}

func TestTagSetCloneIsIndependent(t *testing.T) {
	t.Parallel()

	tags := NewTagSet("a")
	clone := tags.Clone()
	clone.Add("b")

	assert.Equal(t, []string{"a"}, tags.Names())
	assert.Equal(t, []string{"a", "b"}, clone.Names())
	assert.Equal(t, TagSet{}, TagSet{}.Clone())
}

func TestTagSetJSON(t *testing.T) {
	t.Parallel()

	raw, err := json.Marshal(NewTagSet("x", "y"))
	require.NoError(t, err)
	assert.JSONEq(t, `["x","y"]`, string(raw))

	empty, err := json.Marshal(TagSet{})
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(empty))

	var decoded TagSet
	require.NoError(t, json.Unmarshal([]byte(`["b","a","B"]`), &decoded))
	assert.Equal(t, []string{"b", "a"}, decoded.Names())
}
