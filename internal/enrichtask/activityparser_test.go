package enrichtask

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegexActivityParser_ParsePosts(t *testing.T) {
	html := `
<article data-id="1"><a href="https://linkedin.com/posts/1">
<span>Excited to announce our Series B.</span></a></article>
<article data-id="2"><a href="https://linkedin.com/posts/2">
<span>Hiring for three new roles.</span></a></article>`

	parser := RegexActivityParser{}
	got, err := parser.ParsePosts(html)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "post", got[0].Kind)
	assert.Contains(t, got[0].Text, "Series B")
	assert.Equal(t, "https://linkedin.com/posts/1", got[0].URL)
}

func TestRegexActivityParser_EmptyInputReturnsNoActivities(t *testing.T) {
	parser := RegexActivityParser{}

	posts, err := parser.ParsePosts("")
	require.NoError(t, err)
	assert.Empty(t, posts)

	comments, err := parser.ParseComments("<div>no articles here</div>")
	require.NoError(t, err)
	assert.Empty(t, comments)
}

func TestRegexActivityParser_ParseCommentsAndReactions(t *testing.T) {
	html := `<article><p>Great point about the market.</p></article>`

	parser := RegexActivityParser{}

	comments, err := parser.ParseComments(html)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "comment", comments[0].Kind)

	reactions, err := parser.ParseReactions(html)
	require.NoError(t, err)
	require.Len(t, reactions, 1)
	assert.Equal(t, "reaction", reactions[0].Kind)
}
