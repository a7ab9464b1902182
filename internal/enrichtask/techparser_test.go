package enrichtask

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegexTechParser_DetectsKnownSignatures(t *testing.T) {
	profile := `<html><head><meta name="generator" content="WordPress 6.4"/>
	<script src="https://cdn.shopify.com/s/files/theme.js"></script>
	<script src="https://www.googletagmanager.com/gtag/js"></script>
	</head><body>hello</body></html>`

	parser := RegexTechParser{}
	got, err := parser.ParseTechStack(context.Background(), profile)
	require.NoError(t, err)

	assert.Contains(t, got, "WordPress")
	assert.Contains(t, got, "Shopify")
}

func TestRegexTechParser_NoSignaturesFound(t *testing.T) {
	parser := RegexTechParser{}
	got, err := parser.ParseTechStack(context.Background(), "<html><body>plain page</body></html>")
	require.NoError(t, err)
	assert.Empty(t, got)
}
