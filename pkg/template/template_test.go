package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_Variables(t *testing.T) {
	renderer := NewTextRenderer()

	result, err := renderer.Render("Hello {{.name}} from {{.company}}", map[string]string{
		"name":    "Ada",
		"company": "Analytical Engines",
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello Ada from Analytical Engines", result)
}

func TestRender_MissingVariableIsEmpty(t *testing.T) {
	renderer := NewTextRenderer()

	result, err := renderer.Render("Hello {{.name}}!", map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, "Hello !", result)
}

func TestRender_Funcs(t *testing.T) {
	renderer := NewTextRenderer()

	result, err := renderer.Render(`{{upper .name}} / {{lower .company}}`, map[string]string{
		"name":    "ada",
		"company": "ACME",
	})
	require.NoError(t, err)
	assert.Equal(t, "ADA / acme", result)
}

func TestRender_ParseError(t *testing.T) {
	renderer := NewTextRenderer()

	_, err := renderer.Render("Hello {{.name", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse template")
}

func TestRender_NoTemplating(t *testing.T) {
	renderer := NewTextRenderer()

	result, err := renderer.Render("Plain text body", map[string]string{"name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "Plain text body", result)
}
