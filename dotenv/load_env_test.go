package dotenv

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadEnvFromString(t *testing.T) {
	t.Setenv("IMAGIZE_ENVIRONMENT", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OLLAMA_HOST", "")

	content := `
# comment
IMAGIZE_ENVIRONMENT=STAGING
export ANTHROPIC_API_KEY = "sk=with=equals"
OLLAMA_HOST=http://localhost:11434
not-a-pair
`
	err := LoadEnvFromString(content)
	assert.NoError(t, err)

	assert.Equal(t, "STAGING", os.Getenv("IMAGIZE_ENVIRONMENT"))
	assert.Equal(t, "sk=with=equals", os.Getenv("ANTHROPIC_API_KEY"))
	assert.Equal(t, "http://localhost:11434", os.Getenv("OLLAMA_HOST"))
}

func TestNoEnvFile(t *testing.T) {
	orig, _ := os.Getwd()
	t.Cleanup(func() { _ = os.Chdir(orig) })
	_ = os.Chdir(t.TempDir())

	assert.NoError(t, LoadEnv())
}

func TestLoadEnv_MissingNamedFileFails(t *testing.T) {
	err := LoadEnv(filepath.Join(t.TempDir(), "nope.env"))
	assert.Error(t, err)
}

func TestLoadEnv_ShouldPickUpEnvFromCWD(t *testing.T) {
	t.Setenv("IMAGIZE_PORT", "")

	orig, _ := os.Getwd()
	t.Cleanup(func() { _ = os.Chdir(orig) })
	_ = os.Chdir(t.TempDir())

	err := os.WriteFile(".env", []byte("IMAGIZE_PORT=9100\n"), 0644)
	assert.NoError(t, err)

	assert.NoError(t, LoadEnv())
	assert.Equal(t, "9100", os.Getenv("IMAGIZE_PORT"))
}
