package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nsa-yoda/ReplyXL/config"
	"github.com/nsa-yoda/ReplyXL/imagize"
	"github.com/nsa-yoda/ReplyXL/testutil"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// helper to execute command strings
func execute(t *testing.T, root *cobra.Command, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	_, err := root.ExecuteC()
	return buf.String(), err
}

type serveCall struct {
	config    string
	port      *int
	processes int
}

func captureServe(t *testing.T) *serveCall {
	t.Helper()
	got := &serveCall{}
	serveFn = func(_ context.Context, configPath string, portOverride *int, processes int) error {
		got.config, got.port, got.processes = configPath, portOverride, processes
		return nil
	}
	t.Cleanup(func() { serveFn = Serve })
	return got
}

func TestRoot_Defaults(t *testing.T) {
	t.Setenv("IMAGIZE_CONFIG", "")
	got := captureServe(t)

	_, err := execute(t, NewRoot())
	require.NoError(t, err)
	assert.Empty(t, got.config)
	assert.Nil(t, got.port, "an unset --port must not override the config file")
	assert.Equal(t, 1, got.processes)
}

func TestRoot_Flags(t *testing.T) {
	got := captureServe(t)

	_, err := execute(t, NewRoot(), "--config", "imagize.ini", "--port", "9100", "--processes", "4")
	require.NoError(t, err)
	assert.Equal(t, "imagize.ini", got.config)
	require.NotNil(t, got.port)
	assert.Equal(t, 9100, *got.port)
	assert.Equal(t, 4, got.processes)
}

func TestRoot_ConfigFromEnv(t *testing.T) {
	t.Setenv("IMAGIZE_CONFIG", "/etc/imagize.ini")
	got := captureServe(t)

	_, err := execute(t, NewRoot())
	require.NoError(t, err)
	assert.Equal(t, "/etc/imagize.ini", got.config)
}

func TestRoot_RejectsArgs(t *testing.T) {
	captureServe(t)
	_, err := execute(t, NewRoot(), "unexpected")
	assert.Error(t, err)
}

func TestGenerate_ArgAndStdin(t *testing.T) {
	var gotText, gotConfig string
	generateFn = func(_ context.Context, configPath, text string, out io.Writer) error {
		gotConfig, gotText = configPath, text
		_, err := io.WriteString(out, "prompt\n")
		return err
	}
	defer func() { generateFn = Generate }()

	out, err := execute(t, NewRoot(), "generate", "--config", "a.ini", "the old mill")
	require.NoError(t, err)
	assert.Equal(t, "the old mill", gotText)
	assert.Equal(t, "a.ini", gotConfig)
	assert.Equal(t, "prompt\n", out)

	root := NewRoot()
	root.SetIn(strings.NewReader("from stdin\n"))
	_, err = execute(t, root, "generate")
	require.NoError(t, err)
	assert.Equal(t, "from stdin\n", gotText)
}

func TestServe_ConfigLoadFailure(t *testing.T) {
	err := Serve(context.Background(), filepath.Join(t.TempDir(), "missing.ini"), nil, 1)

	var loadErr *config.LoadError
	assert.ErrorAs(t, err, &loadErr)
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func writeSite(t *testing.T, environment string) string {
	t.Helper()

	dir := t.TempDir()
	for _, sub := range []string{"static", "templates", "root"} {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, sub), 0o755))
	}
	ini := strings.Join([]string{
		"[config]",
		"environment = " + environment,
		"generator = " + config.GeneratorAnthropic,
		"static_dir = " + filepath.Join(dir, "static"),
		"template_dir = " + filepath.Join(dir, "templates"),
		"root_files_dir = " + filepath.Join(dir, "root"),
	}, "\n")
	path := filepath.Join(dir, "imagize.ini")
	require.NoError(t, os.WriteFile(path, []byte(ini), 0o644))
	return path
}

func TestServe_RestrictedNeedsNoBackend(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	os.Unsetenv("ANTHROPIC_API_KEY")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	port := freePort(t)
	assert.NoError(t, Serve(ctx, writeSite(t, "STAGING"), &port, 2))
}

func TestServe_MissingAPIKeyStillServes(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	os.Unsetenv("ANTHROPIC_API_KEY")

	path := writeSite(t, "DEVELOPMENT")
	port := freePort(t)
	base := fmt.Sprintf("http://127.0.0.1:%d", port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- Serve(ctx, path, &port, 1) }()

	client := &http.Client{Timeout: 5 * time.Second}
	require.Eventually(t, func() bool {
		resp, err := client.Get(base + "/statuscheck")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond)

	resp, err := client.Post(base+"/v1/imagize?text=a+lighthouse", "text/plain", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}

type chunkedGenerator struct {
	chunks []string
}

func (g chunkedGenerator) Generate(context.Context, string) (imagize.Result, error) {
	return imagize.Result{Prompt: strings.Join(g.chunks, "")}, nil
}

func (g chunkedGenerator) Stream(_ context.Context, _ string, onChunk func(string) error) (imagize.Result, error) {
	for _, c := range g.chunks {
		if err := onChunk(c); err != nil {
			return imagize.Result{}, err
		}
	}
	return g.Generate(context.Background(), "")
}

type plainGenerator struct{}

func (plainGenerator) Generate(context.Context, string) (imagize.Result, error) {
	return imagize.Result{Prompt: "a mill at dusk"}, nil
}

func TestGenerate_StreamsWhenSupported(t *testing.T) {
	defer func() { provideFn = imagize.Provide }()
	path := writeSite(t, "DEVELOPMENT")

	provideFn = func(config.Settings) (imagize.Generator, error) {
		return chunkedGenerator{chunks: []string{"a mill", " at dusk"}}, nil
	}
	var out bytes.Buffer
	require.NoError(t, Generate(context.Background(), path, "  the old mill  ", &out))
	assert.Equal(t, "a mill at dusk\n", out.String())

	provideFn = func(config.Settings) (imagize.Generator, error) { return plainGenerator{}, nil }
	out.Reset()
	require.NoError(t, Generate(context.Background(), path, "the old mill", &out))
	assert.Equal(t, "a mill at dusk\n", out.String())
}

func TestRun_StartupFailureIsFatal(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.ini")

	testutil.WithEnv("IMAGIZE_CONFIG", missing, func(mock *testutil.MockLogger) {
		run([]string{})
		assert.True(t, mock.IsFatalCalled)
		assert.Equal(t, "imagize failed", mock.FatalMsg)
	})
}
