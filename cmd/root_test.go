package cmd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/tab-harvester/internal/config"
	"github.com/JakeFAU/tab-harvester/internal/storage/sqlite"
)

type fakeRunner struct {
	ran bool
	err error
}

func (f *fakeRunner) Run(context.Context) error {
	f.ran = true
	return f.err
}

func stubApp(t *testing.T, runner *fakeRunner, buildErr error) *config.Config {
	t.Helper()
	var captured config.Config
	orig := newApp
	newApp = func(_ context.Context, cfg *config.Config) (Runner, error) {
		captured = *cfg
		if buildErr != nil {
			return nil, buildErr
		}
		return runner, nil
	}
	t.Cleanup(func() { newApp = orig })
	return &captured
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(args ...string) error {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(os.Stderr)
	cmd.SetErr(os.Stderr)
	return cmd.ExecuteContext(context.Background())
}

const openAIConfig = `
model:
  provider: openai
  api_key: sk-test
logging:
  level: error
`

func TestServeBuildsAndRunsApp(t *testing.T) {
	runner := &fakeRunner{}
	captured := stubApp(t, runner, nil)

	err := execute("serve", "--env-file", "", "--config", writeConfig(t, openAIConfig+"server:\n  port: 9100\n"))
	require.NoError(t, err)
	require.True(t, runner.ran)
	require.Equal(t, 9100, captured.Server.Port)
	require.Equal(t, config.BackendMemory, captured.Store.Backend)
}

func TestServeReportsBuildFailure(t *testing.T) {
	stubApp(t, &fakeRunner{}, errors.New("no credentials"))

	err := execute("serve", "--env-file", "", "--config", writeConfig(t, openAIConfig))
	require.ErrorContains(t, err, "failed to initialize application services: no credentials")
}

func TestServeReturnsRunError(t *testing.T) {
	runner := &fakeRunner{err: errors.New("listen failed")}
	stubApp(t, runner, nil)

	err := execute("serve", "--env-file", "", "--config", writeConfig(t, openAIConfig))
	require.ErrorContains(t, err, "listen failed")
}

func TestServeRejectsInvalidConfig(t *testing.T) {
	runner := &fakeRunner{}
	stubApp(t, runner, nil)

	err := execute("serve", "--env-file", "", "--config", writeConfig(t, "model:\n  provider: bard\n"))
	require.ErrorContains(t, err, "invalid config: model.provider must be vertex or openai")
	require.False(t, runner.ran)
}

func TestUnreadableConfigFailsBeforeSubcommand(t *testing.T) {
	err := execute("migrate", "--env-file", "", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "load config")
}

func TestMigrateDoesNotNeedModelSettings(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "tabs.db")
	cfgPath := writeConfig(t, "logging:\n  level: error\nstore:\n  backend: sqlite\n  sqlite_path: "+dbPath+"\n")

	require.NoError(t, execute("migrate", "--env-file", "", "--config", cfgPath))
}

func TestMigrateRejectsIncompleteStoreConfig(t *testing.T) {
	cfgPath := writeConfig(t, "logging:\n  level: error\nstore:\n  backend: sqlite\n")

	err := execute("migrate", "--env-file", "", "--config", cfgPath)
	require.ErrorContains(t, err, "invalid config: store.sqlite_path is required")
}

func TestMigrateProvisionsSQLite(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "tabs.db")
	cfgPath := writeConfig(t, openAIConfig+`
store:
  backend: sqlite
  sqlite_path: `+dbPath+`
  metrics_row_id: 3
`)

	require.NoError(t, execute("migrate", "--env-file", "", "--config", cfgPath))
	// A second run must be a no-op.
	require.NoError(t, execute("migrate", "--env-file", "", "--config", cfgPath))

	store, err := sqlite.Open(context.Background(), sqlite.Config{Path: dbPath, MetricsRowID: 3})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })

	m, err := store.ReadMetrics(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(3), m.ID)
	require.Zero(t, m.TotalTabsClosed)
}

func TestEnvFileIsLoaded(t *testing.T) {
	const key = "TABHARVESTER_SERVER_PORT"
	_, preset := os.LookupEnv(key)
	if preset {
		t.Skipf("%s already set", key)
	}
	t.Cleanup(func() { _ = os.Unsetenv(key) })

	envPath := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envPath, []byte(key+"=9200\n"), 0o600))

	runner := &fakeRunner{}
	captured := stubApp(t, runner, nil)

	require.NoError(t, execute("serve", "--env-file", envPath, "--config", writeConfig(t, openAIConfig)))
	require.Equal(t, 9200, captured.Server.Port)
}

func TestMissingEnvFileIsIgnored(t *testing.T) {
	require.NoError(t, loadEnvFile(filepath.Join(t.TempDir(), "absent.env")))
	require.NoError(t, loadEnvFile(""))
}
