package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

// inDir runs the test from dir so that .env and khata.yaml lookups are
// isolated.
func inDir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(wd) })
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	inDir(t, t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "khata.db", cfg.DB)
	assert.Equal(t, 3, cfg.Recon.FuzzyDateWindow)
	assert.True(t, cfg.Recon.AmountTolerance.Equal(decimal.RequireFromString("0.01")))
	assert.Equal(t, 5, cfg.Retry().Attempts)
}

func TestLoadYAMLThenEnvironment(t *testing.T) {
	dir := t.TempDir()
	inDir(t, dir)
	path := writeFile(t, dir, "books.yaml", `
business:
  name: Sharma Kirana Store
  gstin: 27AAPFU0939F1ZV
db: /var/lib/khata/sharma.db
log_format: json
request_timeout: 10s
recon:
  fuzzy_date_window: 5
  amount_tolerance: "0.02"
  workers: 8
`)
	t.Setenv("KHATA_RECON_WORKERS", "2")
	t.Setenv("KHATA_BUSINESS_NAME", "Sharma Traders")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Sharma Traders", cfg.Business.Name)
	assert.Equal(t, "27AAPFU0939F1ZV", cfg.Business.GSTIN)
	assert.Equal(t, "/var/lib/khata/sharma.db", cfg.DB)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 5, cfg.Recon.FuzzyDateWindow)
	assert.Equal(t, 2, cfg.Recon.Workers)
	assert.True(t, cfg.Recon.AmountTolerance.Equal(decimal.RequireFromString("0.02")))
	// Untouched fields keep their defaults.
	assert.Equal(t, 0.95, cfg.Recon.ReferenceConfidence)
	assert.Equal(t, ":8888", cfg.Addr)
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	inDir(t, dir)
	writeFile(t, dir, ".env", "KHATA_DB=from-dotenv.db\n")
	t.Cleanup(func() { os.Unsetenv("KHATA_DB") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv.db", cfg.DB)
}

func TestLoadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	inDir(t, dir)

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	path := writeFile(t, dir, "bad.yaml", "log_format: xml\nrecon:\n  workers: 0\n")
	_, err = Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LogFormat")
	assert.Contains(t, err.Error(), "Workers")

	path = writeFile(t, dir, "broken.yaml", "db: [unterminated\n")
	_, err = Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	inDir(t, dir)
	cfg := Default()
	cfg.Business.Name = "Anand Tailors"
	path := filepath.Join(dir, DefaultPath)
	require.NoError(t, Save(path, cfg))

	loaded, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "Anand Tailors", loaded.Business.Name)
	assert.True(t, loaded.Recon.AmountTolerance.Equal(cfg.Recon.AmountTolerance))
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := Default()
	cfg.LogFormat = "json"
	cfg.LogLevel = "warn"
	log := NewLogger(cfg, &buf)
	log.Info("hidden")
	log.Warn("shown", "voucher", "PAY-2024-25-0001")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"voucher":"PAY-2024-25-0001"`)
}
