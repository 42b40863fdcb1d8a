package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("FIELDBILL_TEST_DASHBOARD_KEY", "secret-key")

	path := writeFile(t, dir, "config.yaml", `
dashboard:
  base_url: https://dashboard.example.com
  api_key: ${FIELDBILL_TEST_DASHBOARD_KEY}
  cache_ttl_seconds: 120
database:
  path: `+filepath.Join(dir, "data", "journal.db")+`
log:
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "secret-key", cfg.Dashboard.APIKey)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 60, cfg.Server.RateLimitPerMinute)
	assert.Equal(t, "configs/rules.yaml", cfg.Rules.Path)
	assert.Equal(t, 2*time.Minute, cfg.CacheTTL())
	assert.Equal(t, 10*time.Second, cfg.DashboardTimeout())
	assert.Equal(t, 30*time.Second, cfg.RulesReloadInterval())
	assert.Equal(t, "Line Items", cfg.Google.SheetName)

	_, err = os.Stat(filepath.Join(dir, "data"))
	assert.NoError(t, err, "database directory is created")
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing dashboard url",
			content: "log:\n  level: debug\n",
			wantErr: "dashboard.base_url is required",
		},
		{
			name: "telegram without token",
			content: `
dashboard: {base_url: "http://x"}
database: {path: ":memory:"}
telegram: {enabled: true, manager_chats: [1]}
`,
			wantErr: "telegram.bot_token",
		},
		{
			name: "telegram without chats",
			content: `
dashboard: {base_url: "http://x"}
database: {path: ":memory:"}
telegram: {enabled: true, bot_token: "123:abc"}
`,
			wantErr: "manager_chats",
		},
		{
			name: "google without spreadsheet",
			content: `
dashboard: {base_url: "http://x"}
database: {path: ":memory:"}
google: {enabled: true, credentials_file: "creds.json"}
`,
			wantErr: "google.spreadsheet_id",
		},
		{
			name: "unknown log format",
			content: `
dashboard: {base_url: "http://x"}
database: {path: ":memory:"}
log: {format: xml}
`,
			wantErr: "log.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "config.yaml", tt.content)
			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadRules(t *testing.T) {
	path := writeFile(t, t.TempDir(), "rules.yaml", `
time_zone: America/Chicago
weekday:
  regular_cap_hours: 8
  overtime_cap_hours: 4
saturday:
  overtime_window_start: "07:00"
  overtime_window_end: "16:00"
holidays:
  - date: "2025-12-25"
    name: Christmas
`)

	rules, err := LoadRules(path)
	require.NoError(t, err)

	policy, err := rules.Policy()
	require.NoError(t, err)
	assert.Equal(t, "07:00", policy.SaturdayWindowStart)
	assert.Equal(t, "16:00", policy.SaturdayWindowEnd)
	assert.Equal(t, 11.0, policy.SaturdayFallbackOvertimeCap, "unset values keep defaults")
	assert.Equal(t, []string{"2025-12-25"}, policy.Holidays)
	require.NotNil(t, policy.Location)
	assert.Equal(t, "America/Chicago", policy.Location.String())
}

func TestLoadRules_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad holiday", "holidays:\n  - date: 25/12/2025\n"},
		{"missing holiday date", "holidays:\n  - name: Christmas\n"},
		{"inverted window", "saturday:\n  overtime_window_start: \"18:00\"\n  overtime_window_end: \"06:00\"\n"},
		{"unknown zone", "time_zone: Mars/Olympus\n"},
		{"negative cap", "weekday:\n  regular_cap_hours: -1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "rules.yaml", tt.content)
			_, err := LoadRules(path)
			assert.Error(t, err)
		})
	}
}

func TestRulesPolicy_Nil(t *testing.T) {
	var r *RulesConfig
	policy, err := r.Policy()
	require.NoError(t, err)
	assert.Equal(t, 8.0, policy.WeekdayRegularCap)
}

func TestWatchRules(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "rules.yaml", "default_shift_hours: 8\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu   sync.Mutex
		seen []float64
	)
	err := WatchRules(ctx, path, 10*time.Millisecond, zerolog.Nop(), func(r *RulesConfig) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, r.DefaultShiftHours)
	})
	require.NoError(t, err)

	mu.Lock()
	require.Equal(t, []float64{8}, seen, "initial load is delivered synchronously")
	mu.Unlock()

	// An invalid edit is skipped.
	require.NoError(t, os.WriteFile(path, []byte("default_shift_hours: 99\n"), 0o600))
	require.NoError(t, os.Chtimes(path, time.Now().Add(time.Second), time.Now().Add(time.Second)))
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("default_shift_hours: 10\n"), 0o600))
	require.NoError(t, os.Chtimes(path, time.Now().Add(2*time.Second), time.Now().Add(2*time.Second)))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2 && seen[1] == 10
	}, time.Second, 10*time.Millisecond)
}

func TestWatchRules_InitialLoadFails(t *testing.T) {
	err := WatchRules(context.Background(), filepath.Join(t.TempDir(), "absent.yaml"), time.Second, zerolog.Nop(), nil)
	assert.Error(t, err)
}
