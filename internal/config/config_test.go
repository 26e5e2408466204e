package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ADMIN_PASSWORD", "pw")
	t.Setenv("STORE_BACKEND", "memory")

	cfg, err := Load("does-not-exist.env")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, BackendMemory, cfg.Store.Backend)
	assert.Equal(t, "inventory.csv", cfg.Store.InventoryFile)
	assert.Equal(t, 60*time.Second, cfg.Store.CacheTTL)
	assert.Equal(t, 5, cfg.Admin.FailedLoginsPerMin)
	assert.Equal(t, "cost", cfg.Reporting.CancelIncreasePolicy)
	assert.Equal(t, "Asia/Seoul", cfg.Location().String())
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Setenv("ADMIN_PASSWORD", "pw")
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("STORE_CACHE_TTL", "soon")

	_, err := Load("does-not-exist.env")
	assert.ErrorContains(t, err, "STORE_CACHE_TTL")
}

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: "8080"},
		Admin:  AdminConfig{Password: "pw", FailedLoginsPerMin: 5},
		Store: StoreConfig{
			Backend:          BackendGitHub,
			InventoryFile:    "inventory.csv",
			TransactionsFile: "transactions.csv",
			OrdersFile:       "orders.csv",
		},
		GitHub:    GitHubConfig{Token: "t", Repo: "press/data"},
		Reporting: ReportingConfig{Timezone: "Asia/Seoul", CancelIncreasePolicy: "cost"},
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	cases := map[string]func(*Config){
		"ADMIN_PASSWORD":                 func(c *Config) { c.Admin = AdminConfig{FailedLoginsPerMin: 5} },
		"GITHUB_TOKEN":                   func(c *Config) { c.GitHub.Token = "" },
		"GITHUB_REPO":                    func(c *Config) { c.GitHub.Repo = "data" },
		"GOOGLE_SHEETS_CREDENTIALS_PATH": func(c *Config) { c.Store.Backend = BackendSheets },
		"STORE_BACKEND":                  func(c *Config) { c.Store.Backend = "s3" },
		"TIMEZONE":                       func(c *Config) { c.Reporting.Timezone = "Mars/Olympus" },
		"CANCEL_INCREASE_POLICY":         func(c *Config) { c.Reporting.CancelIncreasePolicy = "split" },
		"WHATSAPP_PHONE_NUMBER_ID":       func(c *Config) { c.WhatsApp.AccessToken = "tok" },
	}

	for field, mutate := range cases {
		t.Run(field, func(t *testing.T) {
			cfg := validConfig()
			mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), field)
		})
	}
}
