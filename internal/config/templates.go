package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Trade Ledger Configuration

[ledger]
# Starting cash of every portfolio
initial_cash = 100000.0
# Commission as a fraction of notional per fill
commission_rate = 0.001
# Lot consumption on sells: "fifo" or "average"
cost_basis_policy = "fifo"
# Valuation of a held symbol with no bar that day: "carry_forward" or "exclude"
missing_price_policy = "carry_forward"
# Fail the replay when an order cannot be filled instead of skipping it
strict_fills = false
# ISO 4217 code; sets commission rounding precision
currency = "HKD"

[storage]
# SQLite database holding order logs and cached prices
# db_path = "~/.config/tradeledger/ledger.db"

[prices]
# Price provider: "eodhd", "kite" or "csv"
provider = "eodhd"
base_url = "https://eodhd.com/api"
# Directory of <SYMBOL>.csv files for the csv provider
# csv_dir = "~/.config/tradeledger/prices"
# Days fetched before the first trade date
lookback_days = 5
# Concurrent symbol fetches
parallelism = 4
# Provider requests per second (0 disables limiting)
rate_per_second = 5.0
retry_attempts = 3
retry_initial_delay = "500ms"
retry_max_delay = "10s"
timeout = "30s"
# Stop calling the provider after this many consecutive failures (0 disables)
breaker_threshold = 5
breaker_cooldown = "1m"

[cache]
# Price cache: "sqlite", "redis" or "none"
backend = "sqlite"
redis_addr = "localhost:6379"
redis_db = 0
ttl = "24h"

[ingest]
# Trade date for rows without one: "next_trading_day" or "same_day"
trade_date_policy = "next_trading_day"
# Suffix appended to bare numeric codes
default_suffix = ".HK"

# Asset name to symbol mapping
[ingest.symbols]
"tracker fund" = "2800.HK"
"tencent" = "0700.HK"

[reports]
# Write report files to <dir>/<portfolio>/ after every run
enabled = true
# dir = "~/.config/tradeledger/reports"
formats = ["text", "json", "csv"]

[notify]
# POST a JSON summary here after every run
webhook_url = ""
timeout = "10s"

[server]
addr = ":8080"
# Seconds-resolution cron spec for the scheduled refresh of every portfolio
refresh_cron = "0 30 18 * * 1-5"

[logging]
# Level: debug, info, warn, error
level = "info"
console = true
file = true
max_size_mb = 50
max_backups = 5
max_age_days = 30
`

const credentialsTemplate = `# Trade Ledger Credentials
# WARNING: Keep this file secure! Do not commit to version control.

[eodhd]
api_key = ""

[kite]
api_key = ""
access_token = ""
`

// WriteTemplates writes config.toml and credentials.toml into configDir.
// Existing files are kept unless force is set. It returns the paths written.
func WriteTemplates(configDir string, force bool) ([]string, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	files := []struct {
		name    string
		content string
		perm    os.FileMode
	}{
		{"config.toml", configTemplate, 0644},
		// restricted permissions for credentials
		{"credentials.toml", credentialsTemplate, 0600},
	}

	var written []string
	for _, f := range files {
		path := filepath.Join(configDir, f.name)
		if _, err := os.Stat(path); err == nil && !force {
			continue
		}
		if err := os.WriteFile(path, []byte(f.content), f.perm); err != nil {
			return written, fmt.Errorf("writing %s template: %w", f.name, err)
		}
		written = append(written, path)
	}
	return written, nil
}
