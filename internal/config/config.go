package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration parses YAML scalars like "2m" or "45s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("bad duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config wires the whole agent. Values come from an optional YAML
// profile file (AGENT_PROFILE) overridden by AGENT_* environment
// variables, so a deployment ships one profile and tweaks per-instance
// settings through the environment.
type Config struct {
	ChainRPC        string `yaml:"chain_rpc"`
	ContractAddress string `yaml:"contract_address"`
	OperatorAccount string `yaml:"operator_account"`

	OracleEndpoint string `yaml:"oracle_endpoint"`
	OracleAPIKey   string `yaml:"oracle_api_key"`

	PriceEndpoint string  `yaml:"price_endpoint"`
	USDPerToken   float64 `yaml:"usd_per_token"`

	NotifyWebhook string `yaml:"notify_webhook"`

	ProofStoreEndpoint  string `yaml:"proof_store_endpoint"`
	ProofStoreAccessKey string `yaml:"proof_store_access_key"`
	ProofStoreSecretKey string `yaml:"proof_store_secret_key"`
	ProofStoreBucket    string `yaml:"proof_store_bucket"`
	ProofStoreSecure    bool   `yaml:"proof_store_secure"`

	ExpiryScanInterval    Duration `yaml:"expiry_scan_interval"`
	ReimburseScanInterval Duration `yaml:"reimburse_scan_interval"`
	ReimburseEnabled      bool     `yaml:"reimburse_enabled"`
	ReimburseThresholdUSD float64  `yaml:"reimburse_threshold_usd"`

	ReplayQueriesPerSecond float64 `yaml:"replay_queries_per_second"`

	APIPort string `yaml:"api_port"`
}

func defaults() Config {
	return Config{
		ExpiryScanInterval:     Duration(5 * time.Minute),
		ReimburseScanInterval:  Duration(10 * time.Minute),
		ReimburseThresholdUSD:  0.05,
		ReplayQueriesPerSecond: 5,
		APIPort:                "8080",
		USDPerToken:            2000,
	}
}

// Load builds the effective config: defaults, then the profile file if
// AGENT_PROFILE names one, then environment overrides.
func Load() (Config, error) {
	cfg := defaults()
	if path := strings.TrimSpace(os.Getenv("AGENT_PROFILE")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read profile %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse profile %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.ChainRPC, "AGENT_CHAIN_RPC")
	setString(&cfg.ContractAddress, "AGENT_CONTRACT_ADDRESS")
	setString(&cfg.OperatorAccount, "AGENT_OPERATOR_ACCOUNT")
	setString(&cfg.OracleEndpoint, "AGENT_ORACLE_ENDPOINT")
	setString(&cfg.OracleAPIKey, "AGENT_ORACLE_API_KEY")
	setString(&cfg.PriceEndpoint, "AGENT_PRICE_ENDPOINT")
	setFloat(&cfg.USDPerToken, "AGENT_USD_PER_TOKEN")
	setString(&cfg.NotifyWebhook, "AGENT_NOTIFY_WEBHOOK")
	setString(&cfg.ProofStoreEndpoint, "AGENT_PROOF_STORE_ENDPOINT")
	setString(&cfg.ProofStoreAccessKey, "AGENT_PROOF_STORE_ACCESS_KEY")
	setString(&cfg.ProofStoreSecretKey, "AGENT_PROOF_STORE_SECRET_KEY")
	setString(&cfg.ProofStoreBucket, "AGENT_PROOF_STORE_BUCKET")
	setBool(&cfg.ProofStoreSecure, "AGENT_PROOF_STORE_SECURE")
	setDuration(&cfg.ExpiryScanInterval, "AGENT_EXPIRY_SCAN_INTERVAL")
	setDuration(&cfg.ReimburseScanInterval, "AGENT_REIMBURSE_SCAN_INTERVAL")
	setBool(&cfg.ReimburseEnabled, "AGENT_REIMBURSE_ENABLED")
	setFloat(&cfg.ReimburseThresholdUSD, "AGENT_REIMBURSE_THRESHOLD_USD")
	setFloat(&cfg.ReplayQueriesPerSecond, "AGENT_REPLAY_QPS")
	setString(&cfg.APIPort, "AGENT_API_PORT")
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setFloat(dst *float64, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes":
			*dst = true
		case "0", "false", "no":
			*dst = false
		}
	}
}

func setDuration(dst *Duration, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			*dst = Duration(d)
		}
	}
}
