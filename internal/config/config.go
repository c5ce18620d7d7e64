package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Settings is a typed snapshot of the viper configuration.
type Settings struct {
	Network       string
	Chain         string
	WalletAddress string

	RPCEndpoint  string
	RPCEndpoints []string

	StoreBackend string
	StorePath    string
	ScryptN      int

	ScanInterval    time.Duration
	MinScanInterval time.Duration
	SeenLimit       int
	PaymentLimit    int

	APIPort       int
	AllowedOrigin string
	JWTSecret     string
	UserPubKey    string

	NostrRelays     []string
	NostrPrivateKey string

	ProviderEndpoints map[string]string

	LogFile  string
	LogLevel string
}

// LoadConfig loads config.json from the working directory, creating it with
// defaults when it does not exist.
func LoadConfig() error {
	return LoadConfigFrom(".")
}

// LoadConfigFrom loads config.json from dir.
func LoadConfigFrom(dir string) error {
	viper.SetConfigName("config")
	viper.SetConfigType("json")
	viper.AddConfigPath(dir)

	viper.SetEnvPrefix("SIP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return createDefaultConfig(dir)
		}
		return fmt.Errorf("error reading config file: %w", err)
	}

	setDefaults()
	return nil
}

// setDefaults sets default configuration values based on the environment
func setDefaults() {
	env := viper.GetString("ENV")
	if env == "" {
		env = "development"
		viper.Set("ENV", env)
	}

	if env == "development" {
		viper.SetDefault("network", "devnet")
		viper.SetDefault("rpc_endpoint", "http://localhost:8899")
		viper.SetDefault("allowed_origin", "http://localhost:3000")
		viper.SetDefault("store_path", "./dev_wallet.db")
		viper.SetDefault("log_level", "debug")
	} else if env == "production" {
		viper.SetDefault("network", "mainnet")
		viper.SetDefault("rpc_endpoint", "")
		viper.SetDefault("allowed_origin", "")
		viper.SetDefault("store_path", "./wallet.db")
		viper.SetDefault("log_level", "info")
	}

	viper.SetDefault("chain", "solana")
	viper.SetDefault("wallet_address", "")
	viper.SetDefault("rpc_endpoints", []string{})
	viper.SetDefault("store_backend", "sqlite") // or "graviton" or "envfile"
	viper.SetDefault("scrypt_n", 1<<15)
	viper.SetDefault("scan_interval", "15m")
	viper.SetDefault("min_scan_interval", "1m")
	viper.SetDefault("seen_limit", 10000)
	viper.SetDefault("payment_limit", 500)
	viper.SetDefault("api_port", 9003)
	viper.SetDefault("jwt_secret", "")
	viper.SetDefault("user_pubkey", "")
	viper.SetDefault("nostr_relays", []string{})
	viper.SetDefault("nostr_private_key", "")
	viper.SetDefault("provider_endpoints", map[string]string{})
	viper.SetDefault("log_file", "")
}

// createDefaultConfig creates a new configuration file if it doesn't exist
func createDefaultConfig(dir string) error {
	setDefaults()

	err := viper.SafeWriteConfigAs(dir + string(os.PathSeparator) + "config.json")
	if err != nil {
		if _, ok := err.(viper.ConfigFileAlreadyExistsError); ok {
			if err = viper.WriteConfig(); err != nil {
				return fmt.Errorf("error writing config file: %w", err)
			}
		} else {
			return fmt.Errorf("error creating config file: %w", err)
		}
	}

	fmt.Println("Created default configuration file")
	return nil
}

// Current returns the active configuration.
func Current() Settings {
	return Settings{
		Network:           viper.GetString("network"),
		Chain:             viper.GetString("chain"),
		WalletAddress:     viper.GetString("wallet_address"),
		RPCEndpoint:       viper.GetString("rpc_endpoint"),
		RPCEndpoints:      viper.GetStringSlice("rpc_endpoints"),
		StoreBackend:      viper.GetString("store_backend"),
		StorePath:         viper.GetString("store_path"),
		ScryptN:           viper.GetInt("scrypt_n"),
		ScanInterval:      viper.GetDuration("scan_interval"),
		MinScanInterval:   viper.GetDuration("min_scan_interval"),
		SeenLimit:         viper.GetInt("seen_limit"),
		PaymentLimit:      viper.GetInt("payment_limit"),
		APIPort:           viper.GetInt("api_port"),
		AllowedOrigin:     viper.GetString("allowed_origin"),
		JWTSecret:         viper.GetString("jwt_secret"),
		UserPubKey:        viper.GetString("user_pubkey"),
		NostrRelays:       viper.GetStringSlice("nostr_relays"),
		NostrPrivateKey:   viper.GetString("nostr_private_key"),
		ProviderEndpoints: viper.GetStringMapString("provider_endpoints"),
		LogFile:           viper.GetString("log_file"),
		LogLevel:          viper.GetString("log_level"),
	}
}

// Endpoints returns rpc_endpoints, falling back to rpc_endpoint.
func (s Settings) Endpoints() []string {
	if len(s.RPCEndpoints) > 0 {
		return s.RPCEndpoints
	}
	if s.RPCEndpoint != "" {
		return []string{s.RPCEndpoint}
	}
	return nil
}
