// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	RPCURL            string  `mapstructure:"rpc_url"`
	PrivateKey        string  `mapstructure:"private_key"`
	RouterAddress     string  `mapstructure:"router_address"`
	WBNBAddress       string  `mapstructure:"wbnb_address"`
	SlippagePercent   float64 `mapstructure:"slippage_percent"`
	MaxBuyAmount      float64 `mapstructure:"max_buy_amount"`
	PollIntervalMs    int     `mapstructure:"poll_interval_ms"`
	TakeProfitPercent float64 `mapstructure:"take_profit_percent"`
	StopLossPercent   float64 `mapstructure:"stop_loss_percent"`
	AutoSell          bool    `mapstructure:"auto_sell"`
	GasPriceGwei      int64   `mapstructure:"gas_price_gwei"`
	GasLimit          uint64  `mapstructure:"gas_limit"`
	DebugLogging      bool    `mapstructure:"debug_logging"`
}

const (
	// PancakeSwap Router V2 and WBNB on BSC mainnet.
	DefaultRouterAddress = "0x10ED43C718714eb63d5aA57B78B54704E256024E"
	DefaultWBNBAddress   = "0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c"

	DefaultSlippagePercent   = 10.0
	DefaultMaxBuyAmount      = 0.1
	DefaultPollIntervalMs    = 5000
	DefaultTakeProfitPercent = 100.0
	DefaultStopLossPercent   = 50.0
	DefaultGasPriceGwei      = 5
	DefaultGasLimit          = 300000
)

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Every key can be overridden through SNIPER_BOT_* environment
	// variables; env always wins over the file. The private key should
	// never live in the config file.
	v.SetEnvPrefix("SNIPER_BOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := map[string]interface{}{
		"router_address":      DefaultRouterAddress,
		"wbnb_address":        DefaultWBNBAddress,
		"slippage_percent":    DefaultSlippagePercent,
		"max_buy_amount":      DefaultMaxBuyAmount,
		"poll_interval_ms":    DefaultPollIntervalMs,
		"take_profit_percent": DefaultTakeProfitPercent,
		"stop_loss_percent":   DefaultStopLossPercent,
		"gas_price_gwei":      DefaultGasPriceGwei,
		"gas_limit":           DefaultGasLimit,
		"auto_sell":           true,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	// Keys without defaults are invisible to AutomaticEnv at Unmarshal
	// time unless bound explicitly.
	for _, key := range []string{"rpc_url", "private_key", "debug_logging"} {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, ValidateConfig(&cfg)
}

func ValidateConfig(cfg *Config) error {
	if cfg.RPCURL == "" {
		return errors.New("missing rpc_url in configuration")
	}
	if err := validateRPCURL(cfg.RPCURL); err != nil {
		return err
	}
	if cfg.PrivateKey == "" {
		return errors.New("missing private_key in configuration")
	}
	if cfg.RouterAddress == "" {
		return errors.New("missing router_address in configuration")
	}
	if cfg.WBNBAddress == "" {
		return errors.New("missing wbnb_address in configuration")
	}
	return validateNumericParams(cfg)
}

func validateNumericParams(cfg *Config) error {
	if cfg.SlippagePercent < 0 || cfg.SlippagePercent >= 100 {
		return fmt.Errorf("slippage_percent must be in [0, 100), got %.2f", cfg.SlippagePercent)
	}
	if cfg.MaxBuyAmount <= 0 {
		return errors.New("max_buy_amount must be positive")
	}
	if cfg.PollIntervalMs <= 0 {
		return errors.New("invalid poll_interval_ms")
	}
	if cfg.TakeProfitPercent <= 0 {
		return errors.New("take_profit_percent must be positive")
	}
	if cfg.StopLossPercent <= 0 {
		return errors.New("stop_loss_percent must be positive")
	}
	if cfg.GasPriceGwei <= 0 {
		return errors.New("invalid gas_price_gwei")
	}
	if cfg.GasLimit == 0 {
		return errors.New("invalid gas_limit")
	}
	return nil
}

// SlippageBps returns the slippage tolerance in basis points for
// integer min-out arithmetic.
func (c *Config) SlippageBps() int64 {
	return int64(math.Round(c.SlippagePercent * 100))
}

func validateRPCURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid RPC URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, "http") && !strings.HasPrefix(parsed.Scheme, "ws") {
		return errors.New("invalid RPC URL protocol")
	}
	return nil
}
