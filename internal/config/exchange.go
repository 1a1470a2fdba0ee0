package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const defaultUSDToBDT = "110"

type ExchangeConfig struct {
	USDToBDT string `mapstructure:"usdToBdt"`
}

type exchangeSnapshot struct {
	raw      ExchangeConfig
	usdToBDT decimal.Decimal
}

// ExchangeConfigHolder serves the USD to BDT rate and reloads it when
// exchange.yml changes on disk.
type ExchangeConfigHolder struct {
	current atomic.Value // holds exchangeSnapshot
}

func NewExchangeConfigHolder(log *zap.Logger) (*ExchangeConfigHolder, error) {
	log = log.Named("config.exchange")

	v := viper.New()
	v.SetConfigName("exchange")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/learnpay/config")
	v.AddConfigPath("/etc/learnpay")
	v.AddConfigPath(".")

	v.SetEnvPrefix("LEARNPAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("exchange.usdToBdt", defaultUSDToBDT)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	snapshot, err := loadExchangeSnapshot(v)
	if err != nil {
		return nil, err
	}

	holder := &ExchangeConfigHolder{}
	holder.current.Store(snapshot)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := loadExchangeSnapshot(v)
		if err != nil {
			log.Warn("exchange config reload ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("exchange config reloaded", zap.String("file", e.Name), zap.String("usd_to_bdt", updated.usdToBDT.String()))
	})

	return holder, nil
}

// NewStaticExchangeConfigHolder returns a holder pinned to a single rate.
func NewStaticExchangeConfigHolder(usdToBDT decimal.Decimal) *ExchangeConfigHolder {
	holder := &ExchangeConfigHolder{}
	holder.current.Store(exchangeSnapshot{
		raw:      ExchangeConfig{USDToBDT: usdToBDT.String()},
		usdToBDT: usdToBDT,
	})
	return holder
}

func (h *ExchangeConfigHolder) Get() ExchangeConfig {
	return h.current.Load().(exchangeSnapshot).raw
}

// USDToBDT returns the rate currently in effect.
func (h *ExchangeConfigHolder) USDToBDT() decimal.Decimal {
	return h.current.Load().(exchangeSnapshot).usdToBDT
}

func loadExchangeSnapshot(v *viper.Viper) (exchangeSnapshot, error) {
	cfg := ExchangeConfig{USDToBDT: v.GetString("exchange.usdToBdt")}
	rate, err := validateExchangeConfig(cfg)
	if err != nil {
		return exchangeSnapshot{}, err
	}
	return exchangeSnapshot{raw: cfg, usdToBDT: rate}, nil
}

func validateExchangeConfig(cfg ExchangeConfig) (decimal.Decimal, error) {
	raw := strings.TrimSpace(cfg.USDToBDT)
	if raw == "" {
		return decimal.Zero, errors.New("exchange.usdToBdt cannot be empty")
	}
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, errors.New("exchange.usdToBdt must be a decimal number")
	}
	if !rate.IsPositive() {
		return decimal.Zero, errors.New("exchange.usdToBdt must be positive")
	}
	return rate, nil
}
