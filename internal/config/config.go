/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the settlement-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort                 string `mapstructure:"SERVER_PORT"`
	DatabaseURL                string `mapstructure:"DATABASE_URL"`
	RedisURL                   string `mapstructure:"REDIS_URL"`
	RabbitMQURL                string `mapstructure:"RABBITMQ_URL"`
	PaystackBaseURL            string `mapstructure:"PAYSTACK_BASE_URL"`
	PaystackSecretKey          string `mapstructure:"PAYSTACK_SECRET_KEY"`
	JWTSecret                  string `mapstructure:"JWT_SECRET"`
	DepositPendingTTLMinutes   int    `mapstructure:"DEPOSIT_PENDING_TTL_MINUTES"`
	DepositValidityMinutes     int    `mapstructure:"DEPOSIT_VALIDITY_MINUTES"`
	WithdrawalPendingTTLHours  int    `mapstructure:"WITHDRAWAL_PENDING_TTL_HOURS"`
	DepositVerifyDelaySeconds  int    `mapstructure:"DEPOSIT_VERIFY_DELAY_SECONDS"`
	ReverifyCron               string `mapstructure:"REVERIFY_CRON"`
	AuditRetentionDays         int    `mapstructure:"AUDIT_RETENTION_DAYS"`
	BankCacheTTLHours          int    `mapstructure:"BANK_CACHE_TTL_HOURS"`
	AccountNameCacheTTLDays    int    `mapstructure:"ACCOUNT_NAME_CACHE_TTL_DAYS"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8084")
	viper.SetDefault("PAYSTACK_BASE_URL", "https://api.paystack.co")
	viper.SetDefault("DEPOSIT_PENDING_TTL_MINUTES", 120)
	viper.SetDefault("DEPOSIT_VALIDITY_MINUTES", 60)
	viper.SetDefault("WITHDRAWAL_PENDING_TTL_HOURS", 48)
	viper.SetDefault("DEPOSIT_VERIFY_DELAY_SECONDS", 30)
	viper.SetDefault("REVERIFY_CRON", "@every 5m")
	viper.SetDefault("AUDIT_RETENTION_DAYS", 30)
	viper.SetDefault("BANK_CACHE_TTL_HOURS", 24)
	viper.SetDefault("ACCOUNT_NAME_CACHE_TTL_DAYS", 60)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "SETTLEMENT_REDIS_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("PAYSTACK_BASE_URL")
	_ = viper.BindEnv("PAYSTACK_SECRET_KEY")
	_ = viper.BindEnv("JWT_SECRET")
	_ = viper.BindEnv("DEPOSIT_PENDING_TTL_MINUTES")
	_ = viper.BindEnv("DEPOSIT_VALIDITY_MINUTES")
	_ = viper.BindEnv("WITHDRAWAL_PENDING_TTL_HOURS")
	_ = viper.BindEnv("DEPOSIT_VERIFY_DELAY_SECONDS")
	_ = viper.BindEnv("REVERIFY_CRON")
	_ = viper.BindEnv("AUDIT_RETENTION_DAYS")
	_ = viper.BindEnv("BANK_CACHE_TTL_HOURS")
	_ = viper.BindEnv("ACCOUNT_NAME_CACHE_TTL_DAYS")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.ReverifyCron = strings.TrimSpace(config.ReverifyCron)
	if config.ReverifyCron == "" {
		config.ReverifyCron = "@every 5m"
	}

	if config.DepositPendingTTLMinutes <= 0 {
		config.DepositPendingTTLMinutes = 120
	}
	if config.DepositValidityMinutes <= 0 {
		config.DepositValidityMinutes = 60
	}
	if config.WithdrawalPendingTTLHours <= 0 {
		config.WithdrawalPendingTTLHours = 48
	}
	if config.DepositVerifyDelaySeconds <= 0 {
		config.DepositVerifyDelaySeconds = 30
	}
	if config.AuditRetentionDays <= 0 {
		config.AuditRetentionDays = 30
	}
	if config.BankCacheTTLHours <= 0 {
		config.BankCacheTTLHours = 24
	}
	if config.AccountNameCacheTTLDays <= 0 {
		config.AccountNameCacheTTLDays = 60
	}

	return
}
