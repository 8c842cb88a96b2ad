package main

import (
	"errors"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config holds the splitter configuration: one upstream PMU source and
// one local listen address that downstream PDCs connect to.
type Config struct {
	Splitter struct {
		SourceIP    string `mapstructure:"source_ip"`
		SourcePort  int    `mapstructure:"source_port"`
		ListenIP    string `mapstructure:"listen_ip"`
		ListenPort  int    `mapstructure:"listen_port"`
		ID          uint16 `mapstructure:"id"`
		MetricsPort int    `mapstructure:"metrics_port"`
		LogLevel    string `mapstructure:"log_level"`
	} `mapstructure:"splitter"`
}

func loadConfig() (*Config, error) {
	var cfg Config

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/splitter/")

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, err
		}
		log.Info("no config file found, using defaults and environment variables")
	}

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("splitter.source_ip", "127.0.0.1")
	viper.SetDefault("splitter.source_port", 4712)
	viper.SetDefault("splitter.listen_ip", "0.0.0.0")
	viper.SetDefault("splitter.listen_port", 4713)
	viper.SetDefault("splitter.id", 1)
	viper.SetDefault("splitter.metrics_port", 9091)
	viper.SetDefault("splitter.log_level", "INFO")

	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
