// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type ctxKey string

const configContextKey ctxKey = "chainrelay.config"

const DefaultShutdownTimeout = "30s"

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

type Config struct {
	NodeURL          string `yaml:"nodeUrl"          envconfig:"NODE_URL"`
	ChainID          int64  `yaml:"chainId"          envconfig:"CHAIN_ID"`
	DatabasePath     string `yaml:"databasePath"                               split_words:"true"`
	BindAddr         string `yaml:"bindAddr"                                   split_words:"true"`
	ApiPort          uint   `yaml:"apiPort"          envconfig:"port"`
	MetricsPort      uint   `yaml:"metricsPort"                                split_words:"true"`
	SweepInterval    string `yaml:"sweepInterval"                              split_words:"true"`
	SweepWorkers     int    `yaml:"sweepWorkers"                               split_words:"true"`
	BroadcastTimeout string `yaml:"broadcastTimeout"                           split_words:"true"`
	ShutdownTimeout  string `yaml:"shutdownTimeout"                            split_words:"true"`
	PlatformOperator string `yaml:"platformOperator" envconfig:"PLATFORM_OPERATOR"`
	// OperatorKey is env-only on purpose: key material does not belong in
	// config files
	OperatorKey    string `yaml:"-" envconfig:"OPERATOR_KEY"`
	TracingEnabled bool   `yaml:"tracingEnabled"  split_words:"true"`
	TracingStdout  bool   `yaml:"tracingStdout"   split_words:"true"`
}

var globalConfig = &Config{
	NodeURL:          "http://localhost:8545",
	ChainID:          1337,
	DatabasePath:     ".chainrelay",
	BindAddr:         "0.0.0.0",
	ApiPort:          8080,
	MetricsPort:      12798,
	SweepInterval:    "5s",
	SweepWorkers:     5,
	BroadcastTimeout: "30s",
	ShutdownTimeout:  DefaultShutdownTimeout,
}

func LoadConfig(configFile string) (*Config, error) {
	// Load config file as YAML if provided
	if configFile == "" {
		// Check for config file in this path: ~/.chainrelay/chainrelay.yaml
		if homeDir, err := os.UserHomeDir(); err == nil {
			userPath := filepath.Join(
				homeDir,
				".chainrelay",
				"chainrelay.yaml",
			)
			if _, err := os.Stat(userPath); err == nil {
				configFile = userPath
			}
		}

		// Try to check for /etc/chainrelay/chainrelay.yaml if still not found
		if configFile == "" {
			systemPath := "/etc/chainrelay/chainrelay.yaml"
			if _, err := os.Stat(systemPath); err == nil {
				configFile = systemPath
			}
		}
	}

	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Overlay config values onto existing defaults
		err = yaml.Unmarshal(buf, globalConfig)
		if err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}
	// Process environment variables
	err := envconfig.Process("chainrelay", globalConfig)
	if err != nil {
		return nil, fmt.Errorf("error processing environment: %+w", err)
	}
	if globalConfig.ChainID <= 0 {
		return nil, fmt.Errorf("invalid chainId: %d", globalConfig.ChainID)
	}
	if globalConfig.SweepWorkers < 0 {
		return nil, fmt.Errorf(
			"invalid sweepWorkers: %d",
			globalConfig.SweepWorkers,
		)
	}
	return globalConfig, nil
}

func GetConfig() *Config {
	return globalConfig
}
