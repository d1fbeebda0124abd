// Package config holds the bot's JSON configuration: WaveSpeed credentials
// and polling cadence, chat channel credentials, generation defaults, the
// optional prompt enhancer, history ledger, and REST gateway.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

type WaveSpeedConfig struct {
	APIKey       string `json:"apiKey"`
	APIBase      string `json:"apiBase,omitempty"`
	PollInterval int    `json:"pollInterval"` // seconds
	WaitTimeout  int    `json:"waitTimeout"`  // seconds
}

type TelegramConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token"`
	AllowFrom []string `json:"allowFrom"`
	Proxy     string   `json:"proxy,omitempty"`
}

type FeishuConfig struct {
	Enabled           bool     `json:"enabled"`
	AppID             string   `json:"appId"`
	AppSecret         string   `json:"appSecret"`
	EncryptKey        string   `json:"encryptKey"`
	VerificationToken string   `json:"verificationToken"`
	AllowFrom         []string `json:"allowFrom"`
}

type DingTalkConfig struct {
	Enabled      bool     `json:"enabled"`
	ClientID     string   `json:"clientId"`
	ClientSecret string   `json:"clientSecret"`
	RobotCode    string   `json:"robotCode"`
	AllowFrom    []string `json:"allowFrom"`
}

type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
	Feishu   FeishuConfig   `json:"feishu"`
	DingTalk DingTalkConfig `json:"dingtalk"`
}

type GenerationDefaults struct {
	Workspace    string `json:"workspace"`
	Model        string `json:"model"` // catalog card name
	OutputDir    string `json:"outputDir"`
	MaxWaitTime  int    `json:"maxWaitTime"`  // seconds
	PollInterval int    `json:"pollInterval"` // seconds
}

type GenerationConfig struct {
	Defaults GenerationDefaults `json:"defaults"`
}

// EnhancerConfig selects the prompt enhancer backend. Leave disabled to send
// user prompts through unchanged.
type EnhancerConfig struct {
	Enabled  bool   `json:"enabled"`
	Provider string `json:"provider"` // "openai" or "gemini"
	Model    string `json:"model"`
	APIKey   string `json:"apiKey"`
	APIBase  string `json:"apiBase,omitempty"`
}

type GatewayConfig struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
}

type HistoryConfig struct {
	Path string `json:"path"`
}

type Config struct {
	WaveSpeed  WaveSpeedConfig  `json:"wavespeed"`
	Generation GenerationConfig `json:"generation"`
	Channels   ChannelsConfig   `json:"channels"`
	Enhancer   EnhancerConfig   `json:"enhancer"`
	Gateway    GatewayConfig    `json:"gateway"`
	History    HistoryConfig    `json:"history"`
}

// DefaultConfig is the runnable baseline: no credentials, conservative
// polling, gateway off. `wavebot onboard` writes it out for editing.
func DefaultConfig() *Config {
	return &Config{
		WaveSpeed: WaveSpeedConfig{
			PollInterval: 5,
			WaitTimeout:  1800,
		},
		Generation: GenerationConfig{
			Defaults: GenerationDefaults{
				Workspace:    ".wavebot/workspace",
				Model:        "kling-t2v",
				OutputDir:    ".wavebot/outputs",
				MaxWaitTime:  300,
				PollInterval: 5,
			},
		},
		Enhancer: EnhancerConfig{
			Provider: "openai",
			Model:    "gpt-4o-mini",
		},
		Gateway: GatewayConfig{
			Host: "0.0.0.0",
			Port: 18890,
		},
		History: HistoryConfig{
			Path: ".wavebot/history.db",
		},
	}
}

// LoadConfig loads the configuration from the given path. A missing file
// yields the defaults; WAVESPEED_API_KEY overrides the configured key.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = filepath.Join(".wavebot", "config.json")
	}

	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnv(config)
			return config, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, config); err != nil {
		return nil, err
	}

	applyEnv(config)
	return config, nil
}

func applyEnv(config *Config) {
	if key := os.Getenv("WAVESPEED_API_KEY"); key != "" {
		config.WaveSpeed.APIKey = key
	}
}
