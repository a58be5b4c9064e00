package config

import "github.com/kelseyhightower/envconfig"

// Env holds process settings read from HOSTWATCH_* variables (the
// unprefixed names are accepted too).
type Env struct {
	ConfigPath    string `envconfig:"CONFIG_PATH" default:"./config.json"`
	LogDir        string `envconfig:"LOG_DIR" default:"logs"`
	LogLevel      string `envconfig:"LOG_LEVEL" default:"info"`
	TelegramToken string `envconfig:"TELEGRAM_API_TOKEN"`
	OpsAddr       string `envconfig:"OPS_ADDR"`
}

func FromEnv() (Env, error) {
	var e Env
	err := envconfig.Process("hostwatch", &e)
	return e, err
}
