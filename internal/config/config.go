package config

import "github.com/spf13/viper"

// Version is set at build time via -ldflags.
var Version = "dev"

// Config holds all runtime configuration for WriteRight.
type Config struct {
	Port        int
	DatabaseURL string
	Migrate     bool

	Model     string
	MaxTokens int

	BatchSize      int
	BatchMaxWaitMS int

	UseAccuracy bool

	BlobBaseURL       string
	RecognizerBaseURL string
	DictAPIBase       string
	DictAudioBase     string

	Pepper  string
	DevMode bool
}

// Load reads configuration from viper, which merges flag values, env
// vars, and defaults (set up by the cobra command in cmd/writeright).
func Load() Config {
	return Config{
		Port:        viper.GetInt("port"),
		DatabaseURL: viper.GetString("database_url"),
		Migrate:     viper.GetBool("migrate"),

		Model:     viper.GetString("model"),
		MaxTokens: viper.GetInt("max_tokens"),

		BatchSize:      viper.GetInt("batch_size"),
		BatchMaxWaitMS: viper.GetInt("batch_max_wait_ms"),

		UseAccuracy: viper.GetBool("use_accuracy"),

		BlobBaseURL:       viper.GetString("blob_base_url"),
		RecognizerBaseURL: viper.GetString("recognizer_base_url"),
		DictAPIBase:       viper.GetString("dict_api_base"),
		DictAudioBase:     viper.GetString("dict_audio_base"),

		Pepper:  viper.GetString("pepper"),
		DevMode: viper.GetBool("dev_mode"),
	}
}
