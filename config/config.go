// mediaproc/config/config.go
package config

import (
	"reflect"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type Config struct {
	FFBin                string        `mapstructure:"FF_BIN"`
	FFTimeout            time.Duration `mapstructure:"FF_TIMEOUT"`
	FFGlobalArgs         string        `mapstructure:"FF_GLOBAL_ARGS"`
	MaxInputSize         int64         `mapstructure:"MAX_INPUT_SIZE"`
	MaxConcurrency       int           `mapstructure:"MAX_CONCURRENCY"`
	ThrottleCPU          float64       `mapstructure:"THROTTLE_CPU"`
	ThrottleFreeMem      int64         `mapstructure:"THROTTLE_FREEMEM"`
	ThrottleFreeDisk     int64         `mapstructure:"THROTTLE_FREEDISK"`
	Port                 string        `mapstructure:"PORT"`
	BaseURL              string        `mapstructure:"BASE"`
	UploadDir            string        `mapstructure:"UPLOAD_DIR"`
	OutputDir            string        `mapstructure:"OUTPUT_DIR"`
	LedgerDriver         string        `mapstructure:"LEDGER_DRIVER"`
	LedgerPath           string        `mapstructure:"LEDGER_PATH"`
	CleanupSchedule      string        `mapstructure:"CLEANUP_SCHEDULE"`
	OutputOrphanLifetime time.Duration `mapstructure:"OUTPUT_ORPHAN_LIFETIME"`
	LogConfig            `mapstructure:",squash"`
}

type LogConfig struct {
	Level      string `mapstructure:"LOG_LEVEL"`
	Format     string `mapstructure:"LOG_FORMAT"` // text or json
	Output     string `mapstructure:"LOG_OUTPUT"` // stdout or file
	File       string `mapstructure:"LOG_FILE"`
	MaxSize    int    `mapstructure:"LOG_MAX_SIZE"` // megabytes
	MaxBackups int    `mapstructure:"LOG_MAX_BACKUPS"`
	MaxAge     int    `mapstructure:"LOG_MAX_AGE"` // days
	Compress   bool   `mapstructure:"LOG_COMPRESS"`
}

// stringToDurationHookFunc is a custom Viper hook for parsing Go's duration strings.
func stringToDurationHookFunc() mapstructure.DecodeHookFunc {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		return time.ParseDuration(data.(string))
	}
}

// stringToByteSizeHookFunc is a custom Viper hook for parsing human-readable size strings.
func stringToByteSizeHookFunc() mapstructure.DecodeHookFunc {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if f.Kind() != reflect.String || t.Kind() != reflect.Int64 {
			return data, nil
		}

		var size datasize.ByteSize
		err := size.UnmarshalText([]byte(data.(string)))
		if err != nil {
			// Not a valid size string, let other parsers handle it.
			return data, nil
		}

		return int64(size.Bytes()), nil
	}
}

func Load() (*Config, error) {
	vp := viper.New()

	vp.SetDefault("FF_BIN", "ffmpeg")
	vp.SetDefault("FF_TIMEOUT", "12m3s")
	vp.SetDefault("FF_GLOBAL_ARGS", "-hide_banner -nostdin")
	vp.SetDefault("MAX_INPUT_SIZE", "200MB")
	vp.SetDefault("MAX_CONCURRENCY", 2)
	vp.SetDefault("THROTTLE_CPU", 0.0)
	vp.SetDefault("THROTTLE_FREEMEM", 0)
	vp.SetDefault("THROTTLE_FREEDISK", "200MB")
	vp.SetDefault("PORT", "5000")
	vp.SetDefault("BASE", "")
	vp.SetDefault("UPLOAD_DIR", "data/uploads")
	vp.SetDefault("OUTPUT_DIR", "data/output")
	vp.SetDefault("LEDGER_DRIVER", "json")
	vp.SetDefault("LEDGER_PATH", "data/history.json")
	vp.SetDefault("CLEANUP_SCHEDULE", "@every 30m")
	vp.SetDefault("OUTPUT_ORPHAN_LIFETIME", "1h23m")

	vp.SetDefault("LOG_LEVEL", "info")
	vp.SetDefault("LOG_FORMAT", "text")
	vp.SetDefault("LOG_OUTPUT", "stdout")
	vp.SetDefault("LOG_FILE", "data/logs/mediaproc.log")
	vp.SetDefault("LOG_MAX_SIZE", 100)
	vp.SetDefault("LOG_MAX_BACKUPS", 3)
	vp.SetDefault("LOG_MAX_AGE", 28)
	vp.SetDefault("LOG_COMPRESS", true)

	// Load from config file
	vp.SetConfigName("mediaproc_config")
	vp.SetConfigType("yaml")
	vp.AddConfigPath(".")
	vp.AddConfigPath("/etc/mediaproc/")

	if err := vp.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	// Load from environment variables
	vp.SetEnvPrefix("MEDIAPROC")
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	var cfg Config
	// The first hook that converts a value wins.
	err := vp.Unmarshal(&cfg, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			stringToDurationHookFunc(),
			stringToByteSizeHookFunc(),
		),
	))
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}
