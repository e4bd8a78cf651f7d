package conf

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	AppName   = "wxchat"
	EnvPrefix = "WXCHAT"
)

var Defaults = map[string]any{
	"data_dir":        "",
	"contact_db":      "contact",
	"message_dbs":     []string{},
	"self_id":         "",
	"batch_size":      1000,
	"message_cap":     10000,
	"validate_sample": 5,
	"activity_sample": 1000,
	"workers":         4,
	"http_addr":       "127.0.0.1:5030",
	"watch":           true,
	"snapshot":        false,
	"snapshot_dir":    "",
}

// Load 依次合并 默认值、配置文件、WXCHAT_ 环境变量、命令行参数（flag 名中的 - 对应 key 中的 _）。
// path 为空时在当前目录和用户配置目录下查找 wxchat.yaml，找不到不算错误。
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	for key, value := range Defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(AppName)
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, AppName))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			log.Debug().Err(err).Str("path", path).Msg("read config failed")
			return nil, err
		}
		log.Debug().Msg("no config file found, using defaults")
	}

	if flags != nil {
		flags.VisitAll(func(f *pflag.Flag) {
			key := strings.ReplaceAll(f.Name, "-", "_")
			if _, ok := Defaults[key]; ok {
				v.BindPFlag(key, f)
			}
		})
	}

	cfg := &Config{ConfigFile: v.ConfigFileUsed()}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToSliceHookFunc(","),
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(v.AllSettings()); err != nil {
		log.Debug().Err(err).Msg("decode config failed")
		return nil, err
	}
	cfg.MessageDBs = compact(cfg.MessageDBs)
	log.Debug().Str("file", cfg.ConfigFile).Str("data_dir", cfg.DataDir).Strs("message_dbs", cfg.MessageDBs).Msg("config loaded")
	return cfg, nil
}

func compact(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}
