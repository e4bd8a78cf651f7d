package conf

import (
	"regexp"
	"sort"

	"github.com/takeaway1/wxchat/internal/errors"
)

// AutoMessageDB 未显式配置 message_dbs 时，按 id 自动识别消息库
var AutoMessageDB = regexp.MustCompile(`(?i)^(message|msg)_?[0-9]*$`)

type Config struct {
	ConfigFile string `mapstructure:"-"`

	DataDir    string   `mapstructure:"data_dir"`
	ContactDB  string   `mapstructure:"contact_db"`
	MessageDBs []string `mapstructure:"message_dbs"`
	SelfID     string   `mapstructure:"self_id"`

	BatchSize      int `mapstructure:"batch_size"`
	MessageCap     int `mapstructure:"message_cap"`
	ValidateSample int `mapstructure:"validate_sample"`
	ActivitySample int `mapstructure:"activity_sample"`
	Workers        int `mapstructure:"workers"`

	HTTPAddr string `mapstructure:"http_addr"`
	Watch    bool   `mapstructure:"watch"`

	// Snapshot 打开前先复制数据库文件，SnapshotDir 为空时使用临时目录
	Snapshot    bool   `mapstructure:"snapshot"`
	SnapshotDir string `mapstructure:"snapshot_dir"`
}

func (c *Config) GetDataDir() string {
	return c.DataDir
}

func (c *Config) GetContactDB() string {
	return c.ContactDB
}

func (c *Config) GetSelfID() string {
	return c.SelfID
}

func (c *Config) GetHTTPAddr() string {
	return c.HTTPAddr
}

func (c *Config) GetWatch() bool {
	return c.Watch
}

func (c *Config) GetSnapshot() bool {
	return c.Snapshot
}

func (c *Config) GetSnapshotDir() string {
	return c.SnapshotDir
}

func (c *Config) GetBatchSize() int {
	return c.BatchSize
}

func (c *Config) GetMessageCap() int {
	return c.MessageCap
}

func (c *Config) GetValidateSample() int {
	return c.ValidateSample
}

func (c *Config) GetActivitySample() int {
	return c.ActivitySample
}

func (c *Config) GetWorkers() int {
	return c.Workers
}

// GetMessageDBs 显式配置优先；否则从 available 中挑出名称像消息库的 id
func (c *Config) GetMessageDBs(available []string) []string {
	if len(c.MessageDBs) > 0 {
		return c.MessageDBs
	}
	ids := make([]string, 0)
	for _, id := range available {
		if id != c.ContactDB && AutoMessageDB.MatchString(id) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Validate 检查数值配置；requireData 为 true 时还要求 data_dir 非空
func (c *Config) Validate(requireData bool) error {
	if requireData && c.DataDir == "" {
		return errors.DataDirEmpty()
	}
	positive := map[string]int{
		"batch_size":      c.BatchSize,
		"message_cap":     c.MessageCap,
		"validate_sample": c.ValidateSample,
		"activity_sample": c.ActivitySample,
		"workers":         c.Workers,
	}
	for key, v := range positive {
		if v <= 0 {
			return errors.InvalidArg(key)
		}
	}
	if c.ContactDB == "" {
		return errors.InvalidArg("contact_db")
	}
	return nil
}
