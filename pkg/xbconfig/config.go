package xbconfig

import (
	"bytes"
	"os"

	"github.com/function61/gokit/envvar"
	"github.com/function61/gokit/jsonfile"
)

const (
	configFilename = "config.json"
	envConfigKey   = "XBAK_CONF"
)

type Config struct {
	BackupDir           string              `json:"backup_dir"`
	DataDir             string              `json:"data_dir"`
	MysqlUser           string              `json:"mysql_user"`
	MysqlPassword       string              `json:"mysql_password"`
	MysqlService        string              `json:"mysql_service"`
	RsyncFlags          string              `json:"rsync_flags"`
	ScheduleTimeUtc     string              `json:"schedule_time_utc,omitempty"` // "01:00"
	ScheduleCron        string              `json:"schedule_cron,omitempty"`     // overrides schedule_time_utc
	EncryptionPublicKey string              `json:"encryption_publickey,omitempty"`
	Storage             *StorageConfig      `json:"storage,omitempty"`
	AlertManager        *AlertManagerConfig `json:"alertmanager,omitempty"`
}

type StorageConfig struct {
	S3 *StorageS3Config `json:"s3"`
}

type StorageS3Config struct {
	Bucket          string `json:"bucket"`
	BucketRegion    string `json:"bucket_region"`
	AccessKeyId     string `json:"access_key_id"`
	AccessKeySecret string `json:"access_key_secret"`
}

type AlertManagerConfig struct {
	BaseUrl string `json:"baseurl"`
}

// config resolution order: base64-encoded env var, then config file,
// then built-in defaults (the tool has to work on a box with nothing but
// xtrabackup installed)
func ReadFromEnvOrFile() (*Config, error) {
	conf := &Config{}

	confFromEnv, err := envvar.GetFromBase64Encoded(envConfigKey)
	if err == nil {
		return applyDefaults(conf), jsonfile.Unmarshal(bytes.NewBuffer(confFromEnv), conf, true)
	}

	if _, err := os.Stat(configFilename); os.IsNotExist(err) {
		return DefaultConfig(""), nil
	}

	return applyDefaults(conf), jsonfile.Read(configFilename, conf, true)
}

func applyDefaults(conf *Config) *Config {
	defaults := DefaultConfig("")

	if conf.BackupDir == "" {
		conf.BackupDir = defaults.BackupDir
	}
	if conf.DataDir == "" {
		conf.DataDir = defaults.DataDir
	}
	if conf.MysqlUser == "" {
		conf.MysqlUser = defaults.MysqlUser
	}
	if conf.MysqlService == "" {
		conf.MysqlService = defaults.MysqlService
	}
	if conf.RsyncFlags == "" {
		conf.RsyncFlags = defaults.RsyncFlags
	}

	return conf
}
