package xbconfig

import (
	"io/ioutil"

	"github.com/aws/aws-sdk-go/aws/endpoints"
)

func DefaultConfig(pubkeyFilePath string) *Config {
	publicKeyContent := ""

	if pubkeyFilePath != "" {
		content, err := ioutil.ReadFile(pubkeyFilePath)
		if err != nil {
			panic(err)
		}

		publicKeyContent = string(content)
	}

	return &Config{
		BackupDir:           "/mysql_bak",
		DataDir:             "/var/lib/mysql",
		MysqlUser:           "root",
		MysqlPassword:       "",
		MysqlService:        "mysql",
		RsyncFlags:          "-avrP",
		ScheduleTimeUtc:     "01:00",
		EncryptionPublicKey: publicKeyContent,
	}
}

// everything optional filled in, for `config example --kitchensink`
func KitchenSinkConfig(pubkeyFilePath string) *Config {
	conf := DefaultConfig(pubkeyFilePath)

	if conf.EncryptionPublicKey == "" {
		conf.EncryptionPublicKey = `-----BEGIN RSA PUBLIC KEY-----
MIIBCgKCAQEA+xGZ/wcz9ugFpP07Nspo...
-----END RSA PUBLIC KEY-----`
	}

	conf.ScheduleCron = "0 1 * * *"
	conf.Storage = &StorageConfig{
		S3: &StorageS3Config{
			Bucket:          "mybucket",
			BucketRegion:    endpoints.UsEast1RegionID,
			AccessKeyId:     "AKIAUZHTE3U35WCD5...",
			AccessKeySecret: "wXQJhB...",
		},
	}
	conf.AlertManager = &AlertManagerConfig{
		BaseUrl: "https://example.com/url-to-my/alertmanager",
	}

	return conf
}
