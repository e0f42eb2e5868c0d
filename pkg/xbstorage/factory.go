package xbstorage

import (
	"errors"
	"log"

	"github.com/mysqlkit/xbak/pkg/xbconfig"
)

func StorageFromConfig(conf *xbconfig.StorageConfig, logger *log.Logger) (Storage, error) {
	if conf == nil || conf.S3 == nil {
		return nil, errors.New("S3 config not set")
	}

	return NewS3BackupStorage(*conf.S3, logger)
}
