package xbstorage

import (
	"context"
	"io"
	"time"

	"github.com/mysqlkit/xbak/pkg/xbtypes"
)

type StoredBackup struct {
	ID          string
	Timestamp   time.Time
	Size        int64
	Description string
}

type Storage interface {
	// suffix conveys the archive packaging, e.g. ".tar.zst" or ".tar.zst.aes"
	Put(ctx context.Context, backup xbtypes.Backup, suffix string, content io.ReadSeeker) (string, error)
	List(ctx context.Context, hostname string) ([]StoredBackup, error)
	ListHosts(ctx context.Context) ([]string, error)
	Get(ctx context.Context, id string) (io.ReadCloser, error)
}
