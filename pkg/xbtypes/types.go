package xbtypes

import (
	"time"
)

type BackupKind string

const (
	KindBase        BackupKind = "base"
	KindIncremental BackupKind = "incr"
)

// ChainEntry is one recorded backup in the chain: the base or one of the
// incrementals layered on top of it.
type ChainEntry struct {
	Kind     BackupKind `json:"kind"`
	Dir      string     `json:"dir"`
	Started  time.Time  `json:"started"`
	Checksum string     `json:"checksum,omitempty"`
}

type Backup struct {
	Started time.Time
	Kind    BackupKind
	Dir     string
}

func BackupFor(kind BackupKind, dir string) Backup {
	return Backup{
		Started: time.Now(),
		Kind:    kind,
		Dir:     dir,
	}
}
