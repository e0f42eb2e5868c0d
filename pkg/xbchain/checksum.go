package xbchain

import (
	"encoding/hex"
	"io"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"
)

// CheckpointsChecksum hashes the xtrabackup_checkpoints file of a backup
// directory, which pins the LSN range the backup covers. Empty string if the
// file does not exist (xtrabackup writes it only on success).
func CheckpointsChecksum(backupDir string) (string, error) {
	path := filepath.Join(backupDir, "xtrabackup_checkpoints")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return "", nil
	}

	return ChecksumFile(path)
}

func ChecksumFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hasher := blake3.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", err
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}
