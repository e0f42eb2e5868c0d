package xbbackup

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mysqlkit/xbak/pkg/xbarchive"
	"github.com/mysqlkit/xbak/pkg/xbchain"
	"github.com/mysqlkit/xbak/pkg/xbstorage"
	"github.com/mysqlkit/xbak/pkg/xbtypes"
)

// ArchiveAndStore prepares the chain, packs the restorable base into a
// zstd-compressed (and, when a key is configured, encrypted) tar archive and
// uploads it to the configured storage. Returns the storage key.
func (o *Orchestrator) ArchiveAndStore(ctx context.Context, storage xbstorage.Storage) (string, error) {
	base, err := o.Prepare(ctx)
	if err != nil {
		return "", err
	}

	// some storages (I'm looking at you, S3) need a seekable reader, hence a temp file
	tempFile, err := os.CreateTemp("", "xbak")
	if err != nil {
		return "", err
	}
	defer func() {
		// remove archive after upload
		if err := os.Remove(tempFile.Name()); err != nil {
			o.logl.Error.Printf("error cleaning up archive tempfile: %v", err)
		}
	}()
	defer tempFile.Close()

	// nop closer because we need to close archiveWriter to finalize zstd and
	// encryption, but the encryption layer closes the underlying writer which we
	// don't want since we still need to hold the file open
	archiveWriter, err := xbarchive.CreateArchiveWriter(o.conf.EncryptionPublicKey, mkNopWriteCloser(tempFile))
	if err != nil {
		return "", err
	}

	packStartedAt := o.now()

	if err := xbarchive.Pack(base, archiveWriter); err != nil {
		return "", fmt.Errorf("pack failed (in %s): %v", time.Since(packStartedAt), err)
	}

	if err := archiveWriter.Close(); err != nil {
		return "", err
	}

	checksum, err := xbchain.ChecksumFile(tempFile.Name())
	if err != nil {
		return "", err
	}
	o.logl.Debug.Printf("archive checksum %s", checksum)

	if _, err := tempFile.Seek(0, io.SeekStart); err != nil {
		return "", err
	}

	o.logl.Debug.Printf("pack completed in %s; starting upload", time.Since(packStartedAt))

	suffix := ".tar.zst"
	if o.conf.EncryptionPublicKey != "" {
		suffix += ".aes"
	}

	uploadStartedAt := o.now()

	key, err := storage.Put(ctx, xbtypes.BackupFor(xbtypes.KindBase, base), suffix, tempFile)
	if err != nil {
		return "", err
	}

	o.logl.Debug.Printf("upload completed in %s", time.Since(uploadStartedAt))

	return key, nil
}

type nopWriterCloser struct {
	io.Writer
}

func mkNopWriteCloser(writer io.Writer) io.WriteCloser {
	return &nopWriterCloser{writer}
}

func (n *nopWriterCloser) Close() error {
	return nil
}
