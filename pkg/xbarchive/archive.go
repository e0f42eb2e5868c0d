// Offsite archive format for xbak. Basically just: pkencryptedstream(zstd(tar(backupDir)))
// where the encryption layer is only present when an encryption key is configured.
package xbarchive

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/function61/gokit/cryptoutil"
	"github.com/function61/gokit/pkencryptedstream"
	"github.com/klauspost/compress/zstd"
)

type archiveWriter struct {
	encryptedStream io.WriteCloser // nil when not encrypting
	zstdWriter      *zstd.Encoder
}

func (a *archiveWriter) Write(buf []byte) (int, error) {
	return a.zstdWriter.Write(buf)
}

func (a *archiveWriter) Close() error {
	// zstd encoder does not close the underlying io.Writer
	if err := a.zstdWriter.Close(); err != nil {
		return err
	}

	if a.encryptedStream != nil {
		// is a cipher.StreamWriter which calls close on the underlying io.Writer
		return a.encryptedStream.Close()
	}

	return nil
}

// you need to call .Close() on the returned WriteCloser for the zstd frame and
// encryption process to finish gracefully
func CreateArchiveWriter(rsaPublicKeyPemPkcs1 string, sink io.Writer) (io.WriteCloser, error) {
	out := sink
	var encryptedStream io.WriteCloser

	if rsaPublicKeyPemPkcs1 != "" {
		publicKey, err := cryptoutil.ParsePemPkcs1EncodedRsaPublicKey([]byte(rsaPublicKeyPemPkcs1))
		if err != nil {
			return nil, err
		}

		encryptedStream, err = pkencryptedstream.Writer(sink, publicKey)
		if err != nil {
			return nil, err
		}

		out = encryptedStream
	}

	zstdWriter, err := zstd.NewWriter(out)
	if err != nil {
		return nil, err
	}

	return &archiveWriter{encryptedStream, zstdWriter}, nil
}

func CreateArchiveReader(rsaPrivateKeyPemPkcs1 string, input io.Reader) (io.Reader, error) {
	in := input

	if rsaPrivateKeyPemPkcs1 != "" {
		privateKey, err := cryptoutil.ParsePemPkcs1EncodedRsaPrivateKey([]byte(rsaPrivateKeyPemPkcs1))
		if err != nil {
			return nil, err
		}

		in, err = pkencryptedstream.Reader(input, privateKey)
		if err != nil {
			return nil, err
		}
	}

	zstdReader, err := zstd.NewReader(in)
	if err != nil {
		return nil, err
	}

	return zstdReader.IOReadCloser(), nil
}

// Pack writes backupDir as tar into sink, which is usually an archive writer
// from CreateArchiveWriter
func Pack(backupDir string, sink io.Writer) error {
	tarWriter := tar.NewWriter(sink)

	err := filepath.Walk(backupDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		relative, err := filepath.Rel(backupDir, path)
		if err != nil {
			return err
		}
		if relative == "." {
			return nil
		}

		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(relative)

		if err := tarWriter.WriteHeader(header); err != nil {
			return err
		}

		if !info.Mode().IsRegular() {
			return nil
		}

		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()

		_, err = io.Copy(tarWriter, file)
		return err
	})
	if err != nil {
		return err
	}

	return tarWriter.Close()
}

// Unpack extracts a tar stream (from CreateArchiveReader) into destDir
func Unpack(input io.Reader, destDir string) error {
	tarReader := tar.NewReader(input)

	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		name := filepath.FromSlash(header.Name)
		if strings.Contains(name, "..") {
			return fmt.Errorf("archive entry escapes destination: %s", header.Name)
		}
		path := filepath.Join(destDir, name)

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(path, os.FileMode(header.Mode)); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return err
			}

			file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(header.Mode))
			if err != nil {
				return err
			}
			if _, err := io.Copy(file, tarReader); err != nil {
				file.Close()
				return err
			}
			if err := file.Close(); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unsupported archive entry type for %s", header.Name)
		}
	}
}
