package main

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"io"
	"os"

	"github.com/function61/gokit/cryptoutil"
	"github.com/function61/gokit/osutil"
	"github.com/mysqlkit/xbak/pkg/xbarchive"
	"github.com/spf13/cobra"
)

func decryptionKeyGenerate(out io.Writer) error {
	// using 4096 to be super safe, though 2048 seems to be what's currently used
	privKey, err := rsa.GenerateKey(rand.Reader, 4096)
	if err != nil {
		return err
	}

	privKeyBytes := cryptoutil.MarshalPemBytes(
		x509.MarshalPKCS1PrivateKey(privKey),
		cryptoutil.PemTypeRsaPrivateKey)

	if _, err := out.Write(privKeyBytes); err != nil {
		return err
	}

	return nil
}

func decryptionKeyToEncryptionKey(privKeyIn io.Reader, pubKeyOut io.Writer) error {
	privKeyPem, err := io.ReadAll(privKeyIn)
	if err != nil {
		return err
	}

	privKey, err := cryptoutil.ParsePemPkcs1EncodedRsaPrivateKey(privKeyPem)
	if err != nil {
		return err
	}

	if _, err := pubKeyOut.Write(cryptoutil.MarshalPemBytes(
		x509.MarshalPKCS1PublicKey(&privKey.PublicKey),
		cryptoutil.PemTypeRsaPublicKey),
	); err != nil {
		return err
	}

	return nil
}

func decryptEntry() *cobra.Command {
	unpackTo := ""

	cmd := &cobra.Command{
		Use:   "decrypt [pathToPrivateKey]",
		Short: "Decrypts an encrypted backup archive (stdin) with your private key",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			osutil.ExitIfError(func() error {
				privateKeyPem, err := os.ReadFile(args[0])
				if err != nil {
					return err
				}

				tarStream, err := xbarchive.CreateArchiveReader(string(privateKeyPem), os.Stdin)
				if err != nil {
					return err
				}

				if unpackTo != "" {
					return xbarchive.Unpack(tarStream, unpackTo)
				}

				_, err = io.Copy(os.Stdout, tarStream)
				return err
			}())
		},
	}

	cmd.Flags().StringVarP(&unpackTo, "unpack-to", "", unpackTo, "Extract into this directory instead of writing tar to stdout")

	return cmd
}

func decryptionKeyGenerateEntry() *cobra.Command {
	return &cobra.Command{
		Use:   "decryption-key-generate",
		Short: "Generate RSA private key for backup archive decryption",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			osutil.ExitIfError(decryptionKeyGenerate(os.Stdout))
		},
	}
}

func decryptionKeyToEncryptionKeyEntry() *cobra.Command {
	return &cobra.Command{
		Use:   "decryption-key-to-encryption-key",
		Short: "Prints encryption key of decryption key",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			osutil.ExitIfError(decryptionKeyToEncryptionKey(os.Stdin, os.Stdout))
		},
	}
}
