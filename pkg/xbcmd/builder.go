// Package xbcmd builds the argv of every external tool xbak drives (xtrabackup,
// rsync, ssh, service, chown) and runs them. No backup logic lives here.
package xbcmd

import (
	"fmt"
	"strings"
)

type Invocation struct {
	Path string
	Args []string
}

func (i Invocation) Argv() []string {
	return append([]string{i.Path}, i.Args...)
}

// String renders the invocation for logging, with credentials masked
func (i Invocation) String() string {
	parts := []string{i.Path}
	for _, arg := range i.Args {
		if strings.HasPrefix(arg, "--password=") {
			arg = "--password=****"
		}
		parts = append(parts, arg)
	}
	return strings.Join(parts, " ")
}

func Backup(user string, password string, targetDir string) Invocation {
	return Invocation{"xtrabackup", []string{
		"--user=" + user,
		"--password=" + password,
		"--backup",
		"--target-dir=" + targetDir,
	}}
}

func IncrementalBackup(user string, password string, targetDir string, basedir string) Invocation {
	inv := Backup(user, password, targetDir)
	inv.Args = append(inv.Args, "--incremental-basedir="+basedir)
	return inv
}

func Prepare(targetDir string, applyLogOnly bool) Invocation {
	args := []string{"--prepare"}
	if applyLogOnly {
		args = append(args, "--apply-log-only")
	}
	args = append(args, "--target-dir="+targetDir)
	return Invocation{"xtrabackup", args}
}

func ApplyIncremental(targetDir string, incrementalDir string, applyLogOnly bool) Invocation {
	inv := Prepare(targetDir, applyLogOnly)
	inv.Args = append(inv.Args, "--incremental-dir="+incrementalDir)
	return inv
}

func Rsync(flags string, src string, dest string) Invocation {
	return Invocation{"rsync", append(strings.Fields(flags), src, dest)}
}

// RemoteShell runs a command on the target host over the pre-established
// passwordless ssh channel
func RemoteShell(user string, host string, command Invocation) Invocation {
	return Invocation{"ssh", []string{
		fmt.Sprintf("%s@%s", user, host),
		strings.Join(command.Argv(), " "),
	}}
}

func ServiceStop(service string) Invocation {
	return Invocation{"service", []string{service, "stop"}}
}

func ServiceRestart(service string) Invocation {
	return Invocation{"service", []string{service, "restart"}}
}

func ChownRecursive(owner string, dir string) Invocation {
	return Invocation{"chown", []string{"-R", owner, dir}}
}
