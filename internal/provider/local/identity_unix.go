// SPDX-License-Identifier: MPL-2.0

//go:build unix

package local

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"syscall"

	"github.com/cloudsh/cloudsh/pkg/cloudpath"

	"golang.org/x/sys/unix"
)

// identityOf fingerprints a file by device and inode number.
func identityOf(_ string, fi fs.FileInfo) cloudpath.Identity {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return cloudpath.Identity{}
	}
	return cloudpath.Identity{
		Kind:  cloudpath.IdentityInode,
		Value: strconv.FormatUint(uint64(st.Dev), 10) + ":" + strconv.FormatUint(uint64(st.Ino), 10),
	}
}

func isCrossDevice(err error) bool {
	return errors.Is(err, unix.EXDEV)
}

func chown(path string, fi fs.FileInfo) error {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return nil
	}
	return os.Lchown(path, int(st.Uid), int(st.Gid))
}
