// SPDX-License-Identifier: MPL-2.0

//go:build unix

package coreutils

import (
	"os"
	"os/user"
	"strconv"
	"syscall"

	"github.com/cloudsh/cloudsh/pkg/cloudpath"
)

// ownerOf returns the owner, group and link count shown by ls -l. Cloud
// objects have no owner and show "-".
func ownerOf(p cloudpath.Path, info cloudpath.Info) (owner, group string, links uint64) {
	if !p.Ref().IsLocal() {
		return "-", "-", 1
	}
	fi, err := os.Lstat(p.Ref().Key)
	if err != nil {
		return "-", "-", 1
	}
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return "-", "-", 1
	}

	uid := strconv.FormatUint(uint64(st.Uid), 10)
	gid := strconv.FormatUint(uint64(st.Gid), 10)
	owner, group = uid, gid
	if u, err := user.LookupId(uid); err == nil {
		owner = u.Username
	}
	if g, err := user.LookupGroupId(gid); err == nil {
		group = g.Name
	}
	return owner, group, uint64(st.Nlink) //nolint:unconvert // Nlink width differs per platform
}
