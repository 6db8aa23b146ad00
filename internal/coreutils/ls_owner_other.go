// SPDX-License-Identifier: MPL-2.0

//go:build !unix

package coreutils

import "github.com/cloudsh/cloudsh/pkg/cloudpath"

func ownerOf(_ cloudpath.Path, _ cloudpath.Info) (owner, group string, links uint64) {
	return "-", "-", 1
}
