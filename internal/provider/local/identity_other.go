// SPDX-License-Identifier: MPL-2.0

//go:build !unix && !windows

package local

import (
	"io/fs"

	"github.com/cloudsh/cloudsh/pkg/cloudpath"
)

func identityOf(string, fs.FileInfo) cloudpath.Identity { return cloudpath.Identity{} }

func isCrossDevice(error) bool { return false }

func chown(string, fs.FileInfo) error { return nil }
