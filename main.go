// SPDX-License-Identifier: MPL-2.0

// cloudsh is a set of coreutils that work on local files and on cloud
// object storage.
package main

import cmd "github.com/cloudsh/cloudsh/cmd/cloudsh"

func main() {
	cmd.Execute()
}
