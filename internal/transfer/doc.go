// SPDX-License-Identifier: MPL-2.0

// Package transfer copies and moves files between any two cloudpath
// locations. Engine handles one file-level plan, Walker decomposes a
// directory into plans, and RunCopy/RunMove implement the cp and mv
// operand rules on top of both.
package transfer
