// rnaseq: an RNA-Seq alignment, quantification and aggregation pipeline.
// Copyright (c) 2021 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/exascience/rnaseq/blob/master/LICENSE.txt>.

package internal

import "errors"

type exitCoder interface {
	ExitCode() int
}

// ExitCode returns the exit code of a finished process from the
// error returned by exec.Cmd.Run or exec.Cmd.Wait, or from any other
// error that has an ExitCode method. ok is false when err does not
// describe a process that ran to completion.
func ExitCode(err error) (code int, ok bool) {
	if err == nil {
		return 0, true
	}
	var exitErr exitCoder
	if errors.As(err, &exitErr) {
		code = exitErr.ExitCode()
		return code, code >= 0
	}
	return -1, false
}
