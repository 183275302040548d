// SPDX-License-Identifier: AGPL-3.0-or-later

/*

drydock - a zero-downtime schema-migration orchestrator.

Copyright (C) 2025  Bartek Kus

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

package commands

// Feature: CLI_EXIT_CODES
// Spec: SPEC_FULL.md §6

// exitError carries the process exit code a command wants main() to use,
// per the code table in §6: 0 success, 1 failure, 2 rejection, 3 aborted,
// 4 lock unavailable, 5 governor abort.
type exitError struct {
	code int
	err  error
}

func (e exitError) Error() string {
	return e.err.Error()
}

func (e exitError) Unwrap() error {
	return e.err
}

// ExitCode extracts the intended process exit code from an error returned
// by a command's RunE, defaulting to 1 for any error that did not specify
// one.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if ee, ok := err.(exitError); ok { //nolint:errorlint // exitError is never wrapped by another type
		return ee.code
	}
	return 1
}
