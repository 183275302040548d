// SPDX-License-Identifier: AGPL-3.0-or-later

/*

drydock - a zero-downtime schema-migration orchestrator.

Copyright (C) 2025  Bartek Kus

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

// Package fingerprint produces the deterministic step_sha idempotency key
// for a Step: a cryptographic digest of its canonical form.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"drydock/pkg/model"
)

// Feature: CORE_FINGERPRINT
// Spec: SPEC_FULL.md §4.1

// Fingerprint computes the hex-encoded SHA-256 digest of a Step's canonical
// form. It is deterministic across reimplementations: map-key order and
// field ordering never affect the result, and whitespace in SQL-bearing
// fields is normalized (leading and trailing whitespace trimmed, internal runs of
// whitespace collapsed to a single space) before hashing. Every other bit
// — table name case, type names, default expressions, limit values — is
// significant.
func Fingerprint(s model.Step) (string, error) {
	canon, err := canonicalize(s)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(canon))
	return hex.EncodeToString(sum[:]), nil
}

// canonicalize renders a Step to a stable string form. It is intentionally
// not JSON: field order, key quoting style and separator choice are all
// pinned explicitly here so the encoding is reproducible without relying on
// a particular json.Marshal implementation's map-ordering behavior.
func canonicalize(s model.Step) (string, error) {
	if s.Op == "" {
		return "", &model.PlanRejection{Kind: model.ErrInvalidStep, Message: "step missing op"}
	}

	var b strings.Builder
	b.WriteString("op=")
	b.WriteString(string(s.Op))

	writeField(&b, "table", s.Payload.Table)
	writeField(&b, "name", s.Payload.Name)
	writeField(&b, "column", s.Payload.Column)
	writeField(&b, "type", s.Payload.Type)
	writeField(&b, "nullable", fmt.Sprintf("%t", s.Payload.Nullable))
	writeField(&b, "default", normalizeWhitespace(s.Payload.Default))

	// Column order is semantically significant: synth.go renders index DDL
	// and derives default index names from Cols in declared order, so a
	// reordering is a genuinely different step and must not collide here.
	writeField(&b, "cols", strings.Join(s.Payload.Cols, ","))

	writeField(&b, "where", normalizeWhitespace(s.Payload.Where))
	writeField(&b, "unique", fmt.Sprintf("%t", s.Payload.Unique))
	writeField(&b, "src", s.Payload.Src)
	writeField(&b, "col", s.Payload.Col)
	writeField(&b, "tgt", s.Payload.Tgt)
	writeField(&b, "tgt_col", s.Payload.TgtCol)
	writeField(&b, "sql", normalizeWhitespace(s.Payload.SQL))

	if s.Limits != nil {
		if s.Limits.MaxLockMS != nil {
			writeField(&b, "limit.max_lock_ms", fmt.Sprintf("%d", *s.Limits.MaxLockMS))
		}
		if s.Limits.MaxStmtMS != nil {
			writeField(&b, "limit.max_stmt_ms", fmt.Sprintf("%d", *s.Limits.MaxStmtMS))
		}
		if s.Limits.RowsPerSecond != nil {
			writeField(&b, "limit.rows_per_second", fmt.Sprintf("%d", *s.Limits.RowsPerSecond))
		}
	}

	return b.String(), nil
}

func writeField(b *strings.Builder, key, value string) {
	if value == "" {
		return
	}
	b.WriteByte('\x1f') // unit separator: never appears in legitimate SQL/identifiers
	b.WriteString(key)
	b.WriteByte('=')
	b.WriteString(value)
}

// normalizeWhitespace trims leading and trailing whitespace and collapses internal runs
// of whitespace to a single space, so semantically-identical SQL bodies
// fingerprint identically regardless of formatting.
func normalizeWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}
