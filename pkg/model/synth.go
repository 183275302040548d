// SPDX-License-Identifier: AGPL-3.0-or-later

/*

drydock - a zero-downtime schema-migration orchestrator.

Copyright (C) 2025  Bartek Kus

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

package model

import (
	"fmt"
	"strings"
)

// Feature: CORE_MODEL_SYNTH
// Spec: SPEC_FULL.md §1 (Non-goals: no general SQL generation — this is a
// narrow, exhaustive templater over the closed Op set, not a schema
// compiler.)

// synthesizeSQL renders the DDL statement for ops whose shape is fully
// determined by their typed payload. backfill_sql always carries its own
// SQL and never reaches here (RenderSQL returns p.SQL for it directly).
func synthesizeSQL(op Op, p Payload) string {
	switch op {
	case OpCreateView:
		return fmt.Sprintf("CREATE VIEW %s AS %s", quoteIdent(p.Name), p.SQL)

	case OpAddComment:
		return fmt.Sprintf("COMMENT ON TABLE %s IS %s", quoteIdent(p.Table), quoteLiteral(p.Default))

	case OpCreateTable:
		return fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(p.Table), p.SQL)

	case OpAddColumn:
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", quoteIdent(p.Table), quoteIdent(p.Name), p.Type)
		if !p.Nullable {
			stmt += " NOT NULL"
		}
		if p.Default != "" {
			stmt += " DEFAULT " + p.Default
		}
		return stmt

	case OpAddIndexConcurrently:
		return fmt.Sprintf("CREATE INDEX CONCURRENTLY %s ON %s (%s)%s",
			quoteIdent(IndexNameFor(p)), quoteIdent(p.Table), strings.Join(p.Cols, ", "), whereClause(p))

	case OpAddIndex:
		unique := ""
		if p.Unique {
			unique = "UNIQUE "
		}
		return fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)%s",
			unique, quoteIdent(IndexNameFor(p)), quoteIdent(p.Table), strings.Join(p.Cols, ", "), whereClause(p))

	case OpAddForeignKeyNotValid:
		return fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s) NOT VALID",
			quoteIdent(p.Src), quoteIdent(FKNameFor(p)), quoteIdent(p.Col), quoteIdent(p.Tgt), quoteIdent(p.TgtCol))

	case OpValidateConstraint:
		return fmt.Sprintf("ALTER TABLE %s VALIDATE CONSTRAINT %s", quoteIdent(p.Table), quoteIdent(p.Name))

	case OpSetNotNull:
		return fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET NOT NULL", quoteIdent(p.Table), quoteIdent(p.Column))

	case OpDropColumn:
		return fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", quoteIdent(p.Table), quoteIdent(p.Column))

	case OpDropTable:
		return fmt.Sprintf("DROP TABLE %s", quoteIdent(p.Table))

	case OpAlterColumnType:
		return fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s", quoteIdent(p.Table), quoteIdent(p.Column), p.Type)

	default:
		return ""
	}
}

// IndexNameFor derives the default index name for a step that omits an
// explicit Payload.Name. Shared with pkg/obligations so the postcondition
// predicate always names the index the rendered DDL actually creates.
func IndexNameFor(p Payload) string {
	if p.Name != "" {
		return p.Name
	}
	return p.Table + "_" + strings.Join(p.Cols, "_") + "_idx"
}

// FKNameFor derives the default foreign-key constraint name for a step that
// omits an explicit Payload.Name. Shared with pkg/obligations for the same
// reason as IndexNameFor.
func FKNameFor(p Payload) string {
	if p.Name != "" {
		return p.Name
	}
	return p.Src + "_" + p.Col + "_fkey"
}

func whereClause(p Payload) string {
	if p.Where == "" {
		return ""
	}
	return " WHERE " + p.Where
}

// quoteIdent double-quotes a PostgreSQL identifier, preserving case: the
// downstream engine is case-sensitive once quoted, which is why the
// fingerprinter treats table-name case as semantically significant.
func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// quoteLiteral single-quotes a SQL string literal.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
