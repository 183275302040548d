// SPDX-License-Identifier: AGPL-3.0-or-later

/*

drydock - a zero-downtime schema-migration orchestrator.

Copyright (C) 2025  Bartek Kus

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

package dbdriver

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"drydock/pkg/model"
)

// Feature: DOMAIN_DB_DRIVER_PREDICATE
// Spec: SPEC_FULL.md §4.9, §9

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, letting
// evalPredicate run identically inside or outside a transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// evalPredicate renders the declarative Predicate enum to a parameterized
// catalog query and evaluates it. Identifiers are always passed as bind
// parameters to information_schema/pg_catalog lookups; predicates never
// interpolate user-supplied strings into SQL text.
func evalPredicate(ctx context.Context, q querier, pred model.Predicate) (bool, error) {
	switch pred.Kind {
	case model.PredTableExists:
		return queryExists(ctx, q,
			`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`,
			pred.Table)

	case model.PredColumnExists:
		return queryExists(ctx, q,
			`SELECT EXISTS (SELECT 1 FROM information_schema.columns WHERE table_name = $1 AND column_name = $2)`,
			pred.Table, pred.Column)

	case model.PredIndexExists:
		return queryExists(ctx, q,
			`SELECT EXISTS (SELECT 1 FROM pg_class WHERE relkind = 'i' AND relname = $1)`,
			pred.Name)

	case model.PredConstraintExists:
		return queryExists(ctx, q,
			`SELECT EXISTS (SELECT 1 FROM information_schema.table_constraints WHERE table_name = $1 AND constraint_name = $2)`,
			pred.Table, pred.Name)

	case model.PredNot:
		if pred.Not == nil {
			return false, fmt.Errorf("dbdriver: not-predicate missing operand")
		}
		ok, err := evalPredicate(ctx, q, *pred.Not)
		if err != nil {
			return false, err
		}
		return !ok, nil

	case model.PredAnd:
		for _, sub := range pred.And {
			ok, err := evalPredicate(ctx, q, sub)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil

	default:
		return false, fmt.Errorf("dbdriver: unknown predicate kind %q", pred.Kind)
	}
}

func queryExists(ctx context.Context, q querier, sql string, args ...any) (bool, error) {
	var exists bool
	if err := q.QueryRow(ctx, sql, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("dbdriver: evaluating predicate: %w", err)
	}
	return exists, nil
}
