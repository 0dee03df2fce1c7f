// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package synth builds the Revert and Resume operation logs: forward scans
// over a captured log that, against a live database, emit compensating Op
// Records so a destructive replay can be rolled back or reconciled.
package synth

import (
	"context"
	"fmt"
	"os"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"mongobar/internal/mongopool"
	"mongobar/internal/oplog"
)

// Finder is the minimal live-query surface both synthesis passes need:
// fetch every document in db.coll currently matching filter. Grounded in
// the teacher's RedisEvaler seam (persistence/redis.go): abstract only the
// methods the component calls so tests can substitute a fake.
type Finder interface {
	FindAll(ctx context.Context, db, coll string, filter bson.M) ([]bson.M, error)
	FindByID(ctx context.Context, db, coll string, id interface{}) (bson.M, bool, error)
}

// PoolFinder adapts a live *mongopool.Pool to the Finder seam used by
// production Revert/Resume passes.
type PoolFinder struct{ Pool *mongopool.Pool }

func (f PoolFinder) FindAll(ctx context.Context, db, coll string, filter bson.M) ([]bson.M, error) {
	client, err := f.Pool.Get(ctx, db+"."+coll)
	if err != nil {
		return nil, err
	}
	cur, err := client.Database(db).Collection(coll).Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("synth: find %s.%s: %w", db, coll, err)
	}
	defer cur.Close(ctx)

	var out []bson.M
	for cur.Next(ctx) {
		var doc bson.M
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("synth: decode %s.%s: %w", db, coll, err)
		}
		out = append(out, doc)
	}
	return out, cur.Err()
}

func (f PoolFinder) FindByID(ctx context.Context, db, coll string, id interface{}) (bson.M, bool, error) {
	client, err := f.Pool.Get(ctx, db+"."+coll)
	if err != nil {
		return nil, false, err
	}
	var doc bson.M
	err = client.Database(db).Collection(coll).FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("synth: findOne %s.%s: %w", db, coll, err)
	}
	return doc, true, nil
}

// Options tune both synthesis passes.
type Options struct {
	// SnapshotDeletes, when true, captures the pre-image of documents
	// matched by a Delete record's q so Revert can emit a compensating
	// Insert. Defaults to false so the default behavior matches the
	// documented current revision: Delete-revert is inert.
	SnapshotDeletes bool
}

func asSlice(v interface{}) []interface{} {
	switch t := v.(type) {
	case []interface{}:
		return t
	case bson.A:
		return t
	default:
		return nil
	}
}

func asMap(v interface{}) bson.M {
	switch t := v.(type) {
	case bson.M:
		return t
	case map[string]interface{}:
		return bson.M(t)
	default:
		return nil
	}
}

// run opens logPath under oplog.Streaming, invokes emit for every record,
// appends whatever compensating records emit produces to outPath, and
// finishes by reversing outPath so a forward replay of it undoes the
// source log in reverse chronological order.
func run(ctx context.Context, logPath, outPath string, emit func(context.Context, oplog.Record) ([]oplog.Record, error)) error {
	h, err := oplog.Open(logPath)
	if err != nil {
		return fmt.Errorf("synth: %w", err)
	}
	sr, err := oplog.Streaming(logPath, h.Length)
	if err != nil {
		return fmt.Errorf("synth: %w", err)
	}
	defer sr.Close()

	for {
		rec, ok := sr.Next()
		if !ok {
			break
		}
		out, err := emit(ctx, rec)
		if err != nil {
			return fmt.Errorf("synth: live query failed for %s record %s: %w", rec.Op, rec.ID, err)
		}
		for _, o := range out {
			if err := oplog.PushLine(outPath, o); err != nil {
				return fmt.Errorf("synth: %w", err)
			}
		}
	}

	// A log needing no compensation still leaves an (empty) outPath behind.
	f, err := os.OpenFile(outPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("synth: %w", err)
	}
	f.Close()

	if err := oplog.ReverseFile(outPath); err != nil {
		return fmt.Errorf("synth: %w", err)
	}
	return nil
}
