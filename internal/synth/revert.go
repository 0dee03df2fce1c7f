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

package synth

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"mongobar/internal/oplog"
)

// Revert scans logPath and writes outPath with the operations that undo it:
// a pre-image snapshot is taken against the live database for every record
// whose effect needs restoring, before that record is ever replayed.
func Revert(ctx context.Context, finder Finder, logPath, outPath string, opts Options) error {
	return run(ctx, logPath, outPath, func(ctx context.Context, rec oplog.Record) ([]oplog.Record, error) {
		return revertOne(ctx, finder, rec, opts)
	})
}

func revertOne(ctx context.Context, finder Finder, rec oplog.Record, opts Options) ([]oplog.Record, error) {
	switch rec.Op {
	case oplog.KindInsert:
		docs := asSlice(rec.Cmd["documents"])
		var ids []interface{}
		for _, d := range docs {
			if doc := asMap(d); doc != nil {
				ids = append(ids, doc["_id"])
			}
		}
		if len(ids) == 0 {
			return nil, nil
		}
		return []oplog.Record{deleteByIDs(rec, ids)}, nil

	case oplog.KindUpdate:
		return snapshotUpdates(ctx, finder, rec)

	case oplog.KindDelete:
		if !opts.SnapshotDeletes {
			return nil, nil
		}
		return snapshotDeletes(ctx, finder, rec)

	case oplog.KindFindAndModify:
		remove, _ := rec.Cmd["remove"].(bool)
		if !hasKey(rec.Cmd, "remove") {
			remove = true
		}
		query := asMap(rec.Cmd["query"])
		docs, err := finder.FindAll(ctx, rec.DB, rec.Coll, bson.M(query))
		if err != nil {
			return nil, err
		}
		if len(docs) == 0 {
			return nil, nil
		}
		if remove {
			return []oplog.Record{insertSnapshot(rec, docs)}, nil
		}
		return updateSnapshots(rec, docs), nil

	default: // Find, Count, Aggregate, GetMore, Command, None
		return nil, nil
	}
}

func hasKey(m bson.M, k string) bool {
	_, ok := m[k]
	return ok
}

// snapshotUpdates takes the pre-image of every document an Update record is
// about to touch, so reverting means setting them back exactly as found.
// Per invariant 7, one matching document yields one Update record, not a
// single record batching every restored document's updates array.
func snapshotUpdates(ctx context.Context, finder Finder, rec oplog.Record) ([]oplog.Record, error) {
	updates := asSlice(rec.Cmd["updates"])
	var docs []bson.M
	for _, u := range updates {
		upd := asMap(u)
		if upd == nil {
			continue
		}
		matched, err := finder.FindAll(ctx, rec.DB, rec.Coll, bson.M(asMap(upd["q"])))
		if err != nil {
			return nil, err
		}
		docs = append(docs, matched...)
	}
	return updateSnapshots(rec, docs), nil
}

func snapshotDeletes(ctx context.Context, finder Finder, rec oplog.Record) ([]oplog.Record, error) {
	deletes := asSlice(rec.Cmd["deletes"])
	var docs []bson.M
	for _, d := range deletes {
		del := asMap(d)
		if del == nil {
			continue
		}
		matched, err := finder.FindAll(ctx, rec.DB, rec.Coll, bson.M(asMap(del["q"])))
		if err != nil {
			return nil, err
		}
		docs = append(docs, matched...)
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return []oplog.Record{insertSnapshot(rec, docs)}, nil
}

func deleteByIDs(src oplog.Record, ids []interface{}) oplog.Record {
	cmd := bson.M{"deletes": []interface{}{
		bson.M{"q": bson.M{"_id": bson.M{"$in": ids}}, "limit": 0},
	}}
	return oplog.Record{ID: oplog.HashCommand(cmd), Op: oplog.KindDelete, DB: src.DB, Coll: src.Coll, Cmd: cmd, TS: src.TS}
}

func insertSnapshot(src oplog.Record, docs []bson.M) oplog.Record {
	documents := make([]interface{}, 0, len(docs))
	for _, d := range docs {
		documents = append(documents, d)
	}
	cmd := bson.M{"documents": documents}
	return oplog.Record{ID: oplog.HashCommand(cmd), Op: oplog.KindInsert, DB: src.DB, Coll: src.Coll, Cmd: cmd, TS: src.TS}
}

// updateSnapshot builds one Update record that restores a single document
// by _id, wrapping the pre-image in $set so the write is a partial restore
// rather than a full-document replacement (spec Testable Scenario S5).
func updateSnapshot(src oplog.Record, d bson.M) oplog.Record {
	cmd := bson.M{"updates": []interface{}{
		bson.M{"q": bson.M{"_id": d["_id"]}, "u": bson.M{"$set": d}, "multi": false, "upsert": false},
	}}
	return oplog.Record{ID: oplog.HashCommand(cmd), Op: oplog.KindUpdate, DB: src.DB, Coll: src.Coll, Cmd: cmd, TS: src.TS}
}

// updateSnapshots builds one Update record per document in docs, per
// invariant 7 (k matching documents yield exactly k Update records).
func updateSnapshots(src oplog.Record, docs []bson.M) []oplog.Record {
	if len(docs) == 0 {
		return nil
	}
	out := make([]oplog.Record, 0, len(docs))
	for _, d := range docs {
		out = append(out, updateSnapshot(src, d))
	}
	return out
}
