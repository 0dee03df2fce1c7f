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

// Resume scans logPath and writes outPath with the operations that reconcile
// a run interrupted partway through: documents an Insert record expected to
// create are either brought into line with the intended document (if a
// replay already created them) or removed (if not), and everything an
// Update or update-variant FindAndModify would have overwritten is restored
// from its live pre-image exactly as Revert does.
func Resume(ctx context.Context, finder Finder, logPath, outPath string, opts Options) error {
	return run(ctx, logPath, outPath, func(ctx context.Context, rec oplog.Record) ([]oplog.Record, error) {
		return resumeOne(ctx, finder, rec)
	})
}

func resumeOne(ctx context.Context, finder Finder, rec oplog.Record) ([]oplog.Record, error) {
	switch rec.Op {
	case oplog.KindInsert:
		return resumeInserts(ctx, finder, rec)

	case oplog.KindUpdate:
		return snapshotUpdates(ctx, finder, rec)

	case oplog.KindFindAndModify:
		remove, _ := rec.Cmd["remove"].(bool)
		if !hasKey(rec.Cmd, "remove") {
			remove = true
		}
		if remove {
			return nil, nil
		}
		query := asMap(rec.Cmd["query"])
		docs, err := finder.FindAll(ctx, rec.DB, rec.Coll, bson.M(query))
		if err != nil {
			return nil, err
		}
		if len(docs) == 0 {
			return nil, nil
		}
		return updateSnapshots(rec, docs), nil

	default: // Find, Count, Aggregate, GetMore, Delete, Command, None
		return nil, nil
	}
}

// resumeInserts decides, per intended document, whether a prior partial
// replay already created it: if so the document is brought into line with
// the intended state via Update; if not, any stray document sharing its _id
// (left over from an aborted write) is removed so the real replay pass can
// insert cleanly.
func resumeInserts(ctx context.Context, finder Finder, rec oplog.Record) ([]oplog.Record, error) {
	docs := asSlice(rec.Cmd["documents"])

	var toUpdate []bson.M
	var missingIDs []interface{}

	for _, d := range docs {
		doc := asMap(d)
		if doc == nil {
			continue
		}
		found, ok, err := finder.FindByID(ctx, rec.DB, rec.Coll, doc["_id"])
		if err != nil {
			return nil, err
		}
		if ok {
			_ = found
			toUpdate = append(toUpdate, doc)
		} else {
			missingIDs = append(missingIDs, doc["_id"])
		}
	}

	var out []oplog.Record
	if len(toUpdate) > 0 {
		out = append(out, updateSnapshots(rec, toUpdate)...)
	}
	if len(missingIDs) > 0 {
		out = append(out, deleteByIDs(rec, missingIDs))
	}
	return out, nil
}
