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
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"go.mongodb.org/mongo-driver/bson"

	"mongobar/internal/oplog"
)

// fakeFinder answers FindAll/FindByID from a fixed in-memory table, keyed
// by db.coll, standing in for a live collection during synthesis tests.
type fakeFinder struct {
	docs map[string][]bson.M
}

func (f fakeFinder) key(db, coll string) string { return db + "." + coll }

func (f fakeFinder) FindAll(_ context.Context, db, coll string, filter bson.M) ([]bson.M, error) {
	var out []bson.M
	id, hasID := filter["_id"]
	for _, d := range f.docs[f.key(db, coll)] {
		if hasID && d["_id"] != id {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (f fakeFinder) FindByID(_ context.Context, db, coll string, id interface{}) (bson.M, bool, error) {
	for _, d := range f.docs[f.key(db, coll)] {
		if d["_id"] == id {
			return d, true, nil
		}
	}
	return nil, false, nil
}

func writeLog(t *testing.T, dir, name string, recs []oplog.Record) string {
	t.Helper()
	path := filepath.Join(dir, name)
	for _, r := range recs {
		if err := oplog.PushLine(path, r); err != nil {
			t.Fatalf("PushLine: %v", err)
		}
	}
	return path
}

// S4: revert of insert. Log contains one Insert of documents [{_id:"a"},
// {_id:"b"}]. After Revert synthesis and file-reverse, revert.op contains
// exactly one record: Delete with q = {_id: {$in: ["a","b"]}}, limit: 0.
func TestS4RevertOfInsert(t *testing.T) {
	dir := t.TempDir()
	src := writeLog(t, dir, "oplogs.op", []oplog.Record{
		{ID: "1", Op: oplog.KindInsert, DB: "bench", Coll: "orders", Cmd: bson.M{
			"documents": []interface{}{bson.M{"_id": "a"}, bson.M{"_id": "b"}},
		}},
	})
	out := filepath.Join(dir, "revert.op")

	finder := fakeFinder{docs: map[string][]bson.M{}}
	if err := Revert(context.Background(), finder, src, out, Options{}); err != nil {
		t.Fatalf("Revert: %v", err)
	}

	recs, err := oplog.FullLoad(out, nil)
	if err != nil {
		t.Fatalf("FullLoad: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d revert records, want 1", len(recs))
	}
	rec := recs[0]
	if rec.Op != oplog.KindDelete {
		t.Fatalf("op = %s, want Delete", rec.Op)
	}
	deletes := asSlice(rec.Cmd["deletes"])
	if len(deletes) != 1 {
		t.Fatalf("got %d delete entries, want 1", len(deletes))
	}
	del := asMap(deletes[0])
	q := asMap(del["q"])
	in := asMap(q["_id"])["$in"]
	ids := asSlice(in)
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Fatalf("q._id.$in = %v, want [a b]", ids)
	}
	if limit, _ := del["limit"].(float64); limit != 0 {
		t.Fatalf("limit = %v, want 0", del["limit"])
	}
}

// S5: revert of update. Collection contains {_id:"x", v:1}. Log contains one
// Update with updates:[{q:{_id:"x"}, u:{$set:{v:2}}}]. Revert synthesis
// against the live DB emits one Update {q:{_id:"x"},
// u:{$set:{_id:"x", v:1}}, multi:false, upsert:false}.
func TestS5RevertOfUpdate(t *testing.T) {
	dir := t.TempDir()
	src := writeLog(t, dir, "oplogs.op", []oplog.Record{
		{ID: "1", Op: oplog.KindUpdate, DB: "bench", Coll: "orders", Cmd: bson.M{
			"updates": []interface{}{bson.M{
				"q": bson.M{"_id": "x"}, "u": bson.M{"$set": bson.M{"v": 2}},
			}},
		}},
	})
	out := filepath.Join(dir, "revert.op")

	finder := fakeFinder{docs: map[string][]bson.M{
		"bench.orders": {{"_id": "x", "v": 1}},
	}}
	if err := Revert(context.Background(), finder, src, out, Options{}); err != nil {
		t.Fatalf("Revert: %v", err)
	}

	recs, err := oplog.FullLoad(out, nil)
	if err != nil {
		t.Fatalf("FullLoad: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d revert records, want 1", len(recs))
	}
	rec := recs[0]
	if rec.Op != oplog.KindUpdate {
		t.Fatalf("op = %s, want Update", rec.Op)
	}
	updates := asSlice(rec.Cmd["updates"])
	if len(updates) != 1 {
		t.Fatalf("got %d update entries, want 1", len(updates))
	}
	upd := asMap(updates[0])
	q := asMap(upd["q"])
	if q["_id"] != "x" {
		t.Fatalf("q._id = %v, want x", q["_id"])
	}
	set := asMap(asMap(upd["u"])["$set"])
	if set["_id"] != "x" {
		t.Fatalf("u.$set._id = %v, want x", set["_id"])
	}
	if v, _ := set["v"].(float64); v != 1 {
		t.Fatalf("u.$set.v = %v, want 1", set["v"])
	}
	if multi, _ := upd["multi"].(bool); multi {
		t.Fatal("multi should be false")
	}
	if upsert, _ := upd["upsert"].(bool); upsert {
		t.Fatal("upsert should be false")
	}
}

// TestRevertOfUpdateEmitsOneRecordPerMatchedDocument covers invariant 7
// directly: an Update matching k>1 live documents yields exactly k Update
// records, each restoring one document by _id, not one record batching
// every restore into a single updates array.
func TestRevertOfUpdateEmitsOneRecordPerMatchedDocument(t *testing.T) {
	dir := t.TempDir()
	src := writeLog(t, dir, "oplogs.op", []oplog.Record{
		{ID: "1", Op: oplog.KindUpdate, DB: "bench", Coll: "orders", Cmd: bson.M{
			"updates": []interface{}{bson.M{
				"q": bson.M{"status": "pending"}, "u": bson.M{"$set": bson.M{"status": "done"}}, "multi": true,
			}},
		}},
	})
	out := filepath.Join(dir, "revert.op")

	finder := fakeFinder{docs: map[string][]bson.M{
		"bench.orders": {{"_id": "a", "status": "pending"}, {"_id": "b", "status": "pending"}, {"_id": "c", "status": "pending"}},
	}}
	if err := Revert(context.Background(), finder, src, out, Options{}); err != nil {
		t.Fatalf("Revert: %v", err)
	}

	recs, err := oplog.FullLoad(out, nil)
	if err != nil {
		t.Fatalf("FullLoad: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d revert records, want 3 (one per matched document)", len(recs))
	}
	seen := make(map[string]bool)
	for _, r := range recs {
		if r.Op != oplog.KindUpdate {
			t.Fatalf("op = %s, want Update", r.Op)
		}
		updates := asSlice(r.Cmd["updates"])
		if len(updates) != 1 {
			t.Fatalf("got %d update entries in one record, want 1", len(updates))
		}
		upd := asMap(updates[0])
		q := asMap(upd["q"])
		seen[fmt.Sprint(q["_id"])] = true
	}
	for _, id := range []string{"a", "b", "c"} {
		if !seen[id] {
			t.Errorf("missing revert record restoring _id=%q", id)
		}
	}
}

// TestDeleteRevertInertByDefault documents the chosen resolution for the
// Delete-revert open question: with Options.SnapshotDeletes unset, a Delete
// record produces no compensating revert record.
func TestDeleteRevertInertByDefault(t *testing.T) {
	dir := t.TempDir()
	src := writeLog(t, dir, "oplogs.op", []oplog.Record{
		{ID: "1", Op: oplog.KindDelete, DB: "bench", Coll: "orders", Cmd: bson.M{
			"deletes": []interface{}{bson.M{"q": bson.M{"_id": "x"}, "limit": 0}},
		}},
	})
	out := filepath.Join(dir, "revert.op")

	finder := fakeFinder{docs: map[string][]bson.M{"bench.orders": {{"_id": "x", "v": 1}}}}
	if err := Revert(context.Background(), finder, src, out, Options{}); err != nil {
		t.Fatalf("Revert: %v", err)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatalf("expected revert.op to still be created (even if empty): %v", err)
	}
	recs, err := oplog.FullLoad(out, nil)
	if err != nil {
		t.Fatalf("FullLoad: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("got %d revert records, want 0 (delete-revert is inert by default)", len(recs))
	}
}

// TestDeleteRevertWithSnapshotOption exercises the opt-in path: with
// SnapshotDeletes enabled, the pre-image is captured and an Insert is
// emitted to restore it.
func TestDeleteRevertWithSnapshotOption(t *testing.T) {
	dir := t.TempDir()
	src := writeLog(t, dir, "oplogs.op", []oplog.Record{
		{ID: "1", Op: oplog.KindDelete, DB: "bench", Coll: "orders", Cmd: bson.M{
			"deletes": []interface{}{bson.M{"q": bson.M{"_id": "x"}, "limit": 0}},
		}},
	})
	out := filepath.Join(dir, "revert.op")

	finder := fakeFinder{docs: map[string][]bson.M{"bench.orders": {{"_id": "x", "v": 1}}}}
	if err := Revert(context.Background(), finder, src, out, Options{SnapshotDeletes: true}); err != nil {
		t.Fatalf("Revert: %v", err)
	}
	recs, err := oplog.FullLoad(out, nil)
	if err != nil {
		t.Fatalf("FullLoad: %v", err)
	}
	if len(recs) != 1 || recs[0].Op != oplog.KindInsert {
		t.Fatalf("got %+v, want one Insert record", recs)
	}
}

// TestResumeInsertUpdatesOrDeletesByLiveState covers invariant 7 (resume
// reconciles a partial insert either way): one intended document already
// exists live and must be brought into line; one is missing and must be
// deleted so the real replay can insert it cleanly.
func TestResumeInsertUpdatesOrDeletesByLiveState(t *testing.T) {
	dir := t.TempDir()
	src := writeLog(t, dir, "oplogs.op", []oplog.Record{
		{ID: "1", Op: oplog.KindInsert, DB: "bench", Coll: "orders", Cmd: bson.M{
			"documents": []interface{}{bson.M{"_id": "a", "v": 9}, bson.M{"_id": "b", "v": 9}},
		}},
	})
	out := filepath.Join(dir, "resume.op")

	finder := fakeFinder{docs: map[string][]bson.M{
		"bench.orders": {{"_id": "a", "v": 1}}, // only "a" was already created
	}}
	if err := Resume(context.Background(), finder, src, out, Options{}); err != nil {
		t.Fatalf("Resume: %v", err)
	}

	recs, err := oplog.FullLoad(out, nil)
	if err != nil {
		t.Fatalf("FullLoad: %v", err)
	}
	var sawUpdate, sawDelete bool
	for _, r := range recs {
		switch r.Op {
		case oplog.KindUpdate:
			sawUpdate = true
		case oplog.KindDelete:
			sawDelete = true
		}
	}
	if !sawUpdate {
		t.Error("expected an Update record reconciling the already-created document")
	}
	if !sawDelete {
		t.Error("expected a Delete record removing the still-missing document's stray id")
	}
}

func TestRevertFindAndModifyRemoveVariantReinserts(t *testing.T) {
	dir := t.TempDir()
	src := writeLog(t, dir, "oplogs.op", []oplog.Record{
		{ID: "1", Op: oplog.KindFindAndModify, DB: "bench", Coll: "orders", Cmd: bson.M{
			"query": bson.M{"_id": "x"}, "remove": true,
		}},
	})
	out := filepath.Join(dir, "revert.op")

	finder := fakeFinder{docs: map[string][]bson.M{"bench.orders": {{"_id": "x", "v": 1}}}}
	if err := Revert(context.Background(), finder, src, out, Options{}); err != nil {
		t.Fatalf("Revert: %v", err)
	}
	recs, err := oplog.FullLoad(out, nil)
	if err != nil {
		t.Fatalf("FullLoad: %v", err)
	}
	if len(recs) != 1 || recs[0].Op != oplog.KindInsert {
		t.Fatalf("got %+v, want one Insert record", recs)
	}
}

func TestRevertNoCompensationForReadOps(t *testing.T) {
	dir := t.TempDir()
	src := writeLog(t, dir, "oplogs.op", []oplog.Record{
		{ID: "1", Op: oplog.KindFind, DB: "bench", Coll: "orders", Cmd: bson.M{"find": "orders"}},
		{ID: "2", Op: oplog.KindCount, DB: "bench", Coll: "orders", Cmd: bson.M{"count": "orders"}},
		{ID: "3", Op: oplog.KindAggregate, DB: "bench", Coll: "orders", Cmd: bson.M{"pipeline": []interface{}{}}},
		{ID: "4", Op: oplog.KindGetMore, DB: "bench", Coll: "orders", Cmd: bson.M{}},
		{ID: "5", Op: oplog.KindNone},
	})
	out := filepath.Join(dir, "revert.op")

	finder := fakeFinder{docs: map[string][]bson.M{}}
	if err := Revert(context.Background(), finder, src, out, Options{}); err != nil {
		t.Fatalf("Revert: %v", err)
	}
	recs, err := oplog.FullLoad(out, nil)
	if err != nil {
		t.Fatalf("FullLoad: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("got %d revert records for read-only/None ops, want 0", len(recs))
	}
}
