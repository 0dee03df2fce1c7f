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

package capture

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"mongobar/internal/oplog"
)

// fakeProfileCollection answers Find from a fixed set of documents via the
// driver's own NewCursorFromDocuments test constructor, so Pull can be
// exercised without a live mongod.
type fakeProfileCollection struct {
	docs []interface{}
	err  error
}

func (f fakeProfileCollection) Find(_ context.Context, _ interface{}) (*mongo.Cursor, error) {
	if f.err != nil {
		return nil, f.err
	}
	return mongo.NewCursorFromDocuments(f.docs, nil, nil)
}

func TestPullProjectsProfileEntriesToFindRecords(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "oplogs.op")

	coll := fakeProfileCollection{docs: []interface{}{
		bson.M{
			"op":        "query",
			"ns":        "bench.orders",
			"queryHash": "ABCD1234",
			"command":   bson.M{"find": "orders", "filter": bson.M{"status": "open"}},
			"ts":        time.Now(),
		},
	}}

	n, err := Pull(context.Background(), coll, "bench", Window{Start: time.Now().Add(-time.Hour), End: time.Now()}, out)
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if n != 1 {
		t.Fatalf("Pull wrote %d records, want 1", n)
	}

	recs, err := oplog.FullLoad(out, nil)
	if err != nil {
		t.Fatalf("FullLoad: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	if recs[0].Op != oplog.KindFind {
		t.Errorf("op = %s, want Find", recs[0].Op)
	}
	if recs[0].Coll != "orders" {
		t.Errorf("coll = %q, want orders", recs[0].Coll)
	}
	if recs[0].DB != "bench" {
		t.Errorf("db = %q, want bench", recs[0].DB)
	}
}

func TestPullSkipsEntriesWithoutQueryHash(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "oplogs.op")

	coll := fakeProfileCollection{docs: []interface{}{
		bson.M{"op": "query", "ns": "bench.orders", "command": bson.M{"find": "orders"}, "ts": time.Now()},
	}}

	n, err := Pull(context.Background(), coll, "bench", Window{Start: time.Now().Add(-time.Hour), End: time.Now()}, out)
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if n != 0 {
		t.Fatalf("Pull wrote %d records, want 0 (no queryHash)", n)
	}
}
