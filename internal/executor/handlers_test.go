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

package executor

import (
	"context"
	"errors"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"mongobar/internal/oplog"
)

// fakeClient/fakeDatabase/fakeCollection implement the mongoClient seam so
// dispatch() can be exercised without a live mongod, in the same style as
// the teacher's RedisEvaler-backed persistence tests.
type fakeClient struct {
	dbs map[string]*fakeDatabase
}

func newFakeClient() *fakeClient {
	return &fakeClient{dbs: make(map[string]*fakeDatabase)}
}

func (f *fakeClient) Database(name string) mongoDatabase {
	db, ok := f.dbs[name]
	if !ok {
		db = &fakeDatabase{name: name, colls: make(map[string]*fakeCollection)}
		f.dbs[name] = db
	}
	return db
}

type fakeDatabase struct {
	name  string
	colls map[string]*fakeCollection

	runCommands   []bson.M
	cursorCmds    []bson.M
	runCommandErr error
	cursorErr     error
}

func (f *fakeDatabase) Collection(name string) mongoCollection {
	c, ok := f.colls[name]
	if !ok {
		c = &fakeCollection{name: name}
		f.colls[name] = c
	}
	return c
}

func (f *fakeDatabase) RunCommand(_ context.Context, cmd interface{}) *mongo.SingleResult {
	f.runCommands = append(f.runCommands, cmd.(bson.M))
	if f.runCommandErr != nil {
		return mongo.NewSingleResultFromDocument(bson.M{}, f.runCommandErr, nil)
	}
	return mongo.NewSingleResultFromDocument(bson.M{"ok": 1}, nil, nil)
}

func (f *fakeDatabase) RunCommandCursor(_ context.Context, cmd interface{}) (*mongo.Cursor, error) {
	f.cursorCmds = append(f.cursorCmds, cmd.(bson.M))
	if f.cursorErr != nil {
		return nil, f.cursorErr
	}
	return mongo.NewCursorFromDocuments(nil, nil, nil)
}

type fakeCollection struct {
	name string

	inserted []interface{}
	updates  []fakeUpdate
	deletes  []interface{}

	foundAndDeleted []interface{}
	foundAndUpdated []fakeUpdate

	aggPipelines [][]interface{}
	findQueries  []interface{}

	err error
}

type fakeUpdate struct {
	q, u   interface{}
	upsert bool
}

func (f *fakeCollection) InsertOne(_ context.Context, doc interface{}) error {
	f.inserted = append(f.inserted, doc)
	return f.err
}

func (f *fakeCollection) UpdateMany(_ context.Context, q, u interface{}, upsert bool) error {
	f.updates = append(f.updates, fakeUpdate{q: q, u: u, upsert: upsert})
	return f.err
}

func (f *fakeCollection) DeleteMany(_ context.Context, q interface{}) error {
	f.deletes = append(f.deletes, q)
	return f.err
}

func (f *fakeCollection) FindOneAndDelete(_ context.Context, q interface{}) error {
	f.foundAndDeleted = append(f.foundAndDeleted, q)
	return f.err
}

func (f *fakeCollection) FindOneAndUpdate(_ context.Context, q, u interface{}) error {
	f.foundAndUpdated = append(f.foundAndUpdated, fakeUpdate{q: q, u: u})
	return f.err
}

func (f *fakeCollection) Aggregate(_ context.Context, pipeline []interface{}) (*mongo.Cursor, error) {
	f.aggPipelines = append(f.aggPipelines, pipeline)
	if f.err != nil {
		return nil, f.err
	}
	return mongo.NewCursorFromDocuments(nil, nil, nil)
}

func (f *fakeCollection) Find(_ context.Context, q interface{}, _ int64) (*mongo.Cursor, error) {
	f.findQueries = append(f.findQueries, q)
	if f.err != nil {
		return nil, f.err
	}
	return mongo.NewCursorFromDocuments(nil, nil, nil)
}

func TestDispatchFindStripsEnvelope(t *testing.T) {
	c := newFakeClient()
	rec := oplog.Record{
		Op: oplog.KindFind, DB: "bench", Coll: "orders",
		Cmd: bson.M{"find": "orders", "lsid": bson.M{"id": 1}, "$db": "bench"},
	}
	if err := dispatch(context.Background(), c, rec, ReadOnly); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	db := c.dbs["bench"]
	if len(db.cursorCmds) != 1 {
		t.Fatalf("expected 1 cursor command, got %d", len(db.cursorCmds))
	}
	if _, ok := db.cursorCmds[0]["lsid"]; ok {
		t.Fatal("lsid envelope field should have been stripped")
	}
	if _, ok := db.cursorCmds[0]["$db"]; ok {
		t.Fatal("$db envelope field should have been stripped")
	}
}

func TestDispatchCountUsesRunCommand(t *testing.T) {
	c := newFakeClient()
	rec := oplog.Record{Op: oplog.KindCount, DB: "bench", Coll: "orders", Cmd: bson.M{"count": "orders"}}
	if err := dispatch(context.Background(), c, rec, ReadOnly); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(c.dbs["bench"].runCommands) != 1 {
		t.Fatal("expected exactly one RunCommand call")
	}
}

func TestDispatchInsertSkippedInReadOnly(t *testing.T) {
	c := newFakeClient()
	rec := oplog.Record{
		Op: oplog.KindInsert, DB: "bench", Coll: "orders",
		Cmd: bson.M{"documents": []interface{}{bson.M{"_id": "a"}}},
	}
	if err := dispatch(context.Background(), c, rec, ReadOnly); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	coll := c.dbs["bench"].colls["orders"]
	if coll != nil && len(coll.inserted) != 0 {
		t.Fatal("Insert should be a no-op under ReadOnly")
	}
}

func TestDispatchInsertStripsVersionField(t *testing.T) {
	c := newFakeClient()
	rec := oplog.Record{
		Op: oplog.KindInsert, DB: "bench", Coll: "orders",
		Cmd: bson.M{"documents": []interface{}{
			bson.M{"_id": "a", "__v": 3},
			bson.M{"_id": "b", "__v": 1},
		}},
	}
	if err := dispatch(context.Background(), c, rec, ReadWrite); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	coll := c.dbs["bench"].colls["orders"]
	if len(coll.inserted) != 2 {
		t.Fatalf("expected 2 inserts, got %d", len(coll.inserted))
	}
	for _, d := range coll.inserted {
		doc := d.(bson.M)
		if _, ok := doc["__v"]; ok {
			t.Fatal("__v should have been stripped before insert")
		}
	}
}

func TestDispatchUpdateIssuesUpdateManyPerEntry(t *testing.T) {
	c := newFakeClient()
	rec := oplog.Record{
		Op: oplog.KindUpdate, DB: "bench", Coll: "orders",
		Cmd: bson.M{"updates": []interface{}{
			bson.M{"q": bson.M{"_id": "x"}, "u": bson.M{"$set": bson.M{"v": 2}}, "upsert": true},
		}},
	}
	if err := dispatch(context.Background(), c, rec, ReadWrite); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	coll := c.dbs["bench"].colls["orders"]
	if len(coll.updates) != 1 || !coll.updates[0].upsert {
		t.Fatalf("expected one upsert update, got %+v", coll.updates)
	}
}

func TestDispatchDeleteIssuesDeleteManyPerEntry(t *testing.T) {
	c := newFakeClient()
	rec := oplog.Record{
		Op: oplog.KindDelete, DB: "bench", Coll: "orders",
		Cmd: bson.M{"deletes": []interface{}{bson.M{"q": bson.M{"_id": "x"}, "limit": 0}}},
	}
	if err := dispatch(context.Background(), c, rec, ReadWrite); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	coll := c.dbs["bench"].colls["orders"]
	if len(coll.deletes) != 1 {
		t.Fatal("expected exactly one DeleteMany call")
	}
}

func TestDispatchFindAndModifyRemoveVariant(t *testing.T) {
	c := newFakeClient()
	rec := oplog.Record{
		Op: oplog.KindFindAndModify, DB: "bench", Coll: "orders",
		Cmd: bson.M{"query": bson.M{"_id": "x"}, "remove": true},
	}
	if err := dispatch(context.Background(), c, rec, ReadWrite); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	coll := c.dbs["bench"].colls["orders"]
	if len(coll.foundAndDeleted) != 1 {
		t.Fatal("expected exactly one FindOneAndDelete call")
	}
}

func TestDispatchFindAndModifyUpdateVariant(t *testing.T) {
	c := newFakeClient()
	rec := oplog.Record{
		Op: oplog.KindFindAndModify, DB: "bench", Coll: "orders",
		Cmd: bson.M{"query": bson.M{"_id": "x"}, "remove": false, "update": bson.M{"$set": bson.M{"v": 1}}},
	}
	if err := dispatch(context.Background(), c, rec, ReadWrite); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	coll := c.dbs["bench"].colls["orders"]
	if len(coll.foundAndUpdated) != 1 {
		t.Fatal("expected exactly one FindOneAndUpdate call")
	}
}

func TestDispatchGetMoreWithOriginatingCommand(t *testing.T) {
	c := newFakeClient()
	rec := oplog.Record{
		Op: oplog.KindGetMore, DB: "bench", Coll: "orders",
		Cmd: bson.M{"originatingCommand": bson.M{"find": "orders", "filter": bson.M{}}},
	}
	if err := dispatch(context.Background(), c, rec, ReadOnly); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(c.dbs["bench"].cursorCmds) != 1 {
		t.Fatal("expected the originating command to be reissued as a cursor command")
	}
}

func TestDispatchGetMoreFallbackIsBoundedFind(t *testing.T) {
	c := newFakeClient()
	rec := oplog.Record{
		Op: oplog.KindGetMore, DB: "bench", Coll: "orders",
		Cmd: bson.M{"batchSize": float64(25)},
	}
	if err := dispatch(context.Background(), c, rec, ReadOnly); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	coll := c.dbs["bench"].colls["orders"]
	if len(coll.findQueries) != 1 {
		t.Fatal("expected the GetMore fallback to issue exactly one bounded Find")
	}
}

func TestDispatchNoneIsNoOp(t *testing.T) {
	c := newFakeClient()
	rec := oplog.Record{Op: oplog.KindNone}
	if err := dispatch(context.Background(), c, rec, ReadWrite); err != nil {
		t.Fatalf("dispatch(None) should never error: %v", err)
	}
}

func TestDispatchPropagatesDriverErrors(t *testing.T) {
	c := newFakeClient()
	db := c.Database("bench").(*fakeDatabase)
	db.runCommandErr = errors.New("boom")

	rec := oplog.Record{Op: oplog.KindCount, DB: "bench", Coll: "orders", Cmd: bson.M{"count": "orders"}}
	if err := dispatch(context.Background(), c, rec, ReadOnly); err == nil {
		t.Fatal("expected dispatch to surface the driver error to the caller")
	}
}
