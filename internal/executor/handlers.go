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
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"mongobar/internal/oplog"
)

// mongoClient, mongoDatabase and mongoCollection are the minimal surfaces
// the handler table needs from the driver, grounded in the teacher's
// RedisEvaler seam (persistence/redis.go): abstract just the methods the
// component calls so tests can substitute a fake without standing up a
// real mongod. dialedClient below adapts a real *mongo.Client to this seam;
// production code always goes through it.
type mongoClient interface {
	Database(name string) mongoDatabase
}

type mongoDatabase interface {
	Collection(name string) mongoCollection
	RunCommand(ctx context.Context, cmd interface{}) *mongo.SingleResult
	RunCommandCursor(ctx context.Context, cmd interface{}) (*mongo.Cursor, error)
}

type mongoCollection interface {
	InsertOne(ctx context.Context, doc interface{}) error
	UpdateMany(ctx context.Context, q, u interface{}, upsert bool) error
	DeleteMany(ctx context.Context, q interface{}) error
	FindOneAndDelete(ctx context.Context, q interface{}) error
	FindOneAndUpdate(ctx context.Context, q, u interface{}) error
	Aggregate(ctx context.Context, pipeline []interface{}) (*mongo.Cursor, error)
	Find(ctx context.Context, q interface{}, limit int64) (*mongo.Cursor, error)
}

// dialedClient adapts a live *mongo.Client to the mongoClient seam.
type dialedClient struct{ c *mongo.Client }

// wrapClient returns production handler input for a dialed driver client.
func wrapClient(c *mongo.Client) mongoClient { return dialedClient{c: c} }

func (d dialedClient) Database(name string) mongoDatabase {
	return dialedDatabase{db: d.c.Database(name)}
}

type dialedDatabase struct{ db *mongo.Database }

func (d dialedDatabase) Collection(name string) mongoCollection {
	return dialedCollection{coll: d.db.Collection(name)}
}

func (d dialedDatabase) RunCommand(ctx context.Context, cmd interface{}) *mongo.SingleResult {
	return d.db.RunCommand(ctx, cmd)
}

func (d dialedDatabase) RunCommandCursor(ctx context.Context, cmd interface{}) (*mongo.Cursor, error) {
	return d.db.RunCommandCursor(ctx, cmd)
}

type dialedCollection struct{ coll *mongo.Collection }

func (d dialedCollection) InsertOne(ctx context.Context, doc interface{}) error {
	_, err := d.coll.InsertOne(ctx, doc)
	return err
}

func (d dialedCollection) UpdateMany(ctx context.Context, q, u interface{}, upsert bool) error {
	_, err := d.coll.UpdateMany(ctx, q, u, options.Update().SetUpsert(upsert))
	return err
}

func (d dialedCollection) DeleteMany(ctx context.Context, q interface{}) error {
	_, err := d.coll.DeleteMany(ctx, q)
	return err
}

func (d dialedCollection) FindOneAndDelete(ctx context.Context, q interface{}) error {
	return d.coll.FindOneAndDelete(ctx, q).Err()
}

func (d dialedCollection) FindOneAndUpdate(ctx context.Context, q, u interface{}) error {
	return d.coll.FindOneAndUpdate(ctx, q, u).Err()
}

func (d dialedCollection) Aggregate(ctx context.Context, pipeline []interface{}) (*mongo.Cursor, error) {
	return d.coll.Aggregate(ctx, pipeline)
}

func (d dialedCollection) Find(ctx context.Context, q interface{}, limit int64) (*mongo.Cursor, error) {
	return d.coll.Find(ctx, q, options.Find().SetLimit(limit))
}

// envelopeFields are stripped from every command before it is issued, per
// spec §4.6's shared handler contract.
var envelopeFields = []string{"lsid", "$clusterTime", "$db", "cursor", "cursorId"}

// stripEnvelope returns a shallow copy of cmd with envelope fields removed.
func stripEnvelope(cmd bson.M) bson.M {
	out := make(bson.M, len(cmd))
	for k, v := range cmd {
		out[k] = v
	}
	for _, f := range envelopeFields {
		delete(out, f)
	}
	return out
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

// dispatch sends one Op Record to the client, per the table in spec §4.6.
// Driver errors are observational: they are returned to the caller, who is
// expected to push a diagnostic and continue rather than abort the worker.
func dispatch(ctx context.Context, client mongoClient, rec oplog.Record, rw RunMode) error {
	switch rec.Op {
	case oplog.KindNone:
		return nil
	case oplog.KindFind:
		return handleFind(ctx, client, rec)
	case oplog.KindCount:
		return handleCount(ctx, client, rec)
	case oplog.KindAggregate:
		return handleAggregate(ctx, client, rec)
	case oplog.KindGetMore:
		return handleGetMore(ctx, client, rec)
	case oplog.KindInsert:
		if rw == ReadOnly {
			return nil
		}
		return handleInsert(ctx, client, rec)
	case oplog.KindUpdate:
		if rw == ReadOnly {
			return nil
		}
		return handleUpdate(ctx, client, rec)
	case oplog.KindDelete:
		if rw == ReadOnly {
			return nil
		}
		return handleDelete(ctx, client, rec)
	case oplog.KindFindAndModify:
		if rw == ReadOnly {
			return nil
		}
		return handleFindAndModify(ctx, client, rec)
	case oplog.KindCommand:
		return handleCommand(ctx, client, rec)
	default:
		return fmt.Errorf("executor: unhandled op kind %q", rec.Op)
	}
}

func handleFind(ctx context.Context, client mongoClient, rec oplog.Record) error {
	db := client.Database(rec.DB)
	cursor, err := db.RunCommandCursor(ctx, stripEnvelope(rec.Cmd))
	if err != nil {
		return fmt.Errorf("find %s: %w", rec.Namespace(), err)
	}
	defer cursor.Close(ctx)
	for cursor.Next(ctx) {
	}
	return cursor.Err()
}

func handleCount(ctx context.Context, client mongoClient, rec oplog.Record) error {
	db := client.Database(rec.DB)
	if err := db.RunCommand(ctx, stripEnvelope(rec.Cmd)).Err(); err != nil {
		return fmt.Errorf("count %s: %w", rec.Namespace(), err)
	}
	return nil
}

func handleAggregate(ctx context.Context, client mongoClient, rec oplog.Record) error {
	coll := client.Database(rec.DB).Collection(rec.Coll)
	pipeline := asSlice(rec.Cmd["pipeline"])
	cursor, err := coll.Aggregate(ctx, pipeline)
	if err != nil {
		return fmt.Errorf("aggregate %s: %w", rec.Namespace(), err)
	}
	defer cursor.Close(ctx)
	for cursor.Next(ctx) {
	}
	return cursor.Err()
}

func handleGetMore(ctx context.Context, client mongoClient, rec oplog.Record) error {
	if orig, ok := rec.Cmd["originatingCommand"]; ok {
		db := client.Database(rec.DB)
		cursor, err := db.RunCommandCursor(ctx, stripEnvelope(asMap(orig)))
		if err != nil {
			return fmt.Errorf("getMore(originating) %s: %w", rec.Namespace(), err)
		}
		defer cursor.Close(ctx)
		for cursor.Next(ctx) {
		}
		return cursor.Err()
	}

	var limit int64 = 101
	if bs, ok := rec.Cmd["batchSize"]; ok {
		switch v := bs.(type) {
		case float64:
			limit = int64(v)
		case int64:
			limit = v
		case int32:
			limit = int64(v)
		case int:
			limit = int64(v)
		}
	}

	coll := client.Database(rec.DB).Collection(rec.Coll)
	cursor, err := coll.Find(ctx, bson.M{}, limit)
	if err != nil {
		return fmt.Errorf("getMore(fallback find) %s: %w", rec.Namespace(), err)
	}
	defer cursor.Close(ctx)
	for cursor.Next(ctx) {
	}
	return cursor.Err()
}

func handleInsert(ctx context.Context, client mongoClient, rec oplog.Record) error {
	coll := client.Database(rec.DB).Collection(rec.Coll)
	docs := asSlice(rec.Cmd["documents"])
	for _, d := range docs {
		doc := asMap(d)
		if doc == nil {
			continue
		}
		delete(doc, "__v")
		if err := coll.InsertOne(ctx, doc); err != nil {
			return fmt.Errorf("insert %s: %w", rec.Namespace(), err)
		}
	}
	return nil
}

func handleUpdate(ctx context.Context, client mongoClient, rec oplog.Record) error {
	coll := client.Database(rec.DB).Collection(rec.Coll)
	updates := asSlice(rec.Cmd["updates"])
	for _, u := range updates {
		upd := asMap(u)
		if upd == nil {
			continue
		}
		upsert, _ := upd["upsert"].(bool)
		if err := coll.UpdateMany(ctx, upd["q"], upd["u"], upsert); err != nil {
			return fmt.Errorf("update %s: %w", rec.Namespace(), err)
		}
	}
	return nil
}

func handleDelete(ctx context.Context, client mongoClient, rec oplog.Record) error {
	coll := client.Database(rec.DB).Collection(rec.Coll)
	deletes := asSlice(rec.Cmd["deletes"])
	for _, d := range deletes {
		del := asMap(d)
		if del == nil {
			continue
		}
		if err := coll.DeleteMany(ctx, del["q"]); err != nil {
			return fmt.Errorf("delete %s: %w", rec.Namespace(), err)
		}
	}
	return nil
}

// handleFindAndModify keeps the spec's documented current behavior
// (findOneAndDelete) for the remove-variant, and adds an explicit
// findOneAndUpdate path for the update-variant so the synthesizer's
// cmd.remove branch and the live handler never diverge.
func handleFindAndModify(ctx context.Context, client mongoClient, rec oplog.Record) error {
	coll := client.Database(rec.DB).Collection(rec.Coll)
	query := rec.Cmd["query"]

	remove, _ := rec.Cmd["remove"].(bool)
	if !hasKey(rec.Cmd, "remove") {
		remove = true
	}
	if remove {
		if err := coll.FindOneAndDelete(ctx, query); err != nil {
			return fmt.Errorf("findAndModify(remove) %s: %w", rec.Namespace(), err)
		}
		return nil
	}
	if err := coll.FindOneAndUpdate(ctx, query, rec.Cmd["update"]); err != nil {
		return fmt.Errorf("findAndModify(update) %s: %w", rec.Namespace(), err)
	}
	return nil
}

func handleCommand(ctx context.Context, client mongoClient, rec oplog.Record) error {
	db := client.Database(rec.DB)
	if err := db.RunCommand(ctx, stripEnvelope(rec.Cmd)).Err(); err != nil {
		return fmt.Errorf("command %s: %w", rec.Namespace(), err)
	}
	return nil
}

func hasKey(m bson.M, k string) bool {
	_, ok := m[k]
	return ok
}
