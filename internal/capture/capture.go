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

// Package capture implements the profiler-backed capture path (op-record,
// op-pull): querying system.profile for a time window and projecting the
// results into Op Records.
package capture

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"mongobar/internal/oplog"
)

// Window bounds a capture pass in time. Record and Pull differ only in
// whether the window is "now going forward" (Record polls) or a fixed
// historical range (Pull is one-shot).
type Window struct {
	Start time.Time
	End   time.Time
}

// profileCollection is the minimal surface Pull needs from
// system.profile, abstracted so tests can supply profiler entries through
// mongo.NewCursorFromDocuments without a live mongod.
type profileCollection interface {
	Find(ctx context.Context, filter interface{}) (*mongo.Cursor, error)
}

// dialedProfileCollection adapts a live *mongo.Collection to the
// profileCollection seam, since *mongo.Collection.Find's variadic options
// parameter keeps it from satisfying the interface directly.
type dialedProfileCollection struct{ coll *mongo.Collection }

func (d dialedProfileCollection) Find(ctx context.Context, filter interface{}) (*mongo.Cursor, error) {
	return d.coll.Find(ctx, filter)
}

// CollectionOf adapts a live *mongo.Client's system.profile collection to
// the profileCollection seam Pull consumes.
func CollectionOf(client *mongo.Client, db string) profileCollection {
	return dialedProfileCollection{coll: client.Database(db).Collection("system.profile")}
}

// Pull runs the fixed profiler query once against coll and appends every
// matching entry to outPath as an Op Record of kind Find, per spec.md §6:
// "For each result with a queryHash, project into an Op Record with
// op = Find, db/coll = cmd.find, cmd = entire command document."
func Pull(ctx context.Context, coll profileCollection, db string, win Window, outPath string) (int, error) {
	filter := bson.M{
		"op": "query",
		"ns": bson.M{"$ne": db + ".system.profile"},
		"ts": bson.M{"$gte": win.Start, "$lt": win.End},
	}
	cur, err := coll.Find(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("capture: query system.profile: %w", err)
	}
	defer cur.Close(ctx)

	n := 0
	for cur.Next(ctx) {
		var raw struct {
			Op        string    `bson:"op"`
			NS        string    `bson:"ns"`
			Command   bson.M    `bson:"command"`
			QueryHash string    `bson:"queryHash"`
			TS        time.Time `bson:"ts"`
		}
		if err := cur.Decode(&raw); err != nil {
			return n, fmt.Errorf("capture: decode profile entry: %w", err)
		}
		if raw.QueryHash == "" {
			continue
		}

		collName, _ := raw.Command["find"].(string)
		rec := oplog.Record{
			ID:   oplog.HashCommand(raw.Command),
			Op:   oplog.KindFind,
			DB:   db,
			Coll: collName,
			Cmd:  raw.Command,
			TS:   raw.TS.UnixMilli(),
		}
		if err := rec.Validate(); err != nil {
			continue // malformed profile entry, skip rather than poison the log
		}
		if err := oplog.PushLine(outPath, rec); err != nil {
			return n, fmt.Errorf("capture: write record: %w", err)
		}
		n++
	}
	return n, cur.Err()
}

// Record polls the profiler every interval until ctx is cancelled,
// advancing the capture window forward each pass (op-record's long-running
// variant of Pull's one-shot historical query).
func Record(ctx context.Context, coll profileCollection, db string, interval time.Duration, outPath string) error {
	start := time.Now()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if _, err := Pull(ctx, coll, db, Window{Start: start, End: now}, outPath); err != nil {
				return err
			}
			start = now
		}
	}
}
