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

package analytics

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"go.mongodb.org/mongo-driver/bson"

	"mongobar/internal/oplog"
)

const header = "coll,command,db,latency,optype\n"

func TestAnalyzeGroupsRowsByShapeAndAveragesLatency(t *testing.T) {
	csv := header +
		`orders,"{""find"":""orders"",""filter"":{""status"":""A""}}",bench,10,query` + "\n" +
		`orders,"{""find"":""orders"",""filter"":{""status"":""B""}}",bench,20,query` + "\n" +
		`orders,"{""find"":""orders"",""filter"":{""user_id"":1}}",bench,5,query` + "\n"

	stats, err := Analyze(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("got %d shapes, want 2 (status:A/B share a shape, user_id is distinct)", len(stats))
	}

	var statusShape, idShape *Stat
	for i := range stats {
		if strings.Contains(stats[i].Key, "status") {
			statusShape = &stats[i]
		}
		if strings.Contains(stats[i].Key, "user_id") {
			idShape = &stats[i]
		}
	}
	if statusShape == nil || idShape == nil {
		t.Fatalf("expected one shape for status and one for user_id, got keys: %v", keysOf(stats))
	}
	if statusShape.Count != 2 {
		t.Errorf("status shape count = %d, want 2", statusShape.Count)
	}
	if got, want := statusShape.AvgLatency(), 15.0; got != want {
		t.Errorf("status shape avg latency = %v, want %v", got, want)
	}
	if idShape.Count != 1 {
		t.Errorf("user_id shape count = %d, want 1", idShape.Count)
	}
}

func keysOf(stats []Stat) []string {
	out := make([]string, len(stats))
	for i, s := range stats {
		out[i] = s.Key
	}
	return out
}

func TestWriteCSVRendersKeyCountLatencyExample(t *testing.T) {
	var buf bytes.Buffer
	err := WriteCSV(&buf, []Stat{{Key: "orders:query#status", Count: 2, TotalMs: 30, Example: "{}"}})
	if err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "orders:query#status") || !strings.Contains(out, "15.00") {
		t.Errorf("unexpected CSV output: %q", out)
	}
}

func TestShapeIsStableAcrossLiteralValuesButDiffersAcrossFilterKeys(t *testing.T) {
	a := oplog.Record{Op: oplog.KindFind, DB: "bench", Coll: "orders", Cmd: bson.M{"filter": bson.M{"status": "A"}}}
	b := oplog.Record{Op: oplog.KindFind, DB: "bench", Coll: "orders", Cmd: bson.M{"filter": bson.M{"status": "B"}}}
	c := oplog.Record{Op: oplog.KindFind, DB: "bench", Coll: "orders", Cmd: bson.M{"filter": bson.M{"user_id": "1"}}}

	if Shape(a) != Shape(b) {
		t.Errorf("Shape should ignore literal values: %s != %s", Shape(a), Shape(b))
	}
	if Shape(a) == Shape(c) {
		t.Errorf("Shape should differ across filter keys: %s == %s", Shape(a), Shape(c))
	}
}

func TestFilterRegexReturnsOnlyMatchingLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "oplogs.op")
	writeLog(t, path, []oplog.Record{
		{ID: "1", Op: oplog.KindFind, DB: "bench", Coll: "orders", Cmd: bson.M{"find": "orders"}},
		{ID: "2", Op: oplog.KindFind, DB: "bench", Coll: "users", Cmd: bson.M{"find": "users"}},
	})

	lines, err := FilterRegex(path, `"coll":"orders"`)
	if err != nil {
		t.Fatalf("FilterRegex: %v", err)
	}
	if len(lines) != 1 || !strings.Contains(lines[0], "orders") {
		t.Fatalf("got %v, want one line mentioning orders", lines)
	}
}

func TestFilterShapeReturnsOnlyMatchingLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "oplogs.op")
	a := oplog.Record{ID: "1", Op: oplog.KindFind, DB: "bench", Coll: "orders", Cmd: bson.M{"filter": bson.M{"status": "A"}}}
	b := oplog.Record{ID: "2", Op: oplog.KindFind, DB: "bench", Coll: "orders", Cmd: bson.M{"filter": bson.M{"user_id": "1"}}}
	writeLog(t, path, []oplog.Record{a, b})

	lines, err := FilterShape(path, Shape(a))
	if err != nil {
		t.Fatalf("FilterShape: %v", err)
	}
	if len(lines) != 1 || !strings.Contains(lines[0], `"status"`) {
		t.Fatalf("got %v, want only the status-shaped record", lines)
	}
}

func writeLog(t *testing.T, path string, recs []oplog.Record) {
	t.Helper()
	for _, r := range recs {
		if err := oplog.PushLine(path, r); err != nil {
			t.Fatalf("PushLine: %v", err)
		}
	}
}
