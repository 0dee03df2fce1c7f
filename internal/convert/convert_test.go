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

package convert

import (
	"path/filepath"
	"strings"
	"testing"

	"mongobar/internal/oplog"
)

const header = "__source__,__time__,__topic__,audit_type,coll,command,db,docs_examined,instanceid,keys_examined,latency,optype,return_num,thread_id,time,user,user_ip\n"

func TestIngestConvertsAuditRowsToRecords(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "oplogs.op")

	csv := header +
		`s1,t1,topic,authCheck,orders,"{""args"":{""find"":""orders"",""filter"":{}}}",bench,10,i1,5,12,query,10,3,2025-01-01T00:00:00Z,u,1.2.3.4` + "\n"

	n, err := Ingest(strings.NewReader(csv), out)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if n != 1 {
		t.Fatalf("Ingest converted %d rows, want 1", n)
	}

	recs, err := oplog.FullLoad(out, nil)
	if err != nil {
		t.Fatalf("FullLoad: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	rec := recs[0]
	if rec.Op != oplog.KindFind {
		t.Errorf("op = %s, want Find", rec.Op)
	}
	if rec.DB != "bench" || rec.Coll != "orders" {
		t.Errorf("ns = %s.%s, want bench.orders", rec.DB, rec.Coll)
	}
	if rec.Cmd["find"] != "orders" {
		t.Errorf("cmd.find = %v, want orders (extracted from command.args)", rec.Cmd["find"])
	}
}

func TestIngestSkipsUnrecognizedOptype(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "oplogs.op")

	csv := header +
		`s1,t1,topic,authCheck,orders,"{}",bench,0,i1,0,1,authenticate,0,1,2025-01-01T00:00:00Z,u,1.2.3.4` + "\n"

	n, err := Ingest(strings.NewReader(csv), out)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if n != 0 {
		t.Fatalf("Ingest converted %d rows, want 0 (unrecognized optype)", n)
	}
}

func TestNormalizeTimestampAcceptsRFC3339AndEpochMillis(t *testing.T) {
	if _, err := normalizeTimestamp("2025-01-01T00:00:00Z"); err != nil {
		t.Errorf("RFC3339: %v", err)
	}
	if _, err := normalizeTimestamp("1735689600000"); err != nil {
		t.Errorf("epoch millis: %v", err)
	}
	if _, err := normalizeTimestamp("not-a-time"); err == nil {
		t.Error("expected error for unrecognized timestamp format")
	}
}

func TestIngestRejectsMissingRequiredColumn(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "oplogs.op")

	csv := "optype,db\nquery,bench\n"
	if _, err := Ingest(strings.NewReader(csv), out); err == nil {
		t.Fatal("expected error for missing required columns (coll, command, time)")
	}
}
