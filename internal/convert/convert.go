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

// Package convert ingests the audit-CSV trace format (spec.md §6) and
// produces an Op Log.
package convert

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"mongobar/internal/oplog"
)

// optypeToKind maps the audit-CSV optype column to an oplog.Kind.
var optypeToKind = map[string]oplog.Kind{
	"query":         oplog.KindFind,
	"find":          oplog.KindFind,
	"count":         oplog.KindCount,
	"aggregate":     oplog.KindAggregate,
	"insert":        oplog.KindInsert,
	"update":        oplog.KindUpdate,
	"remove":        oplog.KindDelete,
	"delete":        oplog.KindDelete,
	"findandmodify": oplog.KindFindAndModify,
	"getmore":       oplog.KindGetMore,
	"command":       oplog.KindCommand,
}

// auditColumns is the header this converter expects, per spec.md §6.
var auditColumns = []string{
	"__source__", "__time__", "__topic__", "audit_type", "coll", "command", "db",
	"docs_examined", "instanceid", "keys_examined", "latency", "optype",
	"return_num", "thread_id", "time", "user", "user_ip",
}

// Ingest reads the audit-CSV at r and writes one Op Record per row to
// outPath, returning the number of rows converted. Rows whose optype has
// no known mapping are skipped rather than aborting the whole conversion,
// since a single unrecognized audit-log row is an expected, not
// exceptional, occurrence in real traces.
func Ingest(r io.Reader, outPath string) (int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return 0, fmt.Errorf("convert: read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	for _, want := range []string{"optype", "command", "db", "coll", "time"} {
		if _, ok := col[want]; !ok {
			return 0, fmt.Errorf("convert: missing required column %q", want)
		}
	}

	n := 0
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return n, fmt.Errorf("convert: read row %d: %w", n+1, err)
		}

		rec, ok, err := rowToRecord(row, col)
		if err != nil {
			return n, fmt.Errorf("convert: row %d: %w", n+1, err)
		}
		if !ok {
			continue
		}
		if err := oplog.PushLine(outPath, rec); err != nil {
			return n, fmt.Errorf("convert: write record: %w", err)
		}
		n++
	}
	return n, nil
}

func rowToRecord(row []string, col map[string]int) (oplog.Record, bool, error) {
	get := func(name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	kind, ok := optypeToKind[get("optype")]
	if !ok {
		return oplog.Record{}, false, nil
	}

	var commandDoc bson.M
	if raw := get("command"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &commandDoc); err != nil {
			return oplog.Record{}, false, fmt.Errorf("parse command JSON: %w", err)
		}
	}

	cmd := commandDoc
	if args, ok := asMap(commandDoc["args"]); ok {
		cmd = args
	}

	ts, err := normalizeTimestamp(get("time"))
	if err != nil {
		return oplog.Record{}, false, fmt.Errorf("parse time: %w", err)
	}

	rec := oplog.Record{
		ID:   oplog.HashCommand(commandDoc),
		Op:   kind,
		DB:   get("db"),
		Coll: get("coll"),
		Cmd:  cmd,
		TS:   ts.UnixMilli(),
	}
	if err := rec.Validate(); err != nil {
		return oplog.Record{}, false, nil
	}
	return rec, true, nil
}

func asMap(v interface{}) (bson.M, bool) {
	switch t := v.(type) {
	case bson.M:
		return t, true
	case map[string]interface{}:
		return bson.M(t), true
	default:
		return nil, false
	}
}

// normalizeTimestamp parses the audit-CSV time column, which observed
// traces render either as RFC3339 or as epoch milliseconds, and returns
// the normalized time.Time spec.md §6 requires.
func normalizeTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format %q", s)
}
