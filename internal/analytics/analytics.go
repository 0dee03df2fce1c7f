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

// Package analytics implements the `tool {ana|cov|filter}` batch-analysis
// subcommands: grouping an audit-CSV trace by query shape (ana), converting
// it to an Op Log (cov, delegated to internal/convert), and filtering an Op
// Log down to matching lines (filter), either by regex or by shape.
package analytics

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"mongobar/internal/oplog"
)

// Stat aggregates every audit-CSV row sharing one Shape.
type Stat struct {
	Key     string
	Count   int64
	TotalMs int64
	Example string
}

// AvgLatency returns the mean latency across every row folded into s.
func (s Stat) AvgLatency() float64 {
	if s.Count == 0 {
		return 0
	}
	return float64(s.TotalMs) / float64(s.Count)
}

// ignoreKeys excludes envelope/session fields that would otherwise make
// every row a distinct shape, mirroring the original trace analyzer's
// ignore set.
var ignoreKeys = map[string]bool{
	"command": true, "ns": true, "cursorId": true, "args": true,
	"singleBatch": true, "batchSize": true, "lsid": true, "clusterTime": true,
	"t": true, "i": true, "signature": true, "hash": true, "keyId": true,
	"replRole": true, "repRole": true, "stateStr": true, "mode": true,
}

// Analyze reads an audit-CSV trace from r and returns one Stat per distinct
// (coll, optype, command-shape) key, sorted by descending count.
func Analyze(r io.Reader) ([]Stat, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("analytics: read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}

	stats := make(map[string]*Stat)
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("analytics: read row: %w", err)
		}

		get := func(name string) string {
			i, ok := col[name]
			if !ok || i >= len(row) {
				return ""
			}
			return row[i]
		}

		command := get("command")
		latency, _ := strconv.ParseInt(get("latency"), 10, 64)
		key := fmt.Sprintf("%s:%s#%s", get("coll"), get("optype"), strings.Join(matchKeys(command), ":"))

		s, ok := stats[key]
		if !ok {
			s = &Stat{Key: key, Example: command}
			stats[key] = s
		}
		s.Count++
		s.TotalMs += latency
	}

	out := make([]Stat, 0, len(stats))
	for _, s := range stats {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out, nil
}

// WriteCSV renders stats as the "key,count,latency,eg" report the original
// analyzer produces.
func WriteCSV(w io.Writer, stats []Stat) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"key", "count", "latency", "eg"}); err != nil {
		return err
	}
	for _, s := range stats {
		if err := cw.Write([]string{
			s.Key,
			strconv.FormatInt(s.Count, 10),
			strconv.FormatFloat(s.AvgLatency(), 'f', 2, 64),
			s.Example,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// matchKeys returns the sorted, deduplicated set of JSON object keys found
// anywhere within command (recursing into nested objects/arrays), excluding
// ignoreKeys, with embedded digit runs normalized to "[n]" so that keys
// differing only by an array index or numeric literal collapse together.
func matchKeys(command string) []string {
	var doc interface{}
	if err := json.Unmarshal([]byte(command), &doc); err != nil {
		return nil
	}
	seen := make(map[string]bool)
	collectKeys(doc, seen)

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func collectKeys(v interface{}, seen map[string]bool) {
	switch t := v.(type) {
	case map[string]interface{}:
		for k, vv := range t {
			if !ignoreKeys[k] {
				seen[normalizeDigits(k)] = true
			}
			collectKeys(vv, seen)
		}
	case bson.M:
		collectKeys(map[string]interface{}(t), seen)
	case []interface{}:
		for _, vv := range t {
			collectKeys(vv, seen)
		}
	}
}

var digitRun = regexp.MustCompile(`\d+`)

func normalizeDigits(s string) string {
	return digitRun.ReplaceAllString(s, "[n]")
}

// Shape is the per-Record fingerprint used by FilterShape: coll, op kind,
// and a hash of the sorted, digit-normalized key set drawn from the parts
// of Cmd relevant to that op kind. Two records with the same Shape are
// interchangeable stress-test load, differing only in literal values.
func Shape(rec oplog.Record) string {
	var keys []string
	switch rec.Op {
	case oplog.KindFind, oplog.KindCount:
		keys = sortedKeys(rec.Cmd["filter"])
	case oplog.KindUpdate:
		keys = updateShapeKeys(rec.Cmd["updates"])
	case oplog.KindDelete:
		keys = sortedKeys(rec.Cmd["deletes"])
	default:
		keys = sortedKeys(rec.Cmd)
	}
	sum := oplog.HashCommand(bson.M{"keys": keys})
	return fmt.Sprintf("%s:%s:%s", rec.Coll, rec.Op, sum)
}

func updateShapeKeys(updates interface{}) []string {
	list, ok := updates.([]interface{})
	if !ok {
		return []string{"None"}
	}
	var qKeys, uKeys []string
	for _, raw := range list {
		u, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		qKeys = append(qKeys, sortedKeys(u["q"])...)
		uKeys = append(uKeys, sortedKeys(u["u"])...)
	}
	sort.Strings(qKeys)
	sort.Strings(uKeys)
	keys := append(qKeys, ">>")
	return append(keys, strings.Join(dedup(uKeys), ":"))
}

func dedup(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func sortedKeys(v interface{}) []string {
	seen := make(map[string]bool)
	switch t := v.(type) {
	case map[string]interface{}:
		collectKeys(t, seen)
	case bson.M:
		collectKeys(map[string]interface{}(t), seen)
	default:
		return nil
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FilterRegex scans the Op Log at logPath, keeps the records whose raw line
// text matches pattern, and returns each kept record re-encoded as one JSON
// line.
func FilterRegex(logPath string, pattern string) ([]string, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("analytics: compile filter %q: %w", pattern, err)
	}
	recs, err := oplog.FullLoad(logPath, re)
	if err != nil {
		return nil, err
	}
	lines := make([]string, 0, len(recs))
	for _, r := range recs {
		line, err := r.MarshalLine()
		if err != nil {
			return nil, err
		}
		lines = append(lines, strings.TrimSuffix(string(line), "\n"))
	}
	return lines, nil
}

// FilterShape scans the Op Log at logPath and returns, re-encoded as JSON
// lines, the records whose Shape equals shape, letting an operator isolate one recurring query
// pattern out of a mixed trace.
func FilterShape(logPath string, shape string) ([]string, error) {
	recs, err := oplog.FullLoad(logPath, nil)
	if err != nil {
		return nil, err
	}
	var lines []string
	for _, r := range recs {
		if Shape(r) != shape {
			continue
		}
		line, err := r.MarshalLine()
		if err != nil {
			return nil, err
		}
		lines = append(lines, strings.TrimSuffix(string(line), "\n"))
	}
	return lines, nil
}
