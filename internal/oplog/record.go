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

// Package oplog provides the normalized, on-disk operation trace that the
// executor replays: the Record type, and the append-only line-delimited-JSON
// log that stores a sequence of them.
package oplog

import (
	"encoding/json"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"golang.org/x/crypto/sha3"
)

// Kind is the closed set of operation shapes the executor understands.
// Every value here must have a handler in internal/executor and a branch in
// both synthesizer passes (internal/synth); adding a new Kind is not
// complete until both have been updated.
type Kind string

const (
	KindNone          Kind = "None"
	KindInsert        Kind = "Insert"
	KindUpdate        Kind = "Update"
	KindDelete        Kind = "Delete"
	KindFind          Kind = "Find"
	KindCount         Kind = "Count"
	KindAggregate     Kind = "Aggregate"
	KindFindAndModify Kind = "FindAndModify"
	KindGetMore       Kind = "GetMore"
	KindCommand       Kind = "Command"
)

// Record is one captured or converted operation. Op determines the shape
// Cmd is expected to have; see internal/executor/handlers.go.
type Record struct {
	ID   string `json:"id"`
	Op   Kind   `json:"op"`
	DB   string `json:"db"`
	Coll string `json:"coll"`
	Cmd  bson.M `json:"cmd"`
	TS   int64  `json:"ts"`
}

// Namespace returns "db.coll", matching spec's ns = db.coll attribute.
func (r Record) Namespace() string {
	if r.DB == "" || r.Coll == "" {
		return r.DB + r.Coll
	}
	return r.DB + "." + r.Coll
}

// Validate checks the invariants in spec §3: op is a supported kind, db/coll
// are non-empty for non-None ops.
func (r Record) Validate() error {
	switch r.Op {
	case KindNone, KindInsert, KindUpdate, KindDelete, KindFind, KindCount,
		KindAggregate, KindFindAndModify, KindGetMore, KindCommand:
	default:
		return fmt.Errorf("oplog: unsupported op kind %q", r.Op)
	}
	if r.Op != KindNone {
		if r.DB == "" || r.Coll == "" {
			return errors.New("oplog: db and coll must be non-empty for non-None ops")
		}
	}
	return nil
}

// HashCommand derives the content-hash id used for diagnostic correlation:
// the first 16 hex characters of a SHAKE128 digest of the command's
// canonical JSON encoding. This matches the audit-CSV ingest rule in
// spec §6, applied uniformly across every ingestion path.
func HashCommand(cmd bson.M) string {
	b, err := json.Marshal(cmd)
	if err != nil {
		// A command that cannot round-trip through JSON is a capture bug,
		// not a runtime condition callers can meaningfully recover from.
		panic(fmt.Sprintf("oplog: cannot hash command: %v", err))
	}
	h := sha3.NewShake128()
	_, _ = h.Write(b)
	var sum [8]byte
	_, _ = h.Read(sum[:])
	return fmt.Sprintf("%x", sum)
}

// MarshalLine renders the record as the single JSON line that is appended to
// the on-disk log, including the trailing newline.
func (r Record) MarshalLine() ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// ParseLine decodes one non-comment, non-empty log line into a Record.
func ParseLine(line []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(line, &r); err != nil {
		return Record{}, err
	}
	return r, nil
}
