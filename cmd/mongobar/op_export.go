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

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.mongodb.org/mongo-driver/bson"

	"mongobar/internal/mongopool"
	"mongobar/internal/oplog"
	"mongobar/internal/synth"
)

func newOpExportCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "op-export <target>",
		Short: "Snapshot the live documents the Op Log reads or mutates into data.op",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			ws, err := openTarget(args[0])
			if err != nil {
				return err
			}

			pool, err := mongopool.New(cfg.URI...)
			if err != nil {
				return fmt.Errorf("op-export: %w", err)
			}
			finder := synth.PoolFinder{Pool: pool}
			ctx := context.Background()

			_ = os.Remove(ws.DataPath())

			log.Info().Str("workspace", ws.Name).Msg("op-export: snapshotting live documents")
			n, err := exportSnapshot(ctx, finder, ws.OplogPath(), ws.DataPath())
			if err != nil {
				return fmt.Errorf("op-export: %w", err)
			}
			log.Info().Int("documents", n).Msg("op-export: wrote data.op")
			return pool.Shutdown(ctx)
		},
	}
	return cmd
}

// exportSnapshot walks the Op Log and, for every record whose query
// selects live documents (Update's updates[].q, FindAndModify's query when
// it is not a remove), fetches each matching document and appends it to
// outPath as an Insert record. The written snapshot is then reversed, so
// op-import (a plain ReadWrite replay of data.op) inserts the documents in
// the reverse of the order op-export discovered them.
func exportSnapshot(ctx context.Context, finder synth.Finder, logPath, outPath string) (int, error) {
	recs, err := oplog.FullLoad(logPath, nil)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, rec := range recs {
		queries, err := exportQueries(rec)
		if err != nil {
			return n, fmt.Errorf("record %s: %w", rec.ID, err)
		}
		for _, q := range queries {
			docs, err := finder.FindAll(ctx, rec.DB, rec.Coll, q)
			if err != nil {
				return n, fmt.Errorf("%s.%s: %w", rec.DB, rec.Coll, err)
			}
			for _, doc := range docs {
				ins := oplog.Record{
					ID:   rec.ID,
					Op:   oplog.KindInsert,
					DB:   rec.DB,
					Coll: rec.Coll,
					Cmd:  bson.M{"documents": []interface{}{doc}},
					TS:   rec.TS,
				}
				if err := oplog.PushLine(outPath, ins); err != nil {
					return n, err
				}
				n++
			}
		}
	}

	if n == 0 {
		return 0, nil
	}
	if err := oplog.ReverseFile(outPath); err != nil {
		return n, err
	}
	return n, nil
}

// exportQueries extracts the live-document selectors a record implies:
// every updates[].q for an Update, or query for a non-remove FindAndModify.
// Insert, Delete, Find, Count, Aggregate, GetMore, and remove-variant
// FindAndModify records select nothing to snapshot.
func exportQueries(rec oplog.Record) ([]bson.M, error) {
	switch rec.Op {
	case oplog.KindUpdate:
		updates := exportSlice(rec.Cmd["updates"])
		out := make([]bson.M, 0, len(updates))
		for _, u := range updates {
			um := exportMap(u)
			if um == nil {
				continue
			}
			q := exportMap(um["q"])
			if q != nil {
				out = append(out, q)
			}
		}
		return out, nil
	case oplog.KindFindAndModify:
		remove, _ := rec.Cmd["remove"].(bool)
		if remove {
			return nil, nil
		}
		q := exportMap(rec.Cmd["query"])
		if q == nil {
			return nil, nil
		}
		return []bson.M{q}, nil
	default:
		return nil, nil
	}
}

func exportSlice(v interface{}) []interface{} {
	switch t := v.(type) {
	case []interface{}:
		return t
	case bson.A:
		return t
	default:
		return nil
	}
}

func exportMap(v interface{}) bson.M {
	switch t := v.(type) {
	case bson.M:
		return t
	case map[string]interface{}:
		return bson.M(t)
	default:
		return nil
	}
}
