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
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.mongodb.org/mongo-driver/bson"

	"mongobar/internal/mongopool"
	"mongobar/internal/oplog"
)

func newIndexStatusCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index-status <target>",
		Short: "Report db.collection.indexes() for every namespace the Op Log touches",
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

			recs, err := oplog.FullLoad(ws.OplogPath(), nil)
			if err != nil {
				return fmt.Errorf("index-status: %w", err)
			}
			namespaces := distinctNamespaces(recs)

			pool, err := mongopool.New(cfg.URI...)
			if err != nil {
				return fmt.Errorf("index-status: %w", err)
			}
			ctx := context.Background()

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "namespace\tindex\tkeys")
			for _, ns := range namespaces {
				specs, err := collectionIndexes(ctx, pool, ns.db, ns.coll)
				if err != nil {
					fmt.Fprintf(tw, "%s.%s\t<error>\t%v\n", ns.db, ns.coll, err)
					continue
				}
				for _, spec := range specs {
					fmt.Fprintf(tw, "%s.%s\t%s\t%s\n", ns.db, ns.coll, spec.name, spec.keys)
				}
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			return pool.Shutdown(ctx)
		},
	}
	return cmd
}

type namespace struct{ db, coll string }

func distinctNamespaces(recs []oplog.Record) []namespace {
	seen := make(map[namespace]bool)
	var out []namespace
	for _, r := range recs {
		if r.DB == "" || r.Coll == "" {
			continue
		}
		ns := namespace{db: r.DB, coll: r.Coll}
		if !seen[ns] {
			seen[ns] = true
			out = append(out, ns)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].db != out[j].db {
			return out[i].db < out[j].db
		}
		return out[i].coll < out[j].coll
	})
	return out
}

type indexSpec struct {
	name string
	keys string
}

func collectionIndexes(ctx context.Context, pool *mongopool.Pool, db, coll string) ([]indexSpec, error) {
	client, err := pool.Get(ctx, db+"."+coll)
	if err != nil {
		return nil, err
	}
	cur, err := client.Database(db).Collection(coll).Indexes().List(ctx)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []indexSpec
	for cur.Next(ctx) {
		var doc bson.M
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		name, _ := doc["name"].(string)
		out = append(out, indexSpec{name: name, keys: fmt.Sprint(doc["key"])})
	}
	return out, cur.Err()
}
