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

// Package mongopool hands out mongo.Client handles round-robin across a
// bank of handles, each capped at a fixed internal connection-pool size, so
// that spraying every worker across a single client does not contend on
// that client's own socket cap.
package mongopool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dgryski/go-rendezvous"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// HandlesPerClient is E in spec §4.2: the number of workers amortized over
// one client handle before a new handle is constructed.
const HandlesPerClient = 100

// targetBank is one target URI's append-only handle list plus its own
// handout counter, so routing different namespaces to different targets
// never makes them fight over the same ⌊n/E⌋ slot sequence.
type targetBank struct {
	handles []*mongo.Client
	counter int64
}

// Pool is a set of per-target handle banks plus a handout counter per
// target, grounded in the teacher's Store (sync.Map-of-managed-instances)
// append and lookup shape, adapted from per-key VSAs to per-slot client
// handles.
type Pool struct {
	mu       sync.Mutex
	banks    map[string]*targetBank
	uris     []string
	hash     *rendezvous.Rendezvous
	sharding bool
}

// New creates a Pool targeting the given URI. Construction is lazy: no
// client is dialed until the first Get().
func New(uris ...string) (*Pool, error) {
	if len(uris) == 0 {
		return nil, fmt.Errorf("mongopool: at least one uri is required")
	}
	p := &Pool{uris: uris, banks: make(map[string]*targetBank, len(uris))}
	for _, u := range uris {
		p.banks[u] = &targetBank{}
	}
	if len(uris) > 1 {
		p.sharding = true
		p.hash = rendezvous.New(uris, hashString)
	}
	return p, nil
}

func hashString(s string) uint64 {
	var h uint64 = 1469598103934665603
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	return h
}

// TargetFor returns which configured URI owns a given namespace, using
// rendezvous hashing so the same namespace always lands on the same target
// across an entire run (and across a later revert/resume rerun). With a
// single configured URI this degenerates to that URI.
func (p *Pool) TargetFor(ns string) string {
	if !p.sharding {
		return p.uris[0]
	}
	return p.hash.Lookup(ns)
}

// Get implements the handout rule from spec §4.2 against the target bank
// for ns: on the n-th handout within that bank, if ⌊n/E⌋ ≥ len(handles), a
// new handle is created against the bank's URI; handles[⌊n/E⌋] is returned.
// Routing different namespaces to different targets never shares a slot
// sequence across targets.
func (p *Pool) Get(ctx context.Context, ns string) (*mongo.Client, error) {
	target := p.TargetFor(ns)

	p.mu.Lock()
	defer p.mu.Unlock()

	bank := p.banks[target]
	n := bank.counter
	bank.counter++
	slot := int(n / HandlesPerClient)

	if slot >= len(bank.handles) {
		client, err := dial(ctx, target)
		if err != nil {
			return nil, err
		}
		bank.handles = append(bank.handles, client)
	}
	return bank.handles[slot], nil
}

func dial(ctx context.Context, uri string) (*mongo.Client, error) {
	const e = HandlesPerClient
	opts := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(e + 1).
		SetMinPoolSize(e/100 + 1)

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(dialCtx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongopool: connect %s: %w", uri, err)
	}
	if err := client.Ping(dialCtx, nil); err != nil {
		return nil, fmt.Errorf("mongopool: ping %s: %w", uri, err)
	}
	return client, nil
}

// Len reports the number of handles constructed so far across every target.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, bank := range p.banks {
		n += len(bank.handles)
	}
	return n
}

// Shutdown awaits graceful close of every handle, grounded in the teacher's
// Store.CloseAll fan-out over every managed entry.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	var handles []*mongo.Client
	for _, bank := range p.banks {
		handles = append(handles, bank.handles...)
	}
	p.mu.Unlock()

	var wg sync.WaitGroup
	errs := make([]error, len(handles))
	wg.Add(len(handles))
	for i, h := range handles {
		go func(i int, h *mongo.Client) {
			defer wg.Done()
			errs[i] = h.Disconnect(ctx)
		}(i, h)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
