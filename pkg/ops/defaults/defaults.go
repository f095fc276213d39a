// Package defaults writes preference values, merging sequences and mappings
// into what is already stored when the written value asks for it with a
// "..." placeholder.
package defaults

import (
	"bytes"
	"context"
	"fmt"

	"github.com/openfroyo/up/pkg/merge"
	"github.com/openfroyo/up/pkg/telemetry"
)

// GlobalDomain is the domain written when Write.Global is set.
const GlobalDomain = "NSGlobalDomain"

// Write is one preference to set.
type Write struct {
	Domain string
	Key    string
	Value  merge.Value
	// Global writes to GlobalDomain instead of Domain.
	Global bool
}

// EffectiveDomain returns the domain the write goes to.
func (w Write) EffectiveDomain() string {
	if w.Global {
		return GlobalDomain
	}
	return w.Domain
}

// Writer applies writes to a Store.
type Writer struct {
	store Store
	log   *telemetry.Logger
}

// NewWriter creates a writer over store.
func NewWriter(store Store, log *telemetry.Logger) *Writer {
	if log == nil {
		log = telemetry.Nop()
	}
	return &Writer{store: store, log: log.NewComponentLogger("defaults")}
}

// Apply merges w into the stored value and writes the result. It reports
// a change only when the stored encoding differs afterwards.
func (wr *Writer) Apply(ctx context.Context, w Write) (bool, error) {
	domain := w.EffectiveDomain()
	if domain == "" || w.Key == "" {
		return false, fmt.Errorf("domain and key are required")
	}

	old, exists, err := wr.store.Read(ctx, domain, w.Key)
	if err != nil {
		return false, fmt.Errorf("failed to read %s %s: %w", domain, w.Key, err)
	}

	var merged merge.Value
	if exists {
		merged, err = merge.Merge(old, w.Value)
	} else {
		merged, err = merge.MergeAbsent(w.Value)
	}
	if err != nil {
		return false, fmt.Errorf("failed to merge %s %s: %w", domain, w.Key, err)
	}

	next, err := merge.Encode(merged)
	if err != nil {
		return false, fmt.Errorf("failed to encode %s %s: %w", domain, w.Key, err)
	}
	if exists {
		prev, err := merge.Encode(old)
		if err == nil && bytes.Equal(prev, next) {
			wr.log.Debugf("%s %s already set", domain, w.Key)
			return false, nil
		}
	}

	if err := wr.store.Write(ctx, domain, w.Key, merged); err != nil {
		return false, fmt.Errorf("failed to write %s %s: %w", domain, w.Key, err)
	}
	wr.log.Infof("set %s %s to %s", domain, w.Key, next)
	return true, nil
}

// ApplyAll applies writes in order and stops at the first error. The context
// is checked before each write.
func (wr *Writer) ApplyAll(ctx context.Context, writes []Write) (bool, error) {
	changed := false
	for _, w := range writes {
		if err := ctx.Err(); err != nil {
			return changed, err
		}
		c, err := wr.Apply(ctx, w)
		changed = changed || c
		if err != nil {
			return changed, err
		}
	}
	return changed, nil
}

// Read returns the stored value for domain and key.
func (wr *Writer) Read(ctx context.Context, domain, key string) (merge.Value, bool, error) {
	return wr.store.Read(ctx, domain, key)
}
