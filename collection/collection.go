// Package collection implements the Collection Strategy: mapping a
// partition and a base collection name to the concrete collection name(s)
// the vector store should use.
package collection

// Strategy is a closed enumeration of the two supported strategies.
type Strategy string

const (
	// Single uses one logical collection for every partition — typical
	// of a local, persistent store.
	Single Strategy = "single"
	// PerPartition gives each partition its own concrete collection —
	// typical of a managed/cloud store, so per-partition drops can
	// discard a whole collection instead of a metadata-filtered slice.
	PerPartition Strategy = "per_partition"
)

// Resolver maps (partition, base) to concrete collection names under the
// configured strategy.
type Resolver struct {
	strategy Strategy
}

// New constructs a Resolver for strategy. An empty/unknown value falls
// back to Single.
func New(strategy Strategy) *Resolver {
	if strategy != PerPartition {
		strategy = Single
	}
	return &Resolver{strategy: strategy}
}

// Strategy reports the resolver's configured strategy.
func (r *Resolver) Strategy() Strategy {
	return r.strategy
}

// CollectionFor maps (partition, base) to the concrete collection name.
func (r *Resolver) CollectionFor(partition, base string) string {
	switch r.strategy {
	case PerPartition:
		if base == "" {
			return partition
		}
		return base + "_" + partition
	default:
		if base == "" {
			return "default"
		}
		return base
	}
}
