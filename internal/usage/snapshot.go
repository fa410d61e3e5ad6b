package usage

// Snapshot is the latest interpreted view of a resource. The zero value
// is the unavailable snapshot. Snapshots compare field by field with ==.
type Snapshot struct {
	Available bool

	// Current is the usage in the resource's unit: a fraction of one CPU
	// for the CPU model, bytes for the memory model.
	Current float64

	// Limit is only meaningful when Limited is set.
	Limit   float64
	Limited bool

	Warning bool
}

func (snapshot Snapshot) normalize() Snapshot {
	if !snapshot.Available {
		return Snapshot{}
	}

	if !snapshot.Limited {
		snapshot.Limit = 0
	}

	return snapshot
}
