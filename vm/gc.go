package vm

import (
	"fmt"
	"time"
	"unsafe"

	"github.com/dustin/go-humanize"
)

// ---------------------------------------------------------------------------
// Mark-and-sweep collector
// ---------------------------------------------------------------------------

// GCPhase is the collector's state. A cycle runs Idle -> Marking ->
// Sweeping -> Idle without yielding.
type GCPhase uint8

const (
	GCIdle GCPhase = iota
	GCMarking
	GCSweeping
)

// String returns the phase name.
func (p GCPhase) String() string {
	switch p {
	case GCIdle:
		return "idle"
	case GCMarking:
		return "marking"
	case GCSweeping:
		return "sweeping"
	default:
		return fmt.Sprintf("GCPhase(%d)", p)
	}
}

// Collector defaults.
const (
	DefaultInitialThreshold = 1024 * 1024
	DefaultGrowFactor       = 2.0
)

// GCConfig tunes when collections run.
type GCConfig struct {
	// InitialThreshold is the byte count that triggers the first collection
	// and the floor for every later threshold.
	InitialThreshold int
	// GrowFactor scales the live size after a collection into the next
	// threshold.
	GrowFactor float64
	// Stress collects at every safepoint.
	Stress bool
	// Log reports every cycle to the coxy.gc logger.
	Log bool
}

func (c GCConfig) withDefaults() GCConfig {
	if c.InitialThreshold <= 0 {
		c.InitialThreshold = DefaultInitialThreshold
	}
	if c.GrowFactor <= 1 {
		c.GrowFactor = DefaultGrowFactor
	}
	return c
}

// GCStats holds cumulative collector statistics.
type GCStats struct {
	Cycles       int
	ObjectsFreed int
	BytesFreed   int
	LastDuration time.Duration
}

// Stats returns the cumulative collector statistics.
func (h *Heap) Stats() GCStats {
	return h.stats
}

// Phase returns the collector's current state.
func (h *Heap) Phase() GCPhase {
	return h.phase
}

// NextGC returns the byte count that schedules the next collection.
func (h *Heap) NextGC() int {
	return h.nextGC
}

// AddRoots registers a root set with the collector.
func (h *Heap) AddRoots(r RootMarker) {
	h.roots = append(h.roots, r)
}

// RemoveRoots unregisters a root set.
func (h *Heap) RemoveRoots(r RootMarker) {
	for i, existing := range h.roots {
		if existing == r {
			h.roots = append(h.roots[:i], h.roots[i+1:]...)
			return
		}
	}
}

// PushRoot keeps v alive until the matching PopRoot.
func (h *Heap) PushRoot(v Value) {
	h.tempRoots = append(h.tempRoots, v)
}

// PopRoot releases the most recently pushed temporary root.
func (h *Heap) PopRoot() {
	h.tempRoots = h.tempRoots[:len(h.tempRoots)-1]
}

// Safepoint collects if a collection is due. Callers invoke it only where
// every live object is reachable from a registered root.
func (h *Heap) Safepoint() {
	if h.pending || h.cfg.Stress {
		h.Collect()
	}
}

// Collect runs a full stop-the-world cycle. Calls made while a cycle is in
// progress return immediately.
func (h *Heap) Collect() {
	if h.phase != GCIdle {
		return
	}
	start := time.Now()
	before := h.bytesAllocated
	freedBefore := h.stats.ObjectsFreed
	if h.cfg.Log {
		h.log.Infof("%s-- gc begin", h.logPrefix())
	}

	h.phase = GCMarking
	for _, r := range h.roots {
		r.MarkRoots(h)
	}
	for _, v := range h.tempRoots {
		h.MarkValue(v)
	}
	h.traceReferences()
	h.strings.removeWhite(h)

	h.phase = GCSweeping
	h.sweep()

	h.phase = GCIdle
	h.pending = false
	h.nextGC = int(float64(h.bytesAllocated) * h.cfg.GrowFactor)
	if h.nextGC < h.cfg.InitialThreshold {
		h.nextGC = h.cfg.InitialThreshold
	}
	h.stats.Cycles++
	h.stats.LastDuration = time.Since(start)

	if h.cfg.Log {
		collected := before - h.bytesAllocated
		if collected < 0 {
			collected = 0
		}
		h.log.Infof("%s-- gc end: collected %s (%d objects, from %s to %s) next at %s",
			h.logPrefix(),
			humanize.IBytes(uint64(collected)),
			h.stats.ObjectsFreed-freedBefore,
			humanize.IBytes(uint64(before)),
			humanize.IBytes(uint64(h.bytesAllocated)),
			humanize.IBytes(uint64(h.nextGC)))
	}
}

// MarkValue marks the object v references, if any.
func (h *Heap) MarkValue(v Value) {
	if v.IsObject() {
		h.markRef(v.AsRef())
	}
}

// MarkObject marks o. o must not be a typed nil.
func (h *Heap) MarkObject(o Object) {
	if o == nil {
		return
	}
	h.markRef(o.Ref())
}

// MarkTable marks every key and value of t.
func (h *Heap) MarkTable(t *Table) {
	t.mark(h)
}

func (h *Heap) markRef(r Ref) {
	if r == 0 || int(r) >= len(h.slots) {
		return
	}
	s := &h.slots[r]
	if s.obj == nil || s.marked {
		return
	}
	s.marked = true
	if h.cfg.Log {
		h.log.Debugf("%s%d mark %s", h.logPrefix(), r, s.obj.Kind())
	}

	if len(h.gray) == cap(h.gray) {
		oldCap := cap(h.gray)
		gray := make([]Ref, len(h.gray), growCapacity(oldCap))
		copy(gray, h.gray)
		h.gray = gray
		h.reallocate(oldCap*refSize, cap(gray)*refSize)
	}
	h.gray = append(h.gray, r)
}

var refSize = int(unsafe.Sizeof(Ref(0)))

func (h *Heap) isMarked(r Ref) bool {
	return h.slots[r].marked
}

func (h *Heap) traceReferences() {
	for len(h.gray) > 0 {
		r := h.gray[len(h.gray)-1]
		h.gray = h.gray[:len(h.gray)-1]
		if h.cfg.Log {
			h.log.Debugf("%s%d blacken %s", h.logPrefix(), r, h.slots[r].obj.Kind())
		}
		h.slots[r].obj.blacken(h)
	}
}

func (h *Heap) sweep() {
	for i := 1; i < len(h.slots); i++ {
		s := &h.slots[i]
		if s.obj == nil {
			continue
		}
		if s.marked {
			s.marked = false
			continue
		}
		h.freeObject(Ref(i))
	}
}

// freeObject releases one object. Each object is freed exactly once.
func (h *Heap) freeObject(r Ref) {
	o := h.slots[r].obj
	if o == nil {
		panic(fmt.Sprintf("vm: double free of object %d", r))
	}
	if h.cfg.Log {
		h.log.Debugf("%s%d free %s", h.logPrefix(), r, o.Kind())
	}

	size := o.size()
	switch obj := o.(type) {
	case *ObjFunction:
		obj.Chunk.Free()
	case *ObjClass:
		obj.Methods.Free()
	case *ObjInstance:
		obj.Fields.Free()
	}
	h.reallocate(size, 0)

	h.slots[r] = slot{}
	h.free = append(h.free, r)
	h.liveObjects--
	h.stats.ObjectsFreed++
	h.stats.BytesFreed += size
}

// Free releases every object and table the heap owns.
func (h *Heap) Free() {
	for i := 1; i < len(h.slots); i++ {
		if h.slots[i].obj != nil {
			h.freeObject(Ref(i))
		}
	}
	h.strings.Free()
	h.slots = make([]slot, 1, 64)
	h.free = nil
	h.gray = nil
	h.roots = nil
	h.tempRoots = nil
}

func (h *Heap) logPrefix() string {
	if h.owner == "" {
		return ""
	}
	return "[" + h.owner + "] "
}
