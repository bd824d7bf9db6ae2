// Bitmap allocator

package common

import (
	"fmt"

	"github.com/boljen/go-bitmap"

	"github.com/dargueta/retrodisk"
)

// LinkFunc is called by [Allocator.Allocate] once for every consecutive pair of
// units in a new chain, so chain-based formats can record `next` as the
// successor of `prev` while the chain is being built.
type LinkFunc func(prev, next UnitID) error

// Allocator tracks which allocation units are in use. Units are numbered
// [0, TotalUnits). Units can additionally be marked as skipped: a skipped unit
// keeps its free/used state but placement never picks it. This is how
// directory tracks with free sectors (CBM) stay out of file data.
type Allocator struct {
	inUse      bitmap.Bitmap
	skipped    bitmap.Bitmap
	TotalUnits uint
	cursor     UnitID
}

// AllocatorState is an opaque copy of an allocator's state. See
// [Allocator.Snapshot].
type AllocatorState struct {
	inUse  []byte
	cursor UnitID
}

// NewAllocator creates a new allocator with all units free.
func NewAllocator(totalUnits uint) *Allocator {
	return &Allocator{
		inUse:      bitmap.New(int(totalUnits)),
		skipped:    bitmap.New(int(totalUnits)),
		TotalUnits: totalUnits,
	}
}

func (alloc *Allocator) checkRange(start UnitID, count uint) error {
	if uint(start)+count > alloc.TotalUnits {
		return retrodisk.ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf(
				"invalid unit range [%d, %d): not in range [0, %d)",
				start,
				uint(start)+count,
				alloc.TotalUnits))
	}
	return nil
}

// Reserve marks `count` units starting at `start` as permanently in use.
func (alloc *Allocator) Reserve(start UnitID, count uint) error {
	if err := alloc.checkRange(start, count); err != nil {
		return err
	}
	for i := uint(0); i < count; i++ {
		alloc.inUse.Set(int(start)+int(i), true)
	}
	return nil
}

// Skip excludes `count` units starting at `start` from placement without
// changing whether they're free.
func (alloc *Allocator) Skip(start UnitID, count uint) error {
	if err := alloc.checkRange(start, count); err != nil {
		return err
	}
	for i := uint(0); i < count; i++ {
		alloc.skipped.Set(int(start)+int(i), true)
	}
	return nil
}

// Claim marks one specific unit as used. It fails if the unit is already in
// use. Skipped units can be claimed.
func (alloc *Allocator) Claim(unit UnitID) error {
	if err := alloc.checkRange(unit, 1); err != nil {
		return err
	}
	if alloc.inUse.Get(int(unit)) {
		return retrodisk.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("unit %d is already allocated", unit))
	}
	alloc.inUse.Set(int(unit), true)
	return nil
}

// IsFree returns true if the unit isn't in use. Units outside the valid range
// are never free.
func (alloc *Allocator) IsFree(unit UnitID) bool {
	if uint(unit) >= alloc.TotalUnits {
		return false
	}
	return !alloc.inUse.Get(int(unit))
}

func (alloc *Allocator) isPlaceable(unit UnitID) bool {
	return !alloc.inUse.Get(int(unit)) && !alloc.skipped.Get(int(unit))
}

// FreeCount gives the number of free units placement can still choose from.
// Skipped units aren't counted.
func (alloc *Allocator) FreeCount() uint {
	count := uint(0)
	for i := 0; i < int(alloc.TotalUnits); i++ {
		if alloc.isPlaceable(UnitID(i)) {
			count++
		}
	}
	return count
}

// FreeInRange counts free units in [start, start+count), skipped or not.
func (alloc *Allocator) FreeInRange(start UnitID, count uint) uint {
	free := uint(0)
	for i := uint(0); i < count; i++ {
		if alloc.IsFree(start + UnitID(i)) {
			free++
		}
	}
	return free
}

// Cursor returns the unit where the next sequential scan starts.
func (alloc *Allocator) Cursor() UnitID {
	return alloc.cursor
}

// SetCursor moves the position where the next sequential scan starts.
func (alloc *Allocator) SetCursor(unit UnitID) {
	alloc.cursor = unit
}

// Allocate picks `count` free units by scanning upward from the cursor,
// skipping reserved, used and skipped units. The scan never wraps around. If
// fewer than `count` units are available, it fails with
// [retrodisk.ErrDiskFull] and nothing is changed.
//
// If `link` is not nil, it's called for each consecutive pair in the new chain.
// An error from `link` aborts the allocation, again without changing anything.
func (alloc *Allocator) Allocate(count uint, link LinkFunc) (Chain, error) {
	chain := make(Chain, 0, count)
	for i := uint(alloc.cursor); i < alloc.TotalUnits && uint(len(chain)) < count; i++ {
		if alloc.isPlaceable(UnitID(i)) {
			chain = append(chain, UnitID(i))
		}
	}

	if uint(len(chain)) < count {
		return nil, retrodisk.ErrDiskFull.WithMessage(
			fmt.Sprintf("need %d units, only %d available", count, len(chain)))
	}
	return chain, alloc.commit(chain, link)
}

// AllocateContiguous finds the first run of `count` free units at or after the
// cursor and allocates it.
func (alloc *Allocator) AllocateContiguous(count uint) (Chain, error) {
	start, err := alloc.FindContiguousFree(alloc.cursor, alloc.TotalUnits, count)
	if err != nil {
		return nil, err
	}

	chain := make(Chain, count)
	for i := range chain {
		chain[i] = start + UnitID(i)
	}
	return chain, alloc.commit(chain, nil)
}

// FindContiguousFree returns the start of the first run of `count` placeable
// units within [lo, hi).
func (alloc *Allocator) FindContiguousFree(lo UnitID, hi uint, count uint) (UnitID, error) {
	if hi > alloc.TotalUnits {
		hi = alloc.TotalUnits
	}

	runSize := uint(0)
	runStart := lo
	for i := uint(lo); i < hi; i++ {
		if !alloc.isPlaceable(UnitID(i)) {
			runSize = 0
			continue
		}

		runSize++
		if runSize == 1 {
			runStart = UnitID(i)
		}
		if runSize == count {
			return runStart, nil
		}
	}

	if count == 0 {
		return lo, nil
	}
	return 0, retrodisk.ErrDiskFull.WithMessage(
		fmt.Sprintf("no run of %d free units in [%d, %d)", count, lo, hi))
}

func (alloc *Allocator) commit(chain Chain, link LinkFunc) error {
	if link != nil {
		for i := 1; i < len(chain); i++ {
			if err := link(chain[i-1], chain[i]); err != nil {
				return err
			}
		}
	}

	for _, unit := range chain {
		alloc.inUse.Set(int(unit), true)
	}
	if len(chain) > 0 {
		alloc.cursor = chain[len(chain)-1] + 1
	}
	return nil
}

// FreeChain releases every unit in `chain`. It fails without changing anything
// if any of them is already free.
func (alloc *Allocator) FreeChain(chain Chain) error {
	for _, unit := range chain {
		if alloc.IsFree(unit) {
			return retrodisk.ErrInvalidArgument.WithMessage(
				fmt.Sprintf("unit %d is already free", unit))
		}
	}
	for _, unit := range chain {
		alloc.inUse.Set(int(unit), false)
	}
	return nil
}

// Snapshot captures the in-use map and cursor so they can be put back with
// [Allocator.Restore].
func (alloc *Allocator) Snapshot() AllocatorState {
	copied := make([]byte, len(alloc.inUse))
	copy(copied, alloc.inUse)
	return AllocatorState{inUse: copied, cursor: alloc.cursor}
}

// Restore puts back a state captured by [Allocator.Snapshot].
func (alloc *Allocator) Restore(state AllocatorState) {
	copy(alloc.inUse, state.inUse)
	alloc.cursor = state.cursor
}

////////////////////////////////////////////////////////////////////////////////
// On-disk free maps

// BitOrder selects how units map to bits within a byte of an on-disk free map.
type BitOrder int

const (
	// LSBFirst puts the lowest-numbered unit in bit 0 (CBM, Amiga).
	LSBFirst BitOrder = iota
	// MSBFirst puts the lowest-numbered unit in bit 7 (ProDOS, Atari).
	MSBFirst
)

// EncodeFreeMap renders units [start, start+count) as an on-disk bitmap where
// a set bit means the unit is free. `output` must hold at least ceil(count/8)
// bytes; bits past `count` are left untouched.
func (alloc *Allocator) EncodeFreeMap(output []byte, start UnitID, count uint, order BitOrder) {
	for i := uint(0); i < count; i++ {
		unit := start + UnitID(i)
		free := alloc.IsFree(unit)
		switch order {
		case LSBFirst:
			bitmap.Set(output, int(i), free)
		case MSBFirst:
			mask := byte(0x80) >> (i % 8)
			if free {
				output[i/8] |= mask
			} else {
				output[i/8] &^= mask
			}
		}
	}
}
