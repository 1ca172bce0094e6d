// Bitmap-backed set of allocation units

package common

import (
	"fmt"

	"github.com/boljen/go-bitmap"
	"github.com/dargueta/fatread"
)

type UnitID uint32

// clusterSetPageBits is the number of units tracked by one page of a ClusterSet.
const clusterSetPageBits = 4096

// ClusterSet records which allocation units have been seen. It's used to detect
// loops while following a cluster chain: a chain can't visit the same cluster
// twice, so finding a unit already in the set means the chain is corrupted.
//
// The bitmap is split into pages that are only allocated once a unit in them is
// added, so memory use follows the units actually visited rather than the size
// of the volume.
type ClusterSet struct {
	pages      map[uint]bitmap.Bitmap
	TotalUnits uint
	count      uint
}

// NewClusterSet creates a new set able to hold units in [0, totalUnits), with
// all bits cleared.
func NewClusterSet(totalUnits uint) ClusterSet {
	return ClusterSet{
		pages:      map[uint]bitmap.Bitmap{},
		TotalUnits: totalUnits,
	}
}

func splitUnit(unit UnitID) (uint, int) {
	return uint(unit) / clusterSetPageBits, int(uint(unit) % clusterSetPageBits)
}

// Contains returns true if `unit` has been added to the set. Units outside the
// set's range are never members.
func (set *ClusterSet) Contains(unit UnitID) bool {
	if uint(unit) >= set.TotalUnits {
		return false
	}
	pageIndex, bit := splitUnit(unit)
	page, ok := set.pages[pageIndex]
	return ok && page.Get(bit)
}

// Add inserts `unit` into the set. It returns false if the unit was already
// present, true if it was newly added. Adding a unit outside the set's range is
// an error.
func (set *ClusterSet) Add(unit UnitID) (bool, error) {
	if uint(unit) >= set.TotalUnits {
		msg := fmt.Sprintf(
			"invalid unit id: %d not in range [0, %d)",
			unit,
			set.TotalUnits)
		return false, fatread.ErrOutOfRange.WithMessage(msg)
	}

	pageIndex, bit := splitUnit(unit)
	page, ok := set.pages[pageIndex]
	if !ok {
		page = bitmap.New(clusterSetPageBits)
		set.pages[pageIndex] = page
	} else if page.Get(bit) {
		return false, nil
	}

	page.Set(bit, true)
	set.count++
	return true, nil
}

// Len returns the number of units in the set.
func (set *ClusterSet) Len() uint {
	return set.count
}

// AllocatedBytes returns how much memory the set's pages take up.
func (set *ClusterSet) AllocatedBytes() int {
	return len(set.pages) * clusterSetPageBits / 8
}
