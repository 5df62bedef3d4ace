package sizing

import (
	"math"

	"github.com/example/bike-rental/internal/models"
)

// DefaultTolerance is the accepted relative deviation from a size band's
// midpoint when offering a substitute size.
const DefaultTolerance = 0.30

// maxSubstitutionSteps caps how far a substitute may sit from the
// rider's ideal size in the ordered size sequence. The midpoint rule
// alone is too forgiving across wide tables (150cm vs the XL midpoint
// can still land under 30%), so substitution is additionally bounded to
// the two-step span the probe order walks.
const maxSubstitutionSteps = 2

// Table maps rider heights to size classes. Ranges come from the external
// fleet/height configuration store and are read-only here.
type Table struct {
	ranges    map[models.SizeClass]models.HeightRange
	Tolerance float64
}

func NewTable(ranges []models.HeightRange) *Table {
	m := make(map[models.SizeClass]models.HeightRange, len(ranges))
	for _, r := range ranges {
		m[r.Size] = r
	}
	return &Table{ranges: m, Tolerance: DefaultTolerance}
}

// Range returns the active height band for a size class.
func (t *Table) Range(size models.SizeClass) (models.HeightRange, bool) {
	r, ok := t.ranges[size]
	return r, ok
}

// IdealSize returns the size class whose band contains height, or false
// when the height falls outside every configured band.
func (t *Table) IdealSize(height float64) (models.SizeClass, bool) {
	for _, size := range models.SizeOrder {
		r, ok := t.ranges[size]
		if !ok {
			continue
		}
		if height >= r.MinHeight && height <= r.MaxHeight {
			return size, true
		}
	}
	return "", false
}

// WithinTolerance reports whether size is an acceptable substitute for a
// rider of the given height: the height must sit within Tolerance of the
// band's midpoint, and size must be no more than two steps from the
// rider's ideal size. A 150cm rider must never pass for XL no matter how
// empty the rack is.
func (t *Table) WithinTolerance(height float64, size models.SizeClass) bool {
	r, ok := t.ranges[size]
	if !ok {
		return false
	}
	ideal, ok := t.IdealSize(height)
	if !ok {
		return false
	}
	steps := models.SizeIndex(size) - models.SizeIndex(ideal)
	if steps < -maxSubstitutionSteps || steps > maxSubstitutionSteps {
		return false
	}
	center := r.Midpoint()
	if center == 0 {
		return false
	}
	return math.Abs(height-center)/center <= t.Tolerance
}

// ProbeOrder returns the substitute sizes to try when the ideal size has
// no stock: one up, one down, two up, two down, skipping positions that
// fall outside the ordered size sequence.
func ProbeOrder(ideal models.SizeClass) []models.SizeClass {
	i := models.SizeIndex(ideal)
	if i < 0 {
		return nil
	}
	out := make([]models.SizeClass, 0, 4)
	for _, off := range []int{1, -1, 2, -2} {
		j := i + off
		if j < 0 || j >= len(models.SizeOrder) {
			continue
		}
		out = append(out, models.SizeOrder[j])
	}
	return out
}
