package sizing

import (
	"testing"

	"github.com/example/bike-rental/internal/models"
)

func testTable() *Table {
	return NewTable([]models.HeightRange{
		{Size: models.SizeXS, MinHeight: 140, MaxHeight: 155},
		{Size: models.SizeS, MinHeight: 155, MaxHeight: 165},
		{Size: models.SizeM, MinHeight: 165, MaxHeight: 175},
		{Size: models.SizeL, MinHeight: 175, MaxHeight: 185},
		{Size: models.SizeXL, MinHeight: 185, MaxHeight: 200},
	})
}

func TestIdealSizeInsideBands(t *testing.T) {
	table := testTable()
	cases := []struct {
		height float64
		want   models.SizeClass
	}{
		{142, models.SizeXS},
		{160, models.SizeS},
		{170, models.SizeM},
		{180, models.SizeL},
		{195, models.SizeXL},
	}
	for _, c := range cases {
		got, ok := table.IdealSize(c.height)
		if !ok || got != c.want {
			t.Fatalf("IdealSize(%v) = %v,%v want %v", c.height, got, ok, c.want)
		}
	}
}

func TestIdealSizeOutsideAllBands(t *testing.T) {
	table := testTable()
	for _, h := range []float64{100, 139.9, 200.1, 250} {
		if _, ok := table.IdealSize(h); ok {
			t.Fatalf("IdealSize(%v) matched, want no match", h)
		}
	}
}

func TestShortRiderNeverPassesForXL(t *testing.T) {
	table := testTable()
	if table.WithinTolerance(150, models.SizeXL) {
		t.Fatal("150cm rider accepted for XL")
	}
}

func TestToleranceBoundedBySubstitutionSpan(t *testing.T) {
	table := testTable()
	// ideal XS: one and two steps up are fair game, three or more never
	if !table.WithinTolerance(150, models.SizeS) {
		t.Fatal("adjacent size refused for a 150cm rider")
	}
	if !table.WithinTolerance(150, models.SizeM) {
		t.Fatal("two-step size refused for a 150cm rider")
	}
	if table.WithinTolerance(150, models.SizeL) {
		t.Fatal("150cm rider accepted for L, three steps from ideal")
	}
	// ideal S: XL is three steps away even though the midpoint math alone
	// would allow it
	if table.WithinTolerance(160, models.SizeXL) {
		t.Fatal("160cm rider accepted for XL")
	}
}

func TestToleranceRequiresConfiguredHeight(t *testing.T) {
	table := testTable()
	// a height outside every band has no ideal size to substitute from
	if table.WithinTolerance(139, models.SizeXL) {
		t.Fatal("unconfigured height accepted for XL")
	}
	if table.WithinTolerance(250, models.SizeXL) {
		t.Fatal("unconfigured height accepted for XL")
	}
}

func TestToleranceMonotonic(t *testing.T) {
	table := testTable()
	// walking away from the midpoint must never flip false back to true
	r, _ := table.Range(models.SizeM)
	center := r.Midpoint()
	wasWithin := true
	for delta := 0.0; delta < 120; delta += 0.5 {
		within := table.WithinTolerance(center+delta, models.SizeM)
		if within && !wasWithin {
			t.Fatalf("tolerance flipped back to true at delta %v", delta)
		}
		wasWithin = within
	}
	if wasWithin {
		t.Fatal("tolerance never became false")
	}
}

func TestProbeOrder(t *testing.T) {
	got := ProbeOrder(models.SizeM)
	want := []models.SizeClass{models.SizeL, models.SizeS, models.SizeXL, models.SizeXS}
	if len(got) != len(want) {
		t.Fatalf("ProbeOrder(M) = %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ProbeOrder(M) = %v want %v", got, want)
		}
	}

	gotXS := ProbeOrder(models.SizeXS)
	wantXS := []models.SizeClass{models.SizeS, models.SizeM}
	if len(gotXS) != len(wantXS) || gotXS[0] != wantXS[0] || gotXS[1] != wantXS[1] {
		t.Fatalf("ProbeOrder(XS) = %v want %v", gotXS, wantXS)
	}
}
