package generate

import (
	"strings"

	"github.com/layerforge/layerforge/pkg/errors"
	"github.com/layerforge/layerforge/pkg/model"
)

// CapacityReport describes the uniqueness headroom of one active layer
// combination: how many distinct joint selections its layers admit.
type CapacityReport struct {
	Combination model.CombinationID `json:"combination"`
	Layers      []model.LayerID     `json:"layers"`
	Capacity    int                 `json:"capacity"`
}

// CapacityReports computes the capacity of every active combination.
// Capacity is the product of the trait counts of the member layers; an
// optional member layer can also be omitted, so the true ceiling may be
// slightly higher. The product is the guaranteed-safe bound used for the
// pre-check.
func CapacityReports(m *model.ConstraintModel) []CapacityReport {
	combos := m.Combinations()
	reports := make([]CapacityReport, 0, len(combos))
	for _, c := range combos {
		reports = append(reports, CapacityReport{
			Combination: c.ID,
			Layers:      append([]model.LayerID(nil), c.Layers...),
			Capacity:    m.CombinationCapacity(c),
		})
	}
	return reports
}

// CheckCapacity verifies the requested size fits every active combination.
// It fails before any item is generated, citing the limiting combination.
func CheckCapacity(m *model.ConstraintModel, size int) error {
	for _, r := range CapacityReports(m) {
		if size > r.Capacity {
			names := make([]string, len(r.Layers))
			for i, id := range r.Layers {
				names[i] = string(id)
			}
			return errors.New(errors.ErrCodeCapacityExceeded,
				"combination %q over layers %s admits at most %d distinct items, requested %d",
				r.Combination, strings.Join(names, "+"), r.Capacity, size)
		}
	}
	return nil
}
