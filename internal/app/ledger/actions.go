package ledger

import (
	"fmt"

	"github.com/biszaal/expenzez-sub007/internal/domain"
)

// Catalog is the immutable, ordered set of point-earning actions.
type Catalog struct {
	defs  []domain.ActionDefinition
	index map[string]int
}

// NewCatalog validates defs and builds a catalog.
func NewCatalog(defs []domain.ActionDefinition) (*Catalog, error) {
	c := &Catalog{
		defs:  make([]domain.ActionDefinition, 0, len(defs)),
		index: make(map[string]int, len(defs)),
	}
	for _, d := range defs {
		if err := validateAction(d); err != nil {
			return nil, err
		}
		if _, dup := c.index[d.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %q", domain.ErrInvalidAction, d.ID)
		}
		c.index[d.ID] = len(c.defs)
		c.defs = append(c.defs, d)
	}
	return c, nil
}

// DefaultCatalog returns the built-in action catalog.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(DefaultActions())
	if err != nil {
		panic(err) // static catalog
	}
	return c
}

// Lookup returns the definition for id.
func (c *Catalog) Lookup(id string) (domain.ActionDefinition, bool) {
	i, ok := c.index[id]
	if !ok {
		return domain.ActionDefinition{}, false
	}
	return c.defs[i], true
}

// Actions returns the definitions in catalog order.
func (c *Catalog) Actions() []domain.ActionDefinition {
	out := make([]domain.ActionDefinition, len(c.defs))
	copy(out, c.defs)
	return out
}

// Len returns the number of actions.
func (c *Catalog) Len() int {
	return len(c.defs)
}

// WithOverrides returns a new catalog where defs replace entries with the same
// id and unknown ids are appended.
func (c *Catalog) WithOverrides(defs []domain.ActionDefinition) (*Catalog, error) {
	merged := c.Actions()
	for _, d := range defs {
		if i, ok := c.index[d.ID]; ok {
			merged[i] = d
			continue
		}
		merged = append(merged, d)
	}
	return NewCatalog(merged)
}

func validateAction(d domain.ActionDefinition) error {
	switch {
	case d.ID == "":
		return fmt.Errorf("%w: empty id", domain.ErrInvalidAction)
	case d.BasePoints <= 0:
		return fmt.Errorf("%w: %q base points must be positive, got %d", domain.ErrInvalidAction, d.ID, d.BasePoints)
	case !d.Cadence.Valid():
		return fmt.Errorf("%w: %q unknown cadence %q", domain.ErrInvalidAction, d.ID, d.Cadence)
	case d.CooldownMinutes < 0:
		return fmt.Errorf("%w: %q negative cooldown", domain.ErrInvalidAction, d.ID)
	}
	return nil
}

// ─── Action Catalog ─────────────────────────────────────────────────────────

// DefaultActions returns the built-in actions of the expense tracker.
func DefaultActions() []domain.ActionDefinition {
	return []domain.ActionDefinition{
		{ID: "add-expense", DisplayName: "Add expense", BasePoints: 5, Cadence: domain.CadenceDaily, CooldownMinutes: 5},
		{ID: "add-income", DisplayName: "Add income", BasePoints: 5, Cadence: domain.CadenceDaily, CooldownMinutes: 5},
		{ID: "daily-check-in", DisplayName: "Daily check-in", BasePoints: 2, Cadence: domain.CadenceDaily, CooldownMinutes: 24 * 60},
		{ID: "categorize-transaction", DisplayName: "Categorize transaction", BasePoints: 1, Cadence: domain.CadenceDaily, CooldownMinutes: 1},
		{ID: "set-budget", DisplayName: "Set a budget", BasePoints: 10, Cadence: domain.CadenceWeekly, CooldownMinutes: 60},
		{ID: "review-budget", DisplayName: "Review budget", BasePoints: 15, Cadence: domain.CadenceWeekly, CooldownMinutes: 7 * 24 * 60},
		{ID: "import-statement", DisplayName: "Import a statement", BasePoints: 20, Cadence: domain.CadenceWeekly, CooldownMinutes: 24 * 60},
		{ID: "connect-bank", DisplayName: "Connect a bank", BasePoints: 50, Cadence: domain.CadenceMilestone},
		{ID: "create-savings-goal", DisplayName: "Create a savings goal", BasePoints: 25, Cadence: domain.CadenceMilestone, CooldownMinutes: 24 * 60},
		{ID: "complete-profile", DisplayName: "Complete your profile", BasePoints: 25, Cadence: domain.CadenceMilestone},
	}
}
