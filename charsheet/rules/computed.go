package rules

import (
	"fmt"

	"github.com/arthur-debert/charsheet/charsheet/record"
	"github.com/arthur-debert/charsheet/charsheet/state"
)

// Encumbrance lists whose entries carry an "enc" field, by the suffix of
// their calculated key.
var encumbranceLists = []struct{ key, path string }{
	{"calculatedWeaponsEncumbrance", "weapons"},
	{"calculatedArmourEncumbrance", "armour"},
	{"calculatedTrappingsEncumbrance", "trappings"},
}

// SkillTotalKey is the computed key holding the total of a basic skill.
func SkillTotalKey(name string) string {
	return "skillTotal" + record.Separator + SkillSlug(name)
}

// RegisterComputed declares every derived property of the sheet on e.
func (r *Rules) RegisterComputed(e *state.Engine) error {
	for _, c := range r.Characteristics {
		base := record.Join("characteristics", c.Key)
		initial := record.Join(base, "initial")
		advances := record.Join(base, "advances")
		err := e.Register(CurrentKey(c.Key), func(rd state.Reader) (any, error) {
			return record.Number(rd.Get(initial)) + record.Number(rd.Get(advances)), nil
		}, initial, advances)
		if err != nil {
			return err
		}
	}

	if err := e.Register("totalExperience", sum("experience.current", "experience.spent"),
		"experience.current", "experience.spent"); err != nil {
		return err
	}

	for _, skill := range r.BasicSkills {
		char, err := r.CharacteristicKey(skill.Characteristic)
		if err != nil {
			return fmt.Errorf("skill %q: %w", skill.Name, err)
		}
		current := state.ComputedPath(CurrentKey(char))
		advances := record.Join("skills", skill.Name)
		if err := e.Register(SkillTotalKey(skill.Name), sum(current, advances), current, advances); err != nil {
			return err
		}
	}

	deps := []string{"advancedSkills"}
	for _, c := range r.Characteristics {
		deps = append(deps, state.ComputedPath(CurrentKey(c.Key)))
	}
	if err := e.Register("advancedSkillTotals", r.advancedSkillTotals, deps...); err != nil {
		return err
	}

	if err := e.Register("totalEncumbrance",
		sum("encumbrance.weapons", "encumbrance.armour", "encumbrance.trappings"),
		"encumbrance.weapons", "encumbrance.armour", "encumbrance.trappings"); err != nil {
		return err
	}

	for _, l := range encumbranceLists {
		path := l.path
		err := e.Register(l.key, func(rd state.Reader) (any, error) {
			total := 0.0
			for _, item := range record.List(rd.Get(path)) {
				total += record.Number(item["enc"])
			}
			return total, nil
		}, path)
		if err != nil {
			return err
		}
	}
	return nil
}

func sum(paths ...string) state.ComputeFunc {
	return func(rd state.Reader) (any, error) {
		total := 0.0
		for _, p := range paths {
			total += record.Number(rd.Get(p))
		}
		return total, nil
	}
}

// advancedSkillTotals produces one item per advanced skill, aligned by index.
func (r *Rules) advancedSkillTotals(rd state.Reader) (any, error) {
	skills := record.List(rd.Get("advancedSkills"))
	totals := make([]any, 0, len(skills))
	for i, skill := range skills {
		char, err := r.CharacteristicKey(record.Text(skill["characteristic"]))
		if err != nil {
			char = r.Characteristics[0].Key
		}
		advances := record.Number(skill["advances"])
		current := record.Number(rd.Get(state.ComputedPath(CurrentKey(char))))
		totals = append(totals, record.Map{
			"index":          float64(i),
			"total":          current + advances,
			"name":           record.Text(skill["name"]),
			"characteristic": record.Text(skill["characteristic"]),
			"advances":       advances,
		})
	}
	return totals, nil
}
