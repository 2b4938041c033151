package testutil_test

import (
	"testing"

	"github.com/arthur-debert/charsheet/charsheet/persist"
	"github.com/arthur-debert/charsheet/testutil"
)

func TestFixtureValues(t *testing.T) {
	sheet, _, _ := testutil.LoadSheet(t)

	tests := []struct {
		path string
		want any
	}{
		{"name", testutil.Name},
		{"_computed.currentWS", testutil.CurrentWS},
		{"_computed.currentBS", testutil.CurrentBS},
		{"_computed.currentINT", testutil.CurrentInt},
		{"_computed.skillTotal.melee-basic", testutil.MeleeBasicTotal},
		{"_computed.totalExperience", testutil.TotalExperience},
		{"_computed.calculatedWeaponsEncumbrance", testutil.WeaponsEnc},
	}
	for _, tt := range tests {
		if got := sheet.Get(tt.path); got != tt.want {
			t.Errorf("%s = %v, want %v", tt.path, got, tt.want)
		}
	}

	weapons, _ := sheet.Section("weapons")
	if got := len(weapons.Entries()); got != testutil.WeaponCount {
		t.Errorf("expected %d weapons, got %d", testutil.WeaponCount, got)
	}
	trappings, _ := sheet.Section("trappings")
	if got := len(trappings.Entries()); got != testutil.TrappingCount {
		t.Errorf("expected %d trappings, got %d", testutil.TrappingCount, got)
	}
}

func TestFixtureIsBackfilled(t *testing.T) {
	raw := testutil.LoadCharacter(t)
	if _, ok := raw["party"]; ok {
		t.Fatal("fixture should predate the party field")
	}

	sheet, _, _ := testutil.LoadSheet(t)
	if got := sheet.Get("party.members"); got != "" {
		t.Errorf("expected back-filled party.members, got %#v", got)
	}
	if got := sheet.Get("encumbrance.max"); got != 0.0 {
		t.Errorf("expected back-filled encumbrance.max, got %#v", got)
	}
}

func TestNewSheetIsBlank(t *testing.T) {
	sheet, durable, _ := testutil.NewSheet(t)
	if got := sheet.Get("name"); got != "" {
		t.Errorf("expected blank name, got %v", got)
	}
	if _, ok := durable.Value(persist.DefaultKey); ok {
		t.Error("opening a sheet should not save")
	}
}
