package charsheet_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/arthur-debert/charsheet/charsheet"
	"github.com/arthur-debert/charsheet/charsheet/dom"
	"github.com/arthur-debert/charsheet/charsheet/persist"
	"github.com/arthur-debert/charsheet/charsheet/record"
	"github.com/arthur-debert/charsheet/charsheet/section"
	"github.com/arthur-debert/charsheet/testutil"
	"github.com/google/go-cmp/cmp"
)

func control(t *testing.T, sheet *charsheet.Sheet, id string) *dom.Control {
	t.Helper()
	ctl, ok := sheet.Document().Control(id)
	if !ok {
		t.Fatalf("no control %q", id)
	}
	return ctl
}

func TestOpen(t *testing.T) {
	sheet, _, _ := testutil.LoadSheet(t)

	want := []string{"advancedSkills", "talents", "weapons", "armour", "trappings", "spells"}
	if diff := cmp.Diff(want, sheet.Sections()); diff != "" {
		t.Errorf("sections mismatch (-want +got):\n%s", diff)
	}

	if got := control(t, sheet, "name").Value(); got != testutil.Name {
		t.Errorf("name control shows %q", got)
	}
	if got := control(t, sheet, "_computed.currentWS").Value(); got != "48" {
		t.Errorf("currentWS control shows %q", got)
	}
	if !control(t, sheet, "_computed.currentWS").ReadOnly() {
		t.Error("computed controls must be read-only")
	}
	if got := control(t, sheet, "skills.Melee (Basic)").Value(); got != "15" {
		t.Errorf("skill control shows %q", got)
	}

	rows := sheet.Document().Container("weapons")
	if rows.Len() != testutil.WeaponCount {
		t.Errorf("expected %d weapon rows, got %d", testutil.WeaponCount, rows.Len())
	}

	skills := sheet.Document().Container("advancedSkills")
	first, err := skills.RowAt(1)
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := first.Value("total"); got != "46" {
		t.Errorf("expected Ranged (Crossbow) total 46, got %q", got)
	}

	if _, err := sheet.Section("mounts"); !errors.Is(err, section.ErrUnknownSection) {
		t.Errorf("expected ErrUnknownSection, got %v", err)
	}
}

func TestFieldEditFlow(t *testing.T) {
	sheet, durable, clock := testutil.LoadSheet(t)

	adv := control(t, sheet, "characteristics.ws.advances")
	for _, text := range []string{"1", "12", "15"} {
		if err := adv.Input(text); err != nil {
			t.Fatal(err)
		}
	}

	if got := sheet.Get("characteristics.ws.advances"); got != 15.0 {
		t.Errorf("record holds %v", got)
	}
	if got := control(t, sheet, "_computed.currentWS").Value(); got != "53" {
		t.Errorf("currentWS control shows %q, want 53", got)
	}
	if got := control(t, sheet, "_computed.skillTotal.melee-basic").Value(); got != "68" {
		t.Errorf("melee total shows %q, want 68", got)
	}

	if durable.SaveCount() != 1 {
		t.Fatalf("expected only the fixture seed save, got %d", durable.SaveCount())
	}
	clock.Advance(persist.DefaultDebounce)
	if durable.SaveCount() != 2 {
		t.Errorf("expected one debounced save, got %d", durable.SaveCount()-1)
	}
	saved, _ := durable.Value(persist.DefaultKey)
	if strings.Contains(saved, "_computed") {
		t.Error("computed values were saved")
	}

	if err := sheet.Set("_computed.currentWS", 1); err == nil {
		t.Error("expected computed paths to be read-only")
	}
}

func TestSectionEditFlow(t *testing.T) {
	sheet, _, _ := testutil.LoadSheet(t)
	weapons, _ := sheet.Section("weapons")
	rows := sheet.Document().Container("weapons")

	if err := weapons.SetMode(section.Edit); err != nil {
		t.Fatal(err)
	}
	if !weapons.AddEntry(record.Map{"name": "Dagger", "enc": 0}) {
		t.Fatal("add refused in edit mode")
	}
	first, _ := rows.RowAt(0)
	if err := first.Remove(); err != nil {
		t.Fatal(err)
	}
	if err := weapons.SetMode(section.View); err != nil {
		t.Fatal(err)
	}

	var names []string
	for _, e := range weapons.Entries() {
		names = append(names, record.Text(e["name"]))
	}
	if diff := cmp.Diff([]string{"Crossbow", "Dagger"}, names); diff != "" {
		t.Errorf("weapons mismatch (-want +got):\n%s", diff)
	}
	if got := sheet.Get("_computed.calculatedWeaponsEncumbrance"); got != 2.0 {
		t.Errorf("weapons encumbrance = %v, want 2", got)
	}
}

func TestLiveAdvancedSkills(t *testing.T) {
	sheet, _, _ := testutil.LoadSheet(t)
	rows := sheet.Document().Container("advancedSkills")

	row, _ := rows.RowAt(0)
	if err := row.Input("advances", "10"); err != nil {
		t.Fatalf("advances should be editable in view mode: %v", err)
	}
	if got := sheet.Get("advancedSkills.0.advances"); got != 10.0 {
		t.Errorf("record holds %v", got)
	}
	row, _ = rows.RowAt(0)
	if got, _ := row.Value("total"); got != "40" {
		t.Errorf("Language (Battle) total shows %q, want 40", got)
	}
}

func TestSetSectionEntry(t *testing.T) {
	sheet, _, _ := testutil.LoadSheet(t)
	rows := sheet.Document().Container("advancedSkills")

	if err := sheet.Set("advancedSkills.0.name", "Renamed"); err != nil {
		t.Fatal(err)
	}
	row, _ := rows.RowAt(0)
	if got, _ := row.Value("name"); got != "Renamed" {
		t.Errorf("row shows %q after the entry was set", got)
	}

	// A view-mode edit commits the whole row and must not revert the write.
	if err := row.Input("advances", "7"); err != nil {
		t.Fatal(err)
	}
	if got := sheet.Get("advancedSkills.0.name"); got != "Renamed" {
		t.Errorf("entry name reverted to %v", got)
	}
	if got := sheet.Get("advancedSkills.0.advances"); got != 7.0 {
		t.Errorf("advances = %v, want 7", got)
	}

	t.Run("edit mode keeps its rows", func(t *testing.T) {
		weapons, _ := sheet.Section("weapons")
		if err := weapons.SetMode(section.Edit); err != nil {
			t.Fatal(err)
		}
		first, _ := sheet.Document().Container("weapons").RowAt(0)
		if err := first.Input("name", "Sword"); err != nil {
			t.Fatal(err)
		}
		if err := sheet.Set("weapons.1.enc", 3); err != nil {
			t.Fatal(err)
		}
		if got, _ := first.Value("name"); got != "Sword" {
			t.Errorf("edit row lost its input: %q", got)
		}
		if err := weapons.SetMode(section.View); err != nil {
			t.Fatal(err)
		}
		if got := sheet.Get("weapons.0.name"); got != "Sword" {
			t.Errorf("weapons.0.name = %v, want Sword", got)
		}
	})
}

func TestImportExport(t *testing.T) {
	sheet, _, _ := testutil.LoadSheet(t)

	text, err := sheet.Export()
	if err != nil {
		t.Fatal(err)
	}
	before := sheet.Store().Snapshot()

	blank, _, _ := testutil.NewSheet(t)
	if err := blank.Import(text); err != nil {
		t.Fatalf("import: %v", err)
	}
	if diff := cmp.Diff(before, blank.Store().Snapshot()); diff != "" {
		t.Errorf("import mismatch (-want +got):\n%s", diff)
	}

	// Sections and bound fields follow the import without harvesting rows.
	if got := blank.Document().Container("trappings").Len(); got != testutil.TrappingCount {
		t.Errorf("expected %d trapping rows, got %d", testutil.TrappingCount, got)
	}
	if got := control(t, blank, "characteristics.ws.initial").Value(); got != "38" {
		t.Errorf("ws.initial control shows %q", got)
	}
	if got := control(t, blank, "_computed.currentWS").Value(); got != "48" {
		t.Errorf("currentWS control shows %q", got)
	}

	if err := blank.Import("[]"); !errors.Is(err, persist.ErrNotObject) {
		t.Errorf("expected ErrNotObject, got %v", err)
	}
}

func TestImportWhileEditing(t *testing.T) {
	sheet, _, _ := testutil.NewSheet(t)
	talents, _ := sheet.Section("talents")
	if err := talents.SetMode(section.Edit); err != nil {
		t.Fatal(err)
	}

	if err := sheet.Import(`{"talents":[{"name":"Luck","times":1,"description":""}]}`); err != nil {
		t.Fatal(err)
	}
	if err := talents.SetMode(section.View); err != nil {
		t.Fatal(err)
	}
	if got := len(talents.Entries()); got != 1 {
		t.Errorf("imported talents lost on commit: %d entries", got)
	}
}

func TestReset(t *testing.T) {
	sheet, _, _ := testutil.LoadSheet(t)
	if err := sheet.Reset(); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(sheet.Rules().DefaultRecord(), sheet.Store().Snapshot()); diff != "" {
		t.Errorf("reset mismatch (-want +got):\n%s", diff)
	}
	if got := control(t, sheet, "name").Value(); got != "" {
		t.Errorf("name control shows %q after reset", got)
	}
	if got := sheet.Document().Container("weapons").Len(); got != 0 {
		t.Errorf("expected no weapon rows, got %d", got)
	}
}

func TestClose(t *testing.T) {
	sheet, durable, _ := testutil.NewSheet(t)
	trappings, _ := sheet.Section("trappings")
	_ = trappings.SetMode(section.Edit)
	trappings.AddEntry(record.Map{"name": "Rope", "enc": 1})

	if err := sheet.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	saved, ok := durable.Value(persist.DefaultKey)
	if !ok || !strings.Contains(saved, "Rope") {
		t.Errorf("close should commit and save the open section, got %q", saved)
	}
}
