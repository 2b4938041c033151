// Package testutil provides a known character and helpers that open sheets
// over it, so tests can assert against fixed values instead of building
// records by hand.
//
// The fixture (testdata/character.json) predates the party and encumbrance
// fields on purpose: opening it exercises back-fill.
package testutil

import (
	"context"
	_ "embed"
	"testing"

	"github.com/arthur-debert/charsheet/charsheet"
	"github.com/arthur-debert/charsheet/charsheet/persist"
	"github.com/arthur-debert/charsheet/charsheet/record"
	"github.com/arthur-debert/charsheet/charsheet/storage"
)

//go:embed testdata/character.json
var characterJSON string

// Known values of the fixture character.
const (
	Name            = "Hilde Brandt"
	CurrentWS       = 48.0
	CurrentBS       = 36.0
	CurrentInt      = 30.0
	MeleeBasicTotal = 63.0
	TotalExperience = 625.0
	WeaponsEnc      = 3.0
	WeaponCount     = 2
	TrappingCount   = 3
)

// CharacterJSON returns the fixture text.
func CharacterJSON() string {
	return characterJSON
}

// LoadCharacter decodes the fixture.
func LoadCharacter(t *testing.T) record.Map {
	t.Helper()
	m, err := persist.Decode(characterJSON)
	if err != nil {
		t.Fatalf("failed to parse fixture: %v", err)
	}
	return m
}

// NewSheet opens a sheet over an empty memory store driven by a manual clock.
func NewSheet(t *testing.T, opts ...charsheet.Option) (*charsheet.Sheet, *storage.Memory, *ManualClock) {
	t.Helper()
	return open(t, storage.NewMemory(), opts...)
}

// LoadSheet opens a sheet over a memory store holding the fixture under the
// default key.
func LoadSheet(t *testing.T, opts ...charsheet.Option) (*charsheet.Sheet, *storage.Memory, *ManualClock) {
	t.Helper()
	durable := storage.NewMemory()
	if err := durable.Save(context.Background(), persist.DefaultKey, characterJSON); err != nil {
		t.Fatal(err)
	}
	return open(t, durable, opts...)
}

func open(t *testing.T, durable *storage.Memory, opts ...charsheet.Option) (*charsheet.Sheet, *storage.Memory, *ManualClock) {
	t.Helper()
	clock := &ManualClock{}
	opts = append([]charsheet.Option{charsheet.WithClock(clock)}, opts...)
	sheet, err := charsheet.Open(context.Background(), durable, opts...)
	if err != nil {
		t.Fatalf("failed to open sheet: %v", err)
	}
	t.Cleanup(func() { _ = sheet.Close(context.Background()) })
	return sheet, durable, clock
}
