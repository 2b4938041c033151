package record

// Backfill overlays saved onto a deep copy of defaults and returns the result.
//
// For every key present in saved with a non-nil value: when both the default
// and the saved value are maps, the two are merged the same way, so a saved
// record that predates a nested field still receives that field's default.
// Otherwise the saved value replaces the default; lists and scalars are never
// merged element by element. Keys absent from saved keep their defaults.
// Neither argument is modified.
func Backfill(defaults, saved Map) Map {
	merged := CloneMap(defaults)
	for key, value := range saved {
		if value == nil {
			continue
		}
		savedMap, savedIsMap := value.(Map)
		defaultMap, defaultIsMap := merged[key].(Map)
		if savedIsMap && defaultIsMap {
			merged[key] = Backfill(defaultMap, savedMap)
			continue
		}
		merged[key] = Clone(value)
	}
	return merged
}
