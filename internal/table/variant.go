package table

import "fmt"

// AppEntryKind discriminates the three shapes an application entry
// takes on the wire: a full field set, an explicit null (revoked), or
// a string reference to a predefined policy.
type AppEntryKind int

const (
	// EntryFull carries the regular AppParams field set.
	EntryFull AppEntryKind = iota
	// EntryNull is a revoked application. No other fields are stored.
	EntryNull
	// EntryRef copies its permission set from a predefined policy
	// ("default" or "pre_DataConsent").
	EntryRef
)

// AppEntry is the tagged variant for one application policy. Exactly
// one of Params / Ref is meaningful, selected by Kind; a Null entry
// carries neither.
type AppEntry struct {
	Kind   AppEntryKind
	Ref    string
	Params *AppParams
}

// FullEntry builds a Full entry around params.
func FullEntry(params AppParams) AppEntry {
	return AppEntry{Kind: EntryFull, Params: &params}
}

// NullEntry builds the revoked variant.
func NullEntry() AppEntry {
	return AppEntry{Kind: EntryNull}
}

// RefEntry builds a reference to a predefined policy id.
func RefEntry(target string) AppEntry {
	return AppEntry{Kind: EntryRef, Ref: target}
}

// Revoked reports whether the entry is the null (revoked) variant.
func (e AppEntry) Revoked() bool {
	return e.Kind == EntryNull
}

// Check verifies the variant is internally consistent: a Full entry
// has params, a Ref entry names a known predefined policy, a Null
// entry carries nothing.
func (e AppEntry) Check() error {
	switch e.Kind {
	case EntryFull:
		if e.Params == nil {
			return fmt.Errorf("full entry without params")
		}
		if e.Ref != "" {
			return fmt.Errorf("full entry carries a ref %q", e.Ref)
		}
	case EntryNull:
		if e.Params != nil || e.Ref != "" {
			return fmt.Errorf("null entry carries fields")
		}
	case EntryRef:
		if e.Ref != DefaultID && e.Ref != PreDataConsentID {
			return fmt.Errorf("ref entry targets unknown policy %q", e.Ref)
		}
		if e.Params != nil {
			return fmt.Errorf("ref entry carries params")
		}
	default:
		return fmt.Errorf("unknown entry kind %d", e.Kind)
	}
	return nil
}
