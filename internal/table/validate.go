package table

import (
	"encoding/json"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

// documentSchema is the CUE constraint set a policy document must
// satisfy before it is handed to the store. It covers the structural
// rules the relational mapping relies on: closed enum sets, required
// fields, and the three-shape application entry.
const documentSchema = `
#HMILevel: "FULL" | "LIMITED" | "BACKGROUND" | "NONE"
#Priority: "EMERGENCY" | "NAVIGATION" | "VOICECOM" | "COMMUNICATION" | "NORMAL" | "NONE"

#RPCRule: {
	hmi_levels: [#HMILevel, ...#HMILevel]
	parameters?: [...string]
}

#Group: {
	user_consent_prompt?: string
	rpcs: {[string]: #RPCRule}
}

#AppParams: {
	priority:              #Priority
	memory_kb:             int & >=0
	heart_beat_timeout_ms: int & >=0
	certificate?:          string
	groups: [...string] | null
	nicknames?: [...string]
	AppHMIType?: [...string]
	RequestType?: [...string]
}

#AppEntry: null | "default" | "pre_DataConsent" | #AppParams

module_config: {
	preloaded_pt:                     bool
	exchange_after_x_ignition_cycles: int & >=0
	exchange_after_x_kilometers:      int & >=0
	exchange_after_x_days:            int & >=0
	timeout_after_x_seconds:          int & >=0
	seconds_between_retries: [...int & >=0] | null
	endpoints: {[string]: {[string]: [...string]}} | null
	notifications_per_minute_by_priority: {[#Priority]: int & >=0} | null
	...
}

functional_groupings: {[string]: #Group} | null

app_policies: {
	device: priority: #Priority
	[!="device"]: #AppEntry
}
...
`

// ValidationError is one schema violation found in a document.
type ValidationError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Validate checks a document against the embedded CUE schema plus the
// referential rules the schema cannot express: variant consistency and
// predefined-policy presence (an app may only reference "default" or
// "pre_DataConsent" when that predefined entry exists in the same
// document). Returns all violations found, or nil when valid.
func Validate(doc *PolicyDocument) []ValidationError {
	var errs []ValidationError

	for id, entry := range doc.AppPolicies.Apps {
		if err := entry.Check(); err != nil {
			errs = append(errs, ValidationError{
				Path:    "app_policies." + id,
				Message: err.Error(),
			})
			continue
		}
		if entry.Kind == EntryRef {
			target, ok := doc.AppPolicies.Apps[entry.Ref]
			if !ok || target.Kind != EntryFull {
				errs = append(errs, ValidationError{
					Path:    "app_policies." + id,
					Message: fmt.Sprintf("references predefined policy %q which is not a full entry in this document", entry.Ref),
				})
			}
		}
	}

	data, err := json.Marshal(doc)
	if err != nil {
		errs = append(errs, ValidationError{Message: fmt.Sprintf("document not encodable: %v", err)})
		return errs
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(documentSchema)
	if err := schema.Err(); err != nil {
		// The schema is a compile-time constant; a broken schema is a
		// programming error, not a document error.
		panic(fmt.Sprintf("table: invalid document schema: %v", err))
	}

	value := ctx.CompileBytes(data)
	if err := value.Err(); err != nil {
		errs = append(errs, ValidationError{Message: fmt.Sprintf("document not parseable as CUE data: %v", err)})
		return errs
	}

	unified := schema.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		for _, cueErr := range cueerrors.Errors(err) {
			path, msg := formatCUEError(cueErr)
			errs = append(errs, ValidationError{Path: path, Message: msg})
		}
	}

	return errs
}

// formatCUEError splits a CUE error into the failing path and the
// human-readable message.
func formatCUEError(err cueerrors.Error) (string, string) {
	path := cueerrors.Path(err)
	joined := ""
	for i, segment := range path {
		if i > 0 {
			joined += "."
		}
		joined += segment
	}
	format, args := err.Msg()
	return joined, fmt.Sprintf(format, args...)
}
