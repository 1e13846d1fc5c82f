package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validDocument() *PolicyDocument {
	return &PolicyDocument{
		ModuleConfig: ModuleConfig{
			ExchangeAfterXIgnitionCycles: 100,
			ExchangeAfterXKilometers:     1800,
			ExchangeAfterXDays:           30,
			TimeoutAfterXSeconds:         60,
		},
		FunctionalGroupings: map[string]FunctionalGroup{
			"Base-4": {
				RPCs: map[string]RPCRule{
					"RegisterAppInterface": {
						HMILevels: []HMILevel{HMIFull},
					},
				},
			},
		},
		AppPolicies: AppPolicies{
			Device: DevicePolicy{Priority: PriorityNone},
			Apps: map[string]AppEntry{
				DefaultID: FullEntry(AppParams{
					Priority: PriorityNone,
					Groups:   []string{"Base-4"},
				}),
				"app-1": RefEntry(DefaultID),
			},
		},
	}
}

func TestValidateAcceptsWellFormedDocument(t *testing.T) {
	assert.Empty(t, Validate(validDocument()))
}

func TestValidateRejectsUnknownHMILevel(t *testing.T) {
	doc := validDocument()
	doc.FunctionalGroupings["Base-4"] = FunctionalGroup{
		RPCs: map[string]RPCRule{
			"RegisterAppInterface": {
				HMILevels: []HMILevel{"SOMETIMES"},
			},
		},
	}
	errs := Validate(doc)
	require.NotEmpty(t, errs)
}

func TestValidateRejectsUnknownPriority(t *testing.T) {
	doc := validDocument()
	doc.AppPolicies.Apps[DefaultID] = FullEntry(AppParams{
		Priority: "URGENT",
		Groups:   []string{"Base-4"},
	})
	assert.NotEmpty(t, Validate(doc))
}

func TestValidateRejectsNegativeExchangeLimit(t *testing.T) {
	doc := validDocument()
	doc.ModuleConfig.ExchangeAfterXDays = -1
	assert.NotEmpty(t, Validate(doc))
}

func TestValidateRejectsDanglingReference(t *testing.T) {
	doc := validDocument()
	delete(doc.AppPolicies.Apps, DefaultID)
	errs := Validate(doc)
	require.NotEmpty(t, errs)
	assert.Equal(t, "app_policies.app-1", errs[0].Path)
}

func TestValidateRejectsReferenceToRevokedPredefined(t *testing.T) {
	doc := validDocument()
	doc.AppPolicies.Apps[DefaultID] = NullEntry()
	assert.NotEmpty(t, Validate(doc))
}

func TestValidationErrorFormatting(t *testing.T) {
	withPath := ValidationError{Path: "app_policies.x", Message: "bad"}
	assert.Equal(t, "app_policies.x: bad", withPath.Error())

	bare := ValidationError{Message: "bad"}
	assert.Equal(t, "bad", bare.Error())
}
