package table

// Reserved application identifiers. The two predefined policies must
// exist in storage before any ordinary application references them;
// "device" is the reserved entry carrying only a priority.
const (
	DefaultID        = "default"
	PreDataConsentID = "pre_DataConsent"
	DeviceID         = "device"
)

// HMILevel is the UI-visibility state of an application. It gates
// which RPCs the application may invoke.
type HMILevel string

const (
	HMIFull       HMILevel = "FULL"
	HMILimited    HMILevel = "LIMITED"
	HMIBackground HMILevel = "BACKGROUND"
	HMINone       HMILevel = "NONE"
)

// Valid reports whether the level is a member of the closed HMI set.
func (l HMILevel) Valid() bool {
	switch l {
	case HMIFull, HMILimited, HMIBackground, HMINone:
		return true
	}
	return false
}

// Priority is the notification priority class of an application.
type Priority string

const (
	PriorityEmergency     Priority = "EMERGENCY"
	PriorityNavigation    Priority = "NAVIGATION"
	PriorityVoiceCom      Priority = "VOICECOM"
	PriorityCommunication Priority = "COMMUNICATION"
	PriorityNormal        Priority = "NORMAL"
	PriorityNone          Priority = "NONE"
)

// Valid reports whether the priority is a member of the closed set.
func (p Priority) Valid() bool {
	switch p {
	case PriorityEmergency, PriorityNavigation, PriorityVoiceCom,
		PriorityCommunication, PriorityNormal, PriorityNone:
		return true
	}
	return false
}

// RPCRule describes one RPC permission inside a functional group: the
// HMI levels at which the RPC may be invoked and, optionally, the
// vehicle-data parameters it may carry. An empty Parameters list means
// the RPC is unrestricted in its parameters.
type RPCRule struct {
	HMILevels  []HMILevel `json:"hmi_levels"`
	Parameters []string   `json:"parameters,omitempty"`
}

// FunctionalGroup is a named, reusable bundle of RPC permission rules
// assignable to one or more applications. The group's storage identity
// is GroupID(name); the name itself lives as the map key in
// PolicyDocument.FunctionalGroupings.
type FunctionalGroup struct {
	UserConsentPrompt *string            `json:"user_consent_prompt,omitempty"`
	RPCs              map[string]RPCRule `json:"rpcs"`
}

// AppParams is the regular field set of a non-revoked, non-reference
// application policy.
type AppParams struct {
	Priority           Priority `json:"priority"`
	MemoryKB           int      `json:"memory_kb"`
	HeartBeatTimeoutMS uint32   `json:"heart_beat_timeout_ms"`
	Certificate        *string  `json:"certificate,omitempty"`
	Groups             []string `json:"groups"`
	Nicknames          []string `json:"nicknames,omitempty"`
	AppTypes           []string `json:"AppHMIType,omitempty"`
	RequestTypes       []string `json:"RequestType,omitempty"`
}

// DevicePolicy is the reserved "device" entry. Priority is the only
// field the policy layer tracks for it.
type DevicePolicy struct {
	Priority Priority `json:"priority"`
}

// AppPolicies holds the application-policies section: the device entry
// plus one tagged entry per application id.
type AppPolicies struct {
	Device DevicePolicy
	Apps   map[string]AppEntry
}

// ModuleConfig carries exchange limits, retry scheduling, service
// endpoints, and per-priority notification quotas. The optional
// vehicle fields are pointers: absent and empty are distinct states on
// the wire.
type ModuleConfig struct {
	PreloadedPT                  bool `json:"preloaded_pt"`
	ExchangeAfterXIgnitionCycles int  `json:"exchange_after_x_ignition_cycles"`
	ExchangeAfterXKilometers     int  `json:"exchange_after_x_kilometers"`
	ExchangeAfterXDays           int  `json:"exchange_after_x_days"`
	TimeoutAfterXSeconds         int  `json:"timeout_after_x_seconds"`

	SecondsBetweenRetries []int `json:"seconds_between_retries"`

	// Endpoints maps service name -> application id -> URL list.
	Endpoints map[string]map[string][]string `json:"endpoints"`

	NotificationsPerMinuteByPriority map[Priority]int `json:"notifications_per_minute_by_priority"`

	VehicleMake   *string `json:"vehicle_make,omitempty"`
	VehicleModel  *string `json:"vehicle_model,omitempty"`
	VehicleYear   *string `json:"vehicle_year,omitempty"`
	PreloadedDate *string `json:"preloaded_date,omitempty"`
	Certificate   *string `json:"certificate,omitempty"`
}

// ModuleMeta records when the last policy exchange happened, in each
// of the three countdown dimensions.
type ModuleMeta struct {
	PTExchangedAtOdometerX          int `json:"pt_exchanged_at_odometer_x"`
	PTExchangedXDaysAfterEpoch      int `json:"pt_exchanged_x_days_after_epoch"`
	IgnitionCyclesSinceLastExchange int `json:"ignition_cycles_since_last_exchange"`
}

// UsageAndErrorCounts tracks which applications have usage records.
// Only the keys are persisted; the per-app counters themselves are
// managed elsewhere.
type UsageAndErrorCounts struct {
	AppLevels []string `json:"app_levels"`
}

// ConsumerFriendlyMessages carries the messages version and, when
// present, the message-code -> language-code markers. Message bodies
// are never managed by this layer. A nil Messages map means the
// section is absent from the document: previously stored message
// content must be left untouched on save.
type ConsumerFriendlyMessages struct {
	Version  string              `json:"version"`
	Messages map[string][]string `json:"messages,omitempty"`
}

// PolicyDocument is the root of the policy table.
type PolicyDocument struct {
	ModuleConfig             ModuleConfig               `json:"module_config"`
	ModuleMeta               ModuleMeta                 `json:"module_meta"`
	UsageAndErrorCounts      UsageAndErrorCounts        `json:"usage_and_error_counts"`
	DeviceData               []string                   `json:"device_data"`
	FunctionalGroupings      map[string]FunctionalGroup `json:"functional_groupings"`
	ConsumerFriendlyMessages ConsumerFriendlyMessages   `json:"consumer_friendly_messages"`
	AppPolicies              AppPolicies                `json:"app_policies"`
}
