// Package table defines the policy table document model.
//
// A policy table is the structured document exchanged between a
// vehicle head unit and the policy server: functional groups of RPC
// permission rules, per-application policy assignments, module
// configuration (exchange limits, endpoints, notification quotas),
// and consumer-friendly-message markers.
//
// # Critical Patterns
//
// CP-1: Tagged application variants
//   - An application entry is Full, Null (revoked), or a Ref to a
//     predefined policy ("default" / "pre_DataConsent")
//   - Never a bare nullable pointer; the kind is always explicit
//
// CP-2: Name-derived group identity
//   - GroupID(name) is a pure function of the group name
//   - Stable across a drop+recreate of stored data, so application
//     group links survive a full policy refresh
//   - Collisions between distinct names are not detected (accepted
//     risk, inherited from the wire contract)
//
// CP-3: Validated enums
//   - HMI levels and priorities are closed sets, enforced both in Go
//     and by the embedded CUE schema used by Validate
package table
