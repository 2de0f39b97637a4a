package underwriting

// ManualDecisionInput is the underwriter-submitted fields for an UPDATE or
// CREATE of a manual decision record.
type ManualDecisionInput struct {
	ExposureVersionID string
	Decision          string
	ConditionsJSON    []map[string]any
	RationaleText     string
}

// ManualDecisionPayload is the persisted shape of a manual underwriting
// decision, including the audit trail entry for this write.
type ManualDecisionPayload struct {
	Decision       string           `json:"decision"`
	ConditionsJSON []map[string]any `json:"conditions_json"`
	RationaleText  string           `json:"rationale_text"`
	AuditMetadata  map[string]any   `json:"audit_metadata"`
}

// PrepareDecisionPayload assembles the payload and audit metadata for a
// manual decision write, recording whether this is a create or an update
// and, for updates, the decision it replaced. Grounded on uw_decision.py.
func PrepareDecisionPayload(existing *ManualDecisionPayload, input ManualDecisionInput) ManualDecisionPayload {
	action := "created"
	audit := map[string]any{
		"exposure_version_id": input.ExposureVersionID,
		"action":              action,
	}
	if existing != nil {
		audit["action"] = "updated"
		audit["previous_decision"] = existing.Decision
	}
	conditions := input.ConditionsJSON
	if conditions == nil {
		conditions = []map[string]any{}
	}
	return ManualDecisionPayload{
		Decision:       input.Decision,
		ConditionsJSON: conditions,
		RationaleText:  input.RationaleText,
		AuditMetadata:  audit,
	}
}
