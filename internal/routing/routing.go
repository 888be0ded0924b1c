// Package routing assigns an owner role to a vector payload.
package routing

import "github.com/Knowmad79/Docbox2026/internal/model"

// EscalationThreshold is the risk above which clinical and billing items go
// to the senior role.
const EscalationThreshold = 0.8

var baseRoles = map[model.IntentLabel]model.OwnerRole{
	model.IntentClinical:   model.RoleMedicalAssistant,
	model.IntentBilling:    model.RoleBillingSpecialist,
	model.IntentAdmin:      model.RoleFrontDesk,
	model.IntentScheduling: model.RoleFrontDesk,
	model.IntentVendor:     model.RoleOfficeManager,
	model.IntentSpam:       model.RoleSystemArchive,
}

var escalatedRoles = map[model.IntentLabel]model.OwnerRole{
	model.IntentClinical: model.RoleLeadDoctor,
	model.IntentBilling:  model.RolePracticeManager,
}

// Role returns the owner for an intent at a given risk.
func Role(intent model.IntentLabel, risk float64) model.OwnerRole {
	if risk > EscalationThreshold {
		if r, ok := escalatedRoles[intent]; ok {
			return r
		}
	}
	if r, ok := baseRoles[intent]; ok {
		return r
	}
	return model.RoleFrontDesk
}

// Route returns a copy of p with CurrentOwnerRole set. p is not modified.
func Route(p model.VectorPayload) model.VectorPayload {
	role := Role(p.IntentLabel, p.RiskScore)
	p.CurrentOwnerRole = &role
	return p
}
