package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Knowmad79/Docbox2026/internal/model"
)

func TestRole(t *testing.T) {
	tests := []struct {
		intent model.IntentLabel
		risk   float64
		want   model.OwnerRole
	}{
		{model.IntentClinical, 0.9, model.RoleLeadDoctor},
		{model.IntentClinical, 0.5, model.RoleMedicalAssistant},
		{model.IntentClinical, 0.8, model.RoleMedicalAssistant},
		{model.IntentBilling, 0.95, model.RolePracticeManager},
		{model.IntentBilling, 0.2, model.RoleBillingSpecialist},
		{model.IntentAdmin, 0.99, model.RoleFrontDesk},
		{model.IntentScheduling, 0.1, model.RoleFrontDesk},
		{model.IntentVendor, 0.9, model.RoleOfficeManager},
		{model.IntentSpam, 0.99, model.RoleSystemArchive},
		{model.IntentLabel("UNKNOWN"), 0.99, model.RoleFrontDesk},
	}
	for _, tt := range tests {
		t.Run(string(tt.intent), func(t *testing.T) {
			assert.Equal(t, tt.want, Role(tt.intent, tt.risk))
		})
	}
}

func TestRoute_ReturnsCopy(t *testing.T) {
	in := model.VectorPayload{IntentLabel: model.IntentBilling, RiskScore: 0.95}
	out := Route(in)

	require.NotNil(t, out.CurrentOwnerRole)
	assert.Equal(t, model.RolePracticeManager, *out.CurrentOwnerRole)
	assert.Nil(t, in.CurrentOwnerRole)
}
