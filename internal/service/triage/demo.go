package triage

import (
	"context"

	"github.com/google/uuid"

	"github.com/Knowmad79/Docbox2026/internal/model"
)

// demoEmails is a small cross-section of a practice inbox, one or two per zone.
var demoEmails = []model.EmailInput{
	{Sender: "results@labcorp.com", Subject: "CRITICAL: Abnormal CBC Results for Patient",
		Snippet: "Hemoglobin critically low at 6.2 g/dL. Immediate attention required."},
	{Sender: "alerts@questdiagnostics.com", Subject: "STAT: Potassium Level Alert",
		Snippet: "Critical potassium level detected: 6.8 mEq/L"},
	{Sender: "pharmacy@cvs.com", Subject: "Refill Request - Metformin 500mg",
		Snippet: "Patient requesting a refill for Metformin 500mg, 90 day supply."},
	{Sender: "priorauth@aetna.com", Subject: "Prior Authorization Required",
		Snippet: "Prior authorization needed for MRI lumbar spine."},
	{Sender: "billing@medicaid.gov", Subject: "Claim Denial Notice",
		Snippet: "Claim #12345 has been denied. Reason: Missing documentation."},
	{Sender: "records@hospital.org", Subject: "Medical Records Request",
		Snippet: "Request for medical records for patient transfer."},
	{Sender: "newsletter@medscape.com", Subject: "Weekly CME Update",
		Snippet: "This week's continuing medical education opportunities..."},
	{Sender: "marketing@dentalequip.com", Subject: "50% Off Dental Supplies!",
		Snippet: "Limited time offer on all dental equipment and supplies."},
}

// SeedDemo ingests the demo inbox for the user.
func (s *Service) SeedDemo(ctx context.Context, userID uuid.UUID) ([]model.SeedResult, error) {
	out := make([]model.SeedResult, 0, len(demoEmails))
	for _, in := range demoEmails {
		m, err := s.Ingest(ctx, userID, in)
		if err != nil {
			return out, err
		}
		out = append(out, model.SeedResult{Subject: m.Subject, Zone: m.Zone})
	}
	return out, nil
}
