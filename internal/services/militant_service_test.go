package services

import (
	"strings"
	"testing"

	"loyalty-attendance-backend/internal/config"
	"loyalty-attendance-backend/internal/models"
)

func newMilitantFixture(t *testing.T) (*MilitantService, *memStore, *models.Campaign) {
	t.Helper()
	repo, store := newTestRepo()
	cfg := &config.Config{QRDir: t.TempDir()}
	qrSvc := NewQrCodeService(repo, cfg)
	svc := NewMilitantService(repo, qrSvc, &memNotifier{})
	campaign := store.addCampaign()
	return svc, store, campaign
}

func TestIssueForCampaignCoversAllMilitants(t *testing.T) {
	svc, store, campaign := newMilitantFixture(t)
	store.addPersona(models.UniverseMilitant)
	store.addPersona(models.UniverseMilitant)
	store.addPersona(models.UniverseGeneral)

	summary, err := svc.IssueForCampaign(campaign.ID)
	if err != nil {
		t.Fatalf("IssueForCampaign: %v", err)
	}
	if summary.Issued != 2 || summary.Skipped != 0 {
		t.Fatalf("issued=%d skipped=%d, want 2/0", summary.Issued, summary.Skipped)
	}

	for _, qr := range summary.Codes {
		if qr.EventID != nil {
			t.Fatal("militant code bound to an event")
		}
		if qr.OwnerPersonaID == nil {
			t.Fatal("militant code without owner")
		}
		if !strings.HasPrefix(qr.Code, "QRM-") {
			t.Fatalf("unexpected code format: %s", qr.Code)
		}
	}

	// A rerun only fills gaps.
	summary, err = svc.IssueForCampaign(campaign.ID)
	if err != nil {
		t.Fatalf("second IssueForCampaign: %v", err)
	}
	if summary.Issued != 0 || summary.Skipped != 2 {
		t.Fatalf("rerun issued=%d skipped=%d, want 0/2", summary.Issued, summary.Skipped)
	}
}

func TestRegenerateMilitantCode(t *testing.T) {
	svc, store, campaign := newMilitantFixture(t)
	militant := store.addPersona(models.UniverseMilitant)

	if _, err := svc.IssueForCampaign(campaign.ID); err != nil {
		t.Fatalf("IssueForCampaign: %v", err)
	}
	codes, _ := svc.CampaignCodes(campaign.ID)
	oldCode := codes[0].Code

	replacement, err := svc.Regenerate(campaign.ID, militant.ID)
	if err != nil {
		t.Fatalf("Regenerate: %v", err)
	}
	if replacement.Code == oldCode {
		t.Fatal("regeneration reused the old code string")
	}

	// The old code must no longer validate.
	for _, qr := range store.qrCodes {
		if qr.Code == oldCode && qr.Active {
			t.Fatal("old code still active after regeneration")
		}
	}
}

func TestRegenerateRejectsNonMilitant(t *testing.T) {
	svc, store, campaign := newMilitantFixture(t)
	civilian := store.addPersona(models.UniverseGeneral)

	if _, err := svc.Regenerate(campaign.ID, civilian.ID); !IsKind(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want %s", err, ErrInvalidInput)
	}
}

func TestDeactivateAndReactivateCampaignCodes(t *testing.T) {
	svc, store, campaign := newMilitantFixture(t)
	store.addPersona(models.UniverseMilitant)
	store.addPersona(models.UniverseMilitant)

	if _, err := svc.IssueForCampaign(campaign.ID); err != nil {
		t.Fatalf("IssueForCampaign: %v", err)
	}

	n, err := svc.DeactivateCampaign(campaign.ID)
	if err != nil || n != 2 {
		t.Fatalf("DeactivateCampaign = %d, %v", n, err)
	}
	for _, qr := range store.qrCodes {
		if qr.Active {
			t.Fatal("code still active after campaign deactivation")
		}
	}

	n, err = svc.ReactivateCampaign(campaign.ID)
	if err != nil || n != 2 {
		t.Fatalf("ReactivateCampaign = %d, %v", n, err)
	}
}
