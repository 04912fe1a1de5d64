package whatsapp

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/stockcount/internal/config"
	"github.com/mamadbah2/stockcount/internal/domain/models"
	"github.com/mamadbah2/stockcount/internal/service/counting"
	"github.com/mamadbah2/stockcount/internal/service/reconcile"
	client "github.com/mamadbah2/stockcount/pkg/clients/whatsapp"
)

type fakeClient struct {
	mu   sync.Mutex
	sent []client.SendTextMessageRequest
	err  error
}

func (f *fakeClient) SendTextMessage(_ context.Context, req client.SendTextMessageRequest) (*client.SendTextMessageResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, req)
	if f.err != nil {
		return nil, f.err
	}
	return &client.SendTextMessageResponse{}, nil
}

func (f *fakeClient) last(t *testing.T) client.SendTextMessageRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent)
	return f.sent[len(f.sent)-1]
}

type fakeWorkflow struct {
	items     map[string]models.ItemDefaults
	submitted []models.EntryRequest
	team      string
	submitErr error

	statuses []models.LocationStatus
	changes  []models.StatusChange
}

func (f *fakeWorkflow) ResolveItem(code string) models.ItemDefaults {
	if item, ok := f.items[code]; ok {
		return item
	}
	return models.ItemDefaults{SKU: code, BatchNumber: "-", ExpiryDate: "-", Unit: "Pcs"}
}

func (f *fakeWorkflow) SubmitEntry(_ context.Context, req models.EntryRequest, teamMember string) (models.SubmitResult, error) {
	if f.submitErr != nil {
		return models.SubmitResult{}, f.submitErr
	}
	f.submitted = append(f.submitted, req)
	f.team = teamMember
	return models.SubmitResult{
		Record:     models.AuditRecord{SKU: req.SKU, Location: req.Location, PhysicalQty: req.PhysicalQty},
		Evaluation: models.EntryEvaluation{SystemStock: 8, GlobalTotal: req.PhysicalQty},
	}, nil
}

func (f *fakeWorkflow) SetLocationStatus(_ context.Context, location string, status models.LocationStatus, change models.StatusChange) (counting.StatusResult, error) {
	f.statuses = append(f.statuses, status)
	f.changes = append(f.changes, change)
	return counting.StatusResult{State: models.LocationState{
		Location:          location,
		Status:            status,
		DamageDescription: change.Description,
	}}, nil
}

func (f *fakeWorkflow) Dashboard() models.Dashboard {
	return models.Dashboard{Stats: models.DashboardStats{
		SKUCount:     1,
		TotalAudited: 7,
		Accuracy:     100,
		Locations:    models.StatusCounts{Pending: 1, Audited: 1},
	}}
}

func newTestService() (*MetaWhatsAppService, *fakeClient, *fakeWorkflow) {
	c := &fakeClient{}
	wf := &fakeWorkflow{items: map[string]models.ItemDefaults{
		"A100": {SKU: "A100", Name: "Widget", BatchNumber: "L1", ExpiryDate: "2027-01-31", Unit: "Box", SystemStock: 8, Known: true},
	}}
	svc := NewMetaWhatsAppService(config.WhatsAppConfig{VerifyToken: "secret"}, c, wf, nil)
	return svc, c, wf
}

func textPayload(from, name, body string) models.WebhookPayload {
	value := models.WebhookValue{
		Messages: []models.InboundMessage{{From: from, ID: "wamid.1", Type: "text", Text: &models.TextContent{Body: body}}},
	}
	contact := models.Contact{WaID: from}
	contact.Profile.Name = name
	value.Contacts = []models.Contact{contact}
	return models.WebhookPayload{Entry: []models.WebhookEntry{{Changes: []models.WebhookChange{{Value: value}}}}}
}

func TestVerifyWebhookToken(t *testing.T) {
	svc, _, _ := newTestService()

	challenge, err := svc.VerifyWebhookToken("subscribe", "secret", "42")
	require.NoError(t, err)
	assert.Equal(t, "42", challenge)

	_, err = svc.VerifyWebhookToken("subscribe", "wrong", "42")
	assert.Error(t, err)
	_, err = svc.VerifyWebhookToken("unsubscribe", "secret", "42")
	assert.Error(t, err)
	_, err = svc.VerifyWebhookToken("", "", "")
	assert.Error(t, err)
}

func TestHandleWebhookCount(t *testing.T) {
	svc, c, wf := newTestService()

	err := svc.HandleWebhook(context.Background(), textPayload("15550001", "Dina", "/count A100 Rak A-1 7"))
	require.NoError(t, err)

	require.Len(t, wf.submitted, 1)
	req := wf.submitted[0]
	assert.Equal(t, "A100", req.SKU)
	assert.Equal(t, "Widget", req.ItemName)
	assert.Equal(t, "Rak A-1", req.Location)
	assert.Equal(t, "L1", req.BatchNumber)
	assert.Equal(t, "2027-01-31", req.ExpiryDate)
	assert.Equal(t, 7, req.PhysicalQty)
	assert.Equal(t, "Dina", wf.team)

	reply := c.last(t)
	assert.Equal(t, "15550001", reply.To)
	assert.Contains(t, reply.Body, "Saved 7 Box of Widget at Rak A-1.")
	assert.Contains(t, reply.Body, "Total counted 7 of 8 in system.")
}

func TestHandleWebhookCountUnknownCode(t *testing.T) {
	svc, c, wf := newTestService()

	require.NoError(t, svc.HandleWebhook(context.Background(), textPayload("1555", "", "/count ZZ9 Dock 3")))
	require.Len(t, wf.submitted, 1)
	assert.Equal(t, "1555", wf.team)
	assert.Contains(t, c.last(t).Body, "Code not in the catalog.")
}

func TestHandleWebhookCountBadArgs(t *testing.T) {
	svc, c, wf := newTestService()

	require.NoError(t, svc.HandleWebhook(context.Background(), textPayload("1555", "", "/count A100 Rak A-1 many")))
	assert.Empty(t, wf.submitted)
	assert.Contains(t, c.last(t).Body, "/count A100 Rak A-1 12")
}

func TestHandleWebhookCountNeedsEvidence(t *testing.T) {
	svc, c, wf := newTestService()
	wf.submitErr = &counting.ValidationError{Field: "photos", Message: reconcile.ErrPhotoRequired.Error(), Err: reconcile.ErrPhotoRequired}

	require.NoError(t, svc.HandleWebhook(context.Background(), textPayload("1555", "", "/count A100 Rak A-1 1")))
	assert.Contains(t, c.last(t).Body, "with a photo")
}

func TestHandleWebhookCountServiceDown(t *testing.T) {
	svc, c, wf := newTestService()
	wf.submitErr = errors.New("connection reset")

	require.NoError(t, svc.HandleWebhook(context.Background(), textPayload("1555", "", "/count A100 Rak A-1 1")))
	assert.Contains(t, c.last(t).Body, "unavailable")
}

func TestHandleWebhookEmptyAndDamage(t *testing.T) {
	svc, c, wf := newTestService()
	ctx := context.Background()

	require.NoError(t, svc.HandleWebhook(ctx, textPayload("1555", "Ari", "/empty Rak B-2")))
	assert.Equal(t, "Rak B-2 marked empty.", c.last(t).Body)

	require.NoError(t, svc.HandleWebhook(ctx, textPayload("1555", "Ari", "/damage Rak B-2: bent upright")))
	assert.Equal(t, "Damage at Rak B-2 recorded: bent upright", c.last(t).Body)

	require.NoError(t, svc.HandleWebhook(ctx, textPayload("1555", "Ari", "/damage Dock leaking roof")))
	assert.Equal(t, "Damage at Dock recorded: leaking roof", c.last(t).Body)

	assert.Equal(t, []models.LocationStatus{models.StatusEmpty, models.StatusDamaged, models.StatusDamaged}, wf.statuses)
	for _, change := range wf.changes {
		assert.Equal(t, "Ari", change.ReportedBy)
	}

	require.NoError(t, svc.HandleWebhook(ctx, textPayload("1555", "Ari", "/damage Dock")))
	assert.Contains(t, c.last(t).Body, "Damage report")
	assert.Len(t, wf.statuses, 3)
}

func TestHandleWebhookStatusAndUnknown(t *testing.T) {
	svc, c, _ := newTestService()
	ctx := context.Background()

	require.NoError(t, svc.HandleWebhook(ctx, textPayload("1555", "", "/status")))
	assert.Contains(t, c.last(t).Body, "1/2 locations done")

	require.NoError(t, svc.HandleWebhook(ctx, textPayload("1555", "", "hello")))
	assert.Contains(t, c.last(t).Body, "Unknown command")
}

func TestHandleWebhookReturnsDeliveryError(t *testing.T) {
	svc, c, _ := newTestService()
	c.err = errors.New("boom")

	err := svc.HandleWebhook(context.Background(), textPayload("1555", "", "/status"))
	assert.Error(t, err)
}

func TestAlerts(t *testing.T) {
	c := &fakeClient{}
	alerts := NewAlerts(c, "1999", nil)
	ctx := context.Background()

	record := models.AuditRecord{SKU: "A100", ItemName: "Widget", Location: "Rak A-1", TeamMember: "Dina"}
	eval := models.EntryEvaluation{SystemStock: 20, GlobalTotal: 12, Variance: -8, PercentDiff: 40}
	require.NoError(t, alerts.NotifyDiscrepancy(ctx, record, eval))
	got := c.last(t)
	assert.Equal(t, "1999", got.To)
	assert.Contains(t, got.Body, "counted 12 against 20 in system, shortage of 8 (40%)")

	require.NoError(t, alerts.NotifyDamage(ctx, models.DamageReport{Location: "Dock", ReportedBy: "Ari", Description: "leak"}))
	assert.Equal(t, "Damage reported at Dock by Ari: leak", c.last(t).Body)

	silent := &fakeClient{}
	require.NoError(t, NewAlerts(silent, "", nil).NotifyDamage(ctx, models.DamageReport{}))
	assert.Empty(t, silent.sent)
}
