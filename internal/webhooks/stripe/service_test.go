package stripewebhook

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/megahubhq/megahub-backend/internal/billing"
	"github.com/megahubhq/megahub-backend/pkg/config"
	"github.com/megahubhq/megahub-backend/pkg/db"
	"github.com/megahubhq/megahub-backend/pkg/db/models"
	"github.com/megahubhq/megahub-backend/pkg/enums"
	pkgerrors "github.com/megahubhq/megahub-backend/pkg/errors"
)

type stubVerifier struct{}

func (stubVerifier) VerifyEvent(payload []byte, signatureHeader string) (stripe.Event, error) {
	if signatureHeader != "valid" {
		return stripe.Event{}, fmt.Errorf("signature mismatch")
	}
	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return stripe.Event{}, err
	}
	return event, nil
}

func newWebhookTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:webhooks_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	err = conn.AutoMigrate(
		&models.Company{}, &models.Plan{}, &models.Subscription{},
		&models.Invoice{}, &models.InvoiceItem{},
		&models.CompanySlots{}, &models.UsageAlert{},
		&models.StripeWebhookEvent{}, &models.StripeCustomer{},
		&models.StripeSubscription{}, &models.StripePaymentMethod{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

func newWebhookService(t *testing.T, conn *gorm.DB) Service {
	t.Helper()
	client := db.NewWithConn(conn)
	billingSvc, err := billing.NewService(billing.ServiceParams{
		DB:      client,
		Billing: config.BillingConfig{InvoiceDueDays: 30},
	})
	if err != nil {
		t.Fatalf("billing service: %v", err)
	}
	svc, err := NewService(ServiceParams{DB: client, Verifier: stubVerifier{}, Billing: billingSvc})
	if err != nil {
		t.Fatalf("webhook service: %v", err)
	}
	return svc
}

func seedBilledCompany(t *testing.T, conn *gorm.DB) (*models.Company, *models.Subscription) {
	t.Helper()
	company := models.Company{ID: uuid.New(), Name: "Acme Corp", BillingEmail: "billing@example.com", IsActive: true}
	if err := conn.Create(&company).Error; err != nil {
		t.Fatalf("seed company: %v", err)
	}
	plan := models.Plan{
		ID: uuid.New(), Name: "starter", Interval: enums.BillingIntervalMonthly,
		Price: decimal.NewFromInt(30), AdditionalBrandPrice: decimal.NewFromInt(10),
		AdditionalUserPrice: decimal.NewFromInt(5), IsActive: true,
	}
	if err := conn.Create(&plan).Error; err != nil {
		t.Fatalf("seed plan: %v", err)
	}
	stripeID := "sub_123"
	now := time.Now().UTC()
	sub := models.Subscription{
		ID: uuid.New(), CompanyID: company.ID, PlanID: plan.ID,
		Status:             enums.SubscriptionStatusActive,
		CurrentPeriodStart: now, CurrentPeriodEnd: now.AddDate(0, 1, 0),
		StripeSubscriptionID: &stripeID,
	}
	if err := conn.Create(&sub).Error; err != nil {
		t.Fatalf("seed subscription: %v", err)
	}
	return &company, &sub
}

func eventPayload(id, eventType string, object map[string]any) []byte {
	payload := map[string]any{
		"id":      id,
		"type":    eventType,
		"created": 1750000000,
		"data":    map[string]any{"object": object},
	}
	raw, _ := json.Marshal(payload)
	return raw
}

func TestIngestRejectsBadSignature(t *testing.T) {
	conn := newWebhookTestDB(t)
	svc := newWebhookService(t, conn)

	_, err := svc.Ingest(context.Background(), []byte(`{}`), "forged")
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeStripeSignature {
		t.Fatalf("expected signature error, got %v", err)
	}
	var count int64
	if err := conn.Model(&models.StripeWebhookEvent{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("forged deliveries must not persist, got %d rows", count)
	}
}

func TestIngestSubscriptionDeletedAndReplay(t *testing.T) {
	conn := newWebhookTestDB(t)
	svc := newWebhookService(t, conn)
	ctx := context.Background()
	_, sub := seedBilledCompany(t, conn)

	payload := eventPayload("evt_1", "customer.subscription.deleted", map[string]any{
		"id": "sub_123", "status": "canceled", "metadata": map[string]any{},
	})

	result, err := svc.Ingest(ctx, payload, "valid")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if result.Status != enums.WebhookEventStatusProcessed || result.Replayed {
		t.Fatalf("expected fresh processed delivery, got %+v", result)
	}

	var reloaded models.Subscription
	if err := conn.First(&reloaded, "id = ?", sub.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Status != enums.SubscriptionStatusCanceled {
		t.Fatalf("expected canceled, got %s", reloaded.Status)
	}

	var row models.StripeWebhookEvent
	if err := conn.First(&row, "event_id = ?", "evt_1").Error; err != nil {
		t.Fatalf("load event row: %v", err)
	}
	firstProcessedAt := *row.ProcessedAt

	// the same delivery again: acknowledged, nothing reprocessed
	result, err = svc.Ingest(ctx, payload, "valid")
	if err != nil {
		t.Fatalf("replay ingest: %v", err)
	}
	if !result.Replayed {
		t.Fatalf("expected replay, got %+v", result)
	}
	if err := conn.First(&row, "event_id = ?", "evt_1").Error; err != nil {
		t.Fatalf("reload event row: %v", err)
	}
	if !row.ProcessedAt.Equal(firstProcessedAt) {
		t.Fatalf("processed_at must not move on replay: %v vs %v", row.ProcessedAt, firstProcessedAt)
	}
	var mirrors int64
	if err := conn.Model(&models.StripeSubscription{}).Count(&mirrors).Error; err != nil {
		t.Fatalf("count mirrors: %v", err)
	}
	if mirrors != 1 {
		t.Fatalf("expected one mirror row, got %d", mirrors)
	}
}

func TestIngestInvoicePaymentSucceededRecoversSubscription(t *testing.T) {
	conn := newWebhookTestDB(t)
	svc := newWebhookService(t, conn)
	ctx := context.Background()
	company, sub := seedBilledCompany(t, conn)
	if err := conn.Model(&models.Subscription{}).Where("id = ?", sub.ID).
		Update("status", enums.SubscriptionStatusPastDue).Error; err != nil {
		t.Fatalf("set past_due: %v", err)
	}

	stripeInvoiceID := "in_123"
	inv := models.Invoice{
		ID: uuid.New(), CompanyID: company.ID, SubscriptionID: &sub.ID,
		Number: "ACME-2026-02-0001", Status: enums.InvoiceStatusOpen,
		Subtotal: decimal.NewFromInt(30), Total: decimal.NewFromInt(30), Currency: "eur",
		PeriodStart: time.Now().UTC(), PeriodEnd: time.Now().UTC().AddDate(0, 1, 0),
		StripeInvoiceID: &stripeInvoiceID,
	}
	if err := conn.Create(&inv).Error; err != nil {
		t.Fatalf("seed invoice: %v", err)
	}

	payload := eventPayload("evt_2", "invoice.payment_succeeded", map[string]any{
		"id": "in_123", "customer": "cus_1",
	})
	result, err := svc.Ingest(ctx, payload, "valid")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if result.Status != enums.WebhookEventStatusProcessed {
		t.Fatalf("expected processed, got %+v", result)
	}

	var reloadedInv models.Invoice
	if err := conn.First(&reloadedInv, "id = ?", inv.ID).Error; err != nil {
		t.Fatalf("reload invoice: %v", err)
	}
	if reloadedInv.Status != enums.InvoiceStatusPaid || reloadedInv.PaidAt == nil {
		t.Fatalf("expected paid invoice, got %+v", reloadedInv.Status)
	}
	var reloadedSub models.Subscription
	if err := conn.First(&reloadedSub, "id = ?", sub.ID).Error; err != nil {
		t.Fatalf("reload subscription: %v", err)
	}
	if reloadedSub.Status != enums.SubscriptionStatusActive {
		t.Fatalf("expected recovery to active, got %s", reloadedSub.Status)
	}
}

func TestIngestCustomerCreatedUpsertsMirror(t *testing.T) {
	conn := newWebhookTestDB(t)
	svc := newWebhookService(t, conn)
	ctx := context.Background()
	company, _ := seedBilledCompany(t, conn)

	payload := eventPayload("evt_3", "customer.created", map[string]any{
		"id": "cus_1", "email": "ops@acme.example", "name": "Acme Corp",
		"metadata": map[string]any{"company_id": company.ID.String()},
	})
	if _, err := svc.Ingest(ctx, payload, "valid"); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	var mirror models.StripeCustomer
	if err := conn.First(&mirror, "stripe_customer_id = ?", "cus_1").Error; err != nil {
		t.Fatalf("load mirror: %v", err)
	}
	if mirror.CompanyID != company.ID || mirror.Email != "ops@acme.example" {
		t.Fatalf("unexpected mirror %+v", mirror)
	}
	var reloaded models.Company
	if err := conn.First(&reloaded, "id = ?", company.ID).Error; err != nil {
		t.Fatalf("reload company: %v", err)
	}
	if reloaded.StripeCustomerID == nil || *reloaded.StripeCustomerID != "cus_1" {
		t.Fatalf("expected customer backreference, got %v", reloaded.StripeCustomerID)
	}
}

func TestIngestUnknownEventTypeIsIgnored(t *testing.T) {
	conn := newWebhookTestDB(t)
	svc := newWebhookService(t, conn)

	payload := eventPayload("evt_4", "checkout.session.completed", map[string]any{"id": "cs_1"})
	result, err := svc.Ingest(context.Background(), payload, "valid")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if result.Status != enums.WebhookEventStatusIgnored {
		t.Fatalf("expected ignored, got %+v", result)
	}
}

func TestIngestFailureThenRetrySucceeds(t *testing.T) {
	conn := newWebhookTestDB(t)
	svc := newWebhookService(t, conn)
	ctx := context.Background()

	// no local subscription and no metadata: the handler cannot resolve it
	payload := eventPayload("evt_5", "customer.subscription.updated", map[string]any{
		"id": "sub_missing", "status": "active", "metadata": map[string]any{},
	})
	result, err := svc.Ingest(ctx, payload, "valid")
	if err != nil {
		t.Fatalf("ingest must still acknowledge: %v", err)
	}
	if result.Status != enums.WebhookEventStatusFailed {
		t.Fatalf("expected failed, got %+v", result)
	}

	var row models.StripeWebhookEvent
	if err := conn.First(&row, "event_id = ?", "evt_5").Error; err != nil {
		t.Fatalf("load row: %v", err)
	}
	if row.RetryCount != 1 || row.LastError == nil || row.NextRetryAt == nil {
		t.Fatalf("expected retry bookkeeping, got %+v", row)
	}

	// the subscription shows up; the retry sweep picks the event back up
	company, seeded := seedBilledCompany(t, conn)
	stripeID := "sub_missing"
	trialEnd := time.Now().UTC().AddDate(0, 0, 7)
	sub := models.Subscription{
		ID: uuid.New(), CompanyID: company.ID, PlanID: seeded.PlanID,
		Status:             enums.SubscriptionStatusTrialing,
		CurrentPeriodStart: time.Now().UTC(), CurrentPeriodEnd: trialEnd,
		TrialEnd: &trialEnd, StripeSubscriptionID: &stripeID,
	}
	if err := conn.Create(&sub).Error; err != nil {
		t.Fatalf("seed subscription: %v", err)
	}

	processed, err := svc.Retry(ctx, time.Now().UTC().Add(10*time.Minute), 10)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if processed != 1 {
		t.Fatalf("expected one event retried, got %d", processed)
	}
	var reloadedSub models.Subscription
	if err := conn.First(&reloadedSub, "id = ?", sub.ID).Error; err != nil {
		t.Fatalf("reload subscription: %v", err)
	}
	if reloadedSub.Status != enums.SubscriptionStatusActive {
		t.Fatalf("expected trial activated by sync, got %s", reloadedSub.Status)
	}
}

func TestRetrySkipsExhaustedEvents(t *testing.T) {
	conn := newWebhookTestDB(t)
	svc := newWebhookService(t, conn)
	ctx := context.Background()

	msg := "boom"
	row := models.StripeWebhookEvent{
		ID: uuid.New(), EventID: "evt_6", EventType: "customer.subscription.updated",
		Status:     enums.WebhookEventStatusFailed,
		Payload:    eventPayload("evt_6", "customer.subscription.updated", map[string]any{"id": "sub_x", "metadata": map[string]any{}}),
		RetryCount: maxRetries, LastError: &msg,
	}
	if err := conn.Create(&row).Error; err != nil {
		t.Fatalf("seed row: %v", err)
	}

	processed, err := svc.Retry(ctx, time.Now().UTC(), 10)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if processed != 0 {
		t.Fatalf("exhausted events must not run, got %d", processed)
	}
	var reloaded models.StripeWebhookEvent
	if err := conn.First(&reloaded, "id = ?", row.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.RetryCount != maxRetries {
		t.Fatalf("retry count must not move, got %d", reloaded.RetryCount)
	}
}
