package billing

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/megahubhq/megahub-backend/internal/rbac"
	"github.com/megahubhq/megahub-backend/pkg/config"
	"github.com/megahubhq/megahub-backend/pkg/db"
	"github.com/megahubhq/megahub-backend/pkg/db/models"
	"github.com/megahubhq/megahub-backend/pkg/enums"
	pkgerrors "github.com/megahubhq/megahub-backend/pkg/errors"
	"github.com/megahubhq/megahub-backend/pkg/pagination"
)

func newBillingTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:billing_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	err = conn.AutoMigrate(
		&models.Company{}, &models.Plan{}, &models.Subscription{},
		&models.Invoice{}, &models.InvoiceItem{},
		&models.CompanySlots{}, &models.UsageAlert{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

func newBillingService(t *testing.T, conn *gorm.DB) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		DB:      db.NewWithConn(conn),
		Billing: config.BillingConfig{InvoiceDueDays: 30},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func seedCompany(t *testing.T, conn *gorm.DB, name string) *models.Company {
	t.Helper()
	company := models.Company{ID: uuid.New(), Name: name, BillingEmail: "billing@example.com", IsActive: true}
	if err := conn.Create(&company).Error; err != nil {
		t.Fatalf("seed company: %v", err)
	}
	return &company
}

func seedPlan(t *testing.T, conn *gorm.DB, name string, price int64, includedBrands int, addlBrand int64) *models.Plan {
	t.Helper()
	plan := models.Plan{
		ID:                   uuid.New(),
		Name:                 name,
		Interval:             enums.BillingIntervalMonthly,
		Price:                decimal.NewFromInt(price),
		IncludedBrandSlots:   includedBrands,
		IncludedUserSlots:    10,
		AdditionalBrandPrice: decimal.NewFromInt(addlBrand),
		AdditionalUserPrice:  decimal.NewFromInt(5),
		IsActive:             true,
	}
	if err := conn.Create(&plan).Error; err != nil {
		t.Fatalf("seed plan: %v", err)
	}
	return &plan
}

func seedSubscription(t *testing.T, conn *gorm.DB, companyID, planID uuid.UUID, status enums.SubscriptionStatus, start, end time.Time) *models.Subscription {
	t.Helper()
	sub := models.Subscription{
		ID:                 uuid.New(),
		CompanyID:          companyID,
		PlanID:             planID,
		Status:             status,
		CurrentPeriodStart: start,
		CurrentPeriodEnd:   end,
	}
	if err := conn.Create(&sub).Error; err != nil {
		t.Fatalf("seed subscription: %v", err)
	}
	return &sub
}

func adminOf(companyID uuid.UUID) rbac.Actor {
	return rbac.Actor{
		UserID:    uuid.New(),
		CompanyID: &companyID,
		UserType:  enums.UserTypeCompanyAdmin,
	}
}

func TestCreateSubscriptionTrialAndConflict(t *testing.T) {
	conn := newBillingTestDB(t)
	svc := newBillingService(t, conn)
	ctx := context.Background()
	company := seedCompany(t, conn, "Acme Corp")
	plan := seedPlan(t, conn, "starter", 30, 2, 10)
	actor := adminOf(company.ID)

	sub, err := svc.CreateSubscription(ctx, actor, CreateSubscriptionRequest{
		CompanyID: company.ID,
		PlanID:    plan.ID,
		TrialDays: 14,
	})
	if err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	if sub.Status != enums.SubscriptionStatusTrialing || sub.TrialEnd == nil {
		t.Fatalf("expected trialing with trial end, got %+v", sub)
	}

	_, err = svc.CreateSubscription(ctx, actor, CreateSubscriptionRequest{CompanyID: company.ID, PlanID: plan.ID})
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected open-subscription conflict, got %v", err)
	}
}

func TestRenewIssuesInvoiceWithOverage(t *testing.T) {
	conn := newBillingTestDB(t)
	svc := newBillingService(t, conn)
	ctx := context.Background()
	company := seedCompany(t, conn, "Acme Corp")
	plan := seedPlan(t, conn, "starter", 30, 2, 10)

	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	sub := seedSubscription(t, conn, company.ID, plan.ID, enums.SubscriptionStatusActive,
		now.AddDate(0, -1, 0), now.Add(-time.Hour))

	// four live brands against two included
	allocation := models.CompanySlots{ID: uuid.New(), CompanyID: company.ID, BrandsSlots: 5, UsersSlots: 10, CurrentBrandsCount: 4, CurrentUsersCount: 3}
	if err := conn.Create(&allocation).Error; err != nil {
		t.Fatalf("seed allocation: %v", err)
	}

	inv, err := svc.Renew(ctx, sub.ID, now)
	if err != nil {
		t.Fatalf("renew: %v", err)
	}
	if inv == nil {
		t.Fatal("expected an invoice")
	}
	if len(inv.Items) != 2 {
		t.Fatalf("expected base + brand overage lines, got %+v", inv.Items)
	}
	// 30 base + 2 extra brands x 10
	if !inv.Total.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("expected total 50, got %s", inv.Total)
	}
	if inv.Number != "ACME-2026-03-0001" {
		t.Fatalf("unexpected invoice number %s", inv.Number)
	}
	if inv.DueAt == nil || !inv.DueAt.Equal(now.AddDate(0, 0, 30)) {
		t.Fatalf("expected due 30 days out, got %v", inv.DueAt)
	}

	var reloaded models.Subscription
	if err := conn.First(&reloaded, "id = ?", sub.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !reloaded.CurrentPeriodEnd.After(now) {
		t.Fatalf("expected period rolled forward, got %v", reloaded.CurrentPeriodEnd)
	}

	// period has not lapsed again, so a second run does nothing
	again, err := svc.Renew(ctx, sub.ID, now)
	if err != nil {
		t.Fatalf("second renew: %v", err)
	}
	if again != nil {
		t.Fatalf("expected no-op, got %+v", again)
	}
	var count int64
	if err := conn.Model(&models.Invoice{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one invoice, got %d", count)
	}
}

func TestRenewAtBoundaryHonorsPendingCancel(t *testing.T) {
	conn := newBillingTestDB(t)
	svc := newBillingService(t, conn)
	ctx := context.Background()
	company := seedCompany(t, conn, "Acme Corp")
	plan := seedPlan(t, conn, "starter", 30, 2, 10)

	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	periodEnd := now.Add(-time.Hour)
	sub := seedSubscription(t, conn, company.ID, plan.ID, enums.SubscriptionStatusActive, now.AddDate(0, -1, 0), periodEnd)
	if err := conn.Model(&models.Subscription{}).Where("id = ?", sub.ID).
		Updates(map[string]any{"cancel_at_period_end": true, "canceled_at": periodEnd}).Error; err != nil {
		t.Fatalf("mark pending cancel: %v", err)
	}

	inv, err := svc.Renew(ctx, sub.ID, now)
	if err != nil {
		t.Fatalf("renew: %v", err)
	}
	if inv != nil {
		t.Fatalf("did not expect an invoice, got %+v", inv)
	}
	var reloaded models.Subscription
	if err := conn.First(&reloaded, "id = ?", sub.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Status != enums.SubscriptionStatusCanceled {
		t.Fatalf("expected canceled at boundary, got %s", reloaded.Status)
	}
	if reloaded.CanceledAt == nil || !reloaded.CanceledAt.Equal(periodEnd) {
		t.Fatalf("expected canceled_at = period end, got %v", reloaded.CanceledAt)
	}
}

func TestChangePlanProrataAndRevert(t *testing.T) {
	conn := newBillingTestDB(t)
	svc := newBillingService(t, conn)
	ctx := context.Background()
	company := seedCompany(t, conn, "Acme Corp")
	oldPlan := seedPlan(t, conn, "starter", 30, 2, 10)
	newPlan := seedPlan(t, conn, "scale", 90, 10, 8)
	actor := adminOf(company.ID)

	now := time.Now().UTC()
	sub := seedSubscription(t, conn, company.ID, oldPlan.ID, enums.SubscriptionStatusActive,
		now.AddDate(0, 0, -15), now.AddDate(0, 0, 15))

	result, err := svc.ChangePlan(ctx, actor, sub.ID, ChangePlanRequest{PlanID: newPlan.ID})
	if err != nil {
		t.Fatalf("change plan: %v", err)
	}
	if result.Subscription.PlanID != newPlan.ID {
		t.Fatalf("expected plan swapped, got %s", result.Subscription.PlanID)
	}
	if result.ProrataInvoice == nil {
		t.Fatal("expected a prorata invoice")
	}
	// (90 - 30) x 15 remaining / 30 in period
	if !result.ProrataInvoice.Total.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("expected prorata 30, got %s", result.ProrataInvoice.Total)
	}

	// reverting is a downgrade: plan restored, no credit invoice
	result, err = svc.ChangePlan(ctx, actor, sub.ID, ChangePlanRequest{PlanID: oldPlan.ID})
	if err != nil {
		t.Fatalf("revert plan: %v", err)
	}
	if result.Subscription.PlanID != oldPlan.ID {
		t.Fatalf("expected plan reverted, got %s", result.Subscription.PlanID)
	}
	if result.ProrataInvoice != nil {
		t.Fatalf("downgrade must not invoice, got %+v", result.ProrataInvoice)
	}

	var count int64
	if err := conn.Model(&models.Invoice{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("prorata history must remain, got %d invoices", count)
	}
}

func TestCancelImmediateIsIdempotent(t *testing.T) {
	conn := newBillingTestDB(t)
	svc := newBillingService(t, conn)
	ctx := context.Background()
	company := seedCompany(t, conn, "Acme Corp")
	plan := seedPlan(t, conn, "starter", 30, 2, 10)
	actor := adminOf(company.ID)

	now := time.Now().UTC()
	sub := seedSubscription(t, conn, company.ID, plan.ID, enums.SubscriptionStatusActive, now, now.AddDate(0, 1, 0))

	dto, err := svc.Cancel(ctx, actor, sub.ID, CancelSubscriptionRequest{})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if dto.Status != enums.SubscriptionStatusCanceled || dto.CanceledAt == nil {
		t.Fatalf("expected immediate cancel, got %+v", dto)
	}
	first := *dto.CanceledAt

	dto, err = svc.Cancel(ctx, actor, sub.ID, CancelSubscriptionRequest{})
	if err != nil {
		t.Fatalf("second cancel: %v", err)
	}
	if !dto.CanceledAt.Equal(first) {
		t.Fatalf("second cancel must not move canceled_at: %v vs %v", dto.CanceledAt, first)
	}
}

func TestCancelAtPeriodEndKeepsStatus(t *testing.T) {
	conn := newBillingTestDB(t)
	svc := newBillingService(t, conn)
	ctx := context.Background()
	company := seedCompany(t, conn, "Acme Corp")
	plan := seedPlan(t, conn, "starter", 30, 2, 10)
	actor := adminOf(company.ID)

	now := time.Now().UTC()
	periodEnd := now.AddDate(0, 1, 0)
	sub := seedSubscription(t, conn, company.ID, plan.ID, enums.SubscriptionStatusActive, now, periodEnd)

	dto, err := svc.Cancel(ctx, actor, sub.ID, CancelSubscriptionRequest{AtPeriodEnd: true})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if dto.Status != enums.SubscriptionStatusActive || !dto.CancelAtPeriodEnd {
		t.Fatalf("expected active with pending cancel, got %+v", dto)
	}
	if dto.CanceledAt == nil || !dto.CanceledAt.Equal(periodEnd) {
		t.Fatalf("expected canceled_at = period end, got %v", dto.CanceledAt)
	}
}

func TestApplyStatusTransitions(t *testing.T) {
	conn := newBillingTestDB(t)
	svc := newBillingService(t, conn)
	ctx := context.Background()
	company := seedCompany(t, conn, "Acme Corp")
	plan := seedPlan(t, conn, "starter", 30, 2, 10)

	now := time.Now().UTC()
	sub := seedSubscription(t, conn, company.ID, plan.ID, enums.SubscriptionStatusActive, now, now.AddDate(0, 1, 0))

	if err := svc.ApplyStatus(ctx, sub.ID, enums.SubscriptionStatusPastDue, now); err != nil {
		t.Fatalf("to past_due: %v", err)
	}
	// re-applying the same status is a no-op
	if err := svc.ApplyStatus(ctx, sub.ID, enums.SubscriptionStatusPastDue, now); err != nil {
		t.Fatalf("idempotent reapply: %v", err)
	}
	err := svc.ApplyStatus(ctx, sub.ID, enums.SubscriptionStatusTrialing, now)
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected illegal transition rejected, got %v", err)
	}
	if err := svc.ApplyStatus(ctx, sub.ID, enums.SubscriptionStatusUnpaid, now); err != nil {
		t.Fatalf("to unpaid: %v", err)
	}
}

func TestActivateTrialIssuesFirstInvoice(t *testing.T) {
	conn := newBillingTestDB(t)
	svc := newBillingService(t, conn)
	ctx := context.Background()
	company := seedCompany(t, conn, "Acme Corp")
	plan := seedPlan(t, conn, "starter", 30, 2, 10)

	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	trialEnd := now.Add(-time.Hour)
	sub := seedSubscription(t, conn, company.ID, plan.ID, enums.SubscriptionStatusTrialing, now.AddDate(0, 0, -14), trialEnd)
	if err := conn.Model(&models.Subscription{}).Where("id = ?", sub.ID).Update("trial_end", trialEnd).Error; err != nil {
		t.Fatalf("set trial end: %v", err)
	}

	inv, err := svc.ActivateTrial(ctx, sub.ID, now)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if inv == nil || !inv.Total.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("expected base invoice for 30, got %+v", inv)
	}
	var reloaded models.Subscription
	if err := conn.First(&reloaded, "id = ?", sub.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Status != enums.SubscriptionStatusActive {
		t.Fatalf("expected active, got %s", reloaded.Status)
	}

	again, err := svc.ActivateTrial(ctx, sub.ID, now)
	if err != nil {
		t.Fatalf("second activate: %v", err)
	}
	if again != nil {
		t.Fatalf("expected no-op, got %+v", again)
	}
}

func TestSweepOverdueRaisesAlertAndPastDue(t *testing.T) {
	conn := newBillingTestDB(t)
	svc := newBillingService(t, conn)
	ctx := context.Background()
	company := seedCompany(t, conn, "Acme Corp")
	plan := seedPlan(t, conn, "starter", 30, 2, 10)

	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	sub := seedSubscription(t, conn, company.ID, plan.ID, enums.SubscriptionStatusActive, now.AddDate(0, -2, 0), now.AddDate(0, 1, 0))

	due := now.AddDate(0, 0, -1)
	inv := models.Invoice{
		ID: uuid.New(), CompanyID: company.ID, SubscriptionID: &sub.ID,
		Number: "ACME-2026-01-0001", Status: enums.InvoiceStatusOpen,
		Subtotal: decimal.NewFromInt(30), Total: decimal.NewFromInt(30), Currency: "eur",
		PeriodStart: now.AddDate(0, -2, 0), PeriodEnd: now.AddDate(0, -1, 0), DueAt: &due,
	}
	if err := conn.Create(&inv).Error; err != nil {
		t.Fatalf("seed invoice: %v", err)
	}

	swept, err := svc.SweepOverdue(ctx, now, 10)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if swept != 1 {
		t.Fatalf("expected one invoice swept, got %d", swept)
	}

	var reloadedInv models.Invoice
	if err := conn.First(&reloadedInv, "id = ?", inv.ID).Error; err != nil {
		t.Fatalf("reload invoice: %v", err)
	}
	if reloadedInv.Status != enums.InvoiceStatusUncollectible {
		t.Fatalf("expected uncollectible, got %s", reloadedInv.Status)
	}
	var reloadedSub models.Subscription
	if err := conn.First(&reloadedSub, "id = ?", sub.ID).Error; err != nil {
		t.Fatalf("reload subscription: %v", err)
	}
	if reloadedSub.Status != enums.SubscriptionStatusPastDue {
		t.Fatalf("expected past_due, got %s", reloadedSub.Status)
	}
	var alerts int64
	if err := conn.Model(&models.UsageAlert{}).
		Where("company_id = ? AND kind = ?", company.ID, enums.UsageAlertKindPaymentFailed).
		Count(&alerts).Error; err != nil {
		t.Fatalf("count alerts: %v", err)
	}
	if alerts != 1 {
		t.Fatalf("expected payment alert, got %d", alerts)
	}
}

func TestMarkInvoicePaidRecoversPastDue(t *testing.T) {
	conn := newBillingTestDB(t)
	svc := newBillingService(t, conn)
	ctx := context.Background()
	company := seedCompany(t, conn, "Acme Corp")
	plan := seedPlan(t, conn, "starter", 30, 2, 10)

	now := time.Now().UTC()
	sub := seedSubscription(t, conn, company.ID, plan.ID, enums.SubscriptionStatusPastDue, now.AddDate(0, -1, 0), now.AddDate(0, 1, 0))
	inv := models.Invoice{
		ID: uuid.New(), CompanyID: company.ID, SubscriptionID: &sub.ID,
		Number: "ACME-2026-02-0001", Status: enums.InvoiceStatusOpen,
		Subtotal: decimal.NewFromInt(30), Total: decimal.NewFromInt(30), Currency: "eur",
		PeriodStart: now.AddDate(0, -1, 0), PeriodEnd: now,
	}
	if err := conn.Create(&inv).Error; err != nil {
		t.Fatalf("seed invoice: %v", err)
	}

	if err := svc.MarkInvoicePaid(ctx, inv.ID, now); err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	var reloadedSub models.Subscription
	if err := conn.First(&reloadedSub, "id = ?", sub.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloadedSub.Status != enums.SubscriptionStatusActive {
		t.Fatalf("expected recovery to active, got %s", reloadedSub.Status)
	}

	// paying a paid invoice changes nothing
	if err := svc.MarkInvoicePaid(ctx, inv.ID, now.Add(time.Hour)); err != nil {
		t.Fatalf("second mark paid: %v", err)
	}
	var reloadedInv models.Invoice
	if err := conn.First(&reloadedInv, "id = ?", inv.ID).Error; err != nil {
		t.Fatalf("reload invoice: %v", err)
	}
	if !reloadedInv.PaidAt.Equal(now) {
		t.Fatalf("paid_at must not move, got %v", reloadedInv.PaidAt)
	}
}

func TestInvoiceAccessScopedToCompany(t *testing.T) {
	conn := newBillingTestDB(t)
	svc := newBillingService(t, conn)
	ctx := context.Background()
	company := seedCompany(t, conn, "Acme Corp")

	inv := models.Invoice{
		ID: uuid.New(), CompanyID: company.ID,
		Number: "ACME-2026-02-0001", Status: enums.InvoiceStatusOpen,
		Subtotal: decimal.NewFromInt(30), Total: decimal.NewFromInt(30), Currency: "eur",
		PeriodStart: time.Now().UTC(), PeriodEnd: time.Now().UTC().AddDate(0, 1, 0),
	}
	if err := conn.Create(&inv).Error; err != nil {
		t.Fatalf("seed invoice: %v", err)
	}

	if _, err := svc.GetInvoice(ctx, adminOf(company.ID), inv.ID); err != nil {
		t.Fatalf("owner get: %v", err)
	}
	_, err := svc.GetInvoice(ctx, adminOf(uuid.New()), inv.ID)
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected foreign invoice hidden, got %v", err)
	}

	page, err := svc.ListInvoices(ctx, adminOf(company.ID), nil, pagination.Params{})
	if err != nil {
		t.Fatalf("list invoices: %v", err)
	}
	if page.Total != 1 {
		t.Fatalf("expected one invoice, got %d", page.Total)
	}
}
