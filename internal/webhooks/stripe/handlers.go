package stripewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/megahubhq/megahub-backend/pkg/db/models"
	"github.com/megahubhq/megahub-backend/pkg/enums"
	pkgerrors "github.com/megahubhq/megahub-backend/pkg/errors"
)

type handlerFunc func(ctx context.Context, tx *gorm.DB, event *stripe.Event) error

// handlers maps the event types the ingestor acts on. Anything else is
// recorded and marked ignored.
func (s *service) handlers() map[stripe.EventType]handlerFunc {
	return map[stripe.EventType]handlerFunc{
		stripe.EventTypeCustomerCreated:             s.handleCustomer,
		stripe.EventTypeCustomerUpdated:             s.handleCustomer,
		stripe.EventTypeInvoicePaymentSucceeded:     s.handleInvoicePaid,
		stripe.EventTypeInvoicePaymentFailed:        s.handleInvoicePaymentFailed,
		stripe.EventTypeCustomerSubscriptionCreated: s.handleSubscriptionSync,
		stripe.EventTypeCustomerSubscriptionUpdated: s.handleSubscriptionSync,
		stripe.EventTypeCustomerSubscriptionDeleted: s.handleSubscriptionDeleted,
		stripe.EventTypePaymentMethodAttached:       s.handlePaymentMethodAttached,
		stripe.EventTypePaymentIntentSucceeded:      s.handlePaymentIntentSucceeded,
		stripe.EventTypeChargeDisputeCreated:        s.handleDisputeCreated,
	}
}

// handleCustomer upserts the customer mirror and backfills the company's
// stripe customer reference.
func (s *service) handleCustomer(ctx context.Context, tx *gorm.DB, event *stripe.Event) error {
	var customer stripe.Customer
	if err := json.Unmarshal(event.Data.Raw, &customer); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode customer event")
	}
	companyID, err := resolveCompanyForCustomer(ctx, tx, customer.ID, customer.Metadata)
	if err != nil {
		return err
	}

	var mirror models.StripeCustomer
	err = tx.WithContext(ctx).First(&mirror, "stripe_customer_id = ?", customer.ID).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		mirror = models.StripeCustomer{
			ID:               uuid.New(),
			CompanyID:        companyID,
			StripeCustomerID: customer.ID,
			Email:            customer.Email,
			Name:             customer.Name,
		}
		if err := tx.WithContext(ctx).Create(&mirror).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create customer mirror")
		}
	case err != nil:
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load customer mirror")
	default:
		mirror.Email = customer.Email
		mirror.Name = customer.Name
		if err := tx.WithContext(ctx).Save(&mirror).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update customer mirror")
		}
	}

	return tx.WithContext(ctx).Model(&models.Company{}).
		Where("id = ? AND (stripe_customer_id IS NULL OR stripe_customer_id <> ?)", companyID, customer.ID).
		Update("stripe_customer_id", customer.ID).Error
}

func (s *service) handleInvoicePaid(ctx context.Context, tx *gorm.DB, event *stripe.Event) error {
	inv, err := findLocalInvoice(ctx, tx, event)
	if err != nil {
		return err
	}
	if inv == nil {
		// invoice issued outside the kernel; nothing to settle
		return nil
	}
	return s.billing.MarkInvoicePaid(ctx, inv.ID, eventTime(event))
}

func (s *service) handleInvoicePaymentFailed(ctx context.Context, tx *gorm.DB, event *stripe.Event) error {
	inv, err := findLocalInvoice(ctx, tx, event)
	if err != nil {
		return err
	}
	if inv == nil || inv.SubscriptionID == nil {
		return nil
	}
	if err := s.billing.ApplyStatus(ctx, *inv.SubscriptionID, enums.SubscriptionStatusPastDue, eventTime(event)); err != nil {
		// a subscription already past_due or canceled is not a handler failure
		if appErr := pkgerrors.As(err); appErr != nil && appErr.Code() == pkgerrors.CodeStateConflict {
			return nil
		}
		return err
	}
	alert := &models.UsageAlert{
		ID:        uuid.New(),
		CompanyID: inv.CompanyID,
		Kind:      enums.UsageAlertKindPaymentFailed,
		Status:    enums.UsageAlertStatusActive,
		Message:   fmt.Sprintf("payment failed for invoice %s", inv.Number),
	}
	if err := tx.WithContext(ctx).Create(alert).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "raise payment alert")
	}
	return nil
}

// handleSubscriptionSync mirrors the remote subscription and maps its
// status onto the local one.
func (s *service) handleSubscriptionSync(ctx context.Context, tx *gorm.DB, event *stripe.Event) error {
	var stripeSub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &stripeSub); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode subscription event")
	}

	local, companyID, err := resolveLocalSubscription(ctx, tx, stripeSub.ID, stripeSub.Metadata)
	if err != nil {
		return err
	}
	if err := upsertSubscriptionMirror(ctx, tx, &stripeSub, companyID, event); err != nil {
		return err
	}
	if local == nil {
		return nil
	}

	status, ok := mapStripeStatus(string(stripeSub.Status))
	if !ok || status == local.Status {
		return nil
	}
	if err := s.billing.ApplyStatus(ctx, local.ID, status, eventTime(event)); err != nil {
		if appErr := pkgerrors.As(err); appErr != nil && appErr.Code() == pkgerrors.CodeStateConflict {
			return nil
		}
		return err
	}
	return nil
}

func (s *service) handleSubscriptionDeleted(ctx context.Context, tx *gorm.DB, event *stripe.Event) error {
	var stripeSub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &stripeSub); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode subscription event")
	}

	local, companyID, err := resolveLocalSubscription(ctx, tx, stripeSub.ID, stripeSub.Metadata)
	if err != nil {
		return err
	}
	stripeSub.Status = stripe.SubscriptionStatusCanceled
	if err := upsertSubscriptionMirror(ctx, tx, &stripeSub, companyID, event); err != nil {
		return err
	}
	if local == nil || local.Status == enums.SubscriptionStatusCanceled {
		return nil
	}
	return s.billing.ApplyStatus(ctx, local.ID, enums.SubscriptionStatusCanceled, eventTime(event))
}

func (s *service) handlePaymentMethodAttached(ctx context.Context, tx *gorm.DB, event *stripe.Event) error {
	var method stripe.PaymentMethod
	if err := json.Unmarshal(event.Data.Raw, &method); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment method event")
	}
	customerID := ""
	if method.Customer != nil {
		customerID = method.Customer.ID
	}
	companyID, err := resolveCompanyForCustomer(ctx, tx, customerID, method.Metadata)
	if err != nil {
		return err
	}

	var mirror models.StripePaymentMethod
	err = tx.WithContext(ctx).First(&mirror, "stripe_payment_method_id = ?", method.ID).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment method mirror")
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		mirror = models.StripePaymentMethod{ID: uuid.New(), StripePaymentMethodID: method.ID}
	}
	mirror.CompanyID = companyID
	mirror.Type = string(method.Type)
	if method.Card != nil {
		mirror.CardBrand = string(method.Card.Brand)
		mirror.CardLast4 = method.Card.Last4
		mirror.CardExpMonth = int(method.Card.ExpMonth)
		mirror.CardExpYear = int(method.Card.ExpYear)
	}
	if err := tx.WithContext(ctx).Save(&mirror).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save payment method mirror")
	}
	return nil
}

// handlePaymentIntentSucceeded has no canonical entity to mutate; the
// settlement lands via invoice.payment_succeeded.
func (s *service) handlePaymentIntentSucceeded(context.Context, *gorm.DB, *stripe.Event) error {
	return nil
}

func (s *service) handleDisputeCreated(ctx context.Context, tx *gorm.DB, event *stripe.Event) error {
	customerID := event.GetObjectValue("customer")
	companyID, err := resolveCompanyForCustomer(ctx, tx, customerID, nil)
	if err != nil {
		return err
	}
	alert := &models.UsageAlert{
		ID:        uuid.New(),
		CompanyID: companyID,
		Kind:      enums.UsageAlertKindDisputeCreated,
		Status:    enums.UsageAlertStatusActive,
		Message:   fmt.Sprintf("dispute opened on charge %s", event.GetObjectValue("charge")),
	}
	if err := tx.WithContext(ctx).Create(alert).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "raise dispute alert")
	}
	return nil
}

// resolveCompanyForCustomer maps a Stripe customer to a company: explicit
// metadata wins, then the customer mirror, then the company backreference.
func resolveCompanyForCustomer(ctx context.Context, tx *gorm.DB, stripeCustomerID string, metadata map[string]string) (uuid.UUID, error) {
	if raw, ok := metadata["company_id"]; ok {
		id, err := uuid.Parse(raw)
		if err != nil {
			return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "bad company_id metadata")
		}
		return id, nil
	}
	if stripeCustomerID == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "event carries no customer reference")
	}

	var mirror models.StripeCustomer
	err := tx.WithContext(ctx).First(&mirror, "stripe_customer_id = ?", stripeCustomerID).Error
	if err == nil {
		return mirror.CompanyID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load customer mirror")
	}

	var company models.Company
	err = tx.WithContext(ctx).First(&company, "stripe_customer_id = ?", stripeCustomerID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return uuid.Nil, pkgerrors.New(pkgerrors.CodeNotFound, "no company for stripe customer")
		}
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load company")
	}
	return company.ID, nil
}

func resolveLocalSubscription(ctx context.Context, tx *gorm.DB, stripeSubID string, metadata map[string]string) (*models.Subscription, uuid.UUID, error) {
	var local models.Subscription
	err := tx.WithContext(ctx).First(&local, "stripe_subscription_id = ?", stripeSubID).Error
	if err == nil {
		return &local, local.CompanyID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load subscription")
	}

	if raw, ok := metadata["company_id"]; ok {
		id, parseErr := uuid.Parse(raw)
		if parseErr != nil {
			return nil, uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, parseErr, "bad company_id metadata")
		}
		return nil, id, nil
	}
	return nil, uuid.Nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not known locally")
}

func upsertSubscriptionMirror(ctx context.Context, tx *gorm.DB, stripeSub *stripe.Subscription, companyID uuid.UUID, event *stripe.Event) error {
	var mirror models.StripeSubscription
	err := tx.WithContext(ctx).First(&mirror, "stripe_subscription_id = ?", stripeSub.ID).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load subscription mirror")
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		mirror = models.StripeSubscription{ID: uuid.New(), StripeSubscriptionID: stripeSub.ID}
	}
	mirror.CompanyID = companyID
	mirror.Status = string(stripeSub.Status)
	mirror.CancelAtPeriodEnd = stripeSub.CancelAtPeriodEnd
	if stripeSub.Items != nil && len(stripeSub.Items.Data) > 0 && stripeSub.Items.Data[0].Price != nil {
		mirror.StripePriceID = stripeSub.Items.Data[0].Price.ID
	}
	if ts := unixField(event, "current_period_start"); ts != nil {
		mirror.CurrentPeriodStart = ts
	}
	if ts := unixField(event, "current_period_end"); ts != nil {
		mirror.CurrentPeriodEnd = ts
	}
	if err := tx.WithContext(ctx).Save(&mirror).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save subscription mirror")
	}
	return nil
}

func mapStripeStatus(raw string) (enums.SubscriptionStatus, bool) {
	switch raw {
	case "trialing":
		return enums.SubscriptionStatusTrialing, true
	case "active":
		return enums.SubscriptionStatusActive, true
	case "past_due":
		return enums.SubscriptionStatusPastDue, true
	case "canceled":
		return enums.SubscriptionStatusCanceled, true
	case "unpaid":
		return enums.SubscriptionStatusUnpaid, true
	default:
		return "", false
	}
}

func findLocalInvoice(ctx context.Context, tx *gorm.DB, event *stripe.Event) (*models.Invoice, error) {
	var inv models.Invoice
	if stripeInvoiceID := event.GetObjectValue("id"); stripeInvoiceID != "" {
		err := tx.WithContext(ctx).First(&inv, "stripe_invoice_id = ?", stripeInvoiceID).Error
		if err == nil {
			return &inv, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load invoice")
		}
	}
	if raw := event.GetObjectValue("metadata", "invoice_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "bad invoice_id metadata")
		}
		err = tx.WithContext(ctx).First(&inv, "id = ?", id).Error
		if err == nil {
			return &inv, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load invoice")
		}
	}
	return nil, nil
}

func eventTime(event *stripe.Event) time.Time {
	if event.Created > 0 {
		return time.Unix(event.Created, 0).UTC()
	}
	return time.Now().UTC()
}

func unixField(event *stripe.Event, field string) *time.Time {
	raw := event.GetObjectValue(field)
	if raw == "" {
		return nil
	}
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	t := time.Unix(secs, 0).UTC()
	return &t
}
