package appstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Receipt is the decoded receipt of a successful verification.
type Receipt struct {
	BundleID                   string
	ApplicationVersion         string
	OriginalApplicationVersion string
	CreationDate               time.Time
	ExpirationDate             *time.Time
	// InApp keeps the order the server returned.
	InApp []InAppPurchase
}

// InAppPurchase is one in-app purchase line of a receipt. The pointer fields
// are only present for auto-renewable subscriptions; nil means the field does
// not apply.
type InAppPurchase struct {
	Quantity              string
	ProductID             string
	TransactionID         string
	OriginalTransactionID string
	PurchaseDate          time.Time
	OriginalPurchaseDate  time.Time

	SubscriptionExpirationDate          *time.Time
	SubscriptionExpirationIntent        *SubscriptionExpirationIntent
	SubscriptionRetryFlag               *SubscriptionRetryFlag
	SubscriptionTrialPeriod             *SubscriptionTrialPeriod
	SubscriptionIntroductoryPricePeriod *SubscriptionIntroductoryPricePeriod
	SubscriptionAutoRenewStatus         *SubscriptionAutoRenewStatus
	// SubscriptionAutoRenewProductID is the product the subscription renews to.
	SubscriptionAutoRenewProductID *string
	SubscriptionPriceConsentStatus *SubscriptionPriceConsentStatus
	CancellationDate               *time.Time
	CancellationReason             *CancellationReason
	AppItemID                      *string
	ExternalVersionIdentifier      *string
	WebOrderLineItemID             *string
}

type receiptJSON struct {
	BundleID                   *string            `json:"bundle_id,omitempty"`
	ApplicationVersion         *string            `json:"application_version,omitempty"`
	InApp                      *[]json.RawMessage `json:"in_app,omitempty"`
	OriginalApplicationVersion *string            `json:"original_application_version,omitempty"`
	CreationDate               *string            `json:"receipt_creation_date_ms,omitempty"`
	ExpirationDate             *string            `json:"receipt_expiration_date_ms,omitempty"`
}

// Apple spells the cancellation date key cancellationDateMS, unlike its
// siblings.
type inAppPurchaseJSON struct {
	Quantity                  *string `json:"quantity,omitempty"`
	ProductID                 *string `json:"product_id,omitempty"`
	TransactionID             *string `json:"transaction_id,omitempty"`
	OriginalTransactionID     *string `json:"original_transaction_id,omitempty"`
	PurchaseDate              *string `json:"purchase_date_ms,omitempty"`
	OriginalPurchaseDate      *string `json:"original_purchase_date_ms,omitempty"`
	ExpirationDate            *string `json:"subscription_expiration_date_ms,omitempty"`
	ExpirationIntent          *string `json:"expiration_intent,omitempty"`
	IsInBillingRetryPeriod    *string `json:"is_in_billing_retry_period,omitempty"`
	IsTrialPeriod             *string `json:"is_trial_period,omitempty"`
	IsInIntroOfferPeriod      *string `json:"is_in_intro_offer_period,omitempty"`
	AutoRenewStatus           *string `json:"auto_renew_status,omitempty"`
	AutoRenewProductID        *string `json:"auto_renew_product_id,omitempty"`
	PriceConsentStatus        *string `json:"price_consent_status,omitempty"`
	CancellationDate          *string `json:"cancellationDateMS,omitempty"`
	CancellationReason        *string `json:"cancellation_reason,omitempty"`
	AppItemID                 *string `json:"app_item_id,omitempty"`
	VersionExternalIdentifier *string `json:"version_external_identifier,omitempty"`
	WebOrderLineItemID        *string `json:"web_order_line_item_id,omitempty"`
}

func (r *Receipt) UnmarshalJSON(data []byte) error {
	var raw receiptJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return wrapJSONError(err)
	}

	d := &fieldDecoder{}
	decoded := Receipt{
		BundleID:                   d.required("bundle_id", raw.BundleID),
		ApplicationVersion:         d.required("application_version", raw.ApplicationVersion),
		OriginalApplicationVersion: d.required("original_application_version", raw.OriginalApplicationVersion),
		CreationDate:               d.date("receipt_creation_date_ms", raw.CreationDate),
		ExpirationDate:             d.optionalDate("receipt_expiration_date_ms", raw.ExpirationDate),
	}
	if d.err != nil {
		return d.err
	}
	if raw.InApp == nil {
		return &DecodeError{Field: "in_app", Err: errMissingField}
	}

	decoded.InApp = make([]InAppPurchase, 0, len(*raw.InApp))
	for i, item := range *raw.InApp {
		var purchase InAppPurchase
		if err := purchase.UnmarshalJSON(item); err != nil {
			return prefixField(err, fmt.Sprintf("in_app[%d]", i))
		}
		decoded.InApp = append(decoded.InApp, purchase)
	}

	*r = decoded
	return nil
}

func (r Receipt) MarshalJSON() ([]byte, error) {
	inApp := make([]json.RawMessage, 0, len(r.InApp))
	for _, p := range r.InApp {
		b, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		inApp = append(inApp, b)
	}

	return json.Marshal(receiptJSON{
		BundleID:                   &r.BundleID,
		ApplicationVersion:         &r.ApplicationVersion,
		InApp:                      &inApp,
		OriginalApplicationVersion: &r.OriginalApplicationVersion,
		CreationDate:               formatDatePtr(&r.CreationDate),
		ExpirationDate:             formatDatePtr(r.ExpirationDate),
	})
}

func (p *InAppPurchase) UnmarshalJSON(data []byte) error {
	var raw inAppPurchaseJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return wrapJSONError(err)
	}

	d := &fieldDecoder{}
	decoded := InAppPurchase{
		Quantity:                            d.required("quantity", raw.Quantity),
		ProductID:                           d.required("product_id", raw.ProductID),
		TransactionID:                       d.required("transaction_id", raw.TransactionID),
		OriginalTransactionID:               d.required("original_transaction_id", raw.OriginalTransactionID),
		PurchaseDate:                        d.date("purchase_date_ms", raw.PurchaseDate),
		OriginalPurchaseDate:                d.date("original_purchase_date_ms", raw.OriginalPurchaseDate),
		SubscriptionExpirationDate:          d.optionalDate("subscription_expiration_date_ms", raw.ExpirationDate),
		SubscriptionExpirationIntent:        optionalEnum[SubscriptionExpirationIntent](d, "expiration_intent", raw.ExpirationIntent),
		SubscriptionRetryFlag:               optionalEnum[SubscriptionRetryFlag](d, "is_in_billing_retry_period", raw.IsInBillingRetryPeriod),
		SubscriptionTrialPeriod:             optionalEnum[SubscriptionTrialPeriod](d, "is_trial_period", raw.IsTrialPeriod),
		SubscriptionIntroductoryPricePeriod: optionalEnum[SubscriptionIntroductoryPricePeriod](d, "is_in_intro_offer_period", raw.IsInIntroOfferPeriod),
		SubscriptionAutoRenewStatus:         optionalEnum[SubscriptionAutoRenewStatus](d, "auto_renew_status", raw.AutoRenewStatus),
		SubscriptionAutoRenewProductID:      raw.AutoRenewProductID,
		SubscriptionPriceConsentStatus:      optionalEnum[SubscriptionPriceConsentStatus](d, "price_consent_status", raw.PriceConsentStatus),
		CancellationDate:                    d.optionalDate("cancellationDateMS", raw.CancellationDate),
		CancellationReason:                  optionalEnum[CancellationReason](d, "cancellation_reason", raw.CancellationReason),
		AppItemID:                           raw.AppItemID,
		ExternalVersionIdentifier:           raw.VersionExternalIdentifier,
		WebOrderLineItemID:                  raw.WebOrderLineItemID,
	}
	if d.err != nil {
		return d.err
	}

	*p = decoded
	return nil
}

func (p InAppPurchase) MarshalJSON() ([]byte, error) {
	return json.Marshal(inAppPurchaseJSON{
		Quantity:                  &p.Quantity,
		ProductID:                 &p.ProductID,
		TransactionID:             &p.TransactionID,
		OriginalTransactionID:     &p.OriginalTransactionID,
		PurchaseDate:              formatDatePtr(&p.PurchaseDate),
		OriginalPurchaseDate:      formatDatePtr(&p.OriginalPurchaseDate),
		ExpirationDate:            formatDatePtr(p.SubscriptionExpirationDate),
		ExpirationIntent:          enumPtr(p.SubscriptionExpirationIntent),
		IsInBillingRetryPeriod:    enumPtr(p.SubscriptionRetryFlag),
		IsTrialPeriod:             enumPtr(p.SubscriptionTrialPeriod),
		IsInIntroOfferPeriod:      enumPtr(p.SubscriptionIntroductoryPricePeriod),
		AutoRenewStatus:           enumPtr(p.SubscriptionAutoRenewStatus),
		AutoRenewProductID:        p.SubscriptionAutoRenewProductID,
		PriceConsentStatus:        enumPtr(p.SubscriptionPriceConsentStatus),
		CancellationDate:          formatDatePtr(p.CancellationDate),
		CancellationReason:        enumPtr(p.CancellationReason),
		AppItemID:                 p.AppItemID,
		VersionExternalIdentifier: p.ExternalVersionIdentifier,
		WebOrderLineItemID:        p.WebOrderLineItemID,
	})
}

// fieldDecoder keeps the first error met while converting wire fields.
type fieldDecoder struct {
	err error
}

func (d *fieldDecoder) fail(field string, err error) {
	if d.err == nil {
		d.err = &DecodeError{Field: field, Err: err}
	}
}

func (d *fieldDecoder) required(field string, v *string) string {
	if v == nil {
		d.fail(field, errMissingField)
		return ""
	}
	return *v
}

func (d *fieldDecoder) date(field string, v *string) time.Time {
	if v == nil {
		d.fail(field, errMissingField)
		return time.Time{}
	}
	t, err := ParseDate(*v)
	if err != nil {
		d.fail(field, err)
	}
	return t
}

func (d *fieldDecoder) optionalDate(field string, v *string) *time.Time {
	t, err := ParseOptionalDate(v)
	if err != nil {
		d.fail(field, err)
		return nil
	}
	return t
}

func optionalEnum[T closedEnum](d *fieldDecoder, field string, raw *string) *T {
	v, err := parseEnum[T](field, raw)
	if err != nil && d.err == nil {
		d.err = err
	}
	return v
}

func enumPtr[T ~string](v *T) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func formatDatePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := FormatDate(*t)
	return &s
}

// wrapJSONError turns encoding/json errors into DecodeErrors, keeping the
// offending key when encoding/json reports one.
func wrapJSONError(err error) error {
	var decodeErr *DecodeError
	if errors.As(err, &decodeErr) {
		return err
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return &DecodeError{Field: typeErr.Field, Err: err}
	}
	return &DecodeError{Err: err}
}

func prefixField(err error, prefix string) error {
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		return &DecodeError{Field: prefix, Err: err}
	}
	field := prefix
	if decodeErr.Field != "" {
		field = prefix + "." + decodeErr.Field
	}
	return &DecodeError{Field: field, Err: decodeErr.Err}
}
