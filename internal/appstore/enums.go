package appstore

import (
	"encoding/json"
	"fmt"
)

// SubscriptionExpirationIntent is the reason an expired subscription expired.
type SubscriptionExpirationIntent string

const (
	ExpirationIntentCustomerCancelled     SubscriptionExpirationIntent = "1"
	ExpirationIntentBillingError          SubscriptionExpirationIntent = "2"
	ExpirationIntentPriceIncreaseDeclined SubscriptionExpirationIntent = "3"
	ExpirationIntentProductUnavailable    SubscriptionExpirationIntent = "4"
	ExpirationIntentUnknown               SubscriptionExpirationIntent = "5"
)

func (v SubscriptionExpirationIntent) valid() bool {
	switch v {
	case ExpirationIntentCustomerCancelled, ExpirationIntentBillingError,
		ExpirationIntentPriceIncreaseDeclined, ExpirationIntentProductUnavailable,
		ExpirationIntentUnknown:
		return true
	}
	return false
}

// SubscriptionRetryFlag tells whether the App Store is still trying to renew
// an expired subscription.
type SubscriptionRetryFlag string

const (
	RetryFlagStillAttempting   SubscriptionRetryFlag = "0"
	RetryFlagStoppedAttempting SubscriptionRetryFlag = "1"
)

func (v SubscriptionRetryFlag) valid() bool {
	return v == RetryFlagStillAttempting || v == RetryFlagStoppedAttempting
}

// SubscriptionTrialPeriod tells whether the subscription is in its free trial.
type SubscriptionTrialPeriod string

const (
	TrialPeriodInFreeTrial    SubscriptionTrialPeriod = "true"
	TrialPeriodNotInFreeTrial SubscriptionTrialPeriod = "false"
)

func (v SubscriptionTrialPeriod) valid() bool {
	return v == TrialPeriodInFreeTrial || v == TrialPeriodNotInFreeTrial
}

// SubscriptionIntroductoryPricePeriod tells whether the subscription is in an
// introductory price period.
type SubscriptionIntroductoryPricePeriod string

const (
	IntroductoryPricePeriodActive   SubscriptionIntroductoryPricePeriod = "true"
	IntroductoryPricePeriodInactive SubscriptionIntroductoryPricePeriod = "false"
)

func (v SubscriptionIntroductoryPricePeriod) valid() bool {
	return v == IntroductoryPricePeriodActive || v == IntroductoryPricePeriodInactive
}

// SubscriptionAutoRenewStatus is the current renewal status. It says nothing
// about whether the subscription is active.
type SubscriptionAutoRenewStatus string

const (
	AutoRenewStatusTurnedOff SubscriptionAutoRenewStatus = "0"
	AutoRenewStatusWillRenew SubscriptionAutoRenewStatus = "1"
)

func (v SubscriptionAutoRenewStatus) valid() bool {
	return v == AutoRenewStatusTurnedOff || v == AutoRenewStatusWillRenew
}

// SubscriptionPriceConsentStatus tracks consent to a subscription price
// increase.
type SubscriptionPriceConsentStatus string

const (
	PriceConsentNoAction SubscriptionPriceConsentStatus = "0"
	PriceConsentAgreed   SubscriptionPriceConsentStatus = "1"
)

func (v SubscriptionPriceConsentStatus) valid() bool {
	return v == PriceConsentNoAction || v == PriceConsentAgreed
}

// CancellationReason is why Apple support cancelled a transaction.
type CancellationReason string

const (
	CancellationReasonOther      CancellationReason = "0"
	CancellationReasonIssueInApp CancellationReason = "1"
)

func (v CancellationReason) valid() bool {
	return v == CancellationReasonOther || v == CancellationReasonIssueInApp
}

type closedEnum interface {
	~string
	valid() bool
}

// parseEnum decodes an optional enumeration literal. Absent stays nil; any
// literal outside the closed set fails.
func parseEnum[T closedEnum](field string, raw *string) (*T, error) {
	if raw == nil {
		return nil, nil
	}
	v := T(*raw)
	if !v.valid() {
		return nil, &DecodeError{Field: field, Err: fmt.Errorf("unrecognized value %q", *raw)}
	}
	return &v, nil
}

// Environment is one of the two verifyReceipt endpoints.
type Environment string

const (
	EnvironmentProduction Environment = "Production"
	EnvironmentSandbox    Environment = "Sandbox"
)

const (
	ProductionURL = "https://buy.itunes.apple.com/verifyReceipt"
	SandboxURL    = "https://sandbox.itunes.apple.com/verifyReceipt"
)

// URL returns the fixed endpoint for the environment.
func (e Environment) URL() string {
	if e == EnvironmentSandbox {
		return SandboxURL
	}
	return ProductionURL
}

func (e Environment) valid() bool {
	return e == EnvironmentProduction || e == EnvironmentSandbox
}

func (e *Environment) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return &DecodeError{Field: "environment", Err: err}
	}
	v := Environment(s)
	if !v.valid() {
		return &DecodeError{Field: "environment", Err: fmt.Errorf("unrecognized value %q", s)}
	}
	*e = v
	return nil
}
