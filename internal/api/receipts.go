package api

import (
	"errors"
	"net/http"
	"time"

	"appstore-receipt-api/internal/appstore"
	"appstore-receipt-api/internal/middleware"
	"appstore-receipt-api/internal/response"
	"appstore-receipt-api/internal/services"
	"appstore-receipt-api/pkg/logging"

	"github.com/gin-gonic/gin"
)

// VerifyReceiptRequest represents a receipt verification request
type VerifyReceiptRequest struct {
	ReceiptData            string  `json:"receipt_data" binding:"required"`
	Password               *string `json:"password,omitempty"`
	ExcludeOldTransactions *bool   `json:"exclude_old_transactions,omitempty"`
}

// VerifyReceiptResponse is the data of a successful verification
type VerifyReceiptResponse struct {
	Environment       string       `json:"environment"`
	Receipt           ReceiptView  `json:"receipt"`
	LatestReceipt     *string      `json:"latest_receipt,omitempty"`
	LatestReceiptInfo *ReceiptView `json:"latest_receipt_info,omitempty"`
}

// ReceiptView is a receipt with RFC 3339 dates
type ReceiptView struct {
	BundleID                   string              `json:"bundle_id"`
	ApplicationVersion         string              `json:"application_version"`
	OriginalApplicationVersion string              `json:"original_application_version"`
	CreationDate               string              `json:"creation_date"`
	ExpirationDate             *string             `json:"expiration_date,omitempty"`
	InApp                      []InAppPurchaseView `json:"in_app"`
}

// InAppPurchaseView is one in-app purchase with RFC 3339 dates. Enumerated
// fields keep Apple's literals.
type InAppPurchaseView struct {
	Quantity                   string  `json:"quantity"`
	ProductID                  string  `json:"product_id"`
	TransactionID              string  `json:"transaction_id"`
	OriginalTransactionID      string  `json:"original_transaction_id"`
	PurchaseDate               string  `json:"purchase_date"`
	OriginalPurchaseDate       string  `json:"original_purchase_date"`
	SubscriptionExpirationDate *string `json:"subscription_expiration_date,omitempty"`
	ExpirationIntent           *string `json:"expiration_intent,omitempty"`
	IsInBillingRetryPeriod     *string `json:"is_in_billing_retry_period,omitempty"`
	IsTrialPeriod              *string `json:"is_trial_period,omitempty"`
	IsInIntroOfferPeriod       *string `json:"is_in_intro_offer_period,omitempty"`
	AutoRenewStatus            *string `json:"auto_renew_status,omitempty"`
	AutoRenewProductID         *string `json:"auto_renew_product_id,omitempty"`
	PriceConsentStatus         *string `json:"price_consent_status,omitempty"`
	CancellationDate           *string `json:"cancellation_date,omitempty"`
	CancellationReason         *string `json:"cancellation_reason,omitempty"`
	AppItemID                  *string `json:"app_item_id,omitempty"`
	VersionExternalIdentifier  *string `json:"version_external_identifier,omitempty"`
	WebOrderLineItemID         *string `json:"web_order_line_item_id,omitempty"`
}

// VerifyReceipt validates a base64 receipt against the App Store
func (h *Handler) VerifyReceipt(c *gin.Context) {
	var req VerifyReceiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorJSON(c, http.StatusBadRequest, "Invalid request format: "+err.Error())
		return
	}

	project, ok := middleware.CurrentProject(c)
	if !ok {
		response.ErrorJSON(c, http.StatusUnauthorized, "Missing project")
		return
	}

	resp, err := h.receipts.Validate(c.Request.Context(), project, services.ValidateInput{
		ReceiptData:            req.ReceiptData,
		Password:               req.Password,
		ExcludeOldTransactions: req.ExcludeOldTransactions,
	})
	if err != nil {
		writeVerifyError(c, err)
		return
	}

	response.SuccessJSON(c, newVerifyReceiptResponse(resp))
}

// writeVerifyError maps validation failures to HTTP statuses
func writeVerifyError(c *gin.Context, err error) {
	var (
		bundleErr    *services.BundleMismatchError
		statusErr    *appstore.StatusError
		transportErr *appstore.TransportError
		decodeErr    *appstore.DecodeError
	)

	switch {
	case errors.Is(err, appstore.ErrEmptyReceipt):
		response.ErrorJSON(c, http.StatusBadRequest, "receipt_data is empty")
	case errors.As(err, &bundleErr):
		response.JSON(c, http.StatusUnprocessableEntity, response.ErrorWithData("bundle id mismatch", gin.H{
			"expected": bundleErr.Expected,
			"actual":   bundleErr.Actual,
		}))
	case errors.As(err, &statusErr):
		response.JSON(c, http.StatusUnprocessableEntity, response.ErrorWithData("App Store rejected the receipt", gin.H{
			"status":      statusErr.Status,
			"kind":        statusErr.Kind.String(),
			"environment": string(statusErr.Environment),
		}))
	case errors.As(err, &transportErr):
		if transportErr.Timeout() {
			response.ErrorJSON(c, http.StatusGatewayTimeout, "App Store did not answer in time")
			return
		}
		response.ErrorJSON(c, http.StatusBadGateway, "App Store is unreachable")
	case errors.As(err, &decodeErr):
		response.JSON(c, http.StatusBadGateway, response.ErrorWithData("App Store answer could not be decoded", gin.H{
			"field": decodeErr.Field,
		}))
	default:
		logging.Errorf("Unexpected receipt validation error: %v", err)
		response.ErrorJSON(c, http.StatusInternalServerError, "Service error")
	}
}

func newVerifyReceiptResponse(resp *appstore.Response) VerifyReceiptResponse {
	out := VerifyReceiptResponse{
		Environment:   string(resp.Environment),
		Receipt:       newReceiptView(resp.Receipt),
		LatestReceipt: resp.LatestReceipt,
	}
	if resp.LatestReceiptInfo != nil {
		latest := newReceiptView(*resp.LatestReceiptInfo)
		out.LatestReceiptInfo = &latest
	}
	return out
}

func newReceiptView(r appstore.Receipt) ReceiptView {
	purchases := make([]InAppPurchaseView, 0, len(r.InApp))
	for _, p := range r.InApp {
		purchases = append(purchases, InAppPurchaseView{
			Quantity:                   p.Quantity,
			ProductID:                  p.ProductID,
			TransactionID:              p.TransactionID,
			OriginalTransactionID:      p.OriginalTransactionID,
			PurchaseDate:               formatTime(p.PurchaseDate),
			OriginalPurchaseDate:       formatTime(p.OriginalPurchaseDate),
			SubscriptionExpirationDate: formatTimePtr(p.SubscriptionExpirationDate),
			ExpirationIntent:           literal(p.SubscriptionExpirationIntent),
			IsInBillingRetryPeriod:     literal(p.SubscriptionRetryFlag),
			IsTrialPeriod:              literal(p.SubscriptionTrialPeriod),
			IsInIntroOfferPeriod:       literal(p.SubscriptionIntroductoryPricePeriod),
			AutoRenewStatus:            literal(p.SubscriptionAutoRenewStatus),
			AutoRenewProductID:         p.SubscriptionAutoRenewProductID,
			PriceConsentStatus:         literal(p.SubscriptionPriceConsentStatus),
			CancellationDate:           formatTimePtr(p.CancellationDate),
			CancellationReason:         literal(p.CancellationReason),
			AppItemID:                  p.AppItemID,
			VersionExternalIdentifier:  p.ExternalVersionIdentifier,
			WebOrderLineItemID:         p.WebOrderLineItemID,
		})
	}

	return ReceiptView{
		BundleID:                   r.BundleID,
		ApplicationVersion:         r.ApplicationVersion,
		OriginalApplicationVersion: r.OriginalApplicationVersion,
		CreationDate:               formatTime(r.CreationDate),
		ExpirationDate:             formatTimePtr(r.ExpirationDate),
		InApp:                      purchases,
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func literal[T ~string](v *T) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}
