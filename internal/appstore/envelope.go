package appstore

import (
	"encoding/json"
	"fmt"
)

// Request is the verifyReceipt request body.
type Request struct {
	ReceiptData string `json:"receipt-data"`
	// Password is the app's shared secret.
	Password               *string `json:"password,omitempty"`
	ExcludeOldTransactions *bool   `json:"exclude-old-transactions,omitempty"`
}

// Status is decoded before the rest of the body so that error answers, which
// carry no receipt, can be classified.
type Status struct {
	Status int `json:"status"`
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var raw struct {
		Status *int `json:"status"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return wrapJSONError(err)
	}
	if raw.Status == nil {
		return &DecodeError{Field: "status", Err: errMissingField}
	}
	s.Status = *raw.Status
	return nil
}

// Response is a successful verifyReceipt answer.
type Response struct {
	Status            int
	Receipt           Receipt
	LatestReceipt     *string
	LatestReceiptInfo *Receipt
	IsRetryable       *bool
	// Environment is the environment the server says the receipt was issued for.
	Environment Environment
}

type responseJSON struct {
	Status            *int            `json:"status"`
	Receipt           json.RawMessage `json:"receipt,omitempty"`
	LatestReceipt     *string         `json:"latest_receipt,omitempty"`
	LatestReceiptInfo json.RawMessage `json:"latest_receipt_info,omitempty"`
	IsRetryable       *bool           `json:"is-retryable,omitempty"`
	Environment       *string         `json:"environment,omitempty"`
}

func (r *Response) UnmarshalJSON(data []byte) error {
	var raw responseJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return wrapJSONError(err)
	}
	if raw.Status == nil {
		return &DecodeError{Field: "status", Err: errMissingField}
	}
	if isAbsent(raw.Receipt) {
		return &DecodeError{Field: "receipt", Err: errMissingField}
	}
	if raw.Environment == nil {
		return &DecodeError{Field: "environment", Err: errMissingField}
	}

	decoded := Response{
		Status:        *raw.Status,
		LatestReceipt: raw.LatestReceipt,
		IsRetryable:   raw.IsRetryable,
		Environment:   Environment(*raw.Environment),
	}
	if !decoded.Environment.valid() {
		return &DecodeError{Field: "environment", Err: fmt.Errorf("unrecognized value %q", *raw.Environment)}
	}
	if err := decoded.Receipt.UnmarshalJSON(raw.Receipt); err != nil {
		return prefixField(err, "receipt")
	}
	if !isAbsent(raw.LatestReceiptInfo) {
		var latest Receipt
		if err := latest.UnmarshalJSON(raw.LatestReceiptInfo); err != nil {
			return prefixField(err, "latest_receipt_info")
		}
		decoded.LatestReceiptInfo = &latest
	}

	*r = decoded
	return nil
}

func (r Response) MarshalJSON() ([]byte, error) {
	receipt, err := json.Marshal(r.Receipt)
	if err != nil {
		return nil, err
	}
	var latest json.RawMessage
	if r.LatestReceiptInfo != nil {
		if latest, err = json.Marshal(r.LatestReceiptInfo); err != nil {
			return nil, err
		}
	}
	env := string(r.Environment)

	return json.Marshal(responseJSON{
		Status:            &r.Status,
		Receipt:           receipt,
		LatestReceipt:     r.LatestReceipt,
		LatestReceiptInfo: latest,
		IsRetryable:       r.IsRetryable,
		Environment:       &env,
	})
}

func isAbsent(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
