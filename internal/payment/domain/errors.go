package domain

import "errors"

var (
	ErrInvalidSelection    = errors.New("invalid_selection")
	ErrGatewayCancelled    = errors.New("gateway_cancelled")
	ErrGatewayNotApproved  = errors.New("gateway_not_approved")
	ErrRecordingFailed     = errors.New("recording_failed")
	ErrPaymentNotFound     = errors.New("payment_not_found")
	ErrIntentNotFound      = errors.New("intent_not_found")
	ErrIntentNotResolvable = errors.New("intent_not_resolvable")
	ErrIntentTooRecent     = errors.New("intent_too_recent")
	ErrIntentConflict      = errors.New("intent_conflict")
	ErrInvalidTransition   = errors.New("invalid_status_transition")
	ErrInvalidPageToken    = errors.New("invalid_page_token")
	ErrInvalidPrincipal    = errors.New("invalid_principal")
)
