package services

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// ErrorKind is the machine-readable classification returned to scanner
// clients alongside the human message.
type ErrorKind string

const (
	ErrInvalidInput       ErrorKind = "INVALID_INPUT"
	ErrQrNotFound         ErrorKind = "QR_NOT_FOUND"
	ErrQrInactive         ErrorKind = "QR_INACTIVE"
	ErrQrExpired          ErrorKind = "QR_EXPIRED"
	ErrWrongCodeForAction ErrorKind = "WRONG_CODE_FOR_ACTION"
	ErrCampaignMismatch   ErrorKind = "CAMPAIGN_MISMATCH"
	ErrEventMismatch      ErrorKind = "EVENT_MISMATCH"
	ErrPersonaNotFound    ErrorKind = "PERSONA_NOT_FOUND"
	ErrEventNotFound      ErrorKind = "EVENT_NOT_FOUND"
	ErrCampaignNotFound   ErrorKind = "CAMPAIGN_NOT_FOUND"
	ErrNotRegistered      ErrorKind = "NOT_REGISTERED"
	ErrAlreadyRegistered  ErrorKind = "ALREADY_REGISTERED"
	ErrAlreadyEntered     ErrorKind = "ALREADY_ENTERED"
	ErrNotEntered         ErrorKind = "NOT_ENTERED"
	ErrAlreadyExited      ErrorKind = "ALREADY_EXITED"
	ErrAlreadyDistributed ErrorKind = "ALREADY_DISTRIBUTED"
	ErrEventNotEnded      ErrorKind = "EVENT_NOT_ENDED"
	ErrPermissionDenied   ErrorKind = "PERMISSION_DENIED"
	ErrIntegrity          ErrorKind = "DATA_INTEGRITY"
	ErrDatabase           ErrorKind = "DATABASE_ERROR"
)

type DomainError struct {
	Message string    `json:"message"`
	Kind    ErrorKind `json:"kind"`
	Err     error     `json:"-"`
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s [%s]: %v", e.Message, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s [%s]", e.Message, e.Kind)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

func NewDomainError(message string, kind ErrorKind, err error) *DomainError {
	return &DomainError{Message: message, Kind: kind, Err: err}
}

func IsKind(err error, kind ErrorKind) bool {
	var derr *DomainError
	if errors.As(err, &derr) {
		return derr.Kind == kind
	}
	return false
}

func KindOf(err error) ErrorKind {
	var derr *DomainError
	if errors.As(err, &derr) {
		return derr.Kind
	}
	return ""
}

// HTTPStatus maps the error taxonomy onto response codes: lookups that found
// nothing are 404, state-machine conflicts are 409, user mistakes are 400,
// everything infrastructural is 500.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case ErrQrNotFound, ErrPersonaNotFound, ErrEventNotFound, ErrCampaignNotFound:
		return fiber.StatusNotFound
	case ErrAlreadyRegistered, ErrAlreadyEntered, ErrAlreadyExited,
		ErrAlreadyDistributed:
		return fiber.StatusConflict
	case ErrInvalidInput, ErrQrInactive, ErrQrExpired, ErrWrongCodeForAction,
		ErrCampaignMismatch, ErrEventMismatch, ErrNotRegistered, ErrNotEntered, ErrEventNotEnded:
		return fiber.StatusBadRequest
	case ErrPermissionDenied:
		return fiber.StatusForbidden
	default:
		return fiber.StatusInternalServerError
	}
}
