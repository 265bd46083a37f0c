package core

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ContainerErrorBadInput               = "CONTAINER_BAD_INPUT"
	ContainerErrorComponentNotFound      = "CONTAINER_COMPONENT_NOT_FOUND"
	ContainerErrorUnauthorized           = "CONTAINER_UNAUTHORIZED"
	ContainerErrorResourceUnavailable    = "CONTAINER_RESOURCE_UNAVAILABLE"
	ContainerErrorApplicationFault       = "CONTAINER_APPLICATION_FAULT"
	ContainerErrorSystemFault            = "CONTAINER_SYSTEM_FAULT"
	ContainerErrorTransactionRolledBack  = "CONTAINER_TRANSACTION_ROLLEDBACK"
	ContainerErrorTransactionRequired    = "CONTAINER_TRANSACTION_REQUIRED"
	ContainerErrorTransactionNotAllowed  = "CONTAINER_TRANSACTION_NOT_ALLOWED"
	ContainerErrorDuplicateDeployment    = "CONTAINER_DUPLICATE_DEPLOYMENT"
	ContainerErrorInstanceNotCheckedOut  = "CONTAINER_INSTANCE_NOT_CHECKED_OUT"
	ContainerErrorResourceManagerFailure = "CONTAINER_RESOURCE_MANAGER_FAILURE"
)

// FaultKind is the caller-visible classification of an invocation failure.
type FaultKind string

const (
	FaultNone                FaultKind = ""
	FaultNotFound            FaultKind = "not_found"
	FaultUnauthorized        FaultKind = "unauthorized"
	FaultResourceUnavailable FaultKind = "resource_unavailable"
	FaultApplication         FaultKind = "application_fault"
	FaultSystem              FaultKind = "system_fault"
	FaultBadInput            FaultKind = "bad_input"
)

// FaultKindOf classifies an error returned by Container.Invoke.
func FaultKindOf(err error) FaultKind {
	if err == nil {
		return FaultNone
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return FaultSystem
	}
	switch richErr.TextCode {
	case ContainerErrorComponentNotFound:
		return FaultNotFound
	case ContainerErrorUnauthorized:
		return FaultUnauthorized
	case ContainerErrorResourceUnavailable:
		return FaultResourceUnavailable
	case ContainerErrorApplicationFault:
		return FaultApplication
	case ContainerErrorBadInput:
		return FaultBadInput
	default:
		return FaultSystem
	}
}

// ApplicationError marks an expected business failure. Plain errors returned
// by a handle are treated the same way; the wrapper lets business code attach
// a payload for the caller.
type ApplicationError struct {
	Err     error
	Payload any
}

func NewApplicationError(err error, payload any) *ApplicationError {
	return &ApplicationError{Err: err, Payload: payload}
}

func (e *ApplicationError) Error() string {
	if e == nil || e.Err == nil {
		return "application fault"
	}
	return e.Err.Error()
}

func (e *ApplicationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// SystemError marks an unexpected platform-level failure raised from business
// execution. The instance that produced it is never reused.
type SystemError struct {
	Cause error
}

func NewSystemError(cause error) *SystemError {
	return &SystemError{Cause: cause}
}

func (e *SystemError) Error() string {
	if e == nil || e.Cause == nil {
		return "system fault"
	}
	return "system fault: " + e.Cause.Error()
}

func (e *SystemError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// ApplicationPayload returns the payload attached to an application fault.
func ApplicationPayload(err error) (any, bool) {
	var appErr *ApplicationError
	if !errors.As(err, &appErr) || appErr == nil {
		return nil, false
	}
	return appErr.Payload, true
}

type panicError struct {
	value any
}

func (e panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}

func containerError(
	message string,
	category goerrors.Category,
	code int,
	textCode string,
	metadata map[string]any,
) *goerrors.Error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func containerWrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	textCode string,
	metadata map[string]any,
) *goerrors.Error {
	if source == nil {
		return containerError(message, category, code, textCode, metadata)
	}
	// goerrors.Wrap clones *goerrors.Error sources, which would hide the
	// original from errors.Is; keep the source in the chain instead.
	err := containerError(message, category, code, textCode, metadata)
	err.Source = source
	return err
}

func badInputError(message string, metadata map[string]any) *goerrors.Error {
	return containerError(message, goerrors.CategoryBadInput, http.StatusBadRequest, ContainerErrorBadInput, metadata)
}

func notFoundError(componentID string, metadata map[string]any) *goerrors.Error {
	return containerError(
		fmt.Sprintf("core: component %q is not deployed", strings.TrimSpace(componentID)),
		goerrors.CategoryNotFound,
		http.StatusNotFound,
		ContainerErrorComponentNotFound,
		metadata,
	)
}

func unauthorizedError(principal string, metadata map[string]any) *goerrors.Error {
	if strings.TrimSpace(principal) == "" {
		principal = "anonymous"
	}
	return containerError(
		fmt.Sprintf("core: unauthorized access by principal %q denied", principal),
		goerrors.CategoryAuthz,
		http.StatusForbidden,
		ContainerErrorUnauthorized,
		metadata,
	)
}

func resourceUnavailableError(source error, message string, metadata map[string]any) *goerrors.Error {
	return containerWrapError(
		source,
		goerrors.CategoryOperation,
		message,
		http.StatusServiceUnavailable,
		ContainerErrorResourceUnavailable,
		metadata,
	)
}

func applicationFault(source error, metadata map[string]any) *goerrors.Error {
	message := "application fault"
	if source != nil {
		message = source.Error()
	}
	return containerWrapError(
		source,
		goerrors.CategoryOperation,
		message,
		http.StatusUnprocessableEntity,
		ContainerErrorApplicationFault,
		metadata,
	)
}

func systemFault(source error, message string, metadata map[string]any) *goerrors.Error {
	return systemFaultWithCode(source, message, ContainerErrorSystemFault, metadata)
}

func systemFaultWithCode(source error, message string, textCode string, metadata map[string]any) *goerrors.Error {
	if strings.TrimSpace(message) == "" {
		message = "An unexpected error occurred"
	}
	return containerWrapError(
		source,
		goerrors.CategoryInternal,
		message,
		http.StatusInternalServerError,
		textCode,
		metadata,
	)
}

func withFaultMetadata(err error, metadata map[string]any) error {
	if err == nil || len(metadata) == 0 {
		return err
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return err
	}
	richErr.WithMetadata(metadata)
	return err
}
