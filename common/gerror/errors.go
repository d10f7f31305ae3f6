package gerror

import (
	"errors"
	"net/http"
)

const (
	ErrCodeInternal              Code = "Internal"
	ErrCodeValidationFailed      Code = "ValidationFailed"
	ErrCodeInvalidQueryParameter Code = "InvalidQueryParameter"
	ErrCodeNotFound              Code = "NotFound"
	ErrCodeDuplicateJob          Code = "DuplicateJob"
	ErrCodeAlreadyComplete       Code = "AlreadyComplete"
	ErrCodeJobInFlight           Code = "JobInFlight"
	ErrCodeMissingInput          Code = "MissingInput"
	ErrCodeCommandFailed         Code = "CommandFailed"
	ErrCodeNoOutputs             Code = "NoOutputs"
	ErrCodeUnknownReference      Code = "UnknownReference"
	ErrCodeTimeout               Code = "Timeout"
	ErrHttpOperationFailed       Code = "HttpOperationFailed"
	ErrAssetUploadFailed         Code = "AssetUploadFailed"
)

// ToError locates an Error in the provided error chain and returns it if it
// matches the provided code. Otherwise, returns nil.
func ToError(err error, code Code) *Error {
	if err == nil {
		return nil
	}
	var gErr Error
	if errors.As(err, &gErr) && gErr.Code() == code {
		return &gErr
	}
	return nil
}

func NewErrInternal() Error {
	return NewError(
		"An internal server error occurred",
		AudienceExternal,
		ErrCodeInternal,
		http.StatusInternalServerError,
		nil,
	)
}

func ToInternal(err error) *Error {
	return ToError(err, ErrCodeInternal)
}

func IsInternal(err error) bool {
	return ToInternal(err) != nil
}

func NewErrValidationFailed(message string) Error {
	return NewError(message, AudienceExternal, ErrCodeValidationFailed, http.StatusBadRequest, nil)
}

func ToValidationFailed(err error) *Error {
	return ToError(err, ErrCodeValidationFailed)
}

func IsValidationFailed(err error) bool {
	return ToValidationFailed(err) != nil
}

func NewErrInvalidQueryParameter(message string) Error {
	return NewError(message, AudienceExternal, ErrCodeInvalidQueryParameter, http.StatusBadRequest, nil)
}

func ToInvalidQueryParameter(err error) *Error {
	return ToError(err, ErrCodeInvalidQueryParameter)
}

func IsInvalidQueryParameter(err error) bool {
	return ToInvalidQueryParameter(err) != nil
}

func NewErrNotFound(message string) Error {
	return NewError(message, AudienceExternal, ErrCodeNotFound, http.StatusNotFound, nil)
}

func ToNotFound(err error) *Error {
	return ToError(err, ErrCodeNotFound)
}

func IsNotFound(err error) bool {
	return ToNotFound(err) != nil
}

func NewErrDuplicateJob(message string) Error {
	return NewError(message, AudienceExternal, ErrCodeDuplicateJob, http.StatusBadRequest, nil)
}

func ToDuplicateJob(err error) *Error {
	return ToError(err, ErrCodeDuplicateJob)
}

func IsDuplicateJob(err error) bool {
	return ToDuplicateJob(err) != nil
}

func NewErrAlreadyComplete(message string) Error {
	return NewError(message, AudienceExternal, ErrCodeAlreadyComplete, http.StatusBadRequest, nil)
}

func ToAlreadyComplete(err error) *Error {
	return ToError(err, ErrCodeAlreadyComplete)
}

func IsAlreadyComplete(err error) bool {
	return ToAlreadyComplete(err) != nil
}

func NewErrJobInFlight(message string) Error {
	return NewError(message, AudienceExternal, ErrCodeJobInFlight, http.StatusBadRequest, nil)
}

func ToJobInFlight(err error) *Error {
	return ToError(err, ErrCodeJobInFlight)
}

func IsJobInFlight(err error) bool {
	return ToJobInFlight(err) != nil
}

func NewErrMissingInput(message string) Error {
	return NewError(message, AudienceInternal, ErrCodeMissingInput, http.StatusInternalServerError, nil)
}

func ToMissingInput(err error) *Error {
	return ToError(err, ErrCodeMissingInput)
}

func IsMissingInput(err error) bool {
	return ToMissingInput(err) != nil
}

func NewErrCommandFailed(message string, err error) Error {
	return NewError(message, AudienceInternal, ErrCodeCommandFailed, http.StatusInternalServerError, err)
}

func ToCommandFailed(err error) *Error {
	return ToError(err, ErrCodeCommandFailed)
}

func IsCommandFailed(err error) bool {
	return ToCommandFailed(err) != nil
}

func NewErrNoOutputs(message string) Error {
	return NewError(message, AudienceInternal, ErrCodeNoOutputs, http.StatusInternalServerError, nil)
}

func ToNoOutputs(err error) *Error {
	return ToError(err, ErrCodeNoOutputs)
}

func IsNoOutputs(err error) bool {
	return ToNoOutputs(err) != nil
}

func NewErrUnknownReference(message string) Error {
	return NewError(message, AudienceInternal, ErrCodeUnknownReference, http.StatusInternalServerError, nil)
}

func ToUnknownReference(err error) *Error {
	return ToError(err, ErrCodeUnknownReference)
}

func IsUnknownReference(err error) bool {
	return ToUnknownReference(err) != nil
}

func NewErrTimeout(description string) Error {
	return NewError("Timeout: "+description, AudienceInternal, ErrCodeTimeout, http.StatusInternalServerError, nil)
}

func ToTimeout(err error) *Error {
	return ToError(err, ErrCodeTimeout)
}

func IsTimeout(err error) bool {
	return ToTimeout(err) != nil
}

func NewErrAssetUploadFailed(message string, err error) Error {
	return NewError(message, AudienceInternal, ErrAssetUploadFailed, http.StatusInternalServerError, err)
}

func ToAssetUploadFailed(err error) *Error {
	return ToError(err, ErrAssetUploadFailed)
}

func IsAssetUploadFailed(err error) bool {
	return ToAssetUploadFailed(err) != nil
}
