/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

/*
Package errors provides structured error handling for FlyStream.

The errors package implements a structured error system with:
  - Error categories (Validation, Request, Capacity, IO, Lifecycle)
  - Error codes for programmatic handling
  - User-friendly error messages
  - Contextual information for debugging
  - Error wrapping for root cause analysis

Error Categories:
  - ValidationError: Malformed submit parameters
  - RequestError: Misuse of a request id (unknown, double wait)
  - CapacityError: Request table exhaustion and allocation timeouts
  - IOError: Seek and read failures on the underlying device
  - LifecycleError: Scheduler shutdown and request cancellation

Result Codes:
=============

The scheduler stores a request's outcome as a single signed 32-bit value:
bytes transferred when non-negative, a negated ErrorCode otherwise. The
ResultCode/FromResult helpers convert between the two representations so
that abort, I/O failure, and shutdown remain distinguishable at the wait
boundary.
*/
package errors

import (
	"fmt"
)

// ErrorCode represents a unique error identifier.
type ErrorCode int

const (
	// Validation errors (1000-1999)
	ErrCodeValidation     ErrorCode = 1000
	ErrCodeNilBuffer      ErrorCode = 1001
	ErrCodeNegativeLength ErrorCode = 1002
	ErrCodeNegativeOffset ErrorCode = 1003
	ErrCodeBadDeadline    ErrorCode = 1004
	ErrCodeNilDevice      ErrorCode = 1005

	// Request usage errors (2000-2999)
	ErrCodeRequest        ErrorCode = 2000
	ErrCodeUnknownRequest ErrorCode = 2001
	ErrCodeDoubleWait     ErrorCode = 2002

	// Capacity errors (3000-3999)
	ErrCodeCapacity       ErrorCode = 3000
	ErrCodeTableFull      ErrorCode = 3001
	ErrCodeAcquireTimeout ErrorCode = 3002

	// I/O errors (4000-4999)
	ErrCodeIO         ErrorCode = 4000
	ErrCodeSeekFailed ErrorCode = 4001
	ErrCodeReadFailed ErrorCode = 4002

	// Lifecycle errors (5000-5999)
	ErrCodeLifecycle ErrorCode = 5000
	ErrCodeClosed    ErrorCode = 5001
	ErrCodeCanceled  ErrorCode = 5002
)

// Category represents the error category.
type Category string

const (
	CategoryValidation Category = "VALIDATION"
	CategoryRequest    Category = "REQUEST"
	CategoryCapacity   Category = "CAPACITY"
	CategoryIO         Category = "IO"
	CategoryLifecycle  Category = "LIFECYCLE"
)

// FlyStreamError represents a structured error in FlyStream.
type FlyStreamError struct {
	Code     ErrorCode
	Category Category
	Message  string
	Detail   string
	Hint     string
	Cause    error
}

// Error implements the error interface.
func (e *FlyStreamError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("ERROR %d (%s): %s - %s", e.Code, e.Category, e.Message, e.Detail)
	}
	return fmt.Sprintf("ERROR %d (%s): %s", e.Code, e.Category, e.Message)
}

// Unwrap returns the underlying cause.
func (e *FlyStreamError) Unwrap() error {
	return e.Cause
}

// UserMessage returns a user-friendly error message.
func (e *FlyStreamError) UserMessage() string {
	msg := fmt.Sprintf("ERROR: %s", e.Message)
	if e.Detail != "" {
		msg += fmt.Sprintf(" (%s)", e.Detail)
	}
	if e.Hint != "" {
		msg += fmt.Sprintf("\nHINT: %s", e.Hint)
	}
	return msg
}

// WithDetail adds detail to the error.
func (e *FlyStreamError) WithDetail(detail string) *FlyStreamError {
	e.Detail = detail
	return e
}

// WithCause adds a cause to the error.
func (e *FlyStreamError) WithCause(cause error) *FlyStreamError {
	e.Cause = cause
	return e
}

// ============================================================================
// Validation Error Constructors
// ============================================================================

// NewValidationError creates a new validation error.
func NewValidationError(message string) *FlyStreamError {
	return &FlyStreamError{
		Code:     ErrCodeValidation,
		Category: CategoryValidation,
		Message:  message,
	}
}

// NilBuffer creates an error for a missing destination buffer.
func NilBuffer() *FlyStreamError {
	return &FlyStreamError{
		Code:     ErrCodeNilBuffer,
		Category: CategoryValidation,
		Message:  "destination buffer is nil",
		Hint:     "Allocate a buffer at least as large as the requested length",
	}
}

// NegativeLength creates an error for a negative read length.
func NegativeLength(length int) *FlyStreamError {
	return &FlyStreamError{
		Code:     ErrCodeNegativeLength,
		Category: CategoryValidation,
		Message:  fmt.Sprintf("read length must be non-negative, got %d", length),
	}
}

// NegativeOffset creates an error for a negative device offset.
func NegativeOffset(offset int64) *FlyStreamError {
	return &FlyStreamError{
		Code:     ErrCodeNegativeOffset,
		Category: CategoryValidation,
		Message:  fmt.Sprintf("device offset must be non-negative, got %d", offset),
	}
}

// BadDeadline creates an error for a negative deadline offset.
func BadDeadline() *FlyStreamError {
	return &FlyStreamError{
		Code:     ErrCodeBadDeadline,
		Category: CategoryValidation,
		Message:  "deadline offset must be non-negative for timed requests",
		Hint:     "Use Submit for requests with no deadline",
	}
}

// NilDevice creates an error for a missing device descriptor.
func NilDevice() *FlyStreamError {
	return &FlyStreamError{
		Code:     ErrCodeNilDevice,
		Category: CategoryValidation,
		Message:  "device descriptor is nil",
	}
}

// ============================================================================
// Request Usage Error Constructors
// ============================================================================

// UnknownRequest creates an error for an id that names no live request.
func UnknownRequest(id int32) *FlyStreamError {
	return &FlyStreamError{
		Code:     ErrCodeUnknownRequest,
		Category: CategoryRequest,
		Message:  fmt.Sprintf("no such request: %d", id),
		Hint:     "The id may already have been reclaimed by Wait",
	}
}

// DoubleWait creates an error for a second concurrent wait on one request.
func DoubleWait(id int32) *FlyStreamError {
	return &FlyStreamError{
		Code:     ErrCodeDoubleWait,
		Category: CategoryRequest,
		Message:  fmt.Sprintf("request %d already has a waiter", id),
		Hint:     "Exactly one goroutine may wait on a request",
	}
}

// ============================================================================
// Capacity Error Constructors
// ============================================================================

// TableFull creates an error for request table exhaustion.
func TableFull(capacity int) *FlyStreamError {
	return &FlyStreamError{
		Code:     ErrCodeTableFull,
		Category: CategoryCapacity,
		Message:  "request table is full",
		Detail:   fmt.Sprintf("all %d slots are in use", capacity),
		Hint:     "Wait for an outstanding request to complete and retry",
	}
}

// AcquireTimeout creates an error for an allocation lock timeout.
func AcquireTimeout() *FlyStreamError {
	return &FlyStreamError{
		Code:     ErrCodeAcquireTimeout,
		Category: CategoryCapacity,
		Message:  "timed out acquiring the allocation lock",
	}
}

// ============================================================================
// I/O Error Constructors
// ============================================================================

// SeekFailed creates an error for a failed device seek.
func SeekFailed(offset int64, cause error) *FlyStreamError {
	return &FlyStreamError{
		Code:     ErrCodeSeekFailed,
		Category: CategoryIO,
		Message:  fmt.Sprintf("seek to offset %d failed", offset),
		Cause:    cause,
	}
}

// ReadFailed creates an error for a failed device read.
func ReadFailed(cause error) *FlyStreamError {
	return &FlyStreamError{
		Code:     ErrCodeReadFailed,
		Category: CategoryIO,
		Message:  "device read failed",
		Cause:    cause,
	}
}

// ============================================================================
// Lifecycle Error Constructors
// ============================================================================

// SchedulerClosed creates an error for operations on a closed scheduler.
func SchedulerClosed() *FlyStreamError {
	return &FlyStreamError{
		Code:     ErrCodeClosed,
		Category: CategoryLifecycle,
		Message:  "scheduler is closed",
	}
}

// Canceled creates an error for an aborted request.
func Canceled(id int32) *FlyStreamError {
	return &FlyStreamError{
		Code:     ErrCodeCanceled,
		Category: CategoryLifecycle,
		Message:  fmt.Sprintf("request %d was aborted", id),
	}
}

// ============================================================================
// Helper Functions
// ============================================================================

// IsValidationError checks if an error is a validation error.
func IsValidationError(err error) bool {
	if e, ok := err.(*FlyStreamError); ok {
		return e.Category == CategoryValidation
	}
	return false
}

// IsCapacityError checks if an error is a capacity error.
func IsCapacityError(err error) bool {
	if e, ok := err.(*FlyStreamError); ok {
		return e.Category == CategoryCapacity
	}
	return false
}

// IsIOError checks if an error is an I/O error.
func IsIOError(err error) bool {
	if e, ok := err.(*FlyStreamError); ok {
		return e.Category == CategoryIO
	}
	return false
}

// IsCanceled checks if an error reports an aborted request.
func IsCanceled(err error) bool {
	if e, ok := err.(*FlyStreamError); ok {
		return e.Code == ErrCodeCanceled
	}
	return false
}

// GetCode returns the error code if it's a FlyStreamError, or 0 otherwise.
func GetCode(err error) ErrorCode {
	if e, ok := err.(*FlyStreamError); ok {
		return e.Code
	}
	return 0
}

// ResultCode returns the negative result value that encodes err in a
// request's result field. Non-FlyStream errors map to the generic I/O code.
func ResultCode(err error) int32 {
	if code := GetCode(err); code != 0 {
		return -int32(code)
	}
	return -int32(ErrCodeIO)
}

// FromResult reconstructs an error from a negative result value. It returns
// nil for non-negative results.
func FromResult(result int32) *FlyStreamError {
	if result >= 0 {
		return nil
	}
	code := ErrorCode(-result)
	switch {
	case code == ErrCodeCanceled:
		return &FlyStreamError{Code: code, Category: CategoryLifecycle, Message: "request was aborted"}
	case code >= ErrCodeLifecycle:
		return &FlyStreamError{Code: code, Category: CategoryLifecycle, Message: "scheduler shut down before completion"}
	case code >= ErrCodeIO:
		return &FlyStreamError{Code: code, Category: CategoryIO, Message: "device I/O failed"}
	case code >= ErrCodeCapacity:
		return &FlyStreamError{Code: code, Category: CategoryCapacity, Message: "capacity exhausted"}
	case code >= ErrCodeRequest:
		return &FlyStreamError{Code: code, Category: CategoryRequest, Message: "request misuse"}
	default:
		return &FlyStreamError{Code: code, Category: CategoryValidation, Message: "invalid request parameters"}
	}
}

// FormatError formats an error for user display.
func FormatError(err error) string {
	if e, ok := err.(*FlyStreamError); ok {
		return e.UserMessage()
	}
	return fmt.Sprintf("ERROR: %v", err)
}
