/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package errors

import (
	"fmt"
	"net/http"
	"strings"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

const FleetPrefix = "Fleet."

/*
   5-digit Error Code Convention: [xx][yyy]
   [xx] Business ID (00-99), used to distinguish errors from different subsystems.
   00: General errors
   01: Job-related errors
   02: Quota-related errors
   03: Cluster/executor-related errors
   [yyy] Error code range (000-999)
*/

// public: 00xxx
const (
	InternalError = FleetPrefix + "00001"
	BadRequest    = FleetPrefix + "00002"
	Forbidden     = FleetPrefix + "00003"
	AlreadyExist  = FleetPrefix + "00004"
	NotFound      = FleetPrefix + "00005"
)

// job: 01xxx
const (
	JobNotFound   = FleetPrefix + "01001"
	QueueNotFound = FleetPrefix + "01002"
	ConfigInvalid = FleetPrefix + "01003"
)

// quota: 02xxx
const (
	QuotaInsufficient = FleetPrefix + "02001"
	QuotaNotFound     = FleetPrefix + "02002"
)

// cluster/executor: 03xxx
const (
	ExecutorUnavailable = FleetPrefix + "03001"
	NoCandidate         = FleetPrefix + "03002"
	DriverTransient     = FleetPrefix + "03003"
	DriverPermanent     = FleetPrefix + "03004"
	ClusterNotFound     = FleetPrefix + "03005"
	VdcNotFound         = FleetPrefix + "03006"
)

// IsFleet returns true if the specified error carries a Fleet error reason.
func IsFleet(err error) bool {
	if err == nil {
		return false
	}
	return strings.HasPrefix(string(apierrors.ReasonForError(err)), FleetPrefix)
}

func IsAlreadyExist(err error) bool {
	return apierrors.ReasonForError(err) == AlreadyExist
}

func IsBadRequest(err error) bool {
	reason := apierrors.ReasonForError(err)
	return reason == BadRequest || reason == ConfigInvalid
}

func IsInternal(err error) bool {
	return apierrors.ReasonForError(err) == InternalError
}

func IsConfigInvalid(err error) bool {
	return apierrors.ReasonForError(err) == ConfigInvalid
}

func IsQuotaInsufficient(err error) bool {
	return apierrors.ReasonForError(err) == QuotaInsufficient
}

func IsNoCandidate(err error) bool {
	return apierrors.ReasonForError(err) == NoCandidate
}

func IsExecutorUnavailable(err error) bool {
	return apierrors.ReasonForError(err) == ExecutorUnavailable
}

// IsDriverTransient reports whether the error is a retryable backend failure:
// the backend was unreachable, timed out, or answered with a 5xx.
func IsDriverTransient(err error) bool {
	return apierrors.ReasonForError(err) == DriverTransient
}

// IsDriverPermanent reports whether the backend rejected the request for good.
func IsDriverPermanent(err error) bool {
	return apierrors.ReasonForError(err) == DriverPermanent
}

func IsNotFound(err error) bool {
	reason := apierrors.ReasonForError(err)
	if reason == NotFound || reason == JobNotFound || reason == QueueNotFound ||
		reason == QuotaNotFound || reason == ClusterNotFound || reason == VdcNotFound {
		return true
	}
	return apierrors.IsNotFound(err)
}

func IgnoreNotFound(err error) error {
	if err == nil || IsNotFound(err) {
		return nil
	}
	return err
}

func GetErrorCode(err error) string {
	if err == nil || !IsFleet(err) {
		return ""
	}
	return string(apierrors.ReasonForError(err))
}

func NewBadRequest(message string) *apierrors.StatusError {
	return &apierrors.StatusError{ErrStatus: metav1.Status{
		Status:  metav1.StatusFailure,
		Code:    http.StatusBadRequest,
		Reason:  BadRequest,
		Message: fmt.Sprintf("Bad request. %s", message),
	}}
}

func NewInternalError(message string) *apierrors.StatusError {
	return &apierrors.StatusError{ErrStatus: metav1.Status{
		Status:  metav1.StatusFailure,
		Code:    http.StatusInternalServerError,
		Reason:  InternalError,
		Message: fmt.Sprintf("Internal error. %s", message),
	}}
}

func NewAlreadyExist(message string) *apierrors.StatusError {
	return &apierrors.StatusError{ErrStatus: metav1.Status{
		Status:  metav1.StatusFailure,
		Code:    http.StatusConflict,
		Reason:  AlreadyExist,
		Message: message,
	}}
}

func NewForbidden(message string) *apierrors.StatusError {
	return &apierrors.StatusError{ErrStatus: metav1.Status{
		Status:  metav1.StatusFailure,
		Code:    http.StatusForbidden,
		Reason:  Forbidden,
		Message: message,
	}}
}

func NotFoundErrorCode(kind string) metav1.StatusReason {
	switch kind {
	case "Job":
		return JobNotFound
	case "JobQueue":
		return QueueNotFound
	case "ProjectQuota", "ProjectVdcQuota":
		return QuotaNotFound
	case "Cluster":
		return ClusterNotFound
	case "Vdc":
		return VdcNotFound
	default:
		return NotFound
	}
}

func NewNotFound(kind, name string) *apierrors.StatusError {
	return &apierrors.StatusError{ErrStatus: metav1.Status{
		Status: metav1.StatusFailure,
		Code:   http.StatusNotFound,
		Reason: NotFoundErrorCode(kind),
		Details: &metav1.StatusDetails{
			Kind: kind,
			Name: name,
		},
		Message: fmt.Sprintf("%s %s not found.", kind, name),
	}}
}

func NewNotFoundWithMessage(message string) *apierrors.StatusError {
	return &apierrors.StatusError{ErrStatus: metav1.Status{
		Status:  metav1.StatusFailure,
		Code:    http.StatusNotFound,
		Reason:  NotFound,
		Message: message,
	}}
}

func NewConfigInvalid(message string) *apierrors.StatusError {
	return &apierrors.StatusError{ErrStatus: metav1.Status{
		Status:  metav1.StatusFailure,
		Code:    http.StatusBadRequest,
		Reason:  ConfigInvalid,
		Message: fmt.Sprintf("Invalid executor config. %s", message),
	}}
}

func NewQuotaInsufficient(message string) *apierrors.StatusError {
	return &apierrors.StatusError{ErrStatus: metav1.Status{
		Status:  metav1.StatusFailure,
		Code:    http.StatusConflict,
		Reason:  QuotaInsufficient,
		Message: message,
	}}
}

func NewNoCandidate(message string) *apierrors.StatusError {
	return &apierrors.StatusError{ErrStatus: metav1.Status{
		Status:  metav1.StatusFailure,
		Code:    http.StatusConflict,
		Reason:  NoCandidate,
		Message: message,
	}}
}

func NewExecutorUnavailable(executor string) *apierrors.StatusError {
	return &apierrors.StatusError{ErrStatus: metav1.Status{
		Status:  metav1.StatusFailure,
		Code:    http.StatusServiceUnavailable,
		Reason:  ExecutorUnavailable,
		Message: fmt.Sprintf("the executor(%s) is not configured", executor),
	}}
}

func NewDriverTransient(message string) *apierrors.StatusError {
	return &apierrors.StatusError{ErrStatus: metav1.Status{
		Status:  metav1.StatusFailure,
		Code:    http.StatusServiceUnavailable,
		Reason:  DriverTransient,
		Message: message,
	}}
}

func NewDriverPermanent(message string) *apierrors.StatusError {
	return &apierrors.StatusError{ErrStatus: metav1.Status{
		Status:  metav1.StatusFailure,
		Code:    http.StatusUnprocessableEntity,
		Reason:  DriverPermanent,
		Message: message,
	}}
}
