package scheduling

import "errors"

// Kind names why a proposed booking was rejected. Every kind is recoverable by
// choosing another time (or resource/service).
type Kind string

const (
	KindPastTime                 Kind = "PastTime"
	KindOutsideBusinessHours     Kind = "OutsideBusinessHours"
	KindConflict                 Kind = "Conflict"
	KindResourceUnavailableDay   Kind = "ResourceUnavailableDay"
	KindUnknownResourceOrService Kind = "UnknownResourceOrService"
)

var (
	ErrInvalidRequest   = errors.New("scheduling: invalid request")
	ErrUnknownResource  = errors.New("scheduling: unknown or inactive resource")
	ErrUnknownService   = errors.New("scheduling: unknown service")
	ErrNotReschedulable = errors.New("scheduling: booking is no longer active")
)

// Result is the outcome of a validation or commit attempt.
type Result struct {
	Valid           bool   `json:"valid"`
	Kind            Kind   `json:"error_kind,omitempty"`
	Message         string `json:"message,omitempty"`
	ConflictingTime string `json:"conflicting_time,omitempty"`
}

func valid() Result {
	return Result{Valid: true}
}

func reject(kind Kind, msg string) Result {
	return Result{Kind: kind, Message: msg}
}
