package interview

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedPath        = errors.New("malformed object key")
	ErrUnknownUser          = errors.New("unknown user")
	ErrUnknownUserProject   = errors.New("user has no record for project")
	ErrUnresolvedProject    = errors.New("unresolved project")
	ErrDuplicateKey         = errors.New("duplicate key")
	ErrNotFound             = errors.New("not found")
	ErrInvalidState         = errors.New("invalid processing state")
	ErrUnknownProjectConfig = errors.New("no destination configured for project")
	ErrDuplicateArchive     = errors.New("record already archived")
	ErrInvalidInput         = errors.New("invalid input")
)

// UnresolvedReason identifies which dead end the resolver hit. Every failure
// mode is distinguishable; none is ever silently guessed around.
type UnresolvedReason string

const (
	ReasonNoActiveProjects   UnresolvedReason = "no-active-projects"
	ReasonNoReferrerMatch    UnresolvedReason = "no-referrer-match"
	ReasonNoInterviewerMatch UnresolvedReason = "no-interviewer-match"
	ReasonNoParticipantMatch UnresolvedReason = "no-participant-match"
	ReasonNoOverlap          UnresolvedReason = "no-overlap"
	ReasonAmbiguousOverlap   UnresolvedReason = "ambiguous-overlap"
)

type UnresolvedProjectError struct {
	Reason      UnresolvedReason
	Interviewer string
	Email       string
	Referrer    string
}

func (e *UnresolvedProjectError) Error() string {
	switch e.Reason {
	case ReasonNoActiveProjects:
		return "could not resolve project: no research projects are conducting interviews"
	case ReasonNoReferrerMatch:
		return fmt.Sprintf("could not resolve project: referrer url %s does not match any active project", e.Referrer)
	case ReasonNoInterviewerMatch:
		return fmt.Sprintf("could not resolve project: interviewer %s is not taking part in any active project", e.Interviewer)
	case ReasonNoParticipantMatch:
		return fmt.Sprintf("could not resolve project: participant %s is not taking part in any active project", e.Email)
	case ReasonNoOverlap:
		return fmt.Sprintf("could not resolve project: participant %s and interviewer %s active projects do not overlap", e.Email, e.Interviewer)
	case ReasonAmbiguousOverlap:
		return fmt.Sprintf("could not resolve project: participant %s and interviewer %s are taking part in more than one active project", e.Email, e.Interviewer)
	default:
		return "could not resolve project"
	}
}

func (e *UnresolvedProjectError) Is(target error) bool {
	return target == ErrUnresolvedProject
}

type MalformedPathError struct {
	Key string
}

func (e *MalformedPathError) Error() string {
	return fmt.Sprintf("malformed object key: %s", e.Key)
}

func (e *MalformedPathError) Is(target error) bool {
	return target == ErrMalformedPath
}

// InvalidStateError reports a record whose processing status does not permit
// the attempted operation.
type InvalidStateError struct {
	Key      string
	Status   ProcessingStatus
	Expected ProcessingStatus
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("record %s has status %q, expected %q", e.Key, e.Status, e.Expected)
}

func (e *InvalidStateError) Is(target error) bool {
	return target == ErrInvalidState
}
