package interview

import (
	"context"
	"fmt"
	"strings"

	"github.com/civichealth/interviewrelay/internal/logger"
)

const (
	interviewTypeOnDemand = "INT-O"
	interviewTypeLive     = "INT-L"

	appointmentSuffixLayout = "2006-01-02-1504"
)

// Resolution is the resolver's output: the identity a file was attributed to
// and the deterministic basename its processed artifacts will carry.
type Resolution struct {
	ProjectAcronym            string
	FilenamePrefix            string
	ProjectID                 string
	AnonProjectSpecificUserID string
	TargetBasename            string
}

// Resolver attributes an incoming file to a research project and an
// anonymized participant identity. It holds no state across calls; the
// active-project snapshot is supplied by the caller and fetched once per
// ingestion run.
type Resolver struct {
	identity   IdentityService
	scheduling SchedulingService
	log        *logger.Logger
}

func NewResolver(identity IdentityService, scheduling SchedulingService, log *logger.Logger) *Resolver {
	if log == nil {
		log = logger.New()
	}
	return &Resolver{identity: identity, scheduling: scheduling, log: log}
}

// Resolve computes the target identity for one file. The activeProjects
// snapshot is treated as read-only. Every dead end returns a distinguishable
// error; ambiguity is never resolved by guessing.
func (r *Resolver) Resolve(ctx context.Context, meta FileMetadata, activeProjects []Project) (Resolution, error) {
	if len(activeProjects) == 0 {
		return Resolution{}, &UnresolvedProjectError{Reason: ReasonNoActiveProjects, Email: meta.Email}
	}
	userID, err := r.identity.UserIDByEmail(ctx, meta.Email)
	if err != nil {
		return Resolution{}, fmt.Errorf("resolving user id for %s: %w", meta.Email, err)
	}
	if meta.OnDemand() {
		return r.resolveOnDemand(ctx, meta, userID, activeProjects)
	}
	return r.resolveLive(ctx, meta, userID, activeProjects)
}

func (r *Resolver) resolveOnDemand(ctx context.Context, meta FileMetadata, userID string, activeProjects []Project) (Resolution, error) {
	var project *Project
	for i := range activeProjects {
		if activeProjects[i].OnDemandReferrer != "" && activeProjects[i].OnDemandReferrer == meta.Referrer {
			project = &activeProjects[i]
			break
		}
	}
	if project == nil {
		return Resolution{}, &UnresolvedProjectError{Reason: ReasonNoReferrerMatch, Referrer: meta.Referrer, Email: meta.Email}
	}
	anonID, err := r.anonUserID(ctx, userID, project.ProjectID)
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{
		ProjectAcronym:            project.Acronym,
		FilenamePrefix:            project.FilenamePrefix,
		ProjectID:                 project.ProjectID,
		AnonProjectSpecificUserID: anonID,
		TargetBasename:            fmt.Sprintf("%s_%s_%s_%s", project.FilenamePrefix, interviewTypeOnDemand, anonID, meta.QuestionIndex),
	}, nil
}

func (r *Resolver) resolveLive(ctx context.Context, meta FileMetadata, userID string, activeProjects []Project) (Resolution, error) {
	var project *Project
	if len(activeProjects) == 1 {
		// Single-project shortcut: with only one active project there is
		// nothing to disambiguate.
		project = &activeProjects[0]
	} else {
		selected, err := r.disambiguateLive(ctx, meta, userID, activeProjects)
		if err != nil {
			return Resolution{}, err
		}
		project = selected
	}

	anonID, err := r.anonUserID(ctx, userID, project.ProjectID)
	if err != nil {
		return Resolution{}, err
	}
	basename := fmt.Sprintf("%s_%s_%s_%s", project.FilenamePrefix, interviewTypeLive, interviewerInitials(*project, meta.Interviewer), anonID)
	if suffix := r.appointmentSuffix(ctx, *project, anonID, meta.Email); suffix != "" {
		basename += "_" + suffix
	}
	return Resolution{
		ProjectAcronym:            project.Acronym,
		FilenamePrefix:            project.FilenamePrefix,
		ProjectID:                 project.ProjectID,
		AnonProjectSpecificUserID: anonID,
		TargetBasename:            basename,
	}, nil
}

// disambiguateLive narrows multiple active projects down to one using the
// interviewer roster first, then the participant's own enrolments, then the
// intersection of the two. More than one common match is fatal for the file:
// it needs data correction, not a tie-break.
func (r *Resolver) disambiguateLive(ctx context.Context, meta FileMetadata, userID string, activeProjects []Project) (*Project, error) {
	var interviewerMatches []*Project
	for i := range activeProjects {
		if _, ok := activeProjects[i].Interviewers[meta.Interviewer]; ok {
			interviewerMatches = append(interviewerMatches, &activeProjects[i])
		}
	}
	if len(interviewerMatches) == 0 {
		return nil, &UnresolvedProjectError{Reason: ReasonNoInterviewerMatch, Interviewer: meta.Interviewer, Email: meta.Email}
	}
	if len(interviewerMatches) == 1 {
		return interviewerMatches[0], nil
	}

	userProjects, err := r.identity.UserProjects(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing projects of user %s: %w", userID, err)
	}
	enrolled := make(map[string]bool, len(userProjects))
	for _, up := range userProjects {
		enrolled[up.ProjectID] = true
	}
	var participantMatches []*Project
	for i := range activeProjects {
		if enrolled[activeProjects[i].ProjectID] {
			participantMatches = append(participantMatches, &activeProjects[i])
		}
	}
	if len(participantMatches) == 0 {
		return nil, &UnresolvedProjectError{Reason: ReasonNoParticipantMatch, Interviewer: meta.Interviewer, Email: meta.Email}
	}

	inInterviewerMatches := make(map[string]bool, len(interviewerMatches))
	for _, p := range interviewerMatches {
		inInterviewerMatches[p.ProjectID] = true
	}
	var commonMatches []*Project
	for _, p := range participantMatches {
		if inInterviewerMatches[p.ProjectID] {
			commonMatches = append(commonMatches, p)
		}
	}
	switch len(commonMatches) {
	case 0:
		return nil, &UnresolvedProjectError{Reason: ReasonNoOverlap, Interviewer: meta.Interviewer, Email: meta.Email}
	case 1:
		return commonMatches[0], nil
	default:
		return nil, &UnresolvedProjectError{Reason: ReasonAmbiguousOverlap, Interviewer: meta.Interviewer, Email: meta.Email}
	}
}

func (r *Resolver) anonUserID(ctx context.Context, userID, projectID string) (string, error) {
	userProjects, err := r.identity.UserProjects(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("listing projects of user %s: %w", userID, err)
	}
	for _, up := range userProjects {
		if up.ProjectID == projectID {
			return up.AnonProjectSpecificUserID, nil
		}
	}
	return "", fmt.Errorf("%w: user %s, project %s", ErrUnknownUserProject, userID, projectID)
}

// appointmentSuffix returns a _YYYY-MM-DD-HHMM style timestamp when the
// scheduling service reports exactly one appointment for the participant
// under the project's configured appointment types. Zero or several matches
// omit the suffix silently; a lookup failure is logged, never fatal.
func (r *Resolver) appointmentSuffix(ctx context.Context, project Project, anonID, email string) string {
	if r.scheduling == nil || len(project.AppointmentTypeIDs) == 0 {
		return ""
	}
	appointments, err := r.scheduling.AppointmentsByTypeIDs(ctx, project.AppointmentTypeIDs)
	if err != nil {
		r.log.WithError(err).WithField("project", project.Acronym).Warn("appointment lookup failed; omitting timestamp suffix")
		return ""
	}
	var matches []Appointment
	for _, a := range appointments {
		if (anonID != "" && a.AnonProjectSpecificUserID == anonID) || (a.AnonProjectSpecificUserID == "" && a.ParticipantEmail == email) {
			matches = append(matches, a)
		}
	}
	if len(matches) != 1 {
		return ""
	}
	return matches[0].Time.Format(appointmentSuffixLayout)
}

// interviewerInitials prefers the roster-configured initials; when the
// single-project shortcut selected a project whose roster does not list the
// interviewer, initials are derived from the display name so resolution
// stays deterministic.
func interviewerInitials(project Project, interviewer string) string {
	if entry, ok := project.Interviewers[interviewer]; ok && entry.Initials != "" {
		return entry.Initials
	}
	var initials []rune
	for _, word := range strings.Fields(interviewer) {
		initials = append(initials, []rune(word)[0])
	}
	return string(initials)
}
