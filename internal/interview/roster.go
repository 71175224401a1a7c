package interview

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"path"
	"sort"
	"time"

	"github.com/civichealth/interviewrelay/internal/logger"
)

// RosterExporter pushes a participant roster CSV to each project's remote
// destination so the receiving team can match anonymised filenames back to
// participants. Only projects that opted in via ParticipantDataToSDHS are
// exported.
type RosterExporter struct {
	projects     ProjectStore
	identity     IdentityService
	scheduling   SchedulingService
	destinations DestinationResolver
	dialer       RemoteDialer
	now          func() time.Time
	log          *logger.Logger
}

type RosterConfig struct {
	Now func() time.Time
}

func NewRosterExporter(projects ProjectStore, identity IdentityService, scheduling SchedulingService, destinations DestinationResolver, dialer RemoteDialer, cfg RosterConfig, log *logger.Logger) *RosterExporter {
	if log == nil {
		log = logger.New()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &RosterExporter{
		projects:     projects,
		identity:     identity,
		scheduling:   scheduling,
		destinations: destinations,
		dialer:       dialer,
		now:          now,
		log:          log.WithStage("roster"),
	}
}

var rosterHeader = []string{
	"anon_project_specific_user_id",
	"first_name",
	"last_name",
	"email",
	"appointment_type",
	"appointment_datetime",
}

// Run exports the roster of every opted-in active project and returns how
// many rosters it uploaded. A failing project is logged and skipped so one
// bad destination cannot block the rest.
func (r *RosterExporter) Run(ctx context.Context) (int, error) {
	projects, err := r.projects.ActiveProjects(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing active projects: %w", err)
	}

	exported := 0
	var errs []error
	for _, p := range projects {
		if !p.ParticipantDataToSDHS {
			continue
		}
		if err := r.exportProject(ctx, p); err != nil {
			r.log.WithError(err).WithField("project", p.Acronym).Error("roster export failed")
			errs = append(errs, err)
			continue
		}
		r.log.WithField("project", p.Acronym).Info("roster exported")
		exported++
	}
	return exported, errors.Join(errs...)
}

func (r *RosterExporter) exportProject(ctx context.Context, p Project) error {
	users, err := r.identity.UsersByProject(ctx, p.ProjectID)
	if err != nil {
		return fmt.Errorf("listing users for project %s: %w", p.Acronym, err)
	}

	appointments := map[string][]Appointment{}
	if r.scheduling != nil && len(p.AppointmentTypeIDs) > 0 {
		found, err := r.scheduling.AppointmentsByTypeIDs(ctx, p.AppointmentTypeIDs)
		if err != nil {
			return fmt.Errorf("listing appointments for project %s: %w", p.Acronym, err)
		}
		for _, a := range found {
			appointments[a.ParticipantEmail] = append(appointments[a.ParticipantEmail], a)
		}
	}

	rows := buildRosterRows(users, appointments)

	dest, err := r.destinations.Destination(p.Acronym)
	if err != nil {
		return err
	}
	session, err := r.dialer.Dial(ctx, dest)
	if err != nil {
		return fmt.Errorf("connecting to destination for project %s: %w", p.Acronym, err)
	}
	defer session.Close()

	filename := fmt.Sprintf("%s_participants_%s.csv", p.Acronym, r.now().UTC().Format("2006-01-02"))
	remotePath := path.Join(dest.Folder, filename)
	if dir := path.Dir(remotePath); dir != "." && dir != "/" {
		if err := session.MkdirAll(dir); err != nil {
			return fmt.Errorf("creating remote directory %s: %w", dir, err)
		}
	}
	w, err := session.Create(remotePath)
	if err != nil {
		return fmt.Errorf("creating remote file %s: %w", remotePath, err)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(rosterHeader); err != nil {
		_ = w.Close()
		return fmt.Errorf("writing roster header: %w", err)
	}
	if err := cw.WriteAll(rows); err != nil {
		_ = w.Close()
		return fmt.Errorf("writing roster rows: %w", err)
	}
	return w.Close()
}

// buildRosterRows emits one row per user and appointment; users without an
// appointment still get a row with the appointment columns blank. Rows are
// sorted by anonymised id so repeated exports diff cleanly.
func buildRosterRows(users []ProjectUser, appointments map[string][]Appointment) [][]string {
	var rows [][]string
	for _, u := range users {
		matched := appointments[u.Email]
		if len(matched) == 0 {
			rows = append(rows, []string{u.AnonProjectSpecificUserID, u.FirstName, u.LastName, u.Email, "", ""})
			continue
		}
		for _, a := range matched {
			rows = append(rows, []string{
				u.AnonProjectSpecificUserID,
				u.FirstName,
				u.LastName,
				u.Email,
				a.AppointmentType,
				a.Time.UTC().Format(time.RFC3339),
			})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i][0] != rows[j][0] {
			return rows[i][0] < rows[j][0]
		}
		return rows[i][5] < rows[j][5]
	})
	return rows
}
