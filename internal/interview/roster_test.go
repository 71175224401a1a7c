package interview

import (
	"context"
	"encoding/csv"
	"strings"
	"testing"
	"time"
)

func TestRosterExportsOptedInProjects(t *testing.T) {
	projects := &StaticProjectStore{Projects: []Project{
		{
			Acronym:               "PSFU",
			ProjectID:             "p-psfu",
			InterviewTaskStatus:   TaskActive,
			ParticipantDataToSDHS: true,
			AppointmentTypeIDs:    []string{"apt-1"},
		},
		{
			Acronym:               "NOEXPORT",
			ProjectID:             "p-noexport",
			InterviewTaskStatus:   TaskActive,
			ParticipantDataToSDHS: false,
		},
	}}
	identity := &fakeIdentity{projectUsers: map[string][]ProjectUser{
		"p-psfu": {
			{AnonProjectSpecificUserID: deliaAnonID, Email: deliaEmail, FirstName: "Delia", LastName: "Davies"},
			{AnonProjectSpecificUserID: "0a9b2c3d", Email: "eddie@email.co.uk", FirstName: "Eddie", LastName: "Evans"},
		},
	}}
	scheduling := &fakeScheduling{appointments: []Appointment{
		{ParticipantEmail: deliaEmail, AppointmentTypeID: "apt-1", AppointmentType: "interview", Time: mustTime("2026-09-01T09:30:00Z")},
	}}
	session := newFakeSession()
	dialer := &fakeDialer{session: session}
	destinations := staticDestinations{"PSFU": {Host: "sdhs.example.org", Folder: "/upload/psfu"}}
	now := func() time.Time { return mustTime("2026-08-30T12:00:00Z") }

	exporter := NewRosterExporter(projects, identity, scheduling, destinations, dialer, RosterConfig{Now: now}, nil)
	exported, err := exporter.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if exported != 1 {
		t.Fatalf("exported = %d, want 1", exported)
	}

	remotePath := "/upload/psfu/PSFU_participants_2026-08-30.csv"
	file, ok := session.files[remotePath]
	if !ok {
		t.Fatalf("no roster at %s; files = %v", remotePath, session.files)
	}
	rows, err := csv.NewReader(strings.NewReader(file.buf.String())).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(rows))
	}
	if rows[0][0] != "anon_project_specific_user_id" || rows[0][4] != "appointment_type" {
		t.Errorf("header = %v", rows[0])
	}
	// Sorted by anonymised id: Eddie (0a9b...) before Delia (3b76...).
	if rows[1][0] != "0a9b2c3d" || rows[1][4] != "" {
		t.Errorf("row 1 = %v", rows[1])
	}
	if rows[2][0] != deliaAnonID || rows[2][4] != "interview" || rows[2][5] != "2026-09-01T09:30:00Z" {
		t.Errorf("row 2 = %v", rows[2])
	}
}

func TestRosterSkipsFailingProjects(t *testing.T) {
	projects := &StaticProjectStore{Projects: []Project{
		{Acronym: "BROKEN", ProjectID: "p-broken", InterviewTaskStatus: TaskActive, ParticipantDataToSDHS: true},
		{Acronym: "PSFU", ProjectID: "p-psfu", InterviewTaskStatus: TaskActive, ParticipantDataToSDHS: true},
	}}
	identity := &fakeIdentity{projectUsers: map[string][]ProjectUser{
		"p-broken": {{AnonProjectSpecificUserID: "x", Email: "x@email.co.uk"}},
		"p-psfu":   {{AnonProjectSpecificUserID: deliaAnonID, Email: deliaEmail}},
	}}
	session := newFakeSession()
	dialer := &fakeDialer{session: session}
	// Only PSFU has a destination; BROKEN fails and is skipped.
	destinations := staticDestinations{"PSFU": {Folder: "/upload/psfu"}}

	exporter := NewRosterExporter(projects, identity, nil, destinations, dialer, RosterConfig{}, nil)
	exported, err := exporter.Run(context.Background())
	if err == nil {
		t.Fatal("expected joined error for the failing project")
	}
	if exported != 1 {
		t.Fatalf("exported = %d, want 1", exported)
	}
}
