package scheduling

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAppointmentsByTypeIDs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/appointments" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("type_ids"); got != "apt-1,apt-2" {
			t.Errorf("type_ids = %q", got)
		}
		_, _ = w.Write([]byte(`[
			{"participant_email":"delia@email.co.uk","appointment_type_id":"apt-1","appointment_type":"interview","datetime":"2026-09-01T09:30:00Z"}
		]`))
	}))
	defer server.Close()

	c := NewClient(server.URL, "secret", server.Client())
	appointments, err := c.AppointmentsByTypeIDs(context.Background(), []string{"apt-1", "apt-2"})
	if err != nil {
		t.Fatal(err)
	}
	if len(appointments) != 1 {
		t.Fatalf("appointments = %d", len(appointments))
	}
	if appointments[0].AppointmentTypeID != "apt-1" || appointments[0].Time.IsZero() {
		t.Errorf("appointment = %+v", appointments[0])
	}
}
