package interview

import (
	"context"
	"testing"
)

const (
	instanceA = "f21d28a7-d3a5-42bf-8771-5d205ab67dcb"
	instanceB = "bf67ce1c-757a-46d6-bed6-13d50e1ff0b5"
)

func monitorFixture(t *testing.T) (*Monitor, *fakeObjectStore, *RecordManager) {
	t.Helper()
	objects := newFakeObjectStore()
	records := NewRecordManager(NewMemoryStatusStore(), nil)
	projects := &StaticProjectStore{Projects: []Project{
		{
			Acronym:             "PSFU",
			ProjectID:           "p-psfu",
			FilenamePrefix:      "PSFU",
			InterviewTaskStatus: TaskActive,
			Interviewers:        map[string]Interviewer{"Karolina K": {Initials: "KK"}},
		},
	}}
	resolver := NewResolver(deliaIdentity("p-psfu"), nil, nil)
	m := NewMonitor(objects, records, projects, resolver, MonitorConfig{Bucket: "incoming"}, nil)
	return m, objects, records
}

func liveHead(email, interviewer string) ObjectHead {
	return ObjectHead{
		ContentType:  "video/mp4",
		Size:         1024,
		LastModified: mustTime("2026-08-20T10:00:00Z"),
		Metadata:     map[string]string{"Email": email, "Interviewer": interviewer},
	}
}

func TestMonitorRegistersNewFiles(t *testing.T) {
	m, objects, records := monitorFixture(t)
	key := instanceA + "/video/61ca75b6-2c2e-4d32-a8a6-300bf7fd6fa1.mp4"
	objects.put("incoming", ObjectInfo{Key: key, Size: 1024}, liveHead(deliaEmail, "Karolina K"), nil)

	registered, err := m.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(registered) != 1 || registered[0] != key {
		t.Fatalf("registered = %v", registered)
	}

	rec, err := records.Get(context.Background(), key)
	if err != nil {
		t.Fatal(err)
	}
	if rec.ProcessingStatus != StatusNew {
		t.Errorf("status = %q", rec.ProcessingStatus)
	}
	if rec.InterviewID != instanceA {
		t.Errorf("InterviewID = %q", rec.InterviewID)
	}
	if rec.TargetBasename != "PSFU_INT-L_KK_"+deliaAnonID {
		t.Errorf("TargetBasename = %q", rec.TargetBasename)
	}
	if rec.Size != 1024 || rec.UploadedAt.IsZero() {
		t.Errorf("head fields not captured: size=%d uploaded=%v", rec.Size, rec.UploadedAt)
	}
}

func TestMonitorSkipRules(t *testing.T) {
	m, objects, records := monitorFixture(t)
	head := liveHead(deliaEmail, "Karolina K")

	known := instanceB + "/video/already.mp4"
	if _, err := records.Register(context.Background(), FileRecord{Key: known}); err != nil {
		t.Fatal(err)
	}

	for _, key := range []string{
		instanceA + "/audio/extracted.mp3",  // derived artifact
		instanceA + "/audio/extracted.flac", // derived artifact
		instanceA + "/video/noextension",    // no extension
		"not-a-uuid/video/file.mp4",         // outside an instance dir
		"toplevel.mp4",                      // no instance dir at all
		known,                               // already registered
	} {
		objects.put("incoming", ObjectInfo{Key: key}, head, nil)
	}

	registered, err := m.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(registered) != 0 {
		t.Errorf("registered = %v, want none", registered)
	}
}

func TestMonitorIsolatesFailingObjects(t *testing.T) {
	// One unresolvable file must not block ingestion of the rest.
	m, objects, _ := monitorFixture(t)
	bad := instanceA + "/video/bad.mp4"
	good := instanceB + "/video/good.mp4"
	objects.put("incoming", ObjectInfo{Key: bad}, liveHead("stranger@email.co.uk", "Karolina K"), nil)
	objects.put("incoming", ObjectInfo{Key: good}, liveHead(deliaEmail, "Karolina K"), nil)

	registered, err := m.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(registered) != 1 || registered[0] != good {
		t.Fatalf("registered = %v, want only %s", registered, good)
	}
}

func TestMonitorSecondRunIsIdempotent(t *testing.T) {
	m, objects, _ := monitorFixture(t)
	key := instanceA + "/video/rec.mp4"
	objects.put("incoming", ObjectInfo{Key: key}, liveHead(deliaEmail, "Karolina K"), nil)

	if _, err := m.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	registered, err := m.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(registered) != 0 {
		t.Errorf("second run registered %v, want none", registered)
	}
}
