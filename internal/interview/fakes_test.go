package interview

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// Shared hand-written fakes for the pipeline tests. Each fake records the
// calls the tests need to assert on and supports targeted error injection.

type fakeIdentity struct {
	usersByEmail map[string]string
	userProjects map[string][]UserProject
	projectUsers map[string][]ProjectUser
	err          error
}

func (f *fakeIdentity) UserIDByEmail(ctx context.Context, email string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	id, ok := f.usersByEmail[email]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownUser, email)
	}
	return id, nil
}

func (f *fakeIdentity) UserProjects(ctx context.Context, userID string) ([]UserProject, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.userProjects[userID], nil
}

func (f *fakeIdentity) UsersByProject(ctx context.Context, projectID string) ([]ProjectUser, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.projectUsers[projectID], nil
}

type fakeScheduling struct {
	appointments []Appointment
	err          error
	calls        int
}

func (f *fakeScheduling) AppointmentsByTypeIDs(ctx context.Context, typeIDs []string) ([]Appointment, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	wanted := make(map[string]bool, len(typeIDs))
	for _, id := range typeIDs {
		wanted[id] = true
	}
	var out []Appointment
	for _, a := range f.appointments {
		if wanted[a.AppointmentTypeID] {
			out = append(out, a)
		}
	}
	return out, nil
}

type fakeObjectStore struct {
	objects map[string][]ObjectInfo
	heads   map[string]ObjectHead
	content map[string][]byte
	deleted map[string][]string

	headErr     map[string]error
	downloadErr error
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{
		objects: map[string][]ObjectInfo{},
		heads:   map[string]ObjectHead{},
		content: map[string][]byte{},
		deleted: map[string][]string{},
		headErr: map[string]error{},
	}
}

func (f *fakeObjectStore) put(bucket string, obj ObjectInfo, head ObjectHead, data []byte) {
	f.objects[bucket] = append(f.objects[bucket], obj)
	f.heads[bucket+"/"+obj.Key] = head
	f.content[bucket+"/"+obj.Key] = data
}

func (f *fakeObjectStore) ListObjects(ctx context.Context, bucket string) ([]ObjectInfo, error) {
	return f.objects[bucket], nil
}

func (f *fakeObjectStore) HeadObject(ctx context.Context, bucket, key string) (ObjectHead, error) {
	if err := f.headErr[bucket+"/"+key]; err != nil {
		return ObjectHead{}, err
	}
	head, ok := f.heads[bucket+"/"+key]
	if !ok {
		return ObjectHead{}, fmt.Errorf("%w: %s/%s", ErrNotFound, bucket, key)
	}
	return head, nil
}

func (f *fakeObjectStore) DownloadObject(ctx context.Context, bucket, key string, w io.Writer) error {
	if f.downloadErr != nil {
		return f.downloadErr
	}
	data, ok := f.content[bucket+"/"+key]
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, bucket, key)
	}
	_, err := w.Write(data)
	return err
}

func (f *fakeObjectStore) DeleteObjects(ctx context.Context, bucket string, keys []string) error {
	f.deleted[bucket] = append(f.deleted[bucket], keys...)
	return nil
}

type fakeTranscode struct {
	submitted []string
	failKeys  map[string]bool
}

func (f *fakeTranscode) SubmitAudioExtraction(ctx context.Context, sourceBucket, sourceKey string) (string, error) {
	if f.failKeys[sourceKey] {
		return "", errors.New("transcoder rejected job")
	}
	f.submitted = append(f.submitted, sourceKey)
	return fmt.Sprintf("job-%d", len(f.submitted)), nil
}

type staticDestinations map[string]Destination

func (s staticDestinations) Destination(projectAcronym string) (Destination, error) {
	dest, ok := s[projectAcronym]
	if !ok {
		return Destination{}, fmt.Errorf("%w: %s", ErrUnknownProjectConfig, projectAcronym)
	}
	return dest, nil
}

type fakeRemoteFile struct {
	buf      bytes.Buffer
	closed   bool
	closeErr error
}

func (f *fakeRemoteFile) Write(p []byte) (int, error) { return f.buf.Write(p) }

func (f *fakeRemoteFile) Close() error {
	f.closed = true
	return f.closeErr
}

type fakeSession struct {
	files  map[string]*fakeRemoteFile
	sizes  map[string]int64
	mkdirs []string
	closed bool
}

func newFakeSession() *fakeSession {
	return &fakeSession{files: map[string]*fakeRemoteFile{}, sizes: map[string]int64{}}
}

func (f *fakeSession) MkdirAll(path string) error {
	f.mkdirs = append(f.mkdirs, path)
	return nil
}

func (f *fakeSession) Stat(path string) (int64, bool, error) {
	size, ok := f.sizes[path]
	return size, ok, nil
}

func (f *fakeSession) Create(path string) (io.WriteCloser, error) {
	file := &fakeRemoteFile{}
	f.files[path] = file
	return file, nil
}

func (f *fakeSession) Close() error {
	f.closed = true
	return nil
}

type fakeDialer struct {
	session *fakeSession
	dialErr error
	dialed  []Destination
}

func (f *fakeDialer) Dial(ctx context.Context, dest Destination) (RemoteSession, error) {
	if f.dialErr != nil {
		return nil, f.dialErr
	}
	f.dialed = append(f.dialed, dest)
	return f.session, nil
}

func mustTime(t string) time.Time {
	parsed, err := time.Parse(time.RFC3339, t)
	if err != nil {
		panic(err)
	}
	return parsed
}
