package file

import (
	"bytes"
	"context"
	"io"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onlineimmigrant/move-plan-next-sub025/core"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/user"
)

type memStorage struct {
	blobs map[string][]byte
}

func (s *memStorage) Upload(_ context.Context, name, _ string, r io.Reader) error {
	b, err := io.ReadAll(r)
	s.blobs[name] = b
	return err
}

func (s *memStorage) Download(_ context.Context, name string) (io.ReadCloser, error) {
	b, ok := s.blobs[name]
	if !ok {
		return nil, os.ErrNotExist
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (s *memStorage) Delete(_ context.Context, name string) error {
	delete(s.blobs, name)
	return nil
}

func (s *memStorage) SignedURL(_ context.Context, name string, ttl time.Duration) (string, error) {
	return "https://blob.example/" + name + "?se=" + strconv.Itoa(int(ttl.Seconds())), nil
}

type memRepo struct {
	files  map[string]File
	shares map[string]Share
}

func (r *memRepo) CreateFile(_ context.Context, f File, _ ...core.DBExecutor) (File, error) {
	f.ID = "f" + strconv.Itoa(len(r.files)+1)
	r.files[f.ID] = f
	return f, nil
}

func (r *memRepo) GetFile(_ context.Context, filter GetFilter, _ ...core.DBExecutor) (File, error) {
	f, ok := r.files[filter.ID]
	if !ok || (filter.OrgID != "" && f.OrgID != filter.OrgID) {
		return File{}, ErrNotFound
	}
	return f, nil
}

func (r *memRepo) QueryFiles(context.Context, string, string, ...core.DBExecutor) ([]File, error) {
	return nil, nil
}

func (r *memRepo) DeleteFile(_ context.Context, id string, _ ...core.DBExecutor) error {
	delete(r.files, id)
	return nil
}

func (r *memRepo) CreateShare(_ context.Context, s Share, _ ...core.DBExecutor) (Share, error) {
	r.shares[s.Token] = s
	return s, nil
}

func (r *memRepo) GetShare(_ context.Context, token string, _ ...core.DBExecutor) (Share, error) {
	s, ok := r.shares[token]
	if !ok {
		return Share{}, ErrShareNotFound
	}
	return s, nil
}

// upperTrimmer "trims" by upper-casing the input, recording the requested range.
type upperTrimmer struct {
	start, end time.Duration
}

func (tr *upperTrimmer) Trim(_ context.Context, input, output string, start, end time.Duration) error {
	tr.start, tr.end = start, end
	b, err := os.ReadFile(input)
	if err != nil {
		return err
	}
	return os.WriteFile(output, bytes.ToUpper(b), 0o600)
}

var (
	owner    = user.User{ID: "owner", OrgID: "org", Roles: []string{user.RoleTeacher}}
	stranger = user.User{ID: "stranger", OrgID: "org", Roles: []string{user.RoleStudent}}
	orgAdmin = user.User{ID: "admin", OrgID: "org", Roles: []string{user.RoleAdmin}}
)

func newTestService() (*service, *memRepo, *memStorage, *upperTrimmer, *time.Time) {
	repo := &memRepo{files: make(map[string]File), shares: make(map[string]Share)}
	storage := &memStorage{blobs: make(map[string][]byte)}
	trimmer := &upperTrimmer{}
	conf := &core.Config{}
	conf.Storage.MaxShareTTL = 24 * time.Hour
	conf.Media.MaxTrimDuration = time.Minute
	svc := NewService(repo, storage, trimmer, conf, core.NopLogger{}).(*service)
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	svc.nowFunc = func() time.Time { return now }
	return svc, repo, storage, trimmer, &now
}

func TestService_Upload(t *testing.T) {
	svc, _, storage, _, _ := newTestService()
	f, err := svc.Upload(context.Background(), owner, "../My Notes.PDF", "", strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, "My Notes.PDF", f.Name)
	assert.Equal(t, "application/pdf", f.ContentType)
	assert.EqualValues(t, 5, f.Size)
	assert.True(t, strings.HasPrefix(f.BlobName, "org/"))
	assert.True(t, strings.HasSuffix(f.BlobName, "/my-notes.pdf"))
	assert.Equal(t, []byte("hello"), storage.blobs[f.BlobName])
}

func TestService_Access(t *testing.T) {
	ctx := context.Background()
	svc, _, storage, _, _ := newTestService()
	f, err := svc.Upload(ctx, owner, "notes.txt", "text/plain", strings.NewReader("x"))
	require.NoError(t, err)

	_, err = svc.Get(ctx, stranger, f.ID)
	assert.True(t, core.IsNotFound(err))
	_, err = svc.Get(ctx, orgAdmin, f.ID)
	assert.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, owner, f.ID))
	assert.Empty(t, storage.blobs)
	_, err = svc.Get(ctx, owner, f.ID)
	assert.True(t, core.IsNotFound(err))
}

func TestService_ShareAndResolve(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _, now := newTestService()
	f, err := svc.Upload(ctx, owner, "notes.txt", "text/plain", strings.NewReader("x"))
	require.NoError(t, err)

	tests := []struct {
		name string
		ttl  time.Duration
		want time.Duration
	}{
		{name: "default", ttl: 0, want: time.Hour},
		{name: "custom", ttl: 2 * time.Hour, want: 2 * time.Hour},
		{name: "capped", ttl: 30 * 24 * time.Hour, want: 24 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := svc.Share(ctx, owner, f.ID, tt.ttl)
			require.NoError(t, err)
			assert.Equal(t, now.Add(tt.want), s.ExpiresAt)
			assert.Len(t, s.Token, 43) // 32 bytes, raw url-safe base64
		})
	}

	s, err := svc.Share(ctx, owner, f.ID, time.Hour)
	require.NoError(t, err)
	*now = now.Add(30 * time.Minute)
	signed, err := svc.Resolve(ctx, s.Token)
	require.NoError(t, err)
	assert.Equal(t, "https://blob.example/"+f.BlobName+"?se=1800", signed.URL)

	*now = now.Add(30 * time.Minute)
	_, err = svc.Resolve(ctx, s.Token)
	assert.True(t, core.IsNotFound(err), "expired")
	_, err = svc.Resolve(ctx, "unknown")
	assert.True(t, core.IsNotFound(err))

	_, err = svc.Share(ctx, stranger, f.ID, time.Hour)
	assert.True(t, core.IsNotFound(err))
}

func TestService_Trim(t *testing.T) {
	ctx := context.Background()
	svc, _, storage, trimmer, _ := newTestService()
	video, err := svc.Upload(ctx, owner, "lesson.mp4", "video/mp4", strings.NewReader("frames"))
	require.NoError(t, err)
	doc, err := svc.Upload(ctx, owner, "notes.txt", "text/plain", strings.NewReader("x"))
	require.NoError(t, err)

	_, err = svc.Trim(ctx, owner, doc.ID, TrimRequest{Start: 0, End: 1})
	assert.Equal(t, ErrNotVideo, err)

	for _, req := range []TrimRequest{{Start: -1, End: 5}, {Start: 5, End: 5}, {Start: 0, End: 61}} {
		_, err = svc.Trim(ctx, owner, video.ID, req)
		assert.IsType(t, &core.ValidationError{}, err, "%+v", req)
	}

	trimmed, err := svc.Trim(ctx, owner, video.ID, TrimRequest{Start: 1.5, End: 10})
	require.NoError(t, err)
	assert.Equal(t, "lesson-trim.mp4", trimmed.Name)
	assert.Equal(t, "video/mp4", trimmed.ContentType)
	assert.Equal(t, 1500*time.Millisecond, trimmer.start)
	assert.Equal(t, 10*time.Second, trimmer.end)
	assert.Equal(t, []byte("FRAMES"), storage.blobs[trimmed.BlobName])
}

func TestService_TOCRequiresEPUB(t *testing.T) {
	svc, _, _, _, _ := newTestService()
	f, err := svc.Upload(context.Background(), owner, "notes.txt", "text/plain", strings.NewReader("x"))
	require.NoError(t, err)
	_, err = svc.TOC(context.Background(), owner, f.ID)
	assert.Equal(t, ErrNotEPUB, err)
}
