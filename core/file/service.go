package file

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/onlineimmigrant/move-plan-next-sub025/core"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/user"
)

const (
	DefaultShareTTL = time.Hour
	signedURLTTL    = 15 * time.Minute
	shareTokenBytes = 32
)

var (
	ErrNotFound      = core.NewNotFoundError("file")
	ErrShareNotFound = core.NewNotFoundError("share")

	ErrNotEPUB  = core.NewValidationError(errors.New("table of contents are only available for EPUB books"))
	ErrNotVideo = core.NewValidationError(errors.New("only video files can be trimmed"))
)

type (
	Repository interface {
		CreateFile(ctx context.Context, f File, exec ...core.DBExecutor) (File, error)
		GetFile(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (File, error)
		// QueryFiles lists the files of an organization, newest first; ownerID filters when not empty.
		QueryFiles(ctx context.Context, orgID, ownerID string, exec ...core.DBExecutor) ([]File, error)
		DeleteFile(ctx context.Context, id string, exec ...core.DBExecutor) error
		CreateShare(ctx context.Context, s Share, exec ...core.DBExecutor) (Share, error)
		GetShare(ctx context.Context, token string, exec ...core.DBExecutor) (Share, error)
	}

	Service interface {
		Upload(ctx context.Context, owner user.User, name, contentType string, r io.Reader) (File, error)
		Query(ctx context.Context, usr user.User) ([]File, error)
		Get(ctx context.Context, usr user.User, id string) (File, error)
		Delete(ctx context.Context, usr user.User, id string) error
		SignedURL(ctx context.Context, usr user.User, id string) (SignedURL, error)
		Share(ctx context.Context, usr user.User, id string, ttl time.Duration) (Share, error)
		// Resolve returns the signed URL behind a public share token.
		Resolve(ctx context.Context, token string) (SignedURL, error)
		TOC(ctx context.Context, usr user.User, id string) ([]TOCEntry, error)
		Trim(ctx context.Context, usr user.User, id string, req TrimRequest) (File, error)
	}

	service struct {
		repo        Repository
		storage     Storage
		trimmer     Trimmer
		maxShareTTL time.Duration
		maxTrim     time.Duration
		logger      core.Logger
		nowFunc     func() time.Time
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, storage Storage, trimmer Trimmer, conf *core.Config, logger core.Logger) Service {
	return &service{
		repo:        repo,
		storage:     storage,
		trimmer:     trimmer,
		maxShareTTL: conf.Storage.MaxShareTTL,
		maxTrim:     conf.Media.MaxTrimDuration,
		logger:      logger,
		nowFunc:     func() time.Time { return time.Now().UTC() },
	}
}

// cleanName keeps the base name of a client provided file name.
func cleanName(name string) string {
	name = strings.TrimSpace(filepath.Base(strings.ReplaceAll(name, "\\", "/")))
	if name == "" || name == "." || name == "/" {
		return "file"
	}
	return name
}

func blobName(orgID, name string) string {
	ext := strings.ToLower(path.Ext(name))
	base := core.Slugify(strings.TrimSuffix(name, path.Ext(name)))
	if base == "" {
		base = "file"
	}
	return path.Join(orgID, uuid.New().String(), base+ext)
}

func (svc *service) Upload(ctx context.Context, owner user.User, name, contentType string, r io.Reader) (File, error) {
	name = cleanName(name)
	f := File{
		OrgID:       owner.OrgID,
		OwnerID:     owner.ID,
		Name:        name,
		BlobName:    blobName(owner.OrgID, name),
		ContentType: detectContentType(name, contentType),
		CreatedAt:   svc.nowFunc(),
	}

	counter := &countingReader{r: r}
	if err := svc.storage.Upload(ctx, f.BlobName, f.ContentType, counter); err != nil {
		return File{}, core.NewUpstreamError("storage", err)
	}
	f.Size = counter.n

	created, err := svc.repo.CreateFile(ctx, f)
	if err != nil {
		if delErr := svc.storage.Delete(ctx, f.BlobName); delErr != nil {
			svc.logger.Error(fmt.Sprintf("deleting orphan blob %s: %v", f.BlobName, delErr), delErr, owner)
		}
		return File{}, errors.Wrap(err, "saving file")
	}
	return created, nil
}

// Query lists every file of the organization to admins, the user's own files otherwise.
func (svc *service) Query(ctx context.Context, usr user.User) ([]File, error) {
	ownerID := usr.ID
	if usr.IsAdmin() {
		ownerID = ""
	}
	files, err := svc.repo.QueryFiles(ctx, usr.OrgID, ownerID)
	return files, errors.Wrap(err, "querying files")
}

func (svc *service) Get(ctx context.Context, usr user.User, id string) (File, error) {
	f, err := svc.repo.GetFile(ctx, GetFilter{OrgID: usr.OrgID, ID: id})
	if err != nil {
		return File{}, err
	}
	if f.OwnerID != usr.ID && !usr.IsAdmin() {
		return File{}, ErrNotFound
	}
	return f, nil
}

// Delete removes the blob first, then the row.
func (svc *service) Delete(ctx context.Context, usr user.User, id string) error {
	f, err := svc.Get(ctx, usr, id)
	if err != nil {
		return err
	}
	if err := svc.storage.Delete(ctx, f.BlobName); err != nil {
		return core.NewUpstreamError("storage", err)
	}
	return errors.Wrap(svc.repo.DeleteFile(ctx, f.ID), "deleting file")
}

func (svc *service) signedURL(ctx context.Context, f File, ttl time.Duration) (SignedURL, error) {
	url, err := svc.storage.SignedURL(ctx, f.BlobName, ttl)
	if err != nil {
		return SignedURL{}, core.NewUpstreamError("storage", err)
	}
	return SignedURL{URL: url, ExpiresAt: svc.nowFunc().Add(ttl)}, nil
}

func (svc *service) SignedURL(ctx context.Context, usr user.User, id string) (SignedURL, error) {
	f, err := svc.Get(ctx, usr, id)
	if err != nil {
		return SignedURL{}, err
	}
	return svc.signedURL(ctx, f, signedURLTTL)
}

// shareTTL defaults ttl to an hour and caps it to the configured maximum.
func (svc *service) shareTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		ttl = DefaultShareTTL
	}
	if svc.maxShareTTL > 0 && ttl > svc.maxShareTTL {
		ttl = svc.maxShareTTL
	}
	return ttl
}

func (svc *service) Share(ctx context.Context, usr user.User, id string, ttl time.Duration) (Share, error) {
	f, err := svc.Get(ctx, usr, id)
	if err != nil {
		return Share{}, err
	}
	token, err := core.RandomToken(shareTokenBytes)
	if err != nil {
		return Share{}, errors.Wrap(err, "generating share token")
	}
	now := svc.nowFunc()
	s, err := svc.repo.CreateShare(ctx, Share{
		FileID:    f.ID,
		Token:     token,
		ExpiresAt: now.Add(svc.shareTTL(ttl)),
		CreatedBy: usr.ID,
		CreatedAt: now,
	})
	return s, errors.Wrap(err, "creating share")
}

// Resolve signs a URL valid until the share expires. Unknown and expired tokens are not found.
func (svc *service) Resolve(ctx context.Context, token string) (SignedURL, error) {
	s, err := svc.repo.GetShare(ctx, token)
	if err != nil {
		return SignedURL{}, err
	}
	now := svc.nowFunc()
	if s.Expired(now) {
		return SignedURL{}, ErrShareNotFound
	}
	f, err := svc.repo.GetFile(ctx, GetFilter{ID: s.FileID})
	if err != nil {
		return SignedURL{}, err
	}
	ttl := s.ExpiresAt.Sub(now)
	if ttl < time.Second {
		ttl = time.Second
	}
	return svc.signedURL(ctx, f, ttl)
}

// download copies the blob of f into dir and returns the local path.
func (svc *service) download(ctx context.Context, f File, dir, name string) (string, error) {
	rc, err := svc.storage.Download(ctx, f.BlobName)
	if err != nil {
		return "", core.NewUpstreamError("storage", err)
	}
	defer rc.Close()

	fp := filepath.Join(dir, name)
	out, err := os.Create(fp)
	if err != nil {
		return "", errors.Wrap(err, "creating temp file")
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return "", core.NewUpstreamError("storage", err)
	}
	return fp, errors.Wrap(out.Close(), "closing temp file")
}

func (svc *service) TOC(ctx context.Context, usr user.User, id string) ([]TOCEntry, error) {
	f, err := svc.Get(ctx, usr, id)
	if err != nil {
		return nil, err
	}
	if !f.IsEPUB() {
		return nil, ErrNotEPUB
	}

	dir, err := os.MkdirTemp("", "epub-")
	if err != nil {
		return nil, errors.Wrap(err, "creating temp dir")
	}
	defer os.RemoveAll(dir)

	fp, err := svc.download(ctx, f, dir, "book.epub")
	if err != nil {
		return nil, err
	}
	book, err := os.Open(fp)
	if err != nil {
		return nil, errors.Wrap(err, "opening book")
	}
	defer book.Close()
	fi, err := book.Stat()
	if err != nil {
		return nil, errors.Wrap(err, "reading book size")
	}
	return ReadTOC(book, fi.Size())
}

func seconds(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}

func (svc *service) validateTrim(req TrimRequest) (start, end time.Duration, err error) {
	start, end = seconds(req.Start), seconds(req.End)
	var fldErrs []core.FieldError
	if start < 0 {
		fldErrs = append(fldErrs, core.FieldError{Field: "start", Error: "must be greater than or equal to 0"})
	}
	if end <= start {
		fldErrs = append(fldErrs, core.FieldError{Field: "end", Error: "must be greater than start"})
	} else if svc.maxTrim > 0 && end-start > svc.maxTrim {
		fldErrs = append(fldErrs, core.FieldError{Field: "end", Error: fmt.Sprintf("the trimmed range may not exceed %s", svc.maxTrim)})
	}
	if fldErrs != nil {
		return 0, 0, core.NewValidationError(nil, fldErrs...)
	}
	return start, end, nil
}

// Trim cuts [start, end) of a video file into a new file named "<base>-trim<ext>", owned by usr.
func (svc *service) Trim(ctx context.Context, usr user.User, id string, req TrimRequest) (File, error) {
	f, err := svc.Get(ctx, usr, id)
	if err != nil {
		return File{}, err
	}
	if !f.IsVideo() {
		return File{}, ErrNotVideo
	}
	start, end, err := svc.validateTrim(req)
	if err != nil {
		return File{}, err
	}

	dir, err := os.MkdirTemp("", "trim-")
	if err != nil {
		return File{}, errors.Wrap(err, "creating temp dir")
	}
	defer os.RemoveAll(dir)

	ext := strings.ToLower(path.Ext(f.Name))
	input, err := svc.download(ctx, f, dir, "input"+ext)
	if err != nil {
		return File{}, err
	}
	output := filepath.Join(dir, "output"+ext)
	if err := svc.trimmer.Trim(ctx, input, output, start, end); err != nil {
		return File{}, errors.Wrap(err, "trimming video")
	}

	trimmed, err := os.Open(output)
	if err != nil {
		return File{}, errors.Wrap(err, "opening trimmed video")
	}
	defer trimmed.Close()

	name := strings.TrimSuffix(f.Name, path.Ext(f.Name)) + "-trim" + path.Ext(f.Name)
	return svc.Upload(ctx, usr, name, f.ContentType, trimmed)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	cr.n += int64(n)
	return n, err
}
