package tests

import (
	"archive/zip"
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onlineimmigrant/move-plan-next-sub025/core/file"
)

const testNCX = `<?xml version="1.0"?>
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">
  <navMap>
    <navPoint id="p1" playOrder="1">
      <navLabel><text>Chapter 1</text></navLabel>
      <content src="ch1.html"/>
    </navPoint>
  </navMap>
</ncx>`

func testEPUB(t *testing.T) []byte {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range map[string]string{
		"META-INF/container.xml": `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles><rootfile full-path="book/content.opf" media-type="application/oebps-package+xml"/></rootfiles>
</container>`,
		"book/content.opf": `<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf" version="2.0">
  <manifest><item id="ncx" href="toc.ncx" media-type="application/x-dtbncx+xml"/></manifest>
  <spine toc="ncx"/>
</package>`,
		"book/toc.ncx": testNCX,
	} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// upload posts content as the "file" part of a multipart form.
func upload(t *testing.T, token, name, contentType string, content []byte) *httptest.ResponseRecorder {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if name != "" {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="file"; filename="`+name+`"`)
		h.Set("Content-Type", contentType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	} else {
		require.NoError(t, mw.WriteField("other", "value"))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/files", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)
	return rec
}

func uploaded(t *testing.T, rec *httptest.ResponseRecorder) file.File {
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var f file.File
	decode(t, rec, &f)
	return f
}

func blobCount() int {
	blobs.mu.Lock()
	defer blobs.mu.Unlock()
	return len(blobs.blobs)
}

func Test_fileApi(t *testing.T) {
	resetDB()
	f := newFixture(t, "acme")
	other := newFixture(t, "globex")
	token := getToken(t, f.teacher)

	t.Run("file required", func(t *testing.T) {
		rec := upload(t, token, "", "", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"file":"this field is required"}`, rec.Body.String())
	})

	book := uploaded(t, upload(t, token, "My Book.epub", "application/octet-stream", testEPUB(t)))
	clip := uploaded(t, upload(t, token, "clip.mp4", "video/mp4", []byte("not really a video")))
	notes := uploaded(t, upload(t, getToken(t, f.student), "notes.txt", "text/plain", []byte("hello")))

	t.Run("uploaded", func(t *testing.T) {
		assert.Equal(t, "My Book.epub", book.Name)
		assert.Equal(t, "application/epub+zip", book.ContentType)
		assert.Equal(t, f.teacher.ID, book.OwnerID)
		assert.Equal(t, int64(len("not really a video")), clip.Size)
		assert.Equal(t, "video/mp4", clip.ContentType)
		assert.Equal(t, 3, blobCount())
	})

	t.Run("query", func(t *testing.T) {
		var files []file.File
		decode(t, do(http.MethodGet, "/api/files", token), &files)
		assert.Len(t, files, 2, "own files only")

		decode(t, do(http.MethodGet, "/api/files", getToken(t, f.admin)), &files)
		assert.Len(t, files, 3, "admins see every file of the org")

		decode(t, do(http.MethodGet, "/api/files", getToken(t, other.admin)), &files)
		assert.Empty(t, files)
	})

	tests := []httpTest{
		{name: "auth required", path: "/api/files", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "owner", path: "/api/files/" + book.ID, token: token, wantCode: http.StatusOK},
		{name: "admin", path: "/api/files/" + notes.ID, token: getToken(t, f.admin), wantCode: http.StatusOK},
		{name: "other user", path: "/api/files/" + notes.ID, token: token, wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "file not found"})},
		{name: "other org", path: "/api/files/" + book.ID, token: getToken(t, other.admin), wantCode: http.StatusNotFound},
		{
			name: "share: negative ttl", method: http.MethodPost, path: "/api/files/" + book.ID + "/shares", token: token,
			body: []byte(`{"ttl_seconds":-1}`), wantCode: http.StatusBadRequest, wantData: []byte(`{"ttl_seconds":"must be positive"}`),
		},
		{name: "share: unknown token", path: "/api/shares/lol", wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "share not found"})},
		{
			name: "toc: not an epub", path: "/api/files/" + clip.ID + "/toc", token: token,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "table of contents are only available for EPUB books"}),
		},
		{
			name: "toc", path: "/api/files/" + book.ID + "/toc", token: token, wantCode: http.StatusOK,
			wantData: marchallObj(t, []file.TOCEntry{{Title: "Chapter 1", Href: "book/ch1.html", Level: 1}}),
		},
		{
			name: "trim: not a video", method: http.MethodPost, path: "/api/files/" + book.ID + "/trim", token: token,
			body: []byte(`{"start":0,"end":1}`), wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "only video files can be trimmed"}),
		},
		{
			name: "trim: bad range", method: http.MethodPost, path: "/api/files/" + clip.ID + "/trim", token: token,
			body: []byte(`{"start":-1,"end":-2}`), wantCode: http.StatusBadRequest,
			wantData: []byte(`{"start":"must be greater than or equal to 0","end":"must be greater than start"}`),
		},
		{
			name: "trim: too long", method: http.MethodPost, path: "/api/files/" + clip.ID + "/trim", token: token,
			body: []byte(`{"start":0,"end":3600}`), wantCode: http.StatusBadRequest,
			wantData: []byte(`{"end":"the trimmed range may not exceed 30m0s"}`),
		},
	}
	runHTTPTests(t, tests)

	t.Run("signed url", func(t *testing.T) {
		rec := do(http.MethodGet, "/api/files/"+book.ID+"/url", token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var u file.SignedURL
		decode(t, rec, &u)
		assert.True(t, strings.HasPrefix(u.URL, "https://blobs.test/files/"+f.org.ID+"/"), u.URL)
		assert.True(t, strings.HasSuffix(u.URL, "/my-book.epub?se=900"), u.URL)
	})

	t.Run("share", func(t *testing.T) {
		rec := do(http.MethodPost, "/api/files/"+book.ID+"/shares", token, []byte(`{"ttl_seconds":999999}`))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var sh struct {
			file.Share
			URL string `json:"url"`
		}
		decode(t, rec, &sh)
		assert.Equal(t, book.ID, sh.FileID)
		assert.Len(t, sh.Token, 43)
		assert.WithinDuration(t, time.Now().Add(24*time.Hour), sh.ExpiresAt, time.Minute, "ttl is capped")
		assert.Equal(t, "http://example.com/api/shares/"+sh.Token, sh.URL)

		rec = do(http.MethodGet, "/api/shares/"+sh.Token, "")
		assert.Equal(t, http.StatusFound, rec.Code)
		assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), "https://blobs.test/files/"), rec.Header().Get("Location"))
	})

	var trimmed file.File
	t.Run("trim", func(t *testing.T) {
		rec := do(http.MethodPost, "/api/files/"+clip.ID+"/trim", token, []byte(`{"start":1.5,"end":10}`))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		decode(t, rec, &trimmed)
		assert.Equal(t, "clip-trim.mp4", trimmed.Name)
		assert.Equal(t, "video/mp4", trimmed.ContentType)
		assert.Equal(t, clip.Size, trimmed.Size)
		assert.Equal(t, 4, blobCount())
	})

	t.Run("delete", func(t *testing.T) {
		rec := do(http.MethodDelete, "/api/files/"+trimmed.ID, getToken(t, f.student))
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = do(http.MethodDelete, "/api/files/"+trimmed.ID, token)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, 3, blobCount())

		rec = do(http.MethodGet, "/api/files/"+trimmed.ID, token)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
