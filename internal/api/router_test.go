package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sjdv1982/hashserver/internal/digest"
	"github.com/sjdv1982/hashserver/internal/lifecycle"
	"github.com/sjdv1982/hashserver/internal/store"
)

func newTestServer(t *testing.T, writable bool) (*httptest.Server, string) {
	t.Helper()
	dir := t.TempDir()
	engine := store.New(store.Config{
		PrimaryDir:  dir,
		Algorithm:   digest.SHA3256,
		LockTimeout: 2 * time.Second,
		Writable:    writable,
	})
	clock := lifecycle.NewActivityClock()
	handler := NewRouter(engine, writable, clock)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, dir
}

// TestHealthcheck: GET /healthcheck always returns 200 "OK".
func TestHealthcheck(t *testing.T) {
	srv, _ := newTestServer(t, false)

	resp, err := http.Get(srv.URL + "/healthcheck")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "OK" {
		t.Errorf("body = %q, want OK", body)
	}
}

// TestGetMissingReturns404: an absent digest yields 404 "Not found".
func TestGetMissingReturns404(t *testing.T) {
	srv, _ := newTestServer(t, false)

	d := digest.FromBytes(digest.SHA3256, []byte("Hello world!\n"))
	// Flip the last hex character to ensure a clean miss.
	missing := string(d)[:63] + flip(string(d)[63])

	resp, err := http.Get(srv.URL + "/" + missing)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "Not found" {
		t.Errorf("body = %q, want %q", body, "Not found")
	}
}

func flip(c byte) string {
	if c == '0' {
		return "1"
	}
	return "0"
}

// TestGetHitReturnsContent: a pre-placed buffer is served back with
// its attachment headers.
func TestGetHitReturnsContent(t *testing.T) {
	srv, dir := newTestServer(t, false)

	content := []byte("Hello world!\n")
	d := digest.FromBytes(digest.SHA3256, content)
	if err := os.WriteFile(filepath.Join(dir, string(d)), content, 0o644); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Get(srv.URL + "/" + string(d))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Equal(body, content) {
		t.Errorf("body = %q, want %q", body, content)
	}
	if resp.Header.Get("Content-Disposition") == "" {
		t.Error("missing Content-Disposition header")
	}
	if resp.Header.Get("X-Content-Digest-Algorithm") != "sha3-256" {
		t.Errorf("X-Content-Digest-Algorithm = %q, want sha3-256", resp.Header.Get("X-Content-Digest-Algorithm"))
	}
}

// TestGetWrongLengthDigest: a 17-character digest yields the 400
// validation envelope with loc [path, checksum].
func TestGetWrongLengthDigest(t *testing.T) {
	srv, _ := newTestServer(t, false)

	resp, err := http.Get(srv.URL + "/" + "6825cebdca9c23539") // wrong length
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}

	var envelope struct {
		Message   string `json:"message"`
		Exception struct {
			Type string        `json:"type"`
			Loc  []interface{} `json:"loc"`
			Msg  string        `json:"msg"`
		} `json:"exception"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatal(err)
	}
	if envelope.Exception.Type != "value_error" {
		t.Errorf("exception.type = %q, want value_error", envelope.Exception.Type)
	}
	if len(envelope.Exception.Loc) != 2 || envelope.Exception.Loc[0] != "path" {
		t.Errorf("exception.loc = %v, want [path checksum]", envelope.Exception.Loc)
	}
	if envelope.Exception.Msg != "Value error, Wrong length" {
		t.Errorf("exception.msg = %q, want %q", envelope.Exception.Msg, "Value error, Wrong length")
	}
}

// TestGetNonHexDigest: a right-length but non-hex digest yields the
// validation envelope with a message naming the non-hexadecimal input.
func TestGetNonHexDigest(t *testing.T) {
	srv, _ := newTestServer(t, false)

	bad := "xx" + strings.Repeat("a", 62)
	resp, err := http.Get(srv.URL + "/" + bad)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}

	var envelope struct {
		Exception struct {
			Msg string `json:"msg"`
		} `json:"exception"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(envelope.Exception.Msg, "non-hexadecimal") {
		t.Errorf("exception.msg = %q, want it to contain %q", envelope.Exception.Msg, "non-hexadecimal")
	}
}

// TestPutThenGetRoundTrip: PUT then GET is identity on byte content.
func TestPutThenGetRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t, true)

	content := []byte("This is a buffer\nthat is used\nfor testing purposes")
	d := digest.FromBytes(digest.SHA3256, content)

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/"+string(d), bytes.NewReader(content))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PUT status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "OK" {
		t.Errorf("PUT body = %q, want OK", body)
	}

	getResp, err := http.Get(srv.URL + "/" + string(d))
	if err != nil {
		t.Fatal(err)
	}
	defer getResp.Body.Close()
	gotBody, _ := io.ReadAll(getResp.Body)
	if !bytes.Equal(gotBody, content) {
		t.Errorf("GET body = %q, want %q", gotBody, content)
	}
}

// TestPutNotWritableIs404 ensures PUT is absent unless --writable was set.
func TestPutNotWritableIs404(t *testing.T) {
	srv, _ := newTestServer(t, false)

	content := []byte("won't be accepted")
	d := digest.FromBytes(digest.SHA3256, content)
	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/"+string(d), bytes.NewReader(content))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound && resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 404 or 405 when the server isn't writable", resp.StatusCode)
	}
}

// TestHasBatch: /has reports sizes for present digests and 0 for
// absent ones, preserving input order.
func TestHasBatch(t *testing.T) {
	srv, dir := newTestServer(t, false)

	content := []byte("hello")
	present := digest.FromBytes(digest.SHA3256, content)
	if err := os.WriteFile(filepath.Join(dir, string(present)), content, 0o644); err != nil {
		t.Fatal(err)
	}
	absent := string(present)[:63] + flip(string(present)[63])

	reqBody, _ := json.Marshal([]string{string(present), absent})
	resp, err := http.Post(srv.URL+"/has", "application/json", bytes.NewReader(reqBody))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var sizes []int64
	if err := json.NewDecoder(resp.Body).Decode(&sizes); err != nil {
		t.Fatal(err)
	}
	if len(sizes) != 2 {
		t.Fatalf("len(sizes) = %d, want 2", len(sizes))
	}
	if sizes[0] <= 0 {
		t.Errorf("sizes[0] = %d, want > 0", sizes[0])
	}
	if sizes[1] != 0 {
		t.Errorf("sizes[1] = %d, want 0", sizes[1])
	}
}

// TestHasInvalidDigestReturns400: a malformed element in the /has body
// yields the validation envelope with loc [body, i].
func TestHasInvalidDigestReturns400(t *testing.T) {
	srv, _ := newTestServer(t, false)

	reqBody, _ := json.Marshal([]string{"not-a-digest"})
	resp, err := http.Post(srv.URL+"/has", "application/json", bytes.NewReader(reqBody))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}

	var envelope struct {
		Exception struct {
			Loc []interface{} `json:"loc"`
		} `json:"exception"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatal(err)
	}
	if len(envelope.Exception.Loc) != 2 || envelope.Exception.Loc[0] != "body" {
		t.Errorf("exception.loc = %v, want [body, <index>]", envelope.Exception.Loc)
	}
}

// TestPromiseThenGetBlocksUntilResolved: after a PUT /promise/D, a
// concurrent GET D blocks until a matching PUT resolves it.
func TestPromiseThenGetBlocksUntilResolved(t *testing.T) {
	srv, _ := newTestServer(t, true)

	content := []byte("promised content")
	d := digest.FromBytes(digest.SHA3256, content)

	promiseResp, err := http.DefaultClient.Do(mustRequest(t, http.MethodPut, srv.URL+"/promise/"+string(d), nil))
	if err != nil {
		t.Fatal(err)
	}
	defer promiseResp.Body.Close()
	if promiseResp.StatusCode != http.StatusAccepted {
		t.Fatalf("promise status = %d, want 202", promiseResp.StatusCode)
	}

	getDone := make(chan *http.Response, 1)
	go func() {
		resp, err := http.Get(srv.URL + "/" + string(d))
		if err != nil {
			t.Error(err)
			return
		}
		getDone <- resp
	}()

	select {
	case <-getDone:
		t.Fatal("GET should block while the promise is outstanding")
	case <-time.After(100 * time.Millisecond):
	}

	putReq := mustRequest(t, http.MethodPut, srv.URL+"/"+string(d), bytes.NewReader(content))
	putResp, err := http.DefaultClient.Do(putReq)
	if err != nil {
		t.Fatal(err)
	}
	putResp.Body.Close()

	select {
	case resp := <-getDone:
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET after resolve status = %d, want 200", resp.StatusCode)
		}
		body, _ := io.ReadAll(resp.Body)
		if !bytes.Equal(body, content) {
			t.Errorf("GET body = %q, want %q", body, content)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("GET did not unblock after the promise resolved")
	}
}

// TestHeadReturnsHeadersWithoutBody: HEAD /{digest} carries the same
// headers as GET with an empty body.
func TestHeadReturnsHeadersWithoutBody(t *testing.T) {
	srv, dir := newTestServer(t, false)

	content := []byte("head content")
	d := digest.FromBytes(digest.SHA3256, content)
	if err := os.WriteFile(filepath.Join(dir, string(d)), content, 0o644); err != nil {
		t.Fatal(err)
	}

	resp, err := http.DefaultClient.Do(mustRequest(t, http.MethodHead, srv.URL+"/"+string(d), nil))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if len(body) != 0 {
		t.Errorf("HEAD body should be empty, got %d bytes", len(body))
	}
	if resp.Header.Get("ETag") == "" {
		t.Error("missing ETag header on HEAD")
	}
}

// TestGetCorruptionEnvelope: a file whose bytes don't hash to its name
// yields a 400 {"message": "File corruption: ..."} envelope.
func TestGetCorruptionEnvelope(t *testing.T) {
	srv, dir := newTestServer(t, false)

	full := []byte("the full text whose digest names the truncated file on disk")
	d := digest.FromBytes(digest.SHA3256, full)
	if err := os.WriteFile(filepath.Join(dir, string(d)), full[:10], 0o644); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Get(srv.URL + "/" + string(d))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}

	var envelope struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatal(err)
	}
	wantPrefix := "File corruption: file at path "
	if len(envelope.Message) < len(wantPrefix) || envelope.Message[:len(wantPrefix)] != wantPrefix {
		t.Errorf("message = %q, want it to start with %q", envelope.Message, wantPrefix)
	}
}

func mustRequest(t *testing.T, method, url string, body io.Reader) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatal(err)
	}
	return req
}
