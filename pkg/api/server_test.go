package api

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/james-see/qybridge/pkg/config"
	"github.com/james-see/qybridge/pkg/converter/devices"
	"github.com/james-see/qybridge/pkg/pattern"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testRouter() *gin.Engine {
	return NewServer(config.Default(), nil, nil).Router()
}

func upload(t *testing.T, url string, files map[string][]byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for field, data := range files {
		name := "input.syx"
		if bytes.HasPrefix(data, []byte("YQ7PAT")) {
			name = "input.Q7P"
		}
		part, err := w.CreateFormFile(field, name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := part.Write(data); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, url, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	testRouter().ServeHTTP(rec, req)
	return rec
}

func styleDump(t *testing.T) []byte {
	t.Helper()
	p := pattern.New(pattern.FormatTransport, pattern.TransportSections)
	p.Sections[0].Active = true
	p.Tempo = 1510
	data, err := devices.NewQY70().Write(p)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	return data
}

func TestHealth(t *testing.T) {
	for _, path := range []string{"/health", "/api/v1/health"} {
		rec := httptest.NewRecorder()
		testRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "qybridge") {
			t.Errorf("GET %s body = %s", path, rec.Body.String())
		}
	}
}

func TestListing(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/api/v1/formats", "conversions"},
		{"/api/v1/devices", "Yamaha QY700"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			testRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), tt.want) {
				t.Errorf("GET %s = %d %s, want 200 containing %q", tt.path, rec.Code, rec.Body.String(), tt.want)
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	rec := httptest.NewRecorder()
	testRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/v1/convert", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("OPTIONS = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}

func TestConvertToRecord(t *testing.T) {
	rec := upload(t, "/api/v1/convert?target=q7p", map[string][]byte{"file": styleDump(t)})
	if rec.Code != http.StatusOK {
		t.Fatalf("POST convert = %d %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.Bytes()
	if len(body) != devices.SmallFileSize {
		t.Fatalf("len = %d, want %d", len(body), devices.SmallFileSize)
	}
	if body[0x188] != 0x05 || body[0x189] != 0xE6 {
		t.Errorf("tempo bytes = % X, want 05 E6", body[0x188:0x18A])
	}
	if got := rec.Header().Get("Content-Disposition"); got != "attachment; filename=input.Q7P" {
		t.Errorf("Content-Disposition = %q", got)
	}
	if rec.Header().Get("X-Fidelity") == "" {
		t.Error("missing X-Fidelity header")
	}
}

func TestConvertToTransportAndMIDI(t *testing.T) {
	rec := upload(t, "/api/v1/convert?target=syx", map[string][]byte{"file": devices.DefaultTemplate()})
	if rec.Code != http.StatusOK {
		t.Fatalf("POST convert syx = %d %s", rec.Code, rec.Body.String())
	}
	if b := rec.Body.Bytes(); len(b) == 0 || b[0] != 0xF0 {
		t.Error("transport output does not start with F0")
	}

	rec = upload(t, "/api/v1/convert?target=mid&section=1", map[string][]byte{"file": styleDump(t)})
	if rec.Code != http.StatusOK {
		t.Fatalf("POST convert mid = %d %s", rec.Code, rec.Body.String())
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("MThd")) {
		t.Error("MIDI output does not start with MThd")
	}
}

func TestConvertRejects(t *testing.T) {
	broken := devices.DefaultTemplate()
	broken[0x18A] = 0x01

	tests := []struct {
		name string
		url  string
		file []byte
		want int
	}{
		{"unknown target", "/api/v1/convert?target=wav", devices.DefaultTemplate(), http.StatusBadRequest},
		{"invalid input", "/api/v1/convert?target=syx", broken, http.StatusUnprocessableEntity},
		{"strict", "/api/v1/convert?target=syx&strict=true", devices.DefaultTemplate(), http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := upload(t, tt.url, map[string][]byte{"file": tt.file})
			if rec.Code != tt.want {
				t.Errorf("POST %s = %d, want %d", tt.url, rec.Code, tt.want)
			}
		})
	}

	rec := upload(t, "/api/v1/convert?target=syx", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("POST without file = %d, want 400", rec.Code)
	}
}

func TestConvertClientFailures(t *testing.T) {
	fractional := devices.DefaultTemplate()
	binary.BigEndian.PutUint16(fractional[0x188:], 1205)

	rec := upload(t, "/api/v1/convert?target=syx", map[string][]byte{"file": fractional})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("POST fractional tempo to syx = %d %s, want 422", rec.Code, rec.Body.String())
	}

	rec = upload(t, "/api/v1/convert?target=q7p", map[string][]byte{
		"file":     styleDump(t),
		"template": []byte("not a pattern file"),
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("POST with a bad template = %d %s, want 422", rec.Code, rec.Body.String())
	}
}

func TestUploadLimit(t *testing.T) {
	big := bytes.Repeat([]byte{0x00}, 2<<20)
	rec := upload(t, "/api/v1/validate", map[string][]byte{"file": big})
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("POST %d bytes = %d, want 413", len(big), rec.Code)
	}
}

func TestValidateEndpoint(t *testing.T) {
	rec := upload(t, "/api/v1/validate", map[string][]byte{"file": devices.DefaultTemplate()})
	if rec.Code != http.StatusOK {
		t.Fatalf("POST validate = %d", rec.Code)
	}
	var got struct {
		Valid    bool `json:"valid"`
		Errors   int  `json:"errors"`
		Warnings int  `json:"warnings"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Valid || got.Errors != 0 || got.Warnings == 0 {
		t.Errorf("validate = %+v, want valid with warnings", got)
	}
}

func TestInfoEndpoint(t *testing.T) {
	rec := upload(t, "/api/v1/info", map[string][]byte{"file": devices.DefaultTemplate()})
	if rec.Code != http.StatusOK {
		t.Fatalf("POST info = %d %s", rec.Code, rec.Body.String())
	}
	var got pattern.Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Format != "record" || got.Tempo != 120 || len(got.Sections) != 6 {
		t.Errorf("info = %s %v %d sections", got.Format, got.Tempo, len(got.Sections))
	}

	rec = upload(t, "/api/v1/info", map[string][]byte{"file": []byte("nope")})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("POST info garbage = %d, want 400", rec.Code)
	}
}
