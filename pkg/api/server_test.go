package api

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/james-see/skipper/pkg/program"
	"github.com/james-see/skipper/pkg/registry"
)

const bassline = `{"name": "Bassline", "lengthBars": 1, "notes": [
	{"pitch": 36, "startBeat": 0, "lengthBeats": 1, "velocity": 0.9},
	{"pitch": 43, "startBeat": 2, "lengthBeats": 1, "velocity": 0.7}]}`

func newTestServer(t *testing.T, dir string) (*Server, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger, _ := test.NewNullLogger()
	s := NewServer(NewStore(dir, logger), logger)
	return s, s.Router()
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func stageBody(track, program string) string {
	return `{"stages": [{"track": "` + track + `", "program": ` + program + `}]}`
}

func TestHealth(t *testing.T) {
	_, r := newTestServer(t, "")
	w := do(r, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"healthy"`) {
		t.Errorf("body = %s", w.Body.String())
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}

func TestCORSPreflight(t *testing.T) {
	_, r := newTestServer(t, "")
	w := do(r, http.MethodOptions, "/api/stage", "")
	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
}

func TestStageAndRegister(t *testing.T) {
	_, r := newTestServer(t, "")

	w := do(r, http.MethodPost, "/api/stage", stageBody("Bass", bassline))
	if w.Code != http.StatusOK {
		t.Fatalf("stage status = %d: %s", w.Code, w.Body.String())
	}
	var staged registry.StageResponse
	if err := json.Unmarshal(w.Body.Bytes(), &staged); err != nil {
		t.Fatal(err)
	}
	if staged.Staged != 1 || staged.CommitAt != "next_bar" || staged.Tracks != "Bass" {
		t.Errorf("stage response = %+v", staged)
	}

	// track lookup is case-insensitive
	w = do(r, http.MethodPost, "/api/register", `{"uuid": "skipper-1", "track": "bass"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("register status = %d: %s", w.Code, w.Body.String())
	}
	var reg registry.RegisterResponse
	if err := json.Unmarshal(w.Body.Bytes(), &reg); err != nil {
		t.Fatal(err)
	}
	if !reg.Registered || reg.UUID != "skipper-1" {
		t.Errorf("register response = %+v", reg)
	}
	p, _, err := program.Parse(reg.Program)
	if err != nil {
		t.Fatalf("registered program does not parse: %v", err)
	}
	if p.Name() != "Bassline" || p.NoteCount != 2 {
		t.Errorf("program = %q with %d notes", p.Name(), p.NoteCount)
	}

	w = do(r, http.MethodGet, "/api/plugins", "")
	var plugins []registry.PluginInfo
	if err := json.Unmarshal(w.Body.Bytes(), &plugins); err != nil {
		t.Fatal(err)
	}
	if len(plugins) != 1 || plugins[0].Track != "bass" {
		t.Errorf("plugins = %+v", plugins)
	}
}

func TestRegisterWithoutProgram(t *testing.T) {
	_, r := newTestServer(t, "")
	w := do(r, http.MethodPost, "/api/register", `{"uuid": "skipper-2", "track": "Drums"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"program":null`) {
		t.Errorf("body = %s, want a null program", w.Body.String())
	}
}

func TestRegisterValidation(t *testing.T) {
	_, r := newTestServer(t, "")
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad json", `{`, "Invalid request body"},
		{"no uuid", `{"track": "Bass"}`, "Plugin UUID required"},
		{"no track", `{"uuid": "skipper-1"}`, "Track name required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, http.MethodPost, "/api/register", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
			if !strings.Contains(w.Body.String(), tt.want) {
				t.Errorf("body = %s, want %q", w.Body.String(), tt.want)
			}
		})
	}
}

func TestStageValidation(t *testing.T) {
	_, r := newTestServer(t, "")
	tests := []struct {
		name string
		body string
		want string
	}{
		{"no stages", `{"stages": []}`, "No stages provided"},
		{"no track", stageBody("", bassline), "track name required"},
		{"bad bar length", stageBody("Bass", `{"lengthBars": 3, "notes": []}`), "invalid bar length"},
		{"no notes", stageBody("Bass", `{"name": "empty"}`), "no notes array"},
		{"length mismatch", stageBody("Bass", `{"lengthBars": 4, "lengthBeats": 1e9, "notes": []}`), "does not match"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, http.MethodPost, "/api/stage", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
			if !strings.Contains(w.Body.String(), tt.want) {
				t.Errorf("body = %s, want %q", w.Body.String(), tt.want)
			}
		})
	}

	w := do(r, http.MethodGet, "/api/programs", "")
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("rejected stages were kept: %s", w.Body.String())
	}
}

func TestStagingFileFallback(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{
		"Lead Synth": `{"name": "lead", "notes": [{"pitch": 72}]}`,
		"pads":       `{"name": "pads", "notes": [{"pitch": 60}]}`,
	} {
		if err := os.WriteFile(filepath.Join(dir, name+".json"), []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
	}
	s, _ := newTestServer(t, dir)

	tests := []struct {
		track string
		want  string
	}{
		{"Lead Synth", "lead"},  // exact
		{"LEAD SYNTH", "lead"},  // case-insensitive
		{"Warm Pads 2", "pads"}, // track contains file name
		{"Lead", "lead"},        // file name contains track
		{"Drums", ""},           // no match
	}
	for _, tt := range tests {
		t.Run(tt.track, func(t *testing.T) {
			payload, ok := s.store.Lookup(tt.track)
			if tt.want == "" {
				if ok {
					t.Errorf("Lookup(%q) found %s", tt.track, payload)
				}
				return
			}
			if !ok {
				t.Fatalf("Lookup(%q) found nothing", tt.track)
			}
			p, _, err := program.Parse(payload)
			if err != nil {
				t.Fatalf("Lookup(%q) payload does not parse: %v", tt.track, err)
			}
			if p.Name() != tt.want {
				t.Errorf("Lookup(%q) = %q, want %q", tt.track, p.Name(), tt.want)
			}
		})
	}

	var sources []string
	for _, info := range s.store.Programs() {
		sources = append(sources, info.Source)
	}
	for _, src := range sources {
		if src != sourceFile {
			t.Errorf("file hits should be cached with source %q, got %q", sourceFile, src)
		}
	}
}

func TestStageWritesFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "staging")
	_, r := newTestServer(t, dir)

	w := do(r, http.MethodPost, "/api/stage", stageBody("Bass/Sub", bassline))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	data, err := os.ReadFile(filepath.Join(dir, "Bass_Sub.json"))
	if err != nil {
		t.Fatalf("staging file not written: %v", err)
	}
	if _, _, err := program.Parse(data); err != nil {
		t.Errorf("staging file does not parse: %v", err)
	}

	// a fresh server picks the program up from disk
	s2, _ := newTestServer(t, dir)
	if _, ok := s2.store.Lookup("bass_sub"); !ok {
		t.Error("staged program not found from disk")
	}
}

func TestProgramsAndPayload(t *testing.T) {
	_, r := newTestServer(t, "")
	do(r, http.MethodPost, "/api/stage", stageBody("Bass", bassline))

	w := do(r, http.MethodGet, "/api/programs", "")
	var list []registry.ProgramInfo
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Name != "Bassline" || list[0].Notes != 2 || list[0].LengthBars != 1 {
		t.Errorf("programs = %+v", list)
	}

	w = do(r, http.MethodGet, "/api/programs/BASS", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Bassline") {
		t.Errorf("payload = %d %s", w.Code, w.Body.String())
	}

	w = do(r, http.MethodGet, "/api/programs/Keys", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("missing program status = %d, want 404", w.Code)
	}
}

func TestRenderProgramMIDI(t *testing.T) {
	_, r := newTestServer(t, "")
	do(r, http.MethodPost, "/api/stage", stageBody("Bass", bassline))

	w := do(r, http.MethodGet, "/api/programs/Bass/midi?loops=2", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "audio/midi" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(w.Header().Get("Content-Disposition"), "Bass.mid") {
		t.Errorf("Content-Disposition = %q", w.Header().Get("Content-Disposition"))
	}

	p, _, err := program.FromSMF("render", w.Body.Bytes())
	if err != nil {
		t.Fatalf("rendered MIDI does not parse: %v", err)
	}
	if p.NoteCount != 4 {
		t.Errorf("rendered notes = %d, want 4 over two loops", p.NoteCount)
	}

	w = do(r, http.MethodGet, "/api/programs/Bass/midi?loops=0", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("loops=0 status = %d, want 400", w.Code)
	}
}

func TestImportMIDI(t *testing.T) {
	s, r := newTestServer(t, "")

	// render a builtin to get a MIDI file to upload
	if _, err := s.store.Stage("drums", mustPayload(t, program.RockBeat())); err != nil {
		t.Fatal(err)
	}
	w := do(r, http.MethodGet, "/api/programs/drums/midi", "")
	if w.Code != http.StatusOK {
		t.Fatalf("render status = %d", w.Code)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "groove.mid")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write(w.Body.Bytes())
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("import status = %d: %s", w.Code, w.Body.String())
	}
	var info registry.ProgramInfo
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
		t.Fatal(err)
	}
	if info.Track != "groove" || info.Notes != 16 || info.LengthBars != 4 {
		t.Errorf("import = %+v", info)
	}
	if _, ok := s.store.Lookup("groove"); !ok {
		t.Error("imported program was not staged")
	}

	w = do(r, http.MethodPost, "/api/import", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty import status = %d, want 400", w.Code)
	}
}

func mustPayload(t *testing.T, p *program.Program) []byte {
	t.Helper()
	data, err := p.Payload()
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestRenderLengthLimit(t *testing.T) {
	dir := t.TempDir()
	// staging files are read without stage validation
	body := `{"name": "huge", "lengthBars": 4, "lengthBeats": 1e9, "notes": [{"pitch": 60}]}`
	if err := os.WriteFile(filepath.Join(dir, "Huge.json"), []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	_, r := newTestServer(t, dir)

	w := do(r, http.MethodGet, "/api/programs/Huge/midi?loops=64", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if !strings.Contains(w.Body.String(), "exceeds") {
		t.Errorf("body = %s, want a length error", w.Body.String())
	}

	do(r, http.MethodPost, "/api/stage", stageBody("Bass", bassline))
	w = do(r, http.MethodGet, "/api/programs/Bass/midi?loops=64", "")
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 for the longest allowed render", w.Code)
	}
}
