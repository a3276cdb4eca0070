package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/igvedmak/parkspeak/internal/config"
	"github.com/igvedmak/parkspeak/internal/database"
	"github.com/igvedmak/parkspeak/internal/hearing"
	"github.com/igvedmak/parkspeak/internal/models"
	"github.com/igvedmak/parkspeak/internal/observe"
	"github.com/igvedmak/parkspeak/internal/repository"
	"github.com/igvedmak/parkspeak/internal/services"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
)

func setupDB(t *testing.T) {
	t.Helper()
	cfg := config.DatabaseConfig{
		Driver:     "sqlite",
		SQLitePath: fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
		LogLevel:   "silent",
	}
	db, err := database.Open(cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if err := database.Migrate(db, zap.NewNop()); err != nil {
		t.Fatal(err)
	}
	prev := database.DB
	database.DB = db
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
		database.DB = prev
	})
}

func newEngine(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	setupDB(t)

	met, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatal(err)
	}
	settings := func() config.HearingConfig { return config.HearingConfig{MaxAmbientDb: 50} }
	manager := services.NewHearingSessionManager(zap.NewNop(), services.NewMemoryStore(), repository.HearingStore{},
		models.DefaultLanguages(), settings, services.WithMetrics(met), services.WithRand(rand.New(rand.NewPCG(1, 2))))

	r := gin.New()
	r.Use(sessions.Sessions("test", cookie.NewStore([]byte("test-secret"))))
	h := NewHearingHandler(zap.NewNop(), manager)
	r.POST("/tests", h.Create)
	r.GET("/tests/current", h.Current)
	r.GET("/tests/:id", h.Get)
	r.POST("/tests/:id/ambient-check", h.BeginAmbientCheck)
	r.POST("/tests/:id/ambient", h.SubmitAmbient)
	r.POST("/tests/:id/responses", h.Respond)
	r.DELETE("/tests/:id", h.Discard)

	res := NewResultsHandler(zap.NewNop())
	r.GET("/results", res.List)
	r.GET("/results/latest", res.Latest)
	r.GET("/results/chart", res.Chart)
	r.GET("/results/:id", res.Get)

	sp := NewSpeechHandler(zap.NewNop())
	r.POST("/speech/intelligibility", sp.Intelligibility)
	r.POST("/speech/difficulty", sp.Difficulty)
	return r
}

type client struct {
	t      *testing.T
	r      *gin.Engine
	cookie string
}

func (c *client) do(method, path, body string) *httptest.ResponseRecorder {
	c.t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cookie != "" {
		req.Header.Set("Cookie", c.cookie)
	}
	w := httptest.NewRecorder()
	c.r.ServeHTTP(w, req)
	if sc := w.Header().Get("Set-Cookie"); sc != "" {
		c.cookie = strings.SplitN(sc, ";", 2)[0]
	}
	return w
}

func decodeView(t *testing.T, w *httptest.ResponseRecorder) sessionView {
	t.Helper()
	var v sessionView
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode: %v body=%s", err, w.Body.String())
	}
	return v
}

func TestHearingFlow(t *testing.T) {
	c := &client{t: t, r: newEngine(t)}

	w := c.do("POST", "/tests", `{"language":"he"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: got=%d want=%d body=%s", w.Code, http.StatusCreated, w.Body.String())
	}
	v := decodeView(t, w)
	if v.Phase != hearing.PhaseInstructions || v.Language != "he" || v.Next != nil {
		t.Fatalf("created view = %+v", v)
	}
	id := v.ID

	w = c.do("GET", "/tests/current", "")
	if w.Code != http.StatusOK || decodeView(t, w).ID != id {
		t.Fatalf("current: got=%d body=%s", w.Code, w.Body.String())
	}

	if w = c.do("POST", "/tests/"+id+"/ambient-check", ""); w.Code != http.StatusOK {
		t.Fatalf("ambient-check: got=%d", w.Code)
	}
	if w = c.do("POST", "/tests/"+id+"/ambient", `{"levelDb":63}`); w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("noisy ambient: got=%d want=%d", w.Code, http.StatusUnprocessableEntity)
	}
	if w = c.do("POST", "/tests/"+id+"/ambient", `{}`); w.Code != http.StatusBadRequest {
		t.Fatalf("empty ambient: got=%d want=%d", w.Code, http.StatusBadRequest)
	}

	w = c.do("POST", "/tests/"+id+"/ambient", `{"meteringDbfs":[-60,-50]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("ambient: got=%d body=%s", w.Code, w.Body.String())
	}
	v = decodeView(t, w)
	if v.Phase != hearing.PhaseRunning || v.Next == nil || *v.AmbientNoiseDb != 39 {
		t.Fatalf("running view = %+v", v)
	}
	if v.Next.VoiceCode != "he-IL" || v.Next.SNRDb != 4 {
		t.Fatalf("first playback = %+v", v.Next)
	}

	if w = c.do("POST", "/tests/"+id+"/responses", `{"digits":[1,2]}`); w.Code != http.StatusBadRequest {
		t.Fatalf("short response: got=%d want=%d", w.Code, http.StatusBadRequest)
	}

	for v.Phase == hearing.PhaseRunning {
		d := v.Next.Digits
		body := fmt.Sprintf(`{"digits":[%d,%d,%d]}`, d[0], d[1], d[2])
		w = c.do("POST", "/tests/"+id+"/responses", body)
		if w.Code != http.StatusOK {
			t.Fatalf("respond: got=%d body=%s", w.Code, w.Body.String())
		}
		v = decodeView(t, w)
	}
	if v.Result == nil || *v.Result != hearing.BandNormal || *v.SRTDb != -48 || len(v.Trials) != 23 || !v.Saved || v.ResultID == "" {
		t.Fatalf("final view = %+v", v)
	}

	w = c.do("GET", "/results/latest", "")
	if w.Code != http.StatusOK {
		t.Fatalf("latest: got=%d body=%s", w.Code, w.Body.String())
	}
	var rec models.HearingTest
	if err := json.Unmarshal(w.Body.Bytes(), &rec); err != nil {
		t.Fatal(err)
	}
	if rec.ID != v.ResultID || rec.Language != "he" || rec.Result != "normal" || *rec.AmbientNoiseDb != 39 {
		t.Fatalf("latest record = %+v", rec)
	}

	w = c.do("GET", "/results/"+rec.ID, "")
	var detail struct {
		Test    models.HearingTest `json:"test"`
		Metrics struct {
			CorrectTrials int `json:"correctTrials"`
			Reversals     int `json:"reversals"`
		} `json:"metrics"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &detail); err != nil || w.Code != http.StatusOK {
		t.Fatalf("get result: got=%d err=%v", w.Code, err)
	}
	if detail.Test.ID != rec.ID || detail.Metrics.CorrectTrials != 23 || detail.Metrics.Reversals != 0 {
		t.Fatalf("result detail = %+v", detail)
	}
	if w = c.do("GET", "/results?limit=0", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("bad limit: got=%d want=%d", w.Code, http.StatusBadRequest)
	}
	w = c.do("GET", "/results?limit=5", "")
	var list struct {
		Results []models.HearingTest `json:"results"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil || len(list.Results) != 1 {
		t.Fatalf("list = %s, %v", w.Body.String(), err)
	}

	w = c.do("GET", "/results/chart?days=30", "")
	var chart struct {
		Points  int            `json:"points"`
		Options map[string]any `json:"options"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &chart); err != nil || w.Code != http.StatusOK {
		t.Fatalf("chart: got=%d err=%v", w.Code, err)
	}
	if chart.Points != 1 || chart.Options["series"] == nil {
		t.Fatalf("chart = %+v", chart)
	}
}

func TestHearingNotFoundAndDiscard(t *testing.T) {
	c := &client{t: t, r: newEngine(t)}

	if w := c.do("GET", "/tests/missing", ""); w.Code != http.StatusNotFound {
		t.Fatalf("get missing: got=%d want=%d", w.Code, http.StatusNotFound)
	}
	if w := c.do("GET", "/tests/current", ""); w.Code != http.StatusNotFound {
		t.Fatalf("current without cookie: got=%d want=%d", w.Code, http.StatusNotFound)
	}
	if w := c.do("POST", "/tests", `{"language":"not a tag"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("bad language: got=%d want=%d", w.Code, http.StatusBadRequest)
	}
	if w := c.do("GET", "/results/latest", ""); w.Code != http.StatusNotFound {
		t.Fatalf("latest on empty db: got=%d want=%d", w.Code, http.StatusNotFound)
	}

	w := c.do("POST", "/tests", "")
	if w.Code != http.StatusCreated {
		t.Fatalf("create without body: got=%d", w.Code)
	}
	id := decodeView(t, w).ID

	if w = c.do("DELETE", "/tests/"+id, ""); w.Code != http.StatusNoContent {
		t.Fatalf("discard: got=%d want=%d", w.Code, http.StatusNoContent)
	}
	if w = c.do("GET", "/tests/"+id, ""); w.Code != http.StatusNotFound {
		t.Fatalf("get discarded: got=%d want=%d", w.Code, http.StatusNotFound)
	}
	if w = c.do("GET", "/tests/current", ""); w.Code != http.StatusNotFound {
		t.Fatalf("current after discard: got=%d want=%d", w.Code, http.StatusNotFound)
	}
}

func TestSpeechEndpoints(t *testing.T) {
	c := &client{t: t, r: newEngine(t)}

	w := c.do("POST", "/speech/intelligibility", `{"recognized":"the cat sat","target":"The cat sat down"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("intelligibility: got=%d", w.Code)
	}
	var score struct {
		Score int `json:"score"`
		Words []struct {
			TargetWord string `json:"targetWord"`
			Matched    bool   `json:"matched"`
		} `json:"words"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &score); err != nil {
		t.Fatal(err)
	}
	if score.Score != 75 || len(score.Words) != 4 || score.Words[3].Matched {
		t.Fatalf("score = %+v", score)
	}

	cases := []struct {
		body string
		want int
	}{
		{`{}`, 1},
		{`{"averageAccuracy":95}`, 3},
		{`{"averageAccuracy":70}`, 2},
		{`{"averageAccuracy":40}`, 1},
	}
	for _, tc := range cases {
		w := c.do("POST", "/speech/difficulty", tc.body)
		var got struct {
			Level int `json:"level"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil || got.Level != tc.want {
			t.Errorf("difficulty %s: got=%d want=%d (%v)", tc.body, got.Level, tc.want, err)
		}
	}
}
