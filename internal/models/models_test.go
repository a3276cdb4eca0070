package models

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/igvedmak/parkspeak/internal/hearing"
)

func TestDigitsRoundTrip(t *testing.T) {
	d := hearing.Triplet{0, 7, 3}
	s := FormatDigits(d)
	if s != "073" {
		t.Fatalf("FormatDigits = %q", s)
	}
	got, err := ParseDigits(s)
	if err != nil || got != d {
		t.Fatalf("ParseDigits = %v, %v", got, err)
	}
	for _, bad := range []string{"", "12", "1234", "1a3"} {
		if _, err := ParseDigits(bad); err == nil {
			t.Errorf("ParseDigits(%q) accepted", bad)
		}
	}
}

func TestHearingTestFromState(t *testing.T) {
	if _, err := HearingTestFromState("x", time.Now(), hearing.NewState(), nil, "en"); err == nil {
		t.Fatal("incomplete state accepted")
	}

	srt := -6.25
	band := hearing.BandNormal
	correct := true
	resp := hearing.Triplet{1, 2, 3}
	s := hearing.State{
		Phase:  hearing.PhaseComplete,
		SRTDb:  &srt,
		Result: &band,
		Trials: []hearing.Trial{
			{Digits: hearing.Triplet{1, 2, 3}, SNRDb: 4, Response: &resp, Correct: &correct},
		},
	}
	ambient := 32.5
	rec, err := HearingTestFromState("id-1", time.Unix(0, 0), s, &ambient, "he")
	if err != nil {
		t.Fatal(err)
	}
	if rec.SRTDb != srt || rec.Result != "normal" || rec.Language != "he" || *rec.AmbientNoiseDb != ambient {
		t.Fatalf("record = %+v", rec)
	}
	if len(rec.Trials) != 1 || rec.Trials[0].Digits != "123" || *rec.Trials[0].Response != "123" || rec.Trials[0].Position != 1 {
		t.Fatalf("trial rows = %+v", rec.Trials)
	}
	want := `[{"digits":[1,2,3],"snrDb":4,"response":[1,2,3],"correct":true}]`
	if string(rec.TrialsJSON) != want {
		t.Fatalf("trials json = %s", rec.TrialsJSON)
	}
	trials, err := rec.DecodeTrials()
	if err != nil || len(trials) != 1 || *trials[0].Response != resp {
		t.Fatalf("DecodeTrials = %+v, %v", trials, err)
	}
}

func TestLoadLanguages(t *testing.T) {
	c, err := LoadLanguages(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if c.Resolve("xx").Code != "en" || c.Resolve("he").VoiceCode != "he-IL" {
		t.Fatalf("default catalogue resolve failed: %+v", c)
	}

	path := filepath.Join(t.TempDir(), "languages.yaml")
	yaml := "default: ru\nlanguages:\n  - code: ru\n    voice_code: ru-RU\n  - code: en\n    voice_code: en-GB\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err = LoadLanguages(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.Resolve("de").Code != "ru" || c.Resolve("en").VoiceCode != "en-GB" {
		t.Fatalf("file catalogue resolve failed: %+v", c)
	}

	if err := os.WriteFile(path, []byte("default: fr\nlanguages:\n  - code: en\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadLanguages(path); err == nil {
		t.Fatal("undefined default accepted")
	}
}
