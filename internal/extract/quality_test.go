package extract

import (
	"strings"
	"testing"
)

func TestAssessQuality_BundleGunk(t *testing.T) {
	q := AssessQuality("window.__APP__ webpack chunk-vendors sourceMappingURL")
	if !q.BundleGunk {
		t.Fatalf("%+v", q)
	}
	if !q.HasLowSignal {
		t.Fatalf("short bundle text should be low signal: %+v", q)
	}
}

func TestAssessQuality_NavDominant(t *testing.T) {
	text := strings.Join([]string{"Home", "About", "Docs", "Pricing", "Login", "Blog"}, "\n")
	q := AssessQuality(text)
	if !q.HasLowSignal {
		t.Fatalf("%+v", q)
	}
}

func TestAssessQuality_ProseIsFine(t *testing.T) {
	text := strings.Repeat("This is a normal paragraph of prose with plenty of substance in it.\n", 6)
	q := AssessQuality(text)
	if q.HasLowSignal || q.BundleGunk {
		t.Fatalf("%+v", q)
	}
}

func TestNormalizeVTT(t *testing.T) {
	vtt := "WEBVTT\nKind: captions\n\n1\n00:00:01.000 --> 00:00:02.000\n<c>Hello there</c>\n\n2\n00:00:02.000 --> 00:00:03.000\nHello there\n\n3\n00:00:03.000 --> 00:00:04.000\nGeneral Kenobi\n"
	got := NormalizeVTT(vtt)
	if strings.Contains(got, "-->") || strings.Contains(got, "WEBVTT") || strings.Contains(got, "<c>") {
		t.Fatalf("markup survived: %q", got)
	}
	if strings.Count(got, "Hello there") != 1 {
		t.Fatalf("rolling duplicate not removed: %q", got)
	}
	if !strings.Contains(got, "General Kenobi") {
		t.Fatalf("dialogue lost: %q", got)
	}
}
