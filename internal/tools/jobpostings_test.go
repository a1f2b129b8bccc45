package tools

import "testing"

func TestLooksLikeJob(t *testing.T) {
	cases := []struct {
		title string
		url   string
		want  bool
	}{
		{"Senior Platform Engineer", "https://example.com/about", true},
		{"About Us", "https://example.com/careers/123", true},
		{"Quarterly Earnings Report", "https://example.com/investors", false},
		{"We're hiring!", "https://example.com", true},
	}
	for _, tc := range cases {
		if got := looksLikeJob(tc.title, tc.url); got != tc.want {
			t.Fatalf("looksLikeJob(%q, %q) = %v", tc.title, tc.url, got)
		}
	}
}

func TestExtractTechnologies(t *testing.T) {
	text := "we run kubernetes on aws with terraform and postgresql, plus some machine learning"
	got := extractTechnologies(text)
	want := map[string]bool{"aws": true, "kubernetes": true, "terraform": true, "postgresql": true, "machine learning": true}
	for _, tech := range got {
		delete(want, tech)
	}
	if len(want) != 0 {
		t.Fatalf("missing technologies: %v (got %v)", want, got)
	}
}

func TestInferSeniority(t *testing.T) {
	cases := []struct {
		title string
		want  string
	}{
		{"Senior Software Engineer", "senior"},
		{"Staff Platform Engineer", "senior"},
		{"Director of Engineering", "director"},
		{"VP, Infrastructure", "director"},
		{"Engineering Manager", "manager"},
		{"Junior Developer", "junior"},
		{"Software Engineering Intern", "intern"},
		{"Software Engineer", "mid-level"},
	}
	for _, tc := range cases {
		if got := inferSeniority(tc.title); got != tc.want {
			t.Fatalf("inferSeniority(%q) = %q, want %q", tc.title, got, tc.want)
		}
	}
}

func TestHostOf(t *testing.T) {
	if got := hostOf("https://boards.greenhouse.io/acme/jobs/1"); got != "boards.greenhouse.io" {
		t.Fatalf("hostOf = %q", got)
	}
}
