// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	tests := []struct {
		id      Id
		wantNil bool
	}{
		{ConfigLoadFailedId, false},
		{CredentialsMissingId, false},
		{UnsupportedSchemeId, false},
		{PermissionDeniedId, false},
		{BucketNotFoundId, false},
		{Id(0), true},
		{Id(999), true},
	}

	for _, tt := range tests {
		got := Get(tt.id)
		if (got == nil) != tt.wantNil {
			t.Errorf("Get(%d) nil = %v, want %v", tt.id, got == nil, tt.wantNil)
		}
		if got != nil && got.Id() != tt.id {
			t.Errorf("Get(%d).Id() = %d", tt.id, got.Id())
		}
	}
}

func TestValues_SortedAndComplete(t *testing.T) {
	values := Values()
	if len(values) != len(issues) {
		t.Fatalf("Values() returned %d issues, want %d", len(values), len(issues))
	}
	for i := 1; i < len(values); i++ {
		if values[i-1].Id() >= values[i].Id() {
			t.Errorf("Values() not sorted at %d: %d >= %d", i, values[i-1].Id(), values[i].Id())
		}
	}
	for _, is := range values {
		if strings.TrimSpace(string(is.MarkdownMsg())) == "" {
			t.Errorf("issue %d has empty markdown", is.Id())
		}
	}
}

func TestIssue_Render_AppendsLinks(t *testing.T) {
	originalRender := render
	defer func() { render = originalRender }()

	var gotStyle string
	render = func(in string, stylePath string) (string, error) {
		gotStyle = stylePath
		return in, nil
	}

	out, err := Get(CredentialsMissingId).Render("notty")
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if gotStyle != "notty" {
		t.Errorf("style = %q, want notty", gotStyle)
	}
	if !strings.Contains(out, "## See also") {
		t.Error("rendered guide should list documentation links")
	}
	if !strings.Contains(out, "aws configure") {
		t.Error("rendered guide should mention the S3 setup")
	}
}

func TestIssue_Render_NoLinks(t *testing.T) {
	originalRender := render
	defer func() { render = originalRender }()

	render = func(in string, _ string) (string, error) { return in, nil }

	out, err := Get(PermissionDeniedId).Render("notty")
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if strings.Contains(out, "See also") {
		t.Error("guide without links should not have a See also section")
	}
}

func TestIssue_DocLinksIsCopy(t *testing.T) {
	is := Get(ConfigLoadFailedId)
	links := is.DocLinks()
	if len(links) == 0 {
		t.Fatal("expected doc links")
	}
	links[0] = "mutated"
	if is.DocLinks()[0] == "mutated" {
		t.Error("DocLinks() must return a copy")
	}
}

func TestAllIssuesAreRenderable(t *testing.T) {
	for _, is := range Values() {
		out, err := is.Render("notty")
		if err != nil {
			t.Errorf("issue %d: Render() error = %v", is.Id(), err)
			continue
		}
		if strings.TrimSpace(out) == "" {
			t.Errorf("issue %d rendered empty", is.Id())
		}
	}
}
