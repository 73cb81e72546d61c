package profile

import (
	"encoding/json"
	"testing"
)

func decodeRecord(t *testing.T, raw string) map[string]any {
	t.Helper()
	var record map[string]any
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		t.Fatalf("unmarshal record: %v", err)
	}
	return record
}

func TestBuild_PluralRelations(t *testing.T) {
	record := decodeRecord(t, `{
		"id": "app_1",
		"candidates": {
			"name": "Ada Lovelace",
			"email": "ada@example.com",
			"parsed_data": {"skills": ["go", " ", "sql"], "experience": [{"title": "eng"}]}
		},
		"jobs": {"title": "Backend Engineer", "description": "Build APIs", "requirements": "Go"}
	}`)

	ctx, err := Build(record)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if ctx.ApplicationID != "app_1" {
		t.Fatalf("ApplicationID=%q, want app_1", ctx.ApplicationID)
	}
	if ctx.CandidateName != "Ada Lovelace" || ctx.CandidateEmail != "ada@example.com" {
		t.Fatalf("candidate=%q/%q", ctx.CandidateName, ctx.CandidateEmail)
	}
	if ctx.JobTitle != "Backend Engineer" || ctx.JobDescription != "Build APIs" {
		t.Fatalf("job=%q/%q", ctx.JobTitle, ctx.JobDescription)
	}
	if got := ctx.Skills(); len(got) != 2 || got[0] != "go" || got[1] != "sql" {
		t.Fatalf("Skills()=%v, want [go sql]", got)
	}
	edu, ok := ctx.CandidateProfile["education"].([]any)
	if !ok || len(edu) != 0 {
		t.Fatalf("education=%#v, want empty list", ctx.CandidateProfile["education"])
	}
	if ctx.JobProfile["requirements"] != "Go" {
		t.Fatalf("requirements=%v, want Go", ctx.JobProfile["requirements"])
	}
}

func TestBuild_SingularRelationAliases(t *testing.T) {
	record := decodeRecord(t, `{
		"id": "app_2",
		"candidate": {"name": "Grace"},
		"job": {"title": "SRE"}
	}`)
	ctx, err := Build(record)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if ctx.CandidateName != "Grace" || ctx.JobTitle != "SRE" {
		t.Fatalf("got name=%q title=%q", ctx.CandidateName, ctx.JobTitle)
	}
}

func TestBuild_MissingRelations(t *testing.T) {
	ctx, err := Build(map[string]any{"id": "app_3"})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if ctx.CandidateName != "" || ctx.JobTitle != "" {
		t.Fatalf("expected empty candidate/job, got %+v", ctx)
	}
	if len(ctx.CandidateProfile) != 0 || len(ctx.JobProfile) != 0 {
		t.Fatalf("expected empty profiles")
	}
}

func TestBuild_RequiresID(t *testing.T) {
	if _, err := Build(map[string]any{}); err == nil {
		t.Fatalf("expected error for record without id")
	}
	if _, err := Build(nil); err == nil {
		t.Fatalf("expected error for nil record")
	}
}

func TestSnapshot_IsCopy(t *testing.T) {
	ctx := ApplicationContext{
		ApplicationID:    "app_1",
		CandidateProfile: map[string]any{"name": "Ada"},
	}
	snap := ctx.Snapshot()
	snap["candidate_profile"].(map[string]any)["name"] = "changed"
	if ctx.CandidateProfile["name"] != "Ada" {
		t.Fatalf("snapshot mutation leaked into context")
	}
	if snap["application_id"] != "app_1" {
		t.Fatalf("application_id=%v", snap["application_id"])
	}
}
