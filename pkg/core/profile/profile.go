// Package profile assembles the immutable application context an interview
// session runs against.
package profile

import (
	"fmt"
	"strings"
)

// ApplicationContext is the candidate/job view of one application.
type ApplicationContext struct {
	ApplicationID    string
	JobTitle         string
	JobDescription   string
	CandidateName    string
	CandidateEmail   string
	CandidateProfile map[string]any
	JobProfile       map[string]any
}

// Build converts a Profile Store application record (with joined candidate and
// job relations) into an ApplicationContext.
//
// Relations may be aliased "candidates"/"candidate" and "jobs"/"job".
func Build(record map[string]any) (ApplicationContext, error) {
	if record == nil {
		return ApplicationContext{}, fmt.Errorf("application record is nil")
	}
	id := stringField(record, "id")
	if id == "" {
		return ApplicationContext{}, fmt.Errorf("application record has no id")
	}

	candidate := relation(record, "candidates", "candidate")
	job := relation(record, "jobs", "job")

	candidateProfile := map[string]any{}
	if candidate != nil {
		parsed, _ := candidate["parsed_data"].(map[string]any)
		candidateProfile = map[string]any{
			"name":       candidate["name"],
			"email":      candidate["email"],
			"skills":     listField(parsed, "skills"),
			"experience": listField(parsed, "experience"),
			"education":  listField(parsed, "education"),
		}
	}

	jobProfile := map[string]any{}
	if job != nil {
		jobProfile = map[string]any{
			"title":        job["title"],
			"description":  job["description"],
			"requirements": job["requirements"],
		}
	}

	return ApplicationContext{
		ApplicationID:    id,
		JobTitle:         stringField(job, "title"),
		JobDescription:   stringField(job, "description"),
		CandidateName:    stringField(candidate, "name"),
		CandidateEmail:   stringField(candidate, "email"),
		CandidateProfile: candidateProfile,
		JobProfile:       jobProfile,
	}, nil
}

// Skills returns the candidate skill list as strings, skipping non-string
// entries.
func (c ApplicationContext) Skills() []string {
	raw, _ := c.CandidateProfile["skills"].([]any)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Snapshot returns the context as a JSON-friendly map for session metadata.
func (c ApplicationContext) Snapshot() map[string]any {
	return map[string]any{
		"application_id":    c.ApplicationID,
		"job_title":         c.JobTitle,
		"job_description":   c.JobDescription,
		"candidate_name":    c.CandidateName,
		"candidate_email":   c.CandidateEmail,
		"candidate_profile": cloneMap(c.CandidateProfile),
		"job_profile":       cloneMap(c.JobProfile),
	}
}

func relation(record map[string]any, keys ...string) map[string]any {
	for _, key := range keys {
		if m, ok := record[key].(map[string]any); ok {
			return m
		}
	}
	return nil
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func listField(m map[string]any, key string) []any {
	if m == nil {
		return []any{}
	}
	if list, ok := m[key].([]any); ok && list != nil {
		return list
	}
	return []any{}
}

func cloneMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
