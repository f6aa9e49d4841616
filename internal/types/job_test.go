package types

import "testing"

func TestStatusIsTerminal(t *testing.T) {
	cases := []struct {
		status Status
		want   bool
	}{
		{StatusPending, false},
		{StatusProcessing, false},
		{StatusCompleted, true},
		{StatusCompletedWithErrors, true},
		{StatusFailed, true},
		{StatusCancelled, true},
	}
	for _, c := range cases {
		t.Run(string(c.status), func(t *testing.T) {
			if got := c.status.IsTerminal(); got != c.want {
				t.Fatalf("Status(%q).IsTerminal() = %v; want %v", c.status, got, c.want)
			}
		})
	}
}

func TestParsePriority(t *testing.T) {
	cases := []struct {
		in   string
		want Priority
	}{
		{"urgent", PriorityUrgent},
		{"high", PriorityHigh},
		{"low", PriorityLow},
		{"normal", PriorityNormal},
		{"", PriorityNormal},
		{"unrecognized", PriorityNormal},
	}
	for _, c := range cases {
		t.Run(c.in, func(t *testing.T) {
			if got := ParsePriority(c.in); got != c.want {
				t.Fatalf("ParsePriority(%q) = %v; want %v", c.in, got, c.want)
			}
		})
	}
}

func TestJobCancellation(t *testing.T) {
	j := &Job{ID: "job-1"}
	if j.Cancelled() {
		t.Fatalf("new job should not be cancelled")
	}
	j.MarkCancelled()
	if !j.Cancelled() {
		t.Fatalf("job should be cancelled after MarkCancelled")
	}
}

func TestJobCloneIsIndependent(t *testing.T) {
	j := &Job{
		ID:     "job-1",
		Script: &Script{Scenes: []Scene{{ID: "scene-1"}}},
		Logs:   []LogEntry{{Message: "first"}},
		Errors: []string{"oops"},
	}

	c := j.Clone()
	c.Script.Scenes[0].ID = "scene-mutated"
	c.Logs[0].Message = "mutated"
	c.Errors[0] = "mutated"

	if j.Script.Scenes[0].ID != "scene-1" {
		t.Fatalf("mutating clone's scene leaked into original: %q", j.Script.Scenes[0].ID)
	}
	if j.Logs[0].Message != "first" {
		t.Fatalf("mutating clone's logs leaked into original: %q", j.Logs[0].Message)
	}
	if j.Errors[0] != "oops" {
		t.Fatalf("mutating clone's errors leaked into original: %q", j.Errors[0])
	}
}
