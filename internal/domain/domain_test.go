package domain

import (
	"errors"
	"testing"
)

func TestEnumValidation(t *testing.T) {
	cases := []struct {
		name  string
		check func(string) error
		ok    []string
		bad   string
	}{
		{"agent status", ValidAgentStatus, []string{AgentIdle, AgentPending, AgentWorking, AgentError, AgentTerminated}, "sleeping"},
		{"task status", ValidTaskStatus, []string{TaskBacklog, TaskInProgress, TaskReview, TaskCompleted}, "done"},
		{"priority", ValidPriority, []string{PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow}, "urgent"},
		{"report type", ValidReportType, []string{ReportProgress, ReportCompletion, ReportQuestion, ReportError}, "gossip"},
		{"report status", ValidReportStatus, []string{ReportUnread, ReportRead, ReportArchived}, "starred"},
		{"project status", ValidProjectStatus, []string{ProjectPlanning, ProjectActive, ProjectCompleted, ProjectOnHold}, "paused"},
	}
	for _, tc := range cases {
		for _, v := range tc.ok {
			if err := tc.check(v); err != nil {
				t.Errorf("%s: %q rejected: %v", tc.name, v, err)
			}
		}
		err := tc.check(tc.bad)
		if err == nil {
			t.Errorf("%s: %q accepted", tc.name, tc.bad)
			continue
		}
		var ve ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("%s: error type %T, want ValidationError", tc.name, err)
		}
	}
}

func TestPriorityRank(t *testing.T) {
	order := []string{PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow}
	for i := 1; i < len(order); i++ {
		if PriorityRank(order[i-1]) >= PriorityRank(order[i]) {
			t.Fatalf("%s should rank before %s", order[i-1], order[i])
		}
	}
	if PriorityRank("unknown") <= PriorityRank(PriorityLow) {
		t.Fatal("unknown priority should rank last")
	}
}
