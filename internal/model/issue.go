package model

import (
    "strings"
    "time"
)

type IssueStatus string

const (
    IssuePending    IssueStatus = "pending"
    IssueInProgress IssueStatus = "in_progress"
    IssueResolved   IssueStatus = "resolved"
    IssueClosed     IssueStatus = "closed"
)

var issueTransitions = map[IssueStatus][]IssueStatus{
    IssuePending:    {IssueInProgress, IssueResolved, IssueClosed},
    IssueInProgress: {IssueResolved, IssueClosed},
    IssueResolved:   {IssueClosed, IssueInProgress},
}

// CanTransition reports whether an issue may move from s to next.  Closed
// issues stay closed.
func (s IssueStatus) CanTransition(next IssueStatus) bool {
    for _, n := range issueTransitions[s] {
        if n == next {
            return true
        }
    }
    return false
}

// ParseIssueStatus accepts the stored names plus "fixed", which older
// clients send for resolved.
func ParseIssueStatus(s string) (IssueStatus, bool) {
    s = strings.ToLower(strings.TrimSpace(s))
    if s == "fixed" {
        return IssueResolved, true
    }
    switch st := IssueStatus(s); st {
    case IssuePending, IssueInProgress, IssueResolved, IssueClosed:
        return st, true
    }
    return "", false
}

type IssuePriority string

const (
    PriorityLow      IssuePriority = "low"
    PriorityMedium   IssuePriority = "medium"
    PriorityHigh     IssuePriority = "high"
    PriorityCritical IssuePriority = "critical"
)

func ParseIssuePriority(s string) (IssuePriority, bool) {
    switch p := IssuePriority(strings.ToLower(strings.TrimSpace(s))); p {
    case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
        return p, true
    }
    return "", false
}

// IssueReport is a problem raised against a lab, or against the faculty in
// general when LabID is nil.  Rows live in `issue_reports`.
type IssueReport struct {
    ID          uint64        `json:"id"`
    LabID       *uint64       `json:"lab_id,omitempty"`
    ReportedBy  uint64        `json:"reported_by"`
    IssueType   string        `json:"issue_type"`
    Priority    IssuePriority `json:"priority"`
    Title       string        `json:"title"`
    Description string        `json:"description"`
    Status      IssueStatus   `json:"status"`
    AssignedTo  *uint64       `json:"assigned_to,omitempty"`
    ResolvedBy  *uint64       `json:"resolved_by,omitempty"`
    ResolvedAt  *time.Time    `json:"resolved_at,omitempty"`
    CreatedAt   time.Time     `json:"created_at"`
    UpdatedAt   time.Time     `json:"updated_at"`
}
