package models

import "time"

// NotificationType enumerates workflow events delivered to users.
type NotificationType string

const (
	NotificationQueryAssigned        NotificationType = "query_assigned"
	NotificationSolutionProvided     NotificationType = "solution_provided"
	NotificationSolutionApproved     NotificationType = "solution_approved"
	NotificationSolutionRejected     NotificationType = "solution_rejected"
	NotificationNewQuerySubmitted    NotificationType = "new_query_submitted"
	NotificationKnowledgeBaseUpdated NotificationType = "knowledge_base_updated"
	NotificationQueryAnswered        NotificationType = "query_answered"
	NotificationQueryCommented       NotificationType = "query_commented"
)

// NotificationPriority orders delivery urgency.
type NotificationPriority string

const (
	PriorityLow    NotificationPriority = "low"
	PriorityMedium NotificationPriority = "medium"
	PriorityHigh   NotificationPriority = "high"
)

// ManagersRecipient addresses every manager rather than a single user.
const ManagersRecipient = "role:manager"

// Notification is a fire-and-forget event emitted on workflow transitions.
type Notification struct {
	ID                   string               `json:"id"`
	Recipient            string               `json:"recipient"`
	Type                 NotificationType     `json:"type"`
	Title                string               `json:"title"`
	Message              string               `json:"message"`
	RelatedQuery         string               `json:"relatedQuery,omitempty"`
	RelatedKnowledgeBase string               `json:"relatedKnowledgeBase,omitempty"`
	ActionRequired       bool                 `json:"actionRequired"`
	Priority             NotificationPriority `json:"priority"`
	RequestID            string               `json:"requestId,omitempty"`
	CreatedAt            time.Time            `json:"createdAt"`
}
