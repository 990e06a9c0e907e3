package kafka

const (
	EventLinkSaved   = "link.saved"
	EventLinkDeleted = "link.deleted"
	EventLinkClicked = "link.clicked"
)

// AuditEvent is published to the link-events topic on create/delete.
// Click events use the dedicated click topic and their own schema.
type AuditEvent struct {
	Type        string `json:"type"`
	WorkspaceID int64  `json:"workspace_id"`
	LinkID      int64  `json:"link_id"`
	Code        string `json:"code"`
	Timestamp   string `json:"timestamp"`
}
