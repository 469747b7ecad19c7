package submitonce

// Status represents the lifecycle state of a ledger record.
type Status string

const (
	// StatusPending indicates the submission was recorded but has not completed.
	StatusPending Status = "pending"
	// StatusSuccess indicates the submission completed successfully.
	StatusSuccess Status = "success"
)
