package config

const (
	// MaxConversationTitleLength is the maximum length for conversation
	// titles. Limited to 80 to fit the sidebar UI and PostgreSQL VARCHAR.
	MaxConversationTitleLength = 80

	// TitleFromMessageLength is how many characters of the first user
	// message are used when auto-titling a new conversation.
	TitleFromMessageLength = 40

	// MaxAttachmentIDsPerRequest caps how many file IDs a single chat
	// request may reference before filtering by MIME type.
	MaxAttachmentIDsPerRequest = 8

	// MaxAttachmentNamesInSummary caps how many file names appear in the
	// attachment summary line injected into the model context.
	MaxAttachmentNamesInSummary = 8

	// ContinueScanMessageCount is how many recent user messages are
	// scanned for attachment links when resolving a continue target.
	ContinueScanMessageCount = 20
)
