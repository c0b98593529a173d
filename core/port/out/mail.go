package out

import "context"

// MailHeader is one raw RFC-822 header pair, matching the provider's
// {name, value} wire shape.
type MailHeader struct {
	Name  string
	Value string
}

// MailPart is one node of the provider's MIME-tree-shaped payload;
// body bytes are base64url-encoded in Data.
type MailPart struct {
	MimeType         string
	Filename         string
	ContentID        string
	Disposition      string
	Data             string
	Parts            []MailPart
	Headers          []MailHeader
}

// MailPayload is the fetched message body for one provider message.
type MailPayload struct {
	ID         string
	ThreadID   string
	Labels     []string
	InternalTS int64
	Headers    []MailHeader
	Payload    MailPart
	Snippet    string
}

// MailProvider is the mail-client capability the Sync Controller consumes
//. The core requires only enumerate-ids,
// fetch-by-id, list-changes-since-cursor, and read-cursor.
type MailProvider interface {
	// ListInboxIDs enumerates all INBOX message ids, paginated until
	// exhausted.
	ListInboxIDs(ctx context.Context) ([]string, error)
	// ListChangedIDs lists ids changed since the given history cursor.
	ListChangedIDs(ctx context.Context, historyCursor string) (ids []string, newCursor string, err error)
	// GetCurrentCursor reads the provider's current history cursor.
	GetCurrentCursor(ctx context.Context) (string, error)
	// FetchMessage fetches one message in full format.
	FetchMessage(ctx context.Context, id string) (*MailPayload, error)
}
