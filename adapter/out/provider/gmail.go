// Package provider implements mail provider adapters.
package provider

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/bbangmxn/mailintel/config"
	"github.com/bbangmxn/mailintel/core/port/out"
	"github.com/bbangmxn/mailintel/pkg/apperr"
)

// inboxPageSize is the page size used when enumerating INBOX ids.
const inboxPageSize = 500

// GmailProvider implements out.MailProvider over the Gmail API. Grounded
// on worker_gmail_adapter.go, narrowed from its full
// send/draft/label/upload surface to the four read-only operations the
// Sync Controller actually needs.
type GmailProvider struct {
	tokenSource oauth2.TokenSource
	cb          *gobreaker.CircuitBreaker
}

// NewGmailProvider constructs a GmailProvider from static OAuth2
// credentials.
func NewGmailProvider(cfg *config.Config) (*GmailProvider, error) {
	if cfg.GoogleClientID == "" || cfg.GoogleClientSecret == "" || cfg.GoogleRefreshToken == "" {
		return nil, apperr.Configuration("gmail provider requires GOOGLE_CLIENT_ID, GOOGLE_CLIENT_SECRET and GOOGLE_REFRESH_TOKEN")
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		Scopes:       []string{gmail.GmailReadonlyScope},
		Endpoint:     google.Endpoint,
	}
	tokenSource := oauthCfg.TokenSource(context.Background(), &oauth2.Token{RefreshToken: cfg.GoogleRefreshToken})

	cbSettings := gobreaker.Settings{
		Name:        "gmail-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("[CircuitBreaker] %s: state changed from %s to %s", name, from.String(), to.String())
		},
	}

	return &GmailProvider{
		tokenSource: tokenSource,
		cb:          gobreaker.NewCircuitBreaker(cbSettings),
	}, nil
}

func (p *GmailProvider) service(ctx context.Context) (*gmail.Service, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
	}
	return gmail.NewService(ctx, option.WithTokenSource(p.tokenSource))
}

func (p *GmailProvider) execute(operation string, fn func() error) error {
	_, err := p.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if err != nil {
		return apperr.TransientExternal(fmt.Sprintf("gmail %s failed", operation), err)
	}
	return nil
}

// ListInboxIDs enumerates all INBOX message ids, paginated until exhausted.
func (p *GmailProvider) ListInboxIDs(ctx context.Context) ([]string, error) {
	svc, err := p.service(ctx)
	if err != nil {
		return nil, apperr.TransientExternal("gmail service construction failed", err)
	}

	var ids []string
	pageToken := ""
	for {
		var resp *gmail.ListMessagesResponse
		err := p.execute("ListInboxIDs", func() error {
			req := svc.Users.Messages.List("me").LabelIds("INBOX").MaxResults(inboxPageSize)
			if pageToken != "" {
				req = req.PageToken(pageToken)
			}
			var apiErr error
			resp, apiErr = req.Context(ctx).Do()
			return apiErr
		})
		if err != nil {
			return nil, err
		}

		for _, m := range resp.Messages {
			ids = append(ids, m.Id)
		}

		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}
	return ids, nil
}

// ListChangedIDs lists ids changed since the given history cursor.
func (p *GmailProvider) ListChangedIDs(ctx context.Context, historyCursor string) ([]string, string, error) {
	svc, err := p.service(ctx)
	if err != nil {
		return nil, "", apperr.TransientExternal("gmail service construction failed", err)
	}

	historyID, err := strconv.ParseUint(historyCursor, 10, 64)
	if err != nil {
		return nil, "", apperr.InvalidInput(fmt.Sprintf("invalid history cursor %q", historyCursor))
	}

	var resp *gmail.ListHistoryResponse
	execErr := p.execute("ListChangedIDs", func() error {
		var apiErr error
		resp, apiErr = svc.Users.History.List("me").StartHistoryId(historyID).Context(ctx).Do()
		return apiErr
	})
	if execErr != nil {
		return nil, "", execErr
	}

	seen := make(map[string]struct{})
	var ids []string
	for _, h := range resp.History {
		for _, added := range h.MessagesAdded {
			if _, ok := seen[added.Message.Id]; ok {
				continue
			}
			seen[added.Message.Id] = struct{}{}
			ids = append(ids, added.Message.Id)
		}
	}

	return ids, strconv.FormatUint(resp.HistoryId, 10), nil
}

// GetCurrentCursor reads the provider's current history cursor.
func (p *GmailProvider) GetCurrentCursor(ctx context.Context) (string, error) {
	svc, err := p.service(ctx)
	if err != nil {
		return "", apperr.TransientExternal("gmail service construction failed", err)
	}

	var profile *gmail.Profile
	execErr := p.execute("GetCurrentCursor", func() error {
		var apiErr error
		profile, apiErr = svc.Users.GetProfile("me").Context(ctx).Do()
		return apiErr
	})
	if execErr != nil {
		return "", execErr
	}
	return strconv.FormatUint(profile.HistoryId, 10), nil
}

// FetchMessage fetches one message in full format.
func (p *GmailProvider) FetchMessage(ctx context.Context, id string) (*out.MailPayload, error) {
	svc, err := p.service(ctx)
	if err != nil {
		return nil, apperr.TransientExternal("gmail service construction failed", err)
	}

	var msg *gmail.Message
	execErr := p.execute("FetchMessage", func() error {
		var apiErr error
		msg, apiErr = svc.Users.Messages.Get("me", id).Format("full").Context(ctx).Do()
		return apiErr
	})
	if execErr != nil {
		return nil, execErr
	}

	return &out.MailPayload{
		ID:         msg.Id,
		ThreadID:   msg.ThreadId,
		Labels:     msg.LabelIds,
		InternalTS: msg.InternalDate,
		Headers:    convertHeaders(msg.Payload),
		Payload:    convertPart(msg.Payload),
		Snippet:    msg.Snippet,
	}, nil
}

func convertHeaders(part *gmail.MessagePart) []out.MailHeader {
	if part == nil {
		return nil
	}
	headers := make([]out.MailHeader, 0, len(part.Headers))
	for _, h := range part.Headers {
		headers = append(headers, out.MailHeader{Name: h.Name, Value: h.Value})
	}
	return headers
}

func convertPart(part *gmail.MessagePart) out.MailPart {
	if part == nil {
		return out.MailPart{}
	}

	result := out.MailPart{
		MimeType: part.MimeType,
		Filename: part.Filename,
		Headers:  convertHeaders(part),
	}
	if part.Body != nil {
		result.Data = part.Body.Data
		result.ContentID = part.PartId
	}
	for _, h := range part.Headers {
		if h.Name == "Content-Disposition" {
			result.Disposition = h.Value
		}
	}

	if len(part.Parts) > 0 {
		result.Parts = make([]out.MailPart, len(part.Parts))
		for i, child := range part.Parts {
			result.Parts[i] = convertPart(child)
		}
	}
	return result
}
