// Package websub implements the subscriber side of the WebSub
// push-delivery lifecycle described in §4.7: subscribe, verify the
// hub's callback challenge, receive and authenticate pushed content,
// and unsubscribe.
package websub

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sparrowreader/microsub/internal/errs"
	"github.com/sparrowreader/microsub/internal/model"
	"github.com/sparrowreader/microsub/internal/processor"
	"github.com/sparrowreader/microsub/internal/store"
)

// Subscriber drives the hub-facing half of WebSub. It implements
// processor.HubSubscriber so the processor can trigger a subscribe the
// moment it sees a rel="hub" Link header, without importing this
// package directly.
type Subscriber struct {
	Client       *http.Client
	Store        *store.SQLStore
	Processor    *processor.Processor
	CallbackBase string // e.g. "https://reader.example/microsub/websub/"
	LeaseSeconds int
}

// New builds a Subscriber.
func New(st *store.SQLStore, p *processor.Processor, callbackBase string, leaseSeconds int) *Subscriber {
	return &Subscriber{
		Client:       &http.Client{Timeout: 15 * time.Second},
		Store:        st,
		Processor:    p,
		CallbackBase: strings.TrimSuffix(callbackBase, "/") + "/",
		LeaseSeconds: leaseSeconds,
	}
}

func (s *Subscriber) callbackURL(feedID string) string {
	return s.CallbackBase + feedID
}

// EnsureSubscribed issues (or re-issues) a hub.mode=subscribe request
// for f, minting a fresh HMAC secret, and records the attempt as
// pending until the hub's verification callback arrives.
func (s *Subscriber) EnsureSubscribed(ctx context.Context, f *model.Feed, hub, topic string) error {
	secret, err := randomSecret()
	if err != nil {
		return err
	}

	ws := &model.WebSubState{
		Hub:          hub,
		Topic:        topic,
		Secret:       secret,
		LeaseSeconds: s.LeaseSeconds,
		Pending:      true,
	}
	if err := s.Store.UpdateFeedWebSub(ctx, f.ID, ws); err != nil {
		return err
	}
	f.WebSub = ws

	form := url.Values{
		"hub.mode":          {"subscribe"},
		"hub.topic":         {topic},
		"hub.callback":      {s.callbackURL(f.ID)},
		"hub.lease_seconds": {strconv.Itoa(s.LeaseSeconds)},
		"hub.secret":        {secret},
	}
	return s.post(ctx, hub, form)
}

// Unsubscribe issues a hub.mode=unsubscribe request, used when a feed
// is deleted.
func (s *Subscriber) Unsubscribe(ctx context.Context, f *model.Feed) error {
	if f.WebSub == nil || f.WebSub.Hub == "" {
		return nil
	}
	form := url.Values{
		"hub.mode":     {"unsubscribe"},
		"hub.topic":    {f.WebSub.Topic},
		"hub.callback": {s.callbackURL(f.ID)},
	}
	return s.post(ctx, f.WebSub.Hub, form)
}

func (s *Subscriber) post(ctx context.Context, hub string, form url.Values) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hub, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := s.Client.Do(req)
	if err != nil {
		return errs.Upstreamf(err, "websub request to hub %s", hub)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errs.Upstreamf(nil, "hub %s rejected subscription request with status %d", hub, resp.StatusCode)
	}
	return nil
}

// Verify handles the hub's GET verification callback for feedID. mode
// is "subscribe" or "unsubscribe"; topic must match the feed's recorded
// topic or URL. Returns the challenge to echo back, or an error
// distinguishing an unknown feed (NotFoundError, 404) from a topic
// mismatch or unrecognized mode (ValidationError, 400), per §4.7.
func (s *Subscriber) Verify(ctx context.Context, feedID, mode, topic, challenge string, leaseSeconds int) (string, error) {
	f, err := s.Store.GetFeed(ctx, feedID)
	if err != nil {
		return "", errs.NotFoundf("feed %s not found", feedID)
	}
	expectedTopic := f.URL
	if f.WebSub != nil && f.WebSub.Topic != "" {
		expectedTopic = f.WebSub.Topic
	}
	if topic != expectedTopic {
		return "", errs.Validationf("topic %q does not match feed %s", topic, feedID)
	}

	switch mode {
	case "subscribe":
		ws := f.WebSub
		if ws == nil {
			ws = &model.WebSubState{Topic: topic}
		}
		if leaseSeconds <= 0 {
			leaseSeconds = s.LeaseSeconds
		}
		ws.LeaseSeconds = leaseSeconds
		ws.ExpiresAt = time.Now().Add(time.Duration(leaseSeconds) * time.Second)
		ws.Pending = false
		_ = s.Store.UpdateFeedWebSub(ctx, feedID, ws)
		return challenge, nil
	case "unsubscribe":
		_ = s.Store.UpdateFeedWebSub(ctx, feedID, nil)
		return challenge, nil
	default:
		return "", errs.Validationf("unrecognized hub.mode %q", mode)
	}
}

// CheckSignature authenticates a hub's pushed delivery for feedID
// without processing it: if the feed has a recorded secret, one of
// X-Hub-Signature-256 or X-Hub-Signature must validate against the raw
// body; otherwise the push is accepted unauthenticated (a hub that
// never received a secret in the subscribe request cannot sign its
// pushes). Callers use this to decide whether to even acknowledge the
// request before handing it off for asynchronous processing.
func (s *Subscriber) CheckSignature(ctx context.Context, feedID string, body []byte, sig256, sig1 string) (*model.Feed, error) {
	f, err := s.Store.GetFeed(ctx, feedID)
	if err != nil {
		return nil, err
	}
	if f.WebSub != nil && f.WebSub.Secret != "" {
		if !verifySignature(f.WebSub.Secret, body, sig256, sig1) {
			return nil, errs.Authf("websub signature mismatch for feed %s", feedID)
		}
	}
	return f, nil
}

// ProcessFromFeed runs the Processor's delivered-content path for an
// already-authenticated push.
func (s *Subscriber) ProcessFromFeed(ctx context.Context, f *model.Feed, body []byte, contentType string) (int, error) {
	return s.Processor.ProcessDelivered(ctx, f, body, contentType)
}

func verifySignature(secret string, body []byte, sig256, sig1 string) bool {
	if v := strings.TrimPrefix(sig256, "sha256="); v != sig256 {
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(body)
		return hmac.Equal([]byte(v), []byte(hex.EncodeToString(mac.Sum(nil))))
	}
	if v := strings.TrimPrefix(sig1, "sha1="); v != sig1 {
		mac := hmac.New(sha1.New, []byte(secret))
		mac.Write(body)
		return hmac.Equal([]byte(v), []byte(hex.EncodeToString(mac.Sum(nil))))
	}
	return false
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", fmt.Errorf("websub: generate secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
