// Package trello is a small client for the Trello REST API covering what the
// watch needs: list boards, fetch one board, move a card.
package trello

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/dyluth/cardlink/pkg/credentials"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the public Trello API root
	DefaultBaseURL = "https://api.trello.com/1"

	// DefaultTimeout bounds every remote call
	DefaultTimeout = 15 * time.Second

	// PositionBottom places a moved card last in its new list
	PositionBottom = "bottom"

	// PositionTop places a moved card first in its new list
	PositionTop = "top"

	maxErrorBody = 4096
)

// CredentialSource supplies the pair used to authenticate each call.
// *companion.Receiver implements it.
type CredentialSource interface {
	Current() (credentials.Pair, bool)
}

// Options configures a Client.
type Options struct {
	// BaseURL defaults to DefaultBaseURL
	BaseURL string

	// HTTPClient defaults to a client with Timeout
	HTTPClient *http.Client

	// Timeout defaults to DefaultTimeout; ignored when HTTPClient is set
	Timeout time.Duration

	// RequestsPerSecond throttles outgoing calls; 0 disables throttling
	RequestsPerSecond float64

	Logger log.FieldLogger
}

// Client calls the Trello API with the credentials current at call time.
type Client struct {
	baseURL string
	http    *http.Client
	creds   CredentialSource
	limiter *rate.Limiter
	log     log.FieldLogger
}

// NewClient creates a client.
func NewClient(creds CredentialSource, opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}

	c := &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    opts.HTTPClient,
		creds:   creds,
		log:     opts.Logger.WithField("component", "trello"),
	}
	if opts.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return c
}

// ListBoards returns the open boards of the authenticated member.
func (c *Client) ListBoards(ctx context.Context) ([]BoardSummary, error) {
	u, pair, err := c.makeURL("/members/me/boards", url.Values{
		"filter": {"open"},
		"fields": {"id,name"},
	})
	if err != nil {
		return nil, err
	}

	var boards []BoardSummary
	if err := c.do(ctx, http.MethodGet, u, pair, &boards); err != nil {
		return nil, err
	}
	return boards, nil
}

// FetchBoardDetail returns a board with its open lists and cards.
func (c *Client) FetchBoardDetail(ctx context.Context, boardID string) (Board, error) {
	if err := validID("board", boardID); err != nil {
		return Board{}, err
	}
	u, pair, err := c.makeURL("/boards/"+boardID, url.Values{
		"lists":       {"open"},
		"cards":       {"open"},
		"list_fields": {"id,name"},
		"card_fields": {"id,name,idList"},
	})
	if err != nil {
		return Board{}, err
	}

	var board Board
	if err := c.do(ctx, http.MethodGet, u, pair, &board); err != nil {
		return Board{}, err
	}
	return board, nil
}

// MoveCard moves a card to another list. An empty position means PositionBottom.
func (c *Client) MoveCard(ctx context.Context, cardID, toListID, position string) error {
	if err := validID("card", cardID); err != nil {
		return err
	}
	if err := validID("list", toListID); err != nil {
		return err
	}
	if position == "" {
		position = PositionBottom
	}
	u, pair, err := c.makeURL("/cards/"+cardID, url.Values{
		"idList": {toListID},
		"pos":    {position},
	})
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPut, u, pair, nil)
}

// makeURL builds an authenticated URL and returns the pair it carries.
// Credentials are checked first so an unauthenticated watch never issues a request.
func (c *Client) makeURL(p string, query url.Values) (string, credentials.Pair, error) {
	pair, ok := c.creds.Current()
	if !ok || pair.Key == "" || pair.Token == "" {
		return "", credentials.Pair{}, &Error{Kind: KindAuthRequired}
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", credentials.Pair{}, &Error{Kind: KindInvalidRequest, Err: fmt.Errorf("invalid base URL: %w", err)}
	}
	if u.Scheme == "" || u.Host == "" {
		return "", credentials.Pair{}, &Error{Kind: KindInvalidRequest, Err: fmt.Errorf("invalid base URL: %q", c.baseURL)}
	}
	u.Path = path.Join(u.Path, p)
	u.RawPath = ""

	q := url.Values{}
	for k, v := range query {
		q[k] = v
	}
	q.Set("key", pair.Key)
	q.Set("token", pair.Token)
	u.RawQuery = q.Encode()
	return u.String(), pair, nil
}

func (c *Client) do(ctx context.Context, method, u string, pair credentials.Pair, out interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &Error{Kind: KindNetwork, Err: err}
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return &Error{Kind: KindInvalidRequest, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	logger := c.log.WithFields(log.Fields{"method": method, "path": req.URL.Path})
	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		logger.WithError(err).Warn("Request failed")
		return &Error{Kind: KindNetwork, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Kind: KindNetwork, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}
	logger.WithFields(log.Fields{
		"status":      resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("Request completed")

	if err := checkStatus(resp.StatusCode, body, pair); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if len(body) == 0 {
		return &Error{Kind: KindInvalidResponse, StatusCode: resp.StatusCode, Err: errors.New("empty response body")}
	}
	if err := sonic.Unmarshal(body, out); err != nil {
		return &Error{Kind: KindDecodeFailed, StatusCode: resp.StatusCode, Err: err}
	}
	return nil
}

func validID(what, id string) error {
	if id == "" {
		return &Error{Kind: KindInvalidRequest, Err: fmt.Errorf("%s id is empty", what)}
	}
	if strings.ContainsAny(id, "/?#") {
		return &Error{Kind: KindInvalidRequest, Err: fmt.Errorf("invalid %s id: %q", what, id)}
	}
	return nil
}

func checkStatus(code int, body []byte, pair credentials.Pair) error {
	switch {
	case code == http.StatusUnauthorized:
		return &Error{Kind: KindInvalidCredentials, StatusCode: code, Credentials: pair}
	case code == http.StatusNotFound:
		msg := errorBody(body)
		if msg == "" {
			msg = "Resource not found"
		}
		return &Error{Kind: KindAPIRejected, StatusCode: code, Message: msg}
	case code < 200 || code > 299:
		return &Error{Kind: KindAPIRejected, StatusCode: code, Message: fmt.Sprintf("Error %d: %s", code, errorBody(body))}
	default:
		return nil
	}
}

func errorBody(body []byte) string {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return strings.TrimSpace(string(body))
}
