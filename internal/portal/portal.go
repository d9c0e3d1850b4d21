// Package portal talks to the procurement portal: it exchanges the widget
// client id for an access token and collects one announcement's tabs into a
// tender.Record.
package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/tender-analyzer/internal/extract"
	"github.com/JakeFAU/tender-analyzer/internal/tender"
)

// Defaults matching the public goszakup portal.
const (
	DefaultBaseURL    = "https://goszakup.gov.kz"
	DefaultAuthURL    = "https://help.ecc.kz/bridge/auth"
	DefaultSessionURL = "https://help.ecc.kz/bridge/session"
	DefaultClientID   = "widget-aiis-epp"
	DefaultUserAgent  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/142.0.0.0 Safari/537.36"
)

// AuthTokenHeader carries the session access token on every portal request.
const AuthTokenHeader = "X-Auth-Token"

// Config locates the portal and its token bridge.
type Config struct {
	BaseURL    string
	AuthURL    string
	SessionURL string
	ClientID   string
	UserAgent  string
	Origin     string
	Referer    string
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.AuthURL == "" {
		c.AuthURL = DefaultAuthURL
	}
	if c.SessionURL == "" {
		c.SessionURL = DefaultSessionURL
	}
	if c.ClientID == "" {
		c.ClientID = DefaultClientID
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.Origin == "" {
		c.Origin = c.BaseURL
	}
	if c.Referer == "" {
		c.Referer = c.BaseURL + "/"
	}
	return c
}

// Client collects announcements through a tender.Fetcher.
type Client struct {
	cfg     Config
	fetcher tender.Fetcher
	logger  *zap.Logger
}

// New builds a Client.
func New(cfg Config, fetcher tender.Fetcher, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{cfg: cfg.withDefaults(), fetcher: fetcher, logger: logger}
}

// BaseURL returns the portal root used to resolve relative links.
func (c *Client) BaseURL() string {
	return c.cfg.BaseURL
}

func (c *Client) baseHeaders() http.Header {
	h := http.Header{}
	h.Set("User-Agent", c.cfg.UserAgent)
	h.Set("Origin", c.cfg.Origin)
	h.Set("Referer", c.cfg.Referer)
	return h
}

// Authenticate performs the two-step token exchange and returns the header
// set to attach to every later request.
func (c *Client) Authenticate(ctx context.Context) (tender.Credentials, error) {
	body, err := json.Marshal(map[string]string{"client_id": c.cfg.ClientID})
	if err != nil {
		return tender.Credentials{}, fmt.Errorf("encode auth request: %w", err)
	}
	var auth struct {
		Creds struct {
			AuthToken string `json:"auth_token"`
		} `json:"creds"`
	}
	if err := c.postJSON(ctx, c.cfg.AuthURL, body, &auth); err != nil {
		return tender.Credentials{}, fmt.Errorf("auth token: %w", err)
	}
	if auth.Creds.AuthToken == "" {
		return tender.Credentials{}, fmt.Errorf("auth token: response has no creds.auth_token")
	}

	sessionURL, err := url.Parse(c.cfg.SessionURL)
	if err != nil {
		return tender.Credentials{}, fmt.Errorf("parse session url: %w", err)
	}
	q := sessionURL.Query()
	q.Set("auth_token", auth.Creds.AuthToken)
	sessionURL.RawQuery = q.Encode()

	var session struct {
		Data struct {
			AccessToken string `json:"access_token"`
		} `json:"data"`
	}
	if err := c.postJSON(ctx, sessionURL.String(), nil, &session); err != nil {
		return tender.Credentials{}, fmt.Errorf("session token: %w", err)
	}
	if session.Data.AccessToken == "" {
		return tender.Credentials{}, fmt.Errorf("session token: response has no data.access_token")
	}

	headers := c.baseHeaders()
	headers.Set(AuthTokenHeader, session.Data.AccessToken)
	c.logger.Debug("portal session acquired")
	return tender.Credentials{Token: session.Data.AccessToken, Headers: headers}, nil
}

func (c *Client) postJSON(ctx context.Context, target string, body []byte, out any) error {
	resp, err := c.fetcher.Fetch(ctx, tender.FetchRequest{
		Method:  http.MethodPost,
		URL:     target,
		Body:    body,
		Headers: c.baseHeaders(),
	})
	if err != nil {
		return err
	}
	if err := resp.CheckStatus(); err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("decode %s: %w", target, err)
	}
	return nil
}

// Collect fetches the general, lots and documents tabs of one announcement,
// follows every technical-specification modal and assembles the record.
// Tabs are fetched one after another.
func (c *Client) Collect(ctx context.Context, creds tender.Credentials, id int64) (*tender.Record, error) {
	base := c.cfg.BaseURL + "/ru/announce/index/" + strconv.FormatInt(id, 10)

	page, err := c.get(ctx, creds, base+"?tab=general")
	if err != nil {
		return nil, fmt.Errorf("general tab: %w", err)
	}
	general, err := extract.ParseGeneral(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("general tab: %w", err)
	}

	page, err = c.get(ctx, creds, base+"?tab=lots")
	if err != nil {
		return nil, fmt.Errorf("lots tab: %w", err)
	}
	lots, err := extract.ParseLots(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("lots tab: %w", err)
	}

	page, err = c.get(ctx, creds, base+"?tab=documents")
	if err != nil {
		return nil, fmt.Errorf("documents tab: %w", err)
	}
	modals, err := extract.ParseDocuments(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("documents tab: %w", err)
	}

	files := []tender.TechSpecFile{}
	for _, modal := range modals {
		found, err := c.modalFiles(ctx, creds, modal)
		if err != nil {
			return nil, err
		}
		files = append(files, found...)
	}
	if len(modals) == 0 {
		c.logger.Info("no technical specification documents", zap.Int64("advert_id", id))
	}

	record := extract.Assemble(general, lots, files)
	c.logger.Debug("announcement collected",
		zap.Int64("advert_id", id),
		zap.Int("lots", len(lots)),
		zap.Int("techspec_files", len(files)),
	)
	return record, nil
}

func (c *Client) modalFiles(ctx context.Context, creds tender.Credentials, modal extract.FileModal) ([]tender.TechSpecFile, error) {
	target := fmt.Sprintf("%s/ru/announce/actionAjaxModalShowFiles/%s/%s",
		c.cfg.BaseURL, url.PathEscape(modal.LotID), url.PathEscape(modal.DocumentID))
	page, err := c.get(ctx, creds, target)
	if err != nil {
		return nil, fmt.Errorf("files modal %s/%s: %w", modal.LotID, modal.DocumentID, err)
	}
	files, err := extract.ParseFileModal(bytes.NewReader(page), modal)
	if err != nil {
		return nil, fmt.Errorf("files modal %s/%s: %w", modal.LotID, modal.DocumentID, err)
	}
	for i := range files {
		resolved, err := c.Resolve(files[i].FileLink)
		if err != nil {
			return nil, err
		}
		files[i].FileLink = resolved
	}
	return files, nil
}

// Resolve turns a possibly relative portal link into an absolute URL.
func (c *Client) Resolve(link string) (string, error) {
	base, err := url.Parse(c.cfg.BaseURL + "/")
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	ref, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return "", fmt.Errorf("parse link %q: %w", link, err)
	}
	return base.ResolveReference(ref).String(), nil
}

func (c *Client) get(ctx context.Context, creds tender.Credentials, target string) ([]byte, error) {
	resp, err := c.fetcher.Fetch(ctx, tender.FetchRequest{
		Method:  http.MethodGet,
		URL:     target,
		Headers: creds.Header(),
	})
	if err != nil {
		return nil, err
	}
	if err := resp.CheckStatus(); err != nil {
		return nil, err
	}
	return resp.Body, nil
}
