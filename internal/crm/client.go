// Package crm posts notes into an amoCRM deal (lead) timeline.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// NoteTypeCommon is the plain-text note type.
const NoteTypeCommon = "common"

var ErrNotConfigured = errors.New("crm domain or access token not configured")

type Client struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
	log         *logrus.Entry
}

type Note struct {
	NoteType string     `json:"note_type"`
	Params   NoteParams `json:"params"`
}

type NoteParams struct {
	Text string `json:"text"`
}

type addNotesResponse struct {
	Embedded struct {
		Notes []struct {
			ID       int64 `json:"id"`
			EntityID int64 `json:"entity_id"`
		} `json:"notes"`
	} `json:"_embedded"`
}

// NewClient accepts a bare domain ("example.amocrm.ru") or a full base URL.
func NewClient(domain, accessToken string, log *logrus.Entry) *Client {
	return &Client{
		baseURL:     baseURL(domain),
		accessToken: accessToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log,
	}
}

func baseURL(domain string) string {
	domain = strings.TrimRight(strings.TrimSpace(domain), "/")
	if domain == "" {
		return ""
	}
	if strings.HasPrefix(domain, "http://") || strings.HasPrefix(domain, "https://") {
		return domain
	}
	return "https://" + domain
}

// AddNote posts one common note to the deal. There is no idempotency key:
// calling it twice with the same arguments creates two notes.
func (c *Client) AddNote(ctx context.Context, dealID, text string) (int64, error) {
	if c.baseURL == "" || c.accessToken == "" {
		return 0, ErrNotConfigured
	}

	endpoint := fmt.Sprintf("%s/api/v4/leads/%s/notes", c.baseURL, url.PathEscape(dealID))

	payload := []Note{{NoteType: NoteTypeCommon, Params: NoteParams{Text: text}}}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal note: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("failed to add note (status %d): %s", resp.StatusCode, string(body))
	}

	var out addNotesResponse
	if err := json.Unmarshal(body, &out); err != nil {
		c.log.WithField("error", err.Error()).Warn("note created but response was not parseable")
		return 0, nil
	}

	var noteID int64
	if len(out.Embedded.Notes) > 0 {
		noteID = out.Embedded.Notes[0].ID
	}
	c.log.WithFields(logrus.Fields{"deal_id": dealID, "note_id": noteID}).Info("crm note added")
	return noteID, nil
}
