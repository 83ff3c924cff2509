package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const messagingPath = "/version1/messaging"

type AfricasTalkingConfig struct {
	BaseURL    string
	APIKey     string
	Username   string
	SenderID   string
	HTTPClient *http.Client
}

// AfricasTalkingSender sends SMS through the Africa's Talking bulk messaging API.
type AfricasTalkingSender struct {
	baseURL    string
	apiKey     string
	username   string
	senderID   string
	httpClient *http.Client
}

func NewAfricasTalkingSender(cfg AfricasTalkingConfig) (*AfricasTalkingSender, error) {
	if cfg.APIKey == "" || cfg.Username == "" {
		return nil, errors.New("africastalking: api key and username are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.africastalking.com"
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &AfricasTalkingSender{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		username:   cfg.Username,
		senderID:   cfg.SenderID,
		httpClient: client,
	}, nil
}

type atResponse struct {
	SMSMessageData struct {
		Message    string `json:"Message"`
		Recipients []struct {
			Number     string `json:"number"`
			Status     string `json:"status"`
			StatusCode int    `json:"statusCode"`
			Cost       string `json:"cost"`
			MessageID  string `json:"messageId"`
		} `json:"Recipients"`
	} `json:"SMSMessageData"`
}

func (s *AfricasTalkingSender) Send(ctx context.Context, msg Message) error {
	msg, err := msg.validate()
	if err != nil {
		return err
	}

	form := url.Values{}
	form.Set("username", s.username)
	form.Set("to", strings.Join(msg.To, ","))
	form.Set("message", msg.Text)
	if s.senderID != "" {
		form.Set("from", s.senderID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+messagingPath, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("apiKey", s.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("africastalking request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("africastalking: %s %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var out atResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return fmt.Errorf("africastalking decode: %w", err)
	}
	sent := 0
	for _, r := range out.SMSMessageData.Recipients {
		// 100 processed, 101 sent, 102 queued
		if r.StatusCode >= 100 && r.StatusCode <= 102 {
			sent++
			continue
		}
		log.Printf("[NOTIFY] SMS to %s rejected: %s", r.Number, r.Status)
	}
	if sent == 0 {
		return fmt.Errorf("africastalking: no recipient accepted: %s", out.SMSMessageData.Message)
	}
	return nil
}
