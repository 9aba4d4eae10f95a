package sms

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/majibu/backend/internal/config"
	"github.com/redis/go-redis/v9"
)

// Client is a minimal HostPinnacle SMS client with token caching in Redis.
type Client struct {
	baseURL              string
	userID               string
	password             string
	senderID             string
	rdb                  *redis.Client
	httpClient           *http.Client
	rateLimitSeconds     int
	tokenFallbackSeconds int
	cacheKeyPrefix       string
}

// Default package-level client (set from main on startup)
var Default *Client

// SetDefault sets the package Default client.
func SetDefault(c *Client) {
	Default = c
}

// NewClient constructs a HostPinnacle client. Returns nil if not configured.
func NewClient(cfg *config.Config, rdb *redis.Client) *Client {
	if cfg == nil || cfg.SMSServiceBaseURL == "" || cfg.SMSServiceUserID == "" || cfg.SMSServicePassword == "" {
		return nil
	}

	return &Client{
		baseURL:              strings.TrimRight(cfg.SMSServiceBaseURL, "/"),
		userID:               cfg.SMSServiceUserID,
		password:             cfg.SMSServicePassword,
		senderID:             cfg.SMSSenderID,
		rdb:                  rdb,
		httpClient:           &http.Client{Timeout: 15 * time.Second},
		rateLimitSeconds:     cfg.SMSRateLimitSeconds,
		tokenFallbackSeconds: cfg.SMSTokenFallbackSeconds,
		cacheKeyPrefix:       "sms_token:",
	}
}

// SendSMS sends a single SMS to the given phone number.
// Returns a provider message id (if available) and an error if the operation definitively failed.
func (c *Client) SendSMS(ctx context.Context, phone string, message string) (string, error) {
	if c == nil {
		return "", errors.New("sms client not configured")
	}

	// Rate limit per phone
	if c.rdb != nil && c.rateLimitSeconds > 0 {
		key := fmt.Sprintf("sms_rate:%s", phone)
		ok, err := c.rdb.SetNX(ctx, key, "1", time.Duration(c.rateLimitSeconds)*time.Second).Result()
		if err == nil && !ok {
			return "", fmt.Errorf("rate limited: %s", phone)
		}
		// ignore Redis errors and proceed
	}

	formatted := formatPhone(phone)

	// Retry loop for transient errors
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		accessToken, err := c.getAccessToken(ctx)
		if err != nil {
			lastErr = err
			time.Sleep(time.Duration(100+attempt*200) * time.Millisecond)
			continue
		}

		payload := map[string]interface{}{
			"senderId":    c.senderID,
			"message":     message,
			"msisdn":      formatted,
			"messageType": "text",
		}

		b, _ := json.Marshal(payload)
		req, _ := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/SMSApi/send", strings.NewReader(string(b)))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+accessToken)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if attempt < 2 {
				time.Sleep(time.Duration(100+attempt*200) * time.Millisecond)
				continue
			}
			break
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == 200 {
			var parsed map[string]interface{}
			if err := json.Unmarshal(body, &parsed); err == nil {
				if v, ok := parsed["transactionId"].(string); ok {
					return v, nil
				}
				if v, ok := parsed["message_id"].(string); ok {
					return v, nil
				}
			}
			return "", nil
		}

		// For 5xx transient errors retry
		if resp.StatusCode >= 500 && attempt < 2 {
			lastErr = fmt.Errorf("sms provider error %d: %s", resp.StatusCode, string(body))
			time.Sleep(time.Duration(100+attempt*200) * time.Millisecond)
			continue
		}

		// 4xx or exhausted retries
		return "", fmt.Errorf("sms send failed: %d %s", resp.StatusCode, string(body))
	}

	if lastErr != nil {
		return "", lastErr
	}
	return "", errors.New("sms send failed")
}

// getAccessToken fetches or returns a cached provider access token
func (c *Client) getAccessToken(ctx context.Context) (string, error) {
	if c == nil {
		return "", errors.New("sms client not configured")
	}

	key := c.cacheKeyPrefix + shortCredHash(c.userID, c.password)
	// Try Redis cache
	if c.rdb != nil {
		if tok, err := c.rdb.Get(ctx, key).Result(); err == nil {
			return tok, nil
		}
	}

	// Fetch new token from API
	data := map[string]string{
		"userId":   c.userID,
		"password": c.password,
	}
	b, _ := json.Marshal(data)
	req, _ := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/SMSApi/token", strings.NewReader(string(b)))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != 200 {
		return "", fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", err
	}
	accessToken, _ := parsed["access_token"].(string)
	if accessToken == "" {
		return "", errors.New("token not present in response")
	}

	// Cache until shortly before the JWT expires
	cacheSecs := int64(c.tokenFallbackSeconds)
	if exp, err := parseJWTExpiry(accessToken); err == nil && exp > 0 {
		if secs := int64(float64(exp-time.Now().Unix()) * 0.9); secs > 0 {
			cacheSecs = secs
		}
	}
	if c.rdb != nil {
		c.rdb.Set(ctx, key, accessToken, time.Duration(cacheSecs)*time.Second)
	}

	return accessToken, nil
}

// parseJWTExpiry extracts the 'exp' claim from a provider JWT without
// verifying the signature (we only need the cache lifetime).
func parseJWTExpiry(token string) (int64, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return 0, err
	}
	exp, ok := claims["exp"].(float64)
	if !ok {
		return 0, errors.New("exp claim not found")
	}
	return int64(exp), nil
}

// helper to compute a short cred hash
func shortCredHash(u, p string) string {
	h := md5.Sum([]byte(fmt.Sprintf("%s:%s", u, p)))
	return hex.EncodeToString(h[:])[:8]
}

// formatPhone converts various phone inputs into 254XXXXXXXXX format
func formatPhone(phone string) string {
	clean := ""
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			clean += string(r)
		}
	}
	if strings.HasPrefix(clean, "254") {
		return clean
	}
	if strings.HasPrefix(clean, "0") {
		return "254" + clean[1:]
	}
	// fallback: take last 9 digits
	if len(clean) >= 9 {
		return "254" + clean[len(clean)-9:]
	}
	return clean
}
