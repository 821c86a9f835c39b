package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

// ErrRateLimited is returned when every attempt was answered with 429.
var ErrRateLimited = errors.New("gemini rate limit exceeded")

const maxAttempts = 3

// Client calls the generativelanguage API. It is stateless: prompts
// in, text out, no access to any other component.
type Client struct {
	client *resty.Client
	apiKey string
	model  string

	// sleep is replaced in tests to observe backoff without waiting.
	sleep func(context.Context, time.Duration) error
}

func New(apiKey, model string) *Client {
	return NewWithBaseURL(apiKey, model, "https://generativelanguage.googleapis.com")
}

func NewWithBaseURL(apiKey, model, baseURL string) *Client {
	return &Client{
		client: resty.New().SetBaseURL(baseURL),
		apiKey: apiKey,
		model:  model,
		sleep:  sleepCtx,
	}
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Generate sends one prompt. Rate-limited responses are retried up to
// three attempts with 1s, 2s backoff; any other failure returns
// immediately.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	body := generateRequest{Contents: []content{{Parts: []part{{Text: prompt}}}}}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		resp, err := c.client.R().
			SetContext(ctx).
			SetQueryParam("key", c.apiKey).
			SetBody(&body).
			SetResult(&generateResponse{}).
			Post(fmt.Sprintf("/v1/models/%s:generateContent", c.model))
		if err != nil {
			return "", fmt.Errorf("sending request: %w", err)
		}

		switch {
		case resp.StatusCode() == http.StatusOK:
			result := resp.Result().(*generateResponse)
			if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
				return "", fmt.Errorf("empty response from model %s", c.model)
			}
			return result.Candidates[0].Content.Parts[0].Text, nil

		case resp.StatusCode() == http.StatusTooManyRequests:
			delay := time.Duration(1<<attempt) * time.Second
			logrus.Warnf("gemini rate limit hit, retrying in %v", delay)
			if attempt == maxAttempts-1 {
				break
			}
			if err := c.sleep(ctx, delay); err != nil {
				return "", err
			}

		default:
			return "", fmt.Errorf("unexpected status code: %d %s", resp.StatusCode(), string(resp.Body()))
		}
	}

	return "", ErrRateLimited
}

// Challenge builds a personalized challenge from an activity summary.
func (c *Client) Challenge(ctx context.Context, activity string) (string, error) {
	prompt := fmt.Sprintf(
		"Based on this GitHub user activity: %s. "+
			"Generate a personalized, engaging challenge to boost collaboration, "+
			"e.g., 'Review one PR to earn a collaborator badge'. Keep it short.",
		activity,
	)
	return c.Generate(ctx, prompt)
}

// Sentiment summarizes the sentiment of a discussion message.
func (c *Client) Sentiment(ctx context.Context, text string) (string, error) {
	prompt := fmt.Sprintf(
		"Analyze the sentiment of this discussion text: '%s'. "+
			"Provide a summary like 'Positive: encouraging collaboration' or "+
			"'Negative: frustration detected'. Consider biases and be neutral "+
			"and give the explanation.",
		text,
	)
	return c.Generate(ctx, prompt)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
