package video

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const DefaultThetaBaseURL = "https://api.thetavideoapi.com"

// ThetaVideo is a transcoded video on Theta Video API.
type ThetaVideo struct {
	ID          string  `json:"id"`
	PlaybackURI string  `json:"playback_uri"`
	Progress    float64 `json:"progress"`
}

type thetaUpload struct {
	ID           string `json:"id"`
	PresignedURL string `json:"presigned_url"`
}

type thetaResponse struct {
	Body struct {
		Uploads []thetaUpload `json:"uploads"`
		Videos  []ThetaVideo  `json:"videos"`
	} `json:"body"`
}

type ThetaClient struct {
	baseURL    string
	id         string
	secret     string
	httpClient *http.Client
}

func NewThetaClient(baseURL, id, secret string) *ThetaClient {
	if baseURL == "" {
		baseURL = DefaultThetaBaseURL
	}
	return &ThetaClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		id:         id,
		secret:     secret,
		httpClient: &http.Client{Timeout: 30 * time.Minute},
	}
}

func (c *ThetaClient) newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("x-tva-sa-id", c.id)
	req.Header.Set("x-tva-sa-secret", c.secret)
	return req, nil
}

func (c *ThetaClient) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("theta %s %s returned status %d: %s", req.Method, req.URL.Path, resp.StatusCode, string(body))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

// Upload sends the file at path to a fresh presigned upload slot and
// returns the upload id.
func (c *ThetaClient) Upload(ctx context.Context, path string) (string, error) {
	req, err := c.newRequest(ctx, http.MethodPost, c.baseURL+"/upload", nil)
	if err != nil {
		return "", err
	}
	var resp thetaResponse
	if err := c.do(req, &resp); err != nil {
		return "", fmt.Errorf("create upload: %w", err)
	}
	if len(resp.Body.Uploads) == 0 {
		return "", errors.New("create upload: no upload slot returned")
	}
	upload := resp.Body.Uploads[0]

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open source: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat source: %w", err)
	}

	put, err := c.newRequest(ctx, http.MethodPut, upload.PresignedURL, f)
	if err != nil {
		return "", err
	}
	put.ContentLength = info.Size()
	put.Header.Set("Content-Type", "application/octet-stream")
	if err := c.do(put, nil); err != nil {
		return "", fmt.Errorf("put source: %w", err)
	}
	return upload.ID, nil
}

func (c *ThetaClient) firstVideo(req *http.Request) (ThetaVideo, error) {
	var resp thetaResponse
	if err := c.do(req, &resp); err != nil {
		return ThetaVideo{}, err
	}
	if len(resp.Body.Videos) == 0 {
		return ThetaVideo{}, errors.New("no video returned")
	}
	return resp.Body.Videos[0], nil
}

// CreateVideo starts a public transcode of an uploaded source.
func (c *ThetaClient) CreateVideo(ctx context.Context, uploadID string) (ThetaVideo, error) {
	body, err := json.Marshal(map[string]string{
		"source_upload_id": uploadID,
		"playback_policy":  "public",
	})
	if err != nil {
		return ThetaVideo{}, fmt.Errorf("marshal request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, c.baseURL+"/video", bytes.NewReader(body))
	if err != nil {
		return ThetaVideo{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	v, err := c.firstVideo(req)
	if err != nil {
		return ThetaVideo{}, fmt.Errorf("create video: %w", err)
	}
	return v, nil
}

func (c *ThetaClient) Get(ctx context.Context, id string) (ThetaVideo, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.baseURL+"/video/"+id, nil)
	if err != nil {
		return ThetaVideo{}, err
	}
	v, err := c.firstVideo(req)
	if err != nil {
		return ThetaVideo{}, fmt.Errorf("get video %s: %w", id, err)
	}
	return v, nil
}

// Transcode uploads path, creates the video and returns its current state.
func (c *ThetaClient) Transcode(ctx context.Context, path string) (ThetaVideo, error) {
	uploadID, err := c.Upload(ctx, path)
	if err != nil {
		return ThetaVideo{}, err
	}
	created, err := c.CreateVideo(ctx, uploadID)
	if err != nil {
		return ThetaVideo{}, err
	}
	return c.Get(ctx, created.ID)
}
