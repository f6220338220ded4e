package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Notion 数据库里约定的属性名（韩文是业务侧数据库的真实字段名）
const (
	propCreator   = "생성자"      // created_by 属性
	propFiles     = "파일과 미디어" // 文件与媒体属性
	propCreatedAt = "생성 일시"    // 创建时间属性，用于排序
)

const apiVersion = "2022-06-28"

// Client Notion API 客户端
type Client struct {
	apiKey     string
	databaseID string
	baseURL    string
	client     *http.Client
}

// ClientConfig 配置
type ClientConfig struct {
	APIKey     string
	DatabaseID string
	BaseURL    string
}

// NewClient 创建客户端
func NewClient(cfg *ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.notion.com"
	}

	return &Client{
		apiKey:     cfg.APIKey,
		databaseID: cfg.DatabaseID,
		baseURL:    cfg.BaseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Page 提炼后的页面记录
type Page struct {
	ID          string
	CreatorName string
	PhotoURL    string
}

// HasPhoto 前置条件：是否已带照片附件
func (p *Page) HasPhoto() bool {
	return p != nil && p.PhotoURL != ""
}

// HasCreator 是否带有效创建者
func (p *Page) HasCreator() bool {
	return p != nil && p.CreatorName != ""
}

type queryRequest struct {
	Sorts    []sortSpec `json:"sorts"`
	PageSize int        `json:"page_size"`
}

type sortSpec struct {
	Property  string `json:"property"`
	Direction string `json:"direction"`
}

type queryResponse struct {
	Results []pagePayload `json:"results"`
}

type pagePayload struct {
	ID         string                     `json:"id"`
	Properties map[string]propertyPayload `json:"properties"`
}

type propertyPayload struct {
	CreatedBy *struct {
		Name string `json:"name"`
	} `json:"created_by"`
	Files []struct {
		File *struct {
			URL string `json:"url"`
		} `json:"file"`
	} `json:"files"`
}

// QueryRecent 查询数据库中最新的 limit 条页面，按创建时间倒序
func (c *Client) QueryRecent(ctx context.Context, limit int) ([]Page, error) {
	if limit <= 0 {
		limit = 20
	}

	req := queryRequest{
		Sorts:    []sortSpec{{Property: propCreatedAt, Direction: "descending"}},
		PageSize: limit,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("序列化请求失败: %w", err)
	}

	url := fmt.Sprintf("%s/v1/databases/%s/query", c.baseURL, c.databaseID)
	respBody, err := c.do(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}

	var queryResp queryResponse
	if err := json.Unmarshal(respBody, &queryResp); err != nil {
		return nil, fmt.Errorf("解析响应失败: %w", err)
	}

	pages := make([]Page, 0, len(queryResp.Results))
	for _, raw := range queryResp.Results {
		pages = append(pages, distill(raw))
	}

	slog.Debug("Notion 查询完成", "count", len(pages))
	return pages, nil
}

// FetchPage 重新拉取单个页面（等待队列复查用）
func (c *Client) FetchPage(ctx context.Context, pageID string) (*Page, error) {
	url := fmt.Sprintf("%s/v1/pages/%s", c.baseURL, pageID)
	respBody, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	var raw pagePayload
	if err := json.Unmarshal(respBody, &raw); err != nil {
		return nil, fmt.Errorf("解析响应失败: %w", err)
	}

	page := distill(raw)
	return &page, nil
}

// distill 把 Notion 属性负载提炼成领域页面
func distill(raw pagePayload) Page {
	page := Page{ID: raw.ID}

	if creator, ok := raw.Properties[propCreator]; ok && creator.CreatedBy != nil {
		page.CreatorName = creator.CreatedBy.Name
	}

	if files, ok := raw.Properties[propFiles]; ok {
		for _, f := range files.Files {
			// 只认 Notion 托管的 file 类型附件，外链 external 不算认证照片
			if f.File != nil && f.File.URL != "" {
				page.PhotoURL = f.File.URL
				break
			}
		}
	}

	return page
}

// do 发送请求并返回响应体
func (c *Client) do(ctx context.Context, method, url string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Notion-Version", apiVersion)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("发送请求失败: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应失败: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		slog.Error("Notion API 错误", "status", resp.StatusCode, "body", string(respBody))
		return nil, fmt.Errorf("API 错误: %s", resp.Status)
	}

	return respBody, nil
}
