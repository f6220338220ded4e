package vision

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/api/option"
)

// Labeler 图片标签识别接口
type Labeler interface {
	DetectLabels(ctx context.Context, imageURL string) ([]string, error)
	Close() error
}

type googleLabeler struct {
	client    *vision.ImageAnnotatorClient
	maxLabels int
}

// Config 配置
type Config struct {
	CredentialsFile string // 为空时由 SDK 读 GOOGLE_APPLICATION_CREDENTIALS
	MaxLabels       int
}

// NewGoogleLabeler 创建 Google Vision 标签识别客户端
func NewGoogleLabeler(ctx context.Context, cfg *Config) (Labeler, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.MaxLabels <= 0 {
		cfg.MaxLabels = 10
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("创建 Vision 客户端失败: %w", err)
	}

	return &googleLabeler{client: client, maxLabels: cfg.MaxLabels}, nil
}

// DetectLabels 对图片 URL 做标签识别，返回小写标签集合
// 顺序无保证，调用方只能当集合用。
func (g *googleLabeler) DetectLabels(ctx context.Context, imageURL string) ([]string, error) {
	if imageURL == "" {
		return nil, fmt.Errorf("图片 URL 不能为空")
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image: &visionpb.Image{
					Source: &visionpb.ImageSource{ImageUri: imageURL},
				},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_LABEL_DETECTION, MaxResults: int32(g.maxLabels)},
				},
			},
		},
	}

	resp, err := g.client.BatchAnnotateImages(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Vision 标签识别失败: %w", err)
	}
	if resp == nil || len(resp.Responses) == 0 || resp.Responses[0] == nil {
		return nil, nil
	}

	r0 := resp.Responses[0]
	if r0.Error != nil && r0.Error.Message != "" {
		return nil, fmt.Errorf("Vision 标注错误: %s", r0.Error.Message)
	}

	labels := make([]string, 0, len(r0.LabelAnnotations))
	for _, ann := range r0.LabelAnnotations {
		if ann == nil || ann.Description == "" {
			continue
		}
		labels = append(labels, strings.ToLower(ann.Description))
	}

	slog.Debug("标签识别完成", "count", len(labels))
	return labels, nil
}

// Close 关闭底层连接
func (g *googleLabeler) Close() error {
	if g == nil || g.client == nil {
		return nil
	}
	return g.client.Close()
}
