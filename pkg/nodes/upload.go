package nodes

import (
	"context"
	"fmt"

	"github.com/wavespeedai/wavebot-go/pkg/utils"
	"github.com/wavespeedai/wavebot-go/pkg/wavespeed"
)

// MediaUploadNode pushes a local file or a remote URL to the media upload
// endpoint and returns the hosted download URL, which image-to-video models
// accept as their image input.
type MediaUploadNode struct {
	BaseNode
	Client *wavespeed.Client
}

// NewMediaUploadNode creates a new MediaUploadNode.
func NewMediaUploadNode(client *wavespeed.Client) *MediaUploadNode {
	return &MediaUploadNode{Client: client}
}

func (n *MediaUploadNode) Name() string {
	return "media-upload"
}

func (n *MediaUploadNode) Description() string {
	return "Upload a PNG image (local path or URL) to WaveSpeed AI and return its hosted download URL."
}

func (n *MediaUploadNode) ToSchema() map[string]interface{} {
	return GenerateSchema(n)
}

func (n *MediaUploadNode) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"source": map[string]interface{}{
				"type":        "string",
				"description": "Local file path or http(s) URL of the image.",
			},
		},
		"required": []string{"source"},
	}
}

func (n *MediaUploadNode) Execute(args map[string]interface{}) (map[string]interface{}, error) {
	source, _ := args["source"].(string)
	if source == "" {
		return nil, fmt.Errorf("source is required")
	}

	reader, _, err := utils.GetMediaReader(source)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %v", source, err)
	}
	defer reader.Close()

	url, err := n.Client.Upload(context.Background(), reader)
	if err != nil {
		return nil, fmt.Errorf("media upload failed: %w", err)
	}
	return map[string]interface{}{"download_url": url}, nil
}

// RegisterAll wires every node into the registry against one shared client.
func RegisterAll(registry *Registry, client *wavespeed.Client) {
	registry.Register(NewTaskCreateNode())
	registry.Register(NewTaskCreateDynamicNode())
	registry.Register(NewTaskSubmitNode(client))
	registry.Register(NewTaskStatusNode(client))
	registry.Register(NewMediaUploadNode(client))
}
