package nodes

import (
	"context"
	"fmt"
	"time"

	"github.com/wavespeedai/wavebot-go/pkg/wavespeed"
	"github.com/wavespeedai/wavebot-go/pkg/wavespeed/requests"
)

// Wait budgets hosts may request through node arguments.
const (
	defaultMaxWaitSeconds = 300
	minWaitSeconds        = 30
	maxWaitSeconds        = 1800

	defaultPollSeconds = 5
	minPollSeconds     = 1
	maxPollSeconds     = 30
)

// TaskSubmitNode submits task info produced by a create node and returns the
// classified outputs.
type TaskSubmitNode struct {
	BaseNode
	Client *wavespeed.Client
}

// NewTaskSubmitNode creates a new TaskSubmitNode.
func NewTaskSubmitNode(client *wavespeed.Client) *TaskSubmitNode {
	return &TaskSubmitNode{Client: client}
}

func (n *TaskSubmitNode) Name() string {
	return "task-submit"
}

func (n *TaskSubmitNode) Description() string {
	return "Submit task info to WaveSpeed AI, optionally wait for completion, and return the classified outputs."
}

func (n *TaskSubmitNode) ToSchema() map[string]interface{} {
	return GenerateSchema(n)
}

func (n *TaskSubmitNode) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"task_info": map[string]interface{}{
				"type":        "object",
				"description": "Task info from a create node.",
			},
			"wait_for_completion": map[string]interface{}{
				"type":        "boolean",
				"description": "Whether to wait for task completion.",
				"default":     true,
			},
			"max_wait_time": map[string]interface{}{
				"type":        "integer",
				"description": "Maximum wait time in seconds.",
				"default":     defaultMaxWaitSeconds,
				"minimum":     minWaitSeconds,
				"maximum":     maxWaitSeconds,
			},
			"poll_interval": map[string]interface{}{
				"type":        "integer",
				"description": "Polling interval in seconds.",
				"default":     defaultPollSeconds,
				"minimum":     minPollSeconds,
				"maximum":     maxPollSeconds,
			},
		},
		"required": []string{"task_info"},
	}
}

func (n *TaskSubmitNode) Execute(args map[string]interface{}) (map[string]interface{}, error) {
	taskInfo, _ := args["task_info"].(map[string]interface{})
	if len(taskInfo) == 0 {
		return nil, fmt.Errorf("invalid task_info")
	}

	req, err := requestFromTaskInfo(taskInfo)
	if err != nil {
		return nil, err
	}

	wait := boolArg(args, "wait_for_completion", true)
	maxWait := clampSecondsArg(args, "max_wait_time", defaultMaxWaitSeconds, minWaitSeconds, maxWaitSeconds)
	poll := clampSecondsArg(args, "poll_interval", defaultPollSeconds, minPollSeconds, maxPollSeconds)

	result, err := n.Client.Run(context.Background(), req, &wavespeed.RunOptions{
		NoWait:       !wait,
		PollInterval: poll,
		Timeout:      maxWait,
	})
	if err != nil {
		return nil, fmt.Errorf("task submit failed: %w", err)
	}
	return classifiedResult(wavespeed.ClassifyResult(result)), nil
}

// requestFromTaskInfo rebuilds the submittable request. Dynamic task info
// carries a model UUID; published-model task info carries the API path. The
// payload was validated when the task info was created.
func requestFromTaskInfo(taskInfo map[string]interface{}) (wavespeed.Request, error) {
	payload, _ := taskInfo[keyRequestJSON].(map[string]interface{})
	if uuid, ok := taskInfo[keyModelUUID].(string); ok && uuid != "" {
		return requests.Dynamic(uuid, payload), nil
	}
	if path, ok := taskInfo[keyAPIPath].(string); ok && path != "" {
		return &rawRequest{path: path, payload: payload}, nil
	}
	return nil, fmt.Errorf("task_info is missing %s or %s", keyModelUUID, keyAPIPath)
}

// rawRequest replays an already-built payload against a fixed path.
type rawRequest struct {
	path    string
	payload map[string]interface{}
}

func (r *rawRequest) Path() string { return r.path }

func (r *rawRequest) Payload() (map[string]interface{}, error) {
	if r.payload == nil {
		return map[string]interface{}{}, nil
	}
	return r.payload, nil
}

// classifiedResult flattens the classifier's buckets into the host-facing
// return shape.
func classifiedResult(c wavespeed.ClassifiedOutput) map[string]interface{} {
	images := c.Images
	if images == nil {
		images = []string{}
	}
	return map[string]interface{}{
		"task_id":   c.TaskID,
		"video_url": c.Video,
		"images":    images,
		"audio_url": c.Audio,
		"text":      c.Text,
	}
}

func boolArg(args map[string]interface{}, key string, fallback bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return fallback
}

// clampSecondsArg reads a numeric argument and clamps it to the allowed
// range, falling back to the default when absent or unreadable.
func clampSecondsArg(args map[string]interface{}, key string, fallback, min, max int) time.Duration {
	seconds := fallback
	switch v := args[key].(type) {
	case int:
		seconds = v
	case int64:
		seconds = int(v)
	case float64:
		seconds = int(v)
	}
	if seconds < min {
		seconds = min
	}
	if seconds > max {
		seconds = max
	}
	return time.Duration(seconds) * time.Second
}
