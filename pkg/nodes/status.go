package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/wavespeedai/wavebot-go/pkg/wavespeed"
)

// TaskStatusNode checks a task by ID and returns its classified outputs once
// completed. In-progress tasks yield the empty output shape so hosts can keep
// polling without special-casing errors.
type TaskStatusNode struct {
	BaseNode
	Client *wavespeed.Client
}

// NewTaskStatusNode creates a new TaskStatusNode.
func NewTaskStatusNode(client *wavespeed.Client) *TaskStatusNode {
	return &TaskStatusNode{Client: client}
}

func (n *TaskStatusNode) Name() string {
	return "task-status"
}

func (n *TaskStatusNode) Description() string {
	return "Check the status of a task by ID and return its outputs when completed."
}

func (n *TaskStatusNode) ToSchema() map[string]interface{} {
	return GenerateSchema(n)
}

func (n *TaskStatusNode) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"task_id": map[string]interface{}{
				"type":        "string",
				"description": "Task ID to check.",
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
		"required": []string{"task_id"},
	}
}

func (n *TaskStatusNode) Execute(args map[string]interface{}) (map[string]interface{}, error) {
	taskID, _ := args["task_id"].(string)
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return nil, &wavespeed.InvalidTaskIDError{}
	}

	wait := boolArg(args, "wait_for_completion", true)
	maxWait := clampSecondsArg(args, "max_wait_time", defaultMaxWaitSeconds, minWaitSeconds, maxWaitSeconds)
	poll := clampSecondsArg(args, "poll_interval", defaultPollSeconds, minPollSeconds, maxPollSeconds)

	var result *wavespeed.TaskResult
	var err error
	if wait {
		result, err = n.Client.Wait(context.Background(), taskID, &wavespeed.WaitOptions{
			PollInterval: poll,
			Timeout:      maxWait,
		})
	} else {
		result, err = n.Client.Poll(context.Background(), taskID)
	}
	if err != nil {
		return nil, fmt.Errorf("task status failed: %w", err)
	}

	status := wavespeed.Status(strings.ToLower(string(result.Status)))
	switch {
	case status == wavespeed.StatusFailed:
		return nil, fmt.Errorf("task status failed: %w", &wavespeed.TaskFailedError{TaskID: taskID, Reason: result.Error})
	case status == wavespeed.StatusCompleted:
		return classifiedResult(wavespeed.ClassifyResult(result)), nil
	case status.InProgress():
		// Keep the shape stable so hosts can poll without branching.
		return classifiedResult(wavespeed.ClassifiedOutput{TaskID: taskID}), nil
	default:
		return nil, fmt.Errorf("unknown task status: %s", result.Status)
	}
}
