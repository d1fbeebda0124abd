package nodes

import (
	"encoding/json"
	"fmt"

	"github.com/wavespeedai/wavebot-go/pkg/wavespeed/requests"
)

// Task info keys shared between the create and submit nodes.
const (
	keyAPIPath     = "api_path"
	keyModelUUID   = "model_uuid"
	keyRequestJSON = "request_json"
)

// maxParamSlots is the number of placeholder inputs a host can wire into the
// dynamic create node.
const maxParamSlots = 20

// TaskCreateNode builds validated task info for one of the published
// endpoint schemas.
type TaskCreateNode struct {
	BaseNode
}

// NewTaskCreateNode creates a new TaskCreateNode.
func NewTaskCreateNode() *TaskCreateNode {
	return &TaskCreateNode{}
}

func (n *TaskCreateNode) Name() string {
	return "task-create"
}

func (n *TaskCreateNode) Description() string {
	return "Create task info for a published model. Validates parameters against the model's schema and applies its defaults."
}

func (n *TaskCreateNode) ToSchema() map[string]interface{} {
	return GenerateSchema(n)
}

func (n *TaskCreateNode) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"model": map[string]interface{}{
				"type":        "string",
				"description": "Published model name (see the model catalog).",
				"enum":        requests.Names(),
			},
			"params": map[string]interface{}{
				"type":        "object",
				"description": "Field values for the model's schema.",
			},
		},
		"required": []string{"model"},
	}
}

func (n *TaskCreateNode) Execute(args map[string]interface{}) (map[string]interface{}, error) {
	model, _ := args["model"].(string)
	schema, ok := requests.Lookup(model)
	if !ok {
		return nil, fmt.Errorf("unknown model: %s", model)
	}

	params, _ := args["params"].(map[string]interface{})
	payload, err := schema.Build(params)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		keyAPIPath:     schema.Path,
		keyRequestJSON: payload,
	}, nil
}

// TaskCreateDynamicNode accumulates task parameters for an arbitrary v3
// model. Hosts wire values into numbered placeholder slots and describe the
// mapping from API parameter names to slots in the param map; widget-sourced
// values arrive pre-baked in the base request JSON.
type TaskCreateDynamicNode struct {
	BaseNode
}

// NewTaskCreateDynamicNode creates a new TaskCreateDynamicNode.
func NewTaskCreateDynamicNode() *TaskCreateDynamicNode {
	return &TaskCreateDynamicNode{}
}

func (n *TaskCreateDynamicNode) Name() string {
	return "task-create-dynamic"
}

func (n *TaskCreateDynamicNode) Description() string {
	return "Create task info for any model by UUID. Maps placeholder slots param_1..param_20 onto API parameters using the supplied param map."
}

func (n *TaskCreateDynamicNode) ToSchema() map[string]interface{} {
	return GenerateSchema(n)
}

func (n *TaskCreateDynamicNode) Parameters() map[string]interface{} {
	props := map[string]interface{}{
		"model_id": map[string]interface{}{
			"type":        "string",
			"description": "Model UUID on the v3 prediction surface.",
		},
		"request_json": map[string]interface{}{
			"type":        "string",
			"description": "Base request JSON with widget values.",
		},
		"param_map": map[string]interface{}{
			"type":        "string",
			"description": `Mapping of parameter names to slots: {"images": {"placeholder": "param_2", "type": "array-str"}} or the legacy {"images": "param_2"}.`,
		},
	}
	for i := 1; i <= maxParamSlots; i++ {
		props[fmt.Sprintf("param_%d", i)] = map[string]interface{}{
			"description": "Placeholder slot.",
		}
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": props,
		"required":   []string{"model_id"},
	}
}

func (n *TaskCreateDynamicNode) Execute(args map[string]interface{}) (map[string]interface{}, error) {
	modelID, _ := args["model_id"].(string)
	if modelID == "" {
		return nil, fmt.Errorf("model_id is required")
	}

	requestJSON := asObject(args["request_json"])
	paramMap := asObject(args["param_map"])

	for paramName, paramInfo := range paramMap {
		placeholder, paramType := resolveParamInfo(paramInfo)
		if placeholder == "" {
			continue
		}
		value, ok := args[placeholder]
		if !ok {
			continue
		}
		// A slot holding its own placeholder name is unconnected.
		if s, isString := value.(string); isString && s == placeholder {
			continue
		}
		requestJSON[paramName] = ConvertParameterValue(value, paramType)
	}

	return map[string]interface{}{
		keyModelUUID:   modelID,
		keyRequestJSON: requestJSON,
	}, nil
}

// resolveParamInfo reads one param map entry in either supported format:
// a bare placeholder string, or an object with placeholder and type.
func resolveParamInfo(info interface{}) (placeholder, paramType string) {
	switch v := info.(type) {
	case string:
		return v, "string"
	case map[string]interface{}:
		placeholder, _ = v["placeholder"].(string)
		paramType, _ = v["type"].(string)
		if paramType == "" {
			paramType = "string"
		}
		return placeholder, paramType
	default:
		return "", ""
	}
}

// asObject accepts a JSON object either decoded or as a string. Malformed
// input yields an empty map rather than an error; hosts routinely send "{}"
// placeholders with broken escaping. Decoded maps are copied so the caller's
// value is never mutated.
func asObject(v interface{}) map[string]interface{} {
	switch value := v.(type) {
	case map[string]interface{}:
		m := make(map[string]interface{}, len(value))
		for k, item := range value {
			m[k] = item
		}
		return m
	case string:
		if value == "" {
			return map[string]interface{}{}
		}
		var m map[string]interface{}
		if err := json.Unmarshal([]byte(value), &m); err != nil || m == nil {
			return map[string]interface{}{}
		}
		return m
	default:
		return map[string]interface{}{}
	}
}
