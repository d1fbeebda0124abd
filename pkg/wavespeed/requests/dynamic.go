package requests

import "github.com/wavespeedai/wavebot-go/pkg/wavespeed"

const dynamicPathPrefix = "/api/v3/"

// DynamicRequest targets any model served from the v3 prediction surface by
// its model UUID. The payload passes through as-is; dynamic models publish
// their parameter contracts out of band (see pkg/models for card files).
type DynamicRequest struct {
	ModelUUID string
	Params    map[string]interface{}
}

// Dynamic builds a request for an arbitrary v3 model.
func Dynamic(modelUUID string, params map[string]interface{}) *DynamicRequest {
	return &DynamicRequest{ModelUUID: modelUUID, Params: params}
}

func (r *DynamicRequest) Path() string {
	return dynamicPathPrefix + r.ModelUUID
}

func (r *DynamicRequest) Payload() (map[string]interface{}, error) {
	if r.ModelUUID == "" {
		return nil, &wavespeed.ValidationError{Field: "model", Reason: "required field is missing"}
	}
	if r.Params == nil {
		return map[string]interface{}{}, nil
	}
	return r.Params, nil
}
