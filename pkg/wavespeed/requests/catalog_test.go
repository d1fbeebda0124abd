package requests

import (
	"errors"
	"reflect"
	"testing"

	"github.com/wavespeedai/wavebot-go/pkg/wavespeed"
)

func TestLookup(t *testing.T) {
	for _, name := range []string{
		"kwaivgi/kling-v1.6-i2v-standard",
		"kwaivgi/kling-v1.6-t2v-standard",
		"wavespeed-ai/hunyuan-custom-ref2v-480p",
		"wavespeed-ai/real-esrgan",
		"nightmareai/real-esrgan",
	} {
		s, ok := Lookup(name)
		if !ok {
			t.Fatalf("schema %s not registered", name)
		}
		if s.Name != name {
			t.Fatalf("schema %s registered under wrong name %s", name, s.Name)
		}
		if s.Path == "" {
			t.Fatalf("schema %s has no path", name)
		}
	}
	if _, ok := Lookup("no/such-model"); ok {
		t.Fatalf("unknown name must not resolve")
	}
	if got := len(Names()); got != 5 {
		t.Fatalf("expected 5 built-in schemas, got %d", got)
	}
}

func TestKlingT2V_MinimalBuild(t *testing.T) {
	payload, err := KlingT2VStandard.Build(map[string]interface{}{"prompt": "a red fox at dawn"})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	want := map[string]interface{}{
		"prompt":         "a red fox at dawn",
		"guidance_scale": 0.5,
		"duration":       "5",
	}
	if !reflect.DeepEqual(payload, want) {
		t.Fatalf("payload mismatch:\n got %v\nwant %v", payload, want)
	}
}

func TestKlingI2V_ImageRequired(t *testing.T) {
	_, err := KlingI2VStandard.Build(map[string]interface{}{"prompt": "zoom in slowly"})
	var valErr *wavespeed.ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if valErr.Field != "image" {
		t.Fatalf("expected image to be named, got %+v", valErr)
	}
}

func TestKling_DurationEnum(t *testing.T) {
	_, err := KlingT2VStandard.Build(map[string]interface{}{
		"prompt":   "a red fox",
		"duration": "7",
	})
	var valErr *wavespeed.ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("expected ValidationError for duration=7, got %v", err)
	}
	if _, err := KlingT2VStandard.Build(map[string]interface{}{
		"prompt":   "a red fox",
		"duration": "10",
	}); err != nil {
		t.Fatalf("duration=10 must be accepted: %v", err)
	}
}

func TestHunyuan_Defaults(t *testing.T) {
	payload, err := HunyuanCustomRef2V480P.Build(map[string]interface{}{
		"image": "https://cdn.example/ref.png",
	})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	want := map[string]interface{}{
		"image":                 "https://cdn.example/ref.png",
		"guidance_scale":        7.5,
		"flow_shift":            13.0,
		"seed":                  -1,
		"size":                  "832*480",
		"enable_safety_checker": true,
	}
	if !reflect.DeepEqual(payload, want) {
		t.Fatalf("payload mismatch:\n got %v\nwant %v", payload, want)
	}
}

func TestHunyuan_GuidanceScaleBounds(t *testing.T) {
	base := map[string]interface{}{"image": "https://cdn.example/ref.png"}
	for _, bad := range []float64{1.0, 10.5} {
		values := map[string]interface{}{"image": base["image"], "guidance_scale": bad}
		if _, err := HunyuanCustomRef2V480P.Build(values); err == nil {
			t.Fatalf("guidance_scale=%v must be rejected", bad)
		}
	}
	values := map[string]interface{}{"image": base["image"], "guidance_scale": 2.0}
	if _, err := HunyuanCustomRef2V480P.Build(values); err != nil {
		t.Fatalf("guidance_scale=2.0 must be accepted: %v", err)
	}
}

func TestRealESRGAN_FaceEnhanceDefaultKept(t *testing.T) {
	payload, err := RealESRGAN.Build(map[string]interface{}{"image": "https://cdn.example/in.png"})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if v, ok := payload["face_enhance"]; !ok || v != false {
		t.Fatalf("face_enhance default must serialize as false: %v", payload)
	}
	if v := payload["guidance_scale"]; v != 4.0 {
		t.Fatalf("expected default scale 4.0, got %v", v)
	}
}
