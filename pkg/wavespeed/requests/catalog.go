package requests

import "sort"

// KlingI2VStandard generates 5s videos in 720p resolution from a first-frame
// image.
var KlingI2VStandard = &Schema{
	Name:  "kwaivgi/kling-v1.6-i2v-standard",
	Title: "Kling v1.6 image-to-video (standard)",
	Path:  "/api/v2/kwaivgi/kling-v1.6-i2v-standard",
	Fields: []Field{
		{Name: "prompt", Rule: "max=2000", Doc: "Positive text prompt, up to 2000 characters"},
		{Name: "negative_prompt", Rule: "max=2500", Doc: "Negative text prompt, up to 2500 characters"},
		{Name: "image", Required: true, Doc: "First frame of the video (jpg/jpeg/png, <=10MB, >=300x300px)"},
		{Name: "guidance_scale", Default: 0.5, Rule: "gte=0,lte=1", Doc: "Higher values follow the prompt more strictly"},
		{Name: "duration", Default: "5", Rule: "oneof=5 10", Doc: "Video length in seconds"},
	},
}

// KlingT2VStandard generates 5s videos in 720p resolution from text.
var KlingT2VStandard = &Schema{
	Name:  "kwaivgi/kling-v1.6-t2v-standard",
	Title: "Kling v1.6 text-to-video (standard)",
	Path:  "/api/v2/kwaivgi/kling-v1.6-t2v-standard",
	Fields: []Field{
		{Name: "prompt", Required: true, Rule: "max=2000", Doc: "Positive text prompt, up to 2000 characters"},
		{Name: "negative_prompt", Rule: "max=2500", Doc: "Negative text prompt, up to 2500 characters"},
		{Name: "guidance_scale", Default: 0.5, Rule: "gte=0,lte=1", Doc: "Higher values follow the prompt more strictly"},
		{Name: "duration", Default: "5", Rule: "oneof=5 10", Doc: "Video length in seconds"},
	},
}

// HunyuanCustomRef2V480P generates reference-guided videos with the Hunyuan
// open video model at 480p.
var HunyuanCustomRef2V480P = &Schema{
	Name:  "wavespeed-ai/hunyuan-custom-ref2v-480p",
	Title: "Hunyuan custom reference-to-video 480p",
	Path:  "/api/v2/wavespeed-ai/hunyuan-custom-ref2v-480p",
	Fields: []Field{
		{Name: "prompt", Doc: "The prompt to generate the video from"},
		{Name: "image", Required: true, Doc: "The reference image to generate the video from"},
		{Name: "negative_prompt", Doc: "The negative prompt"},
		{Name: "guidance_scale", Default: 7.5, Rule: "gte=1.01,lte=10", Doc: "Guidance scale for generation"},
		{Name: "flow_shift", Default: 13.0, Rule: "gte=1,lte=20", Doc: "Shift of the timestep schedule for flow matching"},
		{Name: "seed", Default: -1, Doc: "Generation seed, -1 for random"},
		{Name: "size", Default: "832*480", Rule: "oneof=832*480 480*832", Doc: "Output size"},
		{Name: "enable_safety_checker", Default: true, Doc: "Run the safety checker on outputs"},
	},
}

// RealESRGAN upscales an image with optional GFPGAN face enhancement.
var RealESRGAN = &Schema{
	Name:  "wavespeed-ai/real-esrgan",
	Title: "Real-ESRGAN upscaler",
	Path:  "/api/v2/wavespeed-ai/real-esrgan",
	Fields: []Field{
		{Name: "image", Required: true, Doc: "Input image"},
		{Name: "guidance_scale", Default: 4.0, Rule: "gte=0,lte=10", Doc: "Factor to scale the image by"},
		{Name: "face_enhance", Default: false, Doc: "Run GFPGAN face enhancement along with upscaling"},
	},
}

// NightmareAIRealESRGAN is the nightmareai deployment of the same upscaler.
var NightmareAIRealESRGAN = &Schema{
	Name:  "nightmareai/real-esrgan",
	Title: "Real-ESRGAN upscaler (nightmareai)",
	Path:  "/api/v2/nightmareai/real-esrgan",
	Fields: []Field{
		{Name: "image", Required: true, Doc: "Input image"},
		{Name: "guidance_scale", Default: 4.0, Rule: "gte=0,lte=10", Doc: "Factor to scale the image by"},
		{Name: "face_enhance", Default: false, Doc: "Run GFPGAN face enhancement along with upscaling"},
	},
}

var catalog = map[string]*Schema{
	KlingI2VStandard.Name:       KlingI2VStandard,
	KlingT2VStandard.Name:       KlingT2VStandard,
	HunyuanCustomRef2V480P.Name: HunyuanCustomRef2V480P,
	RealESRGAN.Name:             RealESRGAN,
	NightmareAIRealESRGAN.Name:  NightmareAIRealESRGAN,
}

// Lookup returns the built-in schema registered under name.
func Lookup(name string) (*Schema, bool) {
	s, ok := catalog[name]
	return s, ok
}

// Names lists the built-in schema names in sorted order.
func Names() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
