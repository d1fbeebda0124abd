package models

// builtinCards covers the published schemas so a fresh deployment works
// before any workspace card exists.
func builtinCards() []Card {
	return []Card{
		{
			Name:        "kling-t2v",
			Source:      "builtin",
			Description: "Kling v1.6 text-to-video, standard tier. 5 or 10 second clips from a text prompt.",
			Model:       "kwaivgi/kling-v1.6-t2v-standard",
			Kind:        "video",
			Default:     true,
			Available:   true,
			Guide: "Describe the scene, the camera movement and the mood in one or two sentences. " +
				"Name concrete subjects; the model drifts on abstract prompts.",
		},
		{
			Name:        "kling-i2v",
			Source:      "builtin",
			Description: "Kling v1.6 image-to-video, standard tier. Animates a source image.",
			Model:       "kwaivgi/kling-v1.6-i2v-standard",
			Kind:        "video",
			Available:   true,
			Guide: "Attach the source image, then describe the motion you want. " +
				"Keep the prompt about movement; the image already fixes the look.",
		},
		{
			Name:        "hunyuan-ref2v",
			Source:      "builtin",
			Description: "Hunyuan custom reference-to-video at 480p. Keeps the subject of a reference image.",
			Model:       "wavespeed-ai/hunyuan-custom-ref2v-480p",
			Kind:        "video",
			Available:   true,
			Guide: "Attach a clean reference of the subject. Portrait sources work best with " +
				"the 480*832 size.",
		},
		{
			Name:        "upscale",
			Source:      "builtin",
			Description: "Real-ESRGAN image upscaler with optional face enhancement.",
			Model:       "wavespeed-ai/real-esrgan",
			Kind:        "image",
			Available:   true,
			Guide:       "Attach the image to upscale. Turn on face enhancement for portraits.",
		},
		{
			Name:        "upscale-nightmareai",
			Source:      "builtin",
			Description: "NightmareAI's Real-ESRGAN variant of the image upscaler.",
			Model:       "nightmareai/real-esrgan",
			Kind:        "image",
			Available:   true,
			Guide:       "Attach the image to upscale. Same controls as the wavespeed-ai variant.",
		},
	}
}
