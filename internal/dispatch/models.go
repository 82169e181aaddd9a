package dispatch

// modelBranding maps well-known upstream names onto the branded catalog so
// clients pointed at other gateways work unmodified.
var modelBranding = map[string]string{
	"claude-opus-4-5":  "inno-ai-boyong-4.5",
	"claude-sonnet-4":  "inno-ai-boyong-4.0",
	"claude-haiku-4-5": "inno-ai-boyong-mini",
	"gpt-4o":           "inno-ai-gpt-4o",
	"gpt-4":            "inno-ai-gpt-4",
	"gpt-3.5-turbo":    "inno-ai-boyong-mini",
}

// chatUpstream names the provider family and upstream ID one catalog
// chat model dispatches to.
type chatUpstream struct {
	Family string
	Model  string
}

// brandedChatUpstreams routes catalog chat models to their configured
// upstream.
var brandedChatUpstreams = map[string]chatUpstream{
	"inno-ai-boyong-4.5":   {"openrouter", "anthropic/claude-3-opus"},
	"inno-ai-boyong-4.0":   {"openrouter", "anthropic/claude-3-sonnet"},
	"inno-ai-boyong-mini":  {"openrouter", "anthropic/claude-3-haiku"},
	"inno-ai-gpt-4o":       {"openrouter", "openai/gpt-4o"},
	"inno-ai-gpt-4":        {"openrouter", "openai/gpt-4-turbo"},
	"inno-ai-gemini-pro":   {"openrouter", "google/gemini-1.5-pro"},
	"inno-ai-gemini-flash": {"openrouter", "google/gemini-1.5-flash"},
	"inno-ai-llama-70b":    {"huggingface", "meta-llama/Llama-2-70b-chat-hf"},
}

// hfModels are the free fallback models on the HuggingFace router, one per
// task.
var hfModels = map[string]string{
	"image":       "black-forest-labs/FLUX.1-schnell",
	"image_alt":   "runwayml/stable-diffusion-v1-5",
	"tts":         "facebook/mms-tts-eng",
	"stt":         "openai/whisper-large-v3",
	"embeddings":  "sentence-transformers/all-MiniLM-L6-v2",
	"text_to_3d":  "openai/shap-e",
	"image_to_3d": "stabilityai/TripoSR",
}

// Tier describes one quality level of a media family.
type Tier struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Model       string `json:"model"`
	Description string `json:"description"`
	Speed       string `json:"speed"`
	Cost        string `json:"cost"`
	Quality     string `json:"quality"`
	Category    string `json:"category"`
	Type        string `json:"type,omitempty"`
}

var imageTiers = map[string]Tier{
	"image-1": {
		ID: "image-1", Name: "Fast", Model: "prunaai/p-image",
		Description: "Sub-second generation, budget-friendly",
		Speed:       "< 1 sec", Cost: "~$0.001", Quality: "3/5", Category: "fast",
	},
	"image-2": {
		ID: "image-2", Name: "Turbo", Model: "prunaai/z-image-turbo",
		Description: "Fast with better quality, 6B params",
		Speed:       "~1 sec", Cost: "~$0.003", Quality: "4/5", Category: "fast",
	},
	"ultrafast": {
		ID: "ultrafast", Name: "Ultra Fast", Model: "google/imagen-4-fast",
		Description: "Google Imagen 4 optimized for speed",
		Speed:       "~2 sec", Cost: "~$0.02", Quality: "4/5", Category: "fast",
	},
	"image-3": {
		ID: "image-3", Name: "Standard", Model: "black-forest-labs/flux-schnell",
		Description: "Great balance of speed and quality",
		Speed:       "~3 sec", Cost: "~$0.003", Quality: "4/5", Category: "standard",
	},
	"standard": {
		ID: "standard", Name: "Gemini Standard", Model: "google/gemini-2.5-flash-image",
		Description: "Google Gemini 2.5 Flash image generation",
		Speed:       "~5 sec", Cost: "~$0.02", Quality: "4/5", Category: "standard",
	},
	"standard-edit": {
		ID: "standard-edit", Name: "Standard Edit", Model: "google/nano-banana",
		Description: "Google Gemini 2.5 with image editing",
		Speed:       "~8 sec", Cost: "~$0.04", Quality: "5/5", Category: "edit",
	},
	"image-4": {
		ID: "image-4", Name: "Quality", Model: "black-forest-labs/flux-dev",
		Description: "High quality, detailed outputs",
		Speed:       "~10 sec", Cost: "~$0.03", Quality: "5/5", Category: "quality",
	},
	"image-5": {
		ID: "image-5", Name: "Premium", Model: "black-forest-labs/flux-pro",
		Description: "Professional quality, best prompt following",
		Speed:       "~8 sec", Cost: "~$0.05", Quality: "5/5", Category: "premium",
	},
	"premium-edit": {
		ID: "premium-edit", Name: "Premium Edit", Model: "google/nano-banana-pro",
		Description: "Best editing model with text rendering",
		Speed:       "~15 sec", Cost: "~$0.08", Quality: "5/5+", Category: "edit",
	},
	"image-6": {
		ID: "image-6", Name: "Ultra", Model: "google/nano-banana-pro",
		Description: "State-of-the-art, text rendering, editing",
		Speed:       "~15 sec", Cost: "~$0.08", Quality: "5/5+", Category: "ultra",
	},
	"ultrav1": {
		ID: "ultrav1", Name: "Ultra V1 (OpenAI)", Model: "openai/gpt-image-1.5",
		Description: "OpenAI GPT Image 1.5, best instruction following",
		Speed:       "~12 sec", Cost: "~$0.08", Quality: "5/5+", Category: "ultra",
	},
	"ultrav2": {
		ID: "ultrav2", Name: "Ultra V2 (Google)", Model: "google/imagen-4",
		Description: "Google Imagen 4 flagship, highest fidelity",
		Speed:       "~10 sec", Cost: "~$0.08", Quality: "5/5+", Category: "ultra",
	},
}

var imageAliases = map[string]string{
	"fast":       "image-1",
	"turbo":      "image-2",
	"quick":      "ultrafast",
	"default":    "image-3",
	"gemini":     "standard",
	"flash":      "standard",
	"quality":    "image-4",
	"premium":    "image-5",
	"pro":        "image-5",
	"ultra":      "image-6",
	"best":       "ultrav2",
	"openai":     "ultrav1",
	"gpt":        "ultrav1",
	"imagen":     "ultrav2",
	"imagen4":    "ultrav2",
	"edit":       "standard-edit",
	"edit-pro":   "premium-edit",
	"banana":     "standard-edit",
	"banana-pro": "premium-edit",
	"cheap":      "image-1",
	"budget":     "image-1",
}

var threeDTiers = map[string]Tier{
	"3d-1": {
		ID: "3d-1", Name: "Fast 3D",
		Model:       "mareksagan/dreamgaussian:d16b4890fd9d1996aa7e018c261237e3c4157d20489773f3022ef10de6c06909",
		Description: "DreamGaussian, fast Gaussian splatting",
		Speed:       "~30 sec", Cost: "~$0.05", Quality: "3/5", Category: "fast",
	},
	"3d-2": {
		ID: "3d-2", Name: "Standard 3D",
		Model:       "tencent/hunyuan-3d-3.1:a2838628b41a2e0ee2eb19b3ea98a40d75f8d7639bf5a1ddd37ea299bb334854",
		Description: "Tencent Hunyuan-3D 3.1, high quality textures",
		Speed:       "~2 min", Cost: "~$0.15", Quality: "5/5", Category: "standard",
	},
	"3d-premium": {
		ID: "3d-premium", Name: "Premium 3D", Model: "hyper3d/rodin",
		Description: "Rodin Gen-2, complex detailed models",
		Speed:       "~3 min", Cost: "~$0.20", Quality: "5/5+", Category: "premium",
	},
}

var threeDAliases = map[string]string{
	"fast":          "3d-1",
	"dreamgaussian": "3d-1",
	"standard":      "3d-2",
	"hunyuan":       "3d-2",
	"default":       "3d-2",
	"premium":       "3d-premium",
	"rodin":         "3d-premium",
	"best":          "3d-premium",
}

var videoTiers = map[string]Tier{
	"video-1": {
		ID: "video-1", Name: "Fast T2V", Model: "lucataco/animate-diff",
		Description: "AnimateDiff, animated text-to-video",
		Speed:       "~30 sec", Cost: "~$0.05", Quality: "3/5",
		Type: "text-to-video", Category: "fast",
	},
	"video-2": {
		ID: "video-2", Name: "Standard T2V", Model: "minimax/video-01",
		Description: "MiniMax/Hailuo, 6s videos from text or image",
		Speed:       "~1 min", Cost: "~$0.15", Quality: "4/5",
		Type: "text-to-video", Category: "standard",
	},
	"video-3": {
		ID: "video-3", Name: "Quality T2V", Model: "luma/ray",
		Description: "Luma Dream Machine, high quality T2V",
		Speed:       "~1 min", Cost: "~$0.25", Quality: "5/5",
		Type: "text-to-video", Category: "quality",
	},
	"video-premium": {
		ID: "video-premium", Name: "Premium T2V", Model: "wan-video/wan-2.5-t2v",
		Description: "Wan 2.5, high quality T2V",
		Speed:       "~2 min", Cost: "~$0.35", Quality: "5/5",
		Type: "text-to-video", Category: "premium",
	},
	"video-premium2": {
		ID: "video-premium2", Name: "Premium+ T2V", Model: "wan-video/wan-2.6-t2v",
		Description: "Wan 2.6, latest Alibaba T2V model",
		Speed:       "~2 min", Cost: "~$0.40", Quality: "5/5+",
		Type: "text-to-video", Category: "premium",
	},
	"video-i2v": {
		ID: "video-i2v", Name: "Fast I2V", Model: "wan-video/wan-2.2-i2v-fast",
		Description: "Wan 2.2 Fast, image to video",
		Speed:       "~30 sec", Cost: "~$0.10", Quality: "4/5",
		Type: "image-to-video", Category: "fast",
	},
	"video-i2v-kling": {
		ID: "video-i2v-kling", Name: "Premium I2V", Model: "kwaivgi/kling-v2.1",
		Description: "Kling V2.1, 5s/10s videos from image",
		Speed:       "~1 min", Cost: "~$0.25", Quality: "5/5",
		Type: "image-to-video", Category: "premium",
	},
	"video-edit": {
		ID: "video-edit", Name: "Video Edit", Model: "luma/modify-video",
		Description: "Luma, style transfer and prompt editing",
		Speed:       "~1 min", Cost: "~$0.15", Quality: "5/5",
		Type: "video-edit", Category: "edit",
	},
	"video-reframe": {
		ID: "video-reframe", Name: "Video Reframe", Model: "luma/reframe-video",
		Description: "Change aspect ratio, up to 30s at 720p",
		Speed:       "~20 sec", Cost: "~$0.05", Quality: "4/5",
		Type: "video-edit", Category: "edit",
	},
	"video-audio": {
		ID: "video-audio", Name: "Add Audio", Model: "zsxkib/mmaudio",
		Description: "MMAudio V2, add sound to video",
		Speed:       "~30 sec", Cost: "~$0.08", Quality: "5/5",
		Type: "video-audio", Category: "audio",
	},
}

var videoAliases = map[string]string{
	"fast":           "video-1",
	"animatediff":    "video-1",
	"standard":       "video-2",
	"hailuo":         "video-2",
	"minimax":        "video-2",
	"default":        "video-2",
	"quality":        "video-3",
	"luma":           "video-3",
	"ray":            "video-3",
	"dream-machine":  "video-3",
	"premium":        "video-premium",
	"wan25":          "video-premium",
	"premium2":       "video-premium2",
	"wan26":          "video-premium2",
	"best":           "video-premium2",
	"i2v":            "video-i2v",
	"img2vid":        "video-i2v",
	"image-to-video": "video-i2v",
	"i2v-kling":      "video-i2v-kling",
	"kling":          "video-i2v-kling",
	"edit":           "video-edit",
	"modify":         "video-edit",
	"style":          "video-edit",
	"reframe":        "video-reframe",
	"resize":         "video-reframe",
	"aspect":         "video-reframe",
	"audio":          "video-audio",
	"sound":          "video-audio",
	"mmaudio":        "video-audio",
}

// resolveTier looks up a tier by ID or alias within one family.
func resolveTier(tiers map[string]Tier, aliases map[string]string, id string) (Tier, bool) {
	if target, ok := aliases[id]; ok {
		id = target
	}
	t, ok := tiers[id]
	return t, ok
}

// ImageTiers returns the image catalog for model listings.
func ImageTiers() map[string]Tier { return imageTiers }

// ThreeDTiers returns the 3D catalog for model listings.
func ThreeDTiers() map[string]Tier { return threeDTiers }

// VideoTiers returns the video catalog for model listings.
func VideoTiers() map[string]Tier { return videoTiers }

// ImageAliases returns friendly-name mappings for the image catalog.
func ImageAliases() map[string]string { return imageAliases }

// ThreeDAliases returns friendly-name mappings for the 3D catalog.
func ThreeDAliases() map[string]string { return threeDAliases }

// VideoAliases returns friendly-name mappings for the video catalog.
func VideoAliases() map[string]string { return videoAliases }
