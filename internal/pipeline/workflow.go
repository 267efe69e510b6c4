package pipeline

import (
	"math"
	"math/rand"
)

// Request is the node-graph document the generation gateway expects.
type Request struct {
	Prompt map[string]Node `json:"prompt"`
}

// Node is a single node in the generation pipeline graph.
type Node struct {
	Meta      NodeMeta       `json:"_meta"`
	Inputs    map[string]any `json:"inputs"`
	ClassType string         `json:"class_type"`
}

// NodeMeta carries the display title of a node.
type NodeMeta struct {
	Title string `json:"title"`
}

// Build maps cleaned prompt text and clamped parameters onto the fixed
// video-to-video workflow shape. Quality becomes the sampler step count
// (floored), creativity the ControlNet conditioning strength. A fresh seed
// is drawn per build so successive prompts do not replay identical noise.
func Build(promptText string, quality, creativity float64) Request {
	return Request{
		Prompt: map[string]Node{
			"1": {
				Meta:      NodeMeta{Title: "Load Image"},
				Inputs:    map[string]any{"image": "example.png"},
				ClassType: "LoadImage",
			},
			"2": {
				Meta: NodeMeta{Title: "Depth Anything Tensorrt"},
				Inputs: map[string]any{
					"engine": "depth_anything_vitl14-fp16.engine",
					"images": []any{"1", 0},
				},
				ClassType: "DepthAnythingTensorrt",
			},
			"3": {
				Meta: NodeMeta{Title: "TensorRT Loader"},
				Inputs: map[string]any{
					"unet_name":  "static-dreamshaper8_SD15_$stat-b-1-h-512-w-512_00001_.engine",
					"model_type": "SD15",
				},
				ClassType: "TensorRTLoader",
			},
			"5": {
				Meta: NodeMeta{Title: "CLIP Text Encode (Prompt)"},
				Inputs: map[string]any{
					"clip": []any{"23", 0},
					"text": promptText,
				},
				ClassType: "CLIPTextEncode",
			},
			"6": {
				Meta: NodeMeta{Title: "CLIP Text Encode (Negative)"},
				Inputs: map[string]any{
					"clip": []any{"23", 0},
					"text": "",
				},
				ClassType: "CLIPTextEncode",
			},
			"7": {
				Meta: NodeMeta{Title: "KSampler"},
				Inputs: map[string]any{
					"cfg":          1,
					"seed":         rand.Int63n(1_000_000_000_000_000),
					"model":        []any{"24", 0},
					"steps":        int(math.Floor(quality)),
					"denoise":      1,
					"negative":     []any{"9", 1},
					"positive":     []any{"9", 0},
					"scheduler":    "normal",
					"latent_image": []any{"16", 0},
					"sampler_name": "lcm",
				},
				ClassType: "KSampler",
			},
			"8": {
				Meta: NodeMeta{Title: "Load ControlNet Model"},
				Inputs: map[string]any{
					"control_net_name": "control_v11f1p_sd15_depth_fp16.safetensors",
				},
				ClassType: "ControlNetLoader",
			},
			"9": {
				Meta: NodeMeta{Title: "Apply ControlNet"},
				Inputs: map[string]any{
					"positive":      []any{"5", 0},
					"negative":      []any{"6", 0},
					"control_net":   []any{"8", 0},
					"image":         []any{"2", 0},
					"strength":      creativity,
					"start_percent": 0,
					"end_percent":   1,
				},
				ClassType: "ControlNetApplyAdvanced",
			},
			"16": {
				Meta: NodeMeta{Title: "Empty Latent Image"},
				Inputs: map[string]any{
					"width":      512,
					"height":     512,
					"batch_size": 1,
				},
				ClassType: "EmptyLatentImage",
			},
			"23": {
				Meta: NodeMeta{Title: "Load CLIP"},
				Inputs: map[string]any{
					"clip_name": "sd15_clip_model.fp16.safetensors",
					"type":      "stable_diffusion",
				},
				ClassType: "CLIPLoader",
			},
			"24": {
				Meta: NodeMeta{Title: "Torch Compile Model"},
				Inputs: map[string]any{
					"model":   []any{"3", 0},
					"backend": "inductor",
				},
				ClassType: "TorchCompileModel",
			},
		},
	}
}
