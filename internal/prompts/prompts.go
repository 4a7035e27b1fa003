package prompts

// CaptionUserPrompt is the instruction sent alongside the image. The
// response_format schema enforces the shape; the prompt keeps weaker local
// models from drifting into prose.
const CaptionUserPrompt = "What's on this image? Return JSON with two fields: " +
	"`description` (a short description), and " +
	"`name` (a few words with no spaces)."

// CaptionSchemaName names the JSON schema in the response_format directive.
const CaptionSchemaName = "image_description"
