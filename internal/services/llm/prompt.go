package llm

import (
	"fmt"
	"strings"
)

const captionSystemPrompt = "You write concise, factual alt texts for a 3D asset marketplace."

// buildCaptionPrompt assembles the alt-text request from asset metadata.
// The machine-generated description is flagged as unreliable so the model
// leans on the user-written one when they disagree.
func buildCaptionPrompt(req CaptionRequest) string {
	assetType := req.AssetType
	if assetType == "" {
		assetType = "model"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "We got this information from a BlenderKit 3D %s.\n", assetType)
	fmt.Fprintf(&b, "name of 3d %s: %q\n", assetType, req.Name)
	if req.Category != "" {
		fmt.Fprintf(&b, "category slug: %q\n", req.Category)
	}
	if req.MachineDescription != "" {
		fmt.Fprintf(&b, "description AI generated (based on %s thumbnail, don't trust it too much):\n%q\n", assetType, req.MachineDescription)
	}
	if req.UserDescription != "" {
		fmt.Fprintf(&b, "description user written:\n%q\n", req.UserDescription)
	}
	b.WriteString("software used:\nBlender 3D\n")
	fmt.Fprintf(&b, "We need a good alt text that optimizes our SEO for google image search, when people search for 3D %s for Blender 3D.\n", assetType)
	b.WriteString("Please write an alt text in max 3 sentences, use the keywords in the description and use the better one of the 2 descriptions provided.")
	return b.String()
}
