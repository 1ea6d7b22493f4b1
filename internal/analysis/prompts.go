package analysis

import (
	"fmt"
	"strings"
)

// smallFileThreshold selects the compact "structure" style for short inputs
const smallFileThreshold = 2000

const fileCompactInstructions = `Analyze this code file technically.
1. If under 10 lines: show its exact structure.
2. Otherwise: describe the concrete implementation.

Format:
- [filename]: [specific technical content]`

const fileDetailedInstructions = `Analyze this code module in depth:
1. Technical architecture (classes, patterns)
2. Implementation details
3. Domain-specific adaptations

Omit trivial details but cover all key components.`

const directoryInstructions = `Analyze the analyses of this directory's files and subdirectories. Summarize:
0. Overall purpose of the module.
1. Structure: core components, hierarchy, data flow.
2. Modules: files' purpose, key functions, interfaces.
3. Connections: dependencies, external integrations.

Rules:
- Group logically, not by listing order.
- Entries marked FAILED could not be analysed; name them as gaps instead of guessing their content.
- Mark inferences clearly. Be technical, detailed and structured.`

const projectInstructions = `Read and organize the following directory summaries and provide a detailed explanation of the project.
Approach it from a code editor's perspective: what functionality exists where, and what is absent.
Use concrete features and the structural framework as hierarchy levels, and the project's data
structures as narrative threads. Present it logically, systematically and in depth.`

// SystemPrompt builds the system message for a request: the project context
// document followed by the instructions for the request kind
func SystemPrompt(req Request) string {
	var instructions string
	switch req.Kind {
	case KindDirectory:
		instructions = directoryInstructions
	case KindProject:
		instructions = projectInstructions
	default:
		if len(req.Content) < smallFileThreshold {
			instructions = fileCompactInstructions
		} else {
			instructions = fileDetailedInstructions
		}
	}

	ctx := strings.TrimSpace(req.Context)
	if ctx == "" {
		return instructions
	}
	return ctx + "\n\n" + instructions
}

// UserPrompt builds the user message for a request
func UserPrompt(req Request) string {
	switch req.Kind {
	case KindFile:
		return fmt.Sprintf("// File: %s\n%s", req.Path, req.Content)
	default:
		return req.Content
	}
}
