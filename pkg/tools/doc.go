// Package tools holds the tool layer of the vegetation agent.
//
// It is organized into sub-packages:
//   - [github.com/Berektassuly/terra-vision-ai/pkg/tools/toolbox] defines the Tool type, argument validation errors and the ToolBox registry
//   - [github.com/Berektassuly/terra-vision-ai/pkg/tools/vegetation] implements locate, findScenes, computeStats and renderImage over the provider clients
//   - [github.com/Berektassuly/terra-vision-ai/pkg/tools/mcpserver] exposes a ToolBox over the Model Context Protocol
//
// The toolbox sub-package is the foundation layer; vegetation and mcpserver
// depend on it but not on each other.
package tools
