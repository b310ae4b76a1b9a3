// Package vegetation implements the four tools the vegetation agent can call:
// locate, findScenes, computeStats and renderImage.
//
// Arguments are parsed into a closed set of call variants by explicit field
// checks (see [Parse]); malformed arguments are reported as a
// [toolbox.ValidationError] before any provider is contacted. Executors never
// fail on provider errors: every failure is folded into an {"error": ...}
// result the model can explain to the user.
//
// The package also owns the system policy that tells the model in which order
// to call the tools, and an optional [StrictOrdering] gate that enforces the
// "never invent a capture date" rule in code.
package vegetation
