// Package functions manages per-domain transformation functions: hosting
// their code on a serverless platform and invoking them during message
// processing.
package functions

import (
	"context"
	"time"
)

// defaultCode is deployed when a function is created without a body, so the
// invoke URL resolves from the moment of creation.
const defaultCode = `export default { async fetch(req) { return new Response("Default function") } }`

// ScriptDetails describes a deployed script as reported by the platform.
type ScriptDetails struct {
	Name       string    `json:"name"`
	ModifiedOn time.Time `json:"modified_on"`
}

// Platform is the serverless hosting capability. Implementations own script
// naming conventions on the remote side; callers pass the name verbatim.
type Platform interface {
	// UploadScript creates the script or replaces its code.
	UploadScript(ctx context.Context, name, code string) error
	// Deploy activates the current script version in the given environment
	// and returns the platform's deployment identifier.
	Deploy(ctx context.Context, name, environment string) (string, error)
	ScriptDetails(ctx context.Context, name string) (*ScriptDetails, error)
	ScriptContent(ctx context.Context, name string) (string, error)
	DeleteScript(ctx context.Context, name string) error
	// InvokeURL returns the public URL the script is reachable at.
	InvokeURL(name string) string
}
