// Package subprocess drives the external interpreter invoked by
// session.compress: a trusted script with no preopen model, fed a
// merged JSON payload on stdin and expected to reply with a single
// JSON value on stdout. Structurally identical in spirit to the
// sandbox driver but simpler, since the executable is trusted rather
// than arbitrary guest code.
package subprocess

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

// Driver runs a fixed external script for session.compress.
type Driver struct {
	scriptPath string
}

// New returns a driver bound to the given interpreter script path.
func New(scriptPath string) *Driver {
	return &Driver{scriptPath: scriptPath}
}

// Compress merges input with the caller's context into a single JSON
// payload, feeds it to the script over stdin, and parses the script's
// single JSON reply from stdout.
func (d *Driver) Compress(ctx context.Context, input json.RawMessage, contextEcho json.RawMessage) (json.RawMessage, error) {
	payload, err := mergePayload(input, contextEcho)
	if err != nil {
		return nil, fmt.Errorf("merge session.compress payload: %w", err)
	}

	cmd := exec.CommandContext(ctx, d.scriptPath)
	cmd.Stdin = bytes.NewReader(payload)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("session.compress subprocess failed: %s", strings.TrimSpace(stderr.String()))
	}

	var reply json.RawMessage
	if err := json.Unmarshal(stdout.Bytes(), &reply); err != nil {
		return nil, fmt.Errorf("parse session.compress reply: %w", err)
	}
	return reply, nil
}

// mergePayload builds input ⊕ echoed context: the input object's keys
// win on collision, since the caller's explicit arguments take
// precedence over the ambient context echo.
func mergePayload(input, contextEcho json.RawMessage) ([]byte, error) {
	merged := map[string]json.RawMessage{}
	if len(contextEcho) > 0 {
		var ctxFields map[string]json.RawMessage
		if err := json.Unmarshal(contextEcho, &ctxFields); err != nil {
			return nil, err
		}
		for k, v := range ctxFields {
			merged[k] = v
		}
	}
	if len(input) > 0 {
		var inputFields map[string]json.RawMessage
		if err := json.Unmarshal(input, &inputFields); err != nil {
			return nil, err
		}
		for k, v := range inputFields {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}
