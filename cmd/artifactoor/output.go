package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/ethpandaops/artifactoor/pkg/upload"
	"gopkg.in/yaml.v3"
)

// Output formats accepted by --output.
const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

// expandPaths resolves glob arguments ("**" supported) to regular files.
// Arguments without glob metacharacters pass through untouched so that a
// missing file is reported by the uploader. Duplicates are dropped and
// argument order is kept.
func expandPaths(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	seen := make(map[string]struct{}, len(args))

	add := func(p string) {
		p = filepath.Clean(p)
		if _, ok := seen[p]; ok {
			return
		}

		seen[p] = struct{}{}
		out = append(out, p)
	}

	for _, arg := range args {
		if !strings.ContainsAny(arg, "*?[{") {
			add(arg)

			continue
		}

		if !doublestar.ValidatePattern(filepath.ToSlash(arg)) {
			return nil, fmt.Errorf("invalid glob pattern %q", arg)
		}

		matches, err := doublestar.FilepathGlob(arg, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("expanding %q: %w", arg, err)
		}

		if len(matches) == 0 {
			return nil, fmt.Errorf("pattern %q matched no files", arg)
		}

		for _, m := range matches {
			add(m)
		}
	}

	return out, nil
}

// renderArtifacts formats artifacts for --output.
func renderArtifacts(format string, artifacts []upload.Artifact) ([]byte, error) {
	switch format {
	case outputText:
		var buf bytes.Buffer

		w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

		for _, a := range artifacts {
			_, _ = fmt.Fprintf(w, "%s\t%s\n", a.Path, a.URL)
		}

		if err := w.Flush(); err != nil {
			return nil, err
		}

		return buf.Bytes(), nil
	case outputJSON:
		data, err := json.MarshalIndent(artifacts, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshaling artifacts: %w", err)
		}

		return append(data, '\n'), nil
	case outputYAML:
		data, err := yaml.Marshal(artifacts)
		if err != nil {
			return nil, fmt.Errorf("marshaling artifacts: %w", err)
		}

		return data, nil
	default:
		return nil, fmt.Errorf("unsupported output format %q (use %q, %q or %q)",
			format, outputText, outputJSON, outputYAML)
	}
}
