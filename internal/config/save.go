package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// SaveLauncher updates the launcher section in the config file.
// This preserves comments and formatting in other sections by using yaml.Node.
func SaveLauncher(configPath string, launcher LauncherConfig) error {
	return saveSection(configPath, "launcher", buildLauncherNode(launcher))
}

// SaveTracing updates the tracing section in the config file.
// This preserves comments and formatting in other sections by using yaml.Node.
func SaveTracing(configPath string, tracing TracingConfig) error {
	return saveSection(configPath, "tracing", buildTracingNode(tracing))
}

// saveSection replaces one top-level key of the config file, leaving
// every other section byte-for-byte intact, then writes atomically.
func saveSection(configPath, key string, sectionNode *yaml.Node) error {
	// Read existing file content
	data, err := os.ReadFile(configPath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading config: %w", err)
	}

	// Parse into yaml.Node to preserve comments
	var doc yaml.Node
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parsing config: %w", err)
		}
	}

	// Update or create the section
	if doc.Kind == 0 {
		// Empty or new file - create document structure
		doc = yaml.Node{
			Kind: yaml.DocumentNode,
			Content: []*yaml.Node{
				{
					Kind: yaml.MappingNode,
					Content: []*yaml.Node{
						{Kind: yaml.ScalarNode, Value: key},
						sectionNode,
					},
				},
			},
		}
	} else if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		root := doc.Content[0]
		if root.Kind == yaml.MappingNode {
			// Find and replace the key, or append it
			found := false
			for i := 0; i < len(root.Content)-1; i += 2 {
				if root.Content[i].Value == key {
					root.Content[i+1] = sectionNode
					found = true
					break
				}
			}
			if !found {
				root.Content = append(root.Content,
					&yaml.Node{Kind: yaml.ScalarNode, Value: key},
					sectionNode,
				)
			}
		}
	}

	// Marshal back to YAML
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(&doc); err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	_ = encoder.Close()

	// Write atomically (write to temp, then rename)
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	temp, err := os.CreateTemp(dir, ".warden.yaml.tmp.*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tempPath := temp.Name()

	if _, err := temp.Write(buf.Bytes()); err != nil {
		_ = temp.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := temp.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tempPath, configPath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}

	return nil
}

// buildLauncherNode creates a yaml.Node representing the launcher section.
func buildLauncherNode(launcher LauncherConfig) *yaml.Node {
	node := &yaml.Node{
		Kind:    yaml.MappingNode,
		Content: make([]*yaml.Node, 0),
	}

	if launcher.Executable != "" {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: "executable"},
			&yaml.Node{Kind: yaml.ScalarNode, Value: launcher.Executable},
		)
	}

	if launcher.GamePath != "" {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: "game_path"},
			&yaml.Node{Kind: yaml.ScalarNode, Value: launcher.GamePath},
		)
	}

	if len(launcher.Args) > 0 {
		argsNode := &yaml.Node{
			Kind:    yaml.SequenceNode,
			Content: make([]*yaml.Node, 0, len(launcher.Args)),
		}
		for _, arg := range launcher.Args {
			argsNode.Content = append(argsNode.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Value: arg})
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: "args"},
			argsNode,
		)
	}

	return node
}

// buildTracingNode creates a yaml.Node representing the tracing section.
func buildTracingNode(tracing TracingConfig) *yaml.Node {
	node := &yaml.Node{
		Kind: yaml.MappingNode,
		Content: []*yaml.Node{
			{Kind: yaml.ScalarNode, Value: "enabled"},
			{Kind: yaml.ScalarNode, Value: strconv.FormatBool(tracing.Enabled)},
		},
	}

	if tracing.Exporter != "" {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: "exporter"},
			&yaml.Node{Kind: yaml.ScalarNode, Value: tracing.Exporter},
		)
	}

	if tracing.FilePath != "" {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: "file_path"},
			&yaml.Node{Kind: yaml.ScalarNode, Value: tracing.FilePath},
		)
	}

	if tracing.OTLPEndpoint != "" {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: "otlp_endpoint"},
			&yaml.Node{Kind: yaml.ScalarNode, Value: tracing.OTLPEndpoint},
		)
	}

	rate := strconv.FormatFloat(tracing.SampleRate, 'f', -1, 64)
	if !strings.Contains(rate, ".") {
		rate += ".0"
	}
	node.Content = append(node.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Value: "sample_rate"},
		&yaml.Node{Kind: yaml.ScalarNode, Value: rate},
	)

	return node
}
