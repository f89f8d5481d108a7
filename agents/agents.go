// Package agents reads agent definition files: markdown documents with
// a YAML frontmatter header. The frontmatter names the agent's triad
// and supplies the routing corpus (description and example prompts).
package agents

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const frontmatterDelimiter = "---"

// Frontmatter is the YAML header of an agent markdown file.
type Frontmatter struct {
	Name           string   `yaml:"name"`
	Triad          string   `yaml:"triad"`
	Description    string   `yaml:"description"`
	ExamplePrompts []string `yaml:"example_prompts"`
}

// Agent is one parsed agent definition.
type Agent struct {
	Frontmatter
	Path string
	Body string
}

// ParseFile reads and parses one agent markdown file.
func ParseFile(path string) (*Agent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read agent file: %w", err)
	}
	fm, body, err := splitFrontmatter(string(data))
	if err != nil {
		return nil, fmt.Errorf("parse agent file %s: %w", filepath.Base(path), err)
	}
	agent := &Agent{Path: path, Body: body}
	if err := yaml.Unmarshal([]byte(fm), &agent.Frontmatter); err != nil {
		return nil, fmt.Errorf("parse agent frontmatter %s: %w", filepath.Base(path), err)
	}
	if agent.Name == "" {
		agent.Name = strings.TrimSuffix(filepath.Base(path), ".md")
	}
	return agent, nil
}

// splitFrontmatter separates the YAML header from the markdown body.
// Files without a header parse as all body.
func splitFrontmatter(content string) (frontmatter, body string, err error) {
	if !strings.HasPrefix(content, frontmatterDelimiter+"\n") {
		return "", content, nil
	}
	rest := content[len(frontmatterDelimiter)+1:]
	end := strings.Index(rest, "\n"+frontmatterDelimiter)
	if end < 0 {
		return "", "", fmt.Errorf("unterminated frontmatter")
	}
	frontmatter = rest[:end]
	body = strings.TrimPrefix(rest[end+1+len(frontmatterDelimiter):], "\n")
	return frontmatter, body, nil
}

// LoadDir parses every agent markdown file under dir, including triad
// subdirectories, sorted by path. Unreadable files are skipped.
func LoadDir(dir string) ([]*Agent, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".md") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("walk agents dir: %w", err)
	}
	sort.Strings(paths)

	var result []*Agent
	for _, path := range paths {
		agent, err := ParseFile(path)
		if err != nil {
			continue
		}
		result = append(result, agent)
	}
	return result, nil
}

// TriadIndex maps agent names to their triads. When the frontmatter
// omits the triad, the parent directory name is used.
func TriadIndex(dir string) (map[string]string, error) {
	list, err := LoadDir(dir)
	if err != nil {
		return nil, err
	}
	index := make(map[string]string, len(list))
	for _, a := range list {
		triad := a.Triad
		if triad == "" {
			parent := filepath.Base(filepath.Dir(a.Path))
			if parent != filepath.Base(dir) {
				triad = parent
			}
		}
		if triad != "" {
			index[a.Name] = triad
		}
	}
	return index, nil
}
