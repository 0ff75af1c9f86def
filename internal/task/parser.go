package task

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// FileNames are the file names recognized as task files (case-sensitive).
var FileNames = map[string]bool{
	"TASKS.md":    true,
	"01 TASKS.md": true,
}

// IsTaskFileName reports whether name is a recognized task file name.
func IsTaskFileName(name string) bool {
	return FileNames[name]
}

var taskLineRe = regexp.MustCompile(`^(\s*)- \[(.)\] (.+)$`)

// checkboxStatus maps a checkbox character to a status. Anything not listed
// parses as open.
func checkboxStatus(c string) Status {
	switch strings.ToLower(strings.TrimSpace(c)) {
	case "x":
		return StatusDone
	case "/":
		return StatusInProgress
	default:
		return StatusOpen
	}
}

func statusCheckbox(s Status) string {
	switch s {
	case StatusDone:
		return "[x]"
	case StatusInProgress:
		return "[/]"
	default:
		return "[ ]"
	}
}

// indentLevel converts leading whitespace into a 0-based level. Tabs count
// as one level each, space runs as four columns per level; mixed indentation
// sums to a single column count before dividing.
func indentLevel(indent string) int {
	return len(strings.ReplaceAll(indent, "\t", "    ")) / 4
}

// extractFrontmatter returns the verbatim frontmatter lines (including the
// --- delimiters) and the index of the first body line. A block that is
// never closed is treated as body.
func extractFrontmatter(lines []string) ([]string, int) {
	i := 0
	for i < len(lines) && strings.TrimSpace(lines[i]) == "" {
		i++
	}
	if i >= len(lines) || strings.TrimSpace(lines[i]) != "---" {
		return nil, 0
	}

	fm := []string{lines[i]}
	i++
	for i < len(lines) {
		fm = append(fm, lines[i])
		if strings.TrimSpace(lines[i]) == "---" {
			return fm, i + 1
		}
		i++
	}
	return nil, 0
}

// Parse parses task file content into a Tree. Unrecognized lines are
// skipped; malformed content never produces an error.
func Parse(content, filePath string) *Tree {
	lines := strings.Split(content, "\n")
	frontmatter, bodyStart := extractFrontmatter(lines)

	tree := &Tree{
		FilePath:    filePath,
		Frontmatter: frontmatter,
	}

	var currentSection *SectionBlock
	var stack []*Task
	var currentTask *Task

	for lineNum := bodyStart; lineNum < len(lines); lineNum++ {
		line := lines[lineNum]
		stripped := strings.TrimSpace(line)
		if stripped == "" {
			continue
		}

		if strings.HasPrefix(stripped, "#") {
			level := len(stripped) - len(strings.TrimLeft(stripped, "#"))
			heading := strings.TrimSpace(stripped[level:])
			currentSection = &SectionBlock{Heading: heading, Level: level}
			tree.Sections = append(tree.Sections, currentSection)
			// Tasks never span sections.
			stack = stack[:0]
			currentTask = nil
			continue
		}

		if strings.HasPrefix(stripped, "- [") && !strings.HasPrefix(stripped, "- [[") {
			m := taskLineRe.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			title, tags := SplitTags(m[3])
			t := &Task{
				Title:       title,
				Status:      checkboxStatus(m[2]),
				Tags:        tags,
				IndentLevel: indentLevel(m[1]),
				LineNumber:  lineNum,
				FilePath:    filePath,
			}
			if currentSection != nil {
				t.Section = currentSection.Heading
				t.SectionLevel = currentSection.Level
			}

			for len(stack) > 0 && stack[len(stack)-1].IndentLevel >= t.IndentLevel {
				stack = stack[:len(stack)-1]
			}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, t)
			} else {
				if currentSection == nil {
					// Tasks before any heading get an implicit section.
					currentSection = &SectionBlock{}
					tree.Sections = append(tree.Sections, currentSection)
				}
				currentSection.Tasks = append(currentSection.Tasks, t)
			}
			stack = append(stack, t)
			currentTask = t
			continue
		}

		// Note line: an indented bullet without a checkbox, strictly deeper
		// than the most recent task.
		if currentTask != nil && strings.HasPrefix(stripped, "-") {
			indent := line[:strings.Index(line, "-")]
			if indentLevel(indent) > currentTask.IndentLevel {
				note := stripped
				if strings.HasPrefix(note, "- ") {
					note = note[2:]
				} else {
					note = strings.TrimSpace(note[1:])
				}
				currentTask.Notes = append(currentTask.Notes, note)
			}
		}
	}

	return tree
}

// ParseFile reads and parses a task file from disk.
func ParseFile(path string) (*Tree, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read task file: %w", err)
	}
	return Parse(string(content), path), nil
}

func serializeTask(t *Task, level int, lines []string) []string {
	indent := strings.Repeat("    ", level)

	line := indent + "- " + statusCheckbox(t.Status) + " " + t.Title
	if tagStr := RenderTags(t.Tags); tagStr != "" {
		line += " " + tagStr
	}
	lines = append(lines, line)

	noteIndent := strings.Repeat("    ", level+1)
	for _, note := range t.Notes {
		lines = append(lines, noteIndent+"- "+note)
	}

	for _, child := range t.Children {
		lines = serializeTask(child, level+1, lines)
	}
	return lines
}

// Serialize renders a Tree back to file content. Frontmatter is emitted
// verbatim, then each section as a blank line, the heading, a blank line,
// and its tasks in canonical form.
func Serialize(tree *Tree) string {
	var lines []string
	lines = append(lines, tree.Frontmatter...)

	for _, section := range tree.Sections {
		if section.Heading != "" {
			lines = append(lines, "", strings.Repeat("#", section.Level)+" "+section.Heading, "")
		}
		for _, t := range section.Tasks {
			lines = serializeTask(t, 0, lines)
		}
	}

	return strings.Join(lines, "\n")
}

// WriteFile serializes the tree to its file.
func WriteFile(path string, tree *Tree) error {
	if err := os.WriteFile(path, []byte(Serialize(tree)), 0644); err != nil {
		return fmt.Errorf("failed to write task file: %w", err)
	}
	return nil
}
