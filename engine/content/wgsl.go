package content

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// includePrefix marks a line that pulls a registered WGSL snippet into the shader.
//
// Syntax: //@oxy:include <name>
const includePrefix = "//@oxy:include"

var (
	// vertexEntryRegex matches @vertex functions and captures the entry point name
	vertexEntryRegex = regexp.MustCompile(`(?s)@vertex\b.*?\bfn\s+(\w+)`)

	// fragmentEntryRegex matches @fragment functions and captures the entry point name
	fragmentEntryRegex = regexp.MustCompile(`(?s)@fragment\b.*?\bfn\s+(\w+)`)

	// computeEntryRegex matches @compute functions and captures the entry point name
	computeEntryRegex = regexp.MustCompile(`(?s)@compute\b.*?\bfn\s+(\w+)`)

	// fragDepthRegex matches a fragment output bound to the depth builtin
	fragDepthRegex = regexp.MustCompile(`@builtin\(\s*frag_depth\s*\)`)

	// workgroupSizeRegex captures 1-3 integer dimensions from @workgroup_size(x[, y[, z]])
	workgroupSizeRegex = regexp.MustCompile(`@workgroup_size\(\s*(\d+)\s*(?:,\s*(\d+)\s*(?:,\s*(\d+)\s*)?)?\)`)
)

// expandIncludes replaces every include line with the registered snippet. Includes
// are expanded once; snippets cannot include other snippets.
//
// Parameters:
//   - source: the raw WGSL source
//   - includes: snippet sources keyed by include name
//
// Returns:
//   - string: the expanded source
//   - error: error naming the line of an unknown include
func expandIncludes(source string, includes map[string]string) (string, error) {
	if !strings.Contains(source, includePrefix) {
		return source, nil
	}
	lines := strings.Split(source, "\n")
	out := make([]string, 0, len(lines))
	for i, line := range lines {
		name, ok := strings.CutPrefix(strings.TrimSpace(line), includePrefix)
		if !ok {
			out = append(out, line)
			continue
		}
		name = strings.TrimSpace(name)
		snippet, found := includes[name]
		if !found {
			return "", fmt.Errorf("line %d: unknown include %q", i+1, name)
		}
		out = append(out, snippet)
	}
	return strings.Join(out, "\n"), nil
}

// parseWorkgroupSize extracts the compute workgroup size. Omitted dimensions
// default to 1, as does a missing annotation.
func parseWorkgroupSize(source string) [3]uint32 {
	result := [3]uint32{1, 1, 1}
	match := workgroupSizeRegex.FindStringSubmatch(stripComments(source))
	if match == nil {
		return result
	}
	for i := range 3 {
		if match[i+1] == "" {
			continue
		}
		if v, err := strconv.ParseUint(match[i+1], 10, 32); err == nil {
			result[i] = uint32(v)
		}
	}
	return result
}

func parseEntry(source string, re *regexp.Regexp) string {
	if match := re.FindStringSubmatch(source); match != nil {
		return match[1]
	}
	return ""
}

// stripComments removes line comments and nested block comments.
func stripComments(source string) string {
	var sb strings.Builder
	sb.Grow(len(source))
	depth := 0
	for i := 0; i < len(source); {
		if i+1 < len(source) {
			switch {
			case source[i] == '/' && source[i+1] == '*':
				depth++
				i += 2
				continue
			case source[i] == '*' && source[i+1] == '/' && depth > 0:
				depth--
				i += 2
				continue
			case depth == 0 && source[i] == '/' && source[i+1] == '/':
				for i < len(source) && source[i] != '\n' {
					i++
				}
				continue
			}
		}
		if depth == 0 {
			sb.WriteByte(source[i])
		}
		i++
	}
	return sb.String()
}
