package stage

import (
	"regexp"
	"strings"
)

var (
	openFenceRe  = regexp.MustCompile("^ {0,3}(`{3,})[ \t]*([A-Za-z0-9_+.-]*)[ \t]*$")
	closeFenceRe = regexp.MustCompile("^ {0,3}(`{3,})[ \t]*$")
	backtickRun  = regexp.MustCompile("`+")
)

type fencedBlock struct {
	lang string
	body string
}

// fencedBlocks returns every closed fenced block in text, in order. A block
// ends at the first bare fence at least as long as the one that opened it, so
// a ```` block may contain ``` lines. Unclosed fences are ignored.
func fencedBlocks(text string) []fencedBlock {
	lines := strings.Split(text, "\n")
	for i := range lines {
		lines[i] = strings.TrimSuffix(lines[i], "\r")
	}

	var blocks []fencedBlock
	for i := 0; i < len(lines); i++ {
		m := openFenceRe.FindStringSubmatch(lines[i])
		if m == nil {
			continue
		}
		for j := i + 1; j < len(lines); j++ {
			c := closeFenceRe.FindStringSubmatch(lines[j])
			if c == nil || len(c[1]) < len(m[1]) {
				continue
			}
			blocks = append(blocks, fencedBlock{
				lang: strings.ToLower(m[2]),
				body: strings.Join(lines[i+1:j], "\n"),
			})
			i = j
			break
		}
	}
	return blocks
}

// fenceFor returns a backtick fence longer than any backtick run in content
func fenceFor(content string) string {
	n := 3
	for _, run := range backtickRun.FindAllString(content, -1) {
		if len(run) >= n {
			n = len(run) + 1
		}
	}
	return strings.Repeat("`", n)
}

// extractJSON returns the first json block, the first block that looks like
// an object, or the outermost {...} span of text
func extractJSON(text string) (string, bool) {
	blocks := fencedBlocks(text)
	for _, b := range blocks {
		if b.lang == "json" {
			return b.body, true
		}
	}
	for _, b := range blocks {
		if strings.HasPrefix(strings.TrimSpace(b.body), "{") {
			return b.body, true
		}
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1], true
	}
	return "", false
}

// extractCode returns the body of the first fenced block in text
func extractCode(text string) (string, bool) {
	blocks := fencedBlocks(text)
	if len(blocks) == 0 {
		return "", false
	}
	return blocks[0].body, true
}
