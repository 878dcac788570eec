package emit

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/chazu/flatprog/schema"
)

var frameLine = regexp.MustCompile(`^\s*File "([^"]*)", line (\d+), in (.+?)\s*$`)

// parseStackTrace turns traceback text into frames. Each
//
//	File "<file>", line <n>, in <name>
//
// line starts a frame; a following line that does not start another frame
// is taken as its source context. Other lines, including frames whose line
// number does not fit an int, are ignored.
func parseStackTrace(text string) schema.FrameList {
	var frames []schema.Frame
	lines := strings.Split(text, "\n")
	for i := 0; i < len(lines); i++ {
		m := frameLine.FindStringSubmatch(lines[i])
		if m == nil {
			continue
		}
		lineno, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		f := schema.Frame{Filename: m[1], Lineno: lineno, Name: m[3]}
		if i+1 < len(lines) && !frameLine.MatchString(lines[i+1]) {
			f.Context = strings.TrimSpace(lines[i+1])
			i++
		}
		frames = append(frames, f)
	}
	return schema.FrameList{Items: frames}
}
