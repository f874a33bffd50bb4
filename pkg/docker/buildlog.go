package docker

import (
	"regexp"
	"strconv"
)

var (
	buildStepPattern  = regexp.MustCompile(`^Step (\d+)/(\d+) : (.*)$`)
	builtImagePattern = regexp.MustCompile(`Successfully built ([0-9a-f]+)`)
)

// parseBuildStepLine extracts a progress event from a single build output
// line. Lines that are not step markers report ok == false and are ignored
// for progress purposes.
func parseBuildStepLine(line string) (progress BuildProgress, ok bool) {
	match := buildStepPattern.FindStringSubmatch(line)
	if match == nil {
		return BuildProgress{}, false
	}

	step, err := strconv.Atoi(match[1])
	if err != nil {
		return BuildProgress{}, false
	}

	total, err := strconv.Atoi(match[2])
	if err != nil {
		return BuildProgress{}, false
	}

	return BuildProgress{Step: step, TotalSteps: total, Name: match[3]}, true
}

// builtImageID finds the identifier of the built image in the full build
// output. The daemon may echo intermediate "Successfully built" lines for
// cached layers, so the last match is the authoritative one.
func builtImageID(output string) (string, bool) {
	matches := builtImagePattern.FindAllStringSubmatch(output, -1)
	if len(matches) == 0 {
		return "", false
	}

	return matches[len(matches)-1][1], true
}
