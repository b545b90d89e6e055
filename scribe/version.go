package main

import "fmt"

// Semantic version of the recorder.
const (
	appMajor = 0
	appMinor = 2
	appPatch = 0

	// appPreRelease should be empty for a tagged release.
	appPreRelease = "pre"
)

func version() string {
	v := fmt.Sprintf("%d.%d.%d", appMajor, appMinor, appPatch)
	if appPreRelease != "" {
		v += "-" + appPreRelease
	}
	return v
}
