//go:build windows

package fdcache

import "strings"

func init() {
	normalize = func(path string) string {
		return strings.ReplaceAll(path, `\`, `/`)
	}
}
