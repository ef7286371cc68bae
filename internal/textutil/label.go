package textutil

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var labelCaser = cases.Title(language.English)

// StageLabel converts an internal stage name like "download" or
// "export_dispatch" into a display label like "Download" or "Export Dispatch".
func StageLabel(stage string) string {
	stage = strings.TrimSpace(stage)
	if stage == "" {
		return ""
	}
	stage = strings.NewReplacer("_", " ", "-", " ").Replace(stage)
	return labelCaser.String(stage)
}
