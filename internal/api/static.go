package api

import (
	"io/fs"

	webpkg "github.com/mariopenglee/nooneisthere-exhibition-script/web"
)

// staticFiles is the sub-filesystem containing the dashboard assets.
// It is served from the /static/ prefix and index.html at /dashboard.
var staticFiles fs.FS = webpkg.StaticFiles
