package assets

import (
	_ "embed"
)

const ServiceName = "EduTech AI Email Generator"

// Index is the single page front-end served on GET /.
//
//go:embed index.html
var Index []byte
