package xcross

import "github.com/gookit/color"

// Global variables
var (
	CacheDir    string
	MirrorURL   string
	HostTriple  string
	Jobs        = 4
	Debug       bool
	ConfigFile  string
	version     = "dev"     // overridden at build time
	buildDate   = "unknown" // overridden at build time
)

// defaultMirror hosts the prebuilt toolchain archives.
const defaultMirror = "https://d3ojaw7tkwhzj5.cloudfront.net/"

// color helpers
var (
	colInfo    = color.Info
	colWarn    = color.Warn
	colError   = color.Error
	colSuccess = color.HEX("#1976D2")
	colArrow   = color.HEX("#FFEB3B")
	colNote    = color.Tag("notice")
)
