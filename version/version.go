package version

import "fmt"

// Set at build time with -ldflags "-X".
var (
	Version   string
	Commit    string
	Branch    string
	BuildTime string
	BuiltBy   string
)

func String() string {
	if Version == "" {
		return "dev"
	}
	return Version
}

func PrintVersion() {
	fmt.Printf("Version: %s\n"+
		"Commit: %s\n"+
		"Branch: %s\n"+
		"Build Time: %s\n"+
		"Built By: %s\n",
		String(),
		Commit,
		Branch,
		BuildTime,
		BuiltBy,
	)
}
